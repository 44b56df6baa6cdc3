// Package gwasmissing answers "why is this variant missing from the
// Manhattan plot" queries: given a stratification and a list of variants
// the UI expected to see binned but didn't, it groups nearby variants into
// windows and fetches their raw association rows directly from the
// stratification's region file.
package gwasmissing

import (
	"io"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/apperr"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/columns"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/region"
)

// Record is one variant's raw association row, read positionally off the
// region file the same way the original reads the last four tab-separated
// columns of a pheno file regardless of their names.
type Record struct {
	Chrom        string `json:"chrom"`
	Pos          int    `json:"pos"`
	Ref          string `json:"ref"`
	Alt          string `json:"alt"`
	Rsids        string `json:"rsids,omitempty"`
	NearestGenes string `json:"nearest_genes,omitempty"`
	Pval         string `json:"pval,omitempty"`
	Beta         string `json:"beta,omitempty"`
	Sebeta       string `json:"sebeta,omitempty"`
	AF           string `json:"af,omitempty"`
}

// GroupByWindow sorts snpList (each "chrom-pos-ref-alt") by chrom then
// pos, and chains consecutive variants into the same group while each
// step's position is within windowSize of the position that closed the
// chain so far. A chain is keyed by its last member's (chrom,pos), which
// is also the anchor used to size the fetch region around it.
func GroupByWindow(snpList []string, windowSize int) map[[2]interface{}][]string {
	type parsed struct {
		raw   string
		chrom string
		pos   int
	}
	parsedList := make([]parsed, 0, len(snpList))
	for _, snp := range snpList {
		parts := strings.Split(snp, "-")
		if len(parts) < 2 {
			continue
		}
		pos, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		parsedList = append(parsedList, parsed{raw: snp, chrom: parts[0], pos: pos})
	}
	sort.Slice(parsedList, func(i, j int) bool {
		if parsedList[i].chrom != parsedList[j].chrom {
			return parsedList[i].chrom < parsedList[j].chrom
		}
		return parsedList[i].pos < parsedList[j].pos
	})

	grouped := make(map[[2]interface{}][]string)
	var currentGroup []string
	var currentChrom string
	var currentStart int
	haveGroup := false

	flush := func() {
		if len(currentGroup) == 0 {
			return
		}
		key := [2]interface{}{currentChrom, currentStart}
		grouped[key] = append(grouped[key], currentGroup...)
	}

	for _, p := range parsedList {
		if !haveGroup || (currentChrom == p.chrom && p.pos-currentStart <= windowSize) {
			currentGroup = append(currentGroup, p.raw)
			currentChrom, currentStart = p.chrom, p.pos
			haveGroup = true
		} else {
			flush()
			currentGroup = []string{p.raw}
			currentChrom, currentStart = p.chrom, p.pos
		}
	}
	flush()
	return grouped
}

// Fetcher answers missing-SNP lookups against one base directory of
// per-stratification region files named "<key>.gz"/"<key>.idx".
type Fetcher struct {
	baseDir        string
	windowSize     int
	pvalIsNegLog10 bool
}

// NewFetcher returns a Fetcher rooted at baseDir, using the given window
// size (in bp) both for grouping nearby variants and for sizing the fetch
// region around each group. When pvalIsNegLog10 is set, the region files'
// pval column stores -log10(p) rather than p, and every Record's Pval is
// converted back to a real probability before being returned.
func NewFetcher(baseDir string, windowSize int, pvalIsNegLog10 bool) *Fetcher {
	if windowSize <= 0 {
		windowSize = 200
	}
	return &Fetcher{baseDir: baseDir, windowSize: windowSize, pvalIsNegLog10: pvalIsNegLog10}
}

// normalizePval converts a raw pval cell into a real probability string,
// inverting -log10(p) back to p when the fetcher was configured for it.
// An unparseable cell is passed through unchanged rather than dropped, so
// a single malformed row doesn't fail the whole lookup.
func (f *Fetcher) normalizePval(raw string) string {
	if !f.pvalIsNegLog10 {
		return raw
	}
	neglog10, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return raw
	}
	return strconv.FormatFloat(math.Pow(10, -neglog10), 'g', -1, 64)
}

var rawSpecs = []columns.FieldSpec{
	{Name: "chrom", Kind: columns.KindString, Required: true},
	{Name: "pos", Kind: columns.KindInt, Required: true},
}

// FetchSNPInfo resolves snpList against the stratification named key,
// returning one Record per variant in snpList that was actually found.
func (f *Fetcher) FetchSNPInfo(key string, snpList []string) ([]Record, error) {
	const op = apperr.Op("gwasmissing.FetchSNPInfo")
	dataPath := filepath.Join(f.baseDir, key+".gz")
	indexPath := filepath.Join(f.baseDir, key+".idx")

	r, err := region.Open(dataPath, indexPath, rawSpecs, nil)
	if err != nil {
		return nil, apperr.WrapMsg(op, "opening stratification file "+key, err)
	}

	grouped := GroupByWindow(snpList, f.windowSize)
	var results []Record
	for key, snps := range grouped {
		chrom := key[0].(string)
		anchor := key[1].(int)
		regionStart := anchor - 100*f.windowSize
		regionEnd := anchor + 100*f.windowSize
		it, err := r.GetRegion(chrom, regionStart, regionEnd)
		if err != nil {
			return nil, apperr.WrapMsg(op, "fetching region", err)
		}
		for {
			cells, err := it.NextRaw()
			if err == io.EOF {
				break
			}
			if err != nil {
				it.Close()
				return nil, apperr.WrapMsg(op, "reading region row", err)
			}
			if len(cells) < 6 {
				continue
			}
			pos, err := strconv.Atoi(strings.TrimSpace(cells[1]))
			if err != nil {
				continue
			}
			ref, alt := cells[2], cells[3]
			for _, snp := range snps {
				parts := strings.Split(snp, "-")
				if len(parts) != 4 {
					continue
				}
				snpPos, err := strconv.Atoi(parts[1])
				if err != nil || snpPos != pos || parts[2] != ref || parts[3] != alt {
					continue
				}
				results = append(results, Record{
					Chrom:        chrom,
					Pos:          pos,
					Ref:          ref,
					Alt:          alt,
					Rsids:        cells[4],
					NearestGenes: cells[5],
					Pval:         f.normalizePval(cells[len(cells)-4]),
					Beta:         cells[len(cells)-3],
					Sebeta:       cells[len(cells)-2],
					AF:           cells[len(cells)-1],
				})
			}
		}
		it.Close()
	}
	return results, nil
}

// StratificationResult is one stratification's resolved missing-SNP info,
// or the error encountered fetching it.
type StratificationResult struct {
	Records []Record `json:"records"`
	Err     error    `json:"-"`
}

// ProcessKeys resolves every stratification's missing-SNP list in
// apiData, collecting a per-key error instead of aborting the whole
// request if one stratification's file is missing or unreadable.
func (f *Fetcher) ProcessKeys(apiData map[string][]string) map[string]StratificationResult {
	results := make(map[string]StratificationResult, len(apiData))
	for key, snpList := range apiData {
		records, err := f.FetchSNPInfo(key, snpList)
		results[key] = StratificationResult{Records: records, Err: err}
	}
	return results
}
