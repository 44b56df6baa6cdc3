// Package phewas answers the "what does this variant look like across every
// phenotype" query: given one variant, it walks a stratification's
// wide phenotype-by-variant matrix and returns one association record per
// phenotype, including phenotypes the matrix itself has no column for.
package phewas

import (
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/apperr"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/columns"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/region"
)

// PhenotypeDescriptor is one entry of phenotypes.json: the static metadata
// pheweb carries about a phenotype independent of any single variant.
type PhenotypeDescriptor struct {
	Phenocode   string
	Ancestry    string
	Sex         string
	Category    string
	Phenostring string
	NumSamples  int
	NumControls int
	NumCases    int
}

type descriptorKey struct {
	phenocode, ancestry, sex string
}

// DescriptorIndex maps (phenocode, ancestry, sex) to the first matching
// descriptor seen in phenotypes.json, mirroring the original's
// first-entry-wins indexing.
type DescriptorIndex map[descriptorKey]PhenotypeDescriptor

type phenotypesFile struct {
	Phenocode     string `json:"phenocode"`
	Category      string `json:"category"`
	Phenostring   string `json:"phenostring"`
	NumSamples    int    `json:"num_samples"`
	NumControls   int    `json:"num_controls"`
	NumCases      int    `json:"num_cases"`
	Stratification struct {
		Ancestry string `json:"ancestry"`
		Sex      string `json:"sex"`
	} `json:"stratification"`
}

// LoadDescriptorIndex parses phenotypes.json into a DescriptorIndex.
func LoadDescriptorIndex(path string) (DescriptorIndex, error) {
	const op = apperr.Op("phewas.LoadDescriptorIndex")
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.WrapMsg(op, "opening phenotypes.json", err)
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, apperr.WrapMsg(op, "reading phenotypes.json", err)
	}
	var entries []phenotypesFile
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, apperr.WrapMsg(op, "decoding phenotypes.json", err)
	}
	idx := make(DescriptorIndex, len(entries))
	for _, e := range entries {
		key := descriptorKey{e.Phenocode, e.Stratification.Ancestry, e.Stratification.Sex}
		if _, exists := idx[key]; exists {
			continue
		}
		idx[key] = PhenotypeDescriptor{
			Phenocode:   e.Phenocode,
			Ancestry:    e.Stratification.Ancestry,
			Sex:         e.Stratification.Sex,
			Category:    e.Category,
			Phenostring: e.Phenostring,
			NumSamples:  e.NumSamples,
			NumControls: e.NumControls,
			NumCases:    e.NumCases,
		}
	}
	return idx, nil
}

// UniverseEntry is the phenocode/category/phenostring universe of every
// phenotype pheweb knows about, independent of stratification. A PheWAS
// lookup walks this list to report a placeholder record for any phenotype
// absent from the matrix file being queried.
type UniverseEntry struct {
	Phenocode   string
	Category    string
	Phenostring string
}

// BuildUniverse deduplicates descriptors down to the phenocode/category/
// phenostring triples every variant lookup needs as its starting universe.
func BuildUniverse(descriptors DescriptorIndex) []UniverseEntry {
	seen := make(map[UniverseEntry]bool)
	var out []UniverseEntry
	for _, d := range descriptors {
		e := UniverseEntry{Phenocode: d.Phenocode, Category: d.Category, Phenostring: d.Phenostring}
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// FieldValue is one parsed matrix cell: a stat field that parsed as a
// number, or one that didn't (kept as its raw text) or was never present.
type FieldValue struct {
	Number   float64 `json:"value,omitempty"`
	Raw      string  `json:"raw,omitempty"`
	IsNumber bool    `json:"-"`
	Present  bool    `json:"-"`
}

// Stratification identifies the ancestry/sex slice a Stat's numbers came
// from, parsed out of a phenocode's dot-separated suffix.
type Stratification struct {
	Ancestry string `json:"ancestry,omitempty"`
	Sex      string `json:"sex,omitempty"`
}

// Stat is one phenotype's association record for the looked-up variant:
// either real numbers read from the matrix, or a placeholder when the
// matrix carries no column at all for this phenotype.
type Stat struct {
	Phenocode      string                  `json:"phenocode"`
	Stratification Stratification          `json:"stratification"`
	Category       string                  `json:"category,omitempty"`
	Phenostring    string                  `json:"phenostring,omitempty"`
	NumSamples     int                     `json:"num_samples,omitempty"`
	HasNumSamples  bool                    `json:"-"`
	NumControls    int                     `json:"num_controls,omitempty"`
	HasNumControls bool                    `json:"-"`
	NumCases       int                   `json:"num_cases,omitempty"`
	HasNumCases    bool                  `json:"-"`
	Fields         map[string]FieldValue `json:"fields"`
}

// VariantPhewas is the full cross-phenotype result for one variant.
type VariantPhewas struct {
	Chrom        string `json:"chrom"`
	Pos          int    `json:"pos"`
	Ref          string `json:"ref"`
	Alt          string `json:"alt"`
	Rsids        string `json:"rsids,omitempty"`
	NearestGenes string `json:"nearest_genes,omitempty"`
	Stats        []Stat `json:"stats"`
}

// ParseVariantCode decodes a "chrom-pos-ref-alt" identifier.
func ParseVariantCode(code string) (chrom string, pos int, ref, alt string, err error) {
	const op = apperr.Op("phewas.ParseVariantCode")
	parts := strings.Split(code, "-")
	if len(parts) != 4 {
		return "", 0, "", "", apperr.E(op, apperr.KindBadRequest, "variant code must be chrom-pos-ref-alt: "+code)
	}
	pos, perr := strconv.Atoi(parts[1])
	if perr != nil {
		return "", 0, "", "", apperr.E(op, apperr.KindBadRequest, "variant code has non-integer position: "+code)
	}
	return parts[0], pos, parts[2], parts[3], nil
}

func matrixFieldSpecs() []columns.FieldSpec {
	return []columns.FieldSpec{
		{Name: "chrom", Kind: columns.KindString, Required: true},
		{Name: "pos", Kind: columns.KindInt, Required: true},
		{Name: "ref", Kind: columns.KindString, Required: true},
		{Name: "alt", Kind: columns.KindString, Required: true},
		{Name: "rsids", Kind: columns.KindString, Required: false},
		{Name: "nearest_genes", Kind: columns.KindString, Required: false},
	}
}

// Reader answers PheWAS lookups against one stratification's matrix file.
// phenotypeFields maps a matrix column's "@"-qualified phenocode to the
// stat-field -> raw-column-index map for that phenocode's columns.
type Reader struct {
	region          *region.Reader
	colIndex        map[string]int
	phenotypeFields map[string][]fieldCol
}

type fieldCol struct {
	field string
	idx   int
}

// Open loads a matrix file and its sidecar index, and parses the header's
// "@"-qualified columns into a per-phenocode field map once up front so
// FindVariant does no header work per request.
func Open(matrixPath, indexPath string) (*Reader, error) {
	const op = apperr.Op("phewas.Open")
	r, err := region.Open(matrixPath, indexPath, matrixFieldSpecs(), nil)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	header := r.RawHeader()
	colIndex := make(map[string]int, len(header))
	phenotypeFields := make(map[string][]fieldCol)
	for i, name := range header {
		name = strings.TrimPrefix(strings.TrimSpace(name), "#")
		colIndex[name] = i
		if field, phenocode, ok := strings.Cut(name, "@"); ok {
			phenotypeFields[phenocode] = append(phenotypeFields[phenocode], fieldCol{field: field, idx: i})
		}
	}
	return &Reader{region: r, colIndex: colIndex, phenotypeFields: phenotypeFields}, nil
}

// FindVariant returns the cross-phenotype association record for
// (chromName,pos,ref,alt), or nil if the matrix has no row at that exact
// position and allele pair. universe is copied before use, so callers can
// pass a shared phenotype list without it being mutated across requests.
func (r *Reader) FindVariant(chromName string, pos int, ref, alt string, descriptors DescriptorIndex, universe []UniverseEntry) (*VariantPhewas, error) {
	const op = apperr.Op("phewas.FindVariant")
	remaining := make([]UniverseEntry, len(universe))
	copy(remaining, universe)

	it, err := r.region.GetRegion(chromName, pos, pos+1)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	defer it.Close()

	result := &VariantPhewas{Chrom: chromName, Pos: pos, Ref: ref, Alt: alt}
	found := false
	for {
		cells, err := it.NextRaw()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(op, err)
		}
		result.Rsids = cellAt(cells, r.colIndex, "rsids")
		if cellAt(cells, r.colIndex, "ref") != ref || cellAt(cells, r.colIndex, "alt") != alt {
			continue
		}
		found = true
		result.NearestGenes = cellAt(cells, r.colIndex, "nearest_genes")
		for phenocode, fields := range r.phenotypeFields {
			stat, matchedEntry := r.buildStat(phenocode, fields, cells, descriptors)
			result.Stats = append(result.Stats, stat)
			if matchedEntry != nil {
				remaining = removeEntry(remaining, *matchedEntry)
			}
		}
		break
	}
	if !found {
		return nil, nil
	}

	var firstStrat Stratification
	if len(result.Stats) > 0 {
		firstStrat = result.Stats[0].Stratification
	}
	for _, unseen := range remaining {
		result.Stats = append(result.Stats, Stat{
			Phenocode:      unseen.Phenocode,
			Stratification: firstStrat,
			Category:       unseen.Category,
			Phenostring:    unseen.Phenostring,
			NumSamples:     0,
			HasNumSamples:  true,
			Fields: map[string]FieldValue{
				"test":   {Raw: "", IsNumber: false, Present: true},
				"pval":   {Number: -1, IsNumber: true, Present: true},
				"beta":   {Raw: "", IsNumber: false, Present: true},
				"sebeta": {Raw: "", IsNumber: false, Present: true},
				"af":     {Present: false},
			},
		})
	}
	return result, nil
}

func (r *Reader) buildStat(phenocode string, fields []fieldCol, cells []string, descriptors DescriptorIndex) (Stat, *UniverseEntry) {
	parts := strings.Split(phenocode, ".")
	strat := Stratification{}
	if len(parts) > 1 {
		strat.Ancestry = parts[1]
	}
	if len(parts) > 2 {
		strat.Sex = parts[2]
	}
	stat := Stat{
		Phenocode:      parts[0],
		Stratification: strat,
		Fields:         make(map[string]FieldValue, len(fields)),
	}

	if descriptors != nil {
		if d, ok := descriptors[descriptorKey{parts[0], strat.Ancestry, strat.Sex}]; ok {
			stat.Category, stat.Phenostring = d.Category, d.Phenostring
			stat.NumSamples, stat.HasNumSamples = d.NumSamples, true
			stat.NumControls, stat.HasNumControls = d.NumControls, true
			stat.NumCases, stat.HasNumCases = d.NumCases, true
		}
	}

	for _, fc := range fields {
		if fc.idx >= len(cells) {
			continue
		}
		raw := cells[fc.idx]
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			if fc.field == "pval" {
				stat.Fields[fc.field] = FieldValue{Number: -1, IsNumber: true, Present: true}
			} else {
				stat.Fields[fc.field] = FieldValue{Raw: raw, IsNumber: false, Present: true}
			}
			continue
		}
		stat.Fields[fc.field] = FieldValue{Number: f, IsNumber: true, Present: true}
	}

	matched := &UniverseEntry{Phenocode: stat.Phenocode, Category: stat.Category, Phenostring: stat.Phenostring}
	return stat, matched
}

func removeEntry(entries []UniverseEntry, target UniverseEntry) []UniverseEntry {
	for i, e := range entries {
		if e.Phenocode == target.Phenocode {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}

func cellAt(cells []string, colIndex map[string]int, field string) string {
	idx, ok := colIndex[field]
	if !ok || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}
