// Package query glues the leaf readers and lookup stores together into the
// typed operations the HTTP boundary calls: phenotype listings, Manhattan/QQ
// payloads, region slices, filtered downloads, PheWAS lookups, gene/variant
// lookups, unified autocomplete, and missing-SNP re-resolution.
package query

import (
	"encoding/json"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/apperr"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/autocomplete"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/chrom"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/columns"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/gwasmissing"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/manhattan"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/paths"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/phewas"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/region"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/stores"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/sumstats"
	"github.com/klauspost/pgzip"
)

// Facade is the single entry point the HTTP boundary talks to. Its fields
// are the already-loaded, process-lifetime stores and indexes; per-request
// readers (region, phewas, sumstats) are opened on demand and released at
// the end of the call that opened them.
type Facade struct {
	Paths             paths.Paths
	Phenos            *stores.PhenoStore
	Tophits           *stores.TophitsStore
	Genes             *stores.GeneStore
	Variants          *stores.VariantStore
	AutocompleteIndex *autocomplete.Index
	MissingFetcher    *gwasmissing.Fetcher
	Descriptors       phewas.DescriptorIndex
	Universe          []phewas.UniverseEntry
	ManhattanParams   manhattan.Params
	FieldAliases      map[string]string
	PvalIsNegLog10    bool
}

// normalizePval converts a raw pval cell into an actual probability. When
// PvalIsNegLog10 is set, the association files store -log10(p) rather than
// p itself, so every comparison and every value handed back to a caller
// must invert it first.
func (f *Facade) normalizePval(raw float64) float64 {
	if !f.PvalIsNegLog10 {
		return raw
	}
	return math.Pow(10, -raw)
}

// ListPhenotypes returns every regular phenotype, or only phenocode's entry
// when phenocode is non-empty.
func (f *Facade) ListPhenotypes(phenocode string) []stores.Phenotype {
	return f.Phenos.Phenotypes(phenocode)
}

// TopHits returns the precomputed top-1000-hits payload verbatim.
func (f *Facade) TopHits() json.RawMessage {
	return f.Tophits.TopHits()
}

// InteractionList returns every interaction phenotype, or only phenocode's
// entry when phenocode is non-empty.
func (f *Facade) InteractionList(phenocode string) []stores.Phenotype {
	return f.Phenos.InteractionPhenotypes(phenocode)
}

// GetPhenoManhattan returns the precomputed Manhattan payload for a
// phenotype/stratification verbatim, the way a pass-through plot file is
// served: this process never recomputes it on a plain page view.
func (f *Facade) GetPhenoManhattan(phenocode, strat string) (json.RawMessage, error) {
	const op = apperr.Op("query.GetPhenoManhattan")
	return readJSONFile(op, f.Paths.ManhattanJSON(phenocode, strat))
}

// GetQQ returns the precomputed QQ payload for a phenotype/stratification
// verbatim.
func (f *Facade) GetQQ(phenocode, strat string) (json.RawMessage, error) {
	const op = apperr.Op("query.GetQQ")
	return readJSONFile(op, f.Paths.QQJSON(phenocode, strat))
}

func readJSONFile(op apperr.Op, path string) (json.RawMessage, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, apperr.E(op, apperr.KindNotFound, "no payload at "+path)
	}
	if err != nil {
		return nil, apperr.WrapMsg(op, "reading "+path, err)
	}
	var probe json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, apperr.WrapMsg(op, "decoding "+path, err)
	}
	return probe, nil
}

// RegionRecord is one variant in the plotting contract's field names.
type RegionRecord struct {
	Chr           string  `json:"chr"`
	Position      int     `json:"position"`
	Ref           string  `json:"ref"`
	Alt           string  `json:"alt"`
	Rsid          string  `json:"rsid,omitempty"`
	NearestGenes  string  `json:"nearest_genes,omitempty"`
	Pvalue        float64 `json:"pvalue"`
	Beta          float64 `json:"beta,omitempty"`
	HasBeta       bool    `json:"-"`
	Sebeta        float64 `json:"sebeta,omitempty"`
	HasSebeta     bool    `json:"-"`
	AF            float64 `json:"af,omitempty"`
	HasAF         bool    `json:"-"`
	NSamples      int     `json:"n_samples,omitempty"`
	HasNSamples   bool    `json:"-"`
	Test          string  `json:"test,omitempty"`
	ImpQuality    float64 `json:"imp_quality,omitempty"`
	HasImpQuality bool    `json:"-"`
}

// RegionResult is the full response for one LocusZoom-style region slice.
type RegionResult struct {
	Variants  []RegionRecord `json:"variants"`
	MaxLog10P float64        `json:"max_log10p"`
}

var regionStringPattern = regexp.MustCompile(`^([^:]+):(\d+)-(\d+)$`)

// ParseRegionString strictly parses "chrom:start-end".
func ParseRegionString(s string) (chromName string, start, end int, err error) {
	const op = apperr.Op("query.ParseRegionString")
	m := regionStringPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", 0, 0, apperr.E(op, apperr.KindBadRequest, "region must be chrom:start-end: "+s)
	}
	start, errStart := strconv.Atoi(m[2])
	end, errEnd := strconv.Atoi(m[3])
	if errStart != nil || errEnd != nil {
		return "", 0, 0, apperr.E(op, apperr.KindBadRequest, "region has non-integer bounds: "+s)
	}
	return m[1], start, end, nil
}

var regionFieldSpecs = []columns.FieldSpec{
	{Name: "chrom", Kind: columns.KindString, Required: true},
	{Name: "pos", Kind: columns.KindInt, Required: true},
	{Name: "ref", Kind: columns.KindString, Required: true},
	{Name: "alt", Kind: columns.KindString, Required: true},
	{Name: "pval", Kind: columns.KindFloat, Required: true},
	{Name: "rsids", Kind: columns.KindString, Required: false},
	{Name: "nearest_genes", Kind: columns.KindString, Required: false},
	{Name: "beta", Kind: columns.KindFloat, Required: false},
	{Name: "sebeta", Kind: columns.KindFloat, Required: false},
	{Name: "af", Kind: columns.KindFloat, Required: false},
	{Name: "n_samples", Kind: columns.KindInt, Required: false},
	{Name: "test", Kind: columns.KindString, Required: false},
	{Name: "imp_quality", Kind: columns.KindFloat, Required: false},
}

// GetRegion parses regionStr strictly, reads the matching slice of
// phenocode's association file, and renames fields to the plotting
// contract. max_log10p is always included, computed from the strongest
// (smallest) pvalue among the returned variants.
func (f *Facade) GetRegion(phenocode, strat, regionStr string) (RegionResult, error) {
	const op = apperr.Op("query.GetRegion")
	chromName, start, end, err := ParseRegionString(regionStr)
	if err != nil {
		return RegionResult{}, err
	}

	dataPath, indexPath := f.Paths.PhenoGz(phenocode, strat)
	r, err := region.Open(dataPath, indexPath, regionFieldSpecs, f.FieldAliases)
	if err != nil {
		if os.IsNotExist(unwrapPathErr(err)) {
			return RegionResult{}, apperr.E(op, apperr.KindNotFound, "no association file for "+phenocode)
		}
		return RegionResult{}, apperr.Wrap(op, err)
	}

	it, err := r.GetRegion(chromName, start, end)
	if err != nil {
		return RegionResult{}, apperr.Wrap(op, err)
	}
	defer it.Close()

	var out RegionResult
	minPval := math.Inf(1)
	for {
		row, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return RegionResult{}, apperr.Wrap(op, err)
		}
		rec := RegionRecord{
			Chr:          row.Str("chrom"),
			Ref:          row.Str("ref"),
			Alt:          row.Str("alt"),
			Rsid:         row.Str("rsids"),
			NearestGenes: row.Str("nearest_genes"),
			Test:         row.Str("test"),
		}
		if pos, ok := row.Float("pos"); ok {
			rec.Position = int(pos)
		}
		if pval, ok := row.Float("pval"); ok {
			pval = f.normalizePval(pval)
			rec.Pvalue = pval
			if pval < minPval {
				minPval = pval
			}
		}
		if beta, ok := row.Float("beta"); ok {
			rec.Beta, rec.HasBeta = beta, true
		}
		if sebeta, ok := row.Float("sebeta"); ok {
			rec.Sebeta, rec.HasSebeta = sebeta, true
		}
		if af, ok := row.Float("af"); ok {
			rec.AF, rec.HasAF = af, true
		}
		if n, ok := row.Float("n_samples"); ok {
			rec.NSamples, rec.HasNSamples = int(n), true
		}
		if q, ok := row.Float("imp_quality"); ok {
			rec.ImpQuality, rec.HasImpQuality = q, true
		}
		out.Variants = append(out.Variants, rec)
	}

	if math.IsInf(minPval, 1) {
		out.MaxLog10P = 0
	} else if minPval <= 0 {
		out.MaxLog10P = math.Inf(1)
	} else {
		out.MaxLog10P = -math.Log10(minPval)
	}
	return out, nil
}

// GetSumstats streams phenocode's full association file through the MAF/
// indel filter described by opts, writing the result to w. flush, when
// non-nil, is invoked periodically so an HTTP handler can flush a chunked
// response as it is produced.
func (f *Facade) GetSumstats(w io.Writer, phenocode, strat string, opts sumstats.FilterOptions, flush func()) error {
	const op = apperr.Op("query.GetSumstats")
	dataPath, _ := f.Paths.PhenoGz(phenocode, strat)
	file, err := os.Open(dataPath)
	if os.IsNotExist(err) {
		return apperr.E(op, apperr.KindNotFound, "no association file for "+phenocode)
	}
	if err != nil {
		return apperr.WrapMsg(op, "opening association file", err)
	}
	defer file.Close()

	gz, err := pgzip.NewReader(file)
	if err != nil {
		return apperr.WrapMsg(op, "opening gzip stream", err)
	}
	defer gz.Close()

	return sumstats.WriteSumstats(w, gz, opts, f.PvalIsNegLog10, 0, flush)
}

// SumstatsFilename returns the Content-Disposition filename for a sumstats
// download under opts.
func (f *Facade) SumstatsFilename(phenocode string, opts sumstats.FilterOptions) string {
	return sumstats.AttachmentFilename(phenocode, opts)
}

var bestOfFieldSpecs = []columns.FieldSpec{
	{Name: "chrom", Kind: columns.KindString, Required: true},
	{Name: "pos", Kind: columns.KindInt, Required: true},
	{Name: "ref", Kind: columns.KindString, Required: true},
	{Name: "alt", Kind: columns.KindString, Required: true},
	{Name: "pval", Kind: columns.KindFloat, Required: true},
	{Name: "rsids", Kind: columns.KindString, Required: false},
	{Name: "nearest_genes", Kind: columns.KindString, Required: false},
	{Name: "beta", Kind: columns.KindFloat, Required: false},
	{Name: "sebeta", Kind: columns.KindFloat, Required: false},
	{Name: "af", Kind: columns.KindFloat, Required: false},
}

// FilterVariantExtra is the payload manhattan.Variant.Extra carries for a
// filtered-variants plot, so the HTTP boundary can render the same fields a
// region slice does.
type FilterVariantExtra struct {
	Ref          string  `json:"ref"`
	Alt          string  `json:"alt"`
	Rsids        string  `json:"rsids,omitempty"`
	NearestGenes string  `json:"nearest_genes,omitempty"`
	Beta         float64 `json:"beta,omitempty"`
	HasBeta      bool    `json:"-"`
	Sebeta       float64 `json:"sebeta,omitempty"`
	HasSebeta    bool    `json:"-"`
	AF           float64 `json:"af,omitempty"`
	HasAF        bool    `json:"-"`
}

// FilterVariants reads phenocode's precomputed best-of file, applies the
// MAF/indel predicate, and funnels the surviving variants through the
// Manhattan binner. Per the source's own behavior, weakest_pval reflects
// every row of the best-of file, not only the ones that passed the filter.
func (f *Facade) FilterVariants(phenocode, strat string, opts sumstats.FilterOptions) (manhattan.Result, error) {
	const op = apperr.Op("query.FilterVariants")
	dataPath, _ := f.Paths.BestOfGz(phenocode, strat)
	file, err := os.Open(dataPath)
	if os.IsNotExist(err) {
		return manhattan.Result{}, apperr.E(op, apperr.KindNotFound, "no best-of file for "+phenocode)
	}
	if err != nil {
		return manhattan.Result{}, apperr.WrapMsg(op, "opening best-of file", err)
	}
	defer file.Close()

	gz, err := pgzip.NewReader(file)
	if err != nil {
		return manhattan.Result{}, apperr.WrapMsg(op, "opening gzip stream", err)
	}
	defer gz.Close()

	cr, err := columns.NewReader(gz, dataPath, bestOfFieldSpecs, f.FieldAliases)
	if err != nil {
		return manhattan.Result{}, apperr.Wrap(op, err)
	}

	params := f.ManhattanParams
	if params.PeakPvalThr == 0 {
		params = manhattan.DefaultParams()
	}
	binner := manhattan.New(params)

	var weakestPval float64
	for {
		row, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return manhattan.Result{}, apperr.Wrap(op, err)
		}
		pval, _ := row.Float("pval")
		pval = f.normalizePval(pval)
		if pval > weakestPval {
			weakestPval = pval
		}

		af, hasAF := row.Float("af")
		maf := af
		if hasAF && af > 0.5 {
			maf = 1 - af
		}
		if !passesFilter(opts, hasAF, maf, row.Str("ref"), row.Str("alt")) {
			continue
		}

		canon, err := chrom.Canonicalize(row.Str("chrom"))
		if err != nil {
			continue
		}
		pos, _ := row.Float("pos")
		beta, hasBeta := row.Float("beta")
		sebeta, hasSebeta := row.Float("sebeta")
		extra := FilterVariantExtra{
			Ref:          row.Str("ref"),
			Alt:          row.Str("alt"),
			Rsids:        row.Str("rsids"),
			NearestGenes: row.Str("nearest_genes"),
			Beta:         beta, HasBeta: hasBeta,
			Sebeta: sebeta, HasSebeta: hasSebeta,
			AF: af, HasAF: hasAF,
		}
		if err := binner.Process(manhattan.Variant{Chrom: canon, Pos: int(pos), Pval: pval, Extra: extra}); err != nil {
			return manhattan.Result{}, apperr.Wrap(op, err)
		}
	}

	result := binner.Finalize()
	result.WeakestPval = weakestPval
	return result, nil
}

func passesFilter(opts sumstats.FilterOptions, hasAF bool, maf float64, ref, alt string) bool {
	if opts.Unfiltered() {
		return true
	}
	if !hasAF || !(maf > opts.MinMAF && maf < opts.MaxMAF) {
		return false
	}
	if opts.Indel == "both" {
		return true
	}
	isIndel := len(ref) != 1 || len(alt) != 1
	if opts.Indel == "true" {
		return isIndel
	}
	return !isIndel
}

// GetVariantPhewas returns the cross-phenotype association record for
// variantCode ("chrom-pos-ref-alt") in the given stratification, or nil if
// the matrix has no row at that coordinate.
func (f *Facade) GetVariantPhewas(variantCode, strat string) (*phewas.VariantPhewas, error) {
	const op = apperr.Op("query.GetVariantPhewas")
	chromName, pos, ref, alt, err := phewas.ParseVariantCode(variantCode)
	if err != nil {
		return nil, err
	}
	dataPath, indexPath := f.Paths.MatrixStratified(strat)
	r, err := phewas.Open(dataPath, indexPath)
	if err != nil {
		if os.IsNotExist(unwrapPathErr(err)) {
			return nil, apperr.E(op, apperr.KindNotFound, "no matrix for stratification "+strat)
		}
		return nil, apperr.Wrap(op, err)
	}
	result, err := r.FindVariant(chromName, pos, ref, alt, f.Descriptors, f.Universe)
	if err != nil || result == nil {
		return result, err
	}
	if f.PvalIsNegLog10 {
		for i := range result.Stats {
			// -1 is the sentinel for "no pval" (unseen phenotype, or an
			// unparseable raw value); never invert it into a fake pvalue.
			if fv, ok := result.Stats[i].Fields["pval"]; ok && fv.IsNumber && fv.Number != -1 {
				fv.Number = math.Pow(10, -fv.Number)
				result.Stats[i].Fields["pval"] = fv
			}
		}
	}
	return result, nil
}

// GetVariantRsid returns variantID's rsid, or ("", false, nil) if unknown.
func (f *Facade) GetVariantRsid(variantID string) (string, bool, error) {
	return f.Variants.GetRsid(variantID)
}

// GetVariantNearestGenes returns variantID's nearest-genes annotation.
func (f *Facade) GetVariantNearestGenes(variantID string) ([]string, error) {
	return f.Variants.GetNearestGenes(variantID)
}

// GetGeneAssociations returns gene's precomputed best-phenotypes blob.
func (f *Facade) GetGeneAssociations(gene string) (*stores.GeneAssociations, error) {
	return f.Genes.GetGenesTable(gene)
}

// GetGenePosition returns gene's genomic region.
func (f *Facade) GetGenePosition(gene string) (stores.GeneRegion, bool) {
	return f.Genes.GetGenePosition(gene)
}

// AutocompleteResult is the unified search-box response: whichever of
// variants, genes, or phenotypes the query aggregation selected.
type AutocompleteResult struct {
	Variants   []autocomplete.VariantMatch   `json:"variants,omitempty"`
	Genes      []autocomplete.GeneMatch      `json:"genes,omitempty"`
	Phenotypes []autocomplete.PhenotypeMatch `json:"phenotypes,omitempty"`
}

// Autocomplete runs the unified search-box aggregation: a partial variant
// id (query containing '-' or ':') is resolved against chrom/pos-scoped
// variant search; an "rs..." query is resolved against variant search
// unscoped; an empty query returns no suggestions; anything else unions
// phenotype and gene matches.
func (f *Facade) Autocomplete(q string) (AutocompleteResult, error) {
	const op = apperr.Op("query.Autocomplete")
	q = strings.TrimLeft(q, " \t\n\r")

	if strings.ContainsAny(q, "-:") {
		if prefix, chromName, pos, ok := parseVariantPartial(q); ok {
			matches, err := f.AutocompleteIndex.QueryVariants(prefix, chromName, pos, 4)
			if err != nil {
				return AutocompleteResult{}, apperr.Wrap(op, err)
			}
			return AutocompleteResult{Variants: matches}, nil
		}
	}
	if strings.HasPrefix(strings.ToLower(q), "rs") {
		matches, err := f.AutocompleteIndex.QueryVariants(q, "", 0, 0)
		if err != nil {
			return AutocompleteResult{}, apperr.Wrap(op, err)
		}
		return AutocompleteResult{Variants: matches}, nil
	}
	if q == "" {
		return AutocompleteResult{}, nil
	}

	phenos, err := f.AutocompleteIndex.QueryPhenotypes(q, 0)
	if err != nil {
		return AutocompleteResult{}, apperr.Wrap(op, err)
	}
	genes, err := f.AutocompleteIndex.QueryGenes(q, 0)
	if err != nil {
		return AutocompleteResult{}, apperr.Wrap(op, err)
	}
	return AutocompleteResult{Phenotypes: phenos, Genes: genes}, nil
}

// parseVariantPartial accepts "chrom[:-]pos", "chrom[:-]pos[:-]ref", or
// "chrom[:-]pos[:-]ref[:-]alt", normalizing to a dash-joined canonical id
// with any "chr" prefix stripped.
func parseVariantPartial(q string) (prefix, chromName string, pos int, ok bool) {
	parts := strings.FieldsFunc(q, func(r rune) bool { return r == '-' || r == ':' })
	if len(parts) < 2 || len(parts) > 4 {
		return "", "", 0, false
	}
	p, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", "", 0, false
	}
	canon, err := chrom.Canonicalize(parts[0])
	if err != nil {
		return "", "", 0, false
	}
	idParts := []string{canon, parts[1]}
	for _, allele := range parts[2:] {
		idParts = append(idParts, strings.ToUpper(allele))
	}
	return strings.Join(idParts, "-"), canon, p, true
}

// GwasMissing resolves, for every stratification key in requested, the
// variants the caller expected to see plotted but didn't.
func (f *Facade) GwasMissing(requested map[string][]string) map[string]gwasmissing.StratificationResult {
	return f.MissingFetcher.ProcessKeys(requested)
}

// unwrapPathErr digs a *os.PathError out of a wrapped apperr.Error chain,
// or returns the error unchanged, so os.IsNotExist can classify it.
func unwrapPathErr(err error) error {
	for err != nil {
		if _, ok := err.(*os.PathError); ok {
			return err
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		err = u.Unwrap()
	}
	return nil
}
