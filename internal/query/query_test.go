package query

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/apperr"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/autocomplete"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/columns"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/gwasmissing"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/manhattan"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/paths"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/phewas"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/region"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/stores"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/sumstats"
	_ "github.com/mattn/go-sqlite3"
)

func writePhenotypesJSON(t *testing.T, dir string) string {
	t.Helper()
	entries := []map[string]interface{}{
		{
			"phenocode": "C50", "category": "neoplasms", "phenostring": "Breast cancer",
			"num_samples": 1000, "num_controls": 950, "num_cases": 50,
			"stratification": map[string]string{"ancestry": "eur", "sex": "female"},
		},
		{
			"phenocode": "E11", "category": "endocrine", "phenostring": "Type 2 diabetes",
			"num_samples": 2000, "num_controls": 1800, "num_cases": 200,
		},
		{
			"phenocode": "C50xSMOKE", "interaction": "smoking", "phenostring": "Breast cancer x smoking",
		},
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal phenotypes.json: %v", err)
	}
	path := filepath.Join(dir, "phenotypes.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write phenotypes.json: %v", err)
	}
	return path
}

func writeTopHitsJSON(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "top_hits_1k.json")
	content := `[{"phenocode":"C50","pval":1e-20}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write top_hits_1k.json: %v", err)
	}
	return path
}

func buildFacade(t *testing.T) (*Facade, paths.Paths) {
	t.Helper()
	dir := t.TempDir()
	p := paths.Paths{DataDir: dir}

	phenoStore, err := stores.LoadPhenoStore(writePhenotypesJSON(t, dir))
	if err != nil {
		t.Fatalf("LoadPhenoStore: %v", err)
	}
	tophitsStore, err := stores.LoadTophitsStore(writeTopHitsJSON(t, dir))
	if err != nil {
		t.Fatalf("LoadTophitsStore: %v", err)
	}

	genesSQLite := filepath.Join(dir, "best-phenos-by-gene.sqlite3")
	db, err := sql.Open("sqlite3", genesSQLite)
	if err != nil {
		t.Fatalf("open gene sqlite: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE best_phenos_for_each_gene (gene TEXT, json TEXT)`); err != nil {
		t.Fatalf("create gene table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO best_phenos_for_each_gene (gene, json) VALUES (?, ?)`,
		"BRCA1", `[{"phenocode":"C50","pval":1e-10}]`); err != nil {
		t.Fatalf("insert gene row: %v", err)
	}
	db.Close()
	geneStore, err := stores.OpenGeneStore(genesSQLite, stores.GeneRegionMapping{
		"BRCA1": {Chrom: "17", Start: 41196312, End: 41277500},
	})
	if err != nil {
		t.Fatalf("OpenGeneStore: %v", err)
	}

	sitesPath := filepath.Join(dir, "variants.db")
	sitesDB, err := sql.Open("sqlite3", sitesPath)
	if err != nil {
		t.Fatalf("open sites db: %v", err)
	}
	if _, err := sitesDB.Exec(`CREATE TABLE variants (variant_id TEXT, nearest_genes TEXT)`); err != nil {
		t.Fatalf("create sites table: %v", err)
	}
	if _, err := sitesDB.Exec(`INSERT INTO variants (variant_id, nearest_genes) VALUES (?, ?)`,
		"1-196698298-A-T", "BRCA1,BRCA2"); err != nil {
		t.Fatalf("insert sites row: %v", err)
	}
	sitesDB.Close()

	autoDBPath := filepath.Join(dir, "autocomplete_src.db")
	autoDB, err := sql.Open("sqlite3", autoDBPath)
	if err != nil {
		t.Fatalf("open autocomplete source db: %v", err)
	}
	if _, err := autoDB.Exec(`CREATE TABLE variants (variant_id TEXT, rsid TEXT)`); err != nil {
		t.Fatalf("create autocomplete variants table: %v", err)
	}
	if _, err := autoDB.Exec(`INSERT INTO variants (variant_id, rsid) VALUES (?, ?)`,
		"1-196698298-A-T", "rs12345"); err != nil {
		t.Fatalf("insert autocomplete variant: %v", err)
	}
	autoDB.Close()

	variantStore, err := stores.OpenVariantStore(sitesPath, autoDBPath)
	if err != nil {
		t.Fatalf("OpenVariantStore: %v", err)
	}

	sitesTSVPath := filepath.Join(dir, "sites.tsv.gz")
	sitesFile, err := os.Create(sitesTSVPath)
	if err != nil {
		t.Fatalf("create sites.tsv.gz: %v", err)
	}
	gz := gzip.NewWriter(sitesFile)
	if _, err := gz.Write([]byte("chrom\tpos\tref\talt\trsids\n1\t196698298\tA\tT\trs12345\n")); err != nil {
		t.Fatalf("write sites content: %v", err)
	}
	gz.Close()
	sitesFile.Close()

	autocompleteDBPath := filepath.Join(dir, "autocomplete.db")
	buildOpts := autocomplete.BuildOptions{
		DBPath:       autocompleteDBPath,
		SitesTSVGzip: sitesTSVPath,
		GeneRegions: stores.GeneRegionMapping{
			"BRCA1": {Chrom: "17", Start: 41196312, End: 41277500},
		},
		PhenoNames: phenoStore.AllPhenoNames(),
	}
	if err := autocomplete.Build(buildOpts); err != nil {
		t.Fatalf("autocomplete.Build: %v", err)
	}
	idx, err := autocomplete.Open(autocompleteDBPath)
	if err != nil {
		t.Fatalf("autocomplete.Open: %v", err)
	}

	descriptors, err := phewas.LoadDescriptorIndex(writePhenotypesJSON(t, dir))
	if err != nil {
		t.Fatalf("LoadDescriptorIndex: %v", err)
	}
	universe := phewas.BuildUniverse(descriptors)

	fetcher := gwasmissing.NewFetcher(filepath.Join(dir, "pheno_gz"), 200, false)

	f := &Facade{
		Paths:             p,
		Phenos:            phenoStore,
		Tophits:           tophitsStore,
		Genes:             geneStore,
		Variants:          variantStore,
		AutocompleteIndex: idx,
		MissingFetcher:    fetcher,
		Descriptors:       descriptors,
		Universe:          universe,
		ManhattanParams:   manhattan.DefaultParams(),
	}
	return f, p
}

func TestListPhenotypesAndTopHitsAndInteractionList(t *testing.T) {
	f, _ := buildFacade(t)

	all := f.ListPhenotypes("")
	if len(all) != 2 {
		t.Fatalf("expected 2 regular phenotypes, got %d: %+v", len(all), all)
	}
	one := f.ListPhenotypes("C50")
	if len(one) != 1 || one[0].Phenocode != "C50" {
		t.Fatalf("unexpected filtered phenotypes: %+v", one)
	}

	th := f.TopHits()
	if !strings.Contains(string(th), "C50") {
		t.Fatalf("unexpected top hits payload: %s", th)
	}

	inter := f.InteractionList("")
	if len(inter) != 1 || inter[0].Phenocode != "C50xSMOKE" {
		t.Fatalf("unexpected interaction list: %+v", inter)
	}
}

func TestGetPhenoManhattanAndQQ(t *testing.T) {
	f, p := buildFacade(t)

	manhattanPath := p.ManhattanJSON("C50", "")
	if err := os.MkdirAll(filepath.Dir(manhattanPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(manhattanPath, []byte(`{"variant_bins":[]}`), 0o644); err != nil {
		t.Fatalf("write manhattan payload: %v", err)
	}

	raw, err := f.GetPhenoManhattan("C50", "")
	if err != nil {
		t.Fatalf("GetPhenoManhattan: %v", err)
	}
	if !strings.Contains(string(raw), "variant_bins") {
		t.Fatalf("unexpected manhattan payload: %s", raw)
	}

	if _, err := f.GetQQ("C50", ""); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected KindNotFound for missing qq payload, got %v", err)
	}
}

func TestParseRegionString(t *testing.T) {
	chromName, start, end, err := ParseRegionString("1:1000-2000")
	if err != nil {
		t.Fatalf("ParseRegionString: %v", err)
	}
	if chromName != "1" || start != 1000 || end != 2000 {
		t.Fatalf("unexpected parse: %s %d %d", chromName, start, end)
	}

	for _, bad := range []string{"1-1000-2000", "1:abc-2000", "1:1000-abc", ""} {
		if _, _, _, err := ParseRegionString(bad); !apperr.IsKind(err, apperr.KindBadRequest) {
			t.Fatalf("expected bad request for %q, got %v", bad, err)
		}
	}
}

func writeRegionFile(t *testing.T, dataPath, indexPath string, rows []string) {
	t.Helper()
	header := "#chrom\tpos\tref\talt\trsids\tnearest_genes\tpval\tbeta\tsebeta\taf\tn_samples\ttest\timp_quality"
	data := header + "\n" + strings.Join(rows, "\n") + "\n"
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := region.WriteIndexed(strings.NewReader(data), dataPath, indexPath, regionFieldSpecs, nil, 10); err != nil {
		t.Fatalf("WriteIndexed: %v", err)
	}
}

func TestGetRegionRenamesFieldsAndComputesMaxLog10P(t *testing.T) {
	f, p := buildFacade(t)
	dataPath, indexPath := p.PhenoGz("C50", "")
	writeRegionFile(t, dataPath, indexPath, []string{
		"1\t1000\tA\tT\trs1\tBRCA1\t0.01\t0.2\t0.05\t0.1\t1000\tADD\t0.9",
		"1\t1500\tG\tC\trs2\tBRCA1\t0.0001\t-0.1\t0.03\t0.2\t1000\tADD\t0.95",
	})

	result, err := f.GetRegion("C50", "", "1:1-2000")
	if err != nil {
		t.Fatalf("GetRegion: %v", err)
	}
	if len(result.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %d: %+v", len(result.Variants), result.Variants)
	}
	first := result.Variants[0]
	if first.Chr != "1" || first.Position != 1000 || first.Rsid != "rs1" || first.NearestGenes != "BRCA1" {
		t.Fatalf("unexpected renamed record: %+v", first)
	}
	if !first.HasBeta || first.Beta != 0.2 {
		t.Fatalf("expected beta to be parsed, got %+v", first)
	}
	want := -math.Log10(0.0001)
	if math.Abs(result.MaxLog10P-want) > 1e-9 {
		t.Fatalf("expected max_log10p %v, got %v", want, result.MaxLog10P)
	}
}

func TestGetRegionEmptySliceHasZeroMaxLog10P(t *testing.T) {
	f, p := buildFacade(t)
	dataPath, indexPath := p.PhenoGz("C50", "")
	writeRegionFile(t, dataPath, indexPath, []string{
		"1\t1000\tA\tT\trs1\tBRCA1\t0.01\t0.2\t0.05\t0.1\t1000\tADD\t0.9",
	})

	result, err := f.GetRegion("C50", "", "2:1-2000")
	if err != nil {
		t.Fatalf("GetRegion: %v", err)
	}
	if len(result.Variants) != 0 {
		t.Fatalf("expected no variants on unknown chrom, got %+v", result.Variants)
	}
	if result.MaxLog10P != 0 {
		t.Fatalf("expected max_log10p 0 for empty slice, got %v", result.MaxLog10P)
	}
}

func TestGetRegionInvertsNegLog10Pval(t *testing.T) {
	f, p := buildFacade(t)
	f.PvalIsNegLog10 = true
	dataPath, indexPath := p.PhenoGz("C50", "")
	// stored pval column holds -log10(p); row 2's 4 means p=1e-4.
	writeRegionFile(t, dataPath, indexPath, []string{
		"1\t1000\tA\tT\trs1\tBRCA1\t2\t0.2\t0.05\t0.1\t1000\tADD\t0.9",
		"1\t1500\tG\tC\trs2\tBRCA1\t4\t-0.1\t0.03\t0.2\t1000\tADD\t0.95",
	})

	result, err := f.GetRegion("C50", "", "1:1-2000")
	if err != nil {
		t.Fatalf("GetRegion: %v", err)
	}
	if len(result.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %d: %+v", len(result.Variants), result.Variants)
	}
	first := result.Variants[0]
	wantPval := math.Pow(10, -2)
	if math.Abs(first.Pvalue-wantPval) > 1e-9 {
		t.Fatalf("expected inverted pval %v, got %v", wantPval, first.Pvalue)
	}
	wantMax := 4.0
	if math.Abs(result.MaxLog10P-wantMax) > 1e-9 {
		t.Fatalf("expected max_log10p %v (the strongest row's own -log10(p)), got %v", wantMax, result.MaxLog10P)
	}
}

func TestGetRegionMissingFileIsNotFound(t *testing.T) {
	f, _ := buildFacade(t)
	if _, err := f.GetRegion("NOPE", "", "1:1-2000"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func writePlainGzip(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	defer gz.Close()
	if _, err := gz.Write([]byte(content)); err != nil {
		t.Fatalf("write gz content: %v", err)
	}
}

func TestGetSumstatsStreamsAndFilters(t *testing.T) {
	f, p := buildFacade(t)
	dataPath, _ := p.PhenoGz("C50", "")
	content := "chrom\tpos\tref\talt\tpval\taf\n" +
		"1\t1000\tA\tT\t0.01\t0.1\n" +
		"1\t2000\tA\tTT\t0.02\t0.2\n"
	writePlainGzip(t, dataPath, content)

	var buf bytes.Buffer
	if err := f.GetSumstats(&buf, "C50", "", sumstats.DefaultFilterOptions(), nil); err != nil {
		t.Fatalf("GetSumstats: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d: %v", len(lines), lines)
	}
	if !strings.HasSuffix(lines[0], "maf") {
		t.Fatalf("expected derived maf column in header, got %q", lines[0])
	}
}

func TestGetSumstatsMissingFileIsNotFound(t *testing.T) {
	f, _ := buildFacade(t)
	var buf bytes.Buffer
	err := f.GetSumstats(&buf, "NOPE", "", sumstats.DefaultFilterOptions(), nil)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestGetSumstatsInvertsNegLog10Pval(t *testing.T) {
	f, p := buildFacade(t)
	f.PvalIsNegLog10 = true
	dataPath, _ := p.PhenoGz("C50", "")
	content := "chrom\tpos\tref\talt\tpval\taf\n" +
		"1\t1000\tA\tT\t2\t0.1\n"
	writePlainGzip(t, dataPath, content)

	var buf bytes.Buffer
	if err := f.GetSumstats(&buf, "C50", "", sumstats.DefaultFilterOptions(), nil); err != nil {
		t.Fatalf("GetSumstats: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %v", lines)
	}
	fields := strings.Split(lines[1], "\t")
	pval, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		t.Fatalf("pval cell not a float: %q", fields[4])
	}
	want := math.Pow(10, -2)
	if math.Abs(pval-want) > 1e-9 {
		t.Fatalf("expected inverted pval %v, got %v", want, pval)
	}
}

func TestFilterVariantsWeakestPvalReflectsAllRows(t *testing.T) {
	f, p := buildFacade(t)
	dataPath, _ := p.BestOfGz("C50", "")
	content := "chrom\tpos\tref\talt\tpval\trsids\tnearest_genes\tbeta\tsebeta\taf\n" +
		"1\t1000\tA\tT\t0.0001\trs1\tBRCA1\t0.2\t0.05\t0.1\n" +
		"1\t2000\tA\tG\t0.9\trs2\tBRCA1\t0.01\t0.02\t0.001\n"
	writePlainGzip(t, dataPath, content)

	opts := sumstats.FilterOptions{Indel: "false", MinMAF: 0.01, MaxMAF: 0.5}
	result, err := f.FilterVariants("C50", "", opts)
	if err != nil {
		t.Fatalf("FilterVariants: %v", err)
	}
	if result.WeakestPval != 0.9 {
		t.Fatalf("expected weakest_pval to reflect the filtered-out row too, got %v", result.WeakestPval)
	}
	if len(result.UnbinnedVariants) != 1 {
		t.Fatalf("expected exactly 1 variant to survive the MAF filter, got %d: %+v", len(result.UnbinnedVariants), result.UnbinnedVariants)
	}
}

func TestFilterVariantsUnfilteredKeepsEverything(t *testing.T) {
	f, p := buildFacade(t)
	dataPath, _ := p.BestOfGz("E11", "")
	content := "chrom\tpos\tref\talt\tpval\n" +
		"1\t1000\tA\tT\t0.01\n" +
		"1\t2000\tA\tG\t0.5\n"
	writePlainGzip(t, dataPath, content)

	result, err := f.FilterVariants("E11", "", sumstats.DefaultFilterOptions())
	if err != nil {
		t.Fatalf("FilterVariants: %v", err)
	}
	if len(result.UnbinnedVariants) != 2 {
		t.Fatalf("expected both rows to survive the unfiltered predicate, got %d: %+v", len(result.UnbinnedVariants), result.UnbinnedVariants)
	}
}

func TestFilterVariantsInvertsNegLog10Pval(t *testing.T) {
	f, p := buildFacade(t)
	f.PvalIsNegLog10 = true
	dataPath, _ := p.BestOfGz("C50", "")
	// stored pval column holds -log10(p); 4 means p=1e-4, 0.05 means a
	// vastly weaker row (p=10^-0.05 ~= 0.89).
	content := "chrom\tpos\tref\talt\tpval\trsids\tnearest_genes\tbeta\tsebeta\taf\n" +
		"1\t1000\tA\tT\t4\trs1\tBRCA1\t0.2\t0.05\t0.1\n" +
		"1\t2000\tA\tG\t0.05\trs2\tBRCA1\t0.01\t0.02\t0.3\n"
	writePlainGzip(t, dataPath, content)

	result, err := f.FilterVariants("C50", "", sumstats.DefaultFilterOptions())
	if err != nil {
		t.Fatalf("FilterVariants: %v", err)
	}
	wantWeakest := math.Pow(10, -0.05)
	if math.Abs(result.WeakestPval-wantWeakest) > 1e-9 {
		t.Fatalf("expected weakest_pval %v (inverted), got %v", wantWeakest, result.WeakestPval)
	}
}

func TestGetVariantPhewasReturnsSentinelForMissingPheno(t *testing.T) {
	f, p := buildFacade(t)
	dataPath, indexPath := p.MatrixStratified("eur.female")
	header := "#chrom\tpos\tref\talt\trsids\tnearest_genes\tpval@C50"
	data := header + "\n" + "1\t196698298\tA\tT\trs12345\tBRCA1\t0.001\n"
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	matrixSpecs := []columns.FieldSpec{
		{Name: "chrom", Kind: columns.KindString, Required: true},
		{Name: "pos", Kind: columns.KindInt, Required: true},
		{Name: "ref", Kind: columns.KindString, Required: true},
		{Name: "alt", Kind: columns.KindString, Required: true},
		{Name: "rsids", Kind: columns.KindString, Required: false},
		{Name: "nearest_genes", Kind: columns.KindString, Required: false},
	}
	if err := region.WriteIndexed(strings.NewReader(data), dataPath, indexPath, matrixSpecs, nil, 10); err != nil {
		t.Fatalf("WriteIndexed: %v", err)
	}

	result, err := f.GetVariantPhewas("1-196698298-A-T", "eur.female")
	if err != nil {
		t.Fatalf("GetVariantPhewas: %v", err)
	}
	if result == nil {
		t.Fatal("expected a match")
	}
	if result.NearestGenes != "BRCA1" {
		t.Fatalf("unexpected nearest genes: %q", result.NearestGenes)
	}

	var sawE11 bool
	for _, s := range result.Stats {
		if s.Phenocode == "E11" {
			sawE11 = true
			if !s.HasNumSamples || s.NumSamples != 0 {
				t.Fatalf("expected E11 sentinel num_samples=0, got %+v", s)
			}
		}
	}
	if !sawE11 {
		t.Fatalf("expected a sentinel record for E11, got %+v", result.Stats)
	}
}

func TestGetVariantPhewasInvertsNegLog10PvalButNotSentinel(t *testing.T) {
	f, p := buildFacade(t)
	f.PvalIsNegLog10 = true
	dataPath, indexPath := p.MatrixStratified("eur.female")
	header := "#chrom\tpos\tref\talt\trsids\tnearest_genes\tpval@C50"
	data := header + "\n" + "1\t196698298\tA\tT\trs12345\tBRCA1\t3\n"
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	matrixSpecs := []columns.FieldSpec{
		{Name: "chrom", Kind: columns.KindString, Required: true},
		{Name: "pos", Kind: columns.KindInt, Required: true},
		{Name: "ref", Kind: columns.KindString, Required: true},
		{Name: "alt", Kind: columns.KindString, Required: true},
		{Name: "rsids", Kind: columns.KindString, Required: false},
		{Name: "nearest_genes", Kind: columns.KindString, Required: false},
	}
	if err := region.WriteIndexed(strings.NewReader(data), dataPath, indexPath, matrixSpecs, nil, 10); err != nil {
		t.Fatalf("WriteIndexed: %v", err)
	}

	result, err := f.GetVariantPhewas("1-196698298-A-T", "eur.female")
	if err != nil {
		t.Fatalf("GetVariantPhewas: %v", err)
	}
	if result == nil {
		t.Fatal("expected a match")
	}

	var sawC50, sawE11 bool
	for _, s := range result.Stats {
		if s.Phenocode == "C50" {
			sawC50 = true
			fv, ok := s.Fields["pval"]
			if !ok || !fv.IsNumber {
				t.Fatalf("expected a numeric pval field for C50, got %+v", s)
			}
			want := math.Pow(10, -3)
			if math.Abs(fv.Number-want) > 1e-9 {
				t.Fatalf("expected inverted pval %v, got %v", want, fv.Number)
			}
		}
		if s.Phenocode == "E11" {
			sawE11 = true
			fv, ok := s.Fields["pval"]
			if !ok || fv.Number != -1 {
				t.Fatalf("expected the unseen-phenotype sentinel (-1) left unaltered, got %+v", fv)
			}
		}
	}
	if !sawC50 || !sawE11 {
		t.Fatalf("expected both C50 and E11 stats, got %+v", result.Stats)
	}
}

func TestGetVariantPhewasMissingMatrixIsNotFound(t *testing.T) {
	f, _ := buildFacade(t)
	if _, err := f.GetVariantPhewas("1-1000-A-T", "eur.male"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestGetVariantPhewasBadCode(t *testing.T) {
	f, _ := buildFacade(t)
	if _, err := f.GetVariantPhewas("not-a-variant", "eur.male"); !apperr.IsKind(err, apperr.KindBadRequest) {
		t.Fatalf("expected KindBadRequest, got %v", err)
	}
}

func TestGetVariantRsidAndNearestGenes(t *testing.T) {
	f, _ := buildFacade(t)
	rsid, ok, err := f.GetVariantRsid("1-196698298-A-T")
	if err != nil {
		t.Fatalf("GetVariantRsid: %v", err)
	}
	if !ok || rsid != "rs12345" {
		t.Fatalf("unexpected rsid lookup: %q %v", rsid, ok)
	}

	genes, err := f.GetVariantNearestGenes("1-196698298-A-T")
	if err != nil {
		t.Fatalf("GetVariantNearestGenes: %v", err)
	}
	if len(genes) != 2 || genes[0] != "BRCA1" {
		t.Fatalf("unexpected nearest genes: %v", genes)
	}
}

func TestGetGeneAssociationsAndPosition(t *testing.T) {
	f, _ := buildFacade(t)
	assoc, err := f.GetGeneAssociations("BRCA1")
	if err != nil {
		t.Fatalf("GetGeneAssociations: %v", err)
	}
	if assoc == nil || !strings.Contains(string(assoc.Data), "C50") {
		t.Fatalf("unexpected gene associations: %+v", assoc)
	}

	pos, ok := f.GetGenePosition("BRCA1")
	if !ok || pos.Chrom != "17" {
		t.Fatalf("unexpected gene position: %+v %v", pos, ok)
	}

	if _, ok := f.GetGenePosition("NOPE"); ok {
		t.Fatal("expected unknown gene to miss")
	}
}

func TestAutocompleteEmptyQuery(t *testing.T) {
	f, _ := buildFacade(t)
	result, err := f.Autocomplete("")
	if err != nil {
		t.Fatalf("Autocomplete: %v", err)
	}
	if len(result.Variants) != 0 || len(result.Genes) != 0 || len(result.Phenotypes) != 0 {
		t.Fatalf("expected no suggestions for empty query, got %+v", result)
	}
}

func TestAutocompletePartialVariantID(t *testing.T) {
	f, _ := buildFacade(t)
	result, err := f.Autocomplete("CHR1:196698298:A:T")
	if err != nil {
		t.Fatalf("Autocomplete: %v", err)
	}
	if len(result.Variants) != 1 || result.Variants[0].Rsid != "rs12345" {
		t.Fatalf("unexpected variant match: %+v", result.Variants)
	}
}

func TestAutocompleteRsidPrefix(t *testing.T) {
	f, _ := buildFacade(t)
	result, err := f.Autocomplete("rs123")
	if err != nil {
		t.Fatalf("Autocomplete: %v", err)
	}
	if len(result.Variants) != 1 || result.Variants[0].Rsid != "rs12345" {
		t.Fatalf("unexpected rsid match: %+v", result.Variants)
	}
}

func TestAutocompleteUnionsPhenotypesAndGenes(t *testing.T) {
	f, _ := buildFacade(t)
	result, err := f.Autocomplete("BRCA1")
	if err != nil {
		t.Fatalf("Autocomplete: %v", err)
	}
	if len(result.Genes) != 1 || result.Genes[0].Gene != "BRCA1" {
		t.Fatalf("unexpected gene match: %+v", result.Genes)
	}
}

func TestParseVariantPartialRejectsGarbage(t *testing.T) {
	if _, _, _, ok := parseVariantPartial("just-text-no-pos"); ok {
		t.Fatal("expected non-numeric position to fail to parse")
	}
	if _, _, _, ok := parseVariantPartial("99-1000"); ok {
		t.Fatal("expected unknown chromosome to fail to parse")
	}
}

func TestGwasMissingGroupsAndFetches(t *testing.T) {
	f, p := buildFacade(t)
	dataPath := filepath.Join(p.GwasMissingDir(), "eur.male.gz")
	indexPath := filepath.Join(p.GwasMissingDir(), "eur.male.idx")
	writeRegionFile(t, dataPath, indexPath, []string{
		"1\t1000\tA\tT\trs1\tBRCA1\t0.01\t0.2\t0.05\t0.1\t1000\tADD\t0.9",
		"1\t1050\tG\tC\trs2\tBRCA1\t0.02\t-0.1\t0.03\t0.2\t1000\tADD\t0.9",
	})

	results := f.GwasMissing(map[string][]string{
		"eur.male": {"1-1000-A-T", "1-1050-G-C"},
	})
	res, ok := results["eur.male"]
	if !ok {
		t.Fatalf("expected a result for eur.male, got %+v", results)
	}
	if res.Err != nil {
		t.Fatalf("unexpected per-key error: %v", res.Err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %+v", res.Records)
	}
}
