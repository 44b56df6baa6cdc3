// Package paths resolves the on-disk layout of a PheWAS data directory:
// where phenotype lists, precomputed plot payloads, block-compressed
// association files, and the autocomplete database live underneath one
// root, with environment-variable overrides for the roots themselves.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds the resolved base and data directories for one process.
type Paths struct {
	BaseDir string
	DataDir string
}

// Get returns the base/data directories, honoring PHEWEB_BASE_DIR and
// PHEWEB_DATA_DIR, falling back to ~/.pheweb and <BaseDir>/data.
func Get() Paths {
	base := os.Getenv("PHEWEB_BASE_DIR")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".pheweb")
	}
	data := os.Getenv("PHEWEB_DATA_DIR")
	if data == "" {
		data = filepath.Join(base, "data")
	}
	return Paths{BaseDir: base, DataDir: data}
}

// PhenotypesJSON returns the path to the phenotype descriptor list.
func (p Paths) PhenotypesJSON() string { return filepath.Join(p.DataDir, "phenotypes.json") }

// TopHitsJSON returns the path to the precomputed top-1000-hits list.
func (p Paths) TopHitsJSON() string { return filepath.Join(p.DataDir, "top_hits_1k.json") }

// GeneAssociationsSQLite returns the path to the per-gene best-phenos table.
func (p Paths) GeneAssociationsSQLite() string {
	return filepath.Join(p.DataDir, "best-phenos-by-gene.sqlite3")
}

// GenesBED returns the path to the gene region table for the given genome
// build (37 or 38).
func (p Paths) GenesBED(hgBuild int) string {
	return filepath.Join(p.DataDir, "resources", genesBEDName(hgBuild))
}

func genesBEDName(hgBuild int) string {
	if hgBuild == 38 {
		return "genes-v38-hg38.bed"
	}
	return "genes-v37-hg38.bed"
}

// ManhattanJSON returns the path to a phenotype's precomputed Manhattan
// payload, optionally qualified by stratification.
func (p Paths) ManhattanJSON(phenocode, strat string) string {
	return filepath.Join(p.DataDir, "manhattan", strataName(phenocode, strat)+".json")
}

// QQJSON returns the path to a phenotype's precomputed QQ payload.
func (p Paths) QQJSON(phenocode, strat string) string {
	return filepath.Join(p.DataDir, "qq", strataName(phenocode, strat)+".json")
}

// PhenoGz returns the data/index paths to a phenotype's full block-compressed
// association file.
func (p Paths) PhenoGz(phenocode, strat string) (dataPath, indexPath string) {
	name := strataName(phenocode, strat)
	dir := filepath.Join(p.DataDir, "pheno_gz")
	return filepath.Join(dir, name+".gz"), filepath.Join(dir, name+".idx")
}

// BestOfGz returns the data/index paths to a phenotype's precomputed
// strongest-associations file used to seed Manhattan filtering.
func (p Paths) BestOfGz(phenocode, strat string) (dataPath, indexPath string) {
	name := strataName(phenocode, strat)
	dir := filepath.Join(p.DataDir, "best_of")
	return filepath.Join(dir, name+".gz"), filepath.Join(dir, name+".idx")
}

// MatrixStratified returns the data/index paths to the wide PheWAS matrix
// file for one stratification.
func (p Paths) MatrixStratified(strat string) (dataPath, indexPath string) {
	dir := filepath.Join(p.DataDir, "matrix-stratified")
	name := "matrix." + strat + ".tsv"
	return filepath.Join(dir, name+".gz"), filepath.Join(dir, name+".idx")
}

// SitesTSVGzip returns the path to the variant site master table.
func (p Paths) SitesTSVGzip() string { return filepath.Join(p.DataDir, "sites", "sites.tsv.gz") }

// AutocompleteDB returns the path to the on-disk autocomplete database.
func (p Paths) AutocompleteDB() string { return filepath.Join(p.DataDir, "sites", "autocomplete.db") }

// VariantsDB returns the path to the nearest-genes lookup database.
func (p Paths) VariantsDB() string { return filepath.Join(p.DataDir, "sites", "variants.db") }

// GwasMissingDir returns the directory of per-stratification association
// files used to re-resolve SNPs missing from a plot.
func (p Paths) GwasMissingDir() string { return filepath.Join(p.DataDir, "pheno_gz") }

// strataName joins a phenocode and optional stratification the way the
// on-disk filenames do: plain phenocode when strat is empty, dot-joined
// otherwise.
func strataName(phenocode, strat string) string {
	if strat == "" {
		return phenocode
	}
	return phenocode + "." + strat
}

// EnsureDataDir creates the data directory and its expected subdirectories
// if they do not already exist.
func (p Paths) EnsureDataDir() error {
	for _, sub := range []string{"manhattan", "qq", "pheno_gz", "best_of", "interaction", "matrix-stratified", "sites", "resources"} {
		if err := os.MkdirAll(filepath.Join(p.DataDir, sub), 0o755); err != nil {
			return fmt.Errorf("creating data subdirectory %s: %w", sub, err)
		}
	}
	return nil
}
