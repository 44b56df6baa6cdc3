package paths

import (
	"path/filepath"
	"testing"
)

func TestGetHonorsEnvOverrides(t *testing.T) {
	t.Setenv("PHEWEB_BASE_DIR", "/srv/pheweb")
	t.Setenv("PHEWEB_DATA_DIR", "/mnt/pheweb-data")

	p := Get()
	if p.BaseDir != "/srv/pheweb" {
		t.Fatalf("unexpected BaseDir: %s", p.BaseDir)
	}
	if p.DataDir != "/mnt/pheweb-data" {
		t.Fatalf("unexpected DataDir: %s", p.DataDir)
	}
}

func TestGetDefaultsDataDirUnderBase(t *testing.T) {
	t.Setenv("PHEWEB_BASE_DIR", "/srv/pheweb")
	t.Setenv("PHEWEB_DATA_DIR", "")

	p := Get()
	if p.DataDir != filepath.Join("/srv/pheweb", "data") {
		t.Fatalf("unexpected default DataDir: %s", p.DataDir)
	}
}

func TestStrataNameJoinsOnlyWhenPresent(t *testing.T) {
	p := Paths{DataDir: "/data"}
	if got := p.ManhattanJSON("C50", ""); got != filepath.Join("/data", "manhattan", "C50.json") {
		t.Fatalf("unexpected unstratified path: %s", got)
	}
	if got := p.ManhattanJSON("C50", "eur.female"); got != filepath.Join("/data", "manhattan", "C50.eur.female.json") {
		t.Fatalf("unexpected stratified path: %s", got)
	}
}

func TestMatrixStratifiedNames(t *testing.T) {
	p := Paths{DataDir: "/data"}
	dataPath, indexPath := p.MatrixStratified("eur.male")
	if dataPath != filepath.Join("/data", "matrix-stratified", "matrix.eur.male.tsv.gz") {
		t.Fatalf("unexpected matrix data path: %s", dataPath)
	}
	if indexPath != filepath.Join("/data", "matrix-stratified", "matrix.eur.male.tsv.idx") {
		t.Fatalf("unexpected matrix index path: %s", indexPath)
	}
}

func TestGenesBEDBuildSelection(t *testing.T) {
	p := Paths{DataDir: "/data"}
	if got := p.GenesBED(37); filepath.Base(got) != "genes-v37-hg38.bed" {
		t.Fatalf("unexpected hg37 resource: %s", got)
	}
	if got := p.GenesBED(38); filepath.Base(got) != "genes-v38-hg38.bed" {
		t.Fatalf("unexpected hg38 resource: %s", got)
	}
}
