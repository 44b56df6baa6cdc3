package stores

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func buildVariantSQLites(t *testing.T) (sitesPath, autocompletePath string) {
	t.Helper()
	dir := t.TempDir()
	sitesPath = filepath.Join(dir, "variants.db")
	autocompletePath = filepath.Join(dir, "autocomplete.db")

	sitesDB, err := sql.Open("sqlite3", sitesPath)
	if err != nil {
		t.Fatalf("open sites db: %v", err)
	}
	defer sitesDB.Close()
	if _, err := sitesDB.Exec(`CREATE TABLE variants (variant_id TEXT, nearest_genes TEXT)`); err != nil {
		t.Fatalf("create sites table: %v", err)
	}
	if _, err := sitesDB.Exec(`INSERT INTO variants (variant_id, nearest_genes) VALUES (?, ?)`,
		"1-1000-A-T", "BRCA1,BRCA2"); err != nil {
		t.Fatalf("insert sites row: %v", err)
	}

	autocompleteDB, err := sql.Open("sqlite3", autocompletePath)
	if err != nil {
		t.Fatalf("open autocomplete db: %v", err)
	}
	defer autocompleteDB.Close()
	if _, err := autocompleteDB.Exec(`CREATE TABLE variants (variant_id TEXT, rsid TEXT)`); err != nil {
		t.Fatalf("create autocomplete table: %v", err)
	}
	if _, err := autocompleteDB.Exec(`INSERT INTO variants (variant_id, rsid) VALUES (?, ?)`,
		"1-1000-A-T", "rs123"); err != nil {
		t.Fatalf("insert autocomplete row: %v", err)
	}
	return sitesPath, autocompletePath
}

func TestGetNearestGenes(t *testing.T) {
	sitesPath, autocompletePath := buildVariantSQLites(t)
	store, err := OpenVariantStore(sitesPath, autocompletePath)
	if err != nil {
		t.Fatalf("OpenVariantStore: %v", err)
	}
	defer store.Close()

	genes, err := store.GetNearestGenes("1-1000-A-T")
	if err != nil {
		t.Fatalf("GetNearestGenes: %v", err)
	}
	if len(genes) != 2 || genes[0] != "BRCA1" || genes[1] != "BRCA2" {
		t.Fatalf("unexpected genes: %v", genes)
	}

	genes, err = store.GetNearestGenes("9-1-A-T")
	if err != nil {
		t.Fatalf("GetNearestGenes miss: %v", err)
	}
	if genes != nil {
		t.Fatalf("expected nil for unknown variant, got %v", genes)
	}
}

func TestGetRsid(t *testing.T) {
	sitesPath, autocompletePath := buildVariantSQLites(t)
	store, err := OpenVariantStore(sitesPath, autocompletePath)
	if err != nil {
		t.Fatalf("OpenVariantStore: %v", err)
	}
	defer store.Close()

	rsid, ok, err := store.GetRsid("1-1000-A-T")
	if err != nil {
		t.Fatalf("GetRsid: %v", err)
	}
	if !ok || rsid != "rs123" {
		t.Fatalf("unexpected rsid: %q ok=%v", rsid, ok)
	}

	_, ok, err = store.GetRsid("9-1-A-T")
	if err != nil {
		t.Fatalf("GetRsid miss: %v", err)
	}
	if ok {
		t.Fatal("expected miss for unknown variant")
	}
}
