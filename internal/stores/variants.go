package stores

import (
	"database/sql"
	"strings"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/apperr"
	_ "github.com/mattn/go-sqlite3"
)

// VariantStore answers variant-id-keyed lookups backed by two small SQLite
// databases precomputed offline: the sites database (nearest genes) and
// the autocomplete database (rsid). Both queries are parameterized; a
// variant id is user-controlled request input.
type VariantStore struct {
	sitesDB        *sql.DB
	autocompleteDB *sql.DB
}

// OpenVariantStore opens both backing databases.
func OpenVariantStore(sitesPath, autocompletePath string) (*VariantStore, error) {
	const op = apperr.Op("stores.OpenVariantStore")
	sitesDB, err := sql.Open("sqlite3", sitesPath+"?mode=ro")
	if err != nil {
		return nil, apperr.WrapMsg(op, "opening sites database", err)
	}
	if err := sitesDB.Ping(); err != nil {
		sitesDB.Close()
		return nil, apperr.WrapMsg(op, "pinging sites database", err)
	}
	autocompleteDB, err := sql.Open("sqlite3", autocompletePath+"?mode=ro")
	if err != nil {
		sitesDB.Close()
		return nil, apperr.WrapMsg(op, "opening autocomplete database", err)
	}
	if err := autocompleteDB.Ping(); err != nil {
		sitesDB.Close()
		autocompleteDB.Close()
		return nil, apperr.WrapMsg(op, "pinging autocomplete database", err)
	}
	return &VariantStore{sitesDB: sitesDB, autocompleteDB: autocompleteDB}, nil
}

// Close releases both underlying database connections.
func (v *VariantStore) Close() error {
	err1 := v.sitesDB.Close()
	err2 := v.autocompleteDB.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// GetNearestGenes returns the comma-separated nearest-genes annotation for
// variantID, split into a slice, or (nil, nil) if the variant isn't present.
func (v *VariantStore) GetNearestGenes(variantID string) ([]string, error) {
	const op = apperr.Op("stores.GetNearestGenes")
	var nearestGenes string
	err := v.sitesDB.QueryRow("SELECT nearest_genes FROM variants WHERE variant_id = ?", variantID).Scan(&nearestGenes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.WrapMsg(op, "querying nearest_genes", err)
	}
	if nearestGenes == "" {
		return nil, nil
	}
	return strings.Split(nearestGenes, ","), nil
}

// GetRsid returns the rsid for variantID, or ("", false) if not found.
func (v *VariantStore) GetRsid(variantID string) (string, bool, error) {
	const op = apperr.Op("stores.GetRsid")
	var rsid string
	err := v.autocompleteDB.QueryRow("SELECT rsid FROM variants WHERE variant_id = ?", variantID).Scan(&rsid)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.WrapMsg(op, "querying rsid", err)
	}
	return rsid, true, nil
}
