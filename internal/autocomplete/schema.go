// Package autocomplete builds and serves the unified lookup index behind
// pheweb's search box: variants (by rsid or chrom-pos-ref-alt), genes, and
// phenotypes, all by prefix. The on-disk SQLite database is built once
// offline; at serve time it is cloned wholesale into an in-memory database
// so every query runs against RAM.
package autocomplete

import (
	"compress/gzip"
	"database/sql"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/apperr"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/columns"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/stores"
	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS variants (
	id INTEGER PRIMARY KEY,
	rsid TEXT,
	variant_id TEXT,
	chrom TEXT,
	pos INTEGER
);
CREATE TABLE IF NOT EXISTS genes (
	gene_id TEXT PRIMARY KEY,
	chrom TEXT,
	start INTEGER,
	stop INTEGER
);
CREATE TABLE IF NOT EXISTS phenotypes (
	phenocode TEXT PRIMARY KEY,
	phenostring TEXT
);
`

// BuildOptions names the offline inputs used to (re)build the on-disk
// autocomplete database.
type BuildOptions struct {
	DBPath        string
	SitesTSVGzip  string
	GeneRegions   stores.GeneRegionMapping
	PhenoNames    map[string]struct {
		Phenostring string
		Feature     string
	}
}

// Build creates (or extends) the on-disk autocomplete database from the
// sites table, gene regions, and phenotype catalog, matching
// AutocompleteLoading.create_table: each of the three base tables and the
// phenotypes FTS5 index is created and populated only if missing.
func Build(opts BuildOptions) error {
	const op = apperr.Op("autocomplete.Build")
	db, err := sql.Open("sqlite3", opts.DBPath)
	if err != nil {
		return apperr.WrapMsg(op, "opening autocomplete database", err)
	}
	defer db.Close()

	for _, pragma := range []string{
		"PRAGMA journal_mode = OFF",
		"PRAGMA synchronous = OFF",
		"PRAGMA cache_size = 1000000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return apperr.WrapMsg(op, "setting pragma", err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return apperr.WrapMsg(op, "creating base tables", err)
	}

	if empty, err := tableEmpty(db, "variants"); err != nil {
		return apperr.Wrap(op, err)
	} else if empty && opts.SitesTSVGzip != "" {
		if err := loadVariants(db, opts.SitesTSVGzip); err != nil {
			return apperr.WrapMsg(op, "loading variants", err)
		}
	}
	if empty, err := tableEmpty(db, "genes"); err != nil {
		return apperr.Wrap(op, err)
	} else if empty {
		if err := loadGenes(db, opts.GeneRegions); err != nil {
			return apperr.WrapMsg(op, "loading genes", err)
		}
	}
	if empty, err := tableEmpty(db, "phenotypes"); err != nil {
		return apperr.Wrap(op, err)
	} else if empty {
		if err := loadPhenotypes(db, opts.PhenoNames); err != nil {
			return apperr.WrapMsg(op, "loading phenotypes", err)
		}
	}
	if err := ensureFTS(db); err != nil {
		return apperr.WrapMsg(op, "creating phenotypes_fts", err)
	}
	return nil
}

func tableEmpty(db *sql.DB, table string) (bool, error) {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func ftsExists(db *sql.DB) (bool, error) {
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='phenotypes_fts'").Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func ensureFTS(db *sql.DB) error {
	exists, err := ftsExists(db)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := db.Exec(`
		CREATE VIRTUAL TABLE phenotypes_fts USING fts5(
			phenocode,
			phenostring,
			content='phenotypes',
			content_rowid='rowid'
		)
	`); err != nil {
		return err
	}
	_, err = db.Exec(`INSERT INTO phenotypes_fts(phenotypes_fts) VALUES ('rebuild')`)
	return err
}

func loadVariants(db *sql.DB, sitesTSVGzip string) error {
	const op = apperr.Op("autocomplete.loadVariants")
	f, err := os.Open(sitesTSVGzip)
	if err != nil {
		return apperr.WrapMsg(op, "opening sites table", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return apperr.WrapMsg(op, "opening gzip stream", err)
	}
	defer gz.Close()

	specs := []columns.FieldSpec{
		{Name: "chrom", Kind: columns.KindString, Required: true},
		{Name: "pos", Kind: columns.KindInt, Required: true},
		{Name: "ref", Kind: columns.KindString, Required: true},
		{Name: "alt", Kind: columns.KindString, Required: true},
		{Name: "rsids", Kind: columns.KindString, Required: false},
	}
	reader, err := columns.NewReader(gz, sitesTSVGzip, specs, nil)
	if err != nil {
		return apperr.Wrap(op, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return apperr.WrapMsg(op, "beginning transaction", err)
	}
	stmt, err := tx.Prepare("INSERT INTO variants (rsid, variant_id, chrom, pos) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return apperr.WrapMsg(op, "preparing insert", err)
	}
	defer stmt.Close()

	const batchSize = 1_000_000
	n := 0
	for {
		row, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			tx.Rollback()
			return apperr.Wrap(op, err)
		}
		chrom := row.Str("chrom")
		pos, _ := row.Float("pos")
		ref := row.Str("ref")
		alt := row.Str("alt")
		rsidsField := row.Str("rsids")
		var rsid interface{}
		if rsidsField != "" {
			rsid = strings.SplitN(rsidsField, ",", 2)[0]
		}
		variantID := chrom + "-" + strconv.Itoa(int(pos)) + "-" + ref + "-" + alt
		if _, err := stmt.Exec(rsid, variantID, chrom, int(pos)); err != nil {
			tx.Rollback()
			return apperr.WrapMsg(op, "inserting variant row", err)
		}
		n++
		if n%batchSize == 0 {
			if err := tx.Commit(); err != nil {
				return apperr.WrapMsg(op, "committing batch", err)
			}
			tx, err = db.Begin()
			if err != nil {
				return apperr.WrapMsg(op, "beginning next batch", err)
			}
			stmt, err = tx.Prepare("INSERT INTO variants (rsid, variant_id, chrom, pos) VALUES (?, ?, ?, ?)")
			if err != nil {
				return apperr.WrapMsg(op, "re-preparing insert", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.WrapMsg(op, "committing final batch", err)
	}
	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS idx_variant_id ON variants(variant_id)",
		"CREATE INDEX IF NOT EXISTS idx_rsid ON variants(rsid)",
		"CREATE INDEX IF NOT EXISTS idx_chrom ON variants(chrom)",
		"CREATE INDEX IF NOT EXISTS idx_pos ON variants(pos)",
	} {
		if _, err := db.Exec(idx); err != nil {
			return apperr.WrapMsg(op, "creating index", err)
		}
	}
	return nil
}

func loadGenes(db *sql.DB, regions stores.GeneRegionMapping) error {
	const op = apperr.Op("autocomplete.loadGenes")
	tx, err := db.Begin()
	if err != nil {
		return apperr.WrapMsg(op, "beginning transaction", err)
	}
	stmt, err := tx.Prepare("INSERT INTO genes (gene_id, chrom, start, stop) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return apperr.WrapMsg(op, "preparing insert", err)
	}
	defer stmt.Close()
	for gene, region := range regions {
		if _, err := stmt.Exec(gene, region.Chrom, region.Start, region.End); err != nil {
			tx.Rollback()
			return apperr.WrapMsg(op, "inserting gene row", err)
		}
	}
	return tx.Commit()
}

func loadPhenotypes(db *sql.DB, names map[string]struct {
	Phenostring string
	Feature     string
}) error {
	const op = apperr.Op("autocomplete.loadPhenotypes")
	tx, err := db.Begin()
	if err != nil {
		return apperr.WrapMsg(op, "beginning transaction", err)
	}
	stmt, err := tx.Prepare("INSERT INTO phenotypes (phenocode, phenostring) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return apperr.WrapMsg(op, "preparing insert", err)
	}
	defer stmt.Close()
	for phenocode, v := range names {
		if _, err := stmt.Exec(phenocode, v.Phenostring); err != nil {
			tx.Rollback()
			return apperr.WrapMsg(op, "inserting phenotype row", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.WrapMsg(op, "committing phenotypes", err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS idx_phenostring ON phenotypes(phenostring)")
	return err
}
