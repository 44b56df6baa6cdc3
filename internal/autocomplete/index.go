package autocomplete

import (
	"context"
	"database/sql"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/apperr"
	"github.com/mattn/go-sqlite3"
)

// Index serves prefix lookups against an in-memory clone of the on-disk
// autocomplete database, so every query runs against RAM rather than disk.
type Index struct {
	mem *sql.DB
}

// Open clones the on-disk database at dbPath into memory and returns an
// Index ready to serve queries. The on-disk database is never written to
// again after this call.
func Open(dbPath string) (*Index, error) {
	const op = apperr.Op("autocomplete.Open")
	src, err := sql.Open("sqlite3", dbPath+"?mode=ro")
	if err != nil {
		return nil, apperr.WrapMsg(op, "opening source database", err)
	}
	defer src.Close()

	mem, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, apperr.WrapMsg(op, "opening in-memory database", err)
	}

	if err := cloneToMemory(src, mem); err != nil {
		mem.Close()
		return nil, apperr.WrapMsg(op, "cloning database into memory", err)
	}
	return &Index{mem: mem}, nil
}

// cloneToMemory uses sqlite's native online-backup API to copy src's whole
// database into dest page by page, the Go equivalent of Python's
// sqlite3.Connection.backup().
func cloneToMemory(src, dest *sql.DB) error {
	ctx := context.Background()
	srcConn, err := src.Conn(ctx)
	if err != nil {
		return err
	}
	defer srcConn.Close()
	destConn, err := dest.Conn(ctx)
	if err != nil {
		return err
	}
	defer destConn.Close()

	return destConn.Raw(func(destRaw interface{}) error {
		return srcConn.Raw(func(srcRaw interface{}) error {
			destSQLite, ok := destRaw.(*sqlite3.SQLiteConn)
			if !ok {
				return apperr.E(apperr.Op("autocomplete.cloneToMemory"), apperr.KindConfig, "destination is not a sqlite3 connection")
			}
			srcSQLite, ok := srcRaw.(*sqlite3.SQLiteConn)
			if !ok {
				return apperr.E(apperr.Op("autocomplete.cloneToMemory"), apperr.KindConfig, "source is not a sqlite3 connection")
			}
			backup, err := destSQLite.Backup("main", srcSQLite, "main")
			if err != nil {
				return err
			}
			defer backup.Finish()
			for {
				done, err := backup.Step(-1)
				if err != nil {
					return err
				}
				if done {
					return nil
				}
			}
		})
	})
}

// Close releases the in-memory database.
func (idx *Index) Close() error { return idx.mem.Close() }

// VariantMatch is one row of a variant prefix search.
type VariantMatch struct {
	Rsid      string `json:"rsid,omitempty"`
	VariantID string `json:"variant_id"`
}

// QueryVariants resolves prefix against rsid/variant_id. When both chrom
// and a non-zero pos are given, the search is restricted to rows on chrom
// and matches variant_id only; pos itself is not used to narrow the rows.
// An exact match always wins over prefix matches.
func (idx *Index) QueryVariants(prefix, chrom string, pos, maxResults int) ([]VariantMatch, error) {
	const op = apperr.Op("autocomplete.QueryVariants")
	if maxResults <= 0 {
		maxResults = 4
	}
	likePattern := prefix + "%"

	var rows *sql.Rows
	var err error
	if chrom != "" && pos != 0 {
		rows, err = idx.mem.Query(`SELECT rsid, variant_id FROM variants WHERE chrom = ? AND variant_id = ?`, chrom, prefix)
		if err != nil {
			return nil, apperr.WrapMsg(op, "exact variant lookup", err)
		}
		exact, err := scanVariants(rows)
		if err != nil {
			return nil, apperr.Wrap(op, err)
		}
		if len(exact) > 0 {
			return exact, nil
		}
		rows, err = idx.mem.Query(`
			SELECT rsid, variant_id FROM variants
			WHERE chrom = ? AND variant_id LIKE ? AND variant_id != ?
			LIMIT ?`, chrom, likePattern, prefix, maxResults)
		if err != nil {
			return nil, apperr.WrapMsg(op, "prefix variant lookup", err)
		}
		return scanVariants(rows)
	}

	rows, err = idx.mem.Query(`SELECT rsid, variant_id FROM variants WHERE rsid = ? OR variant_id = ?`, prefix, prefix)
	if err != nil {
		return nil, apperr.WrapMsg(op, "exact variant lookup", err)
	}
	exact, err := scanVariants(rows)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	if len(exact) > 0 {
		return exact, nil
	}
	rows, err = idx.mem.Query(`
		SELECT rsid, variant_id FROM variants
		WHERE (rsid LIKE ? OR variant_id LIKE ?) AND rsid != ? AND variant_id != ?
		LIMIT ?`, likePattern, likePattern, prefix, prefix, maxResults)
	if err != nil {
		return nil, apperr.WrapMsg(op, "prefix variant lookup", err)
	}
	return scanVariants(rows)
}

func scanVariants(rows *sql.Rows) ([]VariantMatch, error) {
	defer rows.Close()
	var out []VariantMatch
	for rows.Next() {
		var rsid, variantID sql.NullString
		if err := rows.Scan(&rsid, &variantID); err != nil {
			return nil, err
		}
		out = append(out, VariantMatch{Rsid: rsid.String, VariantID: variantID.String})
	}
	return out, rows.Err()
}

// GeneMatch is one row of a gene prefix search.
type GeneMatch struct {
	Gene  string `json:"gene"`
	Chrom string `json:"chrom"`
	Start int    `json:"start"`
	Stop  int    `json:"stop"`
}

// QueryGenes resolves prefix against gene symbols; an exact match wins
// over prefix matches.
func (idx *Index) QueryGenes(prefix string, maxResults int) ([]GeneMatch, error) {
	const op = apperr.Op("autocomplete.QueryGenes")
	if maxResults <= 0 {
		maxResults = 4
	}
	rows, err := idx.mem.Query(`SELECT gene_id, chrom, start, stop FROM genes WHERE gene_id = ?`, prefix)
	if err != nil {
		return nil, apperr.WrapMsg(op, "exact gene lookup", err)
	}
	exact, err := scanGenes(rows)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	if len(exact) > 0 {
		return exact, nil
	}
	rows, err = idx.mem.Query(`
		SELECT gene_id, chrom, start, stop FROM genes
		WHERE gene_id LIKE ? AND gene_id != ?
		LIMIT ?`, prefix+"%", prefix, maxResults)
	if err != nil {
		return nil, apperr.WrapMsg(op, "prefix gene lookup", err)
	}
	return scanGenes(rows)
}

func scanGenes(rows *sql.Rows) ([]GeneMatch, error) {
	defer rows.Close()
	var out []GeneMatch
	for rows.Next() {
		var m GeneMatch
		if err := rows.Scan(&m.Gene, &m.Chrom, &m.Start, &m.Stop); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PhenotypeMatch is one row of a phenotype prefix/full-text search.
type PhenotypeMatch struct {
	Phenocode   string `json:"phenocode"`
	Phenostring string `json:"phenostring"`
}

// QueryPhenotypes resolves prefix against phenocode/phenostring, first by
// exact phenostring, then by LIKE substring, then by FTS5 match, deduplicating
// the last two passes' results together.
func (idx *Index) QueryPhenotypes(prefix string, maxResults int) ([]PhenotypeMatch, error) {
	const op = apperr.Op("autocomplete.QueryPhenotypes")
	if maxResults <= 0 {
		maxResults = 4
	}
	rows, err := idx.mem.Query(`SELECT phenocode, phenostring FROM phenotypes_fts WHERE phenostring = ?`, prefix)
	if err != nil {
		return nil, apperr.WrapMsg(op, "exact phenotype lookup", err)
	}
	exact, err := scanPhenotypes(rows)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	if len(exact) > 0 {
		return exact, nil
	}

	likePattern := "%" + prefix + "%"
	rows, err = idx.mem.Query(`
		SELECT phenocode, phenostring FROM phenotypes_fts
		WHERE (phenocode LIKE ? OR phenostring LIKE ?) AND phenocode != ? AND phenostring != ?
		LIMIT ?`, likePattern, likePattern, prefix, prefix, maxResults)
	if err != nil {
		return nil, apperr.WrapMsg(op, "prefix phenotype lookup", err)
	}
	similar, err := scanPhenotypes(rows)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}

	rows, err = idx.mem.Query(`
		SELECT phenocode, phenostring FROM phenotypes_fts
		WHERE phenotypes_fts MATCH ?
		LIMIT ?`, "phenocode:"+prefix+" OR phenostring:"+prefix, maxResults)
	if err != nil {
		return nil, apperr.WrapMsg(op, "fts phenotype lookup", err)
	}
	fts, err := scanPhenotypes(rows)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}

	seen := make(map[PhenotypeMatch]bool, len(similar)+len(fts))
	var out []PhenotypeMatch
	for _, m := range append(similar, fts...) {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out, nil
}

func scanPhenotypes(rows *sql.Rows) ([]PhenotypeMatch, error) {
	defer rows.Close()
	var out []PhenotypeMatch
	for rows.Next() {
		var m PhenotypeMatch
		if err := rows.Scan(&m.Phenocode, &m.Phenostring); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Result is the merged response for the unified search box: whichever of
// variants, genes, or phenotypes matched the query.
type Result struct {
	Variants   []VariantMatch
	Genes      []GeneMatch
	Phenotypes []PhenotypeMatch
}

// Autocomplete runs all three prefix searches and returns everything that
// matched.
func (idx *Index) Autocomplete(query string, maxResults int) (Result, error) {
	const op = apperr.Op("autocomplete.Autocomplete")
	variants, err := idx.QueryVariants(query, "", 0, maxResults)
	if err != nil {
		return Result{}, apperr.Wrap(op, err)
	}
	genes, err := idx.QueryGenes(query, maxResults)
	if err != nil {
		return Result{}, apperr.Wrap(op, err)
	}
	phenotypes, err := idx.QueryPhenotypes(query, maxResults)
	if err != nil {
		return Result{}, apperr.Wrap(op, err)
	}
	return Result{Variants: variants, Genes: genes, Phenotypes: phenotypes}, nil
}
