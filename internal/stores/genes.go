package stores

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/apperr"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/chrom"
	_ "github.com/mattn/go-sqlite3"
)

// GeneRegion is a gene's genomic span, as loaded from the gene BED table.
type GeneRegion struct {
	Chrom string `json:"chrom"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// GeneRegionMapping maps gene symbol to its genomic region.
type GeneRegionMapping map[string]GeneRegion

// LoadGeneRegions reads a tab-separated gene table (chrom, start, end,
// gene, ensg) such as genes-v37-hg38.bed into an in-memory lookup, the
// Go equivalent of iterating get_gene_tuples into a dict once at startup.
func LoadGeneRegions(path string) (GeneRegionMapping, error) {
	const op = apperr.Op("stores.LoadGeneRegions")
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.WrapMsg(op, "opening gene table", err)
	}
	defer f.Close()

	mapping := make(GeneRegionMapping)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			return nil, apperr.E(op, apperr.KindMalformedRow, "gene table row narrower than 4 columns at line "+strconv.Itoa(lineNum))
		}
		canon, err := chrom.Canonicalize(fields[0])
		if err != nil {
			return nil, apperr.Wrap(op, err)
		}
		start, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, apperr.E(op, apperr.KindFieldParseError, "gene table non-integer start at line "+strconv.Itoa(lineNum))
		}
		end, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, apperr.E(op, apperr.KindFieldParseError, "gene table non-integer end at line "+strconv.Itoa(lineNum))
		}
		mapping[fields[3]] = GeneRegion{Chrom: canon, Start: start, End: end}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperr.WrapMsg(op, "scanning gene table", err)
	}
	return mapping, nil
}

// GeneAssociations is the decoded response for a gene's best-phenos lookup.
type GeneAssociations struct {
	Gene string          `json:"gene"`
	Data json.RawMessage `json:"data"`
}

// GeneStore answers gene-keyed queries: its genomic position (from the
// in-memory region mapping) and its best-associated phenotypes (from a
// SQLite table precomputed offline).
type GeneStore struct {
	db      *sql.DB
	regions GeneRegionMapping
}

// OpenGeneStore opens the best-phenos-by-gene SQLite database and pairs it
// with an already-loaded gene region mapping.
func OpenGeneStore(sqlitePath string, regions GeneRegionMapping) (*GeneStore, error) {
	const op = apperr.Op("stores.OpenGeneStore")
	db, err := sql.Open("sqlite3", sqlitePath+"?mode=ro&_query_only=true")
	if err != nil {
		return nil, apperr.WrapMsg(op, "opening gene sqlite database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperr.WrapMsg(op, "pinging gene sqlite database", err)
	}
	return &GeneStore{db: db, regions: regions}, nil
}

// Close releases the underlying database connection.
func (g *GeneStore) Close() error { return g.db.Close() }

// GetGenesTable returns the precomputed best-phenotypes JSON blob for gene,
// or (nil, nil) if the gene has no row. The query is parameterized: gene
// names are user-controlled request input and must never be interpolated
// directly into SQL text.
func (g *GeneStore) GetGenesTable(gene string) (*GeneAssociations, error) {
	const op = apperr.Op("stores.GetGenesTable")
	var raw string
	err := g.db.QueryRow("SELECT json FROM best_phenos_for_each_gene WHERE gene = ?", gene).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.WrapMsg(op, "querying best_phenos_for_each_gene", err)
	}
	return &GeneAssociations{Gene: gene, Data: json.RawMessage(raw)}, nil
}

// GetGenePosition returns gene's genomic region from the in-memory mapping.
func (g *GeneStore) GetGenePosition(gene string) (GeneRegion, bool) {
	region, ok := g.regions[gene]
	return region, ok
}

// GetAllGenes returns the genes of the best-phenos table alongside their
// genomic region; a gene with no region mapping is left out.
func (g *GeneStore) GetAllGenes() (GeneRegionMapping, error) {
	const op = apperr.Op("stores.GetAllGenes")
	rows, err := g.db.Query("SELECT gene FROM best_phenos_for_each_gene")
	if err != nil {
		return nil, apperr.WrapMsg(op, "querying gene names", err)
	}
	defer rows.Close()

	out := make(GeneRegionMapping)
	for rows.Next() {
		var gene string
		if err := rows.Scan(&gene); err != nil {
			return nil, apperr.WrapMsg(op, "scanning gene name", err)
		}
		if region, ok := g.regions[gene]; ok {
			out[gene] = region
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.WrapMsg(op, "iterating gene names", err)
	}
	return out, nil
}
