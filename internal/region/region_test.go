package region

import (
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/columns"
)

var testSpecs = []columns.FieldSpec{
	{Name: "chrom", Kind: columns.KindString, Required: true},
	{Name: "pos", Kind: columns.KindInt, Required: true},
	{Name: "ref", Kind: columns.KindString, Required: true},
	{Name: "alt", Kind: columns.KindString, Required: true},
	{Name: "pval", Kind: columns.KindFloat, Required: true},
}

func buildFixture(t *testing.T, rowsPerBlock int) *Reader {
	t.Helper()
	dir := t.TempDir()
	data := "chrom\tpos\tref\talt\tpval\n" +
		"1\t1000\tA\tT\t0.001\n" +
		"1\t2000\tG\tC\t5e-9\n" +
		"1\t3000\tA\tG\t0.2\n" +
		"2\t500\tC\tT\t0.01\n" +
		"2\t10000\tA\tC\t0.5\n"

	compressed := filepath.Join(dir, "pheno.gz")
	indexPath := filepath.Join(dir, "pheno.idx")
	if err := WriteIndexed(strings.NewReader(data), compressed, indexPath, testSpecs, nil, rowsPerBlock); err != nil {
		t.Fatalf("WriteIndexed: %v", err)
	}
	r, err := Open(compressed, indexPath, testSpecs, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return r
}

func collect(t *testing.T, it *Iter) []columns.Row {
	t.Helper()
	defer it.Close()
	var rows []columns.Row
	for {
		row, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		rows = append(rows, row)
	}
	return rows
}

func TestGetRegionReturnsRowsWithinRange(t *testing.T) {
	r := buildFixture(t, 1) // one row per block, to exercise multi-block traversal
	it, err := r.GetRegion("1", 1500, 3500)
	if err != nil {
		t.Fatalf("GetRegion: %v", err)
	}
	rows := collect(t, it)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows in [1500,3500), got %d", len(rows))
	}
	if rows[0].Str("ref") != "G" || rows[1].Str("ref") != "A" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestGetRegionEmptyForUnknownChrom(t *testing.T) {
	r := buildFixture(t, 5000)
	it, err := r.GetRegion("99", 1, 100)
	if err != nil {
		t.Fatalf("GetRegion: %v", err)
	}
	if rows := collect(t, it); len(rows) != 0 {
		t.Fatalf("expected empty sequence, got %v", rows)
	}
}

func TestGetRegionEmptyWhenStartNotBeforeEnd(t *testing.T) {
	r := buildFixture(t, 5000)
	it, err := r.GetRegion("1", 5000, 1000)
	if err != nil {
		t.Fatalf("GetRegion: %v", err)
	}
	if rows := collect(t, it); len(rows) != 0 {
		t.Fatalf("expected empty sequence, got %v", rows)
	}
}

func TestGetRegionClampsStartBelowOne(t *testing.T) {
	r := buildFixture(t, 5000)
	it, err := r.GetRegion("1", -10, 1500)
	if err != nil {
		t.Fatalf("GetRegion: %v", err)
	}
	rows := collect(t, it)
	if len(rows) != 1 || rows[0].Str("ref") != "A" {
		t.Fatalf("expected the single row at pos 1000, got %+v", rows)
	}
}

func TestGetVariantExactMatch(t *testing.T) {
	r := buildFixture(t, 5000)
	row, err := r.GetVariant("1", 2000, "G", "C")
	if err != nil {
		t.Fatalf("GetVariant: %v", err)
	}
	if row == nil {
		t.Fatal("expected a match")
	}
	if pval, _ := row.Float("pval"); pval != 5e-9 {
		t.Fatalf("unexpected pval: %v", pval)
	}
}

func TestGetVariantMiss(t *testing.T) {
	r := buildFixture(t, 5000)
	row, err := r.GetVariant("1", 2000, "G", "A")
	if err != nil {
		t.Fatalf("GetVariant: %v", err)
	}
	if row != nil {
		t.Fatalf("expected nil for a mismatched allele pair, got %+v", row)
	}
}

func TestIndependentConcurrentRegionCalls(t *testing.T) {
	r := buildFixture(t, 5000)
	it1, err := r.GetRegion("1", 1, 10000)
	if err != nil {
		t.Fatalf("GetRegion: %v", err)
	}
	it2, err := r.GetRegion("2", 1, 10000)
	if err != nil {
		t.Fatalf("GetRegion: %v", err)
	}
	row1, err := it1.Next()
	if err != nil {
		t.Fatalf("it1.Next: %v", err)
	}
	row2, err := it2.Next()
	if err != nil {
		t.Fatalf("it2.Next: %v", err)
	}
	if row1.Str("chrom") != "1" || row2.Str("chrom") != "2" {
		t.Fatalf("interleaved iterators interfered with each other: %+v %+v", row1, row2)
	}
	it1.Close()
	it2.Close()
}

func TestWriteIndexedRejectsMissingChromPos(t *testing.T) {
	dir := t.TempDir()
	specs := []columns.FieldSpec{{Name: "chrom", Kind: columns.KindString, Required: true}}
	err := WriteIndexed(strings.NewReader("chrom\n1\n"), filepath.Join(dir, "a.gz"), filepath.Join(dir, "a.idx"), specs, nil, 10)
	if err == nil {
		t.Fatal("expected error when pos column is missing")
	}
}
