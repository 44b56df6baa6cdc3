package sumstats

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"testing"
)

const fixture = "chrom\tpos\tref\talt\taf\tpval\n" +
	"1\t100\tA\tT\t0.1\t0.01\n" +
	"1\t200\tAT\tA\t0.9\t0.02\n" +
	"1\t300\tG\tC\t0.5\t0.03\n"

func TestUnfilteredAppendsMafWithoutDropping(t *testing.T) {
	var out bytes.Buffer
	err := WriteSumstats(&out, strings.NewReader(fixture), DefaultFilterOptions(), false, 0, nil)
	if err != nil {
		t.Fatalf("WriteSumstats: %v", err)
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %d lines: %v", len(lines), lines)
	}
	if lines[0] != "chrom\tpos\tref\talt\taf\tpval\tmaf" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	cells := strings.Split(lines[2], "\t")
	maf, err := strconv.ParseFloat(cells[len(cells)-1], 64)
	if err != nil || math.Abs(maf-0.1) > 1e-9 {
		t.Fatalf("expected maf=0.1 for af=0.9 (folded), got %q", lines[2])
	}
}

func TestFilteredDropsOutsideMafBounds(t *testing.T) {
	var out bytes.Buffer
	// rows 1 and 2 fold to maf=0.1 (excluded by min), row 3 has maf=0.5.
	opts := FilterOptions{Indel: "both", MinMAF: 0.2, MaxMAF: 0.6}
	if err := WriteSumstats(&out, strings.NewReader(fixture), opts, false, 0, nil); err != nil {
		t.Fatalf("WriteSumstats: %v", err)
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %v", lines)
	}
	if !strings.HasPrefix(lines[1], "1\t300") {
		t.Fatalf("expected only the maf=0.5 row to survive, got %q", lines[1])
	}
}

func TestFilteredIndelOnly(t *testing.T) {
	var out bytes.Buffer
	opts := FilterOptions{Indel: "true", MinMAF: 0.0, MaxMAF: 0.5}
	if err := WriteSumstats(&out, strings.NewReader(fixture), opts, false, 0, nil); err != nil {
		t.Fatalf("WriteSumstats: %v", err)
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "1\t200") {
		t.Fatalf("expected only the AT/A indel row to survive, got %v", lines)
	}
}

func TestFlushCalledPerChunk(t *testing.T) {
	var out bytes.Buffer
	calls := 0
	err := WriteSumstats(&out, strings.NewReader(fixture), DefaultFilterOptions(), false, 1, func() { calls++ })
	if err != nil {
		t.Fatalf("WriteSumstats: %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected a flush per row (3) plus the final flush, got %d", calls)
	}
}

func TestPvalIsNegLog10InvertsPvalColumn(t *testing.T) {
	var out bytes.Buffer
	err := WriteSumstats(&out, strings.NewReader(fixture), DefaultFilterOptions(), true, 0, nil)
	if err != nil {
		t.Fatalf("WriteSumstats: %v", err)
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %d lines: %v", len(lines), lines)
	}
	// row 1 has pval=0.01, stored as -log10(p); inverted back it should
	// read 10^-0.01 ~= 0.9772.
	fields := strings.Split(lines[1], "\t")
	got, parseErr := strconv.ParseFloat(fields[5], 64)
	if parseErr != nil {
		t.Fatalf("pval cell not a float: %q", fields[5])
	}
	want := math.Pow(10, -0.01)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected inverted pval %v, got %v", want, got)
	}
}

func TestPvalIsNegLog10MissingColumnErrors(t *testing.T) {
	var out bytes.Buffer
	noPval := "chrom\tpos\tref\talt\taf\n1\t100\tA\tT\t0.1\n"
	if err := WriteSumstats(&out, strings.NewReader(noPval), DefaultFilterOptions(), true, 0, nil); err == nil {
		t.Fatal("expected error when pvalIsNegLog10 is set but no pval column exists")
	}
}

func TestPvalIsNegLog10UnparseableValueErrors(t *testing.T) {
	var out bytes.Buffer
	bad := "chrom\tpos\tref\talt\taf\tpval\n1\t100\tA\tT\t0.1\tnot-a-number\n"
	if err := WriteSumstats(&out, strings.NewReader(bad), DefaultFilterOptions(), true, 0, nil); err == nil {
		t.Fatal("expected error for unparseable pval cell")
	}
}

func TestAttachmentFilename(t *testing.T) {
	if got := AttachmentFilename("C50", DefaultFilterOptions()); got != "C50.txt" {
		t.Fatalf("unexpected unfiltered filename: %q", got)
	}
	filtered := FilterOptions{Indel: "true", MinMAF: 0, MaxMAF: 0.5}
	if got := AttachmentFilename("C50", filtered); got != "filtered-C50.txt" {
		t.Fatalf("unexpected filtered filename: %q", got)
	}
}
