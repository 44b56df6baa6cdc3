package chrom

import "testing"

func TestCanonicalizeAliases(t *testing.T) {
	cases := map[string]string{
		"1":     "1",
		"chr1":  "1",
		"CHR1":  "1",
		"23":    "X",
		"24":    "Y",
		"25":    "MT",
		"M":     "MT",
		"chrX":  "X",
		"  Y  ": "Y",
	}
	for in, want := range cases {
		got, err := Canonicalize(in)
		if err != nil {
			t.Fatalf("Canonicalize(%q): unexpected error %v", in, err)
		}
		if got != want {
			t.Errorf("Canonicalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalizeUnknown(t *testing.T) {
	if _, err := Canonicalize("Z"); err == nil {
		t.Fatal("expected error for unknown chromosome")
	}
}

func TestOrderLength(t *testing.T) {
	if len(Order) != 25 {
		t.Fatalf("expected 25 canonical chromosomes, got %d", len(Order))
	}
	if Order[0] != "1" || Order[21] != "22" || Order[22] != "X" || Order[23] != "Y" || Order[24] != "MT" {
		t.Fatalf("unexpected order: %v", Order)
	}
}

func TestLess(t *testing.T) {
	if !Less("2", 100, "10", 1) {
		t.Fatal("chromosome 2 must sort before chromosome 10 under canonical order")
	}
	if !Less("1", 100, "1", 200) {
		t.Fatal("same chromosome must compare by position")
	}
	if Less("X", 1, "1", 1) {
		t.Fatal("X must sort after numeric chromosomes")
	}
}
