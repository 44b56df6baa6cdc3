// Package chrom provides the fixed chromosome order {1..22, X, Y, MT} used to
// compare genomic positions across the query engine instead of lexical order.
package chrom

import (
	"strconv"
	"strings"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/apperr"
)

// Order lists canonical chromosomes in plotting/comparison order.
var Order = buildOrder()

func buildOrder() []string {
	order := make([]string, 0, 25)
	for i := 1; i <= 22; i++ {
		order = append(order, strconv.Itoa(i))
	}
	return append(order, "X", "Y", "MT")
}

var index = buildIndex()

func buildIndex() map[string]int {
	m := make(map[string]int, len(Order))
	for i, c := range Order {
		m[c] = i
	}
	return m
}

// Canonicalize maps an input chromosome token (possibly aliased or
// chr-prefixed) to its canonical form, or returns UnknownChromosome.
func Canonicalize(raw string) (string, error) {
	c := strings.TrimSpace(raw)
	c = strings.TrimPrefix(strings.ToUpper(c), "CHR")
	switch c {
	case "23":
		c = "X"
	case "24":
		c = "Y"
	case "25", "M":
		c = "MT"
	}
	if _, ok := index[c]; !ok {
		return "", apperr.E(apperr.Op("chrom.Canonicalize"), apperr.KindUnknownChromosome,
			"not in canonical set {1..22,X,Y,MT}: "+raw)
	}
	return c, nil
}

// Index returns the position of a canonical chromosome in Order, or -1 and
// an UnknownChromosome error if it is not canonical.
func Index(canonical string) (int, error) {
	i, ok := index[canonical]
	if !ok {
		return -1, apperr.E(apperr.Op("chrom.Index"), apperr.KindUnknownChromosome, canonical)
	}
	return i, nil
}

// Less reports whether (chromA,posA) sorts strictly before (chromB,posB)
// under the canonical chromosome order.
func Less(chromA string, posA int, chromB string, posB int) bool {
	ia, aok := index[chromA]
	ib, bok := index[chromB]
	if !aok || !bok {
		return false
	}
	if ia != ib {
		return ia < ib
	}
	return posA < posB
}
