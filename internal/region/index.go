// Package region provides random-access reads over block-compressed,
// position-sorted variant tables: LocusZoom slices and single-variant
// lookups without decompressing a whole chromosome.
//
// A region file is a sequence of independent gzip members ("blocks"), each
// holding the rows for one contiguous run of positions on one chromosome.
// Because each block is a self-contained gzip stream, a reader can seek
// straight to a block's byte offset and decompress from there without
// touching anything before it. The adjacent index records, per
// chromosome, each block's offset and the position span it covers.
package region

import (
	"encoding/gob"
	"os"
	"sort"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/apperr"
)

// Block is one independently-decompressible gzip member.
type Block struct {
	Offset   int64
	FirstPos int
	LastPos  int
}

// Index is the adjacent sidecar describing a region file's block layout.
// Header is the original column header line, stored once here rather than
// repeated at the start of the compressed data.
type Index struct {
	Header      string
	ChromBlocks map[string][]Block
}

// LoadIndex reads a sidecar index written by WriteIndexed.
func LoadIndex(path string) (*Index, error) {
	const op = apperr.Op("region.LoadIndex")
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.WrapMsg(op, "opening index", err)
	}
	defer f.Close()

	var idx Index
	if err := gob.NewDecoder(f).Decode(&idx); err != nil {
		return nil, apperr.WrapMsg(op, "decoding index", err)
	}
	return &idx, nil
}

func (idx *Index) save(path string) error {
	const op = apperr.Op("region.saveIndex")
	f, err := os.Create(path)
	if err != nil {
		return apperr.WrapMsg(op, "creating index", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(idx); err != nil {
		return apperr.WrapMsg(op, "encoding index", err)
	}
	return nil
}

// blocksOverlapping returns the index's blocks for chrom that might contain
// a row with pos in [start,end), in ascending FirstPos order.
func (idx *Index) blocksOverlapping(chrom string, start, end int) []Block {
	all, ok := idx.ChromBlocks[chrom]
	if !ok {
		return nil
	}
	first := sort.Search(len(all), func(i int) bool { return all[i].LastPos >= start })
	var out []Block
	for i := first; i < len(all) && all[i].FirstPos < end; i++ {
		out = append(out, all[i])
	}
	return out
}
