package region

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/apperr"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/chrom"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/columns"
	"github.com/klauspost/compress/gzip"
)

// Reader serves region and single-variant queries against one block-
// compressed file and its adjacent index.
type Reader struct {
	path     string
	index    *Index
	delim    byte
	colIndex map[string]int
	specs    map[string]columns.FieldSpec
	posField string
}

// Open loads the sidecar index and parses the stored header against specs,
// ready to serve GetRegion/GetVariant. The compressed file itself is opened
// fresh on every query, so concurrent and successive calls never share
// file-position state.
func Open(compressedPath, indexPath string, specs []columns.FieldSpec, aliases map[string]string) (*Reader, error) {
	const op = apperr.Op("region.Open")
	idx, err := LoadIndex(indexPath)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	delim, colIndex, specByName, missing := columns.BuildColumnIndex(idx.Header, specs, aliases)
	if len(missing) > 0 {
		return nil, apperr.E(op, apperr.KindMissingRequiredField, "indexed header missing required fields")
	}
	if _, ok := colIndex["pos"]; !ok {
		return nil, apperr.E(op, apperr.KindMissingRequiredField, "indexed header missing pos field")
	}
	return &Reader{
		path:     compressedPath,
		index:    idx,
		delim:    delim,
		colIndex: colIndex,
		specs:    specByName,
		posField: "pos",
	}, nil
}

// Iter is a lazy, forward-only sequence of rows produced by GetRegion.
type Iter struct {
	r       *Reader
	file    *os.File
	gz      *gzip.Reader
	scanner *bufio.Scanner
	blocks  []Block
	next    int
	start   int
	end     int
	rowIdx  int
	done    bool
}

// Close releases the underlying file handle. Safe to call more than once.
func (it *Iter) Close() error {
	if it.gz != nil {
		it.gz.Close()
		it.gz = nil
	}
	if it.file != nil {
		err := it.file.Close()
		it.file = nil
		return err
	}
	return nil
}

func emptyIter() *Iter { return &Iter{done: true} }

// GetRegion returns the rows with chrom == chrom and pos in [start,end).
// start is clamped to >= 1; an empty sequence (not an error) is returned
// when start >= end or chrom is not present in the index.
func (r *Reader) GetRegion(chromName string, start, end int) (*Iter, error) {
	const op = apperr.Op("region.GetRegion")
	if start < 1 {
		start = 1
	}
	if start >= end {
		return emptyIter(), nil
	}
	canon, err := chrom.Canonicalize(chromName)
	if err != nil {
		return emptyIter(), nil
	}
	blocks := r.index.blocksOverlapping(canon, start, end)
	if len(blocks) == 0 {
		return emptyIter(), nil
	}

	f, err := os.Open(r.path)
	if err != nil {
		return nil, apperr.E(op, apperr.KindRegionReadError, apperr.WrapMsg(op, "opening region file", err))
	}
	it := &Iter{r: r, file: f, blocks: blocks, start: start, end: end}
	if err := it.openBlock(blocks[0]); err != nil {
		f.Close()
		return nil, apperr.E(op, apperr.KindRegionReadError, err.Error())
	}
	it.next = 1
	return it, nil
}

func (it *Iter) openBlock(b Block) error {
	if it.gz != nil {
		it.gz.Close()
	}
	if _, err := it.file.Seek(b.Offset, io.SeekStart); err != nil {
		return err
	}
	gz, err := gzip.NewReader(it.file)
	if err != nil {
		return err
	}
	it.gz = gz
	it.scanner = bufio.NewScanner(gz)
	it.scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return nil
}

// Next returns the next row in [start,end), or io.EOF when exhausted.
func (it *Iter) Next() (columns.Row, error) {
	const op = apperr.Op("region.Next")
	cells, _, err := it.nextCells()
	if err != nil {
		return nil, err
	}
	row, err := columns.ParseRow(cells, it.r.colIndex, it.r.specs, it.r.path, it.rowIdx)
	if err != nil {
		it.done = true
		return nil, apperr.Wrap(op, err)
	}
	return row, nil
}

// NextRaw returns the next row's tab-split cells in [start,end) without
// decoding them against a fixed field schema, for callers (such as the
// phewas matrix reader) that need access to columns not named in any
// FieldSpec, e.g. per-phenotype "@"-qualified stat columns.
func (it *Iter) NextRaw() ([]string, error) {
	cells, _, err := it.nextCells()
	return cells, err
}

// RawHeader returns the indexed file's header line split on its delimiter.
func (r *Reader) RawHeader() []string {
	return strings.Split(r.index.Header, string(r.delim))
}

func (it *Iter) nextCells() ([]string, int, error) {
	const op = apperr.Op("region.nextCells")
	if it.done {
		return nil, 0, io.EOF
	}
	for {
		if !it.scanner.Scan() {
			if err := it.scanner.Err(); err != nil {
				it.done = true
				return nil, 0, apperr.WrapMsg(op, "scanning block", err)
			}
			if it.next >= len(it.blocks) {
				it.done = true
				return nil, 0, io.EOF
			}
			if err := it.openBlock(it.blocks[it.next]); err != nil {
				it.done = true
				return nil, 0, apperr.WrapMsg(op, "opening next block", err)
			}
			it.next++
			continue
		}
		it.rowIdx++
		cells := strings.Split(it.scanner.Text(), string(it.r.delim))
		posIdx, ok := it.r.colIndex[it.r.posField]
		if !ok || posIdx >= len(cells) {
			it.done = true
			return nil, 0, apperr.E(op, apperr.KindFieldParseError, "row missing pos")
		}
		pos, err := strconv.Atoi(strings.TrimSpace(cells[posIdx]))
		if err != nil {
			it.done = true
			return nil, 0, apperr.E(op, apperr.KindFieldParseError, "non-integer pos: "+cells[posIdx])
		}
		if pos < it.start {
			continue
		}
		if pos >= it.end {
			it.done = true
			return nil, 0, io.EOF
		}
		return cells, pos, nil
	}
}

// GetVariant looks up the exact (chrom,pos,ref,alt) record, returning
// (nil, nil) on a lookup miss.
func (r *Reader) GetVariant(chromName string, pos int, ref, alt string) (columns.Row, error) {
	const op = apperr.Op("region.GetVariant")
	it, err := r.GetRegion(chromName, pos, pos+1)
	if err != nil {
		return nil, apperr.Wrap(op, err)
	}
	defer it.Close()
	for {
		row, err := it.Next()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, apperr.Wrap(op, err)
		}
		if row.Str("ref") == ref && row.Str("alt") == alt {
			return row, nil
		}
	}
}
