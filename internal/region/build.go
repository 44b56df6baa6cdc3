package region

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/apperr"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/chrom"
	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/columns"
	"github.com/klauspost/pgzip"
)

// DefaultRowsPerBlock bounds how many rows a single gzip member holds. A
// block is also closed early whenever the chromosome changes, so a block
// never spans more than one chromosome.
const DefaultRowsPerBlock = 5000

// WriteIndexed compresses src (a header line followed by chrom-then-pos
// sorted data rows) into compressedPath as a sequence of independent gzip
// blocks, and writes the corresponding sidecar index to indexPath. It is an
// offline preparation step, not part of the serving path.
func WriteIndexed(src io.Reader, compressedPath, indexPath string, specs []columns.FieldSpec, aliases map[string]string, rowsPerBlock int) error {
	const op = apperr.Op("region.WriteIndexed")
	if rowsPerBlock <= 0 {
		rowsPerBlock = DefaultRowsPerBlock
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		return apperr.E(op, apperr.KindMissingRequiredField, "empty source stream")
	}
	header := scanner.Text()
	delim, colIndex, _, missing := columns.BuildColumnIndex(header, specs, aliases)
	if len(missing) > 0 {
		return apperr.E(op, apperr.KindMissingRequiredField, "header does not map required fields: "+strings.Join(missing, ","))
	}
	chromIdx, hasChrom := colIndex["chrom"]
	posIdx, hasPos := colIndex["pos"]
	if !hasChrom || !hasPos {
		return apperr.E(op, apperr.KindMissingRequiredField, "region index requires chrom and pos columns")
	}

	out, err := os.Create(compressedPath)
	if err != nil {
		return apperr.WrapMsg(op, "creating compressed output", err)
	}
	defer out.Close()

	idx := &Index{Header: header, ChromBlocks: make(map[string][]Block)}

	var (
		blockWriter *pgzip.Writer
		blockOffset int64
		blockChrom  string
		blockFirst  int
		blockLast   int
		blockRows   int
	)

	closeBlock := func() error {
		if blockWriter == nil {
			return nil
		}
		if err := blockWriter.Close(); err != nil {
			return err
		}
		idx.ChromBlocks[blockChrom] = append(idx.ChromBlocks[blockChrom], Block{
			Offset:   blockOffset,
			FirstPos: blockFirst,
			LastPos:  blockLast,
		})
		blockWriter = nil
		blockRows = 0
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		cells := strings.Split(line, string(delim))
		if chromIdx >= len(cells) || posIdx >= len(cells) {
			_ = closeBlock()
			return apperr.E(op, apperr.KindMalformedRow, "row narrower than header: "+line)
		}
		canon, err := chrom.Canonicalize(cells[chromIdx])
		if err != nil {
			_ = closeBlock()
			return apperr.Wrap(op, err)
		}
		pos, err := strconv.Atoi(strings.TrimSpace(cells[posIdx]))
		if err != nil {
			_ = closeBlock()
			return apperr.E(op, apperr.KindFieldParseError, "non-integer pos: "+cells[posIdx])
		}

		if blockWriter == nil || canon != blockChrom || blockRows >= rowsPerBlock {
			if err := closeBlock(); err != nil {
				return apperr.WrapMsg(op, "closing block", err)
			}
			pos64, err := out.Seek(0, io.SeekCurrent)
			if err != nil {
				return apperr.WrapMsg(op, "seeking output", err)
			}
			blockOffset = pos64
			blockChrom = canon
			blockFirst = pos
			blockWriter = pgzip.NewWriter(out)
		}

		if _, err := blockWriter.Write([]byte(line + "\n")); err != nil {
			return apperr.WrapMsg(op, "writing block", err)
		}
		blockLast = pos
		blockRows++
	}
	if err := scanner.Err(); err != nil {
		return apperr.WrapMsg(op, "scanning source", err)
	}
	if err := closeBlock(); err != nil {
		return apperr.WrapMsg(op, "closing final block", err)
	}

	for _, blocks := range idx.ChromBlocks {
		sort.Slice(blocks, func(i, j int) bool { return blocks[i].FirstPos < blocks[j].FirstPos })
	}
	return idx.save(indexPath)
}
