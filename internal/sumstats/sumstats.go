// Package sumstats streams a phenotype's full summary-statistics file back
// to a caller, optionally filtered by minor allele frequency and indel
// status, without ever materializing the whole file in memory.
package sumstats

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/apperr"
)

// DefaultChunkRows is how often WriteSumstats invokes its flush callback.
const DefaultChunkRows = 1_000_000

// FilterOptions controls which rows are emitted. Indel is one of
// "both", "true" (indels only), "false" (SNVs only).
type FilterOptions struct {
	Indel  string
	MinMAF float64
	MaxMAF float64
}

// DefaultFilterOptions returns the no-op filter: every row passes.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{Indel: "both", MinMAF: 0.0, MaxMAF: 0.5}
}

// Unfiltered reports whether opts is the no-op filter, in which case rows
// are emitted unconditionally (only a maf column is appended) rather than
// tested against the MAF bounds.
func (f FilterOptions) Unfiltered() bool {
	return f.Indel == "both" && f.MinMAF == 0.0 && f.MaxMAF == 0.5
}

// WriteSumstats reads a header line followed by tab-delimited data rows
// from src, appends a derived maf column (maf = min(af, 1-af)) to each, and
// writes the result to w. When opts is not the no-op filter, rows are kept
// only if min_maf < maf < max_maf and they match opts.Indel. When
// pvalIsNegLog10 is set, the file's pval column stores -log10(p) rather
// than p itself; each row's pval cell is rewritten to the real probability
// before it is written out. flush, if non-nil, is called after each written
// row whose input row number is a multiple of chunkRows (chunkRows <= 0
// uses DefaultChunkRows), and once more after the last row, so an HTTP
// handler can flush a chunked response as it goes instead of buffering the
// whole payload.
func WriteSumstats(w io.Writer, src io.Reader, opts FilterOptions, pvalIsNegLog10 bool, chunkRows int, flush func()) error {
	const op = apperr.Op("sumstats.WriteSumstats")
	if chunkRows <= 0 {
		chunkRows = DefaultChunkRows
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return apperr.WrapMsg(op, "reading header", err)
		}
		return apperr.E(op, apperr.KindMissingRequiredField, "empty sumstats file")
	}
	header := scanner.Text()
	fields := strings.Split(header, "\t")
	afIdx, refIdx, altIdx, pvalIdx := -1, -1, -1, -1
	for i, f := range fields {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "af":
			afIdx = i
		case "ref":
			refIdx = i
		case "alt":
			altIdx = i
		case "pval":
			pvalIdx = i
		}
	}
	if afIdx < 0 {
		return apperr.E(op, apperr.KindMissingRequiredField, "sumstats header missing af column")
	}
	if pvalIsNegLog10 && pvalIdx < 0 {
		return apperr.E(op, apperr.KindMissingRequiredField, "sumstats header missing pval column required to invert -log10(p)")
	}

	unfiltered := opts.Unfiltered()
	needsAlleles := !unfiltered && opts.Indel != "both"
	if needsAlleles && (refIdx < 0 || altIdx < 0) {
		return apperr.E(op, apperr.KindMissingRequiredField, "sumstats header missing ref/alt columns required for indel filtering")
	}

	if _, err := io.WriteString(w, header+"\tmaf\n"); err != nil {
		return apperr.WrapMsg(op, "writing header", err)
	}

	rowIdx := 0
	for scanner.Scan() {
		rowIdx++
		line := scanner.Text()
		cells := strings.Split(line, "\t")
		if afIdx >= len(cells) {
			return apperr.E(op, apperr.KindMalformedRow, fmt.Sprintf("row %d: missing af column", rowIdx))
		}
		af, err := strconv.ParseFloat(strings.TrimSpace(cells[afIdx]), 64)
		if err != nil {
			return apperr.E(op, apperr.KindFieldParseError, fmt.Sprintf("row %d: af=%q: %v", rowIdx, cells[afIdx], err))
		}
		maf := af
		if af > 0.5 {
			maf = 1 - af
		}

		if !unfiltered {
			if !(maf > opts.MinMAF && maf < opts.MaxMAF) {
				continue
			}
			if needsAlleles {
				isIndel := len(cells[refIdx]) != 1 || len(cells[altIdx]) != 1
				if opts.Indel == "true" && !isIndel {
					continue
				}
				if opts.Indel == "false" && isIndel {
					continue
				}
			}
		}

		if pvalIsNegLog10 {
			if pvalIdx >= len(cells) {
				return apperr.E(op, apperr.KindMalformedRow, fmt.Sprintf("row %d: missing pval column", rowIdx))
			}
			neglog10, err := strconv.ParseFloat(strings.TrimSpace(cells[pvalIdx]), 64)
			if err != nil {
				return apperr.E(op, apperr.KindFieldParseError, fmt.Sprintf("row %d: pval=%q: %v", rowIdx, cells[pvalIdx], err))
			}
			cells[pvalIdx] = strconv.FormatFloat(math.Pow(10, -neglog10), 'g', -1, 64)
			line = strings.Join(cells, "\t")
		}

		if _, err := io.WriteString(w, line+"\t"+strconv.FormatFloat(maf, 'g', -1, 64)+"\n"); err != nil {
			return apperr.WrapMsg(op, "writing row", err)
		}
		if flush != nil && rowIdx%chunkRows == 0 {
			flush()
		}
	}
	if err := scanner.Err(); err != nil {
		return apperr.WrapMsg(op, "scanning sumstats", err)
	}
	if flush != nil {
		flush()
	}
	return nil
}

// AttachmentFilename returns the Content-Disposition filename for opts,
// matching the convention that a filtered download is marked as such.
func AttachmentFilename(phenocode string, opts FilterOptions) string {
	if opts.Unfiltered() {
		return phenocode + ".txt"
	}
	return "filtered-" + phenocode + ".txt"
}
