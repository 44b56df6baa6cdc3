// Package columns parses delimited variant/association tables into rows
// keyed by canonical field name, auto-detecting the delimiter and applying a
// caller-supplied alias map from raw header names to canonical fields.
package columns

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/apperr"
)

// Value is a parsed cell: exactly one of Str/Float/Null is meaningful,
// according to the Kind of the FieldSpec the cell was decoded with
// (KindInt values are held in Float).
type Value struct {
	Str   string
	Float float64
	Null  bool
}

// Kind identifies how a canonical field's raw text should be decoded.
type Kind int

const (
	KindString Kind = iota
	KindFloat
	KindInt
)

// FieldSpec describes one canonical field: its decode kind and whether a
// header must map to it for the file to be usable.
type FieldSpec struct {
	Name     string
	Kind     Kind
	Required bool
}

// Row is one parsed data row, keyed by canonical field name.
type Row map[string]Value

// Reader streams rows from a delimited byte stream.
type Reader struct {
	scanner   *bufio.Scanner
	delimiter byte
	colIndex  map[string]int // canonical field -> column index
	specs     map[string]FieldSpec
	file      string
	rowIndex  int
}

// nullTokens are values the original format treats as missing.
var nullTokens = map[string]bool{"NA": true, ".": true, "": true}

// NewReader reads the header line from r, auto-detects the delimiter among
// tab/space/comma by counting occurrences in the header, applies aliases
// (case-insensitive, raw header name -> canonical field name) and validates
// that every required field in specs is mapped.
func NewReader(r io.Reader, file string, specs []FieldSpec, aliases map[string]string) (*Reader, error) {
	const op = apperr.Op("columns.NewReader")

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, apperr.WrapMsg(op, "reading header", err)
		}
		return nil, apperr.E(op, apperr.KindMissingRequiredField, "empty file: "+file)
	}

	delim, colIndex, specByName, missing := BuildColumnIndex(scanner.Text(), specs, aliases)
	if len(missing) > 0 {
		return nil, apperr.E(op, apperr.KindMissingRequiredField,
			fmt.Sprintf("header %s (aliases %v) does not map required fields %v", scanner.Text(), aliases, missing))
	}

	return &Reader{
		scanner:   scanner,
		delimiter: delim,
		colIndex:  colIndex,
		specs:     specByName,
		file:      file,
	}, nil
}

// BuildColumnIndex auto-detects the delimiter in header and maps its fields
// (after alias substitution) to the canonical fields named in specs. It is
// exported so readers that obtain their header out-of-band (e.g. from the
// start of an indexed file, separately from the data rows they fetch) can
// share the exact same header-mapping contract as NewReader.
func BuildColumnIndex(header string, specs []FieldSpec, aliases map[string]string) (delim byte, colIndex map[string]int, specByName map[string]FieldSpec, missing []string) {
	delim = detectDelimiter(header)
	rawFields := strings.Split(header, string(delim))

	specByName = make(map[string]FieldSpec, len(specs))
	for _, s := range specs {
		specByName[s.Name] = s
	}

	normalizedAliases := make(map[string]string, len(aliases))
	for k, v := range aliases {
		normalizedAliases[strings.ToLower(k)] = strings.ToLower(v)
	}

	colIndex = make(map[string]int, len(rawFields))
	for i, raw := range rawFields {
		name := strings.ToLower(strings.TrimSpace(raw))
		name = strings.TrimPrefix(name, "#")
		if canon, ok := normalizedAliases[name]; ok {
			name = canon
		}
		if _, known := specByName[name]; known {
			colIndex[name] = i
		}
	}

	for _, s := range specs {
		if !s.Required {
			continue
		}
		if _, ok := colIndex[s.Name]; !ok {
			missing = append(missing, s.Name)
		}
	}
	return delim, colIndex, specByName, missing
}

// detectDelimiter counts tabs, commas, and spaces in the header and picks
// whichever is most frequent, defaulting to tab.
func detectDelimiter(header string) byte {
	tabs := strings.Count(header, "\t")
	commas := strings.Count(header, ",")
	spaces := strings.Count(header, " ")
	best := byte('\t')
	bestCount := tabs
	if commas > bestCount {
		best, bestCount = ',', commas
	}
	if spaces > bestCount {
		best = ' '
	}
	return best
}

// Next returns the next parsed row, or io.EOF when the stream is exhausted.
// A row too short to hold every mapped column fails with MalformedRow; a
// row's field count is not otherwise compared with the header, so extra
// cells, or missing cells past the last mapped column, are not reported.
// A cell that cannot be parsed into its field's Kind fails with FieldParseError.
func (r *Reader) Next() (Row, error) {
	const op = apperr.Op("columns.Next")
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, apperr.WrapMsg(op, "scanning row", err)
		}
		return nil, io.EOF
	}
	r.rowIndex++
	cells := strings.Split(r.scanner.Text(), string(r.delimiter))
	return ParseRow(cells, r.colIndex, r.specs, r.file, r.rowIndex)
}

// ParseRow decodes one already-split row into a Row keyed by canonical
// field name, using colIndex (canonical field -> column position) and specs
// (canonical field -> decode kind). It is shared by Reader.Next and by
// readers that locate rows some other way (e.g. an indexed region fetch)
// but still need the same short-row/null/parse-failure contract.
func ParseRow(cells []string, colIndex map[string]int, specs map[string]FieldSpec, file string, rowIndex int) (Row, error) {
	const op = apperr.Op("columns.ParseRow")
	row := make(Row, len(colIndex))
	for name, idx := range colIndex {
		if idx >= len(cells) {
			return nil, apperr.E(op, apperr.KindMalformedRow,
				fmt.Sprintf("file %s row %d: expected at least %d columns, got %d", file, rowIndex, idx+1, len(cells)))
		}
		spec := specs[name]
		raw := cells[idx]
		v, err := parseCell(spec, raw)
		if err != nil {
			return nil, apperr.E(op, apperr.KindFieldParseError,
				fmt.Sprintf("file %s row %d field %s value %q: %v", file, rowIndex, name, raw, err))
		}
		row[name] = v
	}
	return row, nil
}

func parseCell(spec FieldSpec, raw string) (Value, error) {
	trimmed := strings.TrimSpace(raw)
	switch spec.Kind {
	case KindString:
		if nullTokens[trimmed] && spec.Kind == KindString && trimmed == "" {
			return Value{Null: true}, nil
		}
		return Value{Str: trimmed}, nil
	case KindFloat:
		if nullTokens[trimmed] {
			return Value{Null: true}, nil
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return Value{}, err
		}
		return Value{Float: f}, nil
	case KindInt:
		if nullTokens[trimmed] {
			return Value{Null: true}, nil
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return Value{}, err
		}
		return Value{Float: f}, nil
	default:
		return Value{Str: trimmed}, nil
	}
}

// Str returns the row's string value for field, or "" if null/absent.
func (row Row) Str(field string) string {
	v, ok := row[field]
	if !ok || v.Null {
		return ""
	}
	return v.Str
}

// Float returns the row's float value for field and whether it was present
// and non-null.
func (row Row) Float(field string) (float64, bool) {
	v, ok := row[field]
	if !ok || v.Null {
		return 0, false
	}
	return v.Float, true
}
