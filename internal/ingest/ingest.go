// =============================================================================
// Billing Status Reconciler - Ingestion Module
// =============================================================================
//
// This module reads the raw feed exports. It handles:
//   - An ordered list of text encodings, tried until one decodes cleanly
//   - Delimited text parsed into header -> value rows
//   - Workbook (.xlsx) exports, read from their first sheet
//   - Concatenation of several files of the same feed with header union
//
// NULL VALUES:
//   A row only holds the columns its own file had. When files with different
//   header sets are concatenated, a header missing from a row's map reads as
//   null, which later stages treat differently from an empty string.
//
// =============================================================================

package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// =============================================================================
// TABLE STRUCTURE
// =============================================================================

// Row maps a header to its value. Absent headers are null.
type Row map[string]string

// Get returns the value for header and whether it is non-null.
func (r Row) Get(header string) (string, bool) {
	v, ok := r[header]
	return v, ok
}

// Table is a parsed feed: ordered headers plus rows.
type Table struct {
	// Headers is the ordered union of every source's headers.
	Headers []string

	// Rows holds the data rows in source order.
	Rows []Row

	// Sources names the files that contributed rows.
	Sources []string
}

// HasHeader reports whether header is part of the table.
func (t *Table) HasHeader(header string) bool {
	for _, h := range t.Headers {
		if h == header {
			return true
		}
	}
	return false
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// =============================================================================
// SOURCES AND OPTIONS
// =============================================================================

// Source is one uploaded file.
type Source struct {
	Name string
	Data []byte
}

// ReadFile loads a source from disk.
func ReadFile(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Source{Name: path, Data: data}, nil
}

// Options controls parsing.
type Options struct {
	// Encodings is the ordered fallback list.
	Encodings []string

	// Delimiter is the field separator. Default: ","
	Delimiter string
}

// DecodeError reports that no tried encoding produced a parseable table.
type DecodeError struct {
	Source string
	Tried  []string
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: could not decode with any of [%s]: %v",
		filepath.Base(e.Source), strings.Join(e.Tried, ", "), e.Err)
}

// Unwrap returns the error of the last attempt.
func (e *DecodeError) Unwrap() error { return e.Err }

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Parse decodes and parses a single source.
//
// PARAMETERS:
//   - src: The file name and raw bytes.
//   - opts: Encoding fallback order and delimiter.
//
// RETURNS:
//   - The parsed table.
//   - The name of the encoding that succeeded ("xlsx" for workbooks).
//   - A *DecodeError when every encoding fails to decode or parse.
func Parse(src Source, opts Options) (*Table, string, error) {
	if isWorkbook(src.Name) {
		table, err := parseWorkbook(src)
		if err != nil {
			return nil, "", &DecodeError{Source: src.Name, Tried: []string{"xlsx"}, Err: err}
		}
		return table, "xlsx", nil
	}

	if len(opts.Encodings) == 0 {
		return nil, "", &DecodeError{Source: src.Name, Err: errors.New("no encodings configured")}
	}

	var lastErr error
	for _, name := range opts.Encodings {
		text, err := Decode(src.Data, name)
		if err != nil {
			lastErr = err
			continue
		}
		table, err := parseDelimited(text, src.Name, opts.Delimiter)
		if err != nil {
			lastErr = err
			continue
		}
		return table, name, nil
	}

	return nil, "", &DecodeError{Source: src.Name, Tried: opts.Encodings, Err: lastErr}
}

// Load parses every source and concatenates the ones that succeed. Sources
// that fail are reported individually and do not stop the others.
func Load(sources []Source, opts Options) (*Table, []*DecodeError) {
	var (
		tables []*Table
		failed []*DecodeError
	)

	for _, src := range sources {
		table, _, err := Parse(src, opts)
		if err != nil {
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				failed = append(failed, decodeErr)
			} else {
				failed = append(failed, &DecodeError{Source: src.Name, Tried: opts.Encodings, Err: err})
			}
			continue
		}
		tables = append(tables, table)
	}

	if len(tables) == 0 {
		return nil, failed
	}
	return Concat(tables...), failed
}

// Concat joins tables of the same feed. Headers are unioned in
// first-appearance order; rows keep only their own columns.
func Concat(tables ...*Table) *Table {
	out := &Table{}
	seen := make(map[string]bool)

	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, h := range t.Headers {
			if !seen[h] {
				seen[h] = true
				out.Headers = append(out.Headers, h)
			}
		}
		out.Rows = append(out.Rows, t.Rows...)
		out.Sources = append(out.Sources, t.Sources...)
	}

	return out
}

// parseDelimited parses decoded text into a table.
func parseDelimited(text, name, delimiter string) (*Table, error) {
	reader := csv.NewReader(strings.NewReader(text))
	configureReader(reader, delimiter)

	allRows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(allRows) == 0 {
		return nil, errors.New("file is empty")
	}

	return buildTable(name, allRows), nil
}

// configureReader configures the CSV reader based on the delimiter.
func configureReader(reader *csv.Reader, delimiter string) {
	switch delimiter {
	case "\\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	default:
		if r := []rune(delimiter); len(r) > 0 {
			reader.Comma = r[0]
		} else {
			reader.Comma = ','
		}
	}

	// Allow variable number of fields per row; short rows leave nulls.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
}

// buildTable turns raw records (header first) into a table.
func buildTable(name string, records [][]string) *Table {
	headers := uniqueHeaders(records[0])
	table := &Table{
		Headers: headers,
		Rows:    make([]Row, 0, len(records)-1),
		Sources: []string{name},
	}

	for _, record := range records[1:] {
		if isRowEmpty(record) {
			continue
		}
		row := make(Row, len(headers))
		for i, header := range headers {
			if i < len(record) {
				row[header] = record[i]
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table
}

// uniqueHeaders names blank headers and disambiguates duplicates.
func uniqueHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for i, h := range raw {
		if strings.TrimSpace(h) == "" {
			h = fmt.Sprintf("Column_%d", i+1)
		}
		if n := seen[h]; n > 0 {
			seen[h] = n + 1
			h = fmt.Sprintf("%s.%d", h, n)
		} else {
			seen[h] = 1
		}
		headers[i] = h
	}

	return headers
}

// isRowEmpty checks if a row contains only empty values.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// WORKBOOK INPUT
// =============================================================================

func isWorkbook(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xlsx")
}

// parseWorkbook reads the first sheet of an .xlsx export. Cells are read
// unformatted so amounts keep their full value; date-formatted cells are
// converted from Excel serial numbers to "2006/01/02" text.
func parseWorkbook(src Source) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(src.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, errors.New("first sheet is empty")
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	for r, row := range rows {
		for c, value := range row {
			serial, err := strconv.ParseFloat(value, 64)
			if err != nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil || !isDateCell(f, sheet, cell) {
				continue
			}
			t, err := excelize.ExcelDateToTime(serial, date1904)
			if err != nil {
				continue
			}
			row[c] = formatCellTime(t)
		}
	}

	return buildTable(src.Name, rows), nil
}

// builtinDateFormats are the built-in number format ids that render dates.
var builtinDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true,
	34: true, 35: true, 36: true,
	50: true, 51: true, 52: true, 53: true, 54: true, 55: true, 56: true, 57: true, 58: true,
}

// isDateCell reports whether the cell's number format displays a date.
func isDateCell(f *excelize.File, sheet, cell string) bool {
	idx, err := f.GetCellStyle(sheet, cell)
	if err != nil || idx == 0 {
		return false
	}
	style, err := f.GetStyle(idx)
	if err != nil || style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		return isDateFormatCode(*style.CustomNumFmt)
	}
	return builtinDateFormats[style.NumFmt]
}

// isDateFormatCode reports whether a custom format code has year or day
// tokens once literals, escapes and bracketed sections are removed.
func isDateFormatCode(code string) bool {
	var b strings.Builder
	quoted, bracket, escaped := false, false, false
	for _, r := range code {
		switch {
		case escaped:
			escaped = false
		case quoted:
			quoted = r != '"'
		case bracket:
			bracket = r != ']'
		case r == '\\' || r == '_' || r == '*':
			escaped = true
		case r == '"':
			quoted = true
		case r == '[':
			bracket = true
		default:
			b.WriteRune(r)
		}
	}
	return strings.ContainsAny(strings.ToLower(b.String()), "yd")
}

// formatCellTime renders a workbook date in a layout the feed parsers accept.
func formatCellTime(t time.Time) string {
	t = t.Round(time.Second)
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006/01/02")
	}
	return t.Format("2006/01/02 15:04:05")
}
