// Package csvio reads survey exports into datasets and writes results
// back out. It is a thin wrapper around encoding/csv that absorbs the
// quirks of real exports: UTF-8 BOMs, invalid byte sequences, preamble
// rows above the header, and the two metadata rows Qualtrics inserts
// under it (question text and ImportId JSON).
package csvio

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/qualprep/qualprep/internal/dataset"
)

// MaxHeaderSearchRows limits how far down the file we look for the
// header row when HeaderHint is set.
const MaxHeaderSearchRows = 10

// ReadOptions controls how an export file is turned into a Dataset.
type ReadOptions struct {
	// Comma is the field delimiter (default ',').
	Comma rune

	// HeaderHint, when non-empty, names columns that must appear in
	// the header row. Rows above the first match are treated as
	// preamble and skipped.
	HeaderHint []string

	// DropQualtricsMeta removes the question-text and ImportId rows
	// that Qualtrics places directly under the header.
	DropQualtricsMeta bool

	// MaxBytes rejects files larger than this many bytes (0 = no limit).
	MaxBytes int64
}

// Read loads a CSV file into a Dataset.
func Read(path string, opts ReadOptions) (*dataset.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if opts.MaxBytes > 0 {
		info, err := f.Stat()
		if err == nil && info.Size() > opts.MaxBytes {
			return nil, fmt.Errorf("%s is %d bytes, limit is %d", path, info.Size(), opts.MaxBytes)
		}
	}

	d, err := ReadFrom(f, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return d, nil
}

// ReadFrom loads CSV data from a reader into a Dataset.
func ReadFrom(r io.Reader, opts ReadOptions) (*dataset.Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if opts.MaxBytes > 0 && int64(len(data)) > opts.MaxBytes {
		return nil, fmt.Errorf("input is %d bytes, limit is %d", len(data), opts.MaxBytes)
	}

	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	data = sanitizeUTF8(data)

	records, err := parseCSV(data, opts.Comma)
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty file")
	}

	headerIdx := 0
	if len(opts.HeaderHint) > 0 {
		headerIdx = findHeaderRow(records, opts.HeaderHint)
		if headerIdx < 0 {
			return nil, fmt.Errorf("header row not found (expected columns: %s)", strings.Join(opts.HeaderHint, ", "))
		}
	}

	header := records[headerIdx]
	dataRows := records[headerIdx+1:]

	if opts.DropQualtricsMeta {
		dataRows = dropQualtricsMeta(dataRows)
	}

	d, err := dataset.New(header)
	if err != nil {
		return nil, fmt.Errorf("header row %d: %w", headerIdx+1, err)
	}

	for i, row := range dataRows {
		if isEmptyRow(row) {
			continue
		}
		if err := d.AppendStringRow(row); err != nil {
			// Line numbers are 1-indexed and counted from the file top.
			return nil, fmt.Errorf("line %d: %w", headerIdx+i+2, err)
		}
	}

	return d, nil
}

// sanitizeUTF8 replaces invalid byte sequences with the Unicode
// replacement character so encoding/csv never sees broken runes.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

func parseCSV(data []byte, comma rune) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	if comma != 0 {
		r.Comma = comma
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// findHeaderRow returns the index of the first row containing all
// required column names, or -1 if none is found in the search window.
func findHeaderRow(records [][]string, required []string) int {
	maxRows := MaxHeaderSearchRows
	if len(records) < maxRows {
		maxRows = len(records)
	}

	for i := 0; i < maxRows; i++ {
		if containsHeaders(records[i], required) {
			return i
		}
	}
	return -1
}

// containsHeaders reports whether row has every required name,
// compared case-insensitively after cleanup.
func containsHeaders(row, required []string) bool {
	have := make(map[string]bool, len(row))
	for _, v := range row {
		have[strings.ToLower(dataset.CleanHeader(v))] = true
	}
	for _, want := range required {
		if !have[strings.ToLower(dataset.CleanHeader(want))] {
			return false
		}
	}
	return true
}

// dropQualtricsMeta removes up to two leading rows when they look like
// the Qualtrics metadata rows: the ImportId row carries JSON objects,
// the question-text row sits directly above it.
func dropQualtricsMeta(rows [][]string) [][]string {
	importIdx := -1
	for i := 0; i < len(rows) && i < 2; i++ {
		if isImportIDRow(rows[i]) {
			importIdx = i
			break
		}
	}
	if importIdx < 0 {
		return rows
	}
	return rows[importIdx+1:]
}

func isImportIDRow(row []string) bool {
	for _, v := range row {
		if strings.Contains(v, `"ImportId"`) {
			return true
		}
	}
	return false
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
