// Package dataset provides the in-memory table that all preparation
// steps operate on. A Dataset is rows by named columns; cells carry
// their raw string value plus explicit missing-ness, so downstream
// steps can distinguish "empty answer" from "zero".
//
// Datasets handed to transformation code are never mutated: every
// operation that changes shape works on a copy.
package dataset

import (
	"fmt"
	"strings"
)

// Cell is a single table value. Valid is false for missing values
// (empty answers, NA markers from the export tool).
type Cell struct {
	String string
	Valid  bool
}

// missingMarkers are cell values survey tools emit for "no answer".
// Matched case-insensitively after trimming.
var missingMarkers = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"nan":  true,
	"null": true,
}

// NewCell builds a Cell from a raw export value. The value is cleaned
// (BOM, Excel formula prefix, stray quotes) and flagged missing if it
// matches a known missing marker.
func NewCell(raw string) Cell {
	s := CleanCell(raw)
	if missingMarkers[strings.ToLower(s)] {
		return Cell{}
	}
	return Cell{String: s, Valid: true}
}

// Missing reports whether the cell holds no usable value.
func (c Cell) Missing() bool {
	return !c.Valid
}

// Dataset is a table of rows by named columns. Column names are unique
// (case-insensitively) and addressable; row order is preserved.
type Dataset struct {
	columns []string
	index   map[string]int // lowercase name -> position
	rows    [][]Cell
}

// New creates an empty Dataset with the given column names.
// Returns an error on empty or duplicate column names.
func New(columns []string) (*Dataset, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("dataset needs at least one column")
	}

	d := &Dataset{
		columns: make([]string, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		name := CleanHeader(col)
		if name == "" {
			return nil, fmt.Errorf("column %d has an empty name", i+1)
		}
		key := strings.ToLower(name)
		if prev, exists := d.index[key]; exists {
			return nil, fmt.Errorf("duplicate column name %q (positions %d and %d)", name, prev+1, i+1)
		}
		d.columns[i] = name
		d.index[key] = i
	}
	return d, nil
}

// AppendRow adds a row of cells. Rows shorter than the column set are
// padded with missing cells; longer rows are rejected.
func (d *Dataset) AppendRow(cells []Cell) error {
	if len(cells) > len(d.columns) {
		return fmt.Errorf("row has %d values, dataset has %d columns", len(cells), len(d.columns))
	}

	row := make([]Cell, len(d.columns))
	copy(row, cells)
	d.rows = append(d.rows, row)
	return nil
}

// AppendStringRow converts raw strings to cells and appends them.
func (d *Dataset) AppendStringRow(values []string) error {
	cells := make([]Cell, len(values))
	for i, v := range values {
		cells[i] = NewCell(v)
	}
	return d.AppendRow(cells)
}

// NumRows returns the number of rows.
func (d *Dataset) NumRows() int { return len(d.rows) }

// NumColumns returns the number of columns.
func (d *Dataset) NumColumns() int { return len(d.columns) }

// Columns returns a copy of the column names in order.
func (d *Dataset) Columns() []string {
	out := make([]string, len(d.columns))
	copy(out, d.columns)
	return out
}

// HasColumn reports whether a column exists. Lookup is
// case-insensitive, matching how survey headers drift between exports.
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[strings.ToLower(CleanHeader(name))]
	return ok
}

// ColumnIndex returns the position of a column, or false if absent.
func (d *Dataset) ColumnIndex(name string) (int, bool) {
	i, ok := d.index[strings.ToLower(CleanHeader(name))]
	return i, ok
}

// Column returns all cells of a column in row order.
func (d *Dataset) Column(name string) ([]Cell, error) {
	i, ok := d.ColumnIndex(name)
	if !ok {
		return nil, fmt.Errorf("unknown column %q", name)
	}
	out := make([]Cell, len(d.rows))
	for r, row := range d.rows {
		out[r] = row[i]
	}
	return out, nil
}

// Cell returns a single cell by row index and column name.
func (d *Dataset) Cell(row int, name string) (Cell, error) {
	if row < 0 || row >= len(d.rows) {
		return Cell{}, fmt.Errorf("row %d out of range (have %d rows)", row, len(d.rows))
	}
	i, ok := d.ColumnIndex(name)
	if !ok {
		return Cell{}, fmt.Errorf("unknown column %q", name)
	}
	return d.rows[row][i], nil
}

// Row returns a copy of row i.
func (d *Dataset) Row(i int) []Cell {
	out := make([]Cell, len(d.rows[i]))
	copy(out, d.rows[i])
	return out
}

// SetCell overwrites a single cell.
func (d *Dataset) SetCell(row int, name string, c Cell) error {
	if row < 0 || row >= len(d.rows) {
		return fmt.Errorf("row %d out of range (have %d rows)", row, len(d.rows))
	}
	i, ok := d.ColumnIndex(name)
	if !ok {
		return fmt.Errorf("unknown column %q", name)
	}
	d.rows[row][i] = c
	return nil
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		columns: make([]string, len(d.columns)),
		index:   make(map[string]int, len(d.index)),
		rows:    make([][]Cell, len(d.rows)),
	}
	copy(out.columns, d.columns)
	for k, v := range d.index {
		out.index[k] = v
	}
	for r, row := range d.rows {
		out.rows[r] = make([]Cell, len(row))
		copy(out.rows[r], row)
	}
	return out
}

// AddColumn appends a column with one cell per existing row.
func (d *Dataset) AddColumn(name string, cells []Cell) error {
	name = CleanHeader(name)
	if name == "" {
		return fmt.Errorf("column name is empty")
	}
	if d.HasColumn(name) {
		return fmt.Errorf("column %q already exists", name)
	}
	if len(cells) != len(d.rows) {
		return fmt.Errorf("column %q has %d values, dataset has %d rows", name, len(cells), len(d.rows))
	}

	d.index[strings.ToLower(name)] = len(d.columns)
	d.columns = append(d.columns, name)
	for r := range d.rows {
		d.rows[r] = append(d.rows[r], cells[r])
	}
	return nil
}

// DropColumn removes a column and its cells.
func (d *Dataset) DropColumn(name string) error {
	i, ok := d.ColumnIndex(name)
	if !ok {
		return fmt.Errorf("unknown column %q", name)
	}

	d.columns = append(d.columns[:i], d.columns[i+1:]...)
	for r := range d.rows {
		d.rows[r] = append(d.rows[r][:i], d.rows[r][i+1:]...)
	}
	d.reindex()
	return nil
}

// RenameColumn changes a column name in place. Renaming a column to
// its current name is a no-op, so identity renames are idempotent.
func (d *Dataset) RenameColumn(old, new string) error {
	i, ok := d.ColumnIndex(old)
	if !ok {
		return fmt.Errorf("unknown column %q", old)
	}
	newName := CleanHeader(new)
	if newName == "" {
		return fmt.Errorf("new name for column %q is empty", old)
	}
	if j, exists := d.ColumnIndex(newName); exists && j != i {
		return fmt.Errorf("cannot rename %q to %q: column already exists", old, newName)
	}

	d.columns[i] = newName
	d.reindex()
	return nil
}

// reindex rebuilds the name index after structural changes.
func (d *Dataset) reindex() {
	d.index = make(map[string]int, len(d.columns))
	for i, col := range d.columns {
		d.index[strings.ToLower(col)] = i
	}
}

// Records dumps the dataset as raw string records, header first.
// Missing cells become empty strings.
func (d *Dataset) Records() [][]string {
	out := make([][]string, 0, len(d.rows)+1)
	out = append(out, d.Columns())
	for _, row := range d.rows {
		rec := make([]string, len(row))
		for i, c := range row {
			if c.Valid {
				rec[i] = c.String
			}
		}
		out = append(out, rec)
	}
	return out
}
