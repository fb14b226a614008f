package transform

import (
	"fmt"

	"github.com/qualprep/qualprep/internal/dataset"
	"github.com/qualprep/qualprep/internal/instruction"
)

// Normalize recodes the values of one column through the step's
// lookup. Matching ignores case. A raw value with several normalized
// replacements duplicates the row once per replacement, so one messy
// answer like "Vermillion and Ghila" becomes two clean observations.
//
// Unmapped values fail in strict mode; in lenient mode the row passes
// through unchanged and a warning is recorded. Missing cells always
// pass through.
func Normalize(d *dataset.Dataset, step *instruction.NormalizeStep, strict bool) (*dataset.Dataset, []Warning, error) {
	if err := stepValidateAgainst(d, step.Column, "normalize"); err != nil {
		return nil, nil, err
	}

	col, ok := d.ColumnIndex(step.Column)
	if !ok {
		return nil, nil, fmt.Errorf("normalize: unknown column %q", step.Column)
	}

	out, err := dataset.New(d.Columns())
	if err != nil {
		return nil, nil, fmt.Errorf("normalize: %w", err)
	}

	var warnings []Warning
	for r := 0; r < d.NumRows(); r++ {
		row := d.Row(r)
		cell := row[col]

		if cell.Missing() {
			if err := out.AppendRow(row); err != nil {
				return nil, nil, fmt.Errorf("normalize: %w", err)
			}
			continue
		}

		repls, found := step.Replacements(cell.String)
		if !found {
			if strict {
				return nil, nil, fmt.Errorf("normalize %q: no entry for %q (row %d)", step.Column, cell.String, r+1)
			}
			warnings = append(warnings, Warning{
				Op:      "normalize",
				Row:     r + 1,
				Column:  step.Column,
				Value:   cell.String,
				Message: "no normalization entry, value kept",
			})
			if err := out.AppendRow(row); err != nil {
				return nil, nil, fmt.Errorf("normalize: %w", err)
			}
			continue
		}

		for _, repl := range repls {
			dup := make([]dataset.Cell, len(row))
			copy(dup, row)
			dup[col] = dataset.Cell{String: repl, Valid: true}
			if err := out.AppendRow(dup); err != nil {
				return nil, nil, fmt.Errorf("normalize: %w", err)
			}
		}
	}

	return out, warnings, nil
}
