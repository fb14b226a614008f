package transform

import (
	"fmt"
	"strings"

	"github.com/qualprep/qualprep/internal/dataset"
	"github.com/qualprep/qualprep/internal/instruction"
)

// Recode replaces a column's values with higher-level category strings
// ("Acorn woodpecker" -> "woodpecker"). Matching ignores case, like
// normalization. Unmapped values fail in strict mode and pass through
// with a warning in lenient mode; missing cells always pass through.
func Recode(d *dataset.Dataset, step *instruction.RecodeStep, strict bool) (*dataset.Dataset, []Warning, error) {
	if err := stepValidateAgainst(d, step.Column, "recode"); err != nil {
		return nil, nil, err
	}

	mapping := make(map[string]string, len(step.Mapping))
	for from, to := range step.Mapping {
		mapping[strings.ToLower(strings.TrimSpace(from))] = to
	}

	out := d.Clone()
	var warnings []Warning

	for r := 0; r < out.NumRows(); r++ {
		cell, err := out.Cell(r, step.Column)
		if err != nil {
			return nil, nil, fmt.Errorf("recode: %w", err)
		}
		if cell.Missing() {
			continue
		}

		to, found := mapping[strings.ToLower(strings.TrimSpace(cell.String))]
		if !found {
			if strict {
				return nil, nil, fmt.Errorf("recode %q: no category for %q (row %d)", step.Column, cell.String, r+1)
			}
			warnings = append(warnings, Warning{
				Op:      "recode",
				Row:     r + 1,
				Column:  step.Column,
				Value:   cell.String,
				Message: "no recode category, value kept",
			})
			continue
		}

		if err := out.SetCell(r, step.Column, dataset.Cell{String: to, Valid: true}); err != nil {
			return nil, nil, fmt.Errorf("recode: %w", err)
		}
	}

	return out, warnings, nil
}
