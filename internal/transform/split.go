package transform

import (
	"fmt"
	"strings"

	"github.com/qualprep/qualprep/internal/dataset"
	"github.com/qualprep/qualprep/internal/instruction"
)

// DefaultSplitDelimiter separates selected categories inside a
// multi-category cell when the instruction does not name one.
const DefaultSplitDelimiter = ","

// Split expands a multi-category column into one 0/1 indicator column
// per known category and removes the source column. A missing source
// cell yields 0 in every indicator; a selected value that is not in
// the category set is ignored, matching how survey tools append
// free-text "other" entries to the answer list.
func Split(d *dataset.Dataset, step *instruction.SplitStep) (*dataset.Dataset, error) {
	if err := stepValidateAgainst(d, step.Column, "split"); err != nil {
		return nil, err
	}

	delim := step.Delimiter
	if delim == "" {
		delim = DefaultSplitDelimiter
	}

	source, err := d.Column(step.Column)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}

	// One pass over the source column per dataset, not per category:
	// tokenize each cell once into a set.
	tokenSets := make([]map[string]bool, len(source))
	for r, c := range source {
		if c.Missing() {
			continue
		}
		set := make(map[string]bool)
		for _, tok := range strings.Split(c.String, delim) {
			tok = strings.TrimSpace(tok)
			if tok != "" {
				set[tok] = true
			}
		}
		tokenSets[r] = set
	}

	out := d.Clone()
	for _, cat := range step.Categories {
		name := step.ColumnName(cat)
		cells := make([]dataset.Cell, len(source))
		for r := range source {
			if tokenSets[r] != nil && tokenSets[r][cat.Value] {
				cells[r] = dataset.NumberCell(1)
			} else {
				cells[r] = dataset.NumberCell(0)
			}
		}
		if err := out.AddColumn(name, cells); err != nil {
			return nil, fmt.Errorf("split %q: %w", step.Column, err)
		}
	}

	if err := out.DropColumn(step.Column); err != nil {
		return nil, fmt.Errorf("split %q: %w", step.Column, err)
	}
	return out, nil
}

// stepValidateAgainst checks a column reference against the dataset.
func stepValidateAgainst(d *dataset.Dataset, column, op string) error {
	if !d.HasColumn(column) {
		return fmt.Errorf("%s: unknown column %q (have: %s)", op, column, strings.Join(d.Columns(), ", "))
	}
	return nil
}
