package transform

import (
	"fmt"

	"github.com/qualprep/qualprep/internal/dataset"
	"github.com/qualprep/qualprep/internal/instruction"
)

// Aggregate combines one or more columns into a summary column, row by
// row, using the step's reducer. Row count is always preserved; source
// columns are kept unless the step says to drop them.
func Aggregate(d *dataset.Dataset, step *instruction.AggregateStep) (*dataset.Dataset, error) {
	reduce, ok := GetReducer(step.Reducer)
	if !ok {
		return nil, fmt.Errorf("aggregate into %q: unknown reducer %q (have: %v)", step.Into, step.Reducer, ReducerNames())
	}

	indices := make([]int, len(step.Columns))
	for i, col := range step.Columns {
		idx, ok := d.ColumnIndex(col)
		if !ok {
			return nil, fmt.Errorf("aggregate: unknown column %q", col)
		}
		indices[i] = idx
	}

	out := d.Clone()
	cells := make([]dataset.Cell, out.NumRows())
	group := make([]dataset.Cell, len(indices))

	for r := 0; r < out.NumRows(); r++ {
		row := d.Row(r)
		for i, idx := range indices {
			group[i] = row[idx]
		}

		c, err := reduce(group)
		if err != nil {
			return nil, fmt.Errorf("aggregate into %q (row %d): %w", step.Into, r+1, err)
		}
		cells[r] = c
	}

	if err := out.AddColumn(step.Into, cells); err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	if step.Drop {
		for _, col := range step.Columns {
			if err := out.DropColumn(col); err != nil {
				return nil, fmt.Errorf("aggregate: %w", err)
			}
		}
	}
	return out, nil
}
