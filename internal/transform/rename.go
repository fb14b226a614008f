package transform

import (
	"fmt"
	"sort"

	"github.com/qualprep/qualprep/internal/dataset"
	"github.com/qualprep/qualprep/internal/instruction"
)

// Rename rewrites column names per the step's old-to-new map.
// Renaming a column to itself is allowed, so applying an identity
// mapping twice yields the same dataset.
func Rename(d *dataset.Dataset, step *instruction.RenameStep) (*dataset.Dataset, error) {
	out := d.Clone()

	// Map iteration order is random; process renames in a stable
	// order so collision errors are deterministic.
	olds := make([]string, 0, len(step.Columns))
	for old := range step.Columns {
		olds = append(olds, old)
	}
	sort.Strings(olds)

	for _, old := range olds {
		if err := out.RenameColumn(old, step.Columns[old]); err != nil {
			return nil, fmt.Errorf("rename: %w", err)
		}
	}
	return out, nil
}
