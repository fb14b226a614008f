package transform

import (
	"fmt"
	"sort"

	"github.com/qualprep/qualprep/internal/dataset"
	"github.com/qualprep/qualprep/internal/instruction"
)

// GroupBy collapses rows along a key column. The result has one row
// per distinct key value, in order of first appearance, with each
// listed column reduced per group. Rows with a missing key are
// dropped.
//
// The "dummy" reducer expands a categorical column into one 0/1
// column per distinct value (named <target>_<value>) before grouping,
// each aggregated with max: the group gets 1 if any of its rows held
// the value.
func GroupBy(d *dataset.Dataset, step *instruction.GroupByStep) (*dataset.Dataset, error) {
	if err := stepValidateAgainst(d, step.Key, "groupby"); err != nil {
		return nil, err
	}

	// Dummy expansion adds indicator columns, so it works on a clone
	// to keep the input dataset untouched.
	work := d
	aggs := step.Aggregations
	if hasDummy(step.Aggregations) {
		work = d.Clone()
		var err error
		aggs, err = expandDummies(work, step)
		if err != nil {
			return nil, err
		}
	}

	type agg struct {
		source string
		target string
		reduce ReduceFunc
	}
	plan := make([]agg, len(aggs))
	for i, a := range aggs {
		if !work.HasColumn(a.Column) {
			return nil, fmt.Errorf("groupby %q: unknown column %q", step.Key, a.Column)
		}
		reduce, ok := GetReducer(a.Reducer)
		if !ok {
			return nil, fmt.Errorf("groupby %q: unknown reducer %q for column %q (have: %v)",
				step.Key, a.Reducer, a.Column, ReducerNames())
		}
		plan[i] = agg{source: a.Column, target: a.Target(), reduce: reduce}
	}

	keyCells, err := work.Column(step.Key)
	if err != nil {
		return nil, fmt.Errorf("groupby: %w", err)
	}

	// Group row indices by key value, first appearance first.
	var order []string
	groups := make(map[string][]int)
	for r, c := range keyCells {
		if c.Missing() {
			continue
		}
		if _, seen := groups[c.String]; !seen {
			order = append(order, c.String)
		}
		groups[c.String] = append(groups[c.String], r)
	}

	columns := make([]string, 0, len(plan)+1)
	columns = append(columns, step.Key)
	for _, a := range plan {
		columns = append(columns, a.target)
	}
	out, err := dataset.New(columns)
	if err != nil {
		return nil, fmt.Errorf("groupby: %w", err)
	}

	for _, key := range order {
		rows := groups[key]
		rec := make([]dataset.Cell, 0, len(plan)+1)
		rec = append(rec, dataset.Cell{String: key, Valid: true})

		for _, a := range plan {
			cells := make([]dataset.Cell, len(rows))
			for i, r := range rows {
				c, err := work.Cell(r, a.source)
				if err != nil {
					return nil, fmt.Errorf("groupby: %w", err)
				}
				cells[i] = c
			}

			c, err := a.reduce(cells)
			if err != nil {
				return nil, fmt.Errorf("groupby %q, column %q (group %q): %w", step.Key, a.source, key, err)
			}
			rec = append(rec, c)
		}

		if err := out.AppendRow(rec); err != nil {
			return nil, fmt.Errorf("groupby: %w", err)
		}
	}

	return out, nil
}

func hasDummy(aggs []instruction.GroupAggregation) bool {
	for _, a := range aggs {
		if a.Reducer == "dummy" {
			return true
		}
	}
	return false
}

// expandDummies rewrites "dummy" aggregations into per-value indicator
// columns aggregated with max. The indicator columns are added to d,
// which the caller passes as a private clone.
func expandDummies(d *dataset.Dataset, step *instruction.GroupByStep) ([]instruction.GroupAggregation, error) {
	out := make([]instruction.GroupAggregation, 0, len(step.Aggregations))
	for _, a := range step.Aggregations {
		if a.Reducer != "dummy" {
			out = append(out, a)
			continue
		}

		cells, err := d.Column(a.Column)
		if err != nil {
			return nil, fmt.Errorf("groupby %q: %w", step.Key, err)
		}

		// Distinct values, sorted for stable column order.
		seen := make(map[string]bool)
		var values []string
		for _, c := range cells {
			if c.Missing() || seen[c.String] {
				continue
			}
			seen[c.String] = true
			values = append(values, c.String)
		}
		sort.Strings(values)
		if len(values) == 0 {
			return nil, fmt.Errorf("groupby %q: dummy column %q has no values", step.Key, a.Column)
		}

		for _, v := range values {
			name := a.Target() + "_" + v
			indicator := make([]dataset.Cell, len(cells))
			for r, c := range cells {
				if c.Valid && c.String == v {
					indicator[r] = dataset.NumberCell(1)
				} else {
					indicator[r] = dataset.NumberCell(0)
				}
			}
			if err := d.AddColumn(name, indicator); err != nil {
				return nil, fmt.Errorf("groupby %q: dummy expansion: %w", step.Key, err)
			}
			out = append(out, instruction.GroupAggregation{Column: name, Reducer: "max"})
		}
	}
	return out, nil
}
