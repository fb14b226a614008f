package transform

// check.go statically validates instruction sets beyond the shape
// checks the instruction package can do on its own: reducer names live
// in this package's registry, and a normalize step whose lookup file
// was never loaded would keep every value instead of mapping it.

import (
	"fmt"
	"strings"

	"github.com/qualprep/qualprep/internal/instruction"
)

// CheckInstructions statically validates an instruction set against a
// column list: column-set evolution plus reducer names. It returns one
// error per problem found.
func CheckInstructions(set *instruction.Set, columns []string) []error {
	errs := set.CheckColumns(columns)
	errs = append(errs, checkReducers(set)...)
	return errs
}

// checkReducers verifies that every reducer the set names is
// registered. "dummy" is expanded before grouping rather than looked
// up, so it is valid in groupby steps only.
func checkReducers(set *instruction.Set) []error {
	var errs []error
	fail := func(i int, kind, name string) {
		errs = append(errs, fmt.Errorf("step %d (%s): unknown reducer %q (have: %s)",
			i+1, kind, name, strings.Join(ReducerNames(), ", ")))
	}

	for i, step := range set.Steps {
		switch {
		case step.Aggregate != nil:
			if _, ok := GetReducer(step.Aggregate.Reducer); !ok {
				fail(i, "aggregate", step.Aggregate.Reducer)
			}
		case step.GroupBy != nil:
			for _, agg := range step.GroupBy.Aggregations {
				if agg.Reducer == "dummy" {
					continue
				}
				if _, ok := GetReducer(agg.Reducer); !ok {
					fail(i, "groupby", agg.Reducer)
				}
			}
		}
	}
	return errs
}

// preRunCheck rejects instruction sets that would fail mid-run or pass
// silently, before any step touches data.
func preRunCheck(set *instruction.Set) error {
	for i, step := range set.Steps {
		if n := step.Normalize; n != nil && n.NeedsLookup() {
			return fmt.Errorf("step %d (normalize %q): lookup file %q is not loaded", i+1, n.Column, n.Lookup)
		}
	}
	if errs := checkReducers(set); len(errs) > 0 {
		return errs[0]
	}
	return nil
}
