// Package transform implements the data preparation pipeline: rename,
// multi-category split, normalization, recoding, and aggregation over
// a dataset, driven by a declarative instruction set. All operations
// return new datasets; inputs are never mutated.
package transform

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/qualprep/qualprep/internal/dataset"
)

// ReduceFunc combines a group of cells into a single cell. Missing
// cells are skipped by every built-in reducer; a group with no usable
// values reduces to a missing cell.
type ReduceFunc func(cells []dataset.Cell) (dataset.Cell, error)

var (
	reducers   = make(map[string]ReduceFunc)
	reducersMu sync.RWMutex
)

// RegisterReducer adds a named reducer. Panics if the name is taken.
func RegisterReducer(name string, fn ReduceFunc) {
	reducersMu.Lock()
	defer reducersMu.Unlock()

	if _, exists := reducers[name]; exists {
		panic(fmt.Sprintf("reducer already registered: %s", name))
	}
	reducers[name] = fn
}

// GetReducer returns a reducer by name. Returns false if not found.
func GetReducer(name string) (ReduceFunc, bool) {
	reducersMu.RLock()
	defer reducersMu.RUnlock()

	fn, ok := reducers[name]
	return fn, ok
}

// ReducerNames returns all registered reducer names, sorted.
func ReducerNames() []string {
	reducersMu.RLock()
	defer reducersMu.RUnlock()

	names := make([]string, 0, len(reducers))
	for name := range reducers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterReducer("sum", reduceSum)
	RegisterReducer("mean", reduceMean)
	RegisterReducer("median", reduceMedian)
	RegisterReducer("min", reduceMin)
	RegisterReducer("max", reduceMax)
	RegisterReducer("any", reduceAny)
	RegisterReducer("first", reduceFirst)
	RegisterReducer("count", reduceCount)

	// Presence reducers: 1 if the group contains the given answer
	// code, 0 otherwise. Kept as named reducers so instruction files
	// written for the original tool keep working.
	for i, name := range []string{"one", "two", "three", "four", "five", "six"} {
		RegisterReducer(name, presenceReducer(float64(i+1)))
	}
}

// numbers extracts the numeric values of the non-missing cells.
// A non-missing cell that does not parse as a number is an error, so
// a typo never silently vanishes from an aggregate.
func numbers(cells []dataset.Cell) ([]float64, error) {
	var out []float64
	for _, c := range cells {
		if c.Missing() {
			continue
		}
		f, ok := c.Number()
		if !ok {
			return nil, fmt.Errorf("value %q is not numeric", c.String)
		}
		out = append(out, f)
	}
	return out, nil
}

func reduceSum(cells []dataset.Cell) (dataset.Cell, error) {
	vals, err := numbers(cells)
	if err != nil {
		return dataset.Cell{}, err
	}
	if len(vals) == 0 {
		return dataset.Cell{}, nil
	}

	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return dataset.NumberCell(sum), nil
}

func reduceMean(cells []dataset.Cell) (dataset.Cell, error) {
	vals, err := numbers(cells)
	if err != nil {
		return dataset.Cell{}, err
	}
	if len(vals) == 0 {
		return dataset.Cell{}, nil
	}

	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return dataset.NumberCell(sum / float64(len(vals))), nil
}

func reduceMedian(cells []dataset.Cell) (dataset.Cell, error) {
	vals, err := numbers(cells)
	if err != nil {
		return dataset.Cell{}, err
	}
	if len(vals) == 0 {
		return dataset.Cell{}, nil
	}

	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return dataset.NumberCell(vals[mid]), nil
	}
	return dataset.NumberCell((vals[mid-1] + vals[mid]) / 2), nil
}

func reduceMin(cells []dataset.Cell) (dataset.Cell, error) {
	vals, err := numbers(cells)
	if err != nil {
		return dataset.Cell{}, err
	}
	if len(vals) == 0 {
		return dataset.Cell{}, nil
	}

	min := math.Inf(1)
	for _, v := range vals {
		if v < min {
			min = v
		}
	}
	return dataset.NumberCell(min), nil
}

func reduceMax(cells []dataset.Cell) (dataset.Cell, error) {
	vals, err := numbers(cells)
	if err != nil {
		return dataset.Cell{}, err
	}
	if len(vals) == 0 {
		return dataset.Cell{}, nil
	}

	max := math.Inf(-1)
	for _, v := range vals {
		if v > max {
			max = v
		}
	}
	return dataset.NumberCell(max), nil
}

// reduceAny yields 1 if any cell is truthy (a true-ish boolean or a
// non-zero number), 0 if all usable values are falsy, missing if the
// group holds no usable value.
func reduceAny(cells []dataset.Cell) (dataset.Cell, error) {
	seen := false
	for _, c := range cells {
		if c.Missing() {
			continue
		}
		if b, ok := c.Bool(); ok {
			seen = true
			if b {
				return dataset.NumberCell(1), nil
			}
			continue
		}
		if f, ok := c.Number(); ok {
			seen = true
			if f != 0 {
				return dataset.NumberCell(1), nil
			}
			continue
		}
		return dataset.Cell{}, fmt.Errorf("value %q is neither boolean nor numeric", c.String)
	}

	if !seen {
		return dataset.Cell{}, nil
	}
	return dataset.NumberCell(0), nil
}

// reduceFirst yields the first non-missing cell.
func reduceFirst(cells []dataset.Cell) (dataset.Cell, error) {
	for _, c := range cells {
		if !c.Missing() {
			return c, nil
		}
	}
	return dataset.Cell{}, nil
}

// reduceCount yields the number of non-missing cells.
func reduceCount(cells []dataset.Cell) (dataset.Cell, error) {
	n := 0
	for _, c := range cells {
		if !c.Missing() {
			n++
		}
	}
	return dataset.NumberCell(float64(n)), nil
}

// presenceReducer builds a reducer that yields 1 when the group
// contains the given answer code and 0 otherwise.
func presenceReducer(code float64) ReduceFunc {
	return func(cells []dataset.Cell) (dataset.Cell, error) {
		for _, c := range cells {
			if c.Missing() {
				continue
			}
			if f, ok := c.Number(); ok && f == code {
				return dataset.NumberCell(1), nil
			}
		}
		return dataset.NumberCell(0), nil
	}
}
