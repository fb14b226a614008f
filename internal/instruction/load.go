package instruction

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Load reads and validates an instruction set from a YAML file.
// Lookup files referenced by normalize steps are resolved relative to
// the instruction file and loaded eagerly, so all input problems
// surface before any data is transformed.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instructions %s: %w", path, err)
	}

	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("instructions %s: %w", path, err)
	}

	if err := set.resolveLookups(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("instructions %s: %w", path, err)
	}
	return set, nil
}

// Parse unmarshals and validates an instruction set. Normalize steps
// with inline mappings are fully resolved; steps with lookup files
// still need resolveLookups (Load does this).
func Parse(data []byte) (*Set, error) {
	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if err := set.Validate(); err != nil {
		return nil, err
	}

	for i := range set.Steps {
		if n := set.Steps[i].Normalize; n != nil && len(n.Mapping) > 0 {
			n.SetLookup(n.Mapping)
		}
	}
	return &set, nil
}

// resolveLookups loads external lookup CSVs for normalize steps.
func (s *Set) resolveLookups(baseDir string) error {
	for i := range s.Steps {
		n := s.Steps[i].Normalize
		if n == nil || n.Lookup == "" {
			continue
		}

		path := n.Lookup
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}

		entries, err := LoadLookup(path)
		if err != nil {
			return fmt.Errorf("step %d (normalize %q): %w", i+1, n.Column, err)
		}
		n.SetLookup(entries)
	}
	return nil
}

// LoadLookup reads a normalization lookup CSV from a file.
func LoadLookup(path string) (map[string][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lookup %s: %w", path, err)
	}
	defer f.Close()

	entries, err := ParseLookup(f)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", path, err)
	}
	return entries, nil
}

// ParseLookup reads a normalization lookup CSV. The first column is the
// raw string; every further non-empty column in the row is one
// normalized replacement (rawstring,replacement_1,...,replacement_N).
// Raw strings are matched case-insensitively; a raw string appearing
// twice keeps its first row so a sloppy lookup file cannot multiply
// rows by accident.
func ParseLookup(src io.Reader) (map[string][]string, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("no data rows")
	}

	// Row one is the header (rawstring, replacement_1, ...).
	entries := make(map[string][]string, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) == 0 {
			continue
		}
		raw := strings.ToLower(strings.TrimSpace(rec[0]))
		if raw == "" {
			continue
		}
		if _, dup := entries[raw]; dup {
			continue
		}

		var repls []string
		for _, v := range rec[1:] {
			v = strings.TrimSpace(v)
			if v != "" {
				repls = append(repls, v)
			}
		}
		if len(repls) == 0 {
			return nil, fmt.Errorf("line %d: no replacements for %q", i+2, rec[0])
		}
		entries[raw] = repls
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("no usable entries")
	}
	return entries, nil
}

// CheckColumns simulates the instruction set against a column list
// without touching data, tracking how each step changes the column
// set. It returns one error per problem found, so an operator can fix
// an instruction file in a single pass.
func (s *Set) CheckColumns(columns []string) []error {
	cols := make(map[string]bool, len(columns))
	for _, c := range columns {
		cols[strings.ToLower(c)] = true
	}

	has := func(name string) bool { return cols[strings.ToLower(name)] }
	add := func(name string) { cols[strings.ToLower(name)] = true }
	drop := func(name string) { delete(cols, strings.ToLower(name)) }

	var errs []error
	fail := func(i int, format string, args ...any) {
		errs = append(errs, fmt.Errorf("step %d (%s): %s", i+1, s.Steps[i].Kind(), fmt.Sprintf(format, args...)))
	}

	for i, step := range s.Steps {
		switch {
		case step.Rename != nil:
			for old, target := range step.Rename.Columns {
				if !has(old) {
					fail(i, "unknown column %q", old)
					continue
				}
				drop(old)
				add(target)
			}

		case step.Split != nil:
			if !has(step.Split.Column) {
				fail(i, "unknown column %q", step.Split.Column)
			}
			drop(step.Split.Column)
			for _, c := range step.Split.Categories {
				name := step.Split.ColumnName(c)
				if has(name) {
					fail(i, "indicator column %q already exists", name)
				}
				add(name)
			}

		case step.Normalize != nil:
			if !has(step.Normalize.Column) {
				fail(i, "unknown column %q", step.Normalize.Column)
			}

		case step.Recode != nil:
			if !has(step.Recode.Column) {
				fail(i, "unknown column %q", step.Recode.Column)
			}

		case step.Aggregate != nil:
			for _, c := range step.Aggregate.Columns {
				if !has(c) {
					fail(i, "unknown column %q", c)
				}
			}
			if has(step.Aggregate.Into) {
				fail(i, "target column %q already exists", step.Aggregate.Into)
			}
			if step.Aggregate.Drop {
				for _, c := range step.Aggregate.Columns {
					drop(c)
				}
			}
			add(step.Aggregate.Into)

		case step.GroupBy != nil:
			if !has(step.GroupBy.Key) {
				fail(i, "unknown key column %q", step.GroupBy.Key)
			}
			for _, agg := range step.GroupBy.Aggregations {
				if !has(agg.Column) {
					fail(i, "unknown column %q", agg.Column)
				}
			}
			// A groupby replaces the column set entirely.
			cols = make(map[string]bool)
			add(step.GroupBy.Key)
			for _, agg := range step.GroupBy.Aggregations {
				if agg.Reducer == "dummy" {
					// Dummy output names depend on the data; the key
					// plus a prefix is the best static knowledge.
					continue
				}
				add(agg.Target())
			}
		}
	}

	return errs
}
