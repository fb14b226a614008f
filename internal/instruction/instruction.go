// Package instruction defines the declarative rules that drive data
// preparation: renames, multi-category splits, value normalization,
// category recoding, and aggregation. Rules are loaded from a YAML
// file and validated for shape before any data is touched, so a broken
// instruction set fails fast with a descriptive error instead of
// producing a silently wrong table.
package instruction

import (
	"fmt"
	"strings"
)

// Mode controls how a step treats values it has no rule for.
type Mode string

const (
	// ModeDefault defers to the pipeline-wide setting.
	ModeDefault Mode = ""
	// ModeStrict fails on unmapped values.
	ModeStrict Mode = "strict"
	// ModeLenient passes unmapped values through and records a warning.
	ModeLenient Mode = "lenient"
)

func (m Mode) valid() bool {
	return m == ModeDefault || m == ModeStrict || m == ModeLenient
}

// Set is an ordered instruction set. Steps are applied in file order.
type Set struct {
	Version int    `yaml:"version"`
	Steps   []Step `yaml:"steps"`
}

// Step holds exactly one rule. The YAML shape is a list of one-key
// mappings, e.g.:
//
//	steps:
//	  - split:
//	      column: Q7
//	      categories:
//	        - {value: "1", label: eating}
type Step struct {
	Rename    *RenameStep    `yaml:"rename,omitempty"`
	Split     *SplitStep     `yaml:"split,omitempty"`
	Normalize *NormalizeStep `yaml:"normalize,omitempty"`
	Recode    *RecodeStep    `yaml:"recode,omitempty"`
	Aggregate *AggregateStep `yaml:"aggregate,omitempty"`
	GroupBy   *GroupByStep   `yaml:"groupby,omitempty"`
}

// Kind returns the step's rule name, or "" when empty.
func (s Step) Kind() string {
	switch {
	case s.Rename != nil:
		return "rename"
	case s.Split != nil:
		return "split"
	case s.Normalize != nil:
		return "normalize"
	case s.Recode != nil:
		return "recode"
	case s.Aggregate != nil:
		return "aggregate"
	case s.GroupBy != nil:
		return "groupby"
	}
	return ""
}

// count returns how many rules the step holds; must be exactly one.
func (s Step) count() int {
	n := 0
	for _, set := range []bool{
		s.Rename != nil, s.Split != nil, s.Normalize != nil,
		s.Recode != nil, s.Aggregate != nil, s.GroupBy != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// RenameStep rewrites column names.
type RenameStep struct {
	Columns map[string]string `yaml:"columns"`
}

// Category is one selectable option of a multi-category variable.
// Label is optional; the indicator column defaults to <column>_<value>.
type Category struct {
	Value string `yaml:"value"`
	Label string `yaml:"label,omitempty"`
}

// SplitStep turns a multi-category column into one indicator column
// per known category. The source column is removed.
type SplitStep struct {
	Column     string     `yaml:"column"`
	Delimiter  string     `yaml:"delimiter,omitempty"`
	Categories []Category `yaml:"categories"`
}

// ColumnName returns the indicator column name for a category.
func (s *SplitStep) ColumnName(c Category) string {
	if c.Label != "" {
		return c.Label
	}
	return s.Column + "_" + c.Value
}

// NormalizeStep recodes free-text values of one column via a lookup.
// A raw string mapping to several normalized strings duplicates the
// row once per replacement. The lookup is either inline (Mapping) or
// an external CSV in rawstring,replacement_1..replacement_N format
// (Lookup); exactly one must be set.
type NormalizeStep struct {
	Column  string              `yaml:"column"`
	Mapping map[string][]string `yaml:"mapping,omitempty"`
	Lookup  string              `yaml:"lookup,omitempty"`
	Mode    Mode                `yaml:"mode,omitempty"`

	// lookup is the resolved, lowercased lookup table.
	lookup map[string][]string
}

// SetLookup installs the resolved lookup table. Keys are lowercased
// and first occurrence wins, matching the original lookup-file rules.
func (n *NormalizeStep) SetLookup(entries map[string][]string) {
	n.lookup = make(map[string][]string, len(entries))
	for raw, repls := range entries {
		key := strings.ToLower(strings.TrimSpace(raw))
		if _, exists := n.lookup[key]; exists {
			continue
		}
		n.lookup[key] = repls
	}
}

// NeedsLookup reports whether the step references an external lookup
// file that has not been loaded yet. Running such a step would treat
// every value as unmapped.
func (n *NormalizeStep) NeedsLookup() bool {
	return n.Lookup != "" && n.lookup == nil
}

// Replacements returns the normalized strings for a raw value, or
// ok=false when the lookup has no entry. Matching ignores case.
func (n *NormalizeStep) Replacements(raw string) ([]string, bool) {
	repls, ok := n.lookup[strings.ToLower(strings.TrimSpace(raw))]
	return repls, ok
}

// RecodeStep replaces normalized values with higher-level category
// strings, e.g. "Acorn woodpecker" and "Ghila woodpecker" both
// becoming "woodpecker".
type RecodeStep struct {
	Column  string            `yaml:"column"`
	Mapping map[string]string `yaml:"mapping"`
	Mode    Mode              `yaml:"mode,omitempty"`
}

// AggregateStep combines one or more columns into a summary column
// using a named reducer. Row count is preserved.
type AggregateStep struct {
	Columns []string `yaml:"columns"`
	Into    string   `yaml:"into"`
	Reducer string   `yaml:"reducer"`
	// Drop removes the source columns after the summary is built.
	Drop bool `yaml:"drop,omitempty"`
}

// GroupAggregation is one column reduction inside a groupby step.
type GroupAggregation struct {
	Column  string `yaml:"column"`
	Reducer string `yaml:"reducer"`
	// Into names the output column (default: same as Column).
	Into string `yaml:"into,omitempty"`
}

// Target returns the output column name.
func (g GroupAggregation) Target() string {
	if g.Into != "" {
		return g.Into
	}
	return g.Column
}

// GroupByStep collapses rows along a key column, reducing the listed
// columns per group. This is the only step that changes row count
// downward.
type GroupByStep struct {
	Key          string             `yaml:"key"`
	Aggregations []GroupAggregation `yaml:"aggregations"`
}

// Validate checks the instruction set for structural problems.
// It does not know the dataset; column existence is checked when the
// steps run (or up front via CheckColumns).
func (s *Set) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("instruction set has no steps")
	}

	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func (s Step) validate() error {
	switch n := s.count(); {
	case n == 0:
		return fmt.Errorf("step is empty (expected one of: rename, split, normalize, recode, aggregate, groupby)")
	case n > 1:
		return fmt.Errorf("step has %d rules, expected exactly one", n)
	}

	switch {
	case s.Rename != nil:
		return s.Rename.validate()
	case s.Split != nil:
		return s.Split.validate()
	case s.Normalize != nil:
		return s.Normalize.validate()
	case s.Recode != nil:
		return s.Recode.validate()
	case s.Aggregate != nil:
		return s.Aggregate.validate()
	case s.GroupBy != nil:
		return s.GroupBy.validate()
	}
	return nil
}

func (r *RenameStep) validate() error {
	if len(r.Columns) == 0 {
		return fmt.Errorf("rename: no columns given")
	}

	// Two old names mapping to the same new name would collide.
	seen := make(map[string]string, len(r.Columns))
	for old, new := range r.Columns {
		if strings.TrimSpace(new) == "" {
			return fmt.Errorf("rename: empty target name for column %q", old)
		}
		key := strings.ToLower(new)
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("rename: columns %q and %q both renamed to %q", prev, old, new)
		}
		seen[key] = old
	}
	return nil
}

func (s *SplitStep) validate() error {
	if s.Column == "" {
		return fmt.Errorf("split: column is required")
	}
	if len(s.Categories) == 0 {
		return fmt.Errorf("split %q: category set is empty", s.Column)
	}

	values := make(map[string]bool, len(s.Categories))
	names := make(map[string]bool, len(s.Categories))
	for _, c := range s.Categories {
		if c.Value == "" {
			return fmt.Errorf("split %q: category with empty value", s.Column)
		}
		if values[c.Value] {
			return fmt.Errorf("split %q: ambiguous category set, value %q listed twice", s.Column, c.Value)
		}
		values[c.Value] = true

		name := strings.ToLower(s.ColumnName(c))
		if names[name] {
			return fmt.Errorf("split %q: two categories produce column %q", s.Column, s.ColumnName(c))
		}
		names[name] = true
	}
	return nil
}

func (n *NormalizeStep) validate() error {
	if n.Column == "" {
		return fmt.Errorf("normalize: column is required")
	}
	if len(n.Mapping) == 0 && n.Lookup == "" {
		return fmt.Errorf("normalize %q: either mapping or lookup file is required", n.Column)
	}
	if len(n.Mapping) > 0 && n.Lookup != "" {
		return fmt.Errorf("normalize %q: mapping and lookup are mutually exclusive", n.Column)
	}
	if !n.Mode.valid() {
		return fmt.Errorf("normalize %q: mode must be strict or lenient, got %q", n.Column, n.Mode)
	}
	for raw, repls := range n.Mapping {
		if len(repls) == 0 {
			return fmt.Errorf("normalize %q: no replacements for %q", n.Column, raw)
		}
	}
	return nil
}

func (r *RecodeStep) validate() error {
	if r.Column == "" {
		return fmt.Errorf("recode: column is required")
	}
	if len(r.Mapping) == 0 {
		return fmt.Errorf("recode %q: mapping is empty", r.Column)
	}
	if !r.Mode.valid() {
		return fmt.Errorf("recode %q: mode must be strict or lenient, got %q", r.Column, r.Mode)
	}
	return nil
}

func (a *AggregateStep) validate() error {
	if len(a.Columns) == 0 {
		return fmt.Errorf("aggregate: no source columns given")
	}
	if a.Into == "" {
		return fmt.Errorf("aggregate: into (target column) is required")
	}
	if a.Reducer == "" {
		return fmt.Errorf("aggregate into %q: reducer is required", a.Into)
	}
	return nil
}

func (g *GroupByStep) validate() error {
	if g.Key == "" {
		return fmt.Errorf("groupby: key column is required")
	}
	if len(g.Aggregations) == 0 {
		return fmt.Errorf("groupby %q: no aggregations given", g.Key)
	}

	targets := make(map[string]bool, len(g.Aggregations))
	for _, agg := range g.Aggregations {
		if agg.Column == "" {
			return fmt.Errorf("groupby %q: aggregation with empty column", g.Key)
		}
		if agg.Reducer == "" {
			return fmt.Errorf("groupby %q: no reducer for column %q", g.Key, agg.Column)
		}
		key := strings.ToLower(agg.Target())
		if targets[key] {
			return fmt.Errorf("groupby %q: duplicate output column %q", g.Key, agg.Target())
		}
		targets[key] = true
	}
	return nil
}
