package transform

import (
	"context"
	"strings"
	"testing"

	"github.com/qualprep/qualprep/internal/instruction"
)

func TestCheckInstructions_UnknownReducer(t *testing.T) {
	set := &instruction.Set{Steps: []instruction.Step{
		{Aggregate: &instruction.AggregateStep{
			Columns: []string{"a", "b"},
			Into:    "total",
			Reducer: "smallest",
		}},
	}}

	errs := CheckInstructions(set, []string{"a", "b"})
	if len(errs) != 1 {
		t.Fatalf("got %d problems, want 1: %v", len(errs), errs)
	}
	msg := errs[0].Error()
	if !strings.Contains(msg, `unknown reducer "smallest"`) {
		t.Errorf("error %q should name the reducer", msg)
	}
	if !strings.Contains(msg, "min") {
		t.Errorf("error %q should list the known reducers", msg)
	}
}

func TestCheckInstructions_GroupByReducers(t *testing.T) {
	set := &instruction.Set{Steps: []instruction.Step{
		{GroupBy: &instruction.GroupByStep{
			Key: "species",
			Aggregations: []instruction.GroupAggregation{
				{Column: "site", Reducer: "dummy"},
				{Column: "weight", Reducer: "average"},
			},
		}},
	}}

	errs := CheckInstructions(set, []string{"species", "site", "weight"})
	if len(errs) != 1 {
		t.Fatalf("got %d problems, want 1: %v", len(errs), errs)
	}
	if !strings.Contains(errs[0].Error(), `unknown reducer "average"`) {
		t.Errorf("error %q should name the bad reducer, not dummy", errs[0])
	}
}

func TestCreateData_UnknownReducerFailsBeforeRunning(t *testing.T) {
	set := &instruction.Set{Steps: []instruction.Step{
		{Rename: &instruction.RenameStep{Columns: map[string]string{"a": "x"}}},
		{Aggregate: &instruction.AggregateStep{
			Columns: []string{"x"},
			Into:    "total",
			Reducer: "bogus",
		}},
	}}

	d := mustDataset(t, []string{"a"}, []string{"1"})

	_, err := CreateData(context.Background(), d, set, Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), `unknown reducer "bogus"`) {
		t.Errorf("error %q should name the reducer", err)
	}
	// The bad reducer is in step 2, but the run must refuse up front
	// rather than fail after step 1 has already been applied.
	if !strings.Contains(err.Error(), "step 2 (aggregate)") {
		t.Errorf("error %q should name the offending step", err)
	}
}

func TestCreateData_UnresolvedLookup(t *testing.T) {
	set, err := instruction.Parse([]byte(`
version: 1
steps:
  - normalize:
      column: species
      lookup: species.csv
`))
	if err != nil {
		t.Fatal(err)
	}

	d := mustDataset(t, []string{"species"}, []string{"wren"})

	_, err = CreateData(context.Background(), d, set, Options{})
	if err == nil {
		t.Fatal("expected error for a lookup that was never loaded")
	}
	if !strings.Contains(err.Error(), `"species.csv"`) {
		t.Errorf("error %q should name the lookup file", err)
	}
}
