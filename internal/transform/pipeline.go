package transform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qualprep/qualprep/internal/dataset"
	"github.com/qualprep/qualprep/internal/instruction"
)

// Warning records a lenient-mode value that no rule covered. Warnings
// never stop the pipeline; callers surface them in logs and reports.
type Warning struct {
	Op      string `json:"op"`
	Row     int    `json:"row"`
	Column  string `json:"column"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Options configures a pipeline run.
type Options struct {
	// Strict makes unmapped values fail instead of passing through.
	// Individual steps can override this with their mode field.
	Strict bool

	// Logger receives per-step progress and warnings. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Result is the outcome of a pipeline run.
type Result struct {
	Dataset  *dataset.Dataset
	Warnings []Warning
	Duration time.Duration
}

// CreateData applies an instruction set to a dataset, step by step in
// file order, and returns the prepared dataset. The input dataset is
// not modified. The first failing step aborts the run with an error
// naming the step and the problem.
func CreateData(ctx context.Context, d *dataset.Dataset, set *instruction.Set, opts Options) (*Result, error) {
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("instructions: %w", err)
	}
	if err := preRunCheck(set); err != nil {
		return nil, fmt.Errorf("instructions: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()
	cur := d
	var warnings []Warning

	for i, step := range set.Steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("cancelled before step %d: %w", i+1, err)
		}

		next, stepWarnings, err := applyStep(cur, step, opts.Strict)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Kind(), err)
		}

		for _, w := range stepWarnings {
			logger.Warn("unmapped value kept",
				"step", i+1,
				"op", w.Op,
				"column", w.Column,
				"row", w.Row,
				"value", w.Value,
			)
		}
		warnings = append(warnings, stepWarnings...)

		logger.Debug("step applied",
			"step", i+1,
			"op", step.Kind(),
			"rows", next.NumRows(),
			"columns", next.NumColumns(),
		)
		cur = next
	}

	return &Result{
		Dataset:  cur,
		Warnings: warnings,
		Duration: time.Since(start),
	}, nil
}

// applyStep dispatches one step. Steps that cannot produce warnings
// return a nil slice.
func applyStep(d *dataset.Dataset, step instruction.Step, strictDefault bool) (*dataset.Dataset, []Warning, error) {
	switch {
	case step.Rename != nil:
		out, err := Rename(d, step.Rename)
		return out, nil, err

	case step.Split != nil:
		out, err := Split(d, step.Split)
		return out, nil, err

	case step.Normalize != nil:
		return Normalize(d, step.Normalize, resolveStrict(step.Normalize.Mode, strictDefault))

	case step.Recode != nil:
		return Recode(d, step.Recode, resolveStrict(step.Recode.Mode, strictDefault))

	case step.Aggregate != nil:
		out, err := Aggregate(d, step.Aggregate)
		return out, nil, err

	case step.GroupBy != nil:
		out, err := GroupBy(d, step.GroupBy)
		return out, nil, err
	}

	return nil, nil, fmt.Errorf("empty step")
}

// resolveStrict applies a step-level mode override to the run default.
func resolveStrict(mode instruction.Mode, strictDefault bool) bool {
	switch mode {
	case instruction.ModeStrict:
		return true
	case instruction.ModeLenient:
		return false
	default:
		return strictDefault
	}
}
