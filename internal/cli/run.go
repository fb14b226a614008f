package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qualprep/qualprep/internal/config"
	"github.com/qualprep/qualprep/internal/csvio"
	"github.com/qualprep/qualprep/internal/instruction"
	"github.com/qualprep/qualprep/internal/sink"
	"github.com/qualprep/qualprep/internal/transform"
)

type runOptions struct {
	input         string
	instructions  string
	output        string
	strict        bool
	keepMeta      bool
	postgresTable string
}

func newRunCommand(cfg *config.Config) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Apply an instruction file to a CSV export",
		Long: `Run reads a survey CSV export, applies the instruction steps in order,
and writes the prepared dataset as CSV. Warnings about unmapped values are
collected into a sidecar report next to the output file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransform(cmd, cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "CSV export to prepare (required)")
	cmd.Flags().StringVarP(&opts.instructions, "instructions", "n", "", "YAML instruction file (required)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output CSV path (default: \"<input> - prepared.csv\")")
	cmd.Flags().BoolVar(&opts.strict, "strict", cfg.Transform.Strict, "fail on unmapped values instead of passing them through")
	cmd.Flags().BoolVar(&opts.keepMeta, "keep-qualtrics-meta", false, "keep the question-text and ImportId rows under the header")
	cmd.Flags().StringVar(&opts.postgresTable, "postgres-table", "", "also load the result into this PostgreSQL table (needs DATABASE_URL)")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("instructions")

	return cmd
}

func runTransform(cmd *cobra.Command, cfg *config.Config, opts *runOptions) error {
	ctx := cmd.Context()
	logger := slog.Default()

	set, err := instruction.Load(opts.instructions)
	if err != nil {
		return fmt.Errorf("load instructions: %w", err)
	}

	d, err := csvio.Read(opts.input, csvio.ReadOptions{
		Comma:             cfg.Transform.DelimiterRune(),
		DropQualtricsMeta: cfg.Transform.DropQualtricsMeta && !opts.keepMeta,
		MaxBytes:          cfg.Transform.MaxFileSize,
	})
	if err != nil {
		return fmt.Errorf("read %s: %w", opts.input, err)
	}

	logger.Info("input loaded",
		"file", opts.input,
		"rows", d.NumRows(),
		"columns", d.NumColumns(),
		"steps", len(set.Steps),
	)

	res, err := transform.CreateData(ctx, d, set, transform.Options{
		Strict: opts.strict,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	output := opts.output
	if output == "" {
		output = defaultOutputPath(opts.input)
	}

	if err := csvio.Write(output, res.Dataset); err != nil {
		return err
	}

	logger.Info("output written",
		"file", output,
		"rows", res.Dataset.NumRows(),
		"columns", res.Dataset.NumColumns(),
		"warnings", len(res.Warnings),
		"duration_ms", res.Duration.Milliseconds(),
	)

	if report, err := writeWarningReport(output, res.Warnings); err != nil {
		return err
	} else if report != "" {
		logger.Warn("some values could not be mapped", "count", len(res.Warnings), "report", report)
	}

	if opts.postgresTable != "" {
		if cfg.Database.URL == "" {
			return fmt.Errorf("--postgres-table requires DATABASE_URL to be set")
		}
		pool, err := sink.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := sink.NewWriter(pool).Write(ctx, opts.postgresTable, res.Dataset)
		if err != nil {
			return err
		}
		logger.Info("loaded into database", "table", opts.postgresTable, "rows", n)
	}

	return nil
}

// defaultOutputPath derives the output filename from the input filename.
func defaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + " - prepared.csv"
}

// writeWarningReport saves pass-through warnings as a sidecar CSV so the
// unmapped values can be reviewed and added to the lookup tables.
func writeWarningReport(outputPath string, warnings []transform.Warning) (string, error) {
	if len(warnings) == 0 {
		return "", nil
	}

	header := []string{"Step", "Row", "Column", "Value"}
	records := make([][]string, len(warnings))
	for i, w := range warnings {
		records[i] = []string{w.Message, w.Op, strconv.Itoa(w.Row), w.Column, w.Value}
	}
	return csvio.WriteFailedRows(outputPath, header, records)
}
