package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qualprep/qualprep/internal/config"
	"github.com/qualprep/qualprep/internal/csvio"
	"github.com/qualprep/qualprep/internal/instruction"
	"github.com/qualprep/qualprep/internal/transform"
)

func newCheckCommand(cfg *config.Config) *cobra.Command {
	var (
		input        string
		instructions string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate an instruction file against a CSV export",
		Long: `Check parses the instruction file and verifies that every step refers
to a column that will exist at that point of the pipeline and names only
known reducers, without running the transform. Useful before handing an
instruction file to serve mode.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := instruction.Load(instructions)
			if err != nil {
				return fmt.Errorf("load instructions: %w", err)
			}

			d, err := csvio.Read(input, csvio.ReadOptions{
				Comma:             cfg.Transform.DelimiterRune(),
				DropQualtricsMeta: cfg.Transform.DropQualtricsMeta,
				MaxBytes:          cfg.Transform.MaxFileSize,
			})
			if err != nil {
				return fmt.Errorf("read %s: %w", input, err)
			}

			problems := transform.CheckInstructions(set, d.Columns())
			if len(problems) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "ok: %d steps check out against %d columns\n",
					len(set.Steps), d.NumColumns())
				return nil
			}

			for _, p := range problems {
				fmt.Fprintf(cmd.OutOrStdout(), "problem: %v\n", p)
			}
			return fmt.Errorf("%d problem(s) found", len(problems))
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "CSV export to check against (required)")
	cmd.Flags().StringVarP(&instructions, "instructions", "n", "", "YAML instruction file (required)")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("instructions")

	return cmd
}
