// Package cli implements the qualprep command line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/qualprep/qualprep/internal/config"
)

// NewRootCommand builds the qualprep command tree.
func NewRootCommand(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "qualprep",
		Short: "Prepare survey CSV exports for analysis",
		Long: `qualprep reworks raw survey exports into analysis-ready CSV files.

Given a CSV export and a YAML instruction file, it renames variables,
splits multi-category answers into indicator columns, normalizes free-text
values against lookup tables, and aggregates columns with named reducers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCommand(cfg),
		newCheckCommand(cfg),
		newServeCommand(cfg),
	)

	return root
}
