package cmd

import (
	"github.com/spf13/cobra"

	"github.com/harrison/fvc/internal/examples"
)

// NewExamplesCommand creates and returns the examples subcommand
func NewExamplesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show annotated usage examples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return examples.Render(cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}
}
