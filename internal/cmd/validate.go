package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/fvc/internal/fvc"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <code>...",
		Short: "Check that codes are well-formed verification codes",
		Long: `Validate parses each argument as a hex-encoded verification code and
checks its length and version prefix.

Exit code: 0 if every code is well-formed, 1 otherwise`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			invalid := 0
			for _, arg := range args {
				if _, err := fvc.ParseCode(arg); err != nil {
					invalid++
					fmt.Fprintf(out, "invalid: %s (%v)\n", arg, err)
					continue
				}
				fmt.Fprintf(out, "valid:   %s\n", arg)
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d codes are invalid", invalid, len(args))
			}
			return nil
		},
		SilenceUsage: true,
	}

	return cmd
}
