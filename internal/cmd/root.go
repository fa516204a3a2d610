package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for fvc
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fvc",
		Short: "File verification code calculator",
		Long: `fvc computes a single verification code over a collection of files.

The code depends only on file contents: names, paths, timestamps and
directory layout do not affect it. Archives are detected by content
signature and their entries are hashed in place of the container, so a
zip of a directory and the directory itself produce the same code.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "path to a config file (default: $FVC_CONFIG, then $FVC_HOME/config.yaml)")
	cmd.PersistentFlags().String("log-level", "", "log verbosity: trace, debug, info, warn or error")

	cmd.AddCommand(NewCalculateCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewCacheCommand())
	cmd.AddCommand(NewExamplesCommand())

	return cmd
}
