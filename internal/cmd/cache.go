package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/fvc/internal/cache"
	"github.com/harrison/fvc/internal/config"
)

// NewCacheCommand creates and returns the cache subcommand group
func NewCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the digest cache",
		Long: `The digest cache stores per-file digests keyed by path, size and
modification time, so unchanged files are not re-read on later runs.
It lives under the fvc home directory unless configured otherwise.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newCacheStatsCommand())
	cmd.AddCommand(newCacheClearCommand())

	return cmd
}

func newCacheStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the number of cached digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openConfiguredCache(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			count, err := c.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d cached digests in %s\n", count, c.Path())
			return nil
		},
		SilenceUsage: true,
	}
}

func newCacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openConfiguredCache(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "digest cache cleared")
			return nil
		},
		SilenceUsage: true,
	}
}

func openConfiguredCache(cmd *cobra.Command) (*cache.Cache, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	dbPath, err := cfg.CacheDBPath()
	if err != nil {
		return nil, err
	}
	return cache.Open(dbPath)
}
