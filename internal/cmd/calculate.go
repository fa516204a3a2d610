package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/harrison/fvc/internal/cache"
	"github.com/harrison/fvc/internal/config"
	"github.com/harrison/fvc/internal/display"
	"github.com/harrison/fvc/internal/filelock"
	"github.com/harrison/fvc/internal/logger"
	"github.com/harrison/fvc/internal/walker"
)

// NewCalculateCommand creates and returns the calculate subcommand
func NewCalculateCommand() *cobra.Command {
	var (
		extractFlag  string
		maxDepth     int
		workers      int
		stagingDir   string
		useCache     bool
		jsonOut      bool
		treeOut      bool
		binaryOut    bool
		outputPath   string
		printSummary bool
	)

	cmd := &cobra.Command{
		Use:   "calculate <path>...",
		Short: "Calculate the verification code of files, directories and archives",
		Long: `Calculate hashes every file reachable from the given paths and combines
the digests into one order-independent verification code.

Archive handling is controlled by --extract:
  none  hash every file as opaque bytes
  auto  extract files whose content signature matches a supported
        container (zip, tar, gzip, bzip2, zstd), hash the rest as-is
  all   try to extract every file, hashing raw bytes on failure

Entries that cannot contribute to the code (symlinks, unreadable files,
failed extractions, archives nested past --max-depth) are reported on
stderr; the command still succeeds with a code over the remaining files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setupRun(cmd)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("extract") {
				cfg.ExtractPolicy = extractFlag
			}
			if cmd.Flags().Changed("max-depth") {
				cfg.MaxDepth = maxDepth
			}
			if cmd.Flags().Changed("workers") {
				cfg.Workers = workers
			}
			if cmd.Flags().Changed("staging-dir") {
				cfg.StagingDir = stagingDir
			}
			if cmd.Flags().Changed("cache") {
				cfg.Cache.Enabled = useCache
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			policy, err := walker.ParseExtractPolicy(cfg.ExtractPolicy)
			if err != nil {
				return err
			}

			opts := walker.Options{
				Extract:    policy,
				MaxDepth:   cfg.MaxDepth,
				Workers:    cfg.Workers,
				StagingDir: cfg.StagingDir,
				Logger:     log,
				BuildTree:  treeOut,
			}

			if cfg.Cache.Enabled {
				dbPath, err := cfg.CacheDBPath()
				if err != nil {
					return err
				}
				c, err := cache.Open(dbPath)
				if err != nil {
					return fmt.Errorf("open digest cache: %w", err)
				}
				defer c.Close()
				opts.Cache = c
			}

			if cfg.Workers == 0 {
				log.LogDebug(fmt.Sprintf("using %d hash workers", runtime.NumCPU()))
			}

			result, err := walker.New(opts).Calculate(cmd.Context(), args...)
			if err != nil {
				return err
			}

			return writeResult(cmd, result, resultOutput{
				json:    jsonOut,
				tree:    treeOut,
				binary:  binaryOut,
				path:    outputPath,
				summary: printSummary,
			})
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&extractFlag, "extract", "auto", "archive policy: none, auto or all")
	cmd.Flags().IntVar(&maxDepth, "max-depth", config.DefaultMaxDepth, "maximum nested-archive depth")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent hash workers (0 = one per CPU)")
	cmd.Flags().StringVar(&stagingDir, "staging-dir", "", "directory for extraction scratch space (default: system temp)")
	cmd.Flags().BoolVar(&useCache, "cache", false, "cache per-file digests between runs")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the result as JSON")
	cmd.Flags().BoolVar(&treeOut, "tree", false, "print the traversal structure with per-file digests")
	cmd.Flags().BoolVar(&binaryOut, "binary", false, "write the raw 37-byte code instead of hex")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the code to a file instead of stdout")
	cmd.Flags().BoolVar(&printSummary, "summary", false, "print file and byte counts after the code")

	return cmd
}

type resultOutput struct {
	json    bool
	tree    bool
	binary  bool
	path    string
	summary bool
}

func writeResult(cmd *cobra.Command, result *walker.Result, out resultOutput) error {
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	if warning, ok := display.WarnSkipped(result.Skipped); ok && !out.json {
		warning.Display(stderr)
	}

	switch {
	case out.json:
		if err := display.PrintJSON(stdout, result, out.tree); err != nil {
			return err
		}
	case out.path != "":
		data := []byte(result.Code.Hex() + "\n")
		if out.binary {
			data = result.Code.Bytes()
		}
		if err := filelock.AtomicWrite(out.path, data); err != nil {
			return fmt.Errorf("write code to %s: %w", out.path, err)
		}
	case out.binary:
		if _, err := stdout.Write(result.Code.Bytes()); err != nil {
			return err
		}
	case out.summary:
		display.PrintSummary(stdout, result)
	default:
		display.PrintCode(stdout, result)
	}

	if out.tree && !out.json {
		display.PrintTrees(stdout, result.Trees)
	}
	return nil
}

// setupRun loads configuration and builds the logger shared by subcommands.
func setupRun(cmd *cobra.Command) (*config.Config, *logger.ConsoleLogger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}

	return cfg, logger.NewConsoleLogger(os.Stderr, cfg.LogLevel), nil
}
