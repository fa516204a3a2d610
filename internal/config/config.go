// Package config loads fvc configuration from YAML with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CacheConfig controls the optional persistent digest cache.
type CacheConfig struct {
	// Enabled turns the cache on. Off by default: with it off the
	// pipeline keeps no state between runs.
	Enabled bool `yaml:"enabled"`

	// DBPath is the SQLite database location. Defaults to
	// <fvc home>/digests.db.
	DBPath string `yaml:"db_path"`
}

// Config represents fvc configuration options.
type Config struct {
	// ExtractPolicy selects how archives are handled: "none" hashes them
	// as opaque files, "auto" extracts whatever the signature sniffer
	// recognizes, "all" tries to extract every file and falls back to
	// hashing on failure.
	ExtractPolicy string `yaml:"extract_policy"`

	// MaxDepth bounds nested-archive recursion (archive inside archive).
	// Depth 0 is the root; descending past MaxDepth records a
	// recursion-limit skip instead of extracting.
	MaxDepth int `yaml:"max_depth"`

	// Workers is the number of concurrent hashing workers (0 = one per CPU).
	Workers int `yaml:"workers"`

	// LogLevel sets logging verbosity (trace, debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// StagingDir overrides where extracted archive contents are staged.
	// Empty means the system temp directory.
	StagingDir string `yaml:"staging_dir"`

	// Cache configures the persistent digest cache.
	Cache CacheConfig `yaml:"cache"`
}

// DefaultMaxDepth is the default nested-archive recursion bound. Real
// distributions rarely nest more than three or four levels; eight leaves
// headroom while still terminating quickly on archive quines.
const DefaultMaxDepth = 8

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		ExtractPolicy: "auto",
		MaxDepth:      DefaultMaxDepth,
		Workers:       0, // one per CPU
		LogLevel:      "info",
		StagingDir:    "",
		Cache: CacheConfig{
			Enabled: false,
			DBPath:  "", // resolved against FVCHome when enabled
		},
	}
}

// LoadConfig loads configuration from the given file path, merging over
// defaults. A missing file is not an error; a malformed one is.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if fileCfg.ExtractPolicy != "" {
		cfg.ExtractPolicy = fileCfg.ExtractPolicy
	}
	if fileCfg.MaxDepth != 0 {
		cfg.MaxDepth = fileCfg.MaxDepth
	}
	if fileCfg.Workers != 0 {
		cfg.Workers = fileCfg.Workers
	}
	if fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
	}
	if fileCfg.StagingDir != "" {
		cfg.StagingDir = fileCfg.StagingDir
	}
	if fileCfg.Cache.Enabled {
		cfg.Cache.Enabled = true
	}
	if fileCfg.Cache.DBPath != "" {
		cfg.Cache.DBPath = fileCfg.Cache.DBPath
	}

	return cfg, nil
}

// Load resolves the config file location and loads it. Priority:
//  1. explicit path argument (from --config), if non-empty
//  2. FVC_CONFIG environment variable
//  3. <fvc home>/config.yaml
func Load(explicit string) (*Config, error) {
	if explicit != "" {
		// An explicitly named file must exist.
		if _, err := os.Stat(explicit); err != nil {
			return nil, fmt.Errorf("config file %s: %w", explicit, err)
		}
		return LoadConfig(explicit)
	}
	if env := os.Getenv("FVC_CONFIG"); env != "" {
		return LoadConfig(env)
	}
	home, err := FVCHome()
	if err != nil {
		return DefaultConfig(), nil // no home dir; run on defaults
	}
	return LoadConfig(filepath.Join(home, "config.yaml"))
}

// CacheDBPath returns the resolved cache database path, defaulting to
// digests.db under the fvc home directory.
func (c *Config) CacheDBPath() (string, error) {
	if c.Cache.DBPath != "" {
		return c.Cache.DBPath, nil
	}
	home, err := FVCHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "digests.db"), nil
}

// Validate checks field values that can come from a config file or flags.
func (c *Config) Validate() error {
	switch c.ExtractPolicy {
	case "none", "auto", "all":
	default:
		return fmt.Errorf("invalid extract_policy %q (want none, auto or all)", c.ExtractPolicy)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative, got %d", c.MaxDepth)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}
