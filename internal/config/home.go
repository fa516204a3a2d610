package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// FVCHome returns the fvc home directory, creating it if needed.
// Priority order:
//  1. FVC_HOME environment variable (if set)
//  2. ~/.fvc
func FVCHome() (string, error) {
	if home := os.Getenv("FVC_HOME"); home != "" {
		if err := os.MkdirAll(home, 0o755); err != nil {
			return "", fmt.Errorf("create fvc home directory: %w", err)
		}
		return home, nil
	}

	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home directory: %w", err)
	}

	fvcHome := filepath.Join(userHome, ".fvc")
	if err := os.MkdirAll(fvcHome, 0o755); err != nil {
		return "", fmt.Errorf("create fvc home directory: %w", err)
	}
	return fvcHome, nil
}
