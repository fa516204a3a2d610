// Package staging manages the transient on-disk area that holds extracted
// archive contents during a calculation. An Area belongs to exactly one run
// and is removed, with everything in it, when the run finishes, whether the
// run succeeded, failed or was cancelled.
package staging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/harrison/fvc/internal/filelock"
)

// Area is the staging root for one calculation. Each nested archive gets
// its own subdirectory via Dir, so sibling extractions never collide.
type Area struct {
	root string
	lock *filelock.FileLock
}

// New creates a staging area under baseDir, or the system temp directory if
// baseDir is empty. The root is uuid-named and flock-guarded so concurrent
// runs can never end up sharing one.
func New(baseDir string) (*Area, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	root := filepath.Join(baseDir, "fvc-staging-"+uuid.NewString())
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("creating staging root %s: %w", root, err)
	}

	lock := filelock.New(root + ".lock")
	acquired, err := lock.TryLock()
	if err != nil {
		os.RemoveAll(root)
		return nil, err
	}
	if !acquired {
		os.RemoveAll(root)
		return nil, fmt.Errorf("staging root %s is already in use", root)
	}

	return &Area{root: root, lock: lock}, nil
}

// Root returns the staging root path.
func (a *Area) Root() string {
	return a.root
}

// Contains reports whether path lies inside the staging area. Used to keep
// ephemeral extracted files out of the persistent digest cache.
func (a *Area) Contains(path string) bool {
	rel, err := filepath.Rel(a.root, path)
	if err != nil {
		return false
	}
	return filepath.IsLocal(rel) || rel == "."
}

// Dir creates and returns a fresh extraction directory inside the area.
// The label is informational only; uniqueness comes from the uuid.
func (a *Area) Dir(label string) (string, error) {
	name := uuid.NewString()
	if label != "" {
		name = label + "-" + name
	}
	dir := filepath.Join(a.root, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating extraction dir %s: %w", dir, err)
	}
	return dir, nil
}

// Close releases the lock and deletes the staging root and its lock file.
// Safe to call multiple times.
func (a *Area) Close() error {
	if a.root == "" {
		return nil
	}
	removeErr := os.RemoveAll(a.root)

	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil && removeErr == nil {
			removeErr = err
		}
		os.Remove(a.lock.Path())
		a.lock = nil
	}
	a.root = ""

	if removeErr != nil {
		return fmt.Errorf("cleaning staging area: %w", removeErr)
	}
	return nil
}
