package walker

import (
	"fmt"

	"github.com/harrison/fvc/internal/cache"
	"github.com/harrison/fvc/internal/fvc"
	"github.com/harrison/fvc/internal/logger"
	"github.com/harrison/fvc/internal/models"
)

// ExtractPolicy selects how files that might be archives are treated during
// traversal. The policy is fixed for a whole run; there is no per-file
// probing beyond what the policy prescribes.
type ExtractPolicy int

const (
	// ExtractNone treats every file, archives included, as opaque bytes.
	ExtractNone ExtractPolicy = iota
	// ExtractAuto extracts files whose signature matches a supported
	// container and hashes everything else as-is.
	ExtractAuto
	// ExtractAll tries to extract every file, falling back to hashing
	// the raw bytes when extraction fails.
	ExtractAll
)

// String returns the policy's configuration name.
func (p ExtractPolicy) String() string {
	switch p {
	case ExtractNone:
		return "none"
	case ExtractAuto:
		return "auto"
	case ExtractAll:
		return "all"
	default:
		return fmt.Sprintf("ExtractPolicy(%d)", int(p))
	}
}

// ParseExtractPolicy converts a configuration string into a policy.
func ParseExtractPolicy(s string) (ExtractPolicy, error) {
	switch s {
	case "none":
		return ExtractNone, nil
	case "auto":
		return ExtractAuto, nil
	case "all":
		return ExtractAll, nil
	default:
		return ExtractNone, fmt.Errorf("invalid extract policy %q (want none, auto or all)", s)
	}
}

// SkipKind classifies why an entry was left out of the verification code.
type SkipKind string

const (
	// SkipSymlink marks a symbolic link; links are never followed.
	SkipSymlink SkipKind = "symlink"
	// SkipIrregular marks sockets, devices, pipes and other non-files.
	SkipIrregular SkipKind = "irregular"
	// SkipIOError marks a file that could not be read.
	SkipIOError SkipKind = "io-error"
	// SkipExtraction marks an archive or archive entry that could not be
	// extracted.
	SkipExtraction SkipKind = "extraction-failure"
	// SkipRecursionLimit marks a nested archive deeper than the
	// configured bound.
	SkipRecursionLimit SkipKind = "recursion-limit"
)

// SkippedEntry describes one entry excluded from the code, so callers can
// judge whether the partial result is acceptable.
type SkippedEntry struct {
	Path   string   `json:"path"`
	Kind   SkipKind `json:"kind"`
	Reason string   `json:"reason,omitempty"`
}

// Result is the outcome of one calculation: the verification code over all
// successfully hashed files, plus everything that was skipped along the way.
type Result struct {
	// Code is the file verification code of the collection.
	Code fvc.Code `json:"-"`

	// FileCount is the number of files whose digests went into the code.
	FileCount int `json:"file_count"`

	// ByteCount is the total content bytes hashed (cache hits excluded).
	ByteCount int64 `json:"byte_count"`

	// CacheHits counts digests served from the cache instead of disk.
	CacheHits int `json:"cache_hits,omitempty"`

	// Skipped lists entries that did not contribute to the code, sorted
	// by path.
	Skipped []SkippedEntry `json:"skipped,omitempty"`

	// Trees mirrors the traversal structure, one collection per root.
	// Only populated when tree building is requested.
	Trees []models.Collection `json:"-"`
}

// Options configures a Calculator.
type Options struct {
	// Extract selects the archive handling policy.
	Extract ExtractPolicy

	// MaxDepth bounds nested-archive recursion. Roots sit at depth 0;
	// an archive at depth MaxDepth is not extracted.
	MaxDepth int

	// Workers is the number of concurrent hashing goroutines
	// (0 = one per CPU).
	Workers int

	// StagingDir overrides the staging base directory ("" = system temp).
	StagingDir string

	// Cache, when non-nil, serves and stores digests of on-disk files.
	Cache *cache.Cache

	// Logger receives progress output. Nil discards everything.
	Logger *logger.ConsoleLogger

	// BuildTree records the traversal structure in Result.Trees.
	BuildTree bool
}
