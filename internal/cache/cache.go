// Package cache implements the optional persistent digest cache: a small
// SQLite database mapping (path, size, mtime) to the file's SHA-256, so
// repeated runs over large unchanged trees skip re-reading every byte.
//
// The cache only ever holds digests of on-disk files; extracted archive
// entries live in the ephemeral staging area and are never cached. It is an
// opt-in accelerator; with it disabled the pipeline keeps no state at all.
package cache

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/fvc/internal/fvc"
)

//go:embed schema.sql
var schemaSQL string

// Cache is a handle to the digest database. Safe for concurrent use; the
// underlying *sql.DB serializes access and the schema uses WAL mode.
type Cache struct {
	db     *sql.DB
	dbPath string
}

// Open opens (creating if necessary) the digest cache at dbPath.
// ":memory:" is accepted for tests.
func Open(dbPath string) (*Cache, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	// busy_timeout first so the remaining pragmas wait on locks instead of
	// failing when another fvc process holds the database.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := execWithRetry(db, schemaSQL, 5, 10*time.Millisecond); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}

	return &Cache{db: db, dbPath: dbPath}, nil
}

// execWithRetry executes a SQL statement with exponential backoff on
// "database is locked" errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Get looks up the digest for path, valid only if both size and mtime still
// match what was recorded. The second return reports a usable hit.
func (c *Cache) Get(path string, size int64, mtimeNs int64) (fvc.Digest, bool, error) {
	var (
		gotSize  int64
		gotMtime int64
		hexSHA   string
	)
	err := c.db.QueryRow(
		"SELECT size, mtime_ns, sha256 FROM file_digests WHERE path = ?", path,
	).Scan(&gotSize, &gotMtime, &hexSHA)
	if err == sql.ErrNoRows {
		return fvc.Digest{}, false, nil
	}
	if err != nil {
		return fvc.Digest{}, false, fmt.Errorf("cache lookup for %s: %w", path, err)
	}
	if gotSize != size || gotMtime != mtimeNs {
		return fvc.Digest{}, false, nil // stale entry; caller re-hashes
	}

	d, err := fvc.ParseDigest(hexSHA)
	if err != nil {
		// Corrupt row; treat as a miss rather than poisoning the run.
		return fvc.Digest{}, false, nil
	}
	return d, true, nil
}

// Put records the digest for path at the given size and mtime, replacing
// any previous entry.
func (c *Cache) Put(path string, size int64, mtimeNs int64, d fvc.Digest) error {
	_, err := c.db.Exec(
		`INSERT INTO file_digests (path, size, mtime_ns, sha256, seen_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(path) DO UPDATE SET
		   size = excluded.size,
		   mtime_ns = excluded.mtime_ns,
		   sha256 = excluded.sha256,
		   seen_at = excluded.seen_at`,
		path, size, mtimeNs, d.Hex(),
	)
	if err != nil {
		return fmt.Errorf("cache store for %s: %w", path, err)
	}
	return nil
}

// Stats reports the number of cached digests.
func (c *Cache) Stats() (int64, error) {
	var count int64
	if err := c.db.QueryRow("SELECT COUNT(*) FROM file_digests").Scan(&count); err != nil {
		return 0, fmt.Errorf("cache stats: %w", err)
	}
	return count, nil
}

// Clear removes every cached digest.
func (c *Cache) Clear() error {
	if _, err := c.db.Exec("DELETE FROM file_digests"); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.dbPath
}

// Close closes the database.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
