// Package walker drives one end-to-end verification code calculation:
// traversing roots, extracting nested archives into a staging area,
// fanning file contents out to hashing workers, and folding the digests
// into a single code.
//
// Traversal order is deliberately meaningless. The aggregation in
// internal/fvc sorts digests before the final hash, so the code is
// identical however the walk happens to be scheduled.
package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/harrison/fvc/internal/archive"
	"github.com/harrison/fvc/internal/fvc"
	"github.com/harrison/fvc/internal/logger"
	"github.com/harrison/fvc/internal/models"
	"github.com/harrison/fvc/internal/staging"
)

// Calculator performs verification code calculations. Each call to
// Calculate is one independent run with its own staging area; a Calculator
// may be reused sequentially but not concurrently.
type Calculator struct {
	opts Options
	log  *logger.ConsoleLogger

	hasher *fvc.Hasher
	area   *staging.Area

	mu        sync.Mutex
	skipped   []SkippedEntry
	fileCount int
	byteCount int64
	cacheHits int
}

// New returns a Calculator with the given options.
func New(opts Options) *Calculator {
	log := opts.Logger
	if log == nil {
		log = logger.NewConsoleLogger(nil, "")
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 1 // never extract below the roots themselves
	}
	return &Calculator{opts: opts, log: log}
}

// hashJob is one file handed to the hashing workers.
type hashJob struct {
	path      string
	size      int64
	mtimeNs   int64
	cacheable bool
	node      *models.File // tree leaf to fill in once hashed; may be nil
}

// Calculate computes the verification code of the given roots. Every root
// must be readable up front; anything else that goes wrong mid-run is
// recorded in Result.Skipped rather than aborting. The staging area is
// removed on every exit path, cancellation included.
func (c *Calculator) Calculate(ctx context.Context, paths ...string) (*Result, error) {
	if len(paths) == 0 {
		return nil, errors.New("no input paths given")
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("cannot read root %s: %w", path, err)
		}
	}

	c.hasher = fvc.NewHasher()
	c.skipped = nil
	c.fileCount, c.byteCount, c.cacheHits = 0, 0, 0

	if c.opts.Extract != ExtractNone {
		area, err := staging.New(c.opts.StagingDir)
		if err != nil {
			return nil, fmt.Errorf("preparing staging area: %w", err)
		}
		c.area = area
		defer func() {
			if closeErr := area.Close(); closeErr != nil {
				c.log.LogWarn(closeErr.Error())
			}
			c.area = nil
		}()
	}

	workers := c.opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan *hashJob)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return c.hashWorker(gctx, jobs)
		})
	}

	var walkErr error
	trees := make([]models.Collection, 0, len(paths))
	for _, path := range paths {
		col, err := c.walkRoot(gctx, path, jobs)
		if err != nil {
			walkErr = err
			break
		}
		trees = append(trees, col)
	}
	close(jobs)

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}

	result := &Result{
		Code:      c.hasher.Sum(),
		FileCount: c.fileCount,
		ByteCount: c.byteCount,
		CacheHits: c.cacheHits,
		Skipped:   c.skipped,
	}
	sort.Slice(result.Skipped, func(i, j int) bool {
		return result.Skipped[i].Path < result.Skipped[j].Path
	})
	if c.opts.BuildTree {
		result.Trees = trees
		if c.log.DebugEnabled() {
			// Serializing the tree is not free; skip it unless the
			// output would actually be shown.
			for _, tree := range trees {
				c.log.LogDebug("traversal tree: " + tree.String())
			}
		}
	}

	c.log.LogInfo(fmt.Sprintf("hashed %d files (%d bytes), skipped %d entries",
		result.FileCount, result.ByteCount, len(result.Skipped)))
	return result, nil
}

// walkRoot processes one top-level input, which may be a directory or a
// single file (possibly an archive).
func (c *Calculator) walkRoot(ctx context.Context, path string, jobs chan<- *hashJob) (models.Collection, error) {
	info, err := os.Stat(path)
	if err != nil {
		// Roots were checked before the walk started; losing one
		// mid-run is still fatal.
		return models.Collection{}, fmt.Errorf("cannot read root %s: %w", path, err)
	}

	if info.IsDir() {
		c.log.LogInfo(fmt.Sprintf("adding directory %q", path))
		dir, err := c.walkDir(ctx, path, 0, jobs)
		if err != nil {
			return models.Collection{}, err
		}
		return models.Collection{Directory: dir}, nil
	}

	if !info.Mode().IsRegular() {
		c.recordSkip(path, SkipIrregular, nil)
		return models.Collection{}, nil
	}

	fileNode, archNode, err := c.processFile(ctx, path, info, 0, jobs)
	if err != nil {
		return models.Collection{}, err
	}
	switch {
	case archNode != nil:
		return models.Collection{Archive: archNode}, nil
	case fileNode != nil:
		return models.Collection{File: fileNode}, nil
	default:
		return models.Collection{}, nil
	}
}

// walkDir traverses a directory tree, dispatching regular files and
// recording everything that cannot contribute to the code. depth is the
// nested-archive depth of the tree, not the directory nesting level.
func (c *Calculator) walkDir(ctx context.Context, root string, depth int, jobs chan<- *hashJob) (*models.Directory, error) {
	dir := models.NewDirectory(root)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Unreadable subtree: record and keep walking siblings.
			c.recordSkip(path, SkipIOError, err)
			return nil
		}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			// Never followed: a link either points inside the tree
			// (its target is hashed on its own) or outside of it
			// (out of scope). Following would invite cycles.
			c.recordSkip(path, SkipSymlink, nil)
		case d.IsDir():
			// Directories themselves carry no content; empty ones
			// contribute nothing.
		case d.Type().IsRegular():
			info, infoErr := d.Info()
			if infoErr != nil {
				c.recordSkip(path, SkipIOError, infoErr)
				return nil
			}
			fileNode, archNode, procErr := c.processFile(ctx, path, info, depth, jobs)
			if procErr != nil {
				return procErr
			}
			rel := relOrBase(root, path)
			if archNode != nil {
				dir.AddArchive(rel, archNode)
			} else if fileNode != nil {
				dir.AddFile(rel, fileNode)
			}
		default:
			c.recordSkip(path, SkipIrregular, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dir, nil
}

// processFile decides, per the extraction policy, whether path is hashed as
// opaque bytes or extracted and descended into. It returns the tree node
// for whichever happened; both nil means the entry was skipped and
// recorded. A non-nil error is always a cancellation.
func (c *Calculator) processFile(ctx context.Context, path string, info fs.FileInfo, depth int, jobs chan<- *hashJob) (*models.File, *models.Archive, error) {
	tryExtract := false
	switch c.opts.Extract {
	case ExtractAll:
		tryExtract = true
	case ExtractAuto:
		format, err := archive.SniffFile(path)
		if err != nil {
			c.recordSkip(path, SkipIOError, err)
			return nil, nil, nil
		}
		tryExtract = format != archive.FormatUnknown
	}

	if !tryExtract {
		node, err := c.enqueue(ctx, path, info, jobs)
		return node, nil, err
	}
	return c.processArchive(ctx, path, info, depth, jobs)
}

// processArchive extracts path into a fresh staging directory and walks the
// extracted contents at depth+1.
func (c *Calculator) processArchive(ctx context.Context, path string, info fs.FileInfo, depth int, jobs chan<- *hashJob) (*models.File, *models.Archive, error) {
	if depth >= c.opts.MaxDepth {
		if c.opts.Extract == ExtractAll {
			// "all" probes every file; at the depth bound only the ones
			// that really are archives hit the recursion limit. The rest
			// are plain files and their bytes still count.
			format, err := archive.SniffFile(path)
			if err != nil {
				c.recordSkip(path, SkipIOError, err)
				return nil, nil, nil
			}
			if format == archive.FormatUnknown {
				node, enqErr := c.enqueue(ctx, path, info, jobs)
				return node, nil, enqErr
			}
		}
		c.recordSkip(path, SkipRecursionLimit,
			fmt.Errorf("nested archive depth %d exceeds limit %d", depth+1, c.opts.MaxDepth))
		return nil, nil, nil
	}

	dst, err := c.area.Dir(filepath.Base(path))
	if err != nil {
		// Staging trouble is an environment problem, not an archive
		// problem; the file's bytes can still count.
		c.recordSkip(path, SkipIOError, err)
		return nil, nil, nil
	}

	entryErrs, err := archive.Extract(path, dst)
	if err != nil {
		os.RemoveAll(dst)
		if c.opts.Extract == ExtractAll {
			// Expected under "all": most files are not archives.
			// Treat as an opaque file, as if never tried.
			c.log.LogTrace(fmt.Sprintf("not extractable, hashing as file: %q (%v)", path, err))
			node, enqErr := c.enqueue(ctx, path, info, jobs)
			return node, nil, enqErr
		}
		// The signature said archive but extraction failed: the
		// contents are unreachable, so the entry is skipped.
		c.recordSkip(path, SkipExtraction, err)
		return nil, nil, nil
	}
	c.log.LogInfo(fmt.Sprintf("extracted archive %q", path))

	for _, entryErr := range entryErrs {
		c.recordSkip(path+"!"+entryErr.Name, SkipExtraction, entryErr.Err)
	}

	archNode := models.NewArchive(filepath.Base(path), info.Size())
	if c.opts.BuildTree {
		// The archive's own digest is diagnostic only; it is never
		// part of the code once the contents are extracted.
		if d, _, hashErr := fvc.HashFile(path); hashErr == nil {
			archNode.SHA256 = d.Hex()
		}
	}

	subdir, err := c.walkDir(ctx, dst, depth+1, jobs)
	if err != nil {
		return nil, nil, err
	}
	archNode.Files = subdir.Files
	archNode.Archives = subdir.Archives
	return nil, archNode, nil
}

// enqueue hands a file to the hashing workers, blocking until a worker
// accepts it or the run is cancelled.
func (c *Calculator) enqueue(ctx context.Context, path string, info fs.FileInfo, jobs chan<- *hashJob) (*models.File, error) {
	c.log.LogTrace(fmt.Sprintf("adding file %q", path))
	job := &hashJob{
		path:      path,
		size:      info.Size(),
		mtimeNs:   info.ModTime().UnixNano(),
		cacheable: c.opts.Cache != nil && (c.area == nil || !c.area.Contains(path)),
	}
	if c.opts.BuildTree {
		job.node = &models.File{Name: filepath.Base(path), Size: info.Size()}
	}

	select {
	case jobs <- job:
		return job.node, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// hashWorker consumes jobs until the channel closes, adding one digest per
// file. Read failures are recorded, never fatal.
func (c *Calculator) hashWorker(ctx context.Context, jobs <-chan *hashJob) error {
	for job := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}

		if job.cacheable {
			if d, hit, err := c.opts.Cache.Get(job.path, job.size, job.mtimeNs); err == nil && hit {
				c.hasher.Add(d)
				c.recordHashed(0, true)
				if job.node != nil {
					job.node.SHA256 = d.Hex()
				}
				continue
			}
		}

		d, n, err := fvc.HashFile(job.path)
		if err != nil {
			c.recordSkip(job.path, SkipIOError, err)
			continue
		}
		c.hasher.Add(d)
		c.recordHashed(n, false)
		if job.node != nil {
			job.node.SHA256 = d.Hex()
			job.node.Size = n
		}

		if job.cacheable {
			if err := c.opts.Cache.Put(job.path, job.size, job.mtimeNs, d); err != nil {
				c.log.LogDebug(fmt.Sprintf("cache store failed for %q: %v", job.path, err))
			}
		}
	}
	return nil
}

func (c *Calculator) recordHashed(bytes int64, fromCache bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fileCount++
	c.byteCount += bytes
	if fromCache {
		c.cacheHits++
	}
}

func (c *Calculator) recordSkip(path string, kind SkipKind, cause error) {
	entry := SkippedEntry{Path: path, Kind: kind}
	if cause != nil {
		entry.Reason = cause.Error()
	}

	switch kind {
	case SkipSymlink, SkipIrregular:
		c.log.LogDebug(fmt.Sprintf("skipping %s %q", kind, path))
	default:
		c.log.LogWarn(fmt.Sprintf("skipping %q (%s): %s", path, kind, entry.Reason))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipped = append(c.skipped, entry)
}

// relOrBase returns path relative to root, or its base name if that fails.
func relOrBase(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}
