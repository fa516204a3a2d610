package walker

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/fvc/internal/cache"
	"github.com/harrison/fvc/internal/fvc"
	"github.com/harrison/fvc/internal/logger"
)

// The published FVC2 vector for the contents "foo\n", "bar\n", "zap\n".
const fooBarZapCode = "4656433200ad460448a5947428e2c3e98adfe45915d71f7a4b399910fed1022cc4e1cdc374"

// Code of an empty collection: prefix + sha256 of nothing.
const emptyCode = "4656433200e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func buildZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func buildTarGz(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func calculate(t *testing.T, opts Options, paths ...string) *Result {
	t.Helper()
	result, err := New(opts).Calculate(context.Background(), paths...)
	require.NoError(t, err)
	return result
}

func TestDirectoryKnownVector(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"foo.txt": "foo\n",
		"bar.txt": "bar\n",
		"zap.txt": "zap\n",
	})

	result := calculate(t, Options{Extract: ExtractNone}, dir)
	assert.Equal(t, fooBarZapCode, result.Code.Hex())
	assert.Equal(t, 3, result.FileCount)
	assert.Empty(t, result.Skipped)
}

func TestStructureIndependence(t *testing.T) {
	// The same two contents packaged three ways: nested directories, a
	// flat zip with different file names, and a tar.gz. All three must
	// produce the same code.
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"x/a.txt": "a",
		"y/b.txt": "b",
	})

	zipPath := filepath.Join(t.TempDir(), "d2.zip")
	buildZip(t, zipPath, map[string]string{
		"b.txt": "b",
		"a.txt": "a",
	})

	tgzPath := filepath.Join(t.TempDir(), "d3.tar.gz")
	buildTarGz(t, tgzPath, map[string]string{
		"deeply/nested/first": "a",
		"second":              "b",
	})

	fromDir := calculate(t, Options{Extract: ExtractAuto, MaxDepth: 8}, dir)
	fromZip := calculate(t, Options{Extract: ExtractAuto, MaxDepth: 8}, zipPath)
	fromTgz := calculate(t, Options{Extract: ExtractAuto, MaxDepth: 8}, tgzPath)

	assert.Equal(t, fromDir.Code.Hex(), fromZip.Code.Hex())
	assert.Equal(t, fromDir.Code.Hex(), fromTgz.Code.Hex())

	// One changed byte must change the code.
	changed := t.TempDir()
	writeTree(t, changed, map[string]string{
		"x/a.txt": "a",
		"y/b.txt": "B",
	})
	fromChanged := calculate(t, Options{Extract: ExtractAuto, MaxDepth: 8}, changed)
	assert.NotEqual(t, fromDir.Code.Hex(), fromChanged.Code.Hex())
}

func TestNestedArchives(t *testing.T) {
	// tar.gz inside a zip: contents must count as if laid out flat.
	inner := filepath.Join(t.TempDir(), "inner.tar.gz")
	buildTarGz(t, inner, map[string]string{"leaf.txt": "leaf content"})
	innerBytes, err := os.ReadFile(inner)
	require.NoError(t, err)

	outer := filepath.Join(t.TempDir(), "outer.zip")
	buildZip(t, outer, map[string]string{
		"nested.bin": string(innerBytes), // archive detected by signature, not name
		"plain.txt":  "plain",
	})

	flat := t.TempDir()
	writeTree(t, flat, map[string]string{
		"leaf.txt":  "leaf content",
		"plain.txt": "plain",
	})

	fromOuter := calculate(t, Options{Extract: ExtractAuto, MaxDepth: 8}, outer)
	fromFlat := calculate(t, Options{Extract: ExtractAuto, MaxDepth: 8}, flat)

	assert.Equal(t, fromFlat.Code.Hex(), fromOuter.Code.Hex())
	assert.Equal(t, 2, fromOuter.FileCount)
}

func TestDuplicateSensitivity(t *testing.T) {
	single := t.TempDir()
	writeTree(t, single, map[string]string{"a.txt": "same content"})

	double := t.TempDir()
	writeTree(t, double, map[string]string{
		"a.txt":     "same content",
		"sub/a.txt": "same content",
	})

	one := calculate(t, Options{Extract: ExtractNone}, single)
	two := calculate(t, Options{Extract: ExtractNone}, double)

	assert.NotEqual(t, one.Code.Hex(), two.Code.Hex())
	assert.Equal(t, 2, two.FileCount)
}

func TestEmptyDirectory(t *testing.T) {
	result := calculate(t, Options{Extract: ExtractAuto, MaxDepth: 8}, t.TempDir())

	assert.Equal(t, emptyCode, result.Code.Hex())
	assert.Equal(t, 0, result.FileCount)
	assert.Empty(t, result.Skipped)
}

func TestEmptyDirectoriesDoNotContribute(t *testing.T) {
	plain := t.TempDir()
	writeTree(t, plain, map[string]string{"a.txt": "a"})

	withEmpties := t.TempDir()
	writeTree(t, withEmpties, map[string]string{"sub/a.txt": "a"})
	require.NoError(t, os.MkdirAll(filepath.Join(withEmpties, "empty1", "empty2"), 0o755))

	assert.Equal(t,
		calculate(t, Options{Extract: ExtractNone}, plain).Code.Hex(),
		calculate(t, Options{Extract: ExtractNone}, withEmpties).Code.Hex())
}

func TestDeterminism(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"a.txt":       "alpha",
		"b/c.txt":     "beta",
		"d/e/f.txt":   "gamma",
		"archive.xyz": "not really an archive",
	})

	first := calculate(t, Options{Extract: ExtractAuto, MaxDepth: 8, Workers: 4}, dir)
	second := calculate(t, Options{Extract: ExtractAuto, MaxDepth: 8, Workers: 1}, dir)

	assert.Equal(t, first.Code.Hex(), second.Code.Hex())
	assert.Equal(t, first.FileCount, second.FileCount)
}

func TestExtractionDisabledTreatsArchiveAsOpaque(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "a.zip")
	buildZip(t, zipPath, map[string]string{"inner.txt": "inner"})

	// With extraction off, the code is over the raw archive bytes.
	d, _, err := fvc.HashFile(zipPath)
	require.NoError(t, err)
	expected := fvc.NewHasher()
	expected.Add(d)

	result := calculate(t, Options{Extract: ExtractNone}, zipPath)
	assert.Equal(t, expected.Hex(), result.Code.Hex())
	assert.Equal(t, 1, result.FileCount)

	// And it differs from the extracted interpretation.
	extracted := calculate(t, Options{Extract: ExtractAuto, MaxDepth: 8}, zipPath)
	assert.NotEqual(t, result.Code.Hex(), extracted.Code.Hex())
}

func TestExtractAllFallsBackOnPlainFiles(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"a.txt": "definitely not an archive",
		"b.txt": "also plain",
	})

	asNone := calculate(t, Options{Extract: ExtractNone}, dir)
	asAll := calculate(t, Options{Extract: ExtractAll, MaxDepth: 8}, dir)

	assert.Equal(t, asNone.Code.Hex(), asAll.Code.Hex())
	assert.Empty(t, asAll.Skipped)
}

func TestExtractAllHashesPlainFilesAtDepthBound(t *testing.T) {
	// An archive's plain entries sit at the depth bound once the archive
	// itself is extracted. Under "all" they are probed like everything
	// else, but not being archives they must still be hashed, not
	// reported against the recursion limit.
	tgz := filepath.Join(t.TempDir(), "payload.tar.gz")
	buildTarGz(t, tgz, map[string]string{"a.txt": "plain contents"})

	asAuto := calculate(t, Options{Extract: ExtractAuto, MaxDepth: 1}, tgz)
	asAll := calculate(t, Options{Extract: ExtractAll, MaxDepth: 1}, tgz)

	assert.Equal(t, 1, asAll.FileCount)
	assert.Empty(t, asAll.Skipped)
	assert.Equal(t, asAuto.Code.Hex(), asAll.Code.Hex())

	// A real archive at the same bound still hits the limit.
	inner := filepath.Join(t.TempDir(), "inner.zip")
	buildZip(t, inner, map[string]string{"deep.txt": "deep"})
	innerBytes, err := os.ReadFile(inner)
	require.NoError(t, err)
	outer := filepath.Join(t.TempDir(), "outer.zip")
	buildZip(t, outer, map[string]string{"inner.zip": string(innerBytes)})

	nested := calculate(t, Options{Extract: ExtractAll, MaxDepth: 1}, outer)
	require.Len(t, nested.Skipped, 1)
	assert.Equal(t, SkipRecursionLimit, nested.Skipped[0].Kind)
}

func TestRecursionLimit(t *testing.T) {
	inner := filepath.Join(t.TempDir(), "inner.zip")
	buildZip(t, inner, map[string]string{"deep.txt": "deep"})
	innerBytes, err := os.ReadFile(inner)
	require.NoError(t, err)

	outer := filepath.Join(t.TempDir(), "outer.zip")
	buildZip(t, outer, map[string]string{
		"inner.zip": string(innerBytes),
		"top.txt":   "top",
	})

	// MaxDepth 1: the root archive extracts, the nested one is refused.
	result := calculate(t, Options{Extract: ExtractAuto, MaxDepth: 1}, outer)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, SkipRecursionLimit, result.Skipped[0].Kind)
	assert.Contains(t, result.Skipped[0].Path, "inner.zip")
	// The sibling entry still counted.
	assert.Equal(t, 1, result.FileCount)

	// With room to recurse the nested contents count instead.
	deep := calculate(t, Options{Extract: ExtractAuto, MaxDepth: 8}, outer)
	assert.Empty(t, deep.Skipped)
	assert.Equal(t, 2, deep.FileCount)
	assert.NotEqual(t, result.Code.Hex(), deep.Code.Hex())
}

func TestSelfReferentialArchiveTerminates(t *testing.T) {
	// A zip whose only entry is a zip, several levels deep, all built from
	// the same payload: descent must stop at the bound, not hang.
	payload := filepath.Join(t.TempDir(), "level0.zip")
	buildZip(t, payload, map[string]string{"bottom.txt": "bottom"})
	for i := 0; i < 5; i++ {
		data, err := os.ReadFile(payload)
		require.NoError(t, err)
		buildZip(t, payload, map[string]string{"next.zip": string(data)})
	}

	result := calculate(t, Options{Extract: ExtractAuto, MaxDepth: 3}, payload)

	require.NotEmpty(t, result.Skipped)
	assert.Equal(t, SkipRecursionLimit, result.Skipped[0].Kind)
}

func TestSymlinksReportedNotFollowed(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"real.txt": "real"})
	require.NoError(t, os.Symlink(
		filepath.Join(dir, "real.txt"),
		filepath.Join(dir, "link.txt")))

	result := calculate(t, Options{Extract: ExtractNone}, dir)

	assert.Equal(t, 1, result.FileCount)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, SkipSymlink, result.Skipped[0].Kind)

	// The code matches the link-free tree: links never contribute.
	plain := t.TempDir()
	writeTree(t, plain, map[string]string{"real.txt": "real"})
	assert.Equal(t,
		calculate(t, Options{Extract: ExtractNone}, plain).Code.Hex(),
		result.Code.Hex())
}

func TestCorruptArchiveRecordedAndSkipped(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"good.txt": "good"})
	// Valid zip signature, garbage body: sniffed as archive, fails to open.
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "broken.zip"),
		append([]byte{'P', 'K', 0x03, 0x04}, []byte("garbage")...), 0o644))

	result := calculate(t, Options{Extract: ExtractAuto, MaxDepth: 8}, dir)

	assert.Equal(t, 1, result.FileCount)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, SkipExtraction, result.Skipped[0].Kind)
	assert.Contains(t, result.Skipped[0].Path, "broken.zip")
}

func TestRootUnreadableIsFatal(t *testing.T) {
	_, err := New(Options{Extract: ExtractNone}).Calculate(
		context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read root")
}

func TestNoPathsIsError(t *testing.T) {
	_, err := New(Options{}).Calculate(context.Background())
	assert.Error(t, err)
}

func TestMultipleRoots(t *testing.T) {
	dirA := t.TempDir()
	writeTree(t, dirA, map[string]string{"a.txt": "a"})
	dirB := t.TempDir()
	writeTree(t, dirB, map[string]string{"b.txt": "b"})

	combined := t.TempDir()
	writeTree(t, combined, map[string]string{"a.txt": "a", "b.txt": "b"})

	assert.Equal(t,
		calculate(t, Options{Extract: ExtractNone}, combined).Code.Hex(),
		calculate(t, Options{Extract: ExtractNone}, dirA, dirB).Code.Hex())
}

func TestStagingCleanedUp(t *testing.T) {
	stagingBase := t.TempDir()
	zipPath := filepath.Join(t.TempDir(), "a.zip")
	buildZip(t, zipPath, map[string]string{"f.txt": "f"})

	calculate(t, Options{Extract: ExtractAuto, MaxDepth: 8, StagingDir: stagingBase}, zipPath)

	entries, err := os.ReadDir(stagingBase)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging base should be empty after the run")
}

func TestStagingCleanedUpOnCancellation(t *testing.T) {
	stagingBase := t.TempDir()
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"a.txt": "a", "b.txt": "b"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before the walk starts

	_, err := New(Options{Extract: ExtractAuto, MaxDepth: 8, StagingDir: stagingBase}).
		Calculate(ctx, dir)
	require.Error(t, err)

	entries, err := os.ReadDir(stagingBase)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging base should be empty after cancellation")
}

func TestCacheServesSecondRun(t *testing.T) {
	c, err := cache.Open(filepath.Join(t.TempDir(), "digests.db"))
	require.NoError(t, err)
	defer c.Close()

	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"a.txt": "alpha",
		"b.txt": "beta",
	})

	opts := Options{Extract: ExtractNone, Cache: c}
	first := calculate(t, opts, dir)
	assert.Equal(t, 0, first.CacheHits)

	second := calculate(t, opts, dir)
	assert.Equal(t, 2, second.CacheHits)
	assert.Equal(t, first.Code.Hex(), second.Code.Hex())
}

func TestBuildTree(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "pkg.zip")
	buildZip(t, zipPath, map[string]string{
		"a.txt":     "a",
		"sub/b.txt": "b",
	})

	result := calculate(t, Options{Extract: ExtractAuto, MaxDepth: 8, BuildTree: true}, zipPath)

	require.Len(t, result.Trees, 1)
	root := result.Trees[0]
	require.NotNil(t, root.Archive)
	assert.Equal(t, "pkg.zip", root.Archive.Name)
	assert.NotEmpty(t, root.Archive.SHA256)
	assert.Len(t, root.Archive.Files, 2)
	for _, f := range root.Archive.Files {
		assert.NotEmpty(t, f.SHA256, "leaf digests should be filled in")
	}

	// Tree JSON is renderable.
	assert.True(t, strings.Contains(root.String(), "pkg.zip"))
}

func TestTreeLoggedAtDebugOnly(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "pkg.zip")
	buildZip(t, zipPath, map[string]string{"a.txt": "a"})

	var debugOut bytes.Buffer
	calculate(t, Options{
		Extract:   ExtractAuto,
		MaxDepth:  8,
		BuildTree: true,
		Logger:    logger.NewConsoleLogger(&debugOut, "debug"),
	}, zipPath)
	assert.Contains(t, debugOut.String(), "traversal tree:")
	assert.Contains(t, debugOut.String(), "pkg.zip")

	var infoOut bytes.Buffer
	calculate(t, Options{
		Extract:   ExtractAuto,
		MaxDepth:  8,
		BuildTree: true,
		Logger:    logger.NewConsoleLogger(&infoOut, "info"),
	}, zipPath)
	assert.NotContains(t, infoOut.String(), "traversal tree:")
}

func TestParseExtractPolicy(t *testing.T) {
	for s, want := range map[string]ExtractPolicy{
		"none": ExtractNone,
		"auto": ExtractAuto,
		"all":  ExtractAll,
	} {
		got, err := ParseExtractPolicy(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, s, got.String())
	}

	_, err := ParseExtractPolicy("maybe")
	assert.Error(t, err)
}
