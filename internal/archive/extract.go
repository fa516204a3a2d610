package archive

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// EntryError records a single archive entry that could not be extracted.
// The rest of the archive is still usable.
type EntryError struct {
	Name string
	Err  error
}

func (e EntryError) Error() string {
	return fmt.Sprintf("entry %q: %v", e.Name, e.Err)
}

// Extract unpacks the archive at src into the directory dst, which must
// already exist. The container format is detected by signature. Compressed
// non-tar payloads (a lone .gz, .bz2 or .zst) decompress to a single file.
//
// Entries that fail individually are reported in the returned slice and do
// not abort extraction. A non-nil error means the archive as a whole could
// not be read; callers should then treat src as an opaque file.
func Extract(src, dst string) ([]EntryError, error) {
	format, err := SniffFile(src)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatZip:
		return extractZip(src, dst)
	case FormatTar:
		f, err := os.Open(src)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", src, err)
		}
		defer f.Close()
		return extractTar(f, dst)
	case FormatGzip, FormatBzip2, FormatZstd:
		return extractCompressed(src, dst, format)
	default:
		return nil, fmt.Errorf("%s: %w", src, ErrUnknownFormat)
	}
}

// extractCompressed decompresses src and extracts the payload: a tar stream
// is unpacked as a tree, anything else becomes one file.
func extractCompressed(src, dst string, format Format) ([]EntryError, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", src, err)
	}
	defer f.Close()

	var decompressed io.Reader
	switch format {
	case FormatGzip:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("reading gzip %s: %w", src, err)
		}
		defer gz.Close()
		decompressed = gz
	case FormatBzip2:
		decompressed = bzip2.NewReader(f)
	case FormatZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("reading zstd %s: %w", src, err)
		}
		defer zr.Close()
		decompressed = zr
	default:
		return nil, fmt.Errorf("%s: %w", src, ErrUnknownFormat)
	}

	// Peek at the payload: compressed tarballs are by far the common case.
	buffered := bufio.NewReaderSize(decompressed, sniffLen)
	header, err := buffered.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("reading payload of %s: %w", src, err)
	}

	if Detect(header) == FormatTar {
		return extractTar(buffered, dst)
	}

	target := filepath.Join(dst, payloadName(src))
	if err := writeFile(target, buffered, 0o644); err != nil {
		return nil, fmt.Errorf("writing payload of %s: %w", src, err)
	}
	return nil, nil
}

// payloadName names the single decompressed payload of src: the base name
// with its compression extension stripped, or "payload" if nothing is left.
func payloadName(src string) string {
	base := filepath.Base(src)
	trimmed := strings.TrimSuffix(base, filepath.Ext(base))
	if trimmed == "" || trimmed == "." {
		return "payload"
	}
	return trimmed
}

func extractZip(src, dst string) ([]EntryError, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("opening zip %s: %w", src, err)
	}
	defer zr.Close()

	var entryErrs []EntryError
	for _, entry := range zr.File {
		target, err := safeJoin(dst, entry.Name)
		if err != nil {
			entryErrs = append(entryErrs, EntryError{Name: entry.Name, Err: err})
			continue
		}

		info := entry.FileInfo()
		switch {
		case info.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				entryErrs = append(entryErrs, EntryError{Name: entry.Name, Err: err})
			}
		case info.Mode().IsRegular():
			rc, err := entry.Open()
			if err != nil {
				entryErrs = append(entryErrs, EntryError{Name: entry.Name, Err: err})
				continue
			}
			err = writeFile(target, rc, 0o644)
			rc.Close()
			if err != nil {
				entryErrs = append(entryErrs, EntryError{Name: entry.Name, Err: err})
			}
		default:
			// Symlinks and other irregular entries carry no hashable
			// content; they are not materialized.
		}
	}
	return entryErrs, nil
}

func extractTar(r io.Reader, dst string) ([]EntryError, error) {
	tr := tar.NewReader(r)

	var entryErrs []EntryError
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return entryErrs, nil
		}
		if err != nil {
			return entryErrs, fmt.Errorf("reading tar stream: %w", err)
		}

		target, err := safeJoin(dst, hdr.Name)
		if err != nil {
			entryErrs = append(entryErrs, EntryError{Name: hdr.Name, Err: err})
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				entryErrs = append(entryErrs, EntryError{Name: hdr.Name, Err: err})
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, 0o644); err != nil {
				entryErrs = append(entryErrs, EntryError{Name: hdr.Name, Err: err})
			}
		default:
			// Links, devices and the like are not materialized.
		}
	}
}

// safeJoin joins an archive entry name onto dst, rejecting names that would
// escape it (absolute paths, ".." traversal).
func safeJoin(dst, name string) (string, error) {
	name = filepath.FromSlash(name)
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("unsafe entry path %q", name)
	}
	return filepath.Join(dst, name), nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
