// Package archive implements the extraction capability: recognizing archive
// containers by their byte signature and unpacking them onto disk.
//
// Detection is always by magic bytes, never by file name, so a zip renamed
// to .txt is still recognized and a text file named .zip is not.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// Format identifies a supported archive or compression container.
type Format int

const (
	FormatUnknown Format = iota
	FormatZip
	FormatTar
	FormatGzip
	FormatBzip2
	FormatZstd
)

// String returns a short lowercase name for the format.
func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTar:
		return "tar"
	case FormatGzip:
		return "gzip"
	case FormatBzip2:
		return "bzip2"
	case FormatZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ErrUnknownFormat reports input whose signature matches no supported
// container.
var ErrUnknownFormat = errors.New("unrecognized archive format")

// tarMagicOffset is where the ustar magic lives inside a tar header block.
const tarMagicOffset = 257

// sniffLen covers the tar magic, the deepest signature we look for.
const sniffLen = tarMagicOffset + 8

var (
	zipMagic   = []byte{'P', 'K', 0x03, 0x04}
	zipEmpty   = []byte{'P', 'K', 0x05, 0x06}
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte{'B', 'Z', 'h'}
	zstdMagic  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	tarMagic   = []byte{'u', 's', 't', 'a', 'r'}
)

// Detect inspects a header buffer (at least the first few hundred bytes of
// a file) and reports the container format, or FormatUnknown.
func Detect(header []byte) Format {
	switch {
	case bytes.HasPrefix(header, zipMagic), bytes.HasPrefix(header, zipEmpty):
		return FormatZip
	case bytes.HasPrefix(header, gzipMagic):
		return FormatGzip
	case bytes.HasPrefix(header, bzip2Magic):
		return FormatBzip2
	case bytes.HasPrefix(header, zstdMagic):
		return FormatZstd
	}
	if len(header) >= tarMagicOffset+len(tarMagic) &&
		bytes.Equal(header[tarMagicOffset:tarMagicOffset+len(tarMagic)], tarMagic) {
		return FormatTar
	}
	return FormatUnknown
}

// SniffFile reads the head of the file at path and detects its format.
// A file too short to carry any signature is FormatUnknown, not an error.
func SniffFile(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("opening %s for sniffing: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return FormatUnknown, fmt.Errorf("reading %s header: %w", path, err)
	}
	return Detect(header[:n]), nil
}
