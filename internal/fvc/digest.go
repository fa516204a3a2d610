// Package fvc implements version 2 of the file verification code: the
// SHA-256 of the sorted SHA-256s of every file in a collection, prefixed
// with the version marker "FVC2\x00".
//
// The code is independent of file names, directory layout, and discovery
// order; it depends only on the multiset of file contents. Duplicate
// contents are retained, so a collection containing the same file twice
// codes differently from one containing it once.
package fvc

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// DigestSize is the length in bytes of a per-file digest.
const DigestSize = sha256.Size

// versionPrefix is prepended to the final hash. The trailing NUL terminates
// the version marker so future versions can extend it unambiguously.
var versionPrefix = []byte{'F', 'V', 'C', '2', 0x00}

// CodeSize is the length in bytes of a complete verification code
// (version prefix plus final hash).
const CodeSize = len("FVC2") + 1 + DigestSize

// Digest is the SHA-256 of a single file's content. Equality is byte-wise
// and digests order byte-lexicographically.
type Digest [DigestSize]byte

// Hex returns the digest as a lowercase hex string.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// Compare orders two digests byte-lexicographically, returning -1, 0 or 1.
func (d Digest) Compare(other Digest) int {
	return bytes.Compare(d[:], other[:])
}

// ParseDigest decodes a 64-character hex string into a Digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("invalid digest hex: %w", err)
	}
	if len(raw) != DigestSize {
		return d, fmt.Errorf("invalid digest length: got %d bytes, want %d", len(raw), DigestSize)
	}
	copy(d[:], raw)
	return d, nil
}

// Code is a complete file verification code: the version prefix followed by
// the hash of the sorted per-file digests.
type Code [CodeSize]byte

// Bytes returns the code as a byte slice, for binary output.
func (c Code) Bytes() []byte {
	return c[:]
}

// Hex returns the code as a lowercase hex string. Version 2 codes always
// begin with "4656433200", the hex encoding of the prefix.
func (c Code) Hex() string {
	return hex.EncodeToString(c[:])
}

// ParseCode decodes and validates a hex-encoded verification code.
func ParseCode(s string) (Code, error) {
	var c Code
	raw, err := hex.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("invalid code hex: %w", err)
	}
	if len(raw) != CodeSize {
		return c, fmt.Errorf("invalid code length: got %d bytes, want %d", len(raw), CodeSize)
	}
	if !bytes.HasPrefix(raw, versionPrefix) {
		return c, fmt.Errorf("missing FVC2 version prefix")
	}
	copy(c[:], raw)
	return c, nil
}

// HashReader streams r through SHA-256 and returns the digest and the
// number of bytes read. The content is never held in memory as a whole, so
// arbitrarily large files are fine. An empty reader yields the digest of
// the empty input, not an error.
func HashReader(r io.Reader) (Digest, int64, error) {
	var d Digest
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return d, n, fmt.Errorf("hashing stream: %w", err)
	}
	copy(d[:], h.Sum(nil))
	return d, n, nil
}

// HashFile opens path and hashes its content with HashReader.
func HashFile(path string) (Digest, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return HashReader(f)
}
