package fvc

import (
	"crypto/sha256"
	"io"
	"sort"
	"sync"
)

// Hasher accumulates per-file digests and produces the verification code of
// the collection seen so far. The order digests are added in is irrelevant:
// Sum sorts them before hashing. Duplicates are kept, never collapsed.
//
// Hasher is safe for concurrent use; hashing workers may Add from multiple
// goroutines.
type Hasher struct {
	mu      sync.Mutex
	digests []Digest
	sorted  bool
}

// NewHasher returns an empty Hasher. Summing it immediately yields the
// well-defined code of an empty collection (the hash of zero bytes).
func NewHasher() *Hasher {
	return &Hasher{}
}

// Add records a precomputed file digest.
func (h *Hasher) Add(d Digest) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.digests = append(h.digests, d)
	h.sorted = false
}

// AddReader hashes r and records the resulting digest, returning the number
// of bytes consumed.
func (h *Hasher) AddReader(r io.Reader) (int64, error) {
	d, n, err := HashReader(r)
	if err != nil {
		return n, err
	}
	h.Add(d)
	return n, nil
}

// Count returns the number of digests recorded so far.
func (h *Hasher) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.digests)
}

// Sum computes the verification code of the digests recorded so far:
// sort byte-lexicographically, concatenate, SHA-256, prefix with the
// version marker. Calling Sum repeatedly without intervening Adds reuses
// the existing sort.
func (h *Hasher) Sum() Code {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.sorted {
		sort.Slice(h.digests, func(i, j int) bool {
			return h.digests[i].Compare(h.digests[j]) < 0
		})
		h.sorted = true
	}

	final := sha256.New()
	for i := range h.digests {
		final.Write(h.digests[i][:])
	}

	var code Code
	copy(code[:], versionPrefix)
	copy(code[len(versionPrefix):], final.Sum(nil))
	return code
}

// Hex returns Sum as a hex string.
func (h *Hasher) Hex() string {
	return h.Sum().Hex()
}
