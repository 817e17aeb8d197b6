// Package md5 provides the URL digest used to name downloaded images.
package md5

import (
	"crypto/md5" // #nosec G501 -- content naming, not security.
	"encoding/hex"
)

// Hasher computes hex MD5 digests.
type Hasher struct{}

// New returns an MD5 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) string {
	sum := md5.Sum(data) // #nosec G401
	return hex.EncodeToString(sum[:])
}

// Short returns the first n hex characters of the digest of s.
func (h *Hasher) Short(s string, n int) string {
	digest := h.Hash([]byte(s))
	if n <= 0 || n > len(digest) {
		return digest
	}
	return digest[:n]
}
