// Package sha256 provides SHA-256 hashing utilities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// shortLen is the digest prefix length shown in listings.
const shortLen = 12

// Hasher implements snapshot.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Short truncates a hex digest for display.
func Short(digest string) string {
	if len(digest) <= shortLen {
		return digest
	}
	return digest[:shortLen]
}
