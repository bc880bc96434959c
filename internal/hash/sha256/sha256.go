// Package sha256 digests rendered listing pages. The digest names the
// snapshot object, so an unchanged listing maps to the same object name.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements menu.Hasher.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
