// Package fingerprint derives the deduplication key for feedback content.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Length is the number of hex characters kept from the digest (64 bits).
const Length = 16

// Of returns the truncated SHA-256 hex digest of content. The exact bytes are
// hashed; no normalization is applied.
func Of(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:Length]
}
