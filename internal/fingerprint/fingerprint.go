// Package fingerprint derives the content key used to deduplicate uploaded images.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length of a rendered fingerprint: a hex-encoded SHA-256 digest.
const Size = sha256.Size * 2

// Of returns the lowercase hex SHA-256 digest of data. It is defined for every
// input, including an empty or nil slice.
func Of(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Valid reports whether s has the shape produced by Of.
func Valid(s string) bool {
	if len(s) != Size {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
