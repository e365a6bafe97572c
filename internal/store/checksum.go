package store

import (
	"crypto/sha256"
	"encoding/base64"
)

// Checksum returns the base64-encoded SHA-256 digest of content. It is used
// to detect unchanged files across indexing passes; collision resistance
// matters, ordering does not.
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return base64.StdEncoding.EncodeToString(sum[:])
}
