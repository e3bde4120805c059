package persistence

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum hashes payload with SHA-256, hex-encoded. Hydrate compares this
// across equally-ranked candidates to flag a durable/session divergence.
func Checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
