// Package hash provides hashing utilities.
package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// SHA256 computes the SHA256 hash of data and returns it as a hex string.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SHA256String computes the SHA256 hash of a string.
func SHA256String(s string) string {
	return SHA256([]byte(s))
}

// SHA256Short returns the first n characters of a SHA256 hash.
func SHA256Short(data []byte, n int) string {
	h := SHA256(data)
	if n > len(h) {
		return h
	}
	return h[:n]
}

// Bucket maps (userID, experimentID) to a deterministic value in [0,1).
// The same pair always yields the same value, independent of wall-clock
// time or call order, which is what makes experiment assignment stable
// for the lifetime of an experiment.
func Bucket(userID, experimentID string) float64 {
	h := sha256.Sum256([]byte(userID + ":" + experimentID))
	return bucketValue(binary.BigEndian.Uint64(h[:8]))
}

// bucketValue keeps the top 53 bits so the quotient is exact in
// float64 and strictly below 1. Converting the full 64-bit value
// rounds inputs near the top of the range up to 1.0.
func bucketValue(v uint64) float64 {
	return float64(v>>11) / (1 << 53)
}

// CacheKey builds a deterministic cache key from an entity id and a
// version tag, so stored values invalidate when the version changes.
func CacheKey(id, version string) string {
	return SHA256Short([]byte(id+"@"+version), 32)
}
