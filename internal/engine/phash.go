package engine

import (
	"math/bits"
	"strconv"
	"strings"
)

const (
	// HashHexLength is the width of a 64-bit perceptual hash in hex characters.
	HashHexLength = 16
	// MaxHashDistance is the largest Hamming distance still treated as the same thumbnail.
	MaxHashDistance = 12
)

// HammingDistance counts the differing bits between two hex-encoded hashes.
//
// Behavior:
//   - Returns ok=false if either hash is empty, the lengths differ, the
//     width is not 16 hex chars, or either string is not valid hex.
//   - Comparison is case-insensitive.
func HammingDistance(a, b string) (int, bool) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" || len(a) != len(b) || len(a) != HashHexLength {
		return 0, false
	}
	x, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return 0, false
	}
	y, err := strconv.ParseUint(b, 16, 64)
	if err != nil {
		return 0, false
	}
	return bits.OnesCount64(x ^ y), true
}

// HashesMatch reports whether two thumbnails are within MaxHashDistance (inclusive).
func HashesMatch(a, b string) bool {
	d, ok := HammingDistance(a, b)
	return ok && d <= MaxHashDistance
}
