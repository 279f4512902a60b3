package utils

import (
	"math"
	"strings"
)

// ToPtr returns a pointer to the given value
func ToPtr[T any](v T) *T {
	return &v
}

// IsTrue returns true if the pointer is non-nil and points to true
func IsTrue(b *bool) bool {
	return b != nil && *b
}

// Round4 rounds a value to 4 decimal places
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// Round6 rounds a value to 6 decimal places
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// NormalizeText lowercases a string, replaces every character outside
// [a-z0-9\s] with a space, and collapses runs of whitespace to a single
// space. Matching on normalized text keeps index lookups stable across
// umlauts, punctuation and spacing variants.
func NormalizeText(s string) string {
	lower := strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
