// Package economy turns a player's raw state into a quarterly financial
// report. Every number that enters a calculation passes through Sanitize
// first, so malformed upstream data degrades to zero instead of poisoning a
// report with NaN.
package economy

import "math"

// Sanitize returns 0 for NaN and infinities, otherwise v unchanged.
func Sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Coalesce returns *v when present, otherwise fallback, then sanitizes.
func Coalesce(v *float64, fallback float64) float64 {
	if v != nil {
		return Sanitize(*v)
	}
	return Sanitize(fallback)
}

// Round rounds half away from zero to whole currency units.
func Round(v float64) int64 {
	return int64(math.Round(Sanitize(v)))
}
