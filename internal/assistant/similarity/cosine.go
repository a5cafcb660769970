// Package similarity scores embedding vectors against each other.
package similarity

import "math"

// Cosine returns the cosine similarity of a and b clamped to [0,1].
// Mismatched lengths, empty vectors, zero norms and non-finite components all
// score 0 so that a single malformed vector degrades to "irrelevant".
func Cosine(a, b []float64) float64 {
	if !Comparable(a, b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case math.IsNaN(score) || score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}

// Comparable reports whether a and b are non-empty, equal-length and finite.
func Comparable(a, b []float64) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	for i := range a {
		if !finite(a[i]) || !finite(b[i]) {
			return false
		}
	}
	return true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
