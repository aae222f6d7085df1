package utils

import (
	"errors"
	"math"
)

var (
	ErrEmptyVector       = errors.New("vectors cannot be empty")
	ErrDimensionMismatch = errors.New("vectors must have the same dimension")
)

// CosineSimilarity returns the cosine of the angle between a and b. A zero
// vector has similarity 0 with everything.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyVector
	}
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB))), nil
}
