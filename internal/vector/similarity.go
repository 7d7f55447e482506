// Package vector provides similarity helpers for embedding vectors.
package vector

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two vectors have different lengths.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ErrNonFinite is returned when a vector holds a NaN or infinite component.
var ErrNonFinite = errors.New("vector has non-finite component")

// DegenerateVectorError reports a zero-norm operand, for which cosine similarity is undefined.
type DegenerateVectorError struct {
	Operand string // "query" or the corpus identifier
}

func (e *DegenerateVectorError) Error() string {
	return fmt.Sprintf("degenerate vector (zero norm): %s", e.Operand)
}

// InnerProduct returns the inner product of two vectors, accumulated in float64 in index order.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// FirstNonFinite returns the index of the first NaN or infinite component of x, or -1.
func FirstNonFinite(x []float32) int {
	for i, v := range x {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i
		}
	}
	return -1
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Cosine returns dot(a, b) / (|a| * |b|). The operands must have equal, non-zero length
// and non-zero norm.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	na := L2Norm(a)
	if na == 0 {
		return 0, &DegenerateVectorError{Operand: "a"}
	}
	nb := L2Norm(b)
	if nb == 0 {
		return 0, &DegenerateVectorError{Operand: "b"}
	}
	return CosineWithNorms(a, b, na, nb), nil
}

// CosineWithNorms computes cosine similarity with precomputed non-zero norms.
// The result is clamped to [-1, 1] to absorb rounding at the extremes.
func CosineWithNorms(a, b []float32, na, nb float64) float64 {
	s := InnerProduct(a, b) / (na * nb)
	return math.Max(-1, math.Min(1, s))
}
