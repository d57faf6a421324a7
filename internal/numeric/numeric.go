// Package numeric provides the projection and normalization primitives
// shared by every agent: simplex projection, softmax normalization, and
// safe division.
package numeric

import (
	"errors"
	"math"
	"sort"
)

// ErrInvalidInput is returned when a primitive receives a shape or
// finiteness violation it cannot recover from.
var ErrInvalidInput = errors.New("numeric: invalid input")

const epsilon = 1e-16

// SDiv returns a/b, or 0 when |b| is not distinguishable from zero.
func SDiv(a, b float64) float64 {
	if math.Abs(b) > epsilon {
		return a / b
	}
	return 0
}

// Norm applies softmax-style normalization: clip negative entries to
// zero, then divide by the sum. A zero sum yields the uniform
// distribution over len(y) entries.
func Norm(y []float64) []float64 {
	out := make([]float64, len(y))
	var sum float64
	for i, v := range y {
		if v < 0 {
			v = 0
		}
		out[i] = v
		sum += v
	}
	if sum == 0 {
		if len(out) == 0 {
			return out
		}
		u := 1.0 / float64(len(out))
		for i := range out {
			out[i] = u
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// ProjSimplex computes the Euclidean projection of y onto the unit
// simplex {b >= 0, sum(b) == 1}, following the sort-and-threshold
// algorithm (Duchi et al.): sort descending, find the largest rho for
// which the running mean excess stays positive, then shift and clip.
func ProjSimplex(y []float64) ([]float64, error) {
	m := len(y)
	if m == 0 {
		return nil, ErrInvalidInput
	}
	u := make([]float64, m)
	copy(u, y)
	for _, v := range u {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrInvalidInput
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(u)))

	var cumsum float64
	rho := 0
	lambda := 0.0
	for i, v := range u {
		cumsum += v
		t := (cumsum - 1) / float64(i+1)
		if v-t > 0 {
			rho = i + 1
			lambda = t
		}
	}
	if rho == 0 {
		// Not reached for finite input (i=0 always satisfies the
		// condition); kept as a guard that falls back to the first
		// element's own threshold.
		rho = 1
		lambda = u[0] - 1
	}

	out := make([]float64, m)
	for i, v := range y {
		d := v - lambda
		if d < 0 {
			d = 0
		}
		out[i] = d
	}
	return out, nil
}
