// Package qp abstracts the convex quadratic program solved by the
// norm-induced simplex projection. No third-party convex-QP library is
// available in the dependency set this module draws from, so Solver is
// backed by a quiet in-process projected-gradient implementation
// (ActiveSetSolver); callers that
// want a different backend (cvxopt-equivalent, OSQP, …) only need to
// satisfy the interface.
package qp

import (
	"errors"

	"github.com/atlas-desktop/olps-agents/internal/numeric"
)

// ErrSolverFailure is returned when the solver does not converge within
// its iteration budget.
var ErrSolverFailure = errors.New("qp: solver failed to converge")

// Solver solves min (1/2) xᵀPx + qᵀx subject to Gx <= h, Ax = b.
//
// This module only ever calls it for the norm-induced simplex
// projection, passing G and h as nil and a single equality row
// A = 𝟙ᵀ, b = 1 (unit sum). ActiveSetSolver does not read G, h or A:
// it always solves over {x >= 0, sum(x) == b} and returns
// ErrSolverFailure when it does not converge.
type Solver interface {
	Solve(P [][]float64, q []float64, G [][]float64, h []float64, A []float64, b float64) ([]float64, error)
}

// ActiveSetSolver implements Solver for the nonnegative-simplex case
// using projected gradient descent in the Euclidean metric, which for
// a symmetric positive-definite P converges to the unique minimizer of
// the quadratic over the simplex. It never writes to stdout/stderr;
// silence is the contract §9 asks for.
type ActiveSetSolver struct {
	MaxIterations int
	Tolerance     float64
}

// NewActiveSetSolver returns a solver configured with sensible defaults.
func NewActiveSetSolver() *ActiveSetSolver {
	return &ActiveSetSolver{MaxIterations: 500, Tolerance: 1e-10}
}

func (s *ActiveSetSolver) Solve(P [][]float64, q []float64, G [][]float64, h []float64, A []float64, b float64) ([]float64, error) {
	n := len(q)
	if n == 0 || len(P) != n {
		return nil, ErrSolverFailure
	}
	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = 500
	}
	tol := s.Tolerance
	if tol <= 0 {
		tol = 1e-10
	}

	// Start from the uniform point on the simplex A·x = b (b is
	// assumed to be 1 for the unit-sum constraint this module uses).
	x := make([]float64, n)
	u := b / float64(n)
	for i := range x {
		x[i] = u
	}

	step := 1.0 / (lipschitz(P) + 1e-12)
	prev := make([]float64, n)
	for iter := 0; iter < maxIter; iter++ {
		grad := gradient(P, q, x)
		next := make([]float64, n)
		for i := range x {
			next[i] = x[i] - step*grad[i]
		}
		projected, err := projectSimplex(next, b)
		if err != nil {
			return nil, ErrSolverFailure
		}
		copy(prev, x)
		x = projected

		var delta float64
		for i := range x {
			d := x[i] - prev[i]
			delta += d * d
		}
		if delta < tol*tol {
			return x, nil
		}
	}
	return nil, ErrSolverFailure
}

func gradient(P [][]float64, q []float64, x []float64) []float64 {
	n := len(x)
	g := make([]float64, n)
	for i := 0; i < n; i++ {
		var s float64
		for j := 0; j < n; j++ {
			s += P[i][j] * x[j]
		}
		g[i] = s + q[i]
	}
	return g
}

// lipschitz estimates an upper bound on P's largest eigenvalue via the
// infinity norm, cheap and sufficient for a conservative step size.
func lipschitz(P [][]float64) float64 {
	var maxRowSum float64
	for _, row := range P {
		var s float64
		for _, v := range row {
			if v < 0 {
				v = -v
			}
			s += v
		}
		if s > maxRowSum {
			maxRowSum = s
		}
	}
	return maxRowSum
}

// projectSimplex projects onto {x >= 0, sum(x) == scale} by rescaling
// the standard unit-simplex projection.
func projectSimplex(y []float64, scale float64) ([]float64, error) {
	n := len(y)
	scaled := make([]float64, n)
	for i, v := range y {
		scaled[i] = v / scale
	}
	proj, err := numeric.ProjSimplex(scaled)
	if err != nil {
		return nil, err
	}
	for i := range proj {
		proj[i] *= scale
	}
	return proj, nil
}
