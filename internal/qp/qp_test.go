package qp_test

import (
	"math"
	"testing"

	"github.com/atlas-desktop/olps-agents/internal/qp"
)

func identity(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

func TestActiveSetSolverProjectsOntoSimplex(t *testing.T) {
	s := qp.NewActiveSetSolver()
	P := identity(3)
	x := []float64{0.6, 0.3, 0.1}
	q := make([]float64, 3)
	for i := range q {
		q[i] = -2 * x[i]
	}
	for i := range P {
		P[i][i] = 2
	}
	out, err := s.Solve(P, q, nil, nil, []float64{1, 1, 1}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sum float64
	for _, v := range out {
		if v < -1e-9 {
			t.Errorf("negative component %v", v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("expected sum 1, got %v", sum)
	}
}

func TestActiveSetSolverEmptyFails(t *testing.T) {
	s := qp.NewActiveSetSolver()
	if _, err := s.Solve(nil, nil, nil, nil, nil, 1); err == nil {
		t.Fatal("expected failure for empty problem")
	}
}
