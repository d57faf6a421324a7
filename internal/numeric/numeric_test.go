package numeric_test

import (
	"math"
	"testing"

	"github.com/atlas-desktop/olps-agents/internal/numeric"
)

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

func TestProjSimplexUniform(t *testing.T) {
	out, err := numeric.ProjSimplex([]float64{0.5, 0.5, 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, v := range out {
		if math.Abs(v-1.0/3.0) > 1e-9 {
			t.Errorf("expected 1/3, got %v", v)
		}
	}
}

func TestProjSimplexScenario5(t *testing.T) {
	out, err := numeric.ProjSimplex([]float64{1.2, -0.3, 0.1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{1.0, 0.0, 0.0}
	for i := range want {
		if math.Abs(out[i]-want[i]) > 1e-9 {
			t.Errorf("index %d: want %v got %v", i, want[i], out[i])
		}
	}
}

func TestProjSimplexIdempotent(t *testing.T) {
	b := []float64{0.2, 0.3, 0.5}
	out, err := numeric.ProjSimplex(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range b {
		if math.Abs(out[i]-b[i]) > 1e-9 {
			t.Errorf("projection of a simplex point should be a no-op: index %d want %v got %v", i, b[i], out[i])
		}
	}
}

func TestProjSimplexSumsToOneAndNonnegative(t *testing.T) {
	cases := [][]float64{
		{3, -1, 0.2, 7},
		{-5, -5, -5},
		{0, 0, 0},
	}
	for _, c := range cases {
		out, err := numeric.ProjSimplex(c)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, v := range out {
			if v < -1e-12 {
				t.Errorf("negative entry %v in %v", v, out)
			}
		}
		if math.Abs(sum(out)-1) > 1e-9 {
			t.Errorf("sum %v != 1 for input %v", sum(out), c)
		}
	}
}

func TestProjSimplexEmptyFails(t *testing.T) {
	if _, err := numeric.ProjSimplex(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestProjSimplexNonFiniteFails(t *testing.T) {
	if _, err := numeric.ProjSimplex([]float64{1, math.NaN()}); err == nil {
		t.Fatal("expected error for non-finite input")
	}
}

func TestSDivZero(t *testing.T) {
	cases := []float64{1, 0, -5, 1e10}
	for _, a := range cases {
		if got := numeric.SDiv(a, 0); got != 0 {
			t.Errorf("SDiv(%v, 0) = %v, want 0", a, got)
		}
	}
}

func TestNormZeroSumUniform(t *testing.T) {
	out := numeric.Norm([]float64{0, 0, 0})
	for _, v := range out {
		if math.Abs(v-1.0/3.0) > 1e-12 {
			t.Errorf("expected uniform, got %v", out)
		}
	}
}

func TestNormClipsNegative(t *testing.T) {
	out := numeric.Norm([]float64{-1, 1, 2})
	if out[0] != 0 {
		t.Errorf("expected negative entry clipped to 0, got %v", out[0])
	}
	if math.Abs(sum(out)-1) > 1e-12 {
		t.Errorf("expected normalized sum 1, got %v", sum(out))
	}
}
