package agent

import (
	"github.com/atlas-desktop/olps-agents/internal/numeric"
	"github.com/atlas-desktop/olps-agents/internal/obs"
	"github.com/atlas-desktop/olps-agents/internal/qp"
	"go.uber.org/zap"
)

// ONS implements the Online Newton Step algorithm: it accumulates a
// rank-1 curvature estimate A and a gradient sum v, projects the
// Newton direction onto the simplex in the A-norm, and blends the
// result toward uniform by eta.
type ONS struct {
	BaseAgent

	Delta, Beta, Eta float64

	a      [][]float64
	v      []float64
	solver qp.Solver
}

func NewONS(logger *zap.Logger, solver qp.Solver) *ONS {
	return &ONS{
		BaseAgent: NewBaseAgent("ons", logger),
		Delta:     0.125, Beta: 1, Eta: 0,
		solver: solver,
	}
}

func (a *ONS) SetParams(params map[string]any) error {
	if v, ok := params["delta"]; ok {
		f, ok := v.(float64)
		if !ok || f <= 0 {
			return ErrInvalidParameter
		}
		a.Delta = f
	}
	if v, ok := params["beta"]; ok {
		f, ok := v.(float64)
		if !ok || f <= 0 {
			return ErrInvalidParameter
		}
		a.Beta = f
	}
	if v, ok := params["eta"]; ok {
		f, ok := v.(float64)
		if !ok || f < 0 {
			return ErrInvalidParameter
		}
		a.Eta = f
	}
	return nil
}

func (a *ONS) ensureState(m int) {
	if a.a != nil {
		return
	}
	a.a = identity(m)
	a.v = make([]float64, m)
}

func identity(m int) [][]float64 {
	out := make([][]float64, m)
	for i := range out {
		out[i] = make([]float64, m)
		out[i][i] = 1
	}
	return out
}

// Predict returns the price-relative vector ONS reacts to.
func (a *ONS) Predict(o *obs.Observation) ([]float64, error) {
	return o.PriceRelative(obs.RatioNowOverPrev, 0)
}

func (a *ONS) Rebalance(o *obs.Observation) ([]float64, error) {
	m := o.N() + 1
	a.ensureState(m)

	if a.Step() == 0 {
		b := UniformFirstStep(o.N())
		a.Remember(b)
		return b, nil
	}

	x, err := a.Predict(o)
	if err != nil {
		return a.Recover(err)
	}
	prevB := a.Previous()
	if prevB == nil {
		prevB = UniformFirstStep(o.N())
	}

	bx := dot(prevB, x)
	g := make([]float64, m)
	for i := range g {
		g[i] = numeric.SDiv(x[i], bx)
	}
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			a.a[i][j] += g[i] * g[j]
		}
	}
	coeff := 1 + 1/a.Beta
	for i := range a.v {
		a.v[i] += coeff * g[i]
	}

	pTilde := matVec(invertSPD(a.a), a.v)
	for i := range pTilde {
		pTilde[i] *= a.Delta
	}

	p, err := a.projectInNorm(pTilde, a.a)
	if err != nil {
		return nil, err
	}

	uniform := 1.0 / float64(m)
	out := make([]float64, m)
	for i := range out {
		out[i] = (1-a.Eta)*p[i] + a.Eta*uniform
	}
	a.Remember(out)
	return out, nil
}

// projectInNorm solves proj_M(x, M): min (b-x)^T M (b-x) s.t. b>=0, sum b=1.
func (a *ONS) projectInNorm(x []float64, m [][]float64) ([]float64, error) {
	n := len(x)
	P := make([][]float64, n)
	for i := range P {
		P[i] = make([]float64, n)
		for j := range P[i] {
			P[i][j] = 2 * m[i][j]
		}
	}
	q := make([]float64, n)
	for i := range q {
		var s float64
		for j := 0; j < n; j++ {
			s += m[i][j] * x[j]
		}
		q[i] = -2 * s
	}
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	out, err := a.solver.Solve(P, q, nil, nil, ones, 1)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func matVec(m [][]float64, v []float64) []float64 {
	out := make([]float64, len(v))
	for i := range m {
		var s float64
		for j := range v {
			s += m[i][j] * v[j]
		}
		out[i] = s
	}
	return out
}

// invertSPD inverts a small symmetric positive-definite matrix via
// Gauss-Jordan elimination with partial pivoting.
func invertSPD(m [][]float64) [][]float64 {
	n := len(m)
	aug := make([][]float64, n)
	for i := range aug {
		aug[i] = make([]float64, 2*n)
		copy(aug[i], m[i])
		aug[i][n+i] = 1
	}
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if abs(aug[r][col]) > abs(aug[pivot][col]) {
				pivot = r
			}
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]
		pv := aug[col][col]
		if abs(pv) < 1e-18 {
			pv = 1e-18
		}
		for c := 0; c < 2*n; c++ {
			aug[col][c] /= pv
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			for c := 0; c < 2*n; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}
	inv := make([][]float64, n)
	for i := range inv {
		inv[i] = append([]float64(nil), aug[i][n:]...)
	}
	return inv
}
