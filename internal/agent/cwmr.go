package agent

import (
	"math"

	"github.com/atlas-desktop/olps-agents/internal/numeric"
	"github.com/atlas-desktop/olps-agents/internal/obs"
	"go.uber.org/zap"
)

// CWMR is Confidence-Weighted Mean Reversion. Its belief is a Gaussian
// over the portfolio vector; variance shrinks toward certainty as
// evidence accumulates by adding a scaled diag(x)² to the precision
// matrix.
type CWMR struct {
	BaseAgent

	Eps        float64
	Confidence float64
	Variant1   bool // var=true selects the original-article approximation

	theta float64
	sigma [][]float64
}

func NewCWMR(logger *zap.Logger) *CWMR {
	a := &CWMR{BaseAgent: NewBaseAgent("cwmr", logger), Eps: -0.5, Confidence: 0.95}
	a.theta = normPPF(a.Confidence)
	return a
}

func (a *CWMR) SetParams(params map[string]any) error {
	if v, ok := params["eps"]; ok {
		f, ok := v.(float64)
		if !ok {
			return ErrInvalidParameter
		}
		a.Eps = f
	}
	if v, ok := params["confidence"]; ok {
		f, ok := v.(float64)
		if !ok || f < 0 || f > 1 {
			return ErrInvalidParameter
		}
		a.Confidence = f
		a.theta = normPPF(f)
	}
	if v, ok := params["var"]; ok {
		b, ok := v.(bool)
		if !ok {
			return ErrInvalidParameter
		}
		a.Variant1 = b
	}
	return nil
}

func (a *CWMR) ensureSigma(m int) {
	if a.sigma != nil {
		return
	}
	a.sigma = make([][]float64, m)
	diag := 1.0 / math.Pow(float64(m), 2)
	for i := range a.sigma {
		a.sigma[i] = make([]float64, m)
		a.sigma[i][i] = diag
	}
}

// Predict returns the direct price-relative ratio, fiat slot 1.
func (a *CWMR) Predict(o *obs.Observation) ([]float64, error) {
	return o.PriceRelative(obs.RatioNowOverPrev, 0)
}

func (a *CWMR) Rebalance(o *obs.Observation) ([]float64, error) {
	m := o.N() + 1
	a.ensureSigma(m)

	if a.Step() == 0 {
		b := UniformFirstStep(o.N())
		a.Remember(b)
		return b, nil
	}

	x, err := a.Predict(o)
	if err != nil {
		return a.Recover(err)
	}
	mu := a.Previous()
	if mu == nil {
		mu = UniformFirstStep(o.N())
	}

	M := dot(mu, x)
	V := quadForm(x, a.sigma)
	xBar := xUpper(a.sigma, x)

	rowSums := rowSums(a.sigma)
	xDotRowSums := dot(x, rowSums)
	theta := a.theta
	eps := a.Eps
	logM := math.Log(math.Max(M, 1e-12))

	var aa, bb, cc float64
	if !a.Variant1 {
		foo := (V-xBar*xDotRowSums)/(M*M) + V*theta*theta/2
		aa = foo*foo - V*V*math.Pow(theta, 4)/4
		bb = 2 * (eps - logM) * foo
		cc = math.Pow(eps-logM, 2) - V*theta*theta
	} else {
		foo := (V - xBar*xDotRowSums) / (M * M)
		aa = 2 * theta * V * foo
		bb = foo + 2*theta*V*(eps-logM)
		cc = eps - logM - theta*V
	}

	lambda := quadraticMaxRoot(aa, bb, cc)
	if lambda > 1e7 {
		lambda = 1e7
	}

	// mu = mu - lam * Sigma * (x - xBar*1) / M  (matrix-vector form)
	newMu := make([]float64, m)
	diff := make([]float64, m)
	for i := range diff {
		diff[i] = x[i] - xBar
	}
	sigmaDiff := matVec(a.sigma, diff)
	for i := 0; i < m; i++ {
		newMu[i] = mu[i] - lambda*sigmaDiff[i]/M
	}

	var newSigma [][]float64
	if !a.Variant1 {
		uSqrt := 0.5 * (-lambda*theta*V + math.Sqrt(lambda*lambda*theta*theta*V*V+4*V))
		if uSqrt == 0 {
			uSqrt = 1e-12
		}
		precision := addDiagSquared(invertSPD(a.sigma), theta*lambda/uSqrt, x)
		newSigma = invertSPD(precision)
	} else {
		precision := addDiagSquared(invertSPD(a.sigma), 2*lambda*theta, x)
		newSigma = invertSPD(precision)
	}

	projMu, err := numeric.ProjSimplex(newMu)
	if err != nil {
		return a.Recover(err)
	}
	tr := trace(newSigma)
	scale := float64(m*m) * tr
	if scale == 0 {
		scale = 1e-12
	}
	for i := range newSigma {
		for j := range newSigma[i] {
			newSigma[i][j] /= scale
		}
	}
	a.sigma = newSigma
	a.Remember(projMu)
	return projMu, nil
}

func quadForm(x []float64, m [][]float64) float64 {
	return dot(x, matVec(m, x))
}

func xUpper(sigma [][]float64, x []float64) float64 {
	var num float64
	for i := range x {
		num += sigma[i][i] * x[i]
	}
	return num / trace(sigma)
}

func rowSums(m [][]float64) []float64 {
	out := make([]float64, len(m))
	for i, row := range m {
		var s float64
		for _, v := range row {
			s += v
		}
		out[i] = s
	}
	return out
}

func trace(m [][]float64) float64 {
	var s float64
	for i := range m {
		s += m[i][i]
	}
	return s
}

func addDiagSquared(m [][]float64, coeff float64, x []float64) [][]float64 {
	n := len(m)
	out := make([][]float64, n)
	for i := range out {
		out[i] = append([]float64(nil), m[i]...)
	}
	for i := 0; i < n; i++ {
		out[i][i] += coeff * x[i] * x[i]
	}
	return out
}

// quadraticMaxRoot returns max(0, root1, root2) of a*t^2+b*t+c==0, or 0
// when the discriminant is negative or a is degenerate.
func quadraticMaxRoot(a, b, c float64) float64 {
	if math.Abs(a) < 1e-18 {
		return 0
	}
	disc := b*b - 4*a*c
	if disc < 0 {
		return 0
	}
	sq := math.Sqrt(disc)
	r1 := (-b + sq) / (2 * a)
	r2 := (-b - sq) / (2 * a)
	best := 0.0
	if r1 > best {
		best = r1
	}
	if r2 > best {
		best = r2
	}
	return best
}

// normPPF is the standard normal quantile function, phi^-1(p).
func normPPF(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}
	return math.Sqrt2 * math.Erfinv(2*p-1)
}
