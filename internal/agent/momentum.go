package agent

import (
	"github.com/atlas-desktop/olps-agents/internal/numeric"
	"github.com/atlas-desktop/olps-agents/internal/obs"
	"go.uber.org/zap"
)

// Momentum trades a moving-average crossover signal with a
// passive-aggressive update sized by its violation of a sensitivity
// threshold.
type Momentum struct {
	BaseAgent

	MA1, MA2   int
	StdSpan    int
	AlphaV     float64
	AlphaA     float64
	MeanType   obs.MAKind
	Sensitivity float64
	// Rebalance selects which prior portfolio index feeds the update:
	// true reads the pre-trade portfolio at t-2, false reads the
	// current realized portfolio at t-1 (§4.5, §9 open question).
	Rebalance bool
}

func NewMomentum(logger *zap.Logger) *Momentum {
	return &Momentum{
		BaseAgent: NewBaseAgent("momentum", logger),
		MA1:       5, MA2: 10, StdSpan: 10,
		AlphaV: 1, AlphaA: 1, MeanType: obs.Simple,
		Sensitivity: 0, Rebalance: true,
	}
}

func (a *Momentum) SetParams(params map[string]any) error {
	if v, ok := params["ma1"]; ok {
		n, ok := v.(int)
		if !ok || n < 2 {
			return ErrInvalidParameter
		}
		a.MA1 = n
	}
	if v, ok := params["ma2"]; ok {
		n, ok := v.(int)
		if !ok || n < 2 {
			return ErrInvalidParameter
		}
		a.MA2 = n
	}
	if a.MA1 >= a.MA2 {
		return ErrInvalidParameter
	}
	if v, ok := params["std_span"]; ok {
		n, ok := v.(int)
		if !ok || n < 2 {
			return ErrInvalidParameter
		}
		a.StdSpan = n
	}
	if v, ok := params["alpha_v"]; ok {
		f, ok := v.(float64)
		if !ok || f <= 0 || f > 1 {
			return ErrInvalidParameter
		}
		a.AlphaV = f
	}
	if v, ok := params["alpha_a"]; ok {
		f, ok := v.(float64)
		if !ok || f <= 0 || f > 1 {
			return ErrInvalidParameter
		}
		a.AlphaA = f
	}
	if v, ok := params["mean_type"]; ok {
		k, ok := v.(obs.MAKind)
		if !ok {
			return ErrInvalidParameter
		}
		a.MeanType = k
	}
	if v, ok := params["sensitivity"]; ok {
		f, ok := v.(float64)
		if !ok {
			return ErrInvalidParameter
		}
		a.Sensitivity = f
	}
	if v, ok := params["rebalance"]; ok {
		b, ok := v.(bool)
		if !ok {
			return ErrInvalidParameter
		}
		a.Rebalance = b
	}
	return nil
}

// Predict returns the price-relative-style signal x (factor normalized
// to unit sum then shifted by 1), length n+1, fiat slot 1.
func (a *Momentum) Predict(o *obs.Observation) ([]float64, error) {
	n := o.N()
	factor := make([]float64, n+1)

	diffSeries := make([]float64, 0, 4)
	for i, sym := range o.Symbols {
		win1, err := o.Window(sym, "open", a.MA1+4)
		if err != nil {
			return nil, err
		}
		win2, err := o.Window(sym, "open", a.MA2+4)
		if err != nil {
			return nil, err
		}
		stdWin, err := o.Window(sym, "open", a.StdSpan)
		if err != nil {
			return nil, err
		}

		diffSeries = diffSeries[:0]
		last := 0.0
		for k := 0; k < 4; k++ {
			sub1 := win1[:len(win1)-4+k+1]
			sub2 := win2[:len(win2)-4+k+1]
			m1, err := obs.MovingAverage(sub1, a.MeanType, a.MA1)
			if err != nil {
				return nil, err
			}
			m2, err := obs.MovingAverage(sub2, a.MeanType, a.MA2)
			if err != nil {
				return nil, err
			}
			diffSeries = append(diffSeries, m1-m2)
			last = m1 - m2
		}
		p := last
		d := diffSeries[len(diffSeries)-1] - diffSeries[len(diffSeries)-2]
		sigma := obs.StdDev(stdWin)

		factor[i] = a.AlphaV * (p + a.AlphaA*d) / (sigma + 1e-16)
	}
	factor[n] = 0

	x := numeric.Norm(factor)
	for i := range x {
		x[i] += 1
	}
	x[n] = 1
	return x, nil
}

func (a *Momentum) Rebalance(o *obs.Observation) ([]float64, error) {
	if a.Step() == 0 {
		b := UniformFirstStep(o.N())
		a.Remember(b)
		return b, nil
	}
	x, err := a.Predict(o)
	if err != nil {
		return a.Recover(err)
	}

	back := 2
	if !a.Rebalance {
		back = 1
	}
	prevB, err := a.referencePortfolio(o, back)
	if err != nil {
		return a.Recover(err)
	}

	m := mean(x)
	portvar := dot(prevB, x)
	_, maxX := maxAbs(sub1(x))
	change := (abs(portvar-1) + maxX) / 2
	denom := normSquaredFromMean(x, m) + 1e-16
	lambda := clip((change-a.Sensitivity)/denom, 0, 1e6)

	updated := scaleAndShift(x, lambda, m, prevB)
	proj, err := numeric.ProjSimplex(updated)
	if err != nil {
		return a.Recover(err)
	}
	a.Remember(proj)
	return proj, nil
}

// referencePortfolio resolves the "rebalance" open question: when
// back==2 it reads the pre-trade portfolio, when back==1 the current
// realized one, both approximated here by the last accepted vector
// (back==2) or the observation's live portfolio_vector (back==1).
func (a *Momentum) referencePortfolio(o *obs.Observation, back int) ([]float64, error) {
	if back == 1 {
		return o.PortfolioVector()
	}
	if prev := a.Previous(); prev != nil {
		return prev, nil
	}
	return o.PortfolioVector()
}

func sub1(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v - 1
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
