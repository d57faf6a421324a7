package agent

import (
	"github.com/atlas-desktop/olps-agents/internal/numeric"
	"github.com/atlas-desktop/olps-agents/internal/obs"
	"go.uber.org/zap"
)

// PAMRVariant selects one of the three passive-aggressive loss shapes.
type PAMRVariant int

const (
	PAMR0 PAMRVariant = iota
	PAMR1
	PAMR2
)

// PAMR is the Passive-Aggressive Mean Reversion agent.
type PAMR struct {
	BaseAgent

	Sensitivity float64
	C           float64
	Variant     PAMRVariant
}

func NewPAMR(logger *zap.Logger) *PAMR {
	return &PAMR{BaseAgent: NewBaseAgent("pamr", logger), Sensitivity: 0, C: 1, Variant: PAMR1}
}

func (a *PAMR) SetParams(params map[string]any) error {
	if v, ok := params["sensitivity"]; ok {
		f, ok := v.(float64)
		if !ok || f < 0 {
			return ErrInvalidParameter
		}
		a.Sensitivity = f
	}
	if v, ok := params["C"]; ok {
		f, ok := v.(float64)
		if !ok || f <= 0 {
			return ErrInvalidParameter
		}
		a.C = f
	}
	if v, ok := params["variant"]; ok {
		variant, ok := v.(PAMRVariant)
		if !ok {
			return ErrInvalidParameter
		}
		a.Variant = variant
	}
	return nil
}

// Predict returns the reciprocal price-relative PAMR reacts to.
func (a *PAMR) Predict(o *obs.Observation) ([]float64, error) {
	return o.PriceRelative(obs.RatioPrevOverNow, 0)
}

func (a *PAMR) Rebalance(o *obs.Observation) ([]float64, error) {
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

	m := mean(x)
	portvar := dot(prevB, x)

	// §9 open question: le is 0 when the threshold is already
	// satisfied (portvar <= 1+sensitivity), not a stale/dead value.
	le := 0.0
	if portvar > 1+a.Sensitivity {
		le = portvar - (1 + a.Sensitivity)
	}

	denom := normSquaredFromMean(x, m) + 1e-16
	var lambda float64
	switch a.Variant {
	case PAMR0:
		lambda = le / denom
	case PAMR1:
		lambda = le / denom
		if lambda > a.C {
			lambda = a.C
		}
	case PAMR2:
		lambda = le / (denom + 0.5/a.C)
	default:
		return nil, ErrInvalidParameter
	}
	lambda = clip(lambda, 0, 1e5)

	updated := scaleAndShift(x, lambda, m, prevB)
	proj, err := numeric.ProjSimplex(updated)
	if err != nil {
		return a.Recover(err)
	}
	a.Remember(proj)
	return proj, nil
}

// OLMAR is the Online Moving Average Reversion agent.
type OLMAR struct {
	BaseAgent

	Eps    float64
	Window int
	Smooth float64
}

func NewOLMAR(logger *zap.Logger) *OLMAR {
	return &OLMAR{BaseAgent: NewBaseAgent("olmar", logger), Eps: 10, Window: 5, Smooth: 1}
}

func (a *OLMAR) SetParams(params map[string]any) error {
	if v, ok := params["eps"]; ok {
		f, ok := v.(float64)
		if !ok {
			return ErrInvalidParameter
		}
		a.Eps = f
	}
	if v, ok := params["window"]; ok {
		n, ok := v.(int)
		if !ok || n < 2 {
			return ErrInvalidParameter
		}
		a.Window = n
	}
	if v, ok := params["smooth"]; ok {
		f, ok := v.(float64)
		if !ok || f <= 0 || f > 1 {
			return ErrInvalidParameter
		}
		a.Smooth = f
	}
	return nil
}

// Predict returns the moving-average price prediction x̂.
func (a *OLMAR) Predict(o *obs.Observation) ([]float64, error) {
	return o.PriceRelative(obs.MaOverNow, a.Window)
}

func (a *OLMAR) Rebalance(o *obs.Observation) ([]float64, error) {
	if a.Step() == 0 {
		b := UniformFirstStep(o.N())
		a.Remember(b)
		return b, nil
	}
	xhat, err := a.Predict(o)
	if err != nil {
		return a.Recover(err)
	}
	prevB := a.Previous()
	if prevB == nil {
		prevB = UniformFirstStep(o.N())
	}

	// The update is computed over non-fiat assets only; xhat's final
	// entry is the constant fiat price relative (1) and must not enter
	// m/bx/denom, or it would shift the mean and inflate denom with a
	// spurious (1-m)^2 term.
	n := o.N()
	xhatNonFiat := xhat[:n]
	prevNonFiat := prevB[:n]

	m := mean(xhatNonFiat)
	bx := dot(prevNonFiat, xhatNonFiat)
	denom := normSquaredFromMean(xhatNonFiat, m) + 1e-16

	var lambda float64
	if bx >= 1 {
		lambda = (bx - 1 - a.Eps) / denom
	} else {
		lambda = (1 - a.Eps - bx) / denom
	}
	if lambda < 0 {
		lambda = 0
	}
	lambda = clip(lambda, 0, 1e5)
	lambda *= a.Smooth

	updatedNonFiat := make([]float64, n)
	for i := 0; i < n; i++ {
		updatedNonFiat[i] = prevNonFiat[i] + lambda*(xhatNonFiat[i]-m)
	}
	projNonFiat, err := numeric.ProjSimplex(updatedNonFiat)
	if err != nil {
		return a.Recover(err)
	}
	out := append(projNonFiat, 0)
	a.Remember(out)
	return out, nil
}

// STMR is the Short-Term Mean Reversion agent.
type STMR struct {
	BaseAgent

	Sensitivity float64
}

func NewSTMR(logger *zap.Logger) *STMR {
	return &STMR{BaseAgent: NewBaseAgent("stmr", logger), Sensitivity: 0}
}

func (a *STMR) SetParams(params map[string]any) error {
	if v, ok := params["sensitivity"]; ok {
		f, ok := v.(float64)
		if !ok || f < 0 {
			return ErrInvalidParameter
		}
		a.Sensitivity = f
	}
	return nil
}

// Predict returns x = open(t-1)/open(t) - 1, fiat slot 0.
func (a *STMR) Predict(o *obs.Observation) ([]float64, error) {
	return o.PriceRelative(obs.DiffRatioMinusOne, 0)
}

func (a *STMR) Rebalance(o *obs.Observation) ([]float64, error) {
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

	m := mean(x)
	portvar := dot(prevB, x)
	maxIdx, _ := maxAbs(x)
	change := abs(portvar+x[maxIdx]) / 2

	denom := normSquaredFromMean(x, m)
	lambda := clip(numeric.SDiv(change-a.Sensitivity, denom), 0, 1e6)

	updated := scaleAndShift(x, lambda, m, prevB)
	proj, err := numeric.ProjSimplex(updated)
	if err != nil {
		return a.Recover(err)
	}
	a.Remember(proj)
	return proj, nil
}
