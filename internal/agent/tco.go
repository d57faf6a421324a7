package agent

import (
	"github.com/atlas-desktop/olps-agents/internal/numeric"
	"github.com/atlas-desktop/olps-agents/internal/obs"
	"go.uber.org/zap"
)

// TCO (Transaction-Cost Optimization) wraps another agent as a price
// predictor and damps the portfolio move by a transaction-cost offset.
type TCO struct {
	BaseAgent

	Toff      float64
	Predictor Agent
}

func NewTCO(logger *zap.Logger, predictor Agent) *TCO {
	return &TCO{BaseAgent: NewBaseAgent("tco", logger), Toff: 0.001, Predictor: predictor}
}

// SetParams pulls its own toff, then delegates everything else to the
// inner predictor.
func (a *TCO) SetParams(params map[string]any) error {
	rest := make(map[string]any, len(params))
	for k, v := range params {
		if k == "toff" {
			f, ok := v.(float64)
			if !ok || f < 0 {
				return ErrInvalidParameter
			}
			a.Toff = f
			continue
		}
		rest[k] = v
	}
	if len(rest) > 0 && a.Predictor != nil {
		return a.Predictor.SetParams(rest)
	}
	return nil
}

func (a *TCO) Predict(o *obs.Observation) ([]float64, error) {
	return a.Predictor.Predict(o)
}

func (a *TCO) Rebalance(o *obs.Observation) ([]float64, error) {
	n := o.N()
	if a.Step() == 0 {
		b := UniformFirstStep(n)
		a.Remember(b)
		return b, nil
	}
	xhat, err := a.Predict(o)
	if err != nil {
		return a.Recover(err)
	}
	prevB := a.Previous()
	if prevB == nil {
		prevB = UniformFirstStep(n)
	}

	bx := dot(prevB, xhat)
	v := make([]float64, len(xhat))
	for i := range v {
		v[i] = xhat[i] / (bx + 1e-16)
	}
	vBar := mean(v)

	updated := make([]float64, len(v))
	for i := range v {
		d := v[i] - vBar
		mag := abs(d) - a.Toff
		if mag < 0 {
			mag = 0
		}
		updated[i] = prevB[i] + sign(d)*mag
	}

	proj, err := numeric.ProjSimplex(updated)
	if err != nil {
		return a.Recover(err)
	}
	a.Remember(proj)
	return proj, nil
}
