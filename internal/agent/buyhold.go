package agent

import (
	"github.com/atlas-desktop/olps-agents/internal/numeric"
	"github.com/atlas-desktop/olps-agents/internal/obs"
	"go.uber.org/zap"
)

// BuyAndHold returns a uniform allocation at step 0 and thereafter lets
// weights drift with prices: it never trades, so rebalance simply
// reports the currently realized portfolio vector.
type BuyAndHold struct {
	BaseAgent
}

func NewBuyAndHold(logger *zap.Logger) *BuyAndHold {
	return &BuyAndHold{BaseAgent: NewBaseAgent("buy_and_hold", logger)}
}

func (a *BuyAndHold) SetParams(params map[string]any) error { return nil }

func (a *BuyAndHold) Predict(o *obs.Observation) ([]float64, error) {
	return o.PortfolioVector()
}

func (a *BuyAndHold) Rebalance(o *obs.Observation) ([]float64, error) {
	if a.Step() == 0 {
		b := UniformFirstStep(o.N())
		a.Remember(b)
		return b, nil
	}
	b, err := o.PortfolioVector()
	if err != nil {
		return a.Recover(err)
	}
	a.Remember(b)
	return b, nil
}

// ConstantRebalance always returns a fixed configured distribution.
type ConstantRebalance struct {
	BaseAgent
	target []float64
}

func NewConstantRebalance(logger *zap.Logger, target []float64) *ConstantRebalance {
	return &ConstantRebalance{BaseAgent: NewBaseAgent("constant_rebalance", logger), target: target}
}

func (a *ConstantRebalance) SetParams(params map[string]any) error {
	if v, ok := params["target"]; ok {
		t, ok := v.([]float64)
		if !ok {
			return ErrInvalidParameter
		}
		a.target = t
	}
	return nil
}

func (a *ConstantRebalance) Predict(o *obs.Observation) ([]float64, error) {
	return a.currentTarget(o.N()), nil
}

func (a *ConstantRebalance) Rebalance(o *obs.Observation) ([]float64, error) {
	b := a.currentTarget(o.N())
	a.Remember(b)
	return b, nil
}

func (a *ConstantRebalance) currentTarget(n int) []float64 {
	if a.target != nil {
		return append([]float64(nil), a.target...)
	}
	return UniformFirstStep(n)
}

// RandomWalkActivation selects how RandomWalk normalizes its sample.
type RandomWalkActivation int

const (
	ActivationSoftmax RandomWalkActivation = iota
	ActivationSimplex
)

// RandomWalkSource supplies raw samples for RandomWalk; tests can
// inject a deterministic source.
type RandomWalkSource func(n int) []float64

// RandomWalk samples from a configured random source and normalizes
// via softmax or simplex projection per the activation parameter.
type RandomWalk struct {
	BaseAgent
	source     RandomWalkSource
	activation RandomWalkActivation
}

func NewRandomWalk(logger *zap.Logger, source RandomWalkSource) *RandomWalk {
	return &RandomWalk{BaseAgent: NewBaseAgent("random_walk", logger), source: source, activation: ActivationSimplex}
}

func (a *RandomWalk) SetParams(params map[string]any) error {
	if v, ok := params["activation"]; ok {
		act, ok := v.(RandomWalkActivation)
		if !ok {
			return ErrInvalidParameter
		}
		a.activation = act
	}
	return nil
}

func (a *RandomWalk) Predict(o *obs.Observation) ([]float64, error) {
	return a.sample(o.N() + 1), nil
}

func (a *RandomWalk) sample(m int) []float64 {
	if a.source != nil {
		return a.source(m)
	}
	out := make([]float64, m)
	for i := range out {
		out[i] = 1
	}
	return out
}

func (a *RandomWalk) Rebalance(o *obs.Observation) ([]float64, error) {
	raw := a.sample(o.N() + 1)
	var b []float64
	switch a.activation {
	case ActivationSoftmax:
		b = numeric.Norm(raw)
	case ActivationSimplex:
		proj, err := numeric.ProjSimplex(raw)
		if err != nil {
			return a.Recover(err)
		}
		b = proj
	default:
		return nil, ErrInvalidParameter
	}
	a.Remember(b)
	return b, nil
}
