package agent

import (
	"github.com/atlas-desktop/olps-agents/internal/numeric"
	"github.com/atlas-desktop/olps-agents/internal/obs"
	"go.uber.org/zap"
)

// FactorTrader blends an ordered list of inner agents' signals by a
// per-factor weight, then adds the alpha-scaled action to the previous
// portfolio (no decay term, unlike HarmonicTrader), sized by a rolling
// volatility denominator.
type FactorTrader struct {
	BaseAgent

	Factors    []Agent
	Weights    []float64
	StdWindow  int
	StdWeight  float64
	AlphaUp    float64
	AlphaDown  float64
}

func NewFactorTrader(logger *zap.Logger, factors []Agent) *FactorTrader {
	weights := make([]float64, len(factors))
	for i := range weights {
		weights[i] = 1.0 / float64(len(factors))
	}
	return &FactorTrader{
		BaseAgent: NewBaseAgent("factor_trader", logger),
		Factors:   factors, Weights: weights,
		StdWindow: 10, StdWeight: 1, AlphaUp: 0.1, AlphaDown: 0.1,
	}
}

func (a *FactorTrader) SetParams(params map[string]any) error {
	if v, ok := params["std_window"]; ok {
		n, ok := v.(int)
		if !ok || n < 1 {
			return ErrInvalidParameter
		}
		a.StdWindow = n
	}
	if v, ok := params["std_weight"]; ok {
		f, ok := v.(float64)
		if !ok || f <= 0 {
			return ErrInvalidParameter
		}
		a.StdWeight = f
	}
	if v, ok := params["alpha_up"]; ok {
		f, ok := v.(float64)
		if !ok {
			return ErrInvalidParameter
		}
		a.AlphaUp = f
	}
	if v, ok := params["alpha_down"]; ok {
		f, ok := v.(float64)
		if !ok {
			return ErrInvalidParameter
		}
		a.AlphaDown = f
	}
	for key, v := range params {
		name, ok := factorWeightKey(key)
		if !ok {
			continue
		}
		f, ok := v.(float64)
		if !ok || f <= 0 || f > 1 {
			return ErrInvalidParameter
		}
		for i, fa := range a.Factors {
			if factorName(fa) == name {
				a.Weights[i] = f
			}
		}
	}
	return nil
}

func factorWeightKey(key string) (string, bool) {
	const suffix = "_weight"
	if len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix {
		return key[:len(key)-len(suffix)], true
	}
	return "", false
}

// factorName gives a stable identifier for a factor agent, used to key
// its <name>_weight parameter; concrete agents are matched by the name
// their BaseAgent was constructed with, read through FactorName.
func factorName(a Agent) string {
	if nc, ok := a.(interface{ FactorName() string }); ok {
		return nc.FactorName()
	}
	return ""
}

// Predict computes action = sum_j w_j * factor_j.predict(obs), a
// length-n vector over non-fiat assets.
func (a *FactorTrader) Predict(o *obs.Observation) ([]float64, error) {
	n := o.N()
	action := make([]float64, n)
	for j, f := range a.Factors {
		sig, err := f.Predict(o)
		if err != nil {
			return nil, err
		}
		w := a.Weights[j]
		for i := 0; i < n && i < len(sig); i++ {
			action[i] += w * sig[i]
		}
	}
	return action, nil
}

func (a *FactorTrader) Rebalance(o *obs.Observation) ([]float64, error) {
	n := o.N()
	if a.Step() == 0 {
		b := UniformFirstStep(n)
		a.Remember(b)
		return b, nil
	}
	action, err := a.Predict(o)
	if err != nil {
		return a.Recover(err)
	}
	prevB := a.Previous()
	if prevB == nil {
		prevB = UniformFirstStep(n)
	}

	out := make([]float64, n+1)
	var sumNonFiat float64
	for i, sym := range o.Symbols {
		win, err := o.Window(sym, "open", a.StdWindow)
		if err != nil {
			return a.Recover(err)
		}
		sigma := obs.StdDev(win)
		now, err := o.At(sym, "open", 0)
		if err != nil {
			return a.Recover(err)
		}
		denom := a.StdWeight*sigma/now + 1e-16

		alpha := a.AlphaUp
		if action[i] < 0 {
			alpha = a.AlphaDown
		}
		v := prevB[i] + alpha*action[i]/denom
		if v < 0 {
			v = 0
		}
		out[i] = v
		sumNonFiat += v
	}
	fiat := 1 - sumNonFiat
	if fiat < 0 {
		fiat = 0
	}
	out[n] = fiat

	normalized := numeric.Norm(out)
	a.Remember(normalized)
	return normalized, nil
}
