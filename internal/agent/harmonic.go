package agent

import (
	"math"

	"github.com/atlas-desktop/olps-agents/internal/numeric"
	"github.com/atlas-desktop/olps-agents/internal/obs"
	"go.uber.org/zap"
)

type harmonicBand struct {
	ab, bc, cd [2]float64 // [lo, hi] tolerance bands on leg ratios
}

var harmonicPatterns = []harmonicBand{
	{ab: [2]float64{0.618, 0.618}, bc: [2]float64{0.382, 0.886}, cd: [2]float64{1.27, 1.618}},   // Gartley
	{ab: [2]float64{0.786, 0.786}, bc: [2]float64{0.382, 0.886}, cd: [2]float64{1.618, 2.618}},  // Butterfly
	{ab: [2]float64{0.382, 0.5}, bc: [2]float64{0.382, 0.886}, cd: [2]float64{1.618, 2.618}},    // Bat
	{ab: [2]float64{0.382, 0.618}, bc: [2]float64{0.382, 0.886}, cd: [2]float64{2.24, 3.618}},   // Crab
}

// HarmonicTrader votes on Fibonacci four-leg price patterns (Gartley,
// Butterfly, Bat, Crab) detected over each asset's most recent five
// local extremes.
type HarmonicTrader struct {
	BaseAgent

	PeakOrder  int
	ErrAllowed float64
	Decay      float64
	AlphaUp    float64
	AlphaDown  float64
}

func NewHarmonicTrader(logger *zap.Logger) *HarmonicTrader {
	return &HarmonicTrader{
		BaseAgent: NewBaseAgent("harmonic_trader", logger),
		PeakOrder: 3, ErrAllowed: 0.05, Decay: 0.9, AlphaUp: 0.1, AlphaDown: 0.1,
	}
}

func (a *HarmonicTrader) SetParams(params map[string]any) error {
	if v, ok := params["err_allowed"]; ok {
		f, ok := v.(float64)
		if !ok || f < 0 || f > 1 {
			return ErrInvalidParameter
		}
		a.ErrAllowed = f
	}
	if v, ok := params["peak_order"]; ok {
		n, ok := v.(int)
		if !ok || n < 1 {
			return ErrInvalidParameter
		}
		a.PeakOrder = n
	}
	if v, ok := params["decay"]; ok {
		f, ok := v.(float64)
		if !ok || f < 0 || f > 1 {
			return ErrInvalidParameter
		}
		a.Decay = f
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
	return nil
}

// Predict returns the per-asset pattern-vote action, length n.
func (a *HarmonicTrader) Predict(o *obs.Observation) ([]float64, error) {
	n := o.N()
	action := make([]float64, n)
	for i, sym := range o.Symbols {
		series, err := longEnoughSeries(o, sym)
		if err != nil {
			return nil, err
		}
		idx := obs.LocalExtremes(series, a.PeakOrder, true)
		idxLow := obs.LocalExtremes(series, a.PeakOrder, false)
		all := mergeExtremeIndices(idx, idxLow)
		if len(all) < 5 {
			action[i] = 0
			continue
		}
		last5 := all[len(all)-5:]
		pts := make([]float64, 5)
		for k, idx := range last5 {
			pts[k] = series[idx]
		}
		action[i] = a.votePatterns(pts)
	}
	return action, nil
}

func longEnoughSeries(o *obs.Observation, sym string) ([]float64, error) {
	// 64 bars gives local-extrema detection enough room; shorter
	// histories fail with InvalidObservation.
	return o.Window(sym, "open", 64)
}

func mergeExtremeIndices(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, idx := range append(append([]int{}, a...), b...) {
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	// simple insertion sort; inputs are each already sorted and short.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func (a *HarmonicTrader) votePatterns(pts []float64) float64 {
	x, pA, b, c, d := pts[0], pts[1], pts[2], pts[3], pts[4]
	xa := pA - x
	ab := b - pA
	bc := c - b
	cd := d - c

	if xa == 0 || ab == 0 || bc == 0 {
		return 0
	}
	abRatio := math.Abs(ab / xa)
	bcRatio := math.Abs(bc / ab)
	cdRatio := math.Abs(cd / bc)

	var total float64
	for _, p := range harmonicPatterns {
		if !inBand(abRatio, p.ab, a.ErrAllowed) {
			continue
		}
		if !inBand(bcRatio, p.bc, a.ErrAllowed) {
			continue
		}
		if !inBand(cdRatio, p.cd, a.ErrAllowed) {
			continue
		}
		total += legSign(xa, ab, bc, cd)
	}
	return total
}

func inBand(v float64, band [2]float64, tol float64) bool {
	return v >= band[0]-tol && v <= band[1]+tol
}

func legSign(xa, ab, bc, cd float64) float64 {
	signs := [4]float64{sign(xa), sign(ab), sign(bc), sign(cd)}
	if signs == [4]float64{1, -1, 1, -1} {
		return 1
	}
	if signs == [4]float64{-1, 1, -1, 1} {
		return -1
	}
	return 0
}

func (a *HarmonicTrader) Rebalance(o *obs.Observation) ([]float64, error) {
	n := o.N()
	if a.Step() == 0 {
		bv := UniformFirstStep(n)
		a.Remember(bv)
		return bv, nil
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
	for i := 0; i < n; i++ {
		alpha := a.AlphaUp
		if action[i] < 0 {
			alpha = a.AlphaDown
		}
		v := a.Decay*prevB[i] + (1 - a.Decay) + alpha*action[i]
		if v < 0 {
			v = 0
		}
		out[i] = v
		sumNonFiat += v
	}
	out[n] = math.Max(0, 1-sumNonFiat)

	normalized := numeric.Norm(out)
	a.Remember(normalized)
	return normalized, nil
}
