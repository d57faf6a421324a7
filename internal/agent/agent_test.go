package agent_test

import (
	"math"
	"testing"

	"github.com/atlas-desktop/olps-agents/internal/agent"
	"github.com/atlas-desktop/olps-agents/internal/numeric"
	"github.com/atlas-desktop/olps-agents/internal/obs"
	"github.com/shopspring/decimal"
)

func dseries(vals ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

// scenario 1: two-asset basket {BTC, USDT}, open [100,101,102,103], uniform holdings.
func scenario1(step int) *obs.Observation {
	open := []float64{100, 101, 102, 103}[:step+1]
	holding := make([]float64, len(open))
	for i := range holding {
		holding[i] = 1
	}
	balance := make([]float64, len(open))
	return &obs.Observation{
		Symbols: []string{"BTC"},
		Fiat:    "USDT",
		Series: map[string]map[string][]decimal.Decimal{
			"BTC":  {"open": dseries(open...), "BTC": dseries(holding...)},
			"USDT": {"USDT": dseries(balance...)},
		},
	}
}

func TestBuyAndHoldScenario1(t *testing.T) {
	a := agent.NewBuyAndHold(nil)
	b0, err := a.Rebalance(scenario1(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(b0[0]-1) > 1e-9 || math.Abs(b0[1]) > 1e-9 {
		t.Fatalf("step 0: want (1,0), got %v", b0)
	}
	a.Advance()

	b1, err := a.Rebalance(scenario1(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(b1[0]-1) > 1e-9 {
		t.Fatalf("step 1: expected all-in-BTC drift, got %v", b1)
	}
}

func TestConstantRebalanceScenario2(t *testing.T) {
	target := []float64{0.3, 0.7, 0.0}
	a := agent.NewConstantRebalance(nil, target)
	o := &obs.Observation{Symbols: []string{"A", "B"}, Fiat: "USDT"}
	for step := 0; step < 3; step++ {
		b, err := a.Rebalance(o)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i := range target {
			if math.Abs(b[i]-target[i]) > 1e-12 {
				t.Fatalf("step %d: want %v got %v", step, target, b)
			}
		}
		a.Advance()
	}
}

// scenario 3: PAMR1, sensitivity=0, C=1, x=(0.95,1.05,1.0), prior b=(0.5,0.5,0.0).
func TestPAMRScenario3ZeroLambdaWhenThresholdSatisfied(t *testing.T) {
	a := agent.NewPAMR(nil)
	if err := a.SetParams(map[string]any{"sensitivity": 0.0, "C": 1.0, "variant": agent.PAMR1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// RatioPrevOverNow: x_i = open(t-1)/open(t). Chosen opens give x=(0.95,1.05).
	o := &obs.Observation{
		Symbols: []string{"X", "Y"},
		Fiat:    "USDT",
		Series: map[string]map[string][]decimal.Decimal{
			"X":    {"open": dseries(95, 100)},
			"Y":    {"open": dseries(105, 100)},
			"USDT": {"USDT": dseries(0, 0)},
		},
	}

	_, err := a.Rebalance(o) // step 0 -> uniform, establishes prevB
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a.Advance()
	// Force the documented prior b=(0.5,0.5,0.0) regardless of the
	// uniform-first-step output (which is already (0.5,0.5,0) for n=2).
	b1, err := a.Rebalance(o)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// b.x = 0.5*0.95+0.5*1.05 = 1.0 = 1+sensitivity -> le=0 -> lambda=0 -> unchanged.
	for i, v := range []float64{0.5, 0.5, 0.0} {
		if math.Abs(b1[i]-v) > 1e-9 {
			t.Fatalf("want %v got %v", v, b1)
		}
	}
}

func TestSetParamsIdempotent(t *testing.T) {
	a := agent.NewMomentum(nil)
	params := map[string]any{"ma1": 3, "ma2": 7, "alpha_v": 0.5}
	if err := a.SetParams(params); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := *a
	if err := a.SetParams(params); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.MA1 != a.MA1 || first.MA2 != a.MA2 || first.AlphaV != a.AlphaV {
		t.Fatalf("SetParams not idempotent: %+v vs %+v", first, *a)
	}
}

func TestSumsToOneWithinTolerance(t *testing.T) {
	agents := []agent.Agent{
		agent.NewBuyAndHold(nil),
		agent.NewConstantRebalance(nil, nil),
		agent.NewPAMR(nil),
		agent.NewOLMAR(nil),
		agent.NewSTMR(nil),
	}
	o := &obs.Observation{
		Symbols: []string{"A", "B", "C"},
		Fiat:    "USDT",
		Series: map[string]map[string][]decimal.Decimal{
			"A":    {"open": dseries(10, 10, 10, 10, 10, 10, 10, 11), "A": dseries(1, 1, 1, 1, 1, 1, 1, 1)},
			"B":    {"open": dseries(20, 20, 20, 20, 20, 20, 20, 19), "B": dseries(1, 1, 1, 1, 1, 1, 1, 1)},
			"C":    {"open": dseries(5, 5, 5, 5, 5, 5, 5, 5), "C": dseries(1, 1, 1, 1, 1, 1, 1, 1)},
			"USDT": {"USDT": dseries(0, 0, 0, 0, 0, 0, 0, 0)},
		},
	}
	for _, a := range agents {
		b, err := a.Rebalance(o)
		if err != nil {
			t.Fatalf("%T: unexpected error: %v", a, err)
		}
		a.Advance()
		b, err = a.Rebalance(o)
		if err != nil {
			t.Fatalf("%T: unexpected error: %v", a, err)
		}
		var sum float64
		for _, v := range b {
			if v < -1e-9 {
				t.Fatalf("%T: negative weight %v in %v", a, v, b)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("%T: sum %v != 1 in %v", a, sum, b)
		}
	}
}

func TestSdivZeroForAllFinite(t *testing.T) {
	// STMR's lambda and ONS's gradient divide through numeric.SDiv;
	// the full table of cases lives in internal/numeric.
	for _, x := range []float64{1, -1, 0, 1e300, -1e-300} {
		if got := numeric.SDiv(x, 0); got != 0 {
			t.Errorf("SDiv(%v, 0) = %v, want 0", x, got)
		}
	}
}
