package env_test

import (
	"math"
	"testing"

	"github.com/atlas-desktop/olps-agents/internal/env"
	"github.com/shopspring/decimal"
)

func bars(opens ...float64) []env.Bar {
	out := make([]env.Bar, len(opens))
	for i, o := range opens {
		d := decimal.NewFromFloat(o)
		out[i] = env.Bar{Open: d, Close: d}
	}
	return out
}

func TestResetAndStepAdvancesAndAccounts(t *testing.T) {
	e := env.NewBacktestEnvironment(nil, env.Config{
		Symbols:     []string{"BTC"},
		Fiat:        "USDT",
		Period:      1,
		ObsSteps:    2,
		Bars:        map[string][]env.Bar{"BTC": bars(100, 101, 102, 103)},
		InitialFiat: 1,
	})

	o, err := e.Reset(true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.N() != 1 {
		t.Fatalf("expected 1 symbol, got %d", o.N())
	}

	_, reward, done, status, err := e.Step([]float64{1, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done {
		t.Fatalf("should not be done yet")
	}
	if status.OOD {
		t.Fatalf("unexpected OOD")
	}
	// all-in BTC at 101, next bar 102: reward = log(102/101) > 0.
	if reward <= 0 {
		t.Fatalf("expected positive reward for rising price, got %v", reward)
	}
}

func TestStepSignalsOODAtEndOfData(t *testing.T) {
	e := env.NewBacktestEnvironment(nil, env.Config{
		Symbols:     []string{"BTC"},
		Fiat:        "USDT",
		Period:      1,
		ObsSteps:    2,
		Bars:        map[string][]env.Bar{"BTC": bars(100, 101, 102)},
		InitialFiat: 1,
	})
	if _, err := e.Reset(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, done, status, err := e.Step([]float64{0, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !done || !status.OOD {
		t.Fatalf("expected done+OOD at end of data, got done=%v status=%+v", done, status)
	}
}

func TestCalcTotalPortvalMatchesHoldings(t *testing.T) {
	e := env.NewBacktestEnvironment(nil, env.Config{
		Symbols:     []string{"BTC"},
		Fiat:        "USDT",
		Period:      1,
		ObsSteps:    1,
		Bars:        map[string][]env.Bar{"BTC": bars(100, 100)},
		InitialFiat: 1,
	})
	if _, err := e.Reset(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err := e.CalcTotalPortval()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(v-1) > 1e-9 {
		t.Fatalf("expected initial portval 1, got %v", v)
	}
}
