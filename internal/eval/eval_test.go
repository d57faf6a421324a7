package eval_test

import (
	"context"
	"testing"

	"github.com/atlas-desktop/olps-agents/internal/agent"
	"github.com/atlas-desktop/olps-agents/internal/env"
	"github.com/atlas-desktop/olps-agents/internal/eval"
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

func TestRunTerminatesOnOODAndReturnsScore(t *testing.T) {
	e := env.NewBacktestEnvironment(nil, env.Config{
		Symbols:     []string{"BTC"},
		Fiat:        "USDT",
		Period:      1,
		ObsSteps:    2,
		Bars:        map[string][]env.Bar{"BTC": bars(100, 101, 102, 103, 104)},
		InitialFiat: 1,
	})
	a := agent.NewBuyAndHold(nil)

	score, err := eval.Run(context.Background(), e, a, eval.Options{MaxSteps: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = score // a finite episode on rising prices should complete without error
}

func TestRunRespectsMaxSteps(t *testing.T) {
	e := env.NewBacktestEnvironment(nil, env.Config{
		Symbols:     []string{"BTC"},
		Fiat:        "USDT",
		Period:      1,
		ObsSteps:    2,
		Bars:        map[string][]env.Bar{"BTC": bars(100, 101, 102, 103, 104, 105, 106, 107)},
		InitialFiat: 1,
	})
	a := agent.NewBuyAndHold(nil)

	_, err := eval.Run(context.Background(), e, a, eval.Options{MaxSteps: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Step() != 1 {
		t.Fatalf("expected exactly 1 accepted step, got %d", a.Step())
	}
}
