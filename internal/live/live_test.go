package live_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/atlas-desktop/olps-agents/internal/agent"
	"github.com/atlas-desktop/olps-agents/internal/live"
	"github.com/atlas-desktop/olps-agents/internal/obs"
	"github.com/shopspring/decimal"
)

type fakeExchange struct {
	calls int
}

func (f *fakeExchange) GetObservation(applyPrepro bool) (*obs.Observation, error) {
	f.calls++
	d := decimal.NewFromFloat(100)
	return &obs.Observation{
		Symbols: []string{"BTC"},
		Fiat:    "USDT",
		Series: map[string]map[string][]decimal.Decimal{
			"BTC":  {"open": {d}, "close": {d}, "BTC": {decimal.Zero}},
			"USDT": {"USDT": {decimal.NewFromFloat(1)}},
		},
	}, nil
}

func (f *fakeExchange) Rebalance(target []float64) error { return nil }

func TestLoopPersistsArtifactsOnCancel(t *testing.T) {
	dir := t.TempDir()
	ex := &fakeExchange{}
	a := agent.NewBuyAndHold(nil)

	l := &live.Loop{
		Exchange: ex,
		Agent:    a,
		Opts: live.Options{
			PeriodMinutes: 1,
			JitterSeconds: 0,
			RetryAttempts: 1,
			ArtifactDir:   dir,
			AgentName:     "buy_and_hold",
			InitTime:      "test",
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	portfolioPath := filepath.Join(dir, "buy_and_hold_portfolio_df_1min_test.json")
	if _, err := os.Stat(portfolioPath); err != nil {
		t.Fatalf("expected portfolio artifact to exist: %v", err)
	}

	data, err := os.ReadFile(portfolioPath)
	if err != nil {
		t.Fatalf("unexpected error reading artifact: %v", err)
	}
	var entries []map[string]any
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("expected valid JSON artifact: %v", err)
	}
}
