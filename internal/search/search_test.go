package search_test

import (
	"context"
	"testing"

	"github.com/atlas-desktop/olps-agents/internal/search"
)

func TestRunFindsMaximumWithinRange(t *testing.T) {
	d := &search.Driver{
		Space: search.Space{
			Continuous: map[string]search.Range{"x": {Min: 0, Max: 10}},
		},
		Score: func(p search.ParamSet) (float64, error) {
			x := p["x"].(float64)
			return -((x - 7) * (x - 7)), nil
		},
		N:       64,
		Workers: 4,
	}

	best, info, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.State != search.Completed {
		t.Fatalf("expected Completed, got %v", info.State)
	}
	if info.Evaluated != 64 {
		t.Fatalf("expected 64 evaluations, got %d", info.Evaluated)
	}
	x := best["x"].(float64)
	if x < 3 || x > 10 {
		t.Fatalf("expected best x near the optimum, got %v", x)
	}
}

func TestConstraintViolationShortCircuitsScore(t *testing.T) {
	called := false
	d := &search.Driver{
		Space: search.Space{
			Continuous: map[string]search.Range{"x": {Min: 0, Max: 1}},
		},
		Constraints: []search.ConstraintFunc{
			func(search.ParamSet) bool { return false },
		},
		Score: func(p search.ParamSet) (float64, error) {
			called = true
			return 1, nil
		},
		N:       3,
		Workers: 1,
	}

	best, info, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("evaluator must not be called when a constraint is violated")
	}
	if info.Best.Score != search.ViolationScore {
		t.Fatalf("expected violation score %v, got %v", search.ViolationScore, info.Best.Score)
	}
	if best != nil {
		t.Fatalf("expected nil best params when every sample violates constraints, got %+v", best)
	}
}

func TestRunRespectsAlreadyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &search.Driver{
		Space: search.Space{
			Continuous: map[string]search.Range{"x": {Min: 0, Max: 1}},
		},
		Score: func(p search.ParamSet) (float64, error) { return 0, nil },
		N:     10,
	}
	_, info, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.State != search.Cancelled {
		t.Fatalf("expected Cancelled, got %v", info.State)
	}
	if info.Evaluated != 0 {
		t.Fatalf("expected 0 evaluations on a pre-cancelled context, got %d", info.Evaluated)
	}
}
