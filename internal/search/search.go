// Package search implements the hyperparameter search driver (§4.14):
// a structured search over a nested parameter space, wrapped so that
// constraint violations default the score to -100, with a clean
// idle -> running -> (completed | cancelled) state machine.
package search

import (
	"context"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ViolationScore is the score assigned when any constraint predicate
// returns false; the evaluator is never invoked in that case.
const ViolationScore = -100

// ParamSet is one sample from the search space: discrete choice keys
// map to their chosen label, continuous keys map their float64 value
// boxed as any. FactorTrader-style "<name>_weight" keys are ordinary
// continuous entries.
type ParamSet map[string]any

// Range bounds a continuous parameter.
type Range struct{ Min, Max float64 }

// Space is the structured search space: a nested mapping from
// discrete choice keys to their admitted labels, plus a flat mapping
// of continuous ranges. Nested continuous ranges that only apply under
// a particular discrete choice are named "<choice>.<param>"; Sample
// draws every continuous key on every call, and the caller's own logic
// decides which of them apply to the chosen label.
type Space struct {
	Discrete   map[string][]string
	Continuous map[string]Range
}

// Sample draws one ParamSet uniformly from the space.
func (s Space) Sample(rng *rand.Rand) ParamSet {
	out := make(ParamSet, len(s.Discrete)+len(s.Continuous))
	for key, choices := range s.Discrete {
		if len(choices) == 0 {
			continue
		}
		out[key] = choices[rng.Intn(len(choices))]
	}
	for key, r := range s.Continuous {
		out[key] = r.Min + rng.Float64()*(r.Max-r.Min)
	}
	return out
}

// ScoreFunc evaluates a ParamSet, typically by calling the evaluation
// loop batch_size times and returning the mean reward.
type ScoreFunc func(ParamSet) (float64, error)

// ConstraintFunc gates a ParamSet before it reaches ScoreFunc.
type ConstraintFunc func(ParamSet) bool

// State is the search driver's lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Completed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is one scored sample.
type Result struct {
	Params ParamSet
	Score  float64
	Err    error
}

// Info summarizes a completed or cancelled run.
type Info struct {
	RunID     string
	State     State
	Evaluated int
	Best      Result
}

// Driver wraps a ScoreFunc with constraint gating, bounded worker
// parallelism, and cancellation, returning the best-known assignment
// even when interrupted mid-run.
type Driver struct {
	Space       Space
	Score       ScoreFunc
	Constraints []ConstraintFunc
	N           int
	Workers     int
	Logger      *zap.Logger

	// Metrics receives per-evaluation and best-score observations;
	// nil is a valid no-op default.
	Metrics MetricsSink

	mu    sync.Mutex
	state State
}

// MetricsSink is the narrow interface internal/metrics satisfies,
// kept here so search does not import prometheus directly.
type MetricsSink interface {
	ObserveEvaluation()
	ObserveBestScore(score float64)
}

// State returns the driver's current lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Run executes up to N scored samples, at most Workers concurrently
// (each worker must be given its own cloned agent/environment by the
// caller's ScoreFunc per §5's concurrency constraint), and returns the
// best-known parameter assignment.
func (d *Driver) Run(ctx context.Context) (ParamSet, Info, error) {
	d.setState(Running)

	runID := uuid.NewString()
	workers := d.Workers
	if workers <= 0 {
		workers = 1
	}
	n := d.N
	if n <= 0 {
		n = 1
	}

	rng := rand.New(rand.NewSource(1))
	samples := make([]ParamSet, n)
	for i := range samples {
		samples[i] = d.Space.Sample(rng)
	}

	results := make(chan Result, n)
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	cancelled := false

	for _, params := range samples {
		select {
		case <-ctx.Done():
			cancelled = true
		default:
		}
		if cancelled {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(p ParamSet) {
			defer wg.Done()
			defer func() { <-sem }()
			results <- d.evaluate(p)
		}(params)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	best := Result{Score: ViolationScore - 1}
	evaluated := 0
	for r := range results {
		evaluated++
		if d.Metrics != nil {
			d.Metrics.ObserveEvaluation()
		}
		if r.Err == nil && r.Score > best.Score {
			best = r
			if d.Metrics != nil {
				d.Metrics.ObserveBestScore(best.Score)
			}
		}
	}

	finalState := Completed
	if cancelled {
		finalState = Cancelled
	}
	d.setState(finalState)

	info := Info{RunID: runID, State: finalState, Evaluated: evaluated, Best: best}
	if d.Logger != nil {
		d.Logger.Info("search run finished",
			zap.String("run_id", runID),
			zap.String("state", finalState.String()),
			zap.Int("evaluated", evaluated),
			zap.Float64("best_score", best.Score),
		)
	}
	return best.Params, info, nil
}

func (d *Driver) evaluate(params ParamSet) Result {
	for _, c := range d.Constraints {
		if !c(params) {
			return Result{Params: params, Score: ViolationScore}
		}
	}
	score, err := d.Score(params)
	if err != nil {
		return Result{Params: params, Score: ViolationScore, Err: err}
	}
	return Result{Params: params, Score: score}
}
