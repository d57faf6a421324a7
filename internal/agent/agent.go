// Package agent implements the online portfolio-selection agent
// family: a shared contract (predict/rebalance/set_params) plus the
// per-algorithm update rules and projections described by each
// concrete agent.
package agent

import (
	"errors"
	"fmt"

	"github.com/atlas-desktop/olps-agents/internal/obs"
	"go.uber.org/zap"
)

// ErrInvalidParameter is returned by SetParams when a hyperparameter
// value is out of its admitted range or an unknown tag.
var ErrInvalidParameter = errors.New("agent: invalid parameter")

// Agent is the shared decision contract every concrete agent satisfies.
type Agent interface {
	// Rebalance returns the target portfolio vector for the next bar.
	Rebalance(o *obs.Observation) ([]float64, error)
	// Predict returns the agent's intermediate signal; its meaning
	// differs per concrete agent (documented on each implementation).
	Predict(o *obs.Observation) ([]float64, error)
	// SetParams validates and stores hyperparameters. No I/O.
	SetParams(params map[string]any) error
	// Step returns the number of accepted decisions so far.
	Step() int
	// Advance increments the step counter; owned by the evaluation
	// loop, called only after the environment accepts an action.
	Advance()
}

// BaseAgent carries the lifecycle state shared by every concrete
// agent: the step counter, the debug/production recovery policy for
// InvalidObservation (§7), and the last accepted portfolio vector used
// both as the production fallback and as Momentum's "rebalance=true"
// reference.
type BaseAgent struct {
	Name   string
	Logger *zap.Logger
	// Debug agents assert (panic) on InvalidObservation; production
	// agents log and return the previous action.
	Debug bool

	step  int
	prevB []float64
}

// NewBaseAgent constructs a BaseAgent. logger may be nil, in which
// case recovery is silent.
func NewBaseAgent(name string, logger *zap.Logger) BaseAgent {
	return BaseAgent{Name: name, Logger: logger}
}

func (b *BaseAgent) Step() int { return b.step }

// FactorName identifies this agent when it is used as one of
// FactorTrader's inner factors, keying its <name>_weight parameter.
func (b *BaseAgent) FactorName() string { return b.Name }

func (b *BaseAgent) Advance() { b.step++ }

// UniformFirstStep returns the shared first-step policy: uniform
// across the n non-fiat assets, fiat weight zero.
func UniformFirstStep(n int) []float64 {
	out := make([]float64, n+1)
	if n <= 0 {
		return out
	}
	u := 1.0 / float64(n)
	for i := 0; i < n; i++ {
		out[i] = u
	}
	return out
}

// Remember stores b as the last accepted portfolio vector.
func (b *BaseAgent) Remember(vec []float64) {
	b.prevB = append([]float64(nil), vec...)
}

// Previous returns a copy of the last accepted portfolio vector, or
// nil if none has been accepted yet.
func (b *BaseAgent) Previous() []float64 {
	if b.prevB == nil {
		return nil
	}
	return append([]float64(nil), b.prevB...)
}

// Recover implements §7's InvalidObservation policy: debug agents
// assert, production agents log and fall back to the previous action.
func (b *BaseAgent) Recover(err error) ([]float64, error) {
	if b.Debug {
		panic(fmt.Sprintf("%s: invalid observation: %v", b.Name, err))
	}
	if b.Logger != nil {
		b.Logger.Warn("invalid observation, returning previous action",
			zap.String("agent", b.Name), zap.Error(err))
	}
	if b.prevB == nil {
		return nil, err
	}
	return b.Previous(), nil
}
