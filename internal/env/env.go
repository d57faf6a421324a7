// Package env implements the environment contract the agent core is
// driven against (§6 of the design spec): a replay of historical bars
// that owns price history, holdings, and portfolio accounting, and
// that accepts a target portfolio vector once per step.
package env

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/atlas-desktop/olps-agents/internal/obs"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrOutOfData is the OOD status condition: the historical replay has
// been exhausted.
var ErrOutOfData = errors.New("env: out of data")

// Status carries the environment's out-of-data and error signals
// alongside each step.
type Status struct {
	OOD   bool
	Error error
}

// Environment is the contract the evaluation loop and the live loop
// drive: reset, step, and the observation/benchmark hooks.
type Environment interface {
	Reset(resetDfs bool) (*obs.Observation, error)
	ResetStatus()
	Step(b []float64) (nextObs *obs.Observation, reward float64, done bool, status Status, err error)
	GetObservation(applyPrepro bool) (*obs.Observation, error)
	CalcTotalPortval() (float64, error)
	OptimizeBenchmark(n int, verbose bool) error

	Fiat() string
	Period() int
	DataLength() int
	ObsSteps() int
}

// Bar is a single OHLC bar for one symbol.
type Bar struct {
	Open, Close decimal.Decimal
}

// BacktestEnvironment replays a fixed historical price series and
// accounts the portfolio implied by each accepted target vector.
type BacktestEnvironment struct {
	mu sync.RWMutex

	logger *zap.Logger

	symbols  []string
	fiat     string
	period   int // minutes
	obsSteps int
	bars     map[string][]Bar // symbol -> ascending bars

	index       int
	holdings    map[string]float64 // units held per symbol
	fiatBalance float64

	portvalHistory []float64

	running   atomic.Bool
	cancelled atomic.Bool
}

// Config configures a BacktestEnvironment.
type Config struct {
	Symbols     []string
	Fiat        string
	Period      int
	ObsSteps    int
	Bars        map[string][]Bar
	InitialFiat float64
}

// NewBacktestEnvironment constructs a replay environment over bars.
func NewBacktestEnvironment(logger *zap.Logger, cfg Config) *BacktestEnvironment {
	return &BacktestEnvironment{
		logger:      logger,
		symbols:     cfg.Symbols,
		fiat:        cfg.Fiat,
		period:      cfg.Period,
		obsSteps:    cfg.ObsSteps,
		bars:        cfg.Bars,
		fiatBalance: cfg.InitialFiat,
		holdings:    make(map[string]float64, len(cfg.Symbols)),
	}
}

func (e *BacktestEnvironment) Fiat() string    { return e.fiat }
func (e *BacktestEnvironment) Period() int     { return e.period }
func (e *BacktestEnvironment) ObsSteps() int   { return e.obsSteps }
func (e *BacktestEnvironment) DataLength() int {
	if len(e.symbols) == 0 {
		return 0
	}
	return len(e.bars[e.symbols[0]])
}

// Reset rewinds the replay to the first step at which a full
// obs_steps window is available. resetDfs clears the accumulated
// portfolio-value series returned by PortvalHistory.
func (e *BacktestEnvironment) Reset(resetDfs bool) (*obs.Observation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.index = e.obsSteps - 1
	e.fiatBalance = 1
	for _, s := range e.symbols {
		e.holdings[s] = 0
	}
	if resetDfs {
		e.portvalHistory = e.portvalHistory[:0]
	}
	e.cancelled.Store(false)
	e.running.Store(true)

	return e.observationLocked()
}

func (e *BacktestEnvironment) ResetStatus() {
	e.cancelled.Store(false)
}

// GetObservation returns the window ending at the current index.
// applyPrepro is accepted for contract parity; this implementation has
// no separate preprocessing stage so it is a no-op.
func (e *BacktestEnvironment) GetObservation(applyPrepro bool) (*obs.Observation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.observationLocked()
}

func (e *BacktestEnvironment) observationLocked() (*obs.Observation, error) {
	start := e.index - e.obsSteps + 1
	if start < 0 {
		return nil, ErrOutOfData
	}
	series := make(map[string]map[string][]decimal.Decimal, len(e.symbols)+1)
	for _, s := range e.symbols {
		bars := e.bars[s]
		if e.index >= len(bars) {
			return nil, ErrOutOfData
		}
		open := make([]decimal.Decimal, e.obsSteps)
		close := make([]decimal.Decimal, e.obsSteps)
		holding := make([]decimal.Decimal, e.obsSteps)
		for i := 0; i < e.obsSteps; i++ {
			bar := bars[start+i]
			open[i] = bar.Open
			close[i] = bar.Close
			holding[i] = decimal.NewFromFloat(e.holdings[s])
		}
		series[s] = map[string][]decimal.Decimal{
			"open":  open,
			"close": close,
			s:       holding,
		}
	}
	balance := make([]decimal.Decimal, e.obsSteps)
	for i := range balance {
		balance[i] = decimal.NewFromFloat(e.fiatBalance)
	}
	series[e.fiat] = map[string][]decimal.Decimal{e.fiat: balance}

	return &obs.Observation{Symbols: e.symbols, Fiat: e.fiat, Series: series}, nil
}

// CalcTotalPortval returns the current mark-to-market portfolio value
// in fiat units, using each symbol's latest open price.
func (e *BacktestEnvironment) CalcTotalPortval() (float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalPortvalLocked()
}

func (e *BacktestEnvironment) totalPortvalLocked() (float64, error) {
	total := e.fiatBalance
	for _, s := range e.symbols {
		bars := e.bars[s]
		if e.index >= len(bars) {
			return 0, ErrOutOfData
		}
		price, _ := bars[e.index].Open.Float64()
		total += e.holdings[s] * price
	}
	return total, nil
}

// Step applies target portfolio b (length n+1, fiat last): it
// reallocates holdings at the current bar's open price to match b,
// advances to the next bar, and returns the reward and status.
func (e *BacktestEnvironment) Step(b []float64) (*obs.Observation, float64, bool, Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelled.Load() {
		return nil, 0, true, Status{}, errCancelled
	}

	preTotal, err := e.totalPortvalLocked()
	if err != nil {
		return nil, 0, true, Status{OOD: true}, err
	}

	n := len(e.symbols)
	if len(b) != n+1 {
		return nil, 0, true, Status{Error: errShape}, errShape
	}
	for i, s := range e.symbols {
		price, _ := e.bars[s][e.index].Open.Float64()
		if price <= 0 {
			continue
		}
		e.holdings[s] = b[i] * preTotal / price
	}
	e.fiatBalance = b[n] * preTotal

	e.index++
	done := e.index >= e.DataLength()-1
	status := Status{}
	if done {
		status.OOD = true
	}

	postTotal, err := e.totalPortvalLocked()
	if err != nil {
		return nil, 0, true, Status{OOD: true}, nil
	}
	e.portvalHistory = append(e.portvalHistory, postTotal)

	reward := 0.0
	if preTotal > 0 && postTotal > 0 {
		reward = math.Log(postTotal / preTotal)
	}

	var nextObs *obs.Observation
	if !done {
		nextObs, err = e.observationLocked()
		if err != nil {
			status.OOD = true
			done = true
		}
	}
	return nextObs, reward, done, status, nil
}

// OptimizeBenchmark is the pre-fit benchmark hook. This implementation
// only logs the requested step count when verbose is set; it runs no
// warmup pass and changes no environment state.
func (e *BacktestEnvironment) OptimizeBenchmark(n int, verbose bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.logger != nil && verbose {
		e.logger.Info("running benchmark warmup", zap.Int("steps", n))
	}
	return nil
}

// Cancel marks the environment cancelled; the next Step call returns
// done with a cancellation error instead of advancing.
func (e *BacktestEnvironment) Cancel() {
	e.cancelled.Store(true)
}

// PortvalHistory returns the accumulated portfolio-value series,
// consulted by the evaluation loop to compute portval_std.
func (e *BacktestEnvironment) PortvalHistory() []float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]float64(nil), e.portvalHistory...)
}

var errShape = errors.New("env: portfolio vector shape mismatch")
var errCancelled = errors.New("env: cancelled")
