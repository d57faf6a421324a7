// Package live implements the live-trading loop boundary (§4.2/§5/§7):
// it waits for each bar boundary, rebalances against the running
// agent, retries transient exchange errors and skips the bar on
// exhaustion, and persists the portfolio/action history as JSON
// artifacts the way the original live loop did.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/atlas-desktop/olps-agents/internal/agent"
	"github.com/atlas-desktop/olps-agents/internal/obs"
	"github.com/atlas-desktop/olps-agents/pkg/utils"
	"go.uber.org/zap"
)

// Reporter pushes a human-readable notification somewhere outside the
// process; a nil Reporter is a valid no-op.
type Reporter interface {
	Notify(subject, body string) error
}

// Exchange is the boundary to the live market: it supplies the current
// observation and executes a target portfolio vector.
type Exchange interface {
	GetObservation(applyPrepro bool) (*obs.Observation, error)
	Rebalance(target []float64) error
}

// Options configures a Loop.
type Options struct {
	PeriodMinutes int
	JitterSeconds int
	RetryAttempts int
	ArtifactDir   string
	AgentName     string
	InitTime      string // stamped into artifact filenames; supplied by the caller rather than read from the clock
}

// Loop drives one agent against one exchange connection, one bar at a
// time, persisting its portfolio and action history as it goes.
type Loop struct {
	Exchange Exchange
	Agent    agent.Agent
	Reporter Reporter
	Logger   *zap.Logger
	Metrics  MetricsSink
	Opts     Options

	portfolioHistory []portfolioEntry
	actionHistory    []actionEntry
}

// MetricsSink is the narrow interface internal/metrics satisfies.
type MetricsSink interface {
	ObserveLiveStep()
	ObserveLiveError()
}

type portfolioEntry struct {
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`
	Portfolio []float64 `json:"portfolio"`
}

type actionEntry struct {
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`
	Action    []float64 `json:"action"`
}

// Run processes bar boundaries until ctx is cancelled, then persists
// the history and returns the persistence error, if any. Observation,
// agent and exchange errors are reported and the bar is skipped.
func (l *Loop) Run(ctx context.Context) error {
	retryCfg := utils.DefaultRetryConfig()
	if l.Opts.RetryAttempts > 0 {
		retryCfg.MaxAttempts = l.Opts.RetryAttempts
	}

	step := 0
	for {
		wait := nextBarBoundary(time.Now(), l.Opts.PeriodMinutes, l.Opts.JitterSeconds)
		select {
		case <-ctx.Done():
			return l.persist()
		case <-time.After(wait):
		}

		o, err := utils.Retry(retryCfg, func() (*obs.Observation, error) {
			return l.Exchange.GetObservation(true)
		})
		if err != nil {
			l.reportError("observation retrieval failed, skipping bar", err)
			continue
		}

		action, err := l.Agent.Rebalance(o)
		if err != nil {
			l.reportError("agent rebalance failed, skipping bar", err)
			continue
		}

		_, err = utils.Retry(retryCfg, func() (struct{}, error) {
			return struct{}{}, l.Exchange.Rebalance(action)
		})
		if err != nil {
			l.reportError("exchange rebalance failed after retries, skipping bar", err)
			continue
		}
		l.Agent.Advance()

		now := time.Now()
		l.portfolioHistory = append(l.portfolioHistory, portfolioEntry{Step: step, Timestamp: now, Portfolio: action})
		l.actionHistory = append(l.actionHistory, actionEntry{Step: step, Timestamp: now, Action: action})
		step++

		if l.Metrics != nil {
			l.Metrics.ObserveLiveStep()
		}
	}
}

func (l *Loop) reportError(msg string, err error) {
	if l.Logger != nil {
		l.Logger.Warn(msg, zap.Error(err))
	}
	if l.Metrics != nil {
		l.Metrics.ObserveLiveError()
	}
	if l.Reporter != nil {
		if notifyErr := l.Reporter.Notify("olps-live error", fmt.Sprintf("%s: %v", msg, err)); notifyErr != nil && l.Logger != nil {
			l.Logger.Warn("reporter notify failed", zap.Error(notifyErr))
		}
	}
}

// persist writes the accumulated portfolio/action history to
// <agent>_portfolio_df_<period>min_<init_time>.json and the action
// equivalent, mirroring the original live loop's artifact naming.
func (l *Loop) persist() error {
	if l.Opts.ArtifactDir == "" {
		return nil
	}
	if err := os.MkdirAll(l.Opts.ArtifactDir, 0o755); err != nil {
		return fmt.Errorf("live: creating artifact dir: %w", err)
	}

	portfolioPath := filepath.Join(l.Opts.ArtifactDir, fmt.Sprintf("%s_portfolio_df_%dmin_%s.json", l.Opts.AgentName, l.Opts.PeriodMinutes, l.Opts.InitTime))
	actionPath := filepath.Join(l.Opts.ArtifactDir, fmt.Sprintf("%s_action_df_%dmin_%s.json", l.Opts.AgentName, l.Opts.PeriodMinutes, l.Opts.InitTime))

	if err := writeJSON(portfolioPath, l.portfolioHistory); err != nil {
		return err
	}
	return writeJSON(actionPath, l.actionHistory)
}

func writeJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("live: creating artifact %s: %w", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("live: writing artifact %s: %w", path, err)
	}
	return nil
}

// nextBarBoundary returns how long to wait until the next period
// boundary after now, plus up to jitterSeconds of random slack so
// concurrent agents don't all hit the exchange at the same instant.
func nextBarBoundary(now time.Time, periodMinutes, jitterSeconds int) time.Duration {
	if periodMinutes <= 0 {
		periodMinutes = 1
	}
	period := time.Duration(periodMinutes) * time.Minute
	elapsed := now.Sub(now.Truncate(period))
	wait := period - elapsed
	if jitterSeconds > 0 {
		wait += time.Duration(rand.Intn(jitterSeconds)) * time.Second
	}
	return wait
}
