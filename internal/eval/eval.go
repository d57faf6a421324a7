// Package eval implements the evaluation loop (§4.13): it drives an
// environment forward with an agent, accumulates reward/portval_std,
// and returns a single episode score.
package eval

import (
	"context"
	"errors"
	"math"

	"github.com/atlas-desktop/olps-agents/internal/agent"
	"github.com/atlas-desktop/olps-agents/internal/env"
	"go.uber.org/zap"
)

// ErrEnvironment is returned when the environment reports a non-OOD
// error during an episode.
var ErrEnvironment = errors.New("eval: environment error")

// Options configures a single episode run.
type Options struct {
	MaxSteps         int
	NbMaxStartSteps  int
	ResetDfs         bool
	Logger           *zap.Logger
}

// Run drives env forward with agent until out-of-data, the step cap,
// or an environment error, and returns the accumulated
// reward/portval_std score. Agent failures propagate to the caller;
// environment errors terminate the episode after being reported.
func Run(ctx context.Context, e env.Environment, a agent.Agent, opts Options) (float64, error) {
	o, err := e.Reset(opts.ResetDfs)
	if err != nil {
		return 0, err
	}

	for i := 0; i < opts.NbMaxStartSteps; i++ {
		b, err := a.Rebalance(o)
		if err != nil {
			return 0, err
		}
		next, _, done, status, err := e.Step(b)
		if err != nil {
			return 0, err
		}
		a.Advance()
		if status.Error != nil {
			if opts.Logger != nil {
				opts.Logger.Warn("environment error during warmup", zap.Error(status.Error))
			}
			return 0, ErrEnvironment
		}
		if done {
			return 0, nil
		}
		o = next
	}

	var totalReward float64
	steps := 0
	for {
		select {
		case <-ctx.Done():
			return totalReward, ctx.Err()
		default:
		}
		if opts.MaxSteps > 0 && steps >= opts.MaxSteps {
			break
		}

		b, err := a.Rebalance(o)
		if err != nil {
			return totalReward, err
		}
		next, reward, done, status, err := e.Step(b)
		if err != nil {
			return totalReward, err
		}
		a.Advance()
		steps++

		if status.Error != nil {
			if opts.Logger != nil {
				opts.Logger.Warn("environment error, terminating episode", zap.Error(status.Error))
			}
			return totalReward, ErrEnvironment
		}

		portvalStd := runningStd(portvalHistory(e))
		totalReward += reward / safeGuard(portvalStd)

		if done {
			break
		}
		o = next
	}
	return totalReward, nil
}

// portvalSource is a narrow interface so eval depends only on the
// part of env.Environment that exposes the running value series.
type portvalSource interface {
	PortvalHistory() []float64
}

func portvalHistory(e env.Environment) []float64 {
	if src, ok := e.(portvalSource); ok {
		return src.PortvalHistory()
	}
	return nil
}

func runningStd(series []float64) float64 {
	if len(series) < 2 {
		return 1
	}
	var mean float64
	for _, v := range series {
		mean += v
	}
	mean /= float64(len(series))
	var ss float64
	for _, v := range series {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(series)))
}

func safeGuard(std float64) float64 {
	if std <= 1e-16 {
		return 1
	}
	return std
}
