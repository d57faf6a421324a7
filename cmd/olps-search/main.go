// Package main runs a hyperparameter search over one agent's
// parameter space against a historical replay environment.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/atlas-desktop/olps-agents/internal/agent"
	"github.com/atlas-desktop/olps-agents/internal/config"
	"github.com/atlas-desktop/olps-agents/internal/env"
	"github.com/atlas-desktop/olps-agents/internal/eval"
	"github.com/atlas-desktop/olps-agents/internal/metrics"
	"github.com/atlas-desktop/olps-agents/internal/qp"
	"github.com/atlas-desktop/olps-agents/internal/report"
	"github.com/atlas-desktop/olps-agents/internal/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "", "Path to a search config file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.LoadSearch(*configPath)
	if err != nil {
		logger.Fatal("failed to load search config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	reg := metrics.NewRegistry(registry)

	reportServer := report.NewServer(logger, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	httpServer := &http.Server{Addr: cfg.MetricsAddr, Handler: reportServer.Handler()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("report server error", zap.Error(err))
		}
	}()

	a, err := newAgent(cfg.Agent, logger)
	if err != nil {
		logger.Fatal("failed to construct agent", zap.Error(err))
	}

	driver := &search.Driver{
		Space:   spaceFor(cfg.Agent),
		Workers: cfg.Workers,
		N:       cfg.Samples,
		Logger:  logger,
		Metrics: reg,
		Score: func(p search.ParamSet) (float64, error) {
			params := make(map[string]any, len(p))
			for k, v := range p {
				params[k] = v
			}
			if err := a.SetParams(params); err != nil {
				return 0, err
			}
			e := buildEnvironment()
			return eval.Run(ctx, e, a, eval.Options{MaxSteps: cfg.MaxSteps, Logger: logger})
		},
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received, cancelling search")
		cancel()
	}()

	best, info, err := driver.Run(ctx)
	if err != nil {
		logger.Fatal("search run failed", zap.Error(err))
	}
	logger.Info("search complete",
		zap.String("state", info.State.String()),
		zap.Int("evaluated", info.Evaluated),
		zap.Float64("best_score", info.Best.Score),
		zap.Any("best_params", best),
	)
}

// buildEnvironment is a placeholder data source; wiring a concrete
// market-data feed is left to deployment-specific configuration.
func buildEnvironment() env.Environment {
	return env.NewBacktestEnvironment(nil, env.Config{})
}

func newAgent(name string, logger *zap.Logger) (agent.Agent, error) {
	switch name {
	case "buy_and_hold":
		return agent.NewBuyAndHold(logger), nil
	case "ons":
		return agent.NewONS(logger, qp.NewActiveSetSolver()), nil
	default:
		return agent.NewONS(logger, qp.NewActiveSetSolver()), nil
	}
}

func spaceFor(agentName string) search.Space {
	switch agentName {
	case "ons":
		return search.Space{
			Continuous: map[string]search.Range{
				"beta":  {Min: 0.1, Max: 5},
				"delta": {Min: 1e-6, Max: 1e-2},
				"eta":   {Min: 1e-4, Max: 1},
			},
		}
	default:
		return search.Space{}
	}
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
