// Package main runs one agent against a live exchange connection,
// rebalancing at each bar boundary and persisting its decision
// history as JSON artifacts.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/atlas-desktop/olps-agents/internal/agent"
	"github.com/atlas-desktop/olps-agents/internal/config"
	"github.com/atlas-desktop/olps-agents/internal/live"
	"github.com/atlas-desktop/olps-agents/internal/metrics"
	"github.com/atlas-desktop/olps-agents/internal/obs"
	"github.com/atlas-desktop/olps-agents/internal/qp"
	"github.com/atlas-desktop/olps-agents/internal/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "", "Path to a live-loop config file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.LoadLive(*configPath)
	if err != nil {
		logger.Fatal("failed to load live config", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	reg := metrics.NewRegistry(registry)

	reportServer := report.NewServer(logger, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	httpServer := &http.Server{Addr: cfg.ReportAddr, Handler: reportServer.Handler()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("report server error", zap.Error(err))
		}
	}()

	a := agent.NewONS(logger, qp.NewActiveSetSolver())

	loop := &live.Loop{
		Exchange: &unconfiguredExchange{},
		Agent:    a,
		Logger:   logger,
		Metrics:  reg,
		Opts: live.Options{
			PeriodMinutes: cfg.PeriodMinutes,
			JitterSeconds: cfg.JitterSeconds,
			RetryAttempts: cfg.RetryAttempts,
			ArtifactDir:   cfg.ArtifactDir,
			AgentName:     cfg.Agent,
			InitTime:      strconv.FormatInt(time.Now().Unix(), 10),
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received, stopping live loop")
		cancel()
	}()

	if err := loop.Run(ctx); err != nil {
		logger.Fatal("live loop exited with error", zap.Error(err))
	}
}

// unconfiguredExchange is the wiring point where a concrete exchange
// connector belongs; it is intentionally out of scope here.
type unconfiguredExchange struct{}

func (unconfiguredExchange) GetObservation(applyPrepro bool) (*obs.Observation, error) {
	return nil, errNotConfigured
}

func (unconfiguredExchange) Rebalance(target []float64) error { return errNotConfigured }

var errNotConfigured = &exchangeNotConfiguredError{}

type exchangeNotConfiguredError struct{}

func (*exchangeNotConfiguredError) Error() string {
	return "olps-live: no exchange connector configured"
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
