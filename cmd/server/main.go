// Riskline - Real-time transaction fraud risk scoring
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/riskline/riskline/internal/config"
	"github.com/riskline/riskline/internal/logging"
	"github.com/riskline/riskline/internal/metrics"
	"github.com/riskline/riskline/internal/server"
	"github.com/riskline/riskline/internal/traces"
)

// Build info, stamped by ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting riskline",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal(logger, "invalid config", err)
	}

	format := "json"
	if cfg.IsDevelopment() {
		format = "text"
	}
	logger = logging.New(cfg.LogLevel, format)

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"horizons", cfg.Horizons,
		"state_ttl", cfg.StateTTL,
		"ingest", cfg.IngestEnabled(),
		"alerts", cfg.AlertsEnabled(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Distributed tracing (no-op unless an OTLP endpoint is configured)
	shutdownTraces, err := traces.Init(ctx, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), logger)
	if err != nil {
		fatal(logger, "failed to initialize tracing", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTraces(shutdownCtx); err != nil {
			logger.Warn("trace shutdown error", "error", err)
		}
	}()

	go metrics.StartRuntimeStatsCollector(ctx, 15*time.Second)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		fatal(logger, "failed to create server", err)
	}

	if err := srv.Run(ctx); err != nil {
		fatal(logger, "server error", err)
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
