// Command reconcile runs a single reconciliation pass against the provider
// and exits. It suits a cron job when the server runs with RECONCILE_ENABLED=false.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"mintgate/internal/app"
	"mintgate/internal/mint/metrics"
	"mintgate/internal/platform/config"
	"mintgate/internal/platform/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New("error", "json").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log, metrics.New())
	if err != nil {
		log.Error("failed to initialise", "error", err)
		os.Exit(1)
	}

	result, err := a.Worker.PollOnce(ctx)
	if closeErr := a.Close(); closeErr != nil {
		log.Error("failed to release resources", "error", closeErr)
	}
	if err != nil {
		log.Error("reconciliation pass failed", "error", err)
		os.Exit(1)
	}
	log.Info("reconciliation pass finished",
		"checked", result.Checked,
		"applied", result.Applied,
		"resubmitted", result.Resubmitted,
		"expired", result.Expired,
		"errors", result.Errors,
	)
	if result.Errors > 0 {
		os.Exit(1)
	}
}
