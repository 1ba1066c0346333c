// Package main provides the Temporal worker for durable bulk ingestion.
//
// The daemon starts BulkIngestWorkflow for POST /api/v1/ingest?async=true;
// this worker executes it against the same vector index and embedding
// provider.
//
// Usage:
//
//	BASELINE_TEMPORAL_HOST_PORT=localhost:7233 ./baseline-worker
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sarahrhemadayal/baseline/internal/config"
	"github.com/sarahrhemadayal/baseline/internal/services"
	"github.com/sarahrhemadayal/baseline/internal/workflows"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tel, err := services.NewTelemetry(ctx, cfg, version)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	logger, err := services.NewLogger(cfg, services.LogToStdout, tel)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	reg, err := services.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing services: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Warn(ctx, "closing services", zap.Error(err))
		}
	}()

	c, err := services.DialTemporal(cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	logger.Info(ctx, "temporal client connected", zap.String("host", cfg.Temporal.HostPort))

	acts, err := workflows.NewActivities(reg.Pipeline(), workflows.NewMetrics())
	if err != nil {
		return err
	}

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	workflows.Register(w, acts)

	logger.Info(ctx, "worker configured",
		zap.String("task_queue", cfg.Temporal.TaskQueue),
		zap.String("failure_policy", cfg.Ingestion.FailurePolicy))

	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- w.Run(worker.InterruptCh())
	}()

	select {
	case err := <-workerErrors:
		if err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received")
		w.Stop()
	}

	logger.Info(ctx, "worker stopped gracefully")
	return nil
}
