// Baseline is the per-user vector memory daemon.
//
// It serves the HTTP API by default, or the MCP tools over stdio with the
// mcp subcommand. Configuration is read from ~/.config/baseline/config.yaml
// (or -config) and BASELINE_* environment variables.
//
// Usage:
//
//	baseline                 Start the HTTP daemon
//	baseline mcp             Serve MCP tools on stdio
//	baseline version         Show version information
//
//	BASELINE_VECTORSTORE_PROVIDER=chromem BASELINE_EMBEDDINGS_PROVIDER=hash baseline
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/sarahrhemadayal/baseline/internal/config"
	httpapi "github.com/sarahrhemadayal/baseline/internal/http"
	"github.com/sarahrhemadayal/baseline/internal/logging"
	"github.com/sarahrhemadayal/baseline/internal/mcp"
	"github.com/sarahrhemadayal/baseline/internal/services"
	"github.com/sarahrhemadayal/baseline/internal/workflows"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "":
		err = run(ctx, *configPath)
	case "mcp":
		err = runMCP(ctx, *configPath)
	case "version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprintf(os.Stderr, "\nUsage:\n")
		fmt.Fprintf(os.Stderr, "  baseline           Start the HTTP daemon\n")
		fmt.Fprintf(os.Stderr, "  baseline mcp       Serve MCP tools on stdio\n")
		fmt.Fprintf(os.Stderr, "  baseline version   Show version information\n")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("baseline\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// app is everything run and runMCP share.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	registry *services.Registry
	closers  []func(context.Context) error
}

// setup loads config, starts telemetry and logging, and builds the service graph.
func setup(ctx context.Context, configPath string, out services.LogOutput) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	tel, err := services.NewTelemetry(ctx, cfg, version)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	a := &app{cfg: cfg, closers: []func(context.Context) error{tel.Shutdown}}

	logger, err := services.NewLogger(cfg, out, tel)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	a.logger = logger
	if degraded, derr := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded, continuing without export", zap.Error(derr))
	}

	reg, err := services.Build(ctx, cfg, logger)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("initializing services: %w", err)
	}
	a.registry = reg
	a.closers = append(a.closers, func(context.Context) error { return reg.Close() })
	return a, nil
}

// close runs closers in reverse order.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && a.logger != nil {
			a.logger.Warn(ctx, "shutdown step failed", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// run serves the HTTP API until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	a, err := setup(ctx, configPath, services.LogToStdout)
	if err != nil {
		return err
	}
	defer a.close(context.Background())
	cfg, logger := a.cfg, a.logger

	svc := httpapi.Services{
		Items:    a.registry.Store(),
		Views:    a.registry.Aggregator(),
		Ingester: a.registry.Pipeline(),
	}
	if cfg.Temporal.Enabled {
		tc, err := services.DialTemporal(cfg)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func(context.Context) error { tc.Close(); return nil })
		starter, err := workflows.NewStarter(tc, cfg.Temporal.TaskQueue)
		if err != nil {
			return err
		}
		svc.Async = starter
		logger.Info(ctx, "temporal client connected",
			zap.String("host", cfg.Temporal.HostPort),
			zap.String("task_queue", cfg.Temporal.TaskQueue))
	}

	srv, err := httpapi.NewServer(svc, logger.Underlying(), &httpapi.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	logger.Info(ctx, "starting baseline",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.Bool("nats", cfg.NATS.Enabled),
		zap.Bool("temporal", cfg.Temporal.Enabled))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info(ctx, "server shutdown complete", zap.Duration("grace", cfg.Server.ShutdownTimeout))
	return nil
}

// runMCP serves the MCP tools on stdio. Logs go to stderr.
func runMCP(ctx context.Context, configPath string) error {
	a, err := setup(ctx, configPath, services.LogToStderr)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	mcpCfg := mcp.DefaultConfig()
	mcpCfg.Version = version
	mcpCfg.Logger = a.logger.Underlying()
	srv, err := mcp.NewServer(mcpCfg, a.registry.Store(), a.registry.Aggregator())
	if err != nil {
		return fmt.Errorf("creating mcp server: %w", err)
	}
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
