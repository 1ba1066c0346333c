package services

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"

	"github.com/sarahrhemadayal/baseline/internal/config"
	"github.com/sarahrhemadayal/baseline/internal/logging"
	"github.com/sarahrhemadayal/baseline/internal/telemetry"
)

// LogOutput picks where process logs go.
type LogOutput int

const (
	LogToStdout LogOutput = iota
	// LogToStderr keeps stdout free for the MCP stdio transport.
	LogToStderr
)

// NewTelemetry starts OpenTelemetry from the observability section.
func NewTelemetry(ctx context.Context, cfg *config.Config, version string) (*telemetry.Telemetry, error) {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Observability.EnableTelemetry
	tc.Endpoint = cfg.Observability.OTLPEndpoint
	tc.Protocol = cfg.Observability.OTLPProtocol
	tc.Insecure = cfg.Observability.OTLPInsecure
	tc.ServiceName = cfg.Observability.ServiceName
	tc.ServiceVersion = version
	tc.SamplingRate = cfg.Observability.SamplingRate
	return telemetry.New(ctx, tc)
}

// NewLogger builds the process logger. tel may be nil.
func NewLogger(cfg *config.Config, out LogOutput, tel *telemetry.Telemetry) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.ParseLevel(cfg.Observability.LogLevel)
	if err != nil {
		return nil, err
	}
	lc.Level = level
	lc.Format = cfg.Observability.LogFormat
	lc.Fields["service"] = cfg.Observability.ServiceName
	if out == LogToStderr {
		lc.Output.Stdout = false
		lc.Output.Stderr = true
	}
	if tel.Enabled() {
		lc.Output.OTEL = true
		return logging.NewLogger(lc, tel.LoggerProvider())
	}
	return logging.NewLogger(lc, nil)
}

// DialTemporal connects to the configured Temporal frontend.
func DialTemporal(cfg *config.Config) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}
	return c, nil
}
