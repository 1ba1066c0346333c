package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/sarahrhemadayal/baseline/internal/memory"
	"github.com/sarahrhemadayal/baseline/internal/retrieval"
)

// Items is the part of the memory store the tools call.
type Items interface {
	Search(ctx context.Context, userID, query string, opts memory.SearchOptions) ([]memory.Match, error)
	Mutate(ctx context.Context, req memory.MutateRequest) (memory.MutateResponse, error)
}

// Views serves aggregated reads.
type Views interface {
	GetView(ctx context.Context, userID string, view retrieval.View, limit int) (any, error)
}

// Server is an MCP server that calls the memory packages directly.
type Server struct {
	mcp     *mcp.Server
	items   Items
	views   Views
	metrics *toolMetrics
	logger  *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "baseline")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "baseline",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server with every tool registered.
func NewServer(cfg *Config, items Items, views Views) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if items == nil {
		return nil, fmt.Errorf("items service is required")
	}
	if views == nil {
		return nil, fmt.Errorf("views service is required")
	}

	metrics, err := defaultToolMetrics()
	if err != nil {
		// Tools still work without instruments; track is nil-safe.
		cfg.Logger.Warn("creating tool metrics", zap.Error(err))
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		items:   items,
		views:   views,
		metrics: metrics,
		logger:  cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves MCP on stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	return s.RunTransport(ctx, &mcp.StdioTransport{})
}

// RunTransport serves MCP on t.
func (s *Server) RunTransport(ctx context.Context, t mcp.Transport) error {
	if err := s.mcp.Run(ctx, t); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect starts a single session on t without blocking. Used by in-process
// clients.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}
