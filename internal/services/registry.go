package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sarahrhemadayal/baseline/internal/config"
	"github.com/sarahrhemadayal/baseline/internal/embeddings"
	"github.com/sarahrhemadayal/baseline/internal/events"
	"github.com/sarahrhemadayal/baseline/internal/ingestion"
	"github.com/sarahrhemadayal/baseline/internal/logging"
	"github.com/sarahrhemadayal/baseline/internal/memory"
	"github.com/sarahrhemadayal/baseline/internal/retrieval"
	"github.com/sarahrhemadayal/baseline/internal/secrets"
	"github.com/sarahrhemadayal/baseline/internal/vectorstore"
)

// Registry holds the constructed services. Use accessor methods to
// retrieve individual services.
type Registry struct {
	index      vectorstore.Index
	embedder   *embeddings.Adapter
	scrubber   secrets.Scrubber
	publisher  events.Publisher
	store      *memory.Store
	aggregator *retrieval.Aggregator
	pipeline   *ingestion.Pipeline
	logger     *logging.Logger
}

func (r *Registry) Index() vectorstore.Index          { return r.index }
func (r *Registry) Embedder() *embeddings.Adapter     { return r.embedder }
func (r *Registry) Scrubber() secrets.Scrubber        { return r.scrubber }
func (r *Registry) Publisher() events.Publisher       { return r.publisher }
func (r *Registry) Store() *memory.Store              { return r.store }
func (r *Registry) Aggregator() *retrieval.Aggregator { return r.aggregator }
func (r *Registry) Pipeline() *ingestion.Pipeline     { return r.pipeline }

// Build constructs every service from cfg. On error, anything already
// opened is closed.
func Build(ctx context.Context, cfg *config.Config, logger *logging.Logger) (_ *Registry, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Registry{logger: logger}
	defer func() {
		if err != nil {
			_ = r.Close()
		}
	}()

	if r.index, err = NewIndex(cfg); err != nil {
		return nil, fmt.Errorf("creating vector index: %w", err)
	}
	logger.Info(ctx, "vector index ready", zap.String("provider", cfg.VectorStore.Provider))

	provider, err := embeddings.NewProvider(ctx, embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey.Value(),
		Dimension: cfg.Embeddings.Dimension,
		CacheDir:  cfg.Embeddings.CacheDir,
		Timeout:   cfg.Embeddings.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	r.embedder, err = embeddings.NewAdapter(provider, embeddings.AdapterConfig{
		Dimension: cfg.Embeddings.Dimension,
		Model:     cfg.Embeddings.Model,
		Timeout:   cfg.Embeddings.Timeout,
		RateLimit: cfg.Embeddings.RateLimit,
		RateBurst: cfg.Embeddings.RateBurst,
	}, logger, embeddings.NewMetrics(logger.Underlying()))
	if err != nil {
		_ = provider.Close()
		return nil, fmt.Errorf("creating embedding adapter: %w", err)
	}
	logger.Info(ctx, "embeddings ready",
		zap.String("provider", provider.Name()),
		zap.String("model", cfg.Embeddings.Model),
		zap.Int("dimension", r.embedder.Dimension()))

	if r.scrubber, err = secrets.FromConfig(!cfg.Secrets.Disabled, cfg.Secrets.AllowlistPath); err != nil {
		return nil, fmt.Errorf("creating secret scrubber: %w", err)
	}

	if r.publisher, err = NewPublisher(cfg, logger); err != nil {
		return nil, fmt.Errorf("creating event publisher: %w", err)
	}

	r.store, err = memory.NewStore(vectorstore.NewManager(r.index, logger), r.embedder, memory.Config{
		ProgressCollection:     cfg.Memory.ProgressCollection,
		ConversationCollection: cfg.Memory.ConversationCollection,
		DefaultSearchLimit:     cfg.Memory.DefaultSearchLimit,
		MaxTextLength:          cfg.Ingestion.MaxTextLength,
	},
		memory.WithScrubber(r.scrubber),
		memory.WithPublisher(r.publisher),
		memory.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("creating memory store: %w", err)
	}

	if r.aggregator, err = retrieval.NewAggregator(r.store, logger); err != nil {
		return nil, fmt.Errorf("creating aggregator: %w", err)
	}

	r.pipeline, err = ingestion.NewPipeline(r.store, ingestion.Config{
		FailurePolicy:    cfg.Ingestion.FailurePolicy,
		MinMessageLength: cfg.Ingestion.MinMessageLength,
		MaxTextLength:    cfg.Ingestion.MaxTextLength,
		Concurrency:      cfg.Ingestion.Concurrency,
	},
		ingestion.WithScrubber(r.scrubber),
		ingestion.WithPublisher(r.publisher),
		ingestion.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ingestion pipeline: %w", err)
	}

	return r, nil
}

// NewIndex opens the configured vector index backend.
func NewIndex(cfg *config.Config) (vectorstore.Index, error) {
	switch cfg.VectorStore.Provider {
	case "qdrant":
		idx, err := vectorstore.NewQdrantIndex(vectorstore.QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey.Value(),
			UseTLS:     cfg.Qdrant.UseTLS,
			Timeout:    cfg.Qdrant.Timeout,
			MaxRetries: cfg.Qdrant.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "chromem":
		idx, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{
			Path:     cfg.VectorStore.ChromemPath,
			Compress: cfg.VectorStore.ChromemCompress,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown vectorstore provider %q", cfg.VectorStore.Provider)
	}
}

// NewPublisher connects to NATS when enabled and otherwise returns a no-op.
func NewPublisher(cfg *config.Config, logger *logging.Logger) (events.Publisher, error) {
	if !cfg.NATS.Enabled {
		return events.NopPublisher{}, nil
	}
	pub, err := events.NewNATSPublisher(events.NATSConfig{
		URL:           cfg.NATS.URL,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
	}, logger)
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// Close releases the publisher, the embedding provider and the index.
func (r *Registry) Close() error {
	var errs []error
	if r.publisher != nil {
		if err := r.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher close: %w", err))
		}
	}
	if r.embedder != nil {
		if err := r.embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("embedder close: %w", err))
		}
	}
	if r.index != nil {
		if err := r.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("index close: %w", err))
		}
	}
	return errors.Join(errs...)
}
