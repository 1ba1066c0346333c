package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sarahrhemadayal/baseline/internal/logging"
)

// AdapterConfig configures the Adapter.
type AdapterConfig struct {
	// Dimension is the vector length the collections are configured for.
	Dimension int
	Model     string
	// Timeout bounds each Embed call. Zero means 30s.
	Timeout time.Duration
	// RateLimit is calls per second; zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Adapter is the single entry point to embeddings. It guarantees that a
// successful Embed returns exactly Dimension floats and that every provider
// failure surfaces as ErrEmbeddingUnavailable.
type Adapter struct {
	provider  Provider
	dimension int
	model     string
	timeout   time.Duration
	limiter   *rate.Limiter
	metrics   *Metrics
	logger    *logging.Logger
}

var _ Embedder = (*Adapter)(nil)

// NewAdapter wraps provider. It fails if the provider's dimension disagrees
// with the configured one.
func NewAdapter(provider Provider, cfg AdapterConfig, logger *logging.Logger, metrics *Metrics) (*Adapter, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: provider is nil", ErrInvalidConfig)
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = provider.Dimension()
	}
	if pd := provider.Dimension(); pd > 0 && pd != cfg.Dimension {
		return nil, fmt.Errorf("%w: provider %s produces %d dimensions, configured %d",
			ErrDimensionMismatch, provider.Name(), pd, cfg.Dimension)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(logger.Underlying())
	}

	a := &Adapter{
		provider:  provider,
		dimension: cfg.Dimension,
		model:     cfg.Model,
		timeout:   cfg.Timeout,
		metrics:   metrics,
		logger:    logger.Named("embeddings"),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return a, nil
}

// Dimension returns the guaranteed vector length.
func (a *Adapter) Dimension() int { return a.dimension }

// Embed returns the embedding of text.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			a.metrics.RecordRateLimited(ctx, a.provider.Name())
			return nil, fmt.Errorf("%w: rate limiter: %v", ErrEmbeddingUnavailable, err)
		}
	}

	start := time.Now()
	vec, err := a.provider.Embed(ctx, text)
	if err == nil {
		err = a.check(vec)
	}
	a.metrics.Record(ctx, a.provider.Name(), a.model, time.Since(start), err)

	if err != nil {
		a.logger.Warn(ctx, "embedding failed",
			zap.String("provider", a.provider.Name()),
			zap.Int("text_len", len(text)),
			zap.Error(err))
		if errors.Is(err, ErrDimensionMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrEmbeddingUnavailable, a.provider.Name(), err)
	}
	return vec, nil
}

// check rejects wrong-length and all-zero vectors.
func (a *Adapter) check(vec []float32) error {
	if len(vec) != a.dimension {
		return fmt.Errorf("%w: provider returned %d, expected %d", ErrDimensionMismatch, len(vec), a.dimension)
	}
	for _, v := range vec {
		if v != 0 {
			return nil
		}
	}
	return errors.New("provider returned a zero vector")
}

// Close closes the provider.
func (a *Adapter) Close() error {
	return a.provider.Close()
}
