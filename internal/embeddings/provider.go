// Package embeddings turns text into fixed-length vectors.
//
// A Provider talks to one backend (Gemini, TEI, an OpenAI-compatible
// endpoint, local FastEmbed or the offline hash embedder). Callers never use
// a Provider directly: they go through an Adapter, which applies the call
// timeout, rate limit and dimension check and maps every backend failure to
// ErrEmbeddingUnavailable.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sarahrhemadayal/baseline/internal/vectorstore"
)

var (
	// ErrEmptyInput indicates empty or whitespace-only text.
	ErrEmptyInput = errors.New("embedding input is empty")

	// ErrInvalidInput indicates text the provider cannot accept, such as invalid UTF-8.
	ErrInvalidInput = errors.New("embedding input is invalid")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingUnavailable indicates the provider failed or timed out.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrDimensionMismatch is shared with the vector store so callers match one sentinel.
	ErrDimensionMismatch = vectorstore.ErrDimensionMismatch
)

// Embedder is what the memory store and ingestion pipeline depend on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Provider is one embedding backend.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the vector length the provider is configured for.
	Dimension() int
	// Name identifies the provider in logs and metrics.
	Name() string
	Close() error
}

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	// Provider is one of gemini, tei, openai, fastembed, hash.
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	Dimension int
	CacheDir  string
	Timeout   time.Duration
}

// NewProvider builds the configured provider.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	if cfg.Dimension == 0 {
		cfg.Dimension = detectDimensionFromModel(cfg.Model)
	}
	switch cfg.Provider {
	case "gemini", "":
		return asProvider(NewGeminiProvider(ctx, GeminiConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		}))
	case "tei":
		return asProvider(NewTEIProvider(TEIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		}))
	case "openai":
		return asProvider(NewOpenAIProvider(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			Dimension: cfg.Dimension,
		}))
	case "fastembed":
		return asProvider(NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		}))
	case "hash":
		return NewHashProvider(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// asProvider keeps a failed constructor's typed nil out of the interface.
func asProvider[P Provider](p P, err error) (Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

// detectDimensionFromModel guesses the output size from a model name.
func detectDimensionFromModel(model string) int {
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "text-embedding-004"), strings.Contains(m, "gemini-embedding"):
		return 768
	case strings.Contains(m, "text-embedding-3-large"):
		return 3072
	case strings.Contains(m, "text-embedding-3-small"), strings.Contains(m, "ada-002"):
		return 1536
	case strings.Contains(m, "large"):
		return 1024
	case strings.Contains(m, "small"), strings.Contains(m, "mini"):
		return 384
	default:
		return 768
	}
}
