//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedConfig configures the local ONNX provider.
type FastEmbedConfig struct {
	// Model is a key of fastEmbedDims or one of its aliases.
	Model string
	// CacheDir receives downloaded model files. Defaults to a temp dir.
	CacheDir string
	// MaxLength caps the tokenized input. Defaults to 512.
	MaxLength int
}

// FastEmbedProvider runs an embedding model in-process.
type FastEmbedProvider struct {
	mu    sync.RWMutex
	flag  *fastembed.FlagEmbedding
	model string
	dim   int
}

var fastEmbedModels = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// NewFastEmbedProvider loads the model, downloading it on first use.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	if cfg.Model == "" {
		cfg.Model = defaultFastEmbedModel
	}
	canon, ok := canonicalFastEmbedModel(cfg.Model)
	if !ok {
		return nil, fmt.Errorf("%w: fastembed model %q is not supported", ErrInvalidConfig, cfg.Model)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(os.TempDir(), "baseline-models")
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 512
	}

	quiet := false
	flag, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                fastEmbedModels[canon],
		CacheDir:             cfg.CacheDir,
		MaxLength:            cfg.MaxLength,
		ShowDownloadProgress: &quiet,
	})
	if err != nil {
		return nil, fmt.Errorf("loading fastembed model %s: %w", canon, err)
	}
	return &FastEmbedProvider{flag: flag, model: canon, dim: fastEmbedDims[canon]}, nil
}

// Embed runs the local model. Stored records and search queries share one
// vector space, so both use the passage prefix.
func (p *FastEmbedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.flag == nil {
		return nil, fmt.Errorf("fastembed: provider closed")
	}

	vecs, err := p.flag.PassageEmbed([]string{text}, 1)
	if err != nil {
		return nil, fmt.Errorf("fastembed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("fastembed: no vector returned")
	}
	return vecs[0], nil
}

func (p *FastEmbedProvider) Name() string   { return "fastembed" }
func (p *FastEmbedProvider) Dimension() int { return p.dim }

// Close frees the ONNX session. Later Embed calls fail.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.flag == nil {
		return nil
	}
	err := p.flag.Destroy()
	p.flag = nil
	return err
}
