package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarahrhemadayal/baseline/internal/config"
	"github.com/sarahrhemadayal/baseline/internal/events"
	"github.com/sarahrhemadayal/baseline/internal/ingestion"
	"github.com/sarahrhemadayal/baseline/internal/memory"
	"github.com/sarahrhemadayal/baseline/internal/vectorstore"
)

func localConfig() *config.Config {
	cfg := config.Default()
	cfg.VectorStore.Provider = "chromem"
	cfg.Embeddings.Provider = "hash"
	cfg.Embeddings.Dimension = 32
	return cfg
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	reg, err := Build(ctx, localConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, reg.Close()) })

	assert.IsType(t, &vectorstore.ChromemIndex{}, reg.Index())
	assert.IsType(t, events.NopPublisher{}, reg.Publisher())
	assert.Equal(t, 32, reg.Embedder().Dimension())
	assert.True(t, reg.Scrubber().IsEnabled())
	require.NotNil(t, reg.Aggregator())

	// The graph is wired end to end.
	id, err := reg.Store().Create(ctx, "u1", &memory.ItemData{
		Item:          "Learn Go",
		Type:          memory.ItemSkill,
		EmbeddingText: "Learning Go concurrency",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	res, err := reg.Pipeline().BulkIngest(ctx, "u1", ingestion.Sections{ExtractedSkills: []string{"Go"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.VectorsCreated)
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(context.Background(), nil, nil)
	assert.Error(t, err)

	cfg := localConfig()
	cfg.Embeddings.Provider = "carrier-pigeon"
	_, err = Build(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "creating embedding provider")
}

func TestNewIndex_Unknown(t *testing.T) {
	cfg := localConfig()
	cfg.VectorStore.Provider = "faiss"
	_, err := NewIndex(cfg)
	assert.Error(t, err)
}
