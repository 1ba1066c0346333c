package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFastEmbedModelDimension(t *testing.T) {
	tests := []struct {
		model   string
		wantDim int
		known   bool
	}{
		{"BAAI/bge-small-en-v1.5", 384, true},
		{"fast-bge-small-en-v1.5", 384, true},
		{"BAAI/bge-base-en-v1.5", 768, true},
		{"fast-bge-small-zh-v1.5", 512, true},
		{"sentence-transformers/all-MiniLM-L6-v2", 384, true},
		{"unknown-model", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			dim, ok := fastEmbedModelDimension(tt.model)
			assert.Equal(t, tt.known, ok)
			assert.Equal(t, tt.wantDim, dim)
		})
	}
}

func TestCanonicalFastEmbedModel(t *testing.T) {
	canon, ok := canonicalFastEmbedModel("fast-all-MiniLM-L6-v2")
	assert.True(t, ok)
	assert.Equal(t, "sentence-transformers/all-MiniLM-L6-v2", canon)

	_, ok = canonicalFastEmbedModel("text-embedding-004")
	assert.False(t, ok)
}
