package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashProvider is a deterministic, offline embedder using feature hashing
// over lowercase word tokens. Texts sharing words land near each other,
// which is enough for local development and tests.
type HashProvider struct {
	dimension int
}

// NewHashProvider returns a hash embedder of the given size.
func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = 768
	}
	return &HashProvider{dimension: dimension}
}

// Embed returns a unit-length vector. Text without word characters hashes
// the raw string so the result is never the zero vector.
func (h *HashProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dimension)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		tokens = []string{text}
	}
	for _, tok := range tokens {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dimension))
		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}
		vec[idx] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// Opposite-signed collisions cancelled out.
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

// Dimension returns the vector size.
func (h *HashProvider) Dimension() int { return h.dimension }

// Name returns "hash".
func (h *HashProvider) Name() string { return "hash" }

// Close is a no-op.
func (h *HashProvider) Close() error { return nil }
