package retrieval

import (
	"context"

	"github.com/sarahrhemadayal/baseline/internal/memory"
)

// SimilarOptions narrows SearchSimilar.
type SimilarOptions struct {
	// Limit defaults to 10.
	Limit int
	Type  string
}

// SimilarResult is one semantic hit from the conversation collection.
type SimilarResult struct {
	ID        string  `json:"id"`
	Score     float32 `json:"score"`
	Type      string  `json:"type"`
	Data      any     `json:"data"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// SearchSimilar embeds query and returns the closest conversation records
// of userID. Long text in the returned data is shortened.
func (a *Aggregator) SearchSimilar(ctx context.Context, userID, query string, opts SimilarOptions) ([]SimilarResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSimilarLimit
	}
	hits, err := a.store.Search(ctx, userID, query, memory.SearchOptions{
		Scope: memory.ScopeConversation,
		Limit: limit,
		Type:  opts.Type,
	})
	if err != nil {
		return nil, err
	}

	out := make([]SimilarResult, 0, len(hits))
	for _, h := range hits {
		r := h.Record()
		out = append(out, SimilarResult{
			ID:        r.ID,
			Score:     h.Score,
			Type:      r.Type,
			Data:      truncateData(r.Data),
			Timestamp: r.Timestamp,
		})
	}
	return out, nil
}

// truncateData shortens a string payload, or the description and
// embeddingText fields of a map payload. The input is not modified.
func truncateData(data any) any {
	switch d := data.(type) {
	case string:
		return shorten(d)
	case map[string]any:
		out := make(map[string]any, len(d))
		for k, v := range d {
			if s, ok := v.(string); ok && (k == "description" || k == "embeddingText") {
				v = shorten(s)
			}
			out[k] = v
		}
		return out
	default:
		return data
	}
}

// shorten keeps the first maxSimilarTextLength runes and marks the cut.
func shorten(s string) string {
	r := []rune(s)
	if len(r) <= maxSimilarTextLength {
		return s
	}
	return string(r[:maxSimilarTextLength]) + "..."
}
