package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarahrhemadayal/baseline/internal/embeddings"
	"github.com/sarahrhemadayal/baseline/internal/memory"
	"github.com/sarahrhemadayal/baseline/internal/vectorstore"
)

const testDim = 32

func newTestAggregator(t *testing.T, opts ...memory.StoreOption) (*Aggregator, *memory.Store) {
	t.Helper()
	idx, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	store, err := memory.NewStore(vectorstore.NewManager(idx, nil), embeddings.NewHashProvider(testDim), memory.Config{}, opts...)
	require.NoError(t, err)
	agg, err := NewAggregator(store, nil)
	require.NoError(t, err)
	return agg, store
}

// seed embeds text and appends one conversation record.
func seed(t *testing.T, store *memory.Store, userID, typ, text string, data any) {
	t.Helper()
	vec, err := store.Embedder().Embed(context.Background(), text)
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), userID, []memory.Entry{
		{Type: typ, Data: data, Vector: vec},
	}))
}

func TestNewAggregator(t *testing.T) {
	_, err := NewAggregator(nil, nil)
	assert.Error(t, err)
}

func TestAggregator_SkillsDeduplicated(t *testing.T) {
	agg, store := newTestAggregator(t)
	ctx := context.Background()

	seed(t, store, "u1", memory.TypeSkills, "Skills: Python, Go", map[string]any{"skills": []string{"Python", "Go"}})
	seed(t, store, "u1", memory.TypeExtractedSkills, "Extracted Skills from Chat: Go, Rust", map[string]any{"skills": []string{"Go", "Rust"}})
	seed(t, store, "u2", memory.TypeSkills, "Skills: COBOL", map[string]any{"skills": []string{"COBOL"}})

	skills, err := agg.Skills(ctx, "u1", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Python", "Go", "Rust"}, skills)

	view, err := agg.GetView(ctx, "u1", ViewSkills, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Python", "Go", "Rust"}, view)
}

func TestAggregator_SkillsEmpty(t *testing.T) {
	agg, _ := newTestAggregator(t)
	skills, err := agg.Skills(context.Background(), "nobody", 0)
	require.NoError(t, err)
	assert.NotNil(t, skills)
	assert.Empty(t, skills)
}

func TestAggregator_SpeechPattern(t *testing.T) {
	agg, store := newTestAggregator(t)
	ctx := context.Background()

	got, err := agg.SpeechPattern(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	seed(t, store, "u1", memory.TypeSpeechPattern, "Speech Pattern: tone casual", map[string]any{"tone": "casual"})
	seed(t, store, "u1", memory.TypeSpeechPattern, "Speech Pattern: tone formal", map[string]any{"tone": "formal"})

	got, err = agg.GetView(ctx, "u1", ViewSpeechPattern, 0)
	require.NoError(t, err)
	assert.Equal(t, "formal", got.(map[string]any)["tone"])
}

func TestAggregator_ListViews(t *testing.T) {
	agg, store := newTestAggregator(t)
	ctx := context.Background()

	seed(t, store, "u1", "project", "Project: Baseline", map[string]any{"name": "Baseline"})
	seed(t, store, "u1", "project", "Project: Resume parser", map[string]any{"name": "Resume parser"})
	seed(t, store, "u1", "work_experience", "Work Experience: Acme", map[string]any{"company": "Acme"})
	seed(t, store, "u1", memory.TypeConversationSummary, "Conversation Summary: wants a backend role", map[string]any{"summary": "wants a backend role"})
	seed(t, store, "u2", "project", "Project: Other", map[string]any{"name": "Other"})

	tests := []struct {
		view View
		want int
	}{
		{ViewProjects, 2},
		{ViewWorkExperience, 1},
		{ViewInsights, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.view), func(t *testing.T) {
			got, err := agg.GetView(ctx, "u1", tt.view, 0)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	got, err := agg.GetView(ctx, "u1", ViewProjects, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestAggregator_RecentMessagesNewestFirst(t *testing.T) {
	agg, store := newTestAggregator(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	for _, offset := range []int{2, 0, 3, 1} {
		ts := base.Add(time.Duration(offset) * time.Hour).Format(time.RFC3339)
		seed(t, store, "u1", memory.TypeUserMessage, "message "+ts,
			map[string]any{"content": "message " + ts, "timestamp": ts})
	}

	got, err := agg.GetView(ctx, "u1", ViewRecentMessages, 0)
	require.NoError(t, err)
	msgs := got.([]any)
	require.Len(t, msgs, 4)
	for i, want := range []int{3, 2, 1, 0} {
		assert.Equal(t, base.Add(time.Duration(want)*time.Hour).Format(time.RFC3339),
			msgs[i].(map[string]any)["timestamp"])
	}
}

func TestAggregator_RecentMessagesBeyondLimit(t *testing.T) {
	agg, store := newTestAggregator(t)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	stamp := func(i int) string { return base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339) }
	for i := 0; i < 30; i++ {
		seed(t, store, "u1", memory.TypeUserMessage, fmt.Sprintf("message number %d about topic %d", i, i*7),
			map[string]any{"content": fmt.Sprintf("message %d", i), "timestamp": stamp(i)})
	}

	got, err := agg.GetView(ctx, "u1", ViewRecentMessages, 3)
	require.NoError(t, err)
	msgs := got.([]any)
	require.Len(t, msgs, 3)
	for i, want := range []int{29, 28, 27} {
		assert.Equal(t, stamp(want), msgs[i].(map[string]any)["timestamp"])
	}

	got, err = agg.GetView(ctx, "u1", ViewRecentMessages, 0)
	require.NoError(t, err)
	msgs = got.([]any)
	require.Len(t, msgs, recentMessagesLimit)
	assert.Equal(t, stamp(29), msgs[0].(map[string]any)["timestamp"])
	assert.Equal(t, stamp(30-recentMessagesLimit), msgs[recentMessagesLimit-1].(map[string]any)["timestamp"])
}

func TestAggregator_SpeechPatternLatestOfMany(t *testing.T) {
	var tick atomic.Int64
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Second) }
	agg, store := newTestAggregator(t, memory.WithClock(clock))

	for i := 0; i < 25; i++ {
		seed(t, store, "u1", memory.TypeSpeechPattern, fmt.Sprintf("Speech Pattern: variant %d", i),
			map[string]any{"variant": float64(i)})
	}

	got, err := agg.SpeechPattern(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, float64(24), got.(map[string]any)["variant"])
}

func TestAggregator_UnknownView(t *testing.T) {
	agg, _ := newTestAggregator(t)
	_, err := agg.GetView(context.Background(), "u1", View("hobbies"), 0)
	assert.ErrorIs(t, err, ErrUnknownView)
}

func TestAggregator_RequiresUser(t *testing.T) {
	agg, _ := newTestAggregator(t)
	for _, v := range Views() {
		_, err := agg.GetView(context.Background(), "", v, 0)
		assert.ErrorIs(t, err, memory.ErrInvalidAction, string(v))
	}
}

func TestAggregator_SearchSimilar(t *testing.T) {
	agg, store := newTestAggregator(t)
	ctx := context.Background()

	long := strings.Repeat("distributed systems ", 60)
	seed(t, store, "u1", "project", "Project: consensus library", map[string]any{"name": "raft", "description": long})
	seed(t, store, "u1", memory.TypeUserMessage, "I enjoy baking bread", map[string]any{"content": "I enjoy baking bread"})
	seed(t, store, "u2", "project", "Project: consensus library", map[string]any{"name": "paxos"})

	results, err := agg.SearchSimilar(ctx, "u1", "consensus library", SimilarOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "project", results[0].Type)
	assert.NotEmpty(t, results[0].Timestamp)

	data := results[0].Data.(map[string]any)
	desc := data["description"].(string)
	assert.True(t, strings.HasSuffix(desc, "..."))
	assert.Len(t, []rune(desc), maxSimilarTextLength+3)
	assert.Equal(t, "raft", data["name"])

	results, err = agg.SearchSimilar(ctx, "u1", "consensus library", SimilarOptions{Type: memory.TypeUserMessage})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, memory.TypeUserMessage, results[0].Type)
}

func TestTruncateData(t *testing.T) {
	short := "fine"
	assert.Equal(t, short, truncateData(short))

	long := strings.Repeat("é", 600)
	got := truncateData(long).(string)
	assert.Equal(t, strings.Repeat("é", 500)+"...", got)

	in := map[string]any{"embeddingText": long, "title": long}
	out := truncateData(in).(map[string]any)
	assert.Len(t, []rune(out["embeddingText"].(string)), 503)
	assert.Equal(t, long, out["title"])
	assert.Equal(t, long, in["embeddingText"])

	assert.Equal(t, 42.0, truncateData(42.0))
}
