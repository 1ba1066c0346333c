// Package retrieval assembles named views of a user's conversation memory.
//
// Views are metadata-only scans of the conversation collection: they never
// call the embedding provider. SearchSimilar is the one semantic entry point.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sarahrhemadayal/baseline/internal/logging"
	"github.com/sarahrhemadayal/baseline/internal/memory"
	"github.com/sarahrhemadayal/baseline/internal/vectorstore"
)

// ErrUnknownView is returned for a view name outside the known set.
var ErrUnknownView = errors.New("unknown view")

// View names a derived read model.
type View string

const (
	ViewSpeechPattern  View = "speech_pattern"
	ViewSkills         View = "skills"
	ViewProjects       View = "projects"
	ViewWorkExperience View = "work_experience"
	ViewInsights       View = "insights"
	ViewRecentMessages View = "recent_messages"
)

// Views lists every view in a stable order.
func Views() []View {
	return []View{ViewSpeechPattern, ViewSkills, ViewProjects, ViewWorkExperience, ViewInsights, ViewRecentMessages}
}

// Record limits per view.
const (
	skillsLimit          = 10
	projectsLimit        = 20
	workExperienceLimit  = 20
	insightsLimit        = 10
	recentMessagesLimit  = 10
	maxViewLimit         = memory.MaxSearchLimit
	defaultSimilarLimit  = 10
	maxSimilarTextLength = 500
)

// Aggregator builds views on top of the memory store.
type Aggregator struct {
	store  *memory.Store
	logger *logging.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(store *memory.Store, logger *logging.Logger) (*Aggregator, error) {
	if store == nil {
		return nil, fmt.Errorf("memory store cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Aggregator{store: store, logger: logger.Named("retrieval")}, nil
}

// GetView returns the named view for userID. limit overrides the view's
// default record limit when positive.
func (a *Aggregator) GetView(ctx context.Context, userID string, view View, limit int) (any, error) {
	switch view {
	case ViewSpeechPattern:
		return a.SpeechPattern(ctx, userID)
	case ViewSkills:
		return a.Skills(ctx, userID, limit)
	case ViewProjects:
		return a.listData(ctx, userID, pick(limit, projectsLimit), string(memory.ItemProject))
	case ViewWorkExperience:
		return a.listData(ctx, userID, pick(limit, workExperienceLimit), string(memory.ItemWorkExperience))
	case ViewInsights:
		return a.listData(ctx, userID, pick(limit, insightsLimit), memory.TypeConversationSummary)
	case ViewRecentMessages:
		return a.RecentMessages(ctx, userID, limit)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, view)
	}
}

func pick(limit, def int) int {
	switch {
	case limit <= 0:
		return def
	case limit > maxViewLimit:
		return maxViewLimit
	default:
		return limit
	}
}

// list scans matching records. A limit of zero or less scans all of them.
func (a *Aggregator) list(ctx context.Context, userID string, limit int, types ...string) ([]memory.Record, error) {
	recs, err := a.store.ListByFilter(ctx, userID,
		vectorstore.NewFilter(vectorstore.MatchAny("type", types...)),
		memory.ListOptions{Scope: memory.ScopeConversation, Limit: limit, All: limit <= 0})
	if err != nil {
		return nil, err
	}
	a.logger.Debug(ctx, "view scan",
		zap.Strings("types", types),
		zap.Int("records", len(recs)))
	return recs, nil
}

// listData returns the non-empty data of matching records.
func (a *Aggregator) listData(ctx context.Context, userID string, limit int, types ...string) ([]any, error) {
	recs, err := a.list(ctx, userID, limit, types...)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(recs))
	for _, r := range recs {
		if r.Data != nil {
			out = append(out, r.Data)
		}
	}
	return out, nil
}

// SpeechPattern returns the data of the most recently written speech
// pattern record, or nil if there is none.
func (a *Aggregator) SpeechPattern(ctx context.Context, userID string) (any, error) {
	recs, err := a.list(ctx, userID, 0, memory.TypeSpeechPattern)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	latest := recs[0]
	for _, r := range recs[1:] {
		if newer(r, latest) {
			latest = r
		}
	}
	return latest.Data, nil
}

// newer orders records by write timestamp, then by id so equal
// timestamps still order deterministically.
func newer(a, b memory.Record) bool {
	ta, tb := parseTime(a.Timestamp), parseTime(b.Timestamp)
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return a.ID > b.ID
}

// Skills returns the union of the skills arrays of skills and
// extracted_skills records, first-seen order, without duplicates.
func (a *Aggregator) Skills(ctx context.Context, userID string, limit int) ([]string, error) {
	recs, err := a.list(ctx, userID, pick(limit, skillsLimit), memory.TypeSkills, memory.TypeExtractedSkills)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	out := []string{}
	for _, r := range recs {
		for _, s := range skillsOf(r.Data) {
			if _, dup := seen[s]; dup || s == "" {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out, nil
}

func skillsOf(data any) []string {
	m, ok := data.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := m["skills"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// RecentMessages returns the newest user messages by data.timestamp,
// newest first. Every message is scanned so the cut happens after sorting.
func (a *Aggregator) RecentMessages(ctx context.Context, userID string, limit int) ([]any, error) {
	data, err := a.listData(ctx, userID, 0, memory.TypeUserMessage)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(data, func(i, j int) bool {
		return parseTime(messageTime(data[i])).After(parseTime(messageTime(data[j])))
	})
	if n := pick(limit, recentMessagesLimit); len(data) > n {
		data = data[:n]
	}
	return data, nil
}

func messageTime(data any) string {
	if m, ok := data.(map[string]any); ok {
		if ts, ok := m["timestamp"].(string); ok {
			return ts
		}
	}
	return ""
}

// parseTime accepts RFC 3339 with or without fractional seconds. Anything
// else sorts as the zero time.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}
