// Package memory is the per-user vector memory of tracked career items.
//
// Tracked items (skills, projects, work experience, education, leadership)
// live in the progress collection with status in-progress until they are
// completed, which deletes them. Ingestion writes append-only records into
// a second, conversation collection. Both collections are shared by every
// user; each operation here applies the userId filter itself and rejects
// caller filters that try to override it.
//
// The store never retries: embedding and index errors are returned wrapped
// so errors.Is matches ErrEmbeddingUnavailable or ErrStoreUnavailable.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sarahrhemadayal/baseline/internal/embeddings"
	"github.com/sarahrhemadayal/baseline/internal/events"
	"github.com/sarahrhemadayal/baseline/internal/logging"
	"github.com/sarahrhemadayal/baseline/internal/secrets"
	"github.com/sarahrhemadayal/baseline/internal/vectorstore"
)

// Config holds collection names and limits.
type Config struct {
	ProgressCollection     string
	ConversationCollection string
	// DefaultSearchLimit is top-K when a search does not set one.
	DefaultSearchLimit int
	// MaxTextLength caps the embedding input, in runes.
	MaxTextLength int
}

func (c *Config) applyDefaults() {
	if c.ProgressCollection == "" {
		c.ProgressCollection = "user_progress"
	}
	if c.ConversationCollection == "" {
		c.ConversationCollection = "chat_data"
	}
	if c.DefaultSearchLimit <= 0 {
		c.DefaultSearchLimit = 5
	}
	if c.DefaultSearchLimit > MaxSearchLimit {
		c.DefaultSearchLimit = MaxSearchLimit
	}
	if c.MaxTextLength <= 0 {
		c.MaxTextLength = 16000
	}
}

// Store reads and writes user memory.
type Store struct {
	manager   *vectorstore.Manager
	embedder  embeddings.Embedder
	scrubber  secrets.Scrubber
	publisher events.Publisher
	logger    *logging.Logger
	config    Config
	now       func() time.Time
}

// StoreOption configures optional Store dependencies.
type StoreOption func(*Store)

// WithScrubber redacts secrets from item text before it is embedded or stored.
func WithScrubber(s secrets.Scrubber) StoreOption {
	return func(st *Store) {
		if s != nil {
			st.scrubber = s
		}
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) StoreOption {
	return func(st *Store) {
		if p != nil {
			st.publisher = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) StoreOption {
	return func(st *Store) {
		if l != nil {
			st.logger = l
		}
	}
}

// WithClock sets the source of record write timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(st *Store) {
		if now != nil {
			st.now = now
		}
	}
}

// NewStore creates a Store. Collections are ensured lazily on first use.
func NewStore(manager *vectorstore.Manager, embedder embeddings.Embedder, config Config, opts ...StoreOption) (*Store, error) {
	if manager == nil {
		return nil, fmt.Errorf("collection manager cannot be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if embedder.Dimension() <= 0 {
		return nil, fmt.Errorf("embedder reports dimension %d", embedder.Dimension())
	}
	config.applyDefaults()

	s := &Store{
		manager:   manager,
		embedder:  embedder,
		scrubber:  secrets.NoopScrubber{},
		publisher: events.NopPublisher{},
		logger:    logging.NewNop(),
		config:    config,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("memory")
	return s, nil
}

// Config returns the effective configuration.
func (s *Store) Config() Config { return s.config }

// Embedder returns the embedder the store writes with.
func (s *Store) Embedder() embeddings.Embedder { return s.embedder }

func (s *Store) collectionName(scope Scope) string {
	if scope == ScopeConversation {
		return s.config.ConversationCollection
	}
	return s.config.ProgressCollection
}

func (s *Store) collection(ctx context.Context, scope Scope) (*vectorstore.Collection, error) {
	c, err := s.manager.Ensure(ctx, vectorstore.CollectionSpec{
		Name:      s.collectionName(scope),
		Dimension: s.embedder.Dimension(),
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring collection: %w", err)
	}
	return c, nil
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, TruncateText(text, s.config.MaxTextLength, ""))
	if err != nil {
		if errors.Is(err, embeddings.ErrEmptyInput) || errors.Is(err, embeddings.ErrInvalidInput) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vec, nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func requireUser(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidAction)
	}
	return nil
}

func requireID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: itemId is required", ErrInvalidAction)
	}
	if !ValidID(id) {
		return fmt.Errorf("%w: itemId %q is not a valid record id", ErrInvalidAction, id)
	}
	return nil
}

// scope applies the user partition to a caller filter.
func scope(userID string, f vectorstore.Filter) (vectorstore.Filter, error) {
	scoped, err := vectorstore.ScopeToUser(userID, f)
	switch {
	case err == nil:
		return scoped, nil
	case errors.Is(err, vectorstore.ErrMissingUser):
		return vectorstore.Filter{}, fmt.Errorf("%w: userId is required", ErrInvalidAction)
	default:
		return vectorstore.Filter{}, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
}

// Create stores a new in-progress item and returns its id. The write is
// acknowledged before Create returns, so the item is immediately searchable.
func (s *Store) Create(ctx context.Context, userID string, data *ItemData) (string, error) {
	if err := requireUser(userID); err != nil {
		return "", err
	}
	if err := data.Validate(); err != nil {
		return "", err
	}
	clean := s.redactItem(*data)

	col, err := s.collection(ctx, ScopeProgress)
	if err != nil {
		return "", err
	}
	vec, err := s.embed(ctx, clean.EmbeddingText)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	if err := col.Upsert(ctx, vectorstore.Point{
		ID:      id,
		Vector:  vec,
		Payload: s.itemPayload(userID, clean),
	}); err != nil {
		return "", fmt.Errorf("storing item: %w", err)
	}

	s.logger.Info(ctx, "item created",
		zap.String("item_id", id),
		zap.String("item_type", string(clean.Type)))
	s.publish(ctx, events.ItemCreated, userID, id, string(clean.Type))
	return id, nil
}

// Update replaces the payload and vector of an existing item owned by
// userID. An id that is absent or owned by someone else is ErrRecordNotFound.
func (s *Store) Update(ctx context.Context, userID, id string, data *ItemData) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := requireID(id); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}
	clean := s.redactItem(*data)

	col, err := s.collection(ctx, ScopeProgress)
	if err != nil {
		return err
	}
	if _, err := s.owned(ctx, col, userID, id); err != nil {
		return err
	}
	vec, err := s.embed(ctx, clean.EmbeddingText)
	if err != nil {
		return err
	}
	if err := col.Upsert(ctx, vectorstore.Point{
		ID:      id,
		Vector:  vec,
		Payload: s.itemPayload(userID, clean),
	}); err != nil {
		return fmt.Errorf("updating item: %w", err)
	}

	s.logger.Info(ctx, "item updated",
		zap.String("item_id", id),
		zap.String("item_type", string(clean.Type)))
	s.publish(ctx, events.ItemUpdated, userID, id, string(clean.Type))
	return nil
}

// Complete deletes an item. Completing an absent item succeeds, and an
// item owned by another user is left untouched.
func (s *Store) Complete(ctx context.Context, userID, id string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := requireID(id); err != nil {
		return err
	}

	col, err := s.collection(ctx, ScopeProgress)
	if err != nil {
		return err
	}
	rec, err := s.owned(ctx, col, userID, id)
	if errors.Is(err, ErrRecordNotFound) {
		s.logger.Debug(ctx, "complete on absent item", zap.String("item_id", id))
		return nil
	}
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, id); err != nil {
		return fmt.Errorf("completing item: %w", err)
	}

	s.logger.Info(ctx, "item completed", zap.String("item_id", id))
	s.publish(ctx, events.ItemCompleted, userID, id, rec.Type)
	return nil
}

// Get returns one item owned by userID.
func (s *Store) Get(ctx context.Context, userID, id string) (*Record, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := requireID(id); err != nil {
		return nil, err
	}
	col, err := s.collection(ctx, ScopeProgress)
	if err != nil {
		return nil, err
	}
	return s.owned(ctx, col, userID, id)
}

func (s *Store) owned(ctx context.Context, col *vectorstore.Collection, userID, id string) (*Record, error) {
	p, err := col.Get(ctx, id)
	if errors.Is(err, vectorstore.ErrPointNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading item: %w", err)
	}
	rec := recordFromPayload(p.ID, p.Payload)
	if rec.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return &rec, nil
}

// Search embeds query and returns the closest records of userID by
// descending score.
func (s *Store) Search(ctx context.Context, userID, query string, opts SearchOptions) ([]Match, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidAction)
	}
	filter, err := s.searchFilter(userID, opts)
	if err != nil {
		return nil, err
	}
	col, err := s.collection(ctx, opts.Scope)
	if err != nil {
		return nil, err
	}
	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := col.Query(ctx, vec, filter, s.limit(opts.Limit))
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", col.Name(), err)
	}

	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		// The index already filtered; this guards against a backend that ignores it.
		if uid, _ := h.Payload[keyUserID].(string); uid != userID {
			continue
		}
		out = append(out, Match{ID: h.ID, Score: h.Score, Payload: h.Payload})
	}
	s.logger.Debug(ctx, "search complete",
		zap.String("collection", col.Name()),
		zap.Int("results", len(out)))
	return out, nil
}

func (s *Store) searchFilter(userID string, opts SearchOptions) (vectorstore.Filter, error) {
	conds := append([]vectorstore.Condition(nil), opts.Filter.Must...)
	if opts.Type != "" {
		if opts.Filter.References(keyType) {
			return vectorstore.Filter{}, fmt.Errorf("%w: type set twice", ErrInvalidFilter)
		}
		conds = append(conds, vectorstore.Match(keyType, opts.Type))
	}
	if opts.Scope == ScopeProgress && !opts.IncludeAll && !opts.Filter.References(keyStatus) {
		status := opts.Status
		if status == "" {
			status = StatusInProgress
		}
		conds = append(conds, vectorstore.Match(keyStatus, string(status)))
	}
	return scope(userID, vectorstore.NewFilter(conds...))
}

func (s *Store) limit(n int) int {
	switch {
	case n <= 0:
		return s.config.DefaultSearchLimit
	case n > MaxSearchLimit:
		return MaxSearchLimit
	default:
		return n
	}
}

// ListByFilter returns up to limit records of userID matching filter,
// without calling the embedder. Order is unspecified.
func (s *Store) ListByFilter(ctx context.Context, userID string, filter vectorstore.Filter, opts ListOptions) ([]Record, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	scoped, err := scope(userID, filter)
	if err != nil {
		return nil, err
	}
	col, err := s.collection(ctx, opts.Scope)
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	switch {
	case opts.All:
		limit = 0
	case limit <= 0:
		limit = s.config.DefaultSearchLimit
	}
	points, err := col.Scroll(ctx, scoped, limit)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", col.Name(), err)
	}
	out := make([]Record, 0, len(points))
	for _, p := range points {
		out = append(out, recordFromPayload(p.ID, p.Payload))
	}
	return out, nil
}

// Append writes pre-embedded, write-once records for userID to the
// conversation collection in one acknowledged upsert.
func (s *Store) Append(ctx context.Context, userID string, entries []Entry) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	ts := s.timestamp()
	points := make([]vectorstore.Point, 0, len(entries))
	for i, e := range entries {
		if !ValidRecordType(e.Type) {
			return fmt.Errorf("%w: entries[%d] has unknown type %q", ErrInvalidAction, i, e.Type)
		}
		id := e.ID
		if id == "" {
			id = newEntryID()
		}
		if !ValidID(id) {
			return fmt.Errorf("%w: entries[%d] id %q is not a valid record id", ErrInvalidAction, i, id)
		}
		points = append(points, vectorstore.Point{
			ID:     id,
			Vector: e.Vector,
			Payload: map[string]any{
				keyUserID:    userID,
				keyType:      e.Type,
				keyData:      e.Data,
				keyTimestamp: ts,
			},
		})
	}

	col, err := s.collection(ctx, ScopeConversation)
	if err != nil {
		return err
	}
	if err := col.Upsert(ctx, points...); err != nil {
		return fmt.Errorf("appending records: %w", err)
	}
	return nil
}

// DeleteAll removes every record of userID from both collections.
func (s *Store) DeleteAll(ctx context.Context, userID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	filter := vectorstore.NewFilter(vectorstore.Match(keyUserID, userID))
	for _, sc := range []Scope{ScopeProgress, ScopeConversation} {
		col, err := s.collection(ctx, sc)
		if err != nil {
			return err
		}
		if err := col.DeleteByFilter(ctx, filter); err != nil {
			return fmt.Errorf("deleting records from %s: %w", col.Name(), err)
		}
	}
	s.logger.Info(ctx, "user memory deleted")
	s.publish(ctx, events.UserDeleted, userID, "", "")
	return nil
}

func (s *Store) itemPayload(userID string, data ItemData) map[string]any {
	return map[string]any{
		keyUserID:    userID,
		keyType:      string(data.Type),
		keyStatus:    string(StatusInProgress),
		keyData:      data,
		keyTimestamp: s.timestamp(),
	}
}

// redactItem returns a copy of d with secrets removed from its text.
func (s *Store) redactItem(d ItemData) ItemData {
	if !s.scrubber.IsEnabled() {
		return d
	}
	d.Item = s.scrubber.Scrub(d.Item).Scrubbed
	d.EmbeddingText = s.scrubber.Scrub(d.EmbeddingText).Scrubbed
	if len(d.Milestones) > 0 {
		ms := make([]Milestone, len(d.Milestones))
		for i, m := range d.Milestones {
			m.Description = s.scrubber.Scrub(m.Description).Scrubbed
			ms[i] = m
		}
		d.Milestones = ms
	}
	if len(d.SkillsUsed) > 0 {
		skills := make([]string, len(d.SkillsUsed))
		for i, sk := range d.SkillsUsed {
			skills[i] = s.scrubber.Scrub(sk).Scrubbed
		}
		d.SkillsUsed = skills
	}
	return d
}

// publish emits an event. Failures are logged and never returned.
func (s *Store) publish(ctx context.Context, t events.Type, userID, itemID, itemType string) {
	e := events.New(t, userID)
	e.ItemID = itemID
	e.ItemType = itemType
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn(ctx, "publishing event failed",
			zap.String("event_type", string(t)),
			zap.Error(err))
	}
}

// newEntryID returns a time-ordered UUID so ingestion records sort by
// creation time.
func newEntryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// NewEntryID returns an id suitable for Entry.ID.
func NewEntryID() string { return newEntryID() }
