// Package ingestion writes a user's extracted profile and chat history into
// the conversation collection.
//
// BulkIngest synthesizes one short text per non-empty section entry, embeds
// the texts with bounded concurrency and writes the whole batch in a single
// acknowledged upsert. Under the default abort policy the first embedding
// failure aborts the batch and nothing is written. The partial policy
// writes what succeeded and reports the rest in Result.Failed.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sarahrhemadayal/baseline/internal/events"
	"github.com/sarahrhemadayal/baseline/internal/logging"
	"github.com/sarahrhemadayal/baseline/internal/memory"
	"github.com/sarahrhemadayal/baseline/internal/secrets"
)

// ErrIngestFailed is returned when no document of a batch could be embedded.
var ErrIngestFailed = errors.New("ingestion failed")

// entryNamespace seeds the name-based ids of keyed batches.
var entryNamespace = uuid.MustParse("8a4f1f9e-2c3b-4d6e-9f70-5b1a2c3d4e5f")

type batchKeyCtx struct{}

// WithBatchKey marks ctx with a key that identifies one logical batch
// across attempts. Entry ids of a keyed batch are derived from the key, the
// user and the document position, so re-running the same batch overwrites
// the points written by an earlier attempt instead of adding new ones.
func WithBatchKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, batchKeyCtx{}, key)
}

// BatchKeyFromContext returns the batch key, or "" if none is set.
func BatchKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(batchKeyCtx{}).(string)
	return key
}

// entryID returns a fresh time-ordered id, or a stable one for keyed batches.
func entryID(key, userID string, doc int) string {
	if key == "" {
		return memory.NewEntryID()
	}
	return uuid.NewSHA1(entryNamespace, []byte(userID+"\x00"+key+"\x00"+strconv.Itoa(doc))).String()
}

// Failure policies.
const (
	PolicyAbort   = "abort"
	PolicyPartial = "partial"
)

// Config controls batch behavior.
type Config struct {
	FailurePolicy string
	// MinMessageLength is the rune count a user message must exceed.
	MinMessageLength int
	// MaxTextLength caps each synthesized text before embedding.
	MaxTextLength int
	// Concurrency bounds parallel embedding calls.
	Concurrency int
}

func (c *Config) applyDefaults() error {
	switch c.FailurePolicy {
	case "":
		c.FailurePolicy = PolicyAbort
	case PolicyAbort, PolicyPartial:
	default:
		return fmt.Errorf("unknown failure policy %q", c.FailurePolicy)
	}
	if c.MinMessageLength <= 0 {
		c.MinMessageLength = 50
	}
	if c.MaxTextLength <= 0 {
		c.MaxTextLength = 16000
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return nil
}

// Result reports what a batch wrote.
type Result struct {
	VectorsCreated int `json:"vectorsCreated"`
	// Skipped counts entries dropped before embedding (empty entries,
	// assistant messages, short messages).
	Skipped int       `json:"skipped"`
	Failed  []Failure `json:"failed,omitempty"`
	// NothingToIngest is set when the batch held no embeddable entry. It
	// distinguishes an empty batch from one whose writes all failed.
	NothingToIngest bool `json:"nothingToIngest"`
}

// Failure is one document that could not be embedded.
type Failure struct {
	Section string `json:"section"`
	Error   string `json:"error"`
}

// Pipeline runs bulk ingestion.
type Pipeline struct {
	store     *memory.Store
	scrubber  secrets.Scrubber
	publisher events.Publisher
	logger    *logging.Logger
	config    Config
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithScrubber redacts secrets from texts and data before embedding.
func WithScrubber(s secrets.Scrubber) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.scrubber = s
		}
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(pub events.Publisher) Option {
	return func(p *Pipeline) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline creates a Pipeline writing through store.
func NewPipeline(store *memory.Store, config Config, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("memory store cannot be nil")
	}
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		store:     store,
		scrubber:  secrets.NoopScrubber{},
		publisher: events.NopPublisher{},
		logger:    logging.NewNop(),
		config:    config,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("ingestion")
	return p, nil
}

// BulkIngest embeds and writes every non-empty entry of sections for userID.
// An empty batch performs no writes and returns a zero Result without error.
func (p *Pipeline) BulkIngest(ctx context.Context, userID string, sections Sections) (*Result, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", memory.ErrInvalidAction)
	}
	ctx = logging.WithUserID(ctx, userID)
	start := p.now()

	docs, skipped := Synthesize(sections, p.config.MinMessageLength, start)
	res := &Result{Skipped: skipped}
	if len(docs) == 0 {
		res.NothingToIngest = true
		p.logger.Info(ctx, "nothing to ingest", zap.Int("skipped", skipped))
		return res, nil
	}
	p.redact(docs)

	entries, failed, err := p.embedAll(ctx, userID, docs)
	if err != nil {
		p.logger.Warn(ctx, "ingestion aborted",
			zap.Int("documents", len(docs)),
			zap.Error(err))
		return nil, err
	}
	res.Failed = failed

	if len(entries) == 0 {
		return res, fmt.Errorf("%w: all %d documents failed to embed: %s",
			ErrIngestFailed, len(docs), failed[0].Error)
	}

	if err := p.store.Append(ctx, userID, entries); err != nil {
		return nil, fmt.Errorf("writing batch: %w", err)
	}
	res.VectorsCreated = len(entries)

	p.logger.Info(ctx, "ingestion complete",
		zap.Int("vectors_created", res.VectorsCreated),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", len(res.Failed)),
		zap.Duration("duration", time.Since(start)))

	e := events.New(events.IngestCompleted, userID)
	e.Count = res.VectorsCreated
	if err := p.publisher.Publish(ctx, e); err != nil {
		p.logger.Warn(ctx, "publishing event failed", zap.Error(err))
	}
	return res, nil
}

// embedAll embeds docs in parallel, keeping document order in the output.
// Under the abort policy the first error cancels the rest and is returned.
func (p *Pipeline) embedAll(ctx context.Context, userID string, docs []Document) ([]memory.Entry, []Failure, error) {
	embedder := p.store.Embedder()
	vectors := make([][]float32, len(docs))
	errs := make([]error, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)
	var once sync.Once
	for i := range docs {
		g.Go(func() error {
			text := memory.TruncateText(docs[i].Text, p.config.MaxTextLength, "")
			vec, err := embedder.Embed(gctx, text)
			if err != nil {
				err = fmt.Errorf("embedding %s: %w", docs[i].Section, err)
				if p.config.FailurePolicy == PolicyAbort {
					return err
				}
				errs[i] = err
				once.Do(func() {
					p.logger.Warn(ctx, "embedding failed, continuing with partial batch", zap.Error(err))
				})
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	key := BatchKeyFromContext(ctx)
	entries := make([]memory.Entry, 0, len(docs))
	var failed []Failure
	for i, d := range docs {
		if errs[i] != nil {
			failed = append(failed, Failure{Section: d.Section, Error: errs[i].Error()})
			continue
		}
		entries = append(entries, memory.Entry{
			ID:     entryID(key, userID, i),
			Type:   d.Type,
			Data:   d.Data,
			Vector: vectors[i],
		})
	}
	return entries, failed, nil
}

// redact scrubs secrets from every text and string in the data, in place.
func (p *Pipeline) redact(docs []Document) {
	if !p.scrubber.IsEnabled() {
		return
	}
	for i := range docs {
		docs[i].Text = p.scrubber.Scrub(docs[i].Text).Scrubbed
		for k, v := range docs[i].Data {
			docs[i].Data[k] = p.redactValue(v)
		}
	}
}

func (p *Pipeline) redactValue(v any) any {
	switch t := v.(type) {
	case string:
		return p.scrubber.Scrub(t).Scrubbed
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = p.scrubber.Scrub(s).Scrubbed
		}
		return out
	default:
		return v
	}
}
