package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// chromemSentinelID holds a unit vector whose length records the
	// collection dimension; chromem does not expose collection metadata.
	chromemSentinelID = "__dimension__"

	// chromemKindKey marks real points so filters never return the sentinel.
	chromemKindKey   = "__kind"
	chromemKindPoint = "point"
	chromemKindMeta  = "meta"
)

// ChromemConfig configures the embedded chromem index.
type ChromemConfig struct {
	// Path is the on-disk location. Empty keeps everything in memory.
	Path     string
	Compress bool
}

// ChromemIndex is an embedded, pure-Go Index. It needs no external
// service and is what tests and single-user installs run on.
type ChromemIndex struct {
	db *chromem.DB
	mu sync.Mutex
}

var _ Index = (*ChromemIndex)(nil)

// NewChromemIndex opens (or creates) a chromem database.
func NewChromemIndex(config ChromemConfig) (*ChromemIndex, error) {
	if config.Path == "" {
		return &ChromemIndex{db: chromem.NewDB()}, nil
	}

	path := config.Path
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("creating chromem directory: %w", err)
	}
	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem db: %v", ErrStoreUnavailable, err)
	}
	return &ChromemIndex{db: db}, nil
}

// Close is a no-op; persistent chromem writes through on every change.
func (c *ChromemIndex) Close() error { return nil }

// precomputedOnly rejects text embedding; every document carries its vector.
func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem index requires precomputed embeddings")
}

func (c *ChromemIndex) collection(name string) (*chromem.Collection, error) {
	col := c.db.GetCollection(name, precomputedOnly)
	if col == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
	}
	return col, nil
}

// DescribeCollection reports dimension and point count.
func (c *ChromemIndex) DescribeCollection(ctx context.Context, name string) (*CollectionInfo, error) {
	col, err := c.collection(name)
	if err != nil {
		return nil, ErrCollectionNotFound
	}
	info := &CollectionInfo{Name: name, PointCount: col.Count()}
	if doc, err := col.GetByID(ctx, chromemSentinelID); err == nil {
		info.Dimension = len(doc.Embedding)
		info.PointCount--
	}
	return info, nil
}

// CreateCollection creates the collection and its dimension sentinel.
func (c *ChromemIndex) CreateCollection(ctx context.Context, spec CollectionSpec) error {
	ctx, span := tracer.Start(ctx, "ChromemIndex.CreateCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", spec.Name), attribute.Int("dimension", spec.Dimension))

	if err := ValidateCollectionName(spec.Name); err != nil {
		return err
	}
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db.GetCollection(spec.Name, precomputedOnly) != nil {
		return ErrCollectionExists
	}
	col, err := c.db.CreateCollection(spec.Name, nil, precomputedOnly)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", spec.Name, err)
	}
	err = col.AddDocument(ctx, chromem.Document{
		ID:        chromemSentinelID,
		Metadata:  map[string]string{chromemKindKey: chromemKindMeta},
		Embedding: probeVector(spec.Dimension),
		Content:   "{}",
	})
	if err != nil {
		_ = c.db.DeleteCollection(spec.Name)
		return fmt.Errorf("writing dimension sentinel for %s: %w", spec.Name, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Upsert replaces points by id.
func (c *ChromemIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	ctx, span := tracer.Start(ctx, "ChromemIndex.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection), attribute.Int("count", len(points)))

	col, err := c.collection(collection)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		if p.ID == "" || p.ID == chromemSentinelID {
			return fmt.Errorf("invalid point id %q", p.ID)
		}
		content, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("encoding payload for %s: %w", p.ID, err)
		}
		meta := map[string]string{}
		flattenMetadata("", p.Payload, meta)
		meta[chromemKindKey] = chromemKindPoint
		docs[i] = chromem.Document{
			ID:        p.ID,
			Metadata:  meta,
			Embedding: p.Vector,
			Content:   string(content),
		}
	}

	// chromem overwrites documents with the same id.
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert on %s: %w", collection, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Get fetches a point by id.
func (c *ChromemIndex) Get(ctx context.Context, collection, id string) (*Point, error) {
	col, err := c.collection(collection)
	if err != nil {
		return nil, err
	}
	if id == chromemSentinelID {
		return nil, ErrPointNotFound
	}
	doc, err := col.GetByID(ctx, id)
	if err != nil {
		return nil, ErrPointNotFound
	}
	payload, err := decodeContent(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("decoding point %s: %w", id, err)
	}
	return &Point{ID: doc.ID, Vector: doc.Embedding, Payload: payload}, nil
}

// Delete removes points by id, ignoring ids that do not exist.
func (c *ChromemIndex) Delete(ctx context.Context, collection string, ids []string) error {
	col, err := c.collection(collection)
	if err != nil {
		return err
	}
	existing := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == chromemSentinelID {
			continue
		}
		if _, err := col.GetByID(ctx, id); err == nil {
			existing = append(existing, id)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, existing...); err != nil {
		return fmt.Errorf("delete on %s: %w", collection, err)
	}
	return nil
}

// DeleteByFilter removes all points matching filter.
func (c *ChromemIndex) DeleteByFilter(ctx context.Context, collection string, filter Filter) error {
	if filter.IsEmpty() {
		return ErrEmptyFilter
	}
	col, err := c.collection(collection)
	if err != nil {
		return err
	}
	for _, where := range whereClauses(filter) {
		if err := col.Delete(ctx, where, nil); err != nil {
			return fmt.Errorf("delete_by_filter on %s: %w", collection, err)
		}
	}
	return nil
}

// Query runs a filtered similarity search. chromem's similarity is cosine,
// which matches the Qdrant collections.
func (c *ChromemIndex) Query(ctx context.Context, collection string, vector []float32, filter Filter, k int) ([]ScoredPoint, error) {
	ctx, span := tracer.Start(ctx, "ChromemIndex.Query")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection), attribute.Int("k", k))

	col, err := c.collection(collection)
	if err != nil {
		return nil, err
	}
	hits, err := c.query(ctx, col, vector, filter, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := make([]ScoredPoint, 0, len(hits))
	for _, h := range hits {
		payload, err := decodeContent(h.Content)
		if err != nil {
			return nil, fmt.Errorf("decoding point %s: %w", h.ID, err)
		}
		out = append(out, ScoredPoint{ID: h.ID, Score: h.Similarity, Payload: payload})
	}
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

// Scroll lists matching points using a fixed probe vector, since chromem
// has no listing API.
func (c *ChromemIndex) Scroll(ctx context.Context, collection string, filter Filter, limit int) ([]Point, error) {
	col, err := c.collection(collection)
	if err != nil {
		return nil, err
	}
	sentinel, err := col.GetByID(ctx, chromemSentinelID)
	if err != nil {
		return nil, fmt.Errorf("collection %s has no dimension sentinel", collection)
	}
	if limit <= 0 {
		limit = col.Count()
	}
	hits, err := c.query(ctx, col, probeVector(len(sentinel.Embedding)), filter, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Point, 0, len(hits))
	for _, h := range hits {
		payload, err := decodeContent(h.Content)
		if err != nil {
			return nil, fmt.Errorf("decoding point %s: %w", h.ID, err)
		}
		out = append(out, Point{ID: h.ID, Payload: payload})
	}
	return out, nil
}

// query fans out one chromem query per where clause and merges by score.
func (c *ChromemIndex) query(ctx context.Context, col *chromem.Collection, vector []float32, filter Filter, k int) ([]chromem.Result, error) {
	if k <= 0 {
		return nil, nil
	}
	n := k
	if total := col.Count(); n > total {
		n = total
	}
	if n == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var merged []chromem.Result
	for _, where := range whereClauses(filter) {
		res, err := col.QueryEmbedding(ctx, vector, n, where, nil)
		if err != nil {
			if strings.Contains(err.Error(), "same length") {
				return nil, fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
			}
			return nil, fmt.Errorf("query on %s: %w", col.Name, err)
		}
		for _, r := range res {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			merged = append(merged, r)
		}
	}
	sortResults(merged)
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

func sortResults(rs []chromem.Result) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Similarity > rs[j].Similarity })
}

// whereClauses expands a filter into chromem equality maps. chromem has no
// OR, so multi-value conditions become a cartesian product of clauses.
func whereClauses(f Filter) []map[string]string {
	clauses := []map[string]string{{chromemKindKey: chromemKindPoint}}
	for _, cond := range f.Must {
		next := make([]map[string]string, 0, len(clauses)*len(cond.Values))
		for _, base := range clauses {
			for _, v := range cond.Values {
				clause := make(map[string]string, len(base)+1)
				for k, bv := range base {
					clause[k] = bv
				}
				clause[cond.Key] = v
				next = append(next, clause)
			}
		}
		clauses = next
	}
	return clauses
}

// flattenMetadata mirrors scalar payload values into chromem metadata,
// addressing nested maps with dotted keys.
func flattenMetadata(prefix string, payload map[string]any, out map[string]string) {
	for k, v := range payload {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]any:
			flattenMetadata(key, t, out)
		case []any, nil:
		default:
			out[key] = scalarString(t)
		}
	}
}

func decodeContent(content string) (map[string]any, error) {
	payload := map[string]any{}
	if content == "" {
		return payload, nil
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// probeVector is the first standard basis vector. It is already
// normalized, so chromem never divides by zero.
func probeVector(dim int) []float32 {
	v := make([]float32, dim)
	if dim > 0 {
		v[0] = 1
	}
	return v
}
