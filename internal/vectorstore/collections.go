package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sarahrhemadayal/baseline/internal/logging"
)

// ensureTimeout bounds one shared collection bootstrap.
const ensureTimeout = 30 * time.Second

// DefaultIndexedFields are the payload keys every collection filters on.
var DefaultIndexedFields = []string{UserIDKey, "type", "status"}

// Manager owns collection bootstrap. Ensure is safe to call before every
// operation: after the first success it is a map lookup.
type Manager struct {
	index  Index
	logger *logging.Logger

	group singleflight.Group
	mu    sync.RWMutex
	ready map[string]*Collection
}

// NewManager creates a Manager over index.
func NewManager(index Index, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		index:  index,
		logger: logger.Named("vectorstore"),
		ready:  make(map[string]*Collection),
	}
}

// Index returns the underlying index.
func (m *Manager) Index() Index { return m.index }

// Ensure returns a handle for the collection, creating it if absent.
// Concurrent callers for the same name share one bootstrap.
func (m *Manager) Ensure(ctx context.Context, spec CollectionSpec) (*Collection, error) {
	if err := ValidateCollectionName(spec.Name); err != nil {
		return nil, err
	}
	if spec.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}

	m.mu.RLock()
	c, ok := m.ready[spec.Name]
	m.mu.RUnlock()
	if ok {
		if c.dimension != spec.Dimension {
			return nil, fmt.Errorf("%w: collection %s has dimension %d, requested %d",
				ErrDimensionMismatch, spec.Name, c.dimension, spec.Dimension)
		}
		return c, nil
	}

	// The shared bootstrap outlives any one caller: a waiter that gives up
	// returns its own ctx error while the others still get the result.
	ch := m.group.DoChan(spec.Name, func() (any, error) {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ensureTimeout)
		defer cancel()
		return m.bootstrap(bctx, spec)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			EnsureTotal.WithLabelValues("error").Inc()
			return nil, res.Err
		}
		return res.Val.(*Collection), nil
	}
}

func (m *Manager) bootstrap(ctx context.Context, spec CollectionSpec) (*Collection, error) {
	if len(spec.IndexedFields) == 0 {
		spec.IndexedFields = DefaultIndexedFields
	}

	info, err := m.index.DescribeCollection(ctx, spec.Name)
	switch {
	case err == nil:
		if info.Dimension != 0 && info.Dimension != spec.Dimension {
			return nil, fmt.Errorf("%w: collection %s has dimension %d, configured %d",
				ErrDimensionMismatch, spec.Name, info.Dimension, spec.Dimension)
		}
		EnsureTotal.WithLabelValues("existing").Inc()
	case errors.Is(err, ErrCollectionNotFound):
		err = m.index.CreateCollection(ctx, spec)
		switch {
		case err == nil:
			EnsureTotal.WithLabelValues("created").Inc()
			m.logger.Info(ctx, "collection created",
				zap.String("collection", spec.Name),
				zap.Int("dimension", spec.Dimension))
		case errors.Is(err, ErrCollectionExists):
			// Lost a race with another process; re-check the winner's dimension.
			info, derr := m.index.DescribeCollection(ctx, spec.Name)
			if derr != nil {
				return nil, fmt.Errorf("ensuring collection %s: %w", spec.Name, derr)
			}
			if info.Dimension != 0 && info.Dimension != spec.Dimension {
				return nil, fmt.Errorf("%w: collection %s has dimension %d, configured %d",
					ErrDimensionMismatch, spec.Name, info.Dimension, spec.Dimension)
			}
			EnsureTotal.WithLabelValues("raced").Inc()
		default:
			return nil, fmt.Errorf("ensuring collection %s: %w", spec.Name, err)
		}
	default:
		return nil, fmt.Errorf("ensuring collection %s: %w", spec.Name, err)
	}

	c := &Collection{name: spec.Name, dimension: spec.Dimension, index: m.index}
	m.mu.Lock()
	m.ready[spec.Name] = c
	m.mu.Unlock()
	return c, nil
}

// Collection is a dimension-checked handle to one collection.
type Collection struct {
	name      string
	dimension int
	index     Index
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Dimension returns the vector size every point must have.
func (c *Collection) Dimension() int { return c.dimension }

func (c *Collection) checkVector(v []float32) error {
	if len(v) != c.dimension {
		DimensionRejections.Inc()
		return fmt.Errorf("%w: collection %s expects %d, got %d",
			ErrDimensionMismatch, c.name, c.dimension, len(v))
	}
	return nil
}

func (c *Collection) observe(op string, start time.Time, err error) {
	OperationDuration.WithLabelValues(c.name, op).Observe(time.Since(start).Seconds())
	if err != nil {
		OperationErrors.WithLabelValues(c.name, op).Inc()
	}
}

// Upsert validates every vector, then writes all points in one call.
func (c *Collection) Upsert(ctx context.Context, points ...Point) (err error) {
	for i := range points {
		if err := c.checkVector(points[i].Vector); err != nil {
			return err
		}
		payload, err := NormalizePayload(points[i].Payload)
		if err != nil {
			return fmt.Errorf("point %s: %w", points[i].ID, err)
		}
		points[i].Payload = payload
	}
	defer func(start time.Time) { c.observe("upsert", start, err) }(time.Now())
	return c.index.Upsert(ctx, c.name, points)
}

// Get fetches one point.
func (c *Collection) Get(ctx context.Context, id string) (p *Point, err error) {
	defer func(start time.Time) {
		if errors.Is(err, ErrPointNotFound) {
			c.observe("get", start, nil)
			return
		}
		c.observe("get", start, err)
	}(time.Now())
	return c.index.Get(ctx, c.name, id)
}

// Delete removes points by id.
func (c *Collection) Delete(ctx context.Context, ids ...string) (err error) {
	defer func(start time.Time) { c.observe("delete", start, err) }(time.Now())
	return c.index.Delete(ctx, c.name, ids)
}

// DeleteByFilter removes every matching point.
func (c *Collection) DeleteByFilter(ctx context.Context, filter Filter) (err error) {
	defer func(start time.Time) { c.observe("delete_by_filter", start, err) }(time.Now())
	return c.index.DeleteByFilter(ctx, c.name, filter)
}

// Query runs a similarity search.
func (c *Collection) Query(ctx context.Context, vector []float32, filter Filter, k int) (hits []ScoredPoint, err error) {
	if err := c.checkVector(vector); err != nil {
		return nil, err
	}
	defer func(start time.Time) { c.observe("query", start, err) }(time.Now())
	return c.index.Query(ctx, c.name, vector, filter, k)
}

// Scroll lists matching points without a query vector.
func (c *Collection) Scroll(ctx context.Context, filter Filter, limit int) (points []Point, err error) {
	defer func(start time.Time) { c.observe("scroll", start, err) }(time.Now())
	return c.index.Scroll(ctx, c.name, filter, limit)
}

// NormalizePayload round-trips a payload through JSON so both backends
// store and return the same shapes (numbers as float64, structs as maps).
func NormalizePayload(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return out, nil
}
