package vectorstore

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const testDim = 4

// newTestIndex creates an in-memory chromem index.
func newTestIndex(t *testing.T) *ChromemIndex {
	t.Helper()
	idx, err := NewChromemIndex(ChromemConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

// newTestCollection ensures a collection on a fresh in-memory index.
func newTestCollection(t *testing.T, name string) *Collection {
	t.Helper()
	m := NewManager(newTestIndex(t), nil)
	c, err := m.Ensure(context.Background(), CollectionSpec{Name: name, Dimension: testDim})
	require.NoError(t, err)
	return c
}

// unit returns the i-th basis vector, tilted slightly so no vector is
// orthogonal to every other.
func unit(i int) []float32 {
	v := []float32{0.01, 0.01, 0.01, 0.01}
	v[i%testDim] = 1
	return v
}

// countingIndex wraps an Index and counts CreateCollection calls.
type countingIndex struct {
	Index
	creates atomic.Int32
}

func (c *countingIndex) CreateCollection(ctx context.Context, spec CollectionSpec) error {
	c.creates.Add(1)
	return c.Index.CreateCollection(ctx, spec)
}

// racingIndex simulates losing a create race to another process.
type racingIndex struct {
	Index
	described atomic.Int32
	dimension int
}

func (r *racingIndex) DescribeCollection(ctx context.Context, name string) (*CollectionInfo, error) {
	if r.described.Add(1) == 1 {
		return nil, ErrCollectionNotFound
	}
	return &CollectionInfo{Name: name, Dimension: r.dimension}, nil
}

func (r *racingIndex) CreateCollection(context.Context, CollectionSpec) error {
	return ErrCollectionExists
}

// gatedIndex blocks DescribeCollection until release is closed, ignoring
// the caller's context the way an in-flight RPC would finish anyway.
type gatedIndex struct {
	Index
	entered chan struct{}
	release chan struct{}
	once    atomic.Bool
}

func (g *gatedIndex) DescribeCollection(ctx context.Context, name string) (*CollectionInfo, error) {
	if g.once.CompareAndSwap(false, true) {
		close(g.entered)
	}
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Index.DescribeCollection(ctx, name)
}
