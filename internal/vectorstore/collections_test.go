package vectorstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_EnsureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := &countingIndex{Index: newTestIndex(t)}
	m := NewManager(idx, nil)

	spec := CollectionSpec{Name: "user_progress", Dimension: testDim}
	first, err := m.Ensure(ctx, spec)
	require.NoError(t, err)
	second, err := m.Ensure(ctx, spec)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), idx.creates.Load())
	assert.Equal(t, testDim, first.Dimension())
	assert.Equal(t, "user_progress", first.Name())
}

func TestManager_ConcurrentEnsureCreatesOnce(t *testing.T) {
	ctx := context.Background()
	idx := &countingIndex{Index: newTestIndex(t)}
	m := NewManager(idx, nil)
	spec := CollectionSpec{Name: "chat_data", Dimension: testDim}

	const callers = 32
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Ensure(ctx, spec)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), idx.creates.Load())

	info, err := idx.DescribeCollection(ctx, "chat_data")
	require.NoError(t, err)
	assert.Equal(t, testDim, info.Dimension)
	assert.Equal(t, 0, info.PointCount)
}

func TestManager_SeparateManagersShareIndex(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	spec := CollectionSpec{Name: "chat_data", Dimension: testDim}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = NewManager(idx, nil).Ensure(ctx, spec)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestManager_LostRaceIsSuccess(t *testing.T) {
	m := NewManager(&racingIndex{Index: newTestIndex(t), dimension: testDim}, nil)
	c, err := m.Ensure(context.Background(), CollectionSpec{Name: "chat_data", Dimension: testDim})
	require.NoError(t, err)
	assert.Equal(t, testDim, c.Dimension())
}

func TestManager_LostRaceWithOtherDimension(t *testing.T) {
	m := NewManager(&racingIndex{Index: newTestIndex(t), dimension: 8}, nil)
	_, err := m.Ensure(context.Background(), CollectionSpec{Name: "chat_data", Dimension: testDim})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestManager_ExistingDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	require.NoError(t, idx.CreateCollection(ctx, CollectionSpec{Name: "user_progress", Dimension: 8}))

	_, err := NewManager(idx, nil).Ensure(ctx, CollectionSpec{Name: "user_progress", Dimension: testDim})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestManager_CachedHandleDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newTestIndex(t), nil)
	_, err := m.Ensure(ctx, CollectionSpec{Name: "user_progress", Dimension: testDim})
	require.NoError(t, err)

	_, err = m.Ensure(ctx, CollectionSpec{Name: "user_progress", Dimension: 8})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestManager_RejectsInvalidSpec(t *testing.T) {
	m := NewManager(newTestIndex(t), nil)
	_, err := m.Ensure(context.Background(), CollectionSpec{Name: "Bad-Name", Dimension: testDim})
	assert.ErrorIs(t, err, ErrInvalidCollectionName)

	_, err = m.Ensure(context.Background(), CollectionSpec{Name: "ok", Dimension: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCollection_RejectsWrongDimensionBeforeIndex(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	c, err := NewManager(idx, nil).Ensure(ctx, CollectionSpec{Name: "user_progress", Dimension: testDim})
	require.NoError(t, err)

	err = c.Upsert(ctx,
		Point{ID: "a", Vector: unit(0), Payload: map[string]any{UserIDKey: "u1"}},
		Point{ID: "b", Vector: []float32{1, 2}, Payload: map[string]any{UserIDKey: "u1"}},
	)
	require.ErrorIs(t, err, ErrDimensionMismatch)

	// Nothing from the rejected batch reached the index.
	info, err := idx.DescribeCollection(ctx, "user_progress")
	require.NoError(t, err)
	assert.Equal(t, 0, info.PointCount)

	_, err = c.Query(ctx, []float32{1, 2, 3}, NewFilter(Match(UserIDKey, "u1")), 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestNormalizePayload(t *testing.T) {
	type milestone struct {
		Date string `json:"date"`
	}
	out, err := NormalizePayload(map[string]any{
		"count":      3,
		"milestones": []milestone{{Date: "2024-01-02"}},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(3), out["count"])
	assert.Equal(t, []any{map[string]any{"date": "2024-01-02"}}, out["milestones"])

	out, err = NormalizePayload(nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = NormalizePayload(map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestManager_CancelledCallerDoesNotFailOthers(t *testing.T) {
	idx := &gatedIndex{Index: newTestIndex(t), entered: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(idx, nil)
	spec := CollectionSpec{Name: "chat_data", Dimension: testDim}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := m.Ensure(firstCtx, spec)
		firstErr <- err
	}()
	<-idx.entered

	secondErr := make(chan error, 1)
	go func() {
		_, err := m.Ensure(context.Background(), spec)
		secondErr <- err
	}()

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(idx.release)
	select {
	case err := <-secondErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second caller did not return")
	}

	c, err := m.Ensure(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, testDim, c.Dimension())
}
