package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

// fakeProvider returns a canned result.
type fakeProvider struct {
	vec   []float32
	err   error
	delay time.Duration
	dim   int
	calls int
}

func (f *fakeProvider) Embed(ctx context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.vec, f.err
}

func (f *fakeProvider) Dimension() int { return f.dim }
func (f *fakeProvider) Name() string   { return "fake" }
func (f *fakeProvider) Close() error   { return nil }

func newTestAdapter(t *testing.T, p Provider, cfg AdapterConfig) *Adapter {
	t.Helper()
	a, err := NewAdapter(p, cfg, nil, nil)
	require.NoError(t, err)
	return a
}

func TestAdapter_Embed(t *testing.T) {
	p := &fakeProvider{vec: []float32{0.1, 0.2, 0.3}, dim: 3}
	a := newTestAdapter(t, p, AdapterConfig{Dimension: 3})

	vec, err := a.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, 3, a.Dimension())
}

func TestAdapter_EmptyInputSkipsProvider(t *testing.T) {
	p := &fakeProvider{vec: []float32{1}, dim: 1}
	a := newTestAdapter(t, p, AdapterConfig{Dimension: 1})

	for _, in := range []string{"", "   \n\t"} {
		_, err := a.Embed(context.Background(), in)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
	assert.Equal(t, 0, p.calls)
}

func TestAdapter_InvalidUTF8SkipsProvider(t *testing.T) {
	p := &fakeProvider{vec: []float32{1}, dim: 1}
	a := newTestAdapter(t, p, AdapterConfig{Dimension: 1})

	_, err := a.Embed(context.Background(), "ok "+string([]byte{0xff, 0xfe}))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NotErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, 0, p.calls)
}

func TestAdapter_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		p       *fakeProvider
		timeout time.Duration
		wantErr error
	}{
		{name: "provider error", p: &fakeProvider{err: errors.New("503"), dim: 2}, wantErr: ErrEmbeddingUnavailable},
		{name: "timeout", p: &fakeProvider{vec: []float32{1, 1}, delay: time.Second, dim: 2}, timeout: 20 * time.Millisecond, wantErr: ErrEmbeddingUnavailable},
		{name: "wrong length", p: &fakeProvider{vec: []float32{1, 1, 1}, dim: 2}, wantErr: ErrDimensionMismatch},
		{name: "zero vector", p: &fakeProvider{vec: []float32{0, 0}, dim: 2}, wantErr: ErrEmbeddingUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t, tt.p, AdapterConfig{Dimension: 2, Timeout: tt.timeout})
			vec, err := a.Embed(context.Background(), "text")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, vec)
		})
	}
}

func TestAdapter_RejectsProviderDimensionMismatch(t *testing.T) {
	_, err := NewAdapter(&fakeProvider{dim: 384}, AdapterConfig{Dimension: 768}, nil, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = NewAdapter(nil, AdapterConfig{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAdapter_RateLimitHonoursContext(t *testing.T) {
	p := &fakeProvider{vec: []float32{1}, dim: 1}
	a := newTestAdapter(t, p, AdapterConfig{Dimension: 1, RateLimit: 0.001, RateBurst: 1})

	_, err := a.Embed(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = a.Embed(ctx, "second")
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.Equal(t, 1, p.calls)
}

func TestAdapter_RecordsMetrics(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := newMetrics(mp.Meter(instrumentationName), zap.NewNop())

	p := &fakeProvider{vec: []float32{1, 0}, dim: 2}
	a, err := NewAdapter(p, AdapterConfig{Dimension: 2, Model: "m"}, nil, m)
	require.NoError(t, err)

	_, err = a.Embed(context.Background(), "ok")
	require.NoError(t, err)
	p.err = errors.New("down")
	_, err = a.Embed(context.Background(), "fails")
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, mm := range sm.Metrics {
			found[mm.Name] = true
			if mm.Name == "baseline.embedding.errors_total" {
				sum, ok := mm.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				require.Len(t, sum.DataPoints, 1)
				assert.Equal(t, int64(1), sum.DataPoints[0].Value)
			}
		}
	}
	assert.True(t, found["baseline.embedding.duration_seconds"])
	assert.True(t, found["baseline.embedding.errors_total"])
}
