package router

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexushq/nexus/internal/ann"
	"github.com/nexushq/nexus/pkg/types"
)

type fakeExact struct {
	hits  []types.Hit
	err   error
	calls int
}

func (f *fakeExact) Search(_ context.Context, _ []float32, _ int, _ string) ([]types.Hit, error) {
	f.calls++
	return f.hits, f.err
}

type fakeExternal struct {
	hits  []types.Hit
	err   error
	live  bool
	calls int
}

func (f *fakeExternal) Query(_ context.Context, _ []float32, _ int, _ string) ([]types.Hit, error) {
	f.calls++
	return f.hits, f.err
}

func (f *fakeExternal) Status() ann.Status {
	if f.live {
		return ann.Status{State: ann.StateLive, CheckedAt: time.Now()}
	}
	return ann.Status{State: ann.StateUnavailable, CheckedAt: time.Now(), Err: errors.New("down")}
}

type fakeCounter struct {
	count int64
	err   error
}

func (f *fakeCounter) CountChunks(context.Context) (int64, error) {
	return f.count, f.err
}

func TestDecideMatrix(t *testing.T) {
	const threshold = 100
	tests := []struct {
		count int64
		live  bool
		want  types.Engine
	}{
		{threshold - 1, true, types.EngineBruteForce},
		{threshold, true, types.EngineExternal},
		{threshold + 1, true, types.EngineExternal},
		{threshold - 1, false, types.EngineBruteForce},
		{threshold, false, types.EngineBruteForce},
		{threshold + 1, false, types.EngineBruteForce},
	}
	for _, tt := range tests {
		name := fmt.Sprintf("count=%d live=%v", tt.count, tt.live)
		t.Run(name, func(t *testing.T) {
			r := New(&fakeExact{}, &fakeExternal{live: tt.live}, &fakeCounter{count: tt.count}, WithThreshold(threshold))
			d, err := r.Decide(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Engine)
			assert.Equal(t, tt.count, d.ChunkCount)
			assert.Equal(t, tt.live, d.AdapterLive)
		})
	}
}

func TestSearchUsesExactBelowThreshold(t *testing.T) {
	exact := &fakeExact{hits: []types.Hit{{ChunkID: 1, Engine: types.EngineBruteForce}}}
	ext := &fakeExternal{live: true}
	r := New(exact, ext, &fakeCounter{count: 10}, WithThreshold(100))

	hits, d, err := r.Search(context.Background(), []float32{1}, 5, "")
	require.NoError(t, err)
	assert.Equal(t, types.EngineBruteForce, d.Engine)
	assert.Len(t, hits, 1)
	assert.Equal(t, 1, exact.calls)
	assert.Zero(t, ext.calls)
}

func TestSearchUsesExternalAboveThreshold(t *testing.T) {
	exact := &fakeExact{}
	ext := &fakeExternal{live: true, hits: []types.Hit{{ChunkID: 2, Engine: types.EngineExternal}}}
	r := New(exact, ext, &fakeCounter{count: 500}, WithThreshold(100))

	hits, d, err := r.Search(context.Background(), []float32{1}, 5, "")
	require.NoError(t, err)
	assert.Equal(t, types.EngineExternal, d.Engine)
	assert.Len(t, hits, 1)
	assert.Equal(t, 1, ext.calls)
	assert.Zero(t, exact.calls)
}

func TestSearchFallsBackOnUnavailable(t *testing.T) {
	exact := &fakeExact{hits: []types.Hit{{ChunkID: 3, Engine: types.EngineBruteForce}}}
	ext := &fakeExternal{
		live: true,
		err:  fmt.Errorf("search: %w: timeout", types.ErrAdapterUnavailable),
	}
	r := New(exact, ext, &fakeCounter{count: 500}, WithThreshold(100))

	hits, d, err := r.Search(context.Background(), []float32{1}, 5, "")
	require.NoError(t, err)
	assert.True(t, d.FellBack)
	assert.Equal(t, types.EngineBruteForce, d.Engine)
	assert.Len(t, hits, 1)
	assert.Equal(t, 1, exact.calls)
}

func TestSearchFallbackFailureSurfacesBothErrors(t *testing.T) {
	scanErr := errors.New("scan failed")
	exact := &fakeExact{err: scanErr}
	ext := &fakeExternal{
		live: true,
		err:  fmt.Errorf("search: %w: timeout", types.ErrAdapterUnavailable),
	}
	r := New(exact, ext, &fakeCounter{count: 500}, WithThreshold(100))

	_, d, err := r.Search(context.Background(), []float32{1}, 5, "")
	require.Error(t, err)
	assert.True(t, d.FellBack)
	assert.ErrorIs(t, err, scanErr)
}

func TestSearchNonAvailabilityErrorNotFallback(t *testing.T) {
	exact := &fakeExact{}
	ext := &fakeExternal{live: true, err: types.ErrDimensionMismatch}
	r := New(exact, ext, &fakeCounter{count: 500}, WithThreshold(100))

	_, _, err := r.Search(context.Background(), []float32{1}, 5, "")
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	assert.Zero(t, exact.calls)
}

func TestSearchNilExternal(t *testing.T) {
	exact := &fakeExact{hits: []types.Hit{{ChunkID: 4}}}
	r := New(exact, nil, &fakeCounter{count: 1_000_000})

	hits, d, err := r.Search(context.Background(), []float32{1}, 5, "")
	require.NoError(t, err)
	assert.Equal(t, types.EngineBruteForce, d.Engine)
	assert.Len(t, hits, 1)
}

func TestStats(t *testing.T) {
	ext := &fakeExternal{live: true}
	r := New(&fakeExact{}, ext, &fakeCounter{count: 42}, WithThreshold(100))

	st, err := r.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100), st.Threshold)
	assert.Equal(t, int64(42), st.ChunkCount)
	assert.Equal(t, ann.StateLive, st.AdapterState)
	assert.Equal(t, types.EngineBruteForce, st.Engine)
}

func TestDecideCounterError(t *testing.T) {
	r := New(&fakeExact{}, &fakeExternal{live: true}, &fakeCounter{err: errors.New("db closed")})
	_, err := r.Decide(context.Background())
	assert.Error(t, err)
}
