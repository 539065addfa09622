package searcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nexushq/nexus/internal/lexical"
	"github.com/nexushq/nexus/internal/router"
	"github.com/nexushq/nexus/internal/storage"
	"github.com/nexushq/nexus/pkg/types"
)

type fakeText struct {
	results []storage.TextResult
	err     error
}

func (f *fakeText) SearchText(context.Context, string, int, int) ([]storage.TextResult, error) {
	return f.results, f.err
}

type fakeExact struct {
	hits []types.Hit
	err  error
}

func (f *fakeExact) Search(context.Context, []float32, int, string) ([]types.Hit, error) {
	return f.hits, f.err
}

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	return f.vec, f.err
}

type fakeCounter struct{ count int64 }

func (f *fakeCounter) CountChunks(context.Context) (int64, error) { return f.count, nil }

type fakeChunks struct {
	chunks map[int64]*types.Chunk
}

func (f *fakeChunks) GetChunk(_ context.Context, id int64) (*types.Chunk, error) {
	if c, ok := f.chunks[id]; ok {
		return c, nil
	}
	return nil, types.ErrNotFound
}

func newTestSearcher(text *fakeText, exact *fakeExact, emb *fakeEmbedder) *Searcher {
	rt := router.New(exact, nil, &fakeCounter{count: 100})
	return New(lexical.NewIndex(text), rt, emb, nil, zap.NewNop())
}

func TestSearchLexicalMode(t *testing.T) {
	text := &fakeText{results: []storage.TextResult{
		{ChunkID: 1, Path: "a.go", Content: "token parser", Score: 2.0},
	}}
	s := newTestSearcher(text, &fakeExact{}, &fakeEmbedder{})

	resp, err := s.Search(context.Background(), Request{Query: "token", Mode: types.ModeLexical})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, types.ModeLexical, resp.Mode)
	assert.Equal(t, types.EngineLexical, resp.Hits[0].Engine)
	assert.False(t, resp.CacheHit)
	assert.InDelta(t, 1.0, resp.Hits[0].Normalized, 1e-9)
	assert.NoError(t, resp.Hits[0].Validate())
}

func TestSearchLexicalNormalizesScores(t *testing.T) {
	text := &fakeText{results: []storage.TextResult{
		{ChunkID: 1, Path: "a.go", Content: "x", Score: 8.0},
		{ChunkID: 2, Path: "b.go", Content: "x", Score: 2.0},
	}}
	s := newTestSearcher(text, &fakeExact{}, &fakeEmbedder{})

	resp, err := s.Search(context.Background(), Request{Query: "x", Mode: types.ModeLexical})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 2)

	// Raw BM25 scores stay, Normalized is each hit's share of the best.
	assert.InDelta(t, 8.0, resp.Hits[0].Score, 1e-9)
	assert.InDelta(t, 1.0, resp.Hits[0].Normalized, 1e-9)
	assert.InDelta(t, 0.25, resp.Hits[1].Normalized, 1e-9)
	for i := range resp.Hits {
		assert.NoError(t, resp.Hits[i].Validate())
	}
}

func TestSearchSemanticMode(t *testing.T) {
	exact := &fakeExact{hits: []types.Hit{
		{ChunkID: 5, Path: "b.go", Score: 0.9, Engine: types.EngineBruteForce},
	}}
	emb := &fakeEmbedder{vec: []float32{1, 0}}
	s := newTestSearcher(&fakeText{}, exact, emb)

	resp, err := s.Search(context.Background(), Request{Query: "auth flow", Mode: types.ModeSemantic})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, 1, emb.calls)
	require.NotNil(t, resp.Decision)
	assert.Equal(t, types.EngineBruteForce, resp.Decision.Engine)
	assert.InDelta(t, 0.9, resp.Hits[0].Score, 1e-9)
	assert.InDelta(t, 0.9, resp.Hits[0].Normalized, 1e-9)
	assert.NoError(t, resp.Hits[0].Validate())
}

func TestSearchSemanticClampsNormalized(t *testing.T) {
	exact := &fakeExact{hits: []types.Hit{
		{ChunkID: 4, Path: "d.go", Score: -0.2, Engine: types.EngineBruteForce},
	}}
	s := newTestSearcher(&fakeText{}, exact, &fakeEmbedder{vec: []float32{1, 0}})

	resp, err := s.Search(context.Background(), Request{Query: "neg", Mode: types.ModeSemantic})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.InDelta(t, -0.2, resp.Hits[0].Score, 1e-9)
	assert.Zero(t, resp.Hits[0].Normalized)
	assert.NoError(t, resp.Hits[0].Validate())
}

func TestSearchHybridFusesBothLegs(t *testing.T) {
	text := &fakeText{results: []storage.TextResult{
		{ChunkID: 1, Path: "a.go", Content: "alpha", Score: 0.9},
		{ChunkID: 2, Path: "b.go", Content: "beta", Score: 0.4},
	}}
	exact := &fakeExact{hits: []types.Hit{
		{ChunkID: 2, Path: "b.go", Score: 0.8, Engine: types.EngineBruteForce},
		{ChunkID: 3, Path: "c.go", Score: 0.5, Engine: types.EngineBruteForce},
	}}
	s := newTestSearcher(text, exact, &fakeEmbedder{vec: []float32{1, 0}})

	resp, err := s.Search(context.Background(), Request{
		Query:   "beta",
		Mode:    types.ModeHybrid,
		Weights: &Weights{Semantic: 0.5, Lexical: 0.5},
	})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 3)
	assert.Equal(t, int64(2), resp.Hits[0].ChunkID)
	assert.Equal(t, types.EngineHybrid, resp.Hits[0].Engine)
	assert.Equal(t, 4, resp.TotalCandidates)
}

func TestSearchHybridToleratesSemanticFailure(t *testing.T) {
	text := &fakeText{results: []storage.TextResult{
		{ChunkID: 1, Path: "a.go", Content: "alpha", Score: 0.9},
	}}
	emb := &fakeEmbedder{err: errors.New("provider down")}
	s := newTestSearcher(text, &fakeExact{}, emb)

	resp, err := s.Search(context.Background(), Request{Query: "alpha", Mode: types.ModeHybrid})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, int64(1), resp.Hits[0].ChunkID)
	assert.Nil(t, resp.Decision)
}

func TestSearchHybridBothLegsFail(t *testing.T) {
	text := &fakeText{err: errors.New("fts corrupt")}
	emb := &fakeEmbedder{err: errors.New("provider down")}
	s := newTestSearcher(text, &fakeExact{}, emb)

	_, err := s.Search(context.Background(), Request{Query: "alpha", Mode: types.ModeHybrid})
	assert.Error(t, err)
}

func TestSearchEmptyQuery(t *testing.T) {
	s := newTestSearcher(&fakeText{}, &fakeExact{}, &fakeEmbedder{})
	_, err := s.Search(context.Background(), Request{Query: "   "})
	assert.ErrorIs(t, err, types.ErrEmptyQuery)
}

func TestSearchHydratesContent(t *testing.T) {
	exact := &fakeExact{hits: []types.Hit{
		{ChunkID: 7, Path: "x.go", Score: 0.9, Engine: types.EngineBruteForce},
	}}
	rt := router.New(exact, nil, &fakeCounter{count: 1})
	chunks := &fakeChunks{chunks: map[int64]*types.Chunk{
		7: {ID: 7, Content: "func Hydrated() {}", Symbol: "Hydrated", Kind: "function"},
	}}
	s := New(lexical.NewIndex(&fakeText{}), rt, &fakeEmbedder{vec: []float32{1}}, chunks, zap.NewNop())

	resp, err := s.Search(context.Background(), Request{Query: "hydrated", Mode: types.ModeSemantic})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "func Hydrated() {}", resp.Hits[0].Content)
	assert.Equal(t, "Hydrated", resp.Hits[0].Symbol)
}

func TestSearchCacheRoundTrip(t *testing.T) {
	text := &fakeText{results: []storage.TextResult{
		{ChunkID: 1, Path: "a.go", Content: "cached", Score: 1.0},
	}}
	s := newTestSearcher(text, &fakeExact{}, &fakeEmbedder{})

	req := Request{Query: "cached", Mode: types.ModeLexical, UseCache: true, CacheTTL: time.Minute}

	first, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	// Changing the backend must not change the cached answer.
	text.results = nil
	second, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	require.Len(t, second.Hits, 1)
	assert.Equal(t, int64(1), second.Hits[0].ChunkID)
}

func TestInvalidateCache(t *testing.T) {
	text := &fakeText{results: []storage.TextResult{
		{ChunkID: 1, Path: "a.go", Content: "stale", Score: 1.0},
	}}
	s := newTestSearcher(text, &fakeExact{}, &fakeEmbedder{})
	req := Request{Query: "stale", Mode: types.ModeLexical, UseCache: true, CacheTTL: time.Minute}

	_, err := s.Search(context.Background(), req)
	require.NoError(t, err)

	s.InvalidateCache()
	text.results = nil

	resp, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.Empty(t, resp.Hits)
}

func TestSearchPathFilterLexical(t *testing.T) {
	text := &fakeText{results: []storage.TextResult{
		{ChunkID: 1, Path: "internal/auth/a.go", Content: "x", Score: 2.0},
		{ChunkID: 2, Path: "cmd/main.go", Content: "x", Score: 1.0},
	}}
	s := newTestSearcher(text, &fakeExact{}, &fakeEmbedder{})

	resp, err := s.Search(context.Background(), Request{
		Query: "x", Mode: types.ModeLexical, PathFilter: "internal/**",
	})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, int64(1), resp.Hits[0].ChunkID)
}
