package bruteforce

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexushq/nexus/internal/vector"
	"github.com/nexushq/nexus/pkg/types"
)

type sliceSource struct {
	vectors []types.StoredVector
}

func (s *sliceSource) StreamVectors(_ context.Context, fn func(types.StoredVector) error) error {
	for _, sv := range s.vectors {
		if err := fn(sv); err != nil {
			return err
		}
	}
	return nil
}

func stored(id int64, path string, vec []float32) types.StoredVector {
	return types.StoredVector{ChunkID: id, Path: path, StartLine: 1, EndLine: 10, Vector: vector.Encode(vec)}
}

func TestSearchRanking(t *testing.T) {
	src := &sliceSource{vectors: []types.StoredVector{
		stored(1, "a.go", []float32{1, 0}),
		stored(2, "b.go", []float32{0, 1}),
		stored(3, "c.go", []float32{1, 1}),
	}}
	e := NewEngine(src)

	hits, err := e.Search(context.Background(), []float32{1, 0}, 3, "")
	require.NoError(t, err)
	require.Len(t, hits, 3)

	// Exact match first, the diagonal second, the orthogonal last.
	assert.Equal(t, int64(1), hits[0].ChunkID)
	assert.Equal(t, int64(3), hits[1].ChunkID)
	assert.Equal(t, int64(2), hits[2].ChunkID)

	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.InDelta(t, 0.70710678, hits[1].Score, 1e-6)
	assert.InDelta(t, 0.0, hits[2].Score, 1e-6)
	assert.Equal(t, types.EngineBruteForce, hits[0].Engine)
}

func TestSearchTopKBound(t *testing.T) {
	src := &sliceSource{vectors: []types.StoredVector{
		stored(1, "a.go", []float32{1, 0}),
		stored(2, "b.go", []float32{0.9, 0.1}),
		stored(3, "c.go", []float32{0.5, 0.5}),
		stored(4, "d.go", []float32{0, 1}),
	}}
	e := NewEngine(src)

	hits, err := e.Search(context.Background(), []float32{1, 0}, 2, "")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].ChunkID)
	assert.Equal(t, int64(2), hits[1].ChunkID)
}

func TestSearchTieBreakByChunkID(t *testing.T) {
	src := &sliceSource{vectors: []types.StoredVector{
		stored(9, "x.go", []float32{1, 0}),
		stored(3, "y.go", []float32{1, 0}),
		stored(6, "z.go", []float32{2, 0}),
	}}
	e := NewEngine(src)

	hits, err := e.Search(context.Background(), []float32{1, 0}, 3, "")
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, int64(3), hits[0].ChunkID)
	assert.Equal(t, int64(6), hits[1].ChunkID)
	assert.Equal(t, int64(9), hits[2].ChunkID)
}

func TestSearchTieBreakUnderEviction(t *testing.T) {
	src := &sliceSource{vectors: []types.StoredVector{
		stored(9, "x.go", []float32{1, 0}),
		stored(3, "y.go", []float32{1, 0}),
	}}
	e := NewEngine(src)

	hits, err := e.Search(context.Background(), []float32{1, 0}, 1, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(3), hits[0].ChunkID)
}

func TestSearchPathFilter(t *testing.T) {
	src := &sliceSource{vectors: []types.StoredVector{
		stored(1, "internal/auth/login.go", []float32{1, 0}),
		stored(2, "cmd/server/main.go", []float32{1, 0}),
		stored(3, "internal/auth/token.go", []float32{1, 0}),
	}}
	e := NewEngine(src)

	hits, err := e.Search(context.Background(), []float32{1, 0}, 10, "internal/**")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].ChunkID)
	assert.Equal(t, int64(3), hits[1].ChunkID)
}

func TestSearchDimensionMismatch(t *testing.T) {
	src := &sliceSource{vectors: []types.StoredVector{
		stored(1, "a.go", []float32{1, 0, 0}),
	}}
	e := NewEngine(src)

	_, err := e.Search(context.Background(), []float32{1, 0}, 10, "")
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
}

func TestSearchEmptyQuery(t *testing.T) {
	e := NewEngine(&sliceSource{})
	_, err := e.Search(context.Background(), nil, 10, "")
	assert.ErrorIs(t, err, types.ErrEmptyQuery)
}

func TestSearchZeroTopK(t *testing.T) {
	e := NewEngine(&sliceSource{vectors: []types.StoredVector{stored(1, "a.go", []float32{1})}})
	hits, err := e.Search(context.Background(), []float32{1}, 0, "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}
