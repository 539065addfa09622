// Package bruteforce scans every stored embedding and ranks chunks by
// cosine similarity. It is exact and needs no external service, which
// makes it the fallback engine for small and medium corpora.
package bruteforce

import (
	"container/heap"
	"context"
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nexushq/nexus/internal/vector"
	"github.com/nexushq/nexus/pkg/types"
)

// Source streams stored vectors in ascending chunk ID order.
type Source interface {
	StreamVectors(ctx context.Context, fn func(types.StoredVector) error) error
}

// Engine performs exact nearest-neighbor search by full scan.
type Engine struct {
	source Source
}

func NewEngine(source Source) *Engine {
	return &Engine{source: source}
}

// Search scans all embeddings and returns the topK most similar chunks,
// highest score first. Equal scores rank the lower chunk ID first. A
// stored vector whose dimension differs from the query fails the whole
// search; mixed-dimension indexes indicate a model change and the
// results would be meaningless.
func (e *Engine) Search(ctx context.Context, query []float32, topK int, pathFilter string) ([]types.Hit, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("bruteforce search: %w", types.ErrEmptyQuery)
	}
	if topK <= 0 {
		return nil, nil
	}

	h := &candidateHeap{}
	heap.Init(h)

	err := e.source.StreamVectors(ctx, func(sv types.StoredVector) error {
		if pathFilter != "" {
			ok, gerr := doublestar.Match(pathFilter, sv.Path)
			if gerr != nil {
				return fmt.Errorf("path filter %q: %w", pathFilter, gerr)
			}
			if !ok {
				return nil
			}
		}

		stored, derr := vector.Decode(sv.Vector)
		if derr != nil {
			return fmt.Errorf("chunk %d: %w", sv.ChunkID, derr)
		}
		score, cerr := vector.Cosine(query, stored)
		if cerr != nil {
			return fmt.Errorf("chunk %d: %w", sv.ChunkID, cerr)
		}

		cand := candidate{
			hit: types.Hit{
				ChunkID:   sv.ChunkID,
				Path:      sv.Path,
				StartLine: sv.StartLine,
				EndLine:   sv.EndLine,
				Score:     score,
				Engine:    types.EngineBruteForce,
			},
		}
		if h.Len() < topK {
			heap.Push(h, cand)
			return nil
		}
		if worse(h.items[0], cand) {
			h.items[0] = cand
			heap.Fix(h, 0)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	hits := make([]types.Hit, h.Len())
	for i := range hits {
		hits[i] = h.items[i].hit
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	return hits, nil
}

type candidate struct {
	hit types.Hit
}

// worse reports whether a ranks below b: lower score, or equal score
// with a higher chunk ID.
func worse(a, b candidate) bool {
	if a.hit.Score != b.hit.Score {
		return a.hit.Score < b.hit.Score
	}
	return a.hit.ChunkID > b.hit.ChunkID
}

// candidateHeap is a min-heap keeping the current topK; the root is
// the weakest candidate and gets evicted first.
type candidateHeap struct {
	items []candidate
}

func (h *candidateHeap) Len() int           { return len(h.items) }
func (h *candidateHeap) Less(i, j int) bool { return worse(h.items[i], h.items[j]) }
func (h *candidateHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *candidateHeap) Push(x any)         { h.items = append(h.items, x.(candidate)) }
func (h *candidateHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
