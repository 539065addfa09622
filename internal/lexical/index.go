// Package lexical runs full-text searches over indexed chunk content
// and translates raw user queries into safe FTS5 MATCH expressions.
package lexical

import (
	"context"
	"fmt"

	"github.com/nexushq/nexus/internal/storage"
	"github.com/nexushq/nexus/pkg/types"
)

// Index answers keyword queries against the full-text chunk index.
// Scores are negated BM25, so higher means more relevant.
type Index struct {
	searcher storage.TextSearcher
}

func NewIndex(searcher storage.TextSearcher) *Index {
	return &Index{searcher: searcher}
}

// Search runs the raw query as a phrase match and returns hits in
// descending relevance order.
func (ix *Index) Search(ctx context.Context, query string, limit, offset int) ([]types.Hit, error) {
	match, err := BuildMatch(query)
	if err != nil {
		return nil, err
	}
	return ix.SearchMatch(ctx, match, limit, offset)
}

// SearchMatch runs an already-built MATCH expression. Callers using
// the query builders go through here directly.
func (ix *Index) SearchMatch(ctx context.Context, match string, limit, offset int) ([]types.Hit, error) {
	results, err := ix.searcher.SearchText(ctx, match, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	hits := make([]types.Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, types.Hit{
			ChunkID:   r.ChunkID,
			Path:      r.Path,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			Content:   r.Content,
			Symbol:    r.Symbol,
			Kind:      r.Kind,
			Score:     r.Score,
			Engine:    types.EngineLexical,
		})
	}
	return hits, nil
}
