package storage

import (
	"context"
	"fmt"
)

// SearchText runs a compiled FTS5 match expression against the chunk index.
// The bm25() ranking function returns a lower-is-better distance; it is
// negated here so the lexical engine shares the higher-is-better convention
// of the semantic engines.
func (s *SQLiteStorage) SearchText(ctx context.Context, match string, limit, offset int) ([]TextResult, error) {
	if match == "" {
		return nil, fmt.Errorf("empty match expression")
	}
	if limit <= 0 {
		return []TextResult{}, nil
	}

	query := `
		SELECT
			c.id,
			f.path,
			c.start_line,
			c.end_line,
			c.content,
			COALESCE(c.symbol, ''),
			COALESCE(c.kind, ''),
			-bm25(chunks_fts) AS score
		FROM chunks_fts
		INNER JOIN chunks c ON chunks_fts.rowid = c.id
		INNER JOIN files f ON c.file_id = f.id
		WHERE chunks_fts MATCH ?
		ORDER BY score DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, match, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]TextResult, 0, limit)
	for rows.Next() {
		var r TextResult
		if err := rows.Scan(&r.ChunkID, &r.Path, &r.StartLine, &r.EndLine,
			&r.Content, &r.Symbol, &r.Kind, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
