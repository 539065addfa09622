package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across the retrieval engines.
var (
	// ErrInvalidQuery indicates lexical query text that cannot be turned
	// into a valid match expression even after escaping. Never retried.
	ErrInvalidQuery = errors.New("invalid query syntax")

	// ErrDimensionMismatch indicates a similarity computation over vectors
	// of unequal length. This points at corrupt embedding data and is never
	// silently coerced.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrAdapterUnavailable indicates the external vector index could not
	// be reached or returned a non-success response. The router recovers
	// from it by falling back to the brute-force engine.
	ErrAdapterUnavailable = errors.New("vector index adapter unavailable")

	// ErrNotFound is returned when a requested entity doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrEmptyQuery is returned for a blank search query.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrInvalidNormalizedScore flags a hit whose normalized score escaped [0,1].
	ErrInvalidNormalizedScore = errors.New("normalized score must be between 0 and 1")
)

// ChunkError records the failure of a single chunk during batch ingestion.
type ChunkError struct {
	ChunkID int64
	Err     error
}

func (e ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.ChunkID, e.Err)
}

func (e ChunkError) Unwrap() error { return e.Err }

// EmbeddingBatchError reports the chunks that failed during batch embedding
// ingestion. A failing batch is isolated: siblings continue, and the failed
// chunks are reported here rather than retried.
type EmbeddingBatchError struct {
	Failed []ChunkError
}

func (e *EmbeddingBatchError) Error() string {
	if len(e.Failed) == 0 {
		return "embedding batch error"
	}
	ids := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		ids = append(ids, fmt.Sprintf("%d", f.ChunkID))
	}
	return fmt.Sprintf("embedding failed for %d chunk(s): %s", len(e.Failed), strings.Join(ids, ","))
}
