package types

import "errors"

// Chunk is the atomic retrieval object: a contiguous line range of source
// content owned by a file. Chunks are produced by an external indexing
// pipeline; this engine only reads them.
type Chunk struct {
	ID        int64
	FileID    int64
	StartLine int
	EndLine   int
	Content   string
	Symbol    string // optional symbol name the chunk covers
	Kind      string // optional symbol kind (function, type, ...)
}

// Validate checks structural invariants of a chunk.
func (c *Chunk) Validate() error {
	if c.Content == "" {
		return errors.New("chunk content cannot be empty")
	}
	if c.StartLine <= 0 || c.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}
	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}
	return nil
}

// StoredVector pairs chunk metadata with its encoded embedding, as streamed
// out of the embedding store for brute-force scanning.
type StoredVector struct {
	ChunkID   int64
	Path      string
	StartLine int
	EndLine   int
	Vector    []byte // encoded float32 array
}
