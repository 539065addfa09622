package storage

import (
	"context"
	"time"

	"github.com/nexushq/nexus/pkg/types"
)

// FileRepository persists file metadata for indexed source files.
type FileRepository interface {
	UpsertFile(ctx context.Context, file *File) error
	GetFileByPath(ctx context.Context, path string) (*File, error)
	GetFileByID(ctx context.Context, fileID int64) (*File, error)
	DeleteFile(ctx context.Context, fileID int64) error
}

// ChunkRepository persists the chunks owned by indexed files. Chunks are
// produced by the external indexing pipeline; the retrieval engines only
// read them.
type ChunkRepository interface {
	InsertChunk(ctx context.Context, chunk *types.Chunk) error
	GetChunk(ctx context.Context, chunkID int64) (*types.Chunk, error)
	ListChunksByFile(ctx context.Context, fileID int64) ([]*types.Chunk, error)
	DeleteChunksByFile(ctx context.Context, fileID int64) error
	CountChunks(ctx context.Context) (int64, error)

	// ListChunksMissingEmbeddings pages through chunks that have no stored
	// embedding yet, in ascending ID order starting after afterID. The
	// ingest pipeline uses the cursor to skip chunks whose batch failed.
	ListChunksMissingEmbeddings(ctx context.Context, afterID int64, limit int) ([]*types.Chunk, error)
}

// EmbeddingRepository persists one embedding per chunk. Upsert semantics:
// re-embedding a chunk replaces its vector, never duplicates it. Deleting a
// chunk cascades to its embedding.
type EmbeddingRepository interface {
	UpsertEmbedding(ctx context.Context, emb *Embedding) error
	GetEmbedding(ctx context.Context, chunkID int64) (*Embedding, error)
	DeleteEmbedding(ctx context.Context, chunkID int64) error
	CountEmbeddings(ctx context.Context) (int64, error)

	// StreamVectors yields every stored embedding joined with its chunk
	// metadata, for brute-force similarity scans. Iteration stops at the
	// first error returned by fn.
	StreamVectors(ctx context.Context, fn func(types.StoredVector) error) error
}

// TextSearcher runs a compiled FTS5 match expression against the chunk
// index. Scores are already negated so higher is better.
type TextSearcher interface {
	SearchText(ctx context.Context, match string, limit, offset int) ([]TextResult, error)
}

// Storage is the full persistence surface backing the retrieval engine.
type Storage interface {
	FileRepository
	ChunkRepository
	EmbeddingRepository
	TextSearcher

	Stats(ctx context.Context) (*Stats, error)
	BeginTx(ctx context.Context) (Tx, error)
	Close() error
}

// Tx scopes a batch of writes to one transaction. Only the write operations
// the ingest pipeline needs are exposed.
type Tx interface {
	UpsertFile(ctx context.Context, file *File) error
	InsertChunk(ctx context.Context, chunk *types.Chunk) error
	UpsertEmbedding(ctx context.Context, emb *Embedding) error
	Commit() error
	Rollback() error
}

// File is a tracked source file owning zero or more chunks.
type File struct {
	ID        int64
	Path      string
	Hash      string
	ModTime   time.Time
	SizeBytes int64
	Lang      string
	IndexedAt time.Time
}

// Embedding is the stored vector for a chunk. Vector holds the encoded
// float32 array; Dimension is its decoded length. All embeddings produced
// by one model share a dimension.
type Embedding struct {
	ID        int64
	ChunkID   int64
	Vector    []byte
	Dimension int
	Model     string
	CreatedAt time.Time
}

// TextResult is one FTS5 hit with its joined chunk metadata. Score is the
// negated bm25() value, so higher is better like every other engine.
type TextResult struct {
	ChunkID   int64
	Path      string
	StartLine int
	EndLine   int
	Content   string
	Symbol    string
	Kind      string
	Score     float64
}

// Stats summarizes the current corpus.
type Stats struct {
	Files      int64
	Chunks     int64
	Embeddings int64
	Languages  map[string]int64
	SizeMB     float64
}
