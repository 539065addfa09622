// Package storage persists the retrieval corpus in SQLite: files, their
// chunks, an FTS5 index over chunk content, and one embedding per chunk.
//
// The package exposes narrow typed repositories (FileRepository,
// ChunkRepository, EmbeddingRepository) so the engines depend on an
// abstraction rather than raw SQL; SQLiteStorage implements all of them.
//
// Two drivers are supported via build tags: the default pure Go driver
// (modernc.org/sqlite) and the C driver (mattn/go-sqlite3) behind the
// cgo_sqlite tag. Both ship FTS5.
//
// Deleting a file cascades to its chunks, and deleting a chunk cascades to
// its embedding, so the embedding table can never hold orphaned vectors.
package storage
