package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nexushq/nexus/pkg/types"
)

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings.
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance and applies any
// pending migrations.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction.
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback() error { return t.tx.Rollback() }

func (t *sqliteTx) UpsertFile(ctx context.Context, file *File) error {
	return t.storage.upsertFileWithQuerier(ctx, t.tx, file)
}

func (t *sqliteTx) InsertChunk(ctx context.Context, chunk *types.Chunk) error {
	return t.storage.insertChunkWithQuerier(ctx, t.tx, chunk)
}

func (t *sqliteTx) UpsertEmbedding(ctx context.Context, emb *Embedding) error {
	return t.storage.upsertEmbeddingWithQuerier(ctx, t.tx, emb)
}

// File operations

func (s *SQLiteStorage) upsertFileWithQuerier(ctx context.Context, q querier, file *File) error {
	query := `
		INSERT INTO files (path, hash, mod_time, size_bytes, lang, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			hash = excluded.hash,
			mod_time = excluded.mod_time,
			size_bytes = excluded.size_bytes,
			lang = excluded.lang,
			indexed_at = excluded.indexed_at
		RETURNING id
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		file.Path, file.Hash, file.ModTime, file.SizeBytes, file.Lang, now).Scan(&file.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}
	file.IndexedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertFile(ctx context.Context, file *File) error {
	return s.upsertFileWithQuerier(ctx, s.db, file)
}

func (s *SQLiteStorage) scanFile(row *sql.Row) (*File, error) {
	var file File
	var modTime, indexedAt sql.NullTime
	var lang sql.NullString
	err := row.Scan(&file.ID, &file.Path, &file.Hash, &modTime, &file.SizeBytes, &lang, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if modTime.Valid {
		file.ModTime = modTime.Time
	}
	if indexedAt.Valid {
		file.IndexedAt = indexedAt.Time
	}
	file.Lang = lang.String
	return &file, nil
}

func (s *SQLiteStorage) GetFileByPath(ctx context.Context, path string) (*File, error) {
	query := `
		SELECT id, path, hash, mod_time, size_bytes, lang, indexed_at
		FROM files
		WHERE path = ?
	`
	return s.scanFile(s.db.QueryRowContext(ctx, query, path))
}

func (s *SQLiteStorage) GetFileByID(ctx context.Context, fileID int64) (*File, error) {
	query := `
		SELECT id, path, hash, mod_time, size_bytes, lang, indexed_at
		FROM files
		WHERE id = ?
	`
	return s.scanFile(s.db.QueryRowContext(ctx, query, fileID))
}

// DeleteFile removes a file; chunks and their embeddings cascade.
func (s *SQLiteStorage) DeleteFile(ctx context.Context, fileID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID)
	return err
}

// Chunk operations

func (s *SQLiteStorage) insertChunkWithQuerier(ctx context.Context, q querier, chunk *types.Chunk) error {
	if err := chunk.Validate(); err != nil {
		return fmt.Errorf("invalid chunk: %w", err)
	}

	query := `
		INSERT INTO chunks (file_id, start_line, end_line, content, symbol, kind)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err := q.QueryRowContext(ctx, query,
		chunk.FileID, chunk.StartLine, chunk.EndLine,
		chunk.Content, chunk.Symbol, chunk.Kind).Scan(&chunk.ID)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) InsertChunk(ctx context.Context, chunk *types.Chunk) error {
	return s.insertChunkWithQuerier(ctx, s.db, chunk)
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, chunkID int64) (*types.Chunk, error) {
	query := `
		SELECT id, file_id, start_line, end_line, content, symbol, kind
		FROM chunks
		WHERE id = ?
	`
	var chunk types.Chunk
	var symbol, kind sql.NullString
	err := s.db.QueryRowContext(ctx, query, chunkID).Scan(
		&chunk.ID, &chunk.FileID, &chunk.StartLine, &chunk.EndLine,
		&chunk.Content, &symbol, &kind,
	)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	chunk.Symbol = symbol.String
	chunk.Kind = kind.String
	return &chunk, nil
}

func (s *SQLiteStorage) ListChunksByFile(ctx context.Context, fileID int64) ([]*types.Chunk, error) {
	query := `
		SELECT id, file_id, start_line, end_line, content, symbol, kind
		FROM chunks
		WHERE file_id = ?
		ORDER BY start_line
	`
	rows, err := s.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]*types.Chunk, error) {
	chunks := make([]*types.Chunk, 0)
	for rows.Next() {
		var chunk types.Chunk
		var symbol, kind sql.NullString
		err := rows.Scan(
			&chunk.ID, &chunk.FileID, &chunk.StartLine, &chunk.EndLine,
			&chunk.Content, &symbol, &kind,
		)
		if err != nil {
			return nil, err
		}
		chunk.Symbol = symbol.String
		chunk.Kind = kind.String
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStorage) DeleteChunksByFile(ctx context.Context, fileID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID)
	return err
}

func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

func (s *SQLiteStorage) ListChunksMissingEmbeddings(ctx context.Context, afterID int64, limit int) ([]*types.Chunk, error) {
	query := `
		SELECT c.id, c.file_id, c.start_line, c.end_line, c.content, c.symbol, c.kind
		FROM chunks c
		LEFT JOIN embeddings e ON c.id = e.chunk_id
		WHERE e.id IS NULL AND c.id > ?
		ORDER BY c.id
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanChunks(rows)
}

// Embedding operations

func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, emb *Embedding) error {
	query := `
		INSERT INTO embeddings (chunk_id, vector, dimension, model, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			model = excluded.model
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		emb.ChunkID, emb.Vector, emb.Dimension, emb.Model, now)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}

	if emb.ID == 0 {
		if id, err := result.LastInsertId(); err == nil {
			emb.ID = id
		}
	}
	emb.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, emb *Embedding) error {
	return s.upsertEmbeddingWithQuerier(ctx, s.db, emb)
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, chunkID int64) (*Embedding, error) {
	query := `
		SELECT id, chunk_id, vector, dimension, model, created_at
		FROM embeddings
		WHERE chunk_id = ?
	`
	var emb Embedding
	err := s.db.QueryRowContext(ctx, query, chunkID).Scan(
		&emb.ID, &emb.ChunkID, &emb.Vector, &emb.Dimension, &emb.Model, &emb.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &emb, nil
}

func (s *SQLiteStorage) DeleteEmbedding(ctx context.Context, chunkID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE chunk_id = ?`, chunkID)
	return err
}

func (s *SQLiteStorage) CountEmbeddings(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count)
	return count, err
}

// StreamVectors yields stored embeddings joined with chunk metadata in
// chunk-ID order. Iteration stops at the first error returned by fn.
func (s *SQLiteStorage) StreamVectors(ctx context.Context, fn func(types.StoredVector) error) error {
	query := `
		SELECT c.id, f.path, c.start_line, c.end_line, e.vector
		FROM embeddings e
		INNER JOIN chunks c ON e.chunk_id = c.id
		INNER JOIN files f ON c.file_id = f.id
		ORDER BY c.id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var sv types.StoredVector
		if err := rows.Scan(&sv.ChunkID, &sv.Path, &sv.StartLine, &sv.EndLine, &sv.Vector); err != nil {
			return err
		}
		if err := fn(sv); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Stats operations

func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Languages: make(map[string]int64)}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&stats.Files); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&stats.Chunks); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&stats.Embeddings); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT lang, COUNT(*) AS count
		FROM files
		WHERE lang IS NOT NULL AND lang != ''
		GROUP BY lang
		ORDER BY count DESC
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var lang string
		var count int64
		if err := rows.Scan(&lang, &count); err != nil {
			return nil, err
		}
		stats.Languages[lang] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.SizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return stats, nil
}

var _ Storage = (*SQLiteStorage)(nil)
