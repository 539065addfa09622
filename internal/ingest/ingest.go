// Package ingest fills the embedding gap: it finds chunks without
// stored vectors, embeds them in batches, and persists the results.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nexushq/nexus/internal/ann"
	"github.com/nexushq/nexus/internal/embedder"
	"github.com/nexushq/nexus/internal/storage"
	"github.com/nexushq/nexus/internal/vector"
	"github.com/nexushq/nexus/pkg/types"
)

const (
	DefaultBatchSize = 50
	// DefaultRate paces provider calls well under typical API limits.
	DefaultRate = rate.Limit(2)
)

// Report summarizes one ingest run.
type Report struct {
	Batches   int           `json:"batches"`
	Embedded  int           `json:"embedded"`
	Failed    int           `json:"failed"`
	Mirrored  int           `json:"mirrored"`
	Duration  time.Duration `json:"duration"`
	Exhausted bool          `json:"exhausted"`
}

// Mirror receives successfully stored vectors for the external index.
type Mirror interface {
	UpsertVectors(ctx context.Context, batch []ann.VectorPoint) error
	Status() ann.Status
}

// Pipeline embeds pending chunks batch by batch. A failing batch is
// recorded and skipped; later batches still run. Failed chunks are
// reported, never silently retried.
type Pipeline struct {
	store     storage.Storage
	embedder  embedder.Embedder
	mirror    Mirror
	limiter   *rate.Limiter
	batchSize int
	logger    *zap.Logger
}

type Option func(*Pipeline)

func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(p *Pipeline) { p.limiter = rate.NewLimiter(limit, burst) }
}

func WithMirror(m Mirror) Option {
	return func(p *Pipeline) { p.mirror = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func New(store storage.Storage, emb embedder.Embedder, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     store,
		embedder:  emb,
		limiter:   rate.NewLimiter(DefaultRate, 1),
		batchSize: DefaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes up to maxBatches batches (0 means until the backlog
// is drained). When some batches fail the returned error is a
// *types.EmbeddingBatchError listing every failed chunk; the report
// still covers the batches that succeeded.
func (p *Pipeline) Run(ctx context.Context, maxBatches int) (*Report, error) {
	start := time.Now()
	report := &Report{}
	var failed []types.ChunkError

	var afterID int64
	for {
		if maxBatches > 0 && report.Batches >= maxBatches {
			break
		}
		chunks, err := p.store.ListChunksMissingEmbeddings(ctx, afterID, p.batchSize)
		if err != nil {
			return report, fmt.Errorf("list pending chunks: %w", err)
		}
		if len(chunks) == 0 {
			report.Exhausted = true
			break
		}
		// Advance past this batch whether or not it succeeds, so one
		// poisoned batch cannot stall the run.
		afterID = chunks[len(chunks)-1].ID
		report.Batches++

		if err := p.limiter.Wait(ctx); err != nil {
			return report, err
		}

		if batchErrs := p.runBatch(ctx, chunks, report); len(batchErrs) > 0 {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			failed = append(failed, batchErrs...)
			report.Failed += len(batchErrs)
		}
	}

	report.Duration = time.Since(start)
	if len(failed) > 0 {
		return report, &types.EmbeddingBatchError{Failed: failed}
	}
	return report, nil
}

func (p *Pipeline) runBatch(ctx context.Context, chunks []*types.Chunk, report *Report) []types.ChunkError {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		p.logger.Warn("embedding batch failed",
			zap.Int("size", len(chunks)),
			zap.Int64("first_chunk", chunks[0].ID),
			zap.Error(err))
		errs := make([]types.ChunkError, len(chunks))
		for i, c := range chunks {
			errs[i] = types.ChunkError{ChunkID: c.ID, Err: err}
		}
		return errs
	}

	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		errs := make([]types.ChunkError, len(chunks))
		for i, c := range chunks {
			errs[i] = types.ChunkError{ChunkID: c.ID, Err: err}
		}
		return errs
	}

	model := p.embedder.Model()
	for i, c := range chunks {
		emb := &storage.Embedding{
			ChunkID:   c.ID,
			Vector:    vector.Encode(vecs[i]),
			Dimension: len(vecs[i]),
			Model:     model,
		}
		if err := tx.UpsertEmbedding(ctx, emb); err != nil {
			_ = tx.Rollback()
			errs := make([]types.ChunkError, len(chunks))
			for j, cc := range chunks {
				errs[j] = types.ChunkError{ChunkID: cc.ID, Err: err}
			}
			return errs
		}
	}
	if err := tx.Commit(); err != nil {
		errs := make([]types.ChunkError, len(chunks))
		for i, c := range chunks {
			errs[i] = types.ChunkError{ChunkID: c.ID, Err: err}
		}
		return errs
	}
	report.Embedded += len(chunks)

	p.mirrorBatch(ctx, chunks, vecs, report)
	return nil
}

// mirrorBatch copies fresh vectors into the external index. Mirror
// failures are logged and skipped; the local store already holds the
// vectors and the external index can be rebuilt from it.
func (p *Pipeline) mirrorBatch(ctx context.Context, chunks []*types.Chunk, vecs [][]float32, report *Report) {
	if p.mirror == nil || !p.mirror.Status().Live() {
		return
	}

	points := make([]ann.VectorPoint, len(chunks))
	for i, c := range chunks {
		points[i] = ann.VectorPoint{
			ChunkID:   c.ID,
			Vector:    vecs[i],
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Symbol:    c.Symbol,
			Kind:      c.Kind,
		}
		if file, err := p.store.GetFileByID(ctx, c.FileID); err == nil {
			points[i].Path = file.Path
		}
	}

	if err := p.mirror.UpsertVectors(ctx, points); err != nil {
		p.logger.Warn("mirror upsert failed", zap.Int("points", len(points)), zap.Error(err))
		return
	}
	report.Mirrored += len(points)
}
