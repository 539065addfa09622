// Package searcher is the query front door. It embeds the query text,
// runs the lexical and semantic legs, and fuses their rankings into
// one result list.
package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nexushq/nexus/internal/lexical"
	"github.com/nexushq/nexus/internal/router"
	"github.com/nexushq/nexus/pkg/types"
)

const (
	defaultLimit = 10
	maxLimit     = 100
	cacheSize    = 1000
	defaultTTL   = time.Hour
)

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkLoader hydrates hit content for results that only carry
// metadata from the vector index.
type ChunkLoader interface {
	GetChunk(ctx context.Context, id int64) (*types.Chunk, error)
}

// Request describes one search.
type Request struct {
	Query      string
	Mode       types.SearchMode
	Limit      int
	PathFilter string
	Weights    *Weights
	UseCache   bool
	CacheTTL   time.Duration
}

// Response carries ranked hits plus how they were produced.
type Response struct {
	Hits            []types.Hit      `json:"hits"`
	TotalCandidates int              `json:"total_candidates"`
	Mode            types.SearchMode `json:"mode"`
	Decision        *router.Decision `json:"decision,omitempty"`
	Duration        time.Duration    `json:"duration"`
	CacheHit        bool             `json:"cache_hit"`
}

type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher coordinates the lexical index, the semantic router, and
// score fusion behind a single Search call.
type Searcher struct {
	lexical  *lexical.Index
	router   *router.Router
	embedder Embedder
	chunks   ChunkLoader
	logger   *zap.Logger

	cacheMu sync.RWMutex
	cache   *lru.Cache[[32]byte, *cacheEntry]
}

func New(lex *lexical.Index, rt *router.Router, emb Embedder, chunks ChunkLoader, logger *zap.Logger) *Searcher {
	cache, err := lru.New[[32]byte, *cacheEntry](cacheSize)
	if err != nil {
		panic(fmt.Sprintf("create query cache: %v", err))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{
		lexical:  lex,
		router:   rt,
		embedder: emb,
		chunks:   chunks,
		logger:   logger,
		cache:    cache,
	}
}

// Search runs the request in its chosen mode. Hybrid mode runs both
// legs concurrently and tolerates one leg failing as long as the other
// produced results.
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(start)
			return cached, nil
		}
	}

	var (
		resp *Response
		err  error
	)
	switch req.Mode {
	case types.ModeLexical:
		resp, err = s.searchLexical(ctx, req)
	case types.ModeSemantic:
		resp, err = s.searchSemantic(ctx, req)
	case types.ModeHybrid:
		resp, err = s.searchHybrid(ctx, req)
	default:
		return nil, fmt.Errorf("unknown search mode %q", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	resp.Mode = req.Mode
	resp.Duration = time.Since(start)

	if req.UseCache && len(resp.Hits) > 0 {
		s.storeInCache(req, resp)
	}
	return resp, nil
}

// InvalidateCache drops all cached responses. Ingest calls this after
// committing new embeddings.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

func (s *Searcher) searchLexical(ctx context.Context, req Request) (*Response, error) {
	hits, err := s.lexical.Search(ctx, req.Query, req.Limit, 0)
	if err != nil {
		return nil, err
	}
	hits = filterByPath(hits, req.PathFilter)
	NormalizeLexical(hits)
	return &Response{Hits: hits, TotalCandidates: len(hits)}, nil
}

func (s *Searcher) searchSemantic(ctx context.Context, req Request) (*Response, error) {
	vec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, decision, err := s.router.Search(ctx, vec, req.Limit, req.PathFilter)
	if err != nil {
		return nil, err
	}
	NormalizeSemantic(hits)
	if err := s.hydrate(ctx, hits); err != nil {
		return nil, err
	}
	return &Response{Hits: hits, TotalCandidates: len(hits), Decision: &decision}, nil
}

func (s *Searcher) searchHybrid(ctx context.Context, req Request) (*Response, error) {
	// Each leg fetches more than the final limit so fusion has a real
	// candidate pool to rerank.
	legLimit := req.Limit * 3

	var (
		lexHits  []types.Hit
		semHits  []types.Hit
		lexErr   error
		semErr   error
		decision router.Decision
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := s.lexical.Search(gctx, req.Query, legLimit, 0)
		if err != nil {
			lexErr = err
			return nil
		}
		lexHits = filterByPath(hits, req.PathFilter)
		return nil
	})
	g.Go(func() error {
		vec, err := s.embedder.Embed(gctx, req.Query)
		if err != nil {
			semErr = fmt.Errorf("embed query: %w", err)
			return nil
		}
		hits, d, err := s.router.Search(gctx, vec, legLimit, req.PathFilter)
		if err != nil {
			semErr = err
			return nil
		}
		semHits = hits
		decision = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if lexErr != nil && semErr != nil {
		return nil, fmt.Errorf("both legs failed: lexical: %v; semantic: %w", lexErr, semErr)
	}
	if lexErr != nil {
		s.logger.Warn("lexical leg failed, using semantic only", zap.Error(lexErr))
	}
	if semErr != nil {
		s.logger.Warn("semantic leg failed, using lexical only", zap.Error(semErr))
	}

	weights := DefaultWeights()
	if req.Weights != nil {
		weights = *req.Weights
	}

	total := len(lexHits) + len(semHits)
	fused, err := Fuse(lexHits, semHits, weights, req.Limit)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, fused); err != nil {
		return nil, err
	}

	resp := &Response{Hits: fused, TotalCandidates: total}
	if semErr == nil {
		resp.Decision = &decision
	}
	return resp, nil
}

// hydrate fills in content for hits that came back metadata-only.
func (s *Searcher) hydrate(ctx context.Context, hits []types.Hit) error {
	if s.chunks == nil {
		return nil
	}
	for i := range hits {
		if hits[i].Content != "" {
			continue
		}
		chunk, err := s.chunks.GetChunk(ctx, hits[i].ChunkID)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				continue
			}
			return fmt.Errorf("hydrate chunk %d: %w", hits[i].ChunkID, err)
		}
		hits[i].Content = chunk.Content
		hits[i].Symbol = chunk.Symbol
		hits[i].Kind = chunk.Kind
	}
	return nil
}

func (s *Searcher) validate(req *Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return types.ErrEmptyQuery
	}
	if req.Limit <= 0 {
		req.Limit = defaultLimit
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}
	if req.Mode == "" {
		req.Mode = types.ModeHybrid
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = defaultTTL
	}
	if req.Weights != nil {
		if err := req.Weights.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Searcher) checkCache(req Request) *Response {
	hash := queryHash(req)

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}
	resp := copyResponse(entry.response)
	s.cacheMu.RUnlock()
	return resp
}

func (s *Searcher) storeInCache(req Request, resp *Response) {
	entry := &cacheEntry{
		response:  copyResponse(resp),
		expiresAt: time.Now().Add(req.CacheTTL),
	}
	s.cacheMu.Lock()
	s.cache.Add(queryHash(req), entry)
	s.cacheMu.Unlock()
}

func queryHash(req Request) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	data.WriteString("|")
	fmt.Fprintf(&data, "%d|%s", req.Limit, req.PathFilter)
	if req.Weights != nil {
		fmt.Fprintf(&data, "|w:%v,%v", req.Weights.Semantic, req.Weights.Lexical)
	}
	return sha256.Sum256([]byte(data.String()))
}

func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Hits = make([]types.Hit, len(src.Hits))
	copy(dst.Hits, src.Hits)
	if src.Decision != nil {
		d := *src.Decision
		dst.Decision = &d
	}
	return &dst
}

func filterByPath(hits []types.Hit, pattern string) []types.Hit {
	if pattern == "" {
		return hits
	}
	filtered := hits[:0]
	for _, h := range hits {
		if ok, err := doublestar.Match(pattern, h.Path); err == nil && ok {
			filtered = append(filtered, h)
		}
	}
	return filtered
}
