// Package router picks the semantic engine per query: the external
// ANN service when the corpus is large and the service is reachable,
// the in-process exact scan otherwise.
package router

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nexushq/nexus/internal/ann"
	"github.com/nexushq/nexus/pkg/types"
)

// DefaultThreshold is the corpus size at which exact scanning becomes
// slower than a round trip to the external index.
const DefaultThreshold = 50000

// Exact is the in-process scan engine.
type Exact interface {
	Search(ctx context.Context, query []float32, topK int, pathFilter string) ([]types.Hit, error)
}

// External is the ANN adapter surface the router needs.
type External interface {
	Query(ctx context.Context, vec []float32, topK int, pathFilter string) ([]types.Hit, error)
	Status() ann.Status
}

// ChunkCounter reports the current corpus size.
type ChunkCounter interface {
	CountChunks(ctx context.Context) (int64, error)
}

// Decision records why a query went to a particular engine.
type Decision struct {
	Engine      types.Engine `json:"engine"`
	ChunkCount  int64        `json:"chunk_count"`
	AdapterLive bool         `json:"adapter_live"`
	Threshold   int64        `json:"threshold"`
	FellBack    bool         `json:"fell_back,omitempty"`
}

// Router routes semantic queries between the exact and external
// engines based on corpus size and adapter liveness.
type Router struct {
	exact     Exact
	external  External
	counter   ChunkCounter
	threshold int64
	logger    *zap.Logger
}

type Option func(*Router)

func WithThreshold(n int64) Option {
	return func(r *Router) {
		if n > 0 {
			r.threshold = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// New builds a router. The external engine may be nil, in which case
// all queries go to the exact scan.
func New(exact Exact, external External, counter ChunkCounter, opts ...Option) *Router {
	r := &Router{
		exact:     exact,
		external:  external,
		counter:   counter,
		threshold: DefaultThreshold,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Search routes the query and returns the hits plus the routing
// decision. When the external engine was chosen but fails with an
// unavailability error, the exact scan runs as a fallback and the
// error surfaces only if the fallback also fails.
func (r *Router) Search(ctx context.Context, query []float32, topK int, pathFilter string) ([]types.Hit, Decision, error) {
	decision, err := r.Decide(ctx)
	if err != nil {
		return nil, decision, err
	}

	if decision.Engine == types.EngineBruteForce {
		hits, err := r.exact.Search(ctx, query, topK, pathFilter)
		return hits, decision, err
	}

	hits, err := r.external.Query(ctx, query, topK, pathFilter)
	if err == nil {
		return hits, decision, nil
	}
	if !errors.Is(err, types.ErrAdapterUnavailable) {
		return nil, decision, err
	}

	r.logger.Warn("external engine unavailable, falling back to exact scan",
		zap.Int64("chunk_count", decision.ChunkCount),
		zap.Error(err))

	decision.Engine = types.EngineBruteForce
	decision.FellBack = true
	hits, fbErr := r.exact.Search(ctx, query, topK, pathFilter)
	if fbErr != nil {
		return nil, decision, fmt.Errorf("fallback after %v: %w", err, fbErr)
	}
	return hits, decision, nil
}

// Decide evaluates the routing rule without running a query: the
// external engine is chosen iff the adapter is live and the corpus is
// at or above the threshold.
func (r *Router) Decide(ctx context.Context) (Decision, error) {
	count, err := r.counter.CountChunks(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("count chunks: %w", err)
	}

	d := Decision{
		Engine:     types.EngineBruteForce,
		ChunkCount: count,
		Threshold:  r.threshold,
	}
	if r.external == nil {
		return d, nil
	}
	d.AdapterLive = r.external.Status().Live()
	if d.AdapterLive && count >= r.threshold {
		d.Engine = types.EngineExternal
	}
	return d, nil
}

// Stats describes the router's current state for diagnostics.
type Stats struct {
	Threshold    int64        `json:"threshold"`
	ChunkCount   int64        `json:"chunk_count"`
	AdapterState ann.State    `json:"adapter_state"`
	Engine       types.Engine `json:"engine"`
}

func (r *Router) Stats(ctx context.Context) (Stats, error) {
	d, err := r.Decide(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Threshold:    d.Threshold,
		ChunkCount:   d.ChunkCount,
		AdapterState: ann.StateUnavailable,
		Engine:       d.Engine,
	}
	if r.external != nil {
		st.AdapterState = r.external.Status().State
	}
	return st, nil
}
