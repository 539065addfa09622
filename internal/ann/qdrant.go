// Package ann adapts an external approximate-nearest-neighbor service
// for semantic search over large corpora. The adapter treats the
// service as optional capacity: every failure maps to a sentinel the
// caller can detect and fall back on.
package ann

import (
	"context"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nexushq/nexus/pkg/types"
)

const rpcTimeout = 5 * time.Second

// VectorPoint is one chunk embedding mirrored into the external index.
type VectorPoint struct {
	ChunkID   int64
	Vector    []float32
	Path      string
	StartLine int
	EndLine   int
	Symbol    string
	Kind      string
}

// Adapter owns all communication with a Qdrant instance. Point IDs are
// the chunk IDs, so upserts are idempotent and results map straight
// back to stored chunks.
type Adapter struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	qdrant      pb.QdrantClient
	collection  string
	liveness    *LivenessCache
}

// Dial connects to Qdrant at the given gRPC address. The connection is
// lazy; reachability is only known after the first health check.
func Dial(addr, collection string, livenessTTL time.Duration) (*Adapter, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", addr, err)
	}
	a := &Adapter{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		qdrant:      pb.NewQdrantClient(conn),
		collection:  collection,
	}
	a.liveness = NewLivenessCache(a.probe, livenessTTL)
	return a, nil
}

func (a *Adapter) Close() error {
	return a.conn.Close()
}

// Collection returns the collection name this adapter writes to.
func (a *Adapter) Collection() string {
	return a.collection
}

// EnsureCollection creates the collection with cosine distance if it
// does not exist yet. Safe to call on every startup.
func (a *Adapter) EnsureCollection(ctx context.Context, dims int) error {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	list, err := a.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return a.unavailable("list collections", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == a.collection {
			return nil
		}
	}

	_, err = a.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: a.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return a.unavailable(fmt.Sprintf("create collection %s", a.collection), err)
	}
	return nil
}

// DeleteCollection drops the collection and all its points.
func (a *Adapter) DeleteCollection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	_, err := a.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: a.collection})
	if err != nil {
		return a.unavailable(fmt.Sprintf("delete collection %s", a.collection), err)
	}
	return nil
}

// UpsertVectors writes a batch of points with wait=true so a nil error
// means every point is durably indexed. The batch is all-or-nothing;
// on error none of the points should be assumed stored.
func (a *Adapter) UpsertVectors(ctx context.Context, batch []VectorPoint) error {
	if len(batch) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	points := make([]*pb.PointStruct, len(batch))
	for i, p := range batch {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Num{Num: uint64(p.ChunkID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: p.Vector},
				},
			},
			Payload: map[string]*pb.Value{
				"path":       {Kind: &pb.Value_StringValue{StringValue: p.Path}},
				"start_line": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.StartLine)}},
				"end_line":   {Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.EndLine)}},
				"symbol":     {Kind: &pb.Value_StringValue{StringValue: p.Symbol}},
				"kind":       {Kind: &pb.Value_StringValue{StringValue: p.Kind}},
			},
		}
	}

	wait := true
	_, err := a.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: a.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return a.unavailable(fmt.Sprintf("upsert %d points", len(batch)), err)
	}
	return nil
}

// Query runs a similarity search. Path filtering happens client-side
// so glob semantics match the in-process scan engine exactly.
func (a *Adapter) Query(ctx context.Context, vec []float32, topK int, pathFilter string) ([]types.Hit, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("ann query: %w", types.ErrEmptyQuery)
	}
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	// Over-fetch when filtering to keep topK hits after glob matching.
	limit := topK
	if pathFilter != "" {
		limit = topK * 4
	}

	resp, err := a.points.Search(ctx, &pb.SearchPoints{
		CollectionName: a.collection,
		Vector:         vec,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, a.unavailable("search", err)
	}

	hits := make([]types.Hit, 0, topK)
	for _, r := range resp.GetResult() {
		payload := r.GetPayload()
		path := payload["path"].GetStringValue()
		if pathFilter != "" {
			ok, gerr := doublestar.Match(pathFilter, path)
			if gerr != nil {
				return nil, fmt.Errorf("path filter %q: %w", pathFilter, gerr)
			}
			if !ok {
				continue
			}
		}
		hits = append(hits, types.Hit{
			ChunkID:   int64(r.GetId().GetNum()),
			Path:      path,
			StartLine: int(payload["start_line"].GetIntegerValue()),
			EndLine:   int(payload["end_line"].GetIntegerValue()),
			Symbol:    payload["symbol"].GetStringValue(),
			Kind:      payload["kind"].GetStringValue(),
			Score:     float64(r.GetScore()),
			Engine:    types.EngineExternal,
		})
		if len(hits) == topK {
			break
		}
	}
	return hits, nil
}

// Status reports cached liveness without blocking on the network.
func (a *Adapter) Status() Status {
	return a.liveness.Status()
}

func (a *Adapter) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	_, err := a.qdrant.HealthCheck(ctx, &pb.HealthCheckRequest{})
	return err
}

func (a *Adapter) unavailable(op string, err error) error {
	a.liveness.MarkDown(err)
	return fmt.Errorf("%s: %w: %w", op, types.ErrAdapterUnavailable, err)
}
