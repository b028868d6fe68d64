package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// upsertBatch bounds the points sent per Upsert call.
const upsertBatch = 256

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// QdrantIndex keeps each index generation in its own Qdrant collection named
// "<prefix>_<id>" and switches queries to a new generation once it is fully written.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	prefix      string
	logger      *slog.Logger

	mu     sync.RWMutex
	active IndexInfo
}

// NewQdrantIndex connects to Qdrant's gRPC endpoint at addr.
func NewQdrantIndex(addr, prefix string, logger *slog.Logger) (*QdrantIndex, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	q := newQdrantIndex(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), prefix, logger)
	q.conn = conn
	return q, nil
}

func newQdrantIndex(points pointsAPI, collections collectionsAPI, prefix string, logger *slog.Logger) *QdrantIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &QdrantIndex{
		points:      points,
		collections: collections,
		prefix:      prefix,
		logger:      logger.With("component", "qdrant"),
		active:      IndexInfo{Backend: "qdrant"},
	}
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// Rebuild writes items into a fresh collection, makes it active and drops
// every older generation.
func (q *QdrantIndex) Rebuild(ctx context.Context, model string, items []Item) error {
	dim := 0
	for i, it := range items {
		if i == 0 {
			dim = len(it.Vector)
		} else if len(it.Vector) != dim {
			return fmt.Errorf("%w: vehicle %d has %d, want %d", ErrDimensionMismatch, it.ID, len(it.Vector), dim)
		}
	}
	name := q.prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if dim > 0 {
		if err := q.create(ctx, name, dim); err != nil {
			return err
		}
		if err := q.upsert(ctx, name, items); err != nil {
			q.drop(ctx, name)
			return err
		}
	}

	keep := ""
	if dim > 0 {
		keep = name
	}
	q.mu.Lock()
	old := q.active.Collection
	q.active = IndexInfo{Backend: "qdrant", Model: model, Dim: dim, Size: len(items), BuiltAt: time.Now().UTC(), Collection: keep}
	q.mu.Unlock()

	q.dropStale(ctx, keep, old)
	q.logger.InfoContext(ctx, "index rebuilt", "collection", keep, "size", len(items), "model", model)
	return nil
}

func (q *QdrantIndex) create(ctx context.Context, name string, dim int) error {
	_, err := q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: uint64(dim), Distance: pb.Distance_Cosine},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", name, err)
	}
	return nil
}

func (q *QdrantIndex) upsert(ctx context.Context, name string, items []Item) error {
	wait := true
	for start := 0; start < len(items); start += upsertBatch {
		batch := items[start:min(start+upsertBatch, len(items))]
		points := make([]*pb.PointStruct, len(batch))
		for i, it := range batch {
			points[i] = &pb.PointStruct{
				Id: &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(it.ID)}},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: it.Vector}},
				},
			}
		}
		if _, err := q.points.Upsert(ctx, &pb.UpsertPoints{CollectionName: name, Wait: &wait, Points: points}); err != nil {
			return fmt.Errorf("semantic: upsert %d points: %w", len(points), err)
		}
	}
	return nil
}

// dropStale deletes generations other than keep. old is always dropped.
func (q *QdrantIndex) dropStale(ctx context.Context, keep, old string) {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		q.logger.WarnContext(ctx, "list collections failed", "err", err)
		if old != "" && old != keep {
			q.drop(ctx, old)
		}
		return
	}
	for _, c := range list.GetCollections() {
		name := c.GetName()
		if name != keep && strings.HasPrefix(name, q.prefix+"_") {
			q.drop(ctx, name)
		}
	}
}

func (q *QdrantIndex) drop(ctx context.Context, name string) {
	if _, err := q.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
		q.logger.WarnContext(ctx, "drop collection failed", "collection", name, "err", err)
	}
}

// Search returns the k most similar vehicles in the active generation.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	q.mu.RLock()
	active := q.active
	q.mu.RUnlock()
	if k <= 0 {
		return nil, nil
	}
	if active.Collection == "" || active.Size == 0 {
		return nil, ErrEmptyIndex
	}
	if len(query) != active.Dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), active.Dim)
	}
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: active.Collection,
		Vector:         query,
		Limit:          uint64(k),
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}
	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = Hit{ID: int64(r.GetId().GetNum()), Score: float64(r.GetScore())}
	}
	return hits, nil
}

// Len returns the size of the active generation.
func (q *QdrantIndex) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.active.Size
}

// Info describes the active generation.
func (q *QdrantIndex) Info() IndexInfo {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.active
}
