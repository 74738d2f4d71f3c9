package index

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/spigell/jobmatch/internal/logger"
)

const (
	DefaultCollectionPrefix = "jobmatch"
	idPayloadKey            = "id"
)

var pointNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("jobmatch.index.point"))

type collectionsAPI interface {
	Create(ctx context.Context, in *qdrant.CreateCollection, opts ...grpc.CallOption) (*qdrant.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *qdrant.DeleteCollection, opts ...grpc.CallOption) (*qdrant.CollectionOperationResponse, error)
}

type pointsAPI interface {
	Upsert(ctx context.Context, in *qdrant.UpsertPoints, opts ...grpc.CallOption) (*qdrant.PointsOperationResponse, error)
	Search(ctx context.Context, in *qdrant.SearchPoints, opts ...grpc.CallOption) (*qdrant.SearchResponse, error)
}

// Qdrant keeps the run's vectors in a dedicated collection that is dropped on Close.
type Qdrant struct {
	collections collectionsAPI
	points      pointsAPI
	name        string
	dimension   int
	logger      *zap.Logger

	mu  sync.Mutex
	ids map[string]struct{}
}

// Dial creates an insecure gRPC client for a Qdrant server. The connection is
// established lazily on the first call.
func Dial(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant at %s: %w", addr, err)
	}
	return conn, nil
}

// NewQdrant creates a fresh collection named after prefix and a random suffix.
func NewQdrant(ctx context.Context, conn grpc.ClientConnInterface, prefix string, dimension int, log *zap.Logger) (*Qdrant, error) {
	return newQdrant(ctx, qdrant.NewCollectionsClient(conn), qdrant.NewPointsClient(conn), prefix, dimension, log)
}

func newQdrant(ctx context.Context, collections collectionsAPI, points pointsAPI, prefix string, dimension int, log *zap.Logger) (*Qdrant, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid index dimension %d", dimension)
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = DefaultCollectionPrefix
	}

	q := &Qdrant{
		collections: collections,
		points:      points,
		name:        prefix + "-" + uuid.NewString(),
		dimension:   dimension,
		logger:      logger.OrNop(log),
		ids:         make(map[string]struct{}),
	}

	_, err := collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dimension),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", q.name, err)
	}

	q.logger.Debug("qdrant collection created", zap.String("collection", q.name), zap.Int("dimension", dimension))
	return q, nil
}

func (q *Qdrant) Name() string { return q.name }

func (q *Qdrant) Dimension() int { return q.dimension }

func (q *Qdrant) Add(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	if len(vector) != q.dimension {
		return fmt.Errorf("%w: add %s: got %d, want %d", ErrDimensionMismatch, id, len(vector), q.dimension)
	}

	payload := make(map[string]*qdrant.Value, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}
	payload[idPayloadKey] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: id}}

	wait := true
	_, err := q.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.name,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id: &qdrant.PointId{
				PointIdOptions: &qdrant.PointId_Uuid{Uuid: PointID(id)},
			},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{Data: append([]float32(nil), vector...)},
				},
			},
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("upsert point %s: %w", id, err)
	}

	q.mu.Lock()
	q.ids[id] = struct{}{}
	q.mu.Unlock()
	return nil
}

func (q *Qdrant) Query(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if len(vector) != q.dimension {
		return nil, fmt.Errorf("%w: query: got %d, want %d", ErrDimensionMismatch, len(vector), q.dimension)
	}

	limit := q.Len()
	if k > 0 && k < limit {
		limit = k
	}
	if limit == 0 {
		return []Hit{}, nil
	}

	resp, err := q.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.name,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search collection %s: %w", q.name, err)
	}

	hits := make([]Hit, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		hit := Hit{Similarity: float64(point.GetScore())}
		for key, value := range point.GetPayload() {
			if key == idPayloadKey {
				hit.ID = value.GetStringValue()
				continue
			}
			if hit.Metadata == nil {
				hit.Metadata = make(map[string]string)
			}
			hit.Metadata[key] = value.GetStringValue()
		}
		if hit.ID == "" {
			q.logger.Warn("qdrant hit without id payload", zap.String("collection", q.name))
			continue
		}
		hits = append(hits, hit)
	}

	sortHits(hits)
	return truncate(hits, k), nil
}

func (q *Qdrant) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

// Close drops the run's collection.
func (q *Qdrant) Close(ctx context.Context) error {
	if _, err := q.collections.Delete(ctx, &qdrant.DeleteCollection{CollectionName: q.name}); err != nil {
		return fmt.Errorf("delete collection %s: %w", q.name, err)
	}
	q.logger.Debug("qdrant collection deleted", zap.String("collection", q.name))
	return nil
}

// PointID maps an arbitrary id to the UUID Qdrant stores it under.
func PointID(id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

// QdrantFactory builds a run-scoped collection on conn for every run.
func QdrantFactory(conn grpc.ClientConnInterface, prefix string, log *zap.Logger) Factory {
	return func(ctx context.Context, dimension int) (Index, error) {
		return NewQdrant(ctx, conn, prefix, dimension, log)
	}
}
