package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	merrors "github.com/Aman-CERP/medrag/internal/errors"
)

// QdrantConfig configures the Qdrant backend.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	TLS        bool
	Collection string
	Dimensions int

	// IndexedFields get keyword payload indexes when the collection is created.
	IndexedFields []string
}

// DefaultIndexedFields are the payload fields every delete and lookup filters on.
var DefaultIndexedFields = []string{FieldUserID, FieldFilename}

// QdrantIndex implements VectorIndex over Qdrant's gRPC API.
// Calls go through a circuit breaker so an unreachable server fails fast.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	collections qdrant.CollectionsClient
	points      qdrant.PointsClient
	cfg         QdrantConfig
	breaker     *merrors.CircuitBreaker
	logger      *slog.Logger

	mu      sync.Mutex
	ensured bool
}

// Verify interface implementation at compile time
var _ VectorIndex = (*QdrantIndex)(nil)

// NewQdrantIndex dials Qdrant. The connection is lazy; the collection is
// ensured before the first operation.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.Collection == "" {
		return nil, merrors.ConfigError("qdrant collection name is required", nil)
	}
	if cfg.Dimensions <= 0 {
		return nil, merrors.ConfigError(fmt.Sprintf("qdrant vector size must be positive, got %d", cfg.Dimensions), nil)
	}
	if cfg.IndexedFields == nil {
		cfg.IndexedFields = DefaultIndexedFields
	}

	creds := insecure.NewCredentials()
	if cfg.TLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, merrors.IndexUnavailable("connect to qdrant", err).WithDetail("address", addr)
	}

	return newQdrantIndex(conn, qdrant.NewCollectionsClient(conn), qdrant.NewPointsClient(conn), cfg), nil
}

func newQdrantIndex(conn *grpc.ClientConn, collections qdrant.CollectionsClient, points qdrant.PointsClient, cfg QdrantConfig) *QdrantIndex {
	return &QdrantIndex{
		conn:        conn,
		collections: collections,
		points:      points,
		cfg:         cfg,
		breaker: merrors.NewCircuitBreaker("qdrant",
			merrors.WithMaxFailures(5),
			merrors.WithResetTimeout(30*time.Second)),
		logger: slog.Default().With("component", "qdrant", "collection", cfg.Collection),
	}
}

func (q *QdrantIndex) withKey(ctx context.Context) context.Context {
	if q.cfg.APIKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", q.cfg.APIKey)
}

// transportFailure reports errors that mean the server is unhealthy, as
// opposed to a rejected request.
func transportFailure(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Internal, codes.Unknown:
		return true
	}
	return false
}

// call runs fn through the breaker. Only transport failures count against it.
func call[T any](q *QdrantIndex, op string, fn func() (T, error)) (T, error) {
	var rejected error
	result, err := merrors.CircuitCall(q.breaker, func() (T, error) {
		r, err := fn()
		if err != nil && !transportFailure(err) {
			rejected = err
			return r, nil
		}
		return r, err
	})
	if err == nil && rejected != nil {
		err = rejected
	}
	if err != nil {
		var zero T
		q.logger.Warn("qdrant_call_failed",
			slog.String("op", op),
			slog.String("breaker", q.breaker.State().String()),
			slog.String("error", err.Error()))
		return zero, merrors.IndexUnavailable("qdrant "+op, err).WithDetail("collection", q.cfg.Collection)
	}
	return result, nil
}

// EnsureCollection creates the collection (cosine distance) if absent and
// verifies the vector size of an existing one.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ensured {
		return nil
	}

	ctx = q.withKey(ctx)
	list, err := call(q, "list collections", func() (*qdrant.ListCollectionsResponse, error) {
		return q.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	})
	if err != nil {
		return err
	}

	exists := false
	for _, c := range list.GetCollections() {
		if c.GetName() == q.cfg.Collection {
			exists = true
			break
		}
	}

	if exists {
		if err := q.checkVectorSize(ctx); err != nil {
			return err
		}
	} else if err := q.createCollection(ctx); err != nil {
		return err
	}

	q.ensured = true
	return nil
}

func (q *QdrantIndex) createCollection(ctx context.Context) error {
	_, err := q.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(q.cfg.Dimensions),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		// Check-and-create is not atomic; another writer may have won.
		if status.Code(err) == codes.AlreadyExists || strings.Contains(err.Error(), "already exists") {
			return q.checkVectorSize(ctx)
		}
		return merrors.IndexUnavailable("create qdrant collection", err).WithDetail("collection", q.cfg.Collection)
	}

	q.logger.Info("collection_created", slog.Int("dimensions", q.cfg.Dimensions))

	wait := true
	for _, field := range q.cfg.IndexedFields {
		_, err := q.points.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.cfg.Collection,
			Wait:           &wait,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			q.logger.Warn("payload_index_failed", slog.String("field", field), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (q *QdrantIndex) checkVectorSize(ctx context.Context) error {
	info, err := call(q, "get collection", func() (*qdrant.GetCollectionInfoResponse, error) {
		return q.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: q.cfg.Collection})
	})
	if err != nil {
		return err
	}
	size := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size != 0 && int(size) != q.cfg.Dimensions {
		return checkDimensions(int(size), make([]float32, q.cfg.Dimensions))
	}
	return nil
}

// Upsert writes points and waits for the write to be applied.
func (q *QdrantIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if err := checkDimensions(q.cfg.Dimensions, p.Vector); err != nil {
			return err
		}
	}
	if err := q.EnsureCollection(ctx); err != nil {
		return err
	}

	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		structs = append(structs, &qdrant.PointStruct{
			Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: p.ID}},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: p.Vector}},
			},
			Payload: toQdrantPayload(p.Payload),
		})
	}

	ctx = q.withKey(ctx)
	wait := true
	_, err := call(q, "upsert", func() (*qdrant.PointsOperationResponse, error) {
		return q.points.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.cfg.Collection,
			Wait:           &wait,
			Points:         structs,
		})
	})
	return err
}

// Search returns the most similar points matching filter.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, filter Filter, limit int) ([]ScoredPoint, error) {
	if limit <= 0 {
		return []ScoredPoint{}, nil
	}
	if err := checkDimensions(q.cfg.Dimensions, vector); err != nil {
		return nil, err
	}
	if err := q.EnsureCollection(ctx); err != nil {
		return nil, err
	}

	ctx = q.withKey(ctx)
	resp, err := call(q, "search", func() (*qdrant.SearchResponse, error) {
		return q.points.Search(ctx, &qdrant.SearchPoints{
			CollectionName: q.cfg.Collection,
			Vector:         vector,
			Filter:         toQdrantFilter(filter),
			Limit:          uint64(limit),
			WithPayload:    withPayload(),
		})
	})
	if err != nil {
		return nil, err
	}

	hits := make([]ScoredPoint, 0, len(resp.GetResult()))
	for _, sp := range resp.GetResult() {
		hits = append(hits, ScoredPoint{
			ID:      pointIDString(sp.GetId()),
			Score:   sp.GetScore(),
			Payload: fromQdrantPayload(sp.GetPayload()),
		})
	}
	return hits, nil
}

// Scroll pages through matching points. The cursor is Qdrant's next page
// offset, which is inclusive.
func (q *QdrantIndex) Scroll(ctx context.Context, filter Filter, limit int, cursor string) ([]Record, string, error) {
	if limit <= 0 {
		return []Record{}, "", nil
	}
	if err := q.EnsureCollection(ctx); err != nil {
		return nil, "", err
	}

	req := &qdrant.ScrollPoints{
		CollectionName: q.cfg.Collection,
		Filter:         toQdrantFilter(filter),
		WithPayload:    withPayload(),
	}
	n := uint32(limit)
	req.Limit = &n
	if cursor != "" {
		req.Offset = &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: cursor}}
	}

	ctx = q.withKey(ctx)
	resp, err := call(q, "scroll", func() (*qdrant.ScrollResponse, error) {
		return q.points.Scroll(ctx, req)
	})
	if err != nil {
		return nil, "", err
	}

	page := make([]Record, 0, len(resp.GetResult()))
	for _, rp := range resp.GetResult() {
		page = append(page, Record{ID: pointIDString(rp.GetId()), Payload: fromQdrantPayload(rp.GetPayload())})
	}

	next := ""
	if off := resp.GetNextPageOffset(); off != nil {
		next = pointIDString(off)
	}
	return page, next, nil
}

// Delete removes every point matching filter.
func (q *QdrantIndex) Delete(ctx context.Context, filter Filter) error {
	if err := refuseEmptyFilter(filter); err != nil {
		return err
	}
	if err := q.EnsureCollection(ctx); err != nil {
		return err
	}

	ctx = q.withKey(ctx)
	wait := true
	_, err := call(q, "delete", func() (*qdrant.PointsOperationResponse, error) {
		return q.points.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: q.cfg.Collection,
			Wait:           &wait,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: toQdrantFilter(filter)},
			},
		})
	})
	return err
}

// Count returns the exact number of points matching filter.
func (q *QdrantIndex) Count(ctx context.Context, filter Filter) (int, error) {
	if err := q.EnsureCollection(ctx); err != nil {
		return 0, err
	}

	ctx = q.withKey(ctx)
	exact := true
	resp, err := call(q, "count", func() (*qdrant.CountResponse, error) {
		return q.points.Count(ctx, &qdrant.CountPoints{
			CollectionName: q.cfg.Collection,
			Filter:         toQdrantFilter(filter),
			Exact:          &exact,
		})
	})
	if err != nil {
		return 0, err
	}
	return int(resp.GetResult().GetCount()), nil
}

// Dimensions returns the collection's vector size.
func (q *QdrantIndex) Dimensions() int {
	return q.cfg.Dimensions
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

func withPayload() *qdrant.WithPayloadSelector {
	return &qdrant.WithPayloadSelector{
		SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
	}
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

// toQdrantFilter converts an equality filter to must-conditions.
// Floats have no match form and use a closed range.
func toQdrantFilter(f Filter) *qdrant.Filter {
	if f.Empty() {
		return nil
	}

	must := make([]*qdrant.Condition, 0, len(f))
	for _, key := range f.Keys() {
		fc := &qdrant.FieldCondition{Key: key}
		switch v := NormalizeValue(f[key]).(type) {
		case string:
			fc.Match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
		case int64:
			fc.Match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}
		case bool:
			fc.Match = &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}
		case float64:
			fc.Range = &qdrant.Range{Gte: &v, Lte: &v}
		}
		must = append(must, &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Field{Field: fc}})
	}
	return &qdrant.Filter{Must: must}
}

func toQdrantPayload(p map[string]any) map[string]*qdrant.Value {
	out := make(map[string]*qdrant.Value, len(p))
	for k, v := range p {
		switch x := NormalizeValue(v).(type) {
		case string:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: x}}
		case int64:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: x}}
		case float64:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: x}}
		case bool:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: x}}
		}
	}
	return out
}

func fromQdrantPayload(p map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			out[k] = kind.StringValue
		case *qdrant.Value_IntegerValue:
			out[k] = kind.IntegerValue
		case *qdrant.Value_DoubleValue:
			out[k] = kind.DoubleValue
		case *qdrant.Value_BoolValue:
			out[k] = kind.BoolValue
		}
	}
	return out
}
