package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	merrors "github.com/Aman-CERP/medrag/internal/errors"
)

// fakeCollections implements the collection calls the index makes.
type fakeCollections struct {
	qdrant.CollectionsClient

	mu        sync.Mutex
	names     []string
	size      uint64
	createErr error
	created   []*qdrant.CreateCollection
	apiKeys   []string
}

func (f *fakeCollections) List(ctx context.Context, _ *qdrant.ListCollectionsRequest, _ ...grpc.CallOption) (*qdrant.ListCollectionsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		f.apiKeys = append(f.apiKeys, md.Get("api-key")...)
	}
	resp := &qdrant.ListCollectionsResponse{}
	for _, n := range f.names {
		resp.Collections = append(resp.Collections, &qdrant.CollectionDescription{Name: n})
	}
	return resp, nil
}

func (f *fakeCollections) Get(_ context.Context, _ *qdrant.GetCollectionInfoRequest, _ ...grpc.CallOption) (*qdrant.GetCollectionInfoResponse, error) {
	return &qdrant.GetCollectionInfoResponse{
		Result: &qdrant.CollectionInfo{
			Config: &qdrant.CollectionConfig{
				Params: &qdrant.CollectionParams{
					VectorsConfig: &qdrant.VectorsConfig{
						Config: &qdrant.VectorsConfig_Params{Params: &qdrant.VectorParams{Size: f.size}},
					},
				},
			},
		},
	}, nil
}

func (f *fakeCollections) Create(_ context.Context, in *qdrant.CreateCollection, _ ...grpc.CallOption) (*qdrant.CollectionOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &qdrant.CollectionOperationResponse{Result: true}, nil
}

// fakePoints records requests and serves canned responses.
type fakePoints struct {
	qdrant.PointsClient

	mu          sync.Mutex
	fieldIdx    []string
	upserts     []*qdrant.UpsertPoints
	searches    []*qdrant.SearchPoints
	scrolls     []*qdrant.ScrollPoints
	deletes     []*qdrant.DeletePoints
	counts      []*qdrant.CountPoints
	searchErr   error
	searchCalls int
	searchResp  *qdrant.SearchResponse
	scrollResp  *qdrant.ScrollResponse
	countResult uint64
}

func (f *fakePoints) CreateFieldIndex(_ context.Context, in *qdrant.CreateFieldIndexCollection, _ ...grpc.CallOption) (*qdrant.PointsOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fieldIdx = append(f.fieldIdx, in.GetFieldName())
	return &qdrant.PointsOperationResponse{}, nil
}

func (f *fakePoints) Upsert(_ context.Context, in *qdrant.UpsertPoints, _ ...grpc.CallOption) (*qdrant.PointsOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, in)
	return &qdrant.PointsOperationResponse{}, nil
}

func (f *fakePoints) Search(_ context.Context, in *qdrant.SearchPoints, _ ...grpc.CallOption) (*qdrant.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	f.searches = append(f.searches, in)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.searchResp == nil {
		return &qdrant.SearchResponse{}, nil
	}
	return f.searchResp, nil
}

func (f *fakePoints) Scroll(_ context.Context, in *qdrant.ScrollPoints, _ ...grpc.CallOption) (*qdrant.ScrollResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrolls = append(f.scrolls, in)
	if f.scrollResp == nil {
		return &qdrant.ScrollResponse{}, nil
	}
	return f.scrollResp, nil
}

func (f *fakePoints) Delete(_ context.Context, in *qdrant.DeletePoints, _ ...grpc.CallOption) (*qdrant.PointsOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, in)
	return &qdrant.PointsOperationResponse{}, nil
}

func (f *fakePoints) Count(_ context.Context, in *qdrant.CountPoints, _ ...grpc.CallOption) (*qdrant.CountResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = append(f.counts, in)
	return &qdrant.CountResponse{Result: &qdrant.CountResult{Count: f.countResult}}, nil
}

func newFakeQdrant(t *testing.T, cfg QdrantConfig) (*QdrantIndex, *fakeCollections, *fakePoints) {
	t.Helper()
	if cfg.Collection == "" {
		cfg.Collection = "medical_reports"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 3
	}
	if cfg.IndexedFields == nil {
		cfg.IndexedFields = DefaultIndexedFields
	}
	cols := &fakeCollections{}
	pts := &fakePoints{}
	return newQdrantIndex(nil, cols, pts, cfg), cols, pts
}

func uuidID(s string) *qdrant.PointId {
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: s}}
}

// ============================================================================
// TS01: Collection lifecycle
// ============================================================================

func TestQdrantIndex_EnsureCollection_CreatesWithCosineAndFieldIndexes(t *testing.T) {
	idx, cols, pts := newFakeQdrant(t, QdrantConfig{Dimensions: 384})

	require.NoError(t, idx.EnsureCollection(context.Background()))
	require.NoError(t, idx.EnsureCollection(context.Background()), "second call is a no-op")

	require.Len(t, cols.created, 1)
	params := cols.created[0].GetVectorsConfig().GetParams()
	assert.Equal(t, uint64(384), params.GetSize())
	assert.Equal(t, qdrant.Distance_Cosine, params.GetDistance())
	assert.Equal(t, []string{FieldUserID, FieldFilename}, pts.fieldIdx)
}

func TestQdrantIndex_EnsureCollection_ExistingSizeChecked(t *testing.T) {
	idx, cols, _ := newFakeQdrant(t, QdrantConfig{Dimensions: 3})
	cols.names = []string{"medical_reports"}
	cols.size = 768

	err := idx.EnsureCollection(context.Background())

	require.Error(t, err)
	assert.True(t, merrors.HasCode(err, merrors.ErrCodeDimensionMismatch))
	assert.Empty(t, cols.created)
}

func TestQdrantIndex_EnsureCollection_AlreadyExistsRace(t *testing.T) {
	// Given: another writer creates the collection between list and create
	idx, cols, _ := newFakeQdrant(t, QdrantConfig{Dimensions: 3})
	cols.size = 3
	cols.createErr = status.Error(codes.AlreadyExists, "collection medical_reports already exists")

	// Then: ensure still succeeds
	assert.NoError(t, idx.EnsureCollection(context.Background()))
}

func TestQdrantIndex_APIKeySentAsMetadata(t *testing.T) {
	idx, cols, _ := newFakeQdrant(t, QdrantConfig{APIKey: "secret"})

	require.NoError(t, idx.EnsureCollection(context.Background()))

	assert.Equal(t, []string{"secret"}, cols.apiKeys)
}

// ============================================================================
// TS02: Points
// ============================================================================

func TestQdrantIndex_Upsert_ConvertsPayload(t *testing.T) {
	idx, _, pts := newFakeQdrant(t, QdrantConfig{})

	err := idx.Upsert(context.Background(), []Point{point("11111111-1111-1111-1111-111111111111", []float32{1, 0, 0},
		FieldContent, "Glucose 110", FieldChunkID, 2, "fasting", true, "ratio", 0.5)})
	require.NoError(t, err)

	require.Len(t, pts.upserts, 1)
	req := pts.upserts[0]
	assert.True(t, req.GetWait())
	require.Len(t, req.GetPoints(), 1)
	p := req.GetPoints()[0]
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", p.GetId().GetUuid())
	assert.Equal(t, []float32{1, 0, 0}, p.GetVectors().GetVector().GetData())
	assert.Equal(t, "Glucose 110", p.GetPayload()[FieldContent].GetStringValue())
	assert.Equal(t, int64(2), p.GetPayload()[FieldChunkID].GetIntegerValue())
	assert.True(t, p.GetPayload()["fasting"].GetBoolValue())
	assert.Equal(t, 0.5, p.GetPayload()["ratio"].GetDoubleValue())
}

func TestQdrantIndex_Upsert_DimensionMismatchNeverCallsServer(t *testing.T) {
	idx, cols, pts := newFakeQdrant(t, QdrantConfig{Dimensions: 3})

	err := idx.Upsert(context.Background(), []Point{point("a", []float32{1, 0})})

	assert.True(t, merrors.HasCode(err, merrors.ErrCodeDimensionMismatch))
	assert.Empty(t, cols.created)
	assert.Empty(t, pts.upserts)
}

func TestQdrantIndex_Search_FilterAndResults(t *testing.T) {
	idx, _, pts := newFakeQdrant(t, QdrantConfig{})
	pts.searchResp = &qdrant.SearchResponse{Result: []*qdrant.ScoredPoint{{
		Id:    uuidID("abc"),
		Score: 0.8,
		Payload: map[string]*qdrant.Value{
			FieldContent: {Kind: &qdrant.Value_StringValue{StringValue: "Hemoglobin 13.5"}},
			FieldChunkID: {Kind: &qdrant.Value_IntegerValue{IntegerValue: 1}},
		},
	}}}

	hits, err := idx.Search(context.Background(), []float32{0, 1, 0}, Filter{FieldUserID: "u1", FieldChunkID: 1, "ratio": 0.5}, 4)
	require.NoError(t, err)

	require.Len(t, hits, 1)
	assert.Equal(t, "abc", hits[0].ID)
	assert.InDelta(t, 0.8, hits[0].Score, 1e-6)
	assert.Equal(t, "Hemoglobin 13.5", hits[0].Content())
	assert.Equal(t, int64(1), hits[0].Payload[FieldChunkID])

	req := pts.searches[0]
	assert.Equal(t, uint64(4), req.GetLimit())
	must := req.GetFilter().GetMust()
	require.Len(t, must, 3)
	// Conditions are emitted in sorted key order: chunk_id, ratio, user_id.
	assert.Equal(t, int64(1), must[0].GetField().GetMatch().GetInteger())
	assert.Equal(t, 0.5, must[1].GetField().GetRange().GetGte())
	assert.Equal(t, 0.5, must[1].GetField().GetRange().GetLte())
	assert.Equal(t, "u1", must[2].GetField().GetMatch().GetKeyword())
}

func TestQdrantIndex_Search_NoFilterSendsNil(t *testing.T) {
	idx, _, pts := newFakeQdrant(t, QdrantConfig{})

	_, err := idx.Search(context.Background(), []float32{0, 1, 0}, nil, 1)
	require.NoError(t, err)

	assert.Nil(t, pts.searches[0].GetFilter())
}

func TestQdrantIndex_Scroll_PassesOffsetThrough(t *testing.T) {
	idx, _, pts := newFakeQdrant(t, QdrantConfig{})
	pts.scrollResp = &qdrant.ScrollResponse{
		Result:         []*qdrant.RetrievedPoint{{Id: uuidID("p1")}, {Id: uuidID("p2")}},
		NextPageOffset: uuidID("p3"),
	}

	page, next, err := idx.Scroll(context.Background(), Filter{FieldFilename: "r.pdf"}, 2, "p1")
	require.NoError(t, err)

	assert.Len(t, page, 2)
	assert.Equal(t, "p3", next)
	assert.Equal(t, "p1", pts.scrolls[0].GetOffset().GetUuid())
	assert.Equal(t, uint32(2), pts.scrolls[0].GetLimit())
}

func TestQdrantIndex_Delete_ByFilterSelector(t *testing.T) {
	idx, _, pts := newFakeQdrant(t, QdrantConfig{})

	require.NoError(t, idx.Delete(context.Background(), Filter{FieldFilename: "r.pdf", FieldUserID: "u1"}))

	require.Len(t, pts.deletes, 1)
	sel := pts.deletes[0].GetPoints().GetFilter()
	require.NotNil(t, sel)
	assert.Len(t, sel.GetMust(), 2)
}

func TestQdrantIndex_Delete_EmptyFilterRefused(t *testing.T) {
	idx, _, pts := newFakeQdrant(t, QdrantConfig{})

	err := idx.Delete(context.Background(), nil)

	assert.True(t, merrors.HasCode(err, merrors.ErrCodeInvalidInput))
	assert.Empty(t, pts.deletes)
}

func TestQdrantIndex_Count_IsExact(t *testing.T) {
	idx, _, pts := newFakeQdrant(t, QdrantConfig{})
	pts.countResult = 42

	n, err := idx.Count(context.Background(), Filter{FieldUserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, 42, n)
	assert.True(t, pts.counts[0].GetExact())
}

// ============================================================================
// TS03: Failure handling
// ============================================================================

func TestQdrantIndex_TransportFailures_OpenBreaker(t *testing.T) {
	// Given: a server that is unreachable
	idx, _, pts := newFakeQdrant(t, QdrantConfig{})
	require.NoError(t, idx.EnsureCollection(context.Background()))
	pts.searchErr = status.Error(codes.Unavailable, "connection refused")

	// When: I keep searching
	var err error
	for i := 0; i < 8; i++ {
		_, err = idx.Search(context.Background(), []float32{1, 0, 0}, nil, 1)
		require.Error(t, err)
		assert.True(t, merrors.HasCode(err, merrors.ErrCodeIndexUnavailable))
	}

	// Then: after five failures the breaker stops calling the server
	assert.Equal(t, 5, pts.searchCalls)
	assert.ErrorIs(t, err, merrors.ErrCircuitOpen)
}

func TestQdrantIndex_RejectedRequests_DoNotOpenBreaker(t *testing.T) {
	idx, _, pts := newFakeQdrant(t, QdrantConfig{})
	require.NoError(t, idx.EnsureCollection(context.Background()))
	pts.searchErr = status.Error(codes.InvalidArgument, "bad filter")

	for i := 0; i < 8; i++ {
		_, err := idx.Search(context.Background(), []float32{1, 0, 0}, nil, 1)
		require.Error(t, err)
		assert.False(t, errors.Is(err, merrors.ErrCircuitOpen))
	}

	assert.Equal(t, 8, pts.searchCalls)
}

func TestNewQdrantIndex_ValidatesConfig(t *testing.T) {
	_, err := NewQdrantIndex(QdrantConfig{Dimensions: 3})
	assert.True(t, merrors.HasCode(err, merrors.ErrCodeConfigInvalid))

	_, err = NewQdrantIndex(QdrantConfig{Collection: "c"})
	assert.True(t, merrors.HasCode(err, merrors.ErrCodeConfigInvalid))
}
