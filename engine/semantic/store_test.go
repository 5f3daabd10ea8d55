package semantic

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// --- Mocks ---

type mockPoints struct {
	upsertResp *pb.PointsOperationResponse
	upsertErr  error
	deleteResp *pb.PointsOperationResponse
	deleteErr  error
	getResp    *pb.GetResponse
	getErr     error
	scrollResp []*pb.ScrollResponse
	scrollErr  error
	searchResp *pb.SearchResponse
	searchErr  error

	lastUpsert *pb.UpsertPoints
	lastDelete *pb.DeletePoints
	lastSearch *pb.SearchPoints
	scrolls    []*pb.ScrollPoints
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.lastUpsert = in
	return m.upsertResp, m.upsertErr
}
func (m *mockPoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.lastDelete = in
	return m.deleteResp, m.deleteErr
}
func (m *mockPoints) Get(_ context.Context, _ *pb.GetPoints, _ ...grpc.CallOption) (*pb.GetResponse, error) {
	return m.getResp, m.getErr
}
func (m *mockPoints) Scroll(_ context.Context, in *pb.ScrollPoints, _ ...grpc.CallOption) (*pb.ScrollResponse, error) {
	m.scrolls = append(m.scrolls, in)
	if m.scrollErr != nil {
		return nil, m.scrollErr
	}
	i := len(m.scrolls) - 1
	if i >= len(m.scrollResp) {
		return &pb.ScrollResponse{}, nil
	}
	return m.scrollResp[i], nil
}
func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.lastSearch = in
	return m.searchResp, m.searchErr
}

type mockCollections struct {
	listResp   *pb.ListCollectionsResponse
	listErr    error
	createResp *pb.CollectionOperationResponse
	createErr  error
	deleteResp *pb.CollectionOperationResponse
	deleteErr  error
	created    *pb.CreateCollection
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}
func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = in
	return m.createResp, m.createErr
}
func (m *mockCollections) Delete(_ context.Context, _ *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	return m.deleteResp, m.deleteErr
}

func strVal(s string) *pb.Value { return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}} }

// --- Tests ---

func TestNewWithClients(t *testing.T) {
	vs := NewWithClients(&mockPoints{}, &mockCollections{}, "mesai")
	if vs == nil {
		t.Fatal("expected non-nil")
	}
	if vs.Collection() != "mesai" {
		t.Fatalf("collection = %q", vs.Collection())
	}
	if err := vs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNew_Success(t *testing.T) {
	vs, err := New("localhost:0", "mesai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vs.Close()
}

func TestEnsureCollection_AlreadyListed(t *testing.T) {
	cols := &mockCollections{
		listResp: &pb.ListCollectionsResponse{
			Collections: []*pb.CollectionDescription{{Name: "mesai"}},
		},
	}
	vs := NewWithClients(&mockPoints{}, cols, "mesai")
	if err := vs.EnsureCollection(context.Background(), 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols.created != nil {
		t.Fatal("should not create a listed collection")
	}
}

func TestEnsureCollection_Creates(t *testing.T) {
	cols := &mockCollections{
		listResp:   &pb.ListCollectionsResponse{Collections: []*pb.CollectionDescription{{Name: "other"}}},
		createResp: &pb.CollectionOperationResponse{Result: true},
	}
	vs := NewWithClients(&mockPoints{}, cols, "mesai")
	if err := vs.EnsureCollection(context.Background(), 384); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	params := cols.created.GetVectorsConfig().GetParams()
	if params.GetSize() != 384 || params.GetDistance() != pb.Distance_Cosine {
		t.Fatalf("unexpected params: %v", params)
	}
}

func TestEnsureCollection_AlreadyExistsIsSuccess(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"grpc code", status.Error(codes.AlreadyExists, "collection mesai exists")},
		{"message", errors.New("Wrong input: Collection `mesai` already exists!")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols := &mockCollections{
				listResp:  &pb.ListCollectionsResponse{},
				createErr: tt.err,
			}
			vs := NewWithClients(&mockPoints{}, cols, "mesai")
			if err := vs.EnsureCollection(context.Background(), 4); err != nil {
				t.Fatalf("already exists should be success, got %v", err)
			}
		})
	}
}

func TestEnsureCollection_ListError(t *testing.T) {
	cols := &mockCollections{listErr: errors.New("rpc fail")}
	vs := NewWithClients(&mockPoints{}, cols, "mesai")
	if err := vs.EnsureCollection(context.Background(), 4); err == nil {
		t.Fatal("expected error")
	}
}

func TestEnsureCollection_CreateError(t *testing.T) {
	cols := &mockCollections{
		listResp:  &pb.ListCollectionsResponse{},
		createErr: status.Error(codes.Unavailable, "down"),
	}
	vs := NewWithClients(&mockPoints{}, cols, "mesai")
	if err := vs.EnsureCollection(context.Background(), 4); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeleteCollection(t *testing.T) {
	vs := NewWithClients(&mockPoints{}, &mockCollections{deleteResp: &pb.CollectionOperationResponse{Result: true}}, "mesai")
	if err := vs.DeleteCollection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vs = NewWithClients(&mockPoints{}, &mockCollections{deleteErr: errors.New("fail")}, "mesai")
	if err := vs.DeleteCollection(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestUpsert_Empty(t *testing.T) {
	pts := &mockPoints{}
	vs := NewWithClients(pts, &mockCollections{}, "mesai")
	if err := vs.Upsert(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pts.lastUpsert != nil {
		t.Fatal("empty upsert should not call qdrant")
	}
}

func TestUpsert_Success(t *testing.T) {
	pts := &mockPoints{upsertResp: &pb.PointsOperationResponse{}}
	vs := NewWithClients(pts, &mockCollections{}, "mesai")

	records := []VectorRecord{{
		ID:        42,
		Embedding: []float32{1, 0, 0, 0},
		Payload: map[string]any{
			"isim":          "ali",
			"toplam_mesai":  []any{40.0},
			"tarih_araligi": []any{"2024-01-01/2024-01-07"},
			"gunluk_mesai":  []any{map[string]any{"pazartesi": 8.0}},
		},
	}}
	if err := vs.Upsert(context.Background(), records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := pts.lastUpsert
	if !req.GetWait() || req.GetCollectionName() != "mesai" {
		t.Fatalf("unexpected request: %v", req)
	}
	p := req.GetPoints()[0]
	if p.GetId().GetNum() != 42 {
		t.Errorf("id = %v", p.GetId())
	}
	daily := p.GetPayload()["gunluk_mesai"].GetListValue().GetValues()[0].GetStructValue().GetFields()
	if daily["pazartesi"].GetDoubleValue() != 8 {
		t.Errorf("nested payload lost: %v", daily)
	}
}

func TestUpsert_Error(t *testing.T) {
	vs := NewWithClients(&mockPoints{upsertErr: errors.New("fail")}, &mockCollections{}, "mesai")
	if err := vs.Upsert(context.Background(), []VectorRecord{{ID: 1, Embedding: []float32{1}}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestDelete_ByIDs(t *testing.T) {
	pts := &mockPoints{deleteResp: &pb.PointsOperationResponse{}}
	vs := NewWithClients(pts, &mockCollections{}, "mesai")
	if err := vs.Delete(context.Background(), 7, 9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := pts.lastDelete.GetPoints().GetPoints().GetIds()
	if len(ids) != 2 || ids[0].GetNum() != 7 || ids[1].GetNum() != 9 {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestDelete_NoIDs(t *testing.T) {
	pts := &mockPoints{}
	vs := NewWithClients(pts, &mockCollections{}, "mesai")
	if err := vs.Delete(context.Background()); err != nil {
		t.Fatal(err)
	}
	if pts.lastDelete != nil {
		t.Fatal("no ids should not call qdrant")
	}
}

func TestDelete_Error(t *testing.T) {
	vs := NewWithClients(&mockPoints{deleteErr: errors.New("fail")}, &mockCollections{}, "mesai")
	if err := vs.Delete(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeleteAll_EmptyFilter(t *testing.T) {
	pts := &mockPoints{deleteResp: &pb.PointsOperationResponse{}}
	vs := NewWithClients(pts, &mockCollections{}, "mesai")
	if err := vs.DeleteAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := pts.lastDelete.GetPoints().GetFilter()
	if f == nil || len(f.GetMust()) != 0 {
		t.Fatalf("expected empty filter, got %v", f)
	}
}

func TestGet(t *testing.T) {
	pts := &mockPoints{getResp: &pb.GetResponse{Result: []*pb.RetrievedPoint{{
		Id:      numID(5),
		Payload: map[string]*pb.Value{"isim": strVal("veli")},
	}}}}
	vs := NewWithClients(pts, &mockCollections{}, "mesai")
	p, err := vs.Get(context.Background(), 5)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.ID != 5 || p.Payload["isim"] != "veli" {
		t.Fatalf("unexpected point %+v", p)
	}
}

func TestGet_NotFound(t *testing.T) {
	vs := NewWithClients(&mockPoints{getResp: &pb.GetResponse{}}, &mockCollections{}, "mesai")
	if _, err := vs.Get(context.Background(), 5); !errors.Is(err, ErrPointNotFound) {
		t.Fatalf("expected ErrPointNotFound, got %v", err)
	}
	vs = NewWithClients(&mockPoints{getErr: errors.New("down")}, &mockCollections{}, "mesai")
	if _, err := vs.Get(context.Background(), 5); err == nil || errors.Is(err, ErrPointNotFound) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestScroll_Pages(t *testing.T) {
	page1 := make([]*pb.RetrievedPoint, 100)
	for i := range page1 {
		page1[i] = &pb.RetrievedPoint{Id: numID(uint64(i + 1))}
	}
	pts := &mockPoints{scrollResp: []*pb.ScrollResponse{
		{Result: page1, NextPageOffset: numID(101)},
		{Result: []*pb.RetrievedPoint{{Id: numID(101)}, {Id: numID(102)}}},
	}}
	vs := NewWithClients(pts, &mockCollections{}, "mesai")
	got, err := vs.Scroll(context.Background(), 150)
	if err != nil {
		t.Fatalf("Scroll: %v", err)
	}
	if len(got) != 102 {
		t.Fatalf("expected 102 points, got %d", len(got))
	}
	if got[0].ID != 1 || got[101].ID != 102 {
		t.Errorf("order not preserved: first=%d last=%d", got[0].ID, got[101].ID)
	}
	if len(pts.scrolls) != 2 || pts.scrolls[1].GetOffset().GetNum() != 101 || pts.scrolls[1].GetLimit() != 50 {
		t.Errorf("unexpected second page request: %v", pts.scrolls)
	}
}

func TestScroll_DefaultLimit(t *testing.T) {
	pts := &mockPoints{scrollResp: []*pb.ScrollResponse{{Result: []*pb.RetrievedPoint{{Id: numID(1)}}}}}
	vs := NewWithClients(pts, &mockCollections{}, "mesai")
	if _, err := vs.Scroll(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
	if pts.scrolls[0].GetLimit() != 100 {
		t.Errorf("default limit = %d", pts.scrolls[0].GetLimit())
	}
}

func TestScroll_Error(t *testing.T) {
	vs := NewWithClients(&mockPoints{scrollErr: errors.New("down")}, &mockCollections{}, "mesai")
	if _, err := vs.Scroll(context.Background(), 10); err == nil {
		t.Fatal("expected error")
	}
}

func TestSearch_Success(t *testing.T) {
	pts := &mockPoints{searchResp: &pb.SearchResponse{Result: []*pb.ScoredPoint{
		{Id: numID(1), Score: 0.95, Payload: map[string]*pb.Value{"isim": strVal("ali")}},
		{Id: numID(2), Score: 0.81, Payload: map[string]*pb.Value{"isim": strVal("ayse")}},
	}}}
	vs := NewWithClients(pts, &mockCollections{}, "mesai")
	results, err := vs.Search(context.Background(), []float32{1, 0}, 0.7, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 || results[0].Score != 0.95 || results[0].Payload["isim"] != "ali" {
		t.Fatalf("unexpected results %+v", results)
	}
	if pts.lastSearch.GetScoreThreshold() != 0.7 || pts.lastSearch.GetLimit() != 10 {
		t.Errorf("threshold/limit not forwarded: %v", pts.lastSearch)
	}
}

func TestSearch_Empty(t *testing.T) {
	vs := NewWithClients(&mockPoints{searchResp: &pb.SearchResponse{}}, &mockCollections{}, "mesai")
	results, err := vs.Search(context.Background(), []float32{1}, 0.7, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results == nil || len(results) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", results)
	}
}

func TestSearch_Error(t *testing.T) {
	vs := NewWithClients(&mockPoints{searchErr: errors.New("fail")}, &mockCollections{}, "mesai")
	if _, err := vs.Search(context.Background(), []float32{1}, 0.7, 5); err == nil {
		t.Fatal("expected error")
	}
}
