package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AesBiarenti/STAJ22001/engine/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// --- mocks ---

type mockResult struct {
	records []*neo4j.Record
	idx     int
	err     error
}

func newMockResult(recs ...*neo4j.Record) *mockResult {
	return &mockResult{records: recs, idx: -1}
}

func (r *mockResult) Next(_ context.Context) bool {
	r.idx++
	return r.idx < len(r.records)
}

func (r *mockResult) Record() *neo4j.Record { return r.records[r.idx] }
func (r *mockResult) Err() error            { return r.err }

type call struct {
	cypher string
	params map[string]any
}

type mockSession struct {
	runResult CypherResult
	runErr    error
	failOn    string // fail statements containing this text
	writeErr  error
	calls     []call
	closed    bool
}

func (s *mockSession) Run(_ context.Context, cypher string, params map[string]any) (CypherResult, error) {
	s.calls = append(s.calls, call{cypher, params})
	if s.runErr != nil {
		return nil, s.runErr
	}
	if s.failOn != "" && strings.Contains(cypher, s.failOn) {
		return nil, errors.New("statement failed")
	}
	if s.runResult != nil {
		return s.runResult, nil
	}
	return newMockResult(), nil
}

func (s *mockSession) ExecuteWrite(_ context.Context, work func(tx CypherRunner) (any, error)) (any, error) {
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	return work(s)
}

func (s *mockSession) Close(_ context.Context) error {
	s.closed = true
	return nil
}

type mockOpener struct {
	session *mockSession
}

func (o *mockOpener) OpenSession(_ context.Context) CypherSession { return o.session }

func record(keys []string, values ...any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

// --- tests ---

func TestNewGraphStore(t *testing.T) {
	if New(nil) == nil {
		t.Fatal("expected non-nil GraphStore")
	}
}

func TestEnsureSchema(t *testing.T) {
	sess := &mockSession{}
	gs := NewWithOpener(&mockOpener{session: sess})
	if err := gs.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if len(sess.calls) != 2 {
		t.Fatalf("expected 2 constraint statements, got %d", len(sess.calls))
	}
	if !sess.closed {
		t.Fatal("session not closed")
	}
}

func TestEnsureSchema_Error(t *testing.T) {
	sess := &mockSession{runErr: errors.New("boom")}
	gs := NewWithOpener(&mockOpener{session: sess})
	if err := gs.EnsureSchema(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSaveEmployee_Statements(t *testing.T) {
	sess := &mockSession{}
	gs := NewWithOpener(&mockOpener{session: sess})
	rec := domain.EmployeeRecord{
		ID:   42,
		Name: "ali",
		Periods: []domain.Period{
			{DateRange: "2024-01-01/2024-01-07", TotalHours: 40, DailyHours: map[string]float64{"pazartesi": 8}},
			{DateRange: "2024-01-08/2024-01-14", TotalHours: 38},
		},
	}
	if err := gs.SaveEmployee(context.Background(), rec); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	// merge node, clear edges, one statement per period
	if len(sess.calls) != 4 {
		t.Fatalf("expected 4 statements, got %d", len(sess.calls))
	}
	if sess.calls[0].params["id"] != int64(42) || sess.calls[0].params["total"] != 78.0 {
		t.Fatalf("unexpected node params: %v", sess.calls[0].params)
	}
	p := sess.calls[2].params
	if p["range"] != "2024-01-01/2024-01-07" || p["idx"] != 0 || p["daily"] != `{"pazartesi":8}` {
		t.Fatalf("unexpected period params: %v", p)
	}
	if sess.calls[3].params["idx"] != 1 {
		t.Fatalf("expected second period idx=1, got %v", sess.calls[3].params["idx"])
	}
}

func TestSaveEmployee_Errors(t *testing.T) {
	rec := domain.EmployeeRecord{ID: 1, Name: "ali", Periods: []domain.Period{{DateRange: "x", TotalHours: 1}}}

	gs := NewWithOpener(&mockOpener{session: &mockSession{writeErr: errors.New("tx fail")}})
	if err := gs.SaveEmployee(context.Background(), rec); err == nil {
		t.Fatal("expected tx error")
	}

	for _, stmt := range []string{"SET e.name", "DELETE w", "MERGE (p:Period"} {
		gs := NewWithOpener(&mockOpener{session: &mockSession{failOn: stmt}})
		if err := gs.SaveEmployee(context.Background(), rec); err == nil {
			t.Fatalf("expected error when %q fails", stmt)
		}
	}
}

func TestDeleteEmployee(t *testing.T) {
	sess := &mockSession{}
	gs := NewWithOpener(&mockOpener{session: sess})
	if err := gs.DeleteEmployee(context.Background(), 7); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if sess.calls[0].params["id"] != int64(7) {
		t.Fatalf("unexpected params: %v", sess.calls[0].params)
	}

	gs = NewWithOpener(&mockOpener{session: &mockSession{runErr: errors.New("fail")}})
	if err := gs.DeleteEmployee(context.Background(), 7); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeleteAll(t *testing.T) {
	sess := &mockSession{}
	gs := NewWithOpener(&mockOpener{session: sess})
	if err := gs.DeleteAll(context.Background()); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if len(sess.calls) != 2 {
		t.Fatalf("expected employee + orphan period cleanup, got %d", len(sess.calls))
	}

	gs = NewWithOpener(&mockOpener{session: &mockSession{failOn: "Period"}})
	if err := gs.DeleteAll(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestPeriods(t *testing.T) {
	keys := []string{"name", "range", "hours"}
	sess := &mockSession{runResult: newMockResult(
		record(keys, "ali", "2024-01-01/2024-01-07", 40.0),
		record(keys, "ali", "2024-01-08/2024-01-14", int64(38)),
	)}
	gs := NewWithOpener(&mockOpener{session: sess})

	rows, err := gs.Periods(context.Background(), []string{"ALİ", "Ali"})
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if len(rows) != 2 || rows[1].Hours != 38 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	kw := sess.calls[0].params["keywords"].([]string)
	if kw[1] != "ali" {
		t.Fatalf("keywords not lowercased: %v", kw)
	}
	if sess.calls[0].params["limit"] != maxContextRows {
		t.Fatalf("expected limit %d", maxContextRows)
	}
}

func TestPeriods_NoKeywords(t *testing.T) {
	sess := &mockSession{}
	gs := NewWithOpener(&mockOpener{session: sess})
	rows, err := gs.Periods(context.Background(), nil)
	if err != nil || rows != nil {
		t.Fatalf("expected nil, nil; got %v, %v", rows, err)
	}
	if len(sess.calls) != 0 {
		t.Fatal("no query expected without keywords")
	}
}

func TestPeriods_Errors(t *testing.T) {
	gs := NewWithOpener(&mockOpener{session: &mockSession{runErr: errors.New("down")}})
	if _, err := gs.Periods(context.Background(), []string{"ali"}); err == nil {
		t.Fatal("expected run error")
	}

	res := newMockResult()
	res.err = errors.New("stream broke")
	gs = NewWithOpener(&mockOpener{session: &mockSession{runResult: res}})
	if _, err := gs.Periods(context.Background(), []string{"ali"}); err == nil {
		t.Fatal("expected result error")
	}
}

func TestPeriodContext(t *testing.T) {
	keys := []string{"name", "range", "hours"}
	sess := &mockSession{runResult: newMockResult(record(keys, "veli", "2024-03", 12.5))}
	gs := NewWithOpener(&mockOpener{session: sess})

	text, err := gs.PeriodContext(context.Background(), []string{"veli"})
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if !strings.Contains(text, "- veli: 2024-03 (12.5 saat)") {
		t.Fatalf("unexpected context: %q", text)
	}

	gs = NewWithOpener(&mockOpener{session: &mockSession{}})
	text, err = gs.PeriodContext(context.Background(), []string{"nobody"})
	if err != nil || text != "" {
		t.Fatalf("expected empty context, got %q, %v", text, err)
	}
}

func TestNodeCounts(t *testing.T) {
	keys := []string{"type", "count"}
	sess := &mockSession{runResult: newMockResult(
		record(keys, "Employee", int64(3)),
		record(keys, "Period", int64(5)),
		record(keys, nil, int64(1)),
	)}
	gs := NewWithOpener(&mockOpener{session: sess})

	counts, err := gs.NodeCounts(context.Background())
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if counts["Employee"] != 3 || counts["Period"] != 5 || len(counts) != 2 {
		t.Fatalf("unexpected counts: %v", counts)
	}

	gs = NewWithOpener(&mockOpener{session: &mockSession{runErr: errors.New("fail")}})
	if _, err := gs.NodeCounts(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
