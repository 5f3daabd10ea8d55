package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/AesBiarenti/STAJ22001/engine/domain"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	base := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	s, err := Open(context.Background(), Options{
		Path: filepath.Join(t.TempDir(), "sub", "history.db"),
		Now: func() time.Time {
			n++
			return base.Add(time.Duration(n) * time.Minute)
		},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecord(t *testing.T) {
	s := openTest(t)
	e, err := s.Record(context.Background(), Entry{Prompt: "  ali kaç saat çalıştı?  ", Response: "40 saat", Duration: 1.5, Succeeded: true})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if e.ID == "" || e.CreatedAt.IsZero() || e.Prompt != "ali kaç saat çalıştı?" {
		t.Fatalf("unexpected entry: %+v", e)
	}

	p, err := s.List(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(p.Logs) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(p.Logs))
	}
	got := p.Logs[0]
	if got.ID != e.ID || got.Response != "40 saat" || got.Duration != 1.5 || !got.Succeeded || !got.CreatedAt.Equal(e.CreatedAt) {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, e)
	}
}

func TestRecord_EmptyPrompt(t *testing.T) {
	s := openTest(t)
	if _, err := s.Record(context.Background(), Entry{Prompt: "   "}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRecord_ErrorKind(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if _, err := s.Record(ctx, Entry{Prompt: "x", ErrorKind: domain.KindTimeout}); err != nil {
		t.Fatal(err)
	}
	p, _ := s.List(ctx, 1, 1)
	if p.Logs[0].ErrorKind != domain.KindTimeout || p.Logs[0].Succeeded {
		t.Fatalf("unexpected entry: %+v", p.Logs[0])
	}
}

func TestList_Pagination(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	for i := 1; i <= 25; i++ {
		if _, err := s.Record(ctx, Entry{Prompt: fmt.Sprintf("soru %d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		page, limit int
		wantLen     int
		wantFirst   string
		wantPage    int
		wantLimit   int
		wantPages   int
	}{
		{1, 10, 10, "soru 25", 1, 10, 3},
		{3, 10, 5, "soru 5", 3, 10, 3},
		{4, 10, 0, "", 4, 10, 3},
		{0, 0, 10, "soru 25", 1, DefaultPageSize, 3},
		{1, 1000, 25, "soru 25", 1, MaxPageSize, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page%d_limit%d", tt.page, tt.limit), func(t *testing.T) {
			p, err := s.List(ctx, tt.page, tt.limit)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(p.Logs) != tt.wantLen {
				t.Fatalf("got %d entries, want %d", len(p.Logs), tt.wantLen)
			}
			if tt.wantLen > 0 && p.Logs[0].Prompt != tt.wantFirst {
				t.Errorf("first = %q, want %q", p.Logs[0].Prompt, tt.wantFirst)
			}
			want := Pagination{CurrentPage: tt.wantPage, TotalPages: tt.wantPages, TotalItems: 25, ItemsPerPage: tt.wantLimit}
			if p.Pagination != want {
				t.Errorf("pagination = %+v, want %+v", p.Pagination, want)
			}
		})
	}
}

func TestList_Empty(t *testing.T) {
	s := openTest(t)
	p, err := s.List(context.Background(), 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if p.Logs == nil || len(p.Logs) != 0 || p.Pagination.TotalPages != 0 {
		t.Fatalf("unexpected empty page: %+v", p)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(context.Background(), Options{}); err == nil {
		t.Fatal("expected error")
	}
}
