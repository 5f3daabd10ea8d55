package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AesBiarenti/STAJ22001/engine/domain"
	"github.com/AesBiarenti/STAJ22001/pkg/natsutil"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func startTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

func deadLetters(t *testing.T, nc *nats.Conn) chan DeadLetter {
	t.Helper()
	ch := make(chan DeadLetter, 4)
	sub, err := natsutil.Subscribe(nc, DLQSubject, func(_ context.Context, dl DeadLetter) { ch <- dl })
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sub.Unsubscribe() })
	return ch
}

func TestConsumer_Success(t *testing.T) {
	nc := startTestNATS(t)
	done := make(chan domain.EmployeeRecord, 2)
	svc := &fakeService{onCreate: func(r domain.EmployeeRecord) { done <- r }}

	sub, err := StartConsumer(nc, Deps{Employees: svc})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	ids, err := Enqueue(context.Background(), nc, grouped("ali", "veli"))
	if err != nil || len(ids) != 2 || ids[0] == ids[1] {
		t.Fatalf("enqueue: %v %v", ids, err)
	}
	for _, want := range []string{"ali", "veli"} {
		select {
		case r := <-done:
			if r.Name != want {
				t.Fatalf("got %q, want %q", r.Name, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for record")
		}
	}
}

func TestConsumer_RetriesThenDLQ(t *testing.T) {
	nc := startTestNATS(t)
	dlq := deadLetters(t, nc)
	svc := &fakeService{fail: map[string]error{"bozuk": errors.New("qdrant down")}}

	sub, err := StartConsumer(nc, Deps{Employees: svc})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()
	nc.Flush()

	if _, err := Enqueue(context.Background(), nc, grouped("bozuk")); err != nil {
		t.Fatal(err)
	}
	select {
	case dl := <-dlq:
		if dl.Retries != MaxRetries || dl.Job.Record.Name != "bozuk" || !strings.Contains(dl.Error, "qdrant down") {
			t.Fatalf("unexpected dead letter: %+v", dl)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for dead letter")
	}
}

func TestConsumer_ValidationGoesStraightToDLQ(t *testing.T) {
	nc := startTestNATS(t)
	dlq := deadLetters(t, nc)
	sub, err := StartConsumer(nc, Deps{Employees: &fakeService{}})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()
	nc.Flush()

	if _, err := Enqueue(context.Background(), nc, []domain.EmployeeRecord{{Name: "ali"}}); err != nil {
		t.Fatal(err)
	}
	select {
	case dl := <-dlq:
		if dl.Retries != 1 {
			t.Fatalf("expected no retries for invalid record, got %d", dl.Retries)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for dead letter")
	}
}

func TestUploadAsync(t *testing.T) {
	nc := startTestNATS(t)
	ch := make(chan *nats.Msg, 4)
	sub, err := nc.ChanSubscribe(IngestSubject, ch)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	svc := &fakeService{}
	n, err := UploadAsync(context.Background(), Deps{Employees: svc}, nc, "m.csv", strings.NewReader(sheet))
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if n != 2 || svc.cleared != 1 {
		t.Fatalf("expected 2 queued and one clear, got %d / %d", n, svc.cleared)
	}
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no job published")
	}

	if _, err := UploadAsync(context.Background(), Deps{Employees: svc}, nc, "m.csv", strings.NewReader("x\n")); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
