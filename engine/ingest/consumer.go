package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/AesBiarenti/STAJ22001/engine/domain"
	"github.com/AesBiarenti/STAJ22001/pkg/natsutil"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	// IngestSubject is the NATS subject for grouped records awaiting storage.
	IngestSubject = "mesai.ingest"
	// DLQSubject is the dead letter queue subject for failed messages.
	DLQSubject = "mesai.ingest.dlq"
	// MaxRetries before sending to DLQ.
	MaxRetries = 3
)

// Job is one grouped record on the ingest subject.
type Job struct {
	ID     string                `json:"id"`
	Record domain.EmployeeRecord `json:"record"`
}

// DeadLetter is published to the DLQ on repeated or permanent failure.
type DeadLetter struct {
	Job     Job    `json:"job"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// Enqueue publishes each record as a Job and returns the job ids.
func Enqueue(ctx context.Context, nc *nats.Conn, records []domain.EmployeeRecord) ([]string, error) {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		job := Job{ID: uuid.NewString(), Record: rec}
		if err := natsutil.Publish(ctx, nc, IngestSubject, job); err != nil {
			return ids, fmt.Errorf("ingest: enqueue %q: %w", rec.Name, err)
		}
		ids = append(ids, job.ID)
	}
	return ids, nil
}

// UploadAsync validates a spreadsheet, clears the store and hands the grouped
// records to the consumer. It returns the number of queued records.
func UploadAsync(ctx context.Context, deps Deps, nc *nats.Conn, filename string, r io.Reader) (int, error) {
	rows, err := Parse(filename, r)
	if err != nil {
		return 0, err
	}
	records := Group(rows)
	if err := deps.Employees.DeleteAll(ctx); err != nil {
		return 0, fmt.Errorf("ingest: clear: %w", err)
	}
	ids, err := Enqueue(ctx, nc, records)
	return len(ids), err
}

// StartConsumer subscribes to IngestSubject and runs each job through the
// pipeline. Failed jobs are re-published with an incremented retry count and
// sent to the DLQ after MaxRetries; validation failures go to the DLQ at once.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	pipeline := NewPipeline(deps)
	log := deps.logger()

	return nc.Subscribe(IngestSubject, func(msg *nats.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			log.Error("ingest: unmarshal failed", "err", err)
			return
		}
		ctx := natsutil.Context(msg)
		retries := natsutil.Retries(msg)

		out, pipeErr := pipeline(ctx, job.Record).Unwrap()
		if pipeErr != nil {
			retries++
			log.Error("ingest: pipeline failed",
				"err", pipeErr,
				"job", job.ID,
				"name", job.Record.Name,
				"retry", retries,
			)
			count(deps.Metrics, "failed")

			if retries >= MaxRetries || domain.IsValidation(pipeErr) {
				dl := DeadLetter{Job: job, Error: pipeErr.Error(), Retries: retries}
				if err := natsutil.Publish(ctx, nc, DLQSubject, dl); err != nil {
					log.Error("ingest: DLQ publish failed", "err", err)
				}
			} else if err := natsutil.Republish(ctx, nc, IngestSubject, msg.Data, retries); err != nil {
				log.Error("ingest: retry publish failed", "err", err)
			}
		} else {
			log.Info("ingest: success", "job", job.ID, "id", out.Record.ID, "embedded", out.Embed.Succeeded)
			count(deps.Metrics, "added")
			if !out.Embed.Succeeded {
				count(deps.Metrics, "degraded")
			}
			if err := Export(ctx, deps); err != nil {
				log.Warn("ingest: export refresh failed", "err", err)
			}
		}

		// Ack if JetStream.
		if msg.Reply != "" {
			_ = msg.Ack()
		}
	})
}
