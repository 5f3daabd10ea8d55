// Package ingest provides the bulk-load path: spreadsheet parsing, grouping
// rows into employee records, and a throttled embed-and-store pipeline that
// runs either inline or behind a NATS consumer.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/AesBiarenti/STAJ22001/engine/domain"
	"github.com/AesBiarenti/STAJ22001/engine/provider"
	"github.com/AesBiarenti/STAJ22001/engine/stats"
	"github.com/AesBiarenti/STAJ22001/pkg/fn"
	"github.com/AesBiarenti/STAJ22001/pkg/metrics"
	"golang.org/x/time/rate"
)

// ExportLimit caps the number of records written to the stats export.
const ExportLimit = 10000

// EmployeeService is the record lifecycle the loader drives.
type EmployeeService interface {
	Create(ctx context.Context, rec domain.EmployeeRecord) (domain.EmployeeRecord, provider.EmbedResult, error)
	DeleteAll(ctx context.Context) error
	List(ctx context.Context, limit int) ([]domain.EmployeeRecord, error)
}

// Deps holds the external dependencies for the ingestion pipeline.
type Deps struct {
	Employees EmployeeService
	// Limiter throttles embedding calls; nil means unthrottled.
	Limiter *rate.Limiter
	Metrics *metrics.Registry
	// ExportPath, when set, receives the flat record list after a load.
	ExportPath string
	Logger     *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Stored is the outcome of storing one record.
type Stored struct {
	Record domain.EmployeeRecord
	Embed  provider.EmbedResult
}

// Report summarizes a bulk load.
type Report struct {
	Added       int      `json:"added"`
	Failed      int      `json:"failed"`
	FailedNames []string `json:"failedNames,omitempty"`
	// Degraded counts records stored with a fallback vector.
	Degraded int `json:"degraded"`
}

// OK reports whether every record was stored.
func (r Report) OK() bool { return r.Failed == 0 }

// Message is the user-facing summary of the load.
func (r Report) Message() string {
	msg := fmt.Sprintf("%d çalışan eklendi.", r.Added)
	if r.Failed > 0 {
		msg += fmt.Sprintf(" %d kayıt eklenemedi: %s", r.Failed, strings.Join(r.FailedNames, ", "))
	}
	return msg
}

// --- Pipeline Stages ---

// Validate checks a grouped record via domain validation.
var Validate fn.Stage[domain.EmployeeRecord, domain.EmployeeRecord] = func(_ context.Context, rec domain.EmployeeRecord) fn.Result[domain.EmployeeRecord] {
	if err := domain.ValidateRecord(rec); err != nil {
		return fn.Err[domain.EmployeeRecord](err)
	}
	return fn.Ok(rec)
}

// NewThrottle creates a stage that waits for the limiter before passing the
// record on. A nil limiter passes through.
func NewThrottle[T any](limiter *rate.Limiter) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		if limiter == nil {
			return fn.Ok(t)
		}
		if err := limiter.Wait(ctx); err != nil {
			return fn.Err[T](fmt.Errorf("throttle: %w", err))
		}
		return fn.Ok(t)
	}
}

// NewStore creates a Store stage that embeds and stores a record.
func NewStore(svc EmployeeService) fn.Stage[domain.EmployeeRecord, Stored] {
	return func(ctx context.Context, rec domain.EmployeeRecord) fn.Result[Stored] {
		out, emb, err := svc.Create(ctx, rec)
		if err != nil {
			return fn.Err[Stored](fmt.Errorf("store %q: %w", rec.Name, err))
		}
		return fn.Ok(Stored{Record: out, Embed: emb})
	}
}

// LoggedTap returns a stage that logs entry/exit with duration.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return func(ctx context.Context, t T) fn.Result[T] {
		log.Debug("stage.enter", "stage", name)
		start := time.Now()
		defer func() {
			log.Debug("stage.exit", "stage", name, "duration", time.Since(start))
		}()
		return fn.Ok(t)
	}
}

// NewPipeline constructs the per-record pipeline: Validate → Throttle → Store.
func NewPipeline(deps Deps) fn.Stage[domain.EmployeeRecord, Stored] {
	log := deps.logger()

	validated := fn.Then(LoggedTap[domain.EmployeeRecord]("validate", log), Validate)
	throttled := fn.Then(validated, fn.Then(LoggedTap[domain.EmployeeRecord]("throttle", log), NewThrottle[domain.EmployeeRecord](deps.Limiter)))
	stored := fn.Then(throttled, fn.Then(LoggedTap[domain.EmployeeRecord]("store", log), NewStore(deps.Employees)))

	return fn.TracedStage("ingest.record", stored)
}

// Load runs every record through the pipeline, one at a time.
func Load(ctx context.Context, deps Deps, records []domain.EmployeeRecord) Report {
	log := deps.logger()
	pipeline := NewPipeline(deps)

	var rep Report
	for _, rec := range records {
		out, err := pipeline(ctx, rec).Unwrap()
		if err != nil {
			log.Error("ingest: record failed", "name", rec.Name, "err", err)
			rep.Failed++
			rep.FailedNames = append(rep.FailedNames, rec.Name)
			count(deps.Metrics, "failed")
			continue
		}
		rep.Added++
		count(deps.Metrics, "added")
		if !out.Embed.Succeeded {
			rep.Degraded++
			count(deps.Metrics, "degraded")
		}
	}
	log.Info("ingest: load done", "added", rep.Added, "failed", rep.Failed, "degraded", rep.Degraded)
	return rep
}

// Upload replaces the stored records with the contents of a spreadsheet:
// parse and validate, clear the store, load, then refresh the export.
// Parse errors leave the store untouched.
func Upload(ctx context.Context, deps Deps, filename string, r io.Reader) (Report, error) {
	rows, err := Parse(filename, r)
	if err != nil {
		return Report{}, err
	}
	records := Group(rows)
	if err := deps.Employees.DeleteAll(ctx); err != nil {
		return Report{}, fmt.Errorf("ingest: clear: %w", err)
	}
	rep := Load(ctx, deps, records)
	if err := Export(ctx, deps); err != nil {
		return rep, err
	}
	return rep, nil
}

// Export writes every stored record to deps.ExportPath. It is a no-op
// without a path.
func Export(ctx context.Context, deps Deps) error {
	if deps.ExportPath == "" {
		return nil
	}
	all, err := deps.Employees.List(ctx, ExportLimit)
	if err != nil {
		return fmt.Errorf("ingest: export: %w", err)
	}
	return stats.Export(deps.ExportPath, all)
}

func count(m *metrics.Registry, result string) {
	if m == nil {
		return
	}
	m.Counter(metrics.WithLabels("mesai_ingest_records_total", "result", result), "Ingested records by outcome").Inc()
}
