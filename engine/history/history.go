// Package history keeps a log of answered questions in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AesBiarenti/STAJ22001/engine/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	// DefaultPageSize is used when List is called without a limit.
	DefaultPageSize = 10
	// MaxPageSize caps the limit accepted by List.
	MaxPageSize = 100

	defaultBusyTimeout = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS query_log (
	id         TEXT PRIMARY KEY,
	prompt     TEXT NOT NULL,
	response   TEXT NOT NULL,
	duration   REAL NOT NULL,
	succeeded  INTEGER NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_query_log_created ON query_log(created_at DESC);
`

// Entry is one logged question and its answer.
type Entry struct {
	ID       string `json:"id"`
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
	// Duration is in seconds.
	Duration  float64          `json:"duration"`
	Succeeded bool             `json:"success"`
	ErrorKind domain.ErrorKind `json:"error,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Pagination describes the position of a Page.
type Pagination struct {
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
	TotalItems   int `json:"totalItems"`
	ItemsPerPage int `json:"itemsPerPage"`
}

// Page is one slice of the log, newest first.
type Page struct {
	Logs       []Entry    `json:"logs"`
	Pagination Pagination `json:"pagination"`
}

// Options configures a Store.
type Options struct {
	Path string
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Store is the SQLite-backed query log.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at opts.Path and applies the schema.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("history: empty database path")
	}
	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", int(defaultBusyTimeout.Milliseconds())),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range append(pragmas, schema) {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: apply %q: %w", firstLine(p), err)
		}
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Record stores an entry, filling in ID and CreatedAt when unset.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	e.Prompt = strings.TrimSpace(e.Prompt)
	if e.Prompt == "" {
		return Entry{}, domain.NewValidationError("prompt", "", domain.ErrEmptyCell)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_log (id, prompt, response, duration, succeeded, error_kind, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Prompt, e.Response, e.Duration, boolInt(e.Succeeded), string(e.ErrorKind), e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("history: record: %w", err)
	}
	return e, nil
}

// List returns page (1-based) of the log, newest first. Out-of-range page
// and limit values are clamped.
func (s *Store) List(ctx context.Context, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_log`).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("history: count: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, prompt, response, duration, succeeded, error_kind, created_at
		 FROM query_log ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		limit, (page-1)*limit,
	)
	if err != nil {
		return Page{}, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	logs := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e       Entry
			kind    string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Prompt, &e.Response, &e.Duration, &e.Succeeded, &kind, &created); err != nil {
			return Page{}, fmt.Errorf("history: scan: %w", err)
		}
		e.ErrorKind = domain.ErrorKind(kind)
		e.CreatedAt = time.Unix(0, created).UTC()
		logs = append(logs, e)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("history: list: %w", err)
	}

	return Page{
		Logs: logs,
		Pagination: Pagination{
			CurrentPage:  page,
			TotalPages:   int(math.Ceil(float64(total) / float64(limit))),
			TotalItems:   total,
			ItemsPerPage: limit,
		},
	}, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
