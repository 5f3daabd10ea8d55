// Package employee manages the lifecycle of employee records in the vector
// store: create, update, delete and list, with a best-effort graph projection.
package employee

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AesBiarenti/STAJ22001/engine/domain"
	"github.com/AesBiarenti/STAJ22001/engine/provider"
	"github.com/AesBiarenti/STAJ22001/engine/semantic"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

// VectorStore is the subset of semantic.VectorStore the service needs.
type VectorStore interface {
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
	Delete(ctx context.Context, ids ...uint64) error
	DeleteAll(ctx context.Context) error
	Get(ctx context.Context, id uint64) (semantic.Point, error)
	Scroll(ctx context.Context, limit int) ([]semantic.Point, error)
	Search(ctx context.Context, embedding []float32, threshold float32, limit int) ([]semantic.Point, error)
}

// Embedder produces the vector stored with a record.
type Embedder interface {
	Embed(ctx context.Context, text string) provider.EmbedResult
}

// Projector mirrors records into a secondary store (the Neo4j graph).
type Projector interface {
	SaveEmployee(ctx context.Context, rec domain.EmployeeRecord) error
	DeleteEmployee(ctx context.Context, id uint64) error
	DeleteAll(ctx context.Context) error
}

// Options configures a Service.
type Options struct {
	Logger *slog.Logger
	// Graph is optional; projection failures are logged, never returned.
	Graph Projector
	IDs   *domain.IDAllocator
}

// Service is the record lifecycle service.
type Service struct {
	store    VectorStore
	embedder Embedder
	graph    Projector
	ids      *domain.IDAllocator
	logger   *slog.Logger
}

// New creates a Service.
func New(store VectorStore, embedder Embedder, opts Options) *Service {
	s := &Service{
		store:    store,
		embedder: embedder,
		graph:    opts.Graph,
		ids:      opts.IDs,
		logger:   opts.Logger,
	}
	if s.ids == nil {
		s.ids = domain.NewIDAllocator()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Create embeds the record name, allocates an id when none is set and stores
// the record. Embedding failures are absorbed: the record is stored with the
// fallback vector and the EmbedResult reports the failure.
func (s *Service) Create(ctx context.Context, rec domain.EmployeeRecord) (domain.EmployeeRecord, provider.EmbedResult, error) {
	if err := domain.ValidateRecord(rec); err != nil {
		return domain.EmployeeRecord{}, provider.EmbedResult{}, err
	}
	emb := s.embedder.Embed(ctx, rec.Name)
	rec.Vector = emb.Vector
	if rec.ID == 0 {
		rec.ID = s.ids.Next()
	} else {
		s.ids.Observe(rec.ID)
	}
	if err := s.put(ctx, rec); err != nil {
		return domain.EmployeeRecord{}, emb, err
	}
	s.project(ctx, rec)
	return rec, emb, nil
}

// Get returns one record. Unknown ids yield domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, id uint64) (domain.EmployeeRecord, error) {
	pt, err := s.store.Get(ctx, id)
	if errors.Is(err, semantic.ErrPointNotFound) {
		return domain.EmployeeRecord{}, fmt.Errorf("employee: get %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.EmployeeRecord{}, fmt.Errorf("employee: get %d: %w", id, err)
	}
	return domain.RecordFromPayload(pt.ID, pt.Payload)
}

// Update merges patch into the stored record, re-embeds it and replaces the
// point under the same id by deleting and reinserting it. The two writes are
// not atomic and concurrent updates of one id are not serialized: the last
// writer wins, and a failed reinsert leaves the record deleted.
func (s *Service) Update(ctx context.Context, id uint64, patch domain.EmployeePatch) (domain.EmployeeRecord, provider.EmbedResult, error) {
	if err := domain.ValidatePatch(patch); err != nil {
		return domain.EmployeeRecord{}, provider.EmbedResult{}, err
	}
	base, err := s.Get(ctx, id)
	if err != nil {
		return domain.EmployeeRecord{}, provider.EmbedResult{}, err
	}
	merged := domain.Merge(base, patch)
	if err := domain.ValidateRecord(merged); err != nil {
		return domain.EmployeeRecord{}, provider.EmbedResult{}, err
	}

	emb := s.embedder.Embed(ctx, merged.Name)
	merged.Vector = emb.Vector

	if err := s.store.Delete(ctx, id); err != nil {
		return domain.EmployeeRecord{}, emb, fmt.Errorf("employee: update %d: %w", id, err)
	}
	if err := s.put(ctx, merged); err != nil {
		s.logger.Error("record lost between delete and reinsert", "id", id, "err", err)
		return domain.EmployeeRecord{}, emb, fmt.Errorf("employee: update %d: %w", id, err)
	}
	s.project(ctx, merged)
	return merged, emb, nil
}

// Delete removes a record. Unknown ids are not an error.
func (s *Service) Delete(ctx context.Context, id uint64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("employee: delete %d: %w", id, err)
	}
	if s.graph != nil {
		if err := s.graph.DeleteEmployee(ctx, id); err != nil {
			s.logger.Warn("graph delete failed", "id", id, "err", err)
		}
	}
	return nil
}

// DeleteAll clears the store and the graph projection.
func (s *Service) DeleteAll(ctx context.Context) error {
	if err := s.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("employee: delete all: %w", err)
	}
	if s.graph != nil {
		if err := s.graph.DeleteAll(ctx); err != nil {
			s.logger.Warn("graph clear failed", "err", err)
		}
	}
	return nil
}

// List returns up to limit records in store order. Points whose payload
// cannot be decoded are logged and skipped.
func (s *Service) List(ctx context.Context, limit int) ([]domain.EmployeeRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	pts, err := s.store.Scroll(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("employee: list: %w", err)
	}
	out := make([]domain.EmployeeRecord, 0, len(pts))
	for _, pt := range pts {
		rec, err := domain.RecordFromPayload(pt.ID, pt.Payload)
		if err != nil {
			s.logger.Warn("skipping undecodable point", "id", pt.ID, "err", err)
			continue
		}
		s.ids.Observe(pt.ID)
		out = append(out, rec)
	}
	return out, nil
}

// SimilaritySearch returns records scoring above threshold, best first.
func (s *Service) SimilaritySearch(ctx context.Context, embedding []float32, threshold float32, limit int) ([]domain.SearchResult, error) {
	pts, err := s.store.Search(ctx, embedding, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("employee: search: %w", err)
	}
	out := make([]domain.SearchResult, 0, len(pts))
	for _, pt := range pts {
		rec, err := domain.RecordFromPayload(pt.ID, pt.Payload)
		if err != nil {
			s.logger.Warn("skipping undecodable hit", "id", pt.ID, "err", err)
			continue
		}
		score := pt.Score
		out = append(out, domain.SearchResult{EmployeeRecord: rec, Score: &score})
	}
	return out, nil
}

func (s *Service) put(ctx context.Context, rec domain.EmployeeRecord) error {
	err := s.store.Upsert(ctx, []semantic.VectorRecord{{
		ID:        rec.ID,
		Embedding: rec.Vector,
		Payload:   rec.Payload(),
	}})
	if err != nil {
		return fmt.Errorf("employee: store %d: %w", rec.ID, err)
	}
	return nil
}

func (s *Service) project(ctx context.Context, rec domain.EmployeeRecord) {
	if s.graph == nil {
		return
	}
	if err := s.graph.SaveEmployee(ctx, rec); err != nil {
		s.logger.Warn("graph projection failed", "id", rec.ID, "err", err)
	}
}
