package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AesBiarenti/STAJ22001/engine/domain"
	"github.com/AesBiarenti/STAJ22001/pkg/fn"
)

// Stage names the retrieval stage that produced a result set.
type Stage string

const (
	StageVector     Stage = "vector"
	StageKeyword    Stage = "keyword"
	StageExhaustive Stage = "exhaustive"
	StageFailed     Stage = "failed"
)

// RecordStore is what the retriever reads from.
type RecordStore interface {
	SimilaritySearch(ctx context.Context, embedding []float32, threshold float32, limit int) ([]domain.SearchResult, error)
	List(ctx context.Context, limit int) ([]domain.EmployeeRecord, error)
}

// RetrieverOptions configures the fallback pipeline.
type RetrieverOptions struct {
	Threshold float32
	Limit     int
	ListLimit int
	Logger    *slog.Logger
}

// DefaultRetrieverOptions returns the production thresholds.
func DefaultRetrieverOptions() RetrieverOptions {
	return RetrieverOptions{Threshold: 0.7, Limit: 10, ListLimit: 100}
}

// Retrieval is the outcome of Retrieve.
type Retrieval struct {
	Results []domain.SearchResult
	Stage   Stage
}

// Retriever runs vector search, then a name substring filter, then the full
// list, stopping at the first stage that yields anything.
type Retriever struct {
	store  RecordStore
	opts   RetrieverOptions
	logger *slog.Logger

	vector fn.Stage[[]float32, []domain.SearchResult]
	list   fn.Stage[int, []domain.EmployeeRecord]
}

// NewRetriever creates a Retriever.
func NewRetriever(store RecordStore, opts RetrieverOptions) *Retriever {
	def := DefaultRetrieverOptions()
	if opts.Threshold <= 0 {
		opts.Threshold = def.Threshold
	}
	if opts.Limit <= 0 {
		opts.Limit = def.Limit
	}
	if opts.ListLimit <= 0 {
		opts.ListLimit = def.ListLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Retriever{store: store, opts: opts, logger: logger}
	r.vector = fn.TracedStage("rag.vector", func(ctx context.Context, emb []float32) fn.Result[[]domain.SearchResult] {
		hits, err := store.SimilaritySearch(ctx, emb, opts.Threshold, opts.Limit)
		return fn.FromPair(hits, err)
	})
	r.list = fn.TracedStage("rag.list", func(ctx context.Context, limit int) fn.Result[[]domain.EmployeeRecord] {
		recs, err := store.List(ctx, limit)
		return fn.FromPair(recs, err)
	})
	return r
}

// Retrieve returns the records relevant to query. Vector search errors fall
// through to the keyword stage; a listing error ends with StageFailed, an
// empty result and an error wrapping domain.ErrStructural.
func (r *Retriever) Retrieve(ctx context.Context, query string, embedding []float32) (Retrieval, error) {
	if len(embedding) > 0 {
		hits, err := r.vector(ctx, embedding).Unwrap()
		switch {
		case err != nil:
			r.logger.Warn("vector search failed, falling back to keyword filter", "err", err)
		case len(hits) > 0:
			return Retrieval{Results: hits, Stage: StageVector}, nil
		}
	}

	all, err := r.list(ctx, r.opts.ListLimit).Unwrap()
	if err != nil {
		r.logger.Error("listing records failed", "err", err)
		return Retrieval{Results: []domain.SearchResult{}, Stage: StageFailed},
			fmt.Errorf("rag: retrieve: %w: %v", domain.ErrStructural, err)
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	matched := fn.Filter(all, func(rec domain.EmployeeRecord) bool {
		return needle != "" && strings.Contains(strings.ToLower(rec.Name), needle)
	})
	if len(matched) > 0 {
		return Retrieval{Results: unscored(matched), Stage: StageKeyword}, nil
	}
	return Retrieval{Results: unscored(all), Stage: StageExhaustive}, nil
}

func unscored(recs []domain.EmployeeRecord) []domain.SearchResult {
	return fn.Map(recs, func(rec domain.EmployeeRecord) domain.SearchResult {
		return domain.SearchResult{EmployeeRecord: rec}
	})
}
