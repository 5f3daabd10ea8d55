// Package rag answers questions about employee work hours. It embeds the
// question, retrieves records through the fallback pipeline, optionally
// enriches with graph context, builds a prompt, and calls the completion
// provider for the final answer.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/AesBiarenti/STAJ22001/engine/domain"
	"github.com/AesBiarenti/STAJ22001/engine/provider"
)

// Embedder embeds the question.
type Embedder interface {
	Embed(ctx context.Context, text string) provider.EmbedResult
}

// Completer produces the answer text.
type Completer interface {
	Complete(ctx context.Context, prompt string) provider.CompletionResult
}

// GraphEnricher optionally adds period context from the knowledge graph.
type GraphEnricher interface {
	PeriodContext(ctx context.Context, keywords []string) (string, error)
}

// Options configures the question answering behaviour.
type Options struct {
	SystemPrompt string
	UseGraph     bool
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		SystemPrompt: defaultSystemPrompt,
		UseGraph:     true,
	}
}

const defaultSystemPrompt = `Sen bir insan kaynakları asistanısın. Çalışanların mesai kayıtlarıyla
ilgili soruları SADECE aşağıdaki kayıtları kullanarak Türkçe yanıtla. Kayıtlarda
yeterli bilgi yoksa bunu açıkça söyle.`

// Service is the question answering service.
type Service struct {
	embed     Embedder
	retriever *Retriever
	complete  Completer
	graph     GraphEnricher
	opts      Options
	logger    *slog.Logger
}

// New creates a Service. graphEnricher may be nil.
func New(embed Embedder, retriever *Retriever, complete Completer, graphEnricher GraphEnricher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	return &Service{
		embed:     embed,
		retriever: retriever,
		complete:  complete,
		graph:     graphEnricher,
		opts:      opts,
		logger:    logger,
	}
}

// Answer is the structured response of Ask. Error is empty on full success.
type Answer struct {
	Text     string                `json:"answer"`
	Success  bool                  `json:"success"`
	Error    domain.ErrorKind      `json:"error,omitempty"`
	Stage    Stage                 `json:"stage"`
	Sources  []domain.SearchResult `json:"sources"`
	Duration time.Duration         `json:"-"`
}

// Ask runs the full pipeline. It never fails: provider and store problems
// degrade the answer and are reported through Error.
func (s *Service) Ask(ctx context.Context, question string) Answer {
	start := time.Now()
	s.logger.Info("rag query start", "question_len", len(question))

	// A fallback vector carries no meaning, so the vector stage is skipped.
	emb := s.embed.Embed(ctx, question)
	var vector []float32
	if emb.Succeeded {
		vector = emb.Vector
	}

	retrieval, err := s.retriever.Retrieve(ctx, question, vector)
	var degraded domain.ErrorKind
	if err != nil {
		if errors.Is(err, domain.ErrStructural) {
			degraded = domain.KindStructural
		} else {
			degraded = domain.KindGeneric
		}
	}
	s.logger.Info("rag retrieval done", "stage", retrieval.Stage, "results", len(retrieval.Results))

	var graphContext string
	if s.opts.UseGraph && s.graph != nil {
		graphContext = s.enrichWithGraph(ctx, question)
	}

	prompt := buildPrompt(s.opts.SystemPrompt, question, retrieval.Results, graphContext)
	res := s.complete.Complete(ctx, prompt)

	ans := Answer{
		Text:     res.Answer,
		Success:  res.Succeeded,
		Error:    res.Kind,
		Stage:    retrieval.Stage,
		Sources:  retrieval.Results,
		Duration: time.Since(start),
	}
	if ans.Error == domain.KindNone {
		ans.Error = degraded
	}
	return ans
}

// enrichWithGraph attempts to get graph context; failures are logged and skipped.
func (s *Service) enrichWithGraph(ctx context.Context, question string) string {
	keywords := extractKeywords(question)
	if len(keywords) == 0 {
		return ""
	}
	text, err := s.graph.PeriodContext(ctx, keywords)
	if err != nil {
		s.logger.Warn("rag: graph enrichment failed, continuing without", "err", err)
		return ""
	}
	return text
}

// buildPrompt formats retrieved records and graph context around the question.
func buildPrompt(system, question string, results []domain.SearchResult, graphContext string) string {
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\nÇalışan kayıtları:\n")
	if len(results) == 0 {
		b.WriteString("(kayıt bulunamadı)\n")
	}
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s", i+1, r.Name)
		if r.Score != nil {
			fmt.Fprintf(&b, " (benzerlik: %.3f)", *r.Score)
		}
		b.WriteString("\n")
		for _, p := range r.Periods {
			fmt.Fprintf(&b, "  - %s: %.1f saat", p.DateRange, p.TotalHours)
			if len(p.DailyHours) > 0 {
				days := make([]string, 0, len(p.DailyHours))
				for _, d := range slices.Sorted(maps.Keys(p.DailyHours)) {
					days = append(days, fmt.Sprintf("%s %.1f", d, p.DailyHours[d]))
				}
				fmt.Fprintf(&b, " (%s)", strings.Join(days, ", "))
			}
			b.WriteString("\n")
		}
	}
	if graphContext != "" {
		b.WriteString("\n")
		b.WriteString(graphContext)
	}
	fmt.Fprintf(&b, "\nSoru: %s\nCevap:", question)
	return b.String()
}

var stopWords = map[string]bool{
	"ve": true, "ile": true, "bir": true, "bu": true, "şu": true, "o": true,
	"mi": true, "mı": true, "mu": true, "mü": true, "ne": true, "kaç": true,
	"kim": true, "kimin": true, "hangi": true, "nedir": true, "kadar": true,
	"için": true, "gibi": true, "daha": true, "en": true, "çok": true,
	"saat": true, "saatte": true, "mesai": true, "mesaisi": true, "toplam": true,
	"çalıştı": true, "çalışmış": true, "çalışan": true, "çalışanlar": true,
	"haftası": true, "hafta": true, "gün": true, "günü": true, "tarih": true,
	"the": true, "and": true, "how": true, "many": true, "hours": true,
}

// extractKeywords does simple keyword extraction from a question.
func extractKeywords(question string) []string {
	words := strings.Fields(strings.ToLower(question))
	var keywords []string
	for _, w := range words {
		w = strings.Trim(w, "?.,!;:'\"")
		if i := strings.IndexAny(w, "'’"); i > 0 {
			w = w[:i] // Ali'nin -> ali
		}
		if len([]rune(w)) > 2 && !stopWords[w] {
			keywords = append(keywords, w)
		}
	}
	return keywords
}
