package provider

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/AesBiarenti/STAJ22001/engine/domain"
	"github.com/AesBiarenti/STAJ22001/pkg/metrics"
	"github.com/AesBiarenti/STAJ22001/pkg/resilience"
)

// EmbeddingClient is the raw embedding call, e.g. *ollama.EmbedClient.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedResult is the outcome of an embedding call. Vector always has the
// configured length when Succeeded is false.
type EmbedResult struct {
	Vector    []float32
	Succeeded bool
	Kind      domain.ErrorKind
	Err       error
}

// EmbedderOptions configures an Embedder.
type EmbedderOptions struct {
	Dims    int
	Timeout time.Duration
	// Breaker, when set, short-circuits calls while the provider is down.
	Breaker *resilience.Breaker
	Metrics *metrics.Registry
	Logger  *slog.Logger
	// Rand overrides the fallback value source (tests).
	Rand func() float32
}

// DefaultEmbedderOptions matches the all-minilm model.
func DefaultEmbedderOptions() EmbedderOptions {
	return EmbedderOptions{
		Dims:    384,
		Timeout: 30 * time.Second,
	}
}

// Embedder is the embedding adapter.
type Embedder struct {
	client EmbeddingClient
	opts   EmbedderOptions
	logger *slog.Logger
	rand   func() float32
}

// NewEmbedder creates an Embedder around client.
func NewEmbedder(client EmbeddingClient, opts EmbedderOptions) *Embedder {
	def := DefaultEmbedderOptions()
	if opts.Dims <= 0 {
		opts.Dims = def.Dims
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := opts.Rand
	if r == nil {
		r = rand.Float32
	}
	return &Embedder{client: client, opts: opts, logger: logger, rand: r}
}

// Dims returns the configured vector length.
func (e *Embedder) Dims() int { return e.opts.Dims }

// Embed calls the provider once. Any failure yields a fallback vector of
// uniform values in [0,1) and the classified error kind.
func (e *Embedder) Embed(ctx context.Context, text string) EmbedResult {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	start := time.Now()
	vec, err := resilience.Do(e.opts.Breaker, ctx, func(ctx context.Context) ([]float32, error) {
		return e.client.Embed(ctx, text)
	})
	e.observe(start)

	if err != nil {
		kind := Classify(err)
		e.count(string(kind))
		e.logger.Error("embedding failed, using fallback vector", "kind", kind, "err", err)
		return EmbedResult{Vector: e.Fallback(), Kind: kind, Err: err}
	}

	if len(vec) != e.opts.Dims {
		e.logger.Warn("embedding dimension mismatch", "got", len(vec), "want", e.opts.Dims)
	}
	e.count("ok")
	return EmbedResult{Vector: vec, Succeeded: true}
}

// Fallback returns a random vector of the configured length.
func (e *Embedder) Fallback() []float32 {
	out := make([]float32, e.opts.Dims)
	for i := range out {
		out[i] = e.rand()
	}
	return out
}

func (e *Embedder) count(result string) {
	if e.opts.Metrics == nil {
		return
	}
	e.opts.Metrics.Counter(metrics.WithLabels("mesai_provider_calls_total", "provider", "embed", "result", result), "Provider calls by outcome").Inc()
}

func (e *Embedder) observe(start time.Time) {
	if e.opts.Metrics == nil {
		return
	}
	e.opts.Metrics.Histogram(metrics.WithLabels("mesai_provider_duration_seconds", "provider", "embed"), "Provider call latency", nil).Since(start)
}
