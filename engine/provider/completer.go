package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/AesBiarenti/STAJ22001/engine/domain"
	"github.com/AesBiarenti/STAJ22001/pkg/metrics"
	"github.com/AesBiarenti/STAJ22001/pkg/resilience"
)

// User-facing messages returned in place of an answer.
const (
	MsgServiceUnavailable = "Üzgünüm, AI servisi şu anda kullanılamıyor. Lütfen daha sonra tekrar deneyin."
	MsgTimeout            = "AI servisi yanıt vermiyor. Lütfen daha sonra tekrar deneyin."
	msgGenericPrefix      = "AI servisinde hata: "
)

// GenerationClient is the raw completion call, e.g. *ollama.GenerateClient.
type GenerationClient interface {
	Generate(ctx context.Context, prompt string) (any, error)
}

// CompletionResult is the outcome of a completion call. Answer is always
// displayable, even on failure.
type CompletionResult struct {
	Answer    string
	Succeeded bool
	Kind      domain.ErrorKind
	Err       error
}

// CompleterOptions configures a Completer.
type CompleterOptions struct {
	Timeout time.Duration
	// Breaker, when set, short-circuits calls while the provider is down.
	Breaker *resilience.Breaker
	Metrics *metrics.Registry
	Logger  *slog.Logger
}

// Completer is the completion adapter. It makes a single attempt per call.
type Completer struct {
	client GenerationClient
	opts   CompleterOptions
	logger *slog.Logger
}

// NewCompleter creates a Completer around client.
func NewCompleter(client GenerationClient, opts CompleterOptions) *Completer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Completer{client: client, opts: opts, logger: logger}
}

// Complete generates text for prompt.
func (c *Completer) Complete(ctx context.Context, prompt string) CompletionResult {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	start := time.Now()
	payload, err := resilience.Do(c.opts.Breaker, ctx, func(ctx context.Context) (any, error) {
		return c.client.Generate(ctx, prompt)
	})
	if c.opts.Metrics != nil {
		c.opts.Metrics.Histogram(metrics.WithLabels("mesai_provider_duration_seconds", "provider", "generate"), "Provider call latency", nil).Since(start)
	}
	if err != nil {
		res := failure(err)
		c.count(string(res.Kind))
		c.logger.Error("completion failed", "kind", res.Kind, "err", err)
		return res
	}
	c.count("ok")
	return CompletionResult{Answer: answerText(payload), Succeeded: true}
}

func failure(err error) CompletionResult {
	switch Classify(err) {
	case domain.KindConnection:
		return CompletionResult{Answer: MsgServiceUnavailable, Kind: domain.KindServiceUnavailable, Err: err}
	case domain.KindTimeout:
		return CompletionResult{Answer: MsgTimeout, Kind: domain.KindTimeout, Err: err}
	default:
		return CompletionResult{Answer: msgGenericPrefix + err.Error(), Kind: domain.KindGeneric, Err: err}
	}
}

// answerText picks response, then text, then the raw payload.
func answerText(payload any) string {
	if m, ok := payload.(map[string]any); ok {
		for _, key := range []string{"response", "text"} {
			if s, ok := m[key].(string); ok && s != "" {
				return s
			}
		}
	}
	if s, ok := payload.(string); ok {
		return s
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprint(payload)
	}
	return string(b)
}

func (c *Completer) count(result string) {
	if c.opts.Metrics == nil {
		return
	}
	c.opts.Metrics.Counter(metrics.WithLabels("mesai_provider_calls_total", "provider", "generate", "result", result), "Provider calls by outcome").Inc()
}
