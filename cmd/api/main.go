// Package main implements the mesai API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AesBiarenti/STAJ22001/engine/employee"
	"github.com/AesBiarenti/STAJ22001/engine/graph"
	"github.com/AesBiarenti/STAJ22001/engine/history"
	"github.com/AesBiarenti/STAJ22001/engine/ingest"
	"github.com/AesBiarenti/STAJ22001/engine/provider"
	"github.com/AesBiarenti/STAJ22001/engine/rag"
	"github.com/AesBiarenti/STAJ22001/engine/semantic"
	"github.com/AesBiarenti/STAJ22001/pkg/config"
	"github.com/AesBiarenti/STAJ22001/pkg/fn"
	"github.com/AesBiarenti/STAJ22001/pkg/metrics"
	"github.com/AesBiarenti/STAJ22001/pkg/mid"
	"github.com/AesBiarenti/STAJ22001/pkg/ollama"
	"github.com/AesBiarenti/STAJ22001/pkg/resilience"
	"github.com/AesBiarenti/STAJ22001/pkg/telemetry"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath, ".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	for _, w := range cfg.Validate() {
		logger.Warn("config", "problem", w)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// newBreaker logs transitions and exposes the state as a gauge.
func newBreaker(name string, reg *metrics.Registry, logger *slog.Logger) *resilience.Breaker {
	gauge := reg.Gauge(metrics.WithLabels("mesai_breaker_state", "name", name), "Circuit breaker state (0 closed, 1 open, 2 half-open)")
	return resilience.NewBreaker(resilience.BreakerOpts{
		Name: name,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			gauge.Set(float64(to))
		},
	})
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracing, err := telemetry.InitTracing(ctx, telemetry.Config{
		ServiceName: cfg.OTel.ServiceName,
		Endpoint:    cfg.OTel.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer tracing.Shutdown(context.Background())

	reg := metrics.New()

	// --- Qdrant ---
	vectorStore, err := semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	ensured := fn.Retry(ctx, fn.DefaultRetry, func(ctx context.Context) fn.Result[struct{}] {
		if err := vectorStore.EnsureCollection(ctx, cfg.Embedding.Dims); err != nil {
			logger.Warn("qdrant not ready", "err", err)
			return fn.Err[struct{}](err)
		}
		return fn.Ok(struct{}{})
	})
	if _, err := ensured.Unwrap(); err != nil {
		return fmt.Errorf("qdrant ensure collection: %w", err)
	}

	// --- Ollama ---
	embedder := provider.NewEmbedder(
		ollama.NewEmbedClient(cfg.Ollama.URL, cfg.Ollama.EmbedModel, nil),
		provider.EmbedderOptions{
			Dims:    cfg.Embedding.Dims,
			Timeout: cfg.Ollama.EmbedTimeout,
			Breaker: newBreaker("ollama_embed", reg, logger),
			Metrics: reg,
			Logger:  logger,
		},
	)
	completer := provider.NewCompleter(
		ollama.NewGenerateClient(cfg.Ollama.URL, cfg.Ollama.ChatModel, nil),
		provider.CompleterOptions{
			Timeout: cfg.Ollama.ChatTimeout,
			Breaker: newBreaker("ollama_generate", reg, logger),
			Metrics: reg,
			Logger:  logger,
		},
	)

	checks := []healthCheck{{name: "qdrant", check: func(ctx context.Context) error {
		_, err := vectorStore.Scroll(ctx, 1)
		return err
	}}}

	// --- Neo4j (optional) ---
	empOpts := employee.Options{Logger: logger}
	var enricher rag.GraphEnricher
	if cfg.Neo4j.Enabled() {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Password, ""))
		if err != nil {
			return fmt.Errorf("neo4j driver: %w", err)
		}
		defer driver.Close(context.Background())

		graphStore := graph.New(driver)
		if err := graphStore.EnsureSchema(ctx); err != nil {
			logger.Warn("neo4j schema", "err", err)
		}
		empOpts.Graph = graphStore
		if cfg.Retrieval.UseGraph {
			enricher = graphStore
		}
		checks = append(checks, healthCheck{name: "neo4j", check: driver.VerifyConnectivity})
	}

	employees := employee.New(vectorStore, embedder, empOpts)
	retriever := rag.NewRetriever(employees, rag.RetrieverOptions{
		Threshold: cfg.Retrieval.Threshold,
		Limit:     cfg.Retrieval.Limit,
		ListLimit: cfg.Retrieval.ListLimit,
		Logger:    logger,
	})
	ragOpts := rag.DefaultOptions()
	ragOpts.UseGraph = enricher != nil
	ragSvc := rag.New(embedder, retriever, completer, enricher, ragOpts, logger)

	// --- History ---
	hist, err := history.Open(ctx, history.Options{Path: cfg.History.Path})
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	defer hist.Close()

	srv := &server{
		employees:  employees,
		embedder:   embedder,
		completer:  completer,
		retriever:  retriever,
		rag:        ragSvc,
		history:    hist,
		exportPath: cfg.Export.Path,
		maxUpload:  cfg.Server.MaxUploadMB << 20,
		metrics:    reg,
		logger:     logger,
		ingest: ingest.Deps{
			Employees:  employees,
			Limiter:    rate.NewLimiter(rate.Limit(cfg.Ingest.RatePerSecond), cfg.Ingest.Burst),
			Metrics:    reg,
			ExportPath: cfg.Export.Path,
			Logger:     logger,
		},
	}

	// --- NATS (optional) ---
	if cfg.NATS.Enabled() {
		nc, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		if cfg.Ingest.Async {
			srv.nc = nc
		}
		srv.checks = append(checks, healthCheck{name: "nats", check: func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats: %s", nc.Status())
			}
			return nil
		}})
	} else {
		srv.checks = checks
	}

	handler := mid.Chain(srv.routes(),
		mid.Recover(logger),
		mid.OTel(cfg.OTel.ServiceName),
		mid.Metrics(reg),
		mid.Logger(logger, "/api/health", "/metrics"),
		mid.CORS(cfg.Server.CORSOrigin),
	)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Server.Port, "tracing", tracing.Enabled(), "async_ingest", srv.nc != nil)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}
