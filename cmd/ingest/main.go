// Command ingest runs the NATS ingest consumer and, optionally, watches a
// directory for dropped spreadsheets.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AesBiarenti/STAJ22001/engine/employee"
	"github.com/AesBiarenti/STAJ22001/engine/graph"
	"github.com/AesBiarenti/STAJ22001/engine/ingest"
	"github.com/AesBiarenti/STAJ22001/engine/provider"
	"github.com/AesBiarenti/STAJ22001/engine/semantic"
	"github.com/AesBiarenti/STAJ22001/pkg/config"
	"github.com/AesBiarenti/STAJ22001/pkg/metrics"
	"github.com/AesBiarenti/STAJ22001/pkg/natsutil"
	"github.com/AesBiarenti/STAJ22001/pkg/ollama"
	"github.com/AesBiarenti/STAJ22001/pkg/resilience"
	"github.com/AesBiarenti/STAJ22001/pkg/telemetry"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/time/rate"
)

var met = metrics.New()

var (
	mDeadLetters = met.Counter("mesai_ingest_dead_letters_total", "Jobs sent to the dead letter queue")
	mFilesTotal  = func(result string) *metrics.Counter {
		return met.Counter(metrics.WithLabels("mesai_ingest_files_total", "result", result), "Spreadsheets picked up from the watch directory")
	}
	mLastScan = met.Gauge("mesai_ingest_last_scan_timestamp", "Epoch of last directory scan")
)

func main() {
	var (
		configPath  = flag.String("config", "", "optional YAML config file")
		dataDir     = flag.String("dir", "", "directory to watch for .xlsx/.csv files (disabled when empty)")
		interval    = flag.Duration("interval", 30*time.Second, "scan interval")
		stateFile   = flag.String("state", "", "processed files state (default <dir>/.ingest-state.json)")
		metricsAddr = flag.String("metrics", ":9091", "metrics listen address")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath, ".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *stateFile == "" && *dataDir != "" {
		*stateFile = *dataDir + "/.ingest-state.json"
	}
	w := watchOpts{dir: *dataDir, interval: *interval, stateFile: *stateFile}
	if err := run(ctx, cfg, w, *metricsAddr, log); err != nil {
		log.Error("ingest exited with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, w watchOpts, metricsAddr string, log *slog.Logger) error {
	tracing, err := telemetry.InitTracing(ctx, telemetry.Config{
		ServiceName: "mesai-ingest",
		Endpoint:    cfg.OTel.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer tracing.Shutdown(context.Background())

	go func() {
		if err := met.Serve(ctx, metricsAddr); err != nil {
			log.Error("metrics server failed", "err", err)
		}
	}()

	// Connect Qdrant
	vs, err := semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vs.Close()
	if err := vs.EnsureCollection(ctx, cfg.Embedding.Dims); err != nil {
		return fmt.Errorf("qdrant ensure collection: %w", err)
	}
	log.Info("connected to Qdrant", "collection", cfg.Qdrant.Collection, "dims", cfg.Embedding.Dims)

	embedder := provider.NewEmbedder(
		ollama.NewEmbedClient(cfg.Ollama.URL, cfg.Ollama.EmbedModel, nil),
		provider.EmbedderOptions{
			Dims:    cfg.Embedding.Dims,
			Timeout: cfg.Ollama.EmbedTimeout,
			Breaker: resilience.NewBreaker(resilience.BreakerOpts{Name: "ollama_embed"}),
			Metrics: met,
			Logger:  log,
		},
	)

	empOpts := employee.Options{Logger: log}
	if cfg.Neo4j.Enabled() {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Password, ""))
		if err != nil {
			return fmt.Errorf("neo4j driver: %w", err)
		}
		defer driver.Close(context.Background())
		if err := driver.VerifyConnectivity(ctx); err != nil {
			return fmt.Errorf("neo4j verify: %w", err)
		}
		empOpts.Graph = graph.New(driver)
		log.Info("connected to Neo4j")
	}

	deps := ingest.Deps{
		Employees:  employee.New(vs, embedder, empOpts),
		Limiter:    rate.NewLimiter(rate.Limit(cfg.Ingest.RatePerSecond), cfg.Ingest.Burst),
		Metrics:    met,
		ExportPath: cfg.Export.Path,
		Logger:     log,
	}

	var nc *nats.Conn
	if cfg.NATS.Enabled() {
		nc, err = nats.Connect(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()

		if _, err := ingest.StartConsumer(nc, deps); err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
		if _, err := natsutil.Subscribe(nc, ingest.DLQSubject, func(_ context.Context, dl ingest.DeadLetter) {
			mDeadLetters.Inc()
			log.Error("dead letter", "job", dl.Job.ID, "name", dl.Job.Record.Name, "retries", dl.Retries, "err", dl.Error)
		}); err != nil {
			return fmt.Errorf("subscribe dlq: %w", err)
		}
		log.Info("consuming", "subject", ingest.IngestSubject, "dlq", ingest.DLQSubject)
	}

	if w.dir == "" {
		if nc == nil {
			return fmt.Errorf("nothing to do: set MESAI_NATS_URL or -dir")
		}
		<-ctx.Done()
		log.Info("shutting down")
		return nil
	}

	watcher := &watcher{opts: w, deps: deps, nc: nc, log: log}
	return watcher.loop(ctx)
}
