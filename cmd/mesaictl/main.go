// Command mesaictl is the admin CLI for the work-hour store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AesBiarenti/STAJ22001/engine/employee"
	"github.com/AesBiarenti/STAJ22001/engine/ingest"
	"github.com/AesBiarenti/STAJ22001/engine/provider"
	"github.com/AesBiarenti/STAJ22001/engine/semantic"
	"github.com/AesBiarenti/STAJ22001/pkg/config"
	"github.com/AesBiarenti/STAJ22001/pkg/ollama"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "mesaictl",
		Short:         "Manage the employee work-hour store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "optional YAML config file")
	root.PersistentFlags().Bool("json", false, "Output in JSON format")

	root.AddCommand(
		newEnsureCollectionCommand(),
		newValidateCommand(),
		newLoadCommand(),
		newExportCommand(),
		newListCommand(),
		newStatsCommand(),
		newChatCommand(),
	)
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path, ".env")
}

func jsonMode(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// backend is the store wiring shared by the commands that talk to Qdrant.
type backend struct {
	store     *semantic.VectorStore
	employees *employee.Service
	deps      ingest.Deps
}

func (b *backend) Close() error { return b.store.Close() }

func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backend, error) {
	store, err := semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.Collection)
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	if err := store.EnsureCollection(ctx, cfg.Embedding.Dims); err != nil {
		store.Close()
		return nil, fmt.Errorf("qdrant ensure collection: %w", err)
	}
	embedder := provider.NewEmbedder(
		ollama.NewEmbedClient(cfg.Ollama.URL, cfg.Ollama.EmbedModel, nil),
		provider.EmbedderOptions{Dims: cfg.Embedding.Dims, Timeout: cfg.Ollama.EmbedTimeout, Logger: log},
	)
	emps := employee.New(store, embedder, employee.Options{Logger: log})
	return &backend{
		store:     store,
		employees: emps,
		deps: ingest.Deps{
			Employees:  emps,
			Limiter:    rate.NewLimiter(rate.Limit(cfg.Ingest.RatePerSecond), cfg.Ingest.Burst),
			ExportPath: cfg.Export.Path,
			Logger:     log,
		},
	}, nil
}

func cliLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
}
