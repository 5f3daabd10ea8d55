package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/AesBiarenti/STAJ22001/engine/domain"
	"github.com/AesBiarenti/STAJ22001/engine/ingest"
	"github.com/AesBiarenti/STAJ22001/engine/semantic"
	"github.com/AesBiarenti/STAJ22001/engine/stats"
	"github.com/spf13/cobra"
)

func newEnsureCollectionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-collection",
		Short: "Create the Qdrant collection when it is missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.Collection)
			if err != nil {
				return fmt.Errorf("qdrant connect: %w", err)
			}
			defer store.Close()
			if err := store.EnsureCollection(cmd.Context(), cfg.Embedding.Dims); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "collection %q ready (%d dims)\n", cfg.Qdrant.Collection, cfg.Embedding.Dims)
			return nil
		},
	}
}

// summary describes a parsed spreadsheet without touching the store.
type summary struct {
	File      string       `json:"file"`
	Rows      int          `json:"rows"`
	Employees int          `json:"employees"`
	Stats     stats.Stats  `json:"stats"`
	Records   []recordLine `json:"records"`
}

type recordLine struct {
	Name    string  `json:"isim"`
	Periods int     `json:"periods"`
	Hours   float64 `json:"hours"`
}

func summarize(path string) (summary, error) {
	rows, err := ingest.ParseFile(path)
	if err != nil {
		return summary{}, err
	}
	recs := ingest.Group(rows)
	s := summary{File: filepath.Base(path), Rows: len(rows), Employees: len(recs), Stats: stats.Compute(recs)}
	for _, r := range recs {
		s.Records = append(s.Records, recordLine{Name: r.Name, Periods: len(r.Periods), Hours: r.TotalHours()})
	}
	return s, nil
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Parse a spreadsheet and show what a load would store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := summarize(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonMode(cmd) {
				return printJSON(out, s)
			}
			fmt.Fprintf(out, "%s: %d rows, %d employees\n", s.File, s.Rows, s.Employees)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ISIM\tDONEM\tSAAT")
			for _, r := range s.Records {
				fmt.Fprintf(tw, "%s\t%d\t%g\n", r.Name, r.Periods, r.Hours)
			}
			return tw.Flush()
		},
	}
}

func newLoadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load <file>",
		Short: "Replace the stored records with a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			b, err := openBackend(cmd.Context(), cfg, cliLogger(cfg))
			if err != nil {
				return err
			}
			defer b.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			rep, err := ingest.Upload(cmd.Context(), b.deps, filepath.Base(args[0]), f)
			if err != nil && rep.Added == 0 {
				return err
			}
			if jsonMode(cmd) {
				return printJSON(cmd.OutOrStdout(), rep)
			}
			fmt.Fprintln(cmd.OutOrStdout(), rep.Message())
			if rep.Degraded > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d kayıt yedek vektörle saklandı.\n", rep.Degraded)
			}
			if !rep.OK() {
				return fmt.Errorf("%d records failed", rep.Failed)
			}
			return err
		},
	}
}

func newExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Rewrite the stats export from the vector store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			b, err := openBackend(cmd.Context(), cfg, cliLogger(cfg))
			if err != nil {
				return err
			}
			defer b.Close()
			if err := ingest.Export(cmd.Context(), b.deps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", cfg.Export.Path)
			return nil
		},
	}
}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored employees",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			b, err := openBackend(cmd.Context(), cfg, cliLogger(cfg))
			if err != nil {
				return err
			}
			defer b.Close()
			recs, err := b.employees.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), recs, jsonMode(cmd))
		},
	}
	cmd.Flags().Int("limit", 0, "maximum records (0 uses the service default)")
	return cmd
}

func printRecords(w io.Writer, recs []domain.EmployeeRecord, asJSON bool) error {
	if asJSON {
		return printJSON(w, recs)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tISIM\tDONEM\tSAAT")
	for _, r := range recs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%g\n", r.ID, r.Name, len(r.Periods), r.TotalHours())
	}
	return tw.Flush()
}

func newStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate the stats export",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				path = cfg.Export.Path
			}
			recs, err := stats.Load(path)
			if errors.Is(err, stats.ErrNoExport) {
				return fmt.Errorf("no export at %s; run load or export first", path)
			}
			if err != nil {
				return err
			}
			s := stats.Compute(recs)
			out := cmd.OutOrStdout()
			if jsonMode(cmd) {
				return printJSON(out, s)
			}
			fmt.Fprintf(out, "Çalışan: %d\nKayıt: %d\nToplam saat: %g\nOrtalama saat: %g\n",
				s.TotalEmployees, s.TotalRecords, s.TotalWorkHours, s.AvgWorkHours)
			return nil
		},
	}
	cmd.Flags().String("file", "", "export file (defaults to the configured export path)")
	return cmd
}
