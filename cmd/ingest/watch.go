package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/AesBiarenti/STAJ22001/engine/ingest"
	"github.com/nats-io/nats.go"
)

type watchOpts struct {
	dir       string
	interval  time.Duration
	stateFile string
}

// watcher loads each new spreadsheet in a directory once. A file is keyed by
// name, size and modification time so a replaced file is loaded again.
type watcher struct {
	opts watchOpts
	deps ingest.Deps
	// nc, when set, hands records to the consumer instead of loading inline.
	nc  *nats.Conn
	log *slog.Logger
}

func (w *watcher) loop(ctx context.Context) error {
	if err := os.MkdirAll(w.opts.dir, 0o755); err != nil {
		return fmt.Errorf("watch dir: %w", err)
	}
	processed := loadState(w.opts.stateFile)
	w.log.Info("watching for spreadsheets", "dir", w.opts.dir, "interval", w.opts.interval)

	w.scan(ctx, processed)
	ticker := time.NewTicker(w.opts.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("shutting down")
			return nil
		case <-ticker.C:
			w.scan(ctx, processed)
		}
	}
}

// pending lists spreadsheet files not yet in processed, oldest first.
func pending(dir string, processed map[string]bool) ([]string, map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	type file struct {
		name string
		mod  time.Time
	}
	var files []file
	keys := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if e.IsDir() || name[0] == '.' || (ext != ".xlsx" && ext != ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		key := fmt.Sprintf("%s:%d:%d", name, info.Size(), info.ModTime().Unix())
		if processed[key] {
			continue
		}
		keys[name] = key
		files = append(files, file{name, info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, keys, nil
}

func (w *watcher) scan(ctx context.Context, processed map[string]bool) {
	mLastScan.SetToCurrentTime()
	names, keys, err := pending(w.opts.dir, processed)
	if err != nil {
		w.log.Error("readdir failed", "err", err)
		return
	}
	for _, name := range names {
		if ctx.Err() != nil {
			return
		}
		if err := w.load(ctx, name); err != nil {
			w.log.Warn("file failed, will retry on next scan", "file", name, "err", err)
			mFilesTotal("failed").Inc()
			continue
		}
		mFilesTotal("loaded").Inc()
		processed[keys[name]] = true
		saveState(w.opts.stateFile, processed)
	}
}

func (w *watcher) load(ctx context.Context, name string) error {
	f, err := os.Open(filepath.Join(w.opts.dir, name))
	if err != nil {
		return err
	}
	defer f.Close()

	if w.nc != nil {
		n, err := ingest.UploadAsync(ctx, w.deps, w.nc, name, f)
		w.log.Info("file queued", "file", name, "records", n)
		return err
	}
	rep, err := ingest.Upload(ctx, w.deps, name, f)
	if err != nil {
		return err
	}
	w.log.Info("file done", "file", name, "added", rep.Added, "failed", rep.Failed, "degraded", rep.Degraded)
	if !rep.OK() {
		return fmt.Errorf("%s", rep.Message())
	}
	return nil
}

func loadState(path string) map[string]bool {
	m := make(map[string]bool)
	if path == "" {
		return m
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	json.Unmarshal(data, &m)
	return m
}

func saveState(path string, m map[string]bool) {
	if path == "" {
		return
	}
	data, _ := json.Marshal(m)
	os.WriteFile(path, data, 0o644)
}
