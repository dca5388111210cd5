package scheduler

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/subarr/internal/config"
	"github.com/jmylchreest/subarr/internal/observability"
)

// Watcher rescans a drop directory on a cron schedule and submits new video
// files. Files are deduplicated by path for the lifetime of the watcher, so
// a file is submitted at most once.
type Watcher struct {
	dir        string
	extensions map[string]struct{}
	submit     func(path string) error
	logger     *slog.Logger

	cron *cron.Cron

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewWatcher creates a watcher over dir. Accepted extensions come from the
// watch configuration; the submit callback receives each new file path.
func NewWatcher(dir string, cfg config.WatchConfig, submit func(path string) error, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	exts := make(map[string]struct{}, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[strings.ToLower(e)] = struct{}{}
	}

	w := &Watcher{
		dir:        dir,
		extensions: exts,
		submit:     submit,
		logger:     observability.WithComponent(logger, "watcher"),
		cron:       cron.New(),
		seen:       make(map[string]struct{}),
	}

	if _, err := w.cron.AddFunc(cfg.Schedule, w.Scan); err != nil {
		return nil, fmt.Errorf("invalid watch schedule %q: %w", cfg.Schedule, err)
	}
	return w, nil
}

// Start performs an immediate scan and begins the schedule.
func (w *Watcher) Start() {
	w.Scan()
	w.cron.Start()
	w.logger.Info("watching drop directory", slog.String("dir", w.dir))
}

// Stop halts the schedule. A scan in flight completes first.
func (w *Watcher) Stop() {
	<-w.cron.Stop().Done()
}

// Scan walks the drop directory once and submits unseen video files.
func (w *Watcher) Scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("scanning drop directory failed",
			slog.String("dir", w.dir),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if _, ok := w.extensions[ext]; !ok {
			continue
		}

		path := filepath.Join(w.dir, name)
		if !w.markSeen(path) {
			continue
		}

		if err := w.submit(path); err != nil {
			w.logger.Warn("submitting watched file failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			w.forget(path)
		} else {
			w.logger.Info("submitted watched file", slog.String("path", path))
		}
	}
}

// markSeen records the path, reporting false when it was already known.
func (w *Watcher) markSeen(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.seen[path]; ok {
		return false
	}
	w.seen[path] = struct{}{}
	return true
}

// forget allows a failed submission to be retried on the next scan.
func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.seen, path)
}
