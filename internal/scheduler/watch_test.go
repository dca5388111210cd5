package scheduler

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/subarr/internal/config"
)

type submitRecorder struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (r *submitRecorder) submit(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.paths = append(r.paths, path)
	return nil
}

func (r *submitRecorder) submitted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func watchConfig() config.WatchConfig {
	return config.WatchConfig{
		Schedule:   "* * * * *",
		Extensions: []string{".mp4", "mkv"},
	}
}

func TestWatcherScanFiltersAndDedupes(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.mp4", "b.mkv", "notes.txt", "c.MP4"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.mp4"), 0o755))

	rec := &submitRecorder{}
	w, err := NewWatcher(dir, watchConfig(), rec.submit, nil)
	require.NoError(t, err)

	w.Scan()
	got := rec.submitted()
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.mp4"),
		filepath.Join(dir, "b.mkv"),
		filepath.Join(dir, "c.MP4"),
	}, got, "extension match is case-insensitive, directories and other files skipped")

	// A second scan submits nothing new.
	w.Scan()
	assert.Len(t, rec.submitted(), 3)

	// A new file appearing later is picked up.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.mp4"), []byte("x"), 0o644))
	w.Scan()
	assert.Len(t, rec.submitted(), 4)
}

func TestWatcherRetriesFailedSubmission(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.mp4"), []byte("x"), 0o644))

	rec := &submitRecorder{err: errors.New("queue closed")}
	w, err := NewWatcher(dir, watchConfig(), rec.submit, nil)
	require.NoError(t, err)

	w.Scan()
	assert.Empty(t, rec.submitted())

	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()

	w.Scan()
	assert.Len(t, rec.submitted(), 1, "failed submission is retried on the next scan")
}

func TestWatcherRejectsBadSchedule(t *testing.T) {
	cfg := watchConfig()
	cfg.Schedule = "not a schedule"
	_, err := NewWatcher(t.TempDir(), cfg, func(string) error { return nil }, nil)
	require.Error(t, err)
}
