package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jmylchreest/subarr/internal/asr"
	"github.com/jmylchreest/subarr/internal/config"
	"github.com/jmylchreest/subarr/internal/database"
	"github.com/jmylchreest/subarr/internal/events"
	"github.com/jmylchreest/subarr/internal/ffmpeg"
	"github.com/jmylchreest/subarr/internal/httpclient"
	"github.com/jmylchreest/subarr/internal/repository"
	"github.com/jmylchreest/subarr/internal/scheduler"
	"github.com/jmylchreest/subarr/internal/translate"
	"github.com/jmylchreest/subarr/internal/version"
	"github.com/jmylchreest/subarr/internal/worker"
)

// app holds the wired runtime for the process and watch commands.
type app struct {
	cfg   *config.Config
	sched *scheduler.Scheduler
	bus   *events.Bus
	db    *database.DB
}

// buildApp wires the pipeline, scheduler, and persistence from configuration.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.Storage.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	bus := events.NewBus(cfg.Scheduler.EventBuf)

	hcCfg := httpclient.DefaultConfig()
	hcCfg.UserAgent = version.UserAgent()
	hc := httpclient.New(hcCfg)

	adapter, err := ffmpeg.NewAdapter(ctx, cfg.FFmpeg, logger)
	if err != nil {
		return nil, err
	}

	recognizer, err := asr.NewWhisperRecognizer(cfg.ASR)
	if err != nil {
		return nil, err
	}
	gateway := asr.NewGateway(cfg.ASR, cfg.Storage.ModelDir, recognizer, adapter, hc, bus, logger)

	factory := func(snap config.Snapshot) (worker.TranslationService, error) {
		return translate.NewService(snap, hc, logger)
	}
	pipeline := worker.NewPipeline(adapter, gateway, factory, bus, logger)

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("opening job history database: %w", err)
	}

	sched := scheduler.New(pipeline, bus, cfg.Scheduler).
		WithLogger(logger).
		WithHistory(repository.NewJobHistoryRepository(db.DB))

	return &app{cfg: cfg, sched: sched, bus: bus, db: db}, nil
}

// close releases the app's resources.
func (a *app) close() {
	a.sched.Cleanup()
	if err := a.db.Close(); err != nil {
		slog.Warn("closing database", slog.String("error", err.Error()))
	}
}

// renderEvents prints pipeline events to stdout until ctx ends. Returns the
// number of jobs that finished in each outcome.
func (a *app) renderEvents(ctx context.Context, expected int) (completed, failed, skipped int) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	finished := 0
	for {
		for _, ev := range a.sched.PollEvents() {
			switch e := ev.(type) {
			case events.Status:
				fmt.Printf("[%s] %s\n", e.BaseName, e.Text)
			case events.Progress:
				fmt.Printf("[%s] %3d%%\n", e.BaseName, e.Percent)
			case events.DownloadStarted:
				fmt.Printf("Downloading model %s...\n", e.ModelName)
			case events.DownloadProgress:
				fmt.Printf("Model download: %.1f%% (%.1f/%.1f MB, %.1f MB/s)\n",
					e.Percent, e.DownloadedMB, e.TotalMB, e.SpeedMBps)
			case events.DownloadCompleted:
				fmt.Printf("Model %s ready.\n", e.ModelName)
			case events.DownloadError:
				fmt.Printf("Model download failed: %s\n", e.Msg)
			case events.JobFinished:
				finished++
				switch e.Outcome {
				case events.OutcomeCompleted:
					completed++
					fmt.Printf("DONE  %s (%s)\n", e.InputPath, e.Duration.Round(time.Second))
				case events.OutcomeSkipped:
					skipped++
					fmt.Printf("SKIP  %s: %s\n", e.InputPath, e.Detail)
				default:
					failed++
					fmt.Printf("FAIL  %s: %s\n", e.InputPath, e.Detail)
				}
			}
		}

		if expected > 0 && finished >= expected {
			return completed, failed, skipped
		}

		select {
		case <-ctx.Done():
			return completed, failed, skipped
		case <-ticker.C:
		}
	}
}
