// Package asr provides speech recognition: model acquisition with a
// single-download guarantee, the whisper CLI adapter, and chunked
// transcription of long audio.
package asr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/jmylchreest/subarr/internal/config"
	"github.com/jmylchreest/subarr/internal/events"
	"github.com/jmylchreest/subarr/internal/httpclient"
	"github.com/jmylchreest/subarr/internal/observability"
)

// SegmentExtractor cuts a time window out of a WAV file. Satisfied by the
// ffmpeg adapter.
type SegmentExtractor interface {
	ExtractSegment(ctx context.Context, input, output string, startSec, durSec float64) error
}

// Gateway is the shared speech recognition entry point. All workers use one
// instance; the model is downloaded at most once per process, and an
// advisory file lock extends the guarantee across processes sharing a model
// directory.
type Gateway struct {
	cfg        config.ASRConfig
	modelDir   string
	recognizer Recognizer
	extractor  SegmentExtractor
	bus        *events.Bus
	logger     *slog.Logger
	dl         *downloader

	mu        chan struct{} // acquisition semaphore, capacity 1
	modelPath string        // set once acquisition succeeds
}

// NewGateway builds the shared gateway. The recognizer and extractor are
// injected so tests can substitute fakes.
func NewGateway(cfg config.ASRConfig, modelDir string, rec Recognizer, ext SegmentExtractor, client *httpclient.Client, bus *events.Bus, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	logger = observability.WithComponent(logger, "asr")
	return &Gateway{
		cfg:        cfg,
		modelDir:   modelDir,
		recognizer: rec,
		extractor:  ext,
		bus:        bus,
		logger:     logger,
		dl:         &downloader{client: client, bus: bus, logger: logger},
		mu:         make(chan struct{}, 1),
	}
}

// lock takes the model semaphore, honoring cancellation while waiting.
func (g *Gateway) lock(ctx context.Context) error {
	select {
	case g.mu <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) unlock() { <-g.mu }

// Acquire ensures the model file is present and valid, downloading it on
// first use. Concurrent callers block until the first finishes; onDownload,
// when non-nil, receives download percent in [0, 100] for the caller that
// triggers the download. Returns the model path.
func (g *Gateway) Acquire(ctx context.Context, onDownload func(percent float64)) (string, error) {
	if err := g.lock(ctx); err != nil {
		return "", err
	}
	defer g.unlock()
	return g.ensureModelLocked(ctx, onDownload)
}

// ensureModelLocked implements the acquisition protocol. Caller holds the
// model semaphore.
func (g *Gateway) ensureModelLocked(ctx context.Context, onDownload func(percent float64)) (string, error) {
	if g.modelPath != "" {
		return g.modelPath, nil
	}

	if err := os.MkdirAll(g.modelDir, 0o755); err != nil {
		return "", fmt.Errorf("creating model directory: %w", err)
	}
	path := filepath.Join(g.modelDir, g.cfg.ModelName)
	minSize, maxSize := int64(g.cfg.ModelMinSize), int64(g.cfg.ModelMaxSize)

	if err := validateModel(path, minSize, maxSize); err == nil {
		g.modelPath = path
		return path, nil
	} else if _, statErr := os.Stat(path); statErr == nil {
		g.logger.Warn("removing invalid model file", slog.String("path", path),
			slog.String("error", err.Error()))
		os.Remove(path)
	}

	// Advisory lock so concurrent processes sharing the model directory
	// download once. A lock failure degrades to the in-process guarantee.
	fl := flock.New(path + ".lock")
	locked, lockErr := fl.TryLockContext(ctx, 500*time.Millisecond)
	if lockErr != nil || !locked {
		g.logger.Warn("model file lock unavailable, continuing without it",
			slog.Any("error", lockErr))
	} else {
		defer fl.Unlock()
		// Another process may have finished while we waited.
		if validateModel(path, minSize, maxSize) == nil {
			g.modelPath = path
			return path, nil
		}
	}

	if err := g.downloadModel(ctx, path, minSize, maxSize, onDownload); err != nil {
		if pubErr := g.bus.Publish(ctx, events.DownloadError{Msg: err.Error()}); pubErr != nil {
			g.logger.Debug("dropping download error event", slog.String("error", pubErr.Error()))
		}
		return "", err
	}

	g.modelPath = path
	return path, nil
}

// downloadModel fetches the model, retrying once when the downloaded file
// fails validation.
func (g *Gateway) downloadModel(ctx context.Context, path string, minSize, maxSize int64, onDownload func(float64)) error {
	url := strings.TrimRight(g.cfg.ModelBaseURL, "/") + "/" + g.cfg.ModelName
	g.logger.Info("downloading model",
		slog.String("model", g.cfg.ModelName),
		slog.String("url", url),
	)

	g.dl.onPercent = onDownload
	defer func() { g.dl.onPercent = nil }()

	err := g.dl.download(ctx, url, path, g.cfg.ModelName, minSize, maxSize)
	if errors.Is(err, ErrModelCorrupted) {
		g.logger.Warn("downloaded model failed validation, retrying once",
			slog.String("error", err.Error()))
		os.Remove(path)
		err = g.dl.download(ctx, url, path, g.cfg.ModelName, minSize, maxSize)
	}
	if err != nil {
		return fmt.Errorf("acquiring model %s: %w", g.cfg.ModelName, err)
	}
	return nil
}

// Transcribe recognizes the WAV at wavPath. Audio longer than the
// configured chunk size is transcribed in overlapping chunks and merged;
// onChunk, when non-nil, is called after each chunk with (done, total).
// The model semaphore is held for the whole call: the recognizer runtime
// is not reentrant, so at most one transcription runs per process.
func (g *Gateway) Transcribe(ctx context.Context, wavPath string, durationSec float64, onChunk func(done, total int)) (AlignedResult, error) {
	if err := g.lock(ctx); err != nil {
		return AlignedResult{}, err
	}
	defer g.unlock()

	modelPath, err := g.ensureModelLocked(ctx, nil)
	if err != nil {
		return AlignedResult{}, err
	}

	var terr error
	done := observability.TimedOperationWithError(ctx, g.logger, "transcribe", &terr)
	defer done()

	chunks := planChunks(durationSec, g.cfg.ChunkSeconds, g.cfg.OverlapSeconds)
	if len(chunks) <= 1 {
		var res AlignedResult
		res, terr = g.recognizer.Recognize(ctx, modelPath, wavPath)
		if terr != nil {
			return AlignedResult{}, terr
		}
		if onChunk != nil {
			onChunk(1, 1)
		}
		return res, nil
	}

	var res AlignedResult
	res, terr = g.transcribeChunked(ctx, modelPath, wavPath, chunks, onChunk)
	return res, terr
}
