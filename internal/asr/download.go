package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jmylchreest/subarr/internal/events"
	"github.com/jmylchreest/subarr/internal/httpclient"
)

// ErrModelCorrupted indicates a downloaded model failed validation.
var ErrModelCorrupted = errors.New("model file corrupted")

const (
	progressInterval = time.Second
	mb               = 1024 * 1024
)

// downloader streams a model file to disk with progress events.
type downloader struct {
	client *httpclient.Client
	bus    *events.Bus
	logger *slog.Logger

	// onPercent, when set, receives the download percent in [0, 100] so
	// the acquiring job can fold it into its own progress.
	onPercent func(percent float64)
}

// download fetches url into dest atomically via a .part file. Progress is
// published at least once per second. The completed file is validated
// against the size band and the ggml magic; a failed validation removes the
// file and returns ErrModelCorrupted so the caller can retry.
func (d *downloader) download(ctx context.Context, url, dest, modelName string, minSize, maxSize int64) error {
	if err := d.bus.Publish(ctx, events.DownloadStarted{ModelName: modelName}); err != nil {
		return err
	}

	total := d.contentLength(ctx, url)

	resp, err := d.client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("fetching model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching model: unexpected status %d", resp.StatusCode)
	}
	if total <= 0 {
		total = resp.ContentLength
	}

	part := dest + ".part"
	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("creating model file: %w", err)
	}
	defer os.Remove(part)

	if err := d.copyWithProgress(ctx, f, resp.Body, total); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("flushing model file: %w", err)
	}

	if err := validateModel(part, minSize, maxSize); err != nil {
		return err
	}
	if err := os.Rename(part, dest); err != nil {
		return fmt.Errorf("finalizing model file: %w", err)
	}

	return d.bus.Publish(ctx, events.DownloadCompleted{ModelName: modelName})
}

// contentLength probes the total size with a HEAD request. Zero means unknown.
func (d *downloader) contentLength(ctx context.Context, url string) int64 {
	resp, err := d.client.Head(ctx, url)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0
	}
	return resp.ContentLength
}

func (d *downloader) copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64) error {
	var written int64
	start := time.Now()
	lastReport := start
	buf := make([]byte, 256*1024)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return fmt.Errorf("writing model file: %w", err)
			}
			written += int64(n)
		}

		now := time.Now()
		if now.Sub(lastReport) >= progressInterval || readErr == io.EOF {
			lastReport = now
			d.publishProgress(ctx, written, total, now.Sub(start))
		}

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("reading model stream: %w", readErr)
		}
	}
}

func (d *downloader) publishProgress(ctx context.Context, written, total int64, elapsed time.Duration) {
	ev := events.DownloadProgress{
		DownloadedMB: float64(written) / mb,
	}
	if total > 0 {
		ev.TotalMB = float64(total) / mb
		ev.Percent = float64(written) / float64(total) * 100
	}
	if secs := elapsed.Seconds(); secs > 0 {
		ev.SpeedMBps = ev.DownloadedMB / secs
	}
	if d.onPercent != nil && total > 0 {
		d.onPercent(ev.Percent)
	}
	if err := d.bus.Publish(ctx, ev); err != nil {
		d.logger.Debug("dropping download progress", slog.String("error", err.Error()))
	}
}

// validateModel checks the file size band and the ggml container magic.
func validateModel(path string, minSize, maxSize int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelCorrupted, err)
	}
	if info.Size() < minSize || info.Size() > maxSize {
		return fmt.Errorf("%w: size %d outside [%d, %d]", ErrModelCorrupted, info.Size(), minSize, maxSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelCorrupted, err)
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return fmt.Errorf("%w: reading magic: %v", ErrModelCorrupted, err)
	}
	if !validMagic(magic) {
		return fmt.Errorf("%w: bad magic %q", ErrModelCorrupted, magic)
	}
	return nil
}

// validMagic accepts the ggml magic in either byte order; the container
// stores it as a little-endian uint32.
func validMagic(b []byte) bool {
	s := strings.ToLower(string(b))
	return s == "ggml" || s == "lmgg"
}
