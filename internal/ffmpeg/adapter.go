package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/subarr/internal/config"
	"github.com/jmylchreest/subarr/internal/observability"
)

// SilentAudioDuration is the length of the fallback track emitted when the
// source has no audio stream.
const SilentAudioDuration = 0.1

// EmptyAudioThreshold is the size in bytes below which an extracted WAV is
// treated as silence.
const EmptyAudioThreshold = 1024

// burnStyle is the force_style override applied when burning subtitles:
// size 16, white primary, black outline, opaque background box.
const burnStyle = "FontSize=16,PrimaryColour=&HFFFFFF,OutlineColour=&H000000,BorderStyle=3"

// Adapter shells out to ffmpeg/ffprobe for probing, extraction, and
// subtitle burning. It is safe for concurrent use; each operation runs its
// own process.
type Adapter struct {
	info   *BinaryInfo
	hw     *HWAccel
	logger *slog.Logger
}

// NewAdapter locates the binaries and selects a hardware acceleration path.
// A missing ffmpeg binary is a fatal ErrToolNotFound.
func NewAdapter(ctx context.Context, cfg config.FFmpegConfig, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = observability.WithComponent(logger, "ffmpeg")

	info, err := NewBinaryDetector(cfg.BinaryPath, cfg.ProbePath).Detect(ctx)
	if err != nil {
		return nil, err
	}

	hw := SelectHWAccel(info, cfg.HWAccelPriority)
	if hw != nil {
		logger.Debug("hardware acceleration selected",
			slog.String("method", hw.Method),
			slog.String("encoder", hw.Encoder),
		)
	}

	return &Adapter{info: info, hw: hw, logger: logger}, nil
}

// Info returns the detected binary information.
func (a *Adapter) Info() *BinaryInfo {
	return a.info
}

// HasAudioStream probes the input with a null-output pass to check for an
// audio stream. Ambiguous probe results report true so the caller proceeds
// optimistically.
func (a *Adapter) HasAudioStream(ctx context.Context, input string, timeout time.Duration) bool {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, a.info.FFmpegPath,
		"-hide_banner",
		"-i", input,
		"-map", "a",
		"-f", "null", "-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if strings.Contains(stderr.String(), "matches no streams") {
			return false
		}
		// Probe failed for some other reason; proceed optimistically.
		a.logger.Debug("audio probe ambiguous", slog.String("input", input),
			slog.String("error", err.Error()))
	}
	return true
}

// Duration returns the media duration in seconds via ffprobe. Returns an
// error when ffprobe is unavailable or the file cannot be read; callers
// treat an unknown duration as non-fatal.
func (a *Adapter) Duration(ctx context.Context, path string) (float64, error) {
	if a.info.FFprobePath == "" {
		return 0, fmt.Errorf("%w: ffprobe", ErrToolNotFound)
	}

	cmd := exec.CommandContext(ctx, a.info.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("probing duration of %s: %w", path, err)
	}

	dur, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing duration %q: %w", strings.TrimSpace(string(output)), err)
	}
	return dur, nil
}

// ExtractAudio produces mono 16 kHz PCM from the input video. When the
// source has no audio stream, a 0.1 s silent track in the same format is
// written instead. The output must exist and be non-empty on return.
func (a *Adapter) ExtractAudio(ctx context.Context, input, output string, timeout time.Duration) error {
	var err error
	done := observability.TimedOperationWithError(ctx, a.logger, "extract_audio", &err)
	defer done()

	extractCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !a.HasAudioStream(ctx, input, 30*time.Second) {
		a.logger.Info("no audio stream, writing silent track", slog.String("input", input))
		err = a.extractSilence(extractCtx, output)
		return err
	}

	cmd := exec.CommandContext(extractCtx, a.info.FFmpegPath,
		"-hide_banner",
		"-i", input,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", "16000",
		"-y", output,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if runErr := cmd.Run(); runErr != nil {
		if extractCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("%w: timed out after %s", ErrExtractFailed, timeout)
			return err
		}
		err = fmt.Errorf("%w: %v: %s", ErrExtractFailed, runErr, tail(stderr.String(), 300))
		return err
	}

	if err = verifyNonEmpty(output); err != nil {
		return err
	}
	return nil
}

// extractSilence writes a short silent WAV matching the extraction format.
func (a *Adapter) extractSilence(ctx context.Context, output string) error {
	cmd := exec.CommandContext(ctx, a.info.FFmpegPath,
		"-hide_banner",
		"-f", "lavfi",
		"-i", "anullsrc=r=16000:cl=mono",
		"-t", strconv.FormatFloat(SilentAudioDuration, 'f', -1, 64),
		"-acodec", "pcm_s16le",
		"-y", output,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: silent fallback: %v: %s", ErrExtractFailed, err, tail(stderr.String(), 300))
	}
	return verifyNonEmpty(output)
}

// ExtractSegment copies a time window out of a WAV file. Used for chunked
// transcription of long audio.
func (a *Adapter) ExtractSegment(ctx context.Context, input, output string, startSec, durSec float64) error {
	cmd := exec.CommandContext(ctx, a.info.FFmpegPath,
		"-hide_banner",
		"-ss", strconv.FormatFloat(startSec, 'f', 3, 64),
		"-t", strconv.FormatFloat(durSec, 'f', 3, 64),
		"-i", input,
		"-acodec", "copy",
		"-y", output,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("extracting segment [%.1f, %.1f) from %s: %v: %s",
			startSec, startSec+durSec, input, err, tail(stderr.String(), 300))
	}
	return verifyNonEmpty(output)
}

// Burn renders the subtitle file permanently into the video. Progress is
// streamed off the tool's stderr as a monotone heuristic within [80, 99];
// the caller reports 100 only after a successful exit. Burning has no
// timeout but honors context cancellation.
func (a *Adapter) Burn(ctx context.Context, input, srtPath, output string, onProgress func(percent int)) error {
	var err error
	done := observability.TimedOperationWithError(ctx, a.logger, "burn_subtitles", &err)
	defer done()

	total, durErr := a.Duration(ctx, input)
	if durErr != nil {
		a.logger.Debug("burn progress degraded, duration unknown",
			slog.String("error", durErr.Error()))
	}

	args := []string{"-hide_banner"}
	if a.hw != nil {
		args = append(args, "-hwaccel", a.hw.Method)
	}
	args = append(args,
		"-i", input,
		"-vf", fmt.Sprintf("subtitles='%s':force_style='%s'", escapeFilterPath(srtPath), burnStyle),
	)
	if a.hw != nil {
		args = append(args, "-c:v", a.hw.Encoder)
	}
	args = append(args, "-c:a", "copy", "-y", output)

	cmd := exec.CommandContext(ctx, a.info.FFmpegPath, args...)
	stderrPipe, pipeErr := cmd.StderrPipe()
	if pipeErr != nil {
		err = fmt.Errorf("creating stderr pipe: %w", pipeErr)
		return err
	}

	if err = cmd.Start(); err != nil {
		err = fmt.Errorf("starting burn: %w", err)
		return err
	}

	mapper := newProgressMapper(total, 80, 99)
	var stderrTail strings.Builder

	scanner := bufio.NewScanner(stderrPipe)
	scanner.Split(scanProgressLines)
	for scanner.Scan() {
		line := scanner.Text()
		stderrTail.WriteString(line)
		stderrTail.WriteByte('\n')
		if seconds, ok := parseProgressTime(line); ok && onProgress != nil {
			onProgress(mapper.Map(seconds))
		}
	}

	if waitErr := cmd.Wait(); waitErr != nil {
		err = &BurnError{ExitErr: waitErr, Stderr: stderrTail.String()}
		return err
	}
	return nil
}

// scanProgressLines splits on both \n and \r, since ffmpeg rewrites its
// progress line with carriage returns.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// escapeFilterPath escapes a path for use inside a quoted ffmpeg filter
// argument. Colons and quotes are significant to the filter parser.
func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, `\`, `\\`)
	p = strings.ReplaceAll(p, `'`, `\'`)
	p = strings.ReplaceAll(p, `:`, `\:`)
	return p
}

// verifyNonEmpty fails with ErrExtractFailed when the output is missing or empty.
func verifyNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: output missing: %v", ErrExtractFailed, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: output empty", ErrExtractFailed)
	}
	return nil
}

// tail returns the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
