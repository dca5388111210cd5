// Package worker runs the per-file pipeline: extract audio, transcribe,
// translate, burn. One Pipeline instance is shared by all workers; per-job
// state lives in the Job and in local variables.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/subarr/internal/asr"
	"github.com/jmylchreest/subarr/internal/config"
	"github.com/jmylchreest/subarr/internal/events"
	"github.com/jmylchreest/subarr/internal/ffmpeg"
	"github.com/jmylchreest/subarr/internal/observability"
	"github.com/jmylchreest/subarr/internal/subtitle"
	"github.com/jmylchreest/subarr/internal/translate"
)

// Stage progress budget. Each stage reports within its band; percent is
// monotone per job.
const (
	pctExtractDone    = 10
	pctModelInit      = 12
	pctModelReady     = 20
	pctTranscribeDone = 70
	pctTranslateStart = 72
	pctTranslateDone  = 80
	pctBurnCeiling    = 99
)

// Job is one unit of work: a single input video plus the settings frozen at
// submission time.
type Job struct {
	ID        string
	InputPath string
	Snapshot  config.Snapshot
}

// BaseName is the input file name without its extension; it prefixes every
// cached artifact.
func (j Job) BaseName() string {
	base := filepath.Base(j.InputPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Result is the terminal state of a pipeline run.
type Result struct {
	Outcome    events.Outcome
	Detail     string
	OutputPath string
}

// MediaTool is the subset of the ffmpeg adapter the pipeline needs.
type MediaTool interface {
	ExtractAudio(ctx context.Context, input, output string, timeout time.Duration) error
	Duration(ctx context.Context, path string) (float64, error)
	Burn(ctx context.Context, input, srtPath, output string, onProgress func(percent int)) error
}

// Transcriber is the subset of the speech gateway the pipeline needs.
type Transcriber interface {
	Acquire(ctx context.Context, onDownload func(percent float64)) (string, error)
	Transcribe(ctx context.Context, wavPath string, durationSec float64, onChunk func(done, total int)) (asr.AlignedResult, error)
}

// TranslationService is the per-job translation facade.
type TranslationService interface {
	Translate(ctx context.Context, texts []string, onBatch func(done, total int)) []string
	Close() error
}

// TranslatorFactory builds a translation service for a job's settings.
type TranslatorFactory func(snap config.Snapshot) (TranslationService, error)

// Pipeline executes jobs. Safe for concurrent use.
type Pipeline struct {
	media         MediaTool
	transcriber   Transcriber
	newTranslator TranslatorFactory
	bus           *events.Bus
	logger        *slog.Logger
}

// NewPipeline wires the pipeline's collaborators.
func NewPipeline(media MediaTool, transcriber Transcriber, factory TranslatorFactory, bus *events.Bus, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		media:         media,
		transcriber:   transcriber,
		newTranslator: factory,
		bus:           bus,
		logger:        observability.WithComponent(logger, "worker"),
	}
}

// Run drives the four stages for one job and returns its terminal result.
// Run never panics outward on ordinary errors; a cancelled context yields a
// failed result with detail "cancelled". The caller emits JobFinished.
func (p *Pipeline) Run(ctx context.Context, job Job) Result {
	logger := observability.WithJob(p.logger, job.ID).With(slog.String("file", job.BaseName()))
	done := observability.TimedOperation(ctx, logger, "pipeline")
	defer done()

	stopTimer := p.startTimer(ctx, job)
	defer stopTimer()

	res := p.run(ctx, logger, job)
	if res.Outcome == events.OutcomeFailed && ctx.Err() != nil {
		res.Detail = "cancelled"
	}
	return res
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, job Job) Result {
	prog := newProgress(p.bus, job)

	// Stage 1: extract audio.
	prog.status(ctx, "Extracting audio")
	prog.percent(ctx, 0)

	audioPath := p.artifact(job, "_audio.wav")
	if err := p.extractAudio(ctx, job, audioPath); err != nil {
		return failResult(err)
	}
	prog.percent(ctx, pctExtractDone)

	// Stage 2: transcribe (model acquisition included).
	prog.status(ctx, "Loading model")
	prog.percent(ctx, pctModelInit)
	if _, err := p.transcriber.Acquire(ctx, func(pct float64) {
		prog.percent(ctx, pctModelInit+int(pct/100*float64(pctModelReady-pctModelInit)))
	}); err != nil {
		return failResult(fmt.Errorf("acquiring model: %w", err))
	}
	prog.percent(ctx, pctModelReady)

	prog.status(ctx, "Transcribing")
	srtPath := p.artifact(job, "_output.srt")
	if err := p.transcribe(ctx, logger, job, audioPath, srtPath, prog); err != nil {
		return failResult(err)
	}
	prog.percent(ctx, pctTranscribeDone)

	// Stage 3: translate.
	prog.status(ctx, "Translating")
	prog.percent(ctx, pctTranslateStart)
	bilingualPath := p.artifact(job, "_bilingual.srt")
	empty, err := p.translateSubtitles(ctx, logger, job, srtPath, bilingualPath, prog)
	if err != nil {
		return failResult(err)
	}
	prog.percent(ctx, pctTranslateDone)

	if empty {
		prog.percent(ctx, 100)
		return Result{Outcome: events.OutcomeSkipped, Detail: "bilingual subtitles empty"}
	}

	if job.Snapshot.SkipBurn {
		prog.percent(ctx, 100)
		return Result{Outcome: events.OutcomeCompleted, OutputPath: bilingualPath}
	}

	// Stage 4: burn.
	prog.status(ctx, "Burning subtitles")
	outputPath := outputPathFor(job, time.Now())
	if err := p.media.Burn(ctx, job.InputPath, bilingualPath, outputPath, func(pct int) {
		prog.percent(ctx, pct)
	}); err != nil {
		return failResult(fmt.Errorf("burning subtitles: %w", err))
	}
	prog.percent(ctx, 100)

	return Result{Outcome: events.OutcomeCompleted, OutputPath: outputPath}
}

// extractAudio reuses a cached extraction when present.
func (p *Pipeline) extractAudio(ctx context.Context, job Job, audioPath string) error {
	if info, err := os.Stat(audioPath); err == nil && info.Size() > 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(audioPath), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	if err := p.media.ExtractAudio(ctx, job.InputPath, audioPath, job.Snapshot.ExtractTimeout); err != nil {
		return fmt.Errorf("extracting audio: %w", err)
	}
	return nil
}

// transcribe writes the monolingual SRT, reusing a cached one. Audio below
// the silence threshold produces an empty subtitle file without invoking
// the recognizer.
func (p *Pipeline) transcribe(ctx context.Context, logger *slog.Logger, job Job, audioPath, srtPath string, prog *progressTracker) error {
	if _, err := os.Stat(srtPath); err == nil {
		logger.Debug("reusing cached transcription", slog.String("path", srtPath))
		return nil
	}

	if info, err := os.Stat(audioPath); err == nil && info.Size() < ffmpeg.EmptyAudioThreshold {
		logger.Info("audio below silence threshold, writing empty subtitles")
		return writeCues(srtPath, nil)
	}

	probeCtx, cancel := context.WithTimeout(ctx, job.Snapshot.ProbeTimeout)
	duration, err := p.media.Duration(probeCtx, audioPath)
	cancel()
	if err != nil {
		logger.Debug("audio duration unknown", slog.String("error", err.Error()))
		duration = 0
	}

	result, err := p.transcriber.Transcribe(ctx, audioPath, duration, func(done, total int) {
		span := pctTranscribeDone - pctModelReady
		prog.percent(ctx, pctModelReady+done*span/total)
	})
	if err != nil {
		return fmt.Errorf("transcribing: %w", err)
	}

	return writeCues(srtPath, subtitle.FromAligned(result))
}

// translateSubtitles writes the bilingual SRT and reports whether it ended
// up empty. A cached bilingual file is reused. Progress advances through
// the translate band as batches settle.
func (p *Pipeline) translateSubtitles(ctx context.Context, logger *slog.Logger, job Job, srtPath, bilingualPath string, prog *progressTracker) (empty bool, err error) {
	if data, statErr := os.ReadFile(bilingualPath); statErr == nil {
		cached, parseErr := subtitle.ParseString(string(data))
		if parseErr == nil {
			logger.Debug("reusing cached bilingual subtitles", slog.String("path", bilingualPath))
			return len(cached) == 0, nil
		}
	}

	data, err := os.ReadFile(srtPath)
	if err != nil {
		return false, fmt.Errorf("reading transcription: %w", err)
	}
	cues, err := subtitle.ParseString(string(data))
	if err != nil {
		return false, fmt.Errorf("parsing transcription: %w", err)
	}

	bilingual := cues
	if !job.Snapshot.SkipTranslation && len(cues) > 0 {
		svc, err := p.newTranslator(job.Snapshot)
		if err != nil {
			return false, fmt.Errorf("building translator: %w", err)
		}
		defer func() {
			if closeErr := svc.Close(); closeErr != nil {
				logger.Warn("persisting translation cache failed",
					slog.String("error", closeErr.Error()))
			}
		}()

		texts := make([]string, len(cues))
		for i, c := range cues {
			texts[i] = c.Text()
		}
		translations := svc.Translate(ctx, texts, func(done, total int) {
			span := pctTranslateDone - pctTranslateStart
			prog.percent(ctx, pctTranslateStart+done*span/total)
		})
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		bilingual, err = translate.Bilingual(cues, translations)
		if err != nil {
			return false, err
		}
	}

	bilingual = subtitle.Normalize(bilingual)
	if err := writeCues(bilingualPath, bilingual); err != nil {
		return false, err
	}
	return len(bilingual) == 0, nil
}

// artifact returns the cache path for one of the job's intermediate files.
func (p *Pipeline) artifact(job Job, suffix string) string {
	return filepath.Join(job.Snapshot.CacheDir, job.BaseName()+suffix)
}

// outputPathFor places the subtitled video next to the input with a
// timestamped name, keeping the input extension.
func outputPathFor(job Job, now time.Time) string {
	ext := filepath.Ext(job.InputPath)
	name := fmt.Sprintf("%s_subtitled_%s%s", job.BaseName(), now.Format("20060102_150405"), ext)
	return filepath.Join(filepath.Dir(job.InputPath), name)
}

func writeCues(path string, cues []subtitle.Cue) error {
	if err := os.WriteFile(path, []byte(subtitle.EmitString(cues)), 0o644); err != nil {
		return fmt.Errorf("writing subtitles: %w", err)
	}
	return nil
}

func failResult(err error) Result {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	var burnErr *ffmpeg.BurnError
	if errors.As(err, &burnErr) {
		detail = burnErr.Error()
	}
	return Result{Outcome: events.OutcomeFailed, Detail: detail}
}

// startTimer emits a TimerTick every second until the returned stop
// function is called.
func (p *Pipeline) startTimer(ctx context.Context, job Job) func() {
	timerCtx, cancel := context.WithCancel(ctx)
	started := time.Now()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-timerCtx.Done():
				return
			case <-ticker.C:
				elapsed := int(time.Since(started).Seconds())
				tick := events.TimerTick{
					JobID:    job.ID,
					BaseName: job.BaseName(),
					Elapsed:  fmt.Sprintf("%02d:%02d", elapsed/60, elapsed%60),
				}
				if err := p.bus.Publish(timerCtx, tick); err != nil {
					return
				}
			}
		}
	}()
	return cancel
}

// progressTracker publishes Progress and Status events, keeping percent
// monotone per job.
type progressTracker struct {
	bus  *events.Bus
	job  Job
	last int
}

func newProgress(bus *events.Bus, job Job) *progressTracker {
	return &progressTracker{bus: bus, job: job, last: -1}
}

func (t *progressTracker) percent(ctx context.Context, pct int) {
	if pct <= t.last {
		return
	}
	t.last = pct
	_ = t.bus.Publish(ctx, events.Progress{
		JobID:    t.job.ID,
		BaseName: t.job.BaseName(),
		Percent:  pct,
	})
}

func (t *progressTracker) status(ctx context.Context, text string) {
	_ = t.bus.Publish(ctx, events.Status{
		JobID:    t.job.ID,
		BaseName: t.job.BaseName(),
		Text:     text,
	})
}
