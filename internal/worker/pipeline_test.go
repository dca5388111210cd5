package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/subarr/internal/asr"
	"github.com/jmylchreest/subarr/internal/config"
	"github.com/jmylchreest/subarr/internal/events"
	"github.com/jmylchreest/subarr/internal/observability"
	"github.com/jmylchreest/subarr/internal/subtitle"
)

type fakeMedia struct {
	extractCalls atomic.Int32
	burnCalls    atomic.Int32
	audioBytes   []byte
	burnErr      error
}

func (f *fakeMedia) ExtractAudio(_ context.Context, _, output string, _ time.Duration) error {
	f.extractCalls.Add(1)
	return os.WriteFile(output, f.audioBytes, 0o644)
}

func (f *fakeMedia) Duration(context.Context, string) (float64, error) {
	return 60, nil
}

func (f *fakeMedia) Burn(_ context.Context, _, _, output string, onProgress func(int)) error {
	f.burnCalls.Add(1)
	if f.burnErr != nil {
		return f.burnErr
	}
	onProgress(85)
	onProgress(99)
	return os.WriteFile(output, []byte("video"), 0o644)
}

type fakeTranscriber struct {
	result asr.AlignedResult
	calls  atomic.Int32
}

func (f *fakeTranscriber) Acquire(context.Context, func(float64)) (string, error) {
	return "/models/fake.bin", nil
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string, _ float64, onChunk func(int, int)) (asr.AlignedResult, error) {
	f.calls.Add(1)
	if onChunk != nil {
		onChunk(1, 1)
	}
	return f.result, nil
}

type fakeTranslation struct{}

func (fakeTranslation) Translate(_ context.Context, texts []string, onBatch func(done, total int)) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = "译:" + t
	}
	if onBatch != nil {
		onBatch(1, 2)
		onBatch(2, 2)
	}
	return out
}

func (fakeTranslation) Close() error { return nil }

func testPipeline(t *testing.T, media *fakeMedia, tr *fakeTranscriber) (*Pipeline, *events.Bus) {
	t.Helper()
	bus := events.NewBus(4096)
	logger := observability.NewLoggerWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, os.Stderr)
	factory := func(config.Snapshot) (TranslationService, error) { return fakeTranslation{}, nil }
	return NewPipeline(media, tr, factory, bus, logger), bus
}

func testJob(t *testing.T) Job {
	t.Helper()
	inputDir := t.TempDir()
	input := filepath.Join(inputDir, "movie.mp4")
	require.NoError(t, os.WriteFile(input, []byte("mp4"), 0o644))

	return Job{
		ID:        "01TESTJOB",
		InputPath: input,
		Snapshot: config.Snapshot{
			CacheDir:       t.TempDir(),
			ExtractTimeout: time.Minute,
			ProbeTimeout:   10 * time.Second,
		},
	}
}

func speech() asr.AlignedResult {
	return asr.AlignedResult{
		Text: "Hello there. How are you?",
		Sentences: []asr.Sentence{
			{Text: "Hello there.", Start: 0, End: 2},
			{Text: "How are you?", Start: 2.5, End: 4},
		},
	}
}

func TestPipelineHappyPath(t *testing.T) {
	media := &fakeMedia{audioBytes: make([]byte, 32*1024)}
	tr := &fakeTranscriber{result: speech()}
	p, bus := testPipeline(t, media, tr)
	job := testJob(t)

	res := p.Run(context.Background(), job)
	require.Equal(t, events.OutcomeCompleted, res.Outcome, res.Detail)

	// Output sits next to the input with the timestamped name.
	assert.Equal(t, filepath.Dir(job.InputPath), filepath.Dir(res.OutputPath))
	name := filepath.Base(res.OutputPath)
	assert.True(t, strings.HasPrefix(name, "movie_subtitled_"), name)
	assert.True(t, strings.HasSuffix(name, ".mp4"), name)

	// Bilingual cues carry the original above the translation.
	data, err := os.ReadFile(filepath.Join(job.Snapshot.CacheDir, "movie_bilingual.srt"))
	require.NoError(t, err)
	cues, err := subtitle.ParseString(string(data))
	require.NoError(t, err)
	require.Len(t, cues, 2)
	assert.Equal(t, []string{"Hello there.", "译:Hello there."}, cues[0].Lines)

	// Percent is monotone and ends at 100.
	var percents []int
	for _, ev := range bus.Poll() {
		if pr, ok := ev.(events.Progress); ok {
			percents = append(percents, pr.Percent)
		}
	}
	require.NotEmpty(t, percents)
	for i := 1; i < len(percents); i++ {
		assert.GreaterOrEqual(t, percents[i], percents[i-1])
	}
	assert.Equal(t, 100, percents[len(percents)-1])

	// Translation advances through 72..80 batch by batch: the fake reports
	// two batches, landing at 76 and 80.
	assert.Contains(t, percents, 76)
	assert.Contains(t, percents, 80)
}

func TestPipelineSkipBurn(t *testing.T) {
	media := &fakeMedia{audioBytes: make([]byte, 32*1024)}
	p, _ := testPipeline(t, media, &fakeTranscriber{result: speech()})
	job := testJob(t)
	job.Snapshot.SkipBurn = true

	res := p.Run(context.Background(), job)
	require.Equal(t, events.OutcomeCompleted, res.Outcome)
	assert.Equal(t, filepath.Join(job.Snapshot.CacheDir, "movie_bilingual.srt"), res.OutputPath)
	assert.Zero(t, media.burnCalls.Load())
}

func TestPipelineSilentAudioSkips(t *testing.T) {
	// Audio under the silence threshold never reaches the recognizer and
	// the job ends skipped with the canonical detail.
	media := &fakeMedia{audioBytes: []byte("tiny")}
	tr := &fakeTranscriber{}
	p, _ := testPipeline(t, media, tr)

	res := p.Run(context.Background(), testJob(t))
	require.Equal(t, events.OutcomeSkipped, res.Outcome)
	assert.Equal(t, "bilingual subtitles empty", res.Detail)
	assert.Zero(t, tr.calls.Load())
	assert.Zero(t, media.burnCalls.Load())
}

func TestPipelineReusesCachedArtifacts(t *testing.T) {
	media := &fakeMedia{audioBytes: make([]byte, 32*1024)}
	tr := &fakeTranscriber{result: speech()}
	p, _ := testPipeline(t, media, tr)
	job := testJob(t)

	first := p.Run(context.Background(), job)
	require.Equal(t, events.OutcomeCompleted, first.Outcome)

	second := p.Run(context.Background(), job)
	require.Equal(t, events.OutcomeCompleted, second.Outcome)

	assert.Equal(t, int32(1), media.extractCalls.Load(), "cached audio should be reused")
	assert.Equal(t, int32(1), tr.calls.Load(), "cached transcription should be reused")
}

func TestPipelineBurnFailure(t *testing.T) {
	media := &fakeMedia{
		audioBytes: make([]byte, 32*1024),
		burnErr:    errors.New("encoder exploded"),
	}
	p, _ := testPipeline(t, media, &fakeTranscriber{result: speech()})

	res := p.Run(context.Background(), testJob(t))
	require.Equal(t, events.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Detail, "encoder exploded")
}

func TestPipelineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	media := &fakeMedia{audioBytes: make([]byte, 32*1024)}
	p, _ := testPipeline(t, media, &fakeTranscriber{result: speech()})

	res := p.Run(ctx, testJob(t))
	require.Equal(t, events.OutcomeFailed, res.Outcome)
	assert.Equal(t, "cancelled", res.Detail)
}

func TestPipelineSkipTranslation(t *testing.T) {
	media := &fakeMedia{audioBytes: make([]byte, 32*1024)}
	p, _ := testPipeline(t, media, &fakeTranscriber{result: speech()})
	job := testJob(t)
	job.Snapshot.SkipTranslation = true
	job.Snapshot.SkipBurn = true

	res := p.Run(context.Background(), job)
	require.Equal(t, events.OutcomeCompleted, res.Outcome)

	data, err := os.ReadFile(res.OutputPath)
	require.NoError(t, err)
	cues, err := subtitle.ParseString(string(data))
	require.NoError(t, err)
	require.Len(t, cues, 2)
	assert.Equal(t, []string{"Hello there."}, cues[0].Lines)
}
