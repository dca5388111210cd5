package asr

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// chunkSpec is one time window of a chunked transcription. Start is also
// the timestamp offset applied to the chunk's sentences.
type chunkSpec struct {
	index int
	start float64
	dur   float64
}

// planChunks splits a duration into overlapping windows. Consecutive chunks
// advance by chunk-overlap seconds, so every boundary is covered by two
// chunks. A duration that fits in one chunk, or an unknown duration,
// produces a single full-file chunk.
func planChunks(durationSec, chunkSec, overlapSec float64) []chunkSpec {
	if durationSec <= 0 || chunkSec <= 0 || durationSec <= chunkSec {
		return []chunkSpec{{index: 0, start: 0, dur: durationSec}}
	}

	step := chunkSec - overlapSec
	var chunks []chunkSpec
	for start := 0.0; start < durationSec-overlapSec; start += step {
		end := start + chunkSec
		if end > durationSec {
			end = durationSec
		}
		chunks = append(chunks, chunkSpec{index: len(chunks), start: start, dur: end - start})
	}
	return chunks
}

// transcribeChunked extracts and recognizes each chunk, shifting timestamps
// to absolute time and dropping sentences that begin inside a chunk's
// leading overlap (the previous chunk already covered them). A failed chunk
// is logged and skipped rather than failing the whole file.
func (g *Gateway) transcribeChunked(ctx context.Context, modelPath, wavPath string, chunks []chunkSpec, onChunk func(done, total int)) (AlignedResult, error) {
	dir := filepath.Dir(wavPath)
	var merged AlignedResult

	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return AlignedResult{}, err
		}

		segPath := filepath.Join(dir, "chunk-"+uuid.NewString()+".wav")
		chunkRes, err := g.transcribeChunk(ctx, modelPath, wavPath, segPath, c)
		os.Remove(segPath)
		if err != nil {
			g.logger.Warn("chunk transcription failed, skipping",
				slog.Int("chunk", c.index),
				slog.Int("total", len(chunks)),
				slog.String("error", err.Error()),
			)
		} else {
			mergeChunk(&merged, chunkRes, c, g.cfg.OverlapSeconds)
		}

		if onChunk != nil {
			onChunk(c.index+1, len(chunks))
		}
	}

	return merged, nil
}

func (g *Gateway) transcribeChunk(ctx context.Context, modelPath, wavPath, segPath string, c chunkSpec) (AlignedResult, error) {
	if err := g.extractor.ExtractSegment(ctx, wavPath, segPath, c.start, c.dur); err != nil {
		return AlignedResult{}, err
	}
	return g.recognizer.Recognize(ctx, modelPath, segPath)
}

// mergeChunk appends a chunk's sentences to the merged result. Sentence
// times are chunk-relative; they are shifted by the chunk start. For every
// chunk after the first, sentences starting in the leading overlap are
// dropped since the previous chunk transcribed that region.
func mergeChunk(merged *AlignedResult, chunk AlignedResult, c chunkSpec, overlapSec float64) {
	for _, s := range chunk.Sentences {
		if c.index > 0 && s.Start < overlapSec {
			continue
		}
		merged.Sentences = append(merged.Sentences, s.shift(c.start))
	}

	var parts []string
	if merged.Text != "" {
		parts = append(parts, merged.Text)
	}
	for _, s := range chunk.Sentences {
		if c.index > 0 && s.Start < overlapSec {
			continue
		}
		parts = append(parts, s.Text)
	}
	merged.Text = strings.Join(parts, " ")
}
