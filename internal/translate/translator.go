// Package translate turns transcribed subtitle text into bilingual cues.
// Two providers are available: an OpenAI-compatible LLM endpoint and a free
// web translation endpoint. Both preserve batch order and length.
package translate

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/subarr/internal/subtitle"
)

// ErrContentFiltered indicates the provider refused the batch content.
// Content-filter refusals are never retried.
var ErrContentFiltered = errors.New("content filtered by provider")

// Translator translates a batch of subtitle texts. Implementations must
// return exactly len(texts) translations in input order, or an error.
type Translator interface {
	// Name tags cache entries and log lines for this provider.
	Name() string
	TranslateBatch(ctx context.Context, texts []string) ([]string, error)
}

// batchRange is a half-open index range [start, end) into the text slice.
type batchRange struct {
	start int
	end   int
}

// splitBatches groups consecutive texts under the character and entry
// budgets. A single text over the character budget still forms its own
// batch; the entry budget is ignored when non-positive.
func splitBatches(texts []string, maxChars, maxEntries int) []batchRange {
	var out []batchRange
	start, chars := 0, 0

	for i, t := range texts {
		count := i - start
		overChars := chars+len(t) > maxChars && count > 0
		overEntries := maxEntries > 0 && count >= maxEntries
		if overChars || overEntries {
			out = append(out, batchRange{start: start, end: i})
			start, chars = i, 0
		}
		chars += len(t)
	}
	if start < len(texts) {
		out = append(out, batchRange{start: start, end: len(texts)})
	}
	return out
}

// alignTranslations forces a parsed response to the batch length: short
// responses are padded with the original texts, long ones truncated.
func alignTranslations(parsed, originals []string) []string {
	out := make([]string, len(originals))
	for i := range originals {
		if i < len(parsed) && parsed[i] != "" {
			out[i] = parsed[i]
		} else {
			out[i] = originals[i]
		}
	}
	return out
}

// Bilingual pairs each cue's text with its translation as a two-line cue:
// original on top, translation below. Index and timing are untouched. An
// empty translation means the batch was not translated; the cue keeps its
// original text alone. A translation equal to the original is still
// appended: short provider responses pad with the original text, and that
// padding is part of the cue.
func Bilingual(cues []subtitle.Cue, translations []string) ([]subtitle.Cue, error) {
	if len(cues) != len(translations) {
		return nil, fmt.Errorf("translation count %d does not match cue count %d", len(translations), len(cues))
	}

	out := make([]subtitle.Cue, len(cues))
	for i, cue := range cues {
		if translations[i] == "" {
			out[i] = cue
			continue
		}
		out[i] = cue.WithText(cue.Text() + "\n" + translations[i])
	}
	return out, nil
}
