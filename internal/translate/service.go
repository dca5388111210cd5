package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/subarr/internal/config"
	"github.com/jmylchreest/subarr/internal/httpclient"
	"github.com/jmylchreest/subarr/internal/observability"
)

// maxParallelBatches bounds concurrent in-flight batches per job.
const maxParallelBatches = 3

// Service wires a primary provider, an optional fallback, and the
// persistent cache. Translation is best-effort: a batch that fails both
// providers yields empty translations, and the job carries on with the
// original texts.
type Service struct {
	primary    Translator
	fallback   Translator
	cache      *Cache
	maxChars   int
	maxEntries int
	parallel   int
	logger     *slog.Logger
}

// NewService builds the translation service from a job's settings.
func NewService(snap config.Snapshot, hc *httpclient.Client, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		parallel: 1,
		logger:   observability.WithComponent(logger, "translate"),
	}

	switch snap.Engine {
	case config.EngineLLM:
		s.primary = NewLLMTranslator(snap, hc, logger)
		s.maxChars = snap.MaxCharsPerBatch
		s.maxEntries = snap.MaxEntriesPerBatch
		if snap.EnableFreeFallback {
			s.fallback = NewFreeTranslator(snap, hc, logger)
		}
		s.parallel = snap.ParallelBatches
		if s.parallel > maxParallelBatches {
			s.parallel = maxParallelBatches
		}
		if s.parallel < 1 {
			s.parallel = 1
		}
	case config.EngineFree:
		// The free endpoint rate-limits per IP; batches stay sequential.
		s.primary = NewFreeTranslator(snap, hc, logger)
		s.maxChars = snap.FreeCharBudget
	default:
		return nil, fmt.Errorf("unknown translation engine %q", snap.Engine)
	}

	if snap.CacheEnabled && snap.CacheDir != "" {
		s.cache = OpenCache(snap.CacheDir, snap.CacheCap)
	}
	return s, nil
}

// Translate returns one translation per input text, in order. Cached texts
// skip the provider; failed batches come back as empty strings. The
// returned slice always has len(texts) entries. onBatch, when non-nil, is
// called after each batch settles with (done, total); calls are
// serialized.
func (s *Service) Translate(ctx context.Context, texts []string, onBatch func(done, total int)) []string {
	out := make([]string, len(texts))

	// Resolve cache hits first; only misses go to the provider.
	var pendingIdx []int
	var pendingTexts []string
	for i, t := range texts {
		if t == "" {
			continue
		}
		if s.cache != nil {
			if cached, ok := s.cache.Get(s.primary.Name(), t); ok {
				out[i] = cached
				continue
			}
		}
		pendingIdx = append(pendingIdx, i)
		pendingTexts = append(pendingTexts, t)
	}

	batches := splitBatches(pendingTexts, s.maxChars, s.maxEntries)

	var progressMu sync.Mutex
	batchesDone := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for _, b := range batches {
		g.Go(func() error {
			batch := pendingTexts[b.start:b.end]
			translated := s.translateBatch(gctx, batch)
			for j, tr := range translated {
				out[pendingIdx[b.start+j]] = tr
			}
			if onBatch != nil {
				progressMu.Lock()
				batchesDone++
				onBatch(batchesDone, len(batches))
				progressMu.Unlock()
			}
			return nil
		})
	}
	// Workers never return errors; failures degrade to originals.
	_ = g.Wait()

	if s.cache != nil {
		for i, t := range texts {
			if t != "" && out[i] != "" && out[i] != t {
				s.cache.Put(s.primary.Name(), t, out[i])
			}
		}
	}
	return out
}

// translateBatch tries the primary once (providers retry internally), then
// the fallback, then gives up. A failed batch yields empty strings: the
// cues keep their original text alone, with no translation line.
// Content-filter refusals skip the fallback since the fallback would see
// the same text.
func (s *Service) translateBatch(ctx context.Context, batch []string) []string {
	translated, err := s.primary.TranslateBatch(ctx, batch)
	if err == nil {
		return translated
	}

	if errors.Is(err, ErrContentFiltered) {
		s.logger.Warn("batch refused by content filter, keeping originals",
			slog.Int("entries", len(batch)))
		return make([]string, len(batch))
	}
	s.logger.Warn("batch translation failed",
		slog.String("provider", s.primary.Name()),
		slog.Int("entries", len(batch)),
		slog.String("error", err.Error()),
	)

	if s.fallback != nil {
		translated, err = s.fallback.TranslateBatch(ctx, batch)
		if err == nil {
			return translated
		}
		s.logger.Warn("fallback translation failed, keeping originals",
			slog.String("provider", s.fallback.Name()),
			slog.String("error", err.Error()),
		)
	}
	return make([]string, len(batch))
}

// Close persists the cache.
func (s *Service) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Save()
}
