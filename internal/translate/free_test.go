package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/subarr/internal/config"
	"github.com/jmylchreest/subarr/internal/httpclient"
)

// freeResponse builds the endpoint's nested-array shape for one text.
func freeResponse(translated string) []any {
	return []any{
		[]any{
			[]any{translated, "original", nil, nil, 1},
		},
	}
}

func newFreeTranslator(t *testing.T, handler http.HandlerFunc) *FreeTranslator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tr := NewFreeTranslator(config.Snapshot{TargetLanguage: "zh-CN"}, httpclient.NewWithDefaults(), testLogger())
	tr.endpoint = srv.URL
	return tr
}

func TestFreeTranslateBatch(t *testing.T) {
	tr := newFreeTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gtx", r.URL.Query().Get("client"))
		assert.Equal(t, "auto", r.URL.Query().Get("sl"))
		assert.Equal(t, "zh-CN", r.URL.Query().Get("tl"))

		q := r.URL.Query().Get("q")
		require.Contains(t, q, "SUBTITLE_SEPARATOR")

		_ = json.NewEncoder(w).Encode(freeResponse("一\n---SUBTITLE_SEPARATOR---\n二"))
	})

	out, err := tr.TranslateBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	assert.Equal(t, []string{"一", "二"}, out)
}

func TestFreeSeparatorMangledByEndpoint(t *testing.T) {
	// The endpoint sometimes rewrites the marker's dashes and spacing.
	tr := newFreeTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(freeResponse("一 -- SUBTITLE_SEPARATOR -- 二"))
	})

	out, err := tr.TranslateBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	assert.Equal(t, []string{"一", "二"}, out)
}

func TestFreeMissingEntriesFallBackToOriginals(t *testing.T) {
	tr := newFreeTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(freeResponse("一"))
	})

	out, err := tr.TranslateBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	assert.Equal(t, []string{"一", "two", "three"}, out)
}

func TestFreeRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	tr := newFreeTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := tr.TranslateBatch(context.Background(), []string{"one"})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "hello    world", "hello world"},
		{"newlines become spaces", "hello\nworld", "hello world"},
		{"strips fillers", "Um, I think, uh, yes", "I think, yes"},
		{"trims", "  spaced  ", "spaced"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, preprocess(tt.in))
		})
	}
}

func TestSplitBatches(t *testing.T) {
	t.Run("char budget", func(t *testing.T) {
		texts := []string{strings.Repeat("a", 40), strings.Repeat("b", 40), strings.Repeat("c", 40)}
		batches := splitBatches(texts, 80, 0)
		require.Len(t, batches, 2)
		assert.Equal(t, batchRange{0, 2}, batches[0])
		assert.Equal(t, batchRange{2, 3}, batches[1])
	})

	t.Run("entry budget", func(t *testing.T) {
		batches := splitBatches([]string{"a", "b", "c", "d", "e"}, 1000, 2)
		require.Len(t, batches, 3)
	})

	t.Run("oversized single text gets its own batch", func(t *testing.T) {
		texts := []string{strings.Repeat("a", 500), "b"}
		batches := splitBatches(texts, 100, 0)
		require.Len(t, batches, 2)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, splitBatches(nil, 100, 10))
	})
}
