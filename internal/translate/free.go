package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jmylchreest/subarr/internal/config"
	"github.com/jmylchreest/subarr/internal/httpclient"
	"github.com/jmylchreest/subarr/internal/observability"
)

// freeSeparator joins batch entries for the free endpoint. It is chosen to
// survive translation unaltered so the response can be split back apart.
const freeSeparator = "\n---SUBTITLE_SEPARATOR---\n"

const (
	freeEndpoint = "https://translate.googleapis.com/translate_a/single"
	freeAttempts = 3
)

// freeSeparatorRe tolerates the endpoint mangling dashes or whitespace
// around the marker.
var freeSeparatorRe = regexp.MustCompile(`\s*-{2,}\s*SUBTITLE_SEPARATOR\s*-{2,}\s*`)

// FreeTranslator uses the free web translation endpoint. No API key; the
// endpoint rate-limits aggressively, so batches are large and retries are
// short and few.
type FreeTranslator struct {
	client   *httpclient.Client
	endpoint string
	target   string
	logger   *slog.Logger
}

// NewFreeTranslator builds the free provider for a job's target language.
func NewFreeTranslator(snap config.Snapshot, hc *httpclient.Client, logger *slog.Logger) *FreeTranslator {
	return &FreeTranslator{
		client:   hc,
		endpoint: freeEndpoint,
		target:   snap.TargetLanguage,
		logger:   observability.WithComponent(logger, "translate.free"),
	}
}

func (t *FreeTranslator) Name() string { return "free" }

// TranslateBatch joins the batch with the separator, translates it in one
// request, and splits the response. Entries lost by the endpoint fall back
// to their originals.
func (t *FreeTranslator) TranslateBatch(ctx context.Context, texts []string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	cleaned := make([]string, len(texts))
	for i, s := range texts {
		cleaned[i] = preprocess(s)
	}

	translated, err := t.request(ctx, strings.Join(cleaned, freeSeparator))
	if err != nil {
		return nil, err
	}

	parts := freeSeparatorRe.Split(translated, -1)
	return alignTranslations(trimAll(parts), texts), nil
}

// request performs the GET with arithmetic backoff: 1 s, 2 s, 3 s.
func (t *FreeTranslator) request(ctx context.Context, text string) (string, error) {
	q := url.Values{
		"client": {"gtx"},
		"sl":     {"auto"},
		"tl":     {t.target},
		"dt":     {"t"},
		"q":      {text},
	}
	reqURL := t.endpoint + "?" + q.Encode()

	var lastErr error
	for attempt := 1; attempt <= freeAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(time.Duration(attempt-1) * time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		translated, err := t.once(ctx, reqURL)
		if err == nil {
			return translated, nil
		}
		lastErr = err
		t.logger.Debug("free translation attempt failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}
	return "", fmt.Errorf("free translation failed after %d attempts: %w", freeAttempts, lastErr)
}

func (t *FreeTranslator) once(ctx context.Context, reqURL string) (string, error) {
	resp, err := t.client.Get(ctx, reqURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	return parseFreeResponse(body)
}

// parseFreeResponse extracts the translated text from the endpoint's nested
// array response: [[["translated","original",...],...],...].
func parseFreeResponse(body []byte) (string, error) {
	var outer []json.RawMessage
	if err := json.Unmarshal(body, &outer); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if len(outer) == 0 {
		return "", fmt.Errorf("empty response")
	}

	var segments [][]json.RawMessage
	if err := json.Unmarshal(outer[0], &segments); err != nil {
		return "", fmt.Errorf("parsing segments: %w", err)
	}

	var b strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		var part string
		if err := json.Unmarshal(seg[0], &part); err != nil {
			continue
		}
		b.WriteString(part)
	}
	return b.String(), nil
}

var (
	whitespaceRe = regexp.MustCompile(`[ \t]+`)
	fillerRe     = regexp.MustCompile(`(?i)\b(um+|uh+|erm+)\b[,.]?\s*`)
)

// preprocess normalizes a cue's text before it goes to the free endpoint:
// whitespace is collapsed, spoken fillers are stripped, and newlines become
// spaces so the separator stays unambiguous.
func preprocess(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = fillerRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
