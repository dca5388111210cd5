package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jmylchreest/subarr/internal/config"
	"github.com/jmylchreest/subarr/internal/httpclient"
	"github.com/jmylchreest/subarr/internal/observability"
)

// llmSeparator joins batch entries in the prompt and is what the model is
// asked to echo between translations.
const llmSeparator = "\n%%\n"

const llmMaxTokens = 8000

// LLMTranslator talks to an OpenAI-compatible chat completion endpoint.
type LLMTranslator struct {
	client      *openai.Client
	model       string
	prompt      string
	maxRetries  int
	retryBase   time.Duration
	retryMax    time.Duration
	logger      *slog.Logger
}

// NewLLMTranslator builds the LLM provider from a job's settings. The base
// URL is the provider root; the OpenAI path prefix is appended here.
func NewLLMTranslator(snap config.Snapshot, hc *httpclient.Client, logger *slog.Logger) *LLMTranslator {
	cfg := openai.DefaultConfig(snap.APIKey)
	cfg.BaseURL = strings.TrimRight(snap.BaseURL, "/") + "/v1"
	cfg.HTTPClient = hc.StandardClient()

	prompt := snap.SystemPrompt
	prompt = strings.ReplaceAll(prompt, "{target_language}", snap.TargetLanguage)

	return &LLMTranslator{
		client:     openai.NewClientWithConfig(cfg),
		model:      snap.Model,
		prompt:     prompt,
		maxRetries: snap.MaxRetries,
		retryBase:  snap.RetryBaseDelay,
		retryMax:   snap.RetryMaxDelay,
		logger:     observability.WithComponent(logger, "translate.llm"),
	}
}

func (t *LLMTranslator) Name() string { return "llm" }

// TranslateBatch sends the whole batch as one prompt. A single-entry batch
// uses the response verbatim; multi-entry batches are parsed back on the
// separator and aligned to the input length. Rate limiting backs off
// exponentially; a content-filter refusal fails immediately and is not
// retried.
func (t *LLMTranslator) TranslateBatch(ctx context.Context, texts []string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	content, err := t.complete(ctx, strings.Join(texts, llmSeparator))
	if err != nil {
		return nil, err
	}

	if len(texts) == 1 {
		return []string{strings.TrimSpace(content)}, nil
	}
	return alignTranslations(parseLLMResponse(content, len(texts)), texts), nil
}

// complete performs the chat completion. Only rate limiting (exponential
// backoff) and transport-level failures are retried; any other provider
// response fails the batch on the first attempt.
func (t *LLMTranslator) complete(ctx context.Context, userContent string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       t.model,
		Temperature: 0,
		MaxTokens:   llmMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: t.prompt},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
	}

	delay := t.retryBase
	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			t.logger.Debug("retrying translation request",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			delay *= 2
			if delay > t.retryMax {
				delay = t.retryMax
			}
		}

		resp, err := t.client.CreateChatCompletion(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// A status code means the provider answered: only 429 is
			// worth retrying. No status means the request never got a
			// response (connection reset, DNS, EOF); retry those.
			if status, ok := httpStatusOf(err); ok && status != http.StatusTooManyRequests {
				return "", fmt.Errorf("translation request failed: %w", err)
			}
			lastErr = err
			continue
		}

		if len(resp.Choices) == 0 {
			return "", errors.New("empty completion response")
		}
		choice := resp.Choices[0]
		if choice.FinishReason == openai.FinishReasonContentFilter {
			return "", fmt.Errorf("%w: finish_reason=content_filter", ErrContentFiltered)
		}
		return choice.Message.Content, nil
	}

	return "", fmt.Errorf("translation failed after %d attempts: %w", t.maxRetries+1, lastErr)
}

// httpStatusOf extracts the HTTP status from a provider error. The second
// return is false when the request never reached the provider.
func httpStatusOf(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

// parseLLMResponse recovers per-entry translations from the model output.
// The primary split is the full separator; models that drop the newlines
// around the marker fall back to a bare "%%" split, and a response with no
// markers at all is split on lines.
func parseLLMResponse(content string, want int) []string {
	for _, sep := range []string{llmSeparator, "%%"} {
		parts := strings.Split(content, sep)
		if len(parts) >= want {
			return trimAll(parts)
		}
	}

	lines := strings.Split(strings.TrimSpace(content), "\n")
	return trimAll(lines)
}

func trimAll(parts []string) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}
