package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/jmylchreest/subarr/internal/config"
	"github.com/jmylchreest/subarr/internal/util"
)

// Recognizer transcribes a mono 16 kHz WAV into timed sentences.
type Recognizer interface {
	Recognize(ctx context.Context, modelPath, wavPath string) (AlignedResult, error)
}

// whisperRecognizer shells out to the whisper.cpp CLI with JSON output.
type whisperRecognizer struct {
	binaryPath string
	threads    int
	audioCtx   int
}

// NewWhisperRecognizer locates the whisper CLI binary. An explicit path in
// the configuration overrides auto-detection.
func NewWhisperRecognizer(cfg config.ASRConfig) (Recognizer, error) {
	path := cfg.BinaryPath
	if path == "" {
		found, err := util.FindBinary("whisper-cli", "SUBARR_WHISPER_BINARY")
		if err != nil {
			return nil, fmt.Errorf("locating whisper-cli: %w", err)
		}
		path = found
	}
	return &whisperRecognizer{
		binaryPath: path,
		threads:    cfg.Threads,
		audioCtx:   cfg.AudioContext,
	}, nil
}

func (r *whisperRecognizer) Recognize(ctx context.Context, modelPath, wavPath string) (AlignedResult, error) {
	outPrefix := filepath.Join(os.TempDir(), "subarr-asr-"+uuid.NewString())
	jsonPath := outPrefix + ".json"
	defer os.Remove(jsonPath)

	args := []string{
		"-m", modelPath,
		"-f", wavPath,
		"-l", "auto",
		"-ojf",
		"-of", outPrefix,
		"--no-prints",
	}
	if r.threads > 0 {
		args = append(args, "-t", strconv.Itoa(r.threads))
	}
	if r.audioCtx > 0 {
		args = append(args, "-ac", strconv.Itoa(r.audioCtx))
	}

	cmd := exec.CommandContext(ctx, r.binaryPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 300 {
			msg = msg[len(msg)-300:]
		}
		return AlignedResult{}, fmt.Errorf("whisper-cli failed: %w: %s", err, msg)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return AlignedResult{}, fmt.Errorf("reading transcription output: %w", err)
	}
	return parseWhisperJSON(data)
}

// whisperOutput mirrors the whisper.cpp full-JSON output shape. Offsets are
// in milliseconds.
type whisperOutput struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text   string `json:"text"`
		Tokens []struct {
			Text    string `json:"text"`
			Offsets struct {
				From int64 `json:"from"`
				To   int64 `json:"to"`
			} `json:"offsets"`
		} `json:"tokens"`
	} `json:"transcription"`
}

// parseWhisperJSON converts the CLI's JSON document into an AlignedResult.
// Segments with empty text are dropped; special tokens like [_BEG_] are
// excluded from the token list.
func parseWhisperJSON(data []byte) (AlignedResult, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return AlignedResult{}, fmt.Errorf("parsing transcription JSON: %w", err)
	}

	var res AlignedResult
	var full strings.Builder
	for _, seg := range out.Transcription {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}

		sentence := Sentence{
			Text:  text,
			Start: float64(seg.Offsets.From) / 1000,
			End:   float64(seg.Offsets.To) / 1000,
		}
		for _, tok := range seg.Tokens {
			if strings.HasPrefix(tok.Text, "[_") {
				continue
			}
			sentence.Tokens = append(sentence.Tokens, Token{
				Text:  tok.Text,
				Start: float64(tok.Offsets.From) / 1000,
				End:   float64(tok.Offsets.To) / 1000,
			})
		}

		res.Sentences = append(res.Sentences, sentence)
		if full.Len() > 0 {
			full.WriteByte(' ')
		}
		full.WriteString(text)
	}
	res.Text = full.String()
	return res, nil
}
