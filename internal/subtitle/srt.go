// Package subtitle implements the SRT codec: parsing, emission,
// normalization, and conversion from recognizer output to timed cues.
package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/subarr/internal/asr"
)

// Cue is a single SRT entry: an index, a start/end timestamp pair, and one
// or more text lines.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Lines []string
}

// Text returns the cue text with lines joined by newlines.
func (c Cue) Text() string {
	return strings.Join(c.Lines, "\n")
}

// WithText returns a copy of the cue with its text replaced. The index and
// timestamps are preserved exactly.
func (c Cue) WithText(text string) Cue {
	out := c
	out.Lines = strings.Split(text, "\n")
	return out
}

var timestampRe = regexp.MustCompile(
	`^(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})\s*-->\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})`)

// parser states for the cue state machine.
const (
	expectIndex = iota
	expectTimestamp
	accumulateText
)

// Parse reads SRT text into cues. The parser is lenient: surrounding
// whitespace is trimmed, CRLF is accepted, and a trailing cue without a
// terminating blank line is flushed at EOF if it has all three parts.
func Parse(r io.Reader) ([]Cue, error) {
	var cues []Cue

	state := expectIndex
	var cur Cue

	flush := func() {
		if len(cur.Lines) > 0 {
			cues = append(cues, cur)
		}
		cur = Cue{}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\uFEFF"))

		switch state {
		case expectIndex:
			if line == "" {
				continue
			}
			idx, err := strconv.Atoi(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: expected cue index, got %q", lineNo, line)
			}
			cur.Index = idx
			state = expectTimestamp

		case expectTimestamp:
			if line == "" {
				continue
			}
			start, end, err := parseTimestampLine(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			cur.Start, cur.End = start, end
			state = accumulateText

		case accumulateText:
			if line == "" {
				flush()
				state = expectIndex
				continue
			}
			cur.Lines = append(cur.Lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading srt: %w", err)
	}

	// Trailing cue without a final blank line.
	if state == accumulateText {
		flush()
	}

	return cues, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(s string) ([]Cue, error) {
	return Parse(strings.NewReader(s))
}

// Emit writes cues as SRT with LF line endings. Each cue is written as
// index, timestamp line, text lines, and a terminating blank line.
func Emit(w io.Writer, cues []Cue) error {
	bw := bufio.NewWriter(w)
	for _, c := range cues {
		if _, err := fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n",
			c.Index, FormatTimestamp(c.Start), FormatTimestamp(c.End), c.Text()); err != nil {
			return fmt.Errorf("writing cue %d: %w", c.Index, err)
		}
	}
	return bw.Flush()
}

// EmitString renders cues as an SRT document.
func EmitString(cues []Cue) string {
	var sb strings.Builder
	_ = Emit(&sb, cues)
	return sb.String()
}

// Normalize returns cues re-indexed densely from 1 in input order, with
// empty-text cues dropped.
func Normalize(cues []Cue) []Cue {
	out := make([]Cue, 0, len(cues))
	for _, c := range cues {
		if strings.TrimSpace(c.Text()) == "" {
			continue
		}
		c.Index = len(out) + 1
		out = append(out, c)
	}
	return out
}

// FromAligned converts recognizer output into cues, one per sentence, with
// indices starting at 1. Token-level timing is not used at cue granularity.
func FromAligned(res asr.AlignedResult) []Cue {
	cues := make([]Cue, 0, len(res.Sentences))
	for _, s := range res.Sentences {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		cues = append(cues, Cue{
			Index: len(cues) + 1,
			Start: secondsToDuration(s.Start),
			End:   secondsToDuration(s.End),
			Lines: strings.Split(text, "\n"),
		})
	}
	return cues
}

// FormatTimestamp renders a duration as HH:MM:SS,mmm.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	ms %= 3_600_000
	m := ms / 60_000
	ms %= 60_000
	s := ms / 1_000
	ms %= 1_000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ParseTimestamp parses an SRT timestamp (HH:MM:SS,mmm). A dot is accepted
// as the decimal marker.
func ParseTimestamp(s string) (time.Duration, error) {
	start, _, err := parseTimestampLine(s + " --> " + s)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	return start, nil
}

func parseTimestampLine(line string) (start, end time.Duration, err error) {
	m := timestampRe.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, fmt.Errorf("expected timestamp line, got %q", line)
	}
	start = assembleTimestamp(m[1], m[2], m[3], m[4])
	end = assembleTimestamp(m[5], m[6], m[7], m[8])
	return start, end, nil
}

func assembleTimestamp(hh, mm, ss, mmm string) time.Duration {
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	s, _ := strconv.Atoi(ss)
	// Pad the millisecond field so "5" means 500ms per SRT convention.
	for len(mmm) < 3 {
		mmm += "0"
	}
	ms, _ := strconv.Atoi(mmm)
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
