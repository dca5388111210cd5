// Package asr coordinates the external speech-recognition runtime: model
// download and validation, cross-process locking, and chunked transcription
// of long audio.
package asr

// Token is a single time-aligned token within a sentence. Tokens are
// informational; an empty token list is never an error.
type Token struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Sentence is a time-aligned sentence produced by the recognizer.
type Sentence struct {
	Text   string  `json:"text"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Tokens []Token `json:"tokens,omitempty"`
}

// AlignedResult is the full output of one transcription pass. It is produced
// by the gateway, consumed once by the subtitle codec, then discarded.
type AlignedResult struct {
	Text      string     `json:"text"`
	Sentences []Sentence `json:"sentences"`
}

// shift returns a copy of the sentence with all timestamps moved by offset
// seconds. Used when splicing chunked transcriptions back together.
func (s Sentence) shift(offset float64) Sentence {
	out := s
	out.Start += offset
	out.End += offset
	if len(s.Tokens) > 0 {
		out.Tokens = make([]Token, len(s.Tokens))
		for i, t := range s.Tokens {
			t.Start += offset
			t.End += offset
			out.Tokens[i] = t
		}
	}
	return out
}
