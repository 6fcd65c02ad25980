package stt

import "strings"

// Speech models emit stock phrases on silence or background noise; Whisper in
// particular closes imaginary videos. A transcription whose trimmed text
// exactly matches a denylisted phrase is suppressed entirely.
var defaultDenylist = []string{
	"Thank you for watching",
	"Thank you for watching!",
	"Thanks for watching",
	"Thanks for watching!",
	"Thank you for watching Please subscribe to my channel",
	"Please subscribe to my channel",
	"Subtitles by the Amara.org community",
	"ご視聴ありがとうございました",
	"ご視聴ありがとうございました。",
	"お疲れ様でした",
	".",
	"you",
}

// Filter suppresses known hallucinated engine outputs.
type Filter struct {
	phrases map[string]struct{}
}

// NewFilter builds a filter from the default denylist plus any extra phrases.
// Matching is case-sensitive and exact after trimming surrounding whitespace.
func NewFilter(extra []string) *Filter {
	phrases := make(map[string]struct{}, len(defaultDenylist)+len(extra))
	for _, p := range defaultDenylist {
		phrases[p] = struct{}{}
	}
	for _, p := range extra {
		if p != "" {
			phrases[p] = struct{}{}
		}
	}
	return &Filter{phrases: phrases}
}

// Clean trims the raw engine output and reports whether it survives the
// denylist. Empty text after trimming never survives.
func (f *Filter) Clean(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", false
	}
	if _, denied := f.phrases[text]; denied {
		return "", false
	}
	return text, true
}
