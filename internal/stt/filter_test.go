package stt

import "testing"

func TestFilter_Clean(t *testing.T) {
	filter := NewFilter(nil)

	tests := []struct {
		name     string
		raw      string
		wantText string
		wantOK   bool
	}{
		{"normal text", "hello there", "hello there", true},
		{"trims whitespace", "  hello there  ", "hello there", true},
		{"empty", "", "", false},
		{"whitespace only", "   \n ", "", false},
		{"denylisted phrase", "Thank you for watching", "", false},
		{"denylisted with whitespace", "  Thank you for watching  ", "", false},
		{"denylisted japanese", "ご視聴ありがとうございました", "", false},
		{"lone period", ".", "", false},
		{"lone you", "you", "", false},
		{"case sensitive", "You", "You", true},
		{"phrase inside sentence survives", "and thank you for watching the demo", "and thank you for watching the demo", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, ok := filter.Clean(tt.raw)
			if ok != tt.wantOK {
				t.Errorf("Clean(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			}
			if text != tt.wantText {
				t.Errorf("Clean(%q) text = %q, want %q", tt.raw, text, tt.wantText)
			}
		})
	}
}

func TestFilter_ExtraPhrases(t *testing.T) {
	filter := NewFilter([]string{"custom noise", ""})

	if _, ok := filter.Clean("custom noise"); ok {
		t.Error("Extra phrase must be suppressed")
	}
	if text, ok := filter.Clean("real speech"); !ok || text != "real speech" {
		t.Errorf("Unexpected suppression of %q", "real speech")
	}
}
