package utils

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tp := NewTextProcessor(nil)

	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"shorter than limit", "hello", 10, "hello"},
		{"exact limit", "hello", 5, "hello"},
		{"ascii", "hello world", 5, "hello"},
		{"multibyte runes", "héllo wörld", 7, "héllo w"},
		{"disabled", "hello", 0, "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tp.Truncate(tt.text, tt.max); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.text, tt.max, got, tt.want)
			}
		})
	}
}

func TestProcessText(t *testing.T) {
	tp := NewTextProcessor(nil)
	input := "ok\xff\x00" + strings.Repeat("ä", 10)

	got := tp.ProcessText(input, 5)
	if !utf8.ValidString(got) {
		t.Fatalf("result is not valid UTF-8: %q", got)
	}
	if got != "okäää" {
		t.Errorf("ProcessText() = %q, want %q", got, "okäää")
	}
}
