package auth

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{
			name:  "plain text",
			input: "Mozilla/5.0 (X11; Linux x86_64)",
			max:   MaxUserAgentLen,
			want:  "Mozilla/5.0 (X11; Linux x86_64)",
		},
		{
			name:  "trims whitespace",
			input: "  Alice  ",
			max:   MaxNameLen,
			want:  "Alice",
		},
		{
			name:  "drops control characters",
			input: "Ali\x00ce\r\nInjected: yes\t",
			max:   MaxNameLen,
			want:  "AliceInjected: yes",
		},
		{
			name:  "truncates",
			input: "abcdefgh",
			max:   4,
			want:  "abcd",
		},
		{
			name:  "no limit",
			input: strings.Repeat("x", 1000),
			max:   0,
			want:  strings.Repeat("x", 1000),
		},
		{
			name:  "empty",
			input: "",
			max:   10,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.input, tt.max); got != tt.want {
				t.Errorf("CleanText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanText_RuneBoundary(t *testing.T) {
	// each "é" is two bytes; a cut at 5 would split the third one
	got := CleanText("ééééé", 5)
	if !utf8.ValidString(got) {
		t.Fatalf("CleanText produced invalid UTF-8: %q", got)
	}
	if got != "éé" {
		t.Errorf("CleanText() = %q, want %q", got, "éé")
	}
}
