//-------------------------------------------------------------------------
//
// Evidentiary Server
//
// Copyright (c) 2026, The Evidentiary Authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package database

import "testing"

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "operators and markup stripped",
			input: "Cats & dogs: (really?) *great*",
			want:  "Cats and dogs really great",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
		{
			name:  "only operators",
			input: "(!|:*)",
			want:  "",
		},
		{
			name:  "line breaks become spaces",
			input: "first line\nsecond line\r\nthird",
			want:  "first line second line third",
		},
		{
			name:  "leading bullet run stripped",
			input: "- * • leading bullets",
			want:  "leading bullets",
		},
		{
			name:  "interior hyphen stripped not split",
			input: "full-text search",
			want:  "fulltext search",
		},
		{
			name:  "ampersand becomes and",
			input: "AT&T revenue",
			want:  "AT and T revenue",
		},
		{
			name:  "whitespace collapsed and trimmed",
			input: "  spaced    out   query  ",
			want:  "spaced out query",
		},
		{
			name:  "unicode letters kept",
			input: "naïve café résumé",
			want:  "naïve café résumé",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeQuery(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeQuery(%q) = %q, want %q", tt.input, got, tt.want)
			}

			// Idempotence: a second pass must be a no-op.
			if again := SanitizeQuery(got); again != got {
				t.Errorf("not idempotent: SanitizeQuery(%q) = %q", got, again)
			}
		})
	}
}

func TestBuildTSQuery(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"single", "single"},
		{"two words", "two & words"},
		{"three word query", "three & word & query"},
	}

	for _, tt := range tests {
		if got := BuildTSQuery(tt.input); got != tt.want {
			t.Errorf("BuildTSQuery(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
