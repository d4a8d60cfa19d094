package config

import (
	"testing"
)

func TestMatchAny(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		input    string
		want     bool
	}{
		{"no patterns matches all", nil, "access.log", true},
		{"single match", []string{"*.gz"}, "access.log.1.gz", true},
		{"single miss", []string{"*.gz"}, "access.log", false},
		{"second pattern matches", []string{"*.gz", "access.log*"}, "access.log", true},
		{"character class", []string{"access.log.[0-9]"}, "access.log.7", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchAny(tt.patterns, tt.input)
			if err != nil {
				t.Fatalf("MatchAny() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("MatchAny(%v, %q) = %v, want %v", tt.patterns, tt.input, got, tt.want)
			}
		})
	}
}

func TestMatchAnyBadPattern(t *testing.T) {
	if _, err := MatchAny([]string{"[unterminated"}, "access.log"); err == nil {
		t.Fatal("expected error for malformed pattern")
	}
}
