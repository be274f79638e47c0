package textutil

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"hello world", []string{"hello", "world"}},
		{"user_name", []string{"user_name"}},
		{"", nil},
		{"  spaces  ", []string{"spaces"}},
		{"café résumé", []string{"café", "résumé"}},
		{"j'aime la musique", []string{"j", "aime", "la", "musique"}},
		{"здравей, как си?", []string{"здравей", "как", "си"}},
		{"¿dónde está?", []string{"dónde", "está"}},
	}
	for _, tt := range tests {
		got := Tokenize(tt.input)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNgrams(t *testing.T) {
	tests := []struct {
		s    string
		min  int
		max  int
		want []string
	}{
		{"abc", 2, 3, []string{"ab", "bc", "abc"}},
		{"ab", 3, 5, nil},
		{"hello", 5, 5, []string{"hello"}},
		{"ab", 1, 2, []string{"a", "b", "ab"}},
		{"", 1, 3, nil},
		{"жар", 2, 2, []string{"жа", "ар"}},
	}
	for _, tt := range tests {
		got := Ngrams(tt.s, tt.min, tt.max)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Ngrams(%q, %d, %d) = %v, want %v", tt.s, tt.min, tt.max, got, tt.want)
		}
	}
}

func TestNgramCounts(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want map[string]int
	}{
		{"aaa", 1, map[string]int{"a": 3}},
		{"abab", 2, map[string]int{"ab": 2, "ba": 1}},
		{"ab", 3, nil},
		{"", 1, nil},
		{"abc", 0, nil},
	}
	for _, tt := range tests {
		got := NgramCounts(tt.s, tt.n)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("NgramCounts(%q, %d) = %v, want %v", tt.s, tt.n, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Hello World", "hello world"},
		{"UPPER", "upper"},
		{"Café", "café"},
		{"ЗДРАВЕЙ", "здравей"},
		{"  two  spaces ", "  two  spaces "},
	}
	for _, tt := range tests {
		got := Normalize(tt.input)
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeWhitespaces(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello\nworld", "hello world"},
		{"hello\r\nworld", "hello world"},
		{"a  b   c", "a b c"},
	}
	for _, tt := range tests {
		got := NormalizeWhitespaces(tt.input)
		if got != tt.want {
			t.Errorf("NormalizeWhitespaces(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIsBlank(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"\t\n", true},
		{" a ", false},
	}
	for _, tt := range tests {
		if got := IsBlank(tt.input); got != tt.want {
			t.Errorf("IsBlank(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
