// Package textutil provides text processing utilities for language identification.
package textutil

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var tokenizeRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Tokenize extracts word tokens from text (Unicode-aware, matching Python's (?u)\b\w+\b).
func Tokenize(text string) []string {
	return tokenizeRe.FindAllString(text, -1)
}

// Ngrams returns min_n to max_n character-level n-grams of the given string.
func Ngrams(s string, minN, maxN int) []string {
	runes := []rune(s)
	textLen := len(runes)
	var res []string
	for n := minN; n <= maxN && n <= textLen; n++ {
		for i := 0; i <= textLen-n; i++ {
			res = append(res, string(runes[i:i+n]))
		}
	}
	return res
}

// NgramCounts counts the contiguous rune n-grams of length n.
// Returns nil when s is shorter than n.
func NgramCounts(s string, n int) map[string]int {
	if n <= 0 || utf8.RuneCountInString(s) < n {
		return nil
	}
	counts := make(map[string]int)
	for _, g := range Ngrams(s, n, n) {
		counts[g]++
	}
	return counts
}

var (
	newlineRe    = regexp.MustCompile(`[\n\r]`)
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
)

// NormalizeWhitespaces replaces newlines and multiple whitespace with a single space.
func NormalizeWhitespaces(text string) string {
	text = newlineRe.ReplaceAllString(text, " ")
	return multiSpaceRe.ReplaceAllString(text, " ")
}

// Normalize lowercases text and converts it to Unicode NFC.
// Whitespace is left untouched so character ratios see the original spacing.
func Normalize(text string) string {
	return norm.NFC.String(strings.ToLower(text))
}

// IsBlank reports whether text is empty or whitespace only.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// Len returns the length of text in runes.
func Len(text string) int {
	return utf8.RuneCountInString(text)
}
