// Package classifier implements language identification over a closed set of languages.
//
// It pairs a deterministic, fixed-dimension feature extractor with a one-vs-all
// classifier made of sigmoid linear units trained by the delta rule.
package classifier

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/happyhackingspace/dil/internal/textutil"
)

// NgramSizes are the character n-gram lengths summarized by the extractor.
var NgramSizes = []int{1, 2, 3}

// Extractor turns text into a fixed-length feature vector.
// It is immutable after construction and safe for concurrent use.
type Extractor struct {
	profiles  []Profile
	alphabet  []rune
	alphabets []map[rune]bool
	words     []map[string]bool
	names     []string
	index     map[string]int
}

// ExtractorInfo describes an extractor for reporting.
type ExtractorInfo struct {
	FeatureCount       int      `json:"feature_count" msgpack:"feature_count"`
	SupportedLanguages []string `json:"supported_languages" msgpack:"supported_languages"`
	NgramSizes         []int    `json:"ngram_sizes" msgpack:"ngram_sizes"`
	UnicodeSupport     bool     `json:"unicode_support" msgpack:"unicode_support"`
	CyrillicSupport    bool     `json:"cyrillic_support" msgpack:"cyrillic_support"`
}

// NewExtractor creates an extractor for the given profiles, or DefaultProfiles when none are given.
func NewExtractor(profiles ...Profile) *Extractor {
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}
	e := &Extractor{
		profiles:  profiles,
		alphabets: make([]map[rune]bool, len(profiles)),
		words:     make([]map[string]bool, len(profiles)),
	}

	union := make(map[rune]bool)
	for i, p := range profiles {
		e.alphabets[i] = make(map[rune]bool)
		for _, r := range p.Alphabet {
			e.alphabets[i][r] = true
			union[r] = true
		}
		e.words[i] = make(map[string]bool, len(p.Words))
		for _, w := range p.Words {
			e.words[i][w] = true
		}
	}
	for r := range union {
		e.alphabet = append(e.alphabet, r)
	}
	slices.Sort(e.alphabet)

	e.initFeatureNames()
	return e
}

func (e *Extractor) initFeatureNames() {
	for _, r := range e.alphabet {
		e.names = append(e.names, "char_freq_"+string(r))
	}
	for _, n := range NgramSizes {
		e.names = append(e.names,
			fmt.Sprintf("avg_ngram_%d_freq", n),
			fmt.Sprintf("max_ngram_%d_freq", n))
	}
	for _, p := range e.profiles {
		e.names = append(e.names,
			"lang_pattern_"+p.Code,
			"char_ratio_"+p.Code,
			"common_ngrams_"+p.Code)
	}
	e.names = append(e.names,
		"text_length",
		"avg_word_length",
		"vowel_ratio",
		"consonant_ratio",
		"digit_ratio",
		"punct_ratio",
		"uppercase_ratio",
		"whitespace_ratio",
		"unicode_ratio",
		"cyrillic_ratio",
		"latin_ratio",
	)

	e.index = make(map[string]int, len(e.names))
	for i, name := range e.names {
		e.index[name] = i
	}
}

// Dim returns the feature vector length.
func (e *Extractor) Dim() int {
	return len(e.names)
}

// FeatureNames returns a copy of the feature names in vector order.
func (e *Extractor) FeatureNames() []string {
	return slices.Clone(e.names)
}

// FeatureIndex returns the position of a named feature, or -1.
func (e *Extractor) FeatureIndex(name string) int {
	if i, ok := e.index[name]; ok {
		return i
	}
	return -1
}

// Languages returns the profile codes in feature order.
func (e *Extractor) Languages() []string {
	codes := make([]string, len(e.profiles))
	for i, p := range e.profiles {
		codes[i] = p.Code
	}
	return codes
}

// Info returns a description of the extractor.
func (e *Extractor) Info() ExtractorInfo {
	return ExtractorInfo{
		FeatureCount:       e.Dim(),
		SupportedLanguages: e.Languages(),
		NgramSizes:         slices.Clone(NgramSizes),
		UnicodeSupport:     true,
		CyrillicSupport:    true,
	}
}

// Extract returns the feature vector of text. Blank text yields the zero vector.
func (e *Extractor) Extract(text string) []float64 {
	vec := make([]float64, len(e.names))
	if textutil.IsBlank(text) {
		return vec
	}
	put := func(name string, v float64) {
		if i, ok := e.index[name]; ok {
			vec[i] = v
		}
	}

	text = textutil.Normalize(text)
	runes := []rune(text)
	n := float64(len(runes))
	if n == 0 {
		return vec
	}

	// character frequencies
	counts := make(map[rune]int)
	for _, r := range runes {
		counts[r]++
	}
	for _, r := range e.alphabet {
		put("char_freq_"+string(r), float64(counts[r])/n)
	}

	// n-gram summaries
	for _, size := range NgramSizes {
		grams := textutil.NgramCounts(text, size)
		if len(grams) == 0 {
			continue
		}
		total, peak := 0, 0
		for _, c := range grams {
			total += c
			peak = max(peak, c)
		}
		avg := float64(total) / float64(len(grams))
		put(fmt.Sprintf("avg_ngram_%d_freq", size), avg/n)
		put(fmt.Sprintf("max_ngram_%d_freq", size), float64(peak)/n)
	}

	// language signals
	words := strings.Fields(text)
	tokens := textutil.Tokenize(text)
	wordCount := float64(max(1, len(words)))
	for i, p := range e.profiles {
		hits := 0
		for _, tok := range tokens {
			if e.words[i][tok] {
				hits++
			}
		}
		put("lang_pattern_"+p.Code, float64(hits)/wordCount)

		inAlphabet := 0
		for _, r := range runes {
			if e.alphabets[i][r] {
				inAlphabet++
			}
		}
		put("char_ratio_"+p.Code, float64(inAlphabet)/n)

		common := 0
		for _, g := range p.Ngrams {
			common += strings.Count(text, g)
		}
		put("common_ngrams_"+p.Code, float64(common)/n)
	}

	e.putStatistics(runes, words, put)
	return vec
}

func (e *Extractor) putStatistics(runes []rune, words []string, put func(string, float64)) {
	n := float64(len(runes))
	put("text_length", n)

	if len(words) > 0 {
		total := 0
		for _, w := range words {
			total += textutil.Len(w)
		}
		put("avg_word_length", float64(total)/float64(len(words)))
	}

	var vowel, consonant, digit, punct, upper, space, nonASCII, cyrillic, latin int
	for _, r := range runes {
		switch {
		case strings.ContainsRune(vowels, r):
			vowel++
		case strings.ContainsRune(consonants, r):
			consonant++
		}
		if unicode.IsDigit(r) {
			digit++
		}
		if strings.ContainsRune(asciiPunct, r) {
			punct++
		}
		if unicode.IsUpper(r) {
			upper++
		}
		if unicode.IsSpace(r) {
			space++
		}
		if r >= 128 {
			nonASCII++
		}
		if r >= cyrillicLow && r <= cyrillicHigh {
			cyrillic++
		}
		if unicode.IsLetter(r) && r < 256 {
			latin++
		}
	}

	put("vowel_ratio", float64(vowel)/n)
	put("consonant_ratio", float64(consonant)/n)
	put("digit_ratio", float64(digit)/n)
	put("punct_ratio", float64(punct)/n)
	put("uppercase_ratio", float64(upper)/n)
	put("whitespace_ratio", float64(space)/n)
	put("unicode_ratio", float64(nonASCII)/n)
	put("cyrillic_ratio", float64(cyrillic)/n)
	put("latin_ratio", float64(latin)/n)
}
