package classifier

import "slices"

// Distribution holds per-language probabilities aligned to the classifier's language order.
type Distribution struct {
	Languages     []string  `json:"languages"`
	Probabilities []float64 `json:"probabilities"`
}

// LanguageScore is one entry of a Distribution.
type LanguageScore struct {
	Language string  `json:"language"`
	Score    float64 `json:"score"`
}

// Best returns the language with the highest probability, preferring the earliest on ties.
func (d Distribution) Best() (string, float64) {
	if len(d.Probabilities) == 0 {
		return "", 0
	}
	i := argmax(d.Probabilities)
	return d.Languages[i], d.Probabilities[i]
}

// Get returns the probability of lang, or 0 when lang is not part of the distribution.
func (d Distribution) Get(lang string) float64 {
	if i := slices.Index(d.Languages, lang); i >= 0 {
		return d.Probabilities[i]
	}
	return 0
}

// Sum returns the total probability mass.
func (d Distribution) Sum() float64 {
	s := 0.0
	for _, p := range d.Probabilities {
		s += p
	}
	return s
}

// Scores returns the entries in language order.
func (d Distribution) Scores() []LanguageScore {
	out := make([]LanguageScore, len(d.Languages))
	for i, lang := range d.Languages {
		out[i] = LanguageScore{Language: lang, Score: d.Probabilities[i]}
	}
	return out
}

// Map returns the distribution keyed by language.
func (d Distribution) Map() map[string]float64 {
	m := make(map[string]float64, len(d.Languages))
	for i, lang := range d.Languages {
		m[lang] = d.Probabilities[i]
	}
	return m
}

// Above returns the entries whose probability is at least threshold, in language order.
func (d Distribution) Above(threshold float64) []LanguageScore {
	var out []LanguageScore
	for _, s := range d.Scores() {
		if s.Score >= threshold {
			out = append(out, s)
		}
	}
	return out
}
