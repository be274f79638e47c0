package classifier

// Profile describes the orthographic signals of one language.
type Profile struct {
	Code     string
	Name     string
	Alphabet string
	// Words are matched as whole tokens.
	Words []string
	// Ngrams are counted as non-overlapping substrings.
	Ngrams []string
}

// DefaultProfiles returns the built-in profiles in feature order.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Code:     "en",
			Name:     "English",
			Alphabet: "abcdefghijklmnopqrstuvwxyz",
			Words:    []string{"the", "and", "of", "to", "in", "is"},
			Ngrams:   []string{"th", "he", "in", "er", "an", "ed", "ing", "ion", "and"},
		},
		{
			Code:     "es",
			Name:     "Spanish",
			Alphabet: "abcdefghijklmnopqrstuvwxyzáéíóúüñ",
			Words:    []string{"el", "la", "de", "y", "en", "que"},
			Ngrams:   []string{"es", "en", "de", "la", "el", "er", "ar", "ado", "ion"},
		},
		{
			Code:     "fr",
			Name:     "French",
			Alphabet: "abcdefghijklmnopqrstuvwxyzàâäéèêëïîôöùûüÿç",
			Words:    []string{"le", "de", "et", "à", "un", "ce"},
			Ngrams:   []string{"es", "en", "de", "le", "er", "nt", "tion", "ent"},
		},
		{
			Code:     "de",
			Name:     "German",
			Alphabet: "abcdefghijklmnopqrstuvwxyzäöüß",
			Words:    []string{"der", "die", "das", "und", "in", "zu"},
			Ngrams:   []string{"en", "er", "ch", "te", "nd", "st", "ung", "ich"},
		},
		{
			Code:     "bg",
			Name:     "Bulgarian",
			Alphabet: "абвгдежзийклмнопрстуфхцчшщъьюя",
			Words:    []string{"и", "на", "в", "е", "за", "се"},
			Ngrams:   []string{"на", "се", "да", "ат", "то", "ст", "ен", "та"},
		},
	}
}

// DefaultLanguages returns the closed language set served by default.
func DefaultLanguages() []string {
	return []string{"en", "es", "fr", "bg", "de"}
}

// LanguageNames maps language codes to display names for the default profiles.
func LanguageNames() map[string]string {
	names := make(map[string]string)
	for _, p := range DefaultProfiles() {
		names[p.Code] = p.Name
	}
	return names
}

const (
	vowels       = "aeiouаеиоуыэюя"
	consonants   = "bcdfghjklmnpqrstvwxyzбвгджзйклмнпрстфхцчшщъь"
	asciiPunct   = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
	cyrillicLow  = 'Ѐ'
	cyrillicHigh = 'ӿ'
)
