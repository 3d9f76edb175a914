package domain

// LanguagePairOption describes one supported bilingual language pairing.
type LanguagePairOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Primary     string `json:"primary"`
	Counterpart string `json:"counterpart"`
	Description string `json:"description,omitempty"`
}

var languagePairCatalog = []LanguagePairOption{
	{
		ID:          "zh-en",
		Name:        "Chinese / English",
		Primary:     "zh",
		Counterpart: "en",
		Description: "Mandarin speech with English translations.",
	},
	{
		ID:          "en-zh",
		Name:        "English / Chinese",
		Primary:     "en",
		Counterpart: "zh",
		Description: "English speech with Chinese translations.",
	},
	{
		ID:          "ja-en",
		Name:        "Japanese / English",
		Primary:     "ja",
		Counterpart: "en",
		Description: "Japanese speech with English translations.",
	},
	{
		ID:          "en-ja",
		Name:        "English / Japanese",
		Primary:     "en",
		Counterpart: "ja",
		Description: "English speech with Japanese translations.",
	},
	{
		ID:          "es-en",
		Name:        "Spanish / English",
		Primary:     "es",
		Counterpart: "en",
		Description: "Spanish speech with English translations.",
	},
	{
		ID:          "en-es",
		Name:        "English / Spanish",
		Primary:     "en",
		Counterpart: "es",
		Description: "English speech with Spanish translations.",
	},
	{
		ID:          "de-en",
		Name:        "German / English",
		Primary:     "de",
		Counterpart: "en",
		Description: "German speech with English translations.",
	},
	{
		ID:          "fr-en",
		Name:        "French / English",
		Primary:     "fr",
		Counterpart: "en",
		Description: "French speech with English translations.",
	},
	{
		ID:          "ko-en",
		Name:        "Korean / English",
		Primary:     "ko",
		Counterpart: "en",
		Description: "Korean speech with English translations.",
	},
}

// LanguagePairs returns the built-in bilingual pairings.
func LanguagePairs() []LanguagePairOption {
	pairs := make([]LanguagePairOption, len(languagePairCatalog))
	copy(pairs, languagePairCatalog)
	return pairs
}

// SupportedLanguagePair reports whether the primary/counterpart combination
// is a built-in pairing.
func SupportedLanguagePair(primary, counterpart string) bool {
	for _, pair := range languagePairCatalog {
		if pair.Primary == primary && pair.Counterpart == counterpart {
			return true
		}
	}
	return false
}
