package domain

import "testing"

// TestLanguagePairsReturnsCopy verifies callers cannot mutate the catalog.
func TestLanguagePairsReturnsCopy(t *testing.T) {
	pairs := LanguagePairs()
	if len(pairs) == 0 {
		t.Fatal("catalog is empty")
	}
	pairs[0].Primary = "xx"

	if !SupportedLanguagePair(LanguagePairs()[0].Primary, LanguagePairs()[0].Counterpart) {
		t.Fatal("catalog mutated through returned slice")
	}
}

// TestSupportedLanguagePair verifies lookup by primary and counterpart.
func TestSupportedLanguagePair(t *testing.T) {
	if !SupportedLanguagePair("zh", "en") {
		t.Fatal("zh/en should be supported")
	}
	if !SupportedLanguagePair("en", "ja") {
		t.Fatal("en/ja should be supported")
	}
	if SupportedLanguagePair("zh", "fr") {
		t.Fatal("zh/fr should not be supported")
	}
	if SupportedLanguagePair("", "") {
		t.Fatal("empty pair should not be supported")
	}
}
