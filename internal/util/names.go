package util

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName canonicalizes an entity name for catalog comparison:
// diacritics removed, lowercased, edge punctuation trimmed and inner
// whitespace collapsed. "Amélie  Lens " and "amelie lens" come out equal.
func NormalizeName(name string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, name)
	if err != nil {
		stripped = name
	}
	lowered := strings.ToLower(stripped)
	trimmed := strings.TrimFunc(lowered, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r)
	})
	return strings.Join(strings.Fields(trimmed), " ")
}

// BigramSimilarity scores two strings in [0,1] by Sorensen-Dice overlap of
// their character bigrams. Identical strings score 1; strings shorter than
// one bigram only count through the exact-equality case.
func BigramSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}
	seen := make(map[string]int, len(ra)-1)
	for i := 0; i+1 < len(ra); i++ {
		seen[string(ra[i:i+2])]++
	}
	matches := 0
	for i := 0; i+1 < len(rb); i++ {
		bigram := string(rb[i : i+2])
		if seen[bigram] > 0 {
			seen[bigram]--
			matches++
		}
	}
	return 2 * float64(matches) / float64(len(ra)+len(rb)-2)
}
