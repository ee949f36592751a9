package timetable

import (
	"regexp"

	"github.com/agnivade/levenshtein"

	"github.com/nightgrid/event-pipeline/internal/util"
)

// DirectoryCandidate is the name surface of one external directory entry.
type DirectoryCandidate struct {
	ID   string
	Name string
}

var (
	yearPattern    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	parenPattern   = regexp.MustCompile(`\([^)]*\)`)
	editionPattern = regexp.MustCompile(`(?i)\b(?:\d{1,3}(?:st|nd|rd|th)?\s+)?edition\b`)
	weekendPattern = regexp.MustCompile(`(?i)\bweekend\s*\d*\b`)
	countryPattern = regexp.MustCompile(`(?i)\s+(netherlands|belgium|germany|france|spain|portugal|italy|croatia|hungary|austria|poland|serbia|uk|united kingdom|usa)\s*$`)
)

// MatchDirectory finds the directory entry closest to eventName. Search
// variants of the name (year stripped, edition ordinals stripped, "weekend N"
// both stripped and retained, country qualifiers stripped) are compared with
// every entry by levenshtein similarity; the best entry wins only if it
// clears minSimilarity. When both the event and an entry name carry a 4-digit
// year, differing years reject the entry outright, whatever its similarity:
// last year's edition of the same festival is the wrong timetable.
func MatchDirectory(eventName string, candidates []DirectoryCandidate, minSimilarity float64) (DirectoryCandidate, bool) {
	variants := searchVariants(eventName)
	if len(variants) == 0 {
		return DirectoryCandidate{}, false
	}
	eventYear := yearPattern.FindString(eventName)

	var best DirectoryCandidate
	bestScore := 0.0
	for _, candidate := range candidates {
		if eventYear != "" {
			if candidateYear := yearPattern.FindString(candidate.Name); candidateYear != "" && candidateYear != eventYear {
				continue
			}
		}
		normalized := util.NormalizeName(candidate.Name)
		if normalized == "" {
			continue
		}
		for _, variant := range variants {
			if score := similarity(variant, normalized); score > bestScore {
				best, bestScore = candidate, score
			}
		}
	}
	if bestScore < minSimilarity {
		return DirectoryCandidate{}, false
	}
	return best, true
}

// searchVariants returns normalized, deduplicated rewrites of the event name,
// most specific first.
func searchVariants(eventName string) []string {
	var variants []string
	add := func(s string) {
		normalized := util.NormalizeName(s)
		if normalized == "" {
			return
		}
		for _, existing := range variants {
			if existing == normalized {
				return
			}
		}
		variants = append(variants, normalized)
	}

	add(eventName)
	base := parenPattern.ReplaceAllString(eventName, " ")
	add(base)
	base = countryPattern.ReplaceAllString(base, " ")
	add(base)
	yearless := yearPattern.ReplaceAllString(base, " ")
	add(yearless)
	add(editionPattern.ReplaceAllString(yearless, " "))
	add(weekendPattern.ReplaceAllString(yearless, " "))
	add(weekendPattern.ReplaceAllString(editionPattern.ReplaceAllString(yearless, " "), " "))
	return variants
}

// similarity maps levenshtein distance onto [0,1] relative to the longer
// name.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if lb := len([]rune(b)); lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}
