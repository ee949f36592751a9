// Package detector scores how festival-like a scraped event is. The score is
// a 0..100 confidence assembled from duration, name and description signals,
// with every contribution recorded as a human-readable reason.
package detector

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Input is the slice of a scraped event the heuristics look at.
type Input struct {
	Name        string
	Description string
	Start       *time.Time
	End         *time.Time
}

type Result struct {
	IsFestival    bool
	Confidence    int
	Reasons       []string
	DurationHours float64
}

const (
	durationScore      = 60
	knownFestivalScore = 50
	keywordScore       = 5
	keywordScoreCap    = 20
	multiDayScore      = 10
	descriptionScore   = 5
	descriptionCap     = 20
)

// knownFestivals are matched as case-insensitive substrings of the event name.
var knownFestivals = []string{
	"tomorrowland",
	"awakenings",
	"time warp",
	"dekmantel",
	"dour",
	"fusion",
	"sonar",
	"primavera",
	"exit festival",
	"melt",
	"roskilde",
	"glastonbury",
	"coachella",
	"sziget",
	"lowlands",
	"mysteryland",
	"defqon",
	"nature one",
	"parookaville",
	"boom festival",
}

var festivalKeywords = []string{
	"festival",
	"fest",
	"open air",
	"openair",
	"weekender",
	"gathering",
}

var descriptionTerms = []string{
	"lineup",
	"line-up",
	"stages",
	"camping",
	"campsite",
	"day ticket",
	"weekend ticket",
}

var multiDayPattern = regexp.MustCompile(`(?i)\b(weekend|day\s*[2-9]|\d{1,2}\s*-\s*\d{1,2})\b`)

// Detector classifies events once constructed with the confidence threshold.
type Detector struct {
	threshold int
}

func New(threshold int) *Detector {
	return &Detector{threshold: threshold}
}

// Detect scores the event. forceFestival short-circuits to a certain result;
// a duration above 24 hours marks a festival regardless of the threshold.
// Missing timestamps degrade to a keyword-only determination.
func (d *Detector) Detect(in Input, forceFestival bool) Result {
	if forceFestival {
		return Result{
			IsFestival:    true,
			Confidence:    100,
			Reasons:       []string{"festival flag forced by caller"},
			DurationHours: durationHours(in),
		}
	}

	res := Result{DurationHours: durationHours(in)}
	confidence := 0

	longDuration := res.DurationHours > 24
	if longDuration {
		confidence += durationScore
		res.Reasons = append(res.Reasons, fmt.Sprintf("duration %.1fh exceeds 24h", res.DurationHours))
	}

	name := strings.ToLower(in.Name)
	if known := matchKnownFestival(name); known != "" {
		confidence += knownFestivalScore
		res.Reasons = append(res.Reasons, fmt.Sprintf("name matches known festival %q", known))
	} else {
		keywordPoints := 0
		for _, kw := range festivalKeywords {
			if strings.Contains(name, kw) {
				keywordPoints += keywordScore
				res.Reasons = append(res.Reasons, fmt.Sprintf("name contains festival keyword %q", kw))
			}
		}
		if keywordPoints > keywordScoreCap {
			keywordPoints = keywordScoreCap
		}
		confidence += keywordPoints
	}

	text := name + " " + strings.ToLower(in.Description)
	if multiDayPattern.MatchString(text) {
		confidence += multiDayScore
		res.Reasons = append(res.Reasons, "multi-day wording (weekend, day N or a date range)")
	}

	if points, found := descriptionPoints(strings.ToLower(in.Description)); points > 0 {
		confidence += points
		res.Reasons = append(res.Reasons, fmt.Sprintf("description mentions %s", strings.Join(found, ", ")))
	}

	if confidence > 100 {
		confidence = 100
	}
	res.Confidence = confidence
	res.IsFestival = confidence > d.threshold || longDuration
	return res
}

func durationHours(in Input) float64 {
	if in.Start == nil || in.End == nil {
		return 0
	}
	return in.End.Sub(*in.Start).Hours()
}

func matchKnownFestival(loweredName string) string {
	for _, known := range knownFestivals {
		if strings.Contains(loweredName, known) {
			return known
		}
	}
	return ""
}

func descriptionPoints(loweredDescription string) (int, []string) {
	if loweredDescription == "" {
		return 0, nil
	}
	points := 0
	var found []string
	for _, term := range descriptionTerms {
		if strings.Contains(loweredDescription, term) {
			points += descriptionScore
			found = append(found, term)
		}
	}
	if points > descriptionCap {
		points = descriptionCap
	}
	return points, found
}
