// Package timetable turns raw festival timetable exports into performance
// slots: CSV parsing, combined-billing splits, collaboration grouping, day
// segmentation and matching against an external timetable directory.
package timetable

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

// Slot is one performance: one artist on one stage over one interval. Rows
// billing several artists are split into one slot each, with the combined
// billing preserved in CustomName.
type Slot struct {
	Artist     string
	Stage      string
	Start      time.Time
	End        time.Time
	Mode       string
	CustomName string
}

// SlotTimeLayout is the datetime format of directory CSV exports.
const SlotTimeLayout = "2006/01/02 15:04"

var (
	suffixPattern = regexp.MustCompile(`(?i)\s+(a/v|\(live\))$`)
	modePattern   = regexp.MustCompile(`(?i)\b(b2b|b3b|f2f|vs)\b`)
	splitPattern  = regexp.MustCompile(`(?i)\s*\b(?:b2b|b3b|f2f|vs)\b\s*|\s+[x&]\s+`)
)

// noSplitName is an act whose stage name happens to read like a separator
// chain; it stays one artist.
const noSplitName = "b2b2b2b2b"

// ParseCSV reads a directory CSV export. Leading "//" comment prefixes are
// stripped, the header row is located by its Start/End/Name/Location columns,
// and rows missing any of the four fields or carrying malformed datetimes are
// skipped rather than failing the whole sheet.
func ParseCSV(r io.Reader) ([]Slot, error) {
	lines, err := commentStrippedLines(r)
	if err != nil {
		return nil, err
	}

	headerIdx := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Start,") &&
			strings.Contains(trimmed, "End") &&
			strings.Contains(trimmed, "Name") &&
			strings.Contains(trimmed, "Location") {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 {
		return nil, fmt.Errorf("timetable csv: header row not found")
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(lines[headerIdx:], "\n")))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("timetable csv: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}

	var slots []Slot
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("timetable csv: %w", err)
		}

		start := field(record, cols, "Start")
		end := field(record, cols, "End")
		name := field(record, cols, "Name")
		stage := field(record, cols, "Location")
		if start == "" || end == "" || name == "" || stage == "" {
			continue
		}

		startTime, err := time.Parse(SlotTimeLayout, start)
		if err != nil {
			continue
		}
		endTime, err := time.Parse(SlotTimeLayout, end)
		if err != nil {
			continue
		}

		slots = append(slots, expandBilling(name, stage, startTime, endTime)...)
	}
	return slots, nil
}

func commentStrippedLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		stripped := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(stripped, "//") {
			line = strings.TrimLeft(strings.TrimPrefix(stripped, "//"), " \t")
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("timetable csv: %w", err)
	}
	return lines, nil
}

func field(record []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// expandBilling splits a combined billing ("A b2b B", "A x B", "A & B") into
// one slot per artist, marking the group B2B and keeping the combined billing
// as the slots' CustomName. Single billings keep their detected mode.
func expandBilling(name, stage string, start, end time.Time) []Slot {
	artists := splitBilling(name)
	if len(artists) > 1 {
		combined := cleanName(name)
		slots := make([]Slot, 0, len(artists))
		for _, artist := range artists {
			slots = append(slots, Slot{
				Artist:     artist,
				Stage:      stage,
				Start:      start,
				End:        end,
				Mode:       "B2B",
				CustomName: combined,
			})
		}
		return slots
	}
	return []Slot{{
		Artist: cleanName(name),
		Stage:  stage,
		Start:  start,
		End:    end,
		Mode:   detectMode(name),
	}}
}

func splitBilling(name string) []string {
	if strings.EqualFold(strings.TrimSpace(name), noSplitName) {
		return []string{cleanName(name)}
	}
	parts := splitPattern.Split(name, -1)
	var artists []string
	for _, part := range parts {
		if cleaned := cleanName(part); cleaned != "" {
			artists = append(artists, cleaned)
		}
	}
	return artists
}

// cleanName drops trailing " A/V" and " (live)" markers.
func cleanName(name string) string {
	return strings.TrimSpace(suffixPattern.ReplaceAllString(name, ""))
}

func detectMode(name string) string {
	match := modePattern.FindString(name)
	return strings.ToUpper(match)
}
