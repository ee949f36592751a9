package timetable

import (
	"sort"
	"time"
)

// FestivalDay is one contiguous run of programming. Days are split on idle
// gaps, not calendar midnights: a 22:00-07:00 night is one day.
type FestivalDay struct {
	Index int
	Start time.Time
	End   time.Time
}

type Segmentation struct {
	Stages []string
	Days   []FestivalDay
}

// GroupCollaborations merges slots sharing (stage, start, end, mode) into one
// group: two names on the same stage over the same interval are a joint
// performance, not a scheduling conflict. Group order follows first
// appearance.
func GroupCollaborations(slots []Slot) [][]Slot {
	type key struct {
		stage string
		start time.Time
		end   time.Time
		mode  string
	}
	groups := map[key][]Slot{}
	var order []key
	for _, slot := range slots {
		k := key{stage: slot.Stage, start: slot.Start, end: slot.End, mode: slot.Mode}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], slot)
	}
	out := make([][]Slot, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k])
	}
	return out
}

// Segment sorts slots by start time and opens a new festival day whenever the
// gap between the running day's end and the next slot's start exceeds dayGap.
// Each day's bounds are the first start and the latest end of its run. It
// also collects the distinct stage names in order of first appearance.
func Segment(slots []Slot, dayGap time.Duration) Segmentation {
	if len(slots) == 0 {
		return Segmentation{}
	}

	sorted := make([]Slot, len(slots))
	copy(sorted, slots)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].Start.Before(sorted[j].Start)
		}
		return sorted[i].Stage < sorted[j].Stage
	})

	var seg Segmentation
	seenStages := map[string]bool{}
	for _, slot := range sorted {
		if !seenStages[slot.Stage] {
			seenStages[slot.Stage] = true
			seg.Stages = append(seg.Stages, slot.Stage)
		}
	}

	day := FestivalDay{Index: 1, Start: sorted[0].Start, End: sorted[0].End}
	for _, slot := range sorted[1:] {
		if slot.Start.Sub(day.End) > dayGap {
			seg.Days = append(seg.Days, day)
			day = FestivalDay{Index: day.Index + 1, Start: slot.Start, End: slot.End}
			continue
		}
		if slot.End.After(day.End) {
			day.End = slot.End
		}
	}
	seg.Days = append(seg.Days, day)
	return seg
}

// DayIndexFor returns the 1-based festival day containing ts, 0 when ts falls
// outside every day.
func DayIndexFor(days []FestivalDay, ts time.Time) int {
	for _, day := range days {
		if !ts.Before(day.Start) && !ts.After(day.End) {
			return day.Index
		}
	}
	return 0
}
