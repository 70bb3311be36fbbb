package availability

import (
	"fmt"
	"time"

	"spacebook/internal/grid"
	"spacebook/internal/timezone"
)

// Entry is one item of the availability feed. An entry may stand for a whole
// block; DurationMinutes tells how far it reaches.
type Entry struct {
	Time            string `json:"time"`
	Available       bool   `json:"available"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

// ExpandEntries spreads every entry over each slotMinutes sub-key it spans.
// Entries without a duration span defaultSpan minutes. When two entries cover
// the same key, unavailable wins. Keys stay in the feed's time reference.
func ExpandEntries(entries []Entry, slotMinutes, defaultSpan int) (map[string]bool, []error) {
	if slotMinutes <= 0 {
		slotMinutes = grid.DefaultSlotMinutes
	}
	out := make(map[string]bool, len(entries))
	var problems []error

	for i, e := range entries {
		start, err := grid.ParseClock(e.Time)
		if err != nil {
			problems = append(problems, fmt.Errorf("entry[%d]: %w", i, err))
			continue
		}
		span := e.DurationMinutes
		if span <= 0 {
			span = defaultSpan
		}
		if span < slotMinutes {
			span = slotMinutes
		}
		for m := start; m < start+span; m += slotMinutes {
			key := grid.FormatClock(m % grid.MinutesPerDay)
			if prev, ok := out[key]; ok && !prev {
				continue
			}
			out[key] = e.Available
		}
	}
	return out, problems
}

// LocalKeys translates feed keys into local grid keys for date. Slots the feed
// says nothing about are omitted.
func LocalKeys(feedKeys map[string]bool, z *timezone.Zone, g grid.Grid, date time.Time) map[string]bool {
	out := make(map[string]bool, len(feedKeys))
	for slot := 0; slot < g.TotalSlots(); slot++ {
		minute := g.SlotToMinute(slot)
		if v, ok := z.Lookup(feedKeys, date, minute); ok {
			out[g.SlotToTime(slot)] = v
		}
	}
	return out
}
