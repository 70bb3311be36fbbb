// Package grid maps clock time onto the fixed slot grid used for availability
// computation and for proportional rendering.
package grid

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultHourStart   = 8
	DefaultHourEnd     = 24
	DefaultSlotMinutes = 30

	MinutesPerDay = 24 * 60
)

// Grid describes the daily window [HourStart, HourEnd) cut into SlotMinutes cells.
type Grid struct {
	HourStart   int
	HourEnd     int
	SlotMinutes int
}

// Default returns the 08:00-24:00 grid with 30-minute slots (32 slots).
func Default() Grid {
	return Grid{HourStart: DefaultHourStart, HourEnd: DefaultHourEnd, SlotMinutes: DefaultSlotMinutes}
}

// New validates and builds a grid.
func New(hourStart, hourEnd, slotMinutes int) (Grid, error) {
	g := Grid{HourStart: hourStart, HourEnd: hourEnd, SlotMinutes: slotMinutes}
	if err := g.Validate(); err != nil {
		return Grid{}, err
	}
	return g, nil
}

// Validate checks the window bounds and that slots tile the window exactly.
func (g Grid) Validate() error {
	if g.HourStart < 0 || g.HourEnd > 24 || g.HourStart >= g.HourEnd {
		return fmt.Errorf("grid: invalid window %d-%d", g.HourStart, g.HourEnd)
	}
	if g.SlotMinutes <= 0 {
		return fmt.Errorf("grid: slot minutes must be positive, got %d", g.SlotMinutes)
	}
	if ((g.HourEnd-g.HourStart)*60)%g.SlotMinutes != 0 {
		return fmt.Errorf("grid: %d-minute slots do not divide window %d-%d", g.SlotMinutes, g.HourStart, g.HourEnd)
	}
	return nil
}

// TotalSlots is the number of cells in the window.
func (g Grid) TotalSlots() int {
	return (g.HourEnd - g.HourStart) * 60 / g.SlotMinutes
}

// OriginMinute is the minute of day where slot 0 starts.
func (g Grid) OriginMinute() int {
	return g.HourStart * 60
}

// TimeToSlot converts "HH:mm" to a slot index. Out-of-window times are not
// special-cased; callers bounds-check.
func (g Grid) TimeToSlot(hhmm string) (int, error) {
	m, err := ParseClock(hhmm)
	if err != nil {
		return 0, err
	}
	return g.MinuteToSlot(m), nil
}

// MinuteToSlot converts minutes since midnight to a slot index.
func (g Grid) MinuteToSlot(minute int) int {
	return (minute - g.OriginMinute()) / g.SlotMinutes
}

// SlotToMinute is the inverse of MinuteToSlot for slot boundaries.
func (g Grid) SlotToMinute(slot int) int {
	return g.OriginMinute() + slot*g.SlotMinutes
}

// SlotToTime returns the "HH:mm" start of a slot. Slot TotalSlots maps to the
// window end, e.g. "24:00".
func (g Grid) SlotToTime(slot int) string {
	return FormatClock(g.SlotToMinute(slot))
}

// SlotToPercent returns the slot offset as a percentage of the window.
func (g Grid) SlotToPercent(slot int) float64 {
	return float64(slot) / float64(g.TotalSlots()) * 100
}

// Keys lists the "HH:mm" start of every slot in the window.
func (g Grid) Keys() []string {
	keys := make([]string, g.TotalSlots())
	for i := range keys {
		keys[i] = g.SlotToTime(i)
	}
	return keys
}

// ParseClock parses "HH:mm" into minutes since midnight. "24:00" is accepted
// as end of day.
func ParseClock(hhmm string) (int, error) {
	parts := strings.Split(strings.TrimSpace(hhmm), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format: %q", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour: %w", err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute: %w", err)
	}
	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("time out of range: %q", hhmm)
	}
	return hour*60 + minute, nil
}

// FormatClock renders minutes since midnight as "HH:mm".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
