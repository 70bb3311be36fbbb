package schedule

import (
	"fmt"
	"sort"
	"time"

	"spacebook/internal/grid"
	"spacebook/internal/models"
)

// lastMinute is the "23:59" boundary emitted for the first half of a
// cross-midnight turno. It closes the day, so containment treats it as 24:00.
const lastMinute = grid.MinutesPerDay - 1

// Interval is an open range of minutes [StartMinute, EndMinute) within one day.
type Interval struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// DayInterval binds an interval to a weekday.
type DayInterval struct {
	Weekday  time.Weekday
	Interval Interval
}

func (iv Interval) closingMinute() int {
	if iv.EndMinute == lastMinute {
		return grid.MinutesPerDay
	}
	return iv.EndMinute
}

// Contains reports whether the range [start, end) lies entirely inside iv.
func (iv Interval) Contains(start, end int) bool {
	return start >= iv.StartMinute && end <= iv.closingMinute()
}

// ContainsMinute reports whether minute m falls inside iv.
func (iv Interval) ContainsMinute(m int) bool {
	return m >= iv.StartMinute && m < iv.closingMinute()
}

func (iv Interval) String() string {
	return grid.FormatClock(iv.StartMinute) + "-" + grid.FormatClock(iv.EndMinute)
}

// Split turns one turno into day-bound intervals. When end <= start the turno
// crosses midnight: [start, 23:59] stays on weekday and [00:00, end] moves to
// the next weekday, unless end is 00:00. Zero-length pieces are dropped.
func Split(t models.Turno, weekday time.Weekday) ([]DayInterval, error) {
	start, err := grid.ParseClock(t.Start)
	if err != nil {
		return nil, fmt.Errorf("parse start: %w", err)
	}
	end, err := grid.ParseClock(t.End)
	if err != nil {
		return nil, fmt.Errorf("parse end: %w", err)
	}

	if start == end {
		return nil, nil
	}

	if end > start {
		return []DayInterval{{Weekday: weekday, Interval: Interval{StartMinute: start, EndMinute: end}}}, nil
	}

	var out []DayInterval
	if start < lastMinute {
		out = append(out, DayInterval{Weekday: weekday, Interval: Interval{StartMinute: start, EndMinute: lastMinute}})
	}
	if end > 0 {
		next := (weekday + 1) % 7
		out = append(out, DayInterval{Weekday: next, Interval: Interval{StartMinute: 0, EndMinute: end}})
	}
	return out, nil
}

// Week holds the sorted intervals of every weekday, indexed by time.Weekday.
type Week [7][]Interval

// BuildWeek splits every enabled definition and groups the pieces per
// weekday. Overlapping turnos are kept as configured.
func BuildWeek(defs []models.DayScheduleDefinition) (Week, []error) {
	var (
		week     Week
		problems []error
	)

	for _, def := range defs {
		if !def.Enabled {
			continue
		}
		for i, t := range def.Turnos {
			pieces, err := Split(t, def.Weekday)
			if err != nil {
				problems = append(problems, &ConfigurationError{
					Weekday: def.Weekday,
					Field:   fmt.Sprintf("turnos[%d]", i),
					Value:   t.Start + "-" + t.End,
					Err:     err,
				})
				continue
			}
			for _, p := range pieces {
				week[p.Weekday] = append(week[p.Weekday], p.Interval)
			}
		}
	}

	for d := range week {
		sort.SliceStable(week[d], func(i, j int) bool {
			return week[d][i].StartMinute < week[d][j].StartMinute
		})
	}
	return week, problems
}

// For returns the intervals open on weekday.
func (w Week) For(weekday time.Weekday) []Interval {
	return w[weekday]
}
