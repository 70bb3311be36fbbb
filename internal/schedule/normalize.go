// Package schedule turns per-weekday open-hours configuration into sorted
// minute intervals bound to a single civil day.
package schedule

import (
	"fmt"
	"time"

	"spacebook/internal/grid"
	"spacebook/internal/models"
)

// RawDay is a day entry as authored in configuration. Two shapes are accepted:
// canonical {enabled, turnos[]} and legacy {start, end, enabled}.
type RawDay struct {
	Enabled *bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Turnos  []models.Turno `yaml:"turnos,omitempty" json:"turnos,omitempty"`
	Start   string         `yaml:"start,omitempty" json:"start,omitempty"`
	End     string         `yaml:"end,omitempty" json:"end,omitempty"`
}

// ConfigurationError describes a malformed schedule entry. Normalize recovers
// from it by substituting the weekday default.
type ConfigurationError struct {
	Weekday time.Weekday
	Field   string
	Value   string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("schedule %s.%s %q: %v", e.Weekday, e.Field, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

const (
	defaultOpen  = "08:00"
	defaultClose = "22:00"
)

// DefaultDefinition returns the fallback definition for a weekday:
// Monday to Saturday open 08:00-22:00, Sunday closed.
func DefaultDefinition(weekday time.Weekday) models.DayScheduleDefinition {
	return models.DayScheduleDefinition{
		Weekday: weekday,
		Enabled: weekday != time.Sunday,
		Turnos:  []models.Turno{{Start: defaultOpen, End: defaultClose}},
	}
}

// Normalize converts a raw day into its canonical definition, filling anything
// missing or malformed from DefaultDefinition. Problems are returned for
// logging; the definition is always usable.
func Normalize(raw *RawDay, weekday time.Weekday) (models.DayScheduleDefinition, []error) {
	def := DefaultDefinition(weekday)
	if raw == nil {
		return def, nil
	}

	var problems []error
	fallback := def.Turnos[0]

	var turnos []models.Turno
	switch {
	case len(raw.Turnos) > 0:
		turnos = raw.Turnos
	case raw.Start != "" || raw.End != "":
		turnos = []models.Turno{{Start: raw.Start, End: raw.End}}
	}

	if raw.Enabled != nil {
		def.Enabled = *raw.Enabled
	} else if len(turnos) > 0 {
		def.Enabled = true
	}

	if len(turnos) == 0 {
		return def, nil
	}

	def.Turnos = make([]models.Turno, 0, len(turnos))
	for i, t := range turnos {
		start, err := canonicalClock(t.Start, fallback.Start)
		if err != nil {
			problems = append(problems, &ConfigurationError{
				Weekday: weekday, Field: fmt.Sprintf("turnos[%d].start", i), Value: t.Start, Err: err,
			})
		}
		end, err := canonicalClock(t.End, fallback.End)
		if err != nil {
			problems = append(problems, &ConfigurationError{
				Weekday: weekday, Field: fmt.Sprintf("turnos[%d].end", i), Value: t.End, Err: err,
			})
		}
		def.Turnos = append(def.Turnos, models.Turno{Start: start, End: end})
	}

	return def, problems
}

// canonicalClock reformats a clock value as zero-padded "HH:mm", substituting
// fallback when the value is empty or malformed.
func canonicalClock(value, fallback string) (string, error) {
	if value == "" {
		return fallback, nil
	}
	m, err := grid.ParseClock(value)
	if err != nil {
		return fallback, err
	}
	return grid.FormatClock(m), nil
}

// NormalizeWeek normalizes all seven weekdays. Missing days get defaults.
func NormalizeWeek(raw map[time.Weekday]*RawDay) ([]models.DayScheduleDefinition, []error) {
	defs := make([]models.DayScheduleDefinition, 0, 7)
	var problems []error
	for d := time.Sunday; d <= time.Saturday; d++ {
		def, errs := Normalize(raw[d], d)
		defs = append(defs, def)
		problems = append(problems, errs...)
	}
	return defs, problems
}
