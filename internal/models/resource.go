package models

import "time"

// Resource is a bookable space (court, room, desk) with a fixed booking duration.
type Resource struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Duration returns the booking duration as time.Duration.
func (r *Resource) Duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}

// Turno is one open sub-interval of a day in "HH:mm" form.
// End may be clock-earlier than Start when the turno crosses midnight.
type Turno struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// DayScheduleDefinition is the recurring open-hours definition of one weekday.
type DayScheduleDefinition struct {
	Weekday time.Weekday `json:"weekday"`
	Enabled bool         `json:"enabled"`
	Turnos  []Turno      `json:"turnos"`
}
