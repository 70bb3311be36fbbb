package models

import (
	"fmt"
	"time"
)

// ReservationStatus is the lifecycle status of a reservation.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
)

var statusTransitions = map[ReservationStatus][]ReservationStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled},
}

// ParseReservationStatus validates a status string.
func ParseReservationStatus(s string) (ReservationStatus, error) {
	switch st := ReservationStatus(s); st {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown reservation status %q", s)
	}
}

// Occupies reports whether a reservation with this status blocks the calendar.
func (s ReservationStatus) Occupies() bool {
	return s != StatusCancelled
}

// CanTransitionTo reports whether status may change from s to next.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Customer holds the contact fields collected by the booking form.
type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
	Note  string `json:"note,omitempty"`
}

// Reservation is a booking of one resource. Start and End are stored in UTC
// and never change after creation.
type Reservation struct {
	ID         string            `json:"id"`
	ResourceID int64             `json:"resource_id"`
	Start      time.Time         `json:"start"`
	End        time.Time         `json:"end"`
	Status     ReservationStatus `json:"status"`
	Customer   Customer          `json:"customer"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Occupies reports whether the reservation counts against availability.
func (r *Reservation) Occupies() bool {
	return r.Status.Occupies()
}

// Overlaps reports whether the reservation intersects [start, end).
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.Start.Before(end) && start.Before(r.End)
}
