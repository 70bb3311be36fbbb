package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"spacebook/internal/models"
)

const reservationColumns = `id, resource_id, start_at, end_at, status,
	customer_name, customer_phone, customer_email, note, created_at, updated_at`

// ListOccupyingReservations returns non-cancelled reservations of a resource
// that intersect [from, to), ordered by start.
func (db *DB) ListOccupyingReservations(ctx context.Context, resourceID int64, from, to time.Time) ([]models.Reservation, error) {
	return db.listReservations(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE resource_id = ? AND start_at < ? AND end_at > ? AND status != ?
		ORDER BY start_at`,
		resourceID, formatTime(to), formatTime(from), string(models.StatusCancelled),
	)
}

// ListReservations returns every reservation of a resource starting in [from, to).
func (db *DB) ListReservations(ctx context.Context, resourceID int64, from, to time.Time) ([]models.Reservation, error) {
	return db.listReservations(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE resource_id = ? AND start_at >= ? AND start_at < ?
		ORDER BY start_at`,
		resourceID, formatTime(from), formatTime(to),
	)
}

func (db *DB) listReservations(ctx context.Context, query string, args ...any) ([]models.Reservation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// CreateReservation stores r after checking, in the same transaction, that
// the resource is active and no occupying reservation overlaps it. A missing
// ID is generated; a missing status becomes pending.
func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation) error {
	if r == nil {
		return fmt.Errorf("reservation is nil")
	}
	if !r.Start.Before(r.End) {
		return fmt.Errorf("reservation ends before it starts")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = models.StatusPending
	}
	now := time.Now().UTC().Truncate(time.Second)
	r.Start, r.End = r.Start.UTC(), r.End.UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var active bool
	err = tx.QueryRowContext(ctx, `SELECT is_active FROM resources WHERE id = ?`, r.ResourceID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !active) {
		return fmt.Errorf("resource %d: %w", r.ResourceID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check resource: %w", err)
	}

	var overlapping int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reservations
		WHERE resource_id = ? AND start_at < ? AND end_at > ? AND status != ?`,
		r.ResourceID, formatTime(r.End), formatTime(r.Start), string(models.StatusCancelled),
	).Scan(&overlapping); err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	if overlapping > 0 {
		return ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ResourceID, formatTime(r.Start), formatTime(r.End), string(r.Status),
		r.Customer.Name, r.Customer.Phone, r.Customer.Email, r.Customer.Note,
		formatTime(now), formatTime(now),
	); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	return tx.Commit()
}

// GetReservation returns a reservation or ErrNotFound.
func (db *DB) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %s: %w", id, ErrNotFound)
	}
	return r, err
}

// UpdateReservationStatus moves a reservation along its lifecycle. Only the
// status changes; the time range is immutable.
func (db *DB) UpdateReservationStatus(ctx context.Context, id string, status models.ReservationStatus) (*models.Reservation, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !r.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%s -> %s: %w", r.Status, status, ErrInvalidTransition)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if _, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(now), id,
	); err != nil {
		return nil, fmt.Errorf("update reservation status: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	r.Status = status
	r.UpdatedAt = now
	return r, nil
}

func scanReservation(s scanner) (*models.Reservation, error) {
	var r models.Reservation
	var start, end, status, createdAt, updatedAt string
	if err := s.Scan(
		&r.ID, &r.ResourceID, &start, &end, &status,
		&r.Customer.Name, &r.Customer.Phone, &r.Customer.Email, &r.Customer.Note,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	r.Status = models.ReservationStatus(status)

	var err error
	for _, f := range []struct {
		dst *time.Time
		src string
	}{{&r.Start, start}, {&r.End, end}, {&r.CreatedAt, createdAt}, {&r.UpdatedAt, updatedAt}} {
		if *f.dst, err = parseTime(f.src); err != nil {
			return nil, err
		}
	}
	return &r, nil
}
