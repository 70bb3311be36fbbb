package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"spacebook/internal/models"
)

const resourceColumns = `id, name, description, duration_minutes, is_active, created_at, updated_at`

// ListResources returns resources ordered by id.
func (db *DB) ListResources(ctx context.Context, activeOnly bool) ([]models.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var out []models.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// GetResource returns one resource or ErrNotFound.
func (db *DB) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	row := db.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resource %d: %w", id, ErrNotFound)
	}
	return r, err
}

// UpsertResource inserts or updates a resource, preserving created_at.
func (db *DB) UpsertResource(ctx context.Context, r *models.Resource) error {
	now := formatTime(time.Now())
	_, err := db.ExecContext(ctx, `
		INSERT INTO resources (id, name, description, duration_minutes, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			duration_minutes = excluded.duration_minutes,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		r.ID, r.Name, r.Description, r.DurationMinutes, r.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert resource %d: %w", r.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResource(s scanner) (*models.Resource, error) {
	var r models.Resource
	var createdAt, updatedAt string
	if err := s.Scan(&r.ID, &r.Name, &r.Description, &r.DurationMinutes, &r.IsActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}
