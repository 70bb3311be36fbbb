package db

import (
	"context"
	"fmt"
	"time"

	"spacebook/internal/config"
)

// SyncResourcesFromConfig applies resources.yaml to the database and schedules.
// It upserts resources, replaces their weekly schedules and marks missing
// resources inactive. Malformed schedule values are normalized to defaults
// and returned as problems.
func (db *DB) SyncResourcesFromConfig(ctx context.Context, cfg *config.ResourcesConfig) ([]error, error) {
	if cfg == nil {
		return nil, fmt.Errorf("resource config is nil")
	}

	var problems []error
	seen := make(map[int64]struct{})

	for i := range cfg.Resources {
		rc := &cfg.Resources[i]
		res := rc.Model()
		if err := db.UpsertResource(ctx, &res); err != nil {
			return problems, err
		}
		seen[rc.ID] = struct{}{}

		week, errs := rc.Week()
		for _, e := range errs {
			problems = append(problems, fmt.Errorf("resource %d: %w", rc.ID, e))
		}
		for _, def := range week {
			if err := db.SaveDaySchedule(ctx, rc.ID, def); err != nil {
				return problems, fmt.Errorf("sync resource %d schedule: %w", rc.ID, err)
			}
		}
	}

	// Deactivate resources that disappeared from config.
	rows, err := db.QueryContext(ctx, `SELECT id FROM resources WHERE is_active = 1`)
	if err != nil {
		return problems, err
	}
	var stale []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return problems, err
		}
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return problems, err
	}

	now := formatTime(time.Now())
	for _, id := range stale {
		if _, err := db.ExecContext(ctx, `UPDATE resources SET is_active = 0, updated_at = ? WHERE id = ?`, now, id); err != nil {
			return problems, fmt.Errorf("deactivate resource %d: %w", id, err)
		}
	}

	return problems, nil
}
