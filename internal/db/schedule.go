package db

import (
	"context"
	"fmt"
	"time"

	"spacebook/internal/models"
	"spacebook/internal/schedule"
)

// GetWeekSchedule returns the seven day definitions of a resource ordered
// Sunday first. Days without a stored row get the weekday default.
func (db *DB) GetWeekSchedule(ctx context.Context, resourceID int64) ([]models.DayScheduleDefinition, error) {
	week := make([]models.DayScheduleDefinition, 7)
	stored := make([]bool, 7)

	rows, err := db.QueryContext(ctx,
		`SELECT weekday, enabled FROM day_schedules WHERE resource_id = ?`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("load day schedules: %w", err)
	}
	for rows.Next() {
		var wd int
		var enabled bool
		if err := rows.Scan(&wd, &enabled); err != nil {
			rows.Close()
			return nil, err
		}
		week[wd] = models.DayScheduleDefinition{Weekday: time.Weekday(wd), Enabled: enabled}
		stored[wd] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.QueryContext(ctx, `
		SELECT weekday, start_time, end_time FROM schedule_turnos
		WHERE resource_id = ?
		ORDER BY weekday, position`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("load turnos: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var wd int
		var t models.Turno
		if err := rows.Scan(&wd, &t.Start, &t.End); err != nil {
			return nil, err
		}
		week[wd].Turnos = append(week[wd].Turnos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for wd := range week {
		if !stored[wd] {
			week[wd] = schedule.DefaultDefinition(time.Weekday(wd))
		}
	}
	return week, nil
}

// SaveDaySchedule replaces the definition of one weekday.
func (db *DB) SaveDaySchedule(ctx context.Context, resourceID int64, def models.DayScheduleDefinition) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO day_schedules (resource_id, weekday, enabled, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(resource_id, weekday) DO UPDATE SET
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		resourceID, int(def.Weekday), def.Enabled, now,
	); err != nil {
		return fmt.Errorf("upsert day schedule %d/%s: %w", resourceID, def.Weekday, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schedule_turnos WHERE resource_id = ? AND weekday = ?`,
		resourceID, int(def.Weekday),
	); err != nil {
		return fmt.Errorf("clear turnos: %w", err)
	}

	for i, t := range def.Turnos {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_turnos (resource_id, weekday, position, start_time, end_time)
			VALUES (?, ?, ?, ?, ?)`,
			resourceID, int(def.Weekday), i, t.Start, t.End,
		); err != nil {
			return fmt.Errorf("insert turno %d: %w", i, err)
		}
	}

	return tx.Commit()
}
