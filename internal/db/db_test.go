package db

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacebook/internal/config"
	"spacebook/internal/models"
	"spacebook/internal/schedule"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedResource(t *testing.T, db *DB, id int64, active bool) {
	t.Helper()
	require.NoError(t, db.UpsertResource(context.Background(), &models.Resource{
		ID: id, Name: "Cancha " + string(rune('A'+id)), DurationMinutes: 60, IsActive: active,
	}))
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func reservation(resourceID int64, start, end time.Time) *models.Reservation {
	return &models.Reservation{
		ResourceID: resourceID,
		Start:      start,
		End:        end,
		Customer:   models.Customer{Name: "Ana", Phone: "+5491155551234"},
	}
}

func TestResources(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedResource(t, db, 1, true)
	seedResource(t, db, 2, false)

	all, err := db.ListResources(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := db.ListResources(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(1), active[0].ID)

	r, err := db.GetResource(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 60, r.DurationMinutes)
	assert.False(t, r.CreatedAt.IsZero())

	_, err = db.GetResource(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWeekSchedule(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedResource(t, db, 1, true)

	week, err := db.GetWeekSchedule(ctx, 1)
	require.NoError(t, err)
	require.Len(t, week, 7)
	assert.Equal(t, schedule.DefaultDefinition(time.Sunday), week[time.Sunday])
	assert.Equal(t, schedule.DefaultDefinition(time.Monday), week[time.Monday])

	monday := models.DayScheduleDefinition{
		Weekday: time.Monday,
		Enabled: true,
		Turnos:  []models.Turno{{Start: "08:00", End: "12:00"}, {Start: "16:00", End: "02:00"}},
	}
	require.NoError(t, db.SaveDaySchedule(ctx, 1, monday))
	require.NoError(t, db.SaveDaySchedule(ctx, 1, models.DayScheduleDefinition{Weekday: time.Tuesday}))

	week, err = db.GetWeekSchedule(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, monday, week[time.Monday])
	assert.False(t, week[time.Tuesday].Enabled)
	assert.Empty(t, week[time.Tuesday].Turnos)

	monday.Turnos = monday.Turnos[:1]
	require.NoError(t, db.SaveDaySchedule(ctx, 1, monday))
	week, err = db.GetWeekSchedule(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, week[time.Monday].Turnos, 1, "saving replaces the previous turnos")
}

func TestCreateReservation_Overlap(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedResource(t, db, 1, true)
	seedResource(t, db, 2, true)

	first := reservation(1, at(10, 0), at(11, 0))
	require.NoError(t, db.CreateReservation(ctx, first))
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, models.StatusPending, first.Status)

	tests := []struct {
		name       string
		resourceID int64
		start, end time.Time
		wantErr    error
	}{
		{"overlapping start", 1, at(10, 30), at(11, 30), ErrConflict},
		{"contained", 1, at(10, 15), at(10, 45), ErrConflict},
		{"adjacent after", 1, at(11, 0), at(12, 0), nil},
		{"adjacent before", 1, at(9, 0), at(10, 0), nil},
		{"other resource", 2, at(10, 0), at(11, 0), nil},
		{"unknown resource", 42, at(10, 0), at(11, 0), ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.CreateReservation(ctx, reservation(tt.resourceID, tt.start, tt.end))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := db.UpdateReservationStatus(ctx, first.ID, models.StatusCancelled)
	require.NoError(t, err)
	assert.NoError(t, db.CreateReservation(ctx, reservation(1, at(10, 0), at(11, 0))),
		"a cancelled reservation frees its range")
}

func TestCreateReservation_InactiveResource(t *testing.T) {
	db := newTestDB(t)
	seedResource(t, db, 1, false)
	err := db.CreateReservation(context.Background(), reservation(1, at(10, 0), at(11, 0)))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateReservation_Concurrent(t *testing.T) {
	db := newTestDB(t)
	seedResource(t, db, 1, true)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created, conflicts := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.CreateReservation(context.Background(), reservation(1, at(18, 0), at(19, 0)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Equal(t, 7, conflicts)
}

func TestListReservations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedResource(t, db, 1, true)

	a := reservation(1, at(9, 0), at(10, 0))
	b := reservation(1, at(12, 0), at(13, 0))
	c := reservation(1, at(23, 30), at(23, 30).Add(time.Hour))
	for _, r := range []*models.Reservation{a, b, c} {
		require.NoError(t, db.CreateReservation(ctx, r))
	}
	_, err := db.UpdateReservationStatus(ctx, b.ID, models.StatusCancelled)
	require.NoError(t, err)

	dayStart := at(0, 0)
	dayEnd := dayStart.Add(24 * time.Hour)

	occupying, err := db.ListOccupyingReservations(ctx, 1, dayStart, dayEnd)
	require.NoError(t, err)
	require.Len(t, occupying, 2)
	assert.Equal(t, a.ID, occupying[0].ID)
	assert.Equal(t, c.ID, occupying[1].ID)
	assert.True(t, occupying[0].Start.Equal(at(9, 0)))

	nextDay, err := db.ListOccupyingReservations(ctx, 1, dayEnd, dayEnd.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, nextDay, 1, "a reservation crossing midnight occupies the next day too")

	all, err := db.ListReservations(ctx, 1, dayStart, dayEnd)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUpdateReservationStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedResource(t, db, 1, true)

	r := reservation(1, at(10, 0), at(11, 0))
	require.NoError(t, db.CreateReservation(ctx, r))

	got, err := db.UpdateReservationStatus(ctx, r.ID, models.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.True(t, got.Start.Equal(r.Start))

	_, err = db.UpdateReservationStatus(ctx, r.ID, models.StatusPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = db.UpdateReservationStatus(ctx, r.ID, models.StatusCancelled)
	require.NoError(t, err)

	_, err = db.UpdateReservationStatus(ctx, r.ID, models.StatusConfirmed)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = db.UpdateReservationStatus(ctx, "missing", models.StatusConfirmed)
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)
	assert.Equal(t, "Ana", stored.Customer.Name)
}

func TestSyncResourcesFromConfig(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedResource(t, db, 9, true)

	closed := false
	cfg := &config.ResourcesConfig{Resources: []config.ResourceConfig{
		{
			ID: 1, Name: "Cancha 1", DurationMinutes: 90, IsActive: true,
			Schedule: map[string]*schedule.RawDay{
				"monday": {Turnos: []models.Turno{{Start: "8:00", End: "xx"}}},
				"sunday": {Enabled: &closed},
			},
		},
	}}

	problems, err := db.SyncResourcesFromConfig(ctx, cfg)
	require.NoError(t, err)
	assert.Len(t, problems, 1)

	r, err := db.GetResource(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 90, r.DurationMinutes)

	stale, err := db.GetResource(ctx, 9)
	require.NoError(t, err)
	assert.False(t, stale.IsActive)

	week, err := db.GetWeekSchedule(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []models.Turno{{Start: "08:00", End: "22:00"}}, week[time.Monday].Turnos)
	assert.False(t, week[time.Sunday].Enabled)

	_, err = db.SyncResourcesFromConfig(ctx, nil)
	assert.Error(t, err)
}

func TestBackup(t *testing.T) {
	db := newTestDB(t)
	seedResource(t, db, 1, true)
	logger := zerolog.New(io.Discard)
	dir := filepath.Join(t.TempDir(), "backups")

	svc := NewBackupService(db, BackupOptions{Enabled: true, Path: dir, RetentionDays: 7}, &logger)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC) }

	path, err := svc.Backup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "backup_20260302_040000.db"), path)

	copyDB, err := NewDB(path)
	require.NoError(t, err)
	defer copyDB.Close()
	resources, err := copyDB.ListResources(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, resources, 1)

	old := filepath.Join(dir, "backup_20260101_040000.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	past := time.Date(2026, 1, 1, 4, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(path, svc.now(), svc.now()))

	assert.Equal(t, 1, svc.CleanupBackups())
	assert.NoFileExists(t, old)
	assert.FileExists(t, path)
}

func TestStoreErrors(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := &DB{DB: sqlDB}
	ctx := context.Background()

	mock.ExpectQuery("SELECT .* FROM resources").WillReturnError(errors.New("disk I/O error"))
	_, err = db.ListResources(ctx, false)
	assert.ErrorContains(t, err, "list resources")

	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))
	err = db.CreateReservation(ctx, reservation(1, at(10, 0), at(11, 0)))
	assert.ErrorContains(t, err, "begin tx")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT is_active FROM resources").
		WillReturnRows(sqlmock.NewRows([]string{"is_active"}).AddRow(true))
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()
	err = db.CreateReservation(ctx, reservation(1, at(10, 0), at(11, 0)))
	assert.ErrorContains(t, err, "check overlap")

	assert.NoError(t, mock.ExpectationsWereMet())
}
