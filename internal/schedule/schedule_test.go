package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacebook/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		raw         *RawDay
		weekday     time.Weekday
		wantEnabled bool
		wantTurnos  []models.Turno
		wantErrs    int
	}{
		{
			name:        "nil uses weekday default",
			raw:         nil,
			weekday:     time.Monday,
			wantEnabled: true,
			wantTurnos:  []models.Turno{{Start: "08:00", End: "22:00"}},
		},
		{
			name:        "sunday default is closed",
			raw:         &RawDay{},
			weekday:     time.Sunday,
			wantEnabled: false,
			wantTurnos:  []models.Turno{{Start: "08:00", End: "22:00"}},
		},
		{
			name: "canonical shape",
			raw: &RawDay{
				Enabled: boolPtr(true),
				Turnos:  []models.Turno{{Start: "9:00", End: "13:00"}, {Start: "17:00", End: "23:00"}},
			},
			weekday:     time.Tuesday,
			wantEnabled: true,
			wantTurnos:  []models.Turno{{Start: "09:00", End: "13:00"}, {Start: "17:00", End: "23:00"}},
		},
		{
			name:        "legacy shape",
			raw:         &RawDay{Start: "10:00", End: "20:00", Enabled: boolPtr(false)},
			weekday:     time.Wednesday,
			wantEnabled: false,
			wantTurnos:  []models.Turno{{Start: "10:00", End: "20:00"}},
		},
		{
			name:        "legacy shape backfills missing end",
			raw:         &RawDay{Start: "10:00"},
			weekday:     time.Sunday,
			wantEnabled: true,
			wantTurnos:  []models.Turno{{Start: "10:00", End: "22:00"}},
		},
		{
			name:        "malformed time falls back and reports",
			raw:         &RawDay{Turnos: []models.Turno{{Start: "late", End: "21:00"}}},
			weekday:     time.Friday,
			wantEnabled: true,
			wantTurnos:  []models.Turno{{Start: "08:00", End: "21:00"}},
			wantErrs:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, errs := Normalize(tt.raw, tt.weekday)
			assert.Equal(t, tt.weekday, def.Weekday)
			assert.Equal(t, tt.wantEnabled, def.Enabled)
			assert.Equal(t, tt.wantTurnos, def.Turnos)
			assert.Len(t, errs, tt.wantErrs)
			for _, err := range errs {
				var cfgErr *ConfigurationError
				assert.True(t, errors.As(err, &cfgErr))
			}
		})
	}
}

func TestSplit_CrossMidnight(t *testing.T) {
	got, err := Split(models.Turno{Start: "22:00", End: "02:00"}, time.Monday)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, time.Monday, got[0].Weekday)
	assert.Equal(t, Interval{StartMinute: 22 * 60, EndMinute: 23*60 + 59}, got[0].Interval)
	assert.Equal(t, time.Tuesday, got[1].Weekday)
	assert.Equal(t, Interval{StartMinute: 0, EndMinute: 2 * 60}, got[1].Interval)
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		turno   models.Turno
		weekday time.Weekday
		want    []DayInterval
	}{
		{
			name:    "same day",
			turno:   models.Turno{Start: "08:00", End: "13:00"},
			weekday: time.Friday,
			want:    []DayInterval{{Weekday: time.Friday, Interval: Interval{480, 780}}},
		},
		{
			name:    "ends at midnight",
			turno:   models.Turno{Start: "20:00", End: "00:00"},
			weekday: time.Friday,
			want:    []DayInterval{{Weekday: time.Friday, Interval: Interval{1200, 1439}}},
		},
		{
			name:    "saturday wraps to sunday",
			turno:   models.Turno{Start: "23:00", End: "01:30"},
			weekday: time.Saturday,
			want: []DayInterval{
				{Weekday: time.Saturday, Interval: Interval{1380, 1439}},
				{Weekday: time.Sunday, Interval: Interval{0, 90}},
			},
		},
		{
			name:    "zero length dropped",
			turno:   models.Turno{Start: "10:00", End: "10:00"},
			weekday: time.Monday,
			want:    nil,
		},
		{
			name:    "starting at 23:59 keeps only next day",
			turno:   models.Turno{Start: "23:59", End: "03:00"},
			weekday: time.Monday,
			want:    []DayInterval{{Weekday: time.Tuesday, Interval: Interval{0, 180}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.turno, tt.weekday)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Split(models.Turno{Start: "x", End: "10:00"}, time.Monday)
	assert.Error(t, err)
}

func TestBuildWeek(t *testing.T) {
	defs := []models.DayScheduleDefinition{
		{Weekday: time.Monday, Enabled: true, Turnos: []models.Turno{
			{Start: "17:00", End: "21:00"},
			{Start: "22:00", End: "02:00"},
			{Start: "08:00", End: "12:00"},
		}},
		{Weekday: time.Tuesday, Enabled: true, Turnos: []models.Turno{{Start: "09:00", End: "11:00"}}},
		{Weekday: time.Wednesday, Enabled: false, Turnos: []models.Turno{{Start: "09:00", End: "11:00"}}},
		{Weekday: time.Thursday, Enabled: true, Turnos: []models.Turno{{Start: "bad", End: "11:00"}}},
	}

	week, problems := BuildWeek(defs)
	assert.Len(t, problems, 1)

	assert.Equal(t, []Interval{{480, 720}, {1020, 1260}, {1320, 1439}}, week.For(time.Monday))
	assert.Equal(t, []Interval{{0, 120}, {540, 660}}, week.For(time.Tuesday))
	assert.Empty(t, week.For(time.Wednesday))
	assert.Empty(t, week.For(time.Thursday))
}

func TestInterval_Contains(t *testing.T) {
	late := Interval{StartMinute: 22 * 60, EndMinute: 23*60 + 59}
	assert.True(t, late.Contains(23*60, 24*60), "23:59 closes the day")
	assert.True(t, late.ContainsMinute(23*60+30))

	day := Interval{StartMinute: 8 * 60, EndMinute: 23 * 60}
	assert.True(t, day.Contains(22*60, 23*60))
	assert.False(t, day.Contains(22*60+30, 23*60+30))
	assert.False(t, day.ContainsMinute(23*60))
	assert.Equal(t, "08:00-23:00", day.String())
}

func TestNormalizeWeek(t *testing.T) {
	defs, problems := NormalizeWeek(map[time.Weekday]*RawDay{
		time.Monday: {Start: "07:00", End: "15:00"},
	})
	assert.Empty(t, problems)
	require.Len(t, defs, 7)
	assert.Equal(t, time.Sunday, defs[0].Weekday)
	assert.False(t, defs[0].Enabled)
	assert.Equal(t, []models.Turno{{Start: "07:00", End: "15:00"}}, defs[1].Turnos)
}
