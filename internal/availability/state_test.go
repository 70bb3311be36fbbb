package availability

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacebook/internal/grid"
	"spacebook/internal/timezone"
)

func TestExpandEntries(t *testing.T) {
	keys, problems := ExpandEntries([]Entry{
		{Time: "10:00", Available: true, DurationMinutes: 90},
		{Time: "11:00", Available: false, DurationMinutes: 60},
		{Time: "23:30", Available: true, DurationMinutes: 60},
		{Time: "noon", Available: true},
		{Time: "15:00", Available: true},
	}, 30, 60)

	require.Len(t, problems, 1)
	assert.Equal(t, map[string]bool{
		"10:00": true,
		"10:30": true,
		"11:00": false,
		"11:30": false,
		"23:30": true,
		"00:00": true,
		"15:00": true,
		"15:30": true,
	}, keys)
}

func TestExpandEntries_UnavailableWinsRegardlessOfOrder(t *testing.T) {
	keys, _ := ExpandEntries([]Entry{
		{Time: "09:00", Available: false, DurationMinutes: 30},
		{Time: "08:30", Available: true, DurationMinutes: 60},
	}, 30, 30)
	assert.Equal(t, map[string]bool{"08:30": true, "09:00": false}, keys)
}

func TestLocalKeys(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)
	feed := map[string]bool{"11:00": true, "11:30": false}

	utc := LocalKeys(feed, timezone.NewWithLocation(loc, timezone.ReferenceUTC), grid.Default(), date)
	assert.Equal(t, map[string]bool{"08:00": true, "08:30": false}, utc)

	local := LocalKeys(feed, timezone.NewWithLocation(loc, timezone.ReferenceLocal), grid.Default(), date)
	assert.Equal(t, map[string]bool{"11:00": true, "11:30": false}, local)
}

func TestState_StaleApplyRejected(t *testing.T) {
	s := NewState()
	first := s.Begin(1, "2026-03-02")
	second := s.Begin(1, "2026-03-02")

	assert.True(t, s.Apply(1, "2026-03-02", second, map[string]bool{"10:00": false}))
	assert.False(t, s.Apply(1, "2026-03-02", first, map[string]bool{"12:00": false}))
	assert.Equal(t, []string{"10:00"}, s.Unavailable(1, "2026-03-02"))
}

func TestState_DatesAreIndependent(t *testing.T) {
	s := NewState()
	monday := s.Begin(1, "2026-03-02")
	tuesday := s.Begin(1, "2026-03-03")

	assert.True(t, s.Apply(1, "2026-03-03", tuesday, map[string]bool{"09:00": false}))
	assert.True(t, s.Apply(1, "2026-03-02", monday, map[string]bool{"08:00": false}))
	assert.Equal(t, []string{"09:00"}, s.Unavailable(1, "2026-03-03"))
}

func TestState_MarkAndInvalidate(t *testing.T) {
	s := NewState()
	gen := s.Begin(2, "2026-03-02")
	require.True(t, s.Apply(2, "2026-03-02", gen, map[string]bool{"08:00": true, "08:30": true}))

	s.MarkUnavailable(2, "2026-03-02", []string{"08:30", "09:00"})
	assert.Equal(t, []string{"08:30", "09:00"}, s.Unavailable(2, "2026-03-02"))

	v, found := s.Lookup(2, "2026-03-02", "08:00")
	assert.True(t, found)
	assert.True(t, v)

	s.Invalidate(2, "2026-03-02")
	assert.Empty(t, s.Unavailable(2, "2026-03-02"))
	assert.False(t, s.Apply(2, "2026-03-02", gen, map[string]bool{"10:00": false}), "in-flight fetch voided")

	_, found = s.Lookup(9, "2026-03-02", "08:00")
	assert.False(t, found)
}

func TestState_ConcurrentAccess(t *testing.T) {
	s := NewState()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			gen := s.Begin(id, "2026-03-02")
			s.Apply(id, "2026-03-02", gen, map[string]bool{"08:00": false})
			s.MarkUnavailable(id, "2026-03-02", []string{"09:00"})
			_ = s.Unavailable(id, "2026-03-02")
		}(int64(i % 5))
	}
	wg.Wait()

	for id := int64(0); id < 5; id++ {
		assert.Contains(t, s.Unavailable(id, "2026-03-02"), "09:00")
	}
}
