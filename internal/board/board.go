// Package board loads the day view of every resource: it fans out the
// per-resource queries, resolves blocks and aggregates occupancy.
package board

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"spacebook/internal/availability"
	"spacebook/internal/metrics"
	"spacebook/internal/models"
	"spacebook/internal/occupancy"
	"spacebook/internal/schedule"
	"spacebook/internal/timezone"
)

// ErrStaleView is returned by LoadDay when a newer load started before it finished.
var ErrStaleView = errors.New("stale day view")

// Source supplies the data of the day view.
type Source interface {
	Resources(ctx context.Context) ([]models.Resource, error)
	Schedule(ctx context.Context, resourceID int64) ([]models.DayScheduleDefinition, error)
	Reservations(ctx context.Context, resourceID int64, date string) ([]models.Reservation, error)
	Availability(ctx context.Context, resourceID int64, date string) ([]availability.Entry, error)
}

// cacheInvalidator is implemented by sources with their own response cache.
type cacheInvalidator interface {
	InvalidateAvailability(ctx context.Context, resourceID int64, date string)
}

// FetchError marks a resource whose availability could not be loaded. The
// resource is shown with no available blocks.
type FetchError struct {
	ResourceID int64
	Op         string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("resource %d: %s: %v", e.ResourceID, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ResourceDay is one row of the day view.
type ResourceDay struct {
	Resource models.Resource
	Result   availability.Result
	Err      error
}

// Day is the loaded view of one date.
type Day struct {
	Date      time.Time
	Resources []ResourceDay
	Occupancy occupancy.Summary
}

// Blocks returns the available blocks per resource, as the selector renders them.
func (d *Day) Blocks() map[int64][]availability.Block {
	out := make(map[int64][]availability.Block, len(d.Resources))
	for _, r := range d.Resources {
		out[r.Resource.ID] = r.Result.Available
	}
	return out
}

// Resource returns the row of resourceID.
func (d *Day) Resource(resourceID int64) (ResourceDay, bool) {
	for _, r := range d.Resources {
		if r.Resource.ID == resourceID {
			return r, true
		}
	}
	return ResourceDay{}, false
}

// Loader builds day views.
type Loader struct {
	source        Source
	resolver      *availability.Resolver
	cache         *availability.State
	clock         func() time.Time
	logger        *zerolog.Logger
	maxConcurrent int

	mu      sync.Mutex
	viewGen uint64
	current *Day
}

// NewLoader creates a loader. maxConcurrent bounds parallel resource fetches.
func NewLoader(source Source, resolver *availability.Resolver, cache *availability.State, maxConcurrent int, logger *zerolog.Logger) *Loader {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	if cache == nil {
		cache = availability.NewState()
	}
	return &Loader{
		source:        source,
		resolver:      resolver,
		cache:         cache,
		clock:         time.Now,
		logger:        logger,
		maxConcurrent: maxConcurrent,
	}
}

// SetClock replaces the time source used for elapsed-slot exclusion.
func (l *Loader) SetClock(clock func() time.Time) {
	l.clock = clock
}

func (l *Loader) Cache() *availability.State { return l.cache }

// Current returns the last accepted day view.
func (l *Loader) Current() *Day {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// LoadDay loads every active resource for date concurrently. A failing
// resource degrades to empty and carries a FetchError. If another LoadDay
// started meanwhile, the result is returned with ErrStaleView and not kept.
func (l *Loader) LoadDay(ctx context.Context, date time.Time) (*Day, error) {
	zone := l.resolver.Zone()
	date = zone.Date(date)

	l.mu.Lock()
	l.viewGen++
	gen := l.viewGen
	l.mu.Unlock()

	day := &Day{Date: date}
	resources, err := l.source.Resources(ctx)
	if err != nil {
		l.logger.Error().Err(err).Msg("failed to list resources")
		return day, fmt.Errorf("list resources: %w", err)
	}

	var active []models.Resource
	for _, r := range resources {
		if r.IsActive {
			active = append(active, r)
		}
	}

	day.Resources = make([]ResourceDay, len(active))
	sem := make(chan struct{}, l.maxConcurrent)
	var wg sync.WaitGroup
	for i, res := range active {
		wg.Add(1)
		go func(i int, res models.Resource) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			day.Resources[i] = l.loadResource(ctx, res, date)
		}(i, res)
	}
	wg.Wait()

	day.Occupancy = aggregate(day.Resources)

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.viewGen {
		metrics.IncStaleResponse()
		l.logger.Debug().Str("date", date.Format(timezone.DateLayout)).Msg("discarding stale day view")
		return day, ErrStaleView
	}
	l.current = day
	return day, nil
}

// Refresh reloads one resource of the current view after a booking.
func (l *Loader) Refresh(ctx context.Context, resourceID int64, date time.Time) error {
	date = l.resolver.Zone().Date(date)
	dateKey := date.Format(timezone.DateLayout)

	if inv, ok := l.source.(cacheInvalidator); ok {
		inv.InvalidateAvailability(ctx, resourceID, dateKey)
	}

	l.mu.Lock()
	cur := l.current
	l.mu.Unlock()
	if cur == nil || !cur.Date.Equal(date) {
		return nil
	}
	row, ok := cur.Resource(resourceID)
	if !ok {
		return fmt.Errorf("resource %d not in view", resourceID)
	}

	fresh := l.loadResource(ctx, row.Resource, date)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != cur {
		return nil
	}
	next := &Day{Date: cur.Date, Resources: append([]ResourceDay(nil), cur.Resources...)}
	for i := range next.Resources {
		if next.Resources[i].Resource.ID == resourceID {
			next.Resources[i] = fresh
		}
	}
	next.Occupancy = aggregate(next.Resources)
	l.current = next
	return fresh.Err
}

func (l *Loader) loadResource(ctx context.Context, res models.Resource, date time.Time) ResourceDay {
	dateKey := date.Format(timezone.DateLayout)
	token := l.cache.Begin(res.ID, dateKey)

	fail := func(op string, err error) ResourceDay {
		ferr := &FetchError{ResourceID: res.ID, Op: op, Err: err}
		metrics.IncAvailabilityFetchFailure(strconv.FormatInt(res.ID, 10))
		l.logger.Warn().Err(err).Int64("resource_id", res.ID).Str("date", dateKey).Str("op", op).
			Msg("availability fetch failed; resource shown as unavailable")
		return ResourceDay{Resource: res, Err: ferr}
	}

	defs, err := l.source.Schedule(ctx, res.ID)
	if err != nil {
		return fail("schedule", err)
	}
	reservations, err := l.source.Reservations(ctx, res.ID, dateKey)
	if err != nil {
		return fail("reservations", err)
	}
	entries, err := l.source.Availability(ctx, res.ID, dateKey)
	if err != nil {
		return fail("availability", err)
	}

	g := l.resolver.Grid()
	feedKeys, problems := availability.ExpandEntries(entries, g.SlotMinutes, res.DurationMinutes)
	for _, p := range problems {
		l.logger.Warn().Err(p).Int64("resource_id", res.ID).Msg("skipping malformed feed entry")
	}
	if !l.cache.Apply(res.ID, dateKey, token, availability.LocalKeys(feedKeys, l.resolver.Zone(), g, date)) {
		metrics.IncStaleResponse()
	}

	week, problems := schedule.BuildWeek(defs)
	for _, p := range problems {
		l.logger.Warn().Err(p).Int64("resource_id", res.ID).Msg("ignoring malformed turno")
	}

	var unavailable []int
	for _, key := range l.cache.Unavailable(res.ID, dateKey) {
		if slot, err := g.TimeToSlot(key); err == nil {
			unavailable = append(unavailable, slot)
		}
	}

	started := time.Now()
	result := l.resolver.Resolve(availability.Input{
		Date:            date,
		Intervals:       week.For(date.Weekday()),
		Reservations:    reservations,
		DurationMinutes: res.DurationMinutes,
		Now:             l.clock(),
		Unavailable:     unavailable,
	})
	metrics.ObserveResolve(time.Since(started).Seconds())

	return ResourceDay{Resource: res, Result: result}
}

func aggregate(rows []ResourceDay) occupancy.Summary {
	days := make([]occupancy.ResourceDay, 0, len(rows))
	for _, r := range rows {
		days = append(days, occupancy.ResourceDay{ResourceID: r.Resource.ID, Name: r.Resource.Name, Result: r.Result})
	}
	return occupancy.Aggregate(days)
}
