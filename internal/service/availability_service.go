// Package service serves resolved availability and books reservations
// against the store.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"spacebook/internal/availability"
	"spacebook/internal/db"
	"spacebook/internal/grid"
	"spacebook/internal/metrics"
	"spacebook/internal/models"
	"spacebook/internal/occupancy"
	"spacebook/internal/schedule"
	"spacebook/internal/timezone"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrConflict means the requested block is already taken.
	ErrConflict = errors.New("slot already reserved")

	// ErrNotBookable means the start is not the start of an available block.
	ErrNotBookable = errors.New("start is not a bookable block")

	ErrInvalidTransition = errors.New("invalid status transition")
)

// MaxReportDays bounds the occupancy report range.
const MaxReportDays = 62

// Store is the persistence the service needs.
type Store interface {
	ListResources(ctx context.Context, activeOnly bool) ([]models.Resource, error)
	GetResource(ctx context.Context, id int64) (*models.Resource, error)
	GetWeekSchedule(ctx context.Context, resourceID int64) ([]models.DayScheduleDefinition, error)
	ListOccupyingReservations(ctx context.Context, resourceID int64, from, to time.Time) ([]models.Reservation, error)
	CreateReservation(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	UpdateReservationStatus(ctx context.Context, id string, status models.ReservationStatus) (*models.Reservation, error)
}

// DayAvailability is the resolved day of one resource.
type DayAvailability struct {
	Resource     models.Resource
	Date         time.Time
	Reservations []models.Reservation
	Result       availability.Result
}

// BookRequest asks for the block starting at Start.
type BookRequest struct {
	ResourceID int64
	Start      time.Time
	Customer   models.Customer
}

type AvailabilityService struct {
	store      Store
	resolver   *availability.Resolver
	maxAdvance time.Duration
	clock      func() time.Time
	logger     *zerolog.Logger
}

func NewAvailabilityService(store Store, resolver *availability.Resolver, maxAdvance time.Duration, logger *zerolog.Logger) *AvailabilityService {
	return &AvailabilityService{
		store:      store,
		resolver:   resolver,
		maxAdvance: maxAdvance,
		clock:      time.Now,
		logger:     logger,
	}
}

// SetClock replaces the time source.
func (s *AvailabilityService) SetClock(clock func() time.Time) {
	s.clock = clock
}

func (s *AvailabilityService) Zone() *timezone.Zone {
	return s.resolver.Zone()
}

func (s *AvailabilityService) Grid() grid.Grid {
	return s.resolver.Grid()
}

// Now returns the service clock.
func (s *AvailabilityService) Now() time.Time {
	return s.clock()
}

// Resources lists active resources.
func (s *AvailabilityService) Resources(ctx context.Context) ([]models.Resource, error) {
	return s.store.ListResources(ctx, true)
}

// Schedule returns the weekly definitions of a resource.
func (s *AvailabilityService) Schedule(ctx context.Context, resourceID int64) ([]models.DayScheduleDefinition, error) {
	if _, err := s.resource(ctx, resourceID); err != nil {
		return nil, err
	}
	return s.store.GetWeekSchedule(ctx, resourceID)
}

// Reservations returns the occupying reservations that touch date.
func (s *AvailabilityService) Reservations(ctx context.Context, resourceID int64, date time.Time) ([]models.Reservation, error) {
	if _, err := s.resource(ctx, resourceID); err != nil {
		return nil, err
	}
	from, to := s.dayBounds(date)
	return s.store.ListOccupyingReservations(ctx, resourceID, from, to)
}

// ResourceDay resolves one resource on date.
func (s *AvailabilityService) ResourceDay(ctx context.Context, resourceID int64, date time.Time) (*DayAvailability, error) {
	res, err := s.resource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, *res, date)
}

func (s *AvailabilityService) resolve(ctx context.Context, res models.Resource, date time.Time) (*DayAvailability, error) {
	date = s.Zone().Date(date)

	defs, err := s.store.GetWeekSchedule(ctx, res.ID)
	if err != nil {
		return nil, fmt.Errorf("load schedule of resource %d: %w", res.ID, err)
	}
	week, problems := schedule.BuildWeek(defs)
	for _, p := range problems {
		s.logger.Warn().Err(p).Int64("resource_id", res.ID).Msg("ignoring malformed turno")
	}

	from, to := s.dayBounds(date)
	reservations, err := s.store.ListOccupyingReservations(ctx, res.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load reservations of resource %d: %w", res.ID, err)
	}

	started := time.Now()
	result := s.resolver.Resolve(availability.Input{
		Date:            date,
		Intervals:       week.For(date.Weekday()),
		Reservations:    reservations,
		DurationMinutes: res.DurationMinutes,
		Now:             s.clock(),
	})
	metrics.ObserveResolve(time.Since(started).Seconds())

	return &DayAvailability{Resource: res, Date: date, Reservations: reservations, Result: result}, nil
}

// Entries renders a resolved day as feed entries in the configured time
// reference: available blocks as true, reservation blocks as false.
func (s *AvailabilityService) Entries(day *DayAvailability) []availability.Entry {
	g := s.resolver.Grid()
	type marked struct {
		block     availability.Block
		available bool
	}
	var blocks []marked
	for _, b := range day.Result.Available {
		blocks = append(blocks, marked{b, true})
	}
	for _, b := range day.Result.ReservationBlocks() {
		blocks = append(blocks, marked{b, false})
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].block.StartSlot < blocks[j].block.StartSlot })

	out := make([]availability.Entry, 0, len(blocks))
	for _, m := range blocks {
		out = append(out, availability.Entry{
			Time:            s.Zone().FeedKey(day.Date, g.SlotToMinute(m.block.StartSlot)),
			Available:       m.available,
			DurationMinutes: m.block.Len() * g.SlotMinutes,
		})
	}
	return out
}

// Occupancy resolves every active resource on date and aggregates them.
func (s *AvailabilityService) Occupancy(ctx context.Context, date time.Time) (occupancy.Summary, error) {
	resources, err := s.store.ListResources(ctx, true)
	if err != nil {
		return occupancy.Summary{}, fmt.Errorf("list resources: %w", err)
	}

	days := make([]occupancy.ResourceDay, 0, len(resources))
	for _, res := range resources {
		day, err := s.resolve(ctx, res, date)
		if err != nil {
			return occupancy.Summary{}, err
		}
		days = append(days, occupancy.ResourceDay{ResourceID: res.ID, Name: res.Name, Result: day.Result})
	}

	summary := occupancy.Aggregate(days)
	metrics.SetOccupancyPercent(summary.Percent)
	return summary, nil
}

// Report aggregates occupancy for every date in [from, to].
func (s *AvailabilityService) Report(ctx context.Context, from, to time.Time) ([]occupancy.DayReport, error) {
	from, to = s.Zone().Date(from), s.Zone().Date(to)
	if to.Before(from) {
		return nil, fmt.Errorf("report range ends before it starts")
	}

	var out []occupancy.DayReport
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if len(out) == MaxReportDays {
			return nil, fmt.Errorf("report range exceeds %d days", MaxReportDays)
		}
		summary, err := s.Occupancy(ctx, d)
		if err != nil {
			return nil, err
		}
		out = append(out, occupancy.DayReport{Date: d.Format(timezone.DateLayout), Summary: summary})
	}
	return out, nil
}

// Book reserves the available block that starts exactly at req.Start.
func (s *AvailabilityService) Book(ctx context.Context, req BookRequest) (*models.Reservation, error) {
	now := s.clock()
	if s.maxAdvance > 0 && req.Start.After(now.Add(s.maxAdvance)) {
		metrics.IncReservationCreated("not_bookable")
		return nil, fmt.Errorf("%w: more than %s ahead", ErrNotBookable, s.maxAdvance)
	}

	date := s.Zone().Date(req.Start)
	day, err := s.ResourceDay(ctx, req.ResourceID, date)
	if err != nil {
		return nil, err
	}

	g := s.resolver.Grid()
	minute := s.Zone().MinuteOfDay(req.Start, date)
	slot := g.MinuteToSlot(minute)
	block, ok := findBlock(day.Result.Available, slot)
	if !ok || g.SlotToMinute(block.StartSlot) != minute {
		for _, b := range day.Result.ReservationBlocks() {
			if b.ContainsSlot(slot) {
				metrics.IncReservationCreated("conflict")
				return nil, ErrConflict
			}
		}
		metrics.IncReservationCreated("not_bookable")
		return nil, ErrNotBookable
	}

	r := &models.Reservation{
		ResourceID: req.ResourceID,
		Start:      s.Zone().At(date, g.SlotToMinute(block.StartSlot)).UTC(),
		End:        s.Zone().At(date, g.SlotToMinute(block.EndSlot)).UTC(),
		Status:     models.StatusPending,
		Customer:   req.Customer,
	}
	if err := s.store.CreateReservation(ctx, r); err != nil {
		switch {
		case errors.Is(err, db.ErrConflict):
			metrics.IncReservationCreated("conflict")
			return nil, ErrConflict
		case errors.Is(err, db.ErrNotFound):
			return nil, fmt.Errorf("resource %d: %w", req.ResourceID, ErrNotFound)
		}
		metrics.IncReservationCreated("error")
		return nil, fmt.Errorf("create reservation: %w", err)
	}

	metrics.IncReservationCreated("ok")
	s.logger.Info().Str("reservation_id", r.ID).Int64("resource_id", r.ResourceID).
		Time("start", r.Start).Time("end", r.End).Msg("reservation created")
	return r, nil
}

// UpdateStatus changes a reservation status and returns the updated
// reservation together with its previous status.
func (s *AvailabilityService) UpdateStatus(ctx context.Context, id string, status models.ReservationStatus) (*models.Reservation, models.ReservationStatus, error) {
	prev, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, "", mapStoreErr(err)
	}
	updated, err := s.store.UpdateReservationStatus(ctx, id, status)
	if err != nil {
		return nil, "", mapStoreErr(err)
	}
	metrics.IncReservationStatus(string(status))
	s.logger.Info().Str("reservation_id", id).Str("from", string(prev.Status)).Str("to", string(status)).
		Msg("reservation status changed")
	return updated, prev.Status, nil
}

func (s *AvailabilityService) resource(ctx context.Context, id int64) (*models.Resource, error) {
	res, err := s.store.GetResource(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return res, nil
}

// dayBounds returns the instants of local midnight on date and the next day.
func (s *AvailabilityService) dayBounds(date time.Time) (time.Time, time.Time) {
	date = s.Zone().Date(date)
	return s.Zone().At(date, 0), s.Zone().At(date, 24*60)
}

func findBlock(blocks []availability.Block, slot int) (availability.Block, bool) {
	for _, b := range blocks {
		if b.ContainsSlot(slot) {
			return b, true
		}
	}
	return availability.Block{}, false
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, db.ErrInvalidTransition):
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	case errors.Is(err, db.ErrConflict):
		return ErrConflict
	}
	return err
}
