package selector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"spacebook/internal/availability"
	"spacebook/internal/feed"
	"spacebook/internal/grid"
	"spacebook/internal/metrics"
	"spacebook/internal/models"
	"spacebook/internal/timezone"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidForm       = errors.New("invalid form")
)

// Booker submits a booking to the authoritative backend.
type Booker interface {
	CreateReservation(ctx context.Context, req feed.CreateReservationRequest) (*models.Reservation, error)
}

// Refresher re-fetches one resource's availability for a date.
type Refresher interface {
	Refresh(ctx context.Context, resourceID int64, date time.Time) error
}

// Selection is the block currently picked by the user.
type Selection struct {
	ResourceID int64
	Block      availability.Block
}

// Deps are the collaborators of a Selector.
type Deps struct {
	Grid      grid.Grid
	Zone      *timezone.Zone
	Booker    Booker
	Cache     *availability.State
	Refresher Refresher
	Logger    *zerolog.Logger
}

// Selector turns clicks on rendered blocks into a booking request.
type Selector struct {
	mu   sync.Mutex
	fsm  *FSM
	deps Deps

	state     State
	date      time.Time
	view      map[int64][]availability.Block
	selection *Selection
	customer  models.Customer
	lastErr   error
	confirmed *models.Reservation
}

// New creates a selector in the Idle state.
func New(deps Deps) *Selector {
	if deps.Logger == nil {
		nop := zerolog.Nop()
		deps.Logger = &nop
	}
	return &Selector{
		fsm:   NewFSM(),
		deps:  deps,
		state: StateIdle,
		view:  make(map[int64][]availability.Block),
	}
}

// SetView replaces the rendered available blocks. Switching to another date
// drops the current selection.
func (s *Selector) SetView(date time.Time, blocks map[int64][]availability.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.date.IsZero() && !sameDay(s.date, date) && s.state != StateSubmitting {
		s.clear()
		s.state = StateIdle
	}
	s.date = date
	s.view = make(map[int64][]availability.Block, len(blocks))
	for id, b := range blocks {
		s.view[id] = append([]availability.Block(nil), b...)
	}
}

// Click handles a click on slot of resourceID. Clicking inside a block selects
// it, clicking the selected start again deselects, anything else is ignored.
func (s *Selector) Click(resourceID int64, slot int) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateSubmitting {
		return s.state
	}

	block, ok := s.blockAt(resourceID, slot)
	if !ok {
		return s.state
	}

	if s.selection != nil && s.selection.ResourceID == resourceID &&
		s.selection.Block.StartSlot == block.StartSlot && s.fsm.CanTransition(s.state, StateIdle) &&
		s.state != StateConfirmed {
		s.clear()
		s.state = StateIdle
		return s.state
	}

	if !s.fsm.CanTransition(s.state, StateSelecting) {
		return s.state
	}
	s.selection = &Selection{ResourceID: resourceID, Block: block}
	s.lastErr = nil
	s.confirmed = nil
	s.state = StateSelecting
	return s.state
}

// ChooseDuration confirms the resource's fixed duration for the selection.
func (s *Selector) ChooseDuration() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(StateDurationChosen, StateSelecting)
}

// FillForm validates and stores the customer fields.
func (s *Selector) FillForm(c models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateDurationChosen && s.state != StateFormFilled {
		return fmt.Errorf("%w: fill form in %s", ErrInvalidTransition, s.state)
	}
	normalized, err := validateCustomer(c)
	if err != nil {
		return err
	}
	s.customer = normalized
	s.state = StateFormFilled
	return nil
}

// Submit sends the booking. On success the block's grid keys are marked taken
// in the local cache and a refetch is triggered; on failure the selector goes
// back to DurationChosen. There is no retry.
func (s *Selector) Submit(ctx context.Context) (*models.Reservation, error) {
	s.mu.Lock()
	if err := s.transition(StateSubmitting, StateFormFilled); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	sel := *s.selection
	date := s.date
	req := feed.CreateReservationRequest{
		ResourceID: sel.ResourceID,
		Start:      s.deps.Zone.At(date, s.deps.Grid.SlotToMinute(sel.Block.StartSlot)).UTC(),
		Customer:   s.customer,
	}
	s.mu.Unlock()

	rsv, err := s.deps.Booker.CreateReservation(ctx, req)

	s.mu.Lock()
	if err != nil {
		s.state = StateFailed
		s.lastErr = err
		_ = s.transition(StateDurationChosen, StateFailed)
		s.mu.Unlock()

		result := "error"
		if errors.Is(err, feed.ErrConflict) {
			result = "conflict"
		}
		metrics.IncSelectorSubmission(result)
		s.deps.Logger.Warn().Err(err).Int64("resource_id", sel.ResourceID).
			Str("start", req.Start.Format(time.RFC3339)).Msg("booking submission failed")
		return nil, err
	}

	s.state = StateConfirmed
	s.confirmed = rsv
	s.lastErr = nil
	s.mu.Unlock()
	metrics.IncSelectorSubmission("confirmed")

	dateKey := date.Format(timezone.DateLayout)
	if s.deps.Cache != nil {
		s.deps.Cache.MarkUnavailable(sel.ResourceID, dateKey, s.keys(sel.Block))
	}
	if s.deps.Refresher != nil {
		if err := s.deps.Refresher.Refresh(ctx, sel.ResourceID, date); err != nil {
			s.deps.Logger.Error().Err(err).Int64("resource_id", sel.ResourceID).Str("date", dateKey).
				Msg("refresh after booking failed")
		}
	}
	return rsv, nil
}

// Reset returns to Idle from any state except Submitting.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting {
		return
	}
	s.clear()
	s.state = StateIdle
}

func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Selection returns a copy of the current selection, if any.
func (s *Selector) Selection() (Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selection == nil {
		return Selection{}, false
	}
	return *s.selection, true
}

func (s *Selector) Customer() models.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customer
}

// LastError is the error of the last failed submission.
func (s *Selector) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Selector) Confirmed() *models.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed
}

func (s *Selector) transition(to, from State) error {
	if s.state != from || !s.fsm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
	}
	s.state = to
	return nil
}

func (s *Selector) blockAt(resourceID int64, slot int) (availability.Block, bool) {
	for _, b := range s.view[resourceID] {
		if b.ContainsSlot(slot) {
			return b, true
		}
	}
	return availability.Block{}, false
}

func (s *Selector) keys(b availability.Block) []string {
	keys := make([]string, 0, b.Len())
	for slot := b.StartSlot; slot < b.EndSlot; slot++ {
		keys = append(keys, s.deps.Grid.SlotToTime(slot))
	}
	return keys
}

func (s *Selector) clear() {
	s.selection = nil
	s.lastErr = nil
	s.confirmed = nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func validateCustomer(c models.Customer) (models.Customer, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return c, fmt.Errorf("%w: name is required", ErrInvalidForm)
	}
	phone, err := normalizePhone(c.Phone)
	if err != nil {
		return c, err
	}
	c.Phone = phone
	c.Email = strings.TrimSpace(c.Email)
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return c, fmt.Errorf("%w: invalid email", ErrInvalidForm)
	}
	return c, nil
}

// normalizePhone keeps digits and a leading plus; 7 to 15 digits are accepted.
func normalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for i, r := range raw {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", fmt.Errorf("%w: invalid phone", ErrInvalidForm)
		}
	}
	phone := b.String()
	digits := len(strings.TrimPrefix(phone, "+"))
	if digits < 7 || digits > 15 {
		return "", fmt.Errorf("%w: invalid phone", ErrInvalidForm)
	}
	return phone, nil
}

// Describe renders a submission error as a message for the user.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, feed.ErrConflict):
		return "This time was just booked by someone else. Please pick another block."
	case errors.Is(err, feed.ErrNotBookable):
		return "This time can no longer be booked. Please pick another block."
	case errors.Is(err, ErrInvalidForm):
		return strings.TrimPrefix(err.Error(), ErrInvalidForm.Error()+": ")
	default:
		return "Booking failed, please try again later."
	}
}
