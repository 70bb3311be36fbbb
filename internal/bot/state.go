package bot

import (
	"sync"
	"time"

	"spacebook/internal/board"
	"spacebook/internal/selector"
)

type bookingStep string

const (
	stepNone     bookingStep = "none"
	stepResource bookingStep = "resource"
	stepDate     bookingStep = "date"
	stepBlocks   bookingStep = "blocks"
	stepName     bookingStep = "name"
	stepPhone    bookingStep = "phone"
	stepConfirm  bookingStep = "confirm"
)

// userState is the booking flow of one Telegram user. Each user gets a
// private day view and selector; the availability cache is shared.
type userState struct {
	Step         bookingStep
	ResourceID   int64
	ResourceName string
	Date         time.Time
	Name         string

	loader   *board.Loader
	selector *selector.Selector
}

type stateStore struct {
	mu      sync.Mutex
	m       map[int64]*userState
	factory func() (*board.Loader, *selector.Selector)
}

func newStateStore(factory func() (*board.Loader, *selector.Selector)) *stateStore {
	return &stateStore{m: make(map[int64]*userState), factory: factory}
}

func (s *stateStore) get(userID int64) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.m[userID]
	if st == nil {
		loader, sel := s.factory()
		st = &userState{Step: stepNone, loader: loader, selector: sel}
		s.m[userID] = st
	}
	return st
}

// reset clears the flow but keeps the user's loader and selector.
func (s *stateStore) reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.m[userID]
	if st == nil {
		return
	}
	st.selector.Reset()
	st.Step = stepNone
	st.ResourceID = 0
	st.ResourceName = ""
	st.Date = time.Time{}
	st.Name = ""
}
