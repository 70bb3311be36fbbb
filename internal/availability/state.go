package availability

import (
	"sort"
	"sync"
)

type dayKey struct {
	resourceID int64
	date       string
}

type dayState struct {
	gen  uint64
	keys map[string]bool
}

// State is the local availability cache of the booking view: grid key to
// availability per (resource, date). Every fetch takes a generation token
// with Begin; Apply only accepts the newest token, so a late response cannot
// overwrite fresher data.
type State struct {
	mu   sync.RWMutex
	days map[dayKey]*dayState
	gen  uint64
}

// NewState creates an empty state.
func NewState() *State {
	return &State{days: make(map[dayKey]*dayState)}
}

func (s *State) day(k dayKey) *dayState {
	d, ok := s.days[k]
	if !ok {
		d = &dayState{keys: make(map[string]bool)}
		s.days[k] = d
	}
	return d
}

// Begin registers a fetch for resource/date and returns its token.
func (s *State) Begin(resourceID int64, date string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.day(dayKey{resourceID, date}).gen = s.gen
	return s.gen
}

// Apply replaces the keys of resource/date when gen is still current.
// It reports whether the data was accepted.
func (s *State) Apply(resourceID int64, date string, gen uint64, keys map[string]bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.day(dayKey{resourceID, date})
	if d.gen != gen {
		return false
	}
	d.keys = make(map[string]bool, len(keys))
	for k, v := range keys {
		d.keys[k] = v
	}
	return true
}

// MarkUnavailable flags keys as taken ahead of the authoritative refetch.
func (s *State) MarkUnavailable(resourceID int64, date string, keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.day(dayKey{resourceID, date})
	for _, k := range keys {
		d.keys[k] = false
	}
}

// Invalidate drops resource/date and voids any fetch in flight for it.
func (s *State) Invalidate(resourceID int64, date string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.days[dayKey{resourceID, date}] = &dayState{gen: s.gen, keys: make(map[string]bool)}
}

// Unavailable returns the sorted keys marked taken for resource/date.
func (s *State) Unavailable(resourceID int64, date string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.days[dayKey{resourceID, date}]
	if !ok {
		return nil
	}
	var out []string
	for k, v := range d.keys {
		if !v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Lookup returns the stored value of one key.
func (s *State) Lookup(resourceID int64, date, key string) (available, found bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.days[dayKey{resourceID, date}]
	if !ok {
		return false, false
	}
	available, found = d.keys[key]
	return available, found
}
