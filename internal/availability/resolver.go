// Package availability computes bookable blocks for a resource on one day and
// keeps the client-side availability state the booking view reads.
package availability

import (
	"time"

	"spacebook/internal/grid"
	"spacebook/internal/models"
	"spacebook/internal/schedule"
	"spacebook/internal/timezone"
)

// Input is everything the resolver needs for one resource on one date.
type Input struct {
	// Date is any instant on the target civil date in the tenant zone.
	Date            time.Time
	Intervals       []schedule.Interval
	Reservations    []models.Reservation
	DurationMinutes int
	// Now excludes elapsed slots when it falls on Date. Zero disables it.
	Now time.Time
	// Unavailable lists slots marked taken in local state.
	Unavailable []int
}

// Result holds the resolved blocks, both sorted by start slot.
type Result struct {
	Available []Block `json:"available"`
	Occupied  []Block `json:"occupied"`
}

// ReservationBlocks returns occupied blocks that come from reservations.
func (r Result) ReservationBlocks() []Block {
	var out []Block
	for _, b := range r.Occupied {
		if b.Source == SourceReservation {
			out = append(out, b)
		}
	}
	return out
}

// Resolver tiles open intervals into blocks of a resource's duration.
type Resolver struct {
	grid grid.Grid
	zone *timezone.Zone
}

// NewResolver creates a resolver over grid g in zone z.
func NewResolver(g grid.Grid, z *timezone.Zone) *Resolver {
	return &Resolver{grid: g, zone: z}
}

func (r *Resolver) Grid() grid.Grid      { return r.grid }
func (r *Resolver) Zone() *timezone.Zone { return r.zone }

// Resolve computes available and occupied blocks. It is pure: identical
// inputs give identical output.
func (r *Resolver) Resolve(in Input) Result {
	occupied := r.occupiedBlocks(in)
	res := Result{Occupied: occupied}

	if in.DurationMinutes <= 0 {
		return res
	}
	durationSlots := in.DurationMinutes / r.grid.SlotMinutes
	if durationSlots < 1 {
		durationSlots = 1
	}

	var accepted []Block
	for _, iv := range in.Intervals {
		accepted = append(accepted, r.tile(iv, durationSlots, occupied, accepted)...)
	}
	sortBlocks(accepted)
	res.Available = accepted
	return res
}

// tile walks one interval from its own opening slot. A candidate that collides
// with an occupied or already accepted block re-anchors the walk at the end of
// the collision; a candidate leaving the interval ends it.
func (r *Resolver) tile(iv schedule.Interval, durationSlots int, occupied, accepted []Block) []Block {
	total := r.grid.TotalSlots()
	opening := ceilDiv(iv.StartMinute-r.grid.OriginMinute(), r.grid.SlotMinutes)
	if opening < 0 {
		opening = 0
	}
	if opening >= total || !iv.ContainsMinute(r.grid.SlotToMinute(opening)) {
		return nil
	}

	var out []Block
	for cursor := opening; cursor+durationSlots <= total; {
		cand := Block{StartSlot: cursor, EndSlot: cursor + durationSlots}
		if !iv.Contains(r.grid.SlotToMinute(cand.StartSlot), r.grid.SlotToMinute(cand.EndSlot)) {
			break
		}
		if end, hit := collision(cand, occupied, accepted, out); hit {
			cursor = end
			continue
		}
		out = append(out, cand)
		cursor += durationSlots
	}
	return out
}

// collision returns the furthest end slot among blocks overlapping cand.
func collision(cand Block, sets ...[]Block) (int, bool) {
	end, hit := 0, false
	for _, set := range sets {
		for _, b := range set {
			if b.Overlaps(cand) && b.EndSlot > end {
				end, hit = b.EndSlot, true
			}
		}
	}
	return end, hit
}

func (r *Resolver) occupiedBlocks(in Input) []Block {
	total := r.grid.TotalSlots()
	origin := r.grid.OriginMinute()
	step := r.grid.SlotMinutes

	var blocks []Block
	for i := range in.Reservations {
		rsv := &in.Reservations[i]
		if !rsv.Occupies() {
			continue
		}
		start := clamp(floorDiv(r.zone.MinuteOfDay(rsv.Start, in.Date)-origin, step), 0, total)
		end := clamp(ceilDiv(r.zone.MinuteOfDay(rsv.End, in.Date)-origin, step), 0, total)
		if start >= end {
			continue
		}
		blocks = append(blocks, Block{StartSlot: start, EndSlot: end, Source: SourceReservation, ReservationID: rsv.ID})
	}

	var local []int
	for _, s := range in.Unavailable {
		if s >= 0 && s < total {
			local = append(local, s)
		}
	}
	blocks = append(blocks, mergeSlots(local, SourceLocal)...)

	if r.zone.IsToday(in.Date, in.Now) {
		var elapsed []int
		cut := clamp(ceilDiv(r.zone.MinuteOfDay(in.Now, in.Date)-origin, step), 0, total)
		for s := 0; s < cut; s++ {
			elapsed = append(elapsed, s)
		}
		blocks = append(blocks, mergeSlots(elapsed, SourceElapsed)...)
	}

	sortBlocks(blocks)
	return blocks
}

// Keys lists the "HH:mm" key of every slot in the block.
func (r *Resolver) Keys(b Block) []string {
	keys := make([]string, 0, b.Len())
	for s := b.StartSlot; s < b.EndSlot; s++ {
		keys = append(keys, r.grid.SlotToTime(s))
	}
	return keys
}
