package availability

import "sort"

// BlockSource tells where an occupied block comes from.
type BlockSource string

const (
	SourceReservation BlockSource = "reservation"
	SourceElapsed     BlockSource = "elapsed"
	SourceLocal       BlockSource = "local"
)

// Block is a half-open run of grid slots [StartSlot, EndSlot).
type Block struct {
	StartSlot     int         `json:"start_slot"`
	EndSlot       int         `json:"end_slot"`
	Source        BlockSource `json:"source,omitempty"`
	ReservationID string      `json:"reservation_id,omitempty"`
}

// Len is the number of slots in the block.
func (b Block) Len() int {
	return b.EndSlot - b.StartSlot
}

// Overlaps reports whether two blocks share a slot.
func (b Block) Overlaps(o Block) bool {
	return b.StartSlot < o.EndSlot && o.StartSlot < b.EndSlot
}

// ContainsSlot reports whether slot lies in the block.
func (b Block) ContainsSlot(slot int) bool {
	return slot >= b.StartSlot && slot < b.EndSlot
}

// mergeSlots collapses a set of slot indexes into minimal contiguous runs.
func mergeSlots(slots []int, source BlockSource) []Block {
	if len(slots) == 0 {
		return nil
	}
	sorted := append([]int(nil), slots...)
	sort.Ints(sorted)

	var runs []Block
	cur := Block{StartSlot: sorted[0], EndSlot: sorted[0] + 1, Source: source}
	for _, s := range sorted[1:] {
		switch {
		case s < cur.EndSlot:
			// duplicate
		case s == cur.EndSlot:
			cur.EndSlot++
		default:
			runs = append(runs, cur)
			cur = Block{StartSlot: s, EndSlot: s + 1, Source: source}
		}
	}
	return append(runs, cur)
}

func sortBlocks(blocks []Block) {
	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].StartSlot != blocks[j].StartSlot {
			return blocks[i].StartSlot < blocks[j].StartSlot
		}
		return blocks[i].EndSlot < blocks[j].EndSlot
	})
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func ceilDiv(a, b int) int {
	return -floorDiv(-a, b)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
