// Package occupancy reduces resolved days into display occupancy ratios.
package occupancy

import "spacebook/internal/availability"

// ResourceDay is the resolved availability of one resource on one day.
type ResourceDay struct {
	ResourceID int64
	Name       string
	Result     availability.Result
}

// ResourceOccupancy is the per-resource breakdown of a Summary.
type ResourceOccupancy struct {
	ResourceID     int64   `json:"resource_id"`
	Name           string  `json:"name,omitempty"`
	AvailableUnits int     `json:"available_units"`
	OccupiedUnits  int     `json:"occupied_units"`
	Percent        float64 `json:"percent"`
}

// Summary is the occupancy of a set of resources on one day. Units are
// blocks, not slots; the ratio is a coarse display value.
type Summary struct {
	TotalSlotUnits int                 `json:"total_slot_units"`
	OccupiedUnits  int                 `json:"occupied_units"`
	Percent        float64             `json:"occupancy_percent"`
	Resources      []ResourceOccupancy `json:"resources"`
}

// Aggregate counts available blocks and reservation blocks per resource.
// Elapsed and locally marked blocks do not count.
func Aggregate(days []ResourceDay) Summary {
	s := Summary{Resources: make([]ResourceOccupancy, 0, len(days))}
	for _, d := range days {
		available := len(d.Result.Available)
		occupied := len(d.Result.ReservationBlocks())
		s.Resources = append(s.Resources, ResourceOccupancy{
			ResourceID:     d.ResourceID,
			Name:           d.Name,
			AvailableUnits: available,
			OccupiedUnits:  occupied,
			Percent:        Percent(occupied, available+occupied),
		})
		s.TotalSlotUnits += available + occupied
		s.OccupiedUnits += occupied
	}
	s.Percent = Percent(s.OccupiedUnits, s.TotalSlotUnits)
	return s
}

// Percent returns occupied/total*100, or 0 when total is 0.
func Percent(occupied, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(occupied) / float64(total) * 100
}
