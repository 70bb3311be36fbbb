package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"spacebook/internal/availability"
	"spacebook/internal/events"
	"spacebook/internal/metrics"
	"spacebook/internal/models"
	"spacebook/internal/occupancy"
	"spacebook/internal/service"
	"spacebook/internal/timezone"
)

// CreateReservationRequest is the body of POST /api/v1/reservations.
type CreateReservationRequest struct {
	ResourceID int64           `json:"resource_id"`
	Start      string          `json:"start"` // RFC3339
	Customer   models.Customer `json:"customer"`
}

// UpdateReservationRequest is the body of PATCH /api/v1/reservations/{id}.
type UpdateReservationRequest struct {
	Status string `json:"status"`
}

// AvailabilityResponse is the feed answer for one resource and date.
type AvailabilityResponse struct {
	ResourceID    int64                `json:"resource_id"`
	Date          string               `json:"date"`
	TimeReference timezone.Reference   `json:"time_reference"`
	Entries       []availability.Entry `json:"entries"`
}

// BlockView is a block positioned on the day timeline.
type BlockView struct {
	StartSlot     int     `json:"start_slot"`
	EndSlot       int     `json:"end_slot"`
	Start         string  `json:"start"`
	End           string  `json:"end"`
	LeftPercent   float64 `json:"left_percent"`
	WidthPercent  float64 `json:"width_percent"`
	Source        string  `json:"source,omitempty"`
	ReservationID string  `json:"reservation_id,omitempty"`
}

// BlocksResponse is the timeline of one resource and date.
type BlocksResponse struct {
	ResourceID int64       `json:"resource_id"`
	Date       string      `json:"date"`
	Available  []BlockView `json:"available"`
	Occupied   []BlockView `json:"occupied"`
}

// handleResources lists active resources.
// GET /api/v1/resources
func (s *HTTPServer) handleResources(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("resources")
	resources, err := s.svc.Resources(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if resources == nil {
		resources = []models.Resource{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

// handleSchedule returns the weekly schedule of a resource.
// GET /api/v1/resources/{id}/schedule
func (s *HTTPServer) handleSchedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("schedule")
	id, ok := resourceID(w, r)
	if !ok {
		return
	}
	days, err := s.svc.Schedule(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resource_id": id, "days": days})
}

// handleAvailability is the availability feed.
// GET /api/v1/resources/{id}/availability?date=YYYY-MM-DD
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")
	id, ok := resourceID(w, r)
	if !ok {
		return
	}
	date, ok := s.dateParam(w, r, "date")
	if !ok {
		return
	}
	day, err := s.svc.ResourceDay(r.Context(), id, date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		ResourceID:    id,
		Date:          date.Format(timezone.DateLayout),
		TimeReference: s.svc.Zone().Reference(),
		Entries:       s.svc.Entries(day),
	})
}

// handleBlocks returns the positioned timeline of a resource.
// GET /api/v1/resources/{id}/blocks?date=YYYY-MM-DD
func (s *HTTPServer) handleBlocks(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("blocks")
	id, ok := resourceID(w, r)
	if !ok {
		return
	}
	date, ok := s.dateParam(w, r, "date")
	if !ok {
		return
	}
	day, err := s.svc.ResourceDay(r.Context(), id, date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BlocksResponse{
		ResourceID: id,
		Date:       date.Format(timezone.DateLayout),
		Available:  s.blockViews(day.Result.Available),
		Occupied:   s.blockViews(day.Result.Occupied),
	})
}

// handleReservations lists occupying reservations touching a date.
// GET /api/v1/resources/{id}/reservations?date=YYYY-MM-DD
func (s *HTTPServer) handleReservations(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations")
	id, ok := resourceID(w, r)
	if !ok {
		return
	}
	date, ok := s.dateParam(w, r, "date")
	if !ok {
		return
	}
	list, err := s.svc.Reservations(r.Context(), id, date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []models.Reservation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": list})
}

// handleCreateReservation books the block starting at the given instant.
// POST /api/v1/reservations
func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_reservation")

	var req CreateReservationRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ResourceID <= 0 {
		writeError(w, http.StatusBadRequest, "resource_id is required")
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start; expected RFC3339")
		return
	}
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Phone = strings.TrimSpace(req.Customer.Phone)
	if req.Customer.Name == "" || req.Customer.Phone == "" {
		writeError(w, http.StatusBadRequest, "customer name and phone are required")
		return
	}

	res, err := s.svc.Book(r.Context(), service.BookRequest{
		ResourceID: req.ResourceID,
		Start:      start,
		Customer:   req.Customer,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.publish(events.ReservationCreated, events.ReservationPayload{Reservation: *res})
	writeJSON(w, http.StatusCreated, map[string]any{"reservation": res})
}

// handleUpdateReservation changes a reservation status.
// PATCH /api/v1/reservations/{id}
func (s *HTTPServer) handleUpdateReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("update_reservation")

	var req UpdateReservationRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	status, err := models.ParseReservationStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, prev, err := s.svc.UpdateStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.publish(events.ReservationStatusChanged, events.ReservationPayload{Reservation: *res, PreviousStatus: prev})
	writeJSON(w, http.StatusOK, map[string]any{"reservation": res})
}

// handleOccupancy aggregates all active resources on a date.
// GET /api/v1/occupancy?date=YYYY-MM-DD
func (s *HTTPServer) handleOccupancy(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("occupancy")
	date, ok := s.dateParam(w, r, "date")
	if !ok {
		return
	}
	summary, err := s.svc.Occupancy(r.Context(), date)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Date string `json:"date"`
		occupancy.Summary
	}{date.Format(timezone.DateLayout), summary})
}

// handleOccupancyReport exports occupancy for a date range as XLSX.
// GET /api/v1/occupancy/report?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleOccupancyReport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("occupancy_report")
	q := r.URL.Query()
	if q.Get("from") == "" || q.Get("to") == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	from, ok := s.dateParam(w, r, "from")
	if !ok {
		return
	}
	to, ok := s.dateParam(w, r, "to")
	if !ok {
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "from must be before or equal to to")
		return
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > service.MaxReportDays {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("date range exceeds maximum of %d days", service.MaxReportDays))
		return
	}

	reports, err := s.svc.Report(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	name := fmt.Sprintf("occupancy_%s_%s.xlsx", from.Format(timezone.DateLayout), to.Format(timezone.DateLayout))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := occupancy.WriteReport(w, reports); err != nil {
		s.logger.Error().Err(err).Msg("failed to write occupancy report")
	}
}

func (s *HTTPServer) blockViews(blocks []availability.Block) []BlockView {
	g := s.svc.Grid()
	out := make([]BlockView, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, BlockView{
			StartSlot:     b.StartSlot,
			EndSlot:       b.EndSlot,
			Start:         g.SlotToTime(b.StartSlot),
			End:           g.SlotToTime(b.EndSlot),
			LeftPercent:   g.SlotToPercent(b.StartSlot),
			WidthPercent:  g.SlotToPercent(b.Len()),
			Source:        string(b.Source),
			ReservationID: b.ReservationID,
		})
	}
	return out
}

func (s *HTTPServer) publish(eventType string, payload events.ReservationPayload) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("event handler failed")
	}
}

// dateParam parses a YYYY-MM-DD query parameter in the tenant zone. An empty
// value means today.
func (s *HTTPServer) dateParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return s.svc.Zone().Date(s.svc.Now()), true
	}
	date, err := s.svc.Zone().ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s format; expected YYYY-MM-DD", name))
		return time.Time{}, false
	}
	return date, true
}

func resourceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid resource id")
		return 0, false
	}
	return id, true
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNotBookable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
