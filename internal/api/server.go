// Package api is the HTTP interface of the booking server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"spacebook/internal/availability"
	"spacebook/internal/events"
	"spacebook/internal/grid"
	"spacebook/internal/models"
	"spacebook/internal/occupancy"
	"spacebook/internal/service"
	"spacebook/internal/timezone"
)

// Service is the booking logic behind the handlers.
type Service interface {
	Resources(ctx context.Context) ([]models.Resource, error)
	Schedule(ctx context.Context, resourceID int64) ([]models.DayScheduleDefinition, error)
	Reservations(ctx context.Context, resourceID int64, date time.Time) ([]models.Reservation, error)
	ResourceDay(ctx context.Context, resourceID int64, date time.Time) (*service.DayAvailability, error)
	Entries(day *service.DayAvailability) []availability.Entry
	Occupancy(ctx context.Context, date time.Time) (occupancy.Summary, error)
	Report(ctx context.Context, from, to time.Time) ([]occupancy.DayReport, error)
	Book(ctx context.Context, req service.BookRequest) (*models.Reservation, error)
	UpdateStatus(ctx context.Context, id string, status models.ReservationStatus) (*models.Reservation, models.ReservationStatus, error)
	Zone() *timezone.Zone
	Grid() grid.Grid
	Now() time.Time
}

// Options configures the HTTP server.
type Options struct {
	Port         int
	APIKey       string
	RateLimitRPS float64
	Burst        int
}

type HTTPServer struct {
	server  *http.Server
	svc     Service
	bus     *events.EventBus
	apiKey  string
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

func NewHTTPServer(opts Options, svc Service, bus *events.EventBus, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		svc:    svc,
		bus:    bus,
		apiKey: opts.APIKey,
		logger: logger,
	}
	if opts.RateLimitRPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RateLimitRPS)
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.Handle("GET /api/v1/resources", s.protect(s.handleResources))
	mux.Handle("GET /api/v1/resources/{id}/schedule", s.protect(s.handleSchedule))
	mux.Handle("GET /api/v1/resources/{id}/availability", s.protect(s.handleAvailability))
	mux.Handle("GET /api/v1/resources/{id}/blocks", s.protect(s.handleBlocks))
	mux.Handle("GET /api/v1/resources/{id}/reservations", s.protect(s.handleReservations))
	mux.Handle("POST /api/v1/reservations", s.protect(s.handleCreateReservation))
	mux.Handle("PATCH /api/v1/reservations/{id}", s.protect(s.handleUpdateReservation))
	mux.Handle("GET /api/v1/occupancy", s.protect(s.handleOccupancy))
	mux.Handle("GET /api/v1/occupancy/report", s.protect(s.handleOccupancyReport))
	return mux
}

// Handler exposes the routed handler, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// protect applies rate limiting and API key authentication.
func (s *HTTPServer) protect(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		if s.apiKey != "" && r.Header.Get("X-Api-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		h(w, r)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
