package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spacebook",
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	reservationCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spacebook",
			Name:      "reservation_created_total",
			Help:      "Count of reservation create attempts by result.",
		},
		[]string{"result"},
	)

	reservationStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spacebook",
			Name:      "reservation_status_changed_total",
			Help:      "Count of reservation status changes by new status.",
		},
		[]string{"status"},
	)

	availabilityFetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spacebook",
			Name:      "availability_fetch_failures_total",
			Help:      "Count of per-resource availability fetches that degraded to empty.",
		},
		[]string{"resource"},
	)

	staleResponses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "spacebook",
			Name:      "availability_stale_responses_total",
			Help:      "Count of availability responses discarded because a newer fetch started.",
		},
	)

	selectorSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spacebook",
			Name:      "selector_submissions_total",
			Help:      "Count of booking submissions from the slot selector by result.",
		},
		[]string{"result"},
	)

	occupancyPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spacebook",
			Name:      "occupancy_percent",
			Help:      "Occupancy percentage of the most recently aggregated day.",
		},
	)

	resolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "spacebook",
			Name:      "resolve_duration_seconds",
			Help:      "Time spent resolving availability for one resource and day.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			reservationCreated,
			reservationStatus,
			availabilityFetchFailures,
			staleResponses,
			selectorSubmissions,
			occupancyPercent,
			resolveDuration,
		)
	})
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncReservationCreated(result string) {
	reservationCreated.WithLabelValues(result).Inc()
}

func IncReservationStatus(status string) {
	reservationStatus.WithLabelValues(status).Inc()
}

func IncAvailabilityFetchFailure(resource string) {
	availabilityFetchFailures.WithLabelValues(resource).Inc()
}

func IncStaleResponse() {
	staleResponses.Inc()
}

func IncSelectorSubmission(result string) {
	selectorSubmissions.WithLabelValues(result).Inc()
}

func SetOccupancyPercent(v float64) {
	occupancyPercent.Set(v)
}

func ObserveResolve(seconds float64) {
	resolveDuration.Observe(seconds)
}
