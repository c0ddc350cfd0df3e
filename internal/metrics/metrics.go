package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zapisnik",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "zapisnik",
			Name:      "bookings_created_total",
			Help:      "Bookings successfully created.",
		},
	)

	bookingsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "zapisnik",
			Name:      "bookings_cancelled_total",
			Help:      "Bookings moved to cancelled, including bulk cancellations.",
		},
	)

	bookingsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "zapisnik",
			Name:      "bookings_completed_total",
			Help:      "Bookings moved to completed, including sweeps.",
		},
	)

	bookingRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zapisnik",
			Name:      "booking_rejections_total",
			Help:      "Rejected booking operations by reason code.",
		},
		[]string{"reason"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingsCreated, bookingsCancelled, bookingsCompleted, bookingRejections)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncCreated() { bookingsCreated.Inc() }

func AddCancelled(n float64) { bookingsCancelled.Add(n) }

func AddCompleted(n float64) { bookingsCompleted.Add(n) }

func IncRejected(reason string) { bookingRejections.WithLabelValues(reason).Inc() }
