package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "site"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Count of requests rejected by the rate limiter.",
		},
		[]string{"route"},
	)

	availabilityDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "availability_duration_seconds",
			Help:      "Time to compute availability, including the free/busy query.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"outcome"},
	)

	slotsOffered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slots_offered",
			Help:      "Number of free slots in the most recent availability response.",
		},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Count of booking attempts by outcome.",
		},
		[]string{"outcome"},
	)

	doubleBookings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "double_bookings_detected_total",
			Help:      "Count of bookings that landed on an already occupied slot.",
		},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Count of outgoing notifications by channel and status.",
		},
		[]string{"channel", "kind", "status"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			rateLimited,
			availabilityDuration,
			slotsOffered,
			bookings,
			doubleBookings,
			notifications,
		)
	})
}

func IncHTTP(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func IncRateLimited(route string) {
	rateLimited.WithLabelValues(route).Inc()
}

func ObserveAvailability(outcome string, d time.Duration) {
	availabilityDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func SetSlotsOffered(n int) {
	slotsOffered.Set(float64(n))
}

func IncBooking(outcome string) {
	bookings.WithLabelValues(outcome).Inc()
}

func IncDoubleBooking() {
	doubleBookings.Inc()
}

func IncNotification(channel, kind, status string) {
	notifications.WithLabelValues(channel, kind, status).Inc()
}
