// Package metrics holds the Prometheus collectors of the service. They are
// registered with the default registry at init and served on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Number of client token buckets held by the rate limiter",
		},
	)

	PanicsRecovered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_panics_recovered_total",
			Help: "Handler panics turned into 500 responses",
		},
		[]string{"path"},
	)

	AppointmentsBooked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "galepedia_appointments_booked_total",
			Help: "Appointments successfully booked",
		},
	)

	AppointmentsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galepedia_appointments_rejected_total",
			Help: "Appointment requests refused by the planning rules",
		},
		[]string{"reason"},
	)

	PreparationLinesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "galepedia_preparation_lines_recorded_total",
			Help: "Finalized preparation lines appended to patient history",
		},
		[]string{"status"},
	)

	RenewalAlerts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "galepedia_renewal_alerts",
			Help: "Patients near the end of treatment without an appointment, from the last sweep",
		},
		[]string{"severity"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(PanicsRecovered)
	prometheus.MustRegister(AppointmentsBooked)
	prometheus.MustRegister(AppointmentsRejected)
	prometheus.MustRegister(PreparationLinesRecorded)
	prometheus.MustRegister(RenewalAlerts)
}
