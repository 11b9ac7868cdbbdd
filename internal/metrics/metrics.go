// Package metrics exports Prometheus counters and histograms for query
// exchanges, HTTP requests and server registrations.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/woozymasta/sampquery/pkg/samp"
)

const namespace = "sampquery"

// Registration outcomes.
const (
	RegistrationQueued  = "queued"
	RegistrationSkipped = "skipped"
	RegistrationDropped = "dropped"
	RegistrationInvalid = "invalid"
)

var (
	registerOnce sync.Once

	exchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "exchanges_total",
			Help:      "Query exchanges by opcode and result kind.",
		},
		[]string{"op", "result"},
	)
	exchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "exchange_duration_seconds",
			Help:      "Time from sending a query request to its reply or failure.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"op", "result"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "registrations_total",
			Help:      "Server registrations by outcome.",
		},
		[]string{"result"},
	)
)

// Register adds the collectors to the default registry. It is safe to call repeatedly.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(exchanges, exchangeDuration, httpRequests, httpDuration, registrations)
	})
}

// ObserveExchange records one query exchange. Its signature matches samp.Options.Observe.
func ObserveExchange(op samp.Opcode, rtt time.Duration, err error) {
	Register()
	result := samp.Kind(err)
	exchanges.WithLabelValues(op.String(), result).Inc()
	exchangeDuration.WithLabelValues(op.String(), result).Observe(rtt.Seconds())
}

// RecordHTTPRequest records a served HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	Register()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordRegistration counts a registration outcome, one of the Registration* constants.
func RecordRegistration(result string) {
	Register()
	registrations.WithLabelValues(result).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}
