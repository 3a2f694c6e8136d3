// Package observability holds the logger construction and prometheus
// collectors shared by the engine and the HTTP host.
package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escrow",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Settlement operations by outcome.",
		},
		[]string{"op", "result"},
	)
	payoutUnits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escrow",
			Subsystem: "engine",
			Name:      "payout_units_total",
			Help:      "Currency units paid out of vaults by recipient role.",
		},
		[]string{"op", "role"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escrow",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "escrow",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RegisterMetrics registers the collectors with the default registry once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(operations, payoutUnits, httpRequests, httpDuration)
	})
}

// RecordOperation counts one settlement operation. result is "ok" or an error kind.
func RecordOperation(op, result string) {
	RegisterMetrics()
	operations.WithLabelValues(op, result).Inc()
}

// RecordPayout adds amount to the units paid to role by op.
func RecordPayout(op, role string, amount uint64) {
	RegisterMetrics()
	payoutUnits.WithLabelValues(op, role).Add(float64(amount))
}

// RecordHTTPRequest counts one served request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
