package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opencab",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"device", "method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "opencab",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"device", "method", "route", "status"},
	)
	contractCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opencab",
			Subsystem: "contract",
			Name:      "calls_total",
			Help:      "Contract calls served, by negotiated version and outcome.",
		},
		[]string{"contract", "method", "served", "outcome"},
	)
	contractDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "opencab",
			Subsystem: "contract",
			Name:      "call_duration_seconds",
			Help:      "Contract call duration in seconds, data source included.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"contract", "method"},
	)
	broadcastDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opencab",
			Subsystem: "broadcast",
			Name:      "deliveries_total",
			Help:      "Per-target broadcast deliveries.",
		},
		[]string{"action", "outcome"},
	)
)

// Call and delivery outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUnsupported = "unsupported"
	OutcomeUnavailable = "unavailable"
	OutcomePanic       = "panic"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, contractCalls, contractDuration, broadcastDeliveries)
	})
}

func RecordHTTPRequest(device, method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(device, method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(device, method, route, statusLabel).Observe(duration.Seconds())
}

// RecordContractCall counts one served call. served is empty when negotiation
// failed before a version was chosen.
func RecordContractCall(contract, method, served, outcome string, duration time.Duration) {
	RegisterMetrics()
	if served == "" {
		served = "none"
	}
	contractCalls.WithLabelValues(contract, method, served, outcome).Inc()
	contractDuration.WithLabelValues(contract, method).Observe(duration.Seconds())
}

func RecordDelivery(action, outcome string) {
	RegisterMetrics()
	broadcastDeliveries.WithLabelValues(action, outcome).Inc()
}
