package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loopfan",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loopfan",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	chainEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loopfan",
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Chain events seen by the ingestion service.",
		},
		[]string{"stream", "result"},
	)

	chainWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loopfan",
			Subsystem: "chain",
			Name:      "writes_total",
			Help:      "Transactions submitted by the gateway.",
		},
		[]string{"method", "result"},
	)

	chainWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loopfan",
			Subsystem: "chain",
			Name:      "write_duration_seconds",
			Help:      "Time from submission to confirmation.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4m
		},
		[]string{"method"},
	)

	outboxDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loopfan",
			Subsystem: "outbox",
			Name:      "dispatches_total",
			Help:      "Outbox entries dispatched, by result.",
		},
		[]string{"kind", "result"},
	)

	membershipsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "loopfan",
			Subsystem: "memberships",
			Name:      "expired_total",
			Help:      "Memberships deactivated by the expiry job.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		chainEvents,
		chainWrites,
		chainWriteDuration,
		outboxDispatches,
		membershipsExpired,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
}

// Handler exposes the registry for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordChainEvent(stream, result string) {
	chainEvents.WithLabelValues(stream, result).Inc()
}

func RecordChainWrite(method string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	chainWrites.WithLabelValues(method, result).Inc()
	chainWriteDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func RecordOutboxDispatch(kind, result string) {
	outboxDispatches.WithLabelValues(kind, result).Inc()
}

func RecordMembershipsExpired(n int64) {
	if n > 0 {
		membershipsExpired.Add(float64(n))
	}
}
