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
			Namespace: "hfpag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hfpag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	slcCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hfpag",
			Subsystem: "slc",
			Name:      "dispatch_total",
			Help:      "Procedure dispatches by marker and direction.",
		},
		[]string{"marker", "direction"},
	)
	slcErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hfpag",
			Subsystem: "slc",
			Name:      "errors_total",
			Help:      "Service level connection errors by kind.",
		},
		[]string{"kind"},
	)
	slcResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hfpag",
			Subsystem: "slc",
			Name:      "resets_total",
			Help:      "Fatal resets during SLC initialization.",
		},
	)
	callManagerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hfpag",
			Subsystem: "call_manager",
			Name:      "events_total",
			Help:      "Call manager bridge events.",
		},
		[]string{"event"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, slcCommands, slcErrors, slcResets, callManagerEvents)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordSlcDispatch counts one procedure dispatch. direction is "hf" or "ag".
func RecordSlcDispatch(marker, direction string) {
	RegisterMetrics()
	slcCommands.WithLabelValues(marker, direction).Inc()
}

func RecordSlcError(kind string) {
	RegisterMetrics()
	slcErrors.WithLabelValues(kind).Inc()
}

func RecordSlcReset() {
	RegisterMetrics()
	slcResets.Inc()
}

func RecordCallManagerEvent(event string) {
	RegisterMetrics()
	callManagerEvents.WithLabelValues(event).Inc()
}
