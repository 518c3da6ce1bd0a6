package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Custom histogram buckets covering sub-millisecond store hits up to
	// slow multi-second image sideloads.
	DurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 21, 34, 55}

	// Registry is the dedicated prometheus registry exposed on /api/metrics.
	Registry = prometheus.NewRegistry()

	// HTTP Metrics
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_server_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: DurationBuckets,
		},
		[]string{"http_request_method", "http_route", "http_response_status_code"},
	)

	HTTPRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_server_request_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"http_request_method", "http_route", "http_response_status_code"},
	)

	ActiveRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_server_active_requests",
			Help: "Number of active HTTP requests",
		},
		[]string{"http_request_method"},
	)

	// Webhook Metrics
	WebhookEventTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_event_total",
			Help: "Total number of webhook events by type and outcome",
		},
		[]string{"event", "status"},
	)

	WebhookEventDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_event_duration_seconds",
			Help:    "Webhook event handling duration in seconds",
			Buckets: DurationBuckets,
		},
		[]string{"event"},
	)

	// Content Store Metrics
	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Content store operation duration in seconds",
			Buckets: DurationBuckets,
		},
		[]string{"operation", "status"},
	)

	StoreOperationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operation_total",
			Help: "Total number of content store operations",
		},
		[]string{"operation", "status"},
	)

	// Hook Bus Metrics
	HookDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hook_dispatch_total",
			Help: "Total number of hook point dispatches",
		},
		[]string{"point", "kind"},
	)

	HookSubscriberFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hook_subscriber_failures_total",
			Help: "Total number of hook subscriber failures (swallowed, never fatal)",
		},
		[]string{"point"},
	)

	// Cache Metrics
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_name"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_name"},
	)

	// Media Storage Metrics
	MediaStorageRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_client_operation_duration_seconds",
			Help:    "Media storage client operation duration in seconds",
			Buckets: DurationBuckets,
		},
		[]string{"operation", "status"},
	)

	MediaStorageRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_client_operation_total",
			Help: "Total number of media storage client operations",
		},
		[]string{"operation", "status"},
	)
)

// Init registers all collectors plus runtime metrics on the registry.
// Must be called once at startup before the metrics endpoint is served.
func Init() {
	Registry.MustRegister(
		HTTPRequestDuration,
		HTTPRequestTotal,
		ActiveRequests,
		WebhookEventTotal,
		WebhookEventDuration,
		StoreOperationDuration,
		StoreOperationTotal,
		HookDispatchTotal,
		HookSubscriberFailures,
		CacheHits,
		CacheMisses,
		MediaStorageRequestDuration,
		MediaStorageRequestTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// MeasureDuration returns elapsed seconds since start, for histogram observation.
func MeasureDuration(start time.Time) float64 {
	return time.Since(start).Seconds()
}
