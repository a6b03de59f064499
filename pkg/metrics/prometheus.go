// Package metrics provides Prometheus metrics for the agenda resolution service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the agenda service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Core Business Metrics - resolution quality
	resolutionPasses   prometheus.Counter
	resolutionFailures prometheus.Counter
	resolutionLatency  prometheus.Histogram
	eventsCollapsed    prometheus.Counter
	canonicalEvents    prometheus.Gauge
	duplicateGroups    prometheus.Gauge

	// Color Metrics - assignment stability and collisions
	colorCacheHits     prometheus.Counter
	colorCacheMisses   prometheus.Counter
	colorCacheSize     prometheus.Gauge
	paletteAllocations prometheus.Counter
	colorCollisions    prometheus.Counter
	colorsRejected     prometheus.Counter

	// Timezone Metrics - conversion health
	tzConversions         prometheus.Counter
	tzConversionFallbacks prometheus.Counter
	tzGapCorrections      prometheus.Counter

	// Queue Metrics - feed batch intake
	queueCapacity      prometheus.Gauge
	queueSize          prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker Metrics - refresh processing
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Store Metrics - agenda store state
	storeRecords                 prometheus.Gauge
	storeSnapshotRebuildDuration prometheus.Histogram
	storeSnapshotLastUnix        prometheus.Gauge
	storeQueryLatency            prometheus.Histogram

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Enhanced Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "agenda",
		subsystem:        "resolver",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Core Business Metrics - resolution quality
	m.resolutionPasses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resolution_passes_total",
		Help:      "Total number of completed resolution passes",
	})

	m.resolutionFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resolution_failures_total",
		Help:      "Total number of failed resolution passes",
	})

	m.resolutionLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "resolution_latency_milliseconds",
		Help:      "Histogram of resolution pass latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.eventsCollapsed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_collapsed_total",
		Help:      "Total number of observations collapsed into canonical events",
	})

	m.canonicalEvents = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "canonical_events",
		Help:      "Canonical events produced by the most recent resolution pass",
	})

	m.duplicateGroups = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "duplicate_groups",
		Help:      "Groups with more than one surviving observation in the most recent pass",
	})

	// Color Metrics - assignment stability and collisions
	m.colorCacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "color_cache_hits_total",
		Help:      "Total number of color assignments served from the bounded cache",
	})

	m.colorCacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "color_cache_misses_total",
		Help:      "Total number of color lookups that missed the bounded cache",
	})

	m.colorCacheSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "color_cache_size",
		Help:      "Current number of entries in the color assignment cache",
	})

	m.paletteAllocations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "palette_allocations_total",
		Help:      "Total number of colors requested from the palette allocator",
	})

	m.colorCollisions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "color_collisions_total",
		Help:      "Total number of cached or carried colors rejected as already used in a pass",
	})

	m.colorsRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "colors_rejected_total",
		Help:      "Total number of externally supplied colors rejected by contrast validation",
	})

	// Timezone Metrics - conversion health
	m.tzConversions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tz_conversions_total",
		Help:      "Total number of viewer-zone conversions performed",
	})

	m.tzConversionFallbacks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tz_conversion_fallbacks_total",
		Help:      "Total number of conversions that degraded to the unconverted input",
	})

	m.tzGapCorrections = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tz_gap_corrections_total",
		Help:      "Total number of wall-clock times shifted out of a DST gap",
	})

	// Queue Metrics - feed batch intake
	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Maximum feed batch queue capacity",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current size of the feed batch queue (backlog indicator)",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_utilization_ratio",
		Help:      "Queue utilization ratio (current size / capacity)",
	})

	m.queueEnqueueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_total",
		Help:      "Total number of feed batches enqueued",
	})

	m.queueDequeueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_dequeue_total",
		Help:      "Total number of feed batches dequeued",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_errors_total",
		Help:      "Total number of enqueue errors",
	})

	// Worker Metrics - refresh processing
	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Current number of refresh workers",
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_processing_latency_milliseconds",
		Help:      "Refresh worker batch processing latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.workerErrorRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_errors_total",
		Help:      "Total number of refresh worker errors",
	})

	// Store Metrics - agenda store state
	m.storeRecords = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_records",
		Help:      "Total number of canonical events held by the agenda store",
	})

	m.storeSnapshotRebuildDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_snapshot_rebuild_duration_milliseconds",
		Help:      "Agenda store snapshot rebuild duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeSnapshotLastUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_snapshot_last_unix",
		Help:      "Unix timestamp of the last agenda store snapshot publish",
	})

	m.storeQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_query_latency_milliseconds",
		Help:      "Agenda store query latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// Enhanced Error Metrics
	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_endpoint_total",
			Help:      "Total number of errors by endpoint",
		},
		[]string{"endpoint", "method", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
}

// RecordResolutionPass increments the resolution pass counter.
func RecordResolutionPass() {
	globalManager.resolutionPasses.Inc()
}

// RecordResolutionFailure increments the resolution failure counter.
func RecordResolutionFailure() {
	globalManager.resolutionFailures.Inc()
}

// RecordResolutionLatency records resolution pass latency in milliseconds.
func RecordResolutionLatency(latencyMs float64) {
	globalManager.resolutionLatency.Observe(latencyMs)
}

// RecordEventsCollapsed adds to the collapsed observation counter.
func RecordEventsCollapsed(n int) {
	if n > 0 {
		globalManager.eventsCollapsed.Add(float64(n))
	}
}

// UpdateCanonicalEvents sets the canonical event count for the latest pass.
func UpdateCanonicalEvents(count int) {
	globalManager.canonicalEvents.Set(float64(count))
}

// UpdateDuplicateGroups sets the duplicate group count for the latest pass.
func UpdateDuplicateGroups(count int) {
	globalManager.duplicateGroups.Set(float64(count))
}

// RecordColorCacheHit increments the color cache hit counter.
func RecordColorCacheHit() {
	globalManager.colorCacheHits.Inc()
}

// RecordColorCacheMiss increments the color cache miss counter.
func RecordColorCacheMiss() {
	globalManager.colorCacheMisses.Inc()
}

// UpdateColorCacheSize sets the current color cache entry count.
func UpdateColorCacheSize(size int) {
	globalManager.colorCacheSize.Set(float64(size))
}

// RecordPaletteAllocations adds to the palette allocation counter.
func RecordPaletteAllocations(n int) {
	if n > 0 {
		globalManager.paletteAllocations.Add(float64(n))
	}
}

// RecordColorCollision increments the in-pass color collision counter.
func RecordColorCollision() {
	globalManager.colorCollisions.Inc()
}

// RecordColorRejected increments the contrast-rejection counter.
func RecordColorRejected() {
	globalManager.colorsRejected.Inc()
}

// RecordTZConversion increments the timezone conversion counter.
func RecordTZConversion() {
	globalManager.tzConversions.Inc()
}

// RecordTZConversionFallback increments the degraded-conversion counter.
func RecordTZConversionFallback() {
	globalManager.tzConversionFallbacks.Inc()
}

// RecordTZGapCorrection increments the DST gap correction counter.
func RecordTZGapCorrection() {
	globalManager.tzGapCorrections.Inc()
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker batch processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// UpdateStoreRecords sets the total number of stored canonical events.
func UpdateStoreRecords(count int) {
	globalManager.storeRecords.Set(float64(count))
}

// RecordStoreSnapshotRebuildDuration records a snapshot rebuild duration.
func RecordStoreSnapshotRebuildDuration(latencyMs float64) {
	globalManager.storeSnapshotRebuildDuration.Observe(latencyMs)
}

// UpdateStoreSnapshotLastUnix sets the timestamp of the last snapshot publish.
func UpdateStoreSnapshotLastUnix(unix float64) {
	globalManager.storeSnapshotLastUnix.Set(unix)
}

// RecordStoreQueryLatency records agenda store query latency.
func RecordStoreQueryLatency(latencyMs float64) {
	globalManager.storeQueryLatency.Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
