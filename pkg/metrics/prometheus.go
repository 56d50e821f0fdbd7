// Package metrics provides Prometheus metrics for the crowdfund scoring service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default histogram buckets, in milliseconds.
var (
	defaultLatencyBuckets = []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500} //nolint:gochecknoglobals // read-only defaults
	defaultStoreBuckets   = []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500}         //nolint:gochecknoglobals // read-only defaults
)

// Store operation result labels.
const (
	ResultOK          = "ok"
	ResultNotFound    = "not_found"
	ResultConflict    = "conflict"
	ResultUnavailable = "unavailable"
)

// Manager manages all Prometheus metrics for the crowdfund service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	storeBuckets   []float64
	enabled        bool
	constLabels    map[string]string
	metricPrefix   string
	registry       prometheus.Registerer

	// Core business metrics
	recordsInitialized  prometheus.Counter
	tierBackfills       prometheus.Counter
	scoreUpdates        *prometheus.CounterVec
	tierUpdates         prometheus.Counter
	allocationsComputed prometheus.Counter
	rejectedSelections  *prometheus.CounterVec
	trackedParticipants prometheus.Gauge

	// Record store metrics
	storeOperations *prometheus.CounterVec
	storeLatency    *prometheus.HistogramVec

	// HTTP performance metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRateLimited     *prometheus.CounterVec

	// Error metrics
	errorRateByType     *prometheus.CounterVec
	errorRateByEndpoint *prometheus.CounterVec
	errorLatency        *prometheus.HistogramVec

	// System performance metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "crowdfund",
		subsystem:      "milestones",
		latencyBuckets: defaultLatencyBuckets,
		storeBuckets:   defaultStoreBuckets,
		enabled:        true,
		constLabels:    make(map[string]string),
		registry:       prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.constLabels)

	m.recordsInitialized = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("records_initialized_total"),
		Help:        "Participant records created with default scores on first read",
		ConstLabels: constLabels,
	})

	m.tierBackfills = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("tier_backfills_total"),
		Help:        "Stored records missing a tier that were backfilled with the default tier",
		ConstLabels: constLabels,
	})

	m.scoreUpdates = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("score_updates_total"),
		Help:        "Milestone score writes by milestone index",
		ConstLabels: constLabels,
	}, []string{"milestone"})

	m.tierUpdates = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("tier_updates_total"),
		Help:        "Tier writes",
		ConstLabels: constLabels,
	})

	m.allocationsComputed = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("allocations_computed_total"),
		Help:        "Funding allocations computed",
		ConstLabels: constLabels,
	})

	m.rejectedSelections = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("rejected_selections_total"),
		Help:        "Score or tier writes rejected by catalog validation",
		ConstLabels: constLabels,
	}, []string{"kind"})

	m.trackedParticipants = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("tracked_participants"),
		Help:        "Participants with a known-good record cached in this process",
		ConstLabels: constLabels,
	})

	m.storeOperations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("store_operations_total"),
		Help:        "Record store calls by operation and result",
		ConstLabels: constLabels,
	}, []string{"driver", "op", "result"})

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("store_latency_milliseconds"),
		Help:        "Record store call latency in milliseconds",
		Buckets:     m.storeBuckets,
		ConstLabels: constLabels,
	}, []string{"driver", "op"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_requests_total"),
		Help:        "Total number of HTTP requests",
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.latencyBuckets,
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRateLimited = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_rate_limited_total"),
		Help:        "Requests rejected by the rate limiter",
		ConstLabels: constLabels,
	}, []string{"endpoint"})

	m.errorRateByType = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("errors_by_type_total"),
		Help:        "Total number of errors by type",
		ConstLabels: constLabels,
	}, []string{"error_type", "severity"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("errors_by_endpoint_total"),
		Help:        "Total number of errors by endpoint",
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "error_type"})

	m.errorLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("error_latency_milliseconds"),
		Help:        "Latency of operations that resulted in errors",
		Buckets:     m.latencyBuckets,
		ConstLabels: constLabels,
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_memory_usage_bytes"),
		Help:        "System memory usage in bytes",
		ConstLabels: constLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_goroutine_count"),
		Help:        "Number of goroutines",
		ConstLabels: constLabels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_gc_pause_time_milliseconds"),
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: constLabels,
	})
}

// Enabled reports whether recording is turned on for this manager.
func (m *Manager) Enabled() bool { return m.enabled }

// RecordRecordInitialized increments the lazily created records counter.
func RecordRecordInitialized() {
	if globalManager.enabled {
		globalManager.recordsInitialized.Inc()
	}
}

// RecordTierBackfill increments the tier backfill counter.
func RecordTierBackfill() {
	if globalManager.enabled {
		globalManager.tierBackfills.Inc()
	}
}

// RecordScoreUpdate counts a score write for a milestone.
func RecordScoreUpdate(milestone string) {
	if globalManager.enabled {
		globalManager.scoreUpdates.WithLabelValues(milestone).Inc()
	}
}

// RecordTierUpdate counts a tier write.
func RecordTierUpdate() {
	if globalManager.enabled {
		globalManager.tierUpdates.Inc()
	}
}

// RecordAllocation counts a computed funding allocation.
func RecordAllocation() {
	if globalManager.enabled {
		globalManager.allocationsComputed.Inc()
	}
}

// RecordRejectedSelection counts a write rejected by validation.
// kind is "score" or "tier".
func RecordRejectedSelection(kind string) {
	if globalManager.enabled {
		globalManager.rejectedSelections.WithLabelValues(kind).Inc()
	}
}

// UpdateTrackedParticipants sets the number of cached participant records.
func UpdateTrackedParticipants(count int) {
	if globalManager.enabled {
		globalManager.trackedParticipants.Set(float64(count))
	}
}

// RecordStoreOperation records a record store call and its latency.
func RecordStoreOperation(driver, op, result string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.storeOperations.WithLabelValues(driver, op, result).Inc()
	globalManager.storeLatency.WithLabelValues(driver, op).Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordRateLimited counts a request rejected by the rate limiter.
func RecordRateLimited(endpoint string) {
	if globalManager.enabled {
		globalManager.httpRateLimited.WithLabelValues(endpoint).Inc()
	}
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	if globalManager.enabled {
		globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
	}
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if globalManager.enabled {
		globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	if globalManager.enabled {
		globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
	}
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
