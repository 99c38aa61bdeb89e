// Package metrics provides Prometheus metrics for the LUT curation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Analysis
	analysisItems      *prometheus.CounterVec
	extractionLatency  *prometheus.HistogramVec
	analysisTasks      *prometheus.CounterVec
	analysisActiveTask prometheus.Gauge

	// Similarity and clustering
	distanceMatrixLatency *prometheus.HistogramVec
	clusteringRuns        *prometheus.CounterVec
	clusteringLatency     *prometheus.HistogramVec
	clusteredItems        prometheus.Gauge
	renderCache           *prometheus.CounterVec

	// Curation
	distilled prometheus.Counter
	snapshots prometheus.Counter

	// Job queue
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueRejected prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Names and latency buckets of the global manager. Latencies are in
// milliseconds; a full-catalog distance matrix can take tens of seconds.
const (
	Namespace = "lutcurate"
	Subsystem = "engine"
)

var latencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000} //nolint:gochecknoglobals // shared bucket layout

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(
		WithNamespace(Namespace),
		WithSubsystem(Subsystem),
		WithHistogramBuckets(latencyBuckets),
		WithPrometheusRegistry(customRegistry),
	)
}

// NewManager creates a metrics manager. Without options it registers on
// the default Prometheus registerer under an unprefixed name.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		histogramBuckets: latencyBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   m.histogramBuckets,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) initializeMetrics() {
	m.analysisItems = m.counterVec("analysis_items_total",
		"Catalog items visited by the batch analysis runner, by result", "result")
	m.extractionLatency = m.histogramVec("feature_extraction_latency_milliseconds",
		"Feature extraction latency in milliseconds, by metric", "metric")
	m.analysisTasks = m.counterVec("analysis_tasks_total",
		"Analysis tasks reaching a terminal state, by status", "status")
	m.analysisActiveTask = m.gauge("analysis_task_active",
		"1 while an analysis task is running")

	m.distanceMatrixLatency = m.histogramVec("distance_matrix_latency_milliseconds",
		"Pairwise distance matrix construction latency, by metric", "metric")
	m.clusteringRuns = m.counterVec("clustering_runs_total",
		"Clustering runs, by metric, algorithm and outcome", "metric", "algorithm", "outcome")
	m.clusteringLatency = m.histogramVec("clustering_latency_milliseconds",
		"End-to-end clustering run latency, by metric and algorithm", "metric", "algorithm")
	m.clusteredItems = m.gauge("clustered_items",
		"Items assigned by the latest clustering run")
	m.renderCache = m.counterVec("render_cache_total",
		"Rendered reference image lookups, by outcome (hit, miss)", "outcome")

	m.distilled = m.counter("distilled_total", "Cluster members distilled")
	m.snapshots = m.counter("snapshots_total", "Cluster snapshots created")

	m.queueSize = m.gauge("job_queue_size", "Jobs currently holding a queue slot")
	m.queueCapacity = m.gauge("job_queue_capacity", "Maximum number of in-flight jobs")
	m.queueRejected = m.counter("job_queue_rejected_total", "Jobs rejected because every slot was taken")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_total",
		"Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Allocated heap bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.gauge("system_gc_pause_milliseconds", "Average GC pause in milliseconds")
}

// RecordAnalysisItem counts one catalog item visited by the runner.
// result is one of "success", "failed", "skipped".
func RecordAnalysisItem(result string) {
	globalManager.analysisItems.WithLabelValues(result).Inc()
}

// RecordExtractionLatency records feature extraction latency.
func RecordExtractionLatency(metric string, latencyMs float64) {
	globalManager.extractionLatency.WithLabelValues(metric).Observe(latencyMs)
}

// RecordAnalysisTask counts a task reaching status.
func RecordAnalysisTask(status string) {
	globalManager.analysisTasks.WithLabelValues(status).Inc()
}

// SetAnalysisActive flags whether an analysis task is running.
func SetAnalysisActive(active bool) {
	v := 0.0
	if active {
		v = 1
	}
	globalManager.analysisActiveTask.Set(v)
}

// RecordDistanceMatrixLatency records matrix construction latency.
func RecordDistanceMatrixLatency(metric string, latencyMs float64) {
	globalManager.distanceMatrixLatency.WithLabelValues(metric).Observe(latencyMs)
}

// RecordClusteringRun counts a clustering run and its latency.
func RecordClusteringRun(metric, algorithm, outcome string, latencyMs float64) {
	globalManager.clusteringRuns.WithLabelValues(metric, algorithm, outcome).Inc()
	globalManager.clusteringLatency.WithLabelValues(metric, algorithm).Observe(latencyMs)
}

// UpdateClusteredItems sets the size of the latest assignment set.
func UpdateClusteredItems(count int) {
	globalManager.clusteredItems.Set(float64(count))
}

// RecordRenderCache counts a render cache hit or miss.
func RecordRenderCache(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	globalManager.renderCache.WithLabelValues(outcome).Inc()
}

// RecordDistilled counts a distillation.
func RecordDistilled() { globalManager.distilled.Inc() }

// RecordSnapshot counts a created snapshot.
func RecordSnapshot() { globalManager.snapshots.Inc() }

// UpdateQueueSize sets the number of occupied job slots.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the job slot capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueRejected counts a job refused for lack of a slot.
func RecordQueueRejected() { globalManager.queueRejected.Inc() }

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime sets the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Set(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
