// Package metrics provides Prometheus metrics for the lets ranking service.
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
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Beatmap ranking
	sweepsTotal        *prometheus.CounterVec
	statusTransitions  *prometheus.CounterVec
	criteriaHits       *prometheus.CounterVec
	leaderboardWipes   prometheus.Counter
	metadataFailures   *prometheus.CounterVec
	notificationErrors prometheus.Counter
	sweepDuration      prometheus.Histogram

	// Leaderboards
	leaderboardUpserts *prometheus.CounterVec
	leaderboardSkipped prometheus.Counter
	rankQueries        *prometheus.CounterVec
	storeLatency       *prometheus.HistogramVec
	storeMembers       *prometheus.GaugeVec

	// Score ingestion
	scoresAccepted   prometheus.Counter
	scoresDuplicate  prometheus.Counter
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueRejected    *prometheus.CounterVec
	workerCount      prometheus.Gauge
	workerErrors     *prometheus.CounterVec
	workerLatency    prometheus.Histogram
	usersCacheLookup *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "lets",
		subsystem:        "ranking",
		histogramBuckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.sweepsTotal = auto.NewCounterVec(m.counterOpts("sweeps_total",
		"Beatmap sweeps by outcome (skipped reason, aborted, unchanged, transitioned)"),
		[]string{"outcome"})
	m.statusTransitions = auto.NewCounterVec(m.counterOpts("status_transitions_total",
		"Ranked status transitions performed by autorank"),
		[]string{"from", "to"})
	m.criteriaHits = auto.NewCounterVec(m.counterOpts("criteria_hits_total",
		"Criteria rules that matched a beatmap"),
		[]string{"criteria_id"})
	m.leaderboardWipes = auto.NewCounter(m.counterOpts("leaderboard_wipes_total",
		"Beatmap leaderboards cleared after a status change"))
	m.metadataFailures = auto.NewCounterVec(m.counterOpts("metadata_failures_total",
		"Upstream metadata lookups that produced no usable date"),
		[]string{"reason"})
	m.notificationErrors = auto.NewCounter(m.counterOpts("notification_errors_total",
		"Notification deliveries that failed"))
	m.sweepDuration = auto.NewHistogram(m.histogramOpts("sweep_duration_milliseconds",
		"End-to-end beatmap sweep duration in milliseconds"))

	m.leaderboardUpserts = auto.NewCounterVec(m.counterOpts("leaderboard_upserts_total",
		"Sorted set upserts by scope (global or country)"),
		[]string{"scope"})
	m.leaderboardSkipped = auto.NewCounter(m.counterOpts("leaderboard_skipped_total",
		"Leaderboard updates skipped because the user is not eligible"))
	m.rankQueries = auto.NewCounterVec(m.counterOpts("rank_queries_total",
		"Rank info queries by result (ranked, unranked, top)"),
		[]string{"result"})
	m.storeLatency = auto.NewHistogramVec(m.histogramOpts("store_latency_milliseconds",
		"Leaderboard store operation latency in milliseconds"),
		[]string{"backend", "op"})
	m.storeMembers = auto.NewGaugeVec(m.gaugeOpts("store_members",
		"Members across every sorted set held by a leaderboard backend"),
		[]string{"backend"})

	m.scoresAccepted = auto.NewCounter(m.counterOpts("scores_accepted_total",
		"Score submissions accepted for processing"))
	m.scoresDuplicate = auto.NewCounter(m.counterOpts("scores_duplicate_total",
		"Score submissions dropped as duplicates"))
	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size",
		"Current number of queued score submissions"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity",
		"Capacity of the score submission queue"))
	m.queueRejected = auto.NewCounterVec(m.counterOpts("queue_rejected_total",
		"Score submissions rejected by the queue"),
		[]string{"reason"})
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count",
		"Number of score workers"))
	m.workerErrors = auto.NewCounterVec(m.counterOpts("worker_errors_total",
		"Score worker failures"),
		[]string{"stage"})
	m.workerLatency = auto.NewHistogram(m.histogramOpts("worker_processing_milliseconds",
		"Time spent by a worker on one score submission"))
	m.usersCacheLookup = auto.NewCounterVec(m.counterOpts("users_cache_lookups_total",
		"User directory cache lookups"),
		[]string{"kind", "result"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"})
	m.httpErrors = auto.NewCounterVec(m.counterOpts("http_errors_total",
		"HTTP error responses by endpoint and error type"),
		[]string{"endpoint", "error_type"})
}

// Beatmap ranking.

// RecordSweep counts a finished sweep with its outcome.
func RecordSweep(outcome string, durationMs float64) {
	globalManager.sweepsTotal.WithLabelValues(outcome).Inc()
	globalManager.sweepDuration.Observe(durationMs)
}

// RecordStatusTransition counts an autorank status change.
func RecordStatusTransition(from, to string) {
	globalManager.statusTransitions.WithLabelValues(from, to).Inc()
}

// RecordCriteriaHit counts a matched criteria rule.
func RecordCriteriaHit(criteriaID string) {
	globalManager.criteriaHits.WithLabelValues(criteriaID).Inc()
}

// RecordLeaderboardWipe counts a cleared beatmap leaderboard.
func RecordLeaderboardWipe() {
	globalManager.leaderboardWipes.Inc()
}

// RecordMetadataFailure counts a failed upstream metadata lookup.
func RecordMetadataFailure(reason string) {
	globalManager.metadataFailures.WithLabelValues(reason).Inc()
}

// RecordNotificationError counts a failed notification delivery.
func RecordNotificationError() {
	globalManager.notificationErrors.Inc()
}

// Leaderboards.

// RecordLeaderboardUpsert counts a sorted set upsert for scope (global|country).
func RecordLeaderboardUpsert(scope string) {
	globalManager.leaderboardUpserts.WithLabelValues(scope).Inc()
}

// RecordLeaderboardSkipped counts an update dropped for an ineligible user.
func RecordLeaderboardSkipped() {
	globalManager.leaderboardSkipped.Inc()
}

// RecordRankQuery counts a rank info query by result.
func RecordRankQuery(result string) {
	globalManager.rankQueries.WithLabelValues(result).Inc()
}

// RecordStoreLatency observes a leaderboard store operation.
func RecordStoreLatency(backend, op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// UpdateStoreMembers sets the member total held by backend.
func UpdateStoreMembers(backend string, n int) {
	globalManager.storeMembers.WithLabelValues(backend).Set(float64(n))
}

// Score ingestion.

// RecordScoreAccepted counts an accepted score submission.
func RecordScoreAccepted() {
	globalManager.scoresAccepted.Inc()
}

// RecordScoreDuplicate counts a duplicate score submission.
func RecordScoreDuplicate() {
	globalManager.scoresDuplicate.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueRejected counts a rejected enqueue.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerError counts a worker failure at stage.
func RecordWorkerError(stage string) {
	globalManager.workerErrors.WithLabelValues(stage).Inc()
}

// RecordWorkerLatency observes the processing time of one submission.
func RecordWorkerLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordUsersCacheLookup counts a user cache hit or miss for kind.
func RecordUsersCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	globalManager.usersCacheLookup.WithLabelValues(kind, result).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordHTTPError records an error response.
func RecordHTTPError(endpoint, errorType string) {
	globalManager.httpErrors.WithLabelValues(endpoint, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
