package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors for the service. A dedicated
// registry is used so tests can instantiate metrics without double-register
// panics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Outbox / Kafka
	outboxPending  prometheus.Gauge
	outboxPublish  *prometheus.CounterVec
	outboxRetries  *prometheus.CounterVec
	publishLatency *prometheus.HistogramVec

	// Business
	claimsTotal        *prometheus.CounterVec
	releasesTotal      prometheus.Counter
	stagesCompleted    *prometheus.CounterVec
	workflowsCreated   *prometheus.CounterVec
	wavesCreated       prometheus.Counter
	itemsPicked        prometheus.Counter
	queueDepth         *prometheus.GaugeVec
	lockTakeoversTotal prometheus.Counter

	// Circuit breaker
	circuitBreakerState *prometheus.GaugeVec
	circuitBreakerTrips *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with all collectors registered on a
// fresh registry.
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "wms",
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   "wms",
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request duration in seconds",
				ConstLabels: prometheus.Labels{"service": serviceName},
				Buckets:     []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   "wms",
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being served",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),

		outboxPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   "wms",
				Name:        "outbox_pending_events",
				Help:        "Number of unpublished events in the outbox",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),
		outboxPublish: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "wms",
				Name:        "outbox_publish_total",
				Help:        "Total outbox publish attempts by outcome",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"event_type", "outcome"},
		),
		outboxRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "wms",
				Name:        "outbox_retries_total",
				Help:        "Total outbox publish retries",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"event_type"},
		),
		publishLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   "wms",
				Name:        "kafka_publish_duration_seconds",
				Help:        "Kafka publish duration in seconds",
				ConstLabels: prometheus.Labels{"service": serviceName},
				Buckets:     []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"topic"},
		),

		claimsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "wms",
				Name:        "pickpack_claims_total",
				Help:        "Claim attempts by role and outcome",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"role", "outcome"},
		),
		releasesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "wms",
				Name:        "pickpack_releases_total",
				Help:        "Total lock releases",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),
		stagesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "wms",
				Name:        "pickpack_stages_completed_total",
				Help:        "Completed workflow stages by stage",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"stage"},
		),
		workflowsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "wms",
				Name:        "pickpack_workflows_created_total",
				Help:        "Workflows created by priority",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"priority"},
		),
		wavesCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "wms",
				Name:        "pickpack_waves_created_total",
				Help:        "Total pick waves created",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),
		itemsPicked: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "wms",
				Name:        "pickpack_items_picked_total",
				Help:        "Total items picked",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   "wms",
				Name:        "pickpack_queue_depth",
				Help:        "Workflows per queue bucket at last projection",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"bucket"},
		),
		lockTakeoversTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "wms",
				Name:        "pickpack_lock_takeovers_total",
				Help:        "Claims that took over an expired lock",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
		),

		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   "wms",
				Name:        "circuit_breaker_state",
				Help:        "Circuit breaker state (0=closed, 1=half-open, 2=open)",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"name"},
		),
		circuitBreakerTrips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "wms",
				Name:        "circuit_breaker_trips_total",
				Help:        "Total circuit breaker trips",
				ConstLabels: prometheus.Labels{"service": serviceName},
			},
			[]string{"name"},
		),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestsInFlight,
		m.outboxPending,
		m.outboxPublish,
		m.outboxRetries,
		m.publishLatency,
		m.claimsTotal,
		m.releasesTotal,
		m.stagesCompleted,
		m.workflowsCreated,
		m.wavesCreated,
		m.itemsPicked,
		m.queueDepth,
		m.lockTakeoversTotal,
		m.circuitBreakerState,
		m.circuitBreakerTrips,
	)

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Handler returns the HTTP handler serving this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records a completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the in-flight gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// SetOutboxPending sets the pending outbox events gauge
func (m *Metrics) SetOutboxPending(count int) {
	m.outboxPending.Set(float64(count))
}

// RecordOutboxPublish records an outbox publish attempt
func (m *Metrics) RecordOutboxPublish(eventType string, success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.outboxPublish.WithLabelValues(eventType, outcome).Inc()
}

// RecordOutboxRetry records an outbox publish retry
func (m *Metrics) RecordOutboxRetry(eventType string) {
	m.outboxRetries.WithLabelValues(eventType).Inc()
}

// RecordKafkaPublish records a Kafka publish duration
func (m *Metrics) RecordKafkaPublish(topic string, duration time.Duration) {
	m.publishLatency.WithLabelValues(topic).Observe(duration.Seconds())
}

// RecordClaim records a claim attempt outcome
func (m *Metrics) RecordClaim(role string, outcome string) {
	m.claimsTotal.WithLabelValues(role, outcome).Inc()
}

// RecordRelease records a lock release
func (m *Metrics) RecordRelease() {
	m.releasesTotal.Inc()
}

// RecordStageCompleted records a completed pick or pack stage
func (m *Metrics) RecordStageCompleted(stage string) {
	m.stagesCompleted.WithLabelValues(stage).Inc()
}

// RecordWorkflowCreated records a new workflow by priority
func (m *Metrics) RecordWorkflowCreated(priority string) {
	m.workflowsCreated.WithLabelValues(priority).Inc()
}

// RecordWaveCreated records a new pick wave
func (m *Metrics) RecordWaveCreated() {
	m.wavesCreated.Inc()
}

// RecordItemsPicked records picked item count
func (m *Metrics) RecordItemsPicked(count int) {
	m.itemsPicked.Add(float64(count))
}

// SetQueueDepth sets the queue depth gauge for a bucket
func (m *Metrics) SetQueueDepth(bucket string, depth int) {
	m.queueDepth.WithLabelValues(bucket).Set(float64(depth))
}

// RecordLockTakeover records a claim that displaced an expired lock
func (m *Metrics) RecordLockTakeover() {
	m.lockTakeoversTotal.Inc()
}

// SetCircuitBreakerState sets the breaker state gauge
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	m.circuitBreakerTrips.WithLabelValues(name).Inc()
}
