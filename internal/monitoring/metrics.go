package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the push server
type Metrics struct {
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	SendErrors          *prometheus.CounterVec
	TokensDeactivated   prometheus.Counter
	DispatchDuration    *prometheus.HistogramVec
	RequestDuration     *prometheus.HistogramVec
	ActiveConnections   prometheus.Gauge
	BroadcastsQueued    prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	metrics := &Metrics{
		NotificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "push_notifications_sent_total",
				Help: "Total number of notifications accepted by the provider",
			},
			[]string{"type"},
		),
		NotificationsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "push_notifications_failed_total",
				Help: "Total number of notifications rejected per token",
			},
			[]string{"type"},
		),
		SendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "push_send_errors_total",
				Help: "Total number of provider transport failures",
			},
			[]string{"type"},
		),
		TokensDeactivated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "push_tokens_deactivated_total",
				Help: "Total number of device tokens deactivated as permanently invalid",
			},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "push_dispatch_duration_seconds",
				Help:    "Time taken to resolve, send and reconcile a dispatch",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "push_request_duration_seconds",
				Help:    "Time taken to serve API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ActiveConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "push_active_connections",
				Help: "Number of active connections to the service",
			},
		),
		BroadcastsQueued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "push_broadcasts_queued_total",
				Help: "Total number of broadcast jobs published to the queue",
			},
		),
	}

	// Register all metrics
	prometheus.MustRegister(
		metrics.NotificationsSent,
		metrics.NotificationsFailed,
		metrics.SendErrors,
		metrics.TokensDeactivated,
		metrics.DispatchDuration,
		metrics.RequestDuration,
		metrics.ActiveConnections,
		metrics.BroadcastsQueued,
	)

	return metrics
}

// RecordDispatch records the per-token outcome counts of one dispatch
func (m *Metrics) RecordDispatch(typ string, sent, failed int) {
	m.NotificationsSent.WithLabelValues(typ).Add(float64(sent))
	m.NotificationsFailed.WithLabelValues(typ).Add(float64(failed))
}

// RecordSendError records a provider transport failure
func (m *Metrics) RecordSendError(typ string) {
	m.SendErrors.WithLabelValues(typ).Inc()
}

// RecordTokensDeactivated records tokens flipped inactive after a send
func (m *Metrics) RecordTokensDeactivated(count int) {
	m.TokensDeactivated.Add(float64(count))
}

// ObserveDispatchDuration records end-to-end dispatch duration
func (m *Metrics) ObserveDispatchDuration(typ string, seconds float64) {
	m.DispatchDuration.WithLabelValues(typ).Observe(seconds)
}

// ObserveRequestDuration records API request duration
func (m *Metrics) ObserveRequestDuration(operation string, seconds float64) {
	m.RequestDuration.WithLabelValues(operation).Observe(seconds)
}

// IncrementActiveConnections increments active connections
func (m *Metrics) IncrementActiveConnections() {
	m.ActiveConnections.Inc()
}

// DecrementActiveConnections decrements active connections
func (m *Metrics) DecrementActiveConnections() {
	m.ActiveConnections.Dec()
}

// RecordBroadcastQueued records a broadcast job published to the queue
func (m *Metrics) RecordBroadcastQueued() {
	m.BroadcastsQueued.Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
