// Package metric exposes the pipeline's Prometheus metrics.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's metric instruments. It satisfies
// ingest.Observer so the stats tracker can mirror its counters here.
type Metrics struct {
	messagesReceived *prometheus.CounterVec
	messagesOK       prometheus.Counter
	messagesFailed   prometheus.Counter
	dataPointsSaved  prometheus.Counter
	natsConnected    prometheus.Gauge
	natsReconnects   prometheus.Counter
	sessionActive    prometheus.Gauge
	httpRequests     *prometheus.CounterVec
}

// Registry bundles the instruments with their Prometheus registry.
type Registry struct {
	registry *prometheus.Registry
	Metrics  *Metrics
}

// NewRegistry creates the registry with all pipeline instruments and the Go
// runtime collectors registered.
func NewRegistry() *Registry {
	m := &Metrics{
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "biostream_messages_received_total",
			Help: "Inbound telemetry messages by topic, counted before parsing",
		}, []string{"topic"}),
		messagesOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "biostream_messages_processed_total",
			Help: "Messages whose handler completed without error",
		}),
		messagesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "biostream_messages_failed_total",
			Help: "Messages whose handler returned an error",
		}),
		dataPointsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "biostream_data_points_saved_total",
			Help: "Telemetry rows written to the store",
		}),
		natsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "biostream_nats_connected",
			Help: "1 when the NATS connection is established",
		}),
		natsReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "biostream_nats_reconnects_total",
			Help: "NATS reconnect attempts observed",
		}),
		sessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "biostream_session_active",
			Help: "1 when a measurement session is active",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "biostream_http_requests_total",
			Help: "API requests by route and status code",
		}, []string{"route", "code"}),
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		m.messagesReceived,
		m.messagesOK,
		m.messagesFailed,
		m.dataPointsSaved,
		m.natsConnected,
		m.natsReconnects,
		m.sessionActive,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{registry: registry, Metrics: m}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the underlying registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// MessageReceived counts an inbound message on a topic.
func (m *Metrics) MessageReceived(topic string) {
	m.messagesReceived.WithLabelValues(topic).Inc()
}

// MessageProcessed counts a successfully handled message.
func (m *Metrics) MessageProcessed() {
	m.messagesOK.Inc()
}

// MessageFailed counts a failed message.
func (m *Metrics) MessageFailed() {
	m.messagesFailed.Inc()
}

// DataPointsSaved counts persisted telemetry rows.
func (m *Metrics) DataPointsSaved(n int64) {
	m.dataPointsSaved.Add(float64(n))
}

// RecordNATSStatus reflects the broker connection state.
func (m *Metrics) RecordNATSStatus(connected bool) {
	if connected {
		m.natsConnected.Set(1)
		return
	}
	m.natsConnected.Set(0)
}

// RecordNATSReconnect counts one reconnect attempt.
func (m *Metrics) RecordNATSReconnect() {
	m.natsReconnects.Inc()
}

// RecordSessionActive reflects whether a measurement session is open.
func (m *Metrics) RecordSessionActive(active bool) {
	if active {
		m.sessionActive.Set(1)
		return
	}
	m.sessionActive.Set(0)
}

// RecordHTTPRequest counts one API request.
func (m *Metrics) RecordHTTPRequest(route, code string) {
	m.httpRequests.WithLabelValues(route, code).Inc()
}
