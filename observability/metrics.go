package observability

import (
	"chat-hub/domain/event"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_hub"

// Metrics groups the Prometheus collectors of the hub.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	connections    prometheus.Gauge
	usersOnline    prometheus.Gauge
	activeCalls    prometheus.Gauge
	inbound        *prometheus.CounterVec
	outbound       *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	handlerErrors  *prometheus.CounterVec
	messagesSent   prometheus.Counter
	callsFinished  *prometheus.CounterVec
	rateLimited    prometheus.Counter
	processCPU     prometheus.Gauge
	processMemory  prometheus.Gauge
	workerRestarts *prometheus.CounterVec
}

// NewMetrics registers every collector on a dedicated registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		gatherer: registry,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections_open",
			Help: "Number of open client connections.",
		}),
		usersOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "users_online",
			Help: "Number of users with a live authenticated connection.",
		}),
		activeCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "calls_active",
			Help: "Number of call sessions not yet in a terminal state.",
		}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_inbound_total",
			Help: "Inbound events received, by kind.",
		}, []string{"event"}),
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_outbound_total",
			Help: "Outbound events queued for delivery, by kind.",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_dropped_total",
			Help: "Outbound events dropped because the connection buffer was full or closed.",
		}, []string{"event"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "handler_errors_total",
			Help: "Inbound events that failed, by kind and error code.",
		}, []string{"event", "code"}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_sent_total",
			Help: "Messages persisted and broadcast.",
		}),
		callsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "calls_finished_total",
			Help: "Calls that reached a terminal state, by state.",
		}, []string{"state"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_rate_limited_total",
			Help: "Inbound events rejected by the per-connection rate limiter.",
		}),
		processCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "process_cpu_percent",
			Help: "CPU usage of the hub process sampled by the telemetry worker.",
		}),
		processMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "process_memory_percent",
			Help: "Memory usage of the hub process sampled by the telemetry worker.",
		}),
		workerRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "worker_restarts_total",
			Help: "Supervised workers restarted after a failure.",
		}, []string{"worker"}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections, m.usersOnline, m.activeCalls,
		m.inbound, m.outbound, m.dropped, m.handlerErrors,
		m.messagesSent, m.callsFinished, m.rateLimited,
		m.processCPU, m.processMemory, m.workerRestarts,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) SetUsersOnline(n int) {
	if m != nil {
		m.usersOnline.Set(float64(n))
	}
}

func (m *Metrics) SetActiveCalls(n int) {
	if m != nil {
		m.activeCalls.Set(float64(n))
	}
}

func (m *Metrics) InboundReceived(kind event.InboundKind) {
	if m != nil {
		m.inbound.WithLabelValues(kind.String()).Inc()
	}
}

func (m *Metrics) OutboundQueued(kind event.OutboundKind) {
	if m != nil {
		m.outbound.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) OutboundDropped(kind event.OutboundKind) {
	if m != nil {
		m.dropped.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) HandlerFailed(kind event.InboundKind, code string) {
	if m != nil {
		m.handlerErrors.WithLabelValues(kind.String(), code).Inc()
	}
}

func (m *Metrics) MessageSent() {
	if m != nil {
		m.messagesSent.Inc()
	}
}

func (m *Metrics) CallFinished(state string) {
	if m != nil {
		m.callsFinished.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) RateLimited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}

func (m *Metrics) SetProcessUsage(cpu float64, memory float32) {
	if m != nil {
		m.processCPU.Set(cpu)
		m.processMemory.Set(float64(memory))
	}
}

func (m *Metrics) WorkerRestarted(name string) {
	if m != nil {
		m.workerRestarts.WithLabelValues(name).Inc()
	}
}
