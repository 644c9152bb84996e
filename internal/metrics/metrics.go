// Package metrics exposes Prometheus collectors for the collaboration layer.
// All methods are safe on a nil *Metrics so components can run without them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taskhub"

type Metrics struct {
	registry *prometheus.Registry

	sessions             prometheus.Gauge
	projects             prometheus.Gauge
	messages             *prometheus.CounterVec
	malformed            prometheus.Counter
	handlerPanics        prometheus.Counter
	broadcasts           *prometheus.CounterVec
	deliveries           prometheus.Counter
	sendFailures         *prometheus.CounterVec
	livenessTerminations prometheus.Counter
	authFailures         prometheus.Counter
}

// New registers the collaboration collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "sessions",
			Help:      "Number of open WebSocket sessions",
		}),
		projects: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "projects",
			Help:      "Number of projects with at least one joined session",
		}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "messages_total",
			Help:      "Inbound messages handled, by type",
		}, []string{"type"}),
		malformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "malformed_messages_total",
			Help:      "Inbound frames that could not be decoded",
		}),
		handlerPanics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "handler_panics_total",
			Help:      "Inbound messages whose handler panicked",
		}),
		broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "broadcasts_total",
			Help:      "Broadcasts fanned out to a project, by origin",
		}, []string{"origin"}),
		deliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "deliveries_total",
			Help:      "Frames queued to individual sessions by broadcasts",
		}),
		sendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "send_failures_total",
			Help:      "Per-recipient send failures, by reason",
		}, []string{"reason"}),
		livenessTerminations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "liveness_terminations_total",
			Help:      "Sessions closed after missing two consecutive probes",
		}),
		authFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "auth_failures_total",
			Help:      "Rejected auth messages",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

func (m *Metrics) SetProjects(n int) {
	if m == nil {
		return
	}
	m.projects.Set(float64(n))
}

func (m *Metrics) Message(kind string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind).Inc()
}

func (m *Metrics) Malformed() {
	if m == nil {
		return
	}
	m.malformed.Inc()
}

func (m *Metrics) HandlerPanic() {
	if m == nil {
		return
	}
	m.handlerPanics.Inc()
}

// Broadcast records one fan-out and how many recipients it reached.
func (m *Metrics) Broadcast(origin string, delivered int) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(origin).Inc()
	m.deliveries.Add(float64(delivered))
}

func (m *Metrics) SendFailed(reason string) {
	if m == nil {
		return
	}
	m.sendFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) LivenessTermination() {
	if m == nil {
		return
	}
	m.livenessTerminations.Inc()
}

func (m *Metrics) AuthFailed() {
	if m == nil {
		return
	}
	m.authFailures.Inc()
}
