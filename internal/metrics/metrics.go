// Package metrics holds the Prometheus collectors of the chat core. A nil
// *Metrics is valid and records nothing, which keeps tests free of
// registries.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "circlechat"

type Metrics struct {
	sessions      prometheus.Gauge
	eventsIn      *prometheus.CounterVec
	eventsOut     *prometheus.CounterVec
	eventErrors   *prometheus.CounterVec
	droppedPushes prometheus.Counter
	stored        *prometheus.CounterVec
	graceExpired  prometheus.Counter
	httpDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions",
			Help:      "Users with a registered live session.",
		}),
		eventsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Realtime events received, by type.",
		}, []string{"type"}),
		eventsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_events_total",
			Help:      "Realtime events queued for delivery, by type.",
		}, []string{"type"}),
		eventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_errors_total",
			Help:      "Inbound events rejected, by error kind.",
		}, []string{"kind"}),
		droppedPushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_pushes_total",
			Help:      "Pushes dropped because the client queue was full or closed.",
		}),
		stored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_stored_total",
			Help:      "Messages persisted, by conversation kind.",
		}, []string{"kind"}),
		graceExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_expired_total",
			Help:      "Sessions torn down after the grace period.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "REST request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.sessions,
		m.eventsIn,
		m.eventsOut,
		m.eventErrors,
		m.droppedPushes,
		m.stored,
		m.graceExpired,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

func (m *Metrics) EventIn(eventType string) {
	if m == nil {
		return
	}
	m.eventsIn.WithLabelValues(eventType).Inc()
}

func (m *Metrics) EventOut(eventType string) {
	if m == nil {
		return
	}
	m.eventsOut.WithLabelValues(eventType).Inc()
}

func (m *Metrics) EventError(kind string) {
	if m == nil {
		return
	}
	m.eventErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) PushDropped() {
	if m == nil {
		return
	}
	m.droppedPushes.Inc()
}

func (m *Metrics) MessageStored(kind string) {
	if m == nil {
		return
	}
	m.stored.WithLabelValues(kind).Inc()
}

func (m *Metrics) SessionExpired() {
	if m == nil {
		return
	}
	m.graceExpired.Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
