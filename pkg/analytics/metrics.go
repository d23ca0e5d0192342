package analytics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a Prometheus-backed Observer with its own registry.
type Metrics struct {
	flushesTotal  *prometheus.CounterVec
	flushDuration *prometheus.HistogramVec
	eventsSent    *prometheus.CounterVec
	eventsFailed  *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates the client metrics and registers them on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		flushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_flushes_total",
				Help: "Flush attempts by trigger and outcome",
			},
			[]string{"trigger", "outcome", "status_code"},
		),

		flushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analytics_flush_duration_seconds",
				Help:    "Time spent on a single batch delivery attempt",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"trigger"},
		),

		eventsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_events_sent_total",
				Help: "Events accepted by the ingestion service",
			},
			[]string{"trigger"},
		),

		eventsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_events_failed_total",
				Help: "Events discarded after a failed delivery attempt",
			},
			[]string{"trigger"},
		),

		eventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_events_dropped_total",
				Help: "Events discarded before reaching a batch",
			},
			[]string{"reason"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.flushesTotal,
		m.flushDuration,
		m.eventsSent,
		m.eventsFailed,
		m.eventsDropped,
	)

	return m
}

// FlushCompleted implements Observer.
func (m *Metrics) FlushCompleted(_ context.Context, result FlushResult) {
	trigger := string(result.Trigger)
	outcome := "success"
	if !result.OK() {
		outcome = "failure"
		m.eventsFailed.WithLabelValues(trigger).Add(float64(result.Count))
	} else {
		m.eventsSent.WithLabelValues(trigger).Add(float64(result.Count))
	}

	m.flushesTotal.WithLabelValues(trigger, outcome, strconv.Itoa(result.Status)).Inc()
	m.flushDuration.WithLabelValues(trigger).Observe(result.Duration.Seconds())
}

// EventsDropped implements Observer.
func (m *Metrics) EventsDropped(count int, reason DropReason) {
	m.eventsDropped.WithLabelValues(string(reason)).Add(float64(count))
}

// TrackQueueDepth exports depth() as the analytics_queue_depth gauge.
// Typically called with Client.Pending.
func (m *Metrics) TrackQueueDepth(depth func() int) error {
	return m.registry.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "analytics_queue_depth",
			Help: "Envelopes waiting for the dispatcher",
		},
		func() float64 { return float64(depth()) },
	))
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
