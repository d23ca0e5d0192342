package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/polisai/polis-analytics/pkg/analytics"
)

const meterName = "polis.analytics"

var (
	metricsOnce           sync.Once
	metricsInitErr        error
	flushCounter          metric.Int64Counter
	eventsSentCounter     metric.Int64Counter
	eventsFailedCounter   metric.Int64Counter
	eventsDroppedCounter  metric.Int64Counter
	flushLatencyHistogram metric.Float64Histogram
)

// FlushRecorder exports client flush outcomes as OpenTelemetry metrics
// through the global MeterProvider.
type FlushRecorder struct {
	// Endpoint is attached to every data point when set.
	Endpoint string
}

var _ analytics.Observer = FlushRecorder{}

// FlushCompleted implements analytics.Observer.
func (r FlushRecorder) FlushCompleted(ctx context.Context, result analytics.FlushResult) {
	if err := ensureMetrics(); err != nil {
		return
	}

	outcome := "success"
	if !result.OK() {
		outcome = "failure"
	}
	attrs := []attribute.KeyValue{
		attribute.String("analytics.trigger", string(result.Trigger)),
		attribute.String("analytics.outcome", outcome),
	}
	if result.Status != 0 {
		attrs = append(attrs, attribute.Int("http.response.status_code", result.Status))
	}
	if r.Endpoint != "" {
		attrs = append(attrs, attribute.String("server.address", r.Endpoint))
	}
	opt := metric.WithAttributes(attrs...)

	flushCounter.Add(ctx, 1, opt)
	if result.OK() {
		eventsSentCounter.Add(ctx, int64(result.Count), opt)
	} else {
		eventsFailedCounter.Add(ctx, int64(result.Count), opt)
	}

	if result.Duration > 0 {
		flushLatencyHistogram.Record(ctx, float64(result.Duration)/float64(time.Millisecond), opt)
	}
}

// EventsDropped implements analytics.Observer.
func (r FlushRecorder) EventsDropped(count int, reason analytics.DropReason) {
	if err := ensureMetrics(); err != nil {
		return
	}
	eventsDroppedCounter.Add(context.Background(), int64(count),
		metric.WithAttributes(attribute.String("analytics.drop_reason", string(reason))))
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(meterName)

		flushCounter, metricsInitErr = meter.Int64Counter(
			"analytics.flush.total",
			metric.WithDescription("Batch delivery attempts partitioned by trigger and outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		eventsSentCounter, metricsInitErr = meter.Int64Counter(
			"analytics.events.sent_total",
			metric.WithDescription("Events accepted by the ingestion service"),
			metric.WithUnit("{event}"),
		)
		if metricsInitErr != nil {
			return
		}

		eventsFailedCounter, metricsInitErr = meter.Int64Counter(
			"analytics.events.failed_total",
			metric.WithDescription("Events discarded after a failed delivery attempt"),
			metric.WithUnit("{event}"),
		)
		if metricsInitErr != nil {
			return
		}

		eventsDroppedCounter, metricsInitErr = meter.Int64Counter(
			"analytics.events.dropped_total",
			metric.WithDescription("Events discarded before reaching a batch"),
			metric.WithUnit("{event}"),
		)
		if metricsInitErr != nil {
			return
		}

		flushLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"analytics.flush.duration_ms",
			metric.WithDescription("Observed batch delivery latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}
