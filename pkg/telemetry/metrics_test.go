package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/polisai/polis-analytics/pkg/analytics"
	"github.com/polisai/polis-analytics/pkg/events"
)

func installManualReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		ResetMetricsForTest()
	})

	ResetMetricsForTest()
	return reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	metrics := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			metrics[m.Name] = m
		}
	}
	return metrics
}

func sum(t *testing.T, metrics map[string]metricdata.Metrics, name string) int64 {
	t.Helper()

	m, ok := metrics[name]
	if !ok {
		t.Fatalf("missing %s metric", name)
	}
	data, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type for %s", name)
	}
	var total int64
	for _, dp := range data.DataPoints {
		total += dp.Value
	}
	return total
}

func TestFlushRecorder(t *testing.T) {
	reader := installManualReader(t)
	ctx := context.Background()
	rec := FlushRecorder{Endpoint: "ingest:8094"}

	rec.FlushCompleted(ctx, analytics.FlushResult{
		Trigger:  analytics.TriggerSize,
		Count:    100,
		Status:   202,
		Duration: 150 * time.Millisecond,
	})
	rec.FlushCompleted(ctx, analytics.FlushResult{
		Trigger: analytics.TriggerInterval,
		Count:   3,
		Err:     errors.New("connection refused"),
	})
	rec.EventsDropped(2, analytics.DropQueueFull)

	metrics := collect(t, reader)

	if got := sum(t, metrics, "analytics.flush.total"); got != 2 {
		t.Fatalf("expected 2 flushes, got %d", got)
	}
	if got := sum(t, metrics, "analytics.events.sent_total"); got != 100 {
		t.Fatalf("expected 100 sent events, got %d", got)
	}
	if got := sum(t, metrics, "analytics.events.failed_total"); got != 3 {
		t.Fatalf("expected 3 failed events, got %d", got)
	}
	if got := sum(t, metrics, "analytics.events.dropped_total"); got != 2 {
		t.Fatalf("expected 2 dropped events, got %d", got)
	}

	sent := metrics["analytics.events.sent_total"].Data.(metricdata.Sum[int64])
	attrs := sent.DataPoints[0].Attributes
	if value, ok := attrs.Value(attribute.Key("analytics.trigger")); !ok || value.AsString() != "size" {
		t.Fatalf("expected analytics.trigger=size, got %v", value)
	}
	if value, ok := attrs.Value(attribute.Key("http.response.status_code")); !ok || value.AsInt64() != 202 {
		t.Fatalf("expected status 202, got %v", value)
	}
	if value, ok := attrs.Value(attribute.Key("server.address")); !ok || value.AsString() != "ingest:8094" {
		t.Fatalf("expected server.address attribute, got %v", value)
	}

	hist, ok := metrics["analytics.flush.duration_ms"]
	if !ok {
		t.Fatalf("missing analytics.flush.duration_ms metric")
	}
	histData := hist.Data.(metricdata.Histogram[float64])
	if len(histData.DataPoints) != 1 {
		t.Fatalf("expected 1 histogram datapoint, got %d", len(histData.DataPoints))
	}
	if histData.DataPoints[0].Sum != 150 {
		t.Fatalf("expected histogram sum 150, got %v", histData.DataPoints[0].Sum)
	}
}

func TestFlushRecorderObservesClient(t *testing.T) {
	reader := installManualReader(t)

	sender := analytics.SenderFunc(func(context.Context, []events.Envelope) (int, error) {
		return 202, nil
	})
	c := analytics.New("http://ingest.invalid",
		analytics.WithSender(sender),
		analytics.WithObserver(FlushRecorder{}),
		analytics.WithBatchSize(4),
		analytics.WithFlushInterval(time.Hour),
	)
	for i := 0; i < 10; i++ {
		c.Track(events.TaskCompleted{DurationMS: int64(i)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	metrics := collect(t, reader)
	if got := sum(t, metrics, "analytics.events.sent_total"); got != 10 {
		t.Fatalf("expected 10 sent events, got %d", got)
	}
	if got := sum(t, metrics, "analytics.flush.total"); got != 3 {
		t.Fatalf("expected 3 flushes (4+4+2), got %d", got)
	}
}

func TestFlushSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	sender := analytics.SenderFunc(func(context.Context, []events.Envelope) (int, error) {
		return 500, &analytics.StatusError{StatusCode: 500}
	})
	c := analytics.New("http://ingest.invalid",
		analytics.WithSender(sender),
		analytics.WithFlushInterval(time.Hour),
	)
	c.Track(events.TaskCompleted{DurationMS: 1})
	c.Track(events.TaskCompleted{DurationMS: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "analytics.flush" {
		t.Fatalf("unexpected span name %q", span.Name())
	}

	attrs := attribute.NewSet(span.Attributes()...)
	if value, ok := attrs.Value(attribute.Key("analytics.trigger")); !ok || value.AsString() != "shutdown" {
		t.Fatalf("expected trigger shutdown, got %v", value)
	}
	if value, ok := attrs.Value(attribute.Key("analytics.batch.size")); !ok || value.AsInt64() != 2 {
		t.Fatalf("expected batch size 2, got %v", value)
	}
	if value, ok := attrs.Value(attribute.Key("http.response.status_code")); !ok || value.AsInt64() != 500 {
		t.Fatalf("expected status 500, got %v", value)
	}
	if span.Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", span.Status().Code)
	}

	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown tracer provider: %v", err)
	}
}
