package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/polis-analytics/internal/queue"
	"github.com/polisai/polis-analytics/pkg/events"
)

const tracerName = "github.com/polisai/polis-analytics/pkg/analytics"

type ticker interface {
	C() <-chan time.Time
	Reset(d time.Duration)
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func newTimeTicker(d time.Duration) ticker { return timeTicker{t: time.NewTicker(d)} }

func (t timeTicker) C() <-chan time.Time   { return t.t.C }
func (t timeTicker) Reset(d time.Duration) { t.t.Reset(d) }
func (t timeTicker) Stop()                 { t.t.Stop() }

// dispatcher is the single consumer of the ingest queue. The batch slice is
// owned by the run goroutine and touched by nothing else.
type dispatcher struct {
	queue           *queue.Queue[events.Envelope]
	sender          Sender
	batchSize       int
	interval        time.Duration
	shutdownTimeout time.Duration
	resetOnFlush    bool
	newTicker       func(time.Duration) ticker
	logger          *slog.Logger
	observer        Observer
	tracer          trace.Tracer

	flushReq chan chan struct{}
	abandon  <-chan struct{}
	batch    []events.Envelope
}

func (d *dispatcher) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	tick := d.newTicker(d.interval)
	defer tick.Stop()

	for {
		// Cancellation wins over any other ready case: queued envelopes go
		// to the detached final flush, never to a dead context.
		if ctx.Err() != nil {
			d.shutdown(ctx)
			return
		}

		select {
		case <-ctx.Done():
			// Handled at the top of the loop.

		case <-d.queue.Ready():
			d.accept(ctx, tick)
			if d.queue.IsClosed() {
				d.drain(ctx)
				if ctx.Err() == nil {
					return
				}
			}

		case <-tick.C():
			if len(d.batch) > 0 && ctx.Err() == nil {
				d.flush(ctx, TriggerInterval, len(d.batch), tick)
			}

		case ack := <-d.flushReq:
			d.accept(ctx, tick)
			if len(d.batch) > 0 && ctx.Err() == nil {
				d.flush(ctx, TriggerManual, len(d.batch), tick)
			}
			close(ack)
		}
	}
}

// shutdown runs after ctx is cancelled. A parent cancellation gets one
// detached drain bounded by shutdownTimeout; an abandoned Close gets none.
func (d *dispatcher) shutdown(ctx context.Context) {
	d.queue.Close()
	select {
	case <-d.abandon:
		return
	default:
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.shutdownTimeout)
	defer cancel()
	go func() {
		select {
		case <-d.abandon:
			cancel()
		case <-drainCtx.Done():
		}
	}()
	d.drain(drainCtx)
}

// accept moves pending envelopes into the batch, flushing full chunks while
// ctx is live. A partial remainder waits for the next trigger.
func (d *dispatcher) accept(ctx context.Context, tick ticker) {
	d.batch = append(d.batch, d.queue.PopAll()...)
	for len(d.batch) >= d.batchSize && ctx.Err() == nil {
		d.flush(ctx, TriggerSize, d.batchSize, tick)
	}
}

// drain flushes everything still queued. Full chunks count as size
// flushes; only the remainder is a shutdown flush. Whatever is left when
// ctx ends stays in the batch.
func (d *dispatcher) drain(ctx context.Context) {
	d.accept(ctx, nil)
	if len(d.batch) > 0 && ctx.Err() == nil {
		d.flush(ctx, TriggerShutdown, len(d.batch), nil)
	}
}

// flush makes one delivery attempt with the first n envelopes and drops them
// from the batch regardless of outcome.
func (d *dispatcher) flush(ctx context.Context, trigger Trigger, n int, tick ticker) {
	batch := d.batch[:n:n]
	d.batch = append(make([]events.Envelope, 0, d.batchSize), d.batch[n:]...)

	ctx, span := d.tracer.Start(ctx, "analytics.flush", trace.WithAttributes(
		attribute.String("analytics.trigger", string(trigger)),
		attribute.Int("analytics.batch.size", len(batch)),
	))

	start := time.Now()
	status, err := d.send(ctx, batch)
	result := FlushResult{
		Trigger:  trigger,
		Count:    len(batch),
		Status:   status,
		Duration: time.Since(start),
		Err:      err,
	}

	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
	}
	span.End()

	d.log(ctx, result)
	d.observer.FlushCompleted(ctx, result)

	if d.resetOnFlush && tick != nil {
		tick.Reset(d.interval)
	}
}

// send shields the loop from a panicking sender or event encoder.
func (d *dispatcher) send(ctx context.Context, batch []events.Envelope) (status int, err error) {
	defer func() {
		if r := recover(); r != nil {
			status, err = 0, fmt.Errorf("%w: panic: %v", ErrEncode, r)
		}
	}()
	return d.sender.Send(ctx, batch)
}

func (d *dispatcher) log(ctx context.Context, result FlushResult) {
	attrs := []slog.Attr{
		slog.Int("count", result.Count),
		slog.String("trigger", string(result.Trigger)),
		slog.Duration("duration", result.Duration),
	}
	if result.Status != 0 {
		attrs = append(attrs, slog.Int("status", result.Status))
	}

	if result.OK() {
		d.logger.LogAttrs(ctx, slog.LevelDebug, "Sent analytics events", attrs...)
		return
	}
	attrs = append(attrs, slog.String("error", result.Err.Error()))
	d.logger.LogAttrs(ctx, slog.LevelWarn, "Failed to send analytics events", attrs...)
}

func newDispatcher(q *queue.Queue[events.Envelope], sender Sender, abandon <-chan struct{}, s settings) *dispatcher {
	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &dispatcher{
		queue:           q,
		sender:          sender,
		batchSize:       s.batchSize,
		interval:        s.flushInterval,
		shutdownTimeout: s.shutdownTimeout,
		resetOnFlush:    s.resetOnFlush,
		newTicker:       s.newTicker,
		logger:          logger,
		observer:        s.observers,
		tracer:          otel.Tracer(tracerName),
		flushReq:        make(chan chan struct{}),
		abandon:         abandon,
		batch:           make([]events.Envelope, 0, s.batchSize),
	}
}
