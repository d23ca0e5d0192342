package analytics

import (
	"context"
	"reflect"
	"sync"

	"github.com/polisai/polis-analytics/internal/queue"
	"github.com/polisai/polis-analytics/pkg/events"
)

// NoopURL is the deliberately unreachable endpoint used by Noop.
const NoopURL = "http://localhost:9999"

// Client tracks analytics events. Track never blocks and never fails; the
// events are batched by a background dispatcher and posted to the
// ingestion service. A Client is safe for concurrent use; share the pointer
// rather than constructing one per call site.
type Client struct {
	baseURL  string
	enricher *Enricher
	queue    *queue.Queue[events.Envelope]
	observer Observer
	flushReq chan chan struct{}

	cancel      context.CancelFunc
	done        chan struct{}
	abandon     chan struct{}
	closeOnce   sync.Once
	abandonOnce sync.Once
}

// New creates a client for the ingestion service at baseURL (for example
// "http://localhost:8094") and starts its dispatcher.
func New(baseURL string, opts ...Option) *Client {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	sender := s.sender
	if sender == nil {
		sender = NewHTTPSender(baseURL, s.httpClient)
	}

	q := queue.New[events.Envelope](s.queueCapacity)
	abandon := make(chan struct{})
	d := newDispatcher(q, sender, abandon, s)

	ctx, cancel := context.WithCancel(s.ctx)
	c := &Client{
		baseURL:  baseURL,
		enricher: NewEnricher(s.tags, s.now),
		queue:    q,
		observer: s.observers,
		flushReq: d.flushReq,
		cancel:   cancel,
		done:     make(chan struct{}),
		abandon:  abandon,
	}

	go d.run(ctx, c.done)
	return c
}

// Noop returns a client whose endpoint is unreachable, for builds where
// analytics must be wired in but functionally disabled. Every flush fails
// and is logged at warn level.
func Noop(opts ...Option) *Client {
	return New(NoopURL, opts...)
}

// BaseURL returns the ingestion base address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Track enriches event and queues it for delivery. After Close the event is
// silently discarded, as is a nil event or a nil event pointer.
func (c *Client) Track(event events.Event) {
	if c == nil || isNil(event) {
		return
	}
	if c.queue.Push(c.enricher.Enrich(event)) == queue.Evicted {
		c.observer.EventsDropped(1, DropQueueFull)
	}
}

// isNil also catches typed nils such as (*events.TaskCompleted)(nil), which
// would otherwise fail encoding for the whole batch.
func isNil(event events.Event) bool {
	if event == nil {
		return true
	}
	v := reflect.ValueOf(event)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// TrackIf calls Track only when condition holds.
func (c *Client) TrackIf(condition bool, event events.Event) {
	if condition {
		c.Track(event)
	}
}

// Pending returns the number of envelopes queued but not yet picked up by
// the dispatcher.
func (c *Client) Pending() int {
	return c.queue.Len()
}

// Flush asks the dispatcher to send whatever is pending and waits for that
// attempt to finish. Delivery failures are logged, not returned.
func (c *Client) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case c.flushReq <- ack:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events, flushes what is pending and waits for the
// dispatcher to exit. If ctx expires first the in-flight send is abandoned,
// nothing further is posted and ctx.Err() is returned. Close is safe to call
// more than once.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(c.queue.Close)

	select {
	case <-c.done:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.abandonOnce.Do(func() { close(c.abandon) })
		c.cancel()
		return ctx.Err()
	}
}

// Done is closed once the dispatcher has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
