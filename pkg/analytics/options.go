package analytics

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Defaults applied by New.
const (
	DefaultBatchSize       = 100
	DefaultFlushInterval   = 10 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

type settings struct {
	ctx             context.Context
	batchSize       int
	flushInterval   time.Duration
	shutdownTimeout time.Duration
	queueCapacity   int
	resetOnFlush    bool
	httpClient      *http.Client
	sender          Sender
	tags            TagSource
	now             func() time.Time
	logger          *slog.Logger
	observers       observers
	newTicker       func(time.Duration) ticker
}

func defaultSettings() settings {
	return settings{
		ctx:             context.Background(),
		batchSize:       DefaultBatchSize,
		flushInterval:   DefaultFlushInterval,
		shutdownTimeout: DefaultShutdownTimeout,
		tags:            EnvTagSource{},
		now:             time.Now,
		newTicker:       newTimeTicker,
	}
}

// Option configures a Client.
type Option func(*settings)

// WithContext binds the dispatcher to ctx. When ctx is cancelled the client
// stops accepting events and makes a final best-effort flush. Without this
// option the dispatcher runs until Close or process exit.
func WithContext(ctx context.Context) Option {
	return func(s *settings) {
		if ctx != nil {
			s.ctx = ctx
		}
	}
}

// WithBatchSize sets the size-triggered flush threshold.
func WithBatchSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithFlushInterval sets the period of the flush timer.
func WithFlushInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

// WithShutdownTimeout bounds the final flush that follows context
// cancellation.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithQueueCapacity bounds the ingest queue. When full, the oldest pending
// envelope is dropped. Zero, the default, leaves the queue unbounded.
func WithQueueCapacity(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.queueCapacity = n
		}
	}
}

// WithResetTimerOnFlush restarts the flush timer after every flush, so an
// interval flush never follows a size flush by less than a full period.
func WithResetTimerOnFlush(reset bool) Option {
	return func(s *settings) {
		s.resetOnFlush = reset
	}
}

// WithHTTPClient sets the client used by the default HTTP sender.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		s.httpClient = c
	}
}

// WithSender replaces the HTTP transport entirely.
func WithSender(sender Sender) Option {
	return func(s *settings) {
		s.sender = sender
	}
}

// WithTagSource overrides where host and environment tags come from.
func WithTagSource(tags TagSource) Option {
	return func(s *settings) {
		if tags != nil {
			s.tags = tags
		}
	}
}

// WithClock overrides the capture-time clock.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger for flush outcomes. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithObserver registers an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(s *settings) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}
