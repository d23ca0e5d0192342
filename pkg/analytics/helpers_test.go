package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/polisai/polis-analytics/pkg/events"
)

type sentBatch struct {
	envelopes []events.Envelope
}

// recordingSender captures every batch it is handed.
type recordingSender struct {
	mu      sync.Mutex
	batches []sentBatch
	status  int
	err     error
}

func (s *recordingSender) Send(_ context.Context, batch []events.Envelope) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]events.Envelope, len(batch))
	copy(cp, batch)
	s.batches = append(s.batches, sentBatch{envelopes: cp})
	if s.status == 0 && s.err == nil {
		return 202, nil
	}
	return s.status, s.err
}

func (s *recordingSender) Batches() []sentBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentBatch, len(s.batches))
	copy(out, s.batches)
	return out
}

func (s *recordingSender) Sizes() []int {
	var sizes []int
	for _, b := range s.Batches() {
		sizes = append(sizes, len(b.envelopes))
	}
	return sizes
}

func (s *recordingSender) Total() int {
	total := 0
	for _, b := range s.Batches() {
		total += len(b.envelopes)
	}
	return total
}

// recordingObserver captures flush results and drops.
type recordingObserver struct {
	mu      sync.Mutex
	results []FlushResult
	dropped atomic.Int64
}

func (o *recordingObserver) FlushCompleted(_ context.Context, result FlushResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

func (o *recordingObserver) EventsDropped(count int, _ DropReason) {
	o.dropped.Add(int64(count))
}

func (o *recordingObserver) Results() []FlushResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]FlushResult, len(o.results))
	copy(out, o.results)
	return out
}

func (o *recordingObserver) Triggers() []Trigger {
	var out []Trigger
	for _, r := range o.Results() {
		out = append(out, r.Trigger)
	}
	return out
}

// manualTicker only fires when the test says so.
type manualTicker struct {
	ch     chan time.Time
	resets atomic.Int32
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Reset(time.Duration) { m.resets.Add(1) }
func (m *manualTicker) Stop()               {}

// Fire blocks until the dispatcher has taken the tick.
func (m *manualTicker) Fire() { m.ch <- time.Now() }

func withTicker(t ticker) Option {
	return func(s *settings) {
		s.newTicker = func(time.Duration) ticker { return t }
	}
}

func taskEvent(seq int) events.TaskCompleted {
	return events.TaskCompleted{DurationMS: int64(seq)}
}

func seqOf(env events.Envelope) int {
	switch e := env.Event.(type) {
	case events.TaskCompleted:
		return int(e.DurationMS)
	case *events.TaskCompleted:
		return int(e.DurationMS)
	}
	return -1
}
