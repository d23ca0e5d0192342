package analytics

import (
	"context"
	"time"
)

// Trigger names the reason a flush happened.
type Trigger string

const (
	// TriggerSize fires when the batch reaches the configured size.
	TriggerSize Trigger = "size"
	// TriggerInterval fires when the periodic timer elapses with events pending.
	TriggerInterval Trigger = "interval"
	// TriggerManual fires on an explicit Client.Flush.
	TriggerManual Trigger = "manual"
	// TriggerShutdown fires while draining during Close or context cancellation.
	TriggerShutdown Trigger = "shutdown"
)

// DropReason explains why envelopes were discarded before a flush.
type DropReason string

// DropQueueFull is reported when a bounded queue evicts its oldest envelope.
const DropQueueFull DropReason = "queue_full"

// FlushResult describes one completed flush attempt.
type FlushResult struct {
	Trigger  Trigger
	Count    int
	Status   int // HTTP status, 0 when no response was received
	Duration time.Duration
	Err      error
}

// OK reports whether the attempt was delivered.
func (r FlushResult) OK() bool { return r.Err == nil }

// Observer receives delivery outcomes. Calls come from the dispatcher
// goroutine, except EventsDropped which runs on the tracking goroutine.
type Observer interface {
	FlushCompleted(ctx context.Context, result FlushResult)
	EventsDropped(count int, reason DropReason)
}

type observers []Observer

func (o observers) FlushCompleted(ctx context.Context, result FlushResult) {
	for _, obs := range o {
		obs.FlushCompleted(ctx, result)
	}
}

func (o observers) EventsDropped(count int, reason DropReason) {
	for _, obs := range o {
		obs.EventsDropped(count, reason)
	}
}
