// Package analytics is the client side of the platform analytics pipeline.
//
// Application code calls Client.Track from any goroutine. Each event is
// wrapped in an envelope carrying its capture time and the host and
// environment tags current at that moment, then pushed onto an in-memory
// queue. A single dispatcher goroutine per Client drains the queue into a
// batch and posts it to <base>/events/batch when the batch reaches the
// configured size (100 by default) or when the flush timer (10s by default)
// fires with events pending.
//
// Delivery is best effort. A failed post is logged at warn level and the
// batch is discarded; there are no retries and nothing is persisted. Track
// never blocks and never reports an error, so a dead ingestion service
// degrades the client to a no-op without affecting callers.
//
// The size and interval triggers are independent: a size-triggered flush
// does not restart the timer unless WithResetTimerOnFlush is set. The
// dispatcher runs until Close is called or the context given to
// WithContext is cancelled; both make a final best-effort flush.
//
//	client := analytics.New(os.Getenv("ANALYTICS_URL"))
//	defer client.Close(context.Background())
//
//	client.Track(events.TaskStarted{TaskID: taskID, UserID: userID})
package analytics
