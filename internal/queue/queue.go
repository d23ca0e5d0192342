// Package queue implements the multi-producer, single-consumer FIFO that
// carries envelopes from tracking call sites to the dispatcher.
package queue

import "sync"

// Outcome reports what happened to a pushed item.
type Outcome int

const (
	// Accepted means the item was enqueued.
	Accepted Outcome = iota
	// Evicted means the item was enqueued and the oldest pending item was
	// discarded to make room.
	Evicted
	// Closed means the queue no longer accepts items; the push was dropped.
	Closed
)

const initialSlots = 64

// Queue is a thread-safe circular buffer. With a zero capacity it grows
// without bound; otherwise it holds at most capacity items and evicts the
// oldest on overflow. Push never blocks.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	head     int // index of oldest item
	size     int
	capacity int // 0 = unbounded
	closed   bool
	evicted  uint64
	ready    chan struct{}
}

// New creates a queue. A capacity <= 0 makes it unbounded.
func New[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	slots := initialSlots
	if capacity > 0 {
		slots = capacity
	}
	return &Queue[T]{
		items:    make([]T, slots),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Push appends v. It returns Closed, without error, once Close was called.
func (q *Queue[T]) Push(v T) Outcome {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Closed
	}

	outcome := Accepted
	if q.size == len(q.items) {
		if q.capacity == 0 {
			q.grow()
		} else {
			// Full: overwrite the oldest slot.
			var zero T
			q.items[q.head] = zero
			q.head = (q.head + 1) % len(q.items)
			q.size--
			q.evicted++
			outcome = Evicted
		}
	}

	q.items[(q.head+q.size)%len(q.items)] = v
	q.size++
	q.mu.Unlock()

	q.signal()
	return outcome
}

// PopAll removes and returns every pending item, oldest first.
func (q *Queue[T]) PopAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return nil
	}

	out := make([]T, q.size)
	var zero T
	for i := 0; i < q.size; i++ {
		idx := (q.head + i) % len(q.items)
		out[i] = q.items[idx]
		q.items[idx] = zero
	}
	q.head = 0
	q.size = 0
	return out
}

// Ready fires after a push or close. A single notification may cover many
// pushes; consumers should drain with PopAll.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Capacity returns the configured bound, 0 when unbounded.
func (q *Queue[T]) Capacity() int {
	return q.capacity
}

// Evictions returns how many items were discarded by overflow.
func (q *Queue[T]) Evictions() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}

// Close stops accepting items. Pending items stay available to PopAll.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// IsClosed reports whether Close was called.
func (q *Queue[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// grow doubles the backing slice, unrolling the ring so head is 0.
func (q *Queue[T]) grow() {
	next := make([]T, len(q.items)*2)
	for i := 0; i < q.size; i++ {
		next[i] = q.items[(q.head+i)%len(q.items)]
	}
	q.items = next
	q.head = 0
}
