package trigger

import (
	"sync"
)

// outbox is a thread-safe FIFO of persisted events waiting to be gossiped.
//
// The outbox is unbounded so Emit never blocks on a slow transport. Only
// events whose records were durably written are enqueued.
//
// The outbox uses a channel for signaling so the Run loop can wait on it
// together with context cancellation.
type outbox struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

// newOutbox creates an empty outbox.
func newOutbox() *outbox {
	return &outbox{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the outbox.
// Returns false if the outbox is closed.
func (q *outbox) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
// Returns (Event{}, false) if the outbox is empty.
func (q *outbox) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Clear the slot so the backing array does not pin payloads.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed when the outbox is closed.
func (q *outbox) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued events.
func (q *outbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued and wakes waiters.
func (q *outbox) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Closed reports whether Close was called.
func (q *outbox) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
