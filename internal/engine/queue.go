package engine

import (
	"sync"

	"github.com/roach88/sparqlflow/internal/ir"
)

// EventType distinguishes host events.
type EventType int

const (
	// EventTypeDelta carries a data delta to dispatch to every query.
	EventTypeDelta EventType = iota + 1
	// EventTypeRegister adds a query to the host.
	EventTypeRegister
	// EventTypeUnregister removes a query from the host.
	EventTypeUnregister
)

func (t EventType) String() string {
	switch t {
	case EventTypeDelta:
		return "delta"
	case EventTypeRegister:
		return "register"
	case EventTypeUnregister:
		return "unregister"
	default:
		return "unknown"
	}
}

// Event is one unit of work for the host loop.
type Event struct {
	Type  EventType
	Delta ir.DataDelta
	Query *Query
}

// eventQueue is an unbounded, thread-safe FIFO of events.
//
// Store listeners enqueue from whatever goroutine performs the write and
// must never block on a slow query, so the queue has no capacity limit. A
// one-slot signal channel lets the Run loop wait with a select on its
// context.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends an event. Returns false once the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)

	// Buffer of one coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	// Clear the slot so the backing array does not pin the query.
	q.events[0] = Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that fires when events may be available and is
// closed when the queue closes.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Drained reports whether the queue is closed and empty.
func (q *eventQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// Close rejects further events and wakes the waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
