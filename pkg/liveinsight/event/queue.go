package event

import "sync"

// Queue is a FIFO of events awaiting delivery.
// It is safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	events []Event
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends evt and returns the new length.
func (q *Queue) Push(evt Event) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, evt)
	return len(q.events)
}

// TakeBatch removes and returns up to n events from the front of the queue.
// The removal is atomic: concurrent callers never receive the same event.
// Returns nil when the queue is empty or n <= 0.
func (q *Queue) TakeBatch(n int) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.events) == 0 {
		return nil
	}
	if n > len(q.events) {
		n = len(q.events)
	}

	batch := make([]Event, n)
	copy(batch, q.events[:n])

	// shift so the backing array doesn't pin delivered events
	remaining := copy(q.events, q.events[n:])
	clear(q.events[remaining:])
	q.events = q.events[:remaining]
	return batch
}

// Drain removes every queued event, split into batches of at most n.
func (q *Queue) Drain(n int) [][]Event {
	var batches [][]Event
	for {
		batch := q.TakeBatch(n)
		if batch == nil {
			return batches
		}
		batches = append(batches, batch)
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Snapshot returns a copy of the queued events, oldest first.
func (q *Queue) Snapshot() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Event, len(q.events))
	copy(out, q.events)
	return out
}
