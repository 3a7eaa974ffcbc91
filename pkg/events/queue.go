package events

import (
	"context"
	"sync"
)

// Queue is the bounded, ordered, single-consumer queue between the stream
// worker (producer) and the HTTP response writer (consumer). Push blocks
// when the queue is full: backpressure, never dropping. Dropping a
// text_delta would corrupt the visible transcript.
type Queue struct {
	ch        chan ClientEvent
	closeOnce sync.Once
}

// NewQueue creates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan ClientEvent, capacity)}
}

// Push enqueues one event, blocking until there is room or ctx is
// cancelled. Returns ctx.Err() on cancellation.
func (q *Queue) Push(ctx context.Context, ev ClientEvent) error {
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the queue as complete. The consumer channel is closed after
// all queued events are drained. Safe to call multiple times.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.ch) })
}

// Events returns the consumer side. The channel preserves the order events
// were pushed and is closed once the producer calls Close.
func (q *Queue) Events() <-chan ClientEvent {
	return q.ch
}
