package queue

import (
	"fmt"

	"github.com/mattjoyce/goon/internal/errs"
	"github.com/mattjoyce/goon/internal/event"
)

// Queue is a bounded FIFO of pending events backed by a ring buffer.
// It is not safe for concurrent use.
type Queue struct {
	ring []*event.Event
	head int
	size int

	pushed   uint64
	popped   uint64
	rejected uint64
}

// New creates a queue holding at most maxSize events.
func New(maxSize int) *Queue {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Queue{ring: make([]*event.Event, maxSize)}
}

// Push appends ev at the tail. The queue takes ownership of ev only on
// success; on overflow the caller keeps it.
func (q *Queue) Push(ev *event.Event) error {
	if ev == nil {
		return fmt.Errorf("queue push: %w", errs.ErrNullInput)
	}
	if q.size >= len(q.ring) {
		q.rejected++
		return fmt.Errorf("queue push %s: %w: %w", ev, ErrQueueFull, errs.ErrOverflow)
	}
	q.ring[(q.head+q.size)%len(q.ring)] = ev
	q.size++
	q.pushed++
	return nil
}

// Pop removes and returns the head event. Returns (nil, false) if the queue
// is empty.
func (q *Queue) Pop() (*event.Event, bool) {
	if q.size == 0 {
		return nil, false
	}
	ev := q.ring[q.head]
	q.ring[q.head] = nil
	q.head = (q.head + 1) % len(q.ring)
	q.size--
	q.popped++
	return ev, true
}

// Len returns the number of pending events.
func (q *Queue) Len() int { return q.size }

// Empty reports whether no events are pending.
func (q *Queue) Empty() bool { return q.size == 0 }

// Cap returns the configured bound.
func (q *Queue) Cap() int { return len(q.ring) }

// Clear releases and drops every pending event, returning how many there were.
func (q *Queue) Clear() int {
	cleared := 0
	for {
		ev, ok := q.Pop()
		if !ok {
			return cleared
		}
		ev.Release()
		cleared++
	}
}

// Stats returns counters for the queue.
func (q *Queue) Stats() Stats {
	return Stats{
		Len:      q.size,
		Cap:      len(q.ring),
		Pushed:   q.pushed,
		Popped:   q.popped,
		Rejected: q.rejected,
	}
}
