package queue

import "errors"

// DefaultMaxSize is used when New is given a non-positive bound.
const DefaultMaxSize = 1024

// ErrQueueFull is returned by Push when the queue is at its bound. The
// returned error also matches errs.ErrOverflow.
var ErrQueueFull = errors.New("queue is full")

// Stats is a point-in-time view of a queue.
type Stats struct {
	Len    int
	Cap    int
	Pushed uint64
	Popped uint64
	// Rejected counts pushes refused because the queue was full.
	Rejected uint64
}
