// Package ident hands out monotonic identifiers for contexts, handlers and
// events. Each engine owns an Allocator; there are no package-level counters.
package ident

import "sync/atomic"

// Sequence is a monotonic uint32 counter starting at 1.
type Sequence struct {
	last atomic.Uint32
}

// Next returns the next identifier.
func (s *Sequence) Next() uint32 {
	return s.last.Add(1)
}

// Last returns the most recently issued identifier, or 0 if none was issued.
func (s *Sequence) Last() uint32 {
	return s.last.Load()
}

// Allocator groups the sequences an engine draws from.
type Allocator struct {
	Contexts Sequence
	Handlers Sequence
	Events   Sequence
}

// NewAllocator returns an Allocator with all sequences at zero.
func NewAllocator() *Allocator {
	return &Allocator{}
}
