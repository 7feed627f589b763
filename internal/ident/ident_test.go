package ident

import "testing"

func TestSequenceMonotonic(t *testing.T) {
	var s Sequence
	if got := s.Last(); got != 0 {
		t.Fatalf("Last() on fresh sequence = %d, want 0", got)
	}
	if got := s.Next(); got != 1 {
		t.Fatalf("first Next() = %d, want 1", got)
	}
	if got := s.Next(); got != 2 {
		t.Fatalf("second Next() = %d, want 2", got)
	}
	if got := s.Last(); got != 2 {
		t.Fatalf("Last() = %d, want 2", got)
	}
}

func TestAllocatorSequencesAreIndependent(t *testing.T) {
	a := NewAllocator()
	a.Events.Next()
	a.Events.Next()

	if got := a.Handlers.Next(); got != 1 {
		t.Errorf("Handlers.Next() = %d, want 1", got)
	}
	if got := a.Contexts.Next(); got != 1 {
		t.Errorf("Contexts.Next() = %d, want 1", got)
	}
	if got := a.Events.Next(); got != 3 {
		t.Errorf("Events.Next() = %d, want 3", got)
	}

	b := NewAllocator()
	if got := b.Events.Next(); got != 1 {
		t.Errorf("second allocator Events.Next() = %d, want 1 (allocators must not share state)", got)
	}
}
