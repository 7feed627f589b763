// Package pool is a bounded allocator of reusable objects. Handlers acquire
// scratch objects from it and release them back; objects are only freed when
// the whole pool is destroyed.
package pool

import (
	"fmt"

	"github.com/mattjoyce/goon/internal/errs"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 128

// Allocator creates a new object. sizeHint is whatever the acquiring caller
// asked for.
type Allocator[T any] func(sizeHint int) (*T, error)

// Deallocator frees an object when the pool is destroyed.
type Deallocator[T any] func(*T)

type slot[T any] struct {
	obj   *T
	inUse bool
}

// Pool is not safe for concurrent use.
type Pool[T any] struct {
	slots    []slot[T]
	capacity int
	alloc    Allocator[T]
	free     Deallocator[T]
}

// New creates a pool of at most capacity objects. A nil alloc defaults to
// new(T); a nil free leaves objects to the garbage collector.
func New[T any](capacity int, alloc Allocator[T], free Deallocator[T]) *Pool[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if alloc == nil {
		alloc = func(int) (*T, error) { return new(T), nil }
	}
	return &Pool[T]{
		slots:    make([]slot[T], 0, capacity),
		capacity: capacity,
		alloc:    alloc,
		free:     free,
	}
}

// Acquire returns a free object, allocating one if the pool has room.
//
// A reused object is returned as is: its original allocation is not checked
// against sizeHint, so callers must not assume a reused object is at least
// sizeHint large.
func (p *Pool[T]) Acquire(sizeHint int) (*T, error) {
	for i := range p.slots {
		if !p.slots[i].inUse {
			p.slots[i].inUse = true
			return p.slots[i].obj, nil
		}
	}

	if len(p.slots) >= p.capacity {
		return nil, fmt.Errorf("pool acquire: exhausted at %d objects: %w", p.capacity, errs.ErrOverflow)
	}

	obj, err := p.alloc(sizeHint)
	if err != nil {
		return nil, fmt.Errorf("pool acquire: allocate %d: %w: %w", sizeHint, errs.ErrOutOfMemory, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("pool acquire: allocator returned nil: %w", errs.ErrOutOfMemory)
	}
	p.slots = append(p.slots, slot[T]{obj: obj, inUse: true})
	return obj, nil
}

// Release marks obj free for reuse. obj must have come from this pool.
func (p *Pool[T]) Release(obj *T) error {
	if obj == nil {
		return fmt.Errorf("pool release: %w", errs.ErrNullInput)
	}
	for i := range p.slots {
		if p.slots[i].obj == obj {
			p.slots[i].inUse = false
			return nil
		}
	}
	return fmt.Errorf("pool release: object not owned by pool: %w", errs.ErrNotFound)
}

// Warm allocates n objects up front and leaves them free. On allocator
// failure the objects allocated so far stay in the pool.
func (p *Pool[T]) Warm(n, sizeHint int) error {
	if n > p.capacity-len(p.slots) {
		return fmt.Errorf("pool warm %d: %w", n, errs.ErrOverflow)
	}
	acquired := make([]*T, 0, n)
	defer func() {
		for _, obj := range acquired {
			_ = p.Release(obj)
		}
	}()
	for range n {
		obj, err := p.Acquire(sizeHint)
		if err != nil {
			return err
		}
		acquired = append(acquired, obj)
	}
	return nil
}

// Destroy frees every object through the deallocator and empties the pool.
func (p *Pool[T]) Destroy() {
	if p.free != nil {
		for _, s := range p.slots {
			p.free(s.obj)
		}
	}
	clear(p.slots)
	p.slots = p.slots[:0]
}

// Len returns how many objects the pool holds.
func (p *Pool[T]) Len() int { return len(p.slots) }

// InUse returns how many objects are currently acquired.
func (p *Pool[T]) InUse() int {
	n := 0
	for _, s := range p.slots {
		if s.inUse {
			n++
		}
	}
	return n
}

// Cap returns the fixed capacity.
func (p *Pool[T]) Cap() int { return p.capacity }

// Buffer is the scratch object the engine's default pool hands out.
type Buffer struct {
	Data []byte
}

// NewBufferAllocator returns an Allocator creating buffers of sizeHint bytes,
// or minSize bytes if the hint is smaller.
func NewBufferAllocator(minSize int) Allocator[Buffer] {
	return func(sizeHint int) (*Buffer, error) {
		if sizeHint < 0 {
			return nil, fmt.Errorf("buffer size %d: %w", sizeHint, errs.ErrInvalidParam)
		}
		return &Buffer{Data: make([]byte, max(sizeHint, minSize))}, nil
	}
}
