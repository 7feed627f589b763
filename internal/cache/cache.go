// Package cache is a small fixed-capacity key/value store used by handlers
// for de-duplication, rate limiting and write-through caching.
//
// Lookups are linear scans over a compact array. That is fine at the sizes
// the engine configures (tens of entries) and is not meant to scale past
// them. When full, Set evicts the entry touched least recently; both Set and
// Get count as a touch.
package cache

import (
	"fmt"
	"time"

	"github.com/mattjoyce/goon/internal/errs"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 64

type entry struct {
	key     string
	value   []byte
	touched time.Time

	// seq orders touches that share a timestamp.
	seq uint64
}

// Cache is not safe for concurrent use.
type Cache struct {
	entries  []entry
	capacity int
	now      func() time.Time
	seq      uint64
	evicted  uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now as the source of touch timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a cache holding at most capacity entries.
func New(capacity int, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		entries:  make([]entry, 0, capacity),
		capacity: capacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores a copy of value under key. An existing key is overwritten in
// place; a new key is appended, or replaces the oldest-touched entry when the
// cache is full. Set never fails for capacity reasons.
func (c *Cache) Set(key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("cache set: empty key: %w", errs.ErrInvalidParam)
	}
	if value == nil {
		return fmt.Errorf("cache set %q: %w", key, errs.ErrNullInput)
	}

	owned := make([]byte, len(value))
	copy(owned, value)

	if i := c.index(key); i >= 0 {
		c.entries[i].value = owned
		c.touch(i)
		return nil
	}

	if len(c.entries) < c.capacity {
		c.entries = append(c.entries, entry{key: key, value: owned})
		c.touch(len(c.entries) - 1)
		return nil
	}

	i := c.oldest()
	c.entries[i] = entry{key: key, value: owned}
	c.touch(i)
	c.evicted++
	return nil
}

// Get returns a copy of the value stored under key and refreshes its touch
// timestamp. Returns (nil, false) on a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	i := c.index(key)
	if i < 0 {
		return nil, false
	}
	c.touch(i)
	out := make([]byte, len(c.entries[i].value))
	copy(out, c.entries[i].value)
	return out, true
}

// Contains reports whether key is present without touching it.
func (c *Cache) Contains(key string) bool {
	return c.index(key) >= 0
}

// Remove deletes key, shifting later entries down so relative order is kept.
func (c *Cache) Remove(key string) error {
	i := c.index(key)
	if i < 0 {
		return fmt.Errorf("cache remove %q: %w", key, errs.ErrNotFound)
	}
	copy(c.entries[i:], c.entries[i+1:])
	c.entries[len(c.entries)-1] = entry{}
	c.entries = c.entries[:len(c.entries)-1]
	return nil
}

// Clear drops every entry.
func (c *Cache) Clear() {
	clear(c.entries)
	c.entries = c.entries[:0]
}

// Len returns the number of entries.
func (c *Cache) Len() int { return len(c.entries) }

// Cap returns the fixed capacity.
func (c *Cache) Cap() int { return c.capacity }

// Evictions returns how many entries Set has evicted.
func (c *Cache) Evictions() uint64 { return c.evicted }

// Keys returns the keys in storage order.
func (c *Cache) Keys() []string {
	keys := make([]string, len(c.entries))
	for i, e := range c.entries {
		keys[i] = e.key
	}
	return keys
}

// TouchedAt returns the last touch time of key without refreshing it.
func (c *Cache) TouchedAt(key string) (time.Time, bool) {
	i := c.index(key)
	if i < 0 {
		return time.Time{}, false
	}
	return c.entries[i].touched, true
}

func (c *Cache) index(key string) int {
	for i := range c.entries {
		if c.entries[i].key == key {
			return i
		}
	}
	return -1
}

func (c *Cache) touch(i int) {
	c.seq++
	c.entries[i].touched = c.now()
	c.entries[i].seq = c.seq
}

// oldest returns the index of the least recently touched entry.
func (c *Cache) oldest() int {
	idx := 0
	for i := 1; i < len(c.entries); i++ {
		e, best := c.entries[i], c.entries[idx]
		if e.touched.Before(best.touched) || (e.touched.Equal(best.touched) && e.seq < best.seq) {
			idx = i
		}
	}
	return idx
}
