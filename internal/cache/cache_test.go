package cache

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/mattjoyce/goon/internal/errs"
)

// stepClock advances one second per call.
type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newStepCache(capacity int) *Cache {
	clk := &stepClock{t: time.Unix(1_700_000_000, 0)}
	return New(capacity, WithClock(clk.Now))
}

func mustSet(t *testing.T, c *Cache, key string, value []byte) {
	t.Helper()
	if err := c.Set(key, value); err != nil {
		t.Fatalf("Set(%q): %v", key, err)
	}
}

// Capacity 1: set a, set b evicts a, get a misses.
func TestCacheSingleSlotEviction(t *testing.T) {
	c := newStepCache(1)

	mustSet(t, c, "a", []byte{1})
	mustSet(t, c, "b", []byte{2})

	if keys := c.Keys(); !slices.Equal(keys, []string{"b"}) {
		t.Fatalf("Keys() = %v, want [b]", keys)
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("Get(a) hit after eviction")
	}
	v, ok := c.Get("b")
	if !ok || !bytes.Equal(v, []byte{2}) {
		t.Fatalf("Get(b) = %v, %v", v, ok)
	}
	if n := c.Evictions(); n != 1 {
		t.Fatalf("Evictions() = %d, want 1", n)
	}
}

func TestCacheEvictsOldestTouch(t *testing.T) {
	const capacity = 4
	c := newStepCache(capacity)
	for i := 0; i < capacity; i++ {
		mustSet(t, c, fmt.Sprintf("k%d", i), []byte{byte(i)})
	}
	if c.Len() != capacity {
		t.Fatalf("Len() = %d, want %d", c.Len(), capacity)
	}

	// k0 is oldest; reading it makes k1 the eviction candidate.
	if _, ok := c.Get("k0"); !ok {
		t.Fatal("Get(k0) missed")
	}

	mustSet(t, c, "new", []byte{9})
	if c.Len() != capacity {
		t.Errorf("Len() = %d after eviction, want %d", c.Len(), capacity)
	}
	if !c.Contains("k0") || c.Contains("k1") || !c.Contains("new") {
		t.Errorf("unexpected keys after eviction: %v", c.Keys())
	}
}

func TestCacheEvictionTieBreakOnFrozenClock(t *testing.T) {
	frozen := time.Unix(42, 0)
	c := New(2, WithClock(func() time.Time { return frozen }))

	mustSet(t, c, "a", []byte("a"))
	mustSet(t, c, "b", []byte("b"))
	_, _ = c.Get("a")
	mustSet(t, c, "c", []byte("c"))

	keys := c.Keys()
	slices.Sort(keys)
	if !slices.Equal(keys, []string{"a", "c"}) {
		t.Fatalf("Keys() = %v, want a and c", keys)
	}
}

func TestCacheSetIsIdempotent(t *testing.T) {
	c := newStepCache(4)
	mustSet(t, c, "k", []byte("v"))
	mustSet(t, c, "k", []byte("v"))

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
	if v, ok := c.Get("k"); !ok || string(v) != "v" {
		t.Fatalf("Get(k) = %q, %v", v, ok)
	}
}

func TestCacheGetRefreshesTouch(t *testing.T) {
	c := newStepCache(4)
	mustSet(t, c, "k", []byte("v"))
	before, _ := c.TouchedAt("k")

	if _, ok := c.Get("k"); !ok {
		t.Fatal("Get(k) missed")
	}
	after, _ := c.TouchedAt("k")
	if !after.After(before) {
		t.Fatalf("touch not refreshed: before %v, after %v", before, after)
	}
}

func TestCacheOwnsCopies(t *testing.T) {
	c := newStepCache(2)
	src := []byte("abc")
	mustSet(t, c, "k", src)
	src[0] = 'z'

	got, _ := c.Get("k")
	if string(got) != "abc" {
		t.Fatalf("stored value aliased caller slice: %q", got)
	}

	got[1] = 'q'
	if again, _ := c.Get("k"); string(again) != "abc" {
		t.Fatalf("returned value aliased cache entry: %q", again)
	}
}

func TestCacheRemoveCompactsInOrder(t *testing.T) {
	c := newStepCache(4)
	for _, k := range []string{"a", "b", "c", "d"} {
		mustSet(t, c, k, []byte(k))
	}

	if err := c.Remove("b"); err != nil {
		t.Fatalf("Remove(b): %v", err)
	}
	if keys := c.Keys(); !slices.Equal(keys, []string{"a", "c", "d"}) {
		t.Fatalf("Keys() = %v, want [a c d]", keys)
	}

	if err := c.Remove("b"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("second Remove(b) err = %v, want ErrNotFound", err)
	}
}

func TestCacheClear(t *testing.T) {
	c := newStepCache(3)
	mustSet(t, c, "a", []byte("a"))
	mustSet(t, c, "b", []byte("b"))
	c.Clear()

	if c.Len() != 0 {
		t.Fatalf("Len() = %d after Clear, want 0", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("Get(a) hit after Clear")
	}
	mustSet(t, c, "c", []byte("c"))
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestCacheRejectsBadInput(t *testing.T) {
	c := New(0)
	if c.Cap() != DefaultCapacity {
		t.Errorf("Cap() = %d, want %d", c.Cap(), DefaultCapacity)
	}
	if err := c.Set("", []byte("x")); !errors.Is(err, errs.ErrInvalidParam) {
		t.Errorf("Set with empty key err = %v, want ErrInvalidParam", err)
	}
	if err := c.Set("k", nil); !errors.Is(err, errs.ErrNullInput) {
		t.Errorf("Set with nil value err = %v, want ErrNullInput", err)
	}
	// Empty but non-nil values are allowed.
	if err := c.Set("k", []byte{}); err != nil {
		t.Errorf("Set with empty value: %v", err)
	}
}
