package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/goon/internal/diag"
	"github.com/mattjoyce/goon/internal/errs"
	"github.com/mattjoyce/goon/internal/ident"
	"github.com/mattjoyce/goon/internal/pool"
	"github.com/mattjoyce/goon/internal/telemetry"
)

// DispatchOrder selects the registry traversal order.
type DispatchOrder int

const (
	// OrderNewestFirst visits the most recently registered handler first.
	OrderNewestFirst DispatchOrder = iota
	// OrderRegistration visits handlers in the order they were registered.
	OrderRegistration
)

func (o DispatchOrder) String() string {
	switch o {
	case OrderNewestFirst:
		return "newest_first"
	case OrderRegistration:
		return "registration"
	default:
		return fmt.Sprintf("order(%d)", int(o))
	}
}

// ParseDispatchOrder parses a configuration value. Empty means newest first.
func ParseDispatchOrder(s string) (DispatchOrder, error) {
	switch s {
	case "", "newest_first":
		return OrderNewestFirst, nil
	case "registration":
		return OrderRegistration, nil
	default:
		return 0, fmt.Errorf("dispatch order %q: %w", s, errs.ErrInvalidParam)
	}
}

type options struct {
	logger        *slog.Logger
	queueSize     int
	cacheCapacity int
	poolCapacity  int
	poolAlloc     pool.Allocator[pool.Buffer]
	poolFree      pool.Deallocator[pool.Buffer]
	warmCount     int
	warmSize      int
	ids           *ident.Allocator
	clock         func() time.Time
	recorder      telemetry.Recorder
	spans         telemetry.SpanManager
	hub           *diag.Hub
	debug         bool
	order         DispatchOrder
}

func defaultOptions() options {
	return options{
		poolAlloc: pool.NewBufferAllocator(0),
		clock:     time.Now,
		recorder:  telemetry.NoopRecorder{},
		spans:     telemetry.NoopSpanManager{},
	}
}

func (o *options) validate() error {
	if o.queueSize < 0 {
		return fmt.Errorf("queue size %d: %w", o.queueSize, errs.ErrInvalidParam)
	}
	if o.cacheCapacity < 0 {
		return fmt.Errorf("cache capacity %d: %w", o.cacheCapacity, errs.ErrInvalidParam)
	}
	if o.poolCapacity < 0 {
		return fmt.Errorf("pool capacity %d: %w", o.poolCapacity, errs.ErrInvalidParam)
	}
	if o.warmCount < 0 || o.warmSize < 0 {
		return fmt.Errorf("pool warm %d x %d: %w", o.warmCount, o.warmSize, errs.ErrInvalidParam)
	}
	if o.order != OrderNewestFirst && o.order != OrderRegistration {
		return fmt.Errorf("dispatch order %s: %w", o.order, errs.ErrInvalidParam)
	}
	return nil
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the base logger. Engine attributes are added on top.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithQueueSize bounds the event queue. Zero means queue.DefaultMaxSize.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithCacheCapacity bounds the cache. Zero means cache.DefaultCapacity.
func WithCacheCapacity(n int) Option {
	return func(o *options) { o.cacheCapacity = n }
}

// WithPoolCapacity bounds the pool. Zero means pool.DefaultCapacity.
func WithPoolCapacity(n int) Option {
	return func(o *options) { o.poolCapacity = n }
}

// WithPoolAllocator replaces the pool's buffer allocator and deallocator.
func WithPoolAllocator(alloc pool.Allocator[pool.Buffer], free pool.Deallocator[pool.Buffer]) Option {
	return func(o *options) {
		if alloc != nil {
			o.poolAlloc = alloc
		}
		o.poolFree = free
	}
}

// WithPoolWarm pre-allocates n buffers of size bytes when the engine is built.
func WithPoolWarm(n, size int) Option {
	return func(o *options) {
		o.warmCount = n
		o.warmSize = size
	}
}

// WithIDs shares an id allocator between engines.
func WithIDs(a *ident.Allocator) Option {
	return func(o *options) {
		if a != nil {
			o.ids = a
		}
	}
}

// WithClock sets the time source for event timestamps and handler timings.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

func WithMetrics(r telemetry.Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

func WithTracer(s telemetry.SpanManager) Option {
	return func(o *options) {
		if s != nil {
			o.spans = s
		}
	}
}

// WithHub publishes engine diagnostics to h.
func WithHub(h *diag.Hub) Option {
	return func(o *options) { o.hub = h }
}

func WithDebug(on bool) Option {
	return func(o *options) { o.debug = on }
}

func WithDispatchOrder(order DispatchOrder) Option {
	return func(o *options) { o.order = order }
}
