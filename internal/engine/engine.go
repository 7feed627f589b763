package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/goon/internal/cache"
	"github.com/mattjoyce/goon/internal/diag"
	"github.com/mattjoyce/goon/internal/errs"
	"github.com/mattjoyce/goon/internal/event"
	"github.com/mattjoyce/goon/internal/ident"
	"github.com/mattjoyce/goon/internal/log"
	"github.com/mattjoyce/goon/internal/pool"
	"github.com/mattjoyce/goon/internal/queue"
	"github.com/mattjoyce/goon/internal/telemetry"
)

// DefaultName is used when New is given an empty name.
const DefaultName = "default"

// Engine owns the queue, handler registry, cache and pool for one dispatch
// context.
type Engine struct {
	id    uint32
	name  string
	runID string
	state State
	order DispatchOrder
	debug bool

	// handlers is kept in traversal order.
	handlers []*Registration

	queue *queue.Queue
	cache *cache.Cache
	pool  *pool.Pool[pool.Buffer]
	ids   *ident.Allocator

	emitted   uint64
	processed uint64
	startedAt time.Time

	clock    func() time.Time
	logger   *slog.Logger
	recorder telemetry.Recorder
	spans    telemetry.SpanManager
	hub      *diag.Hub
}

// New builds an engine in the Initializing state.
func New(name string, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	if name == "" {
		name = DefaultName
	}
	name = event.TruncateName(name)
	if o.ids == nil {
		o.ids = ident.NewAllocator()
	}

	e := &Engine{
		id:       o.ids.Contexts.Next(),
		name:     name,
		runID:    uuid.NewString(),
		state:    StateIdle,
		order:    o.order,
		debug:    o.debug,
		ids:      o.ids,
		clock:    o.clock,
		recorder: o.recorder,
		spans:    o.spans,
		hub:      o.hub,
	}
	base := o.logger
	if base == nil {
		base = log.WithComponent("engine")
	}
	e.logger = base.With("context", e.name, "context_id", e.id, "run_id", e.runID)

	e.queue = queue.New(o.queueSize)
	e.cache = cache.New(o.cacheCapacity, cache.WithClock(o.clock))
	e.pool = pool.New(o.poolCapacity, o.poolAlloc, o.poolFree)
	if o.warmCount > 0 {
		if err := e.pool.Warm(o.warmCount, o.warmSize); err != nil {
			e.teardown()
			return nil, fmt.Errorf("new engine %q: warm pool: %w", e.name, err)
		}
	}

	e.startedAt = e.clock()
	e.transition(StateInitializing)
	e.logger.Info("engine created",
		"queue_size", e.queue.Cap(),
		"cache_capacity", e.cache.Cap(),
		"pool_capacity", e.pool.Cap(),
		"dispatch_order", e.order.String(),
	)
	return e, nil
}

func (e *Engine) ID() uint32 { return e.id }
func (e *Engine) Name() string { return e.name }
func (e *Engine) RunID() string { return e.runID }
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Cache returns the engine's cache for handlers to use.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Pool returns the engine's scratch-buffer pool for handlers to use.
func (e *Engine) Pool() *pool.Pool[pool.Buffer] { return e.pool }

// Hub returns the diagnostics hub, or nil.
func (e *Engine) Hub() *diag.Hub { return e.hub }

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.clock() }

// NewEvent allocates an event id and stamps the event with the engine clock.
func (e *Engine) NewEvent(name string, priority event.Priority) (*event.Event, error) {
	if !priority.Valid() {
		return nil, fmt.Errorf("new event %q: %s: %w", name, priority, errs.ErrInvalidParam)
	}
	return event.New(e.ids.Events.Next(), name, priority, e.clock()), nil
}

// Emit appends ev to the queue. On overflow the event is not taken and stays
// owned by the caller.
func (e *Engine) Emit(ev *event.Event) error {
	return e.emit(context.Background(), ev)
}

func (e *Engine) emit(ctx context.Context, ev *event.Event) error {
	if ev == nil {
		return fmt.Errorf("emit: %w", errs.ErrNullInput)
	}
	if err := e.queue.Push(ev); err != nil {
		e.recorder.RecordEmit(ctx, false)
		if errors.Is(err, errs.ErrOverflow) {
			e.logger.Warn("queue full, event rejected", "event", ev.Name, "event_id", ev.ID, "queue_size", e.queue.Cap())
			e.hub.Publish(diag.KindQueueOverflow, map[string]any{
				"context":  e.name,
				"event":    ev.Name,
				"event_id": ev.ID,
			})
		}
		return fmt.Errorf("emit: %w", err)
	}
	e.emitted++
	e.recorder.RecordEmit(ctx, true)
	if e.debug {
		e.logger.Debug("event emitted", "event", ev.Name, "event_id", ev.ID, "priority", ev.Priority.String())
	}
	return nil
}

// EmitBatch emits each non-nil event and returns how many were accepted.
// Rejected events stay owned by the caller.
func (e *Engine) EmitBatch(evs []*event.Event) int {
	accepted := 0
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		if err := e.Emit(ev); err == nil {
			accepted++
		}
	}
	e.logger.Info("batch emitted", "accepted", accepted, "total", len(evs))
	return accepted
}

// ClearQueue releases every pending event and returns how many were dropped.
func (e *Engine) ClearQueue() int {
	n := e.queue.Clear()
	e.logger.Info("queue cleared", "cleared", n)
	e.hub.Publish(diag.KindQueueCleared, map[string]any{"context": e.name, "cleared": n})
	return n
}

// ResetStatistics zeroes every handler's stats and the processed counter,
// and restarts the uptime clock.
func (e *Engine) ResetStatistics() {
	for _, r := range e.handlers {
		r.stats = Stats{}
	}
	e.processed = 0
	e.startedAt = e.clock()
	e.logger.Info("statistics reset")
	e.hub.Publish(diag.KindStatsReset, map[string]any{"context": e.name})
}

func (e *Engine) EnableDebug() {
	e.debug = true
	e.logger.Info("debug mode enabled")
}

func (e *Engine) DisableDebug() {
	e.debug = false
	e.logger.Info("debug mode disabled")
}

func (e *Engine) Debug() bool { return e.debug }

// Destroy releases queued events, handlers, cached values and pool objects.
// The engine must not be used afterwards.
func (e *Engine) Destroy() {
	dropped := e.queue.Len()
	e.teardown()
	e.handlers = nil
	e.logger.Info("engine destroyed", "dropped_events", dropped)
}

func (e *Engine) teardown() {
	if e.queue != nil {
		e.queue.Clear()
	}
	if e.cache != nil {
		e.cache.Clear()
	}
	if e.pool != nil {
		e.pool.Destroy()
	}
}
