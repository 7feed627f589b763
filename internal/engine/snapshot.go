package engine

import "time"

// HandlerSnapshot is a read-only view of one registration.
type HandlerSnapshot struct {
	ID      uint32 `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Stats
}

// Snapshot is a read-only view of the engine's counters.
type Snapshot struct {
	ID        uint32            `json:"id"`
	Name      string            `json:"name"`
	RunID     string            `json:"run_id"`
	State     string            `json:"state"`
	Debug     bool              `json:"debug"`
	Order     string            `json:"dispatch_order"`
	StartedAt time.Time         `json:"started_at"`
	Uptime    time.Duration     `json:"uptime_ns"`
	Emitted   uint64            `json:"emitted"`
	Processed uint64            `json:"processed"`
	Rejected  uint64            `json:"rejected"`
	QueueLen  int               `json:"queue_len"`
	QueueCap  int               `json:"queue_cap"`
	CacheLen  int               `json:"cache_len"`
	CacheCap  int               `json:"cache_cap"`
	Evictions uint64            `json:"cache_evictions"`
	PoolLen   int               `json:"pool_len"`
	PoolInUse int               `json:"pool_in_use"`
	PoolCap   int               `json:"pool_cap"`
	Handlers  []HandlerSnapshot `json:"handlers"`
}

// Snapshot captures the current counters. Handlers are listed in traversal
// order.
func (e *Engine) Snapshot() Snapshot {
	qs := e.queue.Stats()
	s := Snapshot{
		ID:        e.id,
		Name:      e.name,
		RunID:     e.runID,
		State:     e.state.String(),
		Debug:     e.debug,
		Order:     e.order.String(),
		StartedAt: e.startedAt,
		Uptime:    e.clock().Sub(e.startedAt),
		Emitted:   e.emitted,
		Processed: e.processed,
		Rejected:  qs.Rejected,
		QueueLen:  qs.Len,
		QueueCap:  qs.Cap,
		CacheLen:  e.cache.Len(),
		CacheCap:  e.cache.Cap(),
		Evictions: e.cache.Evictions(),
		PoolLen:   e.pool.Len(),
		PoolInUse: e.pool.InUse(),
		PoolCap:   e.pool.Cap(),
		Handlers:  make([]HandlerSnapshot, 0, len(e.handlers)),
	}
	for _, r := range e.handlers {
		s.Handlers = append(s.Handlers, HandlerSnapshot{
			ID:      r.id,
			Name:    r.name,
			Enabled: r.enabled,
			Stats:   r.stats,
		})
	}
	return s
}
