package config

import (
	"log/slog"

	"github.com/mattjoyce/goon/internal/engine"
	"github.com/mattjoyce/goon/internal/pool"
)

// EngineOptions translates the engine and service sections into engine
// options. The config must already be validated.
func (c *Config) EngineOptions(logger *slog.Logger) []engine.Option {
	order, _ := engine.ParseDispatchOrder(c.Engine.DispatchOrder)
	opts := []engine.Option{
		engine.WithQueueSize(c.Engine.QueueSize),
		engine.WithCacheCapacity(c.Engine.CacheCapacity),
		engine.WithPoolCapacity(c.Engine.PoolCapacity),
		engine.WithDispatchOrder(order),
		engine.WithDebug(c.Service.Debug),
	}
	if c.Engine.PoolBufferSize > 0 {
		opts = append(opts, engine.WithPoolAllocator(pool.NewBufferAllocator(c.Engine.PoolBufferSize), nil))
	}
	if c.Engine.PoolWarm > 0 {
		opts = append(opts, engine.WithPoolWarm(c.Engine.PoolWarm, c.Engine.PoolBufferSize))
	}
	if logger != nil {
		opts = append(opts, engine.WithLogger(logger))
	}
	return opts
}
