package config

import (
	"time"

	"github.com/mattjoyce/goon/internal/cache"
	"github.com/mattjoyce/goon/internal/engine"
	"github.com/mattjoyce/goon/internal/pool"
	"github.com/mattjoyce/goon/internal/queue"
)

// Config represents the complete goon configuration.
type Config struct {
	Service  ServiceConfig   `yaml:"service"`
	Engine   EngineConfig    `yaml:"engine"`
	Worker   WorkerConfig    `yaml:"worker"`
	History  HistoryConfig   `yaml:"history"`
	Handlers []HandlerConfig `yaml:"handlers"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
	// Checksum is the verified BLAKE3 digest, empty when no sidecar exists.
	Checksum string `yaml:"-"`
}

// ServiceConfig defines process-level settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Debug     bool   `yaml:"debug"`
}

// EngineConfig sizes the engine's queue, cache and buffer pool.
type EngineConfig struct {
	QueueSize      int    `yaml:"queue_size"`
	CacheCapacity  int    `yaml:"cache_capacity"`
	PoolCapacity   int    `yaml:"pool_capacity"`
	PoolBufferSize int    `yaml:"pool_buffer_size"`
	PoolWarm       int    `yaml:"pool_warm"`
	DispatchOrder  string `yaml:"dispatch_order"`
}

type WorkerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

// HistoryConfig controls the optional run-history database.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HandlerConfig declares one handler to build and register.
type HandlerConfig struct {
	Name    string         `yaml:"name"`
	Kind    string         `yaml:"kind"`
	Enabled *bool          `yaml:"enabled,omitempty"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// IsEnabled reports whether the handler should be registered enabled.
// Handlers are enabled unless explicitly switched off.
func (h HandlerConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// Defaults returns a Config with default values applied.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      engine.DefaultName,
			LogLevel:  "info",
			LogFormat: "json",
		},
		Engine: EngineConfig{
			QueueSize:      queue.DefaultMaxSize,
			CacheCapacity:  cache.DefaultCapacity,
			PoolCapacity:   pool.DefaultCapacity,
			PoolBufferSize: 256,
			DispatchOrder:  engine.OrderNewestFirst.String(),
		},
		Worker: WorkerConfig{
			TickInterval: engine.DefaultTickInterval,
		},
		History: HistoryConfig{
			Path: "./goon-history.db",
		},
	}
}
