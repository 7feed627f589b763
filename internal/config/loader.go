package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/goon/internal/engine"
	"github.com/mattjoyce/goon/internal/errs"
	"github.com/mattjoyce/goon/internal/event"
	"github.com/mattjoyce/goon/internal/handlers"
)

// envVarPattern matches ${VAR_NAME} for environment variable interpolation.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a YAML config file, expands ${VAR} references, overlays it on
// Defaults and validates the result. When a "<path>.blake3" sidecar exists the
// file must match it.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s\n"+
				"Hint: Check the path or run with --config flag: %w", absPath, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	sum, err := VerifyChecksum(absPath)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath
	cfg.Checksum = sum
	return cfg, nil
}

// Parse decodes YAML bytes the same way Load does, without touching disk.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	interpolated := interpolateEnv(string(data))
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	applyConfigDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyConfigDefaults fills values that an explicit empty YAML key zeroed.
func applyConfigDefaults(cfg *Config) {
	def := Defaults()
	if cfg.Service.Name == "" {
		cfg.Service.Name = def.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = def.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = def.Service.LogFormat
	}
	if cfg.Engine.DispatchOrder == "" {
		cfg.Engine.DispatchOrder = def.Engine.DispatchOrder
	}
	if cfg.Worker.TickInterval == 0 {
		cfg.Worker.TickInterval = def.Worker.TickInterval
	}
	if cfg.History.Path == "" {
		cfg.History.Path = def.History.Path
	}
	for i := range cfg.Handlers {
		if cfg.Handlers[i].Name == "" {
			cfg.Handlers[i].Name = cfg.Handlers[i].Kind
		}
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Unset variables are left in place so Validate can report them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// Validate checks a Config for semantic errors. Errors wrap
// errs.ErrInvalidParam.
func Validate(cfg *Config) error {
	if err := validate(cfg); err != nil {
		return fmt.Errorf("%w: %w", err, errs.ErrInvalidParam)
	}
	return nil
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := strings.ToLower(cfg.Service.LogFormat); f != "json" && f != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}
	if err := unresolved("service.name", cfg.Service.Name); err != nil {
		return err
	}

	eng := cfg.Engine
	for key, v := range map[string]int{
		"engine.queue_size":       eng.QueueSize,
		"engine.cache_capacity":   eng.CacheCapacity,
		"engine.pool_capacity":    eng.PoolCapacity,
		"engine.pool_buffer_size": eng.PoolBufferSize,
		"engine.pool_warm":        eng.PoolWarm,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative (got %d)", key, v)
		}
	}
	if eng.PoolCapacity > 0 && eng.PoolWarm > eng.PoolCapacity {
		return fmt.Errorf("engine.pool_warm (%d) exceeds engine.pool_capacity (%d)", eng.PoolWarm, eng.PoolCapacity)
	}
	if _, err := engine.ParseDispatchOrder(eng.DispatchOrder); err != nil {
		return fmt.Errorf("engine.dispatch_order must be newest_first or registration (got %q)", eng.DispatchOrder)
	}

	if cfg.Worker.TickInterval < 0 {
		return fmt.Errorf("worker.tick_interval must be positive")
	}
	if cfg.History.Enabled {
		if err := unresolved("history.path", cfg.History.Path); err != nil {
			return err
		}
	}

	kinds := make(map[string]bool)
	for _, k := range handlers.Kinds() {
		kinds[k] = true
	}
	seen := make(map[string]bool)
	for i, h := range cfg.Handlers {
		if h.Kind == "" {
			return fmt.Errorf("handlers[%d].kind is required", i)
		}
		if !kinds[h.Kind] {
			return fmt.Errorf("handlers[%d]: unknown kind %q (known: %s)", i, h.Kind, strings.Join(handlers.Kinds(), ", "))
		}
		if len(h.Name) > event.MaxNameLen {
			return fmt.Errorf("handlers[%d].name longer than %d bytes", i, event.MaxNameLen)
		}
		if seen[h.Name] {
			return fmt.Errorf("handlers[%d]: duplicate name %q", i, h.Name)
		}
		seen[h.Name] = true
		if h.IsEnabled() {
			if err := checkUnresolvedEnvVars(h.Config, h.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func unresolved(key, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); m != nil {
		return fmt.Errorf("%s: environment variable ${%s} is not set", key, m[1])
	}
	return nil
}

// checkUnresolvedEnvVars walks handler options for ${VAR} left by interpolateEnv.
func checkUnresolvedEnvVars(data map[string]any, handlerName string) error {
	for key, value := range data {
		switch v := value.(type) {
		case string:
			if err := unresolved(fmt.Sprintf("handler %q: config.%s", handlerName, key), v); err != nil {
				return err
			}
		case map[string]any:
			if err := checkUnresolvedEnvVars(v, handlerName); err != nil {
				return err
			}
		}
	}
	return nil
}
