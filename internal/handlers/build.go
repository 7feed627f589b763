package handlers

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mattjoyce/goon/internal/engine"
	"github.com/mattjoyce/goon/internal/errs"
)

// Handler kinds accepted by Build.
const (
	KindEcho              = "echo"
	KindLogger            = "logger"
	KindCounter           = "counter"
	KindCacheWriter       = "cache_writer"
	KindValidator         = "validator"
	KindFilter            = "filter"
	KindStatistics        = "statistics"
	KindTransformer       = "transformer"
	KindDuplicateDetector = "duplicate_detector"
	KindRateLimiter       = "rate_limiter"
	KindLua               = "lua"
)

type factory func(cfg map[string]any, out io.Writer) (engine.Handler, error)

var factories = map[string]factory{
	KindEcho: func(_ map[string]any, out io.Writer) (engine.Handler, error) {
		return &Echo{Out: out}, nil
	},
	KindLogger: func(cfg map[string]any, out io.Writer) (engine.Handler, error) {
		target, err := stringOpt(cfg, "output")
		if err != nil {
			return nil, err
		}
		switch target {
		case "", "log":
			return &Logger{}, nil
		case "stdout":
			return &Logger{Out: out}, nil
		default:
			return nil, fmt.Errorf("logger output %q: %w", target, errs.ErrInvalidParam)
		}
	},
	KindCounter: func(cfg map[string]any, out io.Writer) (engine.Handler, error) {
		quiet, err := boolOpt(cfg, "quiet")
		if err != nil {
			return nil, err
		}
		if quiet {
			out = nil
		}
		return &Counter{Out: out}, nil
	},
	KindCacheWriter: func(map[string]any, io.Writer) (engine.Handler, error) {
		return CacheWriter{}, nil
	},
	KindValidator: func(map[string]any, io.Writer) (engine.Handler, error) {
		return Validator{}, nil
	},
	KindFilter: func(cfg map[string]any, _ io.Writer) (engine.Handler, error) {
		prefix, err := stringOpt(cfg, "prefix")
		if err != nil {
			return nil, err
		}
		return &Filter{Prefix: prefix}, nil
	},
	KindStatistics: func(_ map[string]any, out io.Writer) (engine.Handler, error) {
		return &Statistics{Out: out}, nil
	},
	KindTransformer: func(map[string]any, io.Writer) (engine.Handler, error) {
		return Transformer{}, nil
	},
	KindDuplicateDetector: func(map[string]any, io.Writer) (engine.Handler, error) {
		return DuplicateDetector{}, nil
	},
	KindRateLimiter: func(cfg map[string]any, _ io.Writer) (engine.Handler, error) {
		limit, err := intOpt(cfg, "limit")
		if err != nil {
			return nil, err
		}
		if limit < 0 {
			return nil, fmt.Errorf("rate limit %d: %w", limit, errs.ErrInvalidParam)
		}
		return NewRateLimiter(limit), nil
	},
	KindLua: func(cfg map[string]any, _ io.Writer) (engine.Handler, error) {
		script, err := stringOpt(cfg, "script")
		if err != nil {
			return nil, err
		}
		path, err := stringOpt(cfg, "script_file")
		if err != nil {
			return nil, err
		}
		if script == "" && path != "" {
			b, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read lua script: %w", err)
			}
			script = string(b)
		}
		if script == "" {
			return nil, fmt.Errorf("lua handler needs script or script_file: %w", errs.ErrInvalidParam)
		}
		return NewLua(script)
	},
}

// Build constructs a handler of the given kind. out receives console output
// from handlers that print; a nil out means os.Stdout.
func Build(kind string, cfg map[string]any, out io.Writer) (engine.Handler, error) {
	f, ok := factories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown handler kind %q: %w", kind, errs.ErrInvalidParam)
	}
	if out == nil {
		out = os.Stdout
	}
	h, err := f(cfg, out)
	if err != nil {
		return nil, fmt.Errorf("build %s handler: %w", kind, err)
	}
	return h, nil
}

// Kinds lists the kinds Build accepts, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Close releases resources held by h, if any.
func Close(h engine.Handler) {
	if c, ok := h.(interface{ Close() }); ok {
		c.Close()
	}
}

func stringOpt(cfg map[string]any, key string) (string, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("option %s: want string, got %T: %w", key, v, errs.ErrInvalidParam)
	}
	return s, nil
}

func intOpt(cfg map[string]any, key string) (int, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("option %s: %v is not an integer: %w", key, n, errs.ErrInvalidParam)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("option %s: want integer, got %T: %w", key, v, errs.ErrInvalidParam)
	}
}

func boolOpt(cfg map[string]any, key string) (bool, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("option %s: want bool, got %T: %w", key, v, errs.ErrInvalidParam)
	}
	return b, nil
}
