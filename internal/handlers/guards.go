package handlers

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/mattjoyce/goon/internal/engine"
	"github.com/mattjoyce/goon/internal/event"
)

// DuplicateKeyPrefix prefixes the cache keys DuplicateDetector writes.
const DuplicateKeyPrefix = "event_"

// DuplicateDetector fails for an event name already seen in the engine
// cache. Detection is bounded by the cache: an evicted marker is forgotten.
type DuplicateDetector struct{}

func (DuplicateDetector) Handle(_ context.Context, eng *engine.Engine, ev *event.Event) error {
	key := DuplicateKeyPrefix + ev.Name
	if _, ok := eng.Cache().Get(key); ok {
		eng.Logger().Warn("duplicate event detected", "event", ev.Name, "event_id", ev.ID)
		return fmt.Errorf("%s: %w", ev.Name, ErrDuplicate)
	}
	if err := eng.Cache().Set(key, []byte{1}); err != nil {
		return fmt.Errorf("mark %q: %w", key, err)
	}
	return nil
}

// DefaultRateLimit is the events-per-second limit when none is configured.
const DefaultRateLimit = 10

// RateLimiter fails events beyond a per-second budget, measured on the
// engine clock with a token bucket of burst equal to the limit.
type RateLimiter struct {
	limiter *rate.Limiter
}

func NewRateLimiter(perSecond int) *RateLimiter {
	if perSecond <= 0 {
		perSecond = DefaultRateLimit
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond)}
}

func (h *RateLimiter) Handle(_ context.Context, eng *engine.Engine, ev *event.Event) error {
	if h.limiter.AllowN(eng.Now(), 1) {
		return nil
	}
	eng.Logger().Warn("rate limit exceeded", "event", ev.Name, "limit", h.limiter.Burst())
	return fmt.Errorf("%s: %w", ev.Name, ErrRateLimited)
}

// Limit returns the configured events per second.
func (h *RateLimiter) Limit() int { return h.limiter.Burst() }
