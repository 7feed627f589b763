package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mattjoyce/goon/internal/errs"
	"github.com/mattjoyce/goon/internal/event"
)

//go:generate mockgen -destination=mocks/mock_handler.go -package=mocks github.com/mattjoyce/goon/internal/engine Handler

// Handler processes one event. Any per-handler state lives in the value
// implementing Handler. A non-nil error marks the call as failed; it never
// stops dispatch to the other handlers.
type Handler interface {
	Handle(ctx context.Context, eng *Engine, ev *event.Event) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, eng *Engine, ev *event.Event) error

func (f HandlerFunc) Handle(ctx context.Context, eng *Engine, ev *event.Event) error {
	return f(ctx, eng, ev)
}

// Stats are the per-handler counters kept by the dispatch loop.
type Stats struct {
	Calls         uint64  `json:"calls"`
	Errors        uint64  `json:"errors"`
	AvgExecMillis float64 `json:"avg_exec_ms"`
}

// record folds one call into the cumulative mean.
func (s *Stats) record(elapsed time.Duration, failed bool) {
	s.Calls++
	sample := float64(elapsed) / float64(time.Millisecond)
	s.AvgExecMillis = (s.AvgExecMillis*float64(s.Calls-1) + sample) / float64(s.Calls)
	if failed {
		s.Errors++
	}
}

// Registration is a named handler entry in an engine's registry.
type Registration struct {
	id      uint32
	name    string
	handler Handler
	enabled bool
	stats   Stats
}

// NewRegistration creates an enabled, unregistered entry. Its id is assigned
// when it is registered with an engine.
func NewRegistration(name string, h Handler) (*Registration, error) {
	if name == "" {
		return nil, fmt.Errorf("new registration: empty name: %w", errs.ErrInvalidParam)
	}
	if h == nil {
		return nil, fmt.Errorf("new registration %q: nil handler: %w", name, errs.ErrNullInput)
	}
	return &Registration{
		name:    event.TruncateName(name),
		handler: h,
		enabled: true,
	}, nil
}

func (r *Registration) ID() uint32 { return r.id }
func (r *Registration) Name() string { return r.name }
func (r *Registration) Handler() Handler { return r.handler }
func (r *Registration) Enabled() bool { return r.enabled }
func (r *Registration) Stats() Stats { return r.stats }
