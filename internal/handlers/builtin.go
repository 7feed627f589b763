// Package handlers provides the stock engine handlers and a factory that
// builds them from configuration.
package handlers

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattjoyce/goon/internal/engine"
	"github.com/mattjoyce/goon/internal/errs"
	"github.com/mattjoyce/goon/internal/event"
)

var (
	ErrFiltered    = fmt.Errorf("event filtered out: %w", errs.ErrFailed)
	ErrDuplicate   = fmt.Errorf("duplicate event: %w", errs.ErrFailed)
	ErrRateLimited = fmt.Errorf("rate limit exceeded: %w", errs.ErrFailed)
	ErrNoPayload   = fmt.Errorf("event has no payload: %w", errs.ErrNullInput)
)

// Echo prints each event and a description of its payload.
type Echo struct {
	Out io.Writer
}

func (h *Echo) Handle(_ context.Context, _ *engine.Engine, ev *event.Event) error {
	fmt.Fprintf(h.Out, "[ECHO] Event: %s (ID: %d, Priority: %s)\n", ev.Name, ev.ID, ev.Priority)
	p := ev.Payload()
	if p == nil {
		return nil
	}
	fmt.Fprintf(h.Out, "[ECHO] Data type: %s, size: %d\n", p.Kind(), p.Size())
	switch v := p.(type) {
	case event.Text:
		fmt.Fprintf(h.Out, "[ECHO] String value: %s\n", v.Value)
	case event.Int:
		fmt.Fprintf(h.Out, "[ECHO] Int value: %d\n", v.Value)
	case event.Float:
		fmt.Fprintf(h.Out, "[ECHO] Float value: %f\n", v.Value)
	case event.Bool:
		fmt.Fprintf(h.Out, "[ECHO] Bool value: %t\n", v.Value)
	}
	return nil
}

// Logger records each event. With a nil Out it logs through the engine's
// structured logger instead.
type Logger struct {
	Out io.Writer
}

func (h *Logger) Handle(_ context.Context, eng *engine.Engine, ev *event.Event) error {
	if h.Out == nil {
		eng.Logger().Info("event",
			"event", ev.Name,
			"event_id", ev.ID,
			"priority", ev.Priority.String(),
			"created_at", ev.CreatedAt,
		)
		return nil
	}
	_, err := fmt.Fprintf(h.Out, "[LOG] %s - Event: %s (ID: %d)\n", ev.CreatedAt.Format(time.RFC3339), ev.Name, ev.ID)
	return err
}

// Counter counts the events it sees.
type Counter struct {
	Out   io.Writer
	count uint64
}

func (h *Counter) Handle(context.Context, *engine.Engine, *event.Event) error {
	h.count++
	if h.Out != nil {
		fmt.Fprintf(h.Out, "[COUNTER] Event count: %d\n", h.count)
	}
	return nil
}

func (h *Counter) Count() uint64 { return h.count }

// CacheWriter stores each event's payload bytes in the engine cache under
// the event name. Events whose payload has no byte form are skipped.
type CacheWriter struct{}

func (CacheWriter) Handle(_ context.Context, eng *engine.Engine, ev *event.Event) error {
	p := ev.Payload()
	if p == nil {
		return nil
	}
	b := p.Bytes()
	if b == nil {
		return nil
	}
	if err := eng.Cache().Set(ev.Name, b); err != nil {
		return fmt.Errorf("cache %q: %w", ev.Name, err)
	}
	if eng.Debug() {
		eng.Logger().Debug("cached event data", "event", ev.Name)
	}
	return nil
}

// Validator rejects events with an empty name or an unknown priority.
type Validator struct{}

func (Validator) Handle(_ context.Context, _ *engine.Engine, ev *event.Event) error {
	if ev.Name == "" {
		return fmt.Errorf("event %d has empty name: %w", ev.ID, errs.ErrInvalidParam)
	}
	if !ev.Priority.Valid() {
		return fmt.Errorf("event %s has invalid priority: %w", ev, errs.ErrInvalidParam)
	}
	return nil
}

// Filter fails for events whose name lacks Prefix. The failure is advisory:
// later handlers still see the event. An empty Prefix passes everything.
type Filter struct {
	Prefix string
}

func (h *Filter) Handle(_ context.Context, eng *engine.Engine, ev *event.Event) error {
	if h.Prefix == "" || strings.HasPrefix(ev.Name, h.Prefix) {
		return nil
	}
	if eng.Debug() {
		eng.Logger().Debug("event filtered out", "event", ev.Name, "prefix", h.Prefix)
	}
	return fmt.Errorf("%s: %w", ev.Name, ErrFiltered)
}

// Statistics counts events per priority. In debug mode it prints the
// distribution after every event.
type Statistics struct {
	Out    io.Writer
	counts [4]uint64
}

func (h *Statistics) Handle(_ context.Context, eng *engine.Engine, ev *event.Event) error {
	if ev.Priority.Valid() {
		h.counts[ev.Priority]++
	}
	if eng.Debug() && h.Out != nil {
		fmt.Fprintf(h.Out, "[STATS] Priority distribution - Low: %d, Normal: %d, High: %d, Critical: %d\n",
			h.counts[event.PriorityLow], h.counts[event.PriorityNormal],
			h.counts[event.PriorityHigh], h.counts[event.PriorityCritical])
	}
	return nil
}

// Count returns how many events of priority p were seen.
func (h *Statistics) Count(p event.Priority) uint64 {
	if !p.Valid() {
		return 0
	}
	return h.counts[p]
}

// Transformer upper-cases text payloads in place. Events without a payload
// are an error; other payload kinds pass unchanged.
type Transformer struct{}

func (Transformer) Handle(_ context.Context, eng *engine.Engine, ev *event.Event) error {
	p := ev.Payload()
	if p == nil {
		return fmt.Errorf("transform %s: %w", ev, ErrNoPayload)
	}
	if t, ok := p.(event.Text); ok {
		ev.SetPayload(event.Text{Value: strings.ToUpper(t.Value)})
		if eng.Debug() {
			eng.Logger().Debug("transformed text payload", "event", ev.Name)
		}
	}
	return nil
}
