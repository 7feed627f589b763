package engine

import (
	"fmt"
	"slices"

	"github.com/mattjoyce/goon/internal/diag"
	"github.com/mattjoyce/goon/internal/errs"
)

// Register adds r to the registry and assigns its id. With the default
// order r becomes the first handler visited.
func (e *Engine) Register(r *Registration) error {
	if r == nil {
		return fmt.Errorf("register: %w", errs.ErrNullInput)
	}
	if slices.Contains(e.handlers, r) {
		return fmt.Errorf("register %q: already registered: %w", r.name, errs.ErrInvalidParam)
	}

	r.id = e.ids.Handlers.Next()
	if e.order == OrderRegistration {
		e.handlers = append(e.handlers, r)
	} else {
		e.handlers = slices.Insert(e.handlers, 0, r)
	}

	e.logger.Info("handler registered", "handler", r.name, "handler_id", r.id)
	e.hub.Publish(diag.KindHandlerRegistered, map[string]any{
		"context":    e.name,
		"handler":    r.name,
		"handler_id": r.id,
	})
	return nil
}

// RegisterBatch registers each non-nil entry and returns how many succeeded.
func (e *Engine) RegisterBatch(rs []*Registration) int {
	n := 0
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := e.Register(r); err == nil {
			n++
		}
	}
	e.logger.Info("batch registered", "registered", n, "total", len(rs))
	return n
}

// Unregister removes the first handler named name in traversal order.
func (e *Engine) Unregister(name string) error {
	i := e.indexOf(name)
	if i < 0 {
		return fmt.Errorf("unregister %q: %w", name, errs.ErrNotFound)
	}
	r := e.handlers[i]
	e.handlers = slices.Delete(e.handlers, i, i+1)

	e.logger.Info("handler unregistered", "handler", name, "handler_id", r.id)
	e.hub.Publish(diag.KindHandlerUnregistered, map[string]any{
		"context":    e.name,
		"handler":    name,
		"handler_id": r.id,
	})
	return nil
}

// FindHandler returns the first handler named name in traversal order.
func (e *Engine) FindHandler(name string) (*Registration, bool) {
	i := e.indexOf(name)
	if i < 0 {
		return nil, false
	}
	return e.handlers[i], true
}

func (e *Engine) EnableHandler(name string) error {
	return e.setEnabled(name, true)
}

// DisableHandler stops dispatch to a handler without removing it; its
// statistics are kept.
func (e *Engine) DisableHandler(name string) error {
	return e.setEnabled(name, false)
}

// Handlers returns the registry in traversal order.
func (e *Engine) Handlers() []*Registration {
	return slices.Clone(e.handlers)
}

// HandlerCount returns the number of registered handlers.
func (e *Engine) HandlerCount() int { return len(e.handlers) }

func (e *Engine) setEnabled(name string, enabled bool) error {
	r, ok := e.FindHandler(name)
	if !ok {
		return fmt.Errorf("set handler %q enabled=%t: %w", name, enabled, errs.ErrNotFound)
	}
	r.enabled = enabled
	e.logger.Info("handler toggled", "handler", name, "enabled", enabled)
	return nil
}

func (e *Engine) indexOf(name string) int {
	return slices.IndexFunc(e.handlers, func(r *Registration) bool { return r.name == name })
}
