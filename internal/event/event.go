// Package event defines the unit of work dispatched by the engine: a named,
// prioritised Event carrying an optional typed Payload.
package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/goon/internal/errs"
)

// MaxNameLen bounds event and handler names, in bytes.
const MaxNameLen = 127

// Priority orders events by urgency. It does not affect dispatch order.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Valid reports whether p is one of the four defined priorities.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority parses a priority name (case-insensitive).
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return 0, fmt.Errorf("parse priority %q: %w", s, errs.ErrInvalidParam)
	}
}

// Event is a unit of dispatched work. Events are owned by whichever
// structure holds them: the queue while pending, the dispatch loop while
// handlers run. The loop releases the event once every handler has seen it.
type Event struct {
	ID        uint32
	Name      string
	Priority  Priority
	CreatedAt time.Time
	// Tag is an opaque caller value carried alongside the event.
	Tag any

	payload Payload
}

// New builds an Event. The name is truncated to MaxNameLen bytes.
func New(id uint32, name string, priority Priority, at time.Time) *Event {
	return &Event{
		ID:        id,
		Name:      TruncateName(name),
		Priority:  priority,
		CreatedAt: at,
	}
}

// Payload returns the event's payload, or nil.
func (e *Event) Payload() Payload {
	return e.payload
}

// SetPayload attaches p, releasing any payload previously attached.
func (e *Event) SetPayload(p Payload) {
	old := e.payload
	e.payload = p
	if old == nil {
		return
	}
	// Only Custom payloads hold releasable state; re-attaching the same one
	// must not destroy it.
	if c, ok := old.(*Custom); ok {
		if same, ok := p.(*Custom); ok && same == c {
			return
		}
	}
	Release(old)
}

// Release frees the payload. The event must not be used afterwards.
func (e *Event) Release() {
	if e == nil {
		return
	}
	Release(e.payload)
	e.payload = nil
}

// String renders a short description for logs.
func (e *Event) String() string {
	return fmt.Sprintf("%s#%d(%s)", e.Name, e.ID, e.Priority)
}

// TruncateName cuts s to at most MaxNameLen bytes without splitting a rune.
func TruncateName(s string) string {
	if len(s) <= MaxNameLen {
		return s
	}
	cut := MaxNameLen
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
