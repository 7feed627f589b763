package engine

import (
	"context"
	"fmt"

	"github.com/mattjoyce/goon/internal/diag"
	"github.com/mattjoyce/goon/internal/errs"
)

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

// Start moves Idle, Initializing or Paused to Running.
func (e *Engine) Start() error {
	switch e.state {
	case StateIdle, StateInitializing, StatePaused:
	default:
		return e.refuse("start")
	}
	e.transition(StateRunning)
	e.logger.Info("engine started")
	return nil
}

// Pause moves Running to Paused. Emit still queues events while paused.
func (e *Engine) Pause() error {
	if e.state != StateRunning {
		return e.refuse("pause")
	}
	e.transition(StatePaused)
	e.logger.Info("engine paused")
	return nil
}

// Resume moves Paused to Running.
func (e *Engine) Resume() error {
	if e.state != StatePaused {
		return e.refuse("resume")
	}
	e.transition(StateRunning)
	e.logger.Info("engine resumed")
	return nil
}

// Stop moves the engine to Stopping, drains the queue through the dispatch
// loop, then moves to Terminated. It returns the number of events drained.
func (e *Engine) Stop(ctx context.Context) (int, error) {
	if e.state == StateTerminated {
		return 0, e.refuse("stop")
	}
	e.transition(StateStopping)
	e.logger.Info("engine stopping", "pending", e.queue.Len())

	drained := e.drain(ctx)

	e.transition(StateTerminated)
	e.logger.Info("engine stopped", "drained", drained, "processed", e.processed)
	return drained, nil
}

// SetState forces a transition. It is the only way into StateError. Nothing
// leaves StateTerminated.
func (e *Engine) SetState(s State) error {
	if !s.Valid() {
		return fmt.Errorf("set state %s: %w", s, errs.ErrInvalidParam)
	}
	if e.state == StateTerminated && s != StateTerminated {
		return e.refuse("set state " + s.String())
	}
	e.transition(s)
	return nil
}

func (e *Engine) transition(to State) {
	from := e.state
	if from == to {
		return
	}
	e.state = to
	e.logger.Debug("state changed", "from", from.String(), "to", to.String())
	e.hub.Publish(diag.KindStateChanged, map[string]any{
		"context": e.name,
		"from":    from.String(),
		"to":      to.String(),
	})
}

func (e *Engine) refuse(op string) error {
	return fmt.Errorf("%s in state %s: %w", op, e.state, errs.ErrInvalidState)
}
