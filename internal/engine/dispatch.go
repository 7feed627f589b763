package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/mattjoyce/goon/internal/diag"
	"github.com/mattjoyce/goon/internal/errs"
	"github.com/mattjoyce/goon/internal/event"
)

// ProcessEvents drains the queue, dispatching every event to every enabled
// handler, and returns the number of events processed. The engine must be
// Running. ctx carries telemetry only; a drain is not cancellable.
//
// ProcessEvents is not reentrant.
func (e *Engine) ProcessEvents(ctx context.Context) (int, error) {
	if e.state != StateRunning {
		e.logger.Warn("process events refused", "state", e.state.String())
		return 0, fmt.Errorf("process events in state %s: %w", e.state, errs.ErrInvalidState)
	}
	return e.drain(ctx), nil
}

func (e *Engine) drain(ctx context.Context) int {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := e.spans.StartDrainSpan(ctx, e.name, e.runID)
	start := e.clock()

	processed := 0
	for {
		ev, ok := e.queue.Pop()
		if !ok {
			break
		}
		if e.debug {
			e.logger.Debug("processing event", "event", ev.Name, "event_id", ev.ID)
		}

		// Handlers may change the registry; this event sees the registry as
		// it was when the event was popped.
		for _, r := range slices.Clone(e.handlers) {
			if r.enabled {
				e.invoke(ctx, r, ev)
			}
		}

		ev.Release()
		e.processed++
		processed++
	}

	e.recorder.RecordDrain(ctx, processed, e.clock().Sub(start))
	e.spans.EndSpanWithError(span, nil)
	if processed > 0 {
		e.logger.Debug("queue drained", "processed", processed)
	}
	return processed
}

func (e *Engine) invoke(ctx context.Context, r *Registration, ev *event.Event) {
	hctx, span := e.spans.StartHandlerSpan(ctx, r.name, ev.Name, ev.ID)
	start := e.clock()
	err := e.call(hctx, r, ev)
	elapsed := e.clock().Sub(start)

	r.stats.record(elapsed, err != nil)
	e.recorder.RecordHandlerCall(hctx, r.name, elapsed, err)
	e.spans.EndSpanWithError(span, err)

	if err != nil {
		e.logger.Warn("handler failed",
			"handler", r.name,
			"event", ev.Name,
			"event_id", ev.ID,
			"error", err,
		)
		e.hub.Publish(diag.KindHandlerFailed, map[string]any{
			"context":  e.name,
			"handler":  r.name,
			"event":    ev.Name,
			"event_id": ev.ID,
			"error":    err.Error(),
		})
	}
	if e.debug {
		e.logger.Debug("handler executed",
			"handler", r.name,
			"event_id", ev.ID,
			"exec_ms", float64(elapsed.Microseconds())/1000,
		)
	}
}

func (e *Engine) call(ctx context.Context, r *Registration, ev *event.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler %q panicked: %v: %w", r.name, p, errs.ErrFailed)
		}
	}()
	return r.handler.Handle(ctx, e, ev)
}
