package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/goon/internal/errs"
)

// DefaultTickInterval is used by Run when given a non-positive interval.
const DefaultTickInterval = 100 * time.Millisecond

// Worker drives an engine's dispatch loop from the host's goroutine.
type Worker struct {
	eng        *Engine
	running    bool
	iterations uint64
	observe    func(Snapshot)
}

func NewWorker(eng *Engine) (*Worker, error) {
	if eng == nil {
		return nil, fmt.Errorf("new worker: %w", errs.ErrNullInput)
	}
	return &Worker{eng: eng}, nil
}

// Start marks the worker running and starts the engine unless it already
// runs.
func (w *Worker) Start() error {
	if w.eng.State() != StateRunning {
		if err := w.eng.Start(); err != nil {
			return fmt.Errorf("worker start: %w", err)
		}
	}
	w.running = true
	w.eng.logger.Info("worker started")
	return nil
}

// Tick runs one drain. It fails with errs.ErrInvalidState when the worker is
// not running; an engine that is not Running also yields ErrInvalidState but
// still counts as an iteration.
func (w *Worker) Tick(ctx context.Context) (int, error) {
	if !w.running {
		return 0, fmt.Errorf("worker tick: not running: %w", errs.ErrInvalidState)
	}
	n, err := w.eng.ProcessEvents(ctx)
	w.iterations++
	return n, err
}

// Stop marks the worker stopped and stops the engine, returning the number
// of events drained on the way out.
func (w *Worker) Stop(ctx context.Context) (int, error) {
	w.running = false
	n, err := w.eng.Stop(ctx)
	w.eng.logger.Info("worker stopped", "iterations", w.iterations)
	return n, err
}

// Observe registers fn to receive a snapshot after every tick Run makes and
// once more after Run stops the worker. fn runs on Run's goroutine and must
// not call back into the engine.
func (w *Worker) Observe(fn func(Snapshot)) { w.observe = fn }

func (w *Worker) notify() {
	if w.observe != nil {
		w.observe(w.eng.Snapshot())
	}
}

func (w *Worker) Running() bool { return w.running }

func (w *Worker) Iterations() uint64 { return w.iterations }

// Run ticks every interval until ctx is cancelled, then stops the worker,
// draining what is left. Ticks against a paused engine are skipped quietly.
// Run returns early if the engine is terminated elsewhere.
func (w *Worker) Run(ctx context.Context, interval time.Duration) (int, error) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if !w.running {
		if err := w.Start(); err != nil {
			return 0, err
		}
	}

	w.eng.logger.Info("worker loop started", "interval", interval.String())
	defer w.eng.logger.Info("worker loop stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	total := 0
	for {
		select {
		case <-ctx.Done():
			n, err := w.Stop(context.WithoutCancel(ctx))
			w.notify()
			return total + n, err
		case <-ticker.C:
			n, err := w.Tick(ctx)
			total += n
			if err != nil && !errors.Is(err, errs.ErrInvalidState) {
				return total, err
			}
			w.notify()
			if w.eng.State() == StateTerminated {
				w.running = false
				return total, nil
			}
		}
	}
}
