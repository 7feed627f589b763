package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/goon/internal/diag"
	"github.com/mattjoyce/goon/internal/engine"
	"github.com/mattjoyce/goon/internal/watch"
)

// watchInput feeds key presses to the watch view.
var watchInput io.Reader = os.Stdin

// watchRun runs the worker loop on its own goroutine and shows the watch
// view until the user quits, linger elapses or ctx is cancelled. The engine
// belongs to the loop goroutine until watchRun returns.
func watchRun(ctx context.Context, w *engine.Worker, eng *engine.Engine, hub *diag.Hub, interval, linger time.Duration, out io.Writer) error {
	var (
		lctx   context.Context
		cancel context.CancelFunc
	)
	if linger > 0 {
		lctx, cancel = context.WithTimeout(ctx, linger)
	} else {
		lctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	diags, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	// The view only needs the latest snapshot; replace a stale one.
	snaps := make(chan engine.Snapshot, 1)
	w.Observe(func(s engine.Snapshot) {
		select {
		case <-snaps:
		default:
		}
		snaps <- s
	})
	defer w.Observe(nil)

	model := watch.New(eng.Snapshot(), snaps, diags).WithBacklog(hub.SnapshotSince(0))

	done := make(chan error, 1)
	go func() {
		_, err := w.Run(lctx, interval)
		close(snaps)
		done <- err
	}()

	p := tea.NewProgram(model,
		tea.WithInput(watchInput),
		tea.WithOutput(out),
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)
	_, uiErr := p.Run()

	cancel()
	runErr := <-done
	if runErr != nil {
		return runErr
	}
	if uiErr != nil {
		return fmt.Errorf("watch view: %w", uiErr)
	}
	return nil
}
