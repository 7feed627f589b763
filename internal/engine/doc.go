// Package engine is the in-process event dispatcher.
//
// An Engine owns a bounded FIFO queue of events, a registry of named handlers,
// and two side-channel resources handlers may use: a bounded cache and a
// bounded scratch-buffer pool. Producers Emit events; ProcessEvents drains the
// queue, invoking every enabled handler for each event and recording per-handler
// statistics.
//
// Key features:
//   - Serial dispatch on the caller's goroutine (no internal concurrency)
//   - Newest-first handler traversal by default, FIFO via WithDispatchOrder
//   - Cumulative-mean timing, call and error counters per handler
//   - Explicit lifecycle that gates ProcessEvents on the Running state
//   - Structured logs, OTel metrics/spans and diagnostics on a diag.Hub
//
// Error handling:
//   - A handler error is counted and logged; dispatch continues with the
//     remaining handlers for the same event
//   - A handler panic is recovered and counted as an error
//   - Queue overflow on Emit → errs.ErrOverflow, the event stays with the caller
//   - ProcessEvents outside Running → errs.ErrInvalidState, no work done
//
// Concurrency:
//   - An Engine is not safe for concurrent use. Hosts that emit from several
//     goroutines must serialize access themselves.
package engine
