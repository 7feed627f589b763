// Package history keeps an append-only record of completed engine runs in
// SQLite. It is read back by the CLI for reporting only; engine state is never
// restored from it.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/goon/internal/engine"
	"github.com/mattjoyce/goon/internal/errs"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 20

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one completed engine run.
type Run struct {
	ID            string                   `json:"id"`
	ContextName   string                   `json:"context"`
	ContextID     uint32                   `json:"context_id"`
	ConfigPath    string                   `json:"config_path,omitempty"`
	ConfigHash    string                   `json:"config_hash,omitempty"`
	DispatchOrder string                   `json:"dispatch_order"`
	FinalState    string                   `json:"final_state"`
	Emitted       uint64                   `json:"emitted"`
	Processed     uint64                   `json:"processed"`
	Rejected      uint64                   `json:"rejected"`
	HandlerErrors uint64                   `json:"handler_errors"`
	StartedAt     time.Time                `json:"started_at"`
	CompletedAt   time.Time                `json:"completed_at"`
	Duration      time.Duration            `json:"duration_ns"`
	LastError     string                   `json:"last_error,omitempty"`
	Handlers      []engine.HandlerSnapshot `json:"handlers,omitempty"`
}

// FromSnapshot builds a Run from the engine's final snapshot.
func FromSnapshot(snap engine.Snapshot, completedAt time.Time, runErr error) Run {
	r := Run{
		ID:            snap.RunID,
		ContextName:   snap.Name,
		ContextID:     snap.ID,
		DispatchOrder: snap.Order,
		FinalState:    snap.State,
		Emitted:       snap.Emitted,
		Processed:     snap.Processed,
		Rejected:      snap.Rejected,
		StartedAt:     snap.StartedAt,
		CompletedAt:   completedAt,
		Duration:      completedAt.Sub(snap.StartedAt),
		Handlers:      snap.Handlers,
	}
	for _, h := range snap.Handlers {
		r.HandlerErrors += h.Errors
	}
	if runErr != nil {
		r.LastError = runErr.Error()
	}
	return r
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record persists a run and its per-handler stats in one transaction and
// returns the run id. A run without an id gets a fresh UUID.
func (s *Store) Record(ctx context.Context, r Run) (string, error) {
	if r.ContextName == "" {
		return "", fmt.Errorf("run context name is empty: %w", errs.ErrInvalidParam)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO run_log(
  id, context_name, context_id, config_path, config_hash, dispatch_order,
  final_state, emitted, processed, rejected, handler_errors,
  started_at, completed_at, duration_ms, last_error
) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		r.ID, r.ContextName, int64(r.ContextID), nullable(r.ConfigPath), nullable(r.ConfigHash), r.DispatchOrder,
		r.FinalState, int64(r.Emitted), int64(r.Processed), int64(r.Rejected), int64(r.HandlerErrors),
		formatTime(r.StartedAt), formatTime(r.CompletedAt), millis(r.Duration), nullable(r.LastError),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for i, h := range r.Handlers {
		_, err = tx.ExecContext(ctx, `
INSERT INTO handler_stats(run_id, position, handler_id, name, enabled, calls, errors, avg_exec_ms)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, r.ID, i, int64(h.ID), h.Name, h.Enabled, int64(h.Calls), int64(h.Errors), h.AvgExecMillis)
		if err != nil {
			return "", fmt.Errorf("insert handler stats %q: %w", h.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit tx: %w", err)
	}
	return r.ID, nil
}

const runColumns = `id, context_name, context_id, config_path, config_hash, dispatch_order,
  final_state, emitted, processed, rejected, handler_errors,
  started_at, completed_at, duration_ms, last_error`

// List returns the most recent runs, newest first, without handler stats.
// A non-positive limit means DefaultListLimit.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM run_log ORDER BY started_at DESC, id DESC LIMIT ?;", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// Get returns one run with its handler stats in traversal order.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM run_log WHERE id = ?;", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %q: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return Run{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT handler_id, name, enabled, calls, errors, avg_exec_ms
FROM handler_stats WHERE run_id = ? ORDER BY position;
`, id)
	if err != nil {
		return Run{}, fmt.Errorf("read handler stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h engine.HandlerSnapshot
		if err := rows.Scan(&h.ID, &h.Name, &h.Enabled, &h.Calls, &h.Errors, &h.AvgExecMillis); err != nil {
			return Run{}, fmt.Errorf("scan handler stats: %w", err)
		}
		r.Handlers = append(r.Handlers, h)
	}
	if err := rows.Err(); err != nil {
		return Run{}, fmt.Errorf("read handler stats: %w", err)
	}
	return r, nil
}

// Prune deletes runs that started before cutoff, together with their
// handler stats, and returns how many runs went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	before := formatTime(cutoff)
	if _, err := tx.ExecContext(ctx, `
DELETE FROM handler_stats
WHERE run_id IN (SELECT id FROM run_log WHERE started_at < ?);
`, before); err != nil {
		return 0, fmt.Errorf("prune handler stats: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM run_log WHERE started_at < ?;", before)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                        Run
		cfgPath, cfgHash, lastEr sql.NullString
		started, completed       string
		durMillis                float64
	)
	err := sc.Scan(&r.ID, &r.ContextName, &r.ContextID, &cfgPath, &cfgHash, &r.DispatchOrder,
		&r.FinalState, &r.Emitted, &r.Processed, &r.Rejected, &r.HandlerErrors,
		&started, &completed, &durMillis, &lastEr)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.ConfigPath = cfgPath.String
	r.ConfigHash = cfgHash.String
	r.LastError = lastEr.String
	r.Duration = time.Duration(durMillis * float64(time.Millisecond))
	if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if r.CompletedAt, err = time.Parse(timeLayout, completed); err != nil {
		return Run{}, fmt.Errorf("parse completed_at: %w", err)
	}
	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
