// Package report renders engine statistics and run history for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mattjoyce/goon/internal/engine"
	"github.com/mattjoyce/goon/internal/history"
)

// Stats writes the context summary followed by one row per handler in
// traversal order.
func Stats(w io.Writer, snap engine.Snapshot, theme Theme) error {
	summary := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("Goon Context Statistics"),
		field(theme, "Context", fmt.Sprintf("%s (ID: %d)", snap.Name, snap.ID)),
		field(theme, "Run", snap.RunID),
		field(theme, "State", snap.State),
		field(theme, "Order", snap.Order),
		field(theme, "Handlers", strconv.Itoa(len(snap.Handlers))),
		field(theme, "Queue", fmt.Sprintf("%d/%d (rejected %d)", snap.QueueLen, snap.QueueCap, snap.Rejected)),
		field(theme, "Cache", fmt.Sprintf("%d/%d (evicted %d)", snap.CacheLen, snap.CacheCap, snap.Evictions)),
		field(theme, "Pool", fmt.Sprintf("%d/%d (in use %d)", snap.PoolLen, snap.PoolCap, snap.PoolInUse)),
		field(theme, "Emitted", strconv.FormatUint(snap.Emitted, 10)),
		field(theme, "Processed", strconv.FormatUint(snap.Processed, 10)),
		field(theme, "Uptime", FormatDuration(snap.Uptime)),
	)

	_, err := fmt.Fprintf(w, "%s\n%s\n", theme.Border.Render(summary), handlerTable(theme, snap.Handlers))
	return err
}

// Run writes one history entry with its handler table.
func Run(w io.Writer, r history.Run, theme Theme) error {
	status := theme.OK.Render(r.FinalState)
	if r.LastError != "" {
		status = theme.Failed.Render(r.FinalState + ": " + r.LastError)
	}
	summary := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("Run "+r.ID),
		field(theme, "Context", fmt.Sprintf("%s (ID: %d)", r.ContextName, r.ContextID)),
		field(theme, "Status", status),
		field(theme, "Config", orNone(r.ConfigPath)),
		field(theme, "Started", r.StartedAt.Format(time.RFC3339)),
		field(theme, "Duration", r.Duration.Round(time.Microsecond).String()),
		field(theme, "Events", fmt.Sprintf("%d emitted, %d processed, %d rejected", r.Emitted, r.Processed, r.Rejected)),
		field(theme, "Errors", strconv.FormatUint(r.HandlerErrors, 10)),
	)

	_, err := fmt.Fprintf(w, "%s\n%s\n", theme.Border.Render(summary), handlerTable(theme, r.Handlers))
	return err
}

// History writes a table of runs, newest first as given.
func History(w io.Writer, runs []history.Run, theme Theme) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, theme.Dim.Render("no runs recorded"))
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(theme.Dim).
		Headers("RUN", "CONTEXT", "STARTED", "DURATION", "PROCESSED", "ERRORS", "STATE").
		StyleFunc(cellStyle(theme))
	for _, r := range runs {
		t.Row(
			r.ID,
			r.ContextName,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Duration.Round(time.Millisecond).String(),
			strconv.FormatUint(r.Processed, 10),
			strconv.FormatUint(r.HandlerErrors, 10),
			r.FinalState,
		)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

// JSON renders v as indented JSON, the machine-readable form of every report.
func JSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func handlerTable(theme Theme, handlers []engine.HandlerSnapshot) string {
	if len(handlers) == 0 {
		return theme.Dim.Render("no handlers registered")
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(theme.Dim).
		Headers("ID", "HANDLER", "ENABLED", "CALLS", "ERRORS", "AVG MS").
		StyleFunc(cellStyle(theme))
	for _, h := range handlers {
		enabled := "yes"
		if !h.Enabled {
			enabled = "no"
		}
		t.Row(
			strconv.FormatUint(uint64(h.ID), 10),
			h.Name,
			enabled,
			strconv.FormatUint(h.Calls, 10),
			strconv.FormatUint(h.Errors, 10),
			strconv.FormatFloat(h.AvgExecMillis, 'f', 3, 64),
		)
	}
	return t.String()
}

func cellStyle(theme Theme) func(row, col int) lipgloss.Style {
	return func(row, _ int) lipgloss.Style {
		if row == table.HeaderRow {
			return theme.Header
		}
		return theme.Cell
	}
}

func field(theme Theme, label, value string) string {
	return theme.Label.Render(fmt.Sprintf("%-10s", label)) + " " + value
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "<none>"
	}
	return s
}

// FormatDuration renders d at a precision suited to its size.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.3fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
