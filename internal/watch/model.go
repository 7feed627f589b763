// Package watch is the live terminal view behind `goon run --watch`. It
// follows a lingering engine through worker snapshots and the diagnostics
// hub; it never touches the engine itself.
package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/goon/internal/diag"
	"github.com/mattjoyce/goon/internal/engine"
	"github.com/mattjoyce/goon/internal/report"
)

const (
	maxDiagnostics     = 50
	visibleDiagnostics = 10
	defaultWidth       = 100
)

type snapshotMsg engine.Snapshot

type diagnosticMsg diag.Diagnostic

// loopDoneMsg means the worker loop has returned and no more snapshots
// will arrive.
type loopDoneMsg struct{}

type clockMsg time.Time

// Model is the bubbletea model for the watch view.
type Model struct {
	width  int
	height int

	snap     engine.Snapshot
	diagLog  []diag.Diagnostic
	failures int
	done     bool

	ticker   Ticker
	activity Activity
	handlers table.Model
	theme    report.Theme

	snaps <-chan engine.Snapshot
	diags <-chan diag.Diagnostic
	now   func() time.Time
}

// New builds a model that starts from initial and then follows snaps until
// the channel is closed. diags may be nil.
func New(initial engine.Snapshot, snaps <-chan engine.Snapshot, diags <-chan diag.Diagnostic) Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 4},
			{Title: "Handler", Width: 20},
			{Title: "On", Width: 3},
			{Title: "Calls", Width: 8},
			{Title: "Errors", Width: 8},
			{Title: "Avg ms", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	m := Model{
		snap:     initial,
		ticker:   NewTicker(),
		handlers: t,
		theme:    report.NewDefaultTheme(),
		snaps:    snaps,
		diags:    diags,
		now:      time.Now,
	}
	m.handlers.SetRows(handlerRows(initial))
	return m
}

// WithBacklog seeds the diagnostics panel with diagnostics published before
// the view subscribed. ds is oldest-first, as the hub returns it.
func (m Model) WithBacklog(ds []diag.Diagnostic) Model {
	for _, d := range ds {
		m = m.addDiagnostic(d)
	}
	return m
}

func (m Model) addDiagnostic(d diag.Diagnostic) Model {
	m.diagLog = append([]diag.Diagnostic{d}, m.diagLog...)
	if len(m.diagLog) > maxDiagnostics {
		m.diagLog = m.diagLog[:maxDiagnostics]
	}
	if d.Kind == diag.KindHandlerFailed {
		m.failures++
	}
	return m
}

// Snapshot returns the latest snapshot the model has seen.
func (m Model) Snapshot() engine.Snapshot { return m.snap }

// Done reports whether the worker loop has finished.
func (m Model) Done() bool { return m.done }

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForSnapshot(m.snaps),
		waitForDiagnostic(m.diags),
		clockTick(),
	)
}

func waitForSnapshot(ch <-chan engine.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return loopDoneMsg{}
		}
		return snapshotMsg(s)
	}
}

func waitForDiagnostic(ch <-chan diag.Diagnostic) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		d, ok := <-ch
		if !ok {
			return nil
		}
		return diagnosticMsg(d)
	}
}

func clockTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return clockMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.handlers.SetWidth(msg.Width - 6)

	case clockMsg:
		m.activity.Decay(time.Time(msg))
		return m, clockTick()

	case snapshotMsg:
		s := engine.Snapshot(msg)
		if s.Processed > m.snap.Processed {
			m.activity.Pulse(m.now())
		}
		m.snap = s
		m.ticker.Advance()
		m.handlers.SetRows(handlerRows(s))
		return m, waitForSnapshot(m.snaps)

	case loopDoneMsg:
		m.done = true
		return m, tea.Quit

	case diagnosticMsg:
		m = m.addDiagnostic(diag.Diagnostic(msg))
		return m, waitForDiagnostic(m.diags)
	}

	var cmd tea.Cmd
	m.handlers, cmd = m.handlers.Update(msg)
	return m, cmd
}

func handlerRows(s engine.Snapshot) []table.Row {
	rows := make([]table.Row, 0, len(s.Handlers))
	for _, h := range s.Handlers {
		on := "yes"
		if !h.Enabled {
			on = "no"
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", h.ID),
			h.Name,
			on,
			fmt.Sprintf("%d", h.Calls),
			fmt.Sprintf("%d", h.Errors),
			fmt.Sprintf("%.3f", h.AvgExecMillis),
		})
	}
	return rows
}

func (m Model) View() string {
	width := m.width
	if width == 0 {
		width = defaultWidth
	}

	header := renderHeader(m.snap, m.ticker, m.activity, m.theme, m.now(), width)
	handlers := m.theme.Border.Width(width - 4).Render(lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Title.Render(fmt.Sprintf("HANDLERS (%d failures seen)", m.failures)),
		m.handlers.View(),
	))
	diagnostics := renderDiagnostics(m.diagLog, m.theme, width)

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Stop and report • [↑/↓] Select handler")

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, handlers, diagnostics, help),
	)
}
