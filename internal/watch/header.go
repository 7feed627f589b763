package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/goon/internal/engine"
	"github.com/mattjoyce/goon/internal/report"
)

func stateStyle(state string, theme report.Theme) lipgloss.Style {
	switch state {
	case engine.StateRunning.String():
		return theme.OK
	case engine.StatePaused.String(), engine.StateStopping.String():
		return theme.Running
	case engine.StateError.String():
		return theme.Failed
	default:
		return theme.Dim
	}
}

func renderHeader(snap engine.Snapshot, ticker Ticker, activity Activity, theme report.Theme, now time.Time, width int) string {
	innerWidth := width - 4

	title := fmt.Sprintf(" GOON WATCH %s  %s %s",
		theme.Highlight.Render(ticker.Current()),
		theme.Title.Render(snap.Name),
		stateStyle(snap.State, theme).Render(strings.ToUpper(snap.State)),
	)
	clock := theme.Dim.Render(now.Format("15:04:05"))
	pad := max(innerWidth-lipgloss.Width(title)-lipgloss.Width(clock)-4, 1)
	titleLine := title + strings.Repeat(" ", pad) + clock + " "

	lastActive := "never"
	if !activity.Last().IsZero() {
		lastActive = now.Sub(activity.Last()).Round(time.Second).String() + " ago"
	}

	stats := fmt.Sprintf(" Queue %d/%d • Processed %d • Rejected %d • Cache %d/%d • Pool %d/%d • Up %s",
		snap.QueueLen, snap.QueueCap,
		snap.Processed, snap.Rejected,
		snap.CacheLen, snap.CacheCap,
		snap.PoolInUse, snap.PoolCap,
		report.FormatDuration(snap.Uptime),
	)
	activityLine := fmt.Sprintf(" Activity %s  last %s • ticks %d",
		activity.Render(theme), lastActive, ticker.Ticks())

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, stats, activityLine)
	return theme.Border.Width(innerWidth).Render(content)
}
