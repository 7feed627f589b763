package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/goon/internal/diag"
	"github.com/mattjoyce/goon/internal/report"
)

func renderDiagnostics(log []diag.Diagnostic, theme report.Theme, width int) string {
	innerWidth := width - 4

	if len(log) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("DIAGNOSTICS"),
			theme.Dim.Render("  Waiting for diagnostics..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, d := range log {
		if i >= visibleDiagnostics {
			break
		}
		lines = append(lines, formatDiagnostic(d, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("DIAGNOSTICS"),
		strings.Join(lines, "\n"),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatDiagnostic(d diag.Diagnostic, theme report.Theme) string {
	ts := theme.Dim.Render(d.At.Local().Format("15:04:05"))

	var kindStyle lipgloss.Style
	switch d.Kind {
	case diag.KindHandlerFailed, diag.KindQueueOverflow:
		kindStyle = theme.Failed
	case diag.KindStateChanged:
		kindStyle = theme.Highlight
	case diag.KindHandlerRegistered:
		kindStyle = theme.OK
	default:
		kindStyle = theme.Dim
	}
	kind := kindStyle.Render(fmt.Sprintf("%-20s", d.Kind))

	return fmt.Sprintf("%s %s %s", ts, kind, describe(d))
}

// describe picks the fields worth a glance out of a diagnostic payload.
func describe(d diag.Diagnostic) string {
	data := make(map[string]any)
	_ = json.Unmarshal(d.Data, &data)

	var parts []string
	if from, ok := data["from"].(string); ok {
		to, _ := data["to"].(string)
		parts = append(parts, from+" → "+to)
	}
	if h, ok := data["handler"].(string); ok {
		parts = append(parts, h)
	}
	if ev, ok := data["event"].(string); ok {
		parts = append(parts, ev)
	}
	if n, ok := data["cleared"].(float64); ok {
		parts = append(parts, fmt.Sprintf("%d cleared", int(n)))
	}
	if msg, ok := data["error"].(string); ok {
		parts = append(parts, msg)
	}

	if len(parts) == 0 {
		raw := string(d.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}
	return strings.Join(parts, " ")
}
