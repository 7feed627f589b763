package report

import "github.com/charmbracelet/lipgloss"

// Theme keeps the report and watch colors in one place.
type Theme struct {
	OK      lipgloss.Style
	Running lipgloss.Style
	Failed  lipgloss.Style
	Dim     lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Header    lipgloss.Style
	Label     lipgloss.Style
	Cell      lipgloss.Style
	Highlight lipgloss.Style

	TickerActive   lipgloss.Style
	TickerInactive lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		OK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		Running: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		Failed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple).
			Padding(0, 1),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#61AFEF")).
			Padding(0, 1),
		Label:     lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		Cell:      lipgloss.NewStyle().Padding(0, 1),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		TickerActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		TickerInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}
