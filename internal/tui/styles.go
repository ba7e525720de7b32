package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Border styles
var (
	StyleFocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62"))

	StyleUnfocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))
)

// Status styles
var (
	StyleStatusRunning = lipgloss.NewStyle().
				Foreground(lipgloss.Color("yellow")).
				Bold(true)

	StyleStatusComplete = lipgloss.NewStyle().
				Foreground(lipgloss.Color("green")).
				Bold(true)

	StyleStatusFailed = lipgloss.NewStyle().
				Foreground(lipgloss.Color("red")).
				Bold(true)

	StyleStatusBlocked = lipgloss.NewStyle().
				Foreground(lipgloss.Color("magenta"))

	StyleStatusReady = lipgloss.NewStyle().
				Foreground(lipgloss.Color("cyan"))

	StyleStatusPending = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)

// UI element styles
var (
	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	StyleActivePhase = lipgloss.NewStyle().
				Foreground(lipgloss.Color("62")).
				Bold(true)

	StyleSelected = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0"))

	StyleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// StatusIcon returns a styled indicator for a task status.
func StatusIcon(status string, skipped bool) string {
	switch status {
	case "in_progress":
		return StyleStatusRunning.Render("●")
	case "completed":
		if skipped {
			return StyleStatusComplete.Render("↷")
		}
		return StyleStatusComplete.Render("✓")
	case "failed":
		return StyleStatusFailed.Render("✗")
	case "blocked":
		return StyleStatusBlocked.Render("⊘")
	case "ready":
		return StyleStatusReady.Render("◐")
	default:
		return StyleStatusPending.Render("○")
	}
}
