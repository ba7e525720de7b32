package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/contractor/internal/events"
)

// ProgressPaneModel shows project-wide task counts and a completion bar.
type ProgressPaneModel struct {
	status     string
	total      int
	completed  int
	inProgress int
	failed     int
	blocked    int
	pending    int
	skipped    int
	percent    float64
	tokens     int
	width      int
	height     int
	focused    bool
}

// NewProgressPaneModel creates a new progress pane model.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{status: "not_started"}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.ProjectStartedEvent:
		m = ProgressPaneModel{
			status:  "not_started",
			total:   len(msg.Tasks),
			pending: len(msg.Tasks),
			width:   m.width,
			height:  m.height,
			focused: m.focused,
		}

	case events.ProjectProgressEvent:
		m.status = msg.Status
		m.total = msg.Total
		m.completed = msg.Completed
		m.inProgress = msg.InProgress
		m.failed = msg.Failed
		m.blocked = msg.Blocked
		m.pending = msg.Pending
		m.skipped = msg.Skipped
		m.percent = msg.Percent

	case events.TaskCompletedEvent:
		m.tokens += msg.Usage.Total

	case events.ProjectResetEvent:
		m.status = "not_started"
		m.pending = m.total
		m.completed, m.inProgress, m.failed, m.blocked, m.skipped = 0, 0, 0, 0, 0
		m.percent = 0
		m.tokens = 0
	}

	return m, nil
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Status:      %s\n", m.status))
	b.WriteString(fmt.Sprintf("Total:       %d\n", m.total))
	b.WriteString(fmt.Sprintf("Completed:   %s", StyleStatusComplete.Render(fmt.Sprintf("%d", m.completed))))
	if m.skipped > 0 {
		b.WriteString(fmt.Sprintf(" (%d skipped)", m.skipped))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("In progress: %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.inProgress))))
	b.WriteString(fmt.Sprintf("Failed:      %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed))))
	b.WriteString(fmt.Sprintf("Blocked:     %s\n", StyleStatusBlocked.Render(fmt.Sprintf("%d", m.blocked))))
	b.WriteString(fmt.Sprintf("Pending:     %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", m.pending))))
	b.WriteString(fmt.Sprintf("Tokens:      %d\n", m.tokens))
	b.WriteString("\n")

	if m.total > 0 {
		b.WriteString(fmt.Sprintf("[%s] %.0f%%\n", m.bar(min(m.width-12, 40)), m.percent))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func (m ProgressPaneModel) bar(width int) string {
	width = max(width, 1)
	completedWidth := (m.completed * width) / m.total
	failedWidth := ((m.failed + m.blocked) * width) / m.total
	runningWidth := (m.inProgress * width) / m.total
	pendingWidth := width - completedWidth - failedWidth - runningWidth

	bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
	bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
	bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
	bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))
	return bar
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
