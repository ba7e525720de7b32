package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/contractor/internal/events"
)

const phaseComplete = "project_complete"

type phaseState struct {
	total int
	done  int // completed or skipped
}

// PhasePaneModel lists the project phases with per-phase completion and
// marks the active one.
type PhasePaneModel struct {
	phases   []string
	counts   map[string]*phaseState
	taskPh   map[string]string // taskID -> phase
	terminal map[string]bool   // taskID -> counted as done
	active   string
	width    int
	height   int
	focused  bool
}

// NewPhasePaneModel creates a new phase pane model.
func NewPhasePaneModel() PhasePaneModel {
	return PhasePaneModel{
		counts:   make(map[string]*phaseState),
		taskPh:   make(map[string]string),
		terminal: make(map[string]bool),
	}
}

// Update handles messages for the phase pane.
func (m PhasePaneModel) Update(msg tea.Msg) (PhasePaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.ProjectStartedEvent:
		m.phases = append([]string(nil), msg.Phases...)
		m.counts = make(map[string]*phaseState, len(msg.Phases))
		m.taskPh = make(map[string]string, len(msg.Tasks))
		m.terminal = make(map[string]bool, len(msg.Tasks))
		for _, p := range msg.Phases {
			m.counts[p] = &phaseState{}
		}
		for _, t := range msg.Tasks {
			m.taskPh[t.ID] = t.Phase
			if st, ok := m.counts[t.Phase]; ok {
				st.total++
			}
		}
		m.active = m.firstOpen()

	case events.TaskTransitionEvent:
		phase, ok := m.taskPh[msg.ID]
		if !ok {
			break
		}
		done := msg.To == "completed"
		if done != m.terminal[msg.ID] {
			m.terminal[msg.ID] = done
			if st, ok := m.counts[phase]; ok {
				if done {
					st.done++
				} else {
					st.done--
				}
			}
		}

	case events.PhaseAdvancedEvent:
		m.active = msg.To

	case events.ProjectProgressEvent:
		if msg.Phase != "" {
			m.active = msg.Phase
		}

	case events.ProjectResetEvent:
		for _, st := range m.counts {
			st.done = 0
		}
		m.terminal = make(map[string]bool, len(m.taskPh))
		m.active = m.firstOpen()
	}

	return m, nil
}

// Active returns the phase currently marked active.
func (m PhasePaneModel) Active() string {
	return m.active
}

// Counts returns done and total task counts for a phase.
func (m PhasePaneModel) Counts(phase string) (done, total int) {
	st, ok := m.counts[phase]
	if !ok {
		return 0, 0
	}
	return st.done, st.total
}

func (m PhasePaneModel) firstOpen() string {
	for _, p := range m.phases {
		if st := m.counts[p]; st.total > st.done {
			return p
		}
	}
	return phaseComplete
}

// View renders the phase pane.
func (m PhasePaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Phases")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	if len(m.phases) == 0 {
		b.WriteString(StyleStatusPending.Render("No project"))
	}
	for _, p := range m.phases {
		st := m.counts[p]
		marker := "  "
		line := fmt.Sprintf("%-18s %d/%d", p, st.done, st.total)
		switch {
		case p == m.active:
			marker = "> "
			line = StyleActivePhase.Render(line)
		case st.total == 0:
			line = StyleStatusPending.Render(line)
		case st.done == st.total:
			line = StyleStatusComplete.Render(line)
		}
		b.WriteString(marker + line + "\n")
	}
	if len(m.phases) > 0 && m.active == phaseComplete {
		b.WriteString("\n" + StyleStatusComplete.Render("Project complete"))
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

// SetSize updates the pane dimensions.
func (m *PhasePaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *PhasePaneModel) SetFocused(focused bool) {
	m.focused = focused
}
