package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/contractor/internal/events"
	"github.com/aristath/contractor/internal/orchestrator"
	"github.com/aristath/contractor/internal/scheduler"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PanePhases
	PaneProgress
)

// Controller is the subset of the runner the TUI drives. A nil Controller
// makes the TUI a read-only monitor.
type Controller interface {
	ExecuteNextPhase(ctx context.Context) (orchestrator.PhaseSummary, error)
	Retry(taskID string) (*scheduler.Task, error)
	Skip(taskID string) (*scheduler.Task, error)
	Reset(ctx context.Context) error
}

// actionResultMsg reports the outcome of a controller command.
type actionResultMsg struct {
	text      string
	err       error
	phaseDone bool
}

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	ctx          context.Context
	ctrl         Controller
	taskPane     TaskPaneModel
	phasePane    PhasePaneModel
	progressPane ProgressPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	status       string
	busy         bool // a phase is executing
	width        int
	height       int
	quitting     bool
}

// New creates a new TUI model.
// It subscribes to all events from the event bus using SubscribeAll.
func New(ctx context.Context, eventBus *events.EventBus, ctrl Controller) Model {
	m := Model{
		ctx:          ctx,
		ctrl:         ctrl,
		taskPane:     NewTaskPaneModel(),
		phasePane:    NewPhasePaneModel(),
		progressPane: NewProgressPaneModel(),
		focusedPane:  PaneTasks,
		eventSub:     eventBus.SubscribeAll(256),
	}
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % 3
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + 2) % 3 // +2 is equivalent to -1 mod 3
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PanePhases
			m.updateFocusStates()

		case KeyPane3:
			m.focusedPane = PaneProgress
			m.updateFocusStates()

		case KeyNext, KeyRetry, KeySkip, KeyReset:
			if cmd := m.command(msg.String()); cmd != nil {
				cmds = append(cmds, cmd)
			}

		default:
			if m.focusedPane == PaneTasks {
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case actionResultMsg:
		if msg.phaseDone {
			m.busy = false
		}
		m.status = msg.text
		if msg.err != nil {
			if m.status != "" {
				m.status += ": "
			}
			m.status += StyleStatusFailed.Render(msg.err.Error())
		}

	case tickMsg:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.Event:
		cmds = append(cmds, m.forward(msg)...)
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) forward(e events.Event) []tea.Cmd {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch e.(type) {
	case events.ProjectStartedEvent, events.ProjectResetEvent:
		m.taskPane, cmd = m.taskPane.Update(e)
		cmds = append(cmds, cmd)
		m.phasePane, _ = m.phasePane.Update(e)
		m.progressPane, _ = m.progressPane.Update(e)
	case events.TaskTransitionEvent:
		m.taskPane, cmd = m.taskPane.Update(e)
		cmds = append(cmds, cmd)
		m.phasePane, _ = m.phasePane.Update(e)
	case events.TaskCompletedEvent:
		m.taskPane, cmd = m.taskPane.Update(e)
		cmds = append(cmds, cmd)
		m.progressPane, _ = m.progressPane.Update(e)
	case events.TaskStartedEvent, events.TaskProgressEvent, events.TaskFailedEvent:
		m.taskPane, cmd = m.taskPane.Update(e)
		cmds = append(cmds, cmd)
	case events.PhaseAdvancedEvent:
		m.phasePane, _ = m.phasePane.Update(e)
	case events.ProjectProgressEvent:
		m.phasePane, _ = m.phasePane.Update(e)
		m.progressPane, _ = m.progressPane.Update(e)
	}
	return cmds
}

// command turns an action key into a controller call run off the UI loop.
func (m *Model) command(key string) tea.Cmd {
	if m.ctrl == nil {
		return nil
	}
	ctrl, ctx := m.ctrl, m.ctx
	taskID := m.taskPane.SelectedTaskID()

	switch key {
	case KeyNext:
		if m.busy {
			m.status = "a phase is already running"
			return nil
		}
		m.busy = true
		m.status = "running " + m.phasePane.Active() + "..."
		return func() tea.Msg {
			summary, err := ctrl.ExecuteNextPhase(ctx)
			var phaseErr *orchestrator.PhaseExecutionError
			if err != nil && !errors.As(err, &phaseErr) {
				return actionResultMsg{phaseDone: true, err: err}
			}
			if summary.ProjectComplete {
				return actionResultMsg{phaseDone: true, text: "project complete", err: err}
			}
			return actionResultMsg{
				phaseDone: true,
				text:      fmt.Sprintf("%s: %d completed, %d failed, %d skipped", summary.Phase, summary.Completed, summary.Failed, summary.Skipped),
				err:       err,
			}
		}

	case KeyRetry, KeySkip:
		if taskID == "" {
			return nil
		}
		return func() tea.Msg {
			var err error
			verb := "retrying"
			if key == KeyRetry {
				_, err = ctrl.Retry(taskID)
			} else {
				verb = "skipped"
				_, err = ctrl.Skip(taskID)
			}
			if err != nil {
				return actionResultMsg{err: err}
			}
			return actionResultMsg{text: fmt.Sprintf("%s %s", verb, taskID)}
		}

	case KeyReset:
		return func() tea.Msg {
			if err := ctrl.Reset(ctx); err != nil {
				return actionResultMsg{err: err}
			}
			return actionResultMsg{text: "project reset"}
		}
	}
	return nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	rightPane := lipgloss.JoinVertical(lipgloss.Left, m.phasePane.View(), m.progressPane.View())
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, m.taskPane.View(), rightPane)

	bottom := HelpView(m.ctrl != nil)
	if m.status != "" {
		bottom = m.status + "  " + bottom
	}
	return lipgloss.JoinVertical(lipgloss.Left, mainContent, bottom)
}

// Status returns the current status line text.
func (m Model) Status() string {
	return m.status
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 60) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // help bar
	phaseHeight := (availableHeight * 55) / 100

	m.taskPane.SetSize(leftWidth, availableHeight)
	m.phasePane.SetSize(rightWidth, phaseHeight)
	m.progressPane.SetSize(rightWidth, availableHeight-phaseHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.phasePane.SetFocused(m.focusedPane == PanePhases)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}
