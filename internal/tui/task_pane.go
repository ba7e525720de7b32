package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/contractor/internal/events"
)

const taskListWidth = 28

// TaskState is the displayed state of a single task.
type TaskState struct {
	TaskID      string
	Agent       string
	Description string
	Phase       string
	Status      string
	Skipped     bool
	Output      []string
	StartTime   time.Time
	Duration    time.Duration
}

// TaskPaneModel is the task list plus the selected task's output viewport.
type TaskPaneModel struct {
	tasks       map[string]*TaskState // taskID -> state
	taskOrder   []string              // breakdown order for display
	selectedIdx int                   // which task is selected in list
	viewport    viewport.Model        // scrollable output viewport
	width       int
	height      int
	focused     bool
	updateTag   int // for debouncing
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: viewport.New(0, 0),
	}
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.ProjectStartedEvent:
		m.tasks = make(map[string]*TaskState, len(msg.Tasks))
		m.taskOrder = m.taskOrder[:0]
		m.selectedIdx = 0
		for _, t := range msg.Tasks {
			m.tasks[t.ID] = &TaskState{
				TaskID:      t.ID,
				Agent:       t.Agent,
				Description: t.Description,
				Phase:       t.Phase,
				Status:      t.Status,
			}
			m.taskOrder = append(m.taskOrder, t.ID)
		}
		m.updateViewportContent()

	case events.TaskTransitionEvent:
		if task, ok := m.tasks[msg.ID]; ok {
			task.Status = msg.To
			task.Skipped = msg.Skipped
			if msg.Skipped {
				task.Output = append(task.Output, "[Skipped]")
			}
			if msg.From == "blocked" || msg.To == "blocked" {
				task.Output = append(task.Output, fmt.Sprintf("[%s -> %s: %s]", msg.From, msg.To, msg.Reason))
			}
			m.refreshIfSelected(msg.ID)
		}

	case events.TaskStartedEvent:
		if task, ok := m.tasks[msg.ID]; ok {
			task.StartTime = msg.Timestamp
			header := fmt.Sprintf("[%s started %s]", task.Agent, msg.Timestamp.Format(time.Kitchen))
			if msg.Attempt > 0 {
				header = fmt.Sprintf("[%s started %s, retry %d]", task.Agent, msg.Timestamp.Format(time.Kitchen), msg.Attempt)
			}
			task.Output = append(task.Output, header)
			m.refreshIfSelected(msg.ID)
		}

	case events.TaskProgressEvent:
		if task, ok := m.tasks[msg.ID]; ok {
			line := msg.Line
			if msg.Kind == "tool" {
				line = "-> " + msg.Tool
			}
			task.Output = append(task.Output, line)
			// Progress can be chatty; debounce viewport refreshes.
			if m.selectedTaskID() == msg.ID {
				m.updateTag++
				tag := m.updateTag
				return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
					return tickMsg{tag: tag}
				})
			}
		}

	case events.TaskCompletedEvent:
		if task, ok := m.tasks[msg.ID]; ok {
			task.Duration = msg.Duration
			task.Output = append(task.Output, msg.Result, fmt.Sprintf("\n[Completed in %v, %d tokens]", msg.Duration, msg.Usage.Total))
			m.refreshIfSelected(msg.ID)
		}

	case events.TaskFailedEvent:
		if task, ok := m.tasks[msg.ID]; ok {
			task.Duration = msg.Duration
			line := fmt.Sprintf("\n[Failed (%s): %v]", msg.Reason, msg.Err)
			if len(msg.Blocked) > 0 {
				line += fmt.Sprintf("\n[Blocked: %s]", strings.Join(msg.Blocked, ", "))
			}
			task.Output = append(task.Output, line)
			m.refreshIfSelected(msg.ID)
		}

	case events.ProjectResetEvent:
		for _, task := range m.tasks {
			task.Status = "pending"
			task.Skipped = false
			task.Output = nil
			task.Duration = 0
		}
		m.updateViewportContent()

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	viewportWidth := m.width - taskListWidth - 4
	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(taskListWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.taskOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, id := range m.taskOrder {
		task := m.tasks[id]
		label := fmt.Sprintf("%s %s", task.TaskID, task.Agent)
		if len(label) > width-4 {
			label = label[:width-7] + "..."
		}
		line := fmt.Sprintf("%s %s", StatusIcon(task.Status, task.Skipped), label)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// SelectedTaskID returns the id of the highlighted task, or "".
func (m TaskPaneModel) SelectedTaskID() string {
	return m.selectedTaskID()
}

// Task returns the displayed state of a task.
func (m TaskPaneModel) Task(id string) (TaskState, bool) {
	task, ok := m.tasks[id]
	if !ok {
		return TaskState{}, false
	}
	return *task, true
}

func (m TaskPaneModel) selectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.taskOrder) {
		return m.taskOrder[m.selectedIdx]
	}
	return ""
}

func (m *TaskPaneModel) refreshIfSelected(id string) {
	if m.selectedTaskID() == id {
		m.updateViewportContent()
	}
}

func (m *TaskPaneModel) updateViewportContent() {
	task, ok := m.tasks[m.selectedTaskID()]
	if !ok {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	header := fmt.Sprintf("%s [%s] %s\n%s\n", task.TaskID, task.Phase, task.Agent, task.Description)
	m.viewport.SetContent(header + strings.Join(task.Output, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-taskListWidth-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
