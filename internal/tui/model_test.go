package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/contractor/internal/events"
	"github.com/aristath/contractor/internal/orchestrator"
	"github.com/aristath/contractor/internal/scheduler"
)

type fakeController struct {
	summary  orchestrator.PhaseSummary
	phaseErr error
	retried  []string
	skipped  []string
	resets   int
	skipErr  error
}

func (f *fakeController) ExecuteNextPhase(ctx context.Context) (orchestrator.PhaseSummary, error) {
	return f.summary, f.phaseErr
}

func (f *fakeController) Retry(taskID string) (*scheduler.Task, error) {
	f.retried = append(f.retried, taskID)
	return &scheduler.Task{ID: taskID}, nil
}

func (f *fakeController) Skip(taskID string) (*scheduler.Task, error) {
	if f.skipErr != nil {
		return nil, f.skipErr
	}
	f.skipped = append(f.skipped, taskID)
	return &scheduler.Task{ID: taskID}, nil
}

func (f *fakeController) Reset(ctx context.Context) error {
	f.resets++
	return nil
}

func started() events.ProjectStartedEvent {
	return events.ProjectStartedEvent{
		ProjectID: "p1",
		Phases:    []string{"planning", "permitting", "framing"},
		Tasks: []events.TaskInfo{
			{ID: "1", Agent: "Architect", Phase: "planning", Status: "pending"},
			{ID: "2", Agent: "Permitting", Phase: "permitting", Status: "pending", DependsOn: []string{"1"}},
			{ID: "3", Agent: "Carpenter", Phase: "framing", Status: "pending", DependsOn: []string{"2"}},
		},
		Timestamp: time.Now(),
	}
}

func newTestModel(t *testing.T, ctrl Controller) Model {
	t.Helper()
	bus := events.NewEventBus()
	t.Cleanup(bus.Close)

	m := New(context.Background(), bus, ctrl)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return updated.(Model)
}

func send(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		updated, _ := m.Update(msg)
		m = updated.(Model)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_EventsReachPanes(t *testing.T) {
	m := newTestModel(t, nil)
	m = send(t, m,
		started(),
		events.TaskTransitionEvent{ID: "1", From: "pending", To: "ready"},
		events.TaskTransitionEvent{ID: "1", From: "ready", To: "in_progress"},
		events.TaskStartedEvent{ID: "1", Agent: "Architect", Timestamp: time.Now()},
		events.TaskProgressEvent{ID: "1", Kind: "tool", Tool: "draw"},
		events.TaskTransitionEvent{ID: "1", From: "in_progress", To: "completed"},
		events.TaskCompletedEvent{ID: "1", Result: "plans drawn", Usage: events.Usage{Total: 15}},
		events.PhaseAdvancedEvent{From: "planning", To: "permitting"},
		events.ProjectProgressEvent{Status: "in_progress", Phase: "permitting", Total: 3, Completed: 1, Pending: 2, Percent: 33.3},
	)

	task, ok := m.taskPane.Task("1")
	if !ok {
		t.Fatal("task 1 not tracked")
	}
	if task.Status != "completed" {
		t.Errorf("task status = %q, want completed", task.Status)
	}
	out := strings.Join(task.Output, "\n")
	for _, want := range []string{"-> draw", "plans drawn", "15 tokens"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if got := m.phasePane.Active(); got != "permitting" {
		t.Errorf("active phase = %q, want permitting", got)
	}
	if done, total := m.phasePane.Counts("planning"); done != 1 || total != 1 {
		t.Errorf("planning counts = %d/%d, want 1/1", done, total)
	}
	if m.progressPane.completed != 1 || m.progressPane.tokens != 15 {
		t.Errorf("progress = %d completed, %d tokens", m.progressPane.completed, m.progressPane.tokens)
	}

	view := m.View()
	for _, want := range []string{"Tasks", "Phases", "Progress", "permitting"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_ResetClearsPanes(t *testing.T) {
	m := newTestModel(t, nil)
	m = send(t, m,
		started(),
		events.TaskTransitionEvent{ID: "1", From: "pending", To: "completed", Skipped: true},
		events.TaskCompletedEvent{ID: "1", Usage: events.Usage{Total: 7}},
		events.PhaseAdvancedEvent{From: "planning", To: "permitting"},
		events.ProjectResetEvent{ProjectID: "p1"},
	)

	task, _ := m.taskPane.Task("1")
	if task.Status != "pending" || task.Skipped || len(task.Output) != 0 {
		t.Errorf("task after reset = %+v", task)
	}
	if got := m.phasePane.Active(); got != "planning" {
		t.Errorf("active phase after reset = %q, want planning", got)
	}
	if done, _ := m.phasePane.Counts("planning"); done != 0 {
		t.Errorf("planning done after reset = %d, want 0", done)
	}
	if m.progressPane.tokens != 0 {
		t.Errorf("tokens after reset = %d, want 0", m.progressPane.tokens)
	}
}

func TestModel_FocusCycles(t *testing.T) {
	m := newTestModel(t, nil)

	tests := []struct {
		key  tea.KeyMsg
		want PaneID
	}{
		{tea.KeyMsg{Type: tea.KeyTab}, PanePhases},
		{tea.KeyMsg{Type: tea.KeyTab}, PaneProgress},
		{tea.KeyMsg{Type: tea.KeyTab}, PaneTasks},
		{tea.KeyMsg{Type: tea.KeyShiftTab}, PaneProgress},
		{runes("1"), PaneTasks},
		{runes("2"), PanePhases},
	}
	for _, tt := range tests {
		m = send(t, m, tt.key)
		if m.focusedPane != tt.want {
			t.Errorf("after %q focus = %d, want %d", tt.key.String(), m.focusedPane, tt.want)
		}
	}
}

func TestModel_SelectionMovesWithKeys(t *testing.T) {
	m := newTestModel(t, nil)
	m = send(t, m, started())

	if got := m.taskPane.SelectedTaskID(); got != "1" {
		t.Fatalf("initial selection = %q, want 1", got)
	}
	m = send(t, m, runes("j"), runes("j"), runes("j"))
	if got := m.taskPane.SelectedTaskID(); got != "3" {
		t.Errorf("selection after j×3 = %q, want 3", got)
	}
	m = send(t, m, runes("k"))
	if got := m.taskPane.SelectedTaskID(); got != "2" {
		t.Errorf("selection after k = %q, want 2", got)
	}
}

func TestModel_ReadOnlyIgnoresActions(t *testing.T) {
	m := newTestModel(t, nil)
	m = send(t, m, started())

	for _, key := range []string{KeyNext, KeyRetry, KeySkip, KeyReset} {
		if cmd := m.command(key); cmd != nil {
			t.Errorf("command(%q) returned a command without a controller", key)
		}
	}
	if !strings.Contains(m.View(), "j/k") || strings.Contains(m.View(), "n: next phase") {
		t.Error("read-only help bar should omit action keys")
	}
}

func TestModel_Actions(t *testing.T) {
	ctrl := &fakeController{
		summary: orchestrator.PhaseSummary{Phase: "planning", Completed: 1},
	}
	m := newTestModel(t, ctrl)
	m = send(t, m, started(), runes("j"))

	cmd := m.command(KeyNext)
	if cmd == nil {
		t.Fatal("next phase returned no command")
	}
	if !m.busy {
		t.Error("model should be busy while a phase runs")
	}
	if again := m.command(KeyNext); again != nil {
		t.Error("second next-phase while busy should be ignored")
	}
	m = send(t, m, cmd())
	if m.busy {
		t.Error("model still busy after phase result")
	}
	if !strings.Contains(m.Status(), "planning: 1 completed") {
		t.Errorf("status = %q", m.Status())
	}

	m = send(t, m, m.command(KeySkip)())
	if len(ctrl.skipped) != 1 || ctrl.skipped[0] != "2" {
		t.Errorf("skipped = %v, want [2]", ctrl.skipped)
	}
	m = send(t, m, m.command(KeyRetry)())
	if len(ctrl.retried) != 1 || ctrl.retried[0] != "2" {
		t.Errorf("retried = %v, want [2]", ctrl.retried)
	}
	m = send(t, m, m.command(KeyReset)())
	if ctrl.resets != 1 || m.Status() != "project reset" {
		t.Errorf("resets = %d, status = %q", ctrl.resets, m.Status())
	}
}

func TestModel_ActionErrorsShownInStatus(t *testing.T) {
	ctrl := &fakeController{
		phaseErr: orchestrator.ErrNoProject,
		skipErr:  errors.New("task 1 is completed"),
	}
	m := newTestModel(t, ctrl)
	m = send(t, m, started())

	m = send(t, m, m.command(KeyNext)())
	if !strings.Contains(m.Status(), orchestrator.ErrNoProject.Error()) {
		t.Errorf("status = %q, want no-project error", m.Status())
	}
	if m.busy {
		t.Error("model still busy after failed phase")
	}

	m = send(t, m, m.command(KeySkip)())
	if !strings.Contains(m.Status(), "task 1 is completed") {
		t.Errorf("status = %q, want skip error", m.Status())
	}
}

func TestStatusIcon(t *testing.T) {
	tests := []struct {
		status  string
		skipped bool
		want    string
	}{
		{"in_progress", false, "●"},
		{"completed", false, "✓"},
		{"completed", true, "↷"},
		{"failed", false, "✗"},
		{"blocked", false, "⊘"},
		{"ready", false, "◐"},
		{"pending", false, "○"},
	}
	for _, tt := range tests {
		if got := StatusIcon(tt.status, tt.skipped); !strings.Contains(got, tt.want) {
			t.Errorf("StatusIcon(%q, %v) = %q, want %q", tt.status, tt.skipped, got, tt.want)
		}
	}
}
