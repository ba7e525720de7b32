package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask    = "task"
	TopicPhase   = "phase"
	TopicProject = "project"
)

// Event type constants
const (
	EventTypeTaskTransition  = "task.transition"
	EventTypeTaskStarted     = "task.started"
	EventTypeTaskProgress    = "task.progress"
	EventTypeTaskCompleted   = "task.completed"
	EventTypeTaskFailed      = "task.failed"
	EventTypePhaseAdvanced   = "phase.advanced"
	EventTypeProjectStarted  = "project.started"
	EventTypeProjectProgress = "project.progress"
	EventTypeProjectReset    = "project.reset"
)

// TaskInfo is a flat snapshot of a task carried by project events.
type TaskInfo struct {
	ID          string
	Agent       string
	Description string
	Phase       string
	DependsOn   []string
	Status      string
}

// TaskTransitionEvent is published for every task status change.
type TaskTransitionEvent struct {
	ProjectID string
	ID        string
	Agent     string
	Phase     string
	From      string
	To        string
	Skipped   bool
	Reason    string // failure reason, or why a task was blocked/released
	Timestamp time.Time
}

func (e TaskTransitionEvent) EventType() string { return EventTypeTaskTransition }
func (e TaskTransitionEvent) TaskID() string    { return e.ID }

// TaskStartedEvent is published when a task is handed to its worker.
type TaskStartedEvent struct {
	ProjectID   string
	ID          string
	Agent       string
	Description string
	Phase       string
	Attempt     int
	Timestamp   time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskProgressEvent carries a progress line streamed by the worker backend.
type TaskProgressEvent struct {
	ProjectID string
	ID        string
	Agent     string
	Kind      string // "tool", "output", "reasoning"
	Tool      string
	Line      string
	Timestamp time.Time
}

func (e TaskProgressEvent) EventType() string { return EventTypeTaskProgress }
func (e TaskProgressEvent) TaskID() string    { return e.ID }

// Usage is token usage attached to task events.
type Usage struct {
	Input  int
	Output int
	Total  int
}

// TaskCompletedEvent is published when a task completes successfully.
type TaskCompletedEvent struct {
	ProjectID string
	ID        string
	Agent     string
	Result    string
	Usage     Usage
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task fails.
type TaskFailedEvent struct {
	ProjectID string
	ID        string
	Agent     string
	Reason    string
	Err       error
	Blocked   []string // dependents blocked by this failure
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// PhaseAdvancedEvent is published when the phase pointer moves.
type PhaseAdvancedEvent struct {
	ProjectID string
	From      string
	To        string
	Completed int
	Failed    int
	Skipped   int
	Timestamp time.Time
}

func (e PhaseAdvancedEvent) EventType() string { return EventTypePhaseAdvanced }
func (e PhaseAdvancedEvent) TaskID() string    { return "" }

// ProjectStartedEvent is published once a breakdown has been accepted.
type ProjectStartedEvent struct {
	ProjectID   string
	ProjectType string
	Description string
	Phases      []string
	Tasks       []TaskInfo
	Timestamp   time.Time
}

func (e ProjectStartedEvent) EventType() string { return EventTypeProjectStarted }
func (e ProjectStartedEvent) TaskID() string    { return "" }

// ProjectProgressEvent is published when task counts change.
type ProjectProgressEvent struct {
	ProjectID  string
	Status     string
	Phase      string
	Total      int
	Completed  int
	InProgress int
	Failed     int
	Blocked    int
	Pending    int
	Skipped    int
	Percent    float64
	Timestamp  time.Time
}

func (e ProjectProgressEvent) EventType() string { return EventTypeProjectProgress }
func (e ProjectProgressEvent) TaskID() string    { return "" }

// ProjectResetEvent is published after a reset has cleared all state.
type ProjectResetEvent struct {
	ProjectID string
	Cancelled []string // tasks whose in-flight invocation was cancelled
	Timestamp time.Time
}

func (e ProjectResetEvent) EventType() string { return EventTypeProjectReset }
func (e ProjectResetEvent) TaskID() string    { return "" }
