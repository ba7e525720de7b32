package scheduler

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"     // Waiting for dependencies
	StatusReady      TaskStatus = "ready"       // Dependencies satisfied, waiting for its worker
	StatusInProgress TaskStatus = "in_progress" // Dispatched to a worker
	StatusCompleted  TaskStatus = "completed"   // Finished successfully (or skipped)
	StatusFailed     TaskStatus = "failed"      // Finished with error
	StatusBlocked    TaskStatus = "blocked"     // An ancestor failed
)

// AllStatuses lists every task status in lifecycle order.
var AllStatuses = []TaskStatus{
	StatusPending,
	StatusReady,
	StatusInProgress,
	StatusCompleted,
	StatusFailed,
	StatusBlocked,
}

// FailureReason distinguishes why a task ended up failed.
type FailureReason string

const (
	ReasonNone         FailureReason = ""
	ReasonError        FailureReason = "error"         // Worker reported a failure
	ReasonTimeout      FailureReason = "timeout"       // Exceeded the dispatch timeout
	ReasonCancelled    FailureReason = "cancelled"     // Reset or shutdown cancelled the invocation
	ReasonUnknownAgent FailureReason = "unknown_agent" // No worker registered under the task's agent name
	ReasonCircuitOpen  FailureReason = "circuit_open"  // Worker's circuit breaker rejected the call
)

// Phase names a project stage. Phases are ordered by the Sequencer.
type Phase string

// PhaseComplete is reported as the active phase once every phase is exhausted.
const PhaseComplete Phase = "project_complete"

// Result is the payload stored on a completed task.
type Result struct {
	Content  string
	Metadata map[string]string
}

// Task represents a unit of work in the graph.
type Task struct {
	ID           string         // Unique identifier
	Agent        string         // Name of the worker that executes it
	Description  string         // Instruction passed to the worker
	Phase        Phase          // Immutable once added
	DependsOn    []string       // Task IDs this task depends on
	Requirements map[string]any // Free-form parameters forwarded to the worker
	Materials    []string
	Timeout      time.Duration  // Per-dispatch limit; zero uses the runner default

	Status        TaskStatus
	Skipped       bool // Completed by an explicit skip rather than by running
	Result        *Result
	Error         string
	FailureReason FailureReason
	AttemptCount  int // Incremented by retry, never reset except by a project reset
	Dispatches    int // Number of times the task was handed to a worker
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Satisfied reports whether the task satisfies dependents.
// Skipped tasks are completed, so they count.
func (t *Task) Satisfied() bool {
	return t.Status == StatusCompleted
}

// Duration returns how long the last dispatch ran, or zero.
func (t *Task) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = append([]string(nil), task.DependsOn...)
	}
	if task.Materials != nil {
		cp.Materials = append([]string(nil), task.Materials...)
	}
	if task.Requirements != nil {
		cp.Requirements = make(map[string]any, len(task.Requirements))
		for k, v := range task.Requirements {
			cp.Requirements[k] = v
		}
	}
	if task.Result != nil {
		res := *task.Result
		if task.Result.Metadata != nil {
			res.Metadata = make(map[string]string, len(task.Result.Metadata))
			for k, v := range task.Result.Metadata {
				res.Metadata[k] = v
			}
		}
		cp.Result = &res
	}
	return &cp
}
