package orchestrator

import (
	"time"

	"github.com/aristath/contractor/internal/scheduler"
	"github.com/aristath/contractor/internal/usage"
)

// ProjectStatus is the lifecycle state of the project as a whole.
type ProjectStatus string

const (
	ProjectNone       ProjectStatus = "no_project"
	ProjectNotStarted ProjectStatus = "not_started"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectFailed     ProjectStatus = "failed"
)

// TaskRef is a short task reference used in breakdown summaries.
type TaskRef struct {
	ID          string
	Agent       string
	Description string
}

// StartResult summarizes an accepted breakdown.
type StartResult struct {
	ProjectID  string
	TotalTasks int
	Phases     []scheduler.Phase // phases holding at least one task, in order
	ByPhase    map[scheduler.Phase][]TaskRef
	ByAgent    map[string]int
}

// TaskOutcome is the state of one task at the end of a phase.
type TaskOutcome struct {
	ID            string
	Agent         string
	Status        scheduler.TaskStatus
	Skipped       bool
	FailureReason scheduler.FailureReason
	Error         string
	Result        string
	Duration      time.Duration
}

// PhaseSummary reports what one ExecuteNextPhase call did.
type PhaseSummary struct {
	Phase           scheduler.Phase
	NextPhase       scheduler.Phase
	Total           int
	Completed       int // completed by running, skipped tasks excluded
	Failed          int
	Skipped         int
	Blocked         int
	Tasks           []TaskOutcome
	ProjectComplete bool
	Duration        time.Duration
}

// RunSummary aggregates an ExecuteAll run.
type RunSummary struct {
	ProjectID string
	Status    ProjectStatus
	Phases    []PhaseSummary
	Total     int
	Completed int
	Failed    int
	Skipped   int
	Blocked   int
	Usage     usage.Usage
	Duration  time.Duration
}

// AgentAssignment is a busy worker and the task it is running.
type AgentAssignment struct {
	Agent  string
	TaskID string
	Since  time.Time
}

// StatusReport is a point-in-time snapshot of the project.
type StatusReport struct {
	ProjectID         string
	Type              string
	Description       string
	Status            ProjectStatus
	ActivePhase       scheduler.Phase
	CurrentPhase      scheduler.Phase
	Counts            map[scheduler.TaskStatus]int
	Skipped           int
	Total             int
	CompletionPercent float64
	ActiveAgents      []AgentAssignment
	Usage             usage.Summary
}

func outcomeOf(t *scheduler.Task) TaskOutcome {
	o := TaskOutcome{
		ID:            t.ID,
		Agent:         t.Agent,
		Status:        t.Status,
		Skipped:       t.Skipped,
		FailureReason: t.FailureReason,
		Error:         t.Error,
		Duration:      t.Duration(),
	}
	if t.Result != nil {
		o.Result = t.Result.Content
	}
	return o
}

func summarizePhase(phase scheduler.Phase, tasks []*scheduler.Task) PhaseSummary {
	s := PhaseSummary{Phase: phase, Total: len(tasks)}
	for _, t := range tasks {
		switch {
		case t.Skipped:
			s.Skipped++
		case t.Status == scheduler.StatusCompleted:
			s.Completed++
		case t.Status == scheduler.StatusFailed:
			s.Failed++
		case t.Status == scheduler.StatusBlocked:
			s.Blocked++
		}
		s.Tasks = append(s.Tasks, outcomeOf(t))
	}
	return s
}

// phaseError returns a *PhaseExecutionError when tasks failed and nothing in
// the phase succeeded or was skipped.
func phaseError(s PhaseSummary) error {
	if s.Failed == 0 || s.Completed > 0 || s.Skipped > 0 {
		return nil
	}
	var failed []string
	for _, o := range s.Tasks {
		if o.Status == scheduler.StatusFailed {
			failed = append(failed, o.ID)
		}
	}
	return &PhaseExecutionError{Phase: s.Phase, Failed: failed}
}
