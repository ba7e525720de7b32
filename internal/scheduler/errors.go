package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTaskNotFound is wrapped by every lookup of an unknown task ID.
var ErrTaskNotFound = errors.New("task not found")

func taskNotFound(taskID string) error {
	return fmt.Errorf("%w: %q", ErrTaskNotFound, taskID)
}

// DuplicateTaskError is returned when a task ID is added twice.
type DuplicateTaskError struct {
	TaskID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task with ID %q already exists", e.TaskID)
}

// InvalidDependencyError is returned when a dependency references an unknown
// task or a task in a later phase.
type InvalidDependencyError struct {
	TaskID       string
	DependencyID string
	Reason       string
}

func (e *InvalidDependencyError) Error() string {
	return fmt.Sprintf("task %q has invalid dependency %q: %s", e.TaskID, e.DependencyID, e.Reason)
}

// CycleDetectedError is returned when the dependency graph is not acyclic.
// Path lists the tasks of one cycle; the first and last element are equal.
type CycleDetectedError struct {
	Path []string
}

func (e *CycleDetectedError) Error() string {
	if len(e.Path) == 0 {
		return "dependency graph contains a cycle"
	}
	return fmt.Sprintf("dependency graph contains a cycle: %s", strings.Join(e.Path, " -> "))
}

// UnknownPhaseError is returned when a task names a phase outside the phase order.
type UnknownPhaseError struct {
	TaskID string
	Phase  Phase
}

func (e *UnknownPhaseError) Error() string {
	return fmt.Sprintf("task %q has unknown phase %q", e.TaskID, e.Phase)
}

// InvalidTransitionError is returned for a status change outside the lifecycle.
type InvalidTransitionError struct {
	TaskID string
	From   TaskStatus
	To     TaskStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %q: invalid transition %s -> %s", e.TaskID, e.From, e.To)
}

// WorkerBusyError is returned when acquiring a worker that already holds a task.
type WorkerBusyError struct {
	Worker        string
	CurrentTaskID string
}

func (e *WorkerBusyError) Error() string {
	return fmt.Sprintf("worker %q is busy with task %q", e.Worker, e.CurrentTaskID)
}

// WorkerNotBusyError is returned when releasing a worker that is already available.
type WorkerNotBusyError struct {
	Worker string
}

func (e *WorkerNotBusyError) Error() string {
	return fmt.Sprintf("worker %q is not busy", e.Worker)
}

// UnknownWorkerError is returned for a worker name missing from the registry.
type UnknownWorkerError struct {
	Worker string
}

func (e *UnknownWorkerError) Error() string {
	return fmt.Sprintf("unknown worker %q", e.Worker)
}

// PhaseNotReadyError is returned by Advance when exhaustion was required but
// tasks are still pending, ready or in progress.
type PhaseNotReadyError struct {
	Phase     Phase
	Remaining []string
}

func (e *PhaseNotReadyError) Error() string {
	return fmt.Sprintf("phase %q is not exhausted: %d task(s) remaining (%s)",
		e.Phase, len(e.Remaining), strings.Join(e.Remaining, ", "))
}

// StalledPhaseError signals that the active phase can make no further progress:
// nothing is dispatchable, nothing is in flight, and the phase is not exhausted.
type StalledPhaseError struct {
	Phase   Phase
	Waiting []string
}

func (e *StalledPhaseError) Error() string {
	return fmt.Sprintf("phase %q stalled: no dispatchable tasks, waiting on %s",
		e.Phase, strings.Join(e.Waiting, ", "))
}

// IsGuardViolation reports whether err is one of the guarded-state errors that
// indicate a scheduler bug rather than a caller mistake.
func IsGuardViolation(err error) bool {
	var (
		transition *InvalidTransitionError
		busy       *WorkerBusyError
		notBusy    *WorkerNotBusyError
	)
	return errors.As(err, &transition) || errors.As(err, &busy) || errors.As(err, &notBusy)
}
