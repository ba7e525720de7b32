package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/contractor/internal/scheduler"
)

var (
	// ErrNoProject is returned by commands and queries issued before Start.
	ErrNoProject = errors.New("no project started")

	// ErrExecutionInProgress is returned by Start while a phase is executing
	// and by a second concurrent ExecuteNextPhase.
	ErrExecutionInProgress = errors.New("execution in progress")

	// ErrProjectReset is returned by an execution interrupted by Reset.
	ErrProjectReset = errors.New("project was reset during execution")

	// ErrRunnerClosed is returned once Shutdown has been called.
	ErrRunnerClosed = errors.New("runner is shut down")
)

// Causes attached to cancelled dispatch contexts.
var (
	errDispatchTimeout = errors.New("task dispatch timed out")
	errResetCause      = errors.New("project reset")
	errShutdownCause   = errors.New("runner shutdown")
)

// PhaseExecutionError reports a phase in which no task succeeded. It is
// returned together with the phase summary; ExecuteAll continues past it.
type PhaseExecutionError struct {
	Phase  scheduler.Phase
	Failed []string
}

func (e *PhaseExecutionError) Error() string {
	return fmt.Sprintf("every task in phase %q failed (%s)", e.Phase, strings.Join(e.Failed, ", "))
}
