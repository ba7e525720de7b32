// Package breakdown describes a construction project as a flat list of task
// specs and turns it into scheduler tasks. Breakdowns come from the built-in
// project templates, from a planning worker, or from JSON, YAML and HCL files.
package breakdown

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/aristath/contractor/internal/scheduler"
)

// ErrUnknownProjectType is returned for a project type with no template.
var ErrUnknownProjectType = errors.New("unknown project type")

// Breakdown is a project's task list before it is loaded into a graph.
type Breakdown struct {
	ProjectType string         `json:"project_type" yaml:"project_type"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Tasks       []TaskSpec     `json:"tasks" yaml:"tasks"`
}

// TaskSpec is one task as written in a breakdown. A positive TimeoutSeconds
// overrides the runner's dispatch timeout for this task.
type TaskSpec struct {
	ID             string         `json:"id" yaml:"id"`
	Agent          string         `json:"agent" yaml:"agent"`
	Description    string         `json:"description" yaml:"description"`
	Phase          string         `json:"phase" yaml:"phase"`
	DependsOn      []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Requirements   map[string]any `json:"requirements,omitempty" yaml:"requirements,omitempty"`
	Materials      []string       `json:"materials,omitempty" yaml:"materials,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// Validate checks the fields every task needs. Graph-level checks (unknown
// dependencies, cycles, phase order) happen when the tasks are loaded into a
// scheduler.TaskGraph.
func (b Breakdown) Validate() error {
	if len(b.Tasks) == 0 {
		return errors.New("breakdown has no tasks")
	}
	for i, spec := range b.Tasks {
		switch {
		case spec.ID == "":
			return fmt.Errorf("task %d: missing id", i)
		case spec.Agent == "":
			return fmt.Errorf("task %q: missing agent", spec.ID)
		case spec.Phase == "":
			return fmt.Errorf("task %q: missing phase", spec.ID)
		case spec.TimeoutSeconds < 0:
			return fmt.Errorf("task %q: negative timeout_seconds", spec.ID)
		}
	}
	return nil
}

// SchedulerTasks converts the specs into fresh pending scheduler tasks.
func (b Breakdown) SchedulerTasks() []*scheduler.Task {
	tasks := make([]*scheduler.Task, 0, len(b.Tasks))
	for _, spec := range b.Tasks {
		tasks = append(tasks, spec.Task())
	}
	return tasks
}

// Task converts one spec into a pending scheduler task.
func (s TaskSpec) Task() *scheduler.Task {
	t := &scheduler.Task{
		ID:          s.ID,
		Agent:       s.Agent,
		Description: s.Description,
		Phase:       scheduler.Phase(s.Phase),
		DependsOn:   append([]string(nil), s.DependsOn...),
		Materials:   append([]string(nil), s.Materials...),
		Timeout:     time.Duration(s.TimeoutSeconds) * time.Second,
		Status:      scheduler.StatusPending,
	}
	if len(s.Requirements) > 0 {
		t.Requirements = maps.Clone(s.Requirements)
	}
	return t
}
