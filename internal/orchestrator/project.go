package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/aristath/contractor/internal/breakdown"
	"github.com/aristath/contractor/internal/scheduler"
)

// Project is one loaded breakdown and its execution state. The runner's
// mutex serializes every read-modify-write across the graph, the sequencer
// and the status field.
type Project struct {
	ID          string
	Type        string
	Description string
	Parameters  map[string]any
	CreatedAt   time.Time

	status ProjectStatus
	graph  *scheduler.TaskGraph
	seq    *scheduler.Sequencer
}

func newProject(b breakdown.Breakdown, graph *scheduler.TaskGraph, now time.Time) *Project {
	return &Project{
		ID:          uuid.NewString(),
		Type:        b.ProjectType,
		Description: b.Description,
		Parameters:  b.Parameters,
		CreatedAt:   now,
		status:      ProjectNotStarted,
		graph:       graph,
		seq:         scheduler.NewSequencer(graph),
	}
}

// refreshStatus derives the project status from the task states once
// execution has begun.
func (p *Project) refreshStatus() {
	if p.status == ProjectNotStarted {
		return
	}
	if p.seq.ActivePhase() != scheduler.PhaseComplete {
		p.status = ProjectInProgress
		return
	}
	counts, _ := p.graph.Counts()
	if counts[scheduler.StatusFailed] > 0 || counts[scheduler.StatusBlocked] > 0 {
		p.status = ProjectFailed
		return
	}
	p.status = ProjectCompleted
}

func (p *Project) startResult() StartResult {
	res := StartResult{
		ProjectID:  p.ID,
		TotalTasks: p.graph.Len(),
		ByPhase:    make(map[scheduler.Phase][]TaskRef),
		ByAgent:    make(map[string]int),
	}
	for _, t := range p.graph.Tasks() {
		res.ByPhase[t.Phase] = append(res.ByPhase[t.Phase], TaskRef{ID: t.ID, Agent: t.Agent, Description: t.Description})
		res.ByAgent[t.Agent]++
	}
	for _, phase := range p.seq.Phases() {
		if len(res.ByPhase[phase]) > 0 {
			res.Phases = append(res.Phases, phase)
		}
	}
	return res
}
