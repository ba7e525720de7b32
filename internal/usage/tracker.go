// Package usage accumulates worker token usage per project, agent and task.
package usage

import (
	"maps"
	"sync"
)

// Usage is a token count triple.
type Usage struct {
	Input  int `json:"input_tokens"`
	Output int `json:"output_tokens"`
	Total  int `json:"total_tokens"`
}

// IsZero reports whether nothing was consumed.
func (u Usage) IsZero() bool {
	return u.Input == 0 && u.Output == 0 && u.Total == 0
}

// Add returns u plus o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		Input:  u.Input + o.Input,
		Output: u.Output + o.Output,
		Total:  u.Total + o.Total,
	}
}

// Summary is a point-in-time copy of everything tracked.
type Summary struct {
	ProjectTotals Usage            `json:"project_totals"`
	ByAgent       map[string]Usage `json:"by_agent"`
	ByTask        map[string]Usage `json:"by_task"`
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	project Usage
	byAgent map[string]Usage
	byTask  map[string]Usage
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byAgent: make(map[string]Usage),
		byTask:  make(map[string]Usage),
	}
}

// Record adds u to the project, agent and task totals. Zero usage is ignored.
// A missing Total is derived from Input and Output.
func (t *Tracker) Record(taskID, agent string, u Usage) {
	if u.IsZero() {
		return
	}
	if u.Total == 0 {
		u.Total = u.Input + u.Output
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.project = t.project.Add(u)
	t.byAgent[agent] = t.byAgent[agent].Add(u)
	t.byTask[taskID] = t.byTask[taskID].Add(u)
}

// ProjectTotals returns the project-wide totals.
func (t *Tracker) ProjectTotals() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.project
}

// ByAgent returns a copy of the per-agent totals.
func (t *Tracker) ByAgent() map[string]Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.byAgent)
}

// ByTask returns a copy of the per-task totals.
func (t *Tracker) ByTask() map[string]Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.byTask)
}

// Summary returns all totals at once.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{
		ProjectTotals: t.project,
		ByAgent:       maps.Clone(t.byAgent),
		ByTask:        maps.Clone(t.byTask),
	}
}

// Clear drops everything tracked so far.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.project = Usage{}
	clear(t.byAgent)
	clear(t.byTask)
}
