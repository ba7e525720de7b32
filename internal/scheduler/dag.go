package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/toposort"
)

// TaskGraph holds the project's tasks, their dependency edges and statuses.
// Every status mutation goes through the guarded methods below.
type TaskGraph struct {
	mu         sync.RWMutex
	phases     []Phase
	phaseIndex map[Phase]int
	tasks      map[string]*Task    // All tasks indexed by ID
	dependents map[string][]string // Maps taskID -> list of tasks that depend on it
	order      []string            // Topological order, refreshed by Validate
}

// NewTaskGraph creates an empty graph over the given phase order.
func NewTaskGraph(phases []Phase) *TaskGraph {
	idx := make(map[Phase]int, len(phases))
	for i, p := range phases {
		idx[p] = i
	}
	return &TaskGraph{
		phases:     append([]Phase(nil), phases...),
		phaseIndex: idx,
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// BuildTaskGraph validates a complete task set and returns the graph.
// The input order does not matter. Structural errors abort the build and no
// graph is returned.
func BuildTaskGraph(phases []Phase, tasks []*Task) (*TaskGraph, error) {
	byID := make(map[string]*Task, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if _, exists := byID[t.ID]; exists {
			return nil, &DuplicateTaskError{TaskID: t.ID}
		}
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		for _, depID := range t.DependsOn {
			if _, exists := byID[depID]; !exists {
				return nil, &InvalidDependencyError{TaskID: t.ID, DependencyID: depID, Reason: "unknown task"}
			}
		}
		deps[t.ID] = t.DependsOn
	}

	// Cycles are reported before phase labels are checked.
	order, err := topoSort(ids, deps)
	if err != nil {
		return nil, err
	}

	g := NewTaskGraph(phases)
	for _, id := range order {
		if err := g.AddTask(byID[id]); err != nil {
			return nil, err
		}
	}
	if _, err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// AddTask adds a copy of task to the graph. Every dependency must already be
// present and belong to the same or an earlier phase.
func (g *TaskGraph) AddTask(task *Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.tasks[task.ID]; exists {
		return &DuplicateTaskError{TaskID: task.ID}
	}
	if _, ok := g.phaseIndex[task.Phase]; !ok {
		return &UnknownPhaseError{TaskID: task.ID, Phase: task.Phase}
	}

	for _, depID := range task.DependsOn {
		if depID == task.ID {
			return &CycleDetectedError{Path: []string{task.ID, task.ID}}
		}
		dep, exists := g.tasks[depID]
		if !exists {
			return &InvalidDependencyError{TaskID: task.ID, DependencyID: depID, Reason: "unknown task"}
		}
		if err := g.checkPhaseOrder(task, dep); err != nil {
			return err
		}
	}

	cp := cloneTask(task)
	if cp.Status == "" {
		cp.Status = StatusPending
	}
	g.tasks[cp.ID] = cp

	// Build dependents map for efficient downstream lookup
	for _, depID := range cp.DependsOn {
		g.dependents[depID] = append(g.dependents[depID], cp.ID)
	}
	g.order = nil

	return nil
}

func (g *TaskGraph) checkPhaseOrder(task, dep *Task) error {
	if g.phaseIndex[dep.Phase] > g.phaseIndex[task.Phase] {
		return &InvalidDependencyError{
			TaskID:       task.ID,
			DependencyID: dep.ID,
			Reason:       fmt.Sprintf("dependency is in later phase %q", dep.Phase),
		}
	}
	return nil
}

// Validate checks the whole graph and returns task IDs in topological order.
func (g *TaskGraph) Validate() ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := g.sortedIDsLocked()
	deps := make(map[string][]string, len(g.tasks))
	for _, id := range ids {
		task := g.tasks[id]
		for _, depID := range task.DependsOn {
			dep, exists := g.tasks[depID]
			if !exists {
				return nil, &InvalidDependencyError{TaskID: id, DependencyID: depID, Reason: "unknown task"}
			}
			if err := g.checkPhaseOrder(task, dep); err != nil {
				return nil, err
			}
		}
		deps[id] = task.DependsOn
	}

	order, err := topoSort(ids, deps)
	if err != nil {
		return nil, err
	}
	g.order = order
	return append([]string(nil), order...), nil
}

// topoSort orders ids so that every dependency precedes its dependents.
func topoSort(ids []string, deps map[string][]string) ([]string, error) {
	var edges []toposort.Edge
	for _, id := range ids {
		if len(deps[id]) == 0 {
			// Task with no dependencies - add edge from nil to ensure it's included
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, depID := range deps[id] {
			// Edge (depID, id) means depID must come before id
			edges = append(edges, toposort.Edge{depID, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, &CycleDetectedError{Path: findCyclePath(ids, deps)}
	}

	order := make([]string, 0, len(ids))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	if len(order) != len(ids) {
		return nil, &CycleDetectedError{Path: findCyclePath(ids, deps)}
	}
	return order, nil
}

// findCyclePath walks dependency edges depth-first and returns the first
// cycle it meets.
func findCyclePath(ids []string, deps map[string][]string) []string {
	const (
		white = iota // unvisited
		gray         // on current path
		black        // finished
	)

	color := make(map[string]int, len(ids))
	parent := make(map[string]string, len(ids))
	var path []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		color[node] = gray
		for _, dep := range deps[node] {
			switch color[dep] {
			case gray:
				path = []string{dep}
				for cur := node; cur != dep; cur = parent[cur] {
					path = append(path, cur)
				}
				path = append(path, dep)
				return true
			case white:
				parent[dep] = node
				if dfs(dep) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	for _, id := range ids {
		if color[id] == white && dfs(id) {
			return path
		}
	}
	return nil
}

// IsEligible reports whether the task is pending and every dependency is
// completed (skipped tasks are completed).
func (g *TaskGraph) IsEligible(taskID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return false
	}
	return g.eligibleLocked(task)
}

func (g *TaskGraph) eligibleLocked(task *Task) bool {
	if task.Status != StatusPending {
		return false
	}
	return g.depsSatisfiedLocked(task)
}

func (g *TaskGraph) depsSatisfiedLocked(task *Task) bool {
	for _, depID := range task.DependsOn {
		dep, exists := g.tasks[depID]
		if !exists || !dep.Satisfied() {
			return false
		}
	}
	return true
}

// Eligible returns the eligible tasks of a phase in ascending ID order.
func (g *TaskGraph) Eligible(phase Phase) []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	eligible := []*Task{}
	for _, id := range g.sortedIDsLocked() {
		task := g.tasks[id]
		if task.Phase == phase && g.eligibleLocked(task) {
			eligible = append(eligible, cloneTask(task))
		}
	}
	return eligible
}

// MarkStatus applies a lifecycle transition and returns the previous status.
func (g *TaskGraph) MarkStatus(taskID string, to TaskStatus) (TaskStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return "", taskNotFound(taskID)
	}
	from := task.Status
	if err := ValidateTransition(taskID, from, to); err != nil {
		return from, err
	}
	task.Status = to
	return from, nil
}

// MarkReady promotes an eligible pending task to ready.
func (g *TaskGraph) MarkReady(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return taskNotFound(taskID)
	}
	if err := ValidateTransition(taskID, task.Status, StatusReady); err != nil {
		return err
	}
	if !g.depsSatisfiedLocked(task) {
		return fmt.Errorf("task %q has unsatisfied dependencies", taskID)
	}
	task.Status = StatusReady
	return nil
}

// MarkInProgress records a dispatch of a ready task.
func (g *TaskGraph) MarkInProgress(taskID string, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return taskNotFound(taskID)
	}
	if err := ValidateTransition(taskID, task.Status, StatusInProgress); err != nil {
		return err
	}
	task.Status = StatusInProgress
	task.Dispatches++
	task.StartedAt = at
	task.FinishedAt = time.Time{}
	task.Error = ""
	task.FailureReason = ReasonNone
	return nil
}

// MarkCompleted sets task status to completed and stores the result.
func (g *TaskGraph) MarkCompleted(taskID string, result *Result, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return taskNotFound(taskID)
	}
	if err := ValidateTransition(taskID, task.Status, StatusCompleted); err != nil {
		return err
	}
	task.Status = StatusCompleted
	task.Result = result
	task.FinishedAt = at
	return nil
}

// MarkFailed sets task status to failed and records why. Callers follow up
// with PropagateBlocked.
func (g *TaskGraph) MarkFailed(taskID string, reason FailureReason, msg string, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return taskNotFound(taskID)
	}
	if err := ValidateTransition(taskID, task.Status, StatusFailed); err != nil {
		return err
	}
	task.Status = StatusFailed
	task.FailureReason = reason
	task.Error = msg
	task.Result = nil
	task.FinishedAt = at
	return nil
}

// MarkSkipped completes a pending, ready, blocked or failed task without
// running it. Dependents treat it exactly like a completed task.
func (g *TaskGraph) MarkSkipped(taskID string, at time.Time) (TaskStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return "", taskNotFound(taskID)
	}
	from := task.Status
	if !CanSkip(from) {
		return from, &InvalidTransitionError{TaskID: taskID, From: from, To: StatusCompleted}
	}
	task.Status = StatusCompleted
	task.Skipped = true
	task.Result = nil
	task.FinishedAt = at
	return from, nil
}

// Retry returns a failed task to pending and counts the attempt.
func (g *TaskGraph) Retry(taskID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return taskNotFound(taskID)
	}
	if task.Status != StatusFailed {
		return &InvalidTransitionError{TaskID: taskID, From: task.Status, To: StatusPending}
	}
	task.Status = StatusPending
	task.AttemptCount++
	task.Error = ""
	task.FailureReason = ReasonNone
	task.Result = nil
	return nil
}

// PropagateBlocked marks every transitive dependent of failedID that is still
// pending as blocked and returns their IDs in ascending order. The walk stops
// at tasks that are not pending or blocked: a completed or skipped task
// already satisfies its own dependents.
func (g *TaskGraph) PropagateBlocked(failedID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var blocked []string
	visited := map[string]bool{failedID: true}
	queue := append([]string(nil), g.dependents[failedID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		task := g.tasks[id]
		switch task.Status {
		case StatusPending:
			task.Status = StatusBlocked
			blocked = append(blocked, id)
		case StatusBlocked:
		default:
			continue
		}
		queue = append(queue, g.dependents[id]...)
	}
	sort.Strings(blocked)
	return blocked
}

// ReconcileBlocked returns blocked tasks to pending once none of their
// dependencies is failed or blocked. Tasks are visited in topological order so
// a whole chain is released in one call. Returns the released IDs.
func (g *TaskGraph) ReconcileBlocked() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	order := g.order
	if order == nil {
		order = g.sortedIDsLocked()
	}

	var released []string
	for _, id := range order {
		task := g.tasks[id]
		if task.Status != StatusBlocked {
			continue
		}
		stillBlocked := false
		for _, depID := range task.DependsOn {
			switch g.tasks[depID].Status {
			case StatusFailed, StatusBlocked:
				stillBlocked = true
			}
		}
		if !stillBlocked {
			task.Status = StatusPending
			released = append(released, id)
		}
	}
	return released
}

// Reset returns every task to its initial pending state. Topology is kept.
func (g *TaskGraph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, task := range g.tasks {
		task.Status = StatusPending
		task.Skipped = false
		task.Result = nil
		task.Error = ""
		task.FailureReason = ReasonNone
		task.AttemptCount = 0
		task.Dispatches = 0
		task.StartedAt = time.Time{}
		task.FinishedAt = time.Time{}
	}
}

// Get returns task by ID.
func (g *TaskGraph) Get(taskID string) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns all tasks in ascending ID order.
func (g *TaskGraph) Tasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*Task, 0, len(g.tasks))
	for _, id := range g.sortedIDsLocked() {
		tasks = append(tasks, cloneTask(g.tasks[id]))
	}
	return tasks
}

// TasksInPhase returns all tasks of a phase in ascending ID order.
func (g *TaskGraph) TasksInPhase(phase Phase) []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := []*Task{}
	for _, id := range g.sortedIDsLocked() {
		if task := g.tasks[id]; task.Phase == phase {
			tasks = append(tasks, cloneTask(task))
		}
	}
	return tasks
}

// Dependents returns the direct dependents of a task.
func (g *TaskGraph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := append([]string(nil), g.dependents[taskID]...)
	sort.Strings(out)
	return out
}

// Phases returns the phase order the graph was built with.
func (g *TaskGraph) Phases() []Phase {
	return append([]Phase(nil), g.phases...)
}

// Len returns the number of tasks.
func (g *TaskGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// Counts returns the number of tasks per status and the number of skipped tasks.
func (g *TaskGraph) Counts() (map[TaskStatus]int, int) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	counts := make(map[TaskStatus]int, len(AllStatuses))
	for _, s := range AllStatuses {
		counts[s] = 0
	}
	skipped := 0
	for _, task := range g.tasks {
		counts[task.Status]++
		if task.Skipped {
			skipped++
		}
	}
	return counts, skipped
}

func (g *TaskGraph) sortedIDsLocked() []string {
	ids := make([]string, 0, len(g.tasks))
	for id := range g.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
