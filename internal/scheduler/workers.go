package scheduler

import (
	"sort"
	"sync"
	"time"
)

// WorkerStatus is a worker's availability.
type WorkerStatus string

const (
	WorkerAvailable WorkerStatus = "available"
	WorkerBusy      WorkerStatus = "busy"
)

// Worker is a named capability endpoint. It runs at most one task at a time.
type Worker struct {
	Name          string
	Description   string
	Tools         []string
	Status        WorkerStatus
	CurrentTaskID string
	BusySince     time.Time
}

// Registry maps worker names to workers and guards their availability.
// Acquire/Release is the only path that flips a worker between available and
// busy, which serializes all tasks sharing a worker.
type Registry struct {
	mu      sync.Mutex         // Guards the workers map and every worker in it
	workers map[string]*Worker // Worker profiles by name
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		workers: make(map[string]*Worker),
	}
}

// Register adds a worker or updates an existing worker's description and tools.
// Re-registering never changes a worker's status.
func (r *Registry) Register(name, description string, tools []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, exists := r.workers[name]
	if !exists {
		w = &Worker{Name: name, Status: WorkerAvailable}
		r.workers[name] = w
	}
	w.Description = description
	w.Tools = append([]string(nil), tools...)
}

// Acquire marks the worker busy with taskID.
func (r *Registry) Acquire(name, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, exists := r.workers[name]
	if !exists {
		return &UnknownWorkerError{Worker: name}
	}
	if w.Status == WorkerBusy {
		return &WorkerBusyError{Worker: name, CurrentTaskID: w.CurrentTaskID}
	}
	w.Status = WorkerBusy
	w.CurrentTaskID = taskID
	w.BusySince = time.Now()
	return nil
}

// Release marks the worker available again.
func (r *Registry) Release(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, exists := r.workers[name]
	if !exists {
		return &UnknownWorkerError{Worker: name}
	}
	if w.Status != WorkerBusy {
		return &WorkerNotBusyError{Worker: name}
	}
	w.Status = WorkerAvailable
	w.CurrentTaskID = ""
	w.BusySince = time.Time{}
	return nil
}

// Get returns a snapshot of the named worker.
func (r *Registry) Get(name string) (Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, exists := r.workers[name]
	if !exists {
		return Worker{}, false
	}
	return cloneWorker(w), true
}

// Has reports whether a worker is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.workers[name]
	return exists
}

// IsAvailable reports whether the named worker exists and is available.
func (r *Registry) IsAvailable(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, exists := r.workers[name]
	return exists && w.Status == WorkerAvailable
}

// Workers returns a snapshot of all workers sorted by name.
func (r *Registry) Workers() []Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, cloneWorker(w))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResetAll marks every worker available.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.workers {
		w.Status = WorkerAvailable
		w.CurrentTaskID = ""
		w.BusySince = time.Time{}
	}
}

func cloneWorker(w *Worker) Worker {
	cp := *w
	cp.Tools = append([]string(nil), w.Tools...)
	return cp
}
