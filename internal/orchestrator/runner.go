package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/aristath/contractor/internal/backend"
	"github.com/aristath/contractor/internal/breakdown"
	"github.com/aristath/contractor/internal/config"
	"github.com/aristath/contractor/internal/events"
	"github.com/aristath/contractor/internal/scheduler"
	"github.com/aristath/contractor/internal/usage"
)

const tracerName = "github.com/aristath/contractor/internal/orchestrator"

// BackendFactory creates the backend that executes an agent's tasks.
type BackendFactory func(agent string) (backend.Backend, error)

// WorkerProfile describes one agent the runner can dispatch to.
type WorkerProfile struct {
	Name         string
	Description  string
	Tools        []string
	SystemPrompt string
	Model        string
}

// RunnerConfig configures the runner.
type RunnerConfig struct {
	Workers            []WorkerProfile
	Phases             []scheduler.Phase         // Phase order (default scheduler.DefaultPhases)
	TaskTimeout        time.Duration             // Per-task dispatch timeout (default 300s)
	MaxParallel        int                       // In-flight cap across workers; 0 means one per worker
	MaxPhaseIterations int                       // ExecuteAll safety limit (default 50)
	Retry              RetryConfig               // Transient error retry
	ProcessManager     *backend.ProcessManager   // Process manager for backend creation
	BackendConfigs     map[string]backend.Config // Maps agent to backend config
	BackendFactory     BackendFactory            // Optional factory (overrides BackendConfigs)
	Bus                *events.EventBus          // Optional event bus (nil disables events)
	Usage              *usage.Tracker            // Optional; a private tracker is created if nil
	Logger             *slog.Logger
	Tracer             trace.Tracer
}

// NewRunnerConfig builds a runner configuration from file configuration:
// one worker per configured agent, backed by its provider.
func NewRunnerConfig(cfg *config.ContractorConfig, pm *backend.ProcessManager) (RunnerConfig, error) {
	rc := RunnerConfig{
		TaskTimeout:        time.Duration(cfg.Scheduler.TaskTimeoutSeconds) * time.Second,
		MaxParallel:        cfg.Scheduler.MaxParallel,
		MaxPhaseIterations: cfg.Scheduler.MaxPhaseIterations,
		Retry:              RetryConfigFrom(cfg.Retry),
		ProcessManager:     pm,
		BackendConfigs:     make(map[string]backend.Config, len(cfg.Agents)),
	}
	for _, p := range cfg.Scheduler.Phases {
		rc.Phases = append(rc.Phases, scheduler.Phase(p))
	}

	names := make([]string, 0, len(cfg.Agents))
	for name := range cfg.Agents {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		agent := cfg.Agents[name]
		provider, ok := cfg.Providers[agent.Provider]
		if !ok {
			return RunnerConfig{}, fmt.Errorf("agent %q references unknown provider %q", name, agent.Provider)
		}
		rc.Workers = append(rc.Workers, WorkerProfile{
			Name:         name,
			Description:  agent.Description,
			Tools:        agent.Tools,
			SystemPrompt: agent.SystemPrompt,
			Model:        agent.Model,
		})
		rc.BackendConfigs[name] = backend.Config{
			Type:         provider.Type,
			Command:      provider.Command,
			Args:         provider.Args,
			Model:        agent.Model,
			SystemPrompt: agent.SystemPrompt,
			Delay:        time.Duration(provider.DelayMs) * time.Millisecond,
		}
	}
	return rc, nil
}

// inflightTask is a dispatched task whose backend call has not returned.
type inflightTask struct {
	agent  string
	phase  scheduler.Phase
	cancel context.CancelCauseFunc
}

// Runner schedules and dispatches the tasks of one project at a time.
// Commands and queries are safe for concurrent use.
type Runner struct {
	config   RunnerConfig
	logger   *slog.Logger
	tracer   trace.Tracer
	registry *scheduler.Registry
	profiles map[string]WorkerProfile
	breakers *CircuitBreakerRegistry
	usage    *usage.Tracker
	bus      *events.EventBus
	now      func() time.Time

	mu         sync.Mutex
	project    *Project
	generation uint64 // bumped by Start and Reset to stop running executions
	inflight   map[string]*inflightTask
	changed    chan struct{} // closed and replaced whenever state changes
	backends   map[string]backend.Backend
	executing  bool // an ExecuteNextPhase call is driving the active phase
	closed     bool

	afterPhaseRun func() // test hook, runs between a phase's dispatches and its bookkeeping
}

// NewRunner creates a runner and registers its workers.
func NewRunner(cfg RunnerConfig) *Runner {
	if len(cfg.Phases) == 0 {
		cfg.Phases = scheduler.DefaultPhases
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = time.Duration(config.DefaultTaskTimeoutSeconds) * time.Second
	}
	if cfg.MaxPhaseIterations <= 0 {
		cfg.MaxPhaseIterations = config.DefaultMaxPhaseIterations
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	tracker := cfg.Usage
	if tracker == nil {
		tracker = usage.NewTracker()
	}

	r := &Runner{
		config:   cfg,
		logger:   logger,
		tracer:   tracer,
		registry: scheduler.NewRegistry(),
		profiles: make(map[string]WorkerProfile, len(cfg.Workers)),
		breakers: NewCircuitBreakerRegistry(logger),
		usage:    tracker,
		bus:      cfg.Bus,
		now:      time.Now,
		inflight: make(map[string]*inflightTask),
		changed:  make(chan struct{}),
		backends: make(map[string]backend.Backend),
	}
	for _, w := range cfg.Workers {
		r.registry.Register(w.Name, w.Description, w.Tools)
		r.profiles[w.Name] = w
	}
	return r
}

// Start loads a breakdown as the runner's project. Structural errors
// (duplicate ids, unknown dependencies, cycles, unknown phases) abort the
// start and leave any previous project untouched.
func (r *Runner) Start(ctx context.Context, b breakdown.Breakdown) (StartResult, error) {
	if err := b.Validate(); err != nil {
		return StartResult{}, err
	}
	graph, err := scheduler.BuildTaskGraph(r.config.Phases, b.SchedulerTasks())
	if err != nil {
		return StartResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return StartResult{}, ErrRunnerClosed
	}
	if r.executing || len(r.inflight) > 0 {
		return StartResult{}, ErrExecutionInProgress
	}

	p := newProject(b, graph, r.now())
	r.generation++
	r.project = p
	r.registry.ResetAll()
	r.usage.Clear()
	r.notifyLocked()

	r.logger.Info("project started", "project", p.ID, "type", p.Type, "tasks", graph.Len())

	tasks := graph.Tasks()
	infos := make([]events.TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		infos = append(infos, taskInfo(t))
	}
	phases := make([]string, 0, len(r.config.Phases))
	for _, ph := range r.config.Phases {
		phases = append(phases, string(ph))
	}
	r.publish(events.TopicProject, events.ProjectStartedEvent{
		ProjectID:   p.ID,
		ProjectType: p.Type,
		Description: p.Description,
		Phases:      phases,
		Tasks:       infos,
		Timestamp:   r.now(),
	})
	r.publishProgressLocked()

	return p.startResult(), nil
}

// Skip completes a pending, ready, blocked or failed task without running it.
// Dependents treat it as completed.
func (r *Runner) Skip(taskID string) (*scheduler.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.projectLocked()
	if err != nil {
		return nil, err
	}
	from, err := p.graph.MarkSkipped(taskID, r.now())
	if err != nil {
		return nil, err
	}
	task, _ := p.graph.Get(taskID)
	r.logger.Info("task skipped", "task", taskID, "agent", task.Agent, "from", string(from))
	r.publishTransition(p, task, from, "skipped")

	r.reconcileLocked(p)
	p.refreshStatus()
	r.publishProgressLocked()
	r.notifyLocked()
	return task, nil
}

// Retry returns a failed task to pending. Its blocked dependents are released
// on the next scheduling pass.
func (r *Runner) Retry(taskID string) (*scheduler.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.projectLocked()
	if err != nil {
		return nil, err
	}
	if err := p.graph.Retry(taskID); err != nil {
		return nil, err
	}
	task, _ := p.graph.Get(taskID)
	r.logger.Info("task retried", "task", taskID, "agent", task.Agent, "attempt", task.AttemptCount)
	r.publishTransition(p, task, scheduler.StatusFailed, "retry")

	p.refreshStatus()
	r.publishProgressLocked()
	r.notifyLocked()
	return task, nil
}

// Reset cancels every in-flight invocation, waits for the cancelled tasks to
// be recorded, then returns all tasks to pending, all workers to available,
// the phase pointer to the first phase and clears usage. Calling it twice
// yields the same state.
func (r *Runner) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.projectLocked()
	if err != nil {
		return err
	}

	r.generation++
	cancelled := r.cancelInflightLocked(errResetCause)
	if err := r.waitIdleLocked(ctx); err != nil {
		return err
	}

	p.graph.Reset()
	p.seq.Reset()
	p.status = ProjectNotStarted
	r.registry.ResetAll()
	r.usage.Clear()
	r.notifyLocked()

	r.logger.Info("project reset", "project", p.ID, "cancelled", len(cancelled))
	r.publish(events.TopicProject, events.ProjectResetEvent{
		ProjectID: p.ID,
		Cancelled: cancelled,
		Timestamp: r.now(),
	})
	r.publishProgressLocked()
	return nil
}

// Shutdown cancels in-flight work and waits for it to be recorded as failed
// with reason cancelled. Later commands return ErrRunnerClosed.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	cancelled := r.cancelInflightLocked(errShutdownCause)
	if len(cancelled) > 0 {
		r.logger.Info("cancelling in-flight tasks", "count", len(cancelled))
	}
	r.notifyLocked()
	return r.waitIdleLocked(ctx)
}

// ProjectStatus returns a snapshot of the project.
func (r *Runner) ProjectStatus() StatusReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

// Task returns a snapshot of one task.
func (r *Runner) Task(taskID string) (*scheduler.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.projectLocked()
	if err != nil {
		return nil, err
	}
	task, ok := p.graph.Get(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", scheduler.ErrTaskNotFound, taskID)
	}
	return task, nil
}

// Tasks returns snapshots of all tasks in ascending id order.
func (r *Runner) Tasks() ([]*scheduler.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.projectLocked()
	if err != nil {
		return nil, err
	}
	return p.graph.Tasks(), nil
}

// Agents returns the worker roster.
func (r *Runner) Agents() []scheduler.Worker {
	return r.registry.Workers()
}

// Usage returns the runner's usage tracker.
func (r *Runner) Usage() *usage.Tracker {
	return r.usage
}

// ReadySet returns the tasks of the active phase that would be dispatched by
// the next scheduling pass: eligible (or already ready) tasks whose worker is
// available, at most one per worker, in ascending id order. Blocked tasks
// whose failed ancestors were retried or skipped are released first.
func (r *Runner) ReadySet() ([]*scheduler.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.projectLocked()
	if err != nil {
		return nil, err
	}
	r.reconcileLocked(p)

	phase := p.seq.ActivePhase()
	if phase == scheduler.PhaseComplete {
		return nil, nil
	}

	var ready []*scheduler.Task
	taken := make(map[string]bool)
	for _, t := range p.graph.TasksInPhase(phase) {
		if t.Status != scheduler.StatusReady && !p.graph.IsEligible(t.ID) {
			continue
		}
		if taken[t.Agent] || !r.registry.IsAvailable(t.Agent) {
			continue
		}
		taken[t.Agent] = true
		ready = append(ready, t)
	}
	return ready, nil
}

func (r *Runner) projectLocked() (*Project, error) {
	if r.project == nil {
		return nil, ErrNoProject
	}
	return r.project, nil
}

func (r *Runner) statusLocked() StatusReport {
	p := r.project
	if p == nil {
		return StatusReport{Status: ProjectNone}
	}

	counts, skipped := p.graph.Counts()
	total := p.graph.Len()
	report := StatusReport{
		ProjectID:    p.ID,
		Type:         p.Type,
		Description:  p.Description,
		Status:       p.status,
		ActivePhase:  p.seq.ActivePhase(),
		CurrentPhase: p.seq.Current(),
		Counts:       counts,
		Skipped:      skipped,
		Total:        total,
		Usage:        r.usage.Summary(),
	}
	if total > 0 {
		report.CompletionPercent = float64(counts[scheduler.StatusCompleted]) / float64(total) * 100
	}
	for _, w := range r.registry.Workers() {
		if w.Status == scheduler.WorkerBusy {
			report.ActiveAgents = append(report.ActiveAgents, AgentAssignment{
				Agent:  w.Name,
				TaskID: w.CurrentTaskID,
				Since:  w.BusySince,
			})
		}
	}
	return report
}

// cancelInflightLocked cancels every in-flight dispatch and returns the task
// ids in ascending order.
func (r *Runner) cancelInflightLocked(cause error) []string {
	ids := make([]string, 0, len(r.inflight))
	for id, inf := range r.inflight {
		inf.cancel(cause)
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// waitIdleLocked releases the mutex while waiting for in-flight dispatches
// to finish recording their outcome.
func (r *Runner) waitIdleLocked(ctx context.Context) error {
	for len(r.inflight) > 0 {
		wait := r.changed
		r.mu.Unlock()
		select {
		case <-wait:
			r.mu.Lock()
		case <-ctx.Done():
			r.mu.Lock()
			return ctx.Err()
		}
	}
	return nil
}

// notifyLocked wakes every goroutine waiting on r.changed.
func (r *Runner) notifyLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}

// reconcileLocked releases blocked tasks whose ancestors are no longer
// failed or blocked.
func (r *Runner) reconcileLocked(p *Project) {
	for _, id := range p.graph.ReconcileBlocked() {
		task, _ := p.graph.Get(id)
		r.logger.Debug("task unblocked", "task", id, "agent", task.Agent)
		r.publishTransition(p, task, scheduler.StatusBlocked, "ancestor recovered")
	}
}

// logGuard reports guarded-state violations loudly; they mean the scheduler
// itself is wrong.
func (r *Runner) logGuard(err error, attrs ...any) {
	if err == nil {
		return
	}
	if scheduler.IsGuardViolation(err) {
		r.logger.Error("scheduler guard violated", append(attrs, "err", err)...)
		return
	}
	r.logger.Warn("scheduler operation failed", append(attrs, "err", err)...)
}

func (r *Runner) backendFor(agent string) (backend.Backend, error) {
	if b, ok := r.backends[agent]; ok {
		return b, nil
	}

	var (
		b   backend.Backend
		err error
	)
	if r.config.BackendFactory != nil {
		b, err = r.config.BackendFactory(agent)
	} else {
		cfg, ok := r.config.BackendConfigs[agent]
		if !ok {
			return nil, fmt.Errorf("no backend config for agent %q", agent)
		}
		b, err = backend.New(cfg, r.config.ProcessManager)
	}
	if err != nil {
		return nil, err
	}
	r.backends[agent] = b
	return b, nil
}

func (r *Runner) publish(topic string, e events.Event) {
	if r.bus != nil {
		r.bus.Publish(topic, e)
	}
}

func (r *Runner) publishTransition(p *Project, t *scheduler.Task, from scheduler.TaskStatus, reason string) {
	r.publish(events.TopicTask, events.TaskTransitionEvent{
		ProjectID: p.ID,
		ID:        t.ID,
		Agent:     t.Agent,
		Phase:     string(t.Phase),
		From:      string(from),
		To:        string(t.Status),
		Skipped:   t.Skipped,
		Reason:    reason,
		Timestamp: r.now(),
	})
}

func (r *Runner) publishProgressLocked() {
	if r.bus == nil || r.project == nil {
		return
	}
	s := r.statusLocked()
	r.publish(events.TopicProject, events.ProjectProgressEvent{
		ProjectID:  s.ProjectID,
		Status:     string(s.Status),
		Phase:      string(s.ActivePhase),
		Total:      s.Total,
		Completed:  s.Counts[scheduler.StatusCompleted],
		InProgress: s.Counts[scheduler.StatusInProgress],
		Failed:     s.Counts[scheduler.StatusFailed],
		Blocked:    s.Counts[scheduler.StatusBlocked],
		Pending:    s.Counts[scheduler.StatusPending] + s.Counts[scheduler.StatusReady],
		Skipped:    s.Skipped,
		Percent:    s.CompletionPercent,
		Timestamp:  r.now(),
	})
}

func taskInfo(t *scheduler.Task) events.TaskInfo {
	return events.TaskInfo{
		ID:          t.ID,
		Agent:       t.Agent,
		Description: t.Description,
		Phase:       string(t.Phase),
		DependsOn:   append([]string(nil), t.DependsOn...),
		Status:      string(t.Status),
	}
}

// isReset reports whether err means the execution was interrupted by a
// reset or a new Start rather than failing on its own.
func isReset(err error) bool {
	return errors.Is(err, ErrProjectReset)
}
