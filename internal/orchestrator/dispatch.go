package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/contractor/internal/backend"
	"github.com/aristath/contractor/internal/events"
	"github.com/aristath/contractor/internal/scheduler"
	"github.com/aristath/contractor/internal/usage"
)

// ExecuteNextPhase runs the active phase until it is exhausted: every task is
// completed, failed or blocked. Tasks of different workers run concurrently;
// tasks sharing a worker run one at a time in ascending id order. The phase
// pointer then advances to the next phase with work.
//
// A phase in which tasks failed and none completed or was skipped returns its
// summary together with a *PhaseExecutionError. A phase that can make no
// progress returns a *scheduler.StalledPhaseError.
func (r *Runner) ExecuteNextPhase(ctx context.Context) (PhaseSummary, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return PhaseSummary{}, ErrRunnerClosed
	}
	p, err := r.projectLocked()
	if err != nil {
		r.mu.Unlock()
		return PhaseSummary{}, err
	}
	if r.executing {
		r.mu.Unlock()
		return PhaseSummary{}, ErrExecutionInProgress
	}

	r.reconcileLocked(p)
	phase := p.seq.ActivePhase()
	if phase == scheduler.PhaseComplete {
		if p.status == ProjectNotStarted {
			p.status = ProjectInProgress
		}
		p.refreshStatus()
		r.mu.Unlock()
		return PhaseSummary{Phase: phase, NextPhase: phase, ProjectComplete: true}, nil
	}
	if p.status == ProjectNotStarted {
		p.status = ProjectInProgress
	}
	r.executing = true
	gen := r.generation
	r.mu.Unlock()

	ctx, span := r.tracer.Start(ctx, "phase "+string(phase), trace.WithAttributes(
		attribute.String("project.id", p.ID),
		attribute.String("phase", string(phase)),
	))
	defer span.End()

	started := r.now()
	r.logger.Info("phase started", "project", p.ID, "phase", string(phase))

	g, gctx := errgroup.WithContext(ctx)
	runErr := r.runPhase(gctx, g, p, phase, gen)
	// Dispatch goroutines always return nil; their outcome lives on the task.
	_ = g.Wait()
	if r.afterPhaseRun != nil {
		r.afterPhaseRun()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.executing = false
	// A Reset between the last pass and here must not advance the fresh state.
	if runErr == nil && r.generation != gen {
		runErr = ErrProjectReset
	}

	summary := summarizePhase(phase, p.graph.TasksInPhase(phase))
	summary.Duration = r.now().Sub(started)
	summary.NextPhase = phase

	if runErr != nil {
		p.refreshStatus()
		r.publishProgressLocked()
		r.notifyLocked()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		r.logger.Warn("phase interrupted", "project", p.ID, "phase", string(phase), "err", runErr)
		return summary, runErr
	}

	next, _ := p.seq.Advance(false)
	summary.NextPhase = next
	summary.ProjectComplete = next == scheduler.PhaseComplete
	p.refreshStatus()

	r.logger.Info("phase finished",
		"project", p.ID,
		"phase", string(phase),
		"next", string(next),
		"completed", summary.Completed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"blocked", summary.Blocked,
		"duration", summary.Duration,
	)
	r.publish(events.TopicPhase, events.PhaseAdvancedEvent{
		ProjectID: p.ID,
		From:      string(phase),
		To:        string(next),
		Completed: summary.Completed,
		Failed:    summary.Failed,
		Skipped:   summary.Skipped,
		Timestamp: r.now(),
	})
	r.publishProgressLocked()
	r.notifyLocked()

	span.SetAttributes(
		attribute.Int("tasks.completed", summary.Completed),
		attribute.Int("tasks.failed", summary.Failed),
	)
	if err := phaseError(summary); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return summary, err
	}
	return summary, nil
}

// runPhase drives scheduling passes until the phase is exhausted. It waits on
// r.changed between passes; every dispatch completion closes it.
func (r *Runner) runPhase(ctx context.Context, g *errgroup.Group, p *Project, phase scheduler.Phase, gen uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		if r.generation != gen {
			return ErrProjectReset
		}
		if r.closed {
			return ErrRunnerClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		progressed := r.schedulePassLocked(ctx, g, p, phase)
		if p.seq.Exhausted(phase) {
			return nil
		}
		if progressed == 0 && len(r.inflight) == 0 {
			waiting := p.seq.Remaining(phase)
			r.logger.Error("phase stalled", "project", p.ID, "phase", string(phase), "waiting", waiting)
			return &scheduler.StalledPhaseError{Phase: phase, Waiting: waiting}
		}
		if progressed > 0 && len(r.inflight) == 0 {
			// Only synchronous failures happened; run another pass right away.
			continue
		}

		wait := r.changed
		r.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
		}
		r.mu.Lock()
	}
}

// schedulePassLocked promotes eligible tasks to ready and dispatches ready
// tasks whose worker is free. It returns how many tasks changed state.
func (r *Runner) schedulePassLocked(ctx context.Context, g *errgroup.Group, p *Project, phase scheduler.Phase) int {
	progressed := 0

	r.reconcileLocked(p)
	for _, t := range p.graph.Eligible(phase) {
		if err := p.graph.MarkReady(t.ID); err != nil {
			r.logGuard(err, "task", t.ID)
			continue
		}
		t.Status = scheduler.StatusReady
		r.publishTransition(p, t, scheduler.StatusPending, "dependencies satisfied")
	}

	for _, t := range p.graph.TasksInPhase(phase) {
		if t.Status != scheduler.StatusReady {
			continue
		}
		if r.config.MaxParallel > 0 && len(r.inflight) >= r.config.MaxParallel {
			break
		}
		if !r.registry.Has(t.Agent) {
			r.failLocked(p, t.ID, scheduler.ReasonUnknownAgent, fmt.Sprintf("no worker registered as %q", t.Agent))
			progressed++
			continue
		}
		if !r.registry.IsAvailable(t.Agent) {
			continue
		}
		be, err := r.backendFor(t.Agent)
		if err != nil {
			r.failLocked(p, t.ID, scheduler.ReasonError, err.Error())
			progressed++
			continue
		}
		if err := r.registry.Acquire(t.Agent, t.ID); err != nil {
			r.logGuard(err, "task", t.ID, "agent", t.Agent)
			continue
		}
		if err := p.graph.MarkInProgress(t.ID, r.now()); err != nil {
			r.logGuard(err, "task", t.ID)
			r.logGuard(r.registry.Release(t.Agent), "agent", t.Agent)
			continue
		}

		task, _ := p.graph.Get(t.ID)
		dctx, cancel := context.WithCancelCause(ctx)
		r.inflight[task.ID] = &inflightTask{agent: task.Agent, phase: phase, cancel: cancel}
		progressed++

		r.logger.Info("task dispatched", "task", task.ID, "agent", task.Agent, "phase", string(phase), "attempt", task.AttemptCount)
		r.publishTransition(p, task, scheduler.StatusReady, "dispatched")
		r.publish(events.TopicTask, events.TaskStartedEvent{
			ProjectID:   p.ID,
			ID:          task.ID,
			Agent:       task.Agent,
			Description: task.Description,
			Phase:       string(task.Phase),
			Attempt:     task.AttemptCount,
			Timestamp:   task.StartedAt,
		})

		req := r.requestFor(p, task)
		g.Go(func() error {
			r.dispatch(dctx, cancel, p, task, be, req)
			return nil
		})
	}

	if progressed > 0 {
		r.publishProgressLocked()
	}
	return progressed
}

func (r *Runner) requestFor(p *Project, t *scheduler.Task) backend.Request {
	profile := r.profiles[t.Agent]
	req := backend.Request{
		TaskID:       t.ID,
		Agent:        t.Agent,
		Description:  t.Description,
		Phase:        string(t.Phase),
		Requirements: t.Requirements,
		Materials:    t.Materials,
		Tools:        profile.Tools,
		SystemPrompt: profile.SystemPrompt,
		Model:        profile.Model,
		Timeout:      r.timeoutFor(t),
	}
	req.Progress = func(pr backend.Progress) {
		r.publish(events.TopicTask, events.TaskProgressEvent{
			ProjectID: p.ID,
			ID:        t.ID,
			Agent:     t.Agent,
			Kind:      string(pr.Kind),
			Tool:      pr.Tool,
			Line:      pr.Line,
			Timestamp: r.now(),
		})
	}
	return req
}

// timeoutFor returns the task's own dispatch limit, or the runner default.
func (r *Runner) timeoutFor(t *scheduler.Task) time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return r.config.TaskTimeout
}

// dispatch runs one task on its backend without holding the runner mutex,
// then records the outcome, releases the worker and wakes the phase loop.
func (r *Runner) dispatch(ctx context.Context, cancel context.CancelCauseFunc, p *Project, task *scheduler.Task, be backend.Backend, req backend.Request) {
	defer cancel(nil)

	tctx, tcancel := context.WithTimeoutCause(ctx, req.Timeout, errDispatchTimeout)
	defer tcancel()

	tctx, span := r.tracer.Start(tctx, "task "+task.ID, trace.WithAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.agent", task.Agent),
		attribute.String("task.phase", string(task.Phase)),
	))
	defer span.End()

	out, err := executeWithRetry(tctx, be, req, r.breakers.Get(task.Agent), r.config.Retry)

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.inflight, task.ID)
	r.logGuard(r.registry.Release(task.Agent), "agent", task.Agent, "task", task.ID)
	defer r.notifyLocked()

	if err == nil {
		r.completeLocked(p, task, out)
	} else {
		reason := failureReason(tctx, err)
		msg := err.Error()
		if reason == scheduler.ReasonTimeout {
			msg = fmt.Sprintf("timed out after %s", req.Timeout)
		} else if reason == scheduler.ReasonCancelled {
			msg = fmt.Sprintf("cancelled: %v", context.Cause(tctx))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(reason))
		r.failLocked(p, task.ID, reason, msg)
	}

	p.refreshStatus()
	r.publishProgressLocked()
}

func (r *Runner) completeLocked(p *Project, task *scheduler.Task, out backend.Outcome) {
	now := r.now()
	result := &scheduler.Result{Content: out.Content, Metadata: out.Metadata}
	if err := p.graph.MarkCompleted(task.ID, result, now); err != nil {
		r.logGuard(err, "task", task.ID)
		return
	}

	u := usage.Usage{Input: out.Usage.Input, Output: out.Usage.Output, Total: out.Usage.Sum()}
	r.usage.Record(task.ID, task.Agent, u)

	done, _ := p.graph.Get(task.ID)
	r.logger.Info("task completed", "task", task.ID, "agent", task.Agent, "duration", done.Duration(), "tokens", u.Total)
	r.publishTransition(p, done, scheduler.StatusInProgress, "")
	r.publish(events.TopicTask, events.TaskCompletedEvent{
		ProjectID: p.ID,
		ID:        task.ID,
		Agent:     task.Agent,
		Result:    out.Content,
		Usage:     events.Usage{Input: u.Input, Output: u.Output, Total: u.Total},
		Duration:  done.Duration(),
		Timestamp: now,
	})
}

// failLocked marks a ready or in-progress task failed and blocks its
// pending dependents.
func (r *Runner) failLocked(p *Project, taskID string, reason scheduler.FailureReason, msg string) {
	before, ok := p.graph.Get(taskID)
	if !ok {
		return
	}
	if err := p.graph.MarkFailed(taskID, reason, msg, r.now()); err != nil {
		r.logGuard(err, "task", taskID)
		return
	}
	blocked := p.graph.PropagateBlocked(taskID)

	failed, _ := p.graph.Get(taskID)
	r.logger.Warn("task failed",
		"task", taskID,
		"agent", failed.Agent,
		"reason", string(reason),
		"err", msg,
		"blocked", len(blocked),
	)
	r.publishTransition(p, failed, before.Status, string(reason))
	for _, id := range blocked {
		t, _ := p.graph.Get(id)
		r.publishTransition(p, t, scheduler.StatusPending, "dependency "+taskID+" failed")
	}
	r.publish(events.TopicTask, events.TaskFailedEvent{
		ProjectID: p.ID,
		ID:        taskID,
		Agent:     failed.Agent,
		Reason:    string(reason),
		Err:       errors.New(msg),
		Blocked:   blocked,
		Duration:  failed.Duration(),
		Timestamp: r.now(),
	})
}

func failureReason(ctx context.Context, err error) scheduler.FailureReason {
	switch {
	case errors.Is(context.Cause(ctx), errDispatchTimeout):
		return scheduler.ReasonTimeout
	case ctx.Err() != nil:
		return scheduler.ReasonCancelled
	case isCircuitOpen(err):
		return scheduler.ReasonCircuitOpen
	default:
		return scheduler.ReasonError
	}
}

// ExecuteAll runs phases until the project is complete. Phases in which every
// task failed do not stop the run; any other error does.
func (r *Runner) ExecuteAll(ctx context.Context) (RunSummary, error) {
	started := r.now()
	var phases []PhaseSummary

	for i := 0; i < r.config.MaxPhaseIterations; i++ {
		s, err := r.ExecuteNextPhase(ctx)
		if s.Phase != "" && s.Phase != scheduler.PhaseComplete {
			phases = append(phases, s)
		}
		if err != nil {
			var phaseErr *PhaseExecutionError
			if !errors.As(err, &phaseErr) {
				if isReset(err) {
					r.logger.Info("run interrupted by reset")
				}
				return r.runSummary(phases, started), err
			}
		}
		if s.ProjectComplete {
			return r.runSummary(phases, started), nil
		}
	}
	return r.runSummary(phases, started), fmt.Errorf("project not complete after %d phase iterations", r.config.MaxPhaseIterations)
}

func (r *Runner) runSummary(phases []PhaseSummary, started time.Time) RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	run := RunSummary{Phases: phases, Duration: r.now().Sub(started)}
	if r.project == nil {
		run.Status = ProjectNone
		return run
	}
	p := r.project
	run.ProjectID = p.ID
	run.Status = p.status
	for _, t := range p.graph.Tasks() {
		run.Total++
		switch {
		case t.Skipped:
			run.Skipped++
		case t.Status == scheduler.StatusCompleted:
			run.Completed++
		case t.Status == scheduler.StatusFailed:
			run.Failed++
		case t.Status == scheduler.StatusBlocked:
			run.Blocked++
		}
	}
	run.Usage = r.usage.ProjectTotals()
	return run
}
