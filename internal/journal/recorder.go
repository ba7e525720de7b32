package journal

import (
	"context"
	"log/slog"

	"github.com/aristath/contractor/internal/events"
	"github.com/aristath/contractor/internal/usage"
)

// Recorder copies bus events into a Store. The subscription is taken when
// the recorder is created, so no event published after NewRecorder returns
// is missed unless the subscriber buffer overflows.
type Recorder struct {
	store  Store
	bus    *events.EventBus
	sub    <-chan events.Event
	logger *slog.Logger
}

// NewRecorder subscribes to every topic of the bus.
func NewRecorder(store Store, bus *events.EventBus, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  store,
		bus:    bus,
		sub:    bus.SubscribeAll(1024),
		logger: logger,
	}
}

// Run writes events until the bus is closed or ctx is done. Write errors are
// logged and do not stop the recorder.
func (r *Recorder) Run(ctx context.Context) error {
	defer r.bus.Unsubscribe(r.sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-r.sub:
			if !ok {
				return nil
			}
			if err := r.record(ctx, e); err != nil {
				r.logger.Warn("journal write failed", "event", e.EventType(), "task", e.TaskID(), "err", err)
			}
		}
	}
}

func (r *Recorder) record(ctx context.Context, e events.Event) error {
	switch ev := e.(type) {
	case events.ProjectStartedEvent:
		if err := r.store.SaveRun(ctx, Run{
			ID:          ev.ProjectID,
			ProjectType: ev.ProjectType,
			Description: ev.Description,
			Status:      "not_started",
			CreatedAt:   ev.Timestamp,
		}); err != nil {
			return err
		}
		for _, t := range ev.Tasks {
			if err := r.store.SaveTask(ctx, TaskRecord{
				RunID:       ev.ProjectID,
				ID:          t.ID,
				Agent:       t.Agent,
				Description: t.Description,
				Phase:       t.Phase,
				DependsOn:   t.DependsOn,
				Status:      t.Status,
			}); err != nil {
				return err
			}
		}
		return nil

	case events.TaskTransitionEvent:
		if err := r.store.RecordTransition(ctx, Transition{
			RunID:  ev.ProjectID,
			TaskID: ev.ID,
			From:   ev.From,
			To:     ev.To,
			Reason: ev.Reason,
			At:     ev.Timestamp,
		}); err != nil {
			return err
		}
		return r.store.UpdateTaskStatus(ctx, ev.ProjectID, ev.ID, ev.To, ev.Skipped)

	case events.TaskCompletedEvent:
		if err := r.store.SetTaskResult(ctx, ev.ProjectID, ev.ID, ev.Result); err != nil {
			return err
		}
		u := usage.Usage{Input: ev.Usage.Input, Output: ev.Usage.Output, Total: ev.Usage.Total}
		if u.IsZero() {
			return nil
		}
		return r.store.RecordUsage(ctx, ev.ProjectID, ev.ID, ev.Agent, u)

	case events.TaskFailedEvent:
		msg := ""
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		return r.store.SetTaskFailure(ctx, ev.ProjectID, ev.ID, ev.Reason, msg)

	case events.ProjectProgressEvent:
		return r.store.UpdateRunStatus(ctx, ev.ProjectID, ev.Status)

	case events.ProjectResetEvent:
		if err := r.store.ResetTasks(ctx, ev.ProjectID); err != nil {
			return err
		}
		return r.store.UpdateRunStatus(ctx, ev.ProjectID, "not_started")
	}
	return nil
}
