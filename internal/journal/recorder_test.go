package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/contractor/internal/events"
	"github.com/aristath/contractor/internal/usage"
)

func TestRecorder(t *testing.T) {
	store := testStore(t)
	bus := events.NewEventBus()
	rec := NewRecorder(store, bus, nil)

	done := make(chan error, 1)
	go func() { done <- rec.Run(context.Background()) }()

	now := time.Now()
	bus.Publish(events.TopicProject, events.ProjectStartedEvent{
		ProjectID:   "p1",
		ProjectType: "custom",
		Description: "Garage",
		Tasks: []events.TaskInfo{
			{ID: "A", Agent: "Mason", Phase: "foundation", Status: "pending"},
			{ID: "B", Agent: "Carpenter", Phase: "framing", Status: "pending", DependsOn: []string{"A"}},
		},
		Timestamp: now,
	})
	bus.Publish(events.TopicTask, events.TaskTransitionEvent{ProjectID: "p1", ID: "A", From: "pending", To: "ready", Timestamp: now})
	bus.Publish(events.TopicTask, events.TaskTransitionEvent{ProjectID: "p1", ID: "A", From: "ready", To: "in_progress", Timestamp: now})
	bus.Publish(events.TopicTask, events.TaskTransitionEvent{ProjectID: "p1", ID: "A", From: "in_progress", To: "completed", Timestamp: now})
	bus.Publish(events.TopicTask, events.TaskCompletedEvent{
		ProjectID: "p1", ID: "A", Agent: "Mason", Result: "slab poured",
		Usage: events.Usage{Input: 20, Output: 10, Total: 30}, Timestamp: now,
	})
	bus.Publish(events.TopicTask, events.TaskTransitionEvent{ProjectID: "p1", ID: "B", From: "pending", To: "ready", Timestamp: now})
	bus.Publish(events.TopicTask, events.TaskTransitionEvent{ProjectID: "p1", ID: "B", From: "ready", To: "failed", Reason: "unknown_agent", Timestamp: now})
	bus.Publish(events.TopicTask, events.TaskFailedEvent{ProjectID: "p1", ID: "B", Agent: "Carpenter", Reason: "unknown_agent", Err: errors.New("no worker"), Timestamp: now})
	bus.Publish(events.TopicProject, events.ProjectProgressEvent{ProjectID: "p1", Status: "failed", Timestamp: now})

	bus.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not stop after bus close")
	}

	ctx := context.Background()
	run, err := store.GetRun(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "failed", run.Status)

	a, err := store.GetTask(ctx, "p1", "A")
	require.NoError(t, err)
	assert.Equal(t, "completed", a.Status)
	assert.Equal(t, "slab poured", a.Result)

	b, err := store.GetTask(ctx, "p1", "B")
	require.NoError(t, err)
	assert.Equal(t, "failed", b.Status)
	assert.Equal(t, "unknown_agent", b.FailureReason)
	assert.Equal(t, "no worker", b.Error)
	assert.Equal(t, []string{"A"}, b.DependsOn)

	trs, err := store.ListTransitions(ctx, "p1", "A")
	require.NoError(t, err)
	assert.Len(t, trs, 3)

	total, err := store.UsageTotals(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, usage.Usage{Input: 20, Output: 10, Total: 30}, total)
}

func TestRecorderReset(t *testing.T) {
	store := testStore(t)
	bus := events.NewEventBus()
	rec := NewRecorder(store, bus, nil)

	done := make(chan error, 1)
	go func() { done <- rec.Run(context.Background()) }()

	bus.Publish(events.TopicProject, events.ProjectStartedEvent{
		ProjectID: "p1",
		Tasks:     []events.TaskInfo{{ID: "A", Agent: "Mason", Phase: "foundation", Status: "pending"}},
	})
	bus.Publish(events.TopicTask, events.TaskTransitionEvent{ProjectID: "p1", ID: "A", From: "pending", To: "completed", Skipped: true})
	bus.Publish(events.TopicProject, events.ProjectResetEvent{ProjectID: "p1"})
	bus.Close()
	require.NoError(t, <-done)

	ctx := context.Background()
	a, err := store.GetTask(ctx, "p1", "A")
	require.NoError(t, err)
	assert.Equal(t, "pending", a.Status)
	assert.False(t, a.Skipped)

	run, err := store.GetRun(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "not_started", run.Status)

	trs, err := store.ListTransitions(ctx, "p1", "")
	require.NoError(t, err)
	assert.Len(t, trs, 1, "reset keeps the history")
}

func TestRecorderStopsOnContext(t *testing.T) {
	store := testStore(t)
	bus := events.NewEventBus()
	defer bus.Close()

	rec := NewRecorder(store, bus, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, rec.Run(ctx), context.Canceled)
}
