package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/conduit/internal/domain"
)

func TestLifecycle_PauseAndResume(t *testing.T) {
	engine, _ := newTestEngine(t)
	node := newBlockingNode()
	registerFunc(t, engine, "block", node.execute)

	sub := engine.Subscribe()
	defer engine.Unsubscribe(sub)

	handle, err := engine.Submit(context.Background(), linearWorkflow("wf-pause", "block", "a", "b"), nil)
	require.NoError(t, err)
	node.awaitStart(t, "a")

	require.NoError(t, engine.Pause(handle.ID))
	assert.Equal(t, domain.RunStatusPaused, handle.Run().Status)
	require.NoError(t, engine.Pause(handle.ID), "pausing twice is a no-op")

	node.releaseOne(t)

	assert.Never(t, func() bool {
		return len(node.Calls()) > 1
	}, 100*time.Millisecond, 5*time.Millisecond, "no node may start while paused")
	assert.Equal(t, domain.RunStatusPaused, handle.Run().Status)

	require.NoError(t, engine.Resume(handle.ID))
	require.NoError(t, engine.Resume(handle.ID), "resuming a running run is a no-op")

	node.awaitStart(t, "b")
	node.releaseOne(t)

	msgs := collectRun(t, sub, handle.ID)
	run := waitRun(t, handle)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Len(t, nodeEvents(msgs), 4)

	var statuses []domain.RunStatus
	for _, msg := range msgs {
		if msg.Kind == domain.MessageKindRun {
			statuses = append(statuses, msg.Run.Status)
		}
	}
	assert.Contains(t, statuses, domain.RunStatusPaused)
	assert.Equal(t, domain.RunStatusCompleted, statuses[len(statuses)-1])

	metrics := engine.Metrics()
	assert.Equal(t, int64(1), metrics.RunsPaused)
	assert.Equal(t, int64(1), metrics.RunsResumed)
}

func TestLifecycle_CancelWhilePaused(t *testing.T) {
	engine, store := newTestEngine(t)
	node := newBlockingNode()
	registerFunc(t, engine, "block", node.execute)

	sub := engine.Subscribe()
	defer engine.Unsubscribe(sub)

	handle, err := engine.Submit(context.Background(), linearWorkflow("wf-cancel-paused", "block", "a", "b"), nil)
	require.NoError(t, err)
	node.awaitStart(t, "a")

	require.NoError(t, engine.Pause(handle.ID))
	node.releaseOne(t)
	require.NoError(t, engine.Cancel(handle.ID))

	msgs := collectRun(t, sub, handle.ID)
	run := waitRun(t, handle)

	assert.Equal(t, domain.RunStatusCancelled, run.Status)
	assert.Equal(t, "run cancelled by request", run.Error)
	assert.Equal(t, []string{"a"}, node.Calls())

	for _, ev := range nodeEvents(msgs) {
		assert.Equal(t, "a", ev.NodeID, "no node event may follow cancellation")
	}

	stored, err := store.GetRun(context.Background(), handle.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, stored.Status)
	assert.Equal(t, int64(1), engine.Metrics().RunsCancelled)
}

func TestLifecycle_CancelLetsRunningNodeFinish(t *testing.T) {
	engine, _ := newTestEngine(t)
	node := newBlockingNode()
	registerFunc(t, engine, "block", node.execute)

	sub := engine.Subscribe()
	defer engine.Unsubscribe(sub)

	handle, err := engine.Submit(context.Background(), linearWorkflow("wf-cancel", "block", "a", "b", "c"), nil)
	require.NoError(t, err)
	node.awaitStart(t, "a")

	require.NoError(t, handle.Cancel())
	require.NoError(t, engine.Cancel(handle.ID), "cancelling twice is a no-op")
	assert.Equal(t, domain.RunStatusRunning, handle.Run().Status)

	node.releaseOne(t)

	msgs := collectRun(t, sub, handle.ID)
	run := waitRun(t, handle)
	assert.Equal(t, domain.RunStatusCancelled, run.Status)

	events := nodeEvents(msgs)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventStatusRunning, events[0].Status)
	assert.Equal(t, domain.EventStatusCompleted, events[1].Status)
	assert.Equal(t, domain.RunStatusCancelled, msgs[len(msgs)-1].Run.Status)
}

func TestLifecycle_ControlAfterCancelIsRejected(t *testing.T) {
	engine, _ := newTestEngine(t)
	node := newBlockingNode()
	registerFunc(t, engine, "block", node.execute)

	handle, err := engine.Submit(context.Background(), linearWorkflow("wf-after-cancel", "block", "a", "b"), nil)
	require.NoError(t, err)
	node.awaitStart(t, "a")

	require.NoError(t, engine.Cancel(handle.ID))

	err = engine.Pause(handle.ID)
	assert.True(t, domain.IsControl(err))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = engine.Resume(handle.ID)
	assert.True(t, domain.IsControl(err))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	node.releaseOne(t)
	assert.Equal(t, domain.RunStatusCancelled, waitRun(t, handle).Status)
}

func TestLifecycle_UnknownRun(t *testing.T) {
	engine, _ := newTestEngine(t)

	for name, op := range map[string]func(string) error{
		"pause":  engine.Pause,
		"resume": engine.Resume,
		"cancel": engine.Cancel,
	} {
		t.Run(name, func(t *testing.T) {
			err := op("does-not-exist")
			require.Error(t, err)
			assert.True(t, domain.IsControl(err))
			assert.ErrorIs(t, err, domain.ErrRunNotFound)

			var controlErr *domain.ControlError
			require.ErrorAs(t, err, &controlErr)
			assert.Equal(t, name, controlErr.Op)
			assert.Equal(t, "does-not-exist", controlErr.RunID)
		})
	}
}

func TestLifecycle_FinishedRunIsNotControllable(t *testing.T) {
	engine, _ := newTestEngine(t)
	registerFunc(t, engine, "step", echoNode)

	handle, err := engine.Submit(context.Background(), linearWorkflow("wf-finished", "step", "a"), nil)
	require.NoError(t, err)
	waitRun(t, handle)

	assert.ErrorIs(t, engine.Pause(handle.ID), domain.ErrRunNotFound)
	assert.ErrorIs(t, engine.Resume(handle.ID), domain.ErrRunNotFound)
	assert.ErrorIs(t, engine.Cancel(handle.ID), domain.ErrRunNotFound)
}

func TestLifecycle_ResumeUnpausedRunIsNoop(t *testing.T) {
	engine, _ := newTestEngine(t)
	node := newBlockingNode()
	registerFunc(t, engine, "block", node.execute)

	handle, err := engine.Submit(context.Background(), linearWorkflow("wf-noop", "block", "a"), nil)
	require.NoError(t, err)
	node.awaitStart(t, "a")

	require.NoError(t, engine.Resume(handle.ID))
	assert.Equal(t, int64(0), engine.Metrics().RunsResumed)

	node.releaseOne(t)
	assert.Equal(t, domain.RunStatusCompleted, waitRun(t, handle).Status)
}

func TestLifecycle_WaitHonoursContext(t *testing.T) {
	engine, _ := newTestEngine(t)
	node := newBlockingNode()
	registerFunc(t, engine, "block", node.execute)

	handle, err := engine.Submit(context.Background(), linearWorkflow("wf-wait", "block", "a"), nil)
	require.NoError(t, err)
	node.awaitStart(t, "a")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	run, err := handle.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, handle.ID, run.ID)

	node.releaseOne(t)
	waitRun(t, handle)
}
