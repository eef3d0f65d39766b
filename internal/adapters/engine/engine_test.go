package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/ports"
	"github.com/eleven-am/conduit/internal/ports/mocks"
)

func TestEngine_RunsNodesInOrder(t *testing.T) {
	engine, _ := newTestEngine(t)
	registerFunc(t, engine, "step", echoNode)

	sub := engine.Subscribe()
	defer engine.Unsubscribe(sub)

	handle, err := engine.Submit(context.Background(), linearWorkflow("wf-order", "step", "a", "b", "c"), nil)
	require.NoError(t, err)

	msgs := collectRun(t, sub, handle.ID)
	run := waitRun(t, handle)

	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, 1.0, run.Progress)
	assert.NotNil(t, run.FinishedAt)
	assert.Empty(t, run.Error)

	require.Equal(t, domain.MessageKindRun, msgs[0].Kind)
	assert.Equal(t, domain.RunStatusPending, msgs[0].Run.Status)

	events := nodeEvents(msgs)
	require.Len(t, events, 6)

	expected := []struct {
		node   string
		status domain.EventStatus
	}{
		{"a", domain.EventStatusRunning},
		{"a", domain.EventStatusCompleted},
		{"b", domain.EventStatusRunning},
		{"b", domain.EventStatusCompleted},
		{"c", domain.EventStatusRunning},
		{"c", domain.EventStatusCompleted},
	}
	for i, want := range expected {
		assert.Equal(t, want.node, events[i].NodeID, "event %d", i)
		assert.Equal(t, want.status, events[i].Status, "event %d", i)
		assert.Equal(t, handle.ID, events[i].RunID)
	}

	assert.InDelta(t, 0.0, *events[0].Progress, 1e-9)
	assert.InDelta(t, 1.0/3, *events[1].Progress, 1e-9)
	assert.InDelta(t, 1.0, *events[5].Progress, 1e-9)
	assert.Equal(t, map[string]interface{}{"node": "b"}, events[3].Payload)

	last := 0.0
	for i, msg := range msgs {
		progress := messageProgress(msg)
		assert.GreaterOrEqual(t, progress, last, "progress went backwards at message %d", i)
		last = progress
	}

	final := msgs[len(msgs)-1]
	assert.Equal(t, domain.RunStatusCompleted, final.Run.Status)
}

func TestEngine_EmptyWorkflowCompletes(t *testing.T) {
	engine, _ := newTestEngine(t)

	handle, err := engine.Submit(context.Background(), &domain.Workflow{ID: "wf-empty"}, nil)
	require.NoError(t, err)

	run := waitRun(t, handle)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, 1.0, run.Progress)
}

func TestEngine_SubmitRecordsOptions(t *testing.T) {
	engine, store := newTestEngine(t)
	registerFunc(t, engine, "step", echoNode)

	handle, err := engine.Submit(context.Background(), linearWorkflow("wf-opts", "step", "a"),
		map[string]interface{}{"target": "inbox"},
		WithPriority(domain.PriorityHigh),
		WithTrigger("schedule"),
		WithMetadata(map[string]interface{}{"source": "test"}))
	require.NoError(t, err)
	waitRun(t, handle)

	stored, err := store.GetRun(context.Background(), handle.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.PriorityHigh, stored.Priority)
	assert.Equal(t, "schedule", stored.Trigger)
	assert.Equal(t, "inbox", stored.Params["target"])
	assert.Equal(t, "test", stored.Metadata["source"])
	assert.Equal(t, domain.RunStatusCompleted, stored.Status)
}

func TestEngine_ExecuteReturnsPendingRun(t *testing.T) {
	engine, _ := newTestEngine(t)
	node := newBlockingNode()
	registerFunc(t, engine, "block", node.execute)

	run, err := engine.Execute(context.Background(), linearWorkflow("wf-exec", "block", "a"), nil, "")
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, domain.PriorityMedium, run.Priority)
	assert.Equal(t, domain.RunStatusPending, run.Status)
	assert.Empty(t, run.CurrentNode)
	assert.Zero(t, run.Progress)

	node.awaitStart(t, "a")
	node.releaseOne(t)
	waitStatus(t, engine, run.ID, domain.RunStatusCompleted)
}

func TestEngine_ExecuteAlwaysReturnsPendingSnapshot(t *testing.T) {
	engine, _ := newTestEngine(t)
	registerFunc(t, engine, "step", echoNode)

	ids := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		run, err := engine.Execute(context.Background(), linearWorkflow("wf-fast", "step", "a"), nil, "")
		require.NoError(t, err)
		require.Equal(t, domain.RunStatusPending, run.Status, "run %d", i)
		assert.Nil(t, run.FinishedAt)
		ids = append(ids, run.ID)
	}

	for _, id := range ids {
		waitStatus(t, engine, id, domain.RunStatusCompleted)
	}
}

func TestEngine_NodeResultsFlowIntoRunContext(t *testing.T) {
	engine, _ := newTestEngine(t)

	registerFunc(t, engine, "greet", func(_ context.Context, _ domain.Node, runCtx ports.RunContext) (map[string]interface{}, error) {
		greeting, _ := runCtx.Variable("greeting")
		name := runCtx.Params()["name"]
		return map[string]interface{}{"msg": fmt.Sprintf("%v %v", greeting, name)}, nil
	})
	registerFunc(t, engine, "read", func(_ context.Context, _ domain.Node, runCtx ports.RunContext) (map[string]interface{}, error) {
		prev, ok := runCtx.Variable("greet")
		if !ok {
			return nil, errors.New("missing upstream result")
		}
		return map[string]interface{}{"upstream": prev}, nil
	})

	wf := &domain.Workflow{
		ID:        "wf-vars",
		Variables: map[string]interface{}{"greeting": "hello"},
		Nodes: []domain.Node{
			{ID: "greet", Type: "greet"},
			{ID: "read", Type: "read"},
		},
	}

	sub := engine.Subscribe()
	defer engine.Unsubscribe(sub)

	handle, err := engine.Submit(context.Background(), wf, map[string]interface{}{"name": "ada"})
	require.NoError(t, err)

	events := nodeEvents(collectRun(t, sub, handle.ID))
	run := waitRun(t, handle)
	require.Equal(t, domain.RunStatusCompleted, run.Status, run.Error)

	require.Len(t, events, 4)
	assert.Equal(t, map[string]interface{}{"msg": "hello ada"}, events[1].Payload)
	assert.Equal(t, map[string]interface{}{"upstream": map[string]interface{}{"msg": "hello ada"}}, events[3].Payload)
}

func TestEngine_NodeFailureFailsRun(t *testing.T) {
	engine, _ := newTestEngine(t)

	var calls []string
	var mu sync.Mutex
	registerFunc(t, engine, "step", func(_ context.Context, node domain.Node, _ ports.RunContext) (map[string]interface{}, error) {
		mu.Lock()
		calls = append(calls, node.ID)
		mu.Unlock()
		if node.ID == "b" {
			return nil, errors.New("element not found")
		}
		return nil, nil
	})

	sub := engine.Subscribe()
	defer engine.Unsubscribe(sub)

	handle, err := engine.Submit(context.Background(), linearWorkflow("wf-fail", "step", "a", "b", "c"), nil)
	require.NoError(t, err)

	events := nodeEvents(collectRun(t, sub, handle.ID))
	run := waitRun(t, handle)

	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Equal(t, "element not found", run.Error)
	assert.NotNil(t, run.FinishedAt)

	mu.Lock()
	assert.Equal(t, []string{"a", "b"}, calls)
	mu.Unlock()

	require.Len(t, events, 4)
	assert.Equal(t, "b", events[3].NodeID)
	assert.Equal(t, domain.EventStatusFailed, events[3].Status)
	assert.Equal(t, "element not found", events[3].Message)

	assert.Equal(t, int64(1), engine.Metrics().RunsFailed)
	assert.Equal(t, int64(1), engine.Metrics().NodesFailed)
}

func TestEngine_NodePanicFailsRun(t *testing.T) {
	engine, _ := newTestEngine(t)
	registerFunc(t, engine, "explode", func(context.Context, domain.Node, ports.RunContext) (map[string]interface{}, error) {
		panic("selector exploded")
	})

	handle, err := engine.Submit(context.Background(), linearWorkflow("wf-panic", "explode", "a"), nil)
	require.NoError(t, err)

	run := waitRun(t, handle)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "selector exploded")
}

func TestEngine_RejectsUnknownNodeType(t *testing.T) {
	engine, store := newTestEngine(t)
	registerFunc(t, engine, "step", echoNode)

	wf := &domain.Workflow{
		ID: "wf-unknown",
		Nodes: []domain.Node{
			{ID: "a", Type: "step"},
			{ID: "b", Type: "teleport"},
		},
	}

	handle, err := engine.Submit(context.Background(), wf, nil)
	require.Error(t, err)
	assert.Nil(t, handle)
	assert.True(t, domain.IsValidation(err))
	assert.True(t, domain.IsUnknownNodeType(err))

	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "nodes[1].type", validationErr.Field)

	runs, err := store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Empty(t, engine.ActiveRuns())
	assert.Equal(t, int64(0), engine.BusStats().TotalPublished)
}

func TestEngine_RejectsInvalidNodeConfig(t *testing.T) {
	engine, store := newTestEngine(t)

	executor := new(mocks.MockNodeExecutor)
	executor.On("ValidateConfig", mock.Anything).Return(domain.NewValidationError("config.selector", "selector is required"))
	require.NoError(t, engine.RegisterNodeType("click", executor.Factory()))

	_, err := engine.Submit(context.Background(), linearWorkflow("wf-config", "click", "a"), nil)
	require.Error(t, err)

	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "nodes[0].config", validationErr.Field)
	executor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)

	runs, err := store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestEngine_RejectsInvalidWorkflowAndPriority(t *testing.T) {
	engine, _ := newTestEngine(t)
	registerFunc(t, engine, "step", echoNode)

	_, err := engine.Submit(context.Background(), &domain.Workflow{Nodes: []domain.Node{{ID: "a", Type: "step"}}}, nil)
	assert.True(t, domain.IsValidation(err))

	_, err = engine.Submit(context.Background(), nil, nil)
	assert.True(t, domain.IsValidation(err))

	_, err = engine.Submit(context.Background(), linearWorkflow("wf", "step", "a"), nil, WithPriority("urgent"))
	assert.True(t, domain.IsValidation(err))
}

func TestEngine_ConcurrentRunsAreIsolated(t *testing.T) {
	engine, _ := newTestEngine(t)
	registerFunc(t, engine, "step", func(ctx context.Context, node domain.Node, runCtx ports.RunContext) (map[string]interface{}, error) {
		time.Sleep(2 * time.Millisecond)
		return map[string]interface{}{"run": runCtx.RunID()}, nil
	})

	sub := engine.Subscribe()
	defer engine.Unsubscribe(sub)

	const runs = 5
	handles := make(map[string]*RunHandle, runs)
	for i := 0; i < runs; i++ {
		h, err := engine.Submit(context.Background(), linearWorkflow(fmt.Sprintf("wf-%d", i), "step", "a", "b", "c"), nil)
		require.NoError(t, err)
		handles[h.ID] = h
	}

	perRun := make(map[string][]domain.Event)
	finished := 0
	deadline := time.After(testTimeout)
	for finished < runs {
		select {
		case msg := <-sub.C():
			if msg.Kind == domain.MessageKindEvent && msg.Event.Kind == domain.EventKindNode {
				perRun[msg.RunID] = append(perRun[msg.RunID], *msg.Event)
			}
			if msg.Kind == domain.MessageKindRun && msg.Run.Status.IsTerminal() {
				finished++
			}
		case <-deadline:
			t.Fatalf("only %d of %d runs finished", finished, runs)
		}
	}

	require.Len(t, perRun, runs)
	for runID, events := range perRun {
		require.Contains(t, handles, runID)
		assert.Len(t, events, 6)
		for _, ev := range events {
			assert.Equal(t, runID, ev.RunID)
			if ev.Status == domain.EventStatusCompleted {
				assert.Equal(t, runID, ev.Payload["run"])
			}
		}
	}

	for _, h := range handles {
		assert.Equal(t, domain.RunStatusCompleted, waitRun(t, h).Status)
	}
	assert.Equal(t, int64(runs), engine.Metrics().RunsCompleted)
}

func TestEngine_GetLogsReturnsInsertionOrder(t *testing.T) {
	engine, _ := newTestEngine(t)
	registerFunc(t, engine, "step", echoNode)

	handle, err := engine.Submit(context.Background(), linearWorkflow("wf-logs", "step", "a", "b"), nil)
	require.NoError(t, err)
	waitRun(t, handle)

	logs, err := engine.GetLogs(context.Background(), handle.ID)
	require.NoError(t, err)
	require.NotEmpty(t, logs)

	assert.Equal(t, domain.EventKindRun, logs[0].Kind)
	assert.Equal(t, domain.EventStatusRunning, logs[0].Status)
	assert.Equal(t, domain.EventKindRun, logs[len(logs)-1].Kind)
	assert.Equal(t, domain.EventStatusCompleted, logs[len(logs)-1].Status)

	var nodeLog []string
	for _, ev := range logs {
		assert.Equal(t, handle.ID, ev.RunID)
		if ev.Kind == domain.EventKindNode {
			nodeLog = append(nodeLog, ev.NodeID+":"+string(ev.Status))
		}
	}
	assert.Equal(t, []string{"a:running", "a:completed", "b:running", "b:completed"}, nodeLog)

	empty, err := engine.GetLogs(context.Background(), "no-such-run")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEngine_GetRun(t *testing.T) {
	engine, _ := newTestEngine(t)
	node := newBlockingNode()
	registerFunc(t, engine, "block", node.execute)

	handle, err := engine.Submit(context.Background(), linearWorkflow("wf-get", "block", "a"), nil)
	require.NoError(t, err)
	node.awaitStart(t, "a")

	live, err := engine.GetRun(context.Background(), handle.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, live.Status)
	assert.Equal(t, "a", live.CurrentNode)

	active := engine.ActiveRuns()
	require.Len(t, active, 1)
	assert.Equal(t, handle.ID, active[0].ID)

	node.releaseOne(t)
	waitRun(t, handle)

	stored, err := engine.GetRun(context.Background(), handle.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, stored.Status)
	assert.Empty(t, engine.ActiveRuns())

	_, err = engine.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestEngine_ListRuns(t *testing.T) {
	engine, _ := newTestEngine(t)
	registerFunc(t, engine, "step", echoNode)

	var ids []string
	for _, wf := range []string{"wf-x", "wf-y", "wf-x"} {
		h, err := engine.Submit(context.Background(), linearWorkflow(wf, "step", "a"), nil)
		require.NoError(t, err)
		waitRun(t, h)
		ids = append(ids, h.ID)
	}

	runs, err := engine.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID)

	limited, err := engine.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	byWorkflow, err := engine.ListRunsByWorkflow(context.Background(), "wf-x", 10)
	require.NoError(t, err)
	require.Len(t, byWorkflow, 2)
	for _, run := range byWorkflow {
		assert.Equal(t, "wf-x", run.WorkflowID)
	}
}

func TestEngine_WorkflowVariablesAreNotShared(t *testing.T) {
	engine, _ := newTestEngine(t)

	var seen sync.Map
	registerFunc(t, engine, "read", func(_ context.Context, _ domain.Node, runCtx ports.RunContext) (map[string]interface{}, error) {
		cfg, _ := runCtx.Variable("cfg")
		seen.Store(runCtx.RunID(), cfg)
		return map[string]interface{}{"cfg": map[string]interface{}{"touched": runCtx.RunID()}}, nil
	})

	wf := linearWorkflow("wf-shared", "read", "a", "b")
	wf.Variables = map[string]interface{}{"cfg": map[string]interface{}{"a": 1}}

	const runs = 20
	handles := make([]*RunHandle, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := engine.Submit(context.Background(), wf, map[string]interface{}{
				"cfg": map[string]interface{}{"b": i},
			})
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for i, h := range handles {
		require.NotNil(t, h)
		run := waitRun(t, h)
		require.Equal(t, domain.RunStatusCompleted, run.Status)

		cfg, ok := seen.Load(h.ID)
		require.True(t, ok)
		assert.Equal(t, map[string]interface{}{"a": 1, "b": float64(i)}, cfg)
	}

	assert.Equal(t, map[string]interface{}{"cfg": map[string]interface{}{"a": 1}}, wf.Variables)
}

func TestEngine_SavedValuesMatchStoredValues(t *testing.T) {
	engine, store := newTestEngine(t)
	registerFunc(t, engine, "step", echoNode)
	ctx := context.Background()

	params := map[string]interface{}{
		"count":  3,
		"nested": map[string]interface{}{"ratio": 0.5, "tags": []interface{}{"x", 2}},
	}

	tpl, err := engine.SaveTemplate(ctx, "wf-1", "counts", params)
	require.NoError(t, err)

	templates, err := engine.ListTemplates(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, tpl.Params, templates[0].Params)
	assert.Equal(t, float64(3), templates[0].Params["count"])
	assert.Equal(t, 3, params["count"])

	trg, err := engine.SaveTrigger(ctx, "wf-1", "schedule", map[string]interface{}{"every": 60}, true)
	require.NoError(t, err)

	triggers, err := engine.ListTriggers(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, trg.Config, triggers[0].Config)

	handle, err := engine.Submit(ctx, linearWorkflow("wf-1", "step", "a"), params)
	require.NoError(t, err)
	waitRun(t, handle)

	stored, err := store.GetRun(ctx, handle.ID)
	require.NoError(t, err)
	assert.Equal(t, handle.Initial().Params, stored.Params)
	assert.Equal(t, handle.Initial().Metadata, stored.Metadata)
}

func TestEngine_UnserializableParamsAreRejected(t *testing.T) {
	engine, _ := newTestEngine(t)
	registerFunc(t, engine, "step", echoNode)

	_, err := engine.Submit(context.Background(), linearWorkflow("wf-1", "step", "a"), map[string]interface{}{"ch": make(chan int)})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	runs, err := engine.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestEngine_TemplatesAndTriggers(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	tpl, err := engine.SaveTemplate(ctx, "wf-1", "morning", map[string]interface{}{"city": "Lagos"})
	require.NoError(t, err)
	assert.NotEmpty(t, tpl.ID)
	assert.False(t, tpl.CreatedAt.IsZero())

	templates, err := engine.ListTemplates(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "morning", templates[0].Name)
	assert.Equal(t, "Lagos", templates[0].Params["city"])

	require.NoError(t, engine.DeleteTemplate(ctx, tpl.ID))
	assert.True(t, domain.IsNotFound(engine.DeleteTemplate(ctx, tpl.ID)))

	_, err = engine.SaveTemplate(ctx, "wf-1", "", nil)
	assert.True(t, domain.IsValidation(err))

	trg, err := engine.SaveTrigger(ctx, "wf-1", "schedule", map[string]interface{}{"cron": "0 9 * * *"}, true)
	require.NoError(t, err)

	triggers, err := engine.ListTriggers(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.True(t, triggers[0].Enabled)
	assert.Equal(t, "0 9 * * *", triggers[0].Config["cron"])

	require.NoError(t, engine.DeleteTrigger(ctx, trg.ID))
	assert.True(t, domain.IsNotFound(engine.DeleteTrigger(ctx, trg.ID)))

	_, err = engine.SaveTrigger(ctx, "wf-1", "", nil, false)
	assert.True(t, domain.IsValidation(err))
}

func TestEngine_ListNodeTypes(t *testing.T) {
	engine, _ := newTestEngine(t)
	registerFunc(t, engine, "b-type", echoNode)
	registerFunc(t, engine, "a-type", echoNode)

	assert.Equal(t, []string{"a-type", "b-type"}, engine.ListNodeTypes())
}

func TestEngine_InitialSaveFailure(t *testing.T) {
	store := new(mocks.MockStoragePort)
	store.On("SaveRun", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	engine := newTestEngineWithStorage(t, store)
	registerFunc(t, engine, "step", echoNode)

	handle, err := engine.Submit(context.Background(), linearWorkflow("wf-save", "step", "a"), nil)
	require.Error(t, err)
	assert.Nil(t, handle)
	assert.True(t, domain.IsPersistence(err))
	assert.Empty(t, engine.ActiveRuns())
	assert.Equal(t, int64(0), engine.BusStats().TotalPublished)
	assert.Equal(t, int64(1), engine.Metrics().PersistenceFailures)
}

func TestEngine_PersistenceFailureDegradesRun(t *testing.T) {
	store := new(mocks.MockStoragePort)
	store.On("SaveRun", mock.Anything, mock.Anything).Return(nil).Once()
	store.On("SaveRun", mock.Anything, mock.Anything).Return(errors.New("database is locked"))
	store.On("AppendLog", mock.Anything, mock.Anything).Return(nil)

	engine := newTestEngineWithStorage(t, store)
	registerFunc(t, engine, "step", echoNode)

	sub := engine.Subscribe()
	defer engine.Unsubscribe(sub)

	handle, err := engine.Submit(context.Background(), linearWorkflow("wf-degraded", "step", "a", "b"), nil)
	require.NoError(t, err)

	msgs := collectRun(t, sub, handle.ID)
	run := waitRun(t, handle)

	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, true, run.Metadata["persistence_degraded"])
	assert.Len(t, nodeEvents(msgs), 4)
	assert.Greater(t, engine.Metrics().PersistenceFailures, int64(0))
	store.AssertNumberOfCalls(t, "AppendLog", 8)
}

func TestEngine_Shutdown(t *testing.T) {
	engine, store := newTestEngine(t)
	node := newBlockingNode()
	registerFunc(t, engine, "block", node.execute)

	handle, err := engine.Submit(context.Background(), linearWorkflow("wf-shutdown", "block", "a", "b"), nil)
	require.NoError(t, err)
	node.awaitStart(t, "a")

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, engine.Shutdown(ctx))

	select {
	case <-handle.Done():
	default:
		t.Fatal("run still active after shutdown")
	}

	run := handle.Run()
	assert.Equal(t, domain.RunStatusCancelled, run.Status)
	assert.Equal(t, "engine shutting down", run.Error)
	assert.Equal(t, []string{"a"}, node.Calls())

	stored, err := store.GetRun(context.Background(), handle.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCancelled, stored.Status)

	_, err = engine.Submit(context.Background(), linearWorkflow("wf-late", "block", "a"), nil)
	assert.ErrorIs(t, err, domain.ErrEngineClosed)
	assert.NoError(t, engine.Shutdown(ctx))
}

func TestEngine_ShutdownTimesOut(t *testing.T) {
	engine, _ := newTestEngine(t)

	var release atomic.Bool
	registerFunc(t, engine, "stubborn", func(context.Context, domain.Node, ports.RunContext) (map[string]interface{}, error) {
		for !release.Load() {
			time.Sleep(time.Millisecond)
		}
		return nil, nil
	})
	t.Cleanup(func() { release.Store(true) })

	handle, err := engine.Submit(context.Background(), linearWorkflow("wf-stubborn", "stubborn", "a"), nil)
	require.NoError(t, err)
	waitStatus(t, engine, handle.ID, domain.RunStatusRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, engine.Shutdown(ctx), context.DeadlineExceeded)

	release.Store(true)
	run := waitRun(t, handle)
	assert.Equal(t, domain.RunStatusCancelled, run.Status)
}
