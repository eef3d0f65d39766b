package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eleven-am/conduit/internal/adapters/events"
	"github.com/eleven-am/conduit/internal/adapters/node_registry"
	badgerstore "github.com/eleven-am/conduit/internal/adapters/storage/badger"
	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/ports"
)

const testTimeout = 5 * time.Second

func newTestEngine(t *testing.T) (*Engine, ports.StoragePort) {
	t.Helper()

	store, err := badgerstore.Open("", ports.DiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	return newTestEngineWithStorage(t, store), store
}

func newTestEngineWithStorage(t *testing.T, store ports.StoragePort) *Engine {
	t.Helper()

	logger := ports.DiscardLogger()
	bus := events.NewManager(logger, 0)
	registry := node_registry.NewAdapter(logger)
	engine := NewEngine(domain.EngineConfig{}, registry, store, bus, logger)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		_ = engine.Shutdown(ctx)
		bus.Close()
	})
	return engine
}

func registerFunc(t *testing.T, e *Engine, nodeType string, fn ports.ExecutorFunc) {
	t.Helper()
	require.NoError(t, e.RegisterNodeType(nodeType, func() ports.NodeExecutor { return fn }))
}

func echoNode(_ context.Context, node domain.Node, _ ports.RunContext) (map[string]interface{}, error) {
	return map[string]interface{}{"node": node.ID}, nil
}

func linearWorkflow(id, nodeType string, nodeIDs ...string) *domain.Workflow {
	wf := &domain.Workflow{ID: id, Name: id, Version: "1"}
	for _, nodeID := range nodeIDs {
		wf.Nodes = append(wf.Nodes, domain.Node{ID: nodeID, Type: nodeType})
	}
	return wf
}

// blockingNode parks every invocation until the test releases it.
type blockingNode struct {
	mu      sync.Mutex
	calls   []string
	started chan string
	release chan struct{}
}

func newBlockingNode() *blockingNode {
	return &blockingNode{
		started: make(chan string, 16),
		release: make(chan struct{}),
	}
}

func (b *blockingNode) execute(ctx context.Context, node domain.Node, _ ports.RunContext) (map[string]interface{}, error) {
	b.mu.Lock()
	b.calls = append(b.calls, node.ID)
	b.mu.Unlock()

	b.started <- node.ID
	select {
	case <-b.release:
		return map[string]interface{}{"released": true}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *blockingNode) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *blockingNode) awaitStart(t *testing.T, nodeID string) {
	t.Helper()
	select {
	case got := <-b.started:
		require.Equal(t, nodeID, got)
	case <-time.After(testTimeout):
		t.Fatalf("node %s never started", nodeID)
	}
}

func (b *blockingNode) releaseOne(t *testing.T) {
	t.Helper()
	select {
	case b.release <- struct{}{}:
	case <-time.After(testTimeout):
		t.Fatal("no node waiting for release")
	}
}

// collectRun drains sub until the terminal run message for runID arrives.
func collectRun(t *testing.T, sub ports.Subscription, runID string) []domain.Message {
	t.Helper()

	var out []domain.Message
	deadline := time.After(testTimeout)
	for {
		select {
		case msg, ok := <-sub.C():
			if !ok {
				t.Fatal("subscription closed before run finished")
			}
			if msg.RunID != runID {
				continue
			}
			out = append(out, msg)
			if msg.Kind == domain.MessageKindRun && msg.Run.Status.IsTerminal() {
				return out
			}
		case <-deadline:
			t.Fatalf("run %s did not finish; collected %d messages", runID, len(out))
		}
	}
}

func nodeEvents(msgs []domain.Message) []domain.Event {
	var out []domain.Event
	for _, msg := range msgs {
		if msg.Kind == domain.MessageKindEvent && msg.Event.Kind == domain.EventKindNode {
			out = append(out, *msg.Event)
		}
	}
	return out
}

func messageProgress(msg domain.Message) float64 {
	if msg.Kind == domain.MessageKindRun {
		return msg.Run.Progress
	}
	if msg.Event.Progress != nil {
		return *msg.Event.Progress
	}
	return 0
}

func waitRun(t *testing.T, h *RunHandle) domain.Run {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	run, err := h.Wait(ctx)
	require.NoError(t, err)
	return run
}

func waitStatus(t *testing.T, e *Engine, runID string, status domain.RunStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		run, err := e.GetRun(context.Background(), runID)
		return err == nil && run.Status == status
	}, testTimeout, 5*time.Millisecond)
}
