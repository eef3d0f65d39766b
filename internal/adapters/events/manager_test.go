package events

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/ports"
)

func nodeMessage(runID, nodeID string, status domain.EventStatus) domain.Message {
	return domain.EventMessage(domain.NewNodeEvent(runID, nodeID, status, "", 0))
}

func drain(sub ports.Subscription) []domain.Message {
	var out []domain.Message
	for {
		select {
		case msg, ok := <-sub.C():
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestManager_FanOutToAllSubscribers(t *testing.T) {
	manager := NewManager(ports.DiscardLogger(), 8)
	first := manager.Subscribe()
	second := manager.Subscribe()

	manager.Publish(nodeMessage("run-1", "a", domain.EventStatusRunning))
	manager.Publish(nodeMessage("run-1", "a", domain.EventStatusCompleted))

	for _, sub := range []ports.Subscription{first, second} {
		msgs := drain(sub)
		require.Len(t, msgs, 2)
		assert.Equal(t, domain.EventStatusRunning, msgs[0].Event.Status)
		assert.Equal(t, domain.EventStatusCompleted, msgs[1].Event.Status)
	}

	stats := manager.Stats()
	assert.Equal(t, 2, stats.Subscribers)
	assert.Equal(t, int64(2), stats.TotalPublished)
	assert.Equal(t, int64(0), stats.TotalDropped)
}

func TestManager_FIFOPerSubscription(t *testing.T) {
	manager := NewManager(ports.DiscardLogger(), 128)
	sub := manager.Subscribe()

	for i := 0; i < 100; i++ {
		manager.Publish(nodeMessage("run-1", fmt.Sprintf("n%d", i), domain.EventStatusRunning))
	}

	msgs := drain(sub)
	require.Len(t, msgs, 100)
	for i, msg := range msgs {
		assert.Equal(t, fmt.Sprintf("n%d", i), msg.Event.NodeID)
	}
}

func TestManager_DropsWhenBufferFull(t *testing.T) {
	manager := NewManager(ports.DiscardLogger(), 2)
	slow := manager.Subscribe()
	fast := manager.Subscribe()

	manager.Publish(nodeMessage("run-1", "a", domain.EventStatusRunning))
	manager.Publish(nodeMessage("run-1", "b", domain.EventStatusRunning))
	assert.Len(t, drain(fast), 2)

	manager.Publish(nodeMessage("run-1", "c", domain.EventStatusRunning))

	assert.Equal(t, int64(1), slow.Dropped())
	assert.Equal(t, int64(0), fast.Dropped())
	assert.Equal(t, int64(1), manager.Stats().TotalDropped)

	msgs := drain(slow)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].Event.NodeID)
	assert.Equal(t, "b", msgs[1].Event.NodeID)

	fastMsgs := drain(fast)
	require.Len(t, fastMsgs, 1)
	assert.Equal(t, "c", fastMsgs[0].Event.NodeID)
}

func TestManager_UnsubscribeKeepsBufferedMessages(t *testing.T) {
	manager := NewManager(ports.DiscardLogger(), 4)
	sub := manager.Subscribe()

	manager.Publish(nodeMessage("run-1", "a", domain.EventStatusRunning))
	manager.Unsubscribe(sub)
	manager.Publish(nodeMessage("run-1", "b", domain.EventStatusRunning))

	msg, ok := <-sub.C()
	require.True(t, ok)
	assert.Equal(t, "a", msg.Event.NodeID)

	_, ok = <-sub.C()
	assert.False(t, ok)
	assert.Equal(t, 0, manager.Stats().Subscribers)

	manager.Unsubscribe(sub)
	manager.Unsubscribe(nil)
}

func TestManager_SubscribeRunFilters(t *testing.T) {
	manager := NewManager(ports.DiscardLogger(), 8)
	sub := manager.SubscribeRun("run-2")

	manager.Publish(nodeMessage("run-1", "a", domain.EventStatusRunning))
	manager.Publish(nodeMessage("run-2", "b", domain.EventStatusRunning))

	msgs := drain(sub)
	require.Len(t, msgs, 1)
	assert.Equal(t, "run-2", msgs[0].RunID)
}

func TestManager_CloseClosesSubscriptions(t *testing.T) {
	manager := NewManager(nil, 0)
	sub := manager.Subscribe()

	manager.Close()
	manager.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)

	late := manager.Subscribe()
	_, ok = <-late.C()
	assert.False(t, ok)

	manager.Publish(nodeMessage("run-1", "a", domain.EventStatusRunning))
	assert.Equal(t, int64(0), manager.Stats().TotalPublished)
}

func TestManager_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	manager := NewManager(ports.DiscardLogger(), 16)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		sub := manager.Subscribe()
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				manager.Publish(nodeMessage("run-1", "a", domain.EventStatusRunning))
			}
		}()
		go func() {
			defer wg.Done()
			manager.Unsubscribe(sub)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, manager.Stats().Subscribers)
}
