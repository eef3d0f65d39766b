package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/ports"
)

const DefaultSubscriberBuffer = 1024

// Manager fans every published message out to all subscriptions. Each
// subscription owns a bounded buffer; when it is full the message is dropped
// for that subscription only and Publish never blocks.
type Manager struct {
	logger     *slog.Logger
	bufferSize int

	mu            sync.RWMutex
	subscriptions map[string]*subscription
	closed        bool

	totalPublished atomic.Int64
	totalDropped   atomic.Int64
}

type subscription struct {
	id      string
	ch      chan domain.Message
	filter  func(domain.Message) bool
	dropped atomic.Int64
}

func (s *subscription) ID() string               { return s.id }
func (s *subscription) C() <-chan domain.Message { return s.ch }
func (s *subscription) Dropped() int64           { return s.dropped.Load() }

func NewManager(logger *slog.Logger, bufferSize int) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}

	return &Manager{
		logger:        logger.With("component", "event-manager"),
		bufferSize:    bufferSize,
		subscriptions: make(map[string]*subscription),
	}
}

func (m *Manager) Subscribe() ports.Subscription {
	return m.subscribe(nil)
}

func (m *Manager) SubscribeRun(runID string) ports.Subscription {
	return m.subscribe(func(msg domain.Message) bool {
		return msg.RunID == runID
	})
}

func (m *Manager) subscribe(filter func(domain.Message) bool) ports.Subscription {
	sub := &subscription{
		id:     uuid.New().String(),
		ch:     make(chan domain.Message, m.bufferSize),
		filter: filter,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		close(sub.ch)
		return sub
	}

	m.subscriptions[sub.id] = sub
	m.logger.Debug("subscriber added", "subscription_id", sub.id, "subscribers", len(m.subscriptions))
	return sub
}

// Unsubscribe removes sub and closes its channel. Messages already buffered
// remain readable.
func (m *Manager) Unsubscribe(sub ports.Subscription) {
	if sub == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subscriptions[sub.ID()]
	if !ok {
		return
	}
	delete(m.subscriptions, s.id)
	close(s.ch)

	m.logger.Debug("subscriber removed", "subscription_id", s.id, "dropped", s.dropped.Load())
}

// Publish enqueues msg on every matching subscription. Holding the read lock
// across the sends keeps Unsubscribe from closing a channel mid-send.
func (m *Manager) Publish(msg domain.Message) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return
	}
	m.totalPublished.Add(1)

	for _, sub := range m.subscriptions {
		if sub.filter != nil && !m.safeMatch(sub, msg) {
			continue
		}

		select {
		case sub.ch <- msg:
		default:
			dropped := sub.dropped.Add(1)
			m.totalDropped.Add(1)
			m.logger.Warn("subscriber buffer full, dropping message",
				"subscription_id", sub.id,
				"run_id", msg.RunID,
				"kind", string(msg.Kind),
				"dropped", dropped)
		}
	}
}

func (m *Manager) safeMatch(sub *subscription, msg domain.Message) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("subscription filter panicked", "subscription_id", sub.id, "panic", r)
			matched = false
		}
	}()
	return sub.filter(msg)
}

func (m *Manager) Stats() ports.BusStats {
	m.mu.RLock()
	subscribers := len(m.subscriptions)
	m.mu.RUnlock()

	return ports.BusStats{
		Subscribers:    subscribers,
		TotalPublished: m.totalPublished.Load(),
		TotalDropped:   m.totalDropped.Load(),
	}
}

// Close closes every subscription. Later publishes are ignored and later
// subscriptions arrive already closed.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true

	for id, sub := range m.subscriptions {
		close(sub.ch)
		delete(m.subscriptions, id)
	}
	m.logger.Debug("event manager closed")
}
