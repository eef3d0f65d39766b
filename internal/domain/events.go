package domain

import "time"

type EventKind string

const (
	EventKindNode EventKind = "node"
	EventKindRun  EventKind = "run"
)

// EventStatus shares the run status vocabulary. Node events only ever use
// pending, running, completed and failed.
type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusRunning   EventStatus = "running"
	EventStatusPaused    EventStatus = "paused"
	EventStatusCompleted EventStatus = "completed"
	EventStatusFailed    EventStatus = "failed"
	EventStatusCancelled EventStatus = "cancelled"
)

type Event struct {
	RunID     string                 `json:"run_id"`
	NodeID    string                 `json:"node_id"`
	Kind      EventKind              `json:"kind"`
	Status    EventStatus            `json:"status"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Progress  *float64               `json:"progress,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

func NewNodeEvent(runID, nodeID string, status EventStatus, message string, progress float64) Event {
	return Event{
		RunID:     runID,
		NodeID:    nodeID,
		Kind:      EventKindNode,
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Progress:  &progress,
	}
}

// NewRunEvent records a change of the run's own status or progress.
func NewRunEvent(run Run, message string) Event {
	progress := run.Progress
	return Event{
		RunID:     run.ID,
		NodeID:    run.CurrentNode,
		Kind:      EventKindRun,
		Status:    EventStatus(run.Status),
		Message:   message,
		Timestamp: time.Now().UTC(),
		Progress:  &progress,
	}
}

type MessageKind string

const (
	MessageKindEvent MessageKind = "event"
	MessageKindRun   MessageKind = "run"
)

// Message is the payload fanned out to subscribers. Exactly one of Event or
// Run is set, matching Kind.
type Message struct {
	Kind  MessageKind `json:"kind"`
	RunID string      `json:"run_id"`
	Event *Event      `json:"event,omitempty"`
	Run   *Run        `json:"run,omitempty"`
}

func EventMessage(event Event) Message {
	return Message{Kind: MessageKindEvent, RunID: event.RunID, Event: &event}
}

func RunMessage(run Run) Message {
	snapshot := run.Clone()
	return Message{Kind: MessageKindRun, RunID: run.ID, Run: &snapshot}
}
