package domain

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusPaused,
		RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

var runTransitions = map[RunStatus][]RunStatus{
	RunStatusPending: {RunStatusRunning, RunStatusFailed, RunStatusCancelled},
	RunStatusRunning: {RunStatusRunning, RunStatusPaused, RunStatusCompleted, RunStatusFailed, RunStatusCancelled},
	RunStatusPaused:  {RunStatusPaused, RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusCancelled},
}

// CanTransition reports whether a run may move from one status to another.
// Self transitions on running and paused carry progress updates.
func CanTransition(from, to RunStatus) bool {
	for _, next := range runTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

const DefaultTrigger = "manual"

type Run struct {
	ID           string                 `json:"id"`
	WorkflowID   string                 `json:"workflow_id"`
	WorkflowName string                 `json:"workflow_name"`
	Status       RunStatus              `json:"status"`
	Trigger      string                 `json:"trigger"`
	Priority     Priority               `json:"priority"`
	StartedAt    time.Time              `json:"started_at"`
	FinishedAt   *time.Time             `json:"finished_at,omitempty"`
	Progress     float64                `json:"progress"`
	CurrentNode  string                 `json:"current_node,omitempty"`
	Params       map[string]interface{} `json:"params"`
	Error        string                 `json:"error,omitempty"`
	Metadata     map[string]interface{} `json:"metadata"`
}

func NewRun(workflow *Workflow, params map[string]interface{}, priority Priority) Run {
	if params == nil {
		params = make(map[string]interface{})
	}
	if priority == "" {
		priority = PriorityMedium
	}

	return Run{
		ID:           uuid.New().String(),
		WorkflowID:   workflow.ID,
		WorkflowName: workflow.Name,
		Status:       RunStatusPending,
		Trigger:      DefaultTrigger,
		Priority:     priority,
		StartedAt:    time.Now().UTC(),
		Params:       params,
		Metadata: map[string]interface{}{
			"workflow_version": workflow.Version,
			"node_count":       len(workflow.Nodes),
		},
	}
}

// Clone returns a copy whose maps and FinishedAt can be handed to other
// goroutines without sharing the original's storage.
func (r Run) Clone() Run {
	out := r
	out.Params = CopyMap(r.Params)
	out.Metadata = CopyMap(r.Metadata)
	if r.FinishedAt != nil {
		finished := *r.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}
