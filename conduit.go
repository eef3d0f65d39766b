// Package conduit runs desktop-automation style workflows as durable runs.
//
// A workflow is an ordered list of typed nodes. Each submitted run executes
// its nodes one after another in the background, can be paused, resumed or
// cancelled between nodes, and records every status change and node event in
// an embedded store (SQLite by default, Badger optionally) before fanning it
// out to subscribers.
//
// Basic usage:
//
//	manager, err := conduit.New(conduit.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer manager.Close(context.Background())
//
//	handle, err := manager.Submit(ctx, workflow, map[string]interface{}{"user": "ada"})
//	sub := manager.SubscribeRun(handle.ID)
//	for msg := range sub.C() {
//	    ...
//	}
package conduit

import (
	"github.com/eleven-am/conduit/internal/adapters/engine"
	"github.com/eleven-am/conduit/internal/adapters/node_registry"
	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/ports"
)

// Workflow is the immutable description of what a run executes.
type Workflow = domain.Workflow

type Node = domain.Node

type Edge = domain.Edge

// Run is a snapshot of one execution of a workflow.
type Run = domain.Run

type RunStatus = domain.RunStatus

const (
	RunStatusPending   = domain.RunStatusPending
	RunStatusRunning   = domain.RunStatusRunning
	RunStatusPaused    = domain.RunStatusPaused
	RunStatusCompleted = domain.RunStatusCompleted
	RunStatusFailed    = domain.RunStatusFailed
	RunStatusCancelled = domain.RunStatusCancelled
)

type Priority = domain.Priority

const (
	PriorityHigh   = domain.PriorityHigh
	PriorityMedium = domain.PriorityMedium
	PriorityLow    = domain.PriorityLow
)

// Event is one persisted log entry of a run, either a node event or a
// change of the run itself.
type Event = domain.Event

type EventKind = domain.EventKind

const (
	EventKindNode = domain.EventKindNode
	EventKindRun  = domain.EventKindRun
)

type EventStatus = domain.EventStatus

const (
	EventStatusPending   = domain.EventStatusPending
	EventStatusRunning   = domain.EventStatusRunning
	EventStatusPaused    = domain.EventStatusPaused
	EventStatusCompleted = domain.EventStatusCompleted
	EventStatusFailed    = domain.EventStatusFailed
	EventStatusCancelled = domain.EventStatusCancelled
)

// Message is what subscribers receive: an event or a run snapshot.
type Message = domain.Message

type MessageKind = domain.MessageKind

const (
	MessageKindEvent = domain.MessageKindEvent
	MessageKindRun   = domain.MessageKindRun
)

type ParameterTemplate = domain.ParameterTemplate

type Trigger = domain.Trigger

type ExecutionMetrics = domain.ExecutionMetrics

// NodeExecutor runs a single node. Register one per node type.
type NodeExecutor = ports.NodeExecutor

type ExecutorFactory = ports.ExecutorFactory

type ExecutorFunc = ports.ExecutorFunc

// RunContext is the run state visible to executors: params and variables.
type RunContext = ports.RunContext

type Subscription = ports.Subscription

type BusStats = ports.BusStats

// TypedNode is a node whose free-form config decodes into C.
type TypedNode[C any] = node_registry.TypedNode[C]

type RunHandle = engine.RunHandle

type RunOption = engine.RunOption

var (
	WithPriority = engine.WithPriority
	WithTrigger  = engine.WithTrigger
	WithMetadata = engine.WithMetadata
)

var (
	ErrNotFound          = domain.ErrNotFound
	ErrRunNotFound       = domain.ErrRunNotFound
	ErrUnknownNodeType   = domain.ErrUnknownNodeType
	ErrInvalidInput      = domain.ErrInvalidInput
	ErrInvalidConfig     = domain.ErrInvalidConfig
	ErrInvalidTransition = domain.ErrInvalidTransition
	ErrStorageClosed     = domain.ErrStorageClosed
	ErrEngineClosed      = domain.ErrEngineClosed
)

type ValidationError = domain.ValidationError

type ExecutionError = domain.ExecutionError

type ControlError = domain.ControlError

type PersistenceError = domain.PersistenceError

func IsNotFound(err error) bool    { return domain.IsNotFound(err) }
func IsValidation(err error) bool  { return domain.IsValidation(err) }
func IsPersistence(err error) bool { return domain.IsPersistence(err) }
func IsControl(err error) bool     { return domain.IsControl(err) }

// BuiltinNodeTypes lists the node types every manager starts with.
func BuiltinNodeTypes() []string {
	return append([]string(nil), node_registry.BuiltinTypes...)
}
