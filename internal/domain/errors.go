package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrRunNotFound       = errors.New("run not found")
	ErrUnknownNodeType   = errors.New("unknown node type")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInvalidTransition = errors.New("invalid run status transition")
	ErrStorageClosed     = errors.New("storage closed")
	ErrEngineClosed      = errors.New("engine closed")
	ErrRunAlreadyActive  = errors.New("run already active")
)

// ValidationError is raised before any run state is created.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

type UnknownNodeTypeError struct {
	NodeType string
}

func (e *UnknownNodeTypeError) Error() string {
	return "unknown node type: " + e.NodeType
}

func (e *UnknownNodeTypeError) Unwrap() error {
	return ErrUnknownNodeType
}

// ExecutionError is a node executor failure during a run.
type ExecutionError struct {
	RunID    string
	NodeID   string
	NodeType string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("node %s (%s) failed: %v", e.NodeID, e.NodeType, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func NewExecutionError(runID, nodeID, nodeType string, err error) *ExecutionError {
	return &ExecutionError{RunID: runID, NodeID: nodeID, NodeType: nodeType, Err: err}
}

// ControlError is returned by pause, resume and cancel.
type ControlError struct {
	Op    string
	RunID string
	Err   error
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("%s run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *ControlError) Unwrap() error {
	return e.Err
}

func NewControlError(op, runID string, err error) *ControlError {
	return &ControlError{Op: op, RunID: runID, Err: err}
}

type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func NewPersistenceError(op, key string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Key: key, Err: err}
}

type NodeRegistrationError struct {
	NodeType string
	Reason   string
}

func (e *NodeRegistrationError) Error() string {
	return "node registration failed for '" + e.NodeType + "': " + e.Reason
}

func (e *NodeRegistrationError) Unwrap() error {
	return ErrInvalidInput
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrRunNotFound)
}

func IsUnknownNodeType(err error) bool {
	return errors.Is(err, ErrUnknownNodeType)
}

func IsValidation(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr) || IsUnknownNodeType(err)
}

func IsPersistence(err error) bool {
	var persistenceErr *PersistenceError
	return errors.As(err, &persistenceErr)
}

func IsControl(err error) bool {
	var controlErr *ControlError
	return errors.As(err, &controlErr)
}

func IsExecution(err error) bool {
	var executionErr *ExecutionError
	return errors.As(err, &executionErr)
}
