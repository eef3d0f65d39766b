package ports

import (
	"context"

	"github.com/eleven-am/conduit/internal/domain"
)

// RunContext is the shared state a run exposes to its node executors.
type RunContext interface {
	RunID() string
	WorkflowID() string
	Params() map[string]interface{}
	Variable(key string) (interface{}, bool)
	SetVariable(key string, value interface{})
	DeleteVariable(key string)
	Variables() map[string]interface{}
}

// NodeExecutor runs one node. Execute may block on I/O; the engine treats a
// returned error or a panic as a node failure.
type NodeExecutor interface {
	Execute(ctx context.Context, node domain.Node, runCtx RunContext) (map[string]interface{}, error)
	ValidateConfig(config map[string]interface{}) error
}

// ExecutorFactory builds a fresh executor for every node invocation.
type ExecutorFactory func() NodeExecutor

type NodeRegistryPort interface {
	Register(nodeType string, factory ExecutorFactory) error
	Unregister(nodeType string) error
	GetExecutor(nodeType string) (NodeExecutor, error)
	HasNodeType(nodeType string) bool
	ListNodeTypes() []string
}

// BaseExecutor accepts every config. Embed it to inherit the default.
type BaseExecutor struct{}

func (BaseExecutor) ValidateConfig(map[string]interface{}) error {
	return nil
}

// ExecutorFunc adapts a plain function to NodeExecutor.
type ExecutorFunc func(ctx context.Context, node domain.Node, runCtx RunContext) (map[string]interface{}, error)

func (f ExecutorFunc) Execute(ctx context.Context, node domain.Node, runCtx RunContext) (map[string]interface{}, error) {
	return f(ctx, node, runCtx)
}

func (f ExecutorFunc) ValidateConfig(map[string]interface{}) error {
	return nil
}
