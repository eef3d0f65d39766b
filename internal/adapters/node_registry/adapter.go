package node_registry

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/ports"
)

type Adapter struct {
	factories map[string]ports.ExecutorFactory
	mu        sync.RWMutex
	logger    *slog.Logger
}

// NewAdapter returns an empty registry. Use NewWithBuiltins for the standard catalog.
func NewAdapter(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		factories: make(map[string]ports.ExecutorFactory),
		logger:    logger.With("component", "node-registry"),
	}
}

// Register adds or replaces the factory for nodeType.
func (r *Adapter) Register(nodeType string, factory ports.ExecutorFactory) error {
	if nodeType == "" {
		r.logger.Error("attempted to register executor with empty node type")
		return &domain.NodeRegistrationError{
			NodeType: nodeType,
			Reason:   "node type cannot be empty",
		}
	}

	if factory == nil {
		r.logger.Error("attempted to register nil executor factory", "node_type", nodeType)
		return &domain.NodeRegistrationError{
			NodeType: nodeType,
			Reason:   "executor factory cannot be nil",
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[nodeType]; exists {
		r.logger.Debug("overwriting node executor", "node_type", nodeType)
	}

	r.factories[nodeType] = factory
	r.logger.Debug("node executor registered", "node_type", nodeType, "total_types", len(r.factories))
	return nil
}

func (r *Adapter) Unregister(nodeType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[nodeType]; !exists {
		r.logger.Debug("node type unregistration failed - not found", "node_type", nodeType)
		return &domain.UnknownNodeTypeError{NodeType: nodeType}
	}

	delete(r.factories, nodeType)
	r.logger.Debug("node type unregistered", "node_type", nodeType, "remaining_types", len(r.factories))
	return nil
}

// GetExecutor instantiates a fresh executor for nodeType.
func (r *Adapter) GetExecutor(nodeType string) (ports.NodeExecutor, error) {
	r.mu.RLock()
	factory, exists := r.factories[nodeType]
	r.mu.RUnlock()

	if !exists {
		r.logger.Debug("node type not found", "node_type", nodeType)
		return nil, &domain.UnknownNodeTypeError{NodeType: nodeType}
	}

	executor := factory()
	if executor == nil {
		return nil, &domain.NodeRegistrationError{
			NodeType: nodeType,
			Reason:   "factory returned nil executor",
		}
	}

	return executor, nil
}

func (r *Adapter) HasNodeType(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.factories[nodeType]
	return exists
}

// ListNodeTypes returns the registered types in lexical order.
func (r *Adapter) ListNodeTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodeTypes := make([]string, 0, len(r.factories))
	for nodeType := range r.factories {
		nodeTypes = append(nodeTypes, nodeType)
	}
	sort.Strings(nodeTypes)

	return nodeTypes
}

func (r *Adapter) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}
