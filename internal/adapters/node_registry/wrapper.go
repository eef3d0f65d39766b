package node_registry

import (
	"context"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/ports"
	"github.com/eleven-am/conduit/internal/xjson"
)

// TypedNode is a node whose config decodes into C.
type TypedNode[C any] interface {
	Execute(ctx context.Context, config C, runCtx ports.RunContext) (map[string]interface{}, error)
}

// ConfigValidator is optionally implemented by typed configs.
type ConfigValidator interface {
	Validate() error
}

// NodeWrapper adapts a TypedNode to ports.NodeExecutor by round-tripping the
// node's free-form config through JSON into C.
type NodeWrapper[C any] struct {
	nodeType string
	node     TypedNode[C]
}

func NewNodeWrapper[C any](nodeType string, node TypedNode[C]) (*NodeWrapper[C], error) {
	if nodeType == "" {
		return nil, &domain.NodeRegistrationError{NodeType: nodeType, Reason: "node type cannot be empty"}
	}
	if node == nil {
		return nil, &domain.NodeRegistrationError{NodeType: nodeType, Reason: "node cannot be nil"}
	}
	return &NodeWrapper[C]{nodeType: nodeType, node: node}, nil
}

// RegisterTyped registers a typed node under nodeType.
func RegisterTyped[C any](registry ports.NodeRegistryPort, nodeType string, node TypedNode[C]) error {
	wrapper, err := NewNodeWrapper(nodeType, node)
	if err != nil {
		return err
	}
	return registry.Register(nodeType, func() ports.NodeExecutor { return wrapper })
}

func (nw *NodeWrapper[C]) NodeType() string {
	return nw.nodeType
}

func (nw *NodeWrapper[C]) ValidateConfig(config map[string]interface{}) error {
	_, err := nw.decode(config)
	return err
}

func (nw *NodeWrapper[C]) Execute(ctx context.Context, node domain.Node, runCtx ports.RunContext) (map[string]interface{}, error) {
	config, err := nw.decode(node.Config)
	if err != nil {
		return nil, err
	}
	return nw.node.Execute(ctx, config, runCtx)
}

func (nw *NodeWrapper[C]) decode(raw map[string]interface{}) (C, error) {
	var config C
	if len(raw) > 0 {
		data, err := xjson.Marshal(raw)
		if err != nil {
			return config, &domain.ValidationError{Field: "config", Message: "config is not serializable", Err: err}
		}
		if err := xjson.Unmarshal(data, &config); err != nil {
			return config, &domain.ValidationError{Field: "config", Message: "config does not match " + nw.nodeType + " schema", Err: domain.ErrInvalidInput}
		}
	}

	if v, ok := any(&config).(ConfigValidator); ok {
		if err := v.Validate(); err != nil {
			return config, &domain.ValidationError{Field: "config", Message: err.Error(), Err: domain.ErrInvalidInput}
		}
	}
	return config, nil
}
