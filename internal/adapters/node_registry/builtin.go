package node_registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/ports"
)

// Builtin node types, grouped the way the workflow editor presents them.
const (
	TypeClick    = "click"
	TypeInput    = "input"
	TypeDragDrop = "drag_drop"
	TypeScroll   = "scroll"
	TypeHover    = "hover"
	TypeKeyboard = "keyboard"
	TypeDelay    = "delay"

	TypeVariable    = "variable"
	TypeCompare     = "compare"
	TypeDataExtract = "data_extract"

	TypeHTTPRequest = "http_request"
	TypeSubworkflow = "subworkflow"

	TypeFileSelector  = "file_selector"
	TypeFileOperation = "file_operation"

	TypeClipboard    = "clipboard"
	TypeShellCommand = "shell_command"
	TypeAppControl   = "app_control"
)

// BuiltinTypes lists the catalog registered by NewWithBuiltins.
var BuiltinTypes = []string{
	TypeClick, TypeInput, TypeDragDrop, TypeScroll, TypeHover, TypeKeyboard, TypeDelay,
	TypeVariable, TypeCompare, TypeDataExtract,
	TypeHTTPRequest, TypeSubworkflow,
	TypeFileSelector, TypeFileOperation,
	TypeClipboard, TypeShellCommand, TypeAppControl,
}

const defaultDelayMillis = 1000

// NewWithBuiltins returns a registry preloaded with the builtin catalog.
// delay and variable run for real; every other builtin is a placeholder that
// waits simulatedDelay and succeeds, until the host registers a real executor.
func NewWithBuiltins(logger *slog.Logger, simulatedDelay time.Duration) *Adapter {
	r := NewAdapter(logger)

	for _, nodeType := range BuiltinTypes {
		nodeType := nodeType
		var factory ports.ExecutorFactory
		switch nodeType {
		case TypeDelay:
			factory = func() ports.NodeExecutor { return &DelayExecutor{} }
		case TypeVariable:
			factory = func() ports.NodeExecutor { return &VariableExecutor{} }
		default:
			factory = func() ports.NodeExecutor {
				return &SimulatedExecutor{NodeType: nodeType, Delay: simulatedDelay}
			}
		}
		_ = r.Register(nodeType, factory)
	}

	r.logger.Info("registered builtin node executors", "count", r.Count())
	return r
}

// DelayExecutor waits config.duration milliseconds.
type DelayExecutor struct {
	ports.BaseExecutor
}

func (e *DelayExecutor) ValidateConfig(config map[string]interface{}) error {
	if _, err := durationMillis(config); err != nil {
		return err
	}
	return nil
}

func (e *DelayExecutor) Execute(ctx context.Context, node domain.Node, _ ports.RunContext) (map[string]interface{}, error) {
	millis, err := durationMillis(node.Config)
	if err != nil {
		return nil, err
	}

	if err := sleep(ctx, time.Duration(millis)*time.Millisecond); err != nil {
		return nil, err
	}

	return map[string]interface{}{"duration": millis}, nil
}

func durationMillis(config map[string]interface{}) (int64, error) {
	raw, ok := config["duration"]
	if !ok || raw == nil {
		return defaultDelayMillis, nil
	}

	var millis int64
	switch v := raw.(type) {
	case int:
		millis = int64(v)
	case int64:
		millis = v
	case float64:
		millis = int64(v)
	default:
		return 0, domain.NewValidationError("config.duration", fmt.Sprintf("expected milliseconds, got %T", raw))
	}

	if millis < 0 {
		return 0, domain.NewValidationError("config.duration", "duration cannot be negative")
	}
	return millis, nil
}

// VariableExecutor sets, reads or deletes a run context variable.
type VariableExecutor struct{}

func (e *VariableExecutor) ValidateConfig(config map[string]interface{}) error {
	op, _ := config["operation"].(string)
	switch op {
	case "", "set", "get", "delete":
	default:
		return domain.NewValidationError("config.operation", "unsupported operation "+op)
	}

	if name, _ := config["name"].(string); name == "" {
		return domain.NewValidationError("config.name", "variable name is required")
	}
	return nil
}

func (e *VariableExecutor) Execute(_ context.Context, node domain.Node, runCtx ports.RunContext) (map[string]interface{}, error) {
	if err := e.ValidateConfig(node.Config); err != nil {
		return nil, err
	}

	name := node.Config["name"].(string)
	op, _ := node.Config["operation"].(string)

	switch op {
	case "get":
		value, _ := runCtx.Variable(name)
		return map[string]interface{}{name: value}, nil
	case "delete":
		runCtx.DeleteVariable(name)
		return map[string]interface{}{"deleted": name}, nil
	default:
		value := node.Config["value"]
		runCtx.SetVariable(name, value)
		return map[string]interface{}{name: value}, nil
	}
}

// SimulatedExecutor stands in for executors the host has not supplied yet.
type SimulatedExecutor struct {
	ports.BaseExecutor
	NodeType string
	Delay    time.Duration
}

func (e *SimulatedExecutor) Execute(ctx context.Context, node domain.Node, _ ports.RunContext) (map[string]interface{}, error) {
	if err := sleep(ctx, e.Delay); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"simulated": true,
		"type":      e.NodeType,
		"node_id":   node.ID,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
