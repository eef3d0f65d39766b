package engine

import (
	"errors"

	"github.com/eleven-am/conduit/internal/domain"
)

const (
	engineComponent       = "engine.Engine"
	executorComponent     = "engine.Executor"
	stateManagerComponent = "engine.StateManager"
)

const (
	reasonCancelled = "run cancelled by request"
	reasonShutdown  = "engine shutting down"
)

func errorCategory(err error) string {
	switch {
	case err == nil:
		return ""
	case domain.IsValidation(err):
		return "validation"
	case domain.IsControl(err):
		return "control"
	case domain.IsPersistence(err):
		return "persistence"
	case domain.IsExecution(err):
		return "execution"
	case errors.Is(err, domain.ErrEngineClosed):
		return "lifecycle"
	default:
		return "internal"
	}
}

func errorLogAttrs(component string, err error) []any {
	if err == nil {
		return nil
	}

	attrs := []any{
		"error", err,
		"error_category", errorCategory(err),
		"error_component", component,
	}

	var persistenceErr *domain.PersistenceError
	if errors.As(err, &persistenceErr) {
		attrs = append(attrs, "error_operation", persistenceErr.Op)
	}

	var executionErr *domain.ExecutionError
	if errors.As(err, &executionErr) {
		attrs = append(attrs, "node_id", executionErr.NodeID, "node_type", executionErr.NodeType)
	}

	return attrs
}
