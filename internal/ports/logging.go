package ports

import (
	"io"
	"log/slog"
	"os"

	"github.com/eleven-am/conduit/internal/domain"
)

// NewLogger builds the process logger from config. A nil writer means stderr.
func NewLogger(cfg domain.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := domain.ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler), nil
}

// RunLogger scopes a logger to a single run.
func RunLogger(logger *slog.Logger, run domain.Run) *slog.Logger {
	return logger.With(
		"run_id", run.ID,
		"workflow_id", run.WorkflowID,
		"priority", string(run.Priority),
	)
}

// NodeLogger scopes a run logger to one node.
func NodeLogger(logger *slog.Logger, node domain.Node) *slog.Logger {
	return logger.With(
		"node_id", node.ID,
		"node_type", node.Type,
	)
}

// DiscardLogger is used by tests and by callers that pass a nil logger
// where silence is preferred over slog.Default.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
