package engine

import (
	"context"

	"github.com/eleven-am/conduit/internal/domain"
)

// RunHandle is returned by Submit. The engine owns the run's lifetime;
// dropping the handle does not affect the run.
type RunHandle struct {
	ID string

	engine  *Engine
	rc      *runControl
	initial domain.Run
}

// Run returns the current snapshot of the run.
func (h *RunHandle) Run() domain.Run {
	return h.rc.snapshot()
}

// Initial returns the run as it was persisted on submission, still pending.
func (h *RunHandle) Initial() domain.Run {
	return h.initial.Clone()
}

// Done is closed once the run reaches a terminal status and has been released.
func (h *RunHandle) Done() <-chan struct{} {
	return h.rc.done
}

func (h *RunHandle) Cancel() error {
	return h.engine.Cancel(h.ID)
}

// Wait blocks until the run finishes or ctx ends, returning the latest snapshot.
func (h *RunHandle) Wait(ctx context.Context) (domain.Run, error) {
	select {
	case <-h.rc.done:
		return h.Run(), nil
	case <-ctx.Done():
		return h.Run(), ctx.Err()
	}
}

type runOptions struct {
	priority domain.Priority
	trigger  string
	metadata map[string]interface{}
}

type RunOption func(*runOptions)

func WithPriority(priority domain.Priority) RunOption {
	return func(o *runOptions) { o.priority = priority }
}

// WithTrigger records what started the run; the default is "manual".
func WithTrigger(trigger string) RunOption {
	return func(o *runOptions) { o.trigger = trigger }
}

func WithMetadata(metadata map[string]interface{}) RunOption {
	return func(o *runOptions) {
		if o.metadata == nil {
			o.metadata = make(map[string]interface{}, len(metadata))
		}
		for k, v := range metadata {
			o.metadata[k] = v
		}
	}
}
