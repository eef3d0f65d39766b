package engine

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/ports"
)

type controlFlag int

const (
	flagRunning controlFlag = iota
	flagPaused
	flagCancelled
)

func (f controlFlag) String() string {
	switch f {
	case flagPaused:
		return "paused"
	case flagCancelled:
		return "cancelled"
	default:
		return "running"
	}
}

// runControl is the per-run bookkeeping. mu serializes every status
// transition, persist and publish for the run. gate is closed while the run
// may proceed and replaced by an open channel on pause, so flag == paused
// exactly when gate is unclosed.
type runControl struct {
	mu           sync.Mutex
	run          domain.Run
	workflow     *domain.Workflow
	flag         controlFlag
	gate         chan struct{}
	cancelReason string
	logger       *slog.Logger

	varsMu sync.RWMutex
	vars   map[string]interface{}

	started atomic.Bool
	done    chan struct{}
}

var _ ports.RunContext = (*runControl)(nil)

func newRunControl(run domain.Run, workflow *domain.Workflow, vars map[string]interface{}, logger *slog.Logger) *runControl {
	gate := make(chan struct{})
	close(gate)

	if vars == nil {
		vars = make(map[string]interface{})
	}

	return &runControl{
		run:      run,
		workflow: workflow,
		flag:     flagRunning,
		gate:     gate,
		vars:     vars,
		logger:   ports.RunLogger(logger, run),
		done:     make(chan struct{}),
	}
}

func (rc *runControl) snapshot() domain.Run {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.run.Clone()
}

func (rc *runControl) RunID() string {
	return rc.run.ID
}

func (rc *runControl) WorkflowID() string {
	return rc.run.WorkflowID
}

// Params returns a copy of the caller-supplied input.
func (rc *runControl) Params() map[string]interface{} {
	return domain.CopyMap(rc.run.Params)
}

func (rc *runControl) Variable(key string) (interface{}, bool) {
	rc.varsMu.RLock()
	defer rc.varsMu.RUnlock()
	v, ok := rc.vars[key]
	return v, ok
}

func (rc *runControl) SetVariable(key string, value interface{}) {
	rc.varsMu.Lock()
	defer rc.varsMu.Unlock()
	rc.vars[key] = value
}

func (rc *runControl) DeleteVariable(key string) {
	rc.varsMu.Lock()
	defer rc.varsMu.Unlock()
	delete(rc.vars, key)
}

func (rc *runControl) Variables() map[string]interface{} {
	rc.varsMu.RLock()
	defer rc.varsMu.RUnlock()

	return domain.CopyMap(rc.vars)
}

// mergeResult stores a node's result under its id.
func (rc *runControl) mergeResult(nodeID string, result map[string]interface{}) error {
	if len(result) == 0 {
		return nil
	}

	rc.varsMu.Lock()
	defer rc.varsMu.Unlock()

	merged, err := domain.MergeVariables(rc.vars, map[string]interface{}{nodeID: result})
	if err != nil {
		return err
	}
	rc.vars = merged
	return nil
}
