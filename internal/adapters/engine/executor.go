package engine

import (
	"fmt"
	"time"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/ports"
)

// runWorkflow is the background task that owns a run from pending to a
// terminal status. Nodes execute in list order; pause and cancel are observed
// only at checkpoints between nodes.
func (e *Engine) runWorkflow(rc *runControl) {
	defer e.wg.Done()
	defer e.release(rc)

	if !rc.started.CompareAndSwap(false, true) {
		rc.logger.Error("run already started")
		return
	}

	rc.mu.Lock()
	_ = e.transition(rc, domain.RunStatusRunning, "run started", func(run *domain.Run) {
		run.Progress = 0
	})
	rc.mu.Unlock()

	nodes := rc.workflow.Nodes
	total := float64(len(nodes))

	for i, node := range nodes {
		if !e.checkpoint(rc) {
			rc.mu.Unlock()
			return
		}

		startProgress := float64(i) / total
		node := node
		_ = e.transition(rc, domain.RunStatusRunning, "node started: "+node.DisplayName(), func(run *domain.Run) {
			run.Progress = startProgress
			run.CurrentNode = node.ID
		})
		e.emitNodeEvent(rc, domain.NewNodeEvent(rc.run.ID, node.ID, domain.EventStatusRunning, "running "+node.DisplayName(), startProgress))
		rc.mu.Unlock()

		result, err := e.executeNode(rc, node)

		rc.mu.Lock()
		if err != nil {
			if e.ctx.Err() != nil {
				rc.flag = flagCancelled
				rc.cancelReason = reasonShutdown
				e.finishCancelled(rc)
				rc.mu.Unlock()
				return
			}
			e.failRun(rc, node, err)
			rc.mu.Unlock()
			return
		}

		if mergeErr := rc.mergeResult(node.ID, result); mergeErr != nil {
			rc.logger.Warn("failed to merge node result into run context", "node_id", node.ID, "error", mergeErr)
		}

		completed := domain.NewNodeEvent(rc.run.ID, node.ID, domain.EventStatusCompleted, "completed "+node.DisplayName(), float64(i+1)/total)
		if len(result) > 0 {
			completed.Payload = result
		}
		e.emitNodeEvent(rc, completed)
		rc.mu.Unlock()
	}

	if !e.checkpoint(rc) {
		rc.mu.Unlock()
		return
	}
	if err := e.transition(rc, domain.RunStatusCompleted, "run completed", func(run *domain.Run) {
		run.Progress = 1
	}); err == nil {
		e.metrics.IncrementRunsCompleted()
		rc.logger.Info("run completed", "nodes", len(nodes))
	}
	rc.mu.Unlock()
}

// checkpoint blocks while the run is paused and returns with rc.mu held. It
// reports false once the run has been finalized as cancelled.
func (e *Engine) checkpoint(rc *runControl) bool {
	rc.mu.Lock()
	for {
		if e.ctx.Err() != nil && rc.flag != flagCancelled {
			if rc.flag == flagPaused {
				close(rc.gate)
			}
			rc.flag = flagCancelled
			rc.cancelReason = reasonShutdown
		}

		switch rc.flag {
		case flagCancelled:
			e.finishCancelled(rc)
			return false

		case flagPaused:
			if rc.run.Status != domain.RunStatusPaused {
				_ = e.transition(rc, domain.RunStatusPaused, "run paused", nil)
			}
			gate := rc.gate
			rc.mu.Unlock()

			rc.logger.Debug("run waiting at checkpoint")
			select {
			case <-gate:
			case <-e.ctx.Done():
			}
			rc.mu.Lock()

		default:
			return true
		}
	}
}

func (e *Engine) finishCancelled(rc *runControl) {
	reason := rc.cancelReason
	if reason == "" {
		reason = reasonCancelled
	}

	if err := e.transition(rc, domain.RunStatusCancelled, reason, func(run *domain.Run) {
		run.Error = reason
	}); err == nil {
		e.metrics.IncrementRunsCancelled()
		rc.logger.Info("run cancelled", "reason", reason, "current_node", rc.run.CurrentNode)
	}
}

func (e *Engine) failRun(rc *runControl, node domain.Node, err error) {
	execErr := domain.NewExecutionError(rc.run.ID, node.ID, node.Type, err)

	failed := domain.NewNodeEvent(rc.run.ID, node.ID, domain.EventStatusFailed, err.Error(), rc.run.Progress)
	e.emitNodeEvent(rc, failed)

	if tErr := e.transition(rc, domain.RunStatusFailed, execErr.Error(), func(run *domain.Run) {
		run.Error = err.Error()
	}); tErr == nil {
		e.metrics.IncrementRunsFailed()
	}
	rc.logger.Error("run failed", errorLogAttrs(executorComponent, execErr)...)
}

// executeNode resolves a fresh executor and runs it. A panic is reported as
// the node's error.
func (e *Engine) executeNode(rc *runControl, node domain.Node) (result map[string]interface{}, err error) {
	logger := ports.NodeLogger(rc.logger, node)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("node panicked: %v", r)
			logger.Error("node executor panicked", "panic", r)
		}
		e.metrics.RecordNodeExecution(time.Since(start), err == nil)
		logger.Debug("node finished", "duration", time.Since(start), "success", err == nil)
	}()

	executor, err := e.registry.GetExecutor(node.Type)
	if err != nil {
		return nil, err
	}

	return executor.Execute(e.ctx, node, rc)
}
