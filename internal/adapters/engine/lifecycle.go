package engine

import (
	"github.com/eleven-am/conduit/internal/domain"
)

// lookup returns the bookkeeping of an active run.
func (e *Engine) lookup(op, runID string) (*runControl, error) {
	e.mu.RLock()
	rc, ok := e.runs[runID]
	e.mu.RUnlock()

	if !ok {
		e.logger.Debug("control on unknown run", "op", op, "run_id", runID)
		return nil, domain.NewControlError(op, runID, domain.ErrRunNotFound)
	}
	return rc, nil
}

// Pause closes the run's gate. The run stops at its next checkpoint; the
// node in flight finishes first. Pausing a paused run is a no-op.
func (e *Engine) Pause(runID string) error {
	rc, err := e.lookup("pause", runID)
	if err != nil {
		return err
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.run.Status.IsTerminal() {
		return domain.NewControlError("pause", runID, domain.ErrRunNotFound)
	}

	switch rc.flag {
	case flagPaused:
		return nil
	case flagCancelled:
		return domain.NewControlError("pause", runID, domain.ErrInvalidTransition)
	}

	rc.flag = flagPaused
	rc.gate = make(chan struct{})

	if rc.run.Status == domain.RunStatusRunning {
		_ = e.transition(rc, domain.RunStatusPaused, "run paused", nil)
	}

	e.metrics.IncrementRunsPaused()
	rc.logger.Info("run paused", "progress", rc.run.Progress, "current_node", rc.run.CurrentNode)
	return nil
}

// Resume reopens the gate of a paused run. Resuming a running run is a no-op.
func (e *Engine) Resume(runID string) error {
	rc, err := e.lookup("resume", runID)
	if err != nil {
		return err
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.run.Status.IsTerminal() {
		return domain.NewControlError("resume", runID, domain.ErrRunNotFound)
	}

	switch rc.flag {
	case flagRunning:
		return nil
	case flagCancelled:
		return domain.NewControlError("resume", runID, domain.ErrInvalidTransition)
	}

	rc.flag = flagRunning
	close(rc.gate)

	if rc.run.Status == domain.RunStatusPaused {
		_ = e.transition(rc, domain.RunStatusRunning, "run resumed", nil)
	}

	e.metrics.IncrementRunsResumed()
	rc.logger.Info("run resumed", "current_node", rc.run.CurrentNode)
	return nil
}

// Cancel flags the run and wakes it if paused. The run finishes as cancelled
// at its next checkpoint; no further node starts.
func (e *Engine) Cancel(runID string) error {
	rc, err := e.lookup("cancel", runID)
	if err != nil {
		return err
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.run.Status.IsTerminal() {
		return domain.NewControlError("cancel", runID, domain.ErrRunNotFound)
	}
	if rc.flag == flagCancelled {
		return nil
	}

	if rc.flag == flagPaused {
		close(rc.gate)
	}
	rc.flag = flagCancelled
	rc.cancelReason = reasonCancelled

	rc.logger.Info("run cancellation requested", "current_node", rc.run.CurrentNode)
	return nil
}
