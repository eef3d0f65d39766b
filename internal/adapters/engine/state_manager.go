package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/eleven-am/conduit/internal/domain"
)

const metadataPersistenceDegraded = "persistence_degraded"

// transition moves the run to status `to`, applies mutate, then persists and
// publishes the new snapshot. Callers must hold rc.mu.
func (e *Engine) transition(rc *runControl, to domain.RunStatus, message string, mutate func(run *domain.Run)) error {
	from := rc.run.Status
	if !domain.CanTransition(from, to) {
		err := fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
		rc.logger.Error("rejected run transition", errorLogAttrs(stateManagerComponent, err)...)
		return err
	}

	rc.run.Status = to
	if mutate != nil {
		mutate(&rc.run)
	}
	if to.IsTerminal() && rc.run.FinishedAt == nil {
		finished := time.Now().UTC()
		rc.run.FinishedAt = &finished
	}

	rc.logger.Debug("run transition",
		"from", string(from),
		"status", string(to),
		"progress", rc.run.Progress,
		"current_node", rc.run.CurrentNode)

	e.commitRun(rc, message)
	return nil
}

// commitRun persists the run and its run-level event, then publishes the
// run snapshot. Callers must hold rc.mu.
func (e *Engine) commitRun(rc *runControl, message string) {
	if err := e.persist(func(ctx context.Context) error {
		return e.storage.SaveRun(ctx, rc.run)
	}); err != nil {
		e.degrade(rc, "save_run", err)
	}

	event := domain.NewRunEvent(rc.run, message)
	if err := e.persist(func(ctx context.Context) error {
		return e.storage.AppendLog(ctx, event)
	}); err != nil {
		e.degrade(rc, "append_log", err)
	}

	e.bus.Publish(domain.RunMessage(rc.run))
}

// emitNodeEvent persists then publishes a node-level event. Callers must hold rc.mu.
func (e *Engine) emitNodeEvent(rc *runControl, event domain.Event) {
	if err := e.persist(func(ctx context.Context) error {
		return e.storage.AppendLog(ctx, event)
	}); err != nil {
		e.degrade(rc, "append_log", err)
	}

	e.bus.Publish(domain.EventMessage(event))
}

// persist bounds a storage write by the persist timeout. Writes are detached
// from the engine context: terminal states must still land during shutdown.
func (e *Engine) persist(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.PersistTimeout)
	defer cancel()
	return fn(ctx)
}

// degrade records a failed write. The run keeps going from memory and the
// write is not retried.
func (e *Engine) degrade(rc *runControl, op string, err error) {
	e.metrics.IncrementPersistenceFailures()

	if rc.run.Metadata == nil {
		rc.run.Metadata = make(map[string]interface{})
	}
	first := rc.run.Metadata[metadataPersistenceDegraded] != true
	rc.run.Metadata[metadataPersistenceDegraded] = true

	attrs := append([]any{"op", op, "first_failure", first}, errorLogAttrs(stateManagerComponent, err)...)
	rc.logger.Warn("persistence failed, continuing in memory", attrs...)
}
