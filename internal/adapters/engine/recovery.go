package engine

import (
	"context"
	"time"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/helpers/metadata"
	"github.com/eleven-am/conduit/internal/ports"
)

const reasonInterrupted = "run interrupted: engine stopped before it finished"

// RecoverInterrupted fails every stored run that is unfinished but not owned
// by this engine. Such runs were left behind by a process that exited without
// finalizing them; nothing will ever resume them. It returns how many runs
// were closed.
func (e *Engine) RecoverInterrupted(ctx context.Context) (int, error) {
	runs, err := e.storage.ListUnfinishedRuns(ctx)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, run := range runs {
		if e.isOrphaned(run) {
			if err := e.markInterrupted(ctx, run); err != nil {
				return recovered, err
			}
			recovered++
		}
	}

	if recovered > 0 {
		e.logger.Warn("closed interrupted runs", "count", recovered)
	}
	return recovered, nil
}

func (e *Engine) isOrphaned(run domain.Run) bool {
	if run.Status.IsTerminal() || e.boot.Owns(run.Metadata) {
		return false
	}

	e.mu.RLock()
	_, active := e.runs[run.ID]
	e.mu.RUnlock()
	return !active
}

func (e *Engine) markInterrupted(ctx context.Context, run domain.Run) error {
	logger := ports.RunLogger(e.logger, run)

	finished := time.Now().UTC()
	run.Status = domain.RunStatusFailed
	run.Error = reasonInterrupted
	run.FinishedAt = &finished

	if err := e.storage.SaveRun(ctx, run); err != nil {
		logger.Error("failed to close interrupted run", errorLogAttrs(engineComponent, err)...)
		return err
	}
	if err := e.storage.AppendLog(ctx, domain.NewRunEvent(run, reasonInterrupted)); err != nil {
		logger.Warn("failed to log interrupted run", errorLogAttrs(engineComponent, err)...)
	}

	e.metrics.IncrementRunsFailed()
	logger.Info("interrupted run marked failed", "previous_boot_id", metadata.BootIDOf(run.Metadata))
	return nil
}
