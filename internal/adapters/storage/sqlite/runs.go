package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/xjson"
)

const runColumns = `id, workflow_id, workflow_name, status, "trigger", started_at, finished_at,
	priority, progress, params, current_node, error, metadata`

// SaveRun upserts by id. The conflict clause keeps the original rowid so
// ties on started_at still list in creation order.
func (s *Store) SaveRun(ctx context.Context, run domain.Run) error {
	if run.ID == "" {
		return domain.NewValidationError("run.id", "run id is required")
	}

	params, err := xjson.EncodeMap(run.Params)
	if err != nil {
		return domain.NewPersistenceError("save_run", run.ID, err)
	}
	metadata, err := xjson.EncodeMap(run.Metadata)
	if err != nil {
		return domain.NewPersistenceError("save_run", run.ID, err)
	}

	var finishedAt sql.NullString
	if run.FinishedAt != nil {
		finishedAt = sql.NullString{String: formatTime(*run.FinishedAt), Valid: true}
	}

	return s.write(ctx, "save_run", run.ID, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (`+runColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				workflow_id   = excluded.workflow_id,
				workflow_name = excluded.workflow_name,
				status        = excluded.status,
				"trigger"     = excluded."trigger",
				started_at    = excluded.started_at,
				finished_at   = excluded.finished_at,
				priority      = excluded.priority,
				progress      = excluded.progress,
				params        = excluded.params,
				current_node  = excluded.current_node,
				error         = excluded.error,
				metadata      = excluded.metadata`,
			run.ID,
			run.WorkflowID,
			run.WorkflowName,
			string(run.Status),
			run.Trigger,
			formatTime(run.StartedAt),
			finishedAt,
			string(run.Priority),
			run.Progress,
			params,
			run.CurrentNode,
			run.Error,
			metadata,
		)
		return err
	})
}

func (s *Store) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	if err := s.readGuard("get_run", runID); err != nil {
		return domain.Run{}, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, fmt.Errorf("run %s: %w", runID, domain.ErrRunNotFound)
	}
	if err != nil {
		return domain.Run{}, domain.NewPersistenceError("get_run", runID, err)
	}
	return run, nil
}

// ListRuns returns the newest runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if err := s.readGuard("list_runs", ""); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limitOrDefault(limit))
	if err != nil {
		return nil, domain.NewPersistenceError("list_runs", "", err)
	}
	return collectRuns(rows, "list_runs", "")
}

func (s *Store) ListRunsByWorkflow(ctx context.Context, workflowID string, limit int) ([]domain.Run, error) {
	if err := s.readGuard("list_runs", workflowID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE workflow_id = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		workflowID, limitOrDefault(limit))
	if err != nil {
		return nil, domain.NewPersistenceError("list_runs", workflowID, err)
	}
	return collectRuns(rows, "list_runs", workflowID)
}

func (s *Store) ListUnfinishedRuns(ctx context.Context) ([]domain.Run, error) {
	if err := s.readGuard("list_unfinished_runs", ""); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE status IN (?, ?, ?) ORDER BY started_at ASC, rowid ASC`,
		string(domain.RunStatusPending), string(domain.RunStatusRunning), string(domain.RunStatusPaused))
	if err != nil {
		return nil, domain.NewPersistenceError("list_unfinished_runs", "", err)
	}
	return collectRuns(rows, "list_unfinished_runs", "")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (domain.Run, error) {
	var (
		run          domain.Run
		workflowID   sql.NullString
		workflowName sql.NullString
		status       sql.NullString
		trigger      sql.NullString
		startedAt    sql.NullString
		finishedAt   sql.NullString
		priority     sql.NullString
		progress     sql.NullFloat64
		params       sql.NullString
		currentNode  sql.NullString
		errText      sql.NullString
		metadata     sql.NullString
	)

	err := row.Scan(&run.ID, &workflowID, &workflowName, &status, &trigger, &startedAt, &finishedAt,
		&priority, &progress, &params, &currentNode, &errText, &metadata)
	if err != nil {
		return domain.Run{}, err
	}

	run.WorkflowID = workflowID.String
	run.WorkflowName = workflowName.String
	run.Status = domain.RunStatus(status.String)
	run.Trigger = trigger.String
	run.Priority = domain.Priority(priority.String)
	if run.Priority == "" {
		run.Priority = domain.PriorityMedium
	}
	run.Progress = progress.Float64
	run.CurrentNode = currentNode.String
	run.Error = errText.String

	if startedAt.Valid && startedAt.String != "" {
		if run.StartedAt, err = parseTime(startedAt.String); err != nil {
			return domain.Run{}, err
		}
	}
	if run.FinishedAt, err = nullableTime(finishedAt); err != nil {
		return domain.Run{}, err
	}
	if run.Params, err = xjson.DecodeMap(params.String); err != nil {
		return domain.Run{}, fmt.Errorf("decode params: %w", err)
	}
	if run.Metadata, err = xjson.DecodeMap(metadata.String); err != nil {
		return domain.Run{}, fmt.Errorf("decode metadata: %w", err)
	}

	return run, nil
}

func collectRuns(rows *sql.Rows, op, key string) ([]domain.Run, error) {
	defer rows.Close()

	runs := make([]domain.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, domain.NewPersistenceError(op, key, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewPersistenceError(op, key, err)
	}
	return runs, nil
}
