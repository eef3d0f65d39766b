package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/xjson"
)

func (s *Store) SaveTrigger(ctx context.Context, trigger domain.Trigger) error {
	if trigger.ID == "" {
		return domain.NewValidationError("trigger.id", "trigger id is required")
	}

	config, err := xjson.EncodeMap(trigger.Config)
	if err != nil {
		return domain.NewPersistenceError("save_trigger", trigger.ID, err)
	}

	enabled := 0
	if trigger.Enabled {
		enabled = 1
	}

	return s.write(ctx, "save_trigger", trigger.ID, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO triggers (id, workflow_id, type, config, enabled, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				workflow_id = excluded.workflow_id,
				type        = excluded.type,
				config      = excluded.config,
				enabled     = excluded.enabled,
				created_at  = excluded.created_at`,
			trigger.ID, trigger.WorkflowID, trigger.Type, config, enabled, formatTime(trigger.CreatedAt))
		return err
	})
}

// ListTriggers returns a workflow's triggers in creation order.
func (s *Store) ListTriggers(ctx context.Context, workflowID string) ([]domain.Trigger, error) {
	if err := s.readGuard("list_triggers", workflowID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, type, config, enabled, created_at FROM triggers
		 WHERE workflow_id = ? ORDER BY created_at ASC, rowid ASC`, workflowID)
	if err != nil {
		return nil, domain.NewPersistenceError("list_triggers", workflowID, err)
	}
	defer rows.Close()

	triggers := make([]domain.Trigger, 0)
	for rows.Next() {
		var (
			trg       domain.Trigger
			wfID      sql.NullString
			trgType   sql.NullString
			config    sql.NullString
			enabled   sql.NullInt64
			createdAt sql.NullString
		)
		if err := rows.Scan(&trg.ID, &wfID, &trgType, &config, &enabled, &createdAt); err != nil {
			return nil, domain.NewPersistenceError("list_triggers", workflowID, err)
		}

		trg.WorkflowID = wfID.String
		trg.Type = trgType.String
		trg.Enabled = enabled.Int64 != 0
		if trg.Config, err = xjson.DecodeMap(config.String); err != nil {
			return nil, domain.NewPersistenceError("list_triggers", trg.ID, fmt.Errorf("decode config: %w", err))
		}
		if createdAt.Valid && createdAt.String != "" {
			if trg.CreatedAt, err = parseTime(createdAt.String); err != nil {
				return nil, domain.NewPersistenceError("list_triggers", trg.ID, err)
			}
		}
		triggers = append(triggers, trg)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewPersistenceError("list_triggers", workflowID, err)
	}
	return triggers, nil
}

func (s *Store) DeleteTrigger(ctx context.Context, triggerID string) error {
	return s.deleteByID(ctx, "delete_trigger", "triggers", triggerID)
}
