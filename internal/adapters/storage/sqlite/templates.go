package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/xjson"
)

func (s *Store) SaveTemplate(ctx context.Context, template domain.ParameterTemplate) error {
	if template.ID == "" {
		return domain.NewValidationError("template.id", "template id is required")
	}

	params, err := xjson.EncodeMap(template.Params)
	if err != nil {
		return domain.NewPersistenceError("save_template", template.ID, err)
	}

	return s.write(ctx, "save_template", template.ID, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO templates (id, workflow_id, name, params, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				workflow_id = excluded.workflow_id,
				name        = excluded.name,
				params      = excluded.params,
				created_at  = excluded.created_at`,
			template.ID, template.WorkflowID, template.Name, params, formatTime(template.CreatedAt))
		return err
	})
}

// ListTemplates returns a workflow's templates, newest first.
func (s *Store) ListTemplates(ctx context.Context, workflowID string) ([]domain.ParameterTemplate, error) {
	if err := s.readGuard("list_templates", workflowID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, name, params, created_at FROM templates
		 WHERE workflow_id = ? ORDER BY created_at DESC, rowid DESC`, workflowID)
	if err != nil {
		return nil, domain.NewPersistenceError("list_templates", workflowID, err)
	}
	defer rows.Close()

	templates := make([]domain.ParameterTemplate, 0)
	for rows.Next() {
		var (
			tpl       domain.ParameterTemplate
			wfID      sql.NullString
			name      sql.NullString
			params    sql.NullString
			createdAt sql.NullString
		)
		if err := rows.Scan(&tpl.ID, &wfID, &name, &params, &createdAt); err != nil {
			return nil, domain.NewPersistenceError("list_templates", workflowID, err)
		}

		tpl.WorkflowID = wfID.String
		tpl.Name = name.String
		if tpl.Params, err = xjson.DecodeMap(params.String); err != nil {
			return nil, domain.NewPersistenceError("list_templates", tpl.ID, fmt.Errorf("decode params: %w", err))
		}
		if createdAt.Valid && createdAt.String != "" {
			if tpl.CreatedAt, err = parseTime(createdAt.String); err != nil {
				return nil, domain.NewPersistenceError("list_templates", tpl.ID, err)
			}
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewPersistenceError("list_templates", workflowID, err)
	}
	return templates, nil
}

// DeleteTemplate removes a template; an unknown id reports ErrNotFound.
func (s *Store) DeleteTemplate(ctx context.Context, templateID string) error {
	return s.deleteByID(ctx, "delete_template", "templates", templateID)
}

func (s *Store) deleteByID(ctx context.Context, op, table, id string) error {
	var affected int64
	err := s.write(ctx, op, id, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", table, id, domain.ErrNotFound)
	}
	return nil
}
