package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	Version int
	Name    string
	Up      func(ctx context.Context, tx *sql.Tx) error
}

// migrations are additive only. Databases written by older releases that
// predate schema_migrations are adopted: CREATE IF NOT EXISTS leaves their
// tables alone and addColumnIfMissing fills the gaps.
var migrations = []migration{
	// 001: base runs and logs tables.
	{
		Version: 1,
		Name:    "create_runs_and_logs",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			return execAll(ctx, tx,
				`CREATE TABLE IF NOT EXISTS runs (
					id            TEXT PRIMARY KEY,
					workflow_id   TEXT,
					workflow_name TEXT,
					status        TEXT,
					"trigger"     TEXT,
					started_at    TEXT,
					finished_at   TEXT
				)`,
				`CREATE TABLE IF NOT EXISTS logs (
					id        INTEGER PRIMARY KEY AUTOINCREMENT,
					run_id    TEXT,
					node_id   TEXT,
					status    TEXT,
					message   TEXT,
					timestamp TEXT
				)`,
			)
		},
	},

	// 002: parameter templates and triggers.
	{
		Version: 2,
		Name:    "create_templates_and_triggers",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			return execAll(ctx, tx,
				`CREATE TABLE IF NOT EXISTS templates (
					id          TEXT PRIMARY KEY,
					workflow_id TEXT,
					name        TEXT,
					params      TEXT,
					created_at  TEXT
				)`,
				`CREATE TABLE IF NOT EXISTS triggers (
					id          TEXT PRIMARY KEY,
					workflow_id TEXT,
					type        TEXT,
					config      TEXT,
					enabled     INTEGER,
					created_at  TEXT
				)`,
				`CREATE INDEX IF NOT EXISTS idx_templates_workflow ON templates (workflow_id, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_triggers_workflow ON triggers (workflow_id, created_at)`,
			)
		},
	},

	// 003: run progress, context and diagnostics.
	{
		Version: 3,
		Name:    "add_run_state_columns",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			columns := []struct{ name, definition string }{
				{"priority", "TEXT DEFAULT 'medium'"},
				{"progress", "REAL DEFAULT 0"},
				{"params", "TEXT"},
				{"current_node", "TEXT"},
				{"error", "TEXT"},
				{"metadata", "TEXT"},
			}
			for _, c := range columns {
				if err := addColumnIfMissing(ctx, tx, "runs", c.name, c.definition); err != nil {
					return err
				}
			}
			return execAll(ctx, tx,
				`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at)`,
				`CREATE INDEX IF NOT EXISTS idx_runs_workflow ON runs (workflow_id, started_at)`,
			)
		},
	},

	// 004: structured log payloads.
	{
		Version: 4,
		Name:    "add_log_payload_columns",
		Up: func(ctx context.Context, tx *sql.Tx) error {
			columns := []struct{ name, definition string }{
				{"payload", "TEXT"},
				{"progress", "REAL"},
				{"kind", "TEXT DEFAULT 'node'"},
			}
			for _, c := range columns {
				if err := addColumnIfMissing(ctx, tx, "logs", c.name, c.definition); err != nil {
					return err
				}
			}
			return execAll(ctx, tx,
				`CREATE INDEX IF NOT EXISTS idx_logs_run ON logs (run_id, id)`,
			)
		},
	},
}

// Migrate applies every migration not yet recorded in schema_migrations, in
// version order, each in its own transaction. Safe to call repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.write(ctx, "migrate", "schema_migrations", func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`)
		return err
	})
	if err != nil {
		return err
	}

	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		m := m
		err := s.write(ctx, "migrate", m.Name, func(ctx context.Context, tx *sql.Tx) error {
			if err := m.Up(ctx, tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
				m.Version, m.Name, formatTime(time.Now()))
			return err
		})
		if err != nil {
			s.logger.Error("migration failed", "version", m.Version, "name", m.Name, "error", err)
			return err
		}
		s.logger.Info("migration applied", "version", m.Version, "name", m.Name)
	}

	return nil
}

// SchemaVersion reports the highest applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if err := s.readGuard("schema_version", ""); err != nil {
		return 0, err
	}

	var version sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, wrapRead("schema_version", "", err)
	}
	return int(version.Int64), nil
}

func (s *Store) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, wrapRead("migrate", "schema_migrations", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, wrapRead("migrate", "schema_migrations", err)
		}
		applied[version] = true
	}
	return applied, wrapRead("migrate", "schema_migrations", rows.Err())
}

func execAll(ctx context.Context, tx *sql.Tx, statements ...string) error {
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func addColumnIfMissing(ctx context.Context, tx *sql.Tx, table, column, definition string) error {
	columns, err := tableColumns(ctx, tx, table)
	if err != nil {
		return err
	}
	if columns[column] {
		return nil
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition))
	return err
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func tableColumns(ctx context.Context, q queryer, table string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	return columns, rows.Err()
}
