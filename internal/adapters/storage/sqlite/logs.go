package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/xjson"
)

// AppendLog inserts one event; log rows are never updated.
func (s *Store) AppendLog(ctx context.Context, event domain.Event) error {
	if event.RunID == "" {
		return domain.NewValidationError("event.run_id", "run id is required")
	}

	var payload sql.NullString
	if event.Payload != nil {
		encoded, err := xjson.EncodeMap(event.Payload)
		if err != nil {
			return domain.NewPersistenceError("append_log", event.RunID, err)
		}
		payload = sql.NullString{String: encoded, Valid: true}
	}

	var progress sql.NullFloat64
	if event.Progress != nil {
		progress = sql.NullFloat64{Float64: *event.Progress, Valid: true}
	}

	kind := event.Kind
	if kind == "" {
		kind = domain.EventKindNode
	}

	return s.write(ctx, "append_log", event.RunID, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO logs (run_id, node_id, status, message, timestamp, payload, progress, kind)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			event.RunID,
			event.NodeID,
			string(event.Status),
			event.Message,
			formatTime(event.Timestamp),
			payload,
			progress,
			string(kind),
		)
		return err
	})
}

// FetchLogs returns a run's events in the order they were appended.
func (s *Store) FetchLogs(ctx context.Context, runID string) ([]domain.Event, error) {
	if err := s.readGuard("fetch_logs", runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, node_id, status, message, timestamp, payload, progress, kind
		 FROM logs WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, domain.NewPersistenceError("fetch_logs", runID, err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, domain.NewPersistenceError("fetch_logs", runID, err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewPersistenceError("fetch_logs", runID, err)
	}
	return events, nil
}

func scanEvent(row rowScanner) (domain.Event, error) {
	var (
		event     domain.Event
		nodeID    sql.NullString
		status    sql.NullString
		message   sql.NullString
		timestamp sql.NullString
		payload   sql.NullString
		progress  sql.NullFloat64
		kind      sql.NullString
	)

	if err := row.Scan(&event.RunID, &nodeID, &status, &message, &timestamp, &payload, &progress, &kind); err != nil {
		return domain.Event{}, err
	}

	event.NodeID = nodeID.String
	event.Status = domain.EventStatus(status.String)
	event.Message = message.String
	event.Kind = domain.EventKind(kind.String)
	if event.Kind == "" {
		event.Kind = domain.EventKindNode
	}

	if timestamp.Valid && timestamp.String != "" {
		ts, err := parseTime(timestamp.String)
		if err != nil {
			return domain.Event{}, err
		}
		event.Timestamp = ts
	}
	if progress.Valid {
		p := progress.Float64
		event.Progress = &p
	}
	if payload.Valid && payload.String != "" {
		decoded, err := xjson.DecodeMap(payload.String)
		if err != nil {
			return domain.Event{}, fmt.Errorf("decode payload: %w", err)
		}
		if len(decoded) > 0 {
			event.Payload = decoded
		}
	}

	return event, nil
}
