package badger

import (
	"context"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v3"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/xjson"
)

func logPrefix(runID string) string {
	return prefixLog + escape(runID) + ":"
}

// AppendLog stores the event under a monotonically increasing sequence so a
// prefix scan returns emission order.
func (s *Store) AppendLog(ctx context.Context, event domain.Event) error {
	if event.RunID == "" {
		return domain.NewValidationError("event.run_id", "run id is required")
	}
	if event.Kind == "" {
		event.Kind = domain.EventKindNode
	}

	return s.update(ctx, "append_log", event.RunID, func(txn *badgerdb.Txn) error {
		seq, err := s.logSeq.Next()
		if err != nil {
			return err
		}
		return setJSON(txn, fmt.Sprintf("%s%020d", logPrefix(event.RunID), seq), event)
	})
}

func (s *Store) FetchLogs(ctx context.Context, runID string) ([]domain.Event, error) {
	events := make([]domain.Event, 0)
	prefix := logPrefix(runID)

	err := s.view(ctx, "fetch_logs", runID, func(txn *badgerdb.Txn) error {
		return scanPrefix(txn, prefix, false, func(_ string, item *badgerdb.Item) (bool, error) {
			var event domain.Event
			if err := item.Value(func(val []byte) error {
				return xjson.Unmarshal(val, &event)
			}); err != nil {
				return false, err
			}
			event.Timestamp = event.Timestamp.UTC()
			events = append(events, event)
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
