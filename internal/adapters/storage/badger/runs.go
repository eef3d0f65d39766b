package badger

import (
	"context"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v3"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/ports"
)

const indexTimeLayout = "2006-01-02T15:04:05.000000000Z"

type runRecord struct {
	Run domain.Run `json:"run"`
	Seq uint64     `json:"seq"`
}

func runKey(runID string) string {
	return prefixRun + escape(runID)
}

func runIndexKey(run domain.Run, seq uint64) string {
	return fmt.Sprintf("%s%s:%020d:%s", prefixRunIndex, run.StartedAt.UTC().Format(indexTimeLayout), seq, escape(run.ID))
}

func workflowIndexPrefix(workflowID string) string {
	return prefixWorkflowIdx + escape(workflowID) + ":"
}

func workflowIndexKey(run domain.Run, seq uint64) string {
	return fmt.Sprintf("%s%s:%020d:%s", workflowIndexPrefix(run.WorkflowID), run.StartedAt.UTC().Format(indexTimeLayout), seq, escape(run.ID))
}

// SaveRun upserts the run and moves its index entries if started_at or the
// workflow changed. The first save fixes the run's tie-break sequence.
func (s *Store) SaveRun(ctx context.Context, run domain.Run) error {
	if run.ID == "" {
		return domain.NewValidationError("run.id", "run id is required")
	}

	return s.update(ctx, "save_run", run.ID, func(txn *badgerdb.Txn) error {
		var existing runRecord
		found, err := getJSON(txn, runKey(run.ID), &existing)
		if err != nil {
			return err
		}

		seq := existing.Seq
		if found {
			if err := txn.Delete([]byte(runIndexKey(existing.Run, existing.Seq))); err != nil {
				return err
			}
			if err := txn.Delete([]byte(workflowIndexKey(existing.Run, existing.Seq))); err != nil {
				return err
			}
		} else {
			if seq, err = s.nextRowSeq(); err != nil {
				return err
			}
		}

		if err := setJSON(txn, runKey(run.ID), runRecord{Run: run, Seq: seq}); err != nil {
			return err
		}
		if err := txn.Set([]byte(runIndexKey(run, seq)), []byte(run.ID)); err != nil {
			return err
		}
		return txn.Set([]byte(workflowIndexKey(run, seq)), []byte(run.ID))
	})
}

func (s *Store) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	var record runRecord
	err := s.view(ctx, "get_run", runID, func(txn *badgerdb.Txn) error {
		found, err := getJSON(txn, runKey(runID), &record)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("run %s: %w", runID, domain.ErrRunNotFound)
		}
		return nil
	})
	if err != nil {
		return domain.Run{}, err
	}
	return normalizeRun(record.Run), nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	return s.listRunsFromIndex(ctx, prefixRunIndex, limit)
}

func (s *Store) ListRunsByWorkflow(ctx context.Context, workflowID string, limit int) ([]domain.Run, error) {
	return s.listRunsFromIndex(ctx, workflowIndexPrefix(workflowID), limit)
}

// listRunsFromIndex walks an index newest first.
func (s *Store) listRunsFromIndex(ctx context.Context, prefix string, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = ports.DefaultListLimit
	}

	runs := make([]domain.Run, 0)
	err := s.view(ctx, "list_runs", prefix, func(txn *badgerdb.Txn) error {
		return scanPrefix(txn, prefix, true, func(_ string, item *badgerdb.Item) (bool, error) {
			runID, err := item.ValueCopy(nil)
			if err != nil {
				return false, err
			}

			var record runRecord
			found, err := getJSON(txn, runKey(string(runID)), &record)
			if err != nil {
				return false, err
			}
			if found {
				runs = append(runs, normalizeRun(record.Run))
			}
			return len(runs) < limit, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// ListUnfinishedRuns walks the whole run index oldest first.
func (s *Store) ListUnfinishedRuns(ctx context.Context) ([]domain.Run, error) {
	runs := make([]domain.Run, 0)
	err := s.view(ctx, "list_unfinished_runs", prefixRunIndex, func(txn *badgerdb.Txn) error {
		return scanPrefix(txn, prefixRunIndex, false, func(_ string, item *badgerdb.Item) (bool, error) {
			runID, err := item.ValueCopy(nil)
			if err != nil {
				return false, err
			}

			var record runRecord
			found, err := getJSON(txn, runKey(string(runID)), &record)
			if err != nil {
				return false, err
			}
			if found && !record.Run.Status.IsTerminal() {
				runs = append(runs, normalizeRun(record.Run))
			}
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

func normalizeRun(run domain.Run) domain.Run {
	if run.Params == nil {
		run.Params = make(map[string]interface{})
	}
	if run.Metadata == nil {
		run.Metadata = make(map[string]interface{})
	}
	if run.Priority == "" {
		run.Priority = domain.PriorityMedium
	}
	run.StartedAt = run.StartedAt.UTC()
	if run.FinishedAt != nil {
		finished := run.FinishedAt.UTC()
		run.FinishedAt = &finished
	}
	return run
}
