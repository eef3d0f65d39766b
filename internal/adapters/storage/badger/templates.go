package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	badgerdb "github.com/dgraph-io/badger/v3"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/xjson"
)

type templateRecord struct {
	Template domain.ParameterTemplate `json:"template"`
	Seq      uint64                   `json:"seq"`
}

type triggerRecord struct {
	Trigger domain.Trigger `json:"trigger"`
	Seq     uint64         `json:"seq"`
}

func templateKey(workflowID, templateID string) string {
	return prefixTemplate + escape(workflowID) + ":" + escape(templateID)
}

func triggerKey(workflowID, triggerID string) string {
	return prefixTrigger + escape(workflowID) + ":" + escape(triggerID)
}

func (s *Store) SaveTemplate(ctx context.Context, template domain.ParameterTemplate) error {
	if template.ID == "" {
		return domain.NewValidationError("template.id", "template id is required")
	}

	return s.update(ctx, "save_template", template.ID, func(txn *badgerdb.Txn) error {
		seq, err := s.reindexOwner(txn, prefixTemplateID+escape(template.ID), template.WorkflowID, func(oldWorkflow string) string {
			return templateKey(oldWorkflow, template.ID)
		}, func(key string) (uint64, bool, error) {
			var existing templateRecord
			found, err := getJSON(txn, key, &existing)
			return existing.Seq, found, err
		})
		if err != nil {
			return err
		}
		return setJSON(txn, templateKey(template.WorkflowID, template.ID), templateRecord{Template: template, Seq: seq})
	})
}

// ListTemplates returns a workflow's templates, newest first.
func (s *Store) ListTemplates(ctx context.Context, workflowID string) ([]domain.ParameterTemplate, error) {
	var records []templateRecord
	prefix := prefixTemplate + escape(workflowID) + ":"

	err := s.view(ctx, "list_templates", workflowID, func(txn *badgerdb.Txn) error {
		return scanPrefix(txn, prefix, false, func(_ string, item *badgerdb.Item) (bool, error) {
			var record templateRecord
			err := item.Value(func(val []byte) error { return xjson.Unmarshal(val, &record) })
			records = append(records, record)
			return true, err
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Template.CreatedAt.Equal(b.Template.CreatedAt) {
			return a.Template.CreatedAt.After(b.Template.CreatedAt)
		}
		return a.Seq > b.Seq
	})

	templates := make([]domain.ParameterTemplate, 0, len(records))
	for _, record := range records {
		tpl := record.Template
		tpl.CreatedAt = tpl.CreatedAt.UTC()
		if tpl.Params == nil {
			tpl.Params = make(map[string]interface{})
		}
		templates = append(templates, tpl)
	}
	return templates, nil
}

func (s *Store) DeleteTemplate(ctx context.Context, templateID string) error {
	return s.deleteOwned(ctx, "delete_template", prefixTemplateID+escape(templateID), templateID, func(workflowID string) string {
		return templateKey(workflowID, templateID)
	})
}

func (s *Store) SaveTrigger(ctx context.Context, trigger domain.Trigger) error {
	if trigger.ID == "" {
		return domain.NewValidationError("trigger.id", "trigger id is required")
	}

	return s.update(ctx, "save_trigger", trigger.ID, func(txn *badgerdb.Txn) error {
		seq, err := s.reindexOwner(txn, prefixTriggerID+escape(trigger.ID), trigger.WorkflowID, func(oldWorkflow string) string {
			return triggerKey(oldWorkflow, trigger.ID)
		}, func(key string) (uint64, bool, error) {
			var existing triggerRecord
			found, err := getJSON(txn, key, &existing)
			return existing.Seq, found, err
		})
		if err != nil {
			return err
		}
		return setJSON(txn, triggerKey(trigger.WorkflowID, trigger.ID), triggerRecord{Trigger: trigger, Seq: seq})
	})
}

// ListTriggers returns a workflow's triggers in creation order.
func (s *Store) ListTriggers(ctx context.Context, workflowID string) ([]domain.Trigger, error) {
	var records []triggerRecord
	prefix := prefixTrigger + escape(workflowID) + ":"

	err := s.view(ctx, "list_triggers", workflowID, func(txn *badgerdb.Txn) error {
		return scanPrefix(txn, prefix, false, func(_ string, item *badgerdb.Item) (bool, error) {
			var record triggerRecord
			err := item.Value(func(val []byte) error { return xjson.Unmarshal(val, &record) })
			records = append(records, record)
			return true, err
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Trigger.CreatedAt.Equal(b.Trigger.CreatedAt) {
			return a.Trigger.CreatedAt.Before(b.Trigger.CreatedAt)
		}
		return a.Seq < b.Seq
	})

	triggers := make([]domain.Trigger, 0, len(records))
	for _, record := range records {
		trg := record.Trigger
		trg.CreatedAt = trg.CreatedAt.UTC()
		if trg.Config == nil {
			trg.Config = make(map[string]interface{})
		}
		triggers = append(triggers, trg)
	}
	return triggers, nil
}

func (s *Store) DeleteTrigger(ctx context.Context, triggerID string) error {
	return s.deleteOwned(ctx, "delete_trigger", prefixTriggerID+escape(triggerID), triggerID, func(workflowID string) string {
		return triggerKey(workflowID, triggerID)
	})
}

// reindexOwner keeps the id -> workflow pointer current and returns the
// record's tie-break sequence, allocating one on first save.
func (s *Store) reindexOwner(txn *badgerdb.Txn, ownerKey, workflowID string, recordKey func(string) string, existingSeq func(string) (uint64, bool, error)) (uint64, error) {
	var oldWorkflow string
	item, err := txn.Get([]byte(ownerKey))
	switch {
	case err == nil:
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return 0, err
		}
		oldWorkflow = string(raw)
	case errors.Is(err, badgerdb.ErrKeyNotFound):
	default:
		return 0, err
	}

	var seq uint64
	found := false
	if item != nil {
		key := recordKey(oldWorkflow)
		if seq, found, err = existingSeq(key); err != nil {
			return 0, err
		}
		if found && oldWorkflow != workflowID {
			if err := txn.Delete([]byte(key)); err != nil {
				return 0, err
			}
		}
	}

	if !found {
		if seq, err = s.nextRowSeq(); err != nil {
			return 0, err
		}
	}

	return seq, txn.Set([]byte(ownerKey), []byte(workflowID))
}

func (s *Store) deleteOwned(ctx context.Context, op, ownerKey, id string, recordKey func(string) string) error {
	return s.update(ctx, op, id, func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(ownerKey))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("%s: %w", id, domain.ErrNotFound)
		}
		if err != nil {
			return err
		}

		workflowID, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := txn.Delete([]byte(recordKey(string(workflowID)))); err != nil {
			return err
		}
		return txn.Delete([]byte(ownerKey))
	})
}
