package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v3"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/ports"
	"github.com/eleven-am/conduit/internal/xjson"
)

var _ ports.StoragePort = (*Store)(nil)

const (
	prefixRun         = "run:"
	prefixRunIndex    = "runidx:"
	prefixWorkflowIdx = "wfidx:"
	prefixLog         = "log:"
	prefixTemplate    = "tpl:"
	prefixTemplateID  = "tplid:"
	prefixTrigger     = "trg:"
	prefixTriggerID   = "trgid:"
	keySchemaVersion  = "meta:schema_version"
	keyLogSequence    = "seq:log"
	keyRowSequence    = "seq:row"

	schemaVersion = 1
	maxTxnRetries = 5
)

// Store keeps the same records as the SQLite store in an embedded badger
// database. Secondary index keys give ordered listing; badger sequences give
// append order for logs and a stable tie-break for everything else.
type Store struct {
	db     *badgerdb.DB
	path   string
	logger *slog.Logger

	logSeq *badgerdb.Sequence
	rowSeq *badgerdb.Sequence

	mu     sync.RWMutex
	closed bool
}

// Open opens the badger directory at path. An empty path opens an in-memory
// database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "badger-store")

	opts := badgerdb.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, domain.NewPersistenceError("open", path, err)
	}

	logSeq, err := db.GetSequence([]byte(keyLogSequence), 100)
	if err != nil {
		db.Close()
		return nil, domain.NewPersistenceError("open", keyLogSequence, err)
	}
	rowSeq, err := db.GetSequence([]byte(keyRowSequence), 100)
	if err != nil {
		logSeq.Release()
		db.Close()
		return nil, domain.NewPersistenceError("open", keyRowSequence, err)
	}

	logger.Debug("badger store opened", "path", path, "in_memory", path == "")
	return &Store{
		db:     db,
		path:   path,
		logger: logger,
		logSeq: logSeq,
		rowSeq: rowSeq,
	}, nil
}

// Migrate records the schema version. Key layouts are versioned as a whole;
// there is nothing to alter in place yet.
func (s *Store) Migrate(ctx context.Context) error {
	return s.update(ctx, "migrate", keySchemaVersion, func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		s.logger.Info("schema version recorded", "version", schemaVersion)
		return txn.Set([]byte(keySchemaVersion), []byte(fmt.Sprint(schemaVersion)))
	})
}

func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.view(ctx, "schema_version", keySchemaVersion, func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			_, err := fmt.Sscan(string(val), &version)
			return err
		})
	})
	return version, err
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.logSeq.Release(); err != nil {
		s.logger.Warn("failed to release log sequence", "error", err)
	}
	if err := s.rowSeq.Release(); err != nil {
		s.logger.Warn("failed to release row sequence", "error", err)
	}
	if err := s.db.Close(); err != nil {
		return domain.NewPersistenceError("close", s.path, err)
	}
	s.logger.Debug("badger store closed", "path", s.path)
	return nil
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *Store) update(ctx context.Context, op, key string, fn func(txn *badgerdb.Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return domain.NewPersistenceError(op, key, domain.ErrStorageClosed)
	}

	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.NewPersistenceError(op, key, ctxErr)
		}

		err = s.db.Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) {
			break
		}
		s.logger.Debug("transaction conflict, retrying", "op", op, "key", key, "attempt", attempt+1)
	}

	if err != nil {
		var validation *domain.ValidationError
		if errors.As(err, &validation) || domain.IsNotFound(err) {
			return err
		}
		return domain.NewPersistenceError(op, key, err)
	}
	return nil
}

func (s *Store) view(ctx context.Context, op, key string, fn func(txn *badgerdb.Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return domain.NewPersistenceError(op, key, domain.ErrStorageClosed)
	}
	if err := ctx.Err(); err != nil {
		return domain.NewPersistenceError(op, key, err)
	}

	if err := s.db.View(fn); err != nil {
		if domain.IsNotFound(err) {
			return err
		}
		return domain.NewPersistenceError(op, key, err)
	}
	return nil
}

func (s *Store) nextRowSeq() (uint64, error) {
	return s.rowSeq.Next()
}

// escape keeps user-supplied ids from colliding with the ':' separator.
func escape(id string) string {
	return url.QueryEscape(id)
}

func getJSON(txn *badgerdb.Txn, key string, out interface{}) (bool, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return xjson.Unmarshal(val, out)
	})
}

func setJSON(txn *badgerdb.Txn, key string, value interface{}) error {
	data, err := xjson.Marshal(value)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}

// scanPrefix visits every key under prefix. reverse walks from the end.
func scanPrefix(txn *badgerdb.Txn, prefix string, reverse bool, fn func(key string, item *badgerdb.Item) (bool, error)) error {
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.Reverse = reverse
	it := txn.NewIterator(opts)
	defer it.Close()

	start := []byte(prefix)
	if reverse {
		start = append([]byte(prefix), 0xFF)
	}

	for it.Seek(start); it.ValidForPrefix([]byte(prefix)); it.Next() {
		item := it.Item()
		more, err := fn(string(item.KeyCopy(nil)), item)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(f, v...))
}

func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(f, v...))
}

func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(f, v...))
}

func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(f, v...))
}
