package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/ports"
)

var _ ports.StoragePort = (*Store)(nil)

// Store persists runs, logs, templates and triggers in a single SQLite file.
// Reads use the connection pool directly; every write, migrations included,
// is funnelled through one writer goroutine.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	closed   bool
	writes   chan writeRequest
	writerWG sync.WaitGroup
}

// Open opens (creating if needed) the database at path. Call Migrate before use.
func Open(path string, cfg domain.StorageConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, domain.NewValidationError("storage.path", "path is required")
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, domain.NewPersistenceError("open", path, err)
		}
	}

	busyTimeout := cfg.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = domain.DefaultStorageConfig().BusyTimeout
	}
	queue := cfg.WriteQueue
	if queue <= 0 {
		queue = domain.DefaultStorageConfig().WriteQueue
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		path, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, domain.NewPersistenceError("open", path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), busyTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, domain.NewPersistenceError("open", path, err)
	}

	s := &Store{
		db:     db,
		path:   path,
		logger: logger.With("component", "sqlite-store"),
		writes: make(chan writeRequest, queue),
	}

	s.writerWG.Add(1)
	go s.runWriter()

	s.logger.Debug("sqlite store opened", "path", path, "write_queue", queue)
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// Close drains queued writes, stops the writer and closes the pool.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.writes)
	s.mu.Unlock()

	s.writerWG.Wait()

	if err := s.db.Close(); err != nil {
		return domain.NewPersistenceError("close", s.path, err)
	}
	s.logger.Debug("sqlite store closed", "path", s.path)
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Store) readGuard(op, key string) error {
	if s.isClosed() {
		return domain.NewPersistenceError(op, key, domain.ErrStorageClosed)
	}
	return nil
}

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// formatTime renders t as fixed-width UTC so lexical order is chronological.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

var legacyTimeLayouts = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range legacyTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

func nullableTime(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	t, err := parseTime(raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return ports.DefaultListLimit
	}
	return limit
}

func wrapRead(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return domain.NewPersistenceError(op, key, err)
}
