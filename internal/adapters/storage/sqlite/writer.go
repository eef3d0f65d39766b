package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eleven-am/conduit/internal/domain"
)

type writeFunc func(ctx context.Context, tx *sql.Tx) error

type writeRequest struct {
	ctx    context.Context
	fn     writeFunc
	result chan error
}

func (s *Store) runWriter() {
	defer s.writerWG.Done()

	for req := range s.writes {
		req.result <- s.apply(req)
	}
}

func (s *Store) apply(req writeRequest) (err error) {
	if err := req.ctx.Err(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("write panicked: %v", r)
			s.logger.Error("sqlite write panicked", "panic", r)
		}
	}()

	tx, err := s.db.BeginTx(req.ctx, nil)
	if err != nil {
		return err
	}

	if err := req.fn(req.ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}

	return tx.Commit()
}

// write queues fn for the writer goroutine and waits for its outcome. Every
// request runs in its own transaction.
func (s *Store) write(ctx context.Context, op, key string, fn writeFunc) error {
	req := writeRequest{ctx: ctx, fn: fn, result: make(chan error, 1)}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return domain.NewPersistenceError(op, key, domain.ErrStorageClosed)
	}
	select {
	case s.writes <- req:
	case <-ctx.Done():
		s.mu.RUnlock()
		return domain.NewPersistenceError(op, key, ctx.Err())
	}
	s.mu.RUnlock()

	// Once queued, the outcome is whatever the writer reports. It skips
	// requests whose ctx already ended, and a ctx that ends mid-transaction
	// rolls it back, so the result always matches what was committed.
	if err := <-req.result; err != nil {
		return domain.NewPersistenceError(op, key, err)
	}
	return nil
}
