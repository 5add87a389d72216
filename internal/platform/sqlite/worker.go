package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// ErrWriterClosed is returned by Do once Close has been called.
var ErrWriterClosed = errors.New("sqlite writer closed")

// queueSize bounds how many writes may wait for the connection.
const queueSize = 256

// TxFn runs inside a write transaction owned by the Worker. It must only use
// tx; touching the *sql.DB from inside would wait on the single connection.
type TxFn func(ctx context.Context, tx *sql.Tx) error

type writeRequest struct {
	ctx    context.Context
	fn     TxFn
	result chan error
}

// Worker is the single writer for a SQLite database. Every write transaction
// runs on its goroutine, in submission order.
type Worker struct {
	db      *sql.DB
	queue   chan writeRequest
	stopped chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewWorker(db *sql.DB) *Worker {
	w := &Worker{
		db:      db,
		queue:   make(chan writeRequest, queueSize),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

// Close rejects new writes, lets queued ones finish and waits for the writer
// goroutine. It is safe to call more than once.
func (w *Worker) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.stopped
}

// Do submits fn and waits for its commit or rollback result. A caller whose
// context ends while waiting gets ctx.Err(); a transaction already started
// still completes and its result is dropped.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	req := writeRequest{ctx: ctx, fn: fn, result: make(chan error, 1)}
	if err := w.submit(req); err != nil {
		return err
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submit holds the read lock across the send so Close cannot close the queue
// under a pending writer.
func (w *Worker) submit(req writeRequest) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	select {
	case w.queue <- req:
		return nil
	case <-req.ctx.Done():
		return req.ctx.Err()
	}
}

func (w *Worker) run() {
	defer close(w.stopped)
	for req := range w.queue {
		req.result <- w.exec(req)
	}
}

func (w *Worker) exec(req writeRequest) (err error) {
	if err := req.ctx.Err(); err != nil {
		return err
	}
	tx, err := w.db.BeginTx(req.ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("write panicked: %v", p)
		}
	}()

	if err := req.fn(req.ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
