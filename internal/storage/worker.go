package storage

import (
	"context"
	"database/sql"
	"sync"
)

// Worker is a private handle into the store for one goroutine or task. It
// opens its connection on first use and keeps reusing it; workers are not
// meant to be shared between concurrently running goroutines.
type Worker struct {
	db *DB

	mu     sync.Mutex
	conn   *sql.Conn
	closed bool
}

// NewWorker registers a new worker. The store closes it on Close.
func (d *DB) NewWorker() *Worker {
	w := &Worker{db: d}
	d.mu.Lock()
	d.workers[w] = struct{}{}
	d.mu.Unlock()
	return w
}

// Querier returns the worker's connection, opening it lazily.
func (w *Worker) Querier(ctx context.Context) (Querier, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.db.closed.Load() {
		return nil, ErrClosed
	}
	if w.conn == nil {
		conn, err := w.db.db.Conn(ctx)
		if err != nil {
			return nil, err
		}
		w.conn = conn
	}
	return w.conn, nil
}

// Fresh returns an independent connection that bypasses the cached one, for
// streaming scans. The caller closes it.
func (w *Worker) Fresh(ctx context.Context) (*sql.Conn, error) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return w.db.Fresh(ctx)
}

// Close releases the worker's connection.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	w.db.mu.Lock()
	delete(w.db.workers, w)
	w.db.mu.Unlock()

	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}
