package magvec

import (
	"context"
	"database/sql"

	"github.com/hupe1980/magvec/internal/storage"
)

// Worker is a private database handle for one goroutine. Attach it to a
// context with WithWorker so every lookup made with that context reuses the
// same connection. Without a worker, each call borrows a pooled connection.
type Worker struct {
	store *Store
	w     *storage.Worker
}

// NewWorker returns a new worker bound to the store. The store closes it on
// Close.
func (s *Store) NewWorker() *Worker {
	return &Worker{store: s, w: s.db.NewWorker()}
}

// Close releases the worker's connection.
func (w *Worker) Close() error { return w.w.Close() }

type workerKey struct{}

// WithWorker returns a context carrying w.
func WithWorker(ctx context.Context, w *Worker) context.Context {
	return context.WithValue(ctx, workerKey{}, w)
}

func workerFrom(ctx context.Context, s *Store) *Worker {
	w, ok := ctx.Value(workerKey{}).(*Worker)
	if !ok || w.store != s {
		return nil
	}
	return w
}

// querier resolves the connection for a call: the attached worker's, or
// the pool.
func (s *Store) querier(ctx context.Context) (storage.Querier, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if w := workerFrom(ctx, s); w != nil {
		return w.w.Querier(ctx)
	}
	return s.db.Pool(), nil
}

// fresh returns a dedicated connection for streaming scans.
func (s *Store) fresh(ctx context.Context) (*sql.Conn, error) {
	if w := workerFrom(ctx, s); w != nil {
		return w.w.Fresh(ctx)
	}
	return s.db.Fresh(ctx)
}
