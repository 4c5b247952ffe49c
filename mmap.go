package magvec

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/magvec/internal/format"
	"github.com/hupe1980/magvec/internal/matrix"
)

// searchMatrix returns the normalized [Len][Dim] matrix scanned by
// similarity searches, building it on first use. In-memory and empty
// stores have an empty matrix.
func (s *Store) searchMatrix(ctx context.Context) (*matrix.Matrix, error) {
	if s.db.Memory() || s.Len() == 0 {
		return matrix.Empty(s.Dim()), nil
	}
	b, err := s.matrixBuilder()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	m, err := b.Open(ctx)
	if err != nil || !s.matrixReady.Swap(true) {
		s.metrics.RecordMatrixOpen(int(s.Len()), time.Since(start), err)
	}
	if errors.Is(err, matrix.ErrAborted) {
		return nil, ErrClosed
	}
	if err != nil {
		return nil, translateError(err)
	}
	return m, nil
}

func (s *Store) matrixBuilder() (*matrix.Builder, error) {
	s.matrixMu.Lock()
	defer s.matrixMu.Unlock()

	if s.closed.Load() {
		return nil, ErrClosed
	}
	if s.builder != nil {
		return s.builder, nil
	}

	fp, err := matrix.Fingerprint(matrix.Params{
		Path:            s.db.Path(),
		Rows:            s.Len(),
		Dim:             s.Dim(),
		Precision:       s.meta.Precision,
		CaseInsensitive: s.opts.caseInsensitive,
	})
	if err != nil {
		return nil, err
	}
	s.builder = matrix.NewBuilder(matrix.Config{
		Dir:          s.opts.tempDir,
		Fingerprint:  fp,
		Rows:         s.Len(),
		Dim:          s.Dim(),
		PollInterval: s.opts.matrixPollInterval,
		WaitTimeout:  s.opts.matrixWaitTimeout,
		Registry:     s.opts.registry,
		Controller:   s.opts.resources,
		Logger:       s.logger.Logger,
		Closed:       s.closed.Load,
	}, s.matrixRows)
	return s.builder, nil
}

// matrixRows streams normalized rows to the builder. With
// WithLazyLoading(-1) the same pass warms the vector cache.
func (s *Store) matrixRows(ctx context.Context, emit func([]float32) error) error {
	fill := s.opts.lazyLoading == -1
	return s.scan(ctx, func(rec *format.Record) (bool, error) {
		v := s.decode(rec, true)
		if fill {
			cached := v
			if !s.opts.normalized {
				cached = s.decode(rec, false)
			}
			fill = s.fill(rec, cached)
		}
		return true, emit(v)
	})
}
