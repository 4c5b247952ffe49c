package magvec

import (
	"context"
	"time"
)

// QueryOptions shape the output of a single query call. Fields left unset
// by QueryOption values keep the store's defaults.
type QueryOptions struct {
	Normalized   bool
	PadToLength  int
	PadLeft      bool
	TruncateLeft bool
}

// QueryOption overrides a store default for one call.
type QueryOption func(*QueryOptions)

// Normalized selects unit length or stored-magnitude output for this call.
func Normalized(b bool) QueryOption {
	return func(o *QueryOptions) { o.Normalized = b }
}

// PadTo pads or truncates batch output to n rows for this call. 0 means the
// input length.
func PadTo(n int) QueryOption {
	return func(o *QueryOptions) { o.PadToLength = max(n, 0) }
}

// PadLeft places padding before the vectors for this call.
func PadLeft(b bool) QueryOption {
	return func(o *QueryOptions) { o.PadLeft = b }
}

// TruncateLeft keeps the last keys of over-long input for this call.
func TruncateLeft(b bool) QueryOption {
	return func(o *QueryOptions) { o.TruncateLeft = b }
}

func (s *Store) queryOptions(opts []QueryOption) (QueryOptions, error) {
	qo := QueryOptions{
		Normalized:   s.opts.normalized,
		PadToLength:  s.opts.padToLength,
		PadLeft:      s.opts.padLeft,
		TruncateLeft: s.opts.truncateLeft,
	}
	for _, fn := range opts {
		fn(&qo)
	}
	if !qo.Normalized && !s.db.HasMagnitude() {
		return qo, &MissingCapabilityError{Capability: "non-normalized vectors"}
	}
	return qo, nil
}

// Query returns the vector for key. Keys missing from the store get a
// deterministic synthesized vector, so Query never reports "not found".
func (s *Store) Query(ctx context.Context, key string, opts ...QueryOption) ([]float32, error) {
	done, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer done()

	qo, err := s.queryOptions(opts)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	v, err := s.vector(ctx, key, qo.Normalized)
	s.record(ctx, 1, 0, start, err)
	if err != nil {
		return nil, err
	}
	return clone(v), nil
}

// QueryBatch returns one vector per key as a [T][Dim] matrix, where T is
// the pad length or len(keys). Longer input is truncated (from the left
// with TruncateLeft) and shorter input is padded with zero rows (on the
// left with PadLeft).
func (s *Store) QueryBatch(ctx context.Context, keys []string, opts ...QueryOption) ([][]float32, error) {
	done, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer done()

	qo, err := s.queryOptions(opts)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	t := qo.PadToLength
	if t == 0 {
		t = len(keys)
	}
	keys = truncate(keys, t, qo.TruncateLeft)
	vecs, synthesized, err := s.vectorsFor(ctx, keys, qo.Normalized)
	s.record(ctx, len(keys), synthesized, start, err)
	if err != nil {
		return nil, err
	}
	return s.pad(vecs, t, qo.PadLeft), nil
}

// QueryNested is QueryBatch over several rows at once, returning a
// [len(keys)][T][Dim] tensor. T is the pad length or the length of the
// longest row.
func (s *Store) QueryNested(ctx context.Context, keys [][]string, opts ...QueryOption) ([][][]float32, error) {
	done, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer done()

	qo, err := s.queryOptions(opts)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	t := qo.PadToLength
	if t == 0 {
		for _, row := range keys {
			t = max(t, len(row))
		}
	}

	rows := make([][]string, len(keys))
	var flat []string
	for i, row := range keys {
		rows[i] = truncate(row, t, qo.TruncateLeft)
		flat = append(flat, rows[i]...)
	}
	vecs, synthesized, err := s.vectorsFor(ctx, flat, qo.Normalized)
	s.record(ctx, len(flat), synthesized, start, err)
	if err != nil {
		return nil, err
	}

	out := make([][][]float32, len(rows))
	off := 0
	for i, row := range rows {
		out[i] = s.pad(vecs[off:off+len(row)], t, qo.PadLeft)
		off += len(row)
	}
	return out, nil
}

// truncate keeps at most t keys, the last ones when left is set.
func truncate(keys []string, t int, left bool) []string {
	if len(keys) <= t {
		return keys
	}
	if left {
		return keys[len(keys)-t:]
	}
	return keys[:t]
}

// pad copies vecs into a fresh zeroed [t][Dim] matrix.
func (s *Store) pad(vecs [][]float32, t int, left bool) [][]float32 {
	dim := s.Dim()
	backing := make([]float32, t*dim)
	out := make([][]float32, t)
	for i := range out {
		out[i] = backing[i*dim : (i+1)*dim : (i+1)*dim]
	}
	off := 0
	if left {
		off = t - len(vecs)
	}
	for i, v := range vecs {
		copy(out[off+i], v)
	}
	return out
}

func (s *Store) record(ctx context.Context, keys, synthesized int, start time.Time, err error) {
	took := time.Since(start)
	s.metrics.RecordQuery(keys, took, err)
	s.logger.LogQuery(ctx, keys, synthesized, took, err)
}
