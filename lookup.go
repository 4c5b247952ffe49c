package magvec

import (
	"context"
	"strings"
	"time"

	"github.com/hupe1980/magvec/internal/format"
	"github.com/hupe1980/magvec/internal/storage"
)

type vectorKey struct {
	key        string
	normalized bool
}

type rowKey struct {
	index      int64
	withVector bool
}

type rowEntry struct {
	key    string
	vector []float32
}

func (s *Store) decode(rec *format.Record, normalized bool) []float32 {
	return rec.Vector(s.Dim(), s.meta.Precision, normalized)
}

// storedVector returns the stored vector for key, or nil when the key is
// not in the store. Absent keys are cached too.
func (s *Store) storedVector(ctx context.Context, key string, normalized bool) ([]float32, error) {
	hit := true
	v, err := s.vectors.Get(vectorKey{key: key, normalized: normalized}, func() ([]float32, error) {
		hit = false
		q, err := s.querier(ctx)
		if err != nil {
			return nil, err
		}
		rec, err := s.db.LookupExact(ctx, q, key, s.opts.caseInsensitive)
		if err != nil || rec == nil {
			return nil, err
		}
		return s.decode(rec, normalized), nil
	})
	s.metrics.RecordCache(hit)
	return v, err
}

// oovVector returns the synthesized vector for a missing key.
func (s *Store) oovVector(ctx context.Context, key string, normalized bool) ([]float32, error) {
	return s.oovs.Get(vectorKey{key: key, normalized: normalized}, func() ([]float32, error) {
		start := time.Now()
		v, err := s.oov.Vector(ctx, key, normalized)
		if err == nil {
			s.metrics.RecordOOV(time.Since(start))
		}
		return v, err
	})
}

// vector returns the stored or synthesized vector for key. The result is
// shared with the cache and must not be modified.
func (s *Store) vector(ctx context.Context, key string, normalized bool) ([]float32, error) {
	v, err := s.storedVector(ctx, key, normalized)
	if err != nil || v != nil {
		return v, err
	}
	return s.oovVector(ctx, key, normalized)
}

// vectorsFor resolves many keys with one batched lookup for the uncached
// ones. An exact match wins over a case-insensitive one, and the first
// record seen wins among equals. It also returns the number of keys that
// had to be synthesized.
func (s *Store) vectorsFor(ctx context.Context, keys []string, normalized bool) ([][]float32, int, error) {
	resolved := make(map[string][]float32, len(keys))
	var missing []string
	for _, k := range keys {
		if _, ok := resolved[k]; ok {
			continue
		}
		v, ok := s.vectors.Cache().Get(vectorKey{key: k, normalized: normalized})
		s.metrics.RecordCache(ok)
		if !ok {
			missing = append(missing, k)
		}
		resolved[k] = v
	}

	if len(missing) > 0 {
		found, err := s.lookupBatch(ctx, missing)
		if err != nil {
			return nil, 0, err
		}
		for _, k := range missing {
			var v []float32
			if rec := found[k]; rec != nil {
				v = s.decode(rec, normalized)
			}
			s.vectors.Cache().Add(vectorKey{key: k, normalized: normalized}, v)
			resolved[k] = v
		}
	}

	synthesized := 0
	for k, v := range resolved {
		if v != nil {
			continue
		}
		v, err := s.oovVector(ctx, k, normalized)
		if err != nil {
			return nil, 0, err
		}
		resolved[k] = v
		synthesized++
	}

	out := make([][]float32, len(keys))
	for i, k := range keys {
		out[i] = resolved[k]
	}
	return out, synthesized, nil
}

// lookupBatch maps each requested key to its best stored record.
func (s *Store) lookupBatch(ctx context.Context, keys []string) (map[string]*format.Record, error) {
	q, err := s.querier(ctx)
	if err != nil {
		return nil, err
	}

	// The key column collates case-insensitively, so candidates are matched
	// back by their lower-cased form whatever the store's case mode.
	byFold := make(map[string][]string, len(keys))
	for _, k := range keys {
		f := strings.ToLower(k)
		byFold[f] = append(byFold[f], k)
	}

	found := make(map[string]*format.Record, len(keys))
	err = s.db.LookupBatch(ctx, q, keys, func(rec *format.Record) error {
		for _, k := range byFold[strings.ToLower(rec.Key)] {
			if !storage.SameKey(rec.Key, k, s.opts.caseInsensitive) {
				continue
			}
			if prev, ok := found[k]; ok && (prev.Key == k || rec.Key != k) {
				continue
			}
			found[k] = rec
		}
		return nil
	})
	return found, err
}

// entry returns the key (and optionally the vector) at a 0-based row index.
func (s *Store) entry(ctx context.Context, index int64, withVector bool) (rowEntry, error) {
	if index < 0 || index >= s.Len() {
		return rowEntry{}, &IndexOutOfRangeError{Index: index, Len: s.Len()}
	}
	return s.rows.Get(rowKey{index: index, withVector: withVector}, func() (rowEntry, error) {
		q, err := s.querier(ctx)
		if err != nil {
			return rowEntry{}, err
		}
		rec, err := s.db.LookupRow(ctx, q, index+1)
		if err != nil {
			return rowEntry{}, err
		}
		if rec == nil {
			return rowEntry{}, &IndexOutOfRangeError{Index: index, Len: s.Len()}
		}
		e := rowEntry{key: rec.Key}
		if withVector {
			e.vector = s.decode(rec, s.opts.normalized)
		}
		return e, nil
	})
}

// keysAt returns the keys stored at the given 0-based row indices.
func (s *Store) keysAt(ctx context.Context, indices []int64) ([]string, error) {
	out := make([]string, len(indices))
	var missing []int64
	pos := make(map[int64][]int)
	for i, idx := range indices {
		if e, ok := s.rows.Cache().Get(rowKey{index: idx}); ok {
			out[i] = e.key
			continue
		}
		if _, ok := pos[idx]; !ok {
			missing = append(missing, idx+1)
		}
		pos[idx] = append(pos[idx], i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	q, err := s.querier(ctx)
	if err != nil {
		return nil, err
	}
	err = s.db.LookupByRow(ctx, q, missing, func(rec *format.Record) error {
		idx := rec.Row - 1
		s.rows.Cache().Add(rowKey{index: idx}, rowEntry{key: rec.Key})
		for _, i := range pos[idx] {
			out[i] = rec.Key
		}
		delete(pos, idx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for idx := range pos {
		return nil, &IndexOutOfRangeError{Index: idx, Len: s.Len()}
	}
	return out, nil
}

// oovSource serves the synthesizer's similar-key queries on the caller's
// connection.
type oovSource struct{ s *Store }

func (o oovSource) HasSubword() bool { return o.s.db.HasSubword() }

func (o oovSource) ExactMatches(ctx context.Context, key string, limit int) ([]*format.Record, error) {
	q, err := o.s.querier(ctx)
	if err != nil {
		return nil, err
	}
	return o.s.db.ExactMatches(ctx, q, key, limit)
}

func (o oovSource) RankByNgrams(ctx context.Context, nq storage.NgramQuery) ([]*format.Record, error) {
	q, err := o.s.querier(ctx)
	if err != nil {
		return nil, err
	}
	return o.s.db.RankByNgrams(ctx, q, nq)
}
