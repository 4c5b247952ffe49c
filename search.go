package magvec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/magvec/distance"
	"github.com/hupe1980/magvec/internal/topk"
)

// DefaultTopN is the number of results returned when SearchRequest.TopN is 0.
const DefaultTopN = 10

// Term is one side of a search or similarity query: a key looked up in the
// store (out-of-vocabulary keys included) or a raw vector.
type Term struct {
	key    string
	vector []float32
}

// Key returns a term for a key.
func Key(key string) Term { return Term{key: key} }

// Vector returns a term for a raw vector of length Dim.
func Vector(v []float32) Term { return Term{vector: v} }

// Keys returns one term per key.
func Keys(keys ...string) []Term {
	out := make([]Term, len(keys))
	for i, k := range keys {
		out[i] = Key(k)
	}
	return out
}

// IsVector reports whether the term holds a raw vector.
func (t Term) IsVector() bool { return t.vector != nil }

func (t Term) String() string {
	if t.IsVector() {
		return fmt.Sprintf("vector[%d]", len(t.vector))
	}
	return t.key
}

// SearchRequest describes a nearest-neighbor search.
type SearchRequest struct {
	Positive []Term
	Negative []Term

	// TopN caps the number of results: 0 selects DefaultTopN and a
	// negative value returns every row.
	TopN int

	// Exclude lists extra keys to leave out of the results. Key terms in
	// Positive and Negative are always excluded.
	Exclude []string

	// MinSimilarity drops rows scoring below it.
	MinSimilarity *float32
}

// Match is one search result.
type Match struct {
	Key        string
	Similarity float32
}

// MostSimilar returns the keys whose vectors have the highest cosine
// similarity with the normalized mean of the positive terms minus the
// negative terms.
func (s *Store) MostSimilar(ctx context.Context, req SearchRequest) ([]Match, error) {
	done, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer done()
	return s.search(ctx, req, false)
}

// MostSimilarCosMul ranks keys with the multiplicative 3CosMul objective:
// the product of (1+cos)/2 over the positive terms divided by the same
// product over the negative terms.
func (s *Store) MostSimilarCosMul(ctx context.Context, req SearchRequest) ([]Match, error) {
	done, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer done()
	return s.search(ctx, req, true)
}

func (s *Store) search(ctx context.Context, req SearchRequest, cosmul bool) (matches []Match, err error) {
	start := time.Now()
	topn := req.TopN
	switch {
	case topn == 0:
		topn = DefaultTopN
	case topn < 0:
		topn = int(s.Len())
	}
	defer func() {
		took := time.Since(start)
		s.metrics.RecordSearch(topn, took, err)
		s.logger.LogSearch(ctx, topn, len(matches), took, err)
	}()

	if len(req.Positive) == 0 {
		return nil, fmt.Errorf("%w: at least one positive term is required", ErrInvalidArgument)
	}

	pos, err := s.termVectors(ctx, req.Positive)
	if err != nil {
		return nil, err
	}
	neg, err := s.termVectors(ctx, req.Negative)
	if err != nil {
		return nil, err
	}
	exclude := s.excludeSet(req)

	m, err := s.searchMatrix(ctx)
	if err != nil {
		return nil, err
	}
	if m.Rows() == 0 || topn == 0 {
		return []Match{}, nil
	}

	// Duplicate keys and excluded keys can crowd out real results, so the
	// heap keeps enough candidates to survive both.
	capacity := min(max(s.meta.MaxDuplicateKeys, 1)*(topn+len(exclude)), m.Rows())
	h := topk.New(capacity)

	var target []float32
	if !cosmul {
		target = distance.Combine(m.Dim(), pos, neg)
	}
	posDots := make([]float32, len(pos))
	negDots := make([]float32, len(neg))
	scores := make([]float32, min(s.opts.batchSize, m.Rows()))
	dim := m.Dim()

	for base, batch := range m.Batches(s.opts.batchSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows := len(batch) / dim
		for i := range rows {
			row := batch[i*dim : (i+1)*dim]
			if !cosmul {
				scores[i] = distance.Dot(row, target)
				continue
			}
			for j, v := range pos {
				posDots[j] = distance.Dot(row, v)
			}
			for j, v := range neg {
				negDots[j] = distance.Dot(row, v)
			}
			scores[i] = distance.CosMul(posDots, negDots)
		}
		h.PushScores(int64(base), scores[:rows], req.MinSimilarity)
	}

	items := h.Sorted()
	indices := make([]int64, len(items))
	for i, it := range items {
		indices[i] = it.Index
	}
	keys, err := s.keysAt(ctx, indices)
	if err != nil {
		return nil, err
	}

	matches = make([]Match, 0, min(topn, len(items)))
	for i, key := range keys {
		if len(matches) == topn {
			break
		}
		k := s.fold(key)
		if _, ok := exclude[k]; ok {
			continue
		}
		exclude[k] = struct{}{}
		matches = append(matches, Match{Key: key, Similarity: items[i].Score})
	}
	return matches, nil
}

// termVectors resolves terms to normalized vectors.
func (s *Store) termVectors(ctx context.Context, terms []Term) ([][]float32, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(terms))
	var keys []string
	var at []int
	for i, t := range terms {
		if t.IsVector() {
			if len(t.vector) != s.Dim() {
				return nil, &DimensionMismatchError{Expected: s.Dim(), Actual: len(t.vector)}
			}
			out[i] = t.vector
			if v, ok := distance.NormalizeL2Copy(t.vector); ok {
				out[i] = v
			}
			continue
		}
		keys = append(keys, t.key)
		at = append(at, i)
	}
	if len(keys) > 0 {
		vecs, _, err := s.vectorsFor(ctx, keys, true)
		if err != nil {
			return nil, err
		}
		for j, i := range at {
			out[i] = vecs[j]
		}
	}
	return out, nil
}

func (s *Store) excludeSet(req SearchRequest) map[string]struct{} {
	set := make(map[string]struct{}, len(req.Positive)+len(req.Negative)+len(req.Exclude))
	for _, terms := range [][]Term{req.Positive, req.Negative} {
		for _, t := range terms {
			if !t.IsVector() {
				set[s.fold(t.key)] = struct{}{}
			}
		}
	}
	for _, k := range req.Exclude {
		set[s.fold(k)] = struct{}{}
	}
	return set
}

func (s *Store) fold(key string) string {
	if s.opts.caseInsensitive {
		return strings.ToLower(key)
	}
	return key
}
