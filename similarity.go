package magvec

import (
	"context"
	"fmt"

	"github.com/hupe1980/magvec/distance"
)

// closerThanEpsilon lifts the CloserThan threshold just above the reference
// similarity so the reference key itself is not returned.
const closerThanEpsilon = 1e-5

// Similarity returns the cosine similarity of two terms.
func (s *Store) Similarity(ctx context.Context, a, b Term) (float32, error) {
	sims, err := s.SimilarityMany(ctx, a, []Term{b})
	if err != nil {
		return 0, err
	}
	return sims[0], nil
}

// SimilarityMany returns the cosine similarity of a with each of bs.
func (s *Store) SimilarityMany(ctx context.Context, a Term, bs []Term) ([]float32, error) {
	done, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer done()
	return s.similarities(ctx, a, bs)
}

func (s *Store) similarities(ctx context.Context, a Term, bs []Term) ([]float32, error) {
	vecs, err := s.termVectors(ctx, append([]Term{a}, bs...))
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(bs))
	for i, v := range vecs[1:] {
		out[i] = distance.Cosine(vecs[0], v)
	}
	return out, nil
}

// Distance returns the Euclidean distance between two terms, using vectors
// in the store's normalization mode.
func (s *Store) Distance(ctx context.Context, a, b Term) (float32, error) {
	ds, err := s.DistanceMany(ctx, a, []Term{b})
	if err != nil {
		return 0, err
	}
	return ds[0], nil
}

// DistanceMany returns the Euclidean distance from a to each of bs.
func (s *Store) DistanceMany(ctx context.Context, a Term, bs []Term) ([]float32, error) {
	done, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer done()

	terms := append([]Term{a}, bs...)
	vecs := make([][]float32, len(terms))
	var keys []string
	var at []int
	for i, t := range terms {
		if t.IsVector() {
			if len(t.vector) != s.Dim() {
				return nil, &DimensionMismatchError{Expected: s.Dim(), Actual: len(t.vector)}
			}
			vecs[i] = t.vector
			continue
		}
		keys = append(keys, t.key)
		at = append(at, i)
	}
	if len(keys) > 0 {
		found, _, err := s.vectorsFor(ctx, keys, s.opts.normalized)
		if err != nil {
			return nil, err
		}
		for j, i := range at {
			vecs[i] = found[j]
		}
	}

	out := make([]float32, len(bs))
	for i, v := range vecs[1:] {
		out[i] = distance.L2(vecs[0], v)
	}
	return out, nil
}

// MostSimilarToGiven returns the candidate most similar to key.
func (s *Store) MostSimilarToGiven(ctx context.Context, key string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrInvalidArgument)
	}
	sims, err := s.SimilarityMany(ctx, Key(key), Keys(candidates...))
	if err != nil {
		return "", err
	}
	best := 0
	for i, sim := range sims {
		if sim > sims[best] {
			best = i
		}
	}
	return candidates[best], nil
}

// DoesntMatch returns the key farthest from the normalized mean of all keys.
func (s *Store) DoesntMatch(ctx context.Context, keys []string) (string, error) {
	if len(keys) == 0 {
		return "", fmt.Errorf("%w: no keys", ErrInvalidArgument)
	}
	done, err := s.enter()
	if err != nil {
		return "", err
	}
	defer done()

	vecs, _, err := s.vectorsFor(ctx, keys, true)
	if err != nil {
		return "", err
	}
	mean := make([]float32, s.Dim())
	distance.MeanInto(mean, vecs)
	distance.NormalizeL2InPlace(mean)

	worst, worstDist := 0, float32(-1)
	for i, v := range vecs {
		if d := distance.L2(mean, v); d > worstDist {
			worst, worstDist = i, d
		}
	}
	return keys[worst], nil
}

// CloserThan returns every key more similar to key than q is.
func (s *Store) CloserThan(ctx context.Context, key, q string) ([]string, error) {
	done, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer done()

	sims, err := s.similarities(ctx, Key(key), []Term{Key(q)})
	if err != nil {
		return nil, err
	}
	threshold := sims[0] + closerThanEpsilon
	matches, err := s.search(ctx, SearchRequest{
		Positive:      []Term{Key(key)},
		TopN:          -1,
		MinSimilarity: &threshold,
	}, false)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Key
	}
	return out, nil
}
