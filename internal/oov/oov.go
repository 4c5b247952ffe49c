// Package oov synthesizes deterministic vectors for keys missing from a
// store. A vector blends pseudo-random noise seeded by the key's character
// n-grams with the mean vector of similar stored keys.
package oov

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/hupe1980/magvec/distance"
	"github.com/hupe1980/magvec/internal/format"
	"github.com/hupe1980/magvec/internal/storage"
)

const (
	// NgramBeg and NgramEnd bound the n-grams seeding the random component.
	NgramBeg = 1
	NgramEnd = 6

	// MaxKeyLengthForSimilarity is the key length up to which the subword
	// index is searched.
	MaxKeyLengthForSimilarity = 1000

	// SimilarTopN is the number of similar keys averaged.
	SimilarTopN = 3

	// RandomWeight and SimilarWeight blend the two components.
	RandomWeight  = 0.3
	SimilarWeight = 0.7

	smallTypoDistance = 4
)

// sampleLimits caps the number of n-grams queried per n-gram length; larger
// sets are thinned by keeping every other n-gram plus the last one.
var sampleLimits = map[int]int{6: 4, 5: 8, 4: 12}

// Source looks up candidate records for the similar-key search.
type Source interface {
	HasSubword() bool
	ExactMatches(ctx context.Context, key string, limit int) ([]*format.Record, error)
	RankByNgrams(ctx context.Context, q storage.NgramQuery) ([]*format.Record, error)
}

// Config holds the store properties the synthesis depends on.
type Config struct {
	// Dim is the embedding dimensionality without placeholders.
	Dim             int
	Placeholders    int
	Precision       int
	CaseInsensitive bool
	NgramOOV        bool
	Namespace       string
	Language        string
	SubwordStart    int
	SubwordEnd      int
}

// Synthesizer produces out-of-vocabulary vectors.
type Synthesizer struct {
	cfg Config
	src Source
}

// New returns a Synthesizer reading similar keys from src.
func New(cfg Config, src Source) *Synthesizer {
	return &Synthesizer{cfg: cfg, src: src}
}

// Fold applies the store's case folding.
func (s *Synthesizer) Fold(key string) string {
	if s.cfg.CaseInsensitive {
		return strings.ToLower(key)
	}
	return key
}

// Transform returns the marker-wrapped, shrunk form of key used for n-grams.
func (s *Synthesizer) Transform(key string) string {
	return Shrink2(format.BOW + s.Fold(key) + format.EOW)
}

// Vector returns the synthesized vector for key, of length Dim+Placeholders.
// The result depends only on key, the namespace and the configuration.
func (s *Synthesizer) Vector(ctx context.Context, key string, normalized bool) ([]float32, error) {
	tkey := s.Transform(key)

	random := s.Random(tkey)
	distance.NormalizeL2InPlace(random)

	similar, err := s.Similar(ctx, tkey, key, normalized)
	if err != nil {
		return nil, err
	}

	out := make([]float32, len(random))
	for i := range out {
		out[i] = random[i]*RandomWeight + similar[i]*SimilarWeight
	}
	if normalized {
		distance.NormalizeL2InPlace(out)
	}
	return out, nil
}

// Random returns the unnormalized random component for a transformed key,
// padded with placeholder zeros.
func (s *Synthesizer) Random(tkey string) []float32 {
	acc := make([]float64, s.cfg.Dim)
	if !s.cfg.NgramOOV || utf8.RuneCountInString(tkey) < NgramBeg {
		uniformInto(acc, Seed(s.cfg.Namespace, tkey))
	} else {
		grams := CharNgrams(tkey, NgramBeg, NgramEnd)
		for _, g := range grams {
			uniformInto(acc, Seed(s.cfg.Namespace, g))
		}
		for i := range acc {
			acc[i] /= float64(len(grams))
		}
	}

	out := make([]float32, s.cfg.Dim+s.cfg.Placeholders)
	for i, v := range acc {
		out[i] = float32(v)
	}
	return out
}

// Similar returns the normalized mean vector of the stored keys closest to
// orig, or a zero vector when there are none. tkey is Transform(orig).
func (s *Synthesizer) Similar(ctx context.Context, tkey, orig string, normalized bool) ([]float32, error) {
	recs, err := s.similarRecords(ctx, tkey, orig)
	if err != nil {
		return nil, err
	}

	dim := s.cfg.Dim + s.cfg.Placeholders
	mean := make([]float32, dim)
	if len(recs) == 0 {
		return mean, nil
	}
	vecs := make([][]float32, len(recs))
	for i, r := range recs {
		vecs[i] = r.Vector(dim, s.cfg.Precision, normalized)
	}
	distance.MeanInto(mean, vecs)
	distance.NormalizeL2InPlace(mean)
	return mean, nil
}

func (s *Synthesizer) similarRecords(ctx context.Context, tkey, orig string) ([]*format.Record, error) {
	if !s.src.HasSubword() || utf8.RuneCountInString(tkey) >= MaxKeyLengthForSimilarity {
		return s.src.ExactMatches(ctx, orig, SimilarTopN)
	}

	shrunk := Shrink1(orig)
	stemmed := Stem(orig, s.cfg.Language)
	shrunkStemmed := Stem(shrunk, s.cfg.Language)

	var groups [][]string
	if tkey != orig {
		groups = append(groups, []string{shrunk, Shrink2(orig)})
	}
	if stemmed != orig {
		groups = append(groups, []string{stemmed})
	}
	if shrunkStemmed != orig {
		groups = append(groups, []string{shrunkStemmed})
	}

	for _, g := range groups {
		limits := splitLimits(SimilarTopN, len(g))
		var results, split []*format.Record
		for i, e := range g {
			r, err := s.src.ExactMatches(ctx, e, limits[i])
			if err != nil {
				return nil, err
			}
			split = append(split, r...)
			if r, err = s.src.ExactMatches(ctx, e, SimilarTopN); err != nil {
				return nil, err
			}
			results = append(results, r...)
		}
		if len(split) >= SimilarTopN {
			results = split
		}
		if len(results) > 0 {
			return results, nil
		}
	}

	runes := []rune(tkey)
	nq := storage.NgramQuery{
		KeyLength: len(runes) - 2,
		First:     string(runes[1]),
		Last:      string(runes[len(runes)-2]),
		Limit:     SimilarTopN,
	}

	var recs []*format.Record
	for n := s.cfg.SubwordEnd; len(recs) < SimilarTopN && n >= s.cfg.SubwordStart; n-- {
		grams := CharNgrams(tkey, n, n)
		if limit, ok := sampleLimits[n]; ok {
			for len(grams) > limit {
				grams = thin(grams)
			}
		}

		nq.Ngrams = grams
		var err error
		if recs, err = s.src.RankByNgrams(ctx, nq); err != nil {
			return nil, err
		}

		smallTypo := len(recs) > 0 &&
			levenshtein.ComputeDistance(strings.ToLower(recs[0].Key), strings.ToLower(orig)) <= smallTypoDistance
		if shrunkStemmed != orig && shrunkStemmed != shrunk && !smallTypo {
			nq.Ngrams = CharNgrams(s.Transform(shrunkStemmed), n, s.cfg.SubwordEnd)
			if recs, err = s.src.RankByNgrams(ctx, nq); err != nil {
				return nil, err
			}
		}
	}
	return recs, nil
}

// thin keeps every other n-gram of all but the last, then the last.
func thin(grams []string) []string {
	out := make([]string, 0, len(grams)/2+1)
	for i := 0; i < len(grams)-1; i += 2 {
		out = append(out, grams[i])
	}
	return append(out, grams[len(grams)-1])
}

// splitLimits divides n into parts near-equal sizes, larger parts first.
func splitLimits(n, parts int) []int {
	out := make([]int, parts)
	for i := range out {
		out[i] = n / parts
		if i < n%parts {
			out[i]++
		}
	}
	return out
}
