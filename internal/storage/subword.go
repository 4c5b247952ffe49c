package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/magvec/internal/format"
)

// BoundaryKeyLength is the longest key for which candidates sharing its first
// or last character are preferred among equally overlapping matches.
const BoundaryKeyLength = 6

// NgramQuery describes a subword similarity lookup.
type NgramQuery struct {
	Ngrams []string
	// KeyLength is the rune length of the looked-up key without markers.
	KeyLength int
	// First and Last are the key's boundary characters.
	First, Last string
	Limit       int
}

// RankByNgrams returns up to q.Limit records sharing n-grams with the query,
// ranked by the number of n-gram occurrences they share with it, then (for
// short keys) by whether the candidate starts and ends like the key without
// being longer, then by ascending key length. Candidates are ranked on keys
// alone and only the returned records are read in full.
func (d *DB) RankByNgrams(ctx context.Context, q Querier, nq NgramQuery) ([]*format.Record, error) {
	if !d.hasSubword || nq.Limit <= 0 || len(nq.Ngrams) == 0 {
		return nil, nil
	}

	weights := make(map[string]int, len(nq.Ngrams))
	for _, g := range nq.Ngrams {
		weights[strings.ToLower(g)]++
	}
	grams := make([]string, 0, len(weights))
	for g := range weights {
		grams = append(grams, g)
	}
	postings, err := d.Postings(ctx, q, grams)
	if err != nil {
		return nil, err
	}

	scores := make(map[uint32]int)
	for g, p := range postings {
		w := weights[g]
		p.each(func(row uint32) { scores[row] += w })
	}
	if len(scores) == 0 {
		return nil, nil
	}

	levels := make(map[int][]int64)
	for row, c := range scores {
		levels[c] = append(levels[c], int64(row))
	}
	order := make([]int, 0, len(levels))
	for c := range levels {
		order = append(order, c)
	}
	slices.Sort(order)
	slices.Reverse(order)

	boundary := nq.KeyLength <= BoundaryKeyLength
	first := strings.ToLower(nq.First)
	last := strings.ToLower(nq.Last)

	type candidate struct {
		row  int64
		n    int
		edge int
	}
	winners := make([]int64, 0, nq.Limit)
	for _, c := range order {
		cands := make([]candidate, 0, len(levels[c]))
		err := d.LookupKeys(ctx, q, levels[c], func(row int64, key string) error {
			n := utf8.RuneCountInString(key)
			cand := candidate{row: row, n: n}
			if boundary {
				cand.edge = edgeScore(key, n, first, last, nq.KeyLength)
			}
			cands = append(cands, cand)
			return nil
		})
		if err != nil {
			return nil, err
		}
		slices.SortFunc(cands, func(a, b candidate) int {
			if r := cmp.Compare(b.edge, a.edge); r != 0 {
				return r
			}
			if r := cmp.Compare(a.n, b.n); r != 0 {
				return r
			}
			return cmp.Compare(a.row, b.row)
		})
		for _, cand := range cands[:min(len(cands), nq.Limit-len(winners))] {
			winners = append(winners, cand.row)
		}
		if len(winners) == nq.Limit {
			break
		}
	}

	byRow := make(map[int64]*format.Record, len(winners))
	err = d.LookupByRow(ctx, q, winners, func(r *format.Record) error {
		byRow[r.Row] = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*format.Record, 0, len(winners))
	for _, row := range winners {
		if r := byRow[row]; r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// edgeScore orders "starts like the key" above "ends like the key", both
// restricted to candidates no longer than the key.
func edgeScore(key string, n int, first, last string, keyLen int) int {
	if n > keyLen {
		return 0
	}
	lower := strings.ToLower(key)
	score := 0
	if first != "" && strings.HasPrefix(lower, first) {
		score += 2
	}
	if last != "" && strings.HasSuffix(lower, last) {
		score++
	}
	return score
}

// Posting lists the rows whose key contains an n-gram. Repeats[i] holds the
// rows containing it at least i+2 times.
type Posting struct {
	Rows    *roaring.Bitmap
	Repeats []*roaring.Bitmap
}

// Count returns how often the n-gram occurs in the key at row.
func (p *Posting) Count(row uint32) int {
	if !p.Rows.Contains(row) {
		return 0
	}
	n := 1
	for _, bm := range p.Repeats {
		if !bm.Contains(row) {
			break
		}
		n++
	}
	return n
}

// each calls fn once per occurrence of the n-gram.
func (p *Posting) each(fn func(row uint32)) {
	p.Rows.Iterate(func(row uint32) bool {
		fn(row)
		return true
	})
	for _, bm := range p.Repeats {
		bm.Iterate(func(row uint32) bool {
			fn(row)
			return true
		})
	}
}

// Postings returns the decoded postings of the given lower-case n-grams
// that exist in the index. Decoded postings are cached.
func (d *DB) Postings(ctx context.Context, q Querier, ngrams []string) (map[string]*Posting, error) {
	out := make(map[string]*Posting, len(ngrams))
	var missing []string
	seen := make(map[string]struct{}, len(ngrams))
	for _, g := range ngrams {
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		if p, ok := d.postings.Get(g); ok {
			out[g] = p
			continue
		}
		missing = append(missing, g)
	}

	for _, batch := range batches(missing, d.maxParams) {
		args := make([]any, len(batch))
		for i, g := range batch {
			args[i] = g
		}
		fresh := make(map[string]*Posting, len(batch))
		err := d.queryBitmaps(ctx, q,
			"SELECT ngram, 1, rows FROM "+format.TableSubword+" WHERE ngram IN ("+placeholders(len(batch))+")", args,
			func(g string, _ int, bm *roaring.Bitmap) {
				fresh[g] = &Posting{Rows: bm}
			})
		if err != nil {
			return nil, err
		}
		if d.hasRepeats && len(fresh) > 0 {
			err = d.queryBitmaps(ctx, q,
				"SELECT ngram, level, rows FROM "+format.TableSubwordRepeat+
					" WHERE ngram IN ("+placeholders(len(batch))+") ORDER BY ngram, level", args,
				func(g string, level int, bm *roaring.Bitmap) {
					if p := fresh[g]; p != nil && level == len(p.Repeats)+2 {
						p.Repeats = append(p.Repeats, bm)
					}
				})
			if err != nil {
				return nil, err
			}
		}
		for g, p := range fresh {
			d.postings.Add(g, p)
			out[g] = p
		}
	}
	return out, nil
}

func (d *DB) queryBitmaps(ctx context.Context, q Querier, query string, args []any, fn func(g string, level int, bm *roaring.Bitmap)) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("subword lookup: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			g     string
			level int
			blob  []byte
		)
		if err := rows.Scan(&g, &level, &blob); err != nil {
			return err
		}
		bm := roaring.New()
		if err := bm.UnmarshalBinary(blob); err != nil {
			return fmt.Errorf("%w: posting list %q: %w", format.ErrCorrupt, g, err)
		}
		fn(g, level, bm)
	}
	return rows.Err()
}
