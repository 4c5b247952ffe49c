// Package writer builds store files from vectors: it quantizes them to fixed
// point, records per-row magnitudes, ranks dimensions by entropy, builds the
// subword posting index and embeds compressed meta chunks.
package writer

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"slices"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/magvec/internal/format"
	"github.com/hupe1980/magvec/internal/oov"
	"github.com/hupe1980/magvec/internal/storage"
)

// ErrClosed is returned when adding to a finished writer.
var ErrClosed = errors.New("writer is closed")

const commitEvery = 100_000

type options struct {
	precision    int
	subword      bool
	subwordStart int
	subwordEnd   int
	metaCodec    format.Codec
	logger       *slog.Logger
}

// Option configures a Writer.
type Option func(*options)

// WithPrecision sets the number of decimal digits kept per component.
func WithPrecision(p int) Option {
	return func(o *options) { o.precision = p }
}

// WithSubword enables the subword posting index over n-grams of length
// start..end.
func WithSubword(start, end int) Option {
	return func(o *options) {
		o.subword = true
		o.subwordStart = start
		o.subwordEnd = end
	}
}

// WithMetaCodec selects the compression of meta chunks.
func WithMetaCodec(c format.Codec) Option {
	return func(o *options) { o.metaCodec = c }
}

// WithLogger sets the logger used for progress output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Writer creates a store file. Rows are written to "<path>.tmp" and the file
// is renamed into place by Close.
type Writer struct {
	path string
	tmp  string
	dim  int
	opts options

	db   *sql.DB
	tx   *sql.Tx
	stmt *sql.Stmt

	n        int64
	buckets  []map[int]int
	postings map[string]*posting
	metas    int
	enc      []int64
	closed   bool
}

// New starts a store file at path with vectors of dimension dim.
func New(ctx context.Context, path string, dim int, opts ...Option) (*Writer, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}
	o := options{
		precision:    format.DefaultPrecision,
		subwordStart: format.DefaultSubwordStart,
		subwordEnd:   format.DefaultSubwordEnd,
		metaCodec:    format.CodecLZ4,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.subword && (o.subwordStart <= 0 || o.subwordEnd < o.subwordStart) {
		return nil, fmt.Errorf("invalid subword range [%d, %d]", o.subwordStart, o.subwordEnd)
	}

	tmp := path + ".tmp"
	_ = os.Remove(tmp)
	db, err := sql.Open("sqlite3", tmp+"?_journal_mode=OFF&_synchronous=OFF")
	if err != nil {
		return nil, err
	}
	// One connection keeps the transaction and DDL on the same handle.
	db.SetMaxOpenConns(1)

	w := &Writer{
		path:     path,
		tmp:      tmp,
		dim:      dim,
		opts:     o,
		db:       db,
		buckets:  make([]map[int]int, dim),
		postings: make(map[string]*posting),
	}
	for i := range w.buckets {
		w.buckets[i] = make(map[int]int)
	}

	if err := storage.CreateSchema(ctx, db, dim, true); err != nil {
		_ = w.Abort()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if err := w.begin(ctx); err != nil {
		_ = w.Abort()
		return nil, err
	}
	return w, nil
}

func (w *Writer) begin(ctx context.Context) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, storage.InsertStatement(w.dim, true))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	w.tx, w.stmt = tx, stmt
	return nil
}

func (w *Writer) commit() error {
	if w.tx == nil {
		return nil
	}
	_ = w.stmt.Close()
	err := w.tx.Commit()
	w.tx, w.stmt = nil, nil
	return err
}

// Add appends one vector. Vectors are stored unit-normalized with their
// original L2 norm kept as the row magnitude.
func (w *Writer) Add(ctx context.Context, key string, vector []float32) error {
	if w.closed {
		return ErrClosed
	}
	if len(vector) != w.dim {
		return fmt.Errorf("vector for %q has dimension %d, want %d", key, len(vector), w.dim)
	}

	unit, magnitude := w.normalize(key, vector)
	for d, v := range unit {
		w.buckets[d][int(v*100)]++
	}

	w.enc = format.Encode(w.enc, unit, w.opts.precision)
	args := make([]any, 0, w.dim+2)
	args = append(args, key)
	for _, c := range w.enc {
		args = append(args, c)
	}
	args = append(args, magnitude)
	if _, err := w.stmt.ExecContext(ctx, args...); err != nil {
		return fmt.Errorf("insert %q: %w", key, err)
	}
	w.n++

	if w.opts.subword {
		w.index(key, uint32(w.n))
	}

	if w.n%commitEvery == 0 {
		if err := w.commit(); err != nil {
			return err
		}
		w.opts.logger.Info("vectors written", "count", w.n)
		return w.begin(ctx)
	}
	return nil
}

// normalize returns the unit vector and the norm. Vectors that cannot be
// normalized are replaced by tiny deterministic noise.
func (w *Writer) normalize(key string, v []float32) ([]float32, float64) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	magnitude := math.Sqrt(sum)

	unit := make([]float32, len(v))
	valid := magnitude > 0 && !math.IsNaN(magnitude) && !math.IsInf(magnitude, 0)
	if valid {
		for i, x := range v {
			unit[i] = float32(float64(x) / magnitude)
		}
		return unit, magnitude
	}

	seed := xxhash.Sum64String(key)
	rng := rand.New(rand.NewPCG(seed, seed))
	eps := float32(1 / format.Scale(w.opts.precision))
	for i := range unit {
		if rng.IntN(2) == 0 {
			unit[i] = -eps
		} else {
			unit[i] = eps
		}
	}
	return unit, magnitude
}

// posting lists the rows containing an n-gram. repeats[i] holds the rows
// containing it at least i+2 times.
type posting struct {
	rows    *roaring.Bitmap
	repeats []*roaring.Bitmap
}

func (w *Writer) index(key string, row uint32) {
	word := strings.ToLower(format.BOW + key + format.EOW)
	counts := make(map[string]int)
	for _, g := range oov.CharNgrams(word, w.opts.subwordStart, w.opts.subwordEnd) {
		if !hasSplitter(g) {
			counts[g]++
		}
	}
	for g, n := range counts {
		p, ok := w.postings[g]
		if !ok {
			p = &posting{rows: roaring.New()}
			w.postings[g] = p
		}
		p.rows.Add(row)
		for len(p.repeats) < n-1 {
			p.repeats = append(p.repeats, roaring.New())
		}
		for i := range n - 1 {
			p.repeats[i].Add(row)
		}
	}
}

// hasSplitter reports whether s contains an ASCII character that is not a
// letter or digit.
func hasSplitter(s string) bool {
	for _, r := range s {
		if r < 128 && !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return true
		}
	}
	return false
}

// AddMeta embeds one meta file, split into the given chunks, as the next
// meta table. Each chunk is compressed independently.
func (w *Writer) AddMeta(ctx context.Context, chunks ...[]byte) error {
	if w.closed {
		return ErrClosed
	}
	w.metas++
	if err := storage.CreateMetaTable(ctx, w.tx, w.metas); err != nil {
		return err
	}
	for _, c := range chunks {
		blob, err := format.Compress(w.opts.metaCodec, c)
		if err != nil {
			return err
		}
		if _, err := w.tx.ExecContext(ctx,
			"INSERT INTO "+format.MetaTable(w.metas)+" (meta_file) VALUES (?)", blob); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of vectors added so far.
func (w *Writer) Len() int64 { return w.n }

// Close finishes the file: it writes postings, metadata and indexes and
// renames the temporary file into place.
func (w *Writer) Close(ctx context.Context) error {
	if w.closed {
		return ErrClosed
	}
	w.closed = true

	if err := w.finish(ctx); err != nil {
		_ = w.db.Close()
		_ = os.Remove(w.tmp)
		return err
	}
	if err := w.db.Close(); err != nil {
		_ = os.Remove(w.tmp)
		return err
	}
	if err := os.Rename(w.tmp, w.path); err != nil {
		return fmt.Errorf("finalize store: %w", err)
	}
	w.opts.logger.Info("store written", "path", w.path, "count", w.n, "dimension", w.dim)
	return nil
}

func (w *Writer) finish(ctx context.Context) error {
	if w.opts.subword {
		if err := storage.CreateSubwordTable(ctx, w.tx); err != nil {
			return err
		}
		for g, p := range w.postings {
			if err := w.writePosting(ctx, g, p); err != nil {
				return fmt.Errorf("write posting %q: %w", g, err)
			}
		}
	}
	if err := w.commit(); err != nil {
		return err
	}

	if err := storage.CreateKeyIndex(ctx, w.db); err != nil {
		return err
	}

	var dup sql.NullInt64
	if err := w.db.QueryRowContext(ctx,
		"SELECT MAX(c) FROM (SELECT COUNT(key) AS c FROM "+format.TableVectors+" GROUP BY key)").Scan(&dup); err != nil {
		return err
	}

	meta := format.Metadata{
		Size:             w.n,
		Dim:              w.dim,
		Precision:        w.opts.precision,
		Version:          format.Version,
		Subword:          w.opts.subword,
		SubwordStart:     w.opts.subwordStart,
		SubwordEnd:       w.opts.subwordEnd,
		Entropy:          w.entropyRanking(),
		MaxDuplicateKeys: max(int(dup.Int64), 1),
		MetaCodec:        w.opts.metaCodec,
	}
	if err := storage.WriteMetadata(ctx, w.db, &meta); err != nil {
		return err
	}
	if len(meta.Entropy) > 0 && w.n > 0 {
		d := meta.Entropy[0]
		if _, err := w.db.ExecContext(ctx, fmt.Sprintf(
			"CREATE INDEX magnitude_dim_%d_idx ON %s (%s)", d, format.TableVectors, format.DimColumn(d))); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writePosting(ctx context.Context, g string, p *posting) error {
	blob, err := bitmapBytes(p.rows)
	if err != nil {
		return err
	}
	if _, err := w.tx.ExecContext(ctx,
		"INSERT INTO "+format.TableSubword+" (ngram, rows) VALUES (?, ?)", g, blob); err != nil {
		return err
	}
	for i, bm := range p.repeats {
		if blob, err = bitmapBytes(bm); err != nil {
			return err
		}
		if _, err := w.tx.ExecContext(ctx,
			"INSERT INTO "+format.TableSubwordRepeat+" (ngram, level, rows) VALUES (?, ?, ?)", g, i+2, blob); err != nil {
			return err
		}
	}
	return nil
}

func bitmapBytes(bm *roaring.Bitmap) ([]byte, error) {
	bm.RunOptimize()
	return bm.ToBytes()
}

// entropyRanking orders dimensions by the Shannon entropy of their
// two-decimal value buckets, highest first.
func (w *Writer) entropyRanking() []int {
	type dimEntropy struct {
		dim int
		h   float64
	}
	es := make([]dimEntropy, w.dim)
	for d, counts := range w.buckets {
		total := 0
		for _, c := range counts {
			total += c
		}
		var h float64
		for _, c := range counts {
			p := float64(c) / float64(total)
			h -= p * math.Log2(p)
		}
		es[d] = dimEntropy{dim: d, h: h}
	}
	slices.SortStableFunc(es, func(a, b dimEntropy) int { return cmp.Compare(b.h, a.h) })

	out := make([]int, len(es))
	for i, e := range es {
		out[i] = e.dim
	}
	return out
}

// Abort discards the temporary file.
func (w *Writer) Abort() error {
	w.closed = true
	if w.tx != nil {
		_ = w.tx.Rollback()
		w.tx, w.stmt = nil, nil
	}
	err := w.db.Close()
	_ = os.Remove(w.tmp)
	return err
}
