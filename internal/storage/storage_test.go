package storage_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/magvec/internal/format"
	"github.com/hupe1980/magvec/internal/storage"
	"github.com/hupe1980/magvec/writer"
)

func writeStore(t *testing.T, keys []string, vecs [][]float32, opts ...writer.Option) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.magvec")

	w, err := writer.New(ctx, path, len(vecs[0]), opts...)
	require.NoError(t, err)
	for i, k := range keys {
		require.NoError(t, w.Add(ctx, k, vecs[i]))
	}
	require.NoError(t, w.Close(ctx))
	return path
}

func openStore(t *testing.T, path string) *storage.DB {
	t.Helper()
	db, err := storage.Open(context.Background(), path, storage.Options{Normalized: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func animals(t *testing.T, opts ...writer.Option) *storage.DB {
	keys := []string{"cat", "Cat", "dog", "cats", "category"}
	vecs := [][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0, 1, 0}, {0.8, 0, 0.2}, {0, 0, 1}}
	return openStore(t, writeStore(t, keys, vecs, opts...))
}

func TestOpen_Metadata(t *testing.T) {
	db := animals(t)

	meta := db.Metadata()
	assert.Equal(t, int64(5), meta.Size)
	assert.Equal(t, 3, meta.Dim)
	assert.Equal(t, format.Version, meta.Version)
	assert.Equal(t, 2, meta.MaxDuplicateKeys)
	assert.Len(t, meta.Entropy, 3)
	assert.True(t, db.HasMagnitude())
	assert.False(t, db.HasSubword())
	assert.GreaterOrEqual(t, db.MaxParams(), 99)
	assert.False(t, db.Memory())
}

func TestOpen_Missing(t *testing.T) {
	_, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "nope.magvec"), storage.Options{})
	require.Error(t, err)
}

func TestOpen_RequiresMagnitude(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "plain.magvec")

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	require.NoError(t, storage.CreateSchema(ctx, raw, 2, false))
	meta := format.DefaultMetadata()
	meta.Dim = 2
	meta.Precision = 7
	require.NoError(t, storage.WriteMetadata(ctx, raw, &meta))
	require.NoError(t, raw.Close())

	_, err = storage.Open(ctx, path, storage.Options{})
	var mc *format.MissingCapabilityError
	require.ErrorAs(t, err, &mc)

	db, err := storage.Open(ctx, path, storage.Options{Normalized: true})
	require.NoError(t, err)
	assert.Equal(t, 1, db.Metadata().MaxDuplicateKeys)
	require.NoError(t, db.Close())
}

func TestOpen_NewerVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "future.magvec")

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	require.NoError(t, storage.CreateSchema(ctx, raw, 2, true))
	meta := format.DefaultMetadata()
	meta.Dim = 2
	meta.Version = format.Version + 1
	require.NoError(t, storage.WriteMetadata(ctx, raw, &meta))
	require.NoError(t, raw.Close())

	_, err = storage.Open(ctx, path, storage.Options{})
	var inc *format.IncompatibleFormatError
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, format.Version+1, inc.FileVersion)
}

func TestLookupExact(t *testing.T) {
	ctx := context.Background()
	db := animals(t)

	rec, err := db.LookupExact(ctx, db.Pool(), "Cat", false)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Cat", rec.Key)
	assert.Equal(t, int64(2), rec.Row)

	rec, err = db.LookupExact(ctx, db.Pool(), "CAT", false)
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = db.LookupExact(ctx, db.Pool(), "CAT", true)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Contains(t, []string{"cat", "Cat"}, rec.Key)

	rec, err = db.LookupExact(ctx, db.Pool(), "horse", true)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestExactMatches_BinaryFirst(t *testing.T) {
	db := animals(t)

	recs, err := db.ExactMatches(context.Background(), db.Pool(), "Cat", 5)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Cat", recs[0].Key)
	assert.Equal(t, "cat", recs[1].Key)

	recs, err = db.ExactMatches(context.Background(), db.Pool(), "Cat", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestLookupBatch(t *testing.T) {
	db := animals(t)

	var keys []string
	err := db.LookupBatch(context.Background(), db.Pool(), []string{"dog", "CAT", "zebra"}, func(r *format.Record) error {
		keys = append(keys, r.Key)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"dog", "cat", "Cat"}, keys)
}

func TestLookupRows(t *testing.T) {
	ctx := context.Background()
	db := animals(t)

	rec, err := db.LookupRow(ctx, db.Pool(), 3)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "dog", rec.Key)
	assert.InDelta(t, 1.0, rec.Magnitude, 1e-9)
	assert.Equal(t, []float32{0, 1, 0}, rec.Vector(3, 7, true))

	rec, err = db.LookupRow(ctx, db.Pool(), 99)
	require.NoError(t, err)
	assert.Nil(t, rec)

	found := map[int64]string{}
	err = db.LookupByRow(ctx, db.Pool(), []int64{1, 5, 42}, func(r *format.Record) error {
		found[r.Row] = r.Key
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{1: "cat", 5: "category"}, found)
}

func TestScan_InRowOrder(t *testing.T) {
	ctx := context.Background()
	db := animals(t)

	conn, err := db.Fresh(ctx)
	require.NoError(t, err)
	defer conn.Close()

	sc, err := db.Scan(ctx, conn)
	require.NoError(t, err)
	defer sc.Close()

	var keys []string
	for sc.Next() {
		keys = append(keys, sc.Record().Key)
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"cat", "Cat", "dog", "cats", "category"}, keys)
}

func TestRankByNgrams(t *testing.T) {
	db := animals(t, writer.WithSubword(3, 6))
	require.True(t, db.HasSubword())

	recs, err := db.RankByNgrams(context.Background(), db.Pool(), storage.NgramQuery{
		Ngrams:    []string{"cat", "ats"},
		KeyLength: 4,
		First:     "c",
		Last:      "s",
		Limit:     2,
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "cats", recs[0].Key)
}

func TestRankByNgrams_CountsRepeatedNgrams(t *testing.T) {
	ctx := context.Background()
	keys := []string{"ana", "anbna", "anana"}
	vecs := [][]float32{{1, 0}, {0, 1}, {0.6, 0.8}}
	db := openStore(t, writeStore(t, keys, vecs, writer.WithSubword(3, 3)))

	postings, err := db.Postings(ctx, db.Pool(), []string{"ana", "zzz"})
	require.NoError(t, err)
	require.Contains(t, postings, "ana")
	assert.NotContains(t, postings, "zzz")
	assert.Equal(t, 1, postings["ana"].Count(1))
	assert.Equal(t, 0, postings["ana"].Count(2))
	assert.Equal(t, 2, postings["ana"].Count(3))

	// "ana" is shorter, but "anana" holds the n-gram twice.
	recs, err := db.RankByNgrams(ctx, db.Pool(), storage.NgramQuery{
		Ngrams:    []string{"ana"},
		KeyLength: 10,
		Limit:     3,
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "anana", recs[0].Key)
	assert.Equal(t, "ana", recs[1].Key)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, recs[0].Vector(2, 7, true), 1e-6)

	// Repeating a query n-gram weighs it accordingly.
	recs, err = db.RankByNgrams(ctx, db.Pool(), storage.NgramQuery{
		Ngrams:    []string{"ANA", "ana", "anb", "nbn"},
		KeyLength: 10,
		Limit:     1,
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "anana", recs[0].Key)
}

func TestRankByNgrams_WithoutIndex(t *testing.T) {
	db := animals(t)

	recs, err := db.RankByNgrams(context.Background(), db.Pool(), storage.NgramQuery{
		Ngrams: []string{"cat"},
		Limit:  3,
	})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMetaChunks(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "meta.magvec")

	w, err := writer.New(ctx, path, 2, writer.WithMetaCodec(format.CodecZstd))
	require.NoError(t, err)
	require.NoError(t, w.Add(ctx, "a", []float32{1, 2}))
	require.NoError(t, w.AddMeta(ctx, []byte("first"), []byte("second")))
	require.NoError(t, w.AddMeta(ctx, []byte("other")))
	require.NoError(t, w.Close(ctx))

	db := openStore(t, path)

	n, err := db.MetaCount(ctx, db.Pool())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var chunks []string
	err = db.MetaChunks(ctx, db.Pool(), 1, nil, func(total int, chunk []byte) error {
		assert.Equal(t, 2, total)
		chunks = append(chunks, string(chunk))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, chunks)

	calls := 0
	err = db.MetaChunks(ctx, db.Pool(), 1, func() bool { return true }, func(int, []byte) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWorker(t *testing.T) {
	ctx := context.Background()
	db := animals(t)

	w := db.NewWorker()
	q1, err := w.Querier(ctx)
	require.NoError(t, err)
	q2, err := w.Querier(ctx)
	require.NoError(t, err)
	assert.Same(t, q1, q2)

	rec, err := db.LookupExact(ctx, q1, "dog", false)
	require.NoError(t, err)
	require.NotNil(t, rec)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	_, err = w.Querier(ctx)
	require.ErrorIs(t, err, storage.ErrClosed)
}

func TestClose_ClosesWorkers(t *testing.T) {
	ctx := context.Background()
	db := animals(t)

	w := db.NewWorker()
	_, err := w.Querier(ctx)
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err = w.Querier(ctx)
	require.ErrorIs(t, err, storage.ErrClosed)
	_, err = db.Fresh(ctx)
	require.ErrorIs(t, err, storage.ErrClosed)
}

func TestOpenMemory(t *testing.T) {
	ctx := context.Background()
	db, err := storage.OpenMemory(ctx, 4, storage.Options{})
	require.NoError(t, err)
	defer db.Close()

	assert.True(t, db.Memory())
	assert.Equal(t, ":memory:", db.Path())
	assert.Equal(t, int64(0), db.Metadata().Size)
	assert.Equal(t, 4, db.Metadata().Dim)

	rec, err := db.LookupExact(ctx, db.Pool(), "anything", true)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFeaturizerDim(t *testing.T) {
	assert.Equal(t, 2, storage.FeaturizerDim(0))
	assert.Equal(t, 2, storage.FeaturizerDim(1))

	prev := 0
	for _, n := range []int{10, 1000, 100_000, 1_000_000} {
		d := storage.FeaturizerDim(n)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
}

func TestSameKey(t *testing.T) {
	assert.True(t, storage.SameKey("Cat", "Cat", false))
	assert.False(t, storage.SameKey("Cat", "cat", false))
	assert.True(t, storage.SameKey("Cat", "cAT", true))
}
