package magvec_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/magvec"
	"github.com/hupe1980/magvec/internal/format"
	"github.com/hupe1980/magvec/internal/storage"
)

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func TestQueryBatch(t *testing.T) {
	ctx := context.Background()
	path := animalsPath(t)

	tests := []struct {
		name    string
		opts    []magvec.Option
		keys    []string
		rows    int
		nonZero []int
		first   string
	}{
		{name: "natural length", keys: []string{"cat", "dog"}, rows: 2, nonZero: []int{0, 1}, first: "cat"},
		{name: "empty", keys: nil, rows: 0},
		{name: "pad right", opts: []magvec.Option{magvec.WithPadToLength(4)}, keys: []string{"cat", "dog"}, rows: 4, nonZero: []int{0, 1}, first: "cat"},
		{name: "pad left", opts: []magvec.Option{magvec.WithPadToLength(4), magvec.WithPadLeft(true)}, keys: []string{"cat", "dog"}, rows: 4, nonZero: []int{2, 3}, first: "cat"},
		{name: "truncate right", opts: []magvec.Option{magvec.WithPadToLength(2)}, keys: []string{"cat", "dog", "car"}, rows: 2, nonZero: []int{0, 1}, first: "cat"},
		{name: "truncate left", opts: []magvec.Option{magvec.WithPadToLength(2), magvec.WithTruncateLeft(true)}, keys: []string{"cat", "dog", "car"}, rows: 2, nonZero: []int{0, 1}, first: "dog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openStore(t, path, tt.opts...)

			got, err := s.QueryBatch(ctx, tt.keys)
			require.NoError(t, err)
			require.Len(t, got, tt.rows)
			for _, row := range got {
				assert.Len(t, row, s.Dim())
			}

			nonZero := map[int]bool{}
			for _, i := range tt.nonZero {
				nonZero[i] = true
			}
			for i, row := range got {
				assert.Equal(t, !nonZero[i], isZero(row), "row %d", i)
			}

			if tt.first != "" {
				want, err := s.Query(ctx, tt.first)
				require.NoError(t, err)
				assert.Equal(t, want, got[tt.nonZero[0]])
			}
		})
	}
}

func TestQueryBatch_MatchesQuery(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, animalsPath(t))

	keys := []string{"Paris", "cats", "dog", "cats", "unknown"}
	got, err := s.QueryBatch(ctx, keys)
	require.NoError(t, err)
	for i, k := range keys {
		want, err := s.Query(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, want, got[i], k)
	}
}

func TestQueryBatch_RowsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, animalsPath(t))

	got, err := s.QueryBatch(ctx, []string{"cat", "cat"})
	require.NoError(t, err)
	got[0][0] = 42
	assert.NotEqual(t, float32(42), got[1][0])

	_ = append(got[0], 7)
	assert.NotEqual(t, float32(7), got[1][0])
}

func TestQueryNested(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, animalsPath(t))

	got, err := s.QueryNested(ctx, [][]string{{"cat"}, {"dog", "car", "truck"}, {}})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, rows := range got {
		require.Len(t, rows, 3)
	}

	cat, err := s.Query(ctx, "cat")
	require.NoError(t, err)
	assert.Equal(t, cat, got[0][0])
	assert.True(t, isZero(got[0][1]))
	assert.True(t, isZero(got[0][2]))

	truck, err := s.Query(ctx, "truck")
	require.NoError(t, err)
	assert.Equal(t, truck, got[1][2])

	for _, row := range got[2] {
		assert.True(t, isZero(row))
	}
}

func TestQueryNested_PadLength(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, animalsPath(t),
		magvec.WithPadToLength(2),
		magvec.WithPadLeft(true),
		magvec.WithTruncateLeft(true),
	)

	got, err := s.QueryNested(ctx, [][]string{{"cat"}, {"dog", "car", "truck"}})
	require.NoError(t, err)
	require.Len(t, got, 2)

	cat, err := s.Query(ctx, "cat")
	require.NoError(t, err)
	assert.True(t, isZero(got[0][0]))
	assert.Equal(t, cat, got[0][1])

	car, err := s.Query(ctx, "car")
	require.NoError(t, err)
	assert.Equal(t, car, got[1][0])
}

func TestQuery_PerCallNormalized(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, animalsPath(t))

	raw, err := s.Query(ctx, "cat", magvec.Normalized(false))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{1, 0.1, 0, 0}, raw, 1e-4)

	norm, err := s.Query(ctx, "cat")
	require.NoError(t, err)
	assert.InDeltaSlice(t, unit([]float32{1, 0.1, 0, 0}), norm, 1e-6)

	again, err := s.Query(ctx, "cat", magvec.Normalized(false))
	require.NoError(t, err)
	assert.Equal(t, raw, again)

	batch, err := s.QueryBatch(ctx, []string{"dog", "cat"}, magvec.Normalized(false))
	require.NoError(t, err)
	assert.Equal(t, raw, batch[1])
	assert.InDeltaSlice(t, []float32{0.9, 0.3, 0, 0}, batch[0], 1e-4)

	nested, err := s.QueryNested(ctx, [][]string{{"cat"}}, magvec.Normalized(false))
	require.NoError(t, err)
	assert.Equal(t, raw, nested[0][0])
}

func TestQuery_PerCallNormalizedOverridesStore(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, animalsPath(t), magvec.WithNormalized(false))

	raw, err := s.Query(ctx, "truck")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 0.1, 0.9, 0.2}, raw, 1e-4)

	norm, err := s.Query(ctx, "truck", magvec.Normalized(true))
	require.NoError(t, err)
	assert.InDeltaSlice(t, unit([]float32{0, 0.1, 0.9, 0.2}), norm, 1e-6)
}

func TestQueryBatch_PerCallPadding(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, animalsPath(t), magvec.WithPadToLength(4))

	dog, err := s.Query(ctx, "dog")
	require.NoError(t, err)

	got, err := s.QueryBatch(ctx, []string{"cat", "dog"})
	require.NoError(t, err)
	require.Len(t, got, 4)

	got, err = s.QueryBatch(ctx, []string{"cat", "dog", "car"}, magvec.PadTo(2), magvec.TruncateLeft(true))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, dog, got[0])

	got, err = s.QueryBatch(ctx, []string{"dog"}, magvec.PadTo(3), magvec.PadLeft(true))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, isZero(got[0]))
	assert.True(t, isZero(got[1]))
	assert.Equal(t, dog, got[2])

	got, err = s.QueryBatch(ctx, []string{"cat", "dog"}, magvec.PadTo(0))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	nested, err := s.QueryNested(ctx, [][]string{{"dog"}, {"cat", "car", "dog"}}, magvec.PadTo(1), magvec.TruncateLeft(true))
	require.NoError(t, err)
	require.Len(t, nested, 2)
	assert.Equal(t, [][]float32{dog}, nested[0])
	assert.Equal(t, [][]float32{dog}, nested[1])
}

func TestQuery_UnnormalizedNeedsMagnitude(t *testing.T) {
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

	s := openStore(t, path, magvec.WithEager(false))
	_, err = s.Query(ctx, "cat")
	require.NoError(t, err)

	var mc *magvec.MissingCapabilityError
	_, err = s.Query(ctx, "cat", magvec.Normalized(false))
	require.ErrorAs(t, err, &mc)
	_, err = s.QueryBatch(ctx, []string{"cat"}, magvec.Normalized(false))
	require.ErrorAs(t, err, &mc)
	_, err = s.QueryNested(ctx, [][]string{{"cat"}}, magvec.Normalized(false))
	require.ErrorAs(t, err, &mc)
}
