package magvec_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/magvec"
	"github.com/hupe1980/magvec/blobstore"
)

func TestOpenRemote(t *testing.T) {
	ctx := context.Background()
	data, err := os.ReadFile(animalsPath(t))
	require.NoError(t, err)

	bs := blobstore.NewMemoryStore()
	bs.Put("models/animals.magvec", data)
	dir := t.TempDir()

	s, err := magvec.OpenRemote(ctx, bs, "models/animals.magvec", magvec.WithTempDir(dir), magvec.WithEager(false))
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, filepath.Join(dir, "models", "animals.magvec"))
	assert.Equal(t, 6, int(s.Len()))
	v, err := s.Query(ctx, "cat")
	require.NoError(t, err)
	assert.InDeltaSlice(t, unit([]float32{1, .1, 0, 0}), v, 1e-6)

	again, err := magvec.OpenRemote(ctx, bs, "models/animals.magvec", magvec.WithTempDir(dir), magvec.WithEager(false))
	require.NoError(t, err)
	defer again.Close()
	assert.Equal(t, 1, bs.Opens())
}

func TestOpenRemote_NotFound(t *testing.T) {
	_, err := magvec.OpenRemote(context.Background(), blobstore.NewMemoryStore(), "missing.magvec",
		magvec.WithTempDir(t.TempDir()))
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}
