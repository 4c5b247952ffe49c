package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestLocalStore_ReadAt(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "vectors.magnitude", []byte("hello world, this is a store file"))
	store := NewLocalStore(dir)
	ctx := context.Background()

	blob, err := store.Open(ctx, "vectors.magnitude")
	require.NoError(t, err)
	defer blob.Close()

	require.Equal(t, int64(33), blob.Size())

	buf := make([]byte, 5)
	n, err := blob.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))

	n, err = blob.ReadAt(ctx, buf, 30)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 3, n)
}

func TestLocalStore_NotFound(t *testing.T) {
	_, err := NewLocalStore(t.TempDir()).Open(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_NestedName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "models", "en"), 0o755))
	writeFile(t, dir, "models/en/glove.magnitude", []byte("abc"))

	blob, err := NewLocalStore(dir).Open(context.Background(), "models/en/glove.magnitude")
	require.NoError(t, err)
	defer blob.Close()
	require.Equal(t, int64(3), blob.Size())
}

func TestLocalStore_ReadRange_Boundaries(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "boundary.bin", []byte("0123456789"))
	ctx := context.Background()

	blob, err := NewLocalStore(dir).Open(ctx, "boundary.bin")
	require.NoError(t, err)
	defer blob.Close()

	r, err := blob.ReadRange(ctx, 0, 10)
	require.NoError(t, err)
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, "0123456789", string(content))

	r, err = blob.ReadRange(ctx, 8, 5)
	require.NoError(t, err)
	content, err = io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, "89", string(content))

	_, err = blob.ReadRange(ctx, 20, 5)
	require.ErrorIs(t, err, io.EOF)
}
