package mmap

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matrixFile(t *testing.T, raw []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rows.magmmap")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func TestOpen_Float32Rows(t *testing.T) {
	rows := []float32{0.6, 0.8, 0, -1, float32(math.Sqrt2) / 2, float32(math.Sqrt2) / 2}
	var raw []byte
	for _, v := range rows {
		raw = binary.NativeEndian.AppendUint32(raw, math.Float32bits(v))
	}

	m, err := Open(matrixFile(t, raw), Sequential)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 24, m.Len())
	got, err := m.Float32s()
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.magmmap"), Normal)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFloat32s_TruncatedFile(t *testing.T) {
	m, err := Open(matrixFile(t, []byte{0, 0, 128, 63, 1}), Normal)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Float32s()
	assert.ErrorIs(t, err, ErrSize)
}

func TestOpen_Empty(t *testing.T) {
	m, err := Open(matrixFile(t, nil), WillNeed)
	require.NoError(t, err)

	assert.Zero(t, m.Len())
	v, err := m.Float32s()
	require.NoError(t, err)
	assert.Nil(t, v)
	require.NoError(t, m.Close())
}

func TestSlice(t *testing.T) {
	m, err := Open(matrixFile(t, []byte("magnitude")), Normal)
	require.NoError(t, err)
	defer m.Close()

	b, err := m.Slice(3, 3)
	require.NoError(t, err)
	assert.Equal(t, "nit", string(b))

	b, err = m.Slice(6, 10)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "ude", string(b))

	_, err = m.Slice(9, 1)
	assert.ErrorIs(t, err, io.EOF)

	_, err = m.Slice(-1, 1)
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	m, err := Open(matrixFile(t, []byte("abcd")), Normal)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.Nil(t, m.Bytes())
	_, err = m.Slice(0, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.Float32s()
	assert.ErrorIs(t, err, ErrClosed)
}
