package format

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	v := []float32{0.1234, -0.9876543, 0, 1, -1, 0.00049}

	for _, precision := range []int{3, 5, 7} {
		enc := Encode(nil, v, precision)
		require.Len(t, enc, len(v))

		dec := make([]float32, len(v))
		Decode(dec, enc, precision, 0, true)

		bound := 0.5*math.Pow(10, -float64(precision)) + 1e-7
		for i := range v {
			assert.LessOrEqual(t, math.Abs(float64(dec[i]-v[i])), bound, "precision %d component %d", precision, i)
		}
	}
}

func TestEncodeDecode_Precision3(t *testing.T) {
	enc := Encode(nil, []float32{0.1234}, 3)
	assert.Equal(t, []int64{123}, enc)

	dec := make([]float32, 1)
	Decode(dec, enc, 3, 0, true)
	assert.InDelta(t, 0.123, dec[0], 1e-7)
}

func TestDecode_Magnitude(t *testing.T) {
	dec := make([]float32, 4)
	Decode(dec, []int64{600, 800}, 3, 5, false)
	assert.InDeltaSlice(t, []float32{3, 4, 0, 0}, dec, 1e-6)
}

func TestRecord_VectorPadsPlaceholders(t *testing.T) {
	r := Record{Key: "cat", Components: []int64{10, 20}}
	v := r.Vector(4, 1, true)
	assert.Equal(t, []float32{1, 2, 0, 0}, v)
}

func TestMetadata_SetAndCheck(t *testing.T) {
	m := DefaultMetadata()
	for _, row := range []struct {
		k string
		v int64
	}{
		{KeySize, 10}, {KeyDim, 3}, {KeyPrecision, 7}, {KeyVersion, 2},
		{KeySubword, 1}, {KeyEntropy, 2}, {KeyEntropy, 0}, {KeyEntropy, 1},
	} {
		m.Set(row.k, row.v)
	}

	require.NoError(t, m.Check())
	assert.Equal(t, int64(10), m.Size)
	assert.Equal(t, []int{2, 0, 1}, m.Entropy)
	assert.True(t, m.Subword)
	assert.Equal(t, DefaultSubwordStart, m.SubwordStart)
	assert.Equal(t, 1, m.MaxDuplicateKeys)

	m.Version = Version + 1
	var ife *IncompatibleFormatError
	require.ErrorAs(t, m.Check(), &ife)
	assert.Equal(t, Version+1, ife.FileVersion)
	assert.Equal(t, Version, ife.SupportedVersion)
}

func TestCodec_RoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("meta chunk payload "), 200)

	for _, c := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		t.Run(c.String(), func(t *testing.T) {
			enc, err := Compress(c, data)
			require.NoError(t, err)
			if c != CodecNone {
				assert.Less(t, len(enc), len(data))
			}

			dec, err := Decompress(c, enc)
			require.NoError(t, err)
			assert.Equal(t, data, dec)
		})
	}

	_, err := Compress(Codec(9), data)
	assert.ErrorIs(t, err, ErrCorrupt)
}
