package vectorcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	in := []float32{0, 1.5, -3.25, 1e10, -1e-10}
	blob := Encode(in)
	require.Len(t, blob, len(in)*4)

	out := Decode(blob)
	require.Equal(t, len(in), len(out))
	for i := range in {
		assert.Equal(t, in[i], out[i])
	}
}

func TestDecode_TruncatesPartialTrailingFloat(t *testing.T) {
	blob := Encode([]float32{1, 2, 3})
	out := Decode(blob[:len(blob)-1]) // drop one trailing byte
	assert.Len(t, out, 2)
}

func TestCosine_IdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, Cosine(v, v), 1e-6)
}

func TestCosine_OrthogonalIsZero(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, Cosine(a, b), 1e-6)
}

func TestCosine_OppositeIsNegativeOne(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-1, -2, -3}
	assert.InDelta(t, -1.0, Cosine(a, b), 1e-6)
}

func TestCosine_MismatchedLengthsReturnsZero(t *testing.T) {
	assert.Equal(t, float32(0), Cosine([]float32{1, 2}, []float32{1}))
}

func TestCosine_EmptyVectorsReturnsZero(t *testing.T) {
	assert.Equal(t, float32(0), Cosine(nil, nil))
}

func TestCosine_ZeroVectorReturnsZero(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}
	assert.Equal(t, float32(0), Cosine(a, b))
}
