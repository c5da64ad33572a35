// Package vectorcodec serializes float32 embedding vectors to and from the
// little-endian byte blob format used by the chunk_vectors table, and
// computes cosine similarity between two vectors.
package vectorcodec

import (
	"encoding/binary"
	"math"
)

const bytesPerFloat = 4

// Encode emits 4 little-endian bytes per value.
func Encode(v []float32) []byte {
	out := make([]byte, len(v)*bytesPerFloat)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*bytesPerFloat:], math.Float32bits(f))
	}
	return out
}

// Decode is the inverse of Encode. Trailing bytes not a multiple of 4 are
// discarded.
func Decode(b []byte) []float32 {
	n := len(b) / bytesPerFloat
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(b[i*bytesPerFloat:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. It returns 0
// if the lengths differ, either vector is empty, or either norm is below
// machine epsilon.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	magA = math.Sqrt(magA)
	magB = math.Sqrt(magB)
	if magA < epsilon32 || magB < epsilon32 {
		return 0
	}
	return float32(dot / (magA * magB))
}

const epsilon32 = float64(1.1920929e-7) // math.Float32 machine epsilon
