// Package vector implements the binary codec for embedding vectors and the
// cosine similarity math shared by the semantic engines.
//
// Vectors are stored as fixed-width little-endian float32 arrays with no
// length prefix: the dimension is implied by the embedding model, so the
// blob length must be a multiple of four bytes.
package vector

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nexushq/nexus/pkg/types"
)

// Encode serializes a float32 vector to its storage representation.
func Encode(v []float32) []byte {
	blob := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(f))
	}
	return blob
}

// Decode deserializes a storage blob back into a float32 vector. A blob
// whose length is not a multiple of four is corrupt and is rejected rather
// than truncated.
func Decode(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("corrupt vector blob: %d bytes is not a multiple of 4", len(blob))
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		v[i] = math.Float32frombits(bits)
	}
	return v, nil
}

// Cosine computes the cosine similarity dot(a,b)/(|a|*|b|) between two
// vectors of equal length. Unequal lengths indicate corrupt embedding data
// and fail with ErrDimensionMismatch; a zero-norm operand yields 0 rather
// than dividing by zero.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", types.ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Normalize scales a vector to unit length. Zero vectors are returned as-is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = f / norm
	}
	return out
}
