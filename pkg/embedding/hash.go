package embedding

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"strings"
)

// DefaultHashDimension is the vector length for the hash embedder. 128 buckets
// is enough resolution for near-duplicate detection without model downloads.
const DefaultHashDimension = 128

// HashEmbedder produces deterministic pseudo-embeddings by hashing the text
// into fixed buckets. It carries no semantic knowledge: identical queries map
// to identical vectors and unrelated queries decorrelate, which is exactly the
// property the repetition signal needs. Used as the zero-dependency default
// when no ONNX model or remote endpoint is configured.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a hash embedder with the given dimension.
// Dimensions <= 0 fall back to DefaultHashDimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultHashDimension
	}
	return &HashEmbedder{dimension: dimension}
}

// Embed hashes the normalized text into h.dimension buckets. Never fails.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))

	vec := make([]float32, h.dimension)
	for i := range vec {
		sum := md5.Sum([]byte(fmt.Sprintf("%s_%d", normalized, i)))
		// Fold the first 8 digest bytes into a bucket value in [0, 1).
		val := binary.BigEndian.Uint64(sum[:8])
		vec[i] = float32(val%1000) / 1000.0
	}
	return vec, nil
}

// Dimension returns the configured vector length.
func (h *HashEmbedder) Dimension() int {
	return h.dimension
}
