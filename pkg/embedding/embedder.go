// Package embedding provides the query-embedding collaborators used by the
// diversity scorer and the forensic probe archive. Three providers are
// supported: a deterministic hash embedder (always available), a local ONNX
// feature-extraction model via Hugot, and a remote OpenAI-compatible endpoint.
package embedding

import (
	"context"
	"math"
)

// Embedder converts text into a fixed-length vector. Implementations must be
// deterministic for identical input: the diversity signal compares the current
// query against a stored previous embedding, so drift between calls would
// poison the similarity comparison.
type Embedder interface {
	// Embed returns a fixed-length vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the vector length this embedder produces.
	Dimension() int
}

// CosineSimilarity computes the cosine similarity of two vectors. A zero-norm
// vector or a length mismatch yields 0 rather than a division fault.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
