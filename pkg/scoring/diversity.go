package scoring

import (
	"context"
	"fmt"

	"github.com/miragesec/mirage/pkg/embedding"
)

// DiversityScorer measures semantic repetition between consecutive queries.
// High similarity between the current query and the previous one is the
// extraction-probing signature: an adversary re-querying near-identical
// prompts to enumerate model behavior. The comparison is deliberately
// one-step-back rather than a running centroid, trading long-horizon
// detection power for O(1) state per identity.
type DiversityScorer struct {
	embedder embedding.Embedder
}

// NewDiversityScorer creates a scorer backed by the given embedder.
func NewDiversityScorer(embedder embedding.Embedder) *DiversityScorer {
	return &DiversityScorer{embedder: embedder}
}

// Score embeds the current query and returns its clamped cosine similarity
// against the previous embedding, along with the current embedding so the
// caller can persist it for the next request.
//
// A nil previous embedding scores 0: a brand-new identity cannot yet be
// judged repetitive. Negative similarity also scores 0 - only positive
// semantic overlap counts as suspicious. Zero-norm vectors score 0 rather
// than raising a division fault.
func (d *DiversityScorer) Score(ctx context.Context, query string, previous []float32) (float64, []float32, error) {
	current, err := d.embedder.Embed(ctx, query)
	if err != nil {
		return 0, nil, fmt.Errorf("embedding query failed: %w", err)
	}

	if previous == nil {
		return 0, current, nil
	}

	similarity := embedding.CosineSimilarity(current, previous)
	if similarity < 0 {
		similarity = 0
	}
	if similarity > 1 {
		similarity = 1
	}
	return similarity, current, nil
}
