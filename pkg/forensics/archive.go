// Package forensics keeps an in-memory vector archive of flagged prompts so
// operators can ask "who else probed like this" across identities.
package forensics

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/miragesec/mirage/pkg/embedding"
	"github.com/miragesec/mirage/pkg/patterns"
)

// Match is one archived prompt similar to the query text.
type Match struct {
	AuditID    string  `json:"audit_id"`
	Identity   string  `json:"identity"`
	Tier       int     `json:"tier"`
	Score      float64 `json:"hybrid_score"`
	Prompt     string  `json:"prompt"`
	Category   string  `json:"category"`
	Similarity float32 `json:"similarity"`
}

// Archive indexes flagged prompts in an embedded vector store. It is strictly
// best effort: the request path records into it asynchronously and analysis
// queries come from the admin surface.
type Archive struct {
	collection *chromem.Collection
	mu         sync.RWMutex
	count      int
}

// NewArchive builds an archive over the given embedder.
func NewArchive(embedder embedding.Embedder) (*Archive, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is nil")
	}

	db := chromem.NewDB()
	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}

	collection, err := db.CreateCollection("probe_archive", nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	return &Archive{collection: collection}, nil
}

// Record archives one flagged prompt keyed by its audit record ID. Failures
// are logged and swallowed; the archive never blocks or fails a request.
func (a *Archive) Record(ctx context.Context, auditID, identity, prompt string, tier int, score float64) {
	if a == nil || prompt == "" {
		return
	}

	category, _ := patterns.Get().Classify(prompt)
	doc := chromem.Document{
		ID:      auditID,
		Content: prompt,
		Metadata: map[string]string{
			"identity":    identity,
			"tier":        strconv.Itoa(tier),
			"score":       fmt.Sprintf("%.4f", score),
			"category":    string(category),
			"archived_at": time.Now().UTC().Format(time.RFC3339),
		},
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.collection.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		log.Printf("[FORENSICS] failed to archive prompt %s: %v", auditID, err)
		return
	}
	a.count++
}

// Similar returns up to k archived prompts ranked by similarity to text.
func (a *Archive) Similar(ctx context.Context, text string, k int) ([]Match, error) {
	if a == nil {
		return nil, fmt.Errorf("archive not initialized")
	}
	if text == "" {
		return nil, fmt.Errorf("query text is required")
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.count == 0 {
		return nil, nil
	}
	if k <= 0 || k > a.count {
		k = a.count
	}

	results, err := a.collection.Query(ctx, text, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("archive query failed: %w", err)
	}

	out := make([]Match, 0, len(results))
	for _, r := range results {
		tier, _ := strconv.Atoi(r.Metadata["tier"])
		score, _ := strconv.ParseFloat(r.Metadata["score"], 64)
		out = append(out, Match{
			AuditID:    r.ID,
			Identity:   r.Metadata["identity"],
			Tier:       tier,
			Score:      score,
			Prompt:     r.Content,
			Category:   r.Metadata["category"],
			Similarity: r.Similarity,
		})
	}
	return out, nil
}

// Size returns the number of archived prompts.
func (a *Archive) Size() int {
	if a == nil {
		return 0
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.count
}
