package generation

import (
	"context"
	"fmt"

	"github.com/miragesec/mirage/pkg/httputil"
)

// BoundedGenerator caps concurrent upstream calls. Beyond the cap, callers
// queue until a slot frees or their context expires.
type BoundedGenerator struct {
	inner Generator
	sem   *httputil.Semaphore
}

// NewBounded wraps gen with a concurrency limit.
func NewBounded(gen Generator, maxConcurrent int) *BoundedGenerator {
	return &BoundedGenerator{
		inner: gen,
		sem:   httputil.NewSemaphore(maxConcurrent),
	}
}

// Generate waits for a slot, then delegates.
func (b *BoundedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := b.sem.Acquire(ctx); err != nil {
		return "", fmt.Errorf("waiting for generation slot: %w", err)
	}
	defer b.sem.Release()
	return b.inner.Generate(ctx, prompt)
}

// InFlight returns the number of generations currently running.
func (b *BoundedGenerator) InFlight() int {
	return b.sem.InUse()
}
