package scoring

import "testing"

func TestHybridScoreCombination(t *testing.T) {
	w := DefaultWeights()

	got := HybridScore(1, 0, w)
	if got != 0.4 {
		t.Fatalf("expected pure velocity to yield 0.4, got %f", got)
	}
	got = HybridScore(0, 1, w)
	if got != 0.6 {
		t.Fatalf("expected pure diversity to yield 0.6, got %f", got)
	}
	got = HybridScore(1, 1, w)
	if got != 1 {
		t.Fatalf("expected saturated signals to yield 1, got %f", got)
	}
}

func TestHybridScoreClamps(t *testing.T) {
	if got := HybridScore(1, 1, Weights{Velocity: 2, Diversity: 2}); got != 1 {
		t.Fatalf("expected clamp at 1, got %f", got)
	}
	if got := HybridScore(-1, -1, DefaultWeights()); got != 0 {
		t.Fatalf("expected clamp at 0, got %f", got)
	}
}
