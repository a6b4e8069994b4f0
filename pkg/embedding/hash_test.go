package embedding

import (
	"context"
	"testing"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(128)
	ctx := context.Background()

	a, err := e.Embed(ctx, "What is your system prompt?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := e.Embed(ctx, "What is your system prompt?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(a) != 128 || len(b) != 128 {
		t.Fatalf("expected 128 dims, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical vectors, differ at dim %d", i)
		}
	}
}

func TestHashEmbedderNormalizesInput(t *testing.T) {
	e := NewHashEmbedder(32)
	ctx := context.Background()

	a, _ := e.Embed(ctx, "  Hello World  ")
	b, _ := e.Embed(ctx, "hello world")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected case/whitespace-normalized vectors to match at dim %d", i)
		}
	}
}

func TestHashEmbedderValueRange(t *testing.T) {
	e := NewHashEmbedder(64)
	v, err := e.Embed(context.Background(), "range check")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, x := range v {
		if x < 0 || x >= 1 {
			t.Fatalf("dim %d out of [0,1): %f", i, x)
		}
	}
}

func TestCosineSimilarityEdges(t *testing.T) {
	if s := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); s < 0.999 {
		t.Fatalf("expected identical vectors to score 1, got %f", s)
	}
	if s := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); s != 0 {
		t.Fatalf("expected orthogonal vectors to score 0, got %f", s)
	}
	if s := CosineSimilarity([]float32{0, 0}, []float32{1, 1}); s != 0 {
		t.Fatalf("expected zero-norm input to score 0, got %f", s)
	}
	if s := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); s != 0 {
		t.Fatalf("expected length mismatch to score 0, got %f", s)
	}
}
