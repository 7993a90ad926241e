package embedding

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
)

// fakeEngine counts calls and returns deterministic vectors.
type fakeEngine struct {
	calls      int64
	batchCalls int64
}

func (f *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	atomic.AddInt64(&f.calls, 1)
	return []float32{float32(len(text)), 1, 0}, nil
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt64(&f.batchCalls, 1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if t == "" {
			return nil, ErrEmptyText
		}
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func (f *fakeEngine) Dimensions() int { return 3 }
func (f *fakeEngine) Model() string   { return "fake" }
func (f *fakeEngine) MaxLength() int  { return 0 }

func TestCosineSimilarity(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if math.Abs(sim-1.0) > 1e-9 {
		t.Errorf("Expected similarity 1.0, got %f", sim)
	}

	sim, err = CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if math.Abs(sim) > 1e-9 {
		t.Errorf("Expected orthogonal similarity 0, got %f", sim)
	}

	if _, err := CosineSimilarity([]float32{1}, []float32{1, 2}); err == nil {
		t.Error("Expected dimension mismatch error")
	}

	sim, err = CosineSimilarity([]float32{0, 0}, []float32{1, 1})
	if err != nil || sim != 0 {
		t.Errorf("Expected zero-magnitude similarity 0, got %f err=%v", sim, err)
	}
}

func TestCachedEngineDeduplicates(t *testing.T) {
	fake := &fakeEngine{}
	cached := NewCachedEngine(fake, 10)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := cached.Embed(ctx, "same question"); err != nil {
			t.Fatalf("Embed failed: %v", err)
		}
	}
	if fake.calls != 1 {
		t.Errorf("Expected 1 upstream call for identical text, got %d", fake.calls)
	}
	if cached.Len() != 1 {
		t.Errorf("Expected 1 cached entry, got %d", cached.Len())
	}
}

func TestCachedEngineRejectsEmptyText(t *testing.T) {
	cached := NewCachedEngine(&fakeEngine{}, 10)
	if _, err := cached.Embed(context.Background(), ""); err != ErrEmptyText {
		t.Errorf("Expected ErrEmptyText, got %v", err)
	}
}

func TestCachedEngineEviction(t *testing.T) {
	fake := &fakeEngine{}
	cached := NewCachedEngine(fake, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := cached.Embed(ctx, fmt.Sprintf("text-%d", i)); err != nil {
			t.Fatalf("Embed failed: %v", err)
		}
	}
	if cached.Len() != 3 {
		t.Errorf("Expected cache bounded at 3, got %d", cached.Len())
	}
}

func TestCachedEngineBatchForwardsOnlyMisses(t *testing.T) {
	fake := &fakeEngine{}
	cached := NewCachedEngine(fake, 10)
	ctx := context.Background()

	if _, err := cached.Embed(ctx, "alpha"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	vecs, err := cached.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("Expected 3 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 3 {
			t.Errorf("Vector %d has wrong dimensionality: %d", i, len(v))
		}
	}
	if fake.batchCalls != 1 {
		t.Errorf("Expected exactly 1 upstream batch call, got %d", fake.batchCalls)
	}
}

func TestNewEngineUnsupportedProvider(t *testing.T) {
	if _, err := NewEngine(Config{Provider: "quantum"}); err == nil {
		t.Error("Expected error for unsupported provider")
	}
}
