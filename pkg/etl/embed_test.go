package etl

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"go.uber.org/zap"
)

// orderedEmbedder returns a distinct vector per text so reassembly order is
// observable.
type orderedEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (e *orderedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (e *orderedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		n, _ := strconv.Atoi(text)
		out[i] = []float32{float32(n)}
	}
	return out, nil
}

func (e *orderedEmbedder) Dimensions() int { return 1 }
func (e *orderedEmbedder) Close() error    { return nil }

func TestEmbedAllPreservesOrder(t *testing.T) {
	emb := &orderedEmbedder{}
	p := &Pipeline{
		config: &Config{Embedder: emb, Workers: 3},
		logger: zap.NewNop(),
	}

	texts := make([]string, 101)
	for i := range texts {
		texts[i] = strconv.Itoa(i)
	}

	vectors, err := p.embedAll(context.Background(), texts, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if int(v[0]) != i {
			t.Fatalf("vector %d out of order: %v", i, v)
		}
	}
	if emb.calls != 11 {
		t.Fatalf("expected 11 sub-batches, got %d", emb.calls)
	}
}

func TestEmbedAllEmpty(t *testing.T) {
	p := &Pipeline{
		config: &Config{Embedder: &orderedEmbedder{}, Workers: 2},
		logger: zap.NewNop(),
	}

	vectors, err := p.embedAll(context.Background(), nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	if vectors != nil {
		t.Fatalf("expected nil for empty input, got %v", vectors)
	}
}
