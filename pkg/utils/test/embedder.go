// Package testutils holds shared fakes for package tests.
package testutils

import (
	"context"
	"fmt"

	"github.com/clidram/medrag/pkg/embeddings"
)

var _ embeddings.Embedder = (*MockEmbedder)(nil)

// MockEmbedder is a test embedder that returns predictable embeddings.
type MockEmbedder struct {
	// Embeddings maps exact input texts to fixed vectors.
	Embeddings map[string][]float32

	// FailOn causes embedding to return an error when the input text matches.
	FailOn string

	// Dim is the vector width for default embeddings (defaults to 4).
	Dim int

	// Calls counts EmbedBatch invocations.
	Calls int
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
		Dim:        4,
	}
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *MockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.Calls++

	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if m.FailOn != "" && text == m.FailOn {
			return nil, fmt.Errorf("mock embedding failure for: %s", text)
		}
		if emb, ok := m.Embeddings[text]; ok {
			out = append(out, emb)
			continue
		}

		// Default: a unit vector along the first axis so cosine math stays
		// well defined.
		emb := make([]float32, m.Dim)
		emb[0] = 1
		out = append(out, emb)
	}
	return out, nil
}

func (m *MockEmbedder) Dimensions() int {
	return m.Dim
}

func (m *MockEmbedder) Close() error {
	return nil
}
