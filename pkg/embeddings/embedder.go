// Package embeddings
package embeddings

import (
	"context"
	"errors"
)

// ErrEmbed is returned when embedding generation fails.
var ErrEmbed = errors.New("embedding failed")

// Embedder provides text embedding capabilities.
// Implementations return L2-normalized vectors so cosine similarity can be
// computed as an inner product by the vector stores.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts a batch of texts into vector embeddings,
	// one per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions reports the width of the vectors this embedder produces.
	Dimensions() int

	// Close releases any resources held by the embedder.
	Close() error
}
