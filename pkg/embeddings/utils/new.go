package embeddingutils

import (
	"fmt"

	"github.com/clidram/medrag/pkg/config"
	"github.com/clidram/medrag/pkg/embeddings"
	"github.com/clidram/medrag/pkg/embeddings/ollama"
)

// NewEmbedder constructs the configured embedding provider.
func NewEmbedder(cfg config.EmbeddingConfig) (embeddings.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL:    cfg.Target,
			Model:      cfg.Model,
			Dimensions: int(cfg.Dimensions),
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
