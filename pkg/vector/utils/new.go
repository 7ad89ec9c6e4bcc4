package vectorutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/clidram/medrag/pkg/config"
	"github.com/clidram/medrag/pkg/vector"
	"github.com/clidram/medrag/pkg/vector/inmemory"
	"github.com/clidram/medrag/pkg/vector/postgres"
	"github.com/clidram/medrag/pkg/vector/sqlitevec"
)

// NewDriver constructs the configured vector driver.
// Supported providers: postgres, sqlite, memory.
func NewDriver(ctx context.Context, cfg config.VectorStoreConfig, dimensions uint, logger *zap.Logger) (vector.Driver, error) {
	switch cfg.Provider {
	case "postgres":
		return postgres.NewDriver(ctx, postgres.Config{
			ConnStr:    cfg.Target,
			Dimensions: dimensions,
		}, logger)
	case "sqlite":
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     cfg.SQLitePath,
			Dimensions: dimensions,
		}, logger)
	case "memory":
		return inmemory.NewDriver(logger), nil
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", cfg.Provider)
	}
}
