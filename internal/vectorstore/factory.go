package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures a backend.
type Config struct {
	// Provider is "memory" (default) or "qdrant".
	Provider string
	Memory   MemoryConfig
	Qdrant   QdrantConfig
}

// NewStore creates the Store named by cfg.Provider:
//   - "memory" (default): MemoryStore, no external dependencies
//   - "qdrant": QdrantStore, requires a reachable Qdrant server
func NewStore(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case "memory", "":
		store, err := NewMemoryStore(cfg.Memory, logger.Named("memory"))
		if err != nil {
			return nil, fmt.Errorf("creating memory store: %w", err)
		}
		logger.Info("vector store initialized", zap.String("provider", "memory"))
		return store, nil

	case "qdrant":
		store, err := NewQdrantStore(ctx, cfg.Qdrant, logger.Named("qdrant"))
		if err != nil {
			return nil, fmt.Errorf("creating qdrant store: %w", err)
		}
		logger.Info("vector store initialized",
			zap.String("provider", "qdrant"),
			zap.String("host", cfg.Qdrant.Host),
			zap.Int("port", cfg.Qdrant.Port),
		)
		return store, nil

	default:
		return nil, fmt.Errorf("%w: unsupported vector store provider %q (use \"memory\" or \"qdrant\")", ErrInvalidConfig, cfg.Provider)
	}
}
