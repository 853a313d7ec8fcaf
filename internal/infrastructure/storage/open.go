package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/palamut62/ai-gant-news/internal/config"
	"github.com/palamut62/ai-gant-news/internal/ports"
)

// Open connects the backend selected by cfg.Driver. The schema is not applied.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (ports.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		repo, err := NewPostgresRepository(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.DriverSQLite, "":
		repo, err := NewSQLiteRepository(cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
