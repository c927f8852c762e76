package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmynk/settleup/internal/config"
	"github.com/mmynk/settleup/internal/storage"
	"github.com/mmynk/settleup/internal/storage/memory"
	"github.com/mmynk/settleup/internal/storage/postgres"
	"github.com/mmynk/settleup/internal/storage/sqlite"
)

// openStore opens the configured backend. SQL backends apply pending
// migrations on open.
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Info("Storage initialized", "driver", cfg.Driver, "database", cfg.SQLitePath)
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		slog.Info("Storage initialized", "driver", cfg.Driver)
		return store, nil
	case config.DriverMemory:
		slog.Warn("Using in-memory storage; data is lost on exit")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
