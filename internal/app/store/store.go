// Package store opens the repository backend selected by configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/bookreview/internal/app/migrate"
	"github.com/splax/bookreview/internal/repository"
	"github.com/splax/bookreview/internal/repository/memory"
	"github.com/splax/bookreview/internal/repository/mongo"
	"github.com/splax/bookreview/internal/repository/postgres"
	"github.com/splax/bookreview/pkg/config"
)

// Options control how the backend is prepared.
type Options struct {
	// Migrate applies pending PostgreSQL migrations before returning.
	Migrate bool
}

// Open connects to the configured store.
func Open(ctx context.Context, cfg config.APIConfig, opts Options, log *slog.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		return openPostgres(ctx, cfg, opts, log)
	case config.StoreMongo:
		repo, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		log.Info("store ready", "driver", cfg.StoreDriver, "database", cfg.MongoDatabase)
		return repo, nil
	case config.StoreMemory:
		log.Info("store ready", "driver", cfg.StoreDriver)
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func openPostgres(ctx context.Context, cfg config.APIConfig, opts Options, log *slog.Logger) (repository.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	runner, err := migrate.New(pool, cfg.MigrationsDir, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("configure migrations: %w", err)
	}
	if err := runner.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if opts.Migrate {
		if err := runner.Ensure(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	log.Info("store ready", "driver", cfg.StoreDriver)
	return postgres.New(pool), nil
}
