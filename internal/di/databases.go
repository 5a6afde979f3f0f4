package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-signals/internal/config"
	"github.com/aristath/sentinel-signals/internal/database"
	"github.com/aristath/sentinel-signals/internal/modules/signals"
	"github.com/aristath/sentinel-signals/internal/storage/postgres"
)

// InitializeStores opens and migrates the configured signal store
func InitializeStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pool.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}
		container.PostgresPool = pool
		container.Store = postgres.NewSignalStore(pool, log)
		log.Info().Str("driver", config.StorePostgres).Msg("Signal store ready")

	default:
		db, err := database.New(database.Config{
			Path:    cfg.SQLitePath(),
			Profile: database.ProfileStandard,
			Name:    "signals",
		})
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
		}
		container.SQLiteDB = db
		container.Store = signals.NewSQLiteStore(db, log)
		log.Info().Str("driver", config.StoreSQLite).Str("path", db.Path()).Msg("Signal store ready")
	}

	return container, nil
}
