// Package repository selects and opens the configured storage backend.
package repository

import (
	"context"
	"fmt"

	"github.com/Rrens/codemuse/internal/config"
	"github.com/Rrens/codemuse/internal/domain"
	"github.com/Rrens/codemuse/internal/repository/memory"
	"github.com/Rrens/codemuse/internal/repository/mongo"
	"github.com/Rrens/codemuse/internal/repository/postgres"
	"github.com/Rrens/codemuse/internal/repository/sqldb"
	"github.com/Rrens/codemuse/migrations"
	"github.com/rs/zerolog/log"
)

// Open connects to the backend named by cfg.Driver, applying SQL
// migrations first when cfg.AutoMigrate is set.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*domain.Store, error) {
	if cfg.AutoMigrate {
		if err := Migrate(cfg); err != nil {
			return nil, err
		}
	}

	log.Info().Str("driver", cfg.Driver).Msg("Opening storage backend")

	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := postgres.NewDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return postgres.NewStore(db), nil

	case config.DriverMySQL:
		db, err := sqldb.Open(ctx, sqldb.MySQL, cfg.DSN())
		if err != nil {
			return nil, err
		}
		return sqldb.NewStore(db), nil

	case config.DriverSQLite:
		db, err := sqldb.Open(ctx, sqldb.SQLite, cfg.DSN())
		if err != nil {
			return nil, err
		}
		return sqldb.NewStore(db), nil

	case config.DriverMongo:
		db, err := mongo.Connect(ctx, cfg.MongoURI, cfg.Database)
		if err != nil {
			return nil, err
		}
		return mongo.NewStore(db), nil

	case config.DriverMemory:
		log.Warn().Msg("Using in-memory storage; data is lost on restart")
		return memory.NewStore(), nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

// Migrate applies pending migrations for SQL drivers; other drivers are a no-op
func Migrate(cfg config.DatabaseConfig) error {
	switch cfg.Driver {
	case config.DriverPostgres, config.DriverMySQL, config.DriverSQLite:
		return migrations.Up(cfg.Driver, cfg.MigrateURL())
	default:
		return nil
	}
}
