// Package factory builds driver-specific collaborators from configuration.
package factory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/RaiderRus/moodTrack/internal/config"
	"github.com/RaiderRus/moodTrack/internal/objectstore"
	"github.com/RaiderRus/moodTrack/internal/realtime"
	"github.com/RaiderRus/moodTrack/internal/store"
	storepg "github.com/RaiderRus/moodTrack/internal/store/postgres"
	storesqlite "github.com/RaiderRus/moodTrack/internal/store/sqlite"
)

// feedBuffer is the per-subscriber queue length of the in-process bus.
const feedBuffer = 64

// OpenDB opens the configured database without touching its schema.
func OpenDB(cfg *config.Config) (*sql.DB, error) {
	switch cfg.DBDriver {
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("MOODTRACK_POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
		return storepg.Open(cfg.PostgresDSN)
	case "sqlite":
		return storesqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}
}

// Migrate creates or upgrades the schema of db for the configured driver.
func Migrate(ctx context.Context, cfg *config.Config, db *sql.DB) error {
	switch cfg.DBDriver {
	case "postgres":
		return storepg.Migrate(ctx, db)
	case "sqlite":
		return storesqlite.EnsureSchema(db)
	default:
		return fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}
}

// NewStore opens the database, ensures the schema and returns the driver's store.
// The returned *sql.DB is owned by the caller.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, *sql.DB, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := Migrate(ctx, cfg, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate %s schema: %w", cfg.DBDriver, err)
	}
	log.Debug().Str("driver", cfg.DBDriver).Msg("store schema ready")

	if cfg.DBDriver == "postgres" {
		return storepg.NewWithDB(db), db, nil
	}
	return storesqlite.NewWithDB(db), db, nil
}

// NewFeed returns the realtime feed for the configured driver.
func NewFeed(cfg *config.Config, log zerolog.Logger) (realtime.Feed, error) {
	switch cfg.RealtimeDriver {
	case "memory":
		return realtime.NewBus(feedBuffer, log), nil
	case "nats":
		return realtime.ConnectNATS(cfg.NATSURL, log)
	default:
		return nil, fmt.Errorf("unknown REALTIME_DRIVER: %s", cfg.RealtimeDriver)
	}
}

// NewBlobs returns the audio object store.
func NewBlobs(cfg *config.Config) *objectstore.Disk {
	return objectstore.NewDisk(cfg.AudioDir, cfg.PublicBaseURL)
}
