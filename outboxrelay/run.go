// Package outboxrelay runs the outbox relay as a standalone worker, for
// deployments where several service replicas share one database and a NATS feed.
package outboxrelay

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/RaiderRus/moodTrack/internal/config"
	"github.com/RaiderRus/moodTrack/internal/factory"
	"github.com/RaiderRus/moodTrack/internal/logger"
	"github.com/RaiderRus/moodTrack/internal/outbox"
)

// Run starts the outbox relay and blocks until shutdown or error.
func Run() error {
	log := logger.New("outbox-relay")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	log = logger.NewWithWriter(os.Stdout, "outbox-relay", cfg.LogLevel)
	if cfg.RealtimeDriver != "nats" {
		log.Warn().Str("realtime_driver", cfg.RealtimeDriver).Msg("in-process feed has no subscribers outside this process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, db, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return err
	}
	defer db.Close()

	feed, err := factory.NewFeed(cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Realtime feed unavailable")
		return err
	}
	defer feed.Close()

	relay := outbox.NewRelay(st.Outbox(), feed, outbox.Config{
		BatchSize: cfg.OutboxBatchSize,
		Interval:  cfg.OutboxInterval(),
	}, log)

	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Stack().Err(err).Msg("outbox relay exit")
		return err
	}
	return nil
}
