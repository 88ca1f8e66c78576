// Package outbox relays committed entry inserts from the outbox table to the realtime feed.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/RaiderRus/moodTrack/internal/metrics"
	"github.com/RaiderRus/moodTrack/internal/model"
	"github.com/RaiderRus/moodTrack/internal/realtime"
	"github.com/RaiderRus/moodTrack/internal/store"
)

// Config controls batch size and polling cadence.
type Config struct {
	BatchSize int           // rows leased per cycle
	Interval  time.Duration // poll interval
	Lease     time.Duration // how long a leased row stays hidden from other relays
}

// Relay polls the outbox and publishes each row once it is committed.
type Relay struct {
	rows store.Outbox
	feed realtime.Feed
	log  zerolog.Logger
	cfg  Config
}

// NewRelay constructs a Relay from dependencies.
func NewRelay(rows store.Outbox, feed realtime.Feed, cfg Config, log zerolog.Logger) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	return &Relay{rows: rows, feed: feed, log: log, cfg: cfg}
}

// Run starts the polling loop until ctx is canceled.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info().Int("batch", r.cfg.BatchSize).Dur("interval", r.cfg.Interval).Msg("outbox relay starting")
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("outbox relay stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.ProcessOnce(ctx); err != nil {
				// per-row backoff keeps a failing feed from hot-looping
				r.log.Error().Err(err).Msg("outbox processOnce")
			}
		}
	}
}

// ProcessOnce leases one batch and publishes it, returning how many rows were delivered.
func (r *Relay) ProcessOnce(ctx context.Context) (int, error) {
	recs, err := r.rows.Lease(ctx, r.cfg.BatchSize, r.cfg.Lease)
	if err != nil {
		return 0, fmt.Errorf("lease outbox: %w", err)
	}

	delivered := 0
	for _, rec := range recs {
		if err := r.handle(ctx, rec); err != nil {
			r.log.Warn().Err(err).Int64("id", rec.ID).Int("attempts", rec.Attempts).Msg("outbox row failed")
			metrics.OutboxRelayed.WithLabelValues("failed").Inc()
			if e := r.rows.MarkFailed(ctx, rec.ID); e != nil {
				r.log.Error().Err(e).Int64("id", rec.ID).Msg("markFailed error")
			}
			continue
		}
		if e := r.rows.MarkDone(ctx, rec.ID); e != nil {
			r.log.Error().Err(e).Int64("id", rec.ID).Msg("markDone error")
			continue
		}
		metrics.OutboxRelayed.WithLabelValues("done").Inc()
		delivered++
	}
	return delivered, nil
}

func (r *Relay) handle(ctx context.Context, rec model.OutboxRecord) error {
	switch rec.Op {
	case model.OpEntryInserted:
		var entry model.MoodEntry
		if err := json.Unmarshal(rec.Payload, &entry); err != nil {
			return fmt.Errorf("bad payload: %w", err)
		}
		return r.feed.Publish(ctx, realtime.EntryInserted(entry))
	default:
		return fmt.Errorf("unknown op: %s", rec.Op)
	}
}
