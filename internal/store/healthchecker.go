package store

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/RaiderRus/moodTrack/internal/health"
)

// NewStoreHealthChecker probes the store, preferring a driver-level ping.
func NewStoreHealthChecker(s Store, log zerolog.Logger, probeTimeout time.Duration) *health.ProbeChecker {
	return health.NewProbeChecker("store", func(ctx context.Context) error {
		if p, ok := s.(health.HealthPinger); ok {
			return p.HealthPing(ctx)
		}
		// A lookup that cannot match still round-trips to the database.
		_, err := s.Users().Get(ctx, "__health_check__")
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		return nil
	}, log, probeTimeout)
}
