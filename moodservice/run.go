// Package moodservice runs the mood journal HTTP service.
package moodservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/RaiderRus/moodTrack/internal/api"
	"github.com/RaiderRus/moodTrack/internal/auth"
	"github.com/RaiderRus/moodTrack/internal/composer"
	"github.com/RaiderRus/moodTrack/internal/config"
	"github.com/RaiderRus/moodTrack/internal/factory"
	"github.com/RaiderRus/moodTrack/internal/health"
	"github.com/RaiderRus/moodTrack/internal/inference"
	"github.com/RaiderRus/moodTrack/internal/logger"
	"github.com/RaiderRus/moodTrack/internal/moodstore"
	"github.com/RaiderRus/moodTrack/internal/objectstore"
	"github.com/RaiderRus/moodTrack/internal/outbox"
	"github.com/RaiderRus/moodTrack/internal/realtime"
	"github.com/RaiderRus/moodTrack/internal/retry"
	"github.com/RaiderRus/moodTrack/internal/stats"
	"github.com/RaiderRus/moodTrack/internal/store"
	"github.com/RaiderRus/moodTrack/internal/tags"
)

// Run starts the mood journal service and blocks until shutdown or error.
func Run() error {
	log := logger.New("moodtrack-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	log = logger.NewWithWriter(os.Stdout, "moodtrack-service", cfg.LogLevel)

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("realtime_driver", cfg.RealtimeDriver).
		Bool("relay_in_process", cfg.RelayInProcess).
		Int("http_port", cfg.HTTPPort).
		Msg("Mood service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	startBackground(ctx, cfg, log, deps)

	svcHealth, storeChecker := startHealthCheckers(ctx, cfg, log, deps)

	// Block startup until the database answers; other collaborators degrade at runtime.
	if err := waitUntilHealthy(ctx, cfg, storeChecker); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	router := api.NewRouter(api.Deps{
		Auth:          deps.auth,
		Catalog:       deps.catalog,
		Moods:         deps.moods,
		Stats:         stats.NewService(deps.store.Entries(), deps.catalog, cfg.Location(), stats.Options{TopN: cfg.TopTagsLimit, Window: cfg.TrendWindow()}, time.Now),
		Composers:     deps.composers,
		Blobs:         deps.blobs,
		Health:        svcHealth,
		Location:      cfg.Location(),
		WebDir:        cfg.WebDir,
		SecureCookies: cfg.IsProduction(),
		Log:           log,
	})

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

type dependencies struct {
	store     store.Store
	closeDB   func() error
	feed      realtime.Feed
	catalog   *tags.Catalog
	inference *inference.Client
	moods     *moodstore.Provider
	composers *composer.Sessions
	auth      *auth.Service
	blobs     objectstore.Blobs
}

func (d *dependencies) close() {
	_ = d.feed.Close()
	_ = d.closeDB()
}

// initDependencies constructs required components and fails fast on misconfiguration.
func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*dependencies, error) {
	catalog, err := tags.Load(cfg.TagCatalogPath)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Tag catalog invalid")
		return nil, err
	}

	st, db, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return nil, err
	}

	feed, err := factory.NewFeed(cfg, log)
	if err != nil {
		_ = db.Close()
		log.Error().Stack().Err(err).Msg("Realtime feed unavailable")
		return nil, err
	}

	blobs := factory.NewBlobs(cfg)
	client := inference.New(cfg.InferenceURL, cfg.InferenceTimeout())
	moods := moodstore.NewProvider(st, log, moodstore.WithHighlightTTL(cfg.HighlightTTL()))

	composers := composer.NewSessions(&composer.Deps{
		Transcriber: client,
		Classifier:  client,
		Entries:     st.Entries(),
		Recordings:  st.Recordings(),
		Blobs:       blobs,
		Moods:       moods,
		Catalog:     catalog,
		AudioRetry:  retry.Policy{Attempts: cfg.AudioRetryAttempts, Unit: cfg.AudioRetryUnit()},
		Now:         time.Now,
		Log:         log,
	})

	return &dependencies{
		store:     st,
		closeDB:   db.Close,
		feed:      feed,
		catalog:   catalog,
		inference: client,
		moods:     moods,
		composers: composers,
		auth:      auth.NewService(st.Users(), st.Sessions(), cfg.SessionTTL()),
		blobs:     blobs,
	}, nil
}

// startBackground launches the outbox relay (when in-process) and the realtime consumer.
func startBackground(ctx context.Context, cfg *config.Config, log zerolog.Logger, d *dependencies) {
	if cfg.RelayInProcess {
		relay := outbox.NewRelay(d.store.Outbox(), d.feed, outbox.Config{
			BatchSize: cfg.OutboxBatchSize,
			Interval:  cfg.OutboxInterval(),
		}, log)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Stack().Err(err).Msg("outbox relay exit")
			}
		}()
	}
	go func() {
		if err := d.moods.Run(ctx, d.feed); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Stack().Err(err).Msg("realtime consumer exit")
		}
	}()
}

// startHealthCheckers starts component checkers and the service-level aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, d *dependencies) (*health.ServiceHealthChecker, *health.ProbeChecker) {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	storeChecker := store.NewStoreHealthChecker(d.store, log, probeTimeout)
	go storeChecker.Start(ctx, interval)
	checkers := []health.HealthChecker{storeChecker}

	inferenceChecker := health.NewProbeChecker("inference", d.inference.HealthPing, log, probeTimeout)
	go inferenceChecker.Start(ctx, interval)
	checkers = append(checkers, inferenceChecker)

	if p, ok := d.feed.(health.HealthPinger); ok {
		feedChecker := health.NewProbeChecker("realtime", p.HealthPing, log, probeTimeout)
		go feedChecker.Start(ctx, interval)
		checkers = append(checkers, feedChecker)
	}

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	return svcHealth, storeChecker
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: /api/entries/stream holds its response open.
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// startupHealthTimeout is twice the probe interval, at least 30 seconds.
func startupHealthTimeout(healthIntervalSeconds int) time.Duration {
	timeout := healthIntervalSeconds * 2
	if timeout < 30 {
		timeout = 30
	}
	return time.Duration(timeout) * time.Second
}

// waitUntilHealthy blocks until c reports healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, c health.HealthChecker) error {
	timeout := startupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if c.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: %s not healthy within %s", c.Name(), timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
