// Package inferenceservice runs the transcription and tag classification HTTP service.
package inferenceservice

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/RaiderRus/moodTrack/internal/config"
	"github.com/RaiderRus/moodTrack/internal/inference"
	"github.com/RaiderRus/moodTrack/internal/inference/openai"
	"github.com/RaiderRus/moodTrack/internal/logger"
	"github.com/RaiderRus/moodTrack/internal/metrics"
	"github.com/RaiderRus/moodTrack/internal/tags"
)

// Run starts the inference service and blocks until shutdown or error.
func Run() error {
	log := logger.New("inference-service")

	cfg, err := config.NewInference()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	log = logger.NewWithWriter(os.Stdout, "inference-service", cfg.LogLevel)

	catalog, err := tags.Load(cfg.TagCatalogPath)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Tag catalog invalid")
		return err
	}

	backend, err := openai.New(openai.Config{
		BaseURL:         cfg.OpenAIBaseURL,
		APIKey:          cfg.OpenAIAPIKey,
		TranscribeModel: cfg.TranscribeModel,
		ChatModel:       cfg.ChatModel,
		RatePerSecond:   cfg.RateLimitPerSecond,
		Burst:           cfg.RateLimitBurst,
		MaxAudioBytes:   cfg.MaxAudioBytes,
	}, catalog)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Inference backend unavailable")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           buildRouter(backend, cfg.MaxAudioBytes, log),
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

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

// buildRouter mounts the inference API next to the metrics endpoint.
func buildRouter(backend inference.Backend, maxAudioBytes int64, log zerolog.Logger) *mux.Router {
	root := mux.NewRouter()
	root.Handle("/metrics", metrics.Handler()).Methods("GET")
	root.PathPrefix("/api/").Handler(inference.NewHandler(backend, maxAudioBytes, log))
	return root
}
