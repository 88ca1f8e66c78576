package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// InferenceConfig configures the transcription/classification service.
// Environment variables are parsed from the MOODTRACK_INFERENCE_ prefix.
type InferenceConfig struct {
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8000"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	OpenAIBaseURL   string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY" default:""`
	TranscribeModel string `envconfig:"TRANSCRIBE_MODEL" default:"whisper-1"`
	ChatModel       string `envconfig:"CHAT_MODEL" default:"gpt-3.5-turbo"`

	RateLimitPerSecond float64 `envconfig:"RATE_LIMIT_PER_SECOND" default:"2"`
	RateLimitBurst     int     `envconfig:"RATE_LIMIT_BURST" default:"4"`
	MaxAudioBytes      int64   `envconfig:"MAX_AUDIO_BYTES" default:"52428800"`

	TagCatalogPath string `envconfig:"TAG_CATALOG_PATH" default:""`
}

// NewInference parses the inference service configuration.
func NewInference() (*InferenceConfig, error) {
	var cfg InferenceConfig
	if err := envconfig.Process("MOODTRACK_INFERENCE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.RateLimitPerSecond <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_SECOND must be > 0")
	}

	log.Info().
		Int("port", cfg.HTTPPort).
		Str("openai_base_url", cfg.OpenAIBaseURL).
		Str("transcribe_model", cfg.TranscribeModel).
		Str("chat_model", cfg.ChatModel).
		Float64("rate_limit", cfg.RateLimitPerSecond).
		Msg("Inference configuration loaded")

	return &cfg, nil
}

// GetHTTPAddr returns the HTTP server address
func (c *InferenceConfig) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
