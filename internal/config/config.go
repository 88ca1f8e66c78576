package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the mood journal service.
// Environment variables are parsed from the MOODTRACK_ prefix.
type Config struct {
	// Build target selects high-level environment: local, cloud-dev, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"local"`

	// Derived or override drivers
	DBDriver       string `envconfig:"DB_DRIVER" default:"auto"`
	RealtimeDriver string `envconfig:"REALTIME_DRIVER" default:"auto"`

	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	HTTPPort int    `envconfig:"HTTP_PORT" default:"8080"`
	WebDir   string `envconfig:"WEB_DIR" default:""`

	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:""`

	// Object storage for audio recordings
	AudioDir      string `envconfig:"AUDIO_DIR" default:"data/audio"`
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:""`

	NATSURL string `envconfig:"NATS_URL" default:"nats://localhost:4222"`

	// Inference collaborator (transcription + classification)
	InferenceURL            string `envconfig:"INFERENCE_URL" default:"http://localhost:8000"`
	InferenceTimeoutSeconds int    `envconfig:"INFERENCE_TIMEOUT_SECONDS" default:"0"`

	TagCatalogPath string `envconfig:"TAG_CATALOG_PATH" default:""`
	TimeZone       string `envconfig:"TIME_ZONE" default:"UTC"`

	SessionTTLHours int `envconfig:"SESSION_TTL_HOURS" default:"720"`

	AudioRetryAttempts   int `envconfig:"AUDIO_RETRY_ATTEMPTS" default:"3"`
	AudioRetryUnitMillis int `envconfig:"AUDIO_RETRY_UNIT_MILLIS" default:"500"`
	HighlightMillis      int `envconfig:"HIGHLIGHT_MILLIS" default:"1000"`
	TrendWindowDays      int `envconfig:"TREND_WINDOW_DAYS" default:"7"`
	TopTagsLimit         int `envconfig:"TOP_TAGS_LIMIT" default:"5"`

	// Outbox relay feeding the realtime channel
	RelayInProcess       bool `envconfig:"RELAY_IN_PROCESS" default:"true"`
	OutboxBatchSize      int  `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxIntervalMillis int  `envconfig:"OUTBOX_INTERVAL_MILLIS" default:"500"`

	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver and RealtimeDriver when set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	var defaultDB, defaultRealtime string

	switch c.BuildTarget {
	case "local":
		defaultDB, defaultRealtime = "sqlite", "memory"
	case "cloud-dev", "cloud":
		defaultDB, defaultRealtime = "postgres", "nats"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}
	if c.RealtimeDriver == "" || c.RealtimeDriver == "auto" {
		c.RealtimeDriver = defaultRealtime
	}

	switch c.DBDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			c.SQLitePath = "data/moodtrack.db"
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	switch c.RealtimeDriver {
	case "memory", "nats":
	default:
		return fmt.Errorf("unsupported REALTIME_DRIVER: %s", c.RealtimeDriver)
	}

	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid TIME_ZONE %q: %w", c.TimeZone, err)
	}
	if c.AudioRetryAttempts < 1 {
		return fmt.Errorf("AUDIO_RETRY_ATTEMPTS must be >= 1")
	}
	return nil
}

// New creates a new Config by parsing environment variables
// Environment variables should be prefixed with MOODTRACK_
// Example: MOODTRACK_HTTP_PORT, MOODTRACK_POSTGRES_DSN
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("MOODTRACK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("realtime_driver", cfg.RealtimeDriver).
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("inference_url", cfg.InferenceURL).
		Str("audio_dir", cfg.AudioDir).
		Str("time_zone", cfg.TimeZone).
		Bool("postgres_dsn_present", cfg.PostgresDSN != "").
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	return &Config{
		BuildTarget:               "local",
		DBDriver:                  "sqlite",
		RealtimeDriver:            "memory",
		Environment:               EnvTesting,
		LogLevel:                  "debug",
		HTTPPort:                  8080,
		SQLitePath:                "file::memory:?cache=shared",
		AudioDir:                  "data/audio",
		InferenceURL:              "http://localhost:8000",
		TimeZone:                  "UTC",
		SessionTTLHours:           24,
		AudioRetryAttempts:        3,
		AudioRetryUnitMillis:      1,
		HighlightMillis:           1000,
		TrendWindowDays:           7,
		TopTagsLimit:              5,
		RelayInProcess:            true,
		OutboxBatchSize:           100,
		OutboxIntervalMillis:      10,
		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Location returns the time zone used for calendar-day bucketing.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SessionTTL returns the lifetime of an auth session.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// AudioRetryUnit returns the linear backoff unit of the audio attachment step.
func (c *Config) AudioRetryUnit() time.Duration {
	return time.Duration(c.AudioRetryUnitMillis) * time.Millisecond
}

// HighlightTTL returns how long a freshly appended entry stays highlighted.
func (c *Config) HighlightTTL() time.Duration {
	return time.Duration(c.HighlightMillis) * time.Millisecond
}

// TrendWindow returns the trailing window used by the trend series.
func (c *Config) TrendWindow() time.Duration {
	return time.Duration(c.TrendWindowDays) * 24 * time.Hour
}

// OutboxInterval returns the relay poll interval.
func (c *Config) OutboxInterval() time.Duration {
	return time.Duration(c.OutboxIntervalMillis) * time.Millisecond
}

// InferenceTimeout returns the HTTP timeout for inference calls; zero means none.
func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.InferenceTimeoutSeconds) * time.Second
}
