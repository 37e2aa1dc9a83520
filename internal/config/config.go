// Package config handles application configuration from environment variables
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/riskline/riskline/internal/feature"
	"github.com/riskline/riskline/internal/scoring"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Engine settings
	Horizons        []time.Duration
	WindowCapacity  int // retained samples per horizon window
	VelocityHorizon time.Duration
	ProfileHorizon  time.Duration
	StateTTL        time.Duration
	SweepInterval   time.Duration

	// Scoring
	Weights          scoring.Weights
	SigmoidSteepness float64
	SigmoidOffset    float64

	// Kafka ingest (enabled when brokers are set)
	KafkaBrokers     []string
	KafkaTopic       string
	KafkaGroup       string
	KafkaScoresTopic string // empty disables score publishing

	// Alerting (enabled when the webhook URL is set)
	AlertWebhookURL string
	AlertThreshold  float64
	WebhookSecret   string // HMAC secret for signing alert deliveries

	// Security
	RateLimitRPS int
	AdminSecret  string // Admin API secret
}

// Defaults mirror the deployed engine tuning.
const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultHorizons         = "1h,24h,168h"
	DefaultWindowCapacity   = 1000
	DefaultVelocityHorizon  = time.Hour
	DefaultProfileHorizon   = 24 * time.Hour
	DefaultStateTTL         = time.Hour
	DefaultSweepInterval    = 5 * time.Minute
	DefaultAlertThreshold   = 0.8
	DefaultRateLimit        = 100
	DefaultKafkaTopic       = "transactions"
	DefaultKafkaGroup       = "riskline-engine"
	DefaultKafkaScoresTopic = "transaction-scores"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		WindowCapacity:   int(getEnvInt64("WINDOW_CAPACITY", DefaultWindowCapacity)),
		KafkaBrokers:     splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:       getEnv("KAFKA_TOPIC", DefaultKafkaTopic),
		KafkaGroup:       getEnv("KAFKA_GROUP", DefaultKafkaGroup),
		KafkaScoresTopic: getEnv("KAFKA_SCORES_TOPIC", DefaultKafkaScoresTopic),
		AlertWebhookURL:  os.Getenv("ALERT_WEBHOOK_URL"),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
		RateLimitRPS:     int(getEnvInt64("RATE_LIMIT_RPS", DefaultRateLimit)),
		AdminSecret:      os.Getenv("ADMIN_SECRET"),
	}

	var err error
	if cfg.Horizons, err = parseDurations(getEnv("HORIZONS", DefaultHorizons)); err != nil {
		return nil, fmt.Errorf("HORIZONS: %w", err)
	}
	if cfg.VelocityHorizon, err = getEnvDuration("VELOCITY_HORIZON", DefaultVelocityHorizon); err != nil {
		return nil, err
	}
	if cfg.ProfileHorizon, err = getEnvDuration("PROFILE_HORIZON", DefaultProfileHorizon); err != nil {
		return nil, err
	}
	if cfg.StateTTL, err = getEnvDuration("STATE_TTL", DefaultStateTTL); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getEnvDuration("SWEEP_INTERVAL", DefaultSweepInterval); err != nil {
		return nil, err
	}
	if cfg.SigmoidSteepness, err = getEnvFloat("SIGMOID_STEEPNESS", scoring.DefaultSteepness); err != nil {
		return nil, err
	}
	if cfg.SigmoidOffset, err = getEnvFloat("SIGMOID_OFFSET", scoring.DefaultOffset); err != nil {
		return nil, err
	}
	if cfg.AlertThreshold, err = getEnvFloat("ALERT_THRESHOLD", DefaultAlertThreshold); err != nil {
		return nil, err
	}

	// Weights ship as a JSON object keyed by the wire feature names,
	// e.g. {"amount_zscore":0.25,...}; omitted keys weigh zero.
	cfg.Weights = scoring.DefaultWeights()
	if raw := os.Getenv("SCORE_WEIGHTS"); raw != "" {
		cfg.Weights = scoring.Weights{}
		if err := json.Unmarshal([]byte(raw), &cfg.Weights); err != nil {
			return nil, fmt.Errorf("SCORE_WEIGHTS: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration can actually run an engine
func (c *Config) Validate() error {
	if err := c.EngineConfig().Validate(); err != nil {
		return err
	}
	if c.WindowCapacity <= 0 {
		return fmt.Errorf("WINDOW_CAPACITY must be positive, got %d", c.WindowCapacity)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %v", c.SweepInterval)
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("SCORE_WEIGHTS: %w", err)
	}
	if c.SigmoidSteepness <= 0 {
		return fmt.Errorf("SIGMOID_STEEPNESS must be positive, got %v", c.SigmoidSteepness)
	}
	if c.AlertThreshold < 0 || c.AlertThreshold > 1 {
		return fmt.Errorf("ALERT_THRESHOLD must be within [0, 1], got %v", c.AlertThreshold)
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive, got %d", c.RateLimitRPS)
	}
	return nil
}

// EngineConfig converts the environment settings into the feature store's
// construction config.
func (c *Config) EngineConfig() feature.Config {
	caps := make(map[time.Duration]int, len(c.Horizons))
	for _, h := range c.Horizons {
		caps[h] = c.WindowCapacity
	}
	return feature.Config{
		Horizons:        c.Horizons,
		Capacities:      caps,
		VelocityHorizon: c.VelocityHorizon,
		ProfileHorizon:  c.ProfileHorizon,
		TTL:             c.StateTTL,
	}
}

// IngestEnabled reports whether the Kafka consumer should start.
func (c *Config) IngestEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// AlertsEnabled reports whether the alert webhook emitter should start.
func (c *Config) AlertsEnabled() bool {
	return c.AlertWebhookURL != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func parseDurations(csv string) ([]time.Duration, error) {
	parts := splitCSV(csv)
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(p)
		if err != nil {
			return nil, fmt.Errorf("bad duration %q: %w", p, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
