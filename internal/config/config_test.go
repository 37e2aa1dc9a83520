package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskline/riskline/internal/scoring"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "HORIZONS", "WINDOW_CAPACITY", "KAFKA_BROKERS", "ALERT_WEBHOOK_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, []time.Duration{time.Hour, 24 * time.Hour, 168 * time.Hour}, cfg.Horizons)
	assert.Equal(t, DefaultWindowCapacity, cfg.WindowCapacity)
	assert.Equal(t, DefaultVelocityHorizon, cfg.VelocityHorizon)
	assert.Equal(t, DefaultProfileHorizon, cfg.ProfileHorizon)
	assert.Equal(t, DefaultStateTTL, cfg.StateTTL)
	assert.Equal(t, scoring.DefaultWeights(), cfg.Weights)
	assert.InDelta(t, DefaultAlertThreshold, cfg.AlertThreshold, 1e-12)
	assert.False(t, cfg.IngestEnabled())
	assert.False(t, cfg.AlertsEnabled())
}

func TestLoad_CustomEngineSettings(t *testing.T) {
	t.Setenv("HORIZONS", "30m, 6h,48h")
	t.Setenv("VELOCITY_HORIZON", "30m")
	t.Setenv("PROFILE_HORIZON", "6h")
	t.Setenv("STATE_TTL", "2h")
	t.Setenv("WINDOW_CAPACITY", "250")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{30 * time.Minute, 6 * time.Hour, 48 * time.Hour}, cfg.Horizons)
	assert.Equal(t, 30*time.Minute, cfg.VelocityHorizon)
	assert.Equal(t, 6*time.Hour, cfg.ProfileHorizon)
	assert.Equal(t, 2*time.Hour, cfg.StateTTL)
	assert.Equal(t, 250, cfg.WindowCapacity)

	eng := cfg.EngineConfig()
	require.NoError(t, eng.Validate())
	assert.Equal(t, 250, eng.Capacities[30*time.Minute])
}

func TestLoad_BadHorizons(t *testing.T) {
	t.Setenv("HORIZONS", "1h,banana")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "HORIZONS")
}

func TestLoad_VelocityOutsideHorizons(t *testing.T) {
	t.Setenv("HORIZONS", "1h,24h")
	t.Setenv("VELOCITY_HORIZON", "30m")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "velocity horizon")
}

func TestLoad_ScoreWeights(t *testing.T) {
	t.Setenv("SCORE_WEIGHTS", `{"transaction_velocity_1h":0.5,"amount_zscore":0.5}`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 0.5, cfg.Weights.Velocity, 1e-12)
	assert.InDelta(t, 0.5, cfg.Weights.AmountZScore, 1e-12)
	// Omitted keys weigh zero rather than inheriting the defaults.
	assert.Zero(t, cfg.Weights.LocationAnomaly)
}

func TestLoad_BadScoreWeights(t *testing.T) {
	t.Setenv("SCORE_WEIGHTS", "{not json")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "SCORE_WEIGHTS")
}

func TestLoad_KafkaAndAlerts(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092")
	t.Setenv("ALERT_WEBHOOK_URL", "https://hooks.example.com/fraud")
	t.Setenv("ALERT_THRESHOLD", "0.9")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.IngestEnabled())
	assert.True(t, cfg.AlertsEnabled())
	assert.InDelta(t, 0.9, cfg.AlertThreshold, 1e-12)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Horizons:         []time.Duration{time.Hour, 24 * time.Hour},
			WindowCapacity:   100,
			VelocityHorizon:  time.Hour,
			ProfileHorizon:   24 * time.Hour,
			StateTTL:         time.Hour,
			SweepInterval:    time.Minute,
			Weights:          scoring.DefaultWeights(),
			SigmoidSteepness: 1,
			AlertThreshold:   0.8,
			RateLimitRPS:     100,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid config", func(c *Config) {}, ""},
		{"no horizons", func(c *Config) { c.Horizons = nil }, "horizon"},
		{"zero capacity", func(c *Config) { c.WindowCapacity = 0 }, "WINDOW_CAPACITY"},
		{"zero sweep", func(c *Config) { c.SweepInterval = 0 }, "SWEEP_INTERVAL"},
		{"flat sigmoid", func(c *Config) { c.SigmoidSteepness = 0 }, "SIGMOID_STEEPNESS"},
		{"threshold above one", func(c *Config) { c.AlertThreshold = 1.5 }, "ALERT_THRESHOLD"},
		{"zero rate limit", func(c *Config) { c.RateLimitRPS = 0 }, "RATE_LIMIT_RPS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "90m")
	t.Setenv("TEST_BAD_DUR", "soon")

	d, err := getEnvDuration("TEST_DUR", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	d, err = getEnvDuration("NONEXISTENT_VAR", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, d)

	_, err = getEnvDuration("TEST_BAD_DUR", time.Hour)
	assert.Error(t, err)
}

func TestSplitCSV(t *testing.T) {
	assert.Nil(t, splitCSV(""))
	assert.Equal(t, []string{"a", "b"}, splitCSV(" a ,, b "))
}
