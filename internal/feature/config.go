package feature

import (
	"fmt"
	"time"
)

// Default engine tuning. Horizon and capacity choices bound worst-case
// memory per user; TTL bounds total user count under churn.
const (
	DefaultCapacity = 1000
	DefaultTTL      = time.Hour
)

// Config fixes the engine's horizons, bounds, and expiry at construction
// time. Nothing here changes at runtime and nothing inside the engine
// assumes particular values beyond what Validate enforces.
type Config struct {
	// Horizons are the rolling lookback durations, one window per entry.
	Horizons []time.Duration

	// Capacities caps the retained samples per horizon window. Horizons
	// without an entry get DefaultCapacity.
	Capacities map[time.Duration]int

	// VelocityHorizon selects the window whose count becomes the velocity
	// feature. Must be one of Horizons.
	VelocityHorizon time.Duration

	// ProfileHorizon selects the window backing the distinct-value
	// features (merchants, locations, payment methods, time-of-day).
	// Must be one of Horizons.
	ProfileHorizon time.Duration

	// TTL is the inactivity duration after which a user's entire state is
	// eligible for reclamation.
	TTL time.Duration
}

// DefaultConfig mirrors the deployed defaults: hourly velocity, daily
// behavioral profile, weekly long window, one-hour state TTL.
func DefaultConfig() Config {
	return Config{
		Horizons:        []time.Duration{time.Hour, 24 * time.Hour, 168 * time.Hour},
		VelocityHorizon: time.Hour,
		ProfileHorizon:  24 * time.Hour,
		TTL:             DefaultTTL,
	}
}

// normalized returns a copy with missing capacities filled in. The map is
// deep-copied so the engine never shares mutable state with the caller.
func (c Config) normalized() Config {
	caps := make(map[time.Duration]int, len(c.Horizons))
	for _, h := range c.Horizons {
		if n, ok := c.Capacities[h]; ok {
			caps[h] = n
		} else {
			caps[h] = DefaultCapacity
		}
	}
	c.Capacities = caps

	horizons := make([]time.Duration, len(c.Horizons))
	copy(horizons, c.Horizons)
	c.Horizons = horizons
	return c
}

// Validate rejects configurations the engine cannot run with. Called at
// construction; a failure here aborts startup rather than surfacing at
// request time.
func (c Config) Validate() error {
	if len(c.Horizons) == 0 {
		return fmt.Errorf("at least one horizon is required")
	}
	seen := make(map[time.Duration]bool, len(c.Horizons))
	for _, h := range c.Horizons {
		if h <= 0 {
			return fmt.Errorf("horizon %v must be positive", h)
		}
		if seen[h] {
			return fmt.Errorf("horizon %v configured twice", h)
		}
		seen[h] = true
		if n, ok := c.Capacities[h]; ok && n <= 0 {
			return fmt.Errorf("capacity for horizon %v must be positive, got %d", h, n)
		}
	}
	if !seen[c.VelocityHorizon] {
		return fmt.Errorf("velocity horizon %v is not a configured horizon", c.VelocityHorizon)
	}
	if !seen[c.ProfileHorizon] {
		return fmt.Errorf("profile horizon %v is not a configured horizon", c.ProfileHorizon)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("ttl must be positive, got %v", c.TTL)
	}
	return nil
}
