// Package ratelimit meters API traffic per client with token buckets.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Config tunes the limiter.
type Config struct {
	// RequestsPerSecond is the sustained rate each client may hold.
	RequestsPerSecond int
	// BurstSize is the bucket capacity, the headroom above the rate.
	BurstSize int
	// CleanupInterval is how often idle buckets are dropped.
	CleanupInterval time.Duration
}

// DefaultConfig fits a scoring API that sees sustained machine-generated
// traffic rather than human browsing.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 100,
		BurstSize:         150,
		CleanupInterval:   time.Minute,
	}
}

// bucket is one client's token balance as of its last request.
type bucket struct {
	level float64
	seen  time.Time
}

// Limiter holds a token bucket per client key.
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
}

// New starts a limiter and its janitor goroutine. Call Stop to end the
// janitor.
func New(cfg Config) *Limiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go l.janitor()
	return l
}

// janitor drops buckets idle for two cleanup intervals. An evicted client
// starts over with a full bucket.
func (l *Limiter) janitor() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * l.cfg.CleanupInterval)
			l.mu.Lock()
			for key, b := range l.buckets {
				if b.seen.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Stop ends the janitor goroutine.
func (l *Limiter) Stop() {
	close(l.stop)
}

// Allow spends one token from key's bucket and reports false when the
// bucket is dry. Buckets refill at RequestsPerSecond up to BurstSize.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.buckets[key]
	if b == nil {
		l.buckets[key] = &bucket{level: float64(l.cfg.BurstSize) - 1, seen: now}
		return true
	}

	b.level += now.Sub(b.seen).Seconds() * float64(l.cfg.RequestsPerSecond)
	b.level = min(b.level, float64(l.cfg.BurstSize))
	b.seen = now

	if b.level < 1 {
		return false
	}
	b.level--
	return true
}

// clientKey buckets authenticated callers by token prefix and anonymous
// ones by IP.
func clientKey(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		return "auth:" + auth[:min(20, len(auth))]
	}
	return c.ClientIP()
}

// Middleware enforces the limit per client. Rejected requests get 429
// with a Retry-After hint in both the header and the body.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(clientKey(c)) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please slow down.",
				"retry_after": 1,
			})
			return
		}
		c.Next()
	}
}
