package feature

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSweepInterval is how often the background reclamation runs.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically reclaims idle user state so memory stays flat
// under user churn, independent of request traffic.
type Sweeper struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	running  atomic.Bool
}

// NewSweeper creates a reclamation sweeper for store. A non-positive
// interval falls back to DefaultSweepInterval.
func NewSweeper(store *Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the sweep loop is active.
func (s *Sweeper) Running() bool { return s.running.Load() }

// Start runs sweeps on a fixed cadence until ctx ends or Stop is called.
// Call in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce()
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the sweep loop. Safe to call any number of times.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// sweepOnce reclaims expired users, absorbing panics so one bad sweep
// cannot kill the loop.
func (s *Sweeper) sweepOnce() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("reclamation sweep panicked", "panic", fmt.Sprint(r))
		}
	}()

	start := time.Now()
	removed := s.store.Reclaim(s.store.now())
	if removed == 0 {
		return
	}
	s.logger.Info("reclamation sweep finished",
		"removed", removed,
		"remaining", s.store.Stats().Users,
		"took", time.Since(start),
	)
}
