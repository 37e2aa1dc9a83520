package feature

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riskline/riskline/internal/event"
	"github.com/riskline/riskline/internal/syncutil"
)

// ErrUnknownUser reports a feature query for a user with no live state.
// A defined result, not a failure: the user either never transacted or
// idled past the TTL.
var ErrUnknownUser = errors.New("unknown user")

// Store owns the user → state mapping and is the engine's sole ingestion
// surface. Per-user mutation is serialized by the state's own mutex while
// distinct users proceed in parallel; the top-level map lock is held only
// for lookups and inserts. Memory stays bounded by construction: window
// capacities cap per-user growth and the TTL sweep caps user count.
type Store struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	users map[string]*userState

	// creates serializes first-event construction per user ID so exactly
	// one state wins when a new user's events race.
	creates syncutil.KeyedMutex

	velocityIdx int
	profileIdx  int

	ingested  atomic.Int64
	created   atomic.Int64
	reclaimed atomic.Int64
	lastSweep atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock overrides the wall-clock source. Ingestion-time bookkeeping
// (TTL, last-seen) reads this clock; window eviction always keys off
// event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New constructs an empty store. Configuration problems fail here, at
// startup, never on the ingest path.
func New(cfg Config, opts ...Option) (*Store, error) {
	cfg = cfg.normalized()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("feature store config: %w", err)
	}

	s := &Store{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		users:  make(map[string]*userState),
	}
	for i, h := range cfg.Horizons {
		if h == cfg.VelocityHorizon {
			s.velocityIdx = i
		}
		if h == cfg.ProfileHorizon {
			s.profileIdx = i
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the store's normalized configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// Record ingests one event and returns the feature vector derived from
// the user's updated state. Total over well-formed input: it always
// produces a vector and has no failure path. Events for one user are
// applied in arrival order; events for different users never contend.
func (s *Store) Record(ev event.Event) Vector {
	done := observeIngest()
	defer done()
	now := s.now()

	for {
		s.mu.RLock()
		u, ok := s.users[ev.UserID]
		s.mu.RUnlock()

		if ok && !s.expiredAt(u, now) {
			u.mu.Lock()
			if u.dead {
				// Reclaimed between lookup and lock; start over.
				u.mu.Unlock()
				continue
			}
			vec := s.applyLocked(u, ev, now)
			u.mu.Unlock()
			s.ingested.Add(1)
			return vec
		}

		// First event for this user, or its previous state idled past the
		// TTL. Build the replacement under the per-ID create lock so
		// racing first-events produce exactly one state.
		unlock := s.creates.Lock(ev.UserID)

		s.mu.RLock()
		u, ok = s.users[ev.UserID]
		s.mu.RUnlock()

		if ok && !s.expiredAt(u, now) {
			// Lost the create race; use the winner's state.
			unlock()
			continue
		}
		if ok && !s.drop(u, now) {
			// A concurrent event revived the stale state.
			unlock()
			continue
		}

		fresh := newUserState(ev.UserID, now, s.cfg)
		vec := s.applyLocked(fresh, ev, now)

		// Publish only after the first apply so no observer ever sees a
		// state with zero events.
		s.mu.Lock()
		s.users[ev.UserID] = fresh
		s.mu.Unlock()
		unlock()

		s.created.Add(1)
		s.ingested.Add(1)
		UsersCreated.Inc()
		ActiveUsers.Inc()
		return vec
	}
}

// applyLocked runs the apply → derive → cache sequence. Caller holds the
// state's mutex or exclusively owns an unpublished state.
func (s *Store) applyLocked(u *userState, ev event.Event, now time.Time) Vector {
	view := u.apply(ev, now, s.velocityIdx, s.profileIdx)
	vec := computeVector(view, ev)
	u.lastVec.Store(&vec)
	return vec
}

// Features returns the vector cached by the user's most recent event
// without ingesting anything. Users never seen, or idle past the TTL,
// report ErrUnknownUser; expired entries are left for the sweep.
func (s *Store) Features(userID string) (Vector, error) {
	s.mu.RLock()
	u, ok := s.users[userID]
	s.mu.RUnlock()

	if !ok || s.expiredAt(u, s.now()) {
		return Vector{}, ErrUnknownUser
	}
	return *u.lastVec.Load(), nil
}

// Reclaim removes every user whose last event is older than the TTL
// relative to now, and returns how many were removed. Candidates are
// collected from atomically-read timestamps under the read lock, so
// updates for live users are never blocked; each candidate is then
// re-checked under its own lock before retirement.
func (s *Store) Reclaim(now time.Time) int {
	s.mu.RLock()
	var stale []*userState
	for _, u := range s.users {
		if s.expiredAt(u, now) {
			stale = append(stale, u)
		}
	}
	s.mu.RUnlock()

	removed := 0
	for _, u := range stale {
		if s.drop(u, now) {
			removed++
		}
	}

	if removed > 0 {
		s.reclaimed.Add(int64(removed))
		UsersReclaimed.Add(float64(removed))
		s.logger.Debug("reclaimed idle user state", "removed", removed, "ttl", s.cfg.TTL)
	}
	s.lastSweep.Store(now.UnixNano())
	return removed
}

// drop retires one state if it is still expired at now. Returns false
// when a concurrent event revived it or another path already retired it.
// Lock order is always state → map, never the reverse.
func (s *Store) drop(u *userState, now time.Time) bool {
	u.mu.Lock()
	if u.dead || !s.expiredAt(u, now) {
		u.mu.Unlock()
		return false
	}
	u.dead = true
	u.mu.Unlock()

	s.mu.Lock()
	if cur, ok := s.users[u.id]; ok && cur == u {
		delete(s.users, u.id)
	}
	s.mu.Unlock()
	ActiveUsers.Dec()
	return true
}

// expiredAt reports whether u's last event predates now−TTL. Strict: a
// state exactly at the boundary survives.
func (s *Store) expiredAt(u *userState, now time.Time) bool {
	return u.lastSeenTime().Before(now.Add(-s.cfg.TTL))
}

// Stats reports entity and buffer counts for observability. A read-only
// side channel, never consulted by scoring.
type Stats struct {
	Users     int
	Buffered  map[time.Duration]int // retained samples per horizon
	Ingested  int64
	Created   int64
	Reclaimed int64
	LastSweep time.Time
}

// Stats sums retained samples across users. User pointers are snapshotted
// first so no state lock is ever taken while holding the map lock.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	states := make([]*userState, 0, len(s.users))
	for _, u := range s.users {
		states = append(states, u)
	}
	s.mu.RUnlock()

	buffered := make(map[time.Duration]int, len(s.cfg.Horizons))
	for _, h := range s.cfg.Horizons {
		buffered[h] = 0
	}
	for _, u := range states {
		u.mu.Lock()
		for i, w := range u.windows {
			buffered[s.cfg.Horizons[i]] += w.count()
		}
		u.mu.Unlock()
	}

	var lastSweep time.Time
	if ns := s.lastSweep.Load(); ns != 0 {
		lastSweep = time.Unix(0, ns)
	}
	return Stats{
		Users:     len(states),
		Buffered:  buffered,
		Ingested:  s.ingested.Load(),
		Created:   s.created.Load(),
		Reclaimed: s.reclaimed.Load(),
		LastSweep: lastSweep,
	}
}

// UserSummary describes one tracked user for operational listings.
type UserSummary struct {
	ID        string
	FirstSeen time.Time
	LastSeen  time.Time
	Buffered  int // samples retained in the profile window
}

// Users returns a point-in-time summary of tracked users sorted by ID.
// Intended for low-frequency operational queries, not the ingest path.
func (s *Store) Users() []UserSummary {
	s.mu.RLock()
	states := make([]*userState, 0, len(s.users))
	for _, u := range s.users {
		states = append(states, u)
	}
	s.mu.RUnlock()

	out := make([]UserSummary, 0, len(states))
	for _, u := range states {
		u.mu.Lock()
		buffered := u.windows[s.profileIdx].count()
		u.mu.Unlock()
		out = append(out, UserSummary{
			ID:        u.id,
			FirstSeen: u.firstSeen,
			LastSeen:  u.lastSeenTime(),
			Buffered:  buffered,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
