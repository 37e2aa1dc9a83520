package feature

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/riskline/riskline/internal/event"
)

// userState holds everything the engine knows about one user: a window
// per configured horizon, the all-time amount accumulator, and the vector
// produced by the most recent event.
//
// Mutation is serialized by mu and happens only through apply, driven by
// the store's ingest path. lastSeen and lastVec are atomics so the
// reclamation scan and read-only feature queries never contend with
// in-flight updates.
type userState struct {
	id        string
	firstSeen time.Time

	mu      sync.Mutex
	windows []*window
	stats   welford
	dead    bool // set when the store retires this state; writers must recreate

	lastSeen atomic.Int64 // unix nanos of the last apply, ingestion clock
	lastVec  atomic.Pointer[Vector]
}

func newUserState(id string, now time.Time, cfg Config) *userState {
	u := &userState{
		id:        id,
		firstSeen: now,
		windows:   make([]*window, len(cfg.Horizons)),
	}
	for i, h := range cfg.Horizons {
		u.windows[i] = newWindow(h, cfg.Capacities[h])
	}
	u.lastSeen.Store(now.UnixNano())
	return u
}

// apply folds ev into every horizon window and the all-time amount stats,
// refreshes lastSeen, and returns the view feature derivation reads.
// The single mutation entry point; caller holds mu (or exclusively owns
// an unpublished state).
func (u *userState) apply(ev event.Event, now time.Time, velocityIdx, profileIdx int) historyView {
	prior := u.stats

	s := newSample(ev)
	for _, w := range u.windows {
		w.insert(s)
	}
	u.stats.add(ev.Amount)
	u.lastSeen.Store(now.UnixNano())

	return historyView{
		velocityCount: u.windows[velocityIdx].count(),
		profile:       u.windows[profileIdx].samples,
		prior:         prior,
	}
}

// lastSeenTime converts the atomic nanos back to a wall time.
func (u *userState) lastSeenTime() time.Time {
	return time.Unix(0, u.lastSeen.Load())
}
