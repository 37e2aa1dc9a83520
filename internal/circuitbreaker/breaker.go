// Package circuitbreaker guards outbound calls with a per-key breaker.
// Repeated failures trip a key open; after a cool-off one probe is let
// through to test recovery.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State is the position of one key's circuit.
type State int

const (
	StateClosed   State = iota // calls flow
	StateOpen                  // calls rejected until the cool-off passes
	StateHalfOpen              // one probe in flight, everything else rejected
)

var stateNames = [...]string{"closed", "open", "half_open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

var transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "riskline",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit state transitions by key, from-state, and to-state.",
}, []string{"key", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(transitionsTotal)
}

// circuit is the per-key record: consecutive strikes, current state, and
// when the circuit last tripped.
type circuit struct {
	state    State
	strikes  int
	openedAt time.Time
}

// Breaker tracks consecutive failures per key. Reaching maxStrikes trips
// the key open; openFor later the next Allow admits a single probe.
type Breaker struct {
	mu         sync.Mutex
	circuits   map[string]*circuit
	maxStrikes int
	openFor    time.Duration
	onShift    func(key string, from, to State)
}

// New returns a breaker that opens after maxStrikes consecutive failures
// and cools off for openFor. Non-positive arguments fall back to 5 strikes
// and 30 seconds.
func New(maxStrikes int, openFor time.Duration) *Breaker {
	if maxStrikes < 1 {
		maxStrikes = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		circuits:   make(map[string]*circuit),
		maxStrikes: maxStrikes,
		openFor:    openFor,
	}
}

// OnTransition registers fn to run after each state change. fn runs on the
// calling goroutine with no breaker lock held, so it may log or touch the
// breaker itself.
func (b *Breaker) OnTransition(fn func(key string, from, to State)) {
	b.mu.Lock()
	b.onShift = fn
	b.mu.Unlock()
}

// Allow reports whether a call for key may proceed. An open circuit whose
// cool-off has elapsed flips to half-open and admits exactly one probe.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	c := b.circuits[key]
	if c == nil {
		b.mu.Unlock()
		return true
	}

	allowed := true
	from, to := c.state, c.state
	switch c.state {
	case StateOpen:
		if time.Since(c.openedAt) < b.openFor {
			allowed = false
		} else {
			to = StateHalfOpen
			c.state = to
		}
	case StateHalfOpen:
		allowed = false
	}
	fn := b.onShift
	b.mu.Unlock()

	if from != to {
		announce(fn, key, from, to)
	}
	return allowed
}

// RecordSuccess clears the strike count. A half-open probe that succeeds
// closes the circuit.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	c := b.circuits[key]
	if c == nil {
		b.mu.Unlock()
		return
	}

	from, to := c.state, c.state
	if c.state == StateHalfOpen {
		to = StateClosed
		c.state = to
	}
	c.strikes = 0
	fn := b.onShift
	b.mu.Unlock()

	if from != to {
		announce(fn, key, from, to)
	}
}

// RecordFailure adds a strike. Reaching maxStrikes trips the circuit, and
// a failed half-open probe re-opens it immediately.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	c := b.circuits[key]
	if c == nil {
		c = &circuit{}
		b.circuits[key] = c
	}

	c.strikes++
	from, to := c.state, c.state
	tripped := c.state == StateHalfOpen ||
		(c.state == StateClosed && c.strikes >= b.maxStrikes)
	if tripped {
		to = StateOpen
		c.state = to
		c.openedAt = time.Now()
	}
	fn := b.onShift
	b.mu.Unlock()

	if from != to {
		announce(fn, key, from, to)
	}
}

// Current returns the state for key, StateClosed when the key is unknown.
func (b *Breaker) Current(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c := b.circuits[key]; c != nil {
		return c.state
	}
	return StateClosed
}

func announce(fn func(string, State, State), key string, from, to State) {
	transitionsTotal.WithLabelValues(key, from.String(), to.String()).Inc()
	if fn != nil {
		fn(key, from, to)
	}
}
