// Package feature implements the per-user fraud feature engine: bounded
// time-windowed transaction history, numerically stable running amount
// statistics, and the pure feature derivation that turns both into a
// feature vector on every ingested event.
package feature

import (
	"time"

	"github.com/riskline/riskline/internal/event"
)

// sample is the compact projection of an Event kept inside a window.
// Windows never hold the full Event; the user ID is implied by ownership
// and the transaction ID is not needed for any feature.
type sample struct {
	ts       time.Time
	amount   float64
	merchant string
	location string
	method   string
}

func newSample(ev event.Event) sample {
	return sample{
		ts:       ev.Timestamp,
		amount:   ev.Amount,
		merchant: ev.Merchant,
		location: ev.Location,
		method:   ev.PaymentMethod,
	}
}

// window is the bounded rolling history for one (user, horizon) pair.
// Samples are ordered by ingestion; eviction runs on every insert, first
// by age relative to the just-inserted sample's timestamp, then by the
// capacity ceiling, oldest first in both cases.
type window struct {
	horizon  time.Duration
	capacity int
	samples  []sample
}

func newWindow(horizon time.Duration, capacity int) *window {
	return &window{horizon: horizon, capacity: capacity}
}

// insert appends s at the tail and trims the head. Caller holds the
// owning state's lock. Amortized O(1): each sample is evicted at most once.
func (w *window) insert(s sample) {
	w.samples = append(w.samples, s)

	// Age eviction keys off the latest inserted timestamp, not wall time,
	// so replayed or backdated streams stay self-consistent.
	cutoff := s.ts.Add(-w.horizon)
	drop := 0
	for drop < len(w.samples) && w.samples[drop].ts.Before(cutoff) {
		drop++
	}
	if over := len(w.samples) - w.capacity; over > drop {
		drop = over
	}
	if drop > 0 {
		w.samples = w.samples[drop:]
	}
}

// count reports the number of retained samples.
func (w *window) count() int {
	return len(w.samples)
}
