package feature

import (
	"testing"
	"time"
)

var windowBase = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func wsample(ts time.Time, amount float64) sample {
	return sample{ts: ts, amount: amount, merchant: "m", location: "l", method: "card"}
}

func TestWindowEvictsByAge(t *testing.T) {
	w := newWindow(time.Hour, 100)

	w.insert(wsample(windowBase, 1))
	w.insert(wsample(windowBase.Add(30*time.Minute), 2))
	w.insert(wsample(windowBase.Add(61*time.Minute), 3))

	if w.count() != 2 {
		t.Fatalf("expected 2 retained samples, got %d", w.count())
	}
	if w.samples[0].amount != 2 {
		t.Errorf("expected oldest retained amount 2, got %v", w.samples[0].amount)
	}
}

func TestWindowAgeBoundaryInclusive(t *testing.T) {
	w := newWindow(time.Hour, 100)

	// A sample exactly horizon old is still within the window.
	w.insert(wsample(windowBase, 1))
	w.insert(wsample(windowBase.Add(time.Hour), 2))

	if w.count() != 2 {
		t.Fatalf("sample exactly at the horizon boundary was evicted; count = %d", w.count())
	}
}

func TestWindowEvictsByCapacity(t *testing.T) {
	w := newWindow(24*time.Hour, 3)

	for i := 0; i < 5; i++ {
		w.insert(wsample(windowBase.Add(time.Duration(i)*time.Minute), float64(i+1)))
	}

	if w.count() != 3 {
		t.Fatalf("expected capacity cap of 3, got %d", w.count())
	}
	if w.samples[0].amount != 3 {
		t.Errorf("expected oldest-first eviction to leave amount 3 at head, got %v", w.samples[0].amount)
	}
}

func TestWindowEvictionRunsOnEveryInsert(t *testing.T) {
	w := newWindow(time.Hour, 100)

	// Seed stale samples directly; one fresh insert must clear them all.
	for i := 0; i < 5; i++ {
		w.samples = append(w.samples, wsample(windowBase.Add(-25*time.Hour), 1))
	}
	w.insert(wsample(windowBase, 2))

	if w.count() != 1 {
		t.Fatalf("expected 1 sample after stale sweep, got %d", w.count())
	}
	if w.samples[0].amount != 2 {
		t.Errorf("expected only the fresh sample retained, got amount %v", w.samples[0].amount)
	}
}

func TestWindowOutOfOrderTimestamps(t *testing.T) {
	w := newWindow(time.Hour, 100)

	w.insert(wsample(windowBase, 1))
	w.insert(wsample(windowBase.Add(30*time.Minute), 2))
	// A late arrival with an older timestamp widens nothing and evicts nothing.
	w.insert(wsample(windowBase.Add(-50*time.Minute), 3))

	if w.count() != 3 {
		t.Fatalf("late arrival should not trigger eviction, got count %d", w.count())
	}

	// The next in-order insert prunes against its own timestamp.
	w.insert(wsample(windowBase.Add(65*time.Minute), 4))

	if w.count() != 2 {
		t.Fatalf("expected 2 samples after in-order insert, got %d", w.count())
	}
	if w.samples[0].amount != 2 || w.samples[1].amount != 4 {
		t.Errorf("unexpected retained samples: %v, %v", w.samples[0].amount, w.samples[1].amount)
	}
}

func TestWindowCapacityOne(t *testing.T) {
	w := newWindow(time.Hour, 1)

	w.insert(wsample(windowBase, 1))
	w.insert(wsample(windowBase.Add(time.Minute), 2))

	if w.count() != 1 {
		t.Fatalf("expected 1 sample, got %d", w.count())
	}
	if w.samples[0].amount != 2 {
		t.Errorf("expected newest sample retained, got amount %v", w.samples[0].amount)
	}
}
