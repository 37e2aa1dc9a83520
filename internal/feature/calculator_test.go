package feature

import (
	"math"
	"testing"
	"time"

	"github.com/riskline/riskline/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestFirstEventBaseline(t *testing.T) {
	s := newTestStore(t)

	vec := s.Record(testutil.Tx("u1", 25.0, testutil.BaseTime))

	if vec.Velocity != 1 {
		t.Errorf("velocity = %v, want 1", vec.Velocity)
	}
	if vec.AmountZScore != 0 {
		t.Errorf("z-score with no history = %v, want 0", vec.AmountZScore)
	}
	if vec.LocationAnomaly != 0 {
		t.Errorf("location anomaly with no history = %v, want 0", vec.LocationAnomaly)
	}
	if vec.TimePattern != 0 {
		t.Errorf("time pattern with no history = %v, want 0", vec.TimePattern)
	}
	if vec.AmountVolatility != 0 {
		t.Errorf("volatility with no history = %v, want 0", vec.AmountVolatility)
	}
	if vec.MerchantDiversity != 1 {
		t.Errorf("first-event diversity = %v, want 1", vec.MerchantDiversity)
	}
	if vec.PaymentConsistency != 1 {
		t.Errorf("first-event payment consistency = %v, want 1", vec.PaymentConsistency)
	}
	if vec.LocationConsistency != 1 {
		t.Errorf("first-event location consistency = %v, want 1", vec.LocationConsistency)
	}
}

func TestAmountSpikeZScore(t *testing.T) {
	s := newTestStore(t)
	base := testutil.BaseTime

	s.Record(testutil.Tx("u1", 10, base))
	s.Record(testutil.Tx("u1", 10, base.Add(10*time.Minute)))
	vec := s.Record(testutil.Tx("u1", 1000, base.Add(20*time.Minute)))

	if vec.Velocity != 3 {
		t.Errorf("velocity = %v, want 3", vec.Velocity)
	}
	if vec.AmountZScore <= 1.5 {
		t.Errorf("z-score for a 100x spike = %v, want > 1.5", vec.AmountZScore)
	}
	if vec.MerchantDiversity > 1.0 {
		t.Errorf("merchant diversity = %v, want <= 1.0", vec.MerchantDiversity)
	}
}

func TestZScoreZeroVarianceFallback(t *testing.T) {
	s := newTestStore(t)
	base := testutil.BaseTime

	// Identical prior amounts give zero variance; the substituted floor is
	// 10% of the mean, so the spike lands at (1000-10)/1 exactly.
	s.Record(testutil.Tx("u1", 10, base))
	s.Record(testutil.Tx("u1", 10, base.Add(time.Minute)))
	vec := s.Record(testutil.Tx("u1", 1000, base.Add(2*time.Minute)))

	if math.Abs(vec.AmountZScore-990.0) > 1e-9 {
		t.Errorf("z-score = %v, want 990", vec.AmountZScore)
	}
}

func TestZScoreRepeatOfIdenticalAmounts(t *testing.T) {
	s := newTestStore(t)
	base := testutil.BaseTime

	s.Record(testutil.Tx("u1", 50, base))
	s.Record(testutil.Tx("u1", 50, base.Add(time.Minute)))
	vec := s.Record(testutil.Tx("u1", 50, base.Add(2*time.Minute)))

	if vec.AmountZScore != 0 {
		t.Errorf("z-score of a repeat amount = %v, want 0", vec.AmountZScore)
	}
}

func TestZScoreZeroMeanHistory(t *testing.T) {
	s := newTestStore(t)
	base := testutil.BaseTime

	// Zero-amount history has mean 0, so the 10% floor collapses and the
	// divisor falls back to 1.
	s.Record(testutil.Tx("u1", 0, base))
	s.Record(testutil.Tx("u1", 0, base.Add(time.Minute)))
	vec := s.Record(testutil.Tx("u1", 7, base.Add(2*time.Minute)))

	if math.Abs(vec.AmountZScore-7.0) > 1e-9 {
		t.Errorf("z-score = %v, want 7", vec.AmountZScore)
	}
}

func TestLocationNoveltyBeforeInsert(t *testing.T) {
	s := newTestStore(t)
	base := testutil.BaseTime

	v1 := s.Record(testutil.TxAt("u1", 10, base, "acme", "NYC", "card"))
	v2 := s.Record(testutil.TxAt("u1", 10, base.Add(time.Minute), "acme", "NYC", "card"))
	v3 := s.Record(testutil.TxAt("u1", 10, base.Add(2*time.Minute), "acme", "SF", "card"))
	v4 := s.Record(testutil.TxAt("u1", 10, base.Add(3*time.Minute), "acme", "SF", "card"))

	if v1.LocationAnomaly != 0 {
		t.Errorf("first event anomaly = %v, want 0", v1.LocationAnomaly)
	}
	if v2.LocationAnomaly != 0 {
		t.Errorf("known location anomaly = %v, want 0", v2.LocationAnomaly)
	}
	if v3.LocationAnomaly != 1 {
		t.Errorf("novel location anomaly = %v, want 1", v3.LocationAnomaly)
	}
	if v4.LocationAnomaly != 0 {
		t.Errorf("repeat of novel location anomaly = %v, want 0", v4.LocationAnomaly)
	}
}

func TestLocationAnomalyEmptyLocations(t *testing.T) {
	s := newTestStore(t)
	base := testutil.BaseTime

	v1 := s.Record(testutil.TxAt("u1", 10, base, "acme", "", "card"))
	v2 := s.Record(testutil.TxAt("u1", 10, base.Add(time.Minute), "acme", "", "card"))
	// First real location with only blank history: no evidence, no anomaly.
	v3 := s.Record(testutil.TxAt("u1", 10, base.Add(2*time.Minute), "acme", "NYC", "card"))

	if v1.LocationAnomaly != 0 || v2.LocationAnomaly != 0 {
		t.Errorf("blank locations flagged anomalous: %v, %v", v1.LocationAnomaly, v2.LocationAnomaly)
	}
	if v3.LocationAnomaly != 0 {
		t.Errorf("anomaly with no known prior locations = %v, want 0", v3.LocationAnomaly)
	}
}

func TestTimePatternHabitualHour(t *testing.T) {
	s := newTestStore(t)
	base := testutil.BaseTime // 12:00 UTC, a Sunday

	for i := 0; i < 10; i++ {
		s.Record(testutil.Tx("u1", 10, base.Add(time.Duration(i)*time.Minute)))
	}
	vec := s.Record(testutil.Tx("u1", 10, base.Add(30*time.Minute)))

	if vec.TimePattern != 0 {
		t.Errorf("time pattern at the habitual hour = %v, want 0", vec.TimePattern)
	}
}

func TestTimePatternRareHour(t *testing.T) {
	base := testutil.BaseTime // 12:00 UTC, a Sunday

	// Same weekday, unseen hour: hour component fully unusual, weekday
	// component fully habitual.
	s1 := newTestStore(t)
	for i := 0; i < 10; i++ {
		s1.Record(testutil.Tx("u1", 10, base.Add(time.Duration(i)*time.Minute)))
	}
	sameDay := s1.Record(testutil.Tx("u1", 10, base.Add(-9*time.Hour))) // 03:00 Sunday
	if sameDay.TimePattern != 0.5 {
		t.Errorf("rare hour, habitual weekday = %v, want 0.5", sameDay.TimePattern)
	}

	// Unseen hour and unseen weekday.
	s2 := newTestStore(t)
	for i := 0; i < 10; i++ {
		s2.Record(testutil.Tx("u1", 10, base.Add(time.Duration(i)*time.Minute)))
	}
	nextDay := s2.Record(testutil.Tx("u1", 10, base.Add(15*time.Hour))) // 03:00 Monday
	if nextDay.TimePattern != 1.0 {
		t.Errorf("rare hour and weekday = %v, want 1.0", nextDay.TimePattern)
	}
}

func TestMerchantDiversityCounts(t *testing.T) {
	s := newTestStore(t)
	base := testutil.BaseTime

	s.Record(testutil.TxAt("u1", 10, base, "alpha", "NYC", "card"))
	s.Record(testutil.TxAt("u1", 10, base.Add(time.Minute), "alpha", "NYC", "card"))
	vec := s.Record(testutil.TxAt("u1", 10, base.Add(2*time.Minute), "beta", "NYC", "card"))

	if want := 2.0 / 3.0; vec.MerchantDiversity != want {
		t.Errorf("merchant diversity = %v, want %v", vec.MerchantDiversity, want)
	}
}

func TestConsistencyDominantShare(t *testing.T) {
	s := newTestStore(t)
	base := testutil.BaseTime

	s.Record(testutil.TxAt("u1", 10, base, "alpha", "NYC", "card"))
	s.Record(testutil.TxAt("u1", 10, base.Add(time.Minute), "alpha", "NYC", "card"))
	vec := s.Record(testutil.TxAt("u1", 10, base.Add(2*time.Minute), "alpha", "SF", "cash"))

	if want := 2.0 / 3.0; vec.PaymentConsistency != want {
		t.Errorf("payment consistency = %v, want %v", vec.PaymentConsistency, want)
	}
	if want := 2.0 / 3.0; vec.LocationConsistency != want {
		t.Errorf("location consistency = %v, want %v", vec.LocationConsistency, want)
	}
}

func TestVolatilityPriorBasis(t *testing.T) {
	s := newTestStore(t)
	base := testutil.BaseTime

	v1 := s.Record(testutil.Tx("u1", 10, base))
	v2 := s.Record(testutil.Tx("u1", 20, base.Add(time.Minute)))
	v3 := s.Record(testutil.Tx("u1", 30, base.Add(2*time.Minute)))

	if v1.AmountVolatility != 0 || v2.AmountVolatility != 0 {
		t.Errorf("volatility below 2 prior amounts = %v, %v, want 0, 0", v1.AmountVolatility, v2.AmountVolatility)
	}
	// Prior {10, 20}: stddev sqrt(50), mean 15.
	want := math.Sqrt(50) / 15
	if math.Abs(v3.AmountVolatility-want) > 1e-12 {
		t.Errorf("volatility = %v, want %v", v3.AmountVolatility, want)
	}
}

func TestVelocityCountsOnlyItsHorizon(t *testing.T) {
	s := newTestStore(t)
	base := testutil.BaseTime

	s.Record(testutil.TxAt("u1", 10, base, "alpha", "NYC", "card"))
	s.Record(testutil.TxAt("u1", 10, base.Add(30*time.Minute), "beta", "NYC", "card"))
	vec := s.Record(testutil.TxAt("u1", 10, base.Add(2*time.Hour), "gamma", "NYC", "card"))

	// Both earlier events aged out of the 1h window but remain in the
	// profile window.
	if vec.Velocity != 1 {
		t.Errorf("velocity = %v, want 1", vec.Velocity)
	}
	if vec.MerchantDiversity != 1.0 {
		t.Errorf("merchant diversity = %v, want 1.0 (3 distinct over 3 retained)", vec.MerchantDiversity)
	}
}

func TestVectorsDeterministic(t *testing.T) {
	run := func() []Vector {
		s, err := New(DefaultConfig())
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		base := testutil.BaseTime
		var out []Vector
		for i := 0; i < 20; i++ {
			ev := testutil.TxAt("u1", float64(i%7)*13.37, base.Add(time.Duration(i*11)*time.Minute),
				[]string{"alpha", "beta", "gamma"}[i%3],
				[]string{"NYC", "SF"}[i%2],
				[]string{"card", "cash", "wire"}[i%3])
			ev.TransactionID = "txn_fixed"
			out = append(out, s.Record(ev))
		}
		return out
	}

	first := run()
	second := run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("vector %d differs across identical runs:\n  %+v\n  %+v", i, first[i], second[i])
		}
	}
}
