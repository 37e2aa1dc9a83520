package feature

import (
	"math"
	"time"

	"github.com/riskline/riskline/internal/event"
)

// historyView is an immutable view of one user's state captured under its
// lock right after an event was applied. The profile slice is the live
// profile-horizon window, oldest first; its tail is always the projection
// of the current event. prior holds the all-time amount statistics as they
// were before the current event was folded in.
type historyView struct {
	velocityCount int
	profile       []sample
	prior         welford
}

// computeVector derives the feature vector for ev from view. Pure and
// deterministic: identical inputs yield bit-identical vectors, which the
// scoring contract depends on.
//
// Novelty features (z-score, location anomaly, time pattern, volatility)
// are measured against history strictly before the event; composition
// features (diversity, consistency ratios, velocity) include it, so a
// user's first event is trivially consistent with itself.
func computeVector(view historyView, ev event.Event) Vector {
	return Vector{
		Velocity:            float64(view.velocityCount),
		AmountZScore:        amountZScore(view.prior, ev.Amount),
		LocationAnomaly:     locationAnomaly(view.profile, ev.Location),
		TimePattern:         timePattern(view.profile, ev.Timestamp),
		MerchantDiversity:   merchantDiversity(view.profile),
		PaymentConsistency:  paymentConsistency(view.profile),
		AmountVolatility:    amountVolatility(view.prior),
		LocationConsistency: locationConsistency(view.profile),
	}
}

// amountZScore is the deviation of amount from the user's all-time mean in
// standard deviations. Zero-variance history (repeated identical amounts)
// substitutes a floor of 10% of the mean so a deviating amount still
// registers while an exact repeat scores 0.
func amountZScore(prior welford, amount float64) float64 {
	if prior.count < 2 {
		return 0
	}
	sd := prior.stddev()
	if sd == 0 {
		sd = 0.1 * math.Abs(prior.mean)
		if sd == 0 {
			sd = 1.0
		}
	}
	return (amount - prior.mean) / sd
}

// amountVolatility is the coefficient of variation of prior amounts.
func amountVolatility(prior welford) float64 {
	if prior.count < 2 || prior.mean <= 0 {
		return 0
	}
	return prior.stddev() / prior.mean
}

// locationAnomaly flags a location never seen in the profile window before
// this event. No prior locations means no evidence, not an anomaly.
func locationAnomaly(profile []sample, location string) float64 {
	if location == "" {
		return 0
	}
	seen := false
	known := 0
	for _, s := range profile[:len(profile)-1] {
		if s.location == "" {
			continue
		}
		known++
		if s.location == location {
			seen = true
		}
	}
	if known == 0 || seen {
		return 0
	}
	return 1
}

// timePattern scores how unusual the event's hour-of-day and weekday are
// relative to the prior profile-window distribution: the complement of the
// averaged bucket frequencies. Rare buckets push toward 1, habitual ones
// toward 0; empty prior history scores 0. Hours are bucketed in UTC so the
// score is independent of server locale.
func timePattern(profile []sample, ts time.Time) float64 {
	prior := profile[:len(profile)-1]
	if len(prior) == 0 {
		return 0
	}

	var hours [24]int
	var days [7]int
	for _, s := range prior {
		utc := s.ts.UTC()
		hours[utc.Hour()]++
		days[utc.Weekday()]++
	}

	utc := ts.UTC()
	total := float64(len(prior))
	hourFreq := float64(hours[utc.Hour()]) / total
	dayFreq := float64(days[utc.Weekday()]) / total

	return 1.0 - (hourFreq+dayFreq)/2.0
}

// merchantDiversity is distinct merchants over total events in the profile
// window. Events without a merchant count toward the denominator only.
func merchantDiversity(profile []sample) float64 {
	if len(profile) == 0 {
		return 0
	}
	distinct := make(map[string]struct{})
	for _, s := range profile {
		if s.merchant != "" {
			distinct[s.merchant] = struct{}{}
		}
	}
	return float64(len(distinct)) / float64(len(profile))
}

// paymentConsistency is the share of the most common payment method among
// events that carry one. Trivially 1 when none do.
func paymentConsistency(profile []sample) float64 {
	return dominantShare(profile, func(s sample) string { return s.method })
}

// locationConsistency is the share of the most common location among
// events that carry one. Trivially 1 when none do.
func locationConsistency(profile []sample) float64 {
	return dominantShare(profile, func(s sample) string { return s.location })
}

// dominantShare computes max-frequency / total over non-empty keys.
func dominantShare(profile []sample, key func(sample) string) float64 {
	counts := make(map[string]int)
	total := 0
	for _, s := range profile {
		k := key(s)
		if k == "" {
			continue
		}
		counts[k]++
		total++
	}
	if total == 0 {
		return 1.0
	}
	top := 0
	for _, n := range counts {
		if n > top {
			top = n
		}
	}
	return float64(top) / float64(total)
}
