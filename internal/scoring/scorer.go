package scoring

import (
	"math"

	"github.com/riskline/riskline/internal/feature"
)

// Scorer maps feature vectors to fraud scores. Pure in-memory math,
// no randomness, safe for concurrent use.
type Scorer struct {
	weights   Weights
	steepness float64
	offset    float64
}

// NewScorer creates a scorer over the given weight table.
func NewScorer(w Weights) *Scorer {
	return &Scorer{
		weights:   w,
		steepness: DefaultSteepness,
		offset:    DefaultOffset,
	}
}

// WithSteepness overrides the sigmoid steepness.
func (s *Scorer) WithSteepness(k float64) *Scorer {
	s.steepness = k
	return s
}

// WithOffset overrides the sigmoid center.
func (s *Scorer) WithOffset(o float64) *Scorer {
	s.offset = o
	return s
}

// Score evaluates one feature vector. The weighted sum is squashed
// through 1/(1+e^-k(x-o)) and clamped against floating-point spill at
// the extremes, so the result is always in [0, 1].
func (s *Scorer) Score(v feature.Vector) float64 {
	sum := v.Velocity*s.weights.Velocity +
		v.AmountZScore*s.weights.AmountZScore +
		v.LocationAnomaly*s.weights.LocationAnomaly +
		v.TimePattern*s.weights.TimePattern +
		v.MerchantDiversity*s.weights.MerchantDiversity +
		v.PaymentConsistency*s.weights.PaymentConsistency +
		v.AmountVolatility*s.weights.AmountVolatility +
		v.LocationConsistency*s.weights.LocationConsistency

	score := 1.0 / (1.0 + math.Exp(-s.steepness*(sum-s.offset)))

	if score > 1.0 {
		score = 1.0
	}
	if score < 0.0 {
		score = 0.0
	}
	return score
}
