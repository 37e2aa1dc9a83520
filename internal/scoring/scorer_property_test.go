package scoring

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/riskline/riskline/internal/feature"
)

// TestProperty_ScoreContracts checks the scorer over arbitrary finite
// vectors: output always lands in [0, 1] without NaN, and the score is
// monotone in any positively weighted feature.
func TestProperty_ScoreContracts(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	scorer := NewScorer(DefaultWeights())

	properties.Property("score is bounded for arbitrary vectors", prop.ForAll(
		func(velocity, z, anomaly, pattern, diversity, payment, volatility, location float64) bool {
			got := scorer.Score(feature.Vector{
				Velocity:            velocity,
				AmountZScore:        z,
				LocationAnomaly:     anomaly,
				TimePattern:         pattern,
				MerchantDiversity:   diversity,
				PaymentConsistency:  payment,
				AmountVolatility:    volatility,
				LocationConsistency: location,
			})
			return got >= 0 && got <= 1 && !math.IsNaN(got)
		},
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
	))

	properties.Property("score never drops when the z-score grows", prop.ForAll(
		func(z, bump float64) bool {
			bump = math.Abs(bump)
			lo := scorer.Score(feature.Vector{AmountZScore: z})
			hi := scorer.Score(feature.Vector{AmountZScore: z + bump})
			return hi >= lo
		},
		gen.Float64Range(-1e3, 1e3),
		gen.Float64Range(0, 1e3),
	))

	properties.TestingRun(t)
}
