package scoring

import (
	"math"
	"testing"

	"github.com/riskline/riskline/internal/feature"
)

func TestZeroVectorScoresHalf(t *testing.T) {
	s := NewScorer(DefaultWeights())

	if got := s.Score(feature.Vector{}); got != 0.5 {
		t.Errorf("score of zero vector = %v, want exactly 0.5", got)
	}
}

func TestRiskyFeaturesRaiseScore(t *testing.T) {
	s := NewScorer(DefaultWeights())
	baseline := s.Score(feature.Vector{})

	risky := s.Score(feature.Vector{
		Velocity:        5,
		AmountZScore:    3,
		LocationAnomaly: 1,
		TimePattern:     0.9,
	})
	if risky <= baseline {
		t.Errorf("risky vector scored %v, want above baseline %v", risky, baseline)
	}
}

func TestConsistencyLowersScore(t *testing.T) {
	s := NewScorer(DefaultWeights())
	baseline := s.Score(feature.Vector{})

	calm := s.Score(feature.Vector{
		MerchantDiversity:  1,
		PaymentConsistency: 1,
	})
	if calm >= baseline {
		t.Errorf("consistent vector scored %v, want below baseline %v", calm, baseline)
	}
}

func TestScoreKnownValue(t *testing.T) {
	s := NewScorer(DefaultWeights())

	// Weighted sum: 3*.2 + 2*.25 + 1*.3 + .5*.15 - .5*.05 - 1*.05 = 1.4
	vec := feature.Vector{
		Velocity:            3,
		AmountZScore:        2,
		LocationAnomaly:     1,
		TimePattern:         0.5,
		MerchantDiversity:   0.5,
		PaymentConsistency:  1,
		AmountVolatility:    0.4,
		LocationConsistency: 1,
	}
	want := 1.0 / (1.0 + math.Exp(-1.4))
	if got := s.Score(vec); math.Abs(got-want) > 1e-12 {
		t.Errorf("score = %v, want %v", got, want)
	}
}

func TestOffsetCentersScore(t *testing.T) {
	// With the offset moved to the vector's own weighted sum, the score
	// sits exactly on the decision boundary.
	s := NewScorer(DefaultWeights()).WithOffset(1.4)

	vec := feature.Vector{
		Velocity:            3,
		AmountZScore:        2,
		LocationAnomaly:     1,
		TimePattern:         0.5,
		MerchantDiversity:   0.5,
		PaymentConsistency:  1,
		AmountVolatility:    0.4,
		LocationConsistency: 1,
	}
	if got := s.Score(vec); got != 0.5 {
		t.Errorf("score at the offset = %v, want exactly 0.5", got)
	}

	below := NewScorer(DefaultWeights()).WithOffset(0.5)
	if got := below.Score(feature.Vector{}); got >= 0.5 {
		t.Errorf("zero vector with positive offset = %v, want below 0.5", got)
	}
}

func TestSteepnessSharpensScore(t *testing.T) {
	vec := feature.Vector{Velocity: 3, AmountZScore: 2, LocationAnomaly: 1}

	mild := NewScorer(DefaultWeights()).Score(vec)
	sharp := NewScorer(DefaultWeights()).WithSteepness(4).Score(vec)

	if sharp <= mild {
		t.Errorf("steepness 4 scored %v, want above steepness 1 score %v", sharp, mild)
	}
}

func TestScoreExtremesStayBounded(t *testing.T) {
	s := NewScorer(DefaultWeights())

	hi := s.Score(feature.Vector{AmountZScore: 1e9})
	if hi < 0 || hi > 1 || math.IsNaN(hi) {
		t.Errorf("extreme positive vector scored %v, want within [0, 1]", hi)
	}
	if hi < 0.99 {
		t.Errorf("extreme positive vector scored %v, want near 1", hi)
	}

	lo := s.Score(feature.Vector{AmountZScore: -1e9})
	if lo < 0 || lo > 1 || math.IsNaN(lo) {
		t.Errorf("extreme negative vector scored %v, want within [0, 1]", lo)
	}
	if lo > 0.01 {
		t.Errorf("extreme negative vector scored %v, want near 0", lo)
	}
}

func TestWeightsValidate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Fatalf("default weights rejected: %v", err)
	}

	bad := DefaultWeights()
	bad.AmountZScore = math.NaN()
	if err := bad.Validate(); err == nil {
		t.Error("NaN weight accepted")
	}

	bad = DefaultWeights()
	bad.Velocity = math.Inf(1)
	if err := bad.Validate(); err == nil {
		t.Error("infinite weight accepted")
	}
}

func TestRiskLevelBands(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.0, RiskLow},
		{0.499, RiskLow},
		{0.5, RiskMedium},
		{0.799, RiskMedium},
		{0.8, RiskHigh},
		{1.0, RiskHigh},
	}
	for _, tc := range cases {
		if got := RiskLevel(tc.score); got != tc.want {
			t.Errorf("RiskLevel(%v) = %q, want %q", tc.score, got, tc.want)
		}
	}
}
