// Package scoring turns feature vectors into bounded fraud scores.
//
// The score is a weighted linear combination of the eight engine features
// squashed through a logistic curve, so it always lands in [0, 1] with
// 0.5 at the decision boundary. Weights are configuration, not learned
// state: the same vector and weight table always produce the same score.
package scoring

import (
	"fmt"
	"math"
)

// ModelVersion identifies the weight table shipped with this build.
// Bump it whenever DefaultWeights changes so downstream consumers can
// tell score distributions apart.
const ModelVersion = "v0"

// Default sigmoid shape: unit steepness centered at zero.
const (
	DefaultSteepness = 1.0
	DefaultOffset    = 0.0
)

// Risk bands attached to scores for human triage. The labels are
// presentation only; alerting compares raw scores against the configured
// threshold.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// RiskLevel classifies a score into a coarse triage band: low below 0.5,
// high at 0.8 and above, medium between.
func RiskLevel(score float64) string {
	switch {
	case score >= 0.8:
		return RiskHigh
	case score >= 0.5:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Weights assigns a coefficient to every feature. Positive coefficients
// push the score toward fraud, negative ones toward legitimacy.
type Weights struct {
	Velocity            float64 `json:"transaction_velocity_1h"`
	AmountZScore        float64 `json:"amount_zscore"`
	LocationAnomaly     float64 `json:"location_anomaly"`
	TimePattern         float64 `json:"time_pattern_score"`
	MerchantDiversity   float64 `json:"merchant_diversity"`
	PaymentConsistency  float64 `json:"payment_method_consistency"`
	AmountVolatility    float64 `json:"amount_volatility"`
	LocationConsistency float64 `json:"location_consistency"`
}

// DefaultWeights returns the v0 coefficients. Velocity, z-score, location
// novelty and odd-hours activity raise the score; established diversity
// and a consistent payment method lower it slightly. Volatility and
// location consistency are carried at zero until the weight table is
// recalibrated against labeled data.
func DefaultWeights() Weights {
	return Weights{
		Velocity:            0.20,
		AmountZScore:        0.25,
		LocationAnomaly:     0.30,
		TimePattern:         0.15,
		MerchantDiversity:   -0.05,
		PaymentConsistency:  -0.05,
		AmountVolatility:    0.0,
		LocationConsistency: 0.0,
	}
}

// Validate rejects weight tables that would poison every score. Called
// at startup; a scorer is never constructed from an invalid table.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"transaction_velocity_1h":    w.Velocity,
		"amount_zscore":              w.AmountZScore,
		"location_anomaly":           w.LocationAnomaly,
		"time_pattern_score":         w.TimePattern,
		"merchant_diversity":         w.MerchantDiversity,
		"payment_method_consistency": w.PaymentConsistency,
		"amount_volatility":          w.AmountVolatility,
		"location_consistency":       w.LocationConsistency,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("weight %s is not finite", name)
		}
	}
	return nil
}
