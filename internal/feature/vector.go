package feature

// Vector is the feature set derived from one user's recent history at the
// moment of a single event. It is a value object: computed, returned,
// serialized, never stored beyond the owning user's latest-vector cache.
//
// JSON names are pinned to the wire format downstream consumers already
// parse; transaction_velocity_1h keeps its historical name even though the
// velocity horizon is configurable (it defaults to one hour).
type Vector struct {
	// Velocity is the retained event count in the velocity-horizon window,
	// including the event that produced this vector.
	Velocity float64 `json:"transaction_velocity_1h"`

	// AmountZScore measures how far the event amount sits from the user's
	// all-time mean, in standard deviations, over history strictly before
	// the event. 0 until two historical amounts exist.
	AmountZScore float64 `json:"amount_zscore"`

	// LocationAnomaly is 1 when the event's location was absent from the
	// profile window before this event, 0 otherwise (and 0 with no history).
	LocationAnomaly float64 `json:"location_anomaly"`

	// TimePattern scores how unusual the event's hour and weekday are
	// against the user's prior profile-window distribution, in [0, 1].
	TimePattern float64 `json:"time_pattern_score"`

	// MerchantDiversity is distinct merchants over total events in the
	// profile window, including this event.
	MerchantDiversity float64 `json:"merchant_diversity"`

	// PaymentConsistency is the share of the user's most common payment
	// method in the profile window, including this event.
	PaymentConsistency float64 `json:"payment_method_consistency"`

	// AmountVolatility is the coefficient of variation of prior all-time
	// amounts; 0 when the mean is 0.
	AmountVolatility float64 `json:"amount_volatility"`

	// LocationConsistency is the share of the user's most common location
	// in the profile window, including this event.
	LocationConsistency float64 `json:"location_consistency"`
}
