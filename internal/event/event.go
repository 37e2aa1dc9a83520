// Package event defines the immutable transaction record the feature
// engine consumes. Construction and field validation happen at the
// transport edge; by the time an Event reaches the engine it is well-typed.
package event

import "time"

// Event records a single transaction observation for one user.
// Values are never mutated after construction.
type Event struct {
	UserID        string
	TransactionID string
	Amount        float64
	Timestamp     time.Time
	Merchant      string
	Location      string
	PaymentMethod string
}
