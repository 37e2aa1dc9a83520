package testutil

import (
	"time"

	"github.com/riskline/riskline/internal/event"
	"github.com/riskline/riskline/internal/idgen"
)

// BaseTime is an arbitrary fixed instant tests build event times from.
// Midday UTC keeps hour-of-day math away from date boundaries.
var BaseTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// Tx builds a well-formed event for user with the given amount and
// timestamp. Merchant, location and payment method carry stable defaults
// so tests spell out only the fields they exercise.
func Tx(user string, amount float64, ts time.Time) event.Event {
	return event.Event{
		UserID:        user,
		TransactionID: idgen.WithPrefix("txn_"),
		Amount:        amount,
		Timestamp:     ts,
		Merchant:      "acme",
		Location:      "NYC",
		PaymentMethod: "credit_card",
	}
}

// TxAt is Tx with merchant, location and payment method spelled out.
func TxAt(user string, amount float64, ts time.Time, merchant, location, method string) event.Event {
	ev := Tx(user, amount, ts)
	ev.Merchant = merchant
	ev.Location = location
	ev.PaymentMethod = method
	return ev
}
