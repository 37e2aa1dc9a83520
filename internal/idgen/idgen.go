// Package idgen mints the opaque identifiers the engine hands out:
// transaction IDs for events that arrive without one, alert IDs, and
// request IDs for tracing. IDs are random rather than sequential so
// nothing about traffic volume leaks through them.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// randomHex returns n random bytes hex-encoded. If crypto/rand fails the
// process cannot safely mint identifiers at all, so stop hard.
func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("idgen: crypto/rand: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// WithPrefix returns prefix plus 24 hex characters, e.g. "txn_4be1...".
// The prefix keeps the ID kind readable in logs and payloads.
func WithPrefix(prefix string) string {
	return prefix + randomHex(12)
}

// Hex returns a bare random hex string covering numBytes bytes, for IDs
// that want no kind prefix, such as request IDs.
func Hex(numBytes int) string {
	return randomHex(numBytes)
}
