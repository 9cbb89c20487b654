// internal/domain/inventory/quantity.go
package inventory

import (
	"errors"
	"math"
)

// Epsilon is the tolerance under which two quantities are considered
// equal. All stock arithmetic uses it instead of exact float comparison.
const Epsilon = 1e-6

// Domain errors raised by the reservation ledger and goods receipt
var (
	// ErrInsufficientReserved signals that a release request exceeds the
	// recorded reservations. It marks upstream accounting drift and must
	// not be absorbed silently.
	ErrInsufficientReserved = errors.New("insufficient_reserved")

	// ErrDuplicateLot signals that the same component+warehouse+internal
	// lot code was registered twice.
	ErrDuplicateLot = errors.New("duplicate_lot")
)

// round4 rounds a quantity to 4 decimals, the precision shortage rows
// are reported with.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// isZero reports whether a quantity is zero within tolerance.
func isZero(v float64) bool {
	return math.Abs(v) < Epsilon
}
