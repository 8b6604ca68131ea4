// Package asset holds the value types the clob core treats as opaque
// collaborators: the owner identifier, the splittable coin balance, and the
// injectable wall clock.
package asset

import (
	"errors"
	"time"
)

// OwnerId is the opaque account identifier order ownership is compared by.
// It is a newtype rather than a bare string so OwnerId equality is the only
// operation callers can rely on.
type OwnerId string

// ErrInsufficientBalance is returned by Split when the requested amount
// exceeds the balance's value.
var ErrInsufficientBalance = errors.New("asset: insufficient balance")

// Balance is an opaque, splittable/additive value type standing in for the
// host ledger's Coin<T>. Zero value is a valid empty balance.
type Balance struct {
	value uint64
}

// Zero returns an empty balance.
func Zero() Balance { return Balance{} }

// NewBalance constructs a balance of the given value, for callers (tests,
// deposit entry points) that mint balances from raw amounts.
func NewBalance(value uint64) Balance { return Balance{value: value} }

// Value reports the balance's scalar amount.
func (b Balance) Value() uint64 { return b.value }

// Split removes n units from b and returns them as a new balance. Fails if
// n exceeds b's value.
func (b *Balance) Split(n uint64) (Balance, error) {
	if n > b.value {
		return Balance{}, ErrInsufficientBalance
	}
	b.value -= n
	return Balance{value: n}, nil
}

// Join merges other into b, consuming it.
func (b *Balance) Join(other Balance) {
	b.value += other.value
}

// Clock is the injectable source of "now" the matching engine and sweep
// operations read from — the seam that makes expiry-driven tests
// deterministic instead of calling time.Now() directly.
type Clock interface {
	NowMillis() uint64
}

// SystemClock is the production Clock backed by the wall clock.
type SystemClock struct{}

func (SystemClock) NowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// FixedClock is a test Clock that always reports the same instant.
type FixedClock uint64

func (c FixedClock) NowMillis() uint64 { return uint64(c) }
