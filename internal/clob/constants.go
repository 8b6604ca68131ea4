package clob

const (
	// MinBidOrderID is the first id handed out to a resting bid.
	MinBidOrderID uint64 = 1
	// MinAskOrderID is the first id handed out to a resting ask. It doubles
	// as MaxPrice and TimestampInf: the order-id high bit uniquely separates
	// bids (< 2^63) from asks (>= 2^63).
	MinAskOrderID uint64 = 1 << 63
	// MaxPrice is the price ceiling used by market buys: "cross at any
	// price".
	MaxPrice uint64 = 1 << 63
	// TimestampInf is used as an expiry that never trips.
	TimestampInf uint64 = 1 << 63
	// MinPrice is the price floor used by market sells: "cross at any
	// price".
	MinPrice uint64 = 0
)

// TimeInForce governs what happens to the unfilled remainder of a limit
// order after its matching pass.
type TimeInForce int

const (
	NoRestriction TimeInForce = iota
	ImmediateOrCancel
	FillOrKill
	PostOrAbort
)

func (tif TimeInForce) valid() bool {
	return tif >= NoRestriction && tif <= PostOrAbort
}

// SelfMatchPrevention selects the policy applied when a taker would match
// against its own resting order. CancelOldest is the only policy currently
// defined.
type SelfMatchPrevention int

const (
	CancelOldest SelfMatchPrevention = iota
)

func (smp SelfMatchPrevention) valid() bool {
	return smp == CancelOldest
}
