package clob

import "fenrir/internal/asset"

// Order is a resting or in-flight order. The Owner field uses the
// asset.OwnerId newtype rather than a bare string, so ownership comparisons
// can't accidentally compare against an unrelated identifier type.
type Order struct {
	OrderId                uint64
	ClientOrderId          uint64
	Price                  uint64
	OriginalQuantity       uint64
	Quantity               uint64
	IsBid                  bool
	Owner                  asset.OwnerId
	ExpireTimestamp        uint64
	SelfMatchingPrevention SelfMatchPrevention
}

// OrderID implements book.Order so *Order can be stored directly in a
// book.PriceLevel's FIFO queue.
func (o *Order) OrderID() uint64 { return o.OrderId }

// isBidOrderID reports the side encoded in an order id's high bit.
func isBidOrderID(id uint64) bool {
	return id < MinAskOrderID
}
