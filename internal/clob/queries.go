package clob

import (
	"fenrir/internal/asset"
	"fenrir/internal/book"
)

// OrderView is a read-only snapshot of one resting order, for ListOpenOrders
// and GetOrderStatus.
type OrderView struct {
	OrderID          uint64
	ClientOrderID    uint64
	Price            uint64
	OriginalQuantity uint64
	Quantity         uint64
	IsBid            bool
	ExpireTimestamp  uint64
}

// GetMarketPrice reports the best bid and best ask. Either side may be
// absent (ok=false) if that side of the book is empty.
func (p *Pool) GetMarketPrice() (bestBid uint64, bidOk bool, bestAsk uint64, askOk bool) {
	if lvl, ok := p.Bids.Best(); ok {
		bestBid, bidOk = lvl.Price, true
	}
	if lvl, ok := p.Asks.Best(); ok {
		bestAsk, askOk = lvl.Price, true
	}
	return
}

// GetLevel2BookStatusBidSide returns two aligned, ascending-price lists of
// bid prices and their aggregate unexpired quantity within [low, high].
// low/high are clamped to the book's actual price extremes and then
// snapped to the nearest resting ticks via Tree.FindClosest.
func (p *Pool) GetLevel2BookStatusBidSide(low, high, now uint64) (prices, quantities []uint64) {
	return levelStatus(p.Bids, low, high, now)
}

// GetLevel2BookStatusAskSide is the ask-side counterpart of
// GetLevel2BookStatusBidSide.
func (p *Pool) GetLevel2BookStatusAskSide(low, high, now uint64) (prices, quantities []uint64) {
	return levelStatus(p.Asks, low, high, now)
}

// levelStatus walks tree in ascending price order (Tree.Items() is always
// ascending numeric order regardless of side) between low and high,
// clamping the bounds to the book's actual extremes and snapping them to
// real ticks with FindClosest before filtering, and aggregates each level's
// unexpired (expire_timestamp > now) quantity only.
func levelStatus(tree *book.Tree, low, high uint64, now uint64) (prices, quantities []uint64) {
	if low > high {
		low, high = high, low
	}
	items := tree.Items()
	if len(items) == 0 {
		return nil, nil
	}
	if low < items[0].Price {
		low = items[0].Price
	}
	if high > items[len(items)-1].Price {
		high = items[len(items)-1].Price
	}
	lowSnap, ok := tree.FindClosest(low)
	if !ok {
		return nil, nil
	}
	highSnap, ok := tree.FindClosest(high)
	if !ok {
		return nil, nil
	}
	for _, lvl := range items {
		if lvl.Price < lowSnap || lvl.Price > highSnap {
			continue
		}
		prices = append(prices, lvl.Price)
		quantities = append(quantities, unexpiredQuantity(lvl, now))
	}
	return prices, quantities
}

// unexpiredQuantity sums the resting quantity of every order in lvl whose
// expire_timestamp is still in the future as of now.
func unexpiredQuantity(lvl *book.PriceLevel, now uint64) uint64 {
	var total uint64
	for _, o := range lvl.Items() {
		order := o.(*Order)
		if order.ExpireTimestamp > now {
			total += order.Quantity
		}
	}
	return total
}

// ListOpenOrders returns a snapshot of all of owner's resting orders across
// both sides, in no particular order.
func (p *Pool) ListOpenOrders(owner asset.OwnerId) []OrderView {
	idx, ok := p.ownerIndex[owner]
	if !ok {
		return nil
	}
	views := make([]OrderView, 0, len(idx))
	for id, price := range idx {
		isBid := isBidOrderID(id)
		lvl, ok := p.sideTreeFor(isBid).GetMut(price)
		if !ok {
			continue
		}
		for _, o := range lvl.Items() {
			order := o.(*Order)
			if order.OrderId == id {
				views = append(views, OrderView{
					OrderID:          order.OrderId,
					ClientOrderID:    order.ClientOrderId,
					Price:            order.Price,
					OriginalQuantity: order.OriginalQuantity,
					Quantity:         order.Quantity,
					IsBid:            order.IsBid,
					ExpireTimestamp:  order.ExpireTimestamp,
				})
				break
			}
		}
	}
	return views
}

// GetOrderStatus looks up a single resting order by owner and id.
func (p *Pool) GetOrderStatus(owner asset.OwnerId, orderID uint64) (OrderView, error) {
	idx, ok := p.ownerIndex[owner]
	if !ok {
		return OrderView{}, ErrInvalidOrderId
	}
	price, ok := idx[orderID]
	if !ok {
		return OrderView{}, ErrInvalidOrderId
	}
	isBid := isBidOrderID(orderID)
	lvl, ok := p.sideTreeFor(isBid).GetMut(price)
	if !ok {
		return OrderView{}, ErrInvalidOrderId
	}
	for _, o := range lvl.Items() {
		order := o.(*Order)
		if order.OrderId == orderID {
			return OrderView{
				OrderID:          order.OrderId,
				ClientOrderID:    order.ClientOrderId,
				Price:            order.Price,
				OriginalQuantity: order.OriginalQuantity,
				Quantity:         order.Quantity,
				IsBid:            order.IsBid,
				ExpireTimestamp:  order.ExpireTimestamp,
			}, nil
		}
	}
	return OrderView{}, ErrInvalidOrderId
}

// AccountBalance reports owner's available and locked balances in both the
// base and quote assets.
func (p *Pool) AccountBalance(owner asset.OwnerId) (baseAvailable, baseLocked, quoteAvailable, quoteLocked uint64) {
	return p.BaseLedger.Available(owner), p.BaseLedger.Locked(owner),
		p.QuoteLedger.Available(owner), p.QuoteLedger.Locked(owner)
}

// OrderRef identifies one resting order by owner and id, the shape an
// external expiry-sweep driver needs to call CleanUpExpiredOrders.
type OrderRef struct {
	Owner   asset.OwnerId
	OrderID uint64
}

// AllOpenOrders enumerates every resting order across every owner. In a
// real on-chain deployment this list would come from an external index of
// expire_timestamp-sorted orders rather than a full scan; this is the
// standalone equivalent used to drive internal/sweep.
func (p *Pool) AllOpenOrders() []OrderRef {
	var refs []OrderRef
	for owner, idx := range p.ownerIndex {
		for id := range idx {
			refs = append(refs, OrderRef{Owner: owner, OrderID: id})
		}
	}
	return refs
}
