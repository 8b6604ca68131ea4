package clob

import (
	"github.com/rs/zerolog/log"

	"fenrir/internal/asset"
	"fenrir/internal/book"
	"fenrir/internal/events"
	"fenrir/internal/fixedpoint"
)

// PlaceLimitOrder places a limit order. It returns the base and quote
// quantities filled as taker, whether a maker order was posted, and the
// posted order's id (0 if nothing was posted).
func (p *Pool) PlaceLimitOrder(
	owner asset.OwnerId,
	price, quantity uint64,
	isBid bool,
	expireTimestamp uint64,
	restriction TimeInForce,
	smp SelfMatchPrevention,
	clientOrderID uint64,
) (filledBase, filledQuote uint64, posted bool, orderID uint64, err error) {
	if err := p.validateOrderInputs(price, quantity, expireTimestamp, restriction, smp); err != nil {
		return 0, 0, false, 0, err
	}

	now := p.Clock.NowMillis()

	if isBid {
		// FILL_OR_KILL and POST_OR_ABORT must leave no trace on failure: pre-
		// check against a read-only simulation before reserving any custody,
		// instead of running the real match and rolling it back. Per
		// ErrOrderCannotBeFullyFilled/ErrOrderCannotBeFullyPassive, both
		// failures abort the whole operation with zero state change.
		if restriction == FillOrKill {
			available := p.QuoteLedger.Available(owner)
			if p.simulateMatchBidBase(owner, quantity, available, price, now) < quantity {
				return 0, 0, false, 0, ErrOrderCannotBeFullyFilled
			}
		}
		if restriction == PostOrAbort {
			available := p.QuoteLedger.Available(owner)
			if p.simulateMatchBidBase(owner, quantity, available, price, now) > 0 {
				return 0, 0, false, 0, ErrOrderCannotBeFullyPassive
			}
		}

		available := p.QuoteLedger.Available(owner)
		reserved, werr := p.QuoteLedger.Withdraw(owner, available)
		if werr != nil {
			// available == 0: nothing to reserve, proceed with an empty
			// budget so a fully-unmatched order can still post (subject to
			// its own lock at posting time).
			reserved = asset.Zero()
		}
		budget := reserved.Value()

		filledBase, filledQuote, _, remainingBudget := p.matchBidBase(owner, clientOrderID, quantity, budget, price, now)
		if remainingBudget > 0 {
			p.QuoteLedger.CreditAvailableValue(owner, remainingBudget)
		}

		remaining := quantity - filledBase
		switch restriction {
		case ImmediateOrCancel:
			return filledBase, filledQuote, false, 0, nil
		case FillOrKill:
			// The pre-check guarantees this, but stay defensive.
			if filledBase < quantity {
				return 0, 0, false, 0, ErrOrderCannotBeFullyFilled
			}
			return filledBase, filledQuote, false, 0, nil
		case PostOrAbort:
			// The pre-check guarantees filledBase == 0 here, but stay
			// defensive.
			if filledBase > 0 {
				return 0, 0, false, 0, ErrOrderCannotBeFullyPassive
			}
			remaining = quantity
		}
		if remaining == 0 {
			return filledBase, filledQuote, false, 0, nil
		}

		lockAmount, merr := fixedpoint.MulPrice(remaining, price)
		if merr != nil {
			return filledBase, filledQuote, false, 0, merr
		}
		if lerr := p.QuoteLedger.Lock(owner, lockAmount); lerr != nil {
			return filledBase, filledQuote, false, 0, ErrInsufficientQuoteCoin
		}
		id := p.postMaker(owner, price, remaining, quantity, true, expireTimestamp, clientOrderID, smp)
		return filledBase, filledQuote, true, id, nil
	}

	if restriction == FillOrKill {
		if p.simulateMatchAsk(owner, quantity, price, now) < quantity {
			return 0, 0, false, 0, ErrOrderCannotBeFullyFilled
		}
	}
	if restriction == PostOrAbort {
		if p.simulateMatchAsk(owner, quantity, price, now) > 0 {
			return 0, 0, false, 0, ErrOrderCannotBeFullyPassive
		}
	}

	// Ask: reserve quantity base units up front.
	if _, werr := p.BaseLedger.Withdraw(owner, quantity); werr != nil {
		return 0, 0, false, 0, ErrInsufficientBaseCoin
	}

	filledBase, filledQuote, remainingQty := p.matchAsk(owner, clientOrderID, quantity, price, now)

	switch restriction {
	case ImmediateOrCancel:
		if remainingQty > 0 {
			p.BaseLedger.CreditAvailableValue(owner, remainingQty)
		}
		return filledBase, filledQuote, false, 0, nil
	case FillOrKill:
		// The pre-check guarantees this, but stay defensive.
		if filledBase < quantity {
			p.BaseLedger.CreditAvailableValue(owner, remainingQty)
			return 0, 0, false, 0, ErrOrderCannotBeFullyFilled
		}
		return filledBase, filledQuote, false, 0, nil
	case PostOrAbort:
		// The pre-check guarantees filledBase == 0 here, but stay defensive.
		if filledBase > 0 {
			p.BaseLedger.CreditAvailableValue(owner, remainingQty)
			return 0, 0, false, 0, ErrOrderCannotBeFullyPassive
		}
	}

	if remainingQty == 0 {
		return filledBase, filledQuote, false, 0, nil
	}
	// Return the unfilled part of the up-front reservation to available so
	// it can be locked as the resting order's reservation.
	p.BaseLedger.CreditAvailableValue(owner, remainingQty)
	if lerr := p.BaseLedger.Lock(owner, remainingQty); lerr != nil {
		return filledBase, filledQuote, false, 0, lerr
	}
	id := p.postMaker(owner, price, remainingQty, quantity, false, expireTimestamp, clientOrderID, smp)
	return filledBase, filledQuote, true, id, nil
}

// postMaker assigns an order id, locks the resting side's custody, inserts
// the order into the book and the owner index, and emits a Placed event.
func (p *Pool) postMaker(owner asset.OwnerId, price, quantity, originalQuantity uint64, isBid bool, expireTimestamp, clientOrderID uint64, smp SelfMatchPrevention) uint64 {
	var id uint64
	if isBid {
		id = p.nextBidID
		p.nextBidID++
	} else {
		id = p.nextAskID
		p.nextAskID++
	}

	order := &Order{
		OrderId:                id,
		ClientOrderId:          clientOrderID,
		Price:                  price,
		OriginalQuantity:       originalQuantity,
		Quantity:               quantity,
		IsBid:                  isBid,
		Owner:                  owner,
		ExpireTimestamp:        expireTimestamp,
		SelfMatchingPrevention: smp,
	}

	tree := p.sideTreeFor(isBid)
	lvl, ok := tree.GetMut(price)
	if !ok {
		lvl = book.NewPriceLevel(price)
		tree.Insert(lvl)
	}
	lvl.PushBack(order)
	p.indexFor(owner)[id] = price

	if p.Sink != nil {
		p.Sink.EmitOrderPlaced(events.OrderPlaced{
			EnvelopeID:         events.NewEnvelopeID(),
			PoolID:             p.PoolID,
			OrderID:            id,
			ClientOrderID:      clientOrderID,
			IsBid:              isBid,
			Owner:              owner,
			OriginalQuantity:   originalQuantity,
			BaseQuantityPlaced: quantity,
			Price:              price,
			ExpireTimestamp:    expireTimestamp,
		})
	}
	log.Debug().Str("pool_id", p.PoolID).Uint64("order_id", id).Msg("order placed")
	return id
}

// PlaceMarketOrder places a market order. For a market bid, the budget is
// the caller's entire available quote balance; the matcher crosses at any
// price up to MaxPrice. For a market ask, quantity base units are matched down to
// MinPrice; any unfilled base is returned via leftoverBase.
func (p *Pool) PlaceMarketOrder(owner asset.OwnerId, isBid bool, quantity uint64, clientOrderID uint64) (filledBase, filledQuote, leftoverBase uint64, err error) {
	if quantity == 0 || quantity%p.LotSize != 0 {
		return 0, 0, 0, ErrInvalidQuantity
	}
	now := p.Clock.NowMillis()

	if isBid {
		// A market bid calls Variant A (a base-quantity cap) with the
		// caller's entire available quote as the budget, not Variant B —
		// Variant B is reserved for SwapExactQuoteForBase.
		available := p.QuoteLedger.Available(owner)
		reserved, werr := p.QuoteLedger.Withdraw(owner, available)
		if werr != nil {
			reserved = asset.Zero()
		}
		filledBase, filledQuote, _, remainingBudget := p.matchBidBase(owner, clientOrderID, quantity, reserved.Value(), MaxPrice, now)
		if remainingBudget > 0 {
			p.QuoteLedger.CreditAvailableValue(owner, remainingBudget)
		}
		return filledBase, filledQuote, 0, nil
	}

	reserved, werr := p.BaseLedger.Withdraw(owner, quantity)
	if werr != nil {
		return 0, 0, 0, ErrInsufficientBaseCoin
	}
	filledBase, filledQuote, remainingQty := p.matchAsk(owner, clientOrderID, reserved.Value(), MinPrice, now)
	if remainingQty > 0 {
		p.BaseLedger.CreditAvailableValue(owner, remainingQty)
	}
	return filledBase, filledQuote, remainingQty, nil
}

// SwapExactBaseForQuote is a thin shim over the market-ask path.
func (p *Pool) SwapExactBaseForQuote(owner asset.OwnerId, baseIn uint64, clientOrderID uint64) (leftoverBase, acquiredQuote, acquiredBase uint64, err error) {
	filledBase, filledQuote, leftover, err := p.PlaceMarketOrder(owner, false, baseIn, clientOrderID)
	if err != nil {
		return 0, 0, 0, err
	}
	return leftover, filledQuote, filledBase, nil
}

// SwapExactQuoteForBase invokes Variant B directly with MaxPrice.
func (p *Pool) SwapExactQuoteForBase(owner asset.OwnerId, quoteIn uint64, clientOrderID uint64) (baseOut, quoteLeftover, baseAmount uint64, err error) {
	if quoteIn == 0 {
		return 0, 0, 0, ErrInvalidQuantity
	}
	withdrawn, werr := p.QuoteLedger.Withdraw(owner, quoteIn)
	if werr != nil {
		return 0, 0, 0, ErrInsufficientQuoteCoin
	}
	now := p.Clock.NowMillis()
	filledBase, _, remainingBudget := p.matchBidQuote(owner, clientOrderID, withdrawn.Value(), MaxPrice, now)
	if remainingBudget > 0 {
		p.QuoteLedger.CreditAvailableValue(owner, remainingBudget)
	}
	return filledBase, remainingBudget, filledBase, nil
}

// CancelOrder cancels a single resting order, verifying ownership.
func (p *Pool) CancelOrder(owner asset.OwnerId, orderID uint64) error {
	idx, ok := p.ownerIndex[owner]
	if !ok {
		return ErrInvalidUser
	}
	price, ok := idx[orderID]
	if !ok {
		return ErrInvalidOrderId
	}

	isBid := isBidOrderID(orderID)
	tree := p.sideTreeFor(isBid)
	lvl, ok := tree.GetMut(price)
	if !ok {
		return ErrInvalidTickPrice
	}

	var target *Order
	for _, o := range lvl.Items() {
		if o.OrderID() == orderID {
			target = o.(*Order)
			break
		}
	}
	if target == nil {
		return ErrInvalidOrderId
	}
	if target.Owner != owner {
		return ErrUnauthorizedCancel
	}

	p.cancelResting(lvl, target)
	return nil
}

// cancelResting removes target from lvl/the owner index, unlocks its
// reservation, destroys lvl if now empty, and emits a Canceled event.
func (p *Pool) cancelResting(lvl *book.PriceLevel, target *Order) {
	lvl.Remove(target.OrderId)
	delete(p.indexFor(target.Owner), target.OrderId)
	if lvl.Empty() {
		p.sideTreeFor(target.IsBid).Remove(lvl.Price)
	}
	p.unlockReservation(target)

	if p.Sink != nil {
		p.Sink.EmitOrderCanceled(events.OrderCanceled{
			EnvelopeID:           events.NewEnvelopeID(),
			PoolID:               p.PoolID,
			OrderID:              target.OrderId,
			ClientOrderID:        target.ClientOrderId,
			IsBid:                target.IsBid,
			Owner:                target.Owner,
			OriginalQuantity:     target.OriginalQuantity,
			BaseQuantityCanceled: target.Quantity,
			Price:                target.Price,
		})
	}
}

// BatchCancelOrder cancels a batch of orders atomically, in the
// caller-supplied order, with a tick-index cache keyed on (side, price)
// that amortizes tree lookups when ids are pre-sorted by price.
func (p *Pool) BatchCancelOrder(owner asset.OwnerId, orderIDs []uint64) error {
	idx, ok := p.ownerIndex[owner]
	if !ok {
		if len(orderIDs) == 0 {
			return nil
		}
		return ErrInvalidUser
	}

	type cacheKey struct {
		isBid bool
		price uint64
	}
	var cached cacheKey
	var cachedLevel *book.PriceLevel
	haveCache := false

	targets := make([]*Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		price, ok := idx[id]
		if !ok {
			return ErrInvalidOrderId
		}
		isBid := isBidOrderID(id)
		var lvl *book.PriceLevel
		if haveCache && cached.isBid == isBid && cached.price == price {
			lvl = cachedLevel
		} else {
			var lok bool
			lvl, lok = p.sideTreeFor(isBid).GetMut(price)
			if !lok {
				return ErrInvalidTickPrice
			}
			cached = cacheKey{isBid, price}
			cachedLevel = lvl
			haveCache = true
		}
		var target *Order
		for _, o := range lvl.Items() {
			if o.OrderID() == id {
				target = o.(*Order)
				break
			}
		}
		if target == nil {
			return ErrInvalidOrderId
		}
		if target.Owner != owner {
			return ErrUnauthorizedCancel
		}
		targets = append(targets, target)
	}

	for _, target := range targets {
		isBid := isBidOrderID(target.OrderId)
		lvl, _ := p.sideTreeFor(isBid).GetMut(target.Price)
		p.cancelResting(lvl, target)
	}
	return nil
}

// CancelAllOrders cancels every resting order owned by owner.
func (p *Pool) CancelAllOrders(owner asset.OwnerId) error {
	idx, ok := p.ownerIndex[owner]
	if !ok {
		return nil
	}
	ids := make([]uint64, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	for _, id := range ids {
		if err := p.CancelOrder(owner, id); err != nil {
			return err
		}
	}
	return nil
}

// CleanUpExpiredOrders is a permissionless sweep: anyone may call it to
// cancel orders past their expiry. Non-existent orders are silently
// skipped; ownership is not checked.
func (p *Pool) CleanUpExpiredOrders(now uint64, orderIDs []uint64, owners []asset.OwnerId) error {
	if len(orderIDs) != len(owners) {
		return ErrMismatchedBatchLengths
	}
	for i, id := range orderIDs {
		owner := owners[i]
		idx, ok := p.ownerIndex[owner]
		if !ok {
			continue
		}
		price, ok := idx[id]
		if !ok {
			continue
		}
		isBid := isBidOrderID(id)
		lvl, ok := p.sideTreeFor(isBid).GetMut(price)
		if !ok {
			continue
		}
		var target *Order
		for _, o := range lvl.Items() {
			if o.OrderID() == id {
				target = o.(*Order)
				break
			}
		}
		if target == nil || target.ExpireTimestamp >= now {
			continue
		}
		p.cancelResting(lvl, target)
	}
	return nil
}
