package clob

import (
	"github.com/rs/zerolog/log"

	"fenrir/internal/asset"
	"fenrir/internal/book"
	"fenrir/internal/events"
	"fenrir/internal/fixedpoint"
)

// fill carries the fixed-point results of a single maker fill so the three
// matcher variants can share the bookkeeping/event-emission tail instead of
// repeating it. The three variants remain separate methods rather than one
// generic walk behind an interface — the tight inner loop stays a direct
// duplication, and only this small struct and a few helpers (the skip-check,
// fill-event emission, and maker removal) are shared.
type fill struct {
	maker           *Order
	fillBase        uint64
	fillQuote       uint64
	takerCommission uint64
	makerRebate     uint64
}

// skipMaker reports whether the maker resting at the front of lvl must be
// cancelled instead of matched — either because it has expired or because
// it belongs to the taker (self-match prevention). When true, it unlocks
// the maker's reservation, removes it from the book and
// the owner index, and emits a Canceled event exactly as an explicit
// cancel would (this realizes CANCEL_OLDEST: the resting order is always
// older than the incoming taker).
func (p *Pool) skipMaker(lvl *book.PriceLevel, maker *Order, takerOwner asset.OwnerId, now uint64) bool {
	expired := maker.ExpireTimestamp <= now
	selfMatch := maker.Owner == takerOwner
	if !expired && !selfMatch {
		return false
	}
	p.unlockReservation(maker)
	lvl.Remove(maker.OrderId)
	delete(p.indexFor(maker.Owner), maker.OrderId)
	if lvl.Empty() {
		p.sideTreeFor(maker.IsBid).Remove(lvl.Price)
	}
	if p.Sink != nil {
		p.Sink.EmitOrderCanceled(events.OrderCanceled{
			EnvelopeID:           events.NewEnvelopeID(),
			PoolID:               p.PoolID,
			OrderID:              maker.OrderId,
			ClientOrderID:        maker.ClientOrderId,
			IsBid:                maker.IsBid,
			Owner:                maker.Owner,
			OriginalQuantity:     maker.OriginalQuantity,
			BaseQuantityCanceled: maker.Quantity,
			Price:                maker.Price,
		})
	}
	log.Debug().
		Str("pool_id", p.PoolID).
		Uint64("order_id", maker.OrderId).
		Bool("expired", expired).
		Bool("self_match", selfMatch).
		Msg("maker cancelled during match")
	return true
}

func (p *Pool) sideTreeFor(isBid bool) *book.Tree {
	if isBid {
		return p.Bids
	}
	return p.Asks
}

// unlockReservation releases a cancelled/expired maker's locked custody:
// quote for a bid, base for an ask.
func (p *Pool) unlockReservation(o *Order) {
	if o.IsBid {
		quoteLocked, err := fixedpoint.MulPrice(o.Quantity, o.Price)
		if err != nil {
			quoteLocked = o.Quantity * o.Price // already validated not to overflow at lock time
		}
		_ = p.QuoteLedger.Unlock(o.Owner, quoteLocked)
	} else {
		_ = p.BaseLedger.Unlock(o.Owner, o.Quantity)
	}
}

func (p *Pool) emitFilled(f fill, takerOwner asset.OwnerId, takerClientOrderID uint64) {
	if p.Sink == nil {
		return
	}
	p.Sink.EmitOrderFilled(events.OrderFilled{
		EnvelopeID:            events.NewEnvelopeID(),
		PoolID:                p.PoolID,
		OrderID:               f.maker.OrderId,
		TakerClientOrderID:    takerClientOrderID,
		MakerClientOrderID:    f.maker.ClientOrderId,
		IsBid:                 f.maker.IsBid,
		TakerAddress:          takerOwner,
		MakerAddress:          f.maker.Owner,
		OriginalQuantity:      f.maker.OriginalQuantity,
		BaseQuantityFilled:    f.fillBase,
		BaseQuantityRemaining: f.maker.Quantity,
		Price:                 f.maker.Price,
		TakerCommission:       f.takerCommission,
		MakerRebate:           f.makerRebate,
	})
}

// removeOrKeepMaker removes a fully-consumed maker from its level/index, or
// leaves a partially-filled maker resting in place (its Quantity has
// already been decremented through the pointer, so no explicit write-back
// is needed — a container/list element survives being read after a
// sibling is removed, so no cursor-advance-before-remove workaround is
// required here).
func (p *Pool) removeOrKeepMaker(lvl *book.PriceLevel, maker *Order) {
	if maker.Quantity > 0 {
		return
	}
	lvl.Remove(maker.OrderId)
	delete(p.indexFor(maker.Owner), maker.OrderId)
	if lvl.Empty() {
		p.sideTreeFor(maker.IsBid).Remove(lvl.Price)
	}
}

// simulateMatchBidBase reports how much base quantity a matchBidBase call
// with these parameters would fill, without mutating any book or ledger
// state. FILL_OR_KILL orders call this before reserving any custody so a
// failed attempt leaves no trace to undo, rather than running the real
// match and rolling it back.
func (p *Pool) simulateMatchBidBase(owner asset.OwnerId, baseRemaining, quoteBudget, priceLimit, now uint64) uint64 {
	var filled uint64
	lvl, ok := p.Asks.Best()
	for ok && lvl.Price <= priceLimit && filled < baseRemaining {
		for _, o := range lvl.Items() {
			if filled >= baseRemaining {
				break
			}
			maker := o.(*Order)
			if maker.ExpireTimestamp <= now || maker.Owner == owner {
				continue
			}
			fillBase := min(baseRemaining-filled, maker.Quantity)
			fillQuote := fixedpoint.UnsafeMulPrice(fillBase, maker.Price)
			commission, err := fixedpoint.CeilMul(fillQuote, p.TakerFeeRate)
			if err != nil || fillQuote+commission > quoteBudget {
				return filled
			}
			quoteBudget -= fillQuote + commission
			filled += fillBase
		}
		lvl, ok = p.Asks.Next(lvl.Price)
	}
	return filled
}

// simulateMatchAsk reports how much base quantity a matchAsk call with
// these parameters would fill, without mutating any state. See
// simulateMatchBidBase.
func (p *Pool) simulateMatchAsk(owner asset.OwnerId, baseRemaining, priceLimit, now uint64) uint64 {
	var filled uint64
	lvl, ok := p.Bids.Best()
	for ok && lvl.Price >= priceLimit && filled < baseRemaining {
		for _, o := range lvl.Items() {
			if filled >= baseRemaining {
				break
			}
			maker := o.(*Order)
			if maker.ExpireTimestamp <= now || maker.Owner == owner {
				continue
			}
			filled += min(baseRemaining-filled, maker.Quantity)
		}
		lvl, ok = p.Bids.Next(lvl.Price)
	}
	return filled
}

// matchBidBase is Variant A: a taker buying at most baseQtyRemaining base
// units at a price no worse than priceLimit, paying out of quoteBudget.
// Walks asks ascending.
func (p *Pool) matchBidBase(owner asset.OwnerId, clientOrderID uint64, baseQtyRemaining, quoteBudget, priceLimit, now uint64) (filledBase, filledQuote, remainingQty, remainingBudget uint64) {
	for baseQtyRemaining > 0 {
		lvl, ok := p.Asks.BestMut()
		if !ok || lvl.Price > priceLimit {
			break
		}

		terminate := false
		for {
			front := lvl.Front()
			if front == nil {
				break
			}
			maker := front.(*Order)
			if p.skipMaker(lvl, maker, owner, now) {
				continue
			}

			fillBase := min(baseQtyRemaining, maker.Quantity)
			fillQuote := fixedpoint.UnsafeMulPrice(fillBase, maker.Price)
			commission, err := fixedpoint.CeilMul(fillQuote, p.TakerFeeRate)
			if err != nil {
				terminate = true
				break
			}
			cost := fillQuote + commission
			if cost > quoteBudget {
				// Reserved funds exhausted: stop gracefully rather than
				// underflow the taker's committed balance.
				terminate = true
				break
			}
			makerRebate := fixedpoint.UnsafeMul(fillQuote, p.MakerRebateRate)

			maker.Quantity -= fillBase
			baseQtyRemaining -= fillBase
			quoteBudget -= cost
			filledBase += fillBase
			filledQuote += fillQuote

			p.BaseLedger.DebitLocked(maker.Owner, fillBase)
			p.BaseLedger.CreditAvailableValue(owner, fillBase)
			p.QuoteLedger.CreditAvailableValue(maker.Owner, fillQuote+makerRebate)
			p.FeesQuote += commission - makerRebate

			p.emitFilled(fill{maker, fillBase, fillQuote, commission, makerRebate}, owner, clientOrderID)
			p.removeOrKeepMaker(lvl, maker)

			if baseQtyRemaining == 0 {
				terminate = true
				break
			}
		}
		if lvl.Empty() {
			p.Asks.Remove(lvl.Price)
		}
		if terminate {
			break
		}
	}
	return filledBase, filledQuote, baseQtyRemaining, quoteBudget
}

// matchBidQuote is Variant B: a taker spending at most quoteBudget quote
// units at a price no worse than priceLimit. Used by SwapExactQuoteForBase,
// which has no base-quantity cap of its own.
func (p *Pool) matchBidQuote(owner asset.OwnerId, clientOrderID uint64, quoteBudget, priceLimit, now uint64) (filledBase, filledQuote, remainingBudget uint64) {
	for quoteBudget > 0 {
		lvl, ok := p.Asks.BestMut()
		if !ok || lvl.Price > priceLimit {
			break
		}

		terminate := false
		for {
			front := lvl.Front()
			if front == nil {
				break
			}
			maker := front.(*Order)
			if p.skipMaker(lvl, maker, owner, now) {
				continue
			}

			makerFullQuote := fixedpoint.UnsafeMulPrice(maker.Quantity, maker.Price)
			makerFullCommission, err := fixedpoint.CeilMul(makerFullQuote, p.TakerFeeRate)
			if err != nil {
				terminate = true
				break
			}
			fullCost := makerFullQuote + makerFullCommission

			var f fill
			if fullCost <= quoteBudget {
				f = fill{
					maker:           maker,
					fillBase:        maker.Quantity,
					fillQuote:       makerFullQuote,
					takerCommission: makerFullCommission,
					makerRebate:     fixedpoint.UnsafeMul(makerFullQuote, p.MakerRebateRate),
				}
				quoteBudget -= fullCost
			} else {
				feeDenom := fixedpoint.FloatScaling + p.TakerFeeRate
				affordableQuote := fixedpoint.UnsafeDiv(quoteBudget, feeDenom)
				fillBase := (fixedpoint.UnsafeDivPrice(affordableQuote, maker.Price) / p.LotSize) * p.LotSize
				if fillBase == 0 {
					// Too little quote left for even one lot: a legal
					// terminal state, not an error.
					terminate = true
					break
				}
				fillQuoteNoCommission := fixedpoint.UnsafeMulPrice(fillBase, maker.Price)
				commission, err := fixedpoint.CeilMul(fillQuoteNoCommission, p.TakerFeeRate)
				if err != nil {
					terminate = true
					break
				}
				f = fill{
					maker:           maker,
					fillBase:        fillBase,
					fillQuote:       fillQuoteNoCommission,
					takerCommission: commission,
					makerRebate:     fixedpoint.UnsafeMul(fillQuoteNoCommission, p.MakerRebateRate),
				}
				quoteBudget -= fillQuoteNoCommission + commission
				terminate = true
			}

			maker.Quantity -= f.fillBase
			filledBase += f.fillBase
			filledQuote += f.fillQuote

			p.BaseLedger.DebitLocked(maker.Owner, f.fillBase)
			p.BaseLedger.CreditAvailableValue(owner, f.fillBase)
			p.QuoteLedger.CreditAvailableValue(maker.Owner, f.fillQuote+f.makerRebate)
			p.FeesQuote += f.takerCommission - f.makerRebate

			p.emitFilled(f, owner, clientOrderID)
			p.removeOrKeepMaker(lvl, maker)

			if terminate {
				break
			}
		}
		if lvl.Empty() {
			p.Asks.Remove(lvl.Price)
		}
		if terminate {
			break
		}
	}
	return filledBase, filledQuote, quoteBudget
}

// matchAsk is Variant C: a taker selling at most baseQtyRemaining base
// units at a price no worse (no lower) than priceLimit. Walks bids
// descending. Pool fees always accrue in quote, never base.
func (p *Pool) matchAsk(owner asset.OwnerId, clientOrderID uint64, baseQtyRemaining, priceLimit, now uint64) (filledBase, filledQuote, remainingQty uint64) {
	for baseQtyRemaining > 0 {
		lvl, ok := p.Bids.BestMut()
		if !ok || lvl.Price < priceLimit {
			break
		}

		terminate := false
		for {
			front := lvl.Front()
			if front == nil {
				break
			}
			maker := front.(*Order)
			if p.skipMaker(lvl, maker, owner, now) {
				continue
			}

			fillBase := min(baseQtyRemaining, maker.Quantity)
			fillQuote := fixedpoint.UnsafeMulPrice(fillBase, maker.Price)
			commission, err := fixedpoint.CeilMul(fillQuote, p.TakerFeeRate)
			if err != nil {
				terminate = true
				break
			}
			makerRebate := fixedpoint.UnsafeMul(fillQuote, p.MakerRebateRate)

			maker.Quantity -= fillBase
			baseQtyRemaining -= fillBase
			filledBase += fillBase
			filledQuote += fillQuote

			// maker is a resting bid: its locked quote backs this fill: release
			// it, pay the maker its base principal plus its (quote-denominated)
			// rebate, and pay the taker (seller) its quote proceeds net of
			// commission.
			p.QuoteLedger.DebitLocked(maker.Owner, fillQuote)
			p.BaseLedger.CreditAvailableValue(maker.Owner, fillBase)
			p.QuoteLedger.CreditAvailableValue(maker.Owner, makerRebate)
			p.QuoteLedger.CreditAvailableValue(owner, fillQuote-commission)
			p.FeesQuote += commission - makerRebate

			p.emitFilled(fill{maker, fillBase, fillQuote, commission, makerRebate}, owner, clientOrderID)
			p.removeOrKeepMaker(lvl, maker)

			if baseQtyRemaining == 0 {
				terminate = true
				break
			}
		}
		if lvl.Empty() {
			p.Bids.Remove(lvl.Price)
		}
		if terminate {
			break
		}
	}
	return filledBase, filledQuote, baseQtyRemaining
}
