// Package clob implements the central limit order book core: the price
// tree walkers, fixed-point fill math, custody-coupled order lifecycle, and
// event emission for a fixed-point/custodied/TIF/SMP/expiry order model.
package clob

import (
	"github.com/rs/zerolog/log"

	"fenrir/internal/asset"
	"fenrir/internal/book"
	"fenrir/internal/custodian"
	"fenrir/internal/events"
	"fenrir/internal/fixedpoint"
)

// Pool is a self-contained base/quote trading pair aggregate. It carries no
// internal lock: callers are expected to serialize access to a given Pool
// exactly as the host ledger would for an on-chain object.
type Pool struct {
	PoolID string

	Bids *book.Tree
	Asks *book.Tree

	nextBidID uint64
	nextAskID uint64

	// ownerIndex is the per-owner open-order index: order_id -> price,
	// enabling O(1) ownership checks on cancel.
	ownerIndex map[asset.OwnerId]map[uint64]uint64

	BaseLedger  *custodian.Ledger
	QuoteLedger *custodian.Ledger

	TakerFeeRate    uint64
	MakerRebateRate uint64
	TickSize        uint64
	LotSize         uint64

	// FeesQuote accumulates pool trading fees, always in the quote asset.
	FeesQuote uint64

	Clock asset.Clock
	Sink  events.Sink
}

// PoolConfig are the creation-time parameters validated by NewPool.
type PoolConfig struct {
	PoolID          string
	BaseType        string
	QuoteType       string
	TakerFeeRate    uint64
	MakerRebateRate uint64
	TickSize        uint64
	LotSize         uint64
	Clock           asset.Clock
	Sink            events.Sink
}

// NewPool validates cfg and constructs an empty pool.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BaseType == cfg.QuoteType {
		return nil, ErrInvalidPair
	}
	if cfg.TakerFeeRate < cfg.MakerRebateRate {
		return nil, ErrInvalidFeeRateRebateRate
	}
	tickLot, err := fixedpoint.MulPrice(cfg.TickSize, cfg.LotSize)
	if err != nil || tickLot == 0 {
		return nil, ErrInvalidTickSizeLotSize
	}

	p := &Pool{
		PoolID:          cfg.PoolID,
		Bids:            book.NewBidTree(),
		Asks:            book.NewAskTree(),
		nextBidID:       MinBidOrderID,
		nextAskID:       MinAskOrderID,
		ownerIndex:      make(map[asset.OwnerId]map[uint64]uint64),
		BaseLedger:      custodian.NewLedger(),
		QuoteLedger:     custodian.NewLedger(),
		TakerFeeRate:    cfg.TakerFeeRate,
		MakerRebateRate: cfg.MakerRebateRate,
		TickSize:        cfg.TickSize,
		LotSize:         cfg.LotSize,
		Clock:           cfg.Clock,
		Sink:            cfg.Sink,
	}
	if p.Clock == nil {
		p.Clock = asset.SystemClock{}
	}

	if p.Sink != nil {
		p.Sink.EmitPoolCreated(events.PoolCreated{
			EnvelopeID:      events.NewEnvelopeID(),
			PoolID:          p.PoolID,
			BaseType:        cfg.BaseType,
			QuoteType:       cfg.QuoteType,
			TakerFeeRate:    p.TakerFeeRate,
			MakerRebateRate: p.MakerRebateRate,
			TickSize:        p.TickSize,
			LotSize:         p.LotSize,
		})
	}
	log.Debug().Str("pool_id", p.PoolID).Msg("pool created")
	return p, nil
}

func (p *Pool) indexFor(owner asset.OwnerId) map[uint64]uint64 {
	idx, ok := p.ownerIndex[owner]
	if !ok {
		idx = make(map[uint64]uint64)
		p.ownerIndex[owner] = idx
	}
	return idx
}

func (p *Pool) validateOrderInputs(price, quantity, expireTimestamp uint64, tif TimeInForce, smp SelfMatchPrevention) error {
	if price == 0 || price%p.TickSize != 0 {
		return ErrInvalidPrice
	}
	if quantity == 0 || quantity%p.LotSize != 0 {
		return ErrInvalidQuantity
	}
	if expireTimestamp <= p.Clock.NowMillis() {
		return ErrInvalidExpireTimestamp
	}
	if !tif.valid() {
		return ErrInvalidRestriction
	}
	if !smp.valid() {
		return ErrInvalidSelfMatchingPrevention
	}
	return nil
}
