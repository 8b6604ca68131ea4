// Package events defines the domain records emitted by the clob core at
// order placement, cancellation, and fill, and a Sink the core publishes
// them through. Each event is a plain struct with a stable field set,
// correlated by a uuid-minted envelope id.
package events

import (
	"github.com/google/uuid"

	"fenrir/internal/asset"
)

// PoolCreated is emitted once when a pool is created.
type PoolCreated struct {
	EnvelopeID      string
	PoolID          string
	BaseType        string
	QuoteType       string
	TakerFeeRate    uint64
	MakerRebateRate uint64
	TickSize        uint64
	LotSize         uint64
}

// OrderPlaced is emitted when a maker order is posted to the book.
type OrderPlaced struct {
	EnvelopeID         string
	PoolID             string
	OrderID            uint64
	ClientOrderID      uint64
	IsBid              bool
	Owner              asset.OwnerId
	OriginalQuantity   uint64
	BaseQuantityPlaced uint64
	Price              uint64
	ExpireTimestamp    uint64
}

// OrderCanceled is emitted on explicit cancellation, batch cancellation,
// self-match-prevention cancellation, and expiry sweeping.
type OrderCanceled struct {
	EnvelopeID           string
	PoolID               string
	OrderID              uint64
	ClientOrderID        uint64
	IsBid                bool
	Owner                asset.OwnerId
	OriginalQuantity     uint64
	BaseQuantityCanceled uint64
	Price                uint64
}

// OrderFilled is emitted once per maker touched during a match.
type OrderFilled struct {
	EnvelopeID            string
	PoolID                string
	OrderID               uint64
	TakerClientOrderID    uint64
	MakerClientOrderID    uint64
	IsBid                 bool // maker's side
	TakerAddress          asset.OwnerId
	MakerAddress          asset.OwnerId
	OriginalQuantity      uint64
	BaseQuantityFilled    uint64
	BaseQuantityRemaining uint64
	Price                 uint64
	TakerCommission       uint64
	MakerRebate           uint64
}

// DepositAsset records a deposit crediting an owner's custodied available
// balance. Nothing in this module emits it: custodian.Ledger.Deposit has no
// Sink.
type DepositAsset struct {
	EnvelopeID string
	PoolID     string
	Quantity   uint64
	Owner      asset.OwnerId
	IsBase     bool
}

// WithdrawAsset records a withdrawal debiting an owner's custodied available
// balance. Nothing in this module emits it: custodian.Ledger.Withdraw has no
// Sink.
type WithdrawAsset struct {
	EnvelopeID string
	PoolID     string
	Quantity   uint64
	Owner      asset.OwnerId
	IsBase     bool
}

// Sink is the interface the clob core publishes events through. The demo
// server (cmd/server) and the tests both use Recorder.
type Sink interface {
	EmitPoolCreated(PoolCreated)
	EmitOrderPlaced(OrderPlaced)
	EmitOrderCanceled(OrderCanceled)
	EmitOrderFilled(OrderFilled)
	EmitDepositAsset(DepositAsset)
	EmitWithdrawAsset(WithdrawAsset)
}

// NewEnvelopeID mints a fresh event envelope id with uuid.New().
func NewEnvelopeID() string {
	return uuid.New().String()
}

// Recorder is an in-memory Sink that appends every event it receives, for
// tests and for the demo server.
type Recorder struct {
	PoolsCreated   []PoolCreated
	OrdersPlaced   []OrderPlaced
	OrdersCanceled []OrderCanceled
	OrdersFilled   []OrderFilled
	DepositsAsset  []DepositAsset
	WithdrawsAsset []WithdrawAsset
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) EmitPoolCreated(e PoolCreated)     { r.PoolsCreated = append(r.PoolsCreated, e) }
func (r *Recorder) EmitOrderPlaced(e OrderPlaced)     { r.OrdersPlaced = append(r.OrdersPlaced, e) }
func (r *Recorder) EmitOrderCanceled(e OrderCanceled) { r.OrdersCanceled = append(r.OrdersCanceled, e) }
func (r *Recorder) EmitOrderFilled(e OrderFilled)     { r.OrdersFilled = append(r.OrdersFilled, e) }
func (r *Recorder) EmitDepositAsset(e DepositAsset)   { r.DepositsAsset = append(r.DepositsAsset, e) }
func (r *Recorder) EmitWithdrawAsset(e WithdrawAsset) { r.WithdrawsAsset = append(r.WithdrawsAsset, e) }
