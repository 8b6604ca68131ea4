package clob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/asset"
	"fenrir/internal/custodian"
	"fenrir/internal/events"
)

const (
	alice asset.OwnerId = "alice"
	bob   asset.OwnerId = "bob"
	carol asset.OwnerId = "carol"
	dave  asset.OwnerId = "dave"
)

// testClock is a mutable asset.Clock, for exercising the expiry sweep
// mid-match and mid-walk without sleeping a real goroutine.
type testClock struct{ now uint64 }

func (c *testClock) NowMillis() uint64 { return c.now }

func newTestPool(t *testing.T) (*Pool, *testClock, *events.Recorder) {
	t.Helper()
	clock := &testClock{now: 1_000}
	rec := events.NewRecorder()
	p, err := NewPool(PoolConfig{
		PoolID:          "BASE/QUOTE",
		BaseType:        "BASE",
		QuoteType:       "QUOTE",
		TakerFeeRate:    5_000_000, // 0.5%
		MakerRebateRate: 2_500_000, // 0.25%
		TickSize:        1,
		LotSize:         1,
		Clock:           clock,
		Sink:            rec,
	})
	require.NoError(t, err)
	return p, clock, rec
}

func deposit(t *testing.T, l *custodian.Ledger, owner asset.OwnerId, n uint64) {
	t.Helper()
	require.NoError(t, l.Deposit(owner, asset.NewBalance(n)))
}

// TestMatchSimpleCross walks through a resting ask partially filled by a
// market bid: a single maker, a single fill, commission rounded up and rebate
// rounded down.
func TestMatchSimpleCross(t *testing.T) {
	p, _, rec := newTestPool(t)
	deposit(t, p.BaseLedger, alice, 100)
	deposit(t, p.QuoteLedger, bob, 1_000)

	_, _, posted, askID, err := p.PlaceLimitOrder(alice, 10, 100, false, 2_000, NoRestriction, CancelOldest, 1)
	require.NoError(t, err)
	assert.True(t, posted)

	filledBase, filledQuote, leftover, err := p.PlaceMarketOrder(bob, true, 40, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), filledBase)
	assert.Equal(t, uint64(400), filledQuote)
	assert.Equal(t, uint64(0), leftover)

	// cost = 400 + ceil(400*0.5%) = 402, rebate = floor(400*0.25%) = 1
	assert.Equal(t, uint64(1_000-402), p.QuoteLedger.Available(bob))
	assert.Equal(t, uint64(40), p.BaseLedger.Available(bob))

	assert.Equal(t, uint64(400+1), p.QuoteLedger.Available(alice))
	assert.Equal(t, uint64(0), p.BaseLedger.Available(alice))
	assert.Equal(t, uint64(60), p.BaseLedger.Locked(alice))

	assert.Equal(t, uint64(1), p.FeesQuote)

	view, err := p.GetOrderStatus(alice, askID)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), view.Quantity)

	require.Len(t, rec.OrdersFilled, 1)
	assert.Equal(t, uint64(40), rec.OrdersFilled[0].BaseQuantityFilled)
	assert.Equal(t, uint64(60), rec.OrdersFilled[0].BaseQuantityRemaining)
}

// TestMatchTwoLevels walks a market bid across two ask price levels, the
// second only partially consumed.
func TestMatchTwoLevels(t *testing.T) {
	p, _, _ := newTestPool(t)
	deposit(t, p.BaseLedger, alice, 30)
	deposit(t, p.BaseLedger, dave, 30)
	deposit(t, p.QuoteLedger, bob, 1_000)

	_, _, _, _, err := p.PlaceLimitOrder(alice, 10, 30, false, 2_000, NoRestriction, CancelOldest, 1)
	require.NoError(t, err)
	_, _, _, daveID, err := p.PlaceLimitOrder(dave, 11, 30, false, 2_000, NoRestriction, CancelOldest, 2)
	require.NoError(t, err)

	filledBase, filledQuote, _, err := p.PlaceMarketOrder(bob, true, 50, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), filledBase)
	assert.Equal(t, uint64(30*10+20*11), filledQuote)

	// alice's level is fully drained and removed.
	_, ok := p.Asks.Get(10)
	assert.False(t, ok)

	view, err := p.GetOrderStatus(dave, daveID)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), view.Quantity)

	assert.Equal(t, uint64(0), p.BaseLedger.Available(alice))
	assert.Equal(t, uint64(0), p.BaseLedger.Locked(alice))
	assert.Equal(t, uint64(10), p.BaseLedger.Locked(dave))
}

// TestFillOrKillMissLeavesNoTrace asserts the central FOK invariant: a
// failing attempt must not move any custody at all.
func TestFillOrKillMissLeavesNoTrace(t *testing.T) {
	p, _, rec := newTestPool(t)
	deposit(t, p.BaseLedger, alice, 40)
	deposit(t, p.QuoteLedger, bob, 10_000)

	_, _, _, _, err := p.PlaceLimitOrder(alice, 10, 40, false, 2_000, NoRestriction, CancelOldest, 1)
	require.NoError(t, err)

	before := p.QuoteLedger.Available(bob)

	_, _, posted, _, err := p.PlaceLimitOrder(bob, 10, 100, true, 2_000, FillOrKill, CancelOldest, 2)
	assert.ErrorIs(t, err, ErrOrderCannotBeFullyFilled)
	assert.False(t, posted)

	// no custody moved, the resting ask is untouched, and no fill event
	// was emitted.
	assert.Equal(t, before, p.QuoteLedger.Available(bob))
	assert.Equal(t, uint64(40), p.BaseLedger.Locked(alice))
	assert.Empty(t, rec.OrdersFilled)
}

// TestFillOrKillSuccess is the companion case: enough resting liquidity
// exists, so the order fully fills and nothing is posted.
func TestFillOrKillSuccess(t *testing.T) {
	p, _, _ := newTestPool(t)
	deposit(t, p.BaseLedger, alice, 40)
	deposit(t, p.QuoteLedger, bob, 10_000)

	_, _, _, _, err := p.PlaceLimitOrder(alice, 10, 40, false, 2_000, NoRestriction, CancelOldest, 1)
	require.NoError(t, err)

	filledBase, filledQuote, posted, orderID, err := p.PlaceLimitOrder(bob, 10, 40, true, 2_000, FillOrKill, CancelOldest, 2)
	require.NoError(t, err)
	assert.False(t, posted)
	assert.Equal(t, uint64(0), orderID)
	assert.Equal(t, uint64(40), filledBase)
	assert.Equal(t, uint64(400), filledQuote)
}

// TestPostOrAbortSuccess posts cleanly when the order does not cross.
func TestPostOrAbortSuccess(t *testing.T) {
	p, _, _ := newTestPool(t)
	deposit(t, p.QuoteLedger, bob, 1_000)

	_, _, posted, orderID, err := p.PlaceLimitOrder(bob, 10, 40, true, 2_000, PostOrAbort, CancelOldest, 1)
	require.NoError(t, err)
	assert.True(t, posted)
	assert.NotZero(t, orderID)
	assert.Equal(t, uint64(1_000-400), p.QuoteLedger.Available(bob))
	assert.Equal(t, uint64(400), p.QuoteLedger.Locked(bob))
}

// TestPostOrAbortCrossedFails: a crossed POST_OR_ABORT is pre-checked
// against a read-only simulation before any custody is reserved or matched,
// so it aborts with zero state change — no fill, no fees, no posted order,
// alice's resting ask untouched.
func TestPostOrAbortCrossedFails(t *testing.T) {
	p, _, _ := newTestPool(t)
	deposit(t, p.BaseLedger, alice, 40)
	deposit(t, p.QuoteLedger, bob, 1_000)

	_, _, _, askID, err := p.PlaceLimitOrder(alice, 10, 40, false, 2_000, NoRestriction, CancelOldest, 1)
	require.NoError(t, err)

	_, _, posted, orderID, err := p.PlaceLimitOrder(bob, 10, 40, true, 2_000, PostOrAbort, CancelOldest, 2)
	assert.ErrorIs(t, err, ErrOrderCannotBeFullyPassive)
	assert.False(t, posted)
	assert.Equal(t, uint64(0), orderID)

	// zero state change: bob's quote is untouched, no base was credited.
	assert.Equal(t, uint64(1_000), p.QuoteLedger.Available(bob))
	assert.Equal(t, uint64(0), p.QuoteLedger.Locked(bob))
	assert.Equal(t, uint64(0), p.BaseLedger.Available(bob))

	// alice's resting ask is still there, unfilled.
	view, err := p.GetOrderStatus(alice, askID)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), view.Quantity)
}

// TestSelfMatchCancelsOldest verifies that a taker crossing its own resting
// order cancels the resting (older) order instead of filling against it.
func TestSelfMatchCancelsOldest(t *testing.T) {
	p, _, rec := newTestPool(t)
	deposit(t, p.BaseLedger, alice, 50)

	_, _, _, askID, err := p.PlaceLimitOrder(alice, 10, 50, false, 2_000, NoRestriction, CancelOldest, 1)
	require.NoError(t, err)

	deposit(t, p.QuoteLedger, alice, 1_000)
	filledBase, filledQuote, leftover, err := p.PlaceMarketOrder(alice, true, 50, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), filledBase)
	assert.Equal(t, uint64(0), filledQuote)
	assert.Equal(t, uint64(0), leftover)

	// round trip: alice's base and quote are both back to exactly what she
	// deposited, and the ask she posted is gone.
	assert.Equal(t, uint64(50), p.BaseLedger.Available(alice))
	assert.Equal(t, uint64(0), p.BaseLedger.Locked(alice))
	assert.Equal(t, uint64(1_000), p.QuoteLedger.Available(alice))

	_, err = p.GetOrderStatus(alice, askID)
	assert.ErrorIs(t, err, ErrInvalidOrderId)

	require.Len(t, rec.OrdersCanceled, 1)
	assert.Equal(t, askID, rec.OrdersCanceled[0].OrderID)
	assert.Empty(t, rec.OrdersFilled)
}

// TestExpirySweepDuringWalk verifies that a matcher walking the book skips
// and cancels an expired maker it encounters mid-walk, then keeps matching
// against the next level.
func TestExpirySweepDuringWalk(t *testing.T) {
	p, clock, rec := newTestPool(t)
	deposit(t, p.BaseLedger, alice, 30)
	deposit(t, p.BaseLedger, dave, 30)
	deposit(t, p.QuoteLedger, bob, 1_000)

	_, _, _, aliceID, err := p.PlaceLimitOrder(alice, 10, 30, false, 1_100, NoRestriction, CancelOldest, 1)
	require.NoError(t, err)
	_, _, _, _, err = p.PlaceLimitOrder(dave, 11, 30, false, 10_000, NoRestriction, CancelOldest, 2)
	require.NoError(t, err)

	clock.now = 1_200 // alice's order has now expired; dave's has not.

	filledBase, filledQuote, _, err := p.PlaceMarketOrder(bob, true, 30, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), filledBase)
	assert.Equal(t, uint64(30*11), filledQuote)

	_, err = p.GetOrderStatus(alice, aliceID)
	assert.ErrorIs(t, err, ErrInvalidOrderId)
	assert.Equal(t, uint64(30), p.BaseLedger.Available(alice))
	assert.Equal(t, uint64(0), p.BaseLedger.Locked(alice))

	require.Len(t, rec.OrdersCanceled, 1)
	assert.Equal(t, aliceID, rec.OrdersCanceled[0].OrderID)
	require.Len(t, rec.OrdersFilled, 1)
}

// TestCleanUpExpiredOrdersSkipsLiveAndMissing exercises the permissionless
// sweep directly: unexpired orders and orders that no longer exist are
// silently left alone.
func TestCleanUpExpiredOrdersSkipsLiveAndMissing(t *testing.T) {
	p, clock, _ := newTestPool(t)
	deposit(t, p.BaseLedger, alice, 20)

	_, _, _, orderID, err := p.PlaceLimitOrder(alice, 10, 20, false, 1_100, NoRestriction, CancelOldest, 1)
	require.NoError(t, err)

	require.NoError(t, p.CleanUpExpiredOrders(clock.now, []uint64{orderID, 999}, []asset.OwnerId{alice, carol}))
	_, err = p.GetOrderStatus(alice, orderID)
	assert.NoError(t, err) // not yet expired

	clock.now = 1_200
	require.NoError(t, p.CleanUpExpiredOrders(clock.now, []uint64{orderID, 999}, []asset.OwnerId{alice, carol}))
	_, err = p.GetOrderStatus(alice, orderID)
	assert.ErrorIs(t, err, ErrInvalidOrderId)
	assert.Equal(t, uint64(20), p.BaseLedger.Available(alice))
}

// TestPlaceThenCancelRoundTrip verifies that posting and then cancelling an
// unfilled order restores custody exactly.
func TestPlaceThenCancelRoundTrip(t *testing.T) {
	p, _, _ := newTestPool(t)
	deposit(t, p.QuoteLedger, bob, 500)

	_, _, posted, orderID, err := p.PlaceLimitOrder(bob, 10, 50, true, 2_000, NoRestriction, CancelOldest, 1)
	require.NoError(t, err)
	require.True(t, posted)
	assert.Equal(t, uint64(0), p.QuoteLedger.Available(bob))
	assert.Equal(t, uint64(500), p.QuoteLedger.Locked(bob))

	require.NoError(t, p.CancelOrder(bob, orderID))
	assert.Equal(t, uint64(500), p.QuoteLedger.Available(bob))
	assert.Equal(t, uint64(0), p.QuoteLedger.Locked(bob))

	_, err = p.GetOrderStatus(bob, orderID)
	assert.ErrorIs(t, err, ErrInvalidOrderId)
}

// TestCancelOrderRejectsWrongOwner asserts ownership is enforced.
func TestCancelOrderRejectsWrongOwner(t *testing.T) {
	p, _, _ := newTestPool(t)
	deposit(t, p.QuoteLedger, bob, 500)
	_, _, _, orderID, err := p.PlaceLimitOrder(bob, 10, 50, true, 2_000, NoRestriction, CancelOldest, 1)
	require.NoError(t, err)

	err = p.CancelOrder(carol, orderID)
	assert.ErrorIs(t, err, ErrInvalidUser)
}

// TestBatchCancelOrderIsAtomic verifies that a batch containing one bad id
// cancels nothing, not even the ids that precede it.
func TestBatchCancelOrderIsAtomic(t *testing.T) {
	p, _, _ := newTestPool(t)
	deposit(t, p.QuoteLedger, bob, 1_050)

	_, _, _, id1, err := p.PlaceLimitOrder(bob, 10, 50, true, 2_000, NoRestriction, CancelOldest, 1)
	require.NoError(t, err)
	_, _, _, id2, err := p.PlaceLimitOrder(bob, 11, 50, true, 2_000, NoRestriction, CancelOldest, 2)
	require.NoError(t, err)

	err = p.BatchCancelOrder(bob, []uint64{id1, 999, id2})
	assert.ErrorIs(t, err, ErrInvalidOrderId)

	_, err = p.GetOrderStatus(bob, id1)
	assert.NoError(t, err)
	_, err = p.GetOrderStatus(bob, id2)
	assert.NoError(t, err)

	require.NoError(t, p.BatchCancelOrder(bob, []uint64{id1, id2}))
	assert.Empty(t, p.ListOpenOrders(bob))
}

// TestOrderIDSideBitInvariant checks the bid/ask id-range invariant.
func TestOrderIDSideBitInvariant(t *testing.T) {
	p, _, _ := newTestPool(t)
	deposit(t, p.QuoteLedger, bob, 1_000)
	deposit(t, p.BaseLedger, alice, 1_000)

	_, _, _, bidID, err := p.PlaceLimitOrder(bob, 10, 50, true, 2_000, NoRestriction, CancelOldest, 1)
	require.NoError(t, err)
	_, _, _, askID, err := p.PlaceLimitOrder(alice, 20, 50, false, 2_000, NoRestriction, CancelOldest, 2)
	require.NoError(t, err)

	assert.True(t, bidID >= MinBidOrderID && bidID < MinAskOrderID)
	assert.True(t, askID >= MinAskOrderID)
	assert.True(t, isBidOrderID(bidID))
	assert.False(t, isBidOrderID(askID))
}

// TestSwapExactQuoteForBaseUsesVariantB confirms the quote-capped swap
// consumes a partial maker quantity proportional to the affordable quote
// when the resting level is larger than the swap can pay for.
func TestSwapExactQuoteForBaseUsesVariantB(t *testing.T) {
	p, _, _ := newTestPool(t)
	deposit(t, p.BaseLedger, alice, 1_000)
	deposit(t, p.QuoteLedger, bob, 201)

	_, _, _, _, err := p.PlaceLimitOrder(alice, 10, 1_000, false, 2_000, NoRestriction, CancelOldest, 1)
	require.NoError(t, err)

	baseOut, quoteLeftover, baseAmount, err := p.SwapExactQuoteForBase(bob, 201, 2)
	require.NoError(t, err)
	// 201 quote / (1 + 0.5%) fee-inclusive affordable quote = floor(201e9/1.005e9) = 200
	// 200 / price 10 = 20 base units fillable.
	assert.Equal(t, uint64(20), baseOut)
	assert.Equal(t, baseOut, baseAmount)
	assert.Equal(t, uint64(0), quoteLeftover)
	assert.Equal(t, uint64(0), p.QuoteLedger.Available(bob))
}

// TestSwapExactBaseForQuote confirms the shim matches a plain market ask.
func TestSwapExactBaseForQuote(t *testing.T) {
	p, _, _ := newTestPool(t)
	deposit(t, p.QuoteLedger, alice, 1_000)
	deposit(t, p.BaseLedger, bob, 40)

	_, _, _, _, err := p.PlaceLimitOrder(alice, 10, 40, true, 2_000, NoRestriction, CancelOldest, 1)
	require.NoError(t, err)

	leftoverBase, acquiredQuote, acquiredBase, err := p.SwapExactBaseForQuote(bob, 40, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), leftoverBase)
	assert.Equal(t, uint64(40), acquiredBase)
	// acquiredQuote is the gross quote traded (400); the taker's actual
	// credited balance nets out the commission (400 - ceil(400*0.5%) = 398).
	assert.Equal(t, uint64(400), acquiredQuote)
	assert.Equal(t, uint64(398), p.QuoteLedger.Available(bob))
}

// TestGetMarketPrice reports the best bid/ask, or ok=false on an empty side.
func TestGetMarketPrice(t *testing.T) {
	p, _, _ := newTestPool(t)
	_, bidOk, _, askOk := p.GetMarketPrice()
	assert.False(t, bidOk)
	assert.False(t, askOk)

	deposit(t, p.QuoteLedger, bob, 1_000)
	deposit(t, p.BaseLedger, alice, 50)
	_, _, _, _, err := p.PlaceLimitOrder(bob, 9, 50, true, 2_000, NoRestriction, CancelOldest, 1)
	require.NoError(t, err)
	_, _, _, _, err = p.PlaceLimitOrder(alice, 11, 50, false, 2_000, NoRestriction, CancelOldest, 2)
	require.NoError(t, err)

	bestBid, bidOk, bestAsk, askOk := p.GetMarketPrice()
	require.True(t, bidOk)
	require.True(t, askOk)
	assert.Equal(t, uint64(9), bestBid)
	assert.Equal(t, uint64(11), bestAsk)
}

// TestLevel2BookStatusClampsAndFiltersExpiry exercises the low/high
// clamping, find_closest tick-snapping, and unexpired-quantity aggregation
// of the level-2 query.
func TestLevel2BookStatusClampsAndFiltersExpiry(t *testing.T) {
	p, clock, _ := newTestPool(t)
	deposit(t, p.BaseLedger, alice, 90)
	deposit(t, p.BaseLedger, dave, 30)

	_, _, _, _, err := p.PlaceLimitOrder(alice, 10, 30, false, 1_100, NoRestriction, CancelOldest, 1)
	require.NoError(t, err)
	_, _, _, _, err = p.PlaceLimitOrder(alice, 12, 30, false, 10_000, NoRestriction, CancelOldest, 2)
	require.NoError(t, err)
	_, _, _, _, err = p.PlaceLimitOrder(dave, 15, 30, false, 10_000, NoRestriction, CancelOldest, 3)
	require.NoError(t, err)

	// probe range [0, 100] clamps to the book's actual [10, 15] extremes.
	prices, quantities := p.GetLevel2BookStatusAskSide(0, 100, clock.now)
	require.Equal(t, []uint64{10, 12, 15}, prices)
	assert.Equal(t, []uint64{30, 30, 30}, quantities)

	// a probe of [11, 11] snaps to the single closest tick, 10 (distance 1
	// vs. 12's distance 1 ties go to the smaller key).
	prices, quantities = p.GetLevel2BookStatusAskSide(11, 11, clock.now)
	require.Equal(t, []uint64{10}, prices)
	assert.Equal(t, []uint64{30}, quantities)

	clock.now = 1_200 // alice's 10-tick order has now expired.
	prices, quantities = p.GetLevel2BookStatusAskSide(0, 100, clock.now)
	require.Equal(t, []uint64{10, 12, 15}, prices)
	assert.Equal(t, []uint64{0, 30, 30}, quantities)
}

// TestBalanceConservation asserts that across deposits, a posted ask and a
// market bid matched against it, total quote custody (available+locked,
// across every owner, plus accrued pool fees) equals what was deposited, and
// likewise for base: fills only move value between accounts and the fee
// sink, never create or destroy it.
func TestBalanceConservation(t *testing.T) {
	p, _, _ := newTestPool(t)
	deposit(t, p.BaseLedger, alice, 100)
	deposit(t, p.QuoteLedger, bob, 1_000)

	_, _, _, _, err := p.PlaceLimitOrder(alice, 10, 100, false, 2_000, NoRestriction, CancelOldest, 1)
	require.NoError(t, err)
	_, _, _, err = p.PlaceMarketOrder(bob, true, 40, 2)
	require.NoError(t, err)

	totalQuote := p.QuoteLedger.Available(alice) + p.QuoteLedger.Locked(alice) +
		p.QuoteLedger.Available(bob) + p.QuoteLedger.Locked(bob) + p.FeesQuote
	assert.Equal(t, uint64(1_000), totalQuote)

	totalBase := p.BaseLedger.Available(alice) + p.BaseLedger.Locked(alice) +
		p.BaseLedger.Available(bob) + p.BaseLedger.Locked(bob)
	assert.Equal(t, uint64(100), totalBase)
}
