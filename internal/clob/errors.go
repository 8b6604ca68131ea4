package clob

import "errors"

// Error kinds. All failures abort the triggering operation with no partial
// state change — callers (or, in this standalone embedding, the Pool
// method itself before any mutation) are responsible for not committing
// any side effect once one of these is returned.
var (
	ErrInvalidQuantity               = errors.New("clob: quantity is zero or not a multiple of lot size")
	ErrInvalidPrice                  = errors.New("clob: price is zero or not a multiple of tick size")
	ErrInvalidExpireTimestamp        = errors.New("clob: expire timestamp is not strictly in the future")
	ErrInvalidRestriction            = errors.New("clob: unrecognized time-in-force restriction")
	ErrInvalidSelfMatchingPrevention = errors.New("clob: unrecognized self-match prevention policy")
	ErrInvalidFeeRateRebateRate      = errors.New("clob: taker fee rate must be >= maker rebate rate")
	ErrInvalidTickSizeLotSize        = errors.New("clob: tick size and lot size product must be nonzero")
	ErrInvalidPair                   = errors.New("clob: base and quote asset types must differ")
	ErrInsufficientBaseCoin          = errors.New("clob: insufficient base balance")
	ErrInsufficientQuoteCoin         = errors.New("clob: insufficient quote balance")
	ErrInvalidUser                   = errors.New("clob: order does not belong to the given owner")
	ErrInvalidOrderId                = errors.New("clob: no open order with that id")
	ErrInvalidTickPrice              = errors.New("clob: no price level at that price")
	ErrUnauthorizedCancel            = errors.New("clob: caller is not the order's owner")
	ErrOrderCannotBeFullyFilled      = errors.New("clob: fill-or-kill order could not be fully filled")
	ErrOrderCannotBeFullyPassive     = errors.New("clob: post-or-abort order crossed the book")
	ErrLevelNotEmpty                 = errors.New("clob: refusing to destroy a non-empty price level")
	ErrMismatchedBatchLengths        = errors.New("clob: id and owner lists must be the same length")
)
