// Package protocol implements the binary wire messages exchanged between a
// clob.Pool-backed server and its clients: fixed-header BigEndian framing
// carrying the CLOB's fixed-point/TIF/SMP/expiry order shape.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidMessageType = errors.New("protocol: invalid message type")
	ErrMessageTooShort    = errors.New("protocol: message too short for its declared fields")
)

// MessageType identifies the kind of request a client sends.
type MessageType uint16

const (
	Heartbeat MessageType = iota
	PlaceLimitOrder
	PlaceMarketOrder
	CancelOrder
	BatchCancelOrder
	CancelAllOrders
)

// ReportType identifies the kind of response the server sends back.
type ReportType uint8

const (
	PlacedReport ReportType = iota
	FilledReport
	CanceledReport
	ErrorReport
)

// Message format constants: 2-byte type header plus the BigEndian-packed
// fixed fields that precede any variable-length trailer.
const (
	BaseMessageHeaderLen = 2
	// pool_id_len(2) + price(8) + quantity(8) + is_bid(1) + expire(8) +
	// tif(1) + smp(1) + client_order_id(8)
	PlaceLimitOrderHeaderLen = 2 + 8 + 8 + 1 + 8 + 1 + 1 + 8
	// pool_id_len(2) + quantity(8) + is_bid(1) + client_order_id(8)
	PlaceMarketOrderHeaderLen = 2 + 8 + 1 + 8
	// pool_id_len(2) + order_id(8)
	CancelOrderHeaderLen = 2 + 8
	// pool_id_len(2) + count(2), followed by count*8 bytes of order ids
	BatchCancelOrderHeaderLen = 2 + 2
	// pool_id_len(2)
	CancelAllOrdersHeaderLen = 2
)

// Message is any parsed client request.
type Message interface {
	Type() MessageType
}

// ParseMessage dissects a raw client request into a typed Message.
func ParseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return nil, ErrMessageTooShort
	}
	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	body := msg[2:]
	switch typeOf {
	case PlaceLimitOrder:
		return parsePlaceLimitOrder(body)
	case PlaceMarketOrder:
		return parsePlaceMarketOrder(body)
	case CancelOrder:
		return parseCancelOrder(body)
	case BatchCancelOrder:
		return parseBatchCancelOrder(body)
	case CancelAllOrders:
		return parseCancelAllOrders(body)
	default:
		return nil, ErrInvalidMessageType
	}
}

// PlaceLimitOrderMessage requests a new limit order on a pool.
type PlaceLimitOrderMessage struct {
	PoolID          string
	Price           uint64
	Quantity        uint64
	IsBid           bool
	ExpireTimestamp uint64
	Restriction     uint8
	SelfMatchPrev   uint8
	ClientOrderID   uint64
}

func (PlaceLimitOrderMessage) Type() MessageType { return PlaceLimitOrder }

func parsePlaceLimitOrder(msg []byte) (PlaceLimitOrderMessage, error) {
	if len(msg) < 2 {
		return PlaceLimitOrderMessage{}, ErrMessageTooShort
	}
	poolIDLen := int(binary.BigEndian.Uint16(msg[0:2]))
	if len(msg) < 2+poolIDLen+PlaceLimitOrderHeaderLen-2 {
		return PlaceLimitOrderMessage{}, ErrMessageTooShort
	}
	offset := 2
	poolID := string(msg[offset : offset+poolIDLen])
	offset += poolIDLen

	m := PlaceLimitOrderMessage{PoolID: poolID}
	m.Price = binary.BigEndian.Uint64(msg[offset : offset+8])
	offset += 8
	m.Quantity = binary.BigEndian.Uint64(msg[offset : offset+8])
	offset += 8
	m.IsBid = msg[offset] != 0
	offset++
	m.ExpireTimestamp = binary.BigEndian.Uint64(msg[offset : offset+8])
	offset += 8
	m.Restriction = msg[offset]
	offset++
	m.SelfMatchPrev = msg[offset]
	offset++
	m.ClientOrderID = binary.BigEndian.Uint64(msg[offset : offset+8])
	return m, nil
}

// PlaceMarketOrderMessage requests a new market order on a pool.
type PlaceMarketOrderMessage struct {
	PoolID        string
	Quantity      uint64
	IsBid         bool
	ClientOrderID uint64
}

func (PlaceMarketOrderMessage) Type() MessageType { return PlaceMarketOrder }

func parsePlaceMarketOrder(msg []byte) (PlaceMarketOrderMessage, error) {
	if len(msg) < 2 {
		return PlaceMarketOrderMessage{}, ErrMessageTooShort
	}
	poolIDLen := int(binary.BigEndian.Uint16(msg[0:2]))
	if len(msg) < 2+poolIDLen+PlaceMarketOrderHeaderLen-2 {
		return PlaceMarketOrderMessage{}, ErrMessageTooShort
	}
	offset := 2
	poolID := string(msg[offset : offset+poolIDLen])
	offset += poolIDLen

	m := PlaceMarketOrderMessage{PoolID: poolID}
	m.Quantity = binary.BigEndian.Uint64(msg[offset : offset+8])
	offset += 8
	m.IsBid = msg[offset] != 0
	offset++
	m.ClientOrderID = binary.BigEndian.Uint64(msg[offset : offset+8])
	return m, nil
}

// CancelOrderMessage requests cancellation of a single resting order.
type CancelOrderMessage struct {
	PoolID  string
	OrderID uint64
}

func (CancelOrderMessage) Type() MessageType { return CancelOrder }

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	if len(msg) < 2 {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	poolIDLen := int(binary.BigEndian.Uint16(msg[0:2]))
	if len(msg) < 2+poolIDLen+8 {
		return CancelOrderMessage{}, ErrMessageTooShort
	}
	offset := 2
	poolID := string(msg[offset : offset+poolIDLen])
	offset += poolIDLen
	orderID := binary.BigEndian.Uint64(msg[offset : offset+8])
	return CancelOrderMessage{PoolID: poolID, OrderID: orderID}, nil
}

// BatchCancelOrderMessage requests atomic cancellation of several resting
// orders.
type BatchCancelOrderMessage struct {
	PoolID   string
	OrderIDs []uint64
}

func (BatchCancelOrderMessage) Type() MessageType { return BatchCancelOrder }

func parseBatchCancelOrder(msg []byte) (BatchCancelOrderMessage, error) {
	if len(msg) < 2 {
		return BatchCancelOrderMessage{}, ErrMessageTooShort
	}
	poolIDLen := int(binary.BigEndian.Uint16(msg[0:2]))
	offset := 2
	if len(msg) < offset+poolIDLen+2 {
		return BatchCancelOrderMessage{}, ErrMessageTooShort
	}
	poolID := string(msg[offset : offset+poolIDLen])
	offset += poolIDLen
	count := int(binary.BigEndian.Uint16(msg[offset : offset+2]))
	offset += 2
	if len(msg) < offset+count*8 {
		return BatchCancelOrderMessage{}, ErrMessageTooShort
	}
	ids := make([]uint64, count)
	for i := 0; i < count; i++ {
		ids[i] = binary.BigEndian.Uint64(msg[offset : offset+8])
		offset += 8
	}
	return BatchCancelOrderMessage{PoolID: poolID, OrderIDs: ids}, nil
}

// CancelAllOrdersMessage requests cancellation of every resting order the
// caller owns in a pool.
type CancelAllOrdersMessage struct {
	PoolID string
}

func (CancelAllOrdersMessage) Type() MessageType { return CancelAllOrders }

func parseCancelAllOrders(msg []byte) (CancelAllOrdersMessage, error) {
	if len(msg) < 2 {
		return CancelAllOrdersMessage{}, ErrMessageTooShort
	}
	poolIDLen := int(binary.BigEndian.Uint16(msg[0:2]))
	if len(msg) < 2+poolIDLen {
		return CancelAllOrdersMessage{}, ErrMessageTooShort
	}
	poolID := string(msg[2 : 2+poolIDLen])
	return CancelAllOrdersMessage{PoolID: poolID}, nil
}

// Report is a server->client response, serialized with the same
// fixed-header-plus-trailer shape as requests.
type Report struct {
	Type          ReportType
	OrderID       uint64
	ClientOrderID uint64
	FilledBase    uint64
	FilledQuote   uint64
	Posted        bool
	CorrelationID string // fresh uuid set by NewErrorReport; empty on other reports
	Err           string
}

const reportFixedHeaderLen = 1 + 8 + 8 + 8 + 8 + 1 + 2 + 2 // +correlation +err lens

// Serialize packs a Report onto the wire.
func (r *Report) Serialize() []byte {
	corrBytes := []byte(r.CorrelationID)
	errBytes := []byte(r.Err)
	buf := make([]byte, reportFixedHeaderLen+len(corrBytes)+len(errBytes))

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.OrderID)
	binary.BigEndian.PutUint64(buf[9:17], r.ClientOrderID)
	binary.BigEndian.PutUint64(buf[17:25], r.FilledBase)
	binary.BigEndian.PutUint64(buf[25:33], r.FilledQuote)
	if r.Posted {
		buf[33] = 1
	}
	binary.BigEndian.PutUint16(buf[34:36], uint16(len(corrBytes)))
	binary.BigEndian.PutUint16(buf[36:38], uint16(len(errBytes)))
	offset := reportFixedHeaderLen
	copy(buf[offset:], corrBytes)
	offset += len(corrBytes)
	copy(buf[offset:], errBytes)
	return buf
}

// NewErrorReport builds a Report carrying a failed operation's error text.
func NewErrorReport(clientOrderID uint64, err error) Report {
	return Report{
		Type:          ErrorReport,
		ClientOrderID: clientOrderID,
		CorrelationID: uuid.New().String(),
		Err:           fmt.Sprintf("%v", err),
	}
}
