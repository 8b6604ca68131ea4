package book

import "container/list"

// Order is the minimal resting-order shape the book needs to know about: an
// id to key the FIFO queue by. *clob.Order implements it and is stored
// behind this interface so the book package stays agnostic of
// expiry/custody/TIF/SMP concerns.
type Order interface {
	OrderID() uint64
}

// PriceLevel is the insertion-ordered FIFO queue of resting orders at a
// single price. Queue order is time priority: orders are always appended at
// the back and consumed from the front.
//
// Internally this is a doubly-linked list plus an index map, giving O(1)
// push-back, front-peek, and removal-by-key.
type PriceLevel struct {
	Price  uint64
	orders *list.List
	byID   map[uint64]*list.Element
}

// NewPriceLevel creates an empty price level at the given price.
func NewPriceLevel(price uint64) *PriceLevel {
	return &PriceLevel{
		Price:  price,
		orders: list.New(),
		byID:   make(map[uint64]*list.Element),
	}
}

// Len reports the number of resting orders at this level.
func (lvl *PriceLevel) Len() int {
	return lvl.orders.Len()
}

// Empty reports whether the level has no resting orders. An empty level
// must be destroyed immediately by its owning Tree.
func (lvl *PriceLevel) Empty() bool {
	return lvl.orders.Len() == 0
}

// PushBack appends an order to the back of the FIFO queue (newest/lowest
// time priority).
func (lvl *PriceLevel) PushBack(order Order) {
	elem := lvl.orders.PushBack(order)
	lvl.byID[order.OrderID()] = elem
}

// Front returns the oldest (highest time priority) resting order, or nil if
// the level is empty.
func (lvl *PriceLevel) Front() Order {
	elem := lvl.orders.Front()
	if elem == nil {
		return nil
	}
	return elem.Value.(Order)
}

// Next returns the order immediately after the given order id in FIFO
// order, or nil if it was the last or afterID is not in the level.
func (lvl *PriceLevel) Next(afterID uint64) Order {
	elem, ok := lvl.byID[afterID]
	if !ok {
		return nil
	}
	next := elem.Next()
	if next == nil {
		return nil
	}
	return next.Value.(Order)
}

// Remove removes the order with the given id from the queue. Reports
// whether it was present.
func (lvl *PriceLevel) Remove(orderID uint64) bool {
	elem, ok := lvl.byID[orderID]
	if !ok {
		return false
	}
	lvl.orders.Remove(elem)
	delete(lvl.byID, orderID)
	return true
}

// Items returns all resting orders from front to back, for queries and
// tests. The returned slice is a fresh copy of the references, not a deep
// copy of the orders themselves.
func (lvl *PriceLevel) Items() []Order {
	items := make([]Order, 0, lvl.orders.Len())
	for elem := lvl.orders.Front(); elem != nil; elem = elem.Next() {
		items = append(items, elem.Value.(Order))
	}
	return items
}
