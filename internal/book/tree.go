package book

import (
	"github.com/tidwall/btree"
)

// Side selects which end of a numerically price-ordered tree is "best":
// for bids the best price is the highest, for asks it is the lowest.
type Side int

const (
	// Bid trees match best-price-first from the top (highest price down).
	Bid Side = iota
	// Ask trees match best-price-first from the bottom (lowest price up).
	Ask
)

// Tree is a price-sorted mapping of price -> *PriceLevel. Internally the
// btree is always kept in plain ascending numeric price order; Side only
// changes which end of that ascending order counts as "best" for
// Best/Worst/Next/Previous, which keeps FindClosest's numeric-distance
// tie-break simple to reason about regardless of which side a Tree
// represents.
type Tree struct {
	levels *btree.BTreeG[*PriceLevel]
	side   Side
}

func newTree(side Side) *Tree {
	return &Tree{
		levels: btree.NewBTreeG(func(a, b *PriceLevel) bool { return a.Price < b.Price }),
		side:   side,
	}
}

// NewBidTree builds a price tree whose best price is the highest.
func NewBidTree() *Tree { return newTree(Bid) }

// NewAskTree builds a price tree whose best price is the lowest.
func NewAskTree() *Tree { return newTree(Ask) }

// Len reports the number of distinct price levels.
func (t *Tree) Len() int { return t.levels.Len() }

// Get returns the level at the given price, if any.
func (t *Tree) Get(price uint64) (*PriceLevel, bool) {
	return t.levels.Get(&PriceLevel{Price: price})
}

// GetMut returns the level at the given price for in-place mutation.
func (t *Tree) GetMut(price uint64) (*PriceLevel, bool) {
	return t.levels.GetMut(&PriceLevel{Price: price})
}

// Insert adds a new level to the tree. Callers must ensure no level already
// exists at lvl.Price.
func (t *Tree) Insert(lvl *PriceLevel) {
	t.levels.Set(lvl)
}

// Remove deletes the level at the given price. Must only be called once
// the level's queue is empty.
func (t *Tree) Remove(price uint64) {
	t.levels.Delete(&PriceLevel{Price: price})
}

// Best returns the level a taker would match first: the max leaf for bids,
// the min leaf for asks.
func (t *Tree) Best() (*PriceLevel, bool) {
	if t.side == Bid {
		return t.levels.Max()
	}
	return t.levels.Min()
}

// BestMut is Best for in-place mutation during the match walk.
func (t *Tree) BestMut() (*PriceLevel, bool) {
	if t.side == Bid {
		return t.levels.MaxMut()
	}
	return t.levels.MinMut()
}

// Worst returns the level a taker would match last.
func (t *Tree) Worst() (*PriceLevel, bool) {
	if t.side == Bid {
		return t.levels.Min()
	}
	return t.levels.Max()
}

// Next returns the level one tick deeper in match order than price (for
// bids: the next lower price; for asks: the next higher price), or false
// if price was the worst level in the tree.
func (t *Tree) Next(price uint64) (*PriceLevel, bool) {
	var found *PriceLevel
	pivot := &PriceLevel{Price: price}
	if t.side == Bid {
		t.levels.Descend(pivot, func(item *PriceLevel) bool {
			if item.Price == price {
				return true
			}
			found = item
			return false
		})
	} else {
		t.levels.Ascend(pivot, func(item *PriceLevel) bool {
			if item.Price == price {
				return true
			}
			found = item
			return false
		})
	}
	if found == nil {
		return nil, false
	}
	return found, true
}

// Previous returns the level one tick shallower in match order than price
// (the level a taker would have matched just before this one), or false if
// price was the best level in the tree.
func (t *Tree) Previous(price uint64) (*PriceLevel, bool) {
	var found *PriceLevel
	pivot := &PriceLevel{Price: price}
	if t.side == Bid {
		t.levels.Ascend(pivot, func(item *PriceLevel) bool {
			if item.Price == price {
				return true
			}
			found = item
			return false
		})
	} else {
		t.levels.Descend(pivot, func(item *PriceLevel) bool {
			if item.Price == price {
				return true
			}
			found = item
			return false
		})
	}
	if found == nil {
		return nil, false
	}
	return found, true
}

// FindClosest returns the stored price nearest to the probe price. Ties
// (two stored prices equidistant from the probe) resolve to the smaller
// price.
func (t *Tree) FindClosest(probe uint64) (uint64, bool) {
	if t.levels.Len() == 0 {
		return 0, false
	}

	var belowPrice, abovePrice uint64
	haveBelow, haveAbove := false, false

	t.levels.Descend(&PriceLevel{Price: probe}, func(item *PriceLevel) bool {
		belowPrice = item.Price
		haveBelow = true
		return false
	})
	t.levels.Ascend(&PriceLevel{Price: probe}, func(item *PriceLevel) bool {
		abovePrice = item.Price
		haveAbove = true
		return false
	})

	switch {
	case haveBelow && belowPrice == probe:
		return belowPrice, true
	case haveAbove && abovePrice == probe:
		return abovePrice, true
	case haveBelow && !haveAbove:
		return belowPrice, true
	case !haveBelow && haveAbove:
		return abovePrice, true
	case !haveBelow && !haveAbove:
		return 0, false
	}

	belowDist := distance(probe, belowPrice)
	aboveDist := distance(probe, abovePrice)
	switch {
	case belowDist < aboveDist:
		return belowPrice, true
	case aboveDist < belowDist:
		return abovePrice, true
	default:
		if belowPrice < abovePrice {
			return belowPrice, true
		}
		return abovePrice, true
	}
}

func distance(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// Items returns every level in ascending numeric price order, for tests and
// level-2 queries.
func (t *Tree) Items() []*PriceLevel {
	return t.levels.Items()
}
