package orderbook

import (
	"errors"
	"fmt"
)

const (
	// DefaultCapacity matches the smallest deployed book (5 orders per side).
	DefaultCapacity = 5
	// MaxCapacity is the largest per-side bound the book accepts.
	MaxCapacity = 100
)

var ErrCapacity = errors.New("orderbook: capacity out of range")

// OrderBook holds the resting orders of one instrument pair as two
// fixed-capacity heaps. It is not safe for concurrent use; callers own
// a snapshot and hand the new snapshot back to persistence.
type OrderBook struct {
	buys  sideHeap
	sells sideHeap
}

// New returns an empty book holding up to capacity orders per side.
func New(capacity int) (*OrderBook, error) {
	if capacity <= 0 || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: %d (want 1..%d)", ErrCapacity, capacity, MaxCapacity)
	}
	return &OrderBook{
		buys:  newSideHeap(Buy, capacity),
		sells: newSideHeap(Sell, capacity),
	}, nil
}

// NewDefault returns an empty book with DefaultCapacity.
func NewDefault() *OrderBook {
	ob, _ := New(DefaultCapacity)
	return ob
}

func (ob *OrderBook) heap(side Side) *sideHeap {
	if side == Buy {
		return &ob.buys
	}
	return &ob.sells
}

// Cap returns the per-side capacity.
func (ob *OrderBook) Cap() int { return len(ob.buys.slots) }

// Len returns the number of resting orders on side.
func (ob *OrderBook) Len(side Side) int { return ob.heap(side).count }

// Has reports whether side has at least one resting order.
func (ob *OrderBook) Has(side Side) bool { return ob.heap(side).count > 0 }

// Insert adds o to side. It returns false, leaving the book unchanged, when
// the side is full, when o.Amount is zero, or when o.Side does not match side.
func (ob *OrderBook) Insert(side Side, o Order) bool {
	if !side.Valid() || o.Side != side || o.Amount == 0 {
		return false
	}
	return ob.heap(side).push(o)
}

// Peek returns the best order on side without removing it.
func (ob *OrderBook) Peek(side Side) (Order, bool) {
	if !side.Valid() {
		return Order{}, false
	}
	return ob.heap(side).peek()
}

// Pop removes and returns the best order on side.
func (ob *OrderBook) Pop(side Side) (Order, bool) {
	if !side.Valid() {
		return Order{}, false
	}
	return ob.heap(side).pop()
}

// Orders returns a copy of side's heap slots in heap (not priority) order.
func (ob *OrderBook) Orders(side Side) []Order {
	h := ob.heap(side)
	out := make([]Order, h.count)
	copy(out, h.slots[:h.count])
	return out
}

// Clone returns a deep copy of the book.
func (ob *OrderBook) Clone() *OrderBook {
	return &OrderBook{buys: ob.buys.clone(), sells: ob.sells.clone()}
}

// Valid checks the heap invariant and that no resting order is empty or
// filed on the wrong side. Used on state loaded from outside the process.
func (ob *OrderBook) Valid() error {
	for _, side := range []Side{Buy, Sell} {
		h := ob.heap(side)
		if h.count > len(h.slots) {
			return fmt.Errorf("orderbook: %s count %d exceeds capacity %d", side, h.count, len(h.slots))
		}
		for i := 0; i < h.count; i++ {
			o := &h.slots[i]
			if o.Amount == 0 {
				return fmt.Errorf("orderbook: %s order %d has zero amount", side, o.ID)
			}
			if o.Side != side {
				return fmt.Errorf("orderbook: order %d filed on %s side", o.ID, side)
			}
		}
		if i := h.check(); i >= 0 {
			return fmt.Errorf("orderbook: %s heap violated at index %d", side, i)
		}
	}
	return nil
}

// Restore builds a book of the given capacity from raw heap slots, as
// produced by Orders. The slots are re-heapified, so any order is accepted.
func Restore(capacity int, buys, sells []Order) (*OrderBook, error) {
	ob, err := New(capacity)
	if err != nil {
		return nil, err
	}
	for _, o := range buys {
		if !ob.Insert(Buy, o) {
			return nil, fmt.Errorf("orderbook: cannot restore buy order %d", o.ID)
		}
	}
	for _, o := range sells {
		if !ob.Insert(Sell, o) {
			return nil, fmt.Errorf("orderbook: cannot restore sell order %d", o.ID)
		}
	}
	return ob, nil
}

// Submit inserts o into a copy of book and returns the copy. The input book
// is never modified; on rejection the returned book equals the input.
func Submit(o Order, book *OrderBook) (bool, *OrderBook) {
	next := book.Clone()
	if !next.Insert(o.Side, o) {
		return false, book
	}
	return true, next
}
