// Package matching runs bounded price-time matching passes over an order book.
//
// A pass is a pure function of the input book: it works on a clone, uses no
// clocks, maps or randomness, and never runs more than MaxMatchesPerBatch
// iterations, so two passes over identical books produce identical results.
package matching

import (
	"fmt"

	"github.com/uhyunpark/darkpool/pkg/app/core/orderbook"
)

// MaxMatchesPerBatch caps the number of fills one pass may emit.
const MaxMatchesPerBatch = 10

// MatchResult is a bounded batch of fills. Only Fills[:Count] are valid.
type MatchResult struct {
	Fills [MaxMatchesPerBatch]orderbook.MatchedOrder
	Count int

	// Dropped holds residual orders that could not be re-inserted.
	// A pop-pop-push sequence cannot overflow a side, so this stays empty
	// unless the book was corrupt on entry.
	Dropped []orderbook.Order
}

// Matches returns the valid fills in emission order.
func (r *MatchResult) Matches() []orderbook.MatchedOrder {
	return r.Fills[:r.Count]
}

// Engine holds the per-pass cap. The zero value uses MaxMatchesPerBatch.
type Engine struct {
	MaxMatches int
}

func NewEngine(maxMatches int) (*Engine, error) {
	if maxMatches < 1 || maxMatches > MaxMatchesPerBatch {
		return nil, fmt.Errorf("matching: max matches %d out of range 1..%d", maxMatches, MaxMatchesPerBatch)
	}
	return &Engine{MaxMatches: maxMatches}, nil
}

func (e *Engine) limit() int {
	if e == nil || e.MaxMatches < 1 || e.MaxMatches > MaxMatchesPerBatch {
		return MaxMatchesPerBatch
	}
	return e.MaxMatches
}

// MatchBatch runs one pass with the default cap.
func MatchBatch(book *orderbook.OrderBook) (MatchResult, *orderbook.OrderBook) {
	return (*Engine)(nil).MatchBatch(book)
}

// MatchBatch pops the best buy and sell while they cross, fills the smaller
// side at the midpoint price and re-inserts any residual with its original
// price and timestamp. The input book is left untouched.
//
// Execution price is floor((buy+sell)/2). Neither limit price is preserved;
// this midpoint rule is the pricing policy of the venue, not a maker or
// taker convention.
func (e *Engine) MatchBatch(book *orderbook.OrderBook) (MatchResult, *orderbook.OrderBook) {
	var res MatchResult
	next := book.Clone()
	var nextMatchID uint64

	for i := 0; i < e.limit(); i++ {
		bid, okB := next.Peek(orderbook.Buy)
		ask, okS := next.Peek(orderbook.Sell)
		if !okB || !okS || bid.Price < ask.Price {
			break
		}
		buyer, _ := next.Pop(orderbook.Buy)
		seller, _ := next.Pop(orderbook.Sell)

		qty := min(buyer.Amount, seller.Amount)
		res.Fills[res.Count] = orderbook.MatchedOrder{
			MatchID:        nextMatchID,
			Buyer:          buyer.Owner,
			Seller:         seller.Owner,
			BaseMint:       buyer.BaseMint,
			QuoteMint:      buyer.QuoteMint,
			Quantity:       qty,
			ExecutionPrice: Midpoint(buyer.Price, seller.Price),
		}

		buyer.Amount -= qty
		seller.Amount -= qty
		if buyer.Amount > 0 && !next.Insert(orderbook.Buy, buyer) {
			res.Dropped = append(res.Dropped, buyer)
		}
		if seller.Amount > 0 && !next.Insert(orderbook.Sell, seller) {
			res.Dropped = append(res.Dropped, seller)
		}

		res.Count++
		nextMatchID++
	}
	return res, next
}

// Midpoint returns floor((a+b)/2) without overflowing uint64.
func Midpoint(a, b uint64) uint64 {
	return a/2 + b/2 + (a%2+b%2)/2
}
