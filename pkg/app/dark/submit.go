package dark

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/uhyunpark/darkpool/pkg/app/core/orderbook"
	"github.com/uhyunpark/darkpool/pkg/app/core/transaction"
	"github.com/uhyunpark/darkpool/pkg/crypto"
)

// Receipt acknowledges an accepted order without echoing its contents.
type Receipt struct {
	OrderID   uint64 `json:"orderId"`
	Symbol    string `json:"symbol"`
	Timestamp uint64 `json:"timestamp"`
}

// SubmitOrder authenticates, opens and rests one sealed order. On any error
// the persisted book is unchanged.
func (a *App) SubmitOrder(tx *transaction.SignedTransaction) (Receipt, error) {
	symbol := ""
	if tx.Order != nil {
		symbol = tx.Order.Symbol
	}
	r, err := a.submit(tx)
	result := "accepted"
	switch {
	case err == nil:
	case errors.Is(err, ErrBookFull):
		result = "book_full"
	default:
		result = "rejected"
	}
	a.metrics.OrdersSubmitted.WithLabelValues(symbol, result).Inc()
	if err != nil {
		a.log.Infow("order_rejected", "symbol", symbol, "reason", err.Error())
	}
	return r, err
}

func (a *App) submit(tx *transaction.SignedTransaction) (Receipt, error) {
	if tx.Type != transaction.TxTypeOrder {
		return Receipt{}, fmt.Errorf("%w: not an order: %s", transaction.ErrInvalidTransaction, tx.Type)
	}
	if err := tx.Validate(); err != nil {
		return Receipt{}, err
	}
	p := tx.Order

	owner, ok, err := a.verifier.VerifyOrderTransaction(tx)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !ok {
		return Receipt{}, ErrBadSignature
	}
	mkt, err := a.markets.Get(p.Symbol)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %s", ErrUnknownMarket, p.Symbol)
	}
	nonce, err := p.NonceUint64()
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", transaction.ErrInvalidTransaction, err)
	}
	deadline, err := strconv.ParseUint(p.Deadline, 10, 64)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: invalid deadline %s", transaction.ErrInvalidTransaction, p.Deadline)
	}

	now := a.clock.Now()
	if deadline != 0 && uint64(now.Unix()) > deadline {
		return Receipt{}, ErrExpired
	}

	enc, ct, err := p.Sealed()
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", transaction.ErrInvalidTransaction, err)
	}
	pt, err := a.mxe.OpenOrder(enc, ct, crypto.OrderAAD(p.Symbol, owner, nonce))
	if err != nil {
		return Receipt{}, err
	}
	side := orderbook.Side(pt.Side)
	if !side.Valid() {
		return Receipt{}, fmt.Errorf("%w: %d", ErrInvalidSide, pt.Side)
	}
	if err := mkt.ValidateOrder(pt.Price, pt.Amount); err != nil {
		return Receipt{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	last, err := a.store.LoadNonce(owner)
	if err != nil {
		return Receipt{}, err
	}
	if nonce <= last {
		return Receipt{}, fmt.Errorf("%w: %d <= %d", ErrNonceReused, nonce, last)
	}

	st, err := a.store.LoadState(p.Symbol)
	if err != nil {
		return Receipt{}, err
	}
	if st.NextOrderID == math.MaxUint64 {
		return Receipt{}, ErrOrderIDOverflow
	}
	book, err := a.store.LoadBook(p.Symbol, a.cfg.Capacity)
	if err != nil {
		return Receipt{}, err
	}

	o := orderbook.Order{
		ID:        st.NextOrderID,
		Owner:     orderbook.Identity(crypto.IdentityFromAddress(owner)),
		BaseMint:  mkt.BaseMint,
		QuoteMint: mkt.QuoteMint,
		Amount:    pt.Amount,
		Price:     pt.Price,
		Side:      side,
		Timestamp: uint64(now.Unix()),
	}
	accepted, next := orderbook.Submit(o, book)
	if !accepted {
		return Receipt{}, fmt.Errorf("%w: %s", ErrBookFull, p.Symbol)
	}

	st.NextOrderID++
	st.TotalOrdersProcessed++
	if err := a.store.SaveSubmission(p.Symbol, next, st, owner, nonce); err != nil {
		return Receipt{}, fmt.Errorf("persist submission: %w", err)
	}

	a.updateDepth(p.Symbol, next)
	a.record("order_accepted", map[string]any{"symbol": p.Symbol, "orderId": o.ID})
	a.log.Infow("order_accepted", "symbol", p.Symbol, "order_id", o.ID, "owner", owner.Hex())

	return Receipt{OrderID: o.ID, Symbol: p.Symbol, Timestamp: o.Timestamp}, nil
}
