package dark

import (
	"context"
	"errors"
	"time"

	"github.com/uhyunpark/darkpool/pkg/app/core/market"
	"github.com/uhyunpark/darkpool/pkg/app/core/transaction"
)

// PushTx queues a raw JSON transaction. It reports false for payloads the
// mempool cannot classify.
func (a *App) PushTx(b []byte) bool {
	ok := a.mempool.PushRaw(b)
	a.metrics.MempoolSize.Set(float64(a.mempool.Len()))
	return ok
}

func (a *App) MempoolLen() int { return a.mempool.Len() }

// DrainResult counts what one drain did.
type DrainResult struct {
	Orders   int
	Batches  int
	Settled  int
	Rejected int
}

// DrainMempool applies up to maxBytes of queued transactions in mempool
// order. Failed transactions are logged and dropped.
func (a *App) DrainMempool(maxBytes int64) DrainResult {
	var out DrainResult
	for _, raw := range a.mempool.Drain(maxBytes) {
		if err := a.apply(raw, &out); err != nil {
			out.Rejected++
			a.log.Warnw("tx_dropped", "err", err)
		}
	}
	a.metrics.MempoolSize.Set(float64(a.mempool.Len()))
	return out
}

func (a *App) apply(raw []byte, out *DrainResult) error {
	tx, err := transaction.ParseTransaction(raw)
	if err != nil {
		return err
	}
	switch tx.Type {
	case transaction.TxTypeOrder:
		if _, err := a.SubmitOrder(tx); err != nil {
			return err
		}
		out.Orders++
	case transaction.TxTypeMatch:
		rec, err := a.TriggerMatching(tx.Match.Symbol)
		if err != nil {
			return err
		}
		if rec.ID != "" {
			out.Batches++
		}
	case transaction.TxTypeSettle:
		if _, err := a.SettleMatch(tx.Settle.BatchID, tx.Settle.MatchID); err != nil {
			return err
		}
		out.Settled++
	}
	return nil
}

// RunMatchLoop triggers a pass on every active market each interval until
// ctx is done. Rate-limit refusals are expected and not logged.
func (a *App) RunMatchLoop(ctx context.Context, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.clock.After(interval):
		}
		for _, m := range a.markets.List() {
			if m.Status != market.Active {
				continue
			}
			if _, err := a.TriggerMatching(m.Symbol); err != nil && !errors.Is(err, ErrMatchingTooFrequent) {
				a.log.Warnw("match_loop_error", "symbol", m.Symbol, "err", err)
			}
		}
	}
}

// RunMempoolLoop drains the mempool each interval until ctx is done.
func (a *App) RunMempoolLoop(ctx context.Context, interval time.Duration, maxBytes int64) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.clock.After(interval):
		}
		if a.mempool.Len() == 0 {
			continue
		}
		res := a.DrainMempool(maxBytes)
		a.log.Debugw("mempool_drained", "orders", res.Orders, "batches", res.Batches, "settled", res.Settled, "rejected", res.Rejected)
	}
}
