package dark

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/xid"

	"github.com/uhyunpark/darkpool/pkg/app/core/market"
	"github.com/uhyunpark/darkpool/pkg/app/core/matching"
	"github.com/uhyunpark/darkpool/pkg/app/core/orderbook"
	"github.com/uhyunpark/darkpool/pkg/crypto"
	"github.com/uhyunpark/darkpool/pkg/storage"
)

// TriggerMatching runs one pass over symbol's book. It refuses with
// ErrMatchingTooFrequent until MatchInterval has elapsed since the last pass.
//
// The new book, bookkeeping and batch record are committed in one write; if
// anything fails before that the result is discarded and the previous book
// stays current. A pass with no fills returns a record with an empty ID.
func (a *App) TriggerMatching(symbol string) (*storage.BatchRecord, error) {
	t0 := time.Now()
	rec, err := a.triggerMatching(symbol)
	result := "committed"
	if err != nil {
		result = "failed"
		if errors.Is(err, ErrMatchingTooFrequent) {
			result = "rate_limited"
		}
	} else if rec.ID == "" {
		result = "empty"
	}
	a.metrics.BatchesTotal.WithLabelValues(symbol, result).Inc()
	if err == nil {
		a.metrics.ObserveSince(t0)
	}
	return rec, err
}

func (a *App) triggerMatching(symbol string) (*storage.BatchRecord, error) {
	mkt, err := a.markets.Get(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarket, symbol)
	}
	if mkt.Status != market.Active {
		return nil, fmt.Errorf("%w: %s is %s", market.ErrNotActive, symbol, mkt.Status)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	st, err := a.store.LoadState(symbol)
	if err != nil {
		return nil, err
	}
	now := a.clock.Now()
	if st.LastMatchUnix != 0 {
		if next := time.Unix(st.LastMatchUnix, 0).Add(a.cfg.MatchInterval); now.Before(next) {
			return nil, fmt.Errorf("%w: next pass at %d", ErrMatchingTooFrequent, next.Unix())
		}
	}

	book, err := a.store.LoadBook(symbol, a.cfg.Capacity)
	if err != nil {
		return nil, err
	}
	res, next := a.engine.MatchBatch(book)
	stats := matching.Summarize(&res, next)

	st.LastMatchUnix = now.Unix()
	rec := &storage.BatchRecord{Symbol: symbol, CreatedAt: now.Unix(), Dropped: stats.Dropped}

	if res.Count == 0 && stats.Dropped == 0 {
		if err := a.store.SaveBook(symbol, next, st); err != nil {
			a.log.Errorw("match_commit_failed", "symbol", symbol, "err", err)
			return nil, fmt.Errorf("persist pass: %w", err)
		}
		return rec, nil
	}

	rec.ID = xid.New().String()
	digest := matching.Digest(rec.ID, &res)
	rec.Digest = hexutil.Encode(digest[:])
	rec.Attestation = hexutil.Encode(a.attestor.Sign(digest[:]))
	rec.Matches = make([]storage.MatchRecord, 0, res.Count)
	for _, m := range res.Matches() {
		rec.Matches = append(rec.Matches, storage.MatchRecord{MatchedOrder: m})
	}

	st.TotalMatches += uint64(res.Count)
	st.TotalBatches++
	if err := a.store.CommitBatch(symbol, next, st, rec); err != nil {
		a.log.Errorw("match_commit_failed", "symbol", symbol, "batch_id", rec.ID, "err", err)
		return nil, fmt.Errorf("commit batch: %w", err)
	}

	if stats.Dropped > 0 {
		a.metrics.DroppedResidual.WithLabelValues(symbol).Add(float64(stats.Dropped))
		a.log.Errorw("residual_dropped", "symbol", symbol, "batch_id", rec.ID, "count", stats.Dropped)
	}
	a.metrics.MatchesTotal.WithLabelValues(symbol).Add(float64(res.Count))
	a.updateDepth(symbol, next)
	a.record("batch_committed", map[string]any{"symbol": symbol, "batchId": rec.ID, "matches": res.Count})
	a.log.Infow("match_batch_done",
		"symbol", symbol,
		"batch_id", rec.ID,
		"matches", stats.Matches,
		"buys_left", stats.BuysLeft,
		"sells_left", stats.SellLeft,
	)

	a.notify(rec)
	return rec, nil
}

// SettleMatch marks one match as settled. It is the only mutation a match
// record ever sees; a second call fails with ErrAlreadySettled.
func (a *App) SettleMatch(batchID string, matchID uint64) (*storage.MatchRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, err := a.store.GetBatch(batchID)
	if err != nil {
		return nil, err
	}
	var m *storage.MatchRecord
	for i := range rec.Matches {
		if rec.Matches[i].MatchID == matchID {
			m = &rec.Matches[i]
			break
		}
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s/%d", ErrMatchNotFound, batchID, matchID)
	}
	if m.Settled {
		return nil, fmt.Errorf("%w: %s/%d at %d", ErrAlreadySettled, batchID, matchID, m.SettledAt)
	}

	m.Settled = true
	m.SettledAt = a.clock.Now().Unix()
	if err := a.store.SaveBatch(rec); err != nil {
		return nil, fmt.Errorf("persist settlement: %w", err)
	}

	a.record("match_settled", map[string]any{"batchId": batchID, "matchId": matchID})
	a.log.Infow("match_settled", "batch_id", batchID, "match_id", matchID)
	out := *m
	return &out, nil
}

func (a *App) GetBatch(batchID string) (*storage.BatchRecord, error) {
	return a.store.GetBatch(batchID)
}

func (a *App) RecentBatches(symbol string, limit int) ([]string, error) {
	return a.store.RecentBatches(symbol, limit)
}

// VerifyBatch recomputes the digest of rec and checks the attestation
// against this node's key. Settlement status does not affect the digest.
func (a *App) VerifyBatch(rec *storage.BatchRecord) error {
	return VerifyBatchWith(a.attestor.PubkeyBytes(), rec)
}

// VerifyBatchWith checks rec against a serialized BLS public key.
func VerifyBatchWith(pubkey []byte, rec *storage.BatchRecord) error {
	if len(rec.Matches) > matching.MaxMatchesPerBatch {
		return fmt.Errorf("%w: %d matches", ErrBadAttestation, len(rec.Matches))
	}
	var res matching.MatchResult
	for i, m := range rec.Matches {
		res.Fills[i] = m.MatchedOrder
	}
	res.Count = len(rec.Matches)

	digest := matching.Digest(rec.ID, &res)
	if hexutil.Encode(digest[:]) != rec.Digest {
		return fmt.Errorf("%w: digest mismatch", ErrBadAttestation)
	}
	sig, err := hexutil.Decode(rec.Attestation)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadAttestation, err)
	}
	if !crypto.VerifyWithPubkeyBytes(pubkey, sig, digest[:]) {
		return fmt.Errorf("%w: signature", ErrBadAttestation)
	}
	return nil
}

// BookStats is what the boundary discloses about a book: counts and times.
type BookStats struct {
	Symbol               string `json:"symbol"`
	Status               string `json:"status"`
	Capacity             int    `json:"capacity"`
	BuyOrders            int    `json:"buyOrders"`
	SellOrders           int    `json:"sellOrders"`
	TotalOrdersProcessed uint64 `json:"totalOrdersProcessed"`
	TotalMatches         uint64 `json:"totalMatches"`
	TotalBatches         uint64 `json:"totalBatches"`
	LastMatchUnix        int64  `json:"lastMatchUnix"`
	NextMatchUnix        int64  `json:"nextMatchUnix"`
}

func (a *App) Stats(symbol string) (BookStats, error) {
	mkt, err := a.markets.Get(symbol)
	if err != nil {
		return BookStats{}, fmt.Errorf("%w: %s", ErrUnknownMarket, symbol)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	st, err := a.store.LoadState(symbol)
	if err != nil {
		return BookStats{}, err
	}
	book, err := a.store.LoadBook(symbol, a.cfg.Capacity)
	if err != nil {
		return BookStats{}, err
	}

	out := BookStats{
		Symbol:               symbol,
		Status:               mkt.Status.String(),
		Capacity:             book.Cap(),
		BuyOrders:            book.Len(orderbook.Buy),
		SellOrders:           book.Len(orderbook.Sell),
		TotalOrdersProcessed: st.TotalOrdersProcessed,
		TotalMatches:         st.TotalMatches,
		TotalBatches:         st.TotalBatches,
		LastMatchUnix:        st.LastMatchUnix,
	}
	if st.LastMatchUnix != 0 {
		out.NextMatchUnix = time.Unix(st.LastMatchUnix, 0).Add(a.cfg.MatchInterval).Unix()
	}
	return out, nil
}
