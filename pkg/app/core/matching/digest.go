package matching

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/darkpool/pkg/app/core/orderbook"
)

// Stats summarises a pass for logs and metrics. It carries no prices.
type Stats struct {
	Matches  int
	Volume   uint64 // sum of filled quantity
	Dropped  int
	BuysLeft int
	SellLeft int
}

func Summarize(res *MatchResult, book *orderbook.OrderBook) Stats {
	s := Stats{Matches: res.Count, Dropped: len(res.Dropped)}
	for _, m := range res.Matches() {
		s.Volume += m.Quantity
	}
	if book != nil {
		s.BuysLeft = book.Len(orderbook.Buy)
		s.SellLeft = book.Len(orderbook.Sell)
	}
	return s
}

// Digest is the Keccak-256 commitment over a batch: the batch id followed by
// every fill in order with fixed-width big-endian integers. Settlement
// verifies attestations against this value.
func Digest(batchID string, res *MatchResult) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(batchID))

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(res.Count))
	h.Write(buf[:])

	for _, m := range res.Matches() {
		binary.BigEndian.PutUint64(buf[:], m.MatchID)
		h.Write(buf[:])
		h.Write(m.Buyer[:])
		h.Write(m.Seller[:])
		h.Write(m.BaseMint[:])
		h.Write(m.QuoteMint[:])
		binary.BigEndian.PutUint64(buf[:], m.Quantity)
		h.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], m.ExecutionPrice)
		h.Write(buf[:])
	}

	var out [32]byte
	h.Sum(out[:0])
	return out
}
