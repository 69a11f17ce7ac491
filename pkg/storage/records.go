package storage

import (
	"github.com/uhyunpark/darkpool/pkg/app/core/orderbook"
)

// BookState is the plaintext bookkeeping kept next to a sealed book. It
// never contains prices or amounts of resting orders.
type BookState struct {
	NextOrderID          uint64 `json:"nextOrderId"`
	LastMatchUnix        int64  `json:"lastMatchUnix"` // 0 = never matched
	TotalOrdersProcessed uint64 `json:"totalOrdersProcessed"`
	TotalMatches         uint64 `json:"totalMatches"`
	TotalBatches         uint64 `json:"totalBatches"`
}

// MatchRecord is a MatchedOrder plus its settlement status.
type MatchRecord struct {
	orderbook.MatchedOrder
	Settled   bool  `json:"settled"`
	SettledAt int64 `json:"settledAt,omitempty"`
}

// BatchRecord is the attested output of one matching pass.
type BatchRecord struct {
	ID          string        `json:"id"`
	Symbol      string        `json:"symbol"`
	CreatedAt   int64         `json:"createdAt"`
	Digest      string        `json:"digest"`      // 0x keccak256
	Attestation string        `json:"attestation"` // 0x BLS signature over Digest
	Matches     []MatchRecord `json:"matches"`
	Dropped     int           `json:"dropped,omitempty"`
}
