package orderbook

import (
	"encoding/hex"
	"fmt"
	"strings"
)

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of Buy or Sell.
func (s Side) Valid() bool { return s == Buy || s == Sell }

// Identity is an opaque 32-byte handle (owner key or asset mint).
// The book never interprets its bits.
type Identity [32]byte

func (id Identity) String() string { return "0x" + hex.EncodeToString(id[:]) }

func (id Identity) IsZero() bool { return id == Identity{} }

func (id Identity) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *Identity) UnmarshalText(b []byte) error {
	parsed, err := ParseIdentity(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseIdentity reads 64 hex characters, with or without 0x.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return id, fmt.Errorf("identity: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("identity: want %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// Order is a resting limit order. Amount is the remaining unfilled
// quantity and only ever moves down; everything else is fixed at submission.
type Order struct {
	ID        uint64
	Owner     Identity
	BaseMint  Identity
	QuoteMint Identity
	Amount    uint64
	Price     uint64
	Side      Side
	Timestamp uint64
}

func (o Order) IsBuy() bool  { return o.Side == Buy }
func (o Order) IsSell() bool { return o.Side == Sell }

// MatchedOrder records one crossing event. It is handed to settlement as-is.
type MatchedOrder struct {
	MatchID        uint64   `json:"matchId"`
	Buyer          Identity `json:"buyer"`
	Seller         Identity `json:"seller"`
	BaseMint       Identity `json:"baseMint"`
	QuoteMint      Identity `json:"quoteMint"`
	Quantity       uint64   `json:"quantity"`
	ExecutionPrice uint64   `json:"executionPrice"`
}

// better is the price-time priority relation for one side.
// Buy: higher price first. Sell: lower price first. Ties go to the earlier
// timestamp, then the lower order ID, so the relation is total.
func better(side Side, a, b *Order) bool {
	if a.Price != b.Price {
		if side == Buy {
			return a.Price > b.Price
		}
		return a.Price < b.Price
	}
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.ID < b.ID
}
