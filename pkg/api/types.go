package api

// REST and WebSocket payloads. Nothing here carries the price, amount or
// side of a resting order.

// MarketInfo is a market's static configuration.
type MarketInfo struct {
	Symbol        string `json:"symbol"`     // e.g. "SOL-USDC"
	BaseAsset     string `json:"baseAsset"`  // e.g. "SOL"
	QuoteAsset    string `json:"quoteAsset"` // e.g. "USDC"
	BaseMint      string `json:"baseMint"`
	QuoteMint     string `json:"quoteMint"`
	Status        string `json:"status"` // "Active", "Paused", "Closed"
	PriceDecimals int32  `json:"priceDecimals"`
	SizeDecimals  int32  `json:"sizeDecimals"`
	TickSize      uint64 `json:"tickSize"`
	LotSize       uint64 `json:"lotSize"`
	MinOrderSize  uint64 `json:"minOrderSize"`
	MaxOrderSize  uint64 `json:"maxOrderSize"`
}

// KeysResponse publishes the keys clients need: the MXE key to seal
// orders to and the BLS key batches are attested with.
type KeysResponse struct {
	MXEPublicKey      string `json:"mxePublicKey"`
	AttestationPubkey string `json:"attestationPubkey"`
	Suite             string `json:"suite"`
	MatchIntervalSec  int64  `json:"matchIntervalSec"`
}

// SubmitOrderResponse acknowledges an accepted sealed order.
type SubmitOrderResponse struct {
	Status    string `json:"status"` // "accepted"
	OrderID   uint64 `json:"orderId"`
	Symbol    string `json:"symbol"`
	Timestamp uint64 `json:"timestamp"`
}

// MatchRequest is the payload for POST /api/v1/match.
type MatchRequest struct {
	Symbol string `json:"symbol"`
}

// MatchResponse reports one matching pass. BatchID is empty when nothing crossed.
type MatchResponse struct {
	Status  string `json:"status"` // "committed", "empty"
	BatchID string `json:"batchId,omitempty"`
	Symbol  string `json:"symbol"`
	Matches int    `json:"matches"`
}

// BatchListResponse lists recent batch IDs, newest first.
type BatchListResponse struct {
	Symbol  string   `json:"symbol"`
	Batches []string `json:"batches"`
}

// VerifyResponse is the result of re-checking a batch attestation.
type VerifyResponse struct {
	BatchID string `json:"batchId"`
	Valid   bool   `json:"valid"`
	Reason  string `json:"reason,omitempty"`
}

// MempoolStatus is returned by GET /api/v1/mempool.
type MempoolStatus struct {
	Pending int `json:"pending"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by a client to manage subscriptions.
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g. ["batches:SOL-USDC"]
}

// BatchUpdate is broadcast on "batches:{symbol}" after every committed batch.
type BatchUpdate struct {
	Type      string `json:"type"` // "batch"
	BatchID   string `json:"batchId"`
	Symbol    string `json:"symbol"`
	Matches   int    `json:"matches"`
	Digest    string `json:"digest"`
	CreatedAt int64  `json:"createdAt"`
}
