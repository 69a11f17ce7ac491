package mempool

import (
	"encoding/json"
	"sync"

	"github.com/gammazero/deque"
)

// TxType classifies boundary transactions.
type TxType int

const (
	TxUnknown TxType = iota
	TxSettle
	TxOrder
	TxMatch
)

func (t TxType) String() string {
	switch t {
	case TxSettle:
		return "settle"
	case TxOrder:
		return "order"
	case TxMatch:
		return "match"
	default:
		return "unknown"
	}
}

// ClassifyRaw reads the JSON envelope's "type" field:
//
//	{"type": "order", ...}  -> TxOrder
//	{"type": "match", ...}  -> TxMatch
//	{"type": "settle", ...} -> TxSettle
//
// Anything else is TxUnknown and is rejected by PushRaw.
func ClassifyRaw(b []byte) TxType {
	if len(b) == 0 || b[0] != '{' {
		return TxUnknown
	}

	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return TxUnknown
	}

	switch env.Type {
	case "order":
		return TxOrder
	case "match":
		return TxMatch
	case "settle":
		return TxSettle
	default:
		return TxUnknown
	}
}

// Mempool keeps one FIFO per bucket and drains them as
// settle -> order -> match, so a trigger sees every submission queued
// ahead of it in the same drain.
type Mempool struct {
	mu      sync.Mutex
	settle  deque.Deque[[]byte]
	orders  deque.Deque[[]byte]
	trigger deque.Deque[[]byte]
}

func NewMempool() *Mempool {
	return &Mempool{}
}

// PushRaw classifies and enqueues a copy of b. It reports false for
// unknown payloads.
func (m *Mempool) PushRaw(b []byte) bool {
	typ := ClassifyRaw(b)
	if typ == TxUnknown {
		return false
	}
	cp := append([]byte(nil), b...)

	m.mu.Lock()
	defer m.mu.Unlock()
	switch typ {
	case TxSettle:
		m.settle.PushBack(cp)
	case TxMatch:
		m.trigger.PushBack(cp)
	default:
		m.orders.PushBack(cp)
	}
	return true
}

// Drain removes and returns up to maxBytes worth of txs in bucket order.
// maxBytes <= 0 means no limit. A tx that does not fit stops its bucket
// but later buckets are still considered.
func (m *Mempool) Drain(maxBytes int64) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out [][]byte
	var used int64

	pull := func(q *deque.Deque[[]byte]) {
		for q.Len() > 0 {
			tx := q.Front()
			n := int64(len(tx))
			if maxBytes > 0 && used+n > maxBytes {
				return
			}
			out = append(out, q.PopFront())
			used += n
		}
	}

	pull(&m.settle)
	pull(&m.orders)
	pull(&m.trigger)

	return out
}

func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settle.Len() + m.orders.Len() + m.trigger.Len()
}
