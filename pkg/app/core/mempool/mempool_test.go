package mempool

import (
	"testing"
)

func TestClassifyRaw(t *testing.T) {
	tests := []struct {
		name     string
		tx       string
		expected TxType
	}{
		{"sealed order", `{"type":"order","order":{"symbol":"SOL-USDC"},"signature":"0x1234"}`, TxOrder},
		{"match trigger", `{"type":"match"}`, TxMatch},
		{"settle", `{"type":"settle","batchId":"b1","matchId":0}`, TxSettle},
		{"unknown type", `{"type":"cancel"}`, TxUnknown},
		{"invalid JSON", `{"invalid": "json"`, TxUnknown},
		{"non-JSON", "UNKNOWN:foo", TxUnknown},
		{"empty", "", TxUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyRaw([]byte(tt.tx)); got != tt.expected {
				t.Errorf("ClassifyRaw() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMempool_Ordering(t *testing.T) {
	m := NewMempool()

	order1 := `{"type":"order","order":{"symbol":"SOL-USDC"},"signature":"0x1111"}`
	order2 := `{"type":"order","order":{"symbol":"SOL-USDC"},"signature":"0x2222"}`
	match := `{"type":"match"}`
	settle := `{"type":"settle","batchId":"b1","matchId":0}`

	m.PushRaw([]byte(match))
	m.PushRaw([]byte(order1))
	m.PushRaw([]byte(settle))
	m.PushRaw([]byte(order2))
	if m.PushRaw([]byte("garbage")) {
		t.Fatal("unknown payload accepted")
	}

	txs := m.Drain(0)
	want := []string{settle, order1, order2, match}
	if len(txs) != len(want) {
		t.Fatalf("expected %d txs, got %d", len(want), len(txs))
	}
	for i := range want {
		if string(txs[i]) != want[i] {
			t.Errorf("tx[%d] mismatch\ngot:  %q\nwant: %q", i, txs[i], want[i])
		}
	}
	if m.Len() != 0 {
		t.Errorf("mempool not empty after drain: %d", m.Len())
	}
}

func TestMempool_MaxBytes(t *testing.T) {
	m := NewMempool()
	tx := `{"type":"match"}` // 16 bytes
	for i := 0; i < 3; i++ {
		m.PushRaw([]byte(tx))
	}

	txs := m.Drain(int64(2 * len(tx)))
	if len(txs) != 2 {
		t.Errorf("expected 2 txs, got %d", len(txs))
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 tx remaining, got %d", m.Len())
	}
}

func TestMempool_CopiesInput(t *testing.T) {
	m := NewMempool()
	b := []byte(`{"type":"match"}`)
	m.PushRaw(b)
	b[2] = 'X'
	if got := m.Drain(0); string(got[0]) != `{"type":"match"}` {
		t.Errorf("queued tx aliased caller buffer: %q", got[0])
	}
}
