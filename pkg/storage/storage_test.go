package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/darkpool/pkg/app/core/orderbook"
)

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := NewSealer(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	return s
}

func sampleBook(t *testing.T) *orderbook.OrderBook {
	t.Helper()
	ob, err := orderbook.New(8)
	require.NoError(t, err)
	for i := uint64(1); i <= 6; i++ {
		side := orderbook.Side(i % 2)
		o := orderbook.Order{ID: i, Side: side, Price: 100 + i*3%7, Amount: i, Timestamp: 10 - i}
		o.Owner[31] = byte(i)
		o.BaseMint[0], o.QuoteMint[0] = 0xBA, 0xC0
		require.True(t, ob.Insert(side, o))
	}
	return ob
}

func TestCodec_RoundTripKeepsLayout(t *testing.T) {
	ob := sampleBook(t)
	got, err := DecodeBook(EncodeBook(ob))
	require.NoError(t, err)

	assert.Equal(t, ob.Cap(), got.Cap())
	assert.Equal(t, ob.Orders(orderbook.Buy), got.Orders(orderbook.Buy))
	assert.Equal(t, ob.Orders(orderbook.Sell), got.Orders(orderbook.Sell))
	require.NoError(t, got.Valid())
}

func TestCodec_RejectsCorruption(t *testing.T) {
	enc := EncodeBook(sampleBook(t))

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("XXXX"), enc[4:]...)},
		{"truncated", enc[:len(enc)-1]},
		{"zero capacity", func() []byte { b := bytes.Clone(enc); b[4], b[5] = 0, 0; return b }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBook(tt.data)
			assert.ErrorIs(t, err, ErrCorruptSnapshot)
		})
	}
}

func TestSealer(t *testing.T) {
	s := testSealer(t)
	sealed, err := s.Seal([]byte("book"), []byte("book:SOL-USDC"))
	require.NoError(t, err)

	pt, err := s.Open(sealed, []byte("book:SOL-USDC"))
	require.NoError(t, err)
	assert.Equal(t, []byte("book"), pt)

	_, err = s.Open(sealed, []byte("book:ETH-USDC"))
	assert.ErrorIs(t, err, ErrSealed)

	sealed[len(sealed)-1] ^= 1
	_, err = s.Open(sealed, []byte("book:SOL-USDC"))
	assert.ErrorIs(t, err, ErrSealed)

	_, err = s.Open([]byte("short"), nil)
	assert.ErrorIs(t, err, ErrSealed)

	_, err = NewSealer([]byte("short"))
	assert.Error(t, err)
}

func TestPebbleStore_BookAndBatch(t *testing.T) {
	dir := t.TempDir()
	st, err := NewPebbleStore(filepath.Join(dir, "db"), testSealer(t))
	require.NoError(t, err)

	empty, err := st.LoadBook("SOL-USDC", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, empty.Cap())
	state, err := st.LoadState("SOL-USDC")
	require.NoError(t, err)
	assert.Zero(t, state)

	ob := sampleBook(t)
	require.NoError(t, st.SaveBook("SOL-USDC", ob, BookState{NextOrderID: 7, TotalOrdersProcessed: 6}))

	rec := &BatchRecord{
		ID:     "batch-1",
		Symbol: "SOL-USDC",
		Matches: []MatchRecord{{MatchedOrder: orderbook.MatchedOrder{MatchID: 0, Quantity: 2, ExecutionPrice: 101}}},
	}
	require.NoError(t, st.CommitBatch("SOL-USDC", ob, BookState{NextOrderID: 7, TotalMatches: 1, TotalBatches: 1}, rec))
	require.NoError(t, st.Close())

	// reopen
	st, err = NewPebbleStore(filepath.Join(dir, "db"), testSealer(t))
	require.NoError(t, err)
	defer st.Close()

	got, err := st.LoadBook("SOL-USDC", 5)
	require.NoError(t, err)
	assert.Equal(t, ob.Orders(orderbook.Buy), got.Orders(orderbook.Buy))

	state, err = st.LoadState("SOL-USDC")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), state.TotalMatches)

	b, err := st.GetBatch("batch-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(101), b.Matches[0].ExecutionPrice)

	ids, err := st.RecentBatches("SOL-USDC", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"batch-1"}, ids)

	_, err = st.GetBatch("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPebbleStore_SubmissionNonce(t *testing.T) {
	st, err := NewPebbleStore(filepath.Join(t.TempDir(), "db"), testSealer(t))
	require.NoError(t, err)
	defer st.Close()

	owner := common.HexToAddress("0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0")
	n, err := st.LoadNonce(owner)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, st.SaveSubmission("SOL-USDC", sampleBook(t), BookState{NextOrderID: 1}, owner, 42))
	n, err = st.LoadNonce(owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)

	state, err := st.LoadState("SOL-USDC")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), state.NextOrderID)
}

func TestPebbleStore_WrongKeyCannotOpenBook(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	st, err := NewPebbleStore(dir, testSealer(t))
	require.NoError(t, err)
	require.NoError(t, st.SaveBook("SOL-USDC", sampleBook(t), BookState{}))
	require.NoError(t, st.Close())

	other, err := NewSealer(bytes.Repeat([]byte{2}, 32))
	require.NoError(t, err)
	st, err = NewPebbleStore(dir, other)
	require.NoError(t, err)
	defer st.Close()

	_, err = st.LoadBook("SOL-USDC", 5)
	assert.ErrorIs(t, err, ErrSealed)
}

func TestFileJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := NewFileJournal(path)
	require.NoError(t, err)
	require.NoError(t, j.Append("order_accepted", map[string]any{"orderId": 1}))
	require.NoError(t, j.Append("batch_committed", map[string]any{"matches": 2}))
	require.NoError(t, j.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		events = append(events, m["event"].(string))
	}
	assert.Equal(t, []string{"order_accepted", "batch_committed"}, events)
}
