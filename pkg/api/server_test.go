package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/darkpool/pkg/app/core/market"
	"github.com/uhyunpark/darkpool/pkg/app/core/orderbook"
	"github.com/uhyunpark/darkpool/pkg/app/dark"
	"github.com/uhyunpark/darkpool/pkg/crypto"
	"github.com/uhyunpark/darkpool/pkg/storage"
	"github.com/uhyunpark/darkpool/pkg/util"
)

const sym = "SOL-USDC"

type fixture struct {
	srv   *Server
	ts    *httptest.Server
	app   *dark.App
	clock *util.ManualClock
	e712  *crypto.EIP712Signer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sealer, err := storage.NewSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	store, err := storage.NewPebbleStore(filepath.Join(t.TempDir(), "db"), sealer)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := market.NewRegistry()
	m, err := market.NewMarketWithDefaults(sym, "SOL", "USDC")
	require.NoError(t, err)
	require.NoError(t, reg.Register(m))

	mxe, err := crypto.MXEKeyFromSeed(bytes.Repeat([]byte{8}, 32))
	require.NoError(t, err)
	att, err := crypto.NewBLSSignerFromSeed(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	clock := util.NewManualClock(time.Unix(1_700_000_000, 0))
	cfg := dark.DefaultConfig()
	app, err := dark.New(cfg, dark.Deps{Store: store, Markets: reg, MXE: mxe, Attestor: att, Clock: clock})
	require.NoError(t, err)

	srv := NewServer(app, util.NewNopSugar())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{srv: srv, ts: ts, app: app, clock: clock, e712: crypto.NewEIP712Signer(cfg.Domain)}
}

func (f *fixture) orderBody(t *testing.T, signer *crypto.Signer, nonce uint64, side orderbook.Side, price, amount uint64) []byte {
	t.Helper()
	tx, err := dark.SealAndSign(signer, f.e712, f.app.MXEPublicKey(), sym, nonce, 0,
		crypto.OrderPlaintext{Side: uint8(side), Price: price, Amount: amount})
	require.NoError(t, err)
	b, err := json.Marshal(tx)
	require.NoError(t, err)
	return b
}

func (f *fixture) post(t *testing.T, path string, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(f.ts.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestServer_Markets(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/api/v1/markets")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	markets := decode[[]MarketInfo](t, resp)
	require.Len(t, markets, 1)
	assert.Equal(t, sym, markets[0].Symbol)
	assert.Equal(t, "Active", markets[0].Status)
	assert.Equal(t, market.MintFor("SOL").String(), markets[0].BaseMint)

	resp = f.get(t, "/api/v1/markets/BTC-USDC")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Keys(t *testing.T) {
	f := newFixture(t)
	resp := f.get(t, "/api/v1/keys")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	keys := decode[KeysResponse](t, resp)
	assert.Equal(t, hexutil.Encode(f.app.MXEPublicKey()), keys.MXEPublicKey)
	assert.Equal(t, hexutil.Encode(f.app.AttestationPubkey()), keys.AttestationPubkey)
	assert.Equal(t, int64(15), keys.MatchIntervalSec)
}

func TestServer_OrderMatchSettleFlow(t *testing.T) {
	f := newFixture(t)
	buyer, err := crypto.GenerateKey()
	require.NoError(t, err)
	seller, err := crypto.GenerateKey()
	require.NoError(t, err)

	resp := f.post(t, "/api/v1/orders", f.orderBody(t, buyer, 1, orderbook.Buy, 105, 10))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	r1 := decode[SubmitOrderResponse](t, resp)
	assert.Equal(t, "accepted", r1.Status)
	assert.Equal(t, sym, r1.Symbol)

	resp = f.post(t, "/api/v1/orders", f.orderBody(t, seller, 1, orderbook.Sell, 100, 4))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// replaying the seller's nonce is a conflict
	resp = f.post(t, "/api/v1/orders", f.orderBody(t, seller, 1, orderbook.Sell, 100, 4))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.post(t, "/api/v1/match", []byte(`{"symbol":"SOL-USDC"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	mr := decode[MatchResponse](t, resp)
	require.Equal(t, "committed", mr.Status)
	require.Equal(t, 1, mr.Matches)
	require.NotEmpty(t, mr.BatchID)

	// rate limited until the interval passes
	resp = f.post(t, "/api/v1/match", []byte(`{"symbol":"SOL-USDC"}`))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp = f.get(t, "/api/v1/batches/"+mr.BatchID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rec := decode[storage.BatchRecord](t, resp)
	require.Len(t, rec.Matches, 1)
	assert.Equal(t, uint64(102), rec.Matches[0].ExecutionPrice)
	assert.Equal(t, uint64(4), rec.Matches[0].Quantity)
	assert.Equal(t, orderbook.Identity(crypto.IdentityFromAddress(buyer.Address())), rec.Matches[0].Buyer)

	resp = f.get(t, "/api/v1/batches/"+mr.BatchID+"/verify")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[VerifyResponse](t, resp).Valid)

	resp = f.post(t, "/api/v1/batches/"+mr.BatchID+"/matches/0/settle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[storage.MatchRecord](t, resp).Settled)

	resp = f.post(t, "/api/v1/batches/"+mr.BatchID+"/matches/0/settle", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = f.post(t, "/api/v1/batches/"+mr.BatchID+"/matches/9/settle", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = f.post(t, "/api/v1/batches/"+mr.BatchID+"/matches/x/settle", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.get(t, "/api/v1/markets/SOL-USDC/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[dark.BookStats](t, resp)
	assert.Equal(t, 1, st.BuyOrders)
	assert.Equal(t, 0, st.SellOrders)
	assert.Equal(t, uint64(1), st.TotalBatches)

	resp = f.get(t, "/api/v1/markets/SOL-USDC/batches?limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{mr.BatchID}, decode[BatchListResponse](t, resp).Batches)
}

func TestServer_EmptyMatch(t *testing.T) {
	f := newFixture(t)
	resp := f.post(t, "/api/v1/match", []byte(`{"symbol":"SOL-USDC"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	mr := decode[MatchResponse](t, resp)
	assert.Equal(t, "empty", mr.Status)
	assert.Empty(t, mr.BatchID)
}

func TestServer_ErrorStatus(t *testing.T) {
	f := newFixture(t)
	signer, err := crypto.GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"garbage order", "/api/v1/orders", `not json`, http.StatusBadRequest},
		{"match tx on orders", "/api/v1/orders", `{"type":"match","match":{"symbol":"SOL-USDC"}}`, http.StatusBadRequest},
		{"match without symbol", "/api/v1/match", `{}`, http.StatusBadRequest},
		{"match unknown market", "/api/v1/match", `{"symbol":"BTC-USDC"}`, http.StatusNotFound},
		{"zero amount", "/api/v1/orders", string(f.orderBody(t, signer, 1, orderbook.Buy, 100, 0)), http.StatusBadRequest},
		{"bad side", "/api/v1/orders", string(f.orderBody(t, signer, 2, orderbook.Side(7), 100, 1)), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, tt.path, []byte(tt.body))
			assert.Equal(t, tt.status, resp.StatusCode)
			e := decode[ErrorResponse](t, resp)
			assert.NotEmpty(t, e.Error)
		})
	}

	// tampered signature
	var tx map[string]any
	require.NoError(t, json.Unmarshal(f.orderBody(t, signer, 3, orderbook.Buy, 100, 1), &tx))
	tx["signature"] = hexutil.Encode(make([]byte, 65))
	b, _ := json.Marshal(tx)
	resp := f.post(t, "/api/v1/orders", b)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.get(t, "/api/v1/batches/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_PushTxAndMempool(t *testing.T) {
	f := newFixture(t)
	signer, err := crypto.GenerateKey()
	require.NoError(t, err)

	resp := f.post(t, "/api/v1/tx", f.orderBody(t, signer, 1, orderbook.Buy, 100, 1))
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp = f.post(t, "/api/v1/tx", []byte(`{"type":"cancel"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.get(t, "/api/v1/mempool")
	assert.Equal(t, 1, decode[MempoolStatus](t, resp).Pending)

	res := f.app.DrainMempool(0)
	assert.Equal(t, 1, res.Orders)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	resp := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	f.post(t, "/api/v1/match", []byte(`{"symbol":"SOL-USDC"}`))

	resp = f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(buf.String(), `darkpool_batches_total{result="empty",symbol="SOL-USDC"} 1`))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{dark.ErrUnknownMarket, http.StatusNotFound},
		{storage.ErrNotFound, http.StatusNotFound},
		{dark.ErrBadSignature, http.StatusUnauthorized},
		{dark.ErrNonceReused, http.StatusConflict},
		{market.ErrNotActive, http.StatusConflict},
		{dark.ErrMatchingTooFrequent, http.StatusTooManyRequests},
		{dark.ErrBookFull, http.StatusServiceUnavailable},
		{crypto.ErrSealedPayload, http.StatusBadRequest},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}
