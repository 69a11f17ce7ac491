package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/darkpool/pkg/app/core/market"
	"github.com/uhyunpark/darkpool/pkg/app/core/transaction"
	"github.com/uhyunpark/darkpool/pkg/app/dark"
	"github.com/uhyunpark/darkpool/pkg/crypto"
	"github.com/uhyunpark/darkpool/pkg/storage"
)

const (
	maxBodyBytes       = 64 << 10
	defaultBatchLimit  = 20
	maxBatchLimit      = 200
	readHeaderTimeout  = 5 * time.Second
	shutdownGracePeriod = 5 * time.Second
)

// Server exposes the dark pool over REST and WebSocket.
type Server struct {
	app    *dark.App
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

func NewServer(app *dark.App, log *zap.SugaredLogger) *Server {
	s := &Server{
		app:    app,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	s.setupRoutes()
	app.OnBatch(s.BroadcastBatch)
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market endpoints
	api.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	api.HandleFunc("/markets/{symbol}", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/markets/{symbol}/stats", s.handleGetStats).Methods("GET")
	api.HandleFunc("/markets/{symbol}/batches", s.handleListBatches).Methods("GET")

	// Keys clients seal to and verify against
	api.HandleFunc("/keys", s.handleGetKeys).Methods("GET")

	// Orders and matching
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/tx", s.handlePushTx).Methods("POST")
	api.HandleFunc("/mempool", s.handleMempool).Methods("GET")
	api.HandleFunc("/match", s.handleTriggerMatch).Methods("POST")

	// Batches and settlement
	api.HandleFunc("/batches/{batchId}", s.handleGetBatch).Methods("GET")
	api.HandleFunc("/batches/{batchId}/verify", s.handleVerifyBatch).Methods("GET")
	api.HandleFunc("/batches/{batchId}/matches/{matchId}/settle", s.handleSettle).Methods("POST")

	s.router.Handle("/metrics", s.app.Metrics().Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the router wrapped in the CORS policy.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("api_listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// ==============================
// Market Handlers
// ==============================

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.app.Markets()
	out := make([]MarketInfo, len(markets))
	for i, m := range markets {
		out[i] = marketInfo(m)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.app.Market(mux.Vars(r)["symbol"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, marketInfo(m))
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.app.Stats(mux.Vars(r)["symbol"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, st)
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if _, err := s.app.Market(symbol); err != nil {
		respondErr(w, err)
		return
	}

	limit := defaultBatchLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid limit", q)
			return
		}
		limit = min(n, maxBatchLimit)
	}

	ids, err := s.app.RecentBatches(symbol, limit)
	if err != nil {
		respondErr(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	respondJSON(w, BatchListResponse{Symbol: symbol, Batches: ids})
}

func (s *Server) handleGetKeys(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, KeysResponse{
		MXEPublicKey:      hexutil.Encode(s.app.MXEPublicKey()),
		AttestationPubkey: hexutil.Encode(s.app.AttestationPubkey()),
		Suite:             "X25519-HKDF-SHA256/ChaCha20Poly1305",
		MatchIntervalSec:  int64(s.app.MatchInterval() / time.Second),
	})
}

// ==============================
// Order and Matching Handlers
// ==============================

// handleSubmitOrder accepts a signed, sealed order and applies it at once.
func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	tx, err := transaction.ParseTransaction(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid transaction", err.Error())
		return
	}
	if tx.Type != transaction.TxTypeOrder {
		respondError(w, http.StatusBadRequest, "invalid transaction type", "expected type=order")
		return
	}

	receipt, err := s.app.SubmitOrder(tx)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, SubmitOrderResponse{
		Status:    "accepted",
		OrderID:   receipt.OrderID,
		Symbol:    receipt.Symbol,
		Timestamp: receipt.Timestamp,
	})
}

// handlePushTx queues any transaction type for the mempool loop.
func (s *Server) handlePushTx(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if _, err := transaction.ParseTransaction(body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid transaction", err.Error())
		return
	}
	if !s.app.PushTx(body) {
		respondError(w, http.StatusBadRequest, "unknown transaction type", "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
}

func (s *Server) handleMempool(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, MempoolStatus{Pending: s.app.MempoolLen()})
}

func (s *Server) handleTriggerMatch(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Symbol == "" {
		respondError(w, http.StatusBadRequest, "missing symbol", "")
		return
	}

	rec, err := s.app.TriggerMatching(req.Symbol)
	if err != nil {
		respondErr(w, err)
		return
	}
	resp := MatchResponse{Status: "empty", Symbol: req.Symbol}
	if rec.ID != "" {
		resp.Status = "committed"
		resp.BatchID = rec.ID
		resp.Matches = len(rec.Matches)
	}
	respondJSON(w, resp)
}

// ==============================
// Batch Handlers
// ==============================

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	rec, err := s.app.GetBatch(mux.Vars(r)["batchId"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, rec)
}

func (s *Server) handleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["batchId"]
	rec, err := s.app.GetBatch(id)
	if err != nil {
		respondErr(w, err)
		return
	}
	resp := VerifyResponse{BatchID: id, Valid: true}
	if err := s.app.VerifyBatch(rec); err != nil {
		resp.Valid = false
		resp.Reason = err.Error()
	}
	respondJSON(w, resp)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	matchID, err := strconv.ParseUint(vars["matchId"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid matchId", vars["matchId"])
		return
	}
	m, err := s.app.SettleMatch(vars["batchId"], matchID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, m)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods
// ==============================

// BroadcastBatch announces a committed batch on "batches:{symbol}". Only
// identifiers and counts go out; fills are fetched over REST.
func (s *Server) BroadcastBatch(rec *storage.BatchRecord) {
	s.hub.BroadcastToChannel("batches:"+rec.Symbol, BatchUpdate{
		Type:      "batch",
		BatchID:   rec.ID,
		Symbol:    rec.Symbol,
		Matches:   len(rec.Matches),
		Digest:    rec.Digest,
		CreatedAt: rec.CreatedAt,
	})
}

// ==============================
// Helper Functions
// ==============================

func marketInfo(m *market.Market) MarketInfo {
	return MarketInfo{
		Symbol:        m.Symbol,
		BaseAsset:     m.BaseAsset,
		QuoteAsset:    m.QuoteAsset,
		BaseMint:      m.BaseMint.String(),
		QuoteMint:     m.QuoteMint.String(),
		Status:        m.Status.String(),
		PriceDecimals: m.PriceDecimals,
		SizeDecimals:  m.SizeDecimals,
		TickSize:      m.TickSize,
		LotSize:       m.LotSize,
		MinOrderSize:  m.MinOrderSize,
		MaxOrderSize:  m.MaxOrderSize,
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return nil, false
	}
	return body, true
}

// statusFor maps application errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dark.ErrUnknownMarket),
		errors.Is(err, dark.ErrMatchNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dark.ErrBadSignature):
		return http.StatusUnauthorized
	case errors.Is(err, dark.ErrNonceReused),
		errors.Is(err, dark.ErrAlreadySettled),
		errors.Is(err, market.ErrNotActive):
		return http.StatusConflict
	case errors.Is(err, dark.ErrMatchingTooFrequent):
		return http.StatusTooManyRequests
	case errors.Is(err, dark.ErrBookFull),
		errors.Is(err, dark.ErrOrderIDOverflow):
		return http.StatusServiceUnavailable
	case errors.Is(err, dark.ErrExpired),
		errors.Is(err, dark.ErrInvalidSide),
		errors.Is(err, market.ErrZeroPrice),
		errors.Is(err, market.ErrZeroAmount),
		errors.Is(err, market.ErrTickSize),
		errors.Is(err, market.ErrLotSize),
		errors.Is(err, market.ErrBelowMinimum),
		errors.Is(err, market.ErrAboveMaximum),
		errors.Is(err, transaction.ErrInvalidTransaction),
		errors.Is(err, crypto.ErrSealedPayload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	respondError(w, status, http.StatusText(status), err.Error())
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
