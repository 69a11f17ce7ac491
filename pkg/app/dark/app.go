// Package dark is the node's confidential boundary. It authenticates and
// opens sealed orders, owns the persisted book per market, runs rate-limited
// matching passes and records attested batches for settlement. Prices and
// amounts exist in plaintext only inside this package and the book.
package dark

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/darkpool/pkg/app/core/market"
	"github.com/uhyunpark/darkpool/pkg/app/core/matching"
	"github.com/uhyunpark/darkpool/pkg/app/core/mempool"
	"github.com/uhyunpark/darkpool/pkg/app/core/orderbook"
	"github.com/uhyunpark/darkpool/pkg/app/core/transaction"
	"github.com/uhyunpark/darkpool/pkg/crypto"
	"github.com/uhyunpark/darkpool/pkg/metrics"
	"github.com/uhyunpark/darkpool/pkg/storage"
	"github.com/uhyunpark/darkpool/pkg/util"
)

var (
	ErrUnknownMarket       = errors.New("unknown market")
	ErrBadSignature        = errors.New("order signature invalid")
	ErrNonceReused         = errors.New("nonce already used")
	ErrExpired             = errors.New("order deadline passed")
	ErrInvalidSide         = errors.New("invalid order side")
	ErrBookFull            = errors.New("order book side is full")
	ErrOrderIDOverflow     = errors.New("order id counter overflow")
	ErrMatchingTooFrequent = errors.New("matching triggered too frequently")
	ErrMatchNotFound       = errors.New("match not found")
	ErrAlreadySettled      = errors.New("match already settled")
	ErrBadAttestation      = errors.New("batch attestation invalid")
)

// Store is the persistence the boundary needs. storage.PebbleStore
// implements it.
type Store interface {
	LoadBook(symbol string, capacity int) (*orderbook.OrderBook, error)
	LoadState(symbol string) (storage.BookState, error)
	LoadNonce(owner common.Address) (uint64, error)
	SaveBook(symbol string, book *orderbook.OrderBook, st storage.BookState) error
	SaveSubmission(symbol string, book *orderbook.OrderBook, st storage.BookState, owner common.Address, nonce uint64) error
	CommitBatch(symbol string, book *orderbook.OrderBook, st storage.BookState, rec *storage.BatchRecord) error
	GetBatch(batchID string) (*storage.BatchRecord, error)
	SaveBatch(rec *storage.BatchRecord) error
	RecentBatches(symbol string, limit int) ([]string, error)
}

type Config struct {
	Capacity      int
	MaxMatches    int
	MatchInterval time.Duration
	Domain        crypto.EIP712Domain
}

func DefaultConfig() Config {
	return Config{
		Capacity:      orderbook.DefaultCapacity,
		MaxMatches:    matching.MaxMatchesPerBatch,
		MatchInterval: 15 * time.Second,
		Domain:        crypto.DefaultDomain(),
	}
}

// Deps are the collaborators handed to New. Clock, Journal and Metrics
// default to RealClock, a no-op journal and a private registry.
type Deps struct {
	Store    Store
	Markets  *market.Registry
	MXE      *crypto.MXEKey
	Attestor *crypto.BLSSigner
	Clock    util.Clock
	Journal  storage.Journal
	Metrics  *metrics.Metrics
	Log      *zap.SugaredLogger
}

type App struct {
	// mu serialises every load-modify-store cycle on the store.
	mu sync.Mutex

	cfg      Config
	store    Store
	markets  *market.Registry
	mxe      *crypto.MXEKey
	attestor *crypto.BLSSigner
	verifier *transaction.Verifier
	engine   *matching.Engine
	mempool  *mempool.Mempool
	clock    util.Clock
	journal  storage.Journal
	metrics  *metrics.Metrics
	log      *zap.SugaredLogger

	lmu       sync.RWMutex
	listeners []func(*storage.BatchRecord)
}

func New(cfg Config, d Deps) (*App, error) {
	if d.Store == nil || d.Markets == nil || d.MXE == nil || d.Attestor == nil {
		return nil, fmt.Errorf("dark: store, markets, MXE key and attestor are required")
	}
	if cfg.Capacity < 1 || cfg.Capacity > orderbook.MaxCapacity {
		return nil, fmt.Errorf("dark: capacity %d out of range", cfg.Capacity)
	}
	engine, err := matching.NewEngine(cfg.MaxMatches)
	if err != nil {
		return nil, err
	}
	if cfg.Domain.ChainID == nil {
		cfg.Domain = crypto.DefaultDomain()
	}
	if d.Clock == nil {
		d.Clock = util.RealClock{}
	}
	if d.Journal == nil {
		d.Journal = storage.NewNopJournal()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New("darkpool")
	}
	if d.Log == nil {
		d.Log = util.NewNopSugar()
	}

	return &App{
		cfg:      cfg,
		store:    d.Store,
		markets:  d.Markets,
		mxe:      d.MXE,
		attestor: d.Attestor,
		verifier: transaction.NewVerifier(cfg.Domain),
		engine:   engine,
		mempool:  mempool.NewMempool(),
		clock:    d.Clock,
		journal:  d.Journal,
		metrics:  d.Metrics,
		log:      d.Log,
	}, nil
}

func (a *App) Markets() []*market.Market { return a.markets.List() }

func (a *App) Market(symbol string) (*market.Market, error) {
	m, err := a.markets.Get(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarket, symbol)
	}
	return m, nil
}

func (a *App) Metrics() *metrics.Metrics { return a.metrics }

func (a *App) MXEPublicKey() []byte { return a.mxe.PublicKeyBytes() }

func (a *App) AttestationPubkey() []byte { return a.attestor.PubkeyBytes() }

func (a *App) MatchInterval() time.Duration { return a.cfg.MatchInterval }

// OnBatch registers fn to be called after every committed batch with at
// least one fill. fn runs on the committing goroutine and must not block.
func (a *App) OnBatch(fn func(*storage.BatchRecord)) {
	a.lmu.Lock()
	defer a.lmu.Unlock()
	a.listeners = append(a.listeners, fn)
}

func (a *App) notify(rec *storage.BatchRecord) {
	a.lmu.RLock()
	defer a.lmu.RUnlock()
	for _, fn := range a.listeners {
		fn(rec)
	}
}

func (a *App) record(event string, fields map[string]any) {
	if err := a.journal.Append(event, fields); err != nil {
		a.log.Warnw("journal_append_failed", "event", event, "err", err)
	}
}

func (a *App) updateDepth(symbol string, book *orderbook.OrderBook) {
	a.metrics.BookDepth.WithLabelValues(symbol, "buy").Set(float64(book.Len(orderbook.Buy)))
	a.metrics.BookDepth.WithLabelValues(symbol, "sell").Set(float64(book.Len(orderbook.Sell)))
}
