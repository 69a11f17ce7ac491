package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/darkpool/params"
	"github.com/uhyunpark/darkpool/pkg/api"
	"github.com/uhyunpark/darkpool/pkg/app/core/market"
	"github.com/uhyunpark/darkpool/pkg/app/dark"
	"github.com/uhyunpark/darkpool/pkg/crypto"
	"github.com/uhyunpark/darkpool/pkg/metrics"
	"github.com/uhyunpark/darkpool/pkg/p2p"
	"github.com/uhyunpark/darkpool/pkg/storage"
	"github.com/uhyunpark/darkpool/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
		sugar.Fatalw("data_dir_failed", "dir", cfg.Node.DataDir, "err", err)
	}

	// ---- Keys ----
	mxeSeed := secret(sugar, "MXE_SECRET_HEX", cfg.Keys.MXESecretHex)
	attestSeed := secret(sugar, "ATTEST_SEED_HEX", cfg.Keys.AttestSeedHex)

	mxe, err := crypto.MXEKeyFromSeed(mxeSeed)
	if err != nil {
		sugar.Fatalw("mxe_key_failed", "err", err)
	}
	attestor, err := crypto.NewBLSSignerFromSeed(attestSeed)
	if err != nil {
		sugar.Fatalw("attest_key_failed", "err", err)
	}

	// ---- Storage ----
	sealer, err := storage.NewSealer(mxeSeed)
	if err != nil {
		sugar.Fatalw("sealer_failed", "err", err)
	}
	store, err := storage.NewPebbleStore(filepath.Join(cfg.Node.DataDir, "books"), sealer)
	if err != nil {
		sugar.Fatalw("store_open_failed", "err", err)
	}
	defer store.Close()

	journal, err := storage.NewFileJournal(filepath.Join(cfg.Node.DataDir, "journal.jsonl"))
	if err != nil {
		sugar.Fatalw("journal_open_failed", "err", err)
	}
	defer journal.Close()

	// ---- Markets ----
	registry := market.NewRegistry()
	for _, sym := range cfg.Node.Markets {
		base, quote, _ := params.SplitSymbol(sym)
		m, err := market.NewMarketWithDefaults(sym, base, quote)
		if err != nil {
			sugar.Fatalw("market_invalid", "symbol", sym, "err", err)
		}
		if err := registry.Register(m); err != nil {
			sugar.Fatalw("market_register_failed", "symbol", sym, "err", err)
		}
	}

	// ---- App ----
	m := metrics.New("darkpool")
	appCfg := dark.DefaultConfig()
	appCfg.Capacity = cfg.Engine.Capacity
	appCfg.MaxMatches = cfg.Engine.MaxMatchesPerBatch
	appCfg.MatchInterval = cfg.Engine.MatchInterval

	app, err := dark.New(appCfg, dark.Deps{
		Store:    store,
		Markets:  registry,
		MXE:      mxe,
		Attestor: attestor,
		Clock:    util.RealClock{},
		Journal:  journal,
		Metrics:  m,
		Log:      sugar,
	})
	if err != nil {
		sugar.Fatalw("app_init_failed", "err", err)
	}

	sugar.Infow("node_starting",
		"markets", cfg.Node.Markets,
		"capacity", cfg.Engine.Capacity,
		"max_matches", cfg.Engine.MaxMatchesPerBatch,
		"match_interval", cfg.Engine.MatchInterval,
		"mxe_pubkey", hex.EncodeToString(mxe.PublicKeyBytes()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Transaction Feeder (optional) ----
	if cfg.Node.EnableTxGen {
		feedCfg := dark.DefaultFeederConfig()
		feedCfg.Interval = cfg.Node.TxGenInterval
		cancelFeeder, err := dark.StartTxFeeder(ctx, app, feedCfg)
		if err != nil {
			sugar.Fatalw("txfeeder_failed", "err", err)
		}
		defer cancelFeeder()
	}

	// ---- Batch gossip (optional) ----
	if cfg.Node.P2PListen != "" {
		gossip, err := startGossip(ctx, cfg.Node, attestor.PubkeyBytes(), m, sugar)
		if err != nil {
			sugar.Fatalw("p2p_init_failed", "err", err)
		}
		defer gossip.Close()
		app.OnBatch(func(rec *storage.BatchRecord) {
			// OnBatch must not block the committing goroutine
			go func() {
				if err := gossip.PublishBatch(ctx, rec); err != nil {
					sugar.Warnw("batch_publish_failed", "batch_id", rec.ID, "err", err)
				}
			}()
		})
	}

	go app.RunMempoolLoop(ctx, cfg.Node.MempoolInterval, 0)
	go app.RunMatchLoop(ctx, cfg.Engine.MatchInterval)

	// ---- API Server ----
	server := api.NewServer(app, sugar)
	if err := server.Start(ctx, cfg.Node.APIAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		sugar.Errorw("api_server_failed", "err", err)
		return
	}
	sugar.Info("node_stopped")
}

func startGossip(ctx context.Context, node params.Node, self []byte, m *metrics.Metrics, log *zap.SugaredLogger) (*p2p.Gossip, error) {
	var trusted [][]byte
	for _, h := range node.P2PTrusted {
		pk := common.FromHex(h)
		if len(pk) == 0 {
			return nil, fmt.Errorf("invalid trusted pubkey %q", h)
		}
		trusted = append(trusted, pk)
	}
	g, err := p2p.NewGossip(ctx, p2p.Config{
		ListenAddr: node.P2PListen,
		Bootstrap:  node.P2PBootstrap,
		Trusted:    trusted,
		Self:       self,
		Verify:     dark.VerifyBatchWith,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	g.SetHandler(func(origin []byte, rec *storage.BatchRecord) {
		m.PeerBatches.WithLabelValues("verified").Inc()
		log.Infow("peer_batch_verified",
			"origin", hex.EncodeToString(origin)[:16],
			"batch_id", rec.ID,
			"symbol", rec.Symbol,
			"matches", len(rec.Matches))
	})
	log.Infow("p2p_addrs", "addrs", g.Addrs())
	return g, nil
}

// secret decodes a configured hex seed, or generates an ephemeral one.
func secret(log *zap.SugaredLogger, name, hexValue string) []byte {
	if hexValue != "" {
		b := common.FromHex(hexValue)
		if len(b) < 32 {
			log.Fatalw("secret_too_short", "name", name, "bytes", len(b))
		}
		return b[:32]
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatalw("secret_generate_failed", "name", name, "err", err)
	}
	log.Warnw("ephemeral_secret", "name", name, "note", "state will not survive a restart")
	return b
}
