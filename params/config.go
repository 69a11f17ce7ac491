package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/uhyunpark/darkpool/pkg/app/core/matching"
	"github.com/uhyunpark/darkpool/pkg/app/core/orderbook"
)

type Engine struct {
	// Capacity is the per-side slot count of the book, 1..orderbook.MaxCapacity.
	Capacity int
	// MaxMatchesPerBatch bounds one pass, 1..matching.MaxMatchesPerBatch.
	MaxMatchesPerBatch int
	// MatchInterval is the minimum spacing between two passes.
	MatchInterval time.Duration
}

type Node struct {
	DataDir string
	APIAddr string
	LogFile string // empty = stdout only

	// Markets are "BASE-QUOTE" symbols served with default parameters.
	Markets []string
	// MempoolInterval is how often queued transactions are applied.
	MempoolInterval time.Duration

	// P2PListen enables batch gossip when set (multiaddr).
	P2PListen    string
	P2PBootstrap []string
	// P2PTrusted are hex BLS pubkeys whose batches are accepted; empty = any.
	P2PTrusted []string

	// Loopback order generator for devnets.
	EnableTxGen   bool
	TxGenInterval time.Duration
}

// Keys hold hex secrets. Empty values make the node generate ephemeral keys,
// which only suits devnets since the sealed book becomes unreadable on restart.
type Keys struct {
	MXESecretHex  string // 32-byte HPKE seed; also keys the snapshot sealer
	AttestSeedHex string // >= 32-byte BLS seed
}

type Config struct {
	Engine Engine
	Node   Node
	Keys   Keys
}

func Default() Config {
	return Config{
		Engine: Engine{
			Capacity:           orderbook.DefaultCapacity,
			MaxMatchesPerBatch: matching.MaxMatchesPerBatch,
			MatchInterval:      15 * time.Second,
		},
		Node: Node{
			DataDir:         "data",
			APIAddr:         ":8080",
			Markets:         []string{"SOL-USDC"},
			MempoolInterval: 500 * time.Millisecond,
			TxGenInterval:   2 * time.Second,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults. Unparseable values keep the default.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v, ok := getInt("ORDERBOOK_CAPACITY"); ok {
		cfg.Engine.Capacity = v
	}
	if v, ok := getInt("MAX_MATCHES_PER_BATCH"); ok {
		cfg.Engine.MaxMatchesPerBatch = v
	}
	if v, ok := getInt("MATCH_INTERVAL_SEC"); ok {
		cfg.Engine.MatchInterval = time.Duration(v) * time.Second
	}
	if v, ok := getInt("MEMPOOL_INTERVAL_MS"); ok {
		cfg.Node.MempoolInterval = time.Duration(v) * time.Millisecond
	}
	if v, ok := getInt("TXGEN_INTERVAL_MS"); ok {
		cfg.Node.TxGenInterval = time.Duration(v) * time.Millisecond
	}

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.EnableTxGen = os.Getenv("ENABLE_TXGEN") == "true"
	if v := os.Getenv("MARKETS"); v != "" {
		cfg.Node.Markets = splitList(v)
	}
	cfg.Node.P2PListen = os.Getenv("P2P_LISTEN")
	cfg.Node.P2PBootstrap = splitList(os.Getenv("P2P_BOOTSTRAP"))
	cfg.Node.P2PTrusted = splitList(os.Getenv("P2P_TRUSTED"))

	cfg.Keys.MXESecretHex = os.Getenv("MXE_SECRET_HEX")
	cfg.Keys.AttestSeedHex = os.Getenv("ATTEST_SEED_HEX")

	return cfg
}

func (c Config) Validate() error {
	if c.Engine.Capacity < 1 || c.Engine.Capacity > orderbook.MaxCapacity {
		return fmt.Errorf("ORDERBOOK_CAPACITY must be in [1,%d], got %d", orderbook.MaxCapacity, c.Engine.Capacity)
	}
	if c.Engine.MaxMatchesPerBatch < 1 || c.Engine.MaxMatchesPerBatch > matching.MaxMatchesPerBatch {
		return fmt.Errorf("MAX_MATCHES_PER_BATCH must be in [1,%d], got %d", matching.MaxMatchesPerBatch, c.Engine.MaxMatchesPerBatch)
	}
	if c.Engine.MatchInterval < 0 {
		return fmt.Errorf("MATCH_INTERVAL_SEC cannot be negative")
	}
	if c.Node.DataDir == "" {
		return fmt.Errorf("DATA_DIR cannot be empty")
	}
	if c.Node.MempoolInterval <= 0 {
		return fmt.Errorf("MEMPOOL_INTERVAL_MS must be positive")
	}
	if len(c.Node.Markets) == 0 {
		return fmt.Errorf("MARKETS cannot be empty")
	}
	for _, sym := range c.Node.Markets {
		if _, _, err := SplitSymbol(sym); err != nil {
			return err
		}
	}
	return nil
}

// SplitSymbol splits "SOL-USDC" into its base and quote assets.
func SplitSymbol(symbol string) (base, quote string, err error) {
	base, quote, ok := strings.Cut(symbol, "-")
	if !ok || base == "" || quote == "" || strings.Contains(quote, "-") {
		return "", "", fmt.Errorf("market symbol %q must be BASE-QUOTE", symbol)
	}
	return base, quote, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getInt(key string) (int, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
