// sign-order builds a sealed, EIP-712 signed order transaction and prints it
// as JSON, optionally submitting it to a node.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/darkpool/params"
	"github.com/uhyunpark/darkpool/pkg/api"
	"github.com/uhyunpark/darkpool/pkg/app/core/market"
	"github.com/uhyunpark/darkpool/pkg/app/core/orderbook"
	"github.com/uhyunpark/darkpool/pkg/app/core/transaction"
	"github.com/uhyunpark/darkpool/pkg/app/dark"
	"github.com/uhyunpark/darkpool/pkg/crypto"
)

func main() {
	var (
		keyHex   = flag.String("key", "", "hex private key (generated if empty)")
		symbol   = flag.String("symbol", "SOL-USDC", "market symbol")
		sideStr  = flag.String("side", "buy", "buy or sell")
		price    = flag.String("price", "", "limit price, e.g. 101.25")
		amount   = flag.String("amount", "", "amount of base asset, e.g. 1.5")
		nonce    = flag.Uint64("nonce", 1, "strictly increasing per owner")
		ttl      = flag.Duration("ttl", 0, "deadline relative to now (0 = no expiry)")
		mxeHex   = flag.String("mxe", "", "hex MXE public key (fetched from -api if empty)")
		apiURL   = flag.String("api", "http://localhost:8080", "node API base URL")
		doSubmit = flag.Bool("submit", false, "POST the order to the node")
	)
	flag.Parse()

	if err := run(*keyHex, *symbol, *sideStr, *price, *amount, *nonce, *ttl, *mxeHex, *apiURL, *doSubmit); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(keyHex, symbol, sideStr, price, amount string, nonce uint64, ttl time.Duration, mxeHex, apiURL string, doSubmit bool) error {
	if price == "" || amount == "" {
		return fmt.Errorf("-price and -amount are required")
	}
	side, err := parseSide(sideStr)
	if err != nil {
		return err
	}

	signer, err := loadSigner(keyHex)
	if err != nil {
		return err
	}

	// Amounts are converted with the node's default market parameters.
	base, quote, err := params.SplitSymbol(symbol)
	if err != nil {
		return err
	}
	m, err := market.NewMarketWithDefaults(symbol, base, quote)
	if err != nil {
		return err
	}
	ticks, err := m.ToTicks(price)
	if err != nil {
		return err
	}
	lots, err := m.ToLots(amount)
	if err != nil {
		return err
	}

	if mxeHex == "" {
		keys, err := fetchKeys(apiURL)
		if err != nil {
			return fmt.Errorf("fetch MXE key: %w", err)
		}
		mxeHex = keys.MXEPublicKey
	}
	mxePub, err := hexutil.Decode(mxeHex)
	if err != nil {
		return fmt.Errorf("invalid MXE key: %w", err)
	}

	var deadline uint64
	if ttl > 0 {
		deadline = uint64(time.Now().Add(ttl).Unix())
	}

	e712 := crypto.NewEIP712Signer(crypto.DefaultDomain())
	tx, err := dark.SealAndSign(signer, e712, mxePub, symbol, nonce, deadline, crypto.OrderPlaintext{
		Side:   uint8(side),
		Price:  ticks,
		Amount: lots,
	})
	if err != nil {
		return err
	}

	// self-check before anything leaves the machine
	owner, ok, err := transaction.NewVerifier(crypto.DefaultDomain()).VerifyOrderTransaction(tx)
	if err != nil || !ok || owner != signer.Address() {
		return fmt.Errorf("signature self-check failed: %v", err)
	}

	body, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Owner: %s\n", signer.Address().Hex())
	if keyHex == "" {
		fmt.Fprintf(os.Stderr, "Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
	}
	fmt.Fprintf(os.Stderr, "Order: %s %s %s @ %s (ticks=%d lots=%d)\n", side, m.FormatAmount(lots), symbol, m.FormatPrice(ticks), ticks, lots)
	fmt.Println(string(body))

	if !doSubmit {
		return nil
	}
	resp, err := http.Post(strings.TrimRight(apiURL, "/")+"/api/v1/orders", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	fmt.Fprintf(os.Stderr, "Submit: %s\n%s", resp.Status, out)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node rejected order")
	}
	return nil
}

func parseSide(s string) (orderbook.Side, error) {
	switch strings.ToLower(s) {
	case "buy", "b":
		return orderbook.Buy, nil
	case "sell", "s":
		return orderbook.Sell, nil
	default:
		return 0, fmt.Errorf("side must be buy or sell, got %q", s)
	}
}

func loadSigner(keyHex string) (*crypto.Signer, error) {
	if keyHex == "" {
		return crypto.GenerateKey()
	}
	return crypto.FromPrivateKeyHex(keyHex)
}

func fetchKeys(apiURL string) (*api.KeysResponse, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(apiURL, "/") + "/api/v1/keys")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET keys: %s", resp.Status)
	}
	var keys api.KeysResponse
	if err := json.NewDecoder(resp.Body).Decode(&keys); err != nil {
		return nil, err
	}
	return &keys, nil
}
