package dark

import (
	"encoding/json"
	"fmt"
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/darkpool/pkg/app/core/market"
	"github.com/uhyunpark/darkpool/pkg/app/core/transaction"
	"github.com/uhyunpark/darkpool/pkg/crypto"
)

// OrderGenerator produces signed sealed orders from simulated traders.
// It is not safe for concurrent use.
type OrderGenerator struct {
	signers []*crypto.Signer
	markets []*market.Market
	mxePub  []byte
	eip712  *crypto.EIP712Signer
	rng     *rand.Rand
	nonces  map[int]uint64

	// MidTicks is the centre of the generated price range, in ticks.
	MidTicks uint64
}

func NewOrderGenerator(numAccounts int, markets []*market.Market, mxePub []byte, domain crypto.EIP712Domain, seed int64) (*OrderGenerator, error) {
	if numAccounts < 1 || len(markets) == 0 {
		return nil, fmt.Errorf("generator needs at least one account and one market")
	}
	signers := make([]*crypto.Signer, numAccounts)
	for i := range signers {
		s, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		signers[i] = s
	}
	return &OrderGenerator{
		signers:  signers,
		markets:  markets,
		mxePub:   mxePub,
		eip712:   crypto.NewEIP712Signer(domain),
		rng:      rand.New(rand.NewSource(seed)),
		nonces:   make(map[int]uint64),
		MidTicks: 100,
	}, nil
}

// Order seals and signs p for a random trader on m.
func (g *OrderGenerator) Order(m *market.Market, p crypto.OrderPlaintext) (*transaction.SignedTransaction, error) {
	i := g.rng.Intn(len(g.signers))
	return g.orderFrom(i, m, p)
}

func (g *OrderGenerator) orderFrom(i int, m *market.Market, p crypto.OrderPlaintext) (*transaction.SignedTransaction, error) {
	signer := g.signers[i]
	g.nonces[i]++
	nonce := g.nonces[i]
	return SealAndSign(signer, g.eip712, g.mxePub, m.Symbol, nonce, 0, p)
}

// Random returns one serialized order with a price within 5% of MidTicks.
func (g *OrderGenerator) Random() ([]byte, error) {
	m := g.markets[g.rng.Intn(len(g.markets))]

	spread := g.MidTicks / 20
	if spread == 0 {
		spread = 1
	}
	price := g.MidTicks - spread + uint64(g.rng.Int63n(int64(2*spread+1)))
	price = max(price-price%m.TickSize, m.TickSize)
	amount := (1 + uint64(g.rng.Intn(20))) * m.LotSize
	amount = min(max(amount, m.MinOrderSize), m.MaxOrderSize)

	tx, err := g.Order(m, crypto.OrderPlaintext{
		Side:   uint8(g.rng.Intn(2)),
		Price:  price,
		Amount: amount,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(tx)
}

// SealAndSign builds a complete order transaction: the plaintext is sealed
// to mxePub bound to (symbol, owner, nonce) and the envelope is signed.
func SealAndSign(signer *crypto.Signer, e *crypto.EIP712Signer, mxePub []byte, symbol string, nonce, deadline uint64, p crypto.OrderPlaintext) (*transaction.SignedTransaction, error) {
	aad := crypto.OrderAAD(symbol, signer.Address(), nonce)
	enc, ct, err := crypto.SealOrder(mxePub, p, aad)
	if err != nil {
		return nil, err
	}

	order := &crypto.SealedOrderEIP712{
		Symbol:      symbol,
		PayloadHash: crypto.PayloadHash(enc, ct),
		Nonce:       new(big.Int).SetUint64(nonce),
		Deadline:    new(big.Int).SetUint64(deadline),
		Owner:       signer.Address(),
	}
	sig, err := e.SignOrder(signer, order)
	if err != nil {
		return nil, err
	}

	return &transaction.SignedTransaction{
		Type: transaction.TxTypeOrder,
		Order: &transaction.SealedOrderPayload{
			Symbol:     symbol,
			Enc:        hexutil.Encode(enc),
			Ciphertext: hexutil.Encode(ct),
			Nonce:      order.Nonce.String(),
			Deadline:   order.Deadline.String(),
			Owner:      signer.Address().Hex(),
		},
		Signature: hexutil.Encode(sig),
	}, nil
}
