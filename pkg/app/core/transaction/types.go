package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/darkpool/pkg/crypto"
)

// ErrInvalidTransaction wraps every envelope validation failure.
var ErrInvalidTransaction = errors.New("invalid transaction")

type TxType string

const (
	TxTypeOrder  TxType = "order"  // sealed order (signed)
	TxTypeMatch  TxType = "match"  // trigger a matching pass
	TxTypeSettle TxType = "settle" // mark one match settled
)

// SignedTransaction is the JSON envelope accepted by the node and its mempool.
type SignedTransaction struct {
	Type      TxType              `json:"type"`
	Order     *SealedOrderPayload `json:"order,omitempty"`
	Match     *MatchPayload       `json:"match,omitempty"`
	Settle    *SettlePayload      `json:"settle,omitempty"`
	Signature string              `json:"signature,omitempty"`
}

// SealedOrderPayload carries an HPKE-sealed order. Side, price and amount
// exist only inside Ciphertext.
type SealedOrderPayload struct {
	Symbol     string `json:"symbol"`
	Enc        string `json:"enc"`        // 0x-hex HPKE encapsulated key
	Ciphertext string `json:"ciphertext"` // 0x-hex
	Nonce      string `json:"nonce"`      // decimal
	Deadline   string `json:"deadline"`   // unix seconds, 0 = no expiry
	Owner      string `json:"owner"`      // 0x address
}

type MatchPayload struct {
	Symbol string `json:"symbol"`
}

type SettlePayload struct {
	BatchID string `json:"batchId"`
	MatchID uint64 `json:"matchId"`
}

// Sealed returns the decoded HPKE parts.
func (o *SealedOrderPayload) Sealed() (enc, ciphertext []byte, err error) {
	if enc, err = hexutil.Decode(o.Enc); err != nil {
		return nil, nil, fmt.Errorf("invalid enc: %w", err)
	}
	if ciphertext, err = hexutil.Decode(o.Ciphertext); err != nil {
		return nil, nil, fmt.Errorf("invalid ciphertext: %w", err)
	}
	return enc, ciphertext, nil
}

// NonceUint64 parses the nonce; it must fit in 64 bits because it is bound
// into the sealed payload's associated data.
func (o *SealedOrderPayload) NonceUint64() (uint64, error) {
	n, ok := new(big.Int).SetString(o.Nonce, 10)
	if !ok || !n.IsUint64() {
		return 0, fmt.Errorf("invalid nonce: %s", o.Nonce)
	}
	return n.Uint64(), nil
}

func (o *SealedOrderPayload) ToEIP712Order() (*crypto.SealedOrderEIP712, error) {
	enc, ct, err := o.Sealed()
	if err != nil {
		return nil, err
	}
	nonce, ok := new(big.Int).SetString(o.Nonce, 10)
	if !ok {
		return nil, fmt.Errorf("invalid nonce: %s", o.Nonce)
	}
	deadline, ok := new(big.Int).SetString(o.Deadline, 10)
	if !ok {
		return nil, fmt.Errorf("invalid deadline: %s", o.Deadline)
	}
	if !common.IsHexAddress(o.Owner) {
		return nil, fmt.Errorf("invalid owner: %s", o.Owner)
	}
	return &crypto.SealedOrderEIP712{
		Symbol:      o.Symbol,
		PayloadHash: crypto.PayloadHash(enc, ct),
		Nonce:       nonce,
		Deadline:    deadline,
		Owner:       common.HexToAddress(o.Owner),
	}, nil
}

func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

func Deserialize(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	return &tx, nil
}

// Validate checks envelope structure only; signatures are checked by Verifier.
func (tx *SignedTransaction) Validate() error {
	switch tx.Type {
	case TxTypeOrder:
		if tx.Order == nil {
			return fmt.Errorf("%w: order type requires order payload", ErrInvalidTransaction)
		}
		if tx.Order.Symbol == "" {
			return fmt.Errorf("%w: missing order symbol", ErrInvalidTransaction)
		}
		if tx.Order.Owner == "" {
			return fmt.Errorf("%w: missing order owner", ErrInvalidTransaction)
		}
		if tx.Order.Enc == "" || tx.Order.Ciphertext == "" {
			return fmt.Errorf("%w: missing sealed payload", ErrInvalidTransaction)
		}
		if tx.Signature == "" {
			return fmt.Errorf("%w: missing signature", ErrInvalidTransaction)
		}
	case TxTypeSettle:
		if tx.Settle == nil || tx.Settle.BatchID == "" {
			return fmt.Errorf("%w: settle type requires batch id", ErrInvalidTransaction)
		}
	case TxTypeMatch:
		if tx.Match == nil || tx.Match.Symbol == "" {
			return fmt.Errorf("%w: match type requires symbol", ErrInvalidTransaction)
		}
	case "":
		return fmt.Errorf("%w: missing transaction type", ErrInvalidTransaction)
	default:
		return fmt.Errorf("%w: unknown type %s", ErrInvalidTransaction, tx.Type)
	}
	return nil
}

// ParseTransaction deserializes and validates a JSON transaction.
func ParseTransaction(data []byte) (*SignedTransaction, error) {
	tx, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// Example sealed order:
//   {
//     "type": "order",
//     "order": {
//       "symbol": "SOL-USDC",
//       "enc": "0x5f1c...",
//       "ciphertext": "0x9a0e...",
//       "nonce": "42",
//       "deadline": "0",
//       "owner": "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"
//     },
//     "signature": "0x1234567890abcdef..."
//   }
