package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain separates signatures between deployments.
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// SealedOrderEIP712 is what an owner signs. Price, amount and side travel
// only inside the sealed payload, so the signature binds to its hash.
type SealedOrderEIP712 struct {
	Symbol      string
	PayloadHash common.Hash // keccak256(enc || ciphertext)
	Nonce       *big.Int
	Deadline    *big.Int // unix seconds, 0 = no expiry
	Owner       common.Address
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

var sealedOrderType = []apitypes.Type{
	{Name: "symbol", Type: "string"},
	{Name: "payloadHash", Type: "bytes32"},
	{Name: "nonce", Type: "uint256"},
	{Name: "deadline", Type: "uint256"},
	{Name: "owner", Type: "address"},
}

type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

func DefaultDomain() EIP712Domain {
	return EIP712Domain{
		Name:              "DarkPool",
		Version:           "1",
		ChainID:           big.NewInt(1337),
		VerifyingContract: common.Address{},
	}
}

// PayloadHash commits to the HPKE encapsulated key and ciphertext.
func PayloadHash(enc, ciphertext []byte) common.Hash {
	return crypto.Keccak256Hash(enc, ciphertext)
}

func (e *EIP712Signer) typedData(order *SealedOrderEIP712) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			"SealedOrder":  sealedOrderType,
		},
		PrimaryType: "SealedOrder",
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"symbol":      order.Symbol,
			"payloadHash": order.PayloadHash.Hex(),
			"nonce":       order.Nonce.String(),
			"deadline":    order.Deadline.String(),
			"owner":       order.Owner.Hex(),
		},
	}
}

// HashOrder returns keccak256("\x19\x01" || domainSeparator || structHash).
func (e *EIP712Signer) HashOrder(order *SealedOrderEIP712) ([]byte, error) {
	if order.Nonce == nil || order.Deadline == nil {
		return nil, fmt.Errorf("nonce and deadline are required")
	}
	td := e.typedData(order)

	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	structHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	raw := make([]byte, 0, 66)
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator...)
	raw = append(raw, structHash...)
	return crypto.Keccak256(raw), nil
}

func (e *EIP712Signer) SignOrder(signer *Signer, order *SealedOrderEIP712) ([]byte, error) {
	hash, err := e.HashOrder(order)
	if err != nil {
		return nil, fmt.Errorf("failed to hash order: %w", err)
	}
	return signer.Sign(hash)
}

// VerifyOrderSignature reports whether signature was produced by order.Owner.
func (e *EIP712Signer) VerifyOrderSignature(order *SealedOrderEIP712, signature []byte) (bool, error) {
	hash, err := e.HashOrder(order)
	if err != nil {
		return false, fmt.Errorf("failed to hash order: %w", err)
	}
	recovered, err := RecoverAddress(hash, signature)
	if err != nil {
		return false, fmt.Errorf("failed to recover address: %w", err)
	}
	return recovered == order.Owner, nil
}

// OrderToJSON renders the typed data for eth_signTypedData_v4 wallets.
func (e *EIP712Signer) OrderToJSON(order *SealedOrderEIP712) (string, error) {
	td := e.typedData(order)
	out, err := json.MarshalIndent(struct {
		Types       apitypes.Types            `json:"types"`
		PrimaryType string                    `json:"primaryType"`
		Domain      map[string]interface{}    `json:"domain"`
		Message     apitypes.TypedDataMessage `json:"message"`
	}{
		Types:       td.Types,
		PrimaryType: td.PrimaryType,
		Domain: map[string]interface{}{
			"name":              e.domain.Name,
			"version":           e.domain.Version,
			"chainId":           e.domain.ChainID.String(),
			"verifyingContract": e.domain.VerifyingContract.Hex(),
		},
		Message: td.Message,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(out), nil
}

// DecodeSignature accepts a 65-byte hex signature with or without 0x.
func DecodeSignature(sig string) ([]byte, error) {
	if len(sig) < 2 || sig[:2] != "0x" {
		sig = "0x" + sig
	}
	b, err := hexutil.Decode(sig)
	if err != nil {
		return nil, fmt.Errorf("invalid hex signature: %w", err)
	}
	if len(b) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(b))
	}
	return b, nil
}
