package crypto

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds a secp256k1 key used by order owners to authenticate
// sealed submissions.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func GenerateKey() (*Signer, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return newSigner(privateKey), nil
}

// FromPrivateKeyHex loads a 64-char hex key, with or without 0x.
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	if len(hexKey) > 1 && hexKey[0] == '0' && (hexKey[1] == 'x' || hexKey[1] == 'X') {
		hexKey = hexKey[2:]
	}
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return newSigner(privateKey), nil
}

func newSigner(pk *ecdsa.PrivateKey) *Signer {
	return &Signer{privateKey: pk, address: crypto.PubkeyToAddress(pk.PublicKey)}
}

func (s *Signer) Address() common.Address {
	return s.address
}

// Identity is the address left-padded to the 32-byte owner token the book
// carries.
func (s *Signer) Identity() [32]byte {
	return IdentityFromAddress(s.address)
}

// PrivateKeyHex returns the key without 0x. Never log it.
func (s *Signer) PrivateKeyHex() string {
	return fmt.Sprintf("%x", crypto.FromECDSA(s.privateKey))
}

// Sign returns a 65-byte [R || S || V] signature over a 32-byte hash.
func (s *Signer) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}

// SignMessage hashes message with Keccak256 and signs the digest.
func (s *Signer) SignMessage(message []byte) ([]byte, error) {
	return s.Sign(crypto.Keccak256(message))
}

func VerifySignature(address common.Address, hash []byte, signature []byte) bool {
	recovered, err := RecoverAddress(hash, signature)
	return err == nil && recovered == address
}

func RecoverAddress(hash []byte, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}
	if len(hash) != 32 {
		return common.Address{}, fmt.Errorf("invalid hash length: %d", len(hash))
	}

	pub, err := crypto.SigToPub(hash, signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func IdentityFromAddress(addr common.Address) [32]byte {
	return common.BytesToHash(addr.Bytes())
}

// AddressFromIdentity reverses IdentityFromAddress. It fails when the top
// 12 bytes are not zero.
func AddressFromIdentity(id [32]byte) (common.Address, error) {
	for _, b := range id[:12] {
		if b != 0 {
			return common.Address{}, fmt.Errorf("identity %x is not an address", id)
		}
	}
	return common.BytesToAddress(id[12:]), nil
}
