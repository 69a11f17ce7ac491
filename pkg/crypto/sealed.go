package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/hpke"
	"github.com/cloudflare/circl/kem"
)

// Orders are sealed to the MXE public key with HPKE base mode:
// X25519 + HKDF-SHA256 + ChaCha20-Poly1305.
var suite = hpke.NewSuite(hpke.KEM_X25519_HKDF_SHA256, hpke.KDF_HKDF_SHA256, hpke.AEAD_ChaCha20Poly1305)

var hpkeInfo = []byte("darkpool/order/v1")

const plaintextSize = 1 + 8 + 8

var ErrSealedPayload = errors.New("invalid sealed payload")

// OrderPlaintext is the confidential part of an order. Everything else
// (owner, market, id, timestamp) is supplied by the boundary.
type OrderPlaintext struct {
	Side   uint8
	Price  uint64
	Amount uint64
}

func (p OrderPlaintext) marshal() []byte {
	buf := make([]byte, plaintextSize)
	buf[0] = p.Side
	binary.BigEndian.PutUint64(buf[1:9], p.Price)
	binary.BigEndian.PutUint64(buf[9:17], p.Amount)
	return buf
}

func unmarshalPlaintext(b []byte) (OrderPlaintext, error) {
	if len(b) != plaintextSize {
		return OrderPlaintext{}, fmt.Errorf("%w: plaintext is %d bytes", ErrSealedPayload, len(b))
	}
	return OrderPlaintext{
		Side:   b[0],
		Price:  binary.BigEndian.Uint64(b[1:9]),
		Amount: binary.BigEndian.Uint64(b[9:17]),
	}, nil
}

// MXEKey is the node's decryption key. Only the boundary holds it.
type MXEKey struct {
	pk kem.PublicKey
	sk kem.PrivateKey
}

func GenerateMXEKey() (*MXEKey, error) {
	pk, sk, err := hpke.KEM_X25519_HKDF_SHA256.Scheme().GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate MXE key: %w", err)
	}
	return &MXEKey{pk: pk, sk: sk}, nil
}

// MXEKeyFromSeed derives the key pair deterministically from a 32-byte seed.
func MXEKeyFromSeed(seed []byte) (*MXEKey, error) {
	scheme := hpke.KEM_X25519_HKDF_SHA256.Scheme()
	if len(seed) != scheme.SeedSize() {
		return nil, fmt.Errorf("MXE seed must be %d bytes, got %d", scheme.SeedSize(), len(seed))
	}
	pk, sk := scheme.DeriveKeyPair(seed)
	return &MXEKey{pk: pk, sk: sk}, nil
}

func (k *MXEKey) PublicKeyBytes() []byte {
	b, _ := k.pk.MarshalBinary()
	return b
}

// SealOrder encrypts p to the MXE public key. aad binds the ciphertext to
// its envelope (see OrderAAD); the receiver must present the same bytes.
func SealOrder(mxePub []byte, p OrderPlaintext, aad []byte) (enc, ciphertext []byte, err error) {
	pk, err := hpke.KEM_X25519_HKDF_SHA256.Scheme().UnmarshalBinaryPublicKey(mxePub)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid MXE public key: %w", err)
	}
	sender, err := suite.NewSender(pk, hpkeInfo)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke sender: %w", err)
	}
	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke setup: %w", err)
	}
	ciphertext, err = sealer.Seal(p.marshal(), aad)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke seal: %w", err)
	}
	return enc, ciphertext, nil
}

func (k *MXEKey) OpenOrder(enc, ciphertext, aad []byte) (OrderPlaintext, error) {
	receiver, err := suite.NewReceiver(k.sk, hpkeInfo)
	if err != nil {
		return OrderPlaintext{}, fmt.Errorf("hpke receiver: %w", err)
	}
	opener, err := receiver.Setup(enc)
	if err != nil {
		return OrderPlaintext{}, fmt.Errorf("%w: %v", ErrSealedPayload, err)
	}
	pt, err := opener.Open(ciphertext, aad)
	if err != nil {
		return OrderPlaintext{}, fmt.Errorf("%w: %v", ErrSealedPayload, err)
	}
	return unmarshalPlaintext(pt)
}

// OrderAAD is the associated data binding a sealed order to its market,
// owner and nonce.
func OrderAAD(symbol string, owner [20]byte, nonce uint64) []byte {
	aad := make([]byte, 0, len(symbol)+20+8)
	aad = append(aad, symbol...)
	aad = append(aad, owner[:]...)
	return binary.BigEndian.AppendUint64(aad, nonce)
}
