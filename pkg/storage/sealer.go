package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var ErrSealed = errors.New("sealed value failed authentication")

// Sealer encrypts book snapshots at rest with XChaCha20-Poly1305. The key is
// derived from the MXE secret with HKDF-SHA256 so the HPKE key and the
// snapshot key never coincide.
type Sealer struct {
	key [chacha20poly1305.KeySize]byte
}

func NewSealer(secret []byte) (*Sealer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("sealer secret must be at least 32 bytes, got %d", len(secret))
	}
	s := &Sealer{}
	r := hkdf.New(sha256.New, secret, nil, []byte("darkpool/book-snapshot/v1"))
	if _, err := io.ReadFull(r, s.key[:]); err != nil {
		return nil, fmt.Errorf("derive snapshot key: %w", err)
	}
	return s, nil
}

// Seal returns nonce || ciphertext. aad is typically the storage key, which
// stops a snapshot from being replayed under another market.
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key[:])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

func (s *Sealer) Open(sealed, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key[:])
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: too short", ErrSealed)
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealed, err)
	}
	return pt, nil
}
