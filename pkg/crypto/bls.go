package crypto

import (
	"fmt"

	bls "github.com/cloudflare/circl/sign/bls"
)

type scheme = bls.KeyG1SigG2

type BLSPubKey = bls.PublicKey[scheme]

// BLSSigner attests match batches. Settlement checks the signature against
// the batch digest before paying out.
type BLSSigner struct {
	sk *bls.PrivateKey[scheme]
	pk *BLSPubKey
}

// NewBLSSignerFromSeed needs at least 32 bytes of seed material.
func NewBLSSignerFromSeed(seed []byte) (*BLSSigner, error) {
	sk, err := bls.KeyGen[scheme](seed, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("bls keygen: %w", err)
	}
	return &BLSSigner{sk: sk, pk: sk.PublicKey()}, nil
}

func (s *BLSSigner) Pubkey() *BLSPubKey { return s.pk }

func (s *BLSSigner) PubkeyBytes() []byte {
	b, _ := s.pk.MarshalBinary()
	return b
}

func (s *BLSSigner) Sign(msg []byte) []byte {
	return bls.Sign(s.sk, msg)
}

func Verify(pk *BLSPubKey, sigBytes, msg []byte) bool {
	return bls.Verify(pk, msg, bls.Signature(sigBytes))
}

// VerifyWithPubkeyBytes is Verify for a serialized public key.
func VerifyWithPubkeyBytes(pkBytes, sigBytes, msg []byte) bool {
	pk := new(BLSPubKey)
	if err := pk.UnmarshalBinary(pkBytes); err != nil {
		return false
	}
	return Verify(pk, sigBytes, msg)
}
