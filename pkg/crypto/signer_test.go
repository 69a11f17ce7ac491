package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
)

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	if signer.Address() == (common.Address{}) {
		t.Error("generated zero address")
	}
	if len(signer.PrivateKeyHex()) != 64 {
		t.Errorf("private key hex length = %d, want 64", len(signer.PrivateKeyHex()))
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	signer1, _ := GenerateKey()
	privHex := signer1.PrivateKeyHex()

	for _, in := range []string{privHex, "0x" + privHex} {
		signer2, err := FromPrivateKeyHex(in)
		if err != nil {
			t.Fatalf("FromPrivateKeyHex(%q): %v", in[:4], err)
		}
		if signer2.Address() != signer1.Address() {
			t.Errorf("address = %s, want %s", signer2.Address().Hex(), signer1.Address().Hex())
		}
	}
	if _, err := FromPrivateKeyHex("zz"); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestSignAndVerify(t *testing.T) {
	signer, _ := GenerateKey()
	message := []byte("sealed order")

	signature, err := signer.SignMessage(message)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if len(signature) != 65 {
		t.Errorf("signature length = %d, want 65", len(signature))
	}

	hash := eth_crypto.Keccak256Hash(message).Bytes()
	if !VerifySignature(signer.Address(), hash, signature) {
		t.Error("signature verification failed")
	}
	wrongAddr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	if VerifySignature(wrongAddr, hash, signature) {
		t.Error("signature should not verify with wrong address")
	}
	if VerifySignature(signer.Address(), hash, []byte{1, 2, 3}) {
		t.Error("short signature should not verify")
	}
	if VerifySignature(signer.Address(), []byte("short"), signature) {
		t.Error("short hash should not verify")
	}
}

func TestIdentityRoundTrip(t *testing.T) {
	signer, _ := GenerateKey()
	id := signer.Identity()
	for i := 0; i < 12; i++ {
		if id[i] != 0 {
			t.Fatalf("identity not left-padded: %x", id)
		}
	}
	addr, err := AddressFromIdentity(id)
	if err != nil || addr != signer.Address() {
		t.Errorf("AddressFromIdentity = %s, %v", addr.Hex(), err)
	}
	id[0] = 1
	if _, err := AddressFromIdentity(id); err == nil {
		t.Error("expected error for non-address identity")
	}
}

func TestEIP712_SignAndVerify(t *testing.T) {
	signer, _ := GenerateKey()
	e := NewEIP712Signer(DefaultDomain())

	order := &SealedOrderEIP712{
		Symbol:      "SOL-USDC",
		PayloadHash: PayloadHash([]byte("enc"), []byte("ct")),
		Nonce:       big.NewInt(7),
		Deadline:    big.NewInt(0),
		Owner:       signer.Address(),
	}
	sig, err := e.SignOrder(signer, order)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}

	ok, err := e.VerifyOrderSignature(order, sig)
	if err != nil || !ok {
		t.Fatalf("VerifyOrderSignature = %v, %v", ok, err)
	}

	tampered := *order
	tampered.PayloadHash = PayloadHash([]byte("enc"), []byte("other"))
	if ok, _ := e.VerifyOrderSignature(&tampered, sig); ok {
		t.Error("signature verified over a different payload")
	}

	other := NewEIP712Signer(EIP712Domain{Name: "DarkPool", Version: "1", ChainID: big.NewInt(1)})
	if ok, _ := other.VerifyOrderSignature(order, sig); ok {
		t.Error("signature verified under a different chain id")
	}

	if _, err := e.OrderToJSON(order); err != nil {
		t.Errorf("OrderToJSON: %v", err)
	}
}

func TestDecodeSignature(t *testing.T) {
	sig := make([]byte, 65)
	sig[64] = 1
	hexSig := common.Bytes2Hex(sig)

	tests := []struct {
		in      string
		wantErr bool
	}{
		{hexSig, false},
		{"0x" + hexSig, false},
		{"0x1234", true},
		{"not-hex", true},
	}
	for _, tt := range tests {
		_, err := DecodeSignature(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("DecodeSignature(%.8q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}
