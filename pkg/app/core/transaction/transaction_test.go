package transaction

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/darkpool/pkg/crypto"
)

func signedOrder(t *testing.T, signer *crypto.Signer) *SignedTransaction {
	t.Helper()
	mxe, err := crypto.GenerateMXEKey()
	if err != nil {
		t.Fatalf("GenerateMXEKey: %v", err)
	}
	aad := crypto.OrderAAD("SOL-USDC", signer.Address(), 1)
	enc, ct, err := crypto.SealOrder(mxe.PublicKeyBytes(), crypto.OrderPlaintext{Side: 0, Price: 100, Amount: 5}, aad)
	if err != nil {
		t.Fatalf("SealOrder: %v", err)
	}

	payload := &SealedOrderPayload{
		Symbol:     "SOL-USDC",
		Enc:        hexutil.Encode(enc),
		Ciphertext: hexutil.Encode(ct),
		Nonce:      "1",
		Deadline:   "0",
		Owner:      signer.Address().Hex(),
	}
	eip, err := payload.ToEIP712Order()
	if err != nil {
		t.Fatalf("ToEIP712Order: %v", err)
	}
	sig, err := crypto.NewEIP712Signer(crypto.DefaultDomain()).SignOrder(signer, eip)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	return &SignedTransaction{Type: TxTypeOrder, Order: payload, Signature: hexutil.Encode(sig)}
}

func TestVerifyOrderTransaction(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	tx := signedOrder(t, signer)
	v := NewVerifier(crypto.DefaultDomain())

	owner, ok, err := v.VerifyOrderTransaction(tx)
	if err != nil || !ok {
		t.Fatalf("VerifyOrderTransaction = %v, %v", ok, err)
	}
	if owner != signer.Address() {
		t.Errorf("owner = %s, want %s", owner.Hex(), signer.Address().Hex())
	}

	// claiming someone else's order
	other, _ := crypto.GenerateKey()
	tx.Order.Owner = other.Address().Hex()
	if _, ok, _ := v.VerifyOrderTransaction(tx); ok {
		t.Error("signature accepted for a different owner")
	}
}

func TestVerifyOrderTransaction_TamperedCiphertext(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	tx := signedOrder(t, signer)
	ct := []byte(tx.Order.Ciphertext)
	if ct[2] == 'a' {
		ct[2] = 'b'
	} else {
		ct[2] = 'a'
	}
	tx.Order.Ciphertext = string(ct)

	if _, ok, _ := NewVerifier(crypto.DefaultDomain()).VerifyOrderTransaction(tx); ok {
		t.Error("signature accepted over a modified ciphertext")
	}
}

func TestParseTransaction(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"match", `{"type":"match","match":{"symbol":"SOL-USDC"}}`, ""},
		{"match without symbol", `{"type":"match"}`, "requires symbol"},
		{"settle", `{"type":"settle","settle":{"batchId":"b1","matchId":2}}`, ""},
		{"settle without batch", `{"type":"settle"}`, "batch id"},
		{"order without payload", `{"type":"order","signature":"0x00"}`, "order payload"},
		{"order without signature", `{"type":"order","order":{"symbol":"S","owner":"0x1","enc":"0x1","ciphertext":"0x1"}}`, "missing signature"},
		{"unknown", `{"type":"cancel"}`, "unknown type cancel"},
		{"missing type", `{}`, "missing transaction type"},
		{"not json", `O:GTC`, "invalid transaction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTransaction([]byte(tt.raw))
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidTransaction) {
				t.Errorf("err = %v, want ErrInvalidTransaction", err)
			}
		})
	}
}

func TestNonceUint64(t *testing.T) {
	p := &SealedOrderPayload{Nonce: new(big.Int).Lsh(big.NewInt(1), 64).String()}
	if _, err := p.NonceUint64(); err == nil {
		t.Error("2^64 nonce accepted")
	}
	p.Nonce = "18446744073709551615"
	if n, err := p.NonceUint64(); err != nil || n != 1<<64-1 {
		t.Errorf("NonceUint64 = %d, %v", n, err)
	}
}
