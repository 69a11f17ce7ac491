package transaction

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/darkpool/pkg/crypto"
)

type Verifier struct {
	eip712Signer *crypto.EIP712Signer
}

func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{eip712Signer: crypto.NewEIP712Signer(domain)}
}

// VerifyOrderTransaction checks that the owner signed the sealed payload.
// Returns (owner address, valid, error).
func (v *Verifier) VerifyOrderTransaction(tx *SignedTransaction) (common.Address, bool, error) {
	if tx.Type != TxTypeOrder {
		return common.Address{}, false, fmt.Errorf("not an order transaction")
	}
	if tx.Order == nil {
		return common.Address{}, false, fmt.Errorf("missing order payload")
	}

	order, err := tx.Order.ToEIP712Order()
	if err != nil {
		return common.Address{}, false, fmt.Errorf("invalid order format: %w", err)
	}
	sig, err := crypto.DecodeSignature(tx.Signature)
	if err != nil {
		return common.Address{}, false, err
	}

	valid, err := v.eip712Signer.VerifyOrderSignature(order, sig)
	if err != nil {
		return common.Address{}, false, fmt.Errorf("signature verification failed: %w", err)
	}
	if !valid {
		return common.Address{}, false, fmt.Errorf("signature invalid")
	}
	return order.Owner, true, nil
}
