package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema:
//
//	book:{symbol}             -> sealed book snapshot
//	state:{symbol}            -> BookState (JSON)
//	batch:{batchID}           -> BatchRecord (JSON)
//	bidx:{symbol}:{batchID}   -> empty; batch ids are xids so the index
//	                             iterates in creation order
//	nonce:{address}           -> highest accepted order nonce (u64 BE)
const (
	prefixBook       = "book:"
	prefixState      = "state:"
	prefixBatch      = "batch:"
	prefixBatchIndex = "bidx:"
	prefixNonce      = "nonce:"
)

func bookKey(symbol string) []byte {
	return []byte(prefixBook + symbol)
}

func stateKey(symbol string) []byte {
	return []byte(prefixState + symbol)
}

func batchKey(batchID string) []byte {
	return []byte(prefixBatch + batchID)
}

func batchIndexKey(symbol, batchID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBatchIndex, symbol, batchID))
}

func batchIndexPrefix(symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixBatchIndex, symbol))
}

func nonceKey(owner common.Address) []byte {
	return []byte(prefixNonce + owner.Hex())
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
