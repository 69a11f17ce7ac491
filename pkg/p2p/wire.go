package p2p

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/uhyunpark/darkpool/pkg/storage"
)

const wireVersion = 1

func init() {
	gob.Register(BatchWire{})
}

// BatchWire is one attested batch announcement on the gossip topic.
type BatchWire struct {
	Version uint8
	Origin  []byte // attestation pubkey of the publishing node
	Record  []byte // gob-encoded storage.BatchRecord
}

func encodeBatch(origin []byte, rec *storage.BatchRecord) ([]byte, error) {
	rb, err := gobEncode(rec)
	if err != nil {
		return nil, err
	}
	return gobEncode(BatchWire{Version: wireVersion, Origin: origin, Record: rb})
}

func decodeBatch(data []byte) (*BatchWire, *storage.BatchRecord, error) {
	var w BatchWire
	if err := gobDecode(data, &w); err != nil {
		return nil, nil, err
	}
	if w.Version != wireVersion {
		return nil, nil, fmt.Errorf("unsupported wire version %d", w.Version)
	}
	var rec storage.BatchRecord
	if err := gobDecode(w.Record, &rec); err != nil {
		return nil, nil, err
	}
	return &w, &rec, nil
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
