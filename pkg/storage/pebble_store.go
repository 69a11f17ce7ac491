package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/darkpool/pkg/app/core/orderbook"
)

var ErrNotFound = errors.New("not found")

// PebbleStore persists sealed books, their bookkeeping and batch records.
// Every multi-key update goes through a single pebble batch.
type PebbleStore struct {
	db     *pebble.DB
	sealer *Sealer
}

func NewPebbleStore(path string, sealer *Sealer) (*PebbleStore, error) {
	if sealer == nil {
		return nil, fmt.Errorf("pebble store requires a sealer")
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db, sealer: sealer}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// LoadBook returns the persisted book for symbol, or an empty book of the
// given capacity when none exists yet.
func (s *PebbleStore) LoadBook(symbol string, capacity int) (*orderbook.OrderBook, error) {
	key := bookKey(symbol)
	data, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return orderbook.New(capacity)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	defer closer.Close()

	plain, err := s.sealer.Open(data, key)
	if err != nil {
		return nil, fmt.Errorf("failed to open book %s: %w", symbol, err)
	}
	return DecodeBook(plain)
}

func (s *PebbleStore) LoadState(symbol string) (BookState, error) {
	var st BookState
	data, closer, err := s.db.Get(stateKey(symbol))
	if err == pebble.ErrNotFound {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("failed to get state: %w", err)
	}
	defer closer.Close()

	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return st, nil
}

// SaveBook commits a book and its bookkeeping together.
func (s *PebbleStore) SaveBook(symbol string, book *orderbook.OrderBook, st BookState) error {
	b := s.db.NewBatch()
	defer b.Close()

	if err := s.putBook(b, symbol, book, st); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit book: %w", err)
	}
	return nil
}

// SaveSubmission commits the book after an accepted order together with
// the owner's consumed nonce.
func (s *PebbleStore) SaveSubmission(symbol string, book *orderbook.OrderBook, st BookState, owner common.Address, nonce uint64) error {
	b := s.db.NewBatch()
	defer b.Close()

	if err := s.putBook(b, symbol, book, st); err != nil {
		return err
	}
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], nonce)
	if err := b.Set(nonceKey(owner), v[:], nil); err != nil {
		return fmt.Errorf("failed to stage nonce: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit submission: %w", err)
	}
	return nil
}

// LoadNonce returns the highest accepted nonce for owner, 0 if none.
func (s *PebbleStore) LoadNonce(owner common.Address) (uint64, error) {
	data, closer, err := s.db.Get(nonceKey(owner))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get nonce: %w", err)
	}
	defer closer.Close()
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt nonce for %s", owner.Hex())
	}
	return binary.BigEndian.Uint64(data), nil
}

// CommitBatch writes the post-match book, bookkeeping and the batch record
// atomically. Nothing is visible if any write fails.
func (s *PebbleStore) CommitBatch(symbol string, book *orderbook.OrderBook, st BookState, rec *BatchRecord) error {
	b := s.db.NewBatch()
	defer b.Close()

	if err := s.putBook(b, symbol, book, st); err != nil {
		return err
	}
	if err := putBatch(b, rec); err != nil {
		return err
	}
	if err := b.Set(batchIndexKey(rec.Symbol, rec.ID), nil, nil); err != nil {
		return fmt.Errorf("failed to index batch: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (s *PebbleStore) putBook(b *pebble.Batch, symbol string, book *orderbook.OrderBook, st BookState) error {
	key := bookKey(symbol)
	sealed, err := s.sealer.Seal(EncodeBook(book), key)
	if err != nil {
		return fmt.Errorf("failed to seal book: %w", err)
	}
	if err := b.Set(key, sealed, nil); err != nil {
		return fmt.Errorf("failed to stage book: %w", err)
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := b.Set(stateKey(symbol), data, nil); err != nil {
		return fmt.Errorf("failed to stage state: %w", err)
	}
	return nil
}

func putBatch(b *pebble.Batch, rec *BatchRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}
	if err := b.Set(batchKey(rec.ID), data, nil); err != nil {
		return fmt.Errorf("failed to stage batch: %w", err)
	}
	return nil
}

// SaveBatch overwrites an existing batch record (settlement updates).
func (s *PebbleStore) SaveBatch(rec *BatchRecord) error {
	b := s.db.NewBatch()
	defer b.Close()
	if err := putBatch(b, rec); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (s *PebbleStore) GetBatch(batchID string) (*BatchRecord, error) {
	data, closer, err := s.db.Get(batchKey(batchID))
	if err == pebble.ErrNotFound {
		return nil, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	defer closer.Close()

	var rec BatchRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch: %w", err)
	}
	return &rec, nil
}

// RecentBatches returns up to limit batch ids for symbol, newest first.
func (s *PebbleStore) RecentBatches(symbol string, limit int) ([]string, error) {
	prefix := batchIndexPrefix(symbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var ids []string
	for iter.Last(); iter.Valid() && len(ids) < limit; iter.Prev() {
		ids = append(ids, string(iter.Key()[len(prefix):]))
	}
	return ids, iter.Error()
}
