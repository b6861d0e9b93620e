package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
)

// PebbleStorage persists the key space in a pebble store. Transactions are
// indexed batches: reads observe the batch's own writes, and Commit applies
// the batch atomically with a synced WAL write.
type PebbleStorage struct {
	mu sync.Mutex
	db *pebble.DB
}

// OpenPebble opens (or creates) a store at path.
func OpenPebble(path string) (*PebbleStorage, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble store: %w", err)
	}
	return &PebbleStorage{db: db}, nil
}

// Begin starts the single writer; it holds the store lock until Commit or
// Rollback.
func (s *PebbleStorage) Begin() (*Transaction, error) {
	s.mu.Lock()
	return newTransaction(&pebbleTx{store: s, batch: s.db.NewIndexedBatch()}), nil
}

// Close closes the underlying store.
func (s *PebbleStorage) Close() error {
	return s.db.Close()
}

type pebbleTx struct {
	store *PebbleStorage
	batch *pebble.Batch
	done  bool
}

func (tx *pebbleTx) Get(key []byte) ([]byte, error) {
	value, closer, err := tx.batch.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	out := append([]byte(nil), value...)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (tx *pebbleTx) Set(key, value []byte) error {
	return tx.batch.Set(key, value, nil)
}

func (tx *pebbleTx) Delete(key []byte) error {
	return tx.batch.Delete(key, nil)
}

func (tx *pebbleTx) NewIter(min, max []byte) (Iterator, error) {
	// Pebble's upper bound is exclusive; one extra zero byte makes it
	// inclusive of max itself.
	upper := make([]byte, 0, len(max)+1)
	upper = append(upper, max...)
	upper = append(upper, 0x00)
	iter, err := tx.batch.NewIter(&pebble.IterOptions{LowerBound: min, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	return &pebbleIter{iter: iter}, nil
}

func (tx *pebbleTx) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true
	defer tx.store.mu.Unlock()
	if err := tx.batch.Commit(pebble.Sync); err != nil {
		return err
	}
	return tx.batch.Close()
}

func (tx *pebbleTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	defer tx.store.mu.Unlock()
	return tx.batch.Close()
}

type pebbleIter struct {
	iter *pebble.Iterator
}

func (it *pebbleIter) First() bool   { return it.iter.First() }
func (it *pebbleIter) Next() bool    { return it.iter.Next() }
func (it *pebbleIter) Valid() bool   { return it.iter.Valid() }
func (it *pebbleIter) Key() []byte   { return it.iter.Key() }
func (it *pebbleIter) Value() []byte { return it.iter.Value() }
func (it *pebbleIter) Error() error  { return it.iter.Error() }
func (it *pebbleIter) Close() error  { return it.iter.Close() }
