package storage

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

// MemoryStorage is an ordered in-memory store for tests and ephemeral
// databases. Transactions work on a copy-on-write clone of the tree;
// committing publishes the clone, so readers of the previous tree are never
// disturbed and a rolled-back transaction leaves no trace.
type MemoryStorage struct {
	mu   sync.Mutex
	tree *btree.BTreeG[kvItem]
}

type kvItem struct {
	key   []byte
	value []byte
}

func lessItem(a, b kvItem) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{tree: btree.NewG(32, lessItem)}
}

// Begin starts the single writer; it holds the store lock until Commit or
// Rollback.
func (s *MemoryStorage) Begin() (*Transaction, error) {
	s.mu.Lock()
	tx := &memoryTx{store: s, tree: s.tree.Clone()}
	return newTransaction(tx), nil
}

// Close releases the store.
func (s *MemoryStorage) Close() error {
	return nil
}

type memoryTx struct {
	store *MemoryStorage
	tree  *btree.BTreeG[kvItem]
	done  bool
}

func (tx *memoryTx) Get(key []byte) ([]byte, error) {
	item, ok := tx.tree.Get(kvItem{key: key})
	if !ok {
		return nil, ErrKeyNotFound
	}
	return item.value, nil
}

func (tx *memoryTx) Set(key, value []byte) error {
	tx.tree.ReplaceOrInsert(kvItem{
		key:   bytes.Clone(key),
		value: bytes.Clone(value),
	})
	return nil
}

func (tx *memoryTx) Delete(key []byte) error {
	tx.tree.Delete(kvItem{key: key})
	return nil
}

func (tx *memoryTx) NewIter(min, max []byte) (Iterator, error) {
	var items []kvItem
	tx.tree.AscendGreaterOrEqual(kvItem{key: min}, func(item kvItem) bool {
		if bytes.Compare(item.key, max) > 0 {
			return false
		}
		items = append(items, item)
		return true
	})
	return &memoryIter{items: items, pos: -1}, nil
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.store.tree = tx.tree
	tx.store.mu.Unlock()
	return nil
}

func (tx *memoryTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.store.mu.Unlock()
	return nil
}

type memoryIter struct {
	items []kvItem
	pos   int
}

func (it *memoryIter) First() bool {
	it.pos = 0
	return it.Valid()
}

func (it *memoryIter) Next() bool {
	it.pos++
	return it.Valid()
}

func (it *memoryIter) Valid() bool {
	return it.pos >= 0 && it.pos < len(it.items)
}

func (it *memoryIter) Key() []byte {
	return it.items[it.pos].key
}

func (it *memoryIter) Value() []byte {
	return it.items[it.pos].value
}

func (it *memoryIter) Error() error { return nil }
func (it *memoryIter) Close() error { return nil }
