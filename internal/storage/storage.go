// Package storage binds the engine to an ordered key-value store. Two
// backends exist: a persistent pebble store and an in-memory btree store
// with snapshot semantics. Both expose the same single-writer transaction
// over which the catalog logic in transaction.go runs.
package storage

import (
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"birchdb/internal/catalog"
)

// ErrKeyNotFound is returned by Get for absent keys, regardless of backend.
var ErrKeyNotFound = errors.New("key not found")

// Iterator walks keys of a closed range in ascending byte order. The
// usage pattern follows pebble: First, then Next until it returns false,
// then check Error.
type Iterator interface {
	First() bool
	Next() bool
	Valid() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// kvTx is the backend surface a transaction runs on. Reads observe the
// transaction's own uncommitted writes.
type kvTx interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	// NewIter iterates keys in [min, max]; both ends are inclusive, so a
	// stored key passed as both min and max yields that one entry.
	NewIter(min, max []byte) (Iterator, error)
	Commit() error
	Rollback() error
}

// Storage opens transactions against one underlying store. Only one write
// transaction may be live at a time; the backends serialize them.
type Storage interface {
	Begin() (*Transaction, error)
	Close() error
}

// Caches hold decoded catalog objects shared across the operators of a
// query. Operators never mutate them; only catalog transitions through the
// transaction do.
type Caches struct {
	Tables     *lru.Cache[string, *catalog.Table]
	Views      *lru.Cache[string, *catalog.View]
	Statistics *lru.Cache[string, string]
}

// NewCaches sizes all three catalog caches.
func NewCaches(size int) (*Caches, error) {
	if size <= 0 {
		size = 128
	}
	tables, err := lru.New[string, *catalog.Table](size)
	if err != nil {
		return nil, err
	}
	views, err := lru.New[string, *catalog.View](size)
	if err != nil {
		return nil, err
	}
	statistics, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &Caches{Tables: tables, Views: views, Statistics: statistics}, nil
}

// RemoveTable drops one table's cached state after a catalog transition.
func (c *Caches) RemoveTable(name string) {
	c.Tables.Remove(name)
	c.Statistics.Remove(name)
}

// PurgeAll empties every cache. A rolled-back transaction may have
// populated them with uncommitted catalog state, so the owner purges on
// rollback.
func (c *Caches) PurgeAll() {
	c.Tables.Purge()
	c.Views.Purge()
	c.Statistics.Purge()
}
