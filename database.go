// Package birchdb is an embeddable relational database: a SQL front-end
// over a rule-optimized execution engine that persists tables, indexes, and
// its own catalog into a single ordered key space.
//
// Open a database, run SQL, read rows:
//
//	db, err := birchdb.Open(birchdb.Options{Path: "./data"})
//	...
//	rows, err := db.Run(`SELECT id, name FROM users WHERE id > 10`)
package birchdb

import (
	"go.uber.org/zap"

	"birchdb/internal/binder"
	"birchdb/internal/catalog"
	"birchdb/internal/executor"
	"birchdb/internal/optimizer"
	"birchdb/internal/planner"
	"birchdb/internal/storage"
	"birchdb/internal/types"
)

// Options configures Open.
type Options struct {
	// Path is the pebble store directory. Empty means a private in-memory
	// store that vanishes on Close.
	Path string
	// CacheSize bounds each catalog cache; zero picks the default.
	CacheSize int
	// Logger receives open/close and statement-level events. Nil disables
	// logging.
	Logger *zap.Logger
}

// Database is one embedded database instance. It is safe for sequential
// use; statements run under a single writer.
type Database struct {
	storage storage.Storage
	caches  *storage.Caches
	logger  *zap.Logger
}

// Open creates or opens a database.
func Open(opts Options) (*Database, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		store storage.Storage
		err   error
	)
	if opts.Path == "" {
		store = storage.NewMemoryStorage()
	} else if store, err = storage.OpenPebble(opts.Path); err != nil {
		return nil, err
	}
	caches, err := storage.NewCaches(opts.CacheSize)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	logger.Info("database opened", zap.String("path", opts.Path))
	return &Database{storage: store, caches: caches, logger: logger}, nil
}

// Close releases the underlying store.
func (db *Database) Close() error {
	db.logger.Info("database closed")
	return db.storage.Close()
}

// Rows is a materialized statement result.
type Rows struct {
	schema catalog.Schema
	tuples []*types.Tuple
	pos    int
}

// Schema describes the result columns.
func (r *Rows) Schema() catalog.Schema { return r.schema }

// Next returns the next row, or nil when exhausted.
func (r *Rows) Next() *types.Tuple {
	if r.pos >= len(r.tuples) {
		return nil
	}
	tuple := r.tuples[r.pos]
	r.pos++
	return tuple
}

// Len reports the number of rows.
func (r *Rows) Len() int { return len(r.tuples) }

// All returns every row without consuming the iterator.
func (r *Rows) All() []*types.Tuple { return r.tuples }

// Run executes every statement in sql inside one transaction and returns
// the last statement's rows. Any error rolls the whole batch back.
func (db *Database) Run(sql string) (*Rows, error) {
	tx, err := db.storage.Begin()
	if err != nil {
		return nil, err
	}
	rows, err := db.runInTx(tx, sql)
	if err != nil {
		_ = tx.Rollback()
		// The caches may hold catalog state the rollback just discarded.
		db.caches.PurgeAll()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rows, nil
}

func (db *Database) runInTx(tx *storage.Transaction, sql string) (*Rows, error) {
	resolver := &txCatalog{tx: tx, caches: db.caches}
	var rows *Rows
	err := binder.New(resolver).BindEach(sql, func(plan *planner.LogicalPlan) error {
		optimized, err := optimizer.Optimize(plan)
		if err != nil {
			return err
		}
		db.logger.Debug("executing", zap.String("plan", optimized.Op.String()))
		tuples, err := executor.Collect(executor.Build(optimized, db.caches, tx))
		if err != nil {
			return err
		}
		rows = &Rows{schema: resultSchema(optimized), tuples: tuples}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func resultSchema(plan *planner.LogicalPlan) catalog.Schema {
	return plan.OutputSchema()
}

// txCatalog adapts the transaction to the binder's resolution surface.
type txCatalog struct {
	tx     *storage.Transaction
	caches *storage.Caches
}

func (c *txCatalog) ResolveTable(name string) (*catalog.Table, error) {
	return c.tx.Table(c.caches, name)
}

func (c *txCatalog) ResolveView(name string) (*catalog.View, error) {
	return c.tx.View(c.caches, name)
}
