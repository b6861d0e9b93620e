package storage

import (
	"errors"
	"fmt"

	"birchdb/internal/catalog"
	"birchdb/internal/codec"
	"birchdb/internal/dberr"
	"birchdb/internal/types"
)

// Transaction is the single writer over the key space. All catalog and row
// mutations go through it; readers within the same query observe its
// in-progress state through the same handle.
type Transaction struct {
	kv    kvTx
	codec *codec.TableCodec
}

func newTransaction(kv kvTx) *Transaction {
	return &Transaction{kv: kv, codec: codec.NewTableCodec()}
}

// Codec exposes the transaction's codec so operators can build scan bounds
// against the same arena.
func (tx *Transaction) Codec() *codec.TableCodec {
	return tx.codec
}

// NewIter opens a raw range iterator over [min, max].
func (tx *Transaction) NewIter(min, max []byte) (Iterator, error) {
	return tx.kv.NewIter(min, max)
}

// Commit flushes the batch and releases the codec arena.
func (tx *Transaction) Commit() error {
	if err := tx.kv.Commit(); err != nil {
		return err
	}
	tx.codec.Reset()
	return nil
}

// Rollback abandons the batch and releases the codec arena.
func (tx *Transaction) Rollback() error {
	if err := tx.kv.Rollback(); err != nil {
		return err
	}
	tx.codec.Reset()
	return nil
}

// CreateTable persists a new table: liveness marker, root entry, column
// records, and its index metas.
func (tx *Transaction) CreateTable(caches *Caches, table *catalog.Table, ifNotExists bool) error {
	if _, err := tx.kv.Get(tx.codec.EncodeTableHashKey(table.Name)); err == nil {
		if ifNotExists {
			return nil
		}
		return fmt.Errorf("%w: %q", dberr.ErrDuplicateTable, table.Name)
	} else if !errors.Is(err, ErrKeyNotFound) {
		return err
	}

	for _, pos := range table.PrimaryKeyIndices() {
		if err := codec.CheckPrimaryKeyType(table.Columns[pos].Type); err != nil {
			return err
		}
	}

	hashKey, hashValue := tx.codec.EncodeTableHash(table.Name)
	if err := tx.kv.Set(hashKey, hashValue); err != nil {
		return err
	}
	rootKey, rootValue, err := tx.codec.EncodeRootTable(&catalog.TableMeta{TableName: table.Name})
	if err != nil {
		return err
	}
	if err := tx.kv.Set(rootKey, rootValue); err != nil {
		return err
	}
	for _, col := range table.Columns {
		key, value, err := tx.codec.EncodeColumn(col)
		if err != nil {
			return err
		}
		if err := tx.kv.Set(key, value); err != nil {
			return err
		}
	}
	for _, meta := range table.Indexes {
		key, value, err := tx.codec.EncodeIndexMeta(table.Name, meta)
		if err != nil {
			return err
		}
		if err := tx.kv.Set(key, value); err != nil {
			return err
		}
	}
	caches.Tables.Add(table.Name, table)
	return nil
}

// Table loads a table through the cache.
func (tx *Transaction) Table(caches *Caches, name string) (*catalog.Table, error) {
	if table, ok := caches.Tables.Get(name); ok {
		return table, nil
	}
	if _, err := tx.kv.Get(tx.codec.EncodeTableHashKey(name)); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %q", dberr.ErrTableNotFound, name)
		}
		return nil, err
	}

	var columns catalog.Schema
	minKey, maxKey := tx.codec.ColumnsBound(name)
	if err := tx.scan(minKey, maxKey, func(_, value []byte) error {
		col, err := codec.DecodeColumn(name, value)
		if err != nil {
			return err
		}
		columns = append(columns, col)
		return nil
	}); err != nil {
		return nil, err
	}
	table := catalog.RestoreTable(name, columns)

	minKey, maxKey = tx.codec.IndexMetaBound(name)
	if err := tx.scan(minKey, maxKey, func(_, value []byte) error {
		meta, err := codec.DecodeIndexMeta(value)
		if err != nil {
			return err
		}
		table.RestoreIndexMeta(meta)
		return nil
	}); err != nil {
		return nil, err
	}

	caches.Tables.Add(name, table)
	return table, nil
}

// DropTable removes a table and every entry it owns.
func (tx *Transaction) DropTable(caches *Caches, name string, ifExists bool) error {
	if _, err := tx.kv.Get(tx.codec.EncodeTableHashKey(name)); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			if ifExists {
				return nil
			}
			return fmt.Errorf("%w: %q", dberr.ErrTableNotFound, name)
		}
		return err
	}

	// Collect before deleting: mutating the batch under an open iterator is
	// not allowed by the pebble backend.
	drop := func(min, max []byte) error {
		var keys [][]byte
		if err := tx.scan(min, max, func(key, _ []byte) error {
			keys = append(keys, append([]byte(nil), key...))
			return nil
		}); err != nil {
			return err
		}
		for _, key := range keys {
			if err := tx.kv.Delete(key); err != nil {
				return err
			}
		}
		return nil
	}
	bounds := [][2][]byte{}
	min, max := tx.codec.TupleBound(name)
	bounds = append(bounds, [2][]byte{min, max})
	min, max = tx.codec.AllIndexBound(name)
	bounds = append(bounds, [2][]byte{min, max})
	min, max = tx.codec.TableBound(name)
	bounds = append(bounds, [2][]byte{min, max})
	min, max = tx.codec.StatisticsBound(name)
	bounds = append(bounds, [2][]byte{min, max})
	for _, b := range bounds {
		if err := drop(b[0], b[1]); err != nil {
			return err
		}
	}
	if err := tx.kv.Delete(tx.codec.EncodeRootTableKey(name)); err != nil {
		return err
	}
	if err := tx.kv.Delete(tx.codec.EncodeTableHashKey(name)); err != nil {
		return err
	}
	caches.RemoveTable(name)
	return nil
}

// ShowTables lists all root-catalog entries.
func (tx *Transaction) ShowTables() ([]string, error) {
	var names []string
	min, max := tx.codec.RootTableBound()
	err := tx.scan(min, max, func(_, value []byte) error {
		meta, err := codec.DecodeRootTable(value)
		if err != nil {
			return err
		}
		names = append(names, meta.TableName)
		return nil
	})
	return names, err
}

// CreateView persists a view definition.
func (tx *Transaction) CreateView(caches *Caches, view *catalog.View, orReplace bool) error {
	key := tx.codec.EncodeViewKey(view.Name)
	if _, err := tx.kv.Get(key); err == nil && !orReplace {
		return fmt.Errorf("%w: view %q", dberr.ErrDuplicateTable, view.Name)
	} else if err != nil && !errors.Is(err, ErrKeyNotFound) {
		return err
	}
	key, value, err := tx.codec.EncodeView(view)
	if err != nil {
		return err
	}
	if err := tx.kv.Set(key, value); err != nil {
		return err
	}
	caches.Views.Add(view.Name, view)
	return nil
}

// View loads a view through the cache.
func (tx *Transaction) View(caches *Caches, name string) (*catalog.View, error) {
	if view, ok := caches.Views.Get(name); ok {
		return view, nil
	}
	raw, err := tx.kv.Get(tx.codec.EncodeViewKey(name))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %q", dberr.ErrViewNotFound, name)
		}
		return nil, err
	}
	view, err := codec.DecodeView(raw)
	if err != nil {
		return nil, err
	}
	caches.Views.Add(name, view)
	return view, nil
}

// AddIndexMeta registers a new index on the table and persists its meta.
// The table's in-memory entry is updated in place so later statements see
// the index without reloading.
func (tx *Transaction) AddIndexMeta(
	caches *Caches,
	table *catalog.Table,
	indexName string,
	columnIDs []types.ColumnID,
	kind catalog.IndexKind,
) (*catalog.IndexMeta, error) {
	meta, err := table.AddIndexMeta(indexName, columnIDs, kind)
	if err != nil {
		return nil, err
	}
	key, value, err := tx.codec.EncodeIndexMeta(table.Name, meta)
	if err != nil {
		return nil, err
	}
	if err := tx.kv.Set(key, value); err != nil {
		return nil, err
	}
	caches.Tables.Add(table.Name, table)
	return meta, nil
}

// AddIndex writes one index entry for a row. Unique and primary-key entries
// reject a second distinct row with the same indexed value.
func (tx *Transaction) AddIndex(tableName string, index *catalog.Index, pk types.DataValue) error {
	key, value, err := tx.codec.EncodeIndex(tableName, index, pk)
	if err != nil {
		return err
	}
	if index.Kind == catalog.IndexUnique || index.Kind == catalog.IndexPrimaryKey {
		if existing, err := tx.kv.Get(key); err == nil {
			current, _, decodeErr := codec.DecodePkValue(existing)
			if decodeErr != nil {
				return decodeErr
			}
			if !types.Equal(current, pk) {
				return fmt.Errorf("%w: index value %s", dberr.ErrDuplicateEntry, index.Value)
			}
		} else if !errors.Is(err, ErrKeyNotFound) {
			return err
		}
	}
	return tx.kv.Set(key, value)
}

// RemoveIndex deletes the index entry of one row.
func (tx *Transaction) RemoveIndex(tableName string, index *catalog.Index, pk types.DataValue) error {
	key, err := tx.codec.EncodeIndexKey(tableName, index, pk)
	if err != nil {
		return err
	}
	return tx.kv.Delete(key)
}

// AddTuple writes a row; a second row under the same primary key is a
// duplicate-entry error.
func (tx *Transaction) AddTuple(tableName string, tuple *types.Tuple, typs []types.LogicalType) error {
	key, value, err := tx.codec.EncodeTuple(tableName, tuple, typs)
	if err != nil {
		return err
	}
	if _, err := tx.kv.Get(key); err == nil {
		return fmt.Errorf("%w: primary key %s", dberr.ErrDuplicateEntry, tuple.Pk)
	} else if !errors.Is(err, ErrKeyNotFound) {
		return err
	}
	return tx.kv.Set(key, value)
}

// UpsertTuple writes a row, replacing any previous version.
func (tx *Transaction) UpsertTuple(tableName string, tuple *types.Tuple, typs []types.LogicalType) error {
	key, value, err := tx.codec.EncodeTuple(tableName, tuple, typs)
	if err != nil {
		return err
	}
	return tx.kv.Set(key, value)
}

// RemoveTuple deletes a row by primary key.
func (tx *Transaction) RemoveTuple(tableName string, pk types.DataValue) error {
	key, err := tx.codec.EncodeTupleKey(tableName, pk)
	if err != nil {
		return err
	}
	return tx.kv.Delete(key)
}

// SaveStatisticsPath records the statistics file location of one index.
func (tx *Transaction) SaveStatisticsPath(caches *Caches, tableName string, indexID types.IndexID, path string) error {
	key, value := tx.codec.EncodeStatisticsPath(tableName, indexID, path)
	if err := tx.kv.Set(key, value); err != nil {
		return err
	}
	caches.Statistics.Add(fmt.Sprintf("%s#%d", tableName, indexID), path)
	return nil
}

// StatisticsPath loads the statistics file location of one index.
func (tx *Transaction) StatisticsPath(caches *Caches, tableName string, indexID types.IndexID) (string, error) {
	cacheKey := fmt.Sprintf("%s#%d", tableName, indexID)
	if path, ok := caches.Statistics.Get(cacheKey); ok {
		return path, nil
	}
	raw, err := tx.kv.Get(tx.codec.EncodeStatisticsPathKey(tableName, indexID))
	if err != nil {
		return "", err
	}
	path := codec.DecodeStatisticsPath(raw)
	caches.Statistics.Add(cacheKey, path)
	return path, nil
}

func (tx *Transaction) scan(min, max []byte, visit func(key, value []byte) error) error {
	iter, err := tx.kv.NewIter(min, max)
	if err != nil {
		return err
	}
	defer func() { _ = iter.Close() }()
	for ok := iter.First(); ok; ok = iter.Next() {
		if err := visit(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}
