// Package codec lays the whole database out into one ordered key space.
// Every key starts with an 8-byte SipHash of the owning table or view name
// followed by a single ASCII digit naming the category; the Root, View, and
// Hash prefixes sit outside the hash space and host the catalog. Byte order
// of the produced keys equals logical order of the keyed values, which is
// what lets a plain ordered KV store serve as the storage engine.
package codec

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/dchest/siphash"

	"birchdb/internal/catalog"
	"birchdb/internal/dberr"
	"birchdb/internal/types"
)

// Bound separators. BoundMinTag also separates key segments: every segment
// is followed by the minimum byte so that segment boundaries never invert
// the ordering of neighbouring keys.
const (
	BoundMinTag byte = 0x00
	BoundMaxTag byte = 0xFF
)

// Category tags, one ASCII digit after the table hash.
const (
	tagColumn     byte = '0'
	tagIndexMeta  byte = '1'
	tagIndex      byte = '3'
	tagStatistics byte = '4'
	tagTuple      byte = '8'
)

// Reserved top-level prefixes outside the table-hash space.
var (
	rootBytes = []byte("Root")
	viewBytes = []byte("View")
	hashBytes = []byte("Hash")
)

// TableCodec builds keys and values against a per-batch arena.
type TableCodec struct {
	arena *Arena
}

func NewTableCodec() *TableCodec {
	return &TableCodec{arena: NewArena()}
}

// Reset releases every buffer produced since the previous reset.
func (c *TableCodec) Reset() {
	c.arena.Reset()
}

func hashTableName(name string) [8]byte {
	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], siphash.Hash(0, 0, []byte(name)))
	return out
}

func (c *TableCodec) tablePrefix(tag byte, name string) []byte {
	h := hashTableName(name)
	buf := c.arena.Grab(len(h) + 16)
	buf = append(buf, h[:]...)
	return append(buf, tag)
}

func (c *TableCodec) reservedPrefix(head []byte, name string) []byte {
	h := hashTableName(name)
	buf := c.arena.Grab(len(head) + 1 + len(h))
	buf = append(buf, head...)
	buf = append(buf, BoundMinTag)
	return append(buf, h[:]...)
}

// CheckPrimaryKey validates a primary-key value: never NULL, composite keys
// nest exactly one level, and every scalar component has an allowed type.
func CheckPrimaryKey(value types.DataValue, depth int) error {
	if depth > 1 {
		return dberr.ErrPrimaryKeyTooManyLayer
	}
	if value.IsNull() {
		return dberr.ErrNotNull
	}
	if tuple, ok := value.(types.TupleValue); ok {
		for _, component := range tuple.Values {
			if err := CheckPrimaryKey(component, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return CheckPrimaryKeyType(value.LogicalType())
}

// CheckPrimaryKeyType restricts primary keys to integer widths and
// Char/Varchar.
func CheckPrimaryKeyType(t types.LogicalType) error {
	switch t.Kind {
	case types.KindTinyint, types.KindSmallint, types.KindInteger, types.KindBigint,
		types.KindUTinyint, types.KindUSmallint, types.KindUInteger, types.KindUBigint,
		types.KindChar, types.KindVarchar:
		return nil
	}
	return dberr.ErrInvalidType
}

// TupleBound returns the half-open iteration range covering all tuples of a
// table.
func (c *TableCodec) TupleBound(tableName string) (min, max []byte) {
	return append(c.tablePrefix(tagTuple, tableName), BoundMinTag),
		append(c.tablePrefix(tagTuple, tableName), BoundMaxTag)
}

// IndexMetaBound covers all index-meta entries of a table.
func (c *TableCodec) IndexMetaBound(tableName string) (min, max []byte) {
	return append(c.tablePrefix(tagIndexMeta, tableName), BoundMinTag),
		append(c.tablePrefix(tagIndexMeta, tableName), BoundMaxTag)
}

// IndexBound covers all entries of one index.
func (c *TableCodec) IndexBound(tableName string, indexID types.IndexID) (min, max []byte) {
	build := func(bound byte) []byte {
		key := c.tablePrefix(tagIndex, tableName)
		key = append(key, BoundMinTag)
		key = binary.LittleEndian.AppendUint32(key, indexID)
		return append(key, bound)
	}
	return build(BoundMinTag), build(BoundMaxTag)
}

// AllIndexBound covers every index entry of a table.
func (c *TableCodec) AllIndexBound(tableName string) (min, max []byte) {
	return append(c.tablePrefix(tagIndex, tableName), BoundMinTag),
		append(c.tablePrefix(tagIndex, tableName), BoundMaxTag)
}

// RootTableBound covers the whole root catalog.
func (c *TableCodec) RootTableBound() (min, max []byte) {
	build := func(bound byte) []byte {
		key := c.arena.Grab(len(rootBytes) + 1)
		key = append(key, rootBytes...)
		return append(key, bound)
	}
	return build(BoundMinTag), build(BoundMaxTag)
}

// ViewBound covers all persisted views.
func (c *TableCodec) ViewBound() (min, max []byte) {
	build := func(bound byte) []byte {
		key := c.arena.Grab(len(viewBytes) + 1)
		key = append(key, viewBytes...)
		return append(key, bound)
	}
	return build(BoundMinTag), build(BoundMaxTag)
}

// TableBound spans every persisted entry of one table, from its first column
// record through its last index-meta record.
func (c *TableCodec) TableBound(tableName string) (min, max []byte) {
	return append(c.tablePrefix(tagColumn, tableName), BoundMinTag),
		append(c.tablePrefix(tagIndexMeta, tableName), BoundMaxTag)
}

// ColumnsBound covers the column records of a table.
func (c *TableCodec) ColumnsBound(tableName string) (min, max []byte) {
	return append(c.tablePrefix(tagColumn, tableName), BoundMinTag),
		append(c.tablePrefix(tagColumn, tableName), BoundMaxTag)
}

// StatisticsBound covers the statistics records of a table.
func (c *TableCodec) StatisticsBound(tableName string) (min, max []byte) {
	return append(c.tablePrefix(tagStatistics, tableName), BoundMinTag),
		append(c.tablePrefix(tagStatistics, tableName), BoundMaxTag)
}

// EncodeTupleKey builds the row key for a primary-key value:
// hash ‖ '8' ‖ 0x00 ‖ mem_encode(pk).
func (c *TableCodec) EncodeTupleKey(tableName string, pk types.DataValue) ([]byte, error) {
	if err := CheckPrimaryKey(pk, 0); err != nil {
		return nil, err
	}
	key := c.tablePrefix(tagTuple, tableName)
	key = append(key, BoundMinTag)
	return types.AppendMemComparable(key, pk)
}

// EncodeTuple builds the key and serialized value for a row.
func (c *TableCodec) EncodeTuple(tableName string, tuple *types.Tuple, typs []types.LogicalType) (key, value []byte, err error) {
	if tuple.Pk == nil {
		return nil, nil, dberr.ErrPrimaryKeyNotFound
	}
	if key, err = c.EncodeTupleKey(tableName, tuple.Pk); err != nil {
		return nil, nil, err
	}
	if value, err = tuple.Serialize(typs, c.arena.Grab(64)); err != nil {
		return nil, nil, err
	}
	return key, value, nil
}

// DecodeTuple deserializes a row value.
func DecodeTuple(
	tableTypes []types.LogicalType,
	pkIndices []int,
	projections []int,
	raw []byte,
	withPk bool,
) (*types.Tuple, error) {
	return types.DeserializeTuple(tableTypes, pkIndices, projections, raw, withPk)
}

// EncodeIndexMetaKey builds hash ‖ '1' ‖ 0x00 ‖ index_id_le.
func (c *TableCodec) EncodeIndexMetaKey(tableName string, indexID types.IndexID) []byte {
	key := c.tablePrefix(tagIndexMeta, tableName)
	key = append(key, BoundMinTag)
	return binary.LittleEndian.AppendUint32(key, indexID)
}

// EncodeIndexMeta builds the key/value pair for an index-meta record.
func (c *TableCodec) EncodeIndexMeta(tableName string, meta *catalog.IndexMeta) (key, value []byte, err error) {
	key = c.EncodeIndexMetaKey(tableName, meta.ID)
	value, err = json.Marshal(meta)
	if err != nil {
		return nil, nil, fmt.Errorf("encode index meta: %w", err)
	}
	return key, value, nil
}

// DecodeIndexMeta is the inverse of EncodeIndexMeta's value encoding.
func DecodeIndexMeta(raw []byte) (*catalog.IndexMeta, error) {
	meta := new(catalog.IndexMeta)
	if err := json.Unmarshal(raw, meta); err != nil {
		return nil, fmt.Errorf("decode index meta: %w", err)
	}
	return meta, nil
}

// EncodeIndexBoundKey builds the seek key for an index value:
// hash ‖ '3' ‖ 0x00 ‖ index_id_le ‖ 0x00 ‖ mem_encode(value) [‖ 0xFF].
func (c *TableCodec) EncodeIndexBoundKey(tableName string, index *catalog.Index, isUpper bool) ([]byte, error) {
	key := c.tablePrefix(tagIndex, tableName)
	key = append(key, BoundMinTag)
	key = binary.LittleEndian.AppendUint32(key, index.ID)
	key = append(key, BoundMinTag)

	key, err := types.AppendMemComparable(key, index.Value)
	if err != nil {
		return nil, err
	}
	if isUpper {
		key = append(key, BoundMaxTag)
	}
	return key, nil
}

// EncodeIndexKey builds the full key of one index entry. For Normal and
// Composite indexes the primary key is appended so duplicate secondary
// values stay distinct; Unique and PrimaryKey entries position directly.
func (c *TableCodec) EncodeIndexKey(tableName string, index *catalog.Index, pk types.DataValue) ([]byte, error) {
	key, err := c.EncodeIndexBoundKey(tableName, index, false)
	if err != nil {
		return nil, err
	}
	if pk != nil && (index.Kind == catalog.IndexNormal || index.Kind == catalog.IndexComposite) {
		if key, err = types.AppendMemComparable(key, pk); err != nil {
			return nil, err
		}
	}
	return key, nil
}

// EncodeIndex builds the key/value pair for one index entry; the value is
// the row's primary key.
func (c *TableCodec) EncodeIndex(tableName string, index *catalog.Index, pk types.DataValue) (key, value []byte, err error) {
	if key, err = c.EncodeIndexKey(tableName, index, pk); err != nil {
		return nil, nil, err
	}
	if value, err = EncodePkValue(c.arena.Grab(16), pk); err != nil {
		return nil, nil, err
	}
	return key, value, nil
}

// EncodeColumnKey builds hash ‖ '0' ‖ 0x00 ‖ column_id_le.
func (c *TableCodec) EncodeColumnKey(tableName string, columnID types.ColumnID) []byte {
	key := c.tablePrefix(tagColumn, tableName)
	key = append(key, BoundMinTag)
	return binary.LittleEndian.AppendUint32(key, columnID)
}

// columnRecord is the persisted form of a column.
type columnRecord struct {
	ID         types.ColumnID    `json:"id"`
	Name       string            `json:"name"`
	Nullable   bool              `json:"nullable"`
	Type       types.LogicalType `json:"type"`
	PrimaryKey bool              `json:"primaryKey"`
	Unique     bool              `json:"unique,omitempty"`
}

// EncodeColumn builds the key/value pair for a column record. Columns
// without a table affiliation cannot be persisted.
func (c *TableCodec) EncodeColumn(col *catalog.Column) (key, value []byte, err error) {
	if col.Relation == nil {
		return nil, nil, &dberr.InvalidColumnError{Reason: "column does not belong to a table"}
	}
	key = c.EncodeColumnKey(col.Relation.TableName, col.Relation.ColumnID)
	value, err = json.Marshal(columnRecord{
		ID:         col.Relation.ColumnID,
		Name:       col.Name,
		Nullable:   col.Nullable,
		Type:       col.Type,
		PrimaryKey: col.PrimaryKey,
		Unique:     col.Unique,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("encode column: %w", err)
	}
	return key, value, nil
}

// DecodeColumn restores a column record for the given table.
func DecodeColumn(tableName string, raw []byte) (*catalog.Column, error) {
	var rec columnRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode column: %w", err)
	}
	return &catalog.Column{
		Name:       rec.Name,
		Nullable:   rec.Nullable,
		Type:       rec.Type,
		PrimaryKey: rec.PrimaryKey,
		Unique:     rec.Unique,
		Relation:   &catalog.ColumnRelation{ColumnID: rec.ID, TableName: tableName},
	}, nil
}

// EncodeStatisticsPathKey builds hash ‖ '4' ‖ 0x00 ‖ index_id_le.
func (c *TableCodec) EncodeStatisticsPathKey(tableName string, indexID types.IndexID) []byte {
	key := c.tablePrefix(tagStatistics, tableName)
	key = append(key, BoundMinTag)
	return binary.LittleEndian.AppendUint32(key, indexID)
}

// EncodeStatisticsPath records where an index's statistics file lives.
func (c *TableCodec) EncodeStatisticsPath(tableName string, indexID types.IndexID, path string) (key, value []byte) {
	key = c.EncodeStatisticsPathKey(tableName, indexID)
	value = append(c.arena.Grab(len(path)), path...)
	return key, value
}

// DecodeStatisticsPath is the inverse of EncodeStatisticsPath's value.
func DecodeStatisticsPath(raw []byte) string {
	return string(raw)
}

// EncodeViewKey builds View ‖ 0x00 ‖ hash(view_name).
func (c *TableCodec) EncodeViewKey(viewName string) []byte {
	return c.reservedPrefix(viewBytes, viewName)
}

// EncodeView builds the key/value pair for a view definition.
func (c *TableCodec) EncodeView(view *catalog.View) (key, value []byte, err error) {
	key = c.EncodeViewKey(view.Name)
	if value, err = json.Marshal(view); err != nil {
		return nil, nil, fmt.Errorf("encode view: %w", err)
	}
	return key, value, nil
}

// DecodeView restores a view definition.
func DecodeView(raw []byte) (*catalog.View, error) {
	view := new(catalog.View)
	if err := json.Unmarshal(raw, view); err != nil {
		return nil, fmt.Errorf("decode view: %w", err)
	}
	return view, nil
}

// EncodeRootTableKey builds Root ‖ 0x00 ‖ hash(table_name).
func (c *TableCodec) EncodeRootTableKey(tableName string) []byte {
	return c.reservedPrefix(rootBytes, tableName)
}

// EncodeRootTable builds the root-catalog entry for a table.
func (c *TableCodec) EncodeRootTable(meta *catalog.TableMeta) (key, value []byte, err error) {
	key = c.EncodeRootTableKey(meta.TableName)
	if value, err = json.Marshal(meta); err != nil {
		return nil, nil, fmt.Errorf("encode root table: %w", err)
	}
	return key, value, nil
}

// DecodeRootTable restores a root-catalog entry.
func DecodeRootTable(raw []byte) (*catalog.TableMeta, error) {
	meta := new(catalog.TableMeta)
	if err := json.Unmarshal(raw, meta); err != nil {
		return nil, fmt.Errorf("decode root table: %w", err)
	}
	return meta, nil
}

// EncodeTableHashKey builds the liveness marker Hash ‖ 0x00 ‖ hash(name).
func (c *TableCodec) EncodeTableHashKey(tableName string) []byte {
	return c.reservedPrefix(hashBytes, tableName)
}

// EncodeTableHash returns the liveness marker with an empty value.
func (c *TableCodec) EncodeTableHash(tableName string) (key, value []byte) {
	return c.EncodeTableHashKey(tableName), c.arena.Grab(0)
}
