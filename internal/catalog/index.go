package catalog

import (
	"birchdb/internal/types"
)

// IndexKind classifies an index. The kind decides both uniqueness
// enforcement and the key layout: Normal and Composite append the row's
// primary key to the secondary key so duplicate secondary values coexist.
type IndexKind uint8

const (
	IndexPrimaryKey IndexKind = iota
	IndexUnique
	IndexNormal
	IndexComposite
)

func (k IndexKind) String() string {
	switch k {
	case IndexPrimaryKey:
		return "PRIMARY KEY"
	case IndexUnique:
		return "UNIQUE"
	case IndexNormal:
		return "NORMAL"
	case IndexComposite:
		return "COMPOSITE"
	}
	return "UNKNOWN"
}

// IndexMeta is the persisted description of an index.
type IndexMeta struct {
	ID        types.IndexID
	TableName string
	ColumnIDs []types.ColumnID
	Name      string
	Kind      IndexKind
	// MultiplePk marks a primary-key index over a composite key.
	MultiplePk bool

	// PkType and ValueType record the key shapes for plan-time typing.
	PkType    types.LogicalType
	ValueType types.LogicalType
}

// Index is a runtime index entry: the indexed value of one row, headed for
// (or read from) the key space.
type Index struct {
	ID    types.IndexID
	Value types.DataValue
	Kind  IndexKind
}

func NewIndex(id types.IndexID, value types.DataValue, kind IndexKind) *Index {
	return &Index{ID: id, Value: value, Kind: kind}
}
