// Package catalog contains the schema objects the database persists: tables,
// columns, indexes, and views. It is the single source of truth for what a
// relation looks like; storage and execution consume these types but never
// redefine them.
package catalog

import (
	"fmt"

	"birchdb/internal/types"
)

// ColumnRelation ties a column to its owning table. Temporary columns (join
// outputs, expression aliases) have no relation and cannot be persisted.
type ColumnRelation struct {
	ColumnID  types.ColumnID
	TableName string
}

// Column describes one column of a table or derived schema.
type Column struct {
	Name       string
	Nullable   bool
	Type       types.LogicalType
	PrimaryKey bool
	Unique     bool

	// Relation is nil for temporary columns.
	Relation *ColumnRelation
}

// NewColumn builds an unattached column; NewTable assigns its identity.
func NewColumn(name string, nullable bool, t types.LogicalType) *Column {
	return &Column{Name: name, Nullable: nullable, Type: t}
}

// ID returns the column id and whether the column belongs to a table.
func (c *Column) ID() (types.ColumnID, bool) {
	if c.Relation == nil {
		return 0, false
	}
	return c.Relation.ColumnID, true
}

// TableName returns the owning table name, or "" for temporary columns.
func (c *Column) TableName() string {
	if c.Relation == nil {
		return ""
	}
	return c.Relation.TableName
}

// FullName renders table.column for display, or the bare name when the
// column is temporary.
func (c *Column) FullName() string {
	if c.Relation == nil {
		return c.Name
	}
	return fmt.Sprintf("%s.%s", c.Relation.TableName, c.Name)
}

// ForJoin returns a copy with nullability forced on, used when an outer join
// can produce NULLs on this column's side. The copy keeps the relation so
// pushdown can still match it to its table.
func (c *Column) ForJoin(forceNullable bool) *Column {
	if !forceNullable || c.Nullable {
		return c
	}
	clone := *c
	clone.Nullable = true
	return &clone
}

// Schema is an ordered list of column references.
type Schema []*Column

// Types lists the logical types of the schema in order.
func (s Schema) Types() []types.LogicalType {
	out := make([]types.LogicalType, len(s))
	for i, col := range s {
		out[i] = col.Type
	}
	return out
}

// FindColumn locates a column by name, optionally qualified by table, and
// returns (-1, nil) when nothing matches. Ambiguity is not reported here
// (the binder checks for it); the first match wins when table is empty.
func (s Schema) FindColumn(table, name string) (int, *Column) {
	for i, col := range s {
		if col.Name != name {
			continue
		}
		if table != "" && col.TableName() != table {
			continue
		}
		return i, col
	}
	return -1, nil
}

// Contains reports whether the schema holds a column with the same identity
// (table and column id) as the argument.
func (s Schema) Contains(target *Column) bool {
	targetID, ok := target.ID()
	if !ok {
		return false
	}
	for _, col := range s {
		if id, attached := col.ID(); attached && id == targetID && col.TableName() == target.TableName() {
			return true
		}
	}
	return false
}
