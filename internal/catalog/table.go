package catalog

import (
	"errors"
	"fmt"

	"birchdb/internal/dberr"
	"birchdb/internal/types"
)

// Table is the in-memory form of a table's catalog entry.
type Table struct {
	Name    string
	Columns Schema
	Indexes []*IndexMeta

	nextColumnID types.ColumnID
	nextIndexID  types.IndexID
}

// NewTable attaches the columns to the table, assigns column ids, and builds
// the primary-key index. Column names must be unique and at least one
// primary-key column is required.
func NewTable(name string, columns []*Column) (*Table, error) {
	if name == "" {
		return nil, errors.New("table name is required")
	}
	if len(columns) == 0 {
		return nil, errors.New("a table needs at least one column")
	}
	t := &Table{Name: name}
	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if _, dup := seen[col.Name]; dup {
			return nil, fmt.Errorf("%w: %q", dberr.ErrDuplicateColumn, col.Name)
		}
		seen[col.Name] = struct{}{}
		t.attachColumn(col)
	}

	pkIndices := t.PrimaryKeyIndices()
	if len(pkIndices) == 0 {
		return nil, dberr.ErrPrimaryKeyNotFound
	}
	pkIDs := make([]types.ColumnID, len(pkIndices))
	for i, idx := range pkIndices {
		id, _ := t.Columns[idx].ID()
		pkIDs[i] = id
	}
	if _, err := t.AddIndexMeta("pk_"+name, pkIDs, IndexPrimaryKey); err != nil {
		return nil, err
	}

	for _, col := range t.Columns {
		if col.Unique && !col.PrimaryKey {
			id, _ := col.ID()
			if _, err := t.AddIndexMeta("uk_"+col.Name, []types.ColumnID{id}, IndexUnique); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

func (t *Table) attachColumn(col *Column) {
	col.Relation = &ColumnRelation{ColumnID: t.nextColumnID, TableName: t.Name}
	t.nextColumnID++
	t.Columns = append(t.Columns, col)
}

// PrimaryKeyIndices returns the positions of the primary-key columns in
// declaration order.
func (t *Table) PrimaryKeyIndices() []int {
	var out []int
	for i, col := range t.Columns {
		if col.PrimaryKey {
			out = append(out, i)
		}
	}
	return out
}

// FindColumnByID resolves a column id to its position and column.
func (t *Table) FindColumnByID(id types.ColumnID) (int, *Column) {
	for i, col := range t.Columns {
		if cid, ok := col.ID(); ok && cid == id {
			return i, col
		}
	}
	return -1, nil
}

// FindColumn resolves a column name.
func (t *Table) FindColumn(name string) (int, *Column) {
	return t.Columns.FindColumn("", name)
}

// AddIndexMeta registers an index over the given column ids. Index names are
// unique per table; a clash returns DuplicateIndexError.
func (t *Table) AddIndexMeta(name string, columnIDs []types.ColumnID, kind IndexKind) (*IndexMeta, error) {
	for _, meta := range t.Indexes {
		if meta.Name == name {
			return nil, &dberr.DuplicateIndexError{Index: name}
		}
	}
	if kind == IndexNormal && len(columnIDs) > 1 {
		kind = IndexComposite
	}

	valueTypes := make([]types.LogicalType, 0, len(columnIDs))
	for _, id := range columnIDs {
		_, col := t.FindColumnByID(id)
		if col == nil {
			return nil, fmt.Errorf("%w: id %d", dberr.ErrColumnNotFound, id)
		}
		valueTypes = append(valueTypes, col.Type)
	}
	valueType := valueTypes[0]
	if len(valueTypes) > 1 {
		valueType = types.TupleType(valueTypes)
	}

	pkIndices := t.PrimaryKeyIndices()
	pkTypes := make([]types.LogicalType, len(pkIndices))
	for i, idx := range pkIndices {
		pkTypes[i] = t.Columns[idx].Type
	}
	pkType := types.SqlNull()
	if len(pkTypes) == 1 {
		pkType = pkTypes[0]
	} else if len(pkTypes) > 1 {
		pkType = types.TupleType(pkTypes)
	}

	meta := &IndexMeta{
		ID:         t.nextIndexID,
		TableName:  t.Name,
		ColumnIDs:  columnIDs,
		Name:       name,
		Kind:       kind,
		MultiplePk: kind == IndexPrimaryKey && len(columnIDs) > 1,
		PkType:     pkType,
		ValueType:  valueType,
	}
	t.nextIndexID++
	t.Indexes = append(t.Indexes, meta)
	return meta, nil
}

// RestoreTable rebuilds a table from persisted column records, trusting the
// column ids they carry.
func RestoreTable(name string, columns Schema) *Table {
	t := &Table{Name: name, Columns: columns}
	for _, col := range columns {
		if id, ok := col.ID(); ok && id >= t.nextColumnID {
			t.nextColumnID = id + 1
		}
	}
	return t
}

// RestoreIndexMeta reinstates a persisted index entry without assigning a
// fresh id, used when loading the catalog from the store.
func (t *Table) RestoreIndexMeta(meta *IndexMeta) {
	t.Indexes = append(t.Indexes, meta)
	if meta.ID >= t.nextIndexID {
		t.nextIndexID = meta.ID + 1
	}
}

// TableMeta is the slim root-catalog entry persisted per table.
type TableMeta struct {
	TableName string
}

// View is a named stored query. The definition is re-bound on use so views
// survive schema evolution the same way the original text would.
type View struct {
	Name string
	Stmt string
}
