package executor

import (
	"errors"

	"birchdb/internal/catalog"
	"birchdb/internal/dberr"
	"birchdb/internal/planner"
	"birchdb/internal/storage"
	"birchdb/internal/types"
)

// CreateTable persists a new table definition.
type CreateTable struct {
	op *planner.CreateTableOperator
}

func NewCreateTable(op *planner.CreateTableOperator) *CreateTable {
	return &CreateTable{op: op}
}

func (e *CreateTable) ExecuteMut(caches *storage.Caches, tx *storage.Transaction) Source {
	return newLazySource(func() (Source, error) {
		if err := tx.CreateTable(caches, e.op.Table, e.op.IfNotExists); err != nil {
			return nil, err
		}
		return newSliceSource([]*types.Tuple{summaryTuple(e.op.Table.Name)}), nil
	})
}

// CreateIndex registers the index meta, then builds the index by consuming a
// secondary scan over the table's rows.
type CreateIndex struct {
	op    *planner.CreateIndexOperator
	input *planner.LogicalPlan
}

func NewCreateIndex(op *planner.CreateIndexOperator, input *planner.LogicalPlan) *CreateIndex {
	return &CreateIndex{op: op, input: input}
}

func (e *CreateIndex) ExecuteMut(caches *storage.Caches, tx *storage.Transaction) Source {
	return newLazySource(func() (Source, error) {
		table, err := tx.Table(caches, e.op.TableName)
		if err != nil {
			return nil, err
		}
		columnIDs := make([]types.ColumnID, 0, len(e.op.Columns))
		columnIndices := make([]int, 0, len(e.op.Columns))
		for _, col := range e.op.Columns {
			id, ok := col.ID()
			if !ok {
				continue
			}
			pos, found := table.FindColumnByID(id)
			if found == nil {
				continue
			}
			columnIDs = append(columnIDs, id)
			columnIndices = append(columnIndices, pos)
		}

		meta, err := tx.AddIndexMeta(caches, table, e.op.IndexName, columnIDs, e.op.Kind)
		if err != nil {
			var dup *dberr.DuplicateIndexError
			if errors.As(err, &dup) && e.op.IfNotExists {
				return newSliceSource(nil), nil
			}
			return nil, err
		}

		// Materialize the source rows first: index writes share the batch
		// with the scan, and the backends forbid mutating under an open
		// iterator.
		rows, err := Collect(Build(e.input, caches, tx))
		if err != nil {
			return nil, err
		}
		for _, tuple := range rows {
			value, ok := indexValueAt(tuple.Values, columnIndices)
			if !ok {
				continue
			}
			if tuple.Pk == nil {
				continue
			}
			index := catalog.NewIndex(meta.ID, value, meta.Kind)
			if err := tx.AddIndex(e.op.TableName, index, tuple.Pk); err != nil {
				return nil, err
			}
		}
		return newSliceSource([]*types.Tuple{summaryTuple("1")}), nil
	})
}

// indexValueAt projects the indexed positions out of a row: a scalar for
// one column, a tuple for several, and no value for an empty projection.
func indexValueAt(values []types.DataValue, positions []int) (types.DataValue, bool) {
	switch len(positions) {
	case 0:
		return nil, false
	case 1:
		return values[positions[0]], true
	default:
		out := make([]types.DataValue, len(positions))
		for i, pos := range positions {
			out[i] = values[pos]
		}
		return types.TupleValue{Values: out}, true
	}
}

// CreateView persists a view definition.
type CreateView struct {
	op *planner.CreateViewOperator
}

func NewCreateView(op *planner.CreateViewOperator) *CreateView {
	return &CreateView{op: op}
}

func (e *CreateView) ExecuteMut(caches *storage.Caches, tx *storage.Transaction) Source {
	return newLazySource(func() (Source, error) {
		if err := tx.CreateView(caches, e.op.View, e.op.OrReplace); err != nil {
			return nil, err
		}
		return newSliceSource([]*types.Tuple{summaryTuple(e.op.View.Name)}), nil
	})
}

// DropTable removes a table and everything it owns.
type DropTable struct {
	op *planner.DropTableOperator
}

func NewDropTable(op *planner.DropTableOperator) *DropTable {
	return &DropTable{op: op}
}

func (e *DropTable) ExecuteMut(caches *storage.Caches, tx *storage.Transaction) Source {
	return newLazySource(func() (Source, error) {
		if err := tx.DropTable(caches, e.op.TableName, e.op.IfExists); err != nil {
			return nil, err
		}
		return newSliceSource([]*types.Tuple{summaryTuple(e.op.TableName)}), nil
	})
}

// ShowTables lists the root catalog.
type ShowTables struct{}

func NewShowTables() *ShowTables {
	return &ShowTables{}
}

func (e *ShowTables) ExecuteMut(caches *storage.Caches, tx *storage.Transaction) Source {
	return newLazySource(func() (Source, error) {
		names, err := tx.ShowTables()
		if err != nil {
			return nil, err
		}
		tuples := make([]*types.Tuple, len(names))
		for i, name := range names {
			tuples[i] = summaryTuple(name)
		}
		return newSliceSource(tuples), nil
	})
}

// Explain renders the child plan without executing it.
type Explain struct {
	input *planner.LogicalPlan
}

func NewExplain(input *planner.LogicalPlan) *Explain {
	return &Explain{input: input}
}

func (e *Explain) Execute(caches *storage.Caches, tx *storage.Transaction) Source {
	return newSliceSource([]*types.Tuple{summaryTuple(e.input.Explain())})
}
