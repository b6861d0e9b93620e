package executor

import (
	"fmt"
	"strconv"

	"birchdb/internal/catalog"
	"birchdb/internal/dberr"
	"birchdb/internal/expression"
	"birchdb/internal/planner"
	"birchdb/internal/storage"
	"birchdb/internal/types"
)

// Insert writes the child's rows into its table, maintaining every
// secondary index.
type Insert struct {
	op    *planner.InsertOperator
	input *planner.LogicalPlan
}

func NewInsert(op *planner.InsertOperator, input *planner.LogicalPlan) *Insert {
	return &Insert{op: op, input: input}
}

func (e *Insert) ExecuteMut(caches *storage.Caches, tx *storage.Transaction) Source {
	return newLazySource(func() (Source, error) {
		table := e.op.Table
		typs := table.Columns.Types()
		pkIndices := table.PrimaryKeyIndices()

		input := Build(e.input, caches, tx)
		defer func() { _ = input.Close() }()

		count := 0
		for {
			tuple, err := input.Next()
			if err != nil {
				return nil, err
			}
			if tuple == nil {
				break
			}
			row, err := e.buildRow(table, typs, tuple.Values)
			if err != nil {
				return nil, err
			}
			row.Pk = types.PrimaryProjection(pkIndices, row.Values)
			if err := tx.AddTuple(table.Name, row, typs); err != nil {
				return nil, err
			}
			if err := writeIndexEntries(tx, table, row); err != nil {
				return nil, err
			}
			count++
		}
		return newSliceSource([]*types.Tuple{summaryTuple(strconv.Itoa(count))}), nil
	})
}

// buildRow casts inbound values into table order, filling unnamed columns
// with NULL and rejecting NULLs in non-null positions.
func (e *Insert) buildRow(table *catalog.Table, typs []types.LogicalType, inbound []types.DataValue) (*types.Tuple, error) {
	values := make([]types.DataValue, len(table.Columns))
	for i := range values {
		values[i] = types.Null
	}
	for childPos, tablePos := range e.op.ColumnIndices {
		if childPos >= len(inbound) {
			break
		}
		value := inbound[childPos]
		if !value.IsNull() && !value.LogicalType().Equal(typs[tablePos]) {
			cast, err := types.Cast(value, typs[tablePos])
			if err != nil {
				return nil, err
			}
			value = cast
		}
		if err := types.CheckLen(value, typs[tablePos]); err != nil {
			return nil, err
		}
		values[tablePos] = value
	}
	for i, col := range table.Columns {
		if values[i].IsNull() && !col.Nullable {
			return nil, fmt.Errorf("%w: column %q", dberr.ErrNotNull, col.Name)
		}
	}
	return &types.Tuple{Values: values}, nil
}

// writeIndexEntries adds the row to every secondary index of the table.
// Unique indexes skip NULL values so absent data never collides.
func writeIndexEntries(tx *storage.Transaction, table *catalog.Table, row *types.Tuple) error {
	for _, meta := range table.Indexes {
		if meta.Kind == catalog.IndexPrimaryKey {
			continue
		}
		value, ok := indexValueForMeta(table, meta, row.Values)
		if !ok {
			continue
		}
		index := catalog.NewIndex(meta.ID, value, meta.Kind)
		if err := tx.AddIndex(table.Name, index, row.Pk); err != nil {
			return err
		}
	}
	return nil
}

func removeIndexEntries(tx *storage.Transaction, table *catalog.Table, row *types.Tuple) error {
	for _, meta := range table.Indexes {
		if meta.Kind == catalog.IndexPrimaryKey {
			continue
		}
		value, ok := indexValueForMeta(table, meta, row.Values)
		if !ok {
			continue
		}
		index := catalog.NewIndex(meta.ID, value, meta.Kind)
		if err := tx.RemoveIndex(table.Name, index, row.Pk); err != nil {
			return err
		}
	}
	return nil
}

func indexValueForMeta(table *catalog.Table, meta *catalog.IndexMeta, values []types.DataValue) (types.DataValue, bool) {
	positions := make([]int, 0, len(meta.ColumnIDs))
	for _, id := range meta.ColumnIDs {
		pos, col := table.FindColumnByID(id)
		if col == nil {
			return nil, false
		}
		positions = append(positions, pos)
	}
	value, ok := indexValueAt(values, positions)
	if !ok {
		return nil, false
	}
	if meta.Kind == catalog.IndexUnique && value.IsNull() {
		return nil, false
	}
	return value, true
}

// Delete removes the child's rows and their index entries.
type Delete struct {
	op    *planner.DeleteOperator
	input *planner.LogicalPlan
}

func NewDelete(op *planner.DeleteOperator, input *planner.LogicalPlan) *Delete {
	return &Delete{op: op, input: input}
}

func (e *Delete) ExecuteMut(caches *storage.Caches, tx *storage.Transaction) Source {
	return newLazySource(func() (Source, error) {
		table := e.op.Table
		input := Build(e.input, caches, tx)
		defer func() { _ = input.Close() }()

		// Materialize first: the scan and the deletes share one batch, and
		// the backends forbid mutating under an open iterator.
		rows, err := Collect(input)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if row.Pk == nil {
				return nil, dberr.ErrPrimaryKeyNotFound
			}
			if err := removeIndexEntries(tx, table, row); err != nil {
				return nil, err
			}
			if err := tx.RemoveTuple(table.Name, row.Pk); err != nil {
				return nil, err
			}
		}
		return newSliceSource([]*types.Tuple{summaryTuple(strconv.Itoa(len(rows)))}), nil
	})
}

// Update rewrites the child's rows in place, moving them when the primary
// key itself changes.
type Update struct {
	op    *planner.UpdateOperator
	input *planner.LogicalPlan
}

func NewUpdate(op *planner.UpdateOperator, input *planner.LogicalPlan) *Update {
	return &Update{op: op, input: input}
}

func (e *Update) ExecuteMut(caches *storage.Caches, tx *storage.Transaction) Source {
	return newLazySource(func() (Source, error) {
		table := e.op.Table
		typs := table.Columns.Types()
		pkIndices := table.PrimaryKeyIndices()
		schema := e.input.OutputSchema()

		input := Build(e.input, caches, tx)
		defer func() { _ = input.Close() }()
		rows, err := Collect(input)
		if err != nil {
			return nil, err
		}

		count := 0
		for _, row := range rows {
			if row.Pk == nil {
				return nil, dberr.ErrPrimaryKeyNotFound
			}
			if err := removeIndexEntries(tx, table, row); err != nil {
				return nil, err
			}
			oldPk := row.Pk

			updated := &types.Tuple{Values: append([]types.DataValue(nil), row.Values...)}
			for _, assign := range e.op.Assignments {
				value, err := expression.Eval(assign.Value, row, schema)
				if err != nil {
					return nil, err
				}
				target := typs[assign.ColumnIndex]
				if !value.IsNull() && !value.LogicalType().Equal(target) {
					if value, err = types.Cast(value, target); err != nil {
						return nil, err
					}
				}
				if err := types.CheckLen(value, target); err != nil {
					return nil, err
				}
				if value.IsNull() && !table.Columns[assign.ColumnIndex].Nullable {
					return nil, fmt.Errorf("%w: column %q", dberr.ErrNotNull, table.Columns[assign.ColumnIndex].Name)
				}
				updated.Values[assign.ColumnIndex] = value
			}
			updated.Pk = types.PrimaryProjection(pkIndices, updated.Values)

			if !types.Equal(oldPk, updated.Pk) {
				if err := tx.RemoveTuple(table.Name, oldPk); err != nil {
					return nil, err
				}
				if err := tx.AddTuple(table.Name, updated, typs); err != nil {
					return nil, err
				}
			} else if err := tx.UpsertTuple(table.Name, updated, typs); err != nil {
				return nil, err
			}
			if err := writeIndexEntries(tx, table, updated); err != nil {
				return nil, err
			}
			count++
		}
		return newSliceSource([]*types.Tuple{summaryTuple(strconv.Itoa(count))}), nil
	})
}
