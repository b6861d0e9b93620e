package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"birchdb/internal/catalog"
	"birchdb/internal/expression"
	"birchdb/internal/planner"
	"birchdb/internal/types"
)

func buildTable(t *testing.T, name string, pkCols int, cols ...string) *catalog.Table {
	t.Helper()
	columns := make([]*catalog.Column, len(cols))
	for i, colName := range cols {
		col := catalog.NewColumn(colName, i >= pkCols, types.Integer())
		col.PrimaryKey = i < pkCols
		columns[i] = col
	}
	table, err := catalog.NewTable(name, columns)
	require.NoError(t, err)
	return table
}

func colExpr(table *catalog.Table, name string) expression.Expression {
	_, col := table.FindColumn(name)
	return &expression.ColumnRef{Column: col}
}

func gtConst(table *catalog.Table, name string, v int32) expression.Expression {
	return &expression.Binary{
		Op:    expression.OpGt,
		Left:  colExpr(table, name),
		Right: &expression.Constant{Value: types.Int32Value(v)},
		Ty:    types.Boolean(),
	}
}

func eqConst(table *catalog.Table, name string, v int32) expression.Expression {
	return &expression.Binary{
		Op:    expression.OpEq,
		Left:  colExpr(table, name),
		Right: &expression.Constant{Value: types.Int32Value(v)},
		Ty:    types.Boolean(),
	}
}

func andExpr(left, right expression.Expression) expression.Expression {
	return &expression.Binary{Op: expression.OpAnd, Left: left, Right: right, Ty: types.Boolean()}
}

func TestPushThroughInnerJoinSplitsBothSides(t *testing.T) {
	t1 := buildTable(t, "t1", 1, "c1", "c2")
	t2 := buildTable(t, "t2", 1, "c4", "c5")
	join := planner.NewPlan(
		&planner.JoinOperator{Type: planner.JoinInner},
		planner.NewTableScan(t1, true),
		planner.NewTableScan(t2, true),
	)
	plan := planner.NewPlan(&planner.FilterOperator{
		Predicate: andExpr(gtConst(t1, "c1", 1), gtConst(t2, "c4", 2)),
	}, join)

	rewritten := pushPredicateThroughJoin(plan)

	// The filter dissolves entirely: each conjunct lands above its side.
	_, ok := rewritten.Op.(*planner.JoinOperator)
	require.True(t, ok)
	leftFilter, ok := rewritten.Left().Op.(*planner.FilterOperator)
	require.True(t, ok)
	assert.Contains(t, leftFilter.Predicate.String(), "c1")
	rightFilter, ok := rewritten.Right().Op.(*planner.FilterOperator)
	require.True(t, ok)
	assert.Contains(t, rightFilter.Predicate.String(), "c4")
}

func TestPushThroughLeftOuterKeepsRightSideAbove(t *testing.T) {
	t1 := buildTable(t, "t1", 1, "c1", "c2")
	t2 := buildTable(t, "t2", 1, "c4", "c5")
	join := planner.NewPlan(
		&planner.JoinOperator{Type: planner.JoinLeftOuter},
		planner.NewTableScan(t1, true),
		planner.NewTableScan(t2, true),
	)
	plan := planner.NewPlan(&planner.FilterOperator{
		Predicate: andExpr(gtConst(t1, "c1", 1), gtConst(t2, "c4", 2)),
	}, join)

	rewritten := pushPredicateThroughJoin(plan)

	// The right-side conjunct must stay above the join.
	topFilter, ok := rewritten.Op.(*planner.FilterOperator)
	require.True(t, ok)
	assert.Contains(t, topFilter.Predicate.String(), "c4")

	joinPlan := rewritten.Left()
	leftFilter, ok := joinPlan.Left().Op.(*planner.FilterOperator)
	require.True(t, ok)
	assert.Contains(t, leftFilter.Predicate.String(), "c1")
	// The right child keeps its bare scan.
	_, isScan := joinPlan.Right().Op.(*planner.TableScanOperator)
	assert.True(t, isScan)
}

func TestPushThroughFullJoinSkipped(t *testing.T) {
	t1 := buildTable(t, "t1", 1, "c1", "c2")
	t2 := buildTable(t, "t2", 1, "c4", "c5")
	join := planner.NewPlan(
		&planner.JoinOperator{Type: planner.JoinFull},
		planner.NewTableScan(t1, true),
		planner.NewTableScan(t2, true),
	)
	plan := planner.NewPlan(&planner.FilterOperator{
		Predicate: gtConst(t1, "c1", 1),
	}, join)

	rewritten := pushPredicateThroughJoin(plan)
	_, stillFilter := rewritten.Op.(*planner.FilterOperator)
	assert.True(t, stillFilter)
	_, stillJoin := rewritten.Left().Op.(*planner.JoinOperator)
	assert.True(t, stillJoin)
}

func TestPushIntoScanInstallsPkRange(t *testing.T) {
	t1 := buildTable(t, "t1", 1, "c1", "c2")
	scan := planner.NewTableScan(t1, true)
	plan := planner.NewPlan(&planner.FilterOperator{Predicate: eqConst(t1, "c1", 1)}, scan)

	require.NoError(t, pushPredicateIntoScan(plan))

	scanOp := plan.Left().Op.(*planner.TableScanOperator)
	require.Len(t, scanOp.IndexInfos, 1)
	assert.Equal(t, expression.Eq{Value: types.Int32Value(1)}, scanOp.IndexInfos[0].Range)
	// The filter node survives: ranges over-approximate and the predicate
	// re-applies per row.
	_, stillFilter := plan.Op.(*planner.FilterOperator)
	assert.True(t, stillFilter)
}

func TestPushIntoScanCompositeRange(t *testing.T) {
	t1 := buildTable(t, "t1", 2, "c1", "c2", "c3")
	scan := planner.NewTableScan(t1, true)
	predicate := andExpr(eqConst(t1, "c1", 1), gtConst(t1, "c2", 2))
	plan := planner.NewPlan(&planner.FilterOperator{Predicate: predicate}, scan)

	require.NoError(t, pushPredicateIntoScan(plan))

	scanOp := plan.Left().Op.(*planner.TableScanOperator)
	require.Len(t, scanOp.IndexInfos, 1)
	r := scanOp.IndexInfos[0].Range
	require.NotNil(t, r)
	scope, ok := r.(expression.Scope)
	require.True(t, ok)
	assert.Equal(t, expression.Excluded(types.TupleValue{
		Values: []types.DataValue{types.Int32Value(1), types.Int32Value(2)},
	}), scope.Min)
	assert.Equal(t, expression.Excluded(types.TupleValue{
		Values:  []types.DataValue{types.Int32Value(1)},
		IsUpper: true,
	}), scope.Max)
}

func TestPushIntoScanShortEqualityBecomesHalfOpenScope(t *testing.T) {
	t1 := buildTable(t, "t1", 2, "c1", "c2", "c3")
	scan := planner.NewTableScan(t1, true)
	plan := planner.NewPlan(&planner.FilterOperator{Predicate: eqConst(t1, "c1", 1)}, scan)

	require.NoError(t, pushPredicateIntoScan(plan))

	scanOp := plan.Left().Op.(*planner.TableScanOperator)
	r := scanOp.IndexInfos[0].Range
	require.NotNil(t, r)
	scope, ok := r.(expression.Scope)
	require.True(t, ok)
	assert.Equal(t, expression.Excluded(types.TupleValue{
		Values: []types.DataValue{types.Int32Value(1)},
	}), scope.Min)
	assert.Equal(t, expression.Excluded(types.TupleValue{
		Values:  []types.DataValue{types.Int32Value(1)},
		IsUpper: true,
	}), scope.Max)
}

func TestPushIntoScanNoPredicateLeavesRangeNil(t *testing.T) {
	t1 := buildTable(t, "t1", 1, "c1", "c2")
	scan := planner.NewTableScan(t1, true)
	plan := planner.NewPlan(&planner.FilterOperator{Predicate: gtConst(t1, "c2", 5)}, scan)

	require.NoError(t, pushPredicateIntoScan(plan))
	scanOp := plan.Left().Op.(*planner.TableScanOperator)
	assert.Nil(t, scanOp.IndexInfos[0].Range)
}

func TestFoldConstants(t *testing.T) {
	t1 := buildTable(t, "t1", 1, "c1", "c2")
	// c1 > -(1 - 3) folds to c1 > 2 on the constant side.
	inner := &expression.Binary{
		Op:    expression.OpMinus,
		Left:  &expression.Constant{Value: types.Int32Value(1)},
		Right: &expression.Constant{Value: types.Int32Value(3)},
		Ty:    types.Integer(),
	}
	neg := &expression.Unary{Op: expression.OpNeg, Expr: inner}
	predicate := &expression.Binary{
		Op:    expression.OpGt,
		Left:  colExpr(t1, "c1"),
		Right: neg,
		Ty:    types.Boolean(),
	}
	folded := FoldConstants(predicate)
	binary, ok := folded.(*expression.Binary)
	require.True(t, ok)
	constant, ok := binary.Right.(*expression.Constant)
	require.True(t, ok)
	assert.True(t, types.Equal(types.Int32Value(2), constant.Value))
}
