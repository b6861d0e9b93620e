package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"birchdb/internal/catalog"
	"birchdb/internal/expression"
	"birchdb/internal/planner"
	"birchdb/internal/types"
)

// The join fixtures: t1(c1,c2,c3) and t2(c4,c5,c6), joined on c2 = c5 with
// the non-equi filter c1 > c4.

func joinFixture(t *testing.T) (left, right *planner.LogicalPlan, on planner.OnPair, filter expression.Expression) {
	t.Helper()
	buildTable := func(name string, cols ...string) *catalog.Table {
		columns := make([]*catalog.Column, len(cols))
		for i, colName := range cols {
			col := catalog.NewColumn(colName, true, types.Integer())
			if i == 0 {
				col.PrimaryKey = true
				col.Nullable = false
			}
			columns[i] = col
		}
		table, err := catalog.NewTable(name, columns)
		require.NoError(t, err)
		return table
	}
	t1 := buildTable("t1", "c1", "c2", "c3")
	t2 := buildTable("t2", "c4", "c5", "c6")

	row := func(values ...int32) []types.DataValue {
		out := make([]types.DataValue, len(values))
		for i, v := range values {
			out[i] = types.Int32Value(v)
		}
		return out
	}
	left = planner.NewPlan(&planner.ValuesOperator{
		Schema: t1.Columns,
		Rows: [][]types.DataValue{
			row(0, 2, 4), row(1, 2, 5), row(1, 3, 5), row(3, 5, 7),
		},
	})
	right = planner.NewPlan(&planner.ValuesOperator{
		Schema: t2.Columns,
		Rows: [][]types.DataValue{
			row(0, 2, 4), row(1, 3, 5), row(4, 6, 8), row(1, 1, 1),
		},
	})

	colExpr := func(table *catalog.Table, name string) expression.Expression {
		_, col := table.FindColumn(name)
		return &expression.ColumnRef{Column: col}
	}
	on = planner.OnPair{Left: colExpr(t1, "c2"), Right: colExpr(t2, "c5")}
	filter = &expression.Binary{
		Op:    expression.OpGt,
		Left:  colExpr(t1, "c1"),
		Right: colExpr(t2, "c4"),
		Ty:    types.Boolean(),
	}
	return left, right, on, filter
}

func runJoin(t *testing.T, ty planner.JoinType, withCondition bool) [][]types.DataValue {
	t.Helper()
	left, right, on, filter := joinFixture(t)
	condition := planner.JoinCondition{}
	if withCondition {
		condition = planner.JoinCondition{On: []planner.OnPair{on}, Filter: filter}
	}
	join := NewNestedLoopJoin(&planner.JoinOperator{Type: ty, Condition: condition}, left, right)
	tuples, err := Collect(join.Execute(nil, nil))
	require.NoError(t, err)
	rows := make([][]types.DataValue, len(tuples))
	for i, tuple := range tuples {
		rows[i] = tuple.Values
	}
	return rows
}

func assertRowsEqual(t *testing.T, expected, actual [][]types.DataValue) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for i := range expected {
		require.Len(t, actual[i], len(expected[i]), "row %d", i)
		for j := range expected[i] {
			assert.True(t, types.Equal(expected[i][j], actual[i][j]),
				"row %d column %d: expected %s, got %s", i, j, expected[i][j], actual[i][j])
		}
	}
}

func iv(values ...int32) []types.DataValue {
	out := make([]types.DataValue, len(values))
	for i, v := range values {
		out[i] = types.Int32Value(v)
	}
	return out
}

func withNulls(values []types.DataValue, nullCount int, nullsLeft bool) []types.DataValue {
	nulls := make([]types.DataValue, nullCount)
	for i := range nulls {
		nulls[i] = types.Null
	}
	if nullsLeft {
		return append(nulls, values...)
	}
	return append(values, nulls...)
}

func TestNestedLoopJoinInner(t *testing.T) {
	rows := runJoin(t, planner.JoinInner, true)
	assertRowsEqual(t, [][]types.DataValue{
		iv(1, 2, 5, 0, 2, 4),
	}, rows)
}

func TestNestedLoopJoinLeftOuter(t *testing.T) {
	rows := runJoin(t, planner.JoinLeftOuter, true)
	assertRowsEqual(t, [][]types.DataValue{
		withNulls(iv(0, 2, 4), 3, false),
		iv(1, 2, 5, 0, 2, 4),
		withNulls(iv(1, 3, 5), 3, false),
		withNulls(iv(3, 5, 7), 3, false),
	}, rows)
}

func TestNestedLoopJoinLeftSemi(t *testing.T) {
	rows := runJoin(t, planner.JoinLeftSemi, true)
	assertRowsEqual(t, [][]types.DataValue{
		iv(1, 2, 5),
	}, rows)
}

func TestNestedLoopJoinLeftAnti(t *testing.T) {
	rows := runJoin(t, planner.JoinLeftAnti, true)
	assertRowsEqual(t, [][]types.DataValue{
		iv(0, 2, 4),
		iv(1, 3, 5),
		iv(3, 5, 7),
	}, rows)
}

func TestNestedLoopJoinRightOuter(t *testing.T) {
	rows := runJoin(t, planner.JoinRightOuter, true)
	assertRowsEqual(t, [][]types.DataValue{
		iv(1, 2, 5, 0, 2, 4),
		withNulls(iv(1, 3, 5), 3, true),
		withNulls(iv(4, 6, 8), 3, true),
		withNulls(iv(1, 1, 1), 3, true),
	}, rows)
}

func TestNestedLoopJoinFull(t *testing.T) {
	rows := runJoin(t, planner.JoinFull, true)
	assertRowsEqual(t, [][]types.DataValue{
		withNulls(iv(0, 2, 4), 3, false),
		iv(1, 2, 5, 0, 2, 4),
		withNulls(iv(1, 3, 5), 3, false),
		withNulls(iv(3, 5, 7), 3, false),
		withNulls(iv(1, 3, 5), 3, true),
		withNulls(iv(4, 6, 8), 3, true),
		withNulls(iv(1, 1, 1), 3, true),
	}, rows)
}

func TestNestedLoopJoinCross(t *testing.T) {
	rows := runJoin(t, planner.JoinCross, false)
	assert.Len(t, rows, 16)
}

func TestNestedLoopJoinFilterTypeError(t *testing.T) {
	left, right, on, _ := joinFixture(t)
	badFilter := &expression.Constant{Value: types.Int32Value(1)}
	join := NewNestedLoopJoin(&planner.JoinOperator{
		Type:      planner.JoinInner,
		Condition: planner.JoinCondition{On: []planner.OnPair{on}, Filter: badFilter},
	}, left, right)
	_, err := Collect(join.Execute(nil, nil))
	assert.Error(t, err)
}

func TestJoinOutputSchemaNullability(t *testing.T) {
	left, right, _, _ := joinFixture(t)
	merged := planner.MergeJoinSchema(left.OutputSchema(), right.OutputSchema(), planner.JoinLeftOuter)
	require.Len(t, merged, 6)
	// The left pk stays non-null; every right column flips nullable.
	assert.False(t, merged[0].Nullable)
	for _, col := range merged[3:] {
		assert.True(t, col.Nullable)
	}
}
