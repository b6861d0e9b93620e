package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"birchdb/internal/catalog"
	"birchdb/internal/types"
)

func testTable(t *testing.T) *catalog.Table {
	t.Helper()
	c1 := catalog.NewColumn("c1", false, types.Integer())
	c1.PrimaryKey = true
	c2 := catalog.NewColumn("c2", true, types.Integer())
	c3 := catalog.NewColumn("c3", true, types.Varchar(nil, types.UnitCharacters))
	table, err := catalog.NewTable("t1", []*catalog.Column{c1, c2, c3})
	require.NoError(t, err)
	return table
}

func colRef(table *catalog.Table, name string) *ColumnRef {
	_, col := table.FindColumn(name)
	return &ColumnRef{Column: col}
}

func intConst(v int32) *Constant {
	return &Constant{Value: types.Int32Value(v)}
}

func binary(op BinaryOperator, left, right Expression) *Binary {
	return &Binary{Op: op, Left: left, Right: right, Ty: types.Boolean()}
}

func detachC1(t *testing.T, expr Expression) Range {
	t.Helper()
	table := testTable(t)
	_, col := table.FindColumn("c1")
	id, _ := col.ID()
	r, err := NewRangeDetacher("t1", id).Detach(expr)
	require.NoError(t, err)
	return r
}

func TestDetachPointEquality(t *testing.T) {
	table := testTable(t)
	r := detachC1(t, binary(OpEq, colRef(table, "c1"), intConst(1)))
	assert.Equal(t, Eq{Value: types.Int32Value(1)}, r)
}

func TestDetachClosedScope(t *testing.T) {
	table := testTable(t)
	expr := binary(OpAnd,
		binary(OpGt, colRef(table, "c1"), intConst(1)),
		binary(OpLt, colRef(table, "c1"), intConst(3)),
	)
	r := detachC1(t, expr)
	assert.Equal(t, Scope{
		Min: Excluded(types.Int32Value(1)),
		Max: Excluded(types.Int32Value(3)),
	}, r)
}

func TestDetachEqualityUnionSorted(t *testing.T) {
	table := testTable(t)
	expr := binary(OpOr,
		binary(OpEq, colRef(table, "c1"), intConst(1)),
		binary(OpEq, colRef(table, "c1"), intConst(0)),
	)
	r := detachC1(t, expr)
	assert.Equal(t, SortedRanges{Ranges: []Range{
		Eq{Value: types.Int32Value(0)},
		Eq{Value: types.Int32Value(1)},
	}}, r)
}

func TestDetachIntersectionOfUnions(t *testing.T) {
	table := testTable(t)
	c1 := func() Expression { return colRef(table, "c1") }
	// ((c1<2 AND c1>0) OR (c1<6 AND c1>4)) AND ((c1<3 AND c1>1) OR (c1<7 AND c1>5))
	left := binary(OpOr,
		binary(OpAnd, binary(OpLt, c1(), intConst(2)), binary(OpGt, c1(), intConst(0))),
		binary(OpAnd, binary(OpLt, c1(), intConst(6)), binary(OpGt, c1(), intConst(4))),
	)
	right := binary(OpOr,
		binary(OpAnd, binary(OpLt, c1(), intConst(3)), binary(OpGt, c1(), intConst(1))),
		binary(OpAnd, binary(OpLt, c1(), intConst(7)), binary(OpGt, c1(), intConst(5))),
	)
	r := detachC1(t, binary(OpAnd, left, right))
	assert.Equal(t, SortedRanges{Ranges: []Range{
		Scope{Min: Excluded(types.Int32Value(1)), Max: Excluded(types.Int32Value(2))},
		Scope{Min: Excluded(types.Int32Value(5)), Max: Excluded(types.Int32Value(6))},
	}}, r)
}

func TestDetachNullAbsorbedByOpenLowerBound(t *testing.T) {
	table := testTable(t)
	// c1 = NULL OR c1 < 5: null sorts below every non-null value, so the
	// unbounded-below scope covers it.
	expr := binary(OpOr,
		binary(OpEq, colRef(table, "c1"), &Constant{Value: types.Null}),
		binary(OpLt, colRef(table, "c1"), intConst(5)),
	)
	r := detachC1(t, expr)
	assert.Equal(t, Scope{Min: Unbounded(), Max: Excluded(types.Int32Value(5))}, r)
}

func TestDetachNotEqUnsupported(t *testing.T) {
	table := testTable(t)
	r := detachC1(t, binary(OpNotEq, colRef(table, "c1"), intConst(1)))
	assert.Nil(t, r)
}

func TestDetachIsNull(t *testing.T) {
	table := testTable(t)
	r := detachC1(t, &IsNull{Expr: colRef(table, "c1")})
	assert.Equal(t, Eq{Value: types.Null}, r)

	r = detachC1(t, &IsNull{Negated: true, Expr: colRef(table, "c1")})
	assert.Nil(t, r)
}

func TestDetachOtherColumnIgnored(t *testing.T) {
	table := testTable(t)
	r := detachC1(t, binary(OpGt, colRef(table, "c2"), intConst(1)))
	assert.Nil(t, r)
}

func TestDetachMixedColumnOrUnknown(t *testing.T) {
	table := testTable(t)
	// (c1 > 1) OR (c2 > 1) cannot be narrowed to c1 alone.
	expr := binary(OpOr,
		binary(OpGt, colRef(table, "c1"), intConst(1)),
		binary(OpGt, colRef(table, "c2"), intConst(1)),
	)
	r := detachC1(t, expr)
	assert.Nil(t, r)
}

func TestDetachMixedColumnAndKeepsOwnSide(t *testing.T) {
	table := testTable(t)
	expr := binary(OpAnd,
		binary(OpGt, colRef(table, "c1"), intConst(1)),
		binary(OpGt, colRef(table, "c2"), intConst(1)),
	)
	r := detachC1(t, expr)
	assert.Equal(t, Scope{Min: Excluded(types.Int32Value(1)), Max: Unbounded()}, r)
}

func TestDetachFlippedComparison(t *testing.T) {
	table := testTable(t)
	// 1 < c1 is c1 > 1.
	r := detachC1(t, binary(OpLt, intConst(1), colRef(table, "c1")))
	assert.Equal(t, Scope{Min: Excluded(types.Int32Value(1)), Max: Unbounded()}, r)
}

func TestDetachContradictionIsDummy(t *testing.T) {
	table := testTable(t)
	expr := binary(OpAnd,
		binary(OpEq, colRef(table, "c1"), intConst(1)),
		binary(OpEq, colRef(table, "c1"), intConst(2)),
	)
	r := detachC1(t, expr)
	assert.Equal(t, Dummy{}, r)
}

func TestDetachEqAbsorbedByScope(t *testing.T) {
	table := testTable(t)
	// c1 > 1 OR c1 = 5 stays one open scope.
	expr := binary(OpOr,
		binary(OpGt, colRef(table, "c1"), intConst(1)),
		binary(OpEq, colRef(table, "c1"), intConst(5)),
	)
	r := detachC1(t, expr)
	assert.Equal(t, Scope{Min: Excluded(types.Int32Value(1)), Max: Unbounded()}, r)
}

func TestDetachEqUpgradesTouchingExcludedBound(t *testing.T) {
	table := testTable(t)
	// c1 > 1 OR c1 = 1 closes the bound.
	expr := binary(OpOr,
		binary(OpGt, colRef(table, "c1"), intConst(1)),
		binary(OpEq, colRef(table, "c1"), intConst(1)),
	)
	r := detachC1(t, expr)
	assert.Equal(t, Scope{Min: Included(types.Int32Value(1)), Max: Unbounded()}, r)
}

func TestSortedRangesNormalForm(t *testing.T) {
	table := testTable(t)
	expr := binary(OpOr,
		binary(OpEq, colRef(table, "c1"), intConst(7)),
		binary(OpOr,
			binary(OpEq, colRef(table, "c1"), intConst(3)),
			binary(OpEq, colRef(table, "c1"), intConst(5)),
		),
	)
	r := detachC1(t, expr)
	sorted, ok := r.(SortedRanges)
	require.True(t, ok)
	require.GreaterOrEqual(t, len(sorted.Ranges), 2)
	for i := 1; i < len(sorted.Ranges); i++ {
		prev, ok := sorted.Ranges[i-1].(Eq)
		require.True(t, ok)
		next, ok := sorted.Ranges[i].(Eq)
		require.True(t, ok)
		order, comparable := types.Compare(prev.Value, next.Value)
		require.True(t, comparable)
		assert.Negative(t, order)
	}
	for _, sub := range sorted.Ranges {
		_, nested := sub.(SortedRanges)
		assert.False(t, nested)
	}
}

func TestCombiningEqsScope(t *testing.T) {
	// Outer c3 range (0, +inf) under equalities c1=1, c2 in {3, 4}.
	outer := Scope{Min: Excluded(types.Int32Value(0)), Max: Unbounded()}
	eqs := []Range{
		Eq{Value: types.Int32Value(1)},
		SortedRanges{Ranges: []Range{
			Eq{Value: types.Int32Value(3)},
			Eq{Value: types.Int32Value(4)},
		}},
	}
	r := CombiningEqs(outer, eqs)
	require.NotNil(t, r)
	sorted, ok := r.(SortedRanges)
	require.True(t, ok)
	require.Len(t, sorted.Ranges, 2)

	first, ok := sorted.Ranges[0].(Scope)
	require.True(t, ok)
	assert.Equal(t, Excluded(types.TupleValue{
		Values: []types.DataValue{types.Int32Value(1), types.Int32Value(3), types.Int32Value(0)},
	}), first.Min)
	// The unbounded upper lifts to the prefix tuple with the sentinel set.
	assert.Equal(t, Excluded(types.TupleValue{
		Values:  []types.DataValue{types.Int32Value(1), types.Int32Value(3)},
		IsUpper: true,
	}), first.Max)
}

func TestCombiningEqsPoint(t *testing.T) {
	outer := Eq{Value: types.Int32Value(9)}
	eqs := []Range{Eq{Value: types.Int32Value(1)}}
	r := CombiningEqs(outer, eqs)
	assert.Equal(t, Eq{Value: types.TupleValue{
		Values: []types.DataValue{types.Int32Value(1), types.Int32Value(9)},
	}}, r)
}

func TestCombiningEqsRejectsNonEqPrefix(t *testing.T) {
	outer := Eq{Value: types.Int32Value(9)}
	eqs := []Range{Scope{Min: Unbounded(), Max: Unbounded()}}
	assert.Nil(t, CombiningEqs(outer, eqs))
}

func TestCombiningEqsEmptyPrefix(t *testing.T) {
	outer := Scope{
		Min: Included(types.Int32Value(1)),
		Max: Included(types.Int32Value(2)),
	}
	r := CombiningEqs(outer, nil)
	scope, ok := r.(Scope)
	require.True(t, ok)
	assert.Equal(t, Included(types.TupleValue{
		Values: []types.DataValue{types.Int32Value(1)},
	}), scope.Min)
	assert.Equal(t, Included(types.TupleValue{
		Values:  []types.DataValue{types.Int32Value(2)},
		IsUpper: true,
	}), scope.Max)
}

func TestDetachCastsLiteralToColumnType(t *testing.T) {
	table := testTable(t)
	r := detachC1(t, binary(OpEq, colRef(table, "c1"), &Constant{Value: types.Int64Value(42)}))
	assert.Equal(t, Eq{Value: types.Int32Value(42)}, r)
}
