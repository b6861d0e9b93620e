package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"birchdb/internal/catalog"
	"birchdb/internal/dberr"
	"birchdb/internal/types"
)

func testTable(t *testing.T) *catalog.Table {
	t.Helper()
	c1 := catalog.NewColumn("c1", false, types.Integer())
	c1.PrimaryKey = true
	c2 := catalog.NewColumn("c2", true, types.Varchar(nil, types.UnitCharacters))
	table, err := catalog.NewTable("t1", []*catalog.Column{c1, c2})
	require.NoError(t, err)
	return table
}

func TestTupleKeyLayout(t *testing.T) {
	codec := NewTableCodec()
	key, err := codec.EncodeTupleKey("t1", types.Int32Value(7))
	require.NoError(t, err)

	// 8-byte table hash, category tag, separator, then the encoded pk.
	require.Greater(t, len(key), 10)
	assert.Equal(t, byte('8'), key[8])
	assert.Equal(t, byte(0x00), key[9])

	encodedPk, err := types.AppendMemComparable(nil, types.Int32Value(7))
	require.NoError(t, err)
	assert.Equal(t, encodedPk, key[10:])
}

func TestTupleKeysShareOrderWithPks(t *testing.T) {
	codec := NewTableCodec()
	prev, err := codec.EncodeTupleKey("t1", types.Int32Value(-5))
	require.NoError(t, err)
	for _, pk := range []int32{-1, 0, 3, 1000} {
		next, err := codec.EncodeTupleKey("t1", types.Int32Value(pk))
		require.NoError(t, err)
		assert.Negative(t, bytes.Compare(prev, next))
		prev = next
	}
}

func TestTupleKeysInsideBounds(t *testing.T) {
	codec := NewTableCodec()
	min, max := codec.TupleBound("t1")
	for _, pk := range []int32{-100, 0, 100} {
		key, err := codec.EncodeTupleKey("t1", types.Int32Value(pk))
		require.NoError(t, err)
		assert.Negative(t, bytes.Compare(min, key))
		assert.Negative(t, bytes.Compare(key, max))
	}
}

func TestCategoryTagsSegmentTheKeySpace(t *testing.T) {
	codec := NewTableCodec()
	columnMin, columnMax := codec.ColumnsBound("t1")
	indexMetaMin, indexMetaMax := codec.IndexMetaBound("t1")
	indexMin, indexMax := codec.AllIndexBound("t1")
	statsMin, statsMax := codec.StatisticsBound("t1")
	tupleMin, tupleMax := codec.TupleBound("t1")

	// Categories are disjoint and ordered by tag: 0 < 1 < 3 < 4 < 8.
	assert.Negative(t, bytes.Compare(columnMax, indexMetaMin))
	assert.Negative(t, bytes.Compare(indexMetaMax, indexMin))
	assert.Negative(t, bytes.Compare(indexMax, statsMin))
	assert.Negative(t, bytes.Compare(statsMax, tupleMin))
	assert.Negative(t, bytes.Compare(columnMin, columnMax))
	assert.Negative(t, bytes.Compare(tupleMin, tupleMax))
}

func TestTableBoundSpansColumnsAndIndexMetas(t *testing.T) {
	codec := NewTableCodec()
	min, max := codec.TableBound("t1")
	columnKey := codec.EncodeColumnKey("t1", 0)
	indexMetaKey := codec.EncodeIndexMetaKey("t1", 3)
	assert.True(t, bytes.Compare(min, columnKey) <= 0)
	assert.Negative(t, bytes.Compare(indexMetaKey, max))
}

func TestEncodeIndexAppendsPkForMultiEntryKinds(t *testing.T) {
	codec := NewTableCodec()
	pk := types.Int32Value(3)

	normal := catalog.NewIndex(1, types.NewVarchar("v"), catalog.IndexNormal)
	unique := catalog.NewIndex(1, types.NewVarchar("v"), catalog.IndexUnique)

	normalKey, err := codec.EncodeIndexKey("t1", normal, pk)
	require.NoError(t, err)
	uniqueKey, err := codec.EncodeIndexKey("t1", unique, pk)
	require.NoError(t, err)

	encodedPk, err := types.AppendMemComparable(nil, pk)
	require.NoError(t, err)
	assert.Equal(t, uniqueKey, normalKey[:len(normalKey)-len(encodedPk)])
	assert.Equal(t, encodedPk, normalKey[len(uniqueKey):])
}

func TestIndexEntriesStayInsideIndexBounds(t *testing.T) {
	codec := NewTableCodec()
	min, max := codec.IndexBound("t1", 1)
	index := catalog.NewIndex(1, types.NewVarchar("v"), catalog.IndexNormal)
	key, err := codec.EncodeIndexKey("t1", index, types.Int32Value(3))
	require.NoError(t, err)
	assert.Negative(t, bytes.Compare(min, key))
	assert.Negative(t, bytes.Compare(key, max))

	otherMin, _ := codec.IndexBound("t1", 2)
	assert.Negative(t, bytes.Compare(key, otherMin))
}

func TestReservedPrefixesOutsideTableSpace(t *testing.T) {
	codec := NewTableCodec()
	rootKey := codec.EncodeRootTableKey("t1")
	viewKey := codec.EncodeViewKey("v1")
	hashKey := codec.EncodeTableHashKey("t1")
	assert.True(t, bytes.HasPrefix(rootKey, []byte("Root\x00")))
	assert.True(t, bytes.HasPrefix(viewKey, []byte("View\x00")))
	assert.True(t, bytes.HasPrefix(hashKey, []byte("Hash\x00")))
}

func TestCheckPrimaryKeyRules(t *testing.T) {
	assert.ErrorIs(t, CheckPrimaryKey(types.Null, 0), dberr.ErrNotNull)
	assert.ErrorIs(t, CheckPrimaryKey(types.Float64Value(1), 0), dberr.ErrInvalidType)
	assert.NoError(t, CheckPrimaryKey(types.Int64Value(1), 0))
	assert.NoError(t, CheckPrimaryKey(types.NewVarchar("k"), 0))

	composite := types.NewTuple(types.Int32Value(1), types.NewVarchar("k"))
	assert.NoError(t, CheckPrimaryKey(composite, 0))

	nested := types.NewTuple(types.Int32Value(1), types.NewTuple(types.Int32Value(2)))
	assert.ErrorIs(t, CheckPrimaryKey(nested, 0), dberr.ErrPrimaryKeyTooManyLayer)

	nullComponent := types.NewTuple(types.Int32Value(1), types.Null)
	assert.ErrorIs(t, CheckPrimaryKey(nullComponent, 0), dberr.ErrNotNull)
}

func TestEncodeColumnRequiresRelation(t *testing.T) {
	codec := NewTableCodec()
	loose := catalog.NewColumn("tmp", true, types.Integer())
	_, _, err := codec.EncodeColumn(loose)
	var invalid *dberr.InvalidColumnError
	assert.ErrorAs(t, err, &invalid)
}

func TestColumnRoundTrip(t *testing.T) {
	codec := NewTableCodec()
	table := testTable(t)
	for _, col := range table.Columns {
		key, value, err := codec.EncodeColumn(col)
		require.NoError(t, err)
		require.NotEmpty(t, key)
		decoded, err := DecodeColumn(table.Name, value)
		require.NoError(t, err)
		assert.Equal(t, col.Name, decoded.Name)
		assert.Equal(t, col.Nullable, decoded.Nullable)
		assert.True(t, col.Type.Equal(decoded.Type))
		originalID, _ := col.ID()
		decodedID, _ := decoded.ID()
		assert.Equal(t, originalID, decodedID)
	}
}

func TestIndexMetaRoundTrip(t *testing.T) {
	codec := NewTableCodec()
	table := testTable(t)
	meta := table.Indexes[0]
	_, value, err := codec.EncodeIndexMeta(table.Name, meta)
	require.NoError(t, err)
	decoded, err := DecodeIndexMeta(value)
	require.NoError(t, err)
	assert.Equal(t, meta.ID, decoded.ID)
	assert.Equal(t, meta.Name, decoded.Name)
	assert.Equal(t, meta.Kind, decoded.Kind)
	assert.Equal(t, meta.ColumnIDs, decoded.ColumnIDs)
}

func TestPkValueRoundTrip(t *testing.T) {
	for _, pk := range []types.DataValue{
		types.Int64Value(-9),
		types.UInt32Value(7),
		types.NewVarchar("user-1"),
		types.NewTuple(types.Int32Value(1), types.NewVarchar("k")),
	} {
		raw, err := EncodePkValue(nil, pk)
		require.NoError(t, err)
		decoded, rest, err := DecodePkValue(raw)
		require.NoError(t, err)
		assert.Empty(t, rest)
		assert.True(t, types.Equal(pk, decoded), "%s", pk)
	}
}

func TestViewRoundTrip(t *testing.T) {
	codec := NewTableCodec()
	view := &catalog.View{Name: "v1", Stmt: "SELECT c1 FROM t1"}
	_, value, err := codec.EncodeView(view)
	require.NoError(t, err)
	decoded, err := DecodeView(value)
	require.NoError(t, err)
	assert.Equal(t, view, decoded)
}

func TestStatisticsPathRoundTrip(t *testing.T) {
	codec := NewTableCodec()
	key, value := codec.EncodeStatisticsPath("t1", 2, "stats/t1_2.bin")
	assert.NotEmpty(t, key)
	assert.Equal(t, "stats/t1_2.bin", DecodeStatisticsPath(value))
}
