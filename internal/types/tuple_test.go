package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowTypes() []LogicalType {
	varcharLen := uint32(10)
	charLen := uint32(4)
	return []LogicalType{
		Integer(),
		UInteger(),
		Varchar(&varcharLen, UnitCharacters),
		Smallint(),
		Boolean(),
		Double(),
		Char(charLen, UnitOctets),
		Decimal(nil, nil),
	}
}

func rowValues() []DataValue {
	varcharLen := uint32(10)
	charLen := uint32(4)
	return []DataValue{
		Int32Value(7),
		UInt32Value(9),
		Utf8Value{Value: "hello", Len: &varcharLen, Unit: UnitCharacters},
		Int16Value(-3),
		BooleanValue(true),
		Float64Value(2.5),
		Utf8Value{Value: "ab", Fixed: true, Len: &charLen, Unit: UnitOctets},
		DecimalValue{Value: decimal.RequireFromString("12.34")},
	}
}

func allProjections(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestTupleRoundTrip(t *testing.T) {
	typs := rowTypes()
	tuple := &Tuple{Values: rowValues()}

	raw, err := tuple.Serialize(typs, nil)
	require.NoError(t, err)

	decoded, err := DeserializeTuple(typs, []int{0}, allProjections(len(typs)), raw, true)
	require.NoError(t, err)
	require.Len(t, decoded.Values, len(typs))
	for i := range typs {
		assert.True(t, Equal(tuple.Values[i], decoded.Values[i]),
			"column %d: %s != %s", i, tuple.Values[i], decoded.Values[i])
	}
	assert.True(t, Equal(Int32Value(7), decoded.Pk))
}

func TestTupleRoundTripWithNulls(t *testing.T) {
	typs := rowTypes()
	values := rowValues()
	values[1] = Null
	values[2] = Null
	values[7] = Null
	tuple := &Tuple{Values: values}

	raw, err := tuple.Serialize(typs, nil)
	require.NoError(t, err)

	decoded, err := DeserializeTuple(typs, []int{0}, allProjections(len(typs)), raw, true)
	require.NoError(t, err)
	for i := range typs {
		assert.True(t, Equal(values[i], decoded.Values[i]), "column %d", i)
	}
}

func TestTuplePartialProjection(t *testing.T) {
	typs := rowTypes()
	tuple := &Tuple{Values: rowValues()}

	raw, err := tuple.Serialize(typs, nil)
	require.NoError(t, err)

	// Project columns 0, 3, and 5; the rest must come back NULL.
	decoded, err := DeserializeTuple(typs, []int{0}, []int{0, 3, 5}, raw, true)
	require.NoError(t, err)
	require.Len(t, decoded.Values, len(typs))
	for i := range typs {
		switch i {
		case 0, 3, 5:
			assert.True(t, Equal(tuple.Values[i], decoded.Values[i]), "column %d", i)
		default:
			assert.True(t, decoded.Values[i].IsNull(), "column %d should be null", i)
		}
	}
	assert.True(t, Equal(Int32Value(7), decoded.Pk))
}

func TestTupleCompositePkProjection(t *testing.T) {
	pk := PrimaryProjection([]int{0, 2}, []DataValue{
		Int32Value(1), Int32Value(2), NewVarchar("k"),
	})
	tuple, ok := pk.(TupleValue)
	require.True(t, ok)
	require.Len(t, tuple.Values, 2)
	assert.True(t, Equal(Int32Value(1), tuple.Values[0]))
	assert.True(t, Equal(NewVarchar("k"), tuple.Values[1]))
	assert.False(t, tuple.IsUpper)
}

func TestTupleSerializeLengthMismatch(t *testing.T) {
	tuple := &Tuple{Values: []DataValue{Int32Value(1)}}
	_, err := tuple.Serialize([]LogicalType{Integer(), Integer()}, nil)
	assert.Error(t, err)
}

func TestCharOctetsPaddingTrimmedOnRead(t *testing.T) {
	charLen := uint32(6)
	typs := []LogicalType{Char(charLen, UnitOctets)}
	tuple := &Tuple{Values: []DataValue{
		Utf8Value{Value: "ab", Fixed: true, Len: &charLen, Unit: UnitOctets},
	}}
	raw, err := tuple.Serialize(typs, nil)
	require.NoError(t, err)
	// One bitmap byte plus the space-padded field, no length prefix.
	require.Len(t, raw, 1+6)

	decoded, err := DeserializeTuple(typs, nil, []int{0}, raw, false)
	require.NoError(t, err)
	str, ok := decoded.Values[0].(Utf8Value)
	require.True(t, ok)
	assert.Equal(t, "ab", str.Value)
}
