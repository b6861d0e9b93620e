package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"birchdb/internal/dberr"
)

func TestEqualNullReflexive(t *testing.T) {
	assert.True(t, Equal(Null, Null))
	assert.False(t, Equal(Null, Int32Value(0)))
	assert.False(t, Equal(Int32Value(0), Null))
}

func TestCompareUnknownAcrossVariants(t *testing.T) {
	_, ok := Compare(Int32Value(1), Int64Value(1))
	assert.False(t, ok)
	_, ok = Compare(Null, Int32Value(1))
	assert.False(t, ok)
	order, ok := Compare(Null, Null)
	assert.True(t, ok)
	assert.Zero(t, order)
}

func TestCompareWithinVariant(t *testing.T) {
	order, ok := Compare(Int32Value(1), Int32Value(2))
	require.True(t, ok)
	assert.Negative(t, order)

	order, ok = Compare(NewVarchar("b"), NewVarchar("a"))
	require.True(t, ok)
	assert.Positive(t, order)

	order, ok = Compare(
		DecimalValue{Value: decimal.RequireFromString("1.5")},
		DecimalValue{Value: decimal.RequireFromString("1.50")},
	)
	require.True(t, ok)
	assert.Zero(t, order)
}

func TestTupleEqualityIncludesSentinel(t *testing.T) {
	plain := TupleValue{Values: []DataValue{Int32Value(1)}}
	upper := TupleValue{Values: []DataValue{Int32Value(1)}, IsUpper: true}
	assert.True(t, Equal(plain, NewTuple(Int32Value(1))))
	assert.False(t, Equal(plain, upper))
}

func TestInitDefaults(t *testing.T) {
	assert.True(t, Equal(Int32Value(0), Init(Integer())))
	assert.True(t, Equal(BooleanValue(false), Init(Boolean())))
	assert.True(t, Init(SqlNull()).IsNull())

	tuple, ok := Init(TupleType([]LogicalType{Integer(), Boolean()})).(TupleValue)
	require.True(t, ok)
	require.Len(t, tuple.Values, 2)
}

func TestTimePackRoundTrip(t *testing.T) {
	for _, precision := range []uint8{0, 1, 2, 3, 4} {
		secs := uint32(12*3600 + 34*60 + 56)
		nanos := uint32(700_000_000)
		packed := PackTime(secs, nanos, precision)
		gotSecs, gotNanos := UnpackTime(packed, precision)
		assert.Equal(t, secs, gotSecs, "precision %d", precision)
		if precision > 0 {
			assert.Equal(t, nanos, gotNanos, "precision %d", precision)
		}
	}
}

func TestTimePackPreservesOrderWithinPrecision(t *testing.T) {
	early := PackTime(100, 0, 3)
	late := PackTime(200, 0, 3)
	assert.Less(t, early, late)
}

func TestCastNumericNarrowing(t *testing.T) {
	v, err := Cast(Int64Value(42), Tinyint())
	require.NoError(t, err)
	assert.True(t, Equal(Int8Value(42), v))

	_, err = Cast(Int64Value(1000), Tinyint())
	assert.ErrorIs(t, err, dberr.ErrOverFlow)

	_, err = Cast(Int64Value(-1), UInteger())
	assert.ErrorIs(t, err, dberr.ErrOverFlow)
}

func TestCastStringParsing(t *testing.T) {
	v, err := Cast(NewVarchar("37"), Integer())
	require.NoError(t, err)
	assert.True(t, Equal(Int32Value(37), v))

	_, err = Cast(NewVarchar("nope"), Integer())
	assert.ErrorIs(t, err, dberr.ErrInvalidValue)

	v, err = Cast(NewVarchar("2024-02-29"), Date())
	require.NoError(t, err)
	date, ok := v.(Date32Value)
	require.True(t, ok)
	assert.Equal(t, "2024-02-29", date.String())
}

func TestCastNullIsNull(t *testing.T) {
	v, err := Cast(Null, Integer())
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestCastStringLengthChecked(t *testing.T) {
	length := uint32(3)
	_, err := Cast(NewVarchar("abcd"), Varchar(&length, UnitCharacters))
	assert.ErrorIs(t, err, dberr.ErrTooLong)
}

func TestIsTrue(t *testing.T) {
	ok, err := IsTrue(BooleanValue(true))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsTrue(Null)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = IsTrue(Int32Value(1))
	assert.ErrorIs(t, err, dberr.ErrInvalidType)
}

func TestDecimalRawRoundTrip(t *testing.T) {
	for _, text := range []string{"0", "1", "-1", "123.456", "-0.007", "99999999.99"} {
		d := decimal.RequireFromString(text)
		raw, err := AppendRaw(nil, DecimalValue{Value: d})
		require.NoError(t, err)
		require.Len(t, raw, decimalRawLen)
		decoded := decodeRawDecimal(raw)
		assert.True(t, d.Equal(decoded), "%s != %s", d, decoded)
	}
}
