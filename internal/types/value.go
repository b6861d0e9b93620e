package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DaysSinceCEToUnix is the day number of 1970-01-01 when 0001-01-01
	// is day 1 (the numbering used by Date values).
	DaysSinceCEToUnix = 719163

	secondsPerDay  = 86400
	nanosPerSecond = 1_000_000_000
)

// DataValue is a runtime scalar. The concrete types below are the only
// implementations; code dispatches over them with type switches.
type DataValue interface {
	// LogicalType reports the logical type this value belongs to.
	LogicalType() LogicalType
	// IsNull reports whether the value is the SQL NULL.
	IsNull() bool
	// String renders the value for result display.
	String() string
}

// Null is the SQL NULL value.
var Null DataValue = NullValue{}

type NullValue struct{}

func (NullValue) LogicalType() LogicalType { return SqlNull() }
func (NullValue) IsNull() bool             { return true }
func (NullValue) String() string           { return "null" }

type BooleanValue bool

func (BooleanValue) LogicalType() LogicalType { return Boolean() }
func (BooleanValue) IsNull() bool             { return false }
func (v BooleanValue) String() string {
	if v {
		return "true"
	}
	return "false"
}

type Int8Value int8

func (Int8Value) LogicalType() LogicalType { return Tinyint() }
func (Int8Value) IsNull() bool             { return false }
func (v Int8Value) String() string         { return fmt.Sprintf("%d", int8(v)) }

type Int16Value int16

func (Int16Value) LogicalType() LogicalType { return Smallint() }
func (Int16Value) IsNull() bool             { return false }
func (v Int16Value) String() string         { return fmt.Sprintf("%d", int16(v)) }

type Int32Value int32

func (Int32Value) LogicalType() LogicalType { return Integer() }
func (Int32Value) IsNull() bool             { return false }
func (v Int32Value) String() string         { return fmt.Sprintf("%d", int32(v)) }

type Int64Value int64

func (Int64Value) LogicalType() LogicalType { return Bigint() }
func (Int64Value) IsNull() bool             { return false }
func (v Int64Value) String() string         { return fmt.Sprintf("%d", int64(v)) }

type UInt8Value uint8

func (UInt8Value) LogicalType() LogicalType { return UTinyint() }
func (UInt8Value) IsNull() bool             { return false }
func (v UInt8Value) String() string         { return fmt.Sprintf("%d", uint8(v)) }

type UInt16Value uint16

func (UInt16Value) LogicalType() LogicalType { return USmallint() }
func (UInt16Value) IsNull() bool             { return false }
func (v UInt16Value) String() string         { return fmt.Sprintf("%d", uint16(v)) }

type UInt32Value uint32

func (UInt32Value) LogicalType() LogicalType { return UInteger() }
func (UInt32Value) IsNull() bool             { return false }
func (v UInt32Value) String() string         { return fmt.Sprintf("%d", uint32(v)) }

type UInt64Value uint64

func (UInt64Value) LogicalType() LogicalType { return UBigint() }
func (UInt64Value) IsNull() bool             { return false }
func (v UInt64Value) String() string         { return fmt.Sprintf("%d", uint64(v)) }

type Float32Value float32

func (Float32Value) LogicalType() LogicalType { return Float() }
func (Float32Value) IsNull() bool             { return false }
func (v Float32Value) String() string         { return fmt.Sprintf("%v", float32(v)) }

type Float64Value float64

func (Float64Value) LogicalType() LogicalType { return Double() }
func (Float64Value) IsNull() bool             { return false }
func (v Float64Value) String() string         { return fmt.Sprintf("%v", float64(v)) }

// Utf8Value is a Char or Varchar value. Fixed distinguishes the two; Len is
// the declared length (nil for an unbounded Varchar) and Unit qualifies it.
type Utf8Value struct {
	Value string
	Fixed bool
	Len   *uint32
	Unit  CharLengthUnit
}

func (v Utf8Value) LogicalType() LogicalType {
	if v.Fixed {
		length := uint32(0)
		if v.Len != nil {
			length = *v.Len
		}
		return Char(length, v.Unit)
	}
	return Varchar(v.Len, v.Unit)
}
func (Utf8Value) IsNull() bool     { return false }
func (v Utf8Value) String() string { return v.Value }

// NewVarchar builds an unbounded variable-length string value.
func NewVarchar(s string) Utf8Value {
	return Utf8Value{Value: s, Unit: UnitCharacters}
}

// Date32Value is a date stored as its day number, 0001-01-01 being day 1.
type Date32Value int32

func (Date32Value) LogicalType() LogicalType { return Date() }
func (Date32Value) IsNull() bool             { return false }
func (v Date32Value) String() string {
	return time.Unix(int64(int32(v)-DaysSinceCEToUnix)*secondsPerDay, 0).UTC().Format(time.DateOnly)
}

// Date64Value is a datetime stored as Unix seconds.
type Date64Value int64

func (Date64Value) LogicalType() LogicalType { return DateTime() }
func (Date64Value) IsNull() bool             { return false }
func (v Date64Value) String() string {
	return time.Unix(int64(v), 0).UTC().Format(time.DateTime)
}

// Time32Value is a time-of-day with sub-second precision packed into one
// 32-bit word (see PackTime / UnpackTime).
type Time32Value struct {
	Packed    uint32
	Precision uint8
}

func (Time32Value) LogicalType() LogicalType { return Time(nil) }
func (Time32Value) IsNull() bool             { return false }
func (v Time32Value) String() string {
	secs, nanos := UnpackTime(v.Packed, v.Precision)
	s := time.Unix(int64(secs), 0).UTC().Format(time.TimeOnly)
	if v.Precision > 0 {
		frac := fmt.Sprintf("%09d", nanos)
		s += "." + frac[:v.Precision]
	}
	return s
}

// Time64Value is a timestamp at second/milli/micro/nano precision.
type Time64Value struct {
	Value     int64
	Precision uint8
	Zone      bool
}

func (v Time64Value) LogicalType() LogicalType { return TimeStamp(nil, v.Zone) }
func (Time64Value) IsNull() bool               { return false }
func (v Time64Value) String() string {
	secs, frac := splitTimestamp(v.Value, v.Precision)
	s := time.Unix(secs, 0).UTC().Format(time.DateTime)
	if v.Precision > 0 {
		s += fmt.Sprintf(".%0*d", int(v.Precision), frac)
	}
	if v.Zone {
		s += "+0000"
	}
	return s
}

func splitTimestamp(value int64, precision uint8) (secs int64, frac int64) {
	unit := int64(1)
	switch precision {
	case 3:
		unit = 1_000
	case 6:
		unit = 1_000_000
	case 9:
		unit = nanosPerSecond
	}
	secs = value / unit
	frac = value % unit
	if frac < 0 {
		secs--
		frac += unit
	}
	return secs, frac
}

// DecimalValue wraps a fixed-point decimal number.
type DecimalValue struct {
	Value decimal.Decimal
}

func (DecimalValue) LogicalType() LogicalType { return Decimal(nil, nil) }
func (DecimalValue) IsNull() bool             { return false }
func (v DecimalValue) String() string         { return v.Value.String() }

// TupleValue is a composite value. IsUpper marks the open-upper sentinel: it
// key-encodes strictly greater than any value sharing its prefix, which is
// how half-open upper bounds on composite scans are formed. Compare does not
// order tuples.
type TupleValue struct {
	Values  []DataValue
	IsUpper bool
}

func (v TupleValue) LogicalType() LogicalType {
	elems := make([]LogicalType, len(v.Values))
	for i, e := range v.Values {
		elems[i] = e.LogicalType()
	}
	return TupleType(elems)
}
func (TupleValue) IsNull() bool { return false }
func (v TupleValue) String() string {
	parts := make([]string, len(v.Values))
	for i, e := range v.Values {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// NewTuple builds a non-sentinel tuple value.
func NewTuple(values ...DataValue) TupleValue {
	return TupleValue{Values: values}
}

// Equal reports value equality. NULL equals NULL; values of different
// variants are never equal. Tuple equality includes the sentinel bit.
func Equal(a, b DataValue) bool {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	switch av := a.(type) {
	case BooleanValue:
		bv, ok := b.(BooleanValue)
		return ok && av == bv
	case Int8Value:
		bv, ok := b.(Int8Value)
		return ok && av == bv
	case Int16Value:
		bv, ok := b.(Int16Value)
		return ok && av == bv
	case Int32Value:
		bv, ok := b.(Int32Value)
		return ok && av == bv
	case Int64Value:
		bv, ok := b.(Int64Value)
		return ok && av == bv
	case UInt8Value:
		bv, ok := b.(UInt8Value)
		return ok && av == bv
	case UInt16Value:
		bv, ok := b.(UInt16Value)
		return ok && av == bv
	case UInt32Value:
		bv, ok := b.(UInt32Value)
		return ok && av == bv
	case UInt64Value:
		bv, ok := b.(UInt64Value)
		return ok && av == bv
	case Float32Value:
		bv, ok := b.(Float32Value)
		return ok && av == bv
	case Float64Value:
		bv, ok := b.(Float64Value)
		return ok && av == bv
	case Utf8Value:
		bv, ok := b.(Utf8Value)
		return ok && av.Value == bv.Value
	case Date32Value:
		bv, ok := b.(Date32Value)
		return ok && av == bv
	case Date64Value:
		bv, ok := b.(Date64Value)
		return ok && av == bv
	case Time32Value:
		bv, ok := b.(Time32Value)
		return ok && av.Packed == bv.Packed
	case Time64Value:
		bv, ok := b.(Time64Value)
		return ok && av.Value == bv.Value
	case DecimalValue:
		bv, ok := b.(DecimalValue)
		return ok && av.Value.Equal(bv.Value)
	case TupleValue:
		bv, ok := b.(TupleValue)
		if !ok || av.IsUpper != bv.IsUpper || len(av.Values) != len(bv.Values) {
			return false
		}
		for i := range av.Values {
			if !Equal(av.Values[i], bv.Values[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two values of the same variant. ok is false when the
// ordering is unknown: across differing variants, and for NULL against any
// non-null value. Tuples do not participate.
func Compare(a, b DataValue) (order int, ok bool) {
	if a.IsNull() && b.IsNull() {
		return 0, true
	}
	if a.IsNull() || b.IsNull() {
		return 0, false
	}
	switch av := a.(type) {
	case BooleanValue:
		if bv, k := b.(BooleanValue); k {
			return cmpBool(bool(av), bool(bv)), true
		}
	case Int8Value:
		if bv, k := b.(Int8Value); k {
			return cmpOrdered(av, bv), true
		}
	case Int16Value:
		if bv, k := b.(Int16Value); k {
			return cmpOrdered(av, bv), true
		}
	case Int32Value:
		if bv, k := b.(Int32Value); k {
			return cmpOrdered(av, bv), true
		}
	case Int64Value:
		if bv, k := b.(Int64Value); k {
			return cmpOrdered(av, bv), true
		}
	case UInt8Value:
		if bv, k := b.(UInt8Value); k {
			return cmpOrdered(av, bv), true
		}
	case UInt16Value:
		if bv, k := b.(UInt16Value); k {
			return cmpOrdered(av, bv), true
		}
	case UInt32Value:
		if bv, k := b.(UInt32Value); k {
			return cmpOrdered(av, bv), true
		}
	case UInt64Value:
		if bv, k := b.(UInt64Value); k {
			return cmpOrdered(av, bv), true
		}
	case Float32Value:
		if bv, k := b.(Float32Value); k {
			return cmpOrdered(av, bv), true
		}
	case Float64Value:
		if bv, k := b.(Float64Value); k {
			return cmpOrdered(av, bv), true
		}
	case Utf8Value:
		if bv, k := b.(Utf8Value); k {
			return strings.Compare(av.Value, bv.Value), true
		}
	case Date32Value:
		if bv, k := b.(Date32Value); k {
			return cmpOrdered(av, bv), true
		}
	case Date64Value:
		if bv, k := b.(Date64Value); k {
			return cmpOrdered(av, bv), true
		}
	case Time32Value:
		if bv, k := b.(Time32Value); k {
			return cmpOrdered(av.Packed, bv.Packed), true
		}
	case Time64Value:
		if bv, k := b.(Time64Value); k {
			return cmpOrdered(av.Value, bv.Value), true
		}
	case DecimalValue:
		if bv, k := b.(DecimalValue); k {
			return av.Value.Cmp(bv.Value), true
		}
	}
	return 0, false
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case b:
		return -1
	default:
		return 1
	}
}

func cmpOrdered[T ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Init returns the default (zero) value of a logical type.
func Init(t LogicalType) DataValue {
	switch t.Kind {
	case KindSqlNull:
		return Null
	case KindBoolean:
		return BooleanValue(false)
	case KindTinyint:
		return Int8Value(0)
	case KindUTinyint:
		return UInt8Value(0)
	case KindSmallint:
		return Int16Value(0)
	case KindUSmallint:
		return UInt16Value(0)
	case KindInteger:
		return Int32Value(0)
	case KindUInteger:
		return UInt32Value(0)
	case KindBigint:
		return Int64Value(0)
	case KindUBigint:
		return UInt64Value(0)
	case KindFloat:
		return Float32Value(0)
	case KindDouble:
		return Float64Value(0)
	case KindChar:
		return Utf8Value{Fixed: true, Len: t.Len, Unit: t.Unit}
	case KindVarchar:
		return Utf8Value{Len: t.Len, Unit: t.Unit}
	case KindDate:
		return Date32Value(DaysSinceCEToUnix)
	case KindDateTime:
		return Date64Value(0)
	case KindTime:
		precision := uint8(0)
		if t.Precision != nil {
			precision = *t.Precision
		}
		return Time32Value{Precision: precision}
	case KindTimeStamp:
		precision := uint8(0)
		if t.Precision != nil {
			precision = *t.Precision
		}
		return Time64Value{Precision: precision, Zone: t.Zone}
	case KindDecimal:
		return DecimalValue{Value: decimal.Zero}
	case KindTuple:
		values := make([]DataValue, len(t.Elems))
		for i, e := range t.Elems {
			values[i] = Init(e)
		}
		return TupleValue{Values: values}
	}
	return Null
}

// PackTime folds (seconds-of-day, nanoseconds) into one 32-bit word at the
// given display precision. The sub-second part is scaled down to the
// precision and stored in the high bits; seconds stay in the low bits so
// unsigned comparisons on the word preserve time order within a precision.
func PackTime(seconds, nanos uint32, precision uint8) uint32 {
	scaled := nanos / (nanosPerSecond / pow10u32(precision))
	return (scaled << timeShift(precision)) | seconds
}

// UnpackTime is the inverse of PackTime.
func UnpackTime(packed uint32, precision uint8) (seconds, nanos uint32) {
	shift := timeShift(precision)
	scaled := packed >> shift
	seconds = packed & ((1 << shift) - 1)
	return seconds, scaled * (nanosPerSecond / pow10u32(precision))
}

func timeShift(precision uint8) uint {
	switch precision {
	case 1:
		return 28
	case 2:
		return 25
	case 3:
		return 22
	case 4:
		return 18
	default:
		return 31
	}
}

func pow10u32(n uint8) uint32 {
	v := uint32(1)
	for i := uint8(0); i < n; i++ {
		v *= 10
	}
	return v
}
