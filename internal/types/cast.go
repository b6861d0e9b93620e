package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"birchdb/internal/dberr"
)

// CheckStringLen reports whether s exceeds limit counted in the given unit.
func CheckStringLen(s string, limit int, unit CharLengthUnit) bool {
	if unit == UnitOctets {
		return len(s) > limit
	}
	return utf8.RuneCountInString(s) > limit
}

// CheckLen validates a value against the length parameters of its declared
// logical type.
func CheckLen(v DataValue, t LogicalType) error {
	switch t.Kind {
	case KindChar, KindVarchar:
		if t.Kind == KindVarchar && t.Len == nil {
			return nil
		}
		s, ok := v.(Utf8Value)
		if !ok {
			return nil
		}
		if t.Len != nil && CheckStringLen(s.Value, int(*t.Len), t.Unit) {
			return dberr.ErrTooLong
		}
	case KindDecimal:
		d, ok := v.(DecimalValue)
		if !ok {
			return nil
		}
		if t.Precision != nil {
			digits := len(strings.TrimLeft(d.Value.Coefficient().String(), "-"))
			if !d.Value.IsZero() && digits > int(*t.Precision) {
				return dberr.ErrTooLong
			}
		}
		if t.Scale != nil && -d.Value.Exponent() > int32(*t.Scale) {
			return dberr.ErrTooLong
		}
	}
	return nil
}

// Cast converts a value to the target logical type. NULL casts to NULL for
// every target. Unsupported conversions return a CastError; lossy numeric
// narrowing returns ErrOverFlow; over-length strings return ErrTooLong.
func Cast(v DataValue, to LogicalType) (DataValue, error) {
	if v.IsNull() {
		return Null, nil
	}
	switch src := v.(type) {
	case BooleanValue:
		switch to.Kind {
		case KindBoolean:
			return src, nil
		case KindTinyint, KindSmallint, KindInteger, KindBigint,
			KindUTinyint, KindUSmallint, KindUInteger, KindUBigint:
			n := int64(0)
			if src {
				n = 1
			}
			return castSigned(n, to)
		case KindChar, KindVarchar:
			return stringTo(src.String(), to)
		}
	case Int8Value:
		return castSignedSource(int64(src), to)
	case Int16Value:
		return castSignedSource(int64(src), to)
	case Int32Value:
		return castSignedSource(int64(src), to)
	case Int64Value:
		return castSignedSource(int64(src), to)
	case UInt8Value:
		return castUnsignedSource(uint64(src), to)
	case UInt16Value:
		return castUnsignedSource(uint64(src), to)
	case UInt32Value:
		return castUnsignedSource(uint64(src), to)
	case UInt64Value:
		return castUnsignedSource(uint64(src), to)
	case Float32Value:
		return castFloatSource(float64(src), true, to)
	case Float64Value:
		return castFloatSource(float64(src), false, to)
	case Utf8Value:
		return castStringSource(src.Value, to)
	case Date32Value:
		switch to.Kind {
		case KindDate:
			return src, nil
		case KindDateTime:
			return Date64Value(int64(int32(src)-DaysSinceCEToUnix) * secondsPerDay), nil
		case KindChar, KindVarchar:
			return stringTo(src.String(), to)
		}
	case Date64Value:
		switch to.Kind {
		case KindDateTime:
			return src, nil
		case KindDate:
			days := int32(int64(src) / secondsPerDay)
			if int64(src) < 0 && int64(src)%secondsPerDay != 0 {
				days--
			}
			return Date32Value(days + DaysSinceCEToUnix), nil
		case KindChar, KindVarchar:
			return stringTo(src.String(), to)
		}
	case Time32Value:
		switch to.Kind {
		case KindTime:
			if to.Precision != nil && *to.Precision != src.Precision {
				secs, nanos := UnpackTime(src.Packed, src.Precision)
				return Time32Value{Packed: PackTime(secs, nanos, *to.Precision), Precision: *to.Precision}, nil
			}
			return src, nil
		case KindChar, KindVarchar:
			return stringTo(src.String(), to)
		}
	case Time64Value:
		switch to.Kind {
		case KindTimeStamp:
			return src, nil
		case KindDateTime:
			secs, _ := splitTimestamp(src.Value, src.Precision)
			return Date64Value(secs), nil
		case KindChar, KindVarchar:
			return stringTo(src.String(), to)
		}
	case DecimalValue:
		switch to.Kind {
		case KindDecimal:
			out := src
			if to.Scale != nil {
				out = DecimalValue{Value: src.Value.Round(int32(*to.Scale))}
			}
			if err := CheckLen(out, to); err != nil {
				return nil, err
			}
			return out, nil
		case KindFloat:
			f, _ := src.Value.Float64()
			return Float32Value(float32(f)), nil
		case KindDouble:
			f, _ := src.Value.Float64()
			return Float64Value(f), nil
		case KindTinyint, KindSmallint, KindInteger, KindBigint:
			if !src.Value.IsInteger() {
				return nil, dberr.ErrOverFlow
			}
			return castSigned(src.Value.IntPart(), to)
		case KindUTinyint, KindUSmallint, KindUInteger, KindUBigint:
			if !src.Value.IsInteger() || src.Value.Sign() < 0 {
				return nil, dberr.ErrOverFlow
			}
			return castUnsigned(uint64(src.Value.IntPart()), to)
		case KindChar, KindVarchar:
			return stringTo(src.Value.String(), to)
		}
	case TupleValue:
		if to.Kind == KindTuple {
			return src, nil
		}
	}
	return nil, &dberr.CastError{From: v.LogicalType().String(), To: to.String()}
}

func castSignedSource(n int64, to LogicalType) (DataValue, error) {
	switch to.Kind {
	case KindTinyint, KindSmallint, KindInteger, KindBigint:
		return castSigned(n, to)
	case KindUTinyint, KindUSmallint, KindUInteger, KindUBigint:
		if n < 0 {
			return nil, dberr.ErrOverFlow
		}
		return castUnsigned(uint64(n), to)
	case KindFloat:
		return Float32Value(float32(n)), nil
	case KindDouble:
		return Float64Value(float64(n)), nil
	case KindBoolean:
		return BooleanValue(n != 0), nil
	case KindDecimal:
		return DecimalValue{Value: decimal.NewFromInt(n)}, nil
	case KindChar, KindVarchar:
		return stringTo(strconv.FormatInt(n, 10), to)
	}
	return nil, &dberr.CastError{From: "integer", To: to.String()}
}

func castUnsignedSource(n uint64, to LogicalType) (DataValue, error) {
	switch to.Kind {
	case KindUTinyint, KindUSmallint, KindUInteger, KindUBigint:
		return castUnsigned(n, to)
	case KindTinyint, KindSmallint, KindInteger, KindBigint:
		if n > math.MaxInt64 {
			return nil, dberr.ErrOverFlow
		}
		return castSigned(int64(n), to)
	case KindFloat:
		return Float32Value(float32(n)), nil
	case KindDouble:
		return Float64Value(float64(n)), nil
	case KindBoolean:
		return BooleanValue(n != 0), nil
	case KindDecimal:
		return DecimalValue{Value: decimal.NewFromUint64(n)}, nil
	case KindChar, KindVarchar:
		return stringTo(strconv.FormatUint(n, 10), to)
	}
	return nil, &dberr.CastError{From: "unsigned integer", To: to.String()}
}

func castFloatSource(f float64, single bool, to LogicalType) (DataValue, error) {
	switch to.Kind {
	case KindFloat:
		return Float32Value(float32(f)), nil
	case KindDouble:
		return Float64Value(f), nil
	case KindTinyint, KindSmallint, KindInteger, KindBigint:
		if f != math.Trunc(f) || f < math.MinInt64 || f > math.MaxInt64 {
			return nil, dberr.ErrOverFlow
		}
		return castSigned(int64(f), to)
	case KindUTinyint, KindUSmallint, KindUInteger, KindUBigint:
		if f != math.Trunc(f) || f < 0 || f > math.MaxUint64 {
			return nil, dberr.ErrOverFlow
		}
		return castUnsigned(uint64(f), to)
	case KindDecimal:
		return DecimalValue{Value: decimal.NewFromFloat(f)}, nil
	case KindChar, KindVarchar:
		if single {
			return stringTo(strconv.FormatFloat(f, 'g', -1, 32), to)
		}
		return stringTo(strconv.FormatFloat(f, 'g', -1, 64), to)
	}
	return nil, &dberr.CastError{From: "float", To: to.String()}
}

func castStringSource(s string, to LogicalType) (DataValue, error) {
	switch to.Kind {
	case KindChar, KindVarchar:
		return stringTo(s, to)
	case KindBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a boolean", dberr.ErrInvalidValue, s)
		}
		return BooleanValue(b), nil
	case KindTinyint, KindSmallint, KindInteger, KindBigint:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", dberr.ErrInvalidValue, s)
		}
		return castSigned(n, to)
	case KindUTinyint, KindUSmallint, KindUInteger, KindUBigint:
		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an unsigned integer", dberr.ErrInvalidValue, s)
		}
		return castUnsigned(n, to)
	case KindFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a float", dberr.ErrInvalidValue, s)
		}
		return Float32Value(float32(f)), nil
	case KindDouble:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a double", dberr.ErrInvalidValue, s)
		}
		return Float64Value(f), nil
	case KindDecimal:
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a decimal", dberr.ErrInvalidValue, s)
		}
		out := DecimalValue{Value: d}
		if to.Scale != nil {
			out.Value = out.Value.Round(int32(*to.Scale))
		}
		if err := CheckLen(out, to); err != nil {
			return nil, err
		}
		return out, nil
	case KindDate:
		t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a date", dberr.ErrInvalidValue, s)
		}
		return Date32Value(int32(t.Unix()/secondsPerDay) + DaysSinceCEToUnix), nil
	case KindDateTime:
		t, err := parseDateTime(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a datetime", dberr.ErrInvalidValue, s)
		}
		return Date64Value(t.Unix()), nil
	case KindTime:
		precision := uint8(0)
		if to.Precision != nil {
			precision = *to.Precision
		}
		t, err := time.Parse(time.TimeOnly, strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a time", dberr.ErrInvalidValue, s)
		}
		secs := uint32(t.Hour()*3600 + t.Minute()*60 + t.Second())
		return Time32Value{Packed: PackTime(secs, uint32(t.Nanosecond()), precision), Precision: precision}, nil
	case KindTimeStamp:
		precision := uint8(0)
		if to.Precision != nil {
			precision = *to.Precision
		}
		t, err := parseDateTime(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a timestamp", dberr.ErrInvalidValue, s)
		}
		value := t.Unix()
		switch precision {
		case 3:
			value = t.UnixMilli()
		case 6:
			value = t.UnixMicro()
		case 9:
			value = t.UnixNano()
		}
		return Time64Value{Value: value, Precision: precision, Zone: to.Zone}, nil
	}
	return nil, &dberr.CastError{From: "string", To: to.String()}
}

func parseDateTime(s string) (time.Time, error) {
	for _, layout := range []string{time.DateTime, "2006-01-02 15:04:05.999999999", time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", s)
}

func stringTo(s string, to LogicalType) (DataValue, error) {
	out := Utf8Value{Value: s, Fixed: to.Kind == KindChar, Len: to.Len, Unit: to.Unit}
	if err := CheckLen(out, to); err != nil {
		return nil, err
	}
	return out, nil
}

func castSigned(n int64, to LogicalType) (DataValue, error) {
	switch to.Kind {
	case KindTinyint:
		if n < math.MinInt8 || n > math.MaxInt8 {
			return nil, dberr.ErrOverFlow
		}
		return Int8Value(int8(n)), nil
	case KindSmallint:
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, dberr.ErrOverFlow
		}
		return Int16Value(int16(n)), nil
	case KindInteger:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, dberr.ErrOverFlow
		}
		return Int32Value(int32(n)), nil
	default:
		return Int64Value(n), nil
	}
}

func castUnsigned(n uint64, to LogicalType) (DataValue, error) {
	switch to.Kind {
	case KindUTinyint:
		if n > math.MaxUint8 {
			return nil, dberr.ErrOverFlow
		}
		return UInt8Value(uint8(n)), nil
	case KindUSmallint:
		if n > math.MaxUint16 {
			return nil, dberr.ErrOverFlow
		}
		return UInt16Value(uint16(n)), nil
	case KindUInteger:
		if n > math.MaxUint32 {
			return nil, dberr.ErrOverFlow
		}
		return UInt32Value(uint32(n)), nil
	default:
		return UInt64Value(n), nil
	}
}

// IsTrue interprets a value as a SQL condition: NULL is false, booleans are
// themselves, anything else is an ErrInvalidType.
func IsTrue(v DataValue) (bool, error) {
	if v.IsNull() {
		return false, nil
	}
	if b, ok := v.(BooleanValue); ok {
		return bool(b), nil
	}
	return false, dberr.ErrInvalidType
}
