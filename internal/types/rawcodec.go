package types

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"birchdb/internal/dberr"
)

// The row-value codec. Fixed-width scalars are little-endian; variable
// strings carry a u32 length prefix; Char(n, Octets) is space-padded to n
// bytes with no prefix. Decimals occupy a fixed 16 bytes: a flags word
// (scale in bits 16..23, sign in bit 31) followed by a 96-bit little-endian
// magnitude.

const decimalRawLen = 16

// AppendRaw serializes a non-null value in row-value format. Tuples never
// appear in rows; passing one is a caller bug.
func AppendRaw(dst []byte, v DataValue) ([]byte, error) {
	switch val := v.(type) {
	case NullValue:
		return dst, nil
	case BooleanValue:
		if val {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil
	case Int8Value:
		return append(dst, byte(val)), nil
	case Int16Value:
		return binary.LittleEndian.AppendUint16(dst, uint16(val)), nil
	case Int32Value:
		return binary.LittleEndian.AppendUint32(dst, uint32(val)), nil
	case Int64Value:
		return binary.LittleEndian.AppendUint64(dst, uint64(val)), nil
	case UInt8Value:
		return append(dst, byte(val)), nil
	case UInt16Value:
		return binary.LittleEndian.AppendUint16(dst, uint16(val)), nil
	case UInt32Value:
		return binary.LittleEndian.AppendUint32(dst, uint32(val)), nil
	case UInt64Value:
		return binary.LittleEndian.AppendUint64(dst, uint64(val)), nil
	case Float32Value:
		return binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(val))), nil
	case Float64Value:
		return binary.LittleEndian.AppendUint64(dst, math.Float64bits(float64(val))), nil
	case Utf8Value:
		if val.Fixed {
			if val.Unit == UnitOctets {
				width := int(*val.Len)
				if len(val.Value) > width {
					return nil, dberr.ErrTooLong
				}
				dst = append(dst, val.Value...)
				return append(dst, strings.Repeat(" ", width-len(val.Value))...), nil
			}
			// Character-unit Char pads to the declared rune count and keeps
			// the length prefix, since the byte width is data-dependent.
			padded := val.Value
			if pad := int(*val.Len) - len([]rune(val.Value)); pad > 0 {
				padded += strings.Repeat(" ", pad)
			}
			dst = binary.LittleEndian.AppendUint32(dst, uint32(len(padded)))
			return append(dst, padded...), nil
		}
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(val.Value)))
		return append(dst, val.Value...), nil
	case Date32Value:
		return binary.LittleEndian.AppendUint32(dst, uint32(val)), nil
	case Date64Value:
		return binary.LittleEndian.AppendUint64(dst, uint64(val)), nil
	case Time32Value:
		return binary.LittleEndian.AppendUint32(dst, val.Packed), nil
	case Time64Value:
		return binary.LittleEndian.AppendUint64(dst, uint64(val.Value)), nil
	case DecimalValue:
		return appendRawDecimal(dst, val.Value)
	}
	return nil, fmt.Errorf("%w: cannot serialize %T in a row", dberr.ErrInvalidType, v)
}

var maxDecimalMagnitude = new(big.Int).Lsh(big.NewInt(1), 96)

func appendRawDecimal(dst []byte, d decimal.Decimal) ([]byte, error) {
	coeff := new(big.Int).Set(d.Coefficient())
	scale := -d.Exponent()
	if scale < 0 {
		coeff.Mul(coeff, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-scale)), nil))
		scale = 0
	}
	if scale > 28 {
		return nil, dberr.ErrOverFlow
	}
	neg := coeff.Sign() < 0
	coeff.Abs(coeff)
	if coeff.Cmp(maxDecimalMagnitude) >= 0 {
		return nil, dberr.ErrOverFlow
	}
	flags := uint32(scale) << 16
	if neg {
		flags |= 1 << 31
	}
	dst = binary.LittleEndian.AppendUint32(dst, flags)
	var mag [12]byte
	coeff.FillBytes(mag[:])
	// FillBytes is big-endian; the wire wants lo/mid/hi words little-endian.
	for i := 11; i >= 0; i-- {
		dst = append(dst, mag[i])
	}
	return dst, nil
}

func decodeRawDecimal(raw []byte) decimal.Decimal {
	flags := binary.LittleEndian.Uint32(raw[:4])
	var mag [12]byte
	for i := 0; i < 12; i++ {
		mag[i] = raw[4+11-i]
	}
	coeff := new(big.Int).SetBytes(mag[:])
	if flags&(1<<31) != 0 {
		coeff.Neg(coeff)
	}
	scale := int32((flags >> 16) & 0xFF)
	return decimal.NewFromBigInt(coeff, -scale)
}

// RawReader walks a serialized row.
type RawReader struct {
	buf []byte
	off int
}

func NewRawReader(buf []byte) *RawReader {
	return &RawReader{buf: buf}
}

func (r *RawReader) take(n int) ([]byte, error) {
	if r.off+n > len(r.buf) {
		return nil, fmt.Errorf("%w: truncated row (%d bytes needed at offset %d of %d)",
			dberr.ErrInvalidValue, n, r.off, len(r.buf))
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// ReadRaw decodes the next field of type t. When project is false the field
// is skipped (variable-width fields read just enough to know their width)
// and a nil value is returned.
func (r *RawReader) ReadRaw(t LogicalType, project bool) (DataValue, error) {
	skip := func(n int) (DataValue, error) {
		_, err := r.take(n)
		return nil, err
	}
	switch t.Kind {
	case KindSqlNull:
		if !project {
			return nil, nil
		}
		return Null, nil
	case KindBoolean:
		if !project {
			return skip(1)
		}
		b, err := r.take(1)
		if err != nil {
			return nil, err
		}
		return BooleanValue(b[0] != 0), nil
	case KindTinyint:
		if !project {
			return skip(1)
		}
		b, err := r.take(1)
		if err != nil {
			return nil, err
		}
		return Int8Value(int8(b[0])), nil
	case KindUTinyint:
		if !project {
			return skip(1)
		}
		b, err := r.take(1)
		if err != nil {
			return nil, err
		}
		return UInt8Value(b[0]), nil
	case KindSmallint:
		if !project {
			return skip(2)
		}
		b, err := r.take(2)
		if err != nil {
			return nil, err
		}
		return Int16Value(int16(binary.LittleEndian.Uint16(b))), nil
	case KindUSmallint:
		if !project {
			return skip(2)
		}
		b, err := r.take(2)
		if err != nil {
			return nil, err
		}
		return UInt16Value(binary.LittleEndian.Uint16(b)), nil
	case KindInteger:
		if !project {
			return skip(4)
		}
		b, err := r.take(4)
		if err != nil {
			return nil, err
		}
		return Int32Value(int32(binary.LittleEndian.Uint32(b))), nil
	case KindUInteger:
		if !project {
			return skip(4)
		}
		b, err := r.take(4)
		if err != nil {
			return nil, err
		}
		return UInt32Value(binary.LittleEndian.Uint32(b)), nil
	case KindBigint:
		if !project {
			return skip(8)
		}
		b, err := r.take(8)
		if err != nil {
			return nil, err
		}
		return Int64Value(int64(binary.LittleEndian.Uint64(b))), nil
	case KindUBigint:
		if !project {
			return skip(8)
		}
		b, err := r.take(8)
		if err != nil {
			return nil, err
		}
		return UInt64Value(binary.LittleEndian.Uint64(b)), nil
	case KindFloat:
		if !project {
			return skip(4)
		}
		b, err := r.take(4)
		if err != nil {
			return nil, err
		}
		return Float32Value(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	case KindDouble:
		if !project {
			return skip(8)
		}
		b, err := r.take(8)
		if err != nil {
			return nil, err
		}
		return Float64Value(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
	case KindChar:
		var width int
		if t.Unit == UnitOctets {
			width = int(*t.Len)
		} else {
			b, err := r.take(4)
			if err != nil {
				return nil, err
			}
			width = int(binary.LittleEndian.Uint32(b))
		}
		if !project {
			return skip(width)
		}
		b, err := r.take(width)
		if err != nil {
			return nil, err
		}
		return Utf8Value{
			Value: strings.TrimRight(string(b), " "),
			Fixed: true,
			Len:   t.Len,
			Unit:  t.Unit,
		}, nil
	case KindVarchar:
		b, err := r.take(4)
		if err != nil {
			return nil, err
		}
		width := int(binary.LittleEndian.Uint32(b))
		if !project {
			return skip(width)
		}
		b, err = r.take(width)
		if err != nil {
			return nil, err
		}
		return Utf8Value{Value: string(b), Len: t.Len, Unit: t.Unit}, nil
	case KindDate:
		if !project {
			return skip(4)
		}
		b, err := r.take(4)
		if err != nil {
			return nil, err
		}
		return Date32Value(int32(binary.LittleEndian.Uint32(b))), nil
	case KindDateTime:
		if !project {
			return skip(8)
		}
		b, err := r.take(8)
		if err != nil {
			return nil, err
		}
		return Date64Value(int64(binary.LittleEndian.Uint64(b))), nil
	case KindTime:
		if !project {
			return skip(4)
		}
		b, err := r.take(4)
		if err != nil {
			return nil, err
		}
		precision := uint8(0)
		if t.Precision != nil {
			precision = *t.Precision
		}
		return Time32Value{Packed: binary.LittleEndian.Uint32(b), Precision: precision}, nil
	case KindTimeStamp:
		if !project {
			return skip(8)
		}
		b, err := r.take(8)
		if err != nil {
			return nil, err
		}
		precision := uint8(0)
		if t.Precision != nil {
			precision = *t.Precision
		}
		return Time64Value{Value: int64(binary.LittleEndian.Uint64(b)), Precision: precision, Zone: t.Zone}, nil
	case KindDecimal:
		if !project {
			return skip(decimalRawLen)
		}
		b, err := r.take(decimalRawLen)
		if err != nil {
			return nil, err
		}
		return DecimalValue{Value: decodeRawDecimal(b)}, nil
	}
	return nil, fmt.Errorf("%w: cannot deserialize %s from a row", dberr.ErrInvalidType, t)
}
