package types

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"birchdb/internal/dberr"
)

// The memory-comparable codec: lexicographic byte order on the output equals
// logical order on the input. Signed integers are offset-binary big-endian;
// floats get the IEEE-754 total-order bit transform; strings use MyRocks
// grouped padding; decimals use the risingwave exponent/mantissa scheme.

const (
	encodeGroupSize = 8
	encodeMarker    = 0xFF

	boundMinTag = 0x00
	boundMaxTag = 0xFF
)

// AppendMemComparable appends the order-preserving encoding of v to dst.
// Null contributes no bytes; inside a Tuple its position is carried by the
// separator rule.
func AppendMemComparable(dst []byte, v DataValue) ([]byte, error) {
	switch val := v.(type) {
	case NullValue:
		return dst, nil
	case BooleanValue:
		if val {
			return append(dst, '1'), nil
		}
		return append(dst, '0'), nil
	case Int8Value:
		return append(dst, uint8(val)^0x80), nil
	case Int16Value:
		return binary.BigEndian.AppendUint16(dst, uint16(val)^0x8000), nil
	case Int32Value:
		return binary.BigEndian.AppendUint32(dst, uint32(val)^0x80000000), nil
	case Int64Value:
		return binary.BigEndian.AppendUint64(dst, uint64(val)^0x8000000000000000), nil
	case Date32Value:
		return binary.BigEndian.AppendUint32(dst, uint32(val)^0x80000000), nil
	case Date64Value:
		return binary.BigEndian.AppendUint64(dst, uint64(val)^0x8000000000000000), nil
	case Time64Value:
		return binary.BigEndian.AppendUint64(dst, uint64(val.Value)^0x8000000000000000), nil
	case UInt8Value:
		return append(dst, uint8(val)), nil
	case UInt16Value:
		return binary.BigEndian.AppendUint16(dst, uint16(val)), nil
	case UInt32Value:
		return binary.BigEndian.AppendUint32(dst, uint32(val)), nil
	case Time32Value:
		return binary.BigEndian.AppendUint32(dst, val.Packed), nil
	case UInt64Value:
		return binary.BigEndian.AppendUint64(dst, uint64(val)), nil
	case Utf8Value:
		return appendGroupedBytes(dst, []byte(val.Value)), nil
	case Float32Value:
		u := math.Float32bits(float32(val))
		if float32(val) >= 0 {
			u |= 0x80000000
		} else {
			u = ^u
		}
		return binary.BigEndian.AppendUint32(dst, u), nil
	case Float64Value:
		u := math.Float64bits(float64(val))
		if float64(val) >= 0 {
			u |= 0x8000000000000000
		} else {
			u = ^u
		}
		return binary.BigEndian.AppendUint64(dst, u), nil
	case DecimalValue:
		return appendMemComparableDecimal(dst, val.Value)
	case TupleValue:
		if len(val.Values) == 0 {
			return nil, dberr.ErrEmptyTuple
		}
		last := len(val.Values) - 1
		var err error
		for i, elem := range val.Values {
			if dst, err = AppendMemComparable(dst, elem); err != nil {
				return nil, err
			}
			if (elem.IsNull() || i == last) && val.IsUpper {
				dst = append(dst, boundMaxTag)
			} else {
				dst = append(dst, boundMinTag)
			}
		}
		return dst, nil
	}
	return nil, fmt.Errorf("%w: cannot key-encode %T", dberr.ErrInvalidType, v)
}

// appendGroupedBytes encodes data in 8-byte groups, each zero-padded and
// followed by a marker byte of 0xFF minus the pad count, so that the
// encoding of a prefix sorts before any extension.
//
//	[]        -> [0 0 0 0 0 0 0 0 247]
//	[1 2 3]   -> [1 2 3 0 0 0 0 0 250]
//	8 bytes   -> [b0..b7 255  0 0 0 0 0 0 0 0 247]
func appendGroupedBytes(dst, data []byte) []byte {
	for idx := 0; idx <= len(data); idx += encodeGroupSize {
		remain := len(data) - idx
		if remain >= encodeGroupSize {
			dst = append(dst, data[idx:idx+encodeGroupSize]...)
			dst = append(dst, encodeMarker)
			continue
		}
		dst = append(dst, data[idx:]...)
		for i := 0; i < encodeGroupSize-remain; i++ {
			dst = append(dst, 0)
		}
		dst = append(dst, encodeMarker-byte(encodeGroupSize-remain))
	}
	return dst
}

var (
	big10  = big.NewInt(10)
	big100 = big.NewInt(100)
)

// appendMemComparableDecimal writes the exponent/mantissa form: a tag byte
// class per sign and exponent band, then base-100 significand bytes, with
// every byte complemented on the negative side so negatives sort below
// positives and more-negative below less-negative. Zero is the single byte
// 0x15.
func appendMemComparableDecimal(dst []byte, d decimal.Decimal) ([]byte, error) {
	if d.IsZero() {
		return append(dst, 0x15), nil
	}
	exponent, significand := decimalExponentMantissa(d)
	if d.Sign() > 0 {
		switch {
		case exponent >= 11:
			dst = append(dst, 0x22, byte(exponent))
		case exponent >= 0:
			dst = append(dst, 0x17+byte(exponent))
		default:
			dst = append(dst, 0x16, ^byte(-exponent))
		}
		return append(dst, significand...), nil
	}
	switch {
	case exponent >= 11:
		dst = append(dst, 0x08, ^byte(exponent))
	case exponent >= 0:
		dst = append(dst, 0x13-byte(exponent))
	default:
		dst = append(dst, 0x14, byte(-exponent))
	}
	for _, b := range significand {
		dst = append(dst, ^b)
	}
	return dst, nil
}

// decimalExponentMantissa normalizes |d| to 0.mantissa × 100^exponent with
// the mantissa expressed as base-100 digit pairs (each stored as digit*2+1,
// the final byte decremented to mark the end).
func decimalExponentMantissa(d decimal.Decimal) (int, []byte) {
	mantissa := new(big.Int).Abs(d.Coefficient())
	scale := int(-d.Exponent())
	if scale < 0 {
		mantissa.Mul(mantissa, new(big.Int).Exp(big10, big.NewInt(int64(-scale)), nil))
		scale = 0
	}

	prec := len(mantissa.String())
	e10 := prec - scale
	var e100 int
	if e10 >= 0 {
		e100 = (e10 + 1) / 2
	} else {
		e100 = e10 / 2
	}
	digitNum := prec
	if e10 != 2*e100 {
		digitNum = prec + 1
	}

	mod := new(big.Int)
	for mantissa.Sign() != 0 {
		mantissa.DivMod(mantissa, big10, mod)
		if mod.Sign() != 0 {
			mantissa.Mul(mantissa, big10)
			mantissa.Add(mantissa, mod)
			break
		}
		digitNum--
	}
	if digitNum%2 == 1 {
		mantissa.Mul(mantissa, big10)
	}

	var bytesOut []byte
	for mantissa.Sign() != 0 {
		mantissa.DivMod(mantissa, big100, mod)
		bytesOut = append(bytesOut, byte(mod.Int64())*2+1)
	}
	bytesOut[0]--
	for i, j := 0, len(bytesOut)-1; i < j; i, j = i+1, j-1 {
		bytesOut[i], bytesOut[j] = bytesOut[j], bytesOut[i]
	}
	return e100, bytesOut
}
