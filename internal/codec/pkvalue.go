package codec

import (
	"encoding/binary"
	"fmt"

	"birchdb/internal/dberr"
	"birchdb/internal/types"
)

// Index entries store the row's primary key as their value. Primary keys are
// restricted to integers and strings (plus one level of Tuple), so the
// envelope below is a kind byte followed by a fixed-width or length-prefixed
// payload; tuples carry an element count and recurse.

const (
	pkKindInt8 byte = iota + 1
	pkKindInt16
	pkKindInt32
	pkKindInt64
	pkKindUInt8
	pkKindUInt16
	pkKindUInt32
	pkKindUInt64
	pkKindUtf8
	pkKindTuple
)

// EncodePkValue appends the self-describing encoding of a primary key.
func EncodePkValue(dst []byte, pk types.DataValue) ([]byte, error) {
	switch v := pk.(type) {
	case types.Int8Value:
		return append(dst, pkKindInt8, byte(v)), nil
	case types.Int16Value:
		return binary.LittleEndian.AppendUint16(append(dst, pkKindInt16), uint16(v)), nil
	case types.Int32Value:
		return binary.LittleEndian.AppendUint32(append(dst, pkKindInt32), uint32(v)), nil
	case types.Int64Value:
		return binary.LittleEndian.AppendUint64(append(dst, pkKindInt64), uint64(v)), nil
	case types.UInt8Value:
		return append(dst, pkKindUInt8, byte(v)), nil
	case types.UInt16Value:
		return binary.LittleEndian.AppendUint16(append(dst, pkKindUInt16), uint16(v)), nil
	case types.UInt32Value:
		return binary.LittleEndian.AppendUint32(append(dst, pkKindUInt32), uint32(v)), nil
	case types.UInt64Value:
		return binary.LittleEndian.AppendUint64(append(dst, pkKindUInt64), uint64(v)), nil
	case types.Utf8Value:
		dst = append(dst, pkKindUtf8)
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(v.Value)))
		return append(dst, v.Value...), nil
	case types.TupleValue:
		dst = append(dst, pkKindTuple, byte(len(v.Values)))
		var err error
		for _, elem := range v.Values {
			if dst, err = EncodePkValue(dst, elem); err != nil {
				return nil, err
			}
		}
		return dst, nil
	}
	return nil, fmt.Errorf("%w: %T is not a valid primary key", dberr.ErrInvalidType, pk)
}

// DecodePkValue reads one primary-key value and returns the remaining bytes.
func DecodePkValue(raw []byte) (types.DataValue, []byte, error) {
	if len(raw) == 0 {
		return nil, nil, fmt.Errorf("%w: empty primary-key value", dberr.ErrInvalidValue)
	}
	kind, rest := raw[0], raw[1:]
	need := func(n int) error {
		if len(rest) < n {
			return fmt.Errorf("%w: truncated primary-key value", dberr.ErrInvalidValue)
		}
		return nil
	}
	switch kind {
	case pkKindInt8:
		if err := need(1); err != nil {
			return nil, nil, err
		}
		return types.Int8Value(int8(rest[0])), rest[1:], nil
	case pkKindInt16:
		if err := need(2); err != nil {
			return nil, nil, err
		}
		return types.Int16Value(int16(binary.LittleEndian.Uint16(rest))), rest[2:], nil
	case pkKindInt32:
		if err := need(4); err != nil {
			return nil, nil, err
		}
		return types.Int32Value(int32(binary.LittleEndian.Uint32(rest))), rest[4:], nil
	case pkKindInt64:
		if err := need(8); err != nil {
			return nil, nil, err
		}
		return types.Int64Value(int64(binary.LittleEndian.Uint64(rest))), rest[8:], nil
	case pkKindUInt8:
		if err := need(1); err != nil {
			return nil, nil, err
		}
		return types.UInt8Value(rest[0]), rest[1:], nil
	case pkKindUInt16:
		if err := need(2); err != nil {
			return nil, nil, err
		}
		return types.UInt16Value(binary.LittleEndian.Uint16(rest)), rest[2:], nil
	case pkKindUInt32:
		if err := need(4); err != nil {
			return nil, nil, err
		}
		return types.UInt32Value(binary.LittleEndian.Uint32(rest)), rest[4:], nil
	case pkKindUInt64:
		if err := need(8); err != nil {
			return nil, nil, err
		}
		return types.UInt64Value(binary.LittleEndian.Uint64(rest)), rest[8:], nil
	case pkKindUtf8:
		if err := need(4); err != nil {
			return nil, nil, err
		}
		n := int(binary.LittleEndian.Uint32(rest))
		rest = rest[4:]
		if err := need(n); err != nil {
			return nil, nil, err
		}
		return types.NewVarchar(string(rest[:n])), rest[n:], nil
	case pkKindTuple:
		if err := need(1); err != nil {
			return nil, nil, err
		}
		count := int(rest[0])
		rest = rest[1:]
		values := make([]types.DataValue, 0, count)
		for i := 0; i < count; i++ {
			var (
				elem types.DataValue
				err  error
			)
			if elem, rest, err = DecodePkValue(rest); err != nil {
				return nil, nil, err
			}
			values = append(values, elem)
		}
		return types.TupleValue{Values: values}, rest, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown primary-key tag 0x%02x", dberr.ErrInvalidValue, kind)
}
