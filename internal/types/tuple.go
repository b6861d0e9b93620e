package types

import (
	"fmt"

	"birchdb/internal/dberr"
)

const bitsPerBitmapByte = 8

// Tuple is one row in flight: its values in declared column order, plus an
// optional primary key synthesized from the values on read.
type Tuple struct {
	Pk     DataValue
	Values []DataValue
}

func NewTupleRow(pk DataValue, values []DataValue) *Tuple {
	return &Tuple{Pk: pk, Values: values}
}

// PrimaryProjection synthesizes the primary-key value from a value vector:
// the scalar itself for a single-column key, a one-level Tuple for a
// composite key.
func PrimaryProjection(pkIndices []int, values []DataValue) DataValue {
	if len(pkIndices) > 1 {
		pk := make([]DataValue, len(pkIndices))
		for i, idx := range pkIndices {
			pk[i] = values[idx]
		}
		return TupleValue{Values: pk}
	}
	return values[pkIndices[0]]
}

// Serialize packs the row as a null bitmap followed by the non-null fields
// in declared order. Layout: bitmap bytes (MSB-first), then each non-null
// value in row-value format.
func (t *Tuple) Serialize(typs []LogicalType, dst []byte) ([]byte, error) {
	if len(t.Values) != len(typs) {
		return nil, fmt.Errorf("%w: %d values against %d column types",
			dberr.ErrInvalidValue, len(t.Values), len(typs))
	}
	bitsLen := len(t.Values)/bitsPerBitmapByte + 1
	start := len(dst)
	for i := 0; i < bitsLen; i++ {
		dst = append(dst, 0)
	}
	var err error
	for i, value := range t.Values {
		if value.IsNull() {
			dst[start+i/bitsPerBitmapByte] |= 1 << (7 - i%bitsPerBitmapByte)
			continue
		}
		if dst, err = AppendRaw(dst, value); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// DeserializeTuple is the inverse of Serialize. projections selects, in
// ascending order, the value positions to materialize; unselected positions
// come back as Null. When withPk is true the primary key is synthesized from
// the materialized values at pkIndices.
func DeserializeTuple(
	tableTypes []LogicalType,
	pkIndices []int,
	projections []int,
	raw []byte,
	withPk bool,
) (*Tuple, error) {
	bitsLen := len(tableTypes)/bitsPerBitmapByte + 1
	if len(raw) < bitsLen {
		return nil, fmt.Errorf("%w: row shorter than its null bitmap", dberr.ErrInvalidValue)
	}
	values := make([]DataValue, len(tableTypes))
	for i := range values {
		values[i] = Null
	}

	reader := NewRawReader(raw[bitsLen:])
	projection := 0
	for i, logicalType := range tableTypes {
		selected := projection < len(projections) && projections[projection] == i
		if selected {
			projection++
		}
		if raw[i/bitsPerBitmapByte]&(1<<(7-i%bitsPerBitmapByte)) != 0 {
			continue
		}
		value, err := reader.ReadRaw(logicalType, selected)
		if err != nil {
			return nil, err
		}
		if value != nil {
			values[i] = value
		}
	}

	tuple := &Tuple{Values: values}
	if withPk {
		tuple.Pk = PrimaryProjection(pkIndices, values)
	}
	return tuple, nil
}
