// Package types contains the scalar value domain of the database: logical
// SQL types, tagged runtime values, their casting and comparison rules, and
// the two serialization formats (the row-value codec and the
// memory-comparable key codec).
package types

import (
	"fmt"
	"strings"
)

// ColumnID identifies a column within its owning table.
type ColumnID = uint32

// IndexID identifies an index within its owning table.
type IndexID = uint32

// CharLengthUnit says whether a Char/Varchar length is counted in characters
// or in octets.
type CharLengthUnit uint8

const (
	UnitCharacters CharLengthUnit = iota
	UnitOctets
)

func (u CharLengthUnit) String() string {
	if u == UnitOctets {
		return "octets"
	}
	return "characters"
}

// TypeKind enumerates the logical SQL types.
type TypeKind uint8

const (
	KindSqlNull TypeKind = iota
	KindBoolean
	KindTinyint
	KindUTinyint
	KindSmallint
	KindUSmallint
	KindInteger
	KindUInteger
	KindBigint
	KindUBigint
	KindFloat
	KindDouble
	KindChar
	KindVarchar
	KindDate
	KindDateTime
	KindTime
	KindTimeStamp
	KindDecimal
	KindTuple
)

// LogicalType is a closed description of a SQL type. The zero value is
// SqlNull. Parameterized kinds carry their parameters; unused fields are nil.
type LogicalType struct {
	Kind TypeKind

	// Len is the declared length for Char (required) and Varchar (optional).
	Len *uint32
	// Unit qualifies Len for Char/Varchar.
	Unit CharLengthUnit

	// Precision is the fractional-second precision for Time/TimeStamp and
	// the total digit count for Decimal.
	Precision *uint8
	// Scale is the fractional digit count for Decimal.
	Scale *uint8
	// Zone marks a TimeStamp as zone-aware.
	Zone bool

	// Elems are the component types of a Tuple.
	Elems []LogicalType
}

func SqlNull() LogicalType   { return LogicalType{Kind: KindSqlNull} }
func Boolean() LogicalType   { return LogicalType{Kind: KindBoolean} }
func Tinyint() LogicalType   { return LogicalType{Kind: KindTinyint} }
func UTinyint() LogicalType  { return LogicalType{Kind: KindUTinyint} }
func Smallint() LogicalType  { return LogicalType{Kind: KindSmallint} }
func USmallint() LogicalType { return LogicalType{Kind: KindUSmallint} }
func Integer() LogicalType   { return LogicalType{Kind: KindInteger} }
func UInteger() LogicalType  { return LogicalType{Kind: KindUInteger} }
func Bigint() LogicalType    { return LogicalType{Kind: KindBigint} }
func UBigint() LogicalType   { return LogicalType{Kind: KindUBigint} }
func Float() LogicalType     { return LogicalType{Kind: KindFloat} }
func Double() LogicalType    { return LogicalType{Kind: KindDouble} }
func Date() LogicalType      { return LogicalType{Kind: KindDate} }
func DateTime() LogicalType  { return LogicalType{Kind: KindDateTime} }

func Char(length uint32, unit CharLengthUnit) LogicalType {
	return LogicalType{Kind: KindChar, Len: &length, Unit: unit}
}

func Varchar(length *uint32, unit CharLengthUnit) LogicalType {
	return LogicalType{Kind: KindVarchar, Len: length, Unit: unit}
}

func Time(precision *uint8) LogicalType {
	return LogicalType{Kind: KindTime, Precision: precision}
}

func TimeStamp(precision *uint8, zone bool) LogicalType {
	return LogicalType{Kind: KindTimeStamp, Precision: precision, Zone: zone}
}

func Decimal(precision, scale *uint8) LogicalType {
	return LogicalType{Kind: KindDecimal, Precision: precision, Scale: scale}
}

func TupleType(elems []LogicalType) LogicalType {
	return LogicalType{Kind: KindTuple, Elems: elems}
}

// Equal reports whether two logical types are identical, parameters included.
func (t LogicalType) Equal(other LogicalType) bool {
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case KindChar, KindVarchar:
		return eqU32Ptr(t.Len, other.Len) && t.Unit == other.Unit
	case KindTime:
		return eqU8Ptr(t.Precision, other.Precision)
	case KindTimeStamp:
		return eqU8Ptr(t.Precision, other.Precision) && t.Zone == other.Zone
	case KindDecimal:
		return eqU8Ptr(t.Precision, other.Precision) && eqU8Ptr(t.Scale, other.Scale)
	case KindTuple:
		if len(t.Elems) != len(other.Elems) {
			return false
		}
		for i := range t.Elems {
			if !t.Elems[i].Equal(other.Elems[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// IsNumeric reports whether the type participates in arithmetic.
func (t LogicalType) IsNumeric() bool {
	switch t.Kind {
	case KindTinyint, KindUTinyint, KindSmallint, KindUSmallint,
		KindInteger, KindUInteger, KindBigint, KindUBigint,
		KindFloat, KindDouble, KindDecimal:
		return true
	}
	return false
}

// IsSigned reports whether the type is a signed integer.
func (t LogicalType) IsSigned() bool {
	switch t.Kind {
	case KindTinyint, KindSmallint, KindInteger, KindBigint:
		return true
	}
	return false
}

// IsUnsigned reports whether the type is an unsigned integer.
func (t LogicalType) IsUnsigned() bool {
	switch t.Kind {
	case KindUTinyint, KindUSmallint, KindUInteger, KindUBigint:
		return true
	}
	return false
}

func (t LogicalType) String() string {
	switch t.Kind {
	case KindSqlNull:
		return "NULL"
	case KindBoolean:
		return "BOOLEAN"
	case KindTinyint:
		return "TINYINT"
	case KindUTinyint:
		return "TINYINT UNSIGNED"
	case KindSmallint:
		return "SMALLINT"
	case KindUSmallint:
		return "SMALLINT UNSIGNED"
	case KindInteger:
		return "INTEGER"
	case KindUInteger:
		return "INTEGER UNSIGNED"
	case KindBigint:
		return "BIGINT"
	case KindUBigint:
		return "BIGINT UNSIGNED"
	case KindFloat:
		return "FLOAT"
	case KindDouble:
		return "DOUBLE"
	case KindChar:
		return fmt.Sprintf("CHAR(%d)", *t.Len)
	case KindVarchar:
		if t.Len != nil {
			return fmt.Sprintf("VARCHAR(%d)", *t.Len)
		}
		return "VARCHAR"
	case KindDate:
		return "DATE"
	case KindDateTime:
		return "DATETIME"
	case KindTime:
		if t.Precision != nil {
			return fmt.Sprintf("TIME(%d)", *t.Precision)
		}
		return "TIME"
	case KindTimeStamp:
		if t.Precision != nil {
			return fmt.Sprintf("TIMESTAMP(%d)", *t.Precision)
		}
		return "TIMESTAMP"
	case KindDecimal:
		if t.Precision != nil && t.Scale != nil {
			return fmt.Sprintf("DECIMAL(%d,%d)", *t.Precision, *t.Scale)
		}
		return "DECIMAL"
	case KindTuple:
		names := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			names[i] = e.String()
		}
		return "(" + strings.Join(names, ", ") + ")"
	}
	return "UNKNOWN"
}

func eqU32Ptr(a, b *uint32) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqU8Ptr(a, b *uint8) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
