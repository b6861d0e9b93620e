package expression

import (
	"fmt"

	"github.com/shopspring/decimal"

	"birchdb/internal/catalog"
	"birchdb/internal/dberr"
	"birchdb/internal/types"
)

// Eval computes the expression against one tuple and its schema. Columns
// resolve by identity against the schema; a column missing from the schema
// evaluates to NULL, matching outer-join padding semantics.
func Eval(expr Expression, tuple *types.Tuple, schema catalog.Schema) (types.DataValue, error) {
	switch e := expr.(type) {
	case *Constant:
		return e.Value, nil
	case *ColumnRef:
		if pos := columnPosition(schema, e.Column); pos >= 0 && pos < len(tuple.Values) {
			return tuple.Values[pos], nil
		}
		return types.Null, nil
	case *Alias:
		return Eval(e.Expr, tuple, schema)
	case *Unary:
		value, err := Eval(e.Expr, tuple, schema)
		if err != nil {
			return nil, err
		}
		if e.Op == OpNot {
			if value.IsNull() {
				return types.Null, nil
			}
			b, ok := value.(types.BooleanValue)
			if !ok {
				return nil, dberr.ErrInvalidType
			}
			return types.BooleanValue(!b), nil
		}
		if value.IsNull() {
			return types.Null, nil
		}
		return negateValue(value)
	case *Binary:
		left, err := Eval(e.Left, tuple, schema)
		if err != nil {
			return nil, err
		}
		right, err := Eval(e.Right, tuple, schema)
		if err != nil {
			return nil, err
		}
		return evalBinary(e.Op, left, right)
	case *IsNull:
		value, err := Eval(e.Expr, tuple, schema)
		if err != nil {
			return nil, err
		}
		return types.BooleanValue(value.IsNull() != e.Negated), nil
	case *In:
		value, err := Eval(e.Expr, tuple, schema)
		if err != nil {
			return nil, err
		}
		if value.IsNull() {
			return types.Null, nil
		}
		sawNull := false
		for _, item := range e.List {
			candidate, err := Eval(item, tuple, schema)
			if err != nil {
				return nil, err
			}
			if candidate.IsNull() {
				sawNull = true
				continue
			}
			if eq, ok := equalCoerced(value, candidate); ok && eq {
				return types.BooleanValue(!e.Negated), nil
			}
		}
		if sawNull {
			return types.Null, nil
		}
		return types.BooleanValue(e.Negated), nil
	case *Between:
		value, err := Eval(e.Expr, tuple, schema)
		if err != nil {
			return nil, err
		}
		low, err := Eval(e.Low, tuple, schema)
		if err != nil {
			return nil, err
		}
		high, err := Eval(e.High, tuple, schema)
		if err != nil {
			return nil, err
		}
		if value.IsNull() || low.IsNull() || high.IsNull() {
			return types.Null, nil
		}
		geLow, err := evalBinary(OpGtEq, value, low)
		if err != nil {
			return nil, err
		}
		leHigh, err := evalBinary(OpLtEq, value, high)
		if err != nil {
			return nil, err
		}
		inside, err := evalBinary(OpAnd, geLow, leHigh)
		if err != nil {
			return nil, err
		}
		if e.Negated {
			if inside.IsNull() {
				return types.Null, nil
			}
			return types.BooleanValue(!inside.(types.BooleanValue)), nil
		}
		return inside, nil
	case *SubString:
		value, err := Eval(e.Expr, tuple, schema)
		if err != nil {
			return nil, err
		}
		if value.IsNull() {
			return types.Null, nil
		}
		str, ok := value.(types.Utf8Value)
		if !ok {
			return nil, dberr.ErrInvalidType
		}
		runes := []rune(str.Value)
		from := 0
		if e.From != nil {
			fromVal, err := Eval(e.From, tuple, schema)
			if err != nil {
				return nil, err
			}
			n, err := valueToInt(fromVal)
			if err != nil {
				return nil, err
			}
			from = n - 1
		}
		if from < 0 || from > len(runes) {
			return types.NewVarchar(""), nil
		}
		length := len(runes) - from
		if e.For != nil {
			forVal, err := Eval(e.For, tuple, schema)
			if err != nil {
				return nil, err
			}
			n, err := valueToInt(forVal)
			if err != nil {
				return nil, err
			}
			if n < length {
				length = n
			}
			if length < 0 {
				length = 0
			}
		}
		return types.NewVarchar(string(runes[from : from+length])), nil
	case *If:
		cond, err := Eval(e.Cond, tuple, schema)
		if err != nil {
			return nil, err
		}
		truth, err := types.IsTrue(cond)
		if err != nil {
			return nil, err
		}
		if truth {
			return Eval(e.Then, tuple, schema)
		}
		return Eval(e.Else, tuple, schema)
	case *CaseWhen:
		for _, br := range e.Branches {
			cond, err := Eval(br.When, tuple, schema)
			if err != nil {
				return nil, err
			}
			truth, err := types.IsTrue(cond)
			if err != nil {
				return nil, err
			}
			if truth {
				return Eval(br.Then, tuple, schema)
			}
		}
		if e.Else != nil {
			return Eval(e.Else, tuple, schema)
		}
		return types.Null, nil
	case *AggCall:
		return nil, fmt.Errorf("%w: aggregate %s in a scalar context", dberr.ErrUnsupportedStmt, e.Func)
	case *TableFunction:
		// Table functions are planned as scans; reaching one here is a
		// binder bug.
		panic("table function evaluated in a scalar context")
	}
	return nil, fmt.Errorf("%w: unknown expression %T", dberr.ErrUnsupportedStmt, expr)
}

// columnPosition resolves a column to its slot in the schema: pointer
// identity first, then (table, id), then bare name for temporaries.
func columnPosition(schema catalog.Schema, col *catalog.Column) int {
	for i, candidate := range schema {
		if candidate == col {
			return i
		}
	}
	if id, ok := col.ID(); ok {
		for i, candidate := range schema {
			if cid, attached := candidate.ID(); attached && cid == id && candidate.TableName() == col.TableName() {
				return i
			}
		}
	}
	for i, candidate := range schema {
		if candidate.Name == col.Name {
			return i
		}
	}
	return -1
}

func evalBinary(op BinaryOperator, left, right types.DataValue) (types.DataValue, error) {
	switch op {
	case OpAnd, OpOr:
		return evalLogic(op, left, right)
	case OpSpaceship:
		if left.IsNull() || right.IsNull() {
			return types.BooleanValue(left.IsNull() && right.IsNull()), nil
		}
		eq, ok := equalCoerced(left, right)
		if !ok {
			return nil, dberr.ErrInvalidType
		}
		return types.BooleanValue(eq), nil
	case OpEq, OpNotEq:
		if left.IsNull() || right.IsNull() {
			return types.Null, nil
		}
		eq, ok := equalCoerced(left, right)
		if !ok {
			return nil, dberr.ErrInvalidType
		}
		return types.BooleanValue(eq != (op == OpNotEq)), nil
	case OpGt, OpLt, OpGtEq, OpLtEq:
		if left.IsNull() || right.IsNull() {
			return types.Null, nil
		}
		order, ok := compareCoerced(left, right)
		if !ok {
			return nil, dberr.ErrInvalidType
		}
		switch op {
		case OpGt:
			return types.BooleanValue(order > 0), nil
		case OpLt:
			return types.BooleanValue(order < 0), nil
		case OpGtEq:
			return types.BooleanValue(order >= 0), nil
		default:
			return types.BooleanValue(order <= 0), nil
		}
	case OpPlus, OpMinus, OpMultiply, OpDivide, OpModulo:
		if left.IsNull() || right.IsNull() {
			return types.Null, nil
		}
		return evalArithmetic(op, left, right)
	}
	return nil, fmt.Errorf("%w: operator %s", dberr.ErrUnsupportedStmt, op)
}

func evalLogic(op BinaryOperator, left, right types.DataValue) (types.DataValue, error) {
	truth := func(v types.DataValue) (bool, bool, error) {
		if v.IsNull() {
			return false, true, nil
		}
		b, ok := v.(types.BooleanValue)
		if !ok {
			return false, false, dberr.ErrInvalidType
		}
		return bool(b), false, nil
	}
	l, lNull, err := truth(left)
	if err != nil {
		return nil, err
	}
	r, rNull, err := truth(right)
	if err != nil {
		return nil, err
	}
	if op == OpAnd {
		if (!lNull && !l) || (!rNull && !r) {
			return types.BooleanValue(false), nil
		}
		if lNull || rNull {
			return types.Null, nil
		}
		return types.BooleanValue(true), nil
	}
	if (!lNull && l) || (!rNull && r) {
		return types.BooleanValue(true), nil
	}
	if lNull || rNull {
		return types.Null, nil
	}
	return types.BooleanValue(false), nil
}

// equalCoerced compares across compatible variants by casting the right side
// to the left side's type when the variants differ.
func equalCoerced(left, right types.DataValue) (bool, bool) {
	if types.Equal(left, right) {
		return true, true
	}
	if _, ok := types.Compare(left, right); ok {
		return false, true
	}
	cast, err := types.Cast(right, left.LogicalType())
	if err != nil {
		return false, false
	}
	return types.Equal(left, cast), true
}

func compareCoerced(left, right types.DataValue) (int, bool) {
	if order, ok := types.Compare(left, right); ok {
		return order, true
	}
	cast, err := types.Cast(right, left.LogicalType())
	if err != nil {
		return 0, false
	}
	return types.Compare(left, cast)
}

func evalArithmetic(op BinaryOperator, left, right types.DataValue) (types.DataValue, error) {
	// Decimal wins, then float width, then signedness of the left side.
	if l, ok := left.(types.DecimalValue); ok {
		r, err := toDecimal(right)
		if err != nil {
			return nil, err
		}
		return decimalArith(op, l.Value, r)
	}
	if r, ok := right.(types.DecimalValue); ok {
		l, err := toDecimal(left)
		if err != nil {
			return nil, err
		}
		return decimalArith(op, l, r.Value)
	}
	if isFloat(left) || isFloat(right) {
		l, err := toFloat(left)
		if err != nil {
			return nil, err
		}
		r, err := toFloat(right)
		if err != nil {
			return nil, err
		}
		out, err := floatArith(op, l, r)
		if err != nil {
			return nil, err
		}
		if _, single := left.(types.Float32Value); single && !isWide(right) {
			return types.Float32Value(float32(out)), nil
		}
		return types.Float64Value(out), nil
	}
	l, lok := toInt64Value(left)
	r, rok := toInt64Value(right)
	if !lok || !rok {
		return nil, dberr.ErrInvalidType
	}
	out, err := intArith(op, l, r)
	if err != nil {
		return nil, err
	}
	return narrowInt(out, left), nil
}

func isFloat(v types.DataValue) bool {
	switch v.(type) {
	case types.Float32Value, types.Float64Value:
		return true
	}
	return false
}

func isWide(v types.DataValue) bool {
	_, ok := v.(types.Float64Value)
	return ok
}

func toFloat(v types.DataValue) (float64, error) {
	switch val := v.(type) {
	case types.Float32Value:
		return float64(val), nil
	case types.Float64Value:
		return float64(val), nil
	default:
		n, ok := toInt64Value(v)
		if !ok {
			return 0, dberr.ErrInvalidType
		}
		return float64(n), nil
	}
}

func toDecimal(v types.DataValue) (decimal.Decimal, error) {
	switch val := v.(type) {
	case types.DecimalValue:
		return val.Value, nil
	case types.Float32Value:
		return decimal.NewFromFloat(float64(val)), nil
	case types.Float64Value:
		return decimal.NewFromFloat(float64(val)), nil
	default:
		n, ok := toInt64Value(v)
		if !ok {
			return decimal.Zero, dberr.ErrInvalidType
		}
		return decimal.NewFromInt(n), nil
	}
}

func toInt64Value(v types.DataValue) (int64, bool) {
	switch val := v.(type) {
	case types.Int8Value:
		return int64(val), true
	case types.Int16Value:
		return int64(val), true
	case types.Int32Value:
		return int64(val), true
	case types.Int64Value:
		return int64(val), true
	case types.UInt8Value:
		return int64(val), true
	case types.UInt16Value:
		return int64(val), true
	case types.UInt32Value:
		return int64(val), true
	case types.UInt64Value:
		return int64(val), true
	case types.BooleanValue:
		if val {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func valueToInt(v types.DataValue) (int, error) {
	n, ok := toInt64Value(v)
	if !ok {
		return 0, dberr.ErrInvalidType
	}
	return int(n), nil
}

func intArith(op BinaryOperator, l, r int64) (int64, error) {
	switch op {
	case OpPlus:
		return l + r, nil
	case OpMinus:
		return l - r, nil
	case OpMultiply:
		return l * r, nil
	case OpDivide:
		if r == 0 {
			return 0, fmt.Errorf("%w: division by zero", dberr.ErrInvalidValue)
		}
		return l / r, nil
	case OpModulo:
		if r == 0 {
			return 0, fmt.Errorf("%w: modulo by zero", dberr.ErrInvalidValue)
		}
		return l % r, nil
	}
	return 0, dberr.ErrInvalidType
}

func floatArith(op BinaryOperator, l, r float64) (float64, error) {
	switch op {
	case OpPlus:
		return l + r, nil
	case OpMinus:
		return l - r, nil
	case OpMultiply:
		return l * r, nil
	case OpDivide:
		return l / r, nil
	case OpModulo:
		return 0, fmt.Errorf("%w: modulo on floats", dberr.ErrInvalidType)
	}
	return 0, dberr.ErrInvalidType
}

func decimalArith(op BinaryOperator, l, r decimal.Decimal) (types.DataValue, error) {
	switch op {
	case OpPlus:
		return types.DecimalValue{Value: l.Add(r)}, nil
	case OpMinus:
		return types.DecimalValue{Value: l.Sub(r)}, nil
	case OpMultiply:
		return types.DecimalValue{Value: l.Mul(r)}, nil
	case OpDivide:
		if r.IsZero() {
			return nil, fmt.Errorf("%w: division by zero", dberr.ErrInvalidValue)
		}
		return types.DecimalValue{Value: l.Div(r)}, nil
	case OpModulo:
		if r.IsZero() {
			return nil, fmt.Errorf("%w: modulo by zero", dberr.ErrInvalidValue)
		}
		return types.DecimalValue{Value: l.Mod(r)}, nil
	}
	return nil, dberr.ErrInvalidType
}

// narrowInt keeps the result in the left operand's integer family so column
// arithmetic stays within the column type.
func narrowInt(n int64, like types.DataValue) types.DataValue {
	switch like.(type) {
	case types.Int8Value:
		return types.Int8Value(int8(n))
	case types.Int16Value:
		return types.Int16Value(int16(n))
	case types.Int32Value:
		return types.Int32Value(int32(n))
	case types.UInt8Value:
		return types.UInt8Value(uint8(n))
	case types.UInt16Value:
		return types.UInt16Value(uint16(n))
	case types.UInt32Value:
		return types.UInt32Value(uint32(n))
	case types.UInt64Value:
		return types.UInt64Value(uint64(n))
	default:
		return types.Int64Value(n)
	}
}

func negateValue(v types.DataValue) (types.DataValue, error) {
	switch val := v.(type) {
	case types.Int8Value:
		return types.Int8Value(-val), nil
	case types.Int16Value:
		return types.Int16Value(-val), nil
	case types.Int32Value:
		return types.Int32Value(-val), nil
	case types.Int64Value:
		return types.Int64Value(-val), nil
	case types.Float32Value:
		return types.Float32Value(-val), nil
	case types.Float64Value:
		return types.Float64Value(-val), nil
	case types.DecimalValue:
		return types.DecimalValue{Value: val.Value.Neg()}, nil
	}
	return nil, dberr.ErrInvalidType
}

// EvalConstantBinary applies a binary operator to two literals; the
// optimizer uses it for constant folding.
func EvalConstantBinary(op BinaryOperator, left, right types.DataValue) (types.DataValue, error) {
	return evalBinary(op, left, right)
}

// EvalConstantUnary applies a unary operator to a literal.
func EvalConstantUnary(op UnaryOperator, value types.DataValue) (types.DataValue, error) {
	if op == OpNot {
		if value.IsNull() {
			return types.Null, nil
		}
		b, ok := value.(types.BooleanValue)
		if !ok {
			return nil, dberr.ErrInvalidType
		}
		return types.BooleanValue(!b), nil
	}
	if value.IsNull() {
		return types.Null, nil
	}
	return negateValue(value)
}
