// Package expression contains the scalar expression tree, its evaluator,
// and the range algebra that turns predicates over a column into sorted
// disjoint scan ranges.
package expression

import (
	"fmt"
	"strings"

	"birchdb/internal/catalog"
	"birchdb/internal/types"
)

// BinaryOperator enumerates binary expression operators.
type BinaryOperator uint8

const (
	OpPlus BinaryOperator = iota
	OpMinus
	OpMultiply
	OpDivide
	OpModulo
	OpGt
	OpLt
	OpGtEq
	OpLtEq
	OpEq
	OpNotEq
	// OpSpaceship is the null-safe equality <=>.
	OpSpaceship
	OpAnd
	OpOr
)

func (op BinaryOperator) String() string {
	switch op {
	case OpPlus:
		return "+"
	case OpMinus:
		return "-"
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	case OpModulo:
		return "%"
	case OpGt:
		return ">"
	case OpLt:
		return "<"
	case OpGtEq:
		return ">="
	case OpLtEq:
		return "<="
	case OpEq:
		return "="
	case OpNotEq:
		return "!="
	case OpSpaceship:
		return "<=>"
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	}
	return "?"
}

// UnaryOperator enumerates unary expression operators.
type UnaryOperator uint8

const (
	OpNeg UnaryOperator = iota
	OpNot
)

// Expression is a scalar expression node. The concrete types below are the
// only implementations; the detacher and rewriters dispatch over them with
// type switches and never mutate shared nodes.
type Expression interface {
	// ResultType is the static type of the expression's value.
	ResultType() types.LogicalType
	// String renders the expression for plan display.
	String() string
}

// Constant is a literal value.
type Constant struct {
	Value types.DataValue
}

func (e *Constant) ResultType() types.LogicalType { return e.Value.LogicalType() }
func (e *Constant) String() string                { return e.Value.String() }

// ColumnRef references a column of the input schema.
type ColumnRef struct {
	Column *catalog.Column
}

func (e *ColumnRef) ResultType() types.LogicalType { return e.Column.Type }
func (e *ColumnRef) String() string                { return e.Column.FullName() }

// Alias names the value of its child.
type Alias struct {
	Expr Expression
	Name string
}

func (e *Alias) ResultType() types.LogicalType { return e.Expr.ResultType() }
func (e *Alias) String() string                { return fmt.Sprintf("%s AS %s", e.Expr, e.Name) }

// Unary applies a unary operator.
type Unary struct {
	Op   UnaryOperator
	Expr Expression
}

func (e *Unary) ResultType() types.LogicalType {
	if e.Op == OpNot {
		return types.Boolean()
	}
	return e.Expr.ResultType()
}

func (e *Unary) String() string {
	if e.Op == OpNot {
		return fmt.Sprintf("NOT %s", e.Expr)
	}
	return fmt.Sprintf("-%s", e.Expr)
}

// Binary applies a binary operator. Ty is fixed at bind time.
type Binary struct {
	Op    BinaryOperator
	Left  Expression
	Right Expression
	Ty    types.LogicalType
}

func (e *Binary) ResultType() types.LogicalType { return e.Ty }
func (e *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

// IsNull is `expr IS [NOT] NULL`.
type IsNull struct {
	Negated bool
	Expr    Expression
}

func (e *IsNull) ResultType() types.LogicalType { return types.Boolean() }
func (e *IsNull) String() string {
	if e.Negated {
		return fmt.Sprintf("%s IS NOT NULL", e.Expr)
	}
	return fmt.Sprintf("%s IS NULL", e.Expr)
}

// In is `expr [NOT] IN (list...)`.
type In struct {
	Negated bool
	Expr    Expression
	List    []Expression
}

func (e *In) ResultType() types.LogicalType { return types.Boolean() }
func (e *In) String() string {
	items := make([]string, len(e.List))
	for i, item := range e.List {
		items[i] = item.String()
	}
	not := ""
	if e.Negated {
		not = "NOT "
	}
	return fmt.Sprintf("%s %sIN (%s)", e.Expr, not, strings.Join(items, ", "))
}

// Between is `expr [NOT] BETWEEN low AND high`.
type Between struct {
	Negated bool
	Expr    Expression
	Low     Expression
	High    Expression
}

func (e *Between) ResultType() types.LogicalType { return types.Boolean() }
func (e *Between) String() string {
	not := ""
	if e.Negated {
		not = "NOT "
	}
	return fmt.Sprintf("%s %sBETWEEN %s AND %s", e.Expr, not, e.Low, e.High)
}

// SubString is `SUBSTRING(expr FROM from FOR for)`.
type SubString struct {
	Expr Expression
	From Expression
	For  Expression
}

func (e *SubString) ResultType() types.LogicalType {
	return types.Varchar(nil, types.UnitCharacters)
}
func (e *SubString) String() string {
	return fmt.Sprintf("SUBSTRING(%s FROM %s FOR %s)", e.Expr, e.From, e.For)
}

// If is `IF(cond, then, else)`.
type If struct {
	Cond Expression
	Then Expression
	Else Expression
	Ty   types.LogicalType
}

func (e *If) ResultType() types.LogicalType { return e.Ty }
func (e *If) String() string {
	return fmt.Sprintf("IF(%s, %s, %s)", e.Cond, e.Then, e.Else)
}

// CaseWhen is a searched CASE expression.
type CaseWhen struct {
	Branches []CaseBranch
	Else     Expression
	Ty       types.LogicalType
}

// CaseBranch is one WHEN/THEN pair.
type CaseBranch struct {
	When Expression
	Then Expression
}

func (e *CaseWhen) ResultType() types.LogicalType { return e.Ty }
func (e *CaseWhen) String() string {
	var b strings.Builder
	b.WriteString("CASE")
	for _, br := range e.Branches {
		fmt.Fprintf(&b, " WHEN %s THEN %s", br.When, br.Then)
	}
	if e.Else != nil {
		fmt.Fprintf(&b, " ELSE %s", e.Else)
	}
	b.WriteString(" END")
	return b.String()
}

// AggCall is an aggregate invocation; it is resolved by an aggregation
// operator and has no scalar evaluation.
type AggCall struct {
	Func     string
	Args     []Expression
	Distinct bool
	Ty       types.LogicalType
}

func (e *AggCall) ResultType() types.LogicalType { return e.Ty }
func (e *AggCall) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", strings.ToUpper(e.Func), strings.Join(args, ", "))
}

// TableFunction names a table-valued function; it never appears in a scalar
// position after binding.
type TableFunction struct {
	Name string
	Args []Expression
}

func (e *TableFunction) ResultType() types.LogicalType { return types.SqlNull() }
func (e *TableFunction) String() string                { return e.Name + "(...)" }

// ReferencedColumns collects every column mentioned under expr, in
// left-to-right discovery order.
func ReferencedColumns(expr Expression) []*catalog.Column {
	var out []*catalog.Column
	collectColumns(expr, &out)
	return out
}

func collectColumns(expr Expression, out *[]*catalog.Column) {
	switch e := expr.(type) {
	case *Constant:
	case *ColumnRef:
		*out = append(*out, e.Column)
	case *Alias:
		collectColumns(e.Expr, out)
	case *Unary:
		collectColumns(e.Expr, out)
	case *Binary:
		collectColumns(e.Left, out)
		collectColumns(e.Right, out)
	case *IsNull:
		collectColumns(e.Expr, out)
	case *In:
		collectColumns(e.Expr, out)
		for _, item := range e.List {
			collectColumns(item, out)
		}
	case *Between:
		collectColumns(e.Expr, out)
		collectColumns(e.Low, out)
		collectColumns(e.High, out)
	case *SubString:
		collectColumns(e.Expr, out)
		collectColumns(e.From, out)
		collectColumns(e.For, out)
	case *If:
		collectColumns(e.Cond, out)
		collectColumns(e.Then, out)
		collectColumns(e.Else, out)
	case *CaseWhen:
		for _, br := range e.Branches {
			collectColumns(br.When, out)
			collectColumns(br.Then, out)
		}
		if e.Else != nil {
			collectColumns(e.Else, out)
		}
	case *AggCall:
		for _, arg := range e.Args {
			collectColumns(arg, out)
		}
	case *TableFunction:
		for _, arg := range e.Args {
			collectColumns(arg, out)
		}
	}
}

// unpackColumn peels aliases off expr and returns the column it references,
// or nil when it is not a bare column.
func unpackColumn(expr Expression) *catalog.Column {
	switch e := expr.(type) {
	case *ColumnRef:
		return e.Column
	case *Alias:
		return unpackColumn(e.Expr)
	}
	return nil
}

// unpackValue peels aliases and constant-foldable negation off expr and
// returns the literal it denotes, or nil.
func unpackValue(expr Expression) types.DataValue {
	switch e := expr.(type) {
	case *Constant:
		return e.Value
	case *Alias:
		return unpackValue(e.Expr)
	case *Unary:
		if e.Op != OpNeg {
			return nil
		}
		if inner := unpackValue(e.Expr); inner != nil {
			if negated, err := negateValue(inner); err == nil {
				return negated
			}
		}
	}
	return nil
}
