package binder

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"
	"github.com/pingcap/tidb/pkg/parser/test_driver"
	"github.com/shopspring/decimal"

	"birchdb/internal/catalog"
	"birchdb/internal/dberr"
	"birchdb/internal/expression"
	"birchdb/internal/types"
)

// bindExpr converts one AST expression against a resolution scope.
func (b *Binder) bindExpr(node ast.ExprNode, scope catalog.Schema) (expression.Expression, error) {
	switch expr := node.(type) {
	case *ast.ParenthesesExpr:
		return b.bindExpr(expr.Expr, scope)
	case *ast.ColumnNameExpr:
		return b.bindColumn(expr.Name, scope)
	case ast.ValueExpr:
		value, err := convertLiteral(expr)
		if err != nil {
			return nil, err
		}
		return &expression.Constant{Value: value}, nil
	case *ast.UnaryOperationExpr:
		inner, err := b.bindExpr(expr.V, scope)
		if err != nil {
			return nil, err
		}
		switch expr.Op {
		case opcode.Minus:
			return &expression.Unary{Op: expression.OpNeg, Expr: inner}, nil
		case opcode.Plus:
			return inner, nil
		case opcode.Not, opcode.Not2:
			return &expression.Unary{Op: expression.OpNot, Expr: inner}, nil
		}
		return nil, fmt.Errorf("%w: unary operator %s", dberr.ErrUnsupportedStmt, expr.Op)
	case *ast.BinaryOperationExpr:
		left, err := b.bindExpr(expr.L, scope)
		if err != nil {
			return nil, err
		}
		right, err := b.bindExpr(expr.R, scope)
		if err != nil {
			return nil, err
		}
		op, resultType, err := convertBinaryOp(expr.Op, left, right)
		if err != nil {
			return nil, err
		}
		return &expression.Binary{Op: op, Left: left, Right: right, Ty: resultType}, nil
	case *ast.IsNullExpr:
		inner, err := b.bindExpr(expr.Expr, scope)
		if err != nil {
			return nil, err
		}
		return &expression.IsNull{Negated: expr.Not, Expr: inner}, nil
	case *ast.PatternInExpr:
		inner, err := b.bindExpr(expr.Expr, scope)
		if err != nil {
			return nil, err
		}
		list := make([]expression.Expression, 0, len(expr.List))
		for _, item := range expr.List {
			bound, err := b.bindExpr(item, scope)
			if err != nil {
				return nil, err
			}
			list = append(list, bound)
		}
		return &expression.In{Negated: expr.Not, Expr: inner, List: list}, nil
	case *ast.BetweenExpr:
		inner, err := b.bindExpr(expr.Expr, scope)
		if err != nil {
			return nil, err
		}
		low, err := b.bindExpr(expr.Left, scope)
		if err != nil {
			return nil, err
		}
		high, err := b.bindExpr(expr.Right, scope)
		if err != nil {
			return nil, err
		}
		return &expression.Between{Negated: expr.Not, Expr: inner, Low: low, High: high}, nil
	case *ast.FuncCallExpr:
		return b.bindFuncCall(expr, scope)
	case *ast.CaseExpr:
		return b.bindCase(expr, scope)
	default:
		return nil, fmt.Errorf("%w: expression %T", dberr.ErrUnsupportedStmt, node)
	}
}

func (b *Binder) bindColumn(name *ast.ColumnName, scope catalog.Schema) (expression.Expression, error) {
	table := name.Table.O
	var found *catalog.Column
	for _, col := range scope {
		if !strings.EqualFold(col.Name, name.Name.O) {
			continue
		}
		if table != "" && !strings.EqualFold(col.TableName(), table) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %q", dberr.ErrAmbiguousColumn, name.Name.O)
		}
		found = col
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %q", dberr.ErrColumnNotFound, name.Name.O)
	}
	return &expression.ColumnRef{Column: found}, nil
}

func (b *Binder) bindFuncCall(expr *ast.FuncCallExpr, scope catalog.Schema) (expression.Expression, error) {
	switch expr.FnName.L {
	case "substring", "substr":
		if len(expr.Args) < 2 {
			return nil, fmt.Errorf("%w: SUBSTRING arity", dberr.ErrUnsupportedStmt)
		}
		inner, err := b.bindExpr(expr.Args[0], scope)
		if err != nil {
			return nil, err
		}
		from, err := b.bindExpr(expr.Args[1], scope)
		if err != nil {
			return nil, err
		}
		sub := &expression.SubString{Expr: inner, From: from}
		if len(expr.Args) > 2 {
			if sub.For, err = b.bindExpr(expr.Args[2], scope); err != nil {
				return nil, err
			}
		}
		return sub, nil
	case "if":
		if len(expr.Args) != 3 {
			return nil, fmt.Errorf("%w: IF arity", dberr.ErrUnsupportedStmt)
		}
		cond, err := b.bindExpr(expr.Args[0], scope)
		if err != nil {
			return nil, err
		}
		thenExpr, err := b.bindExpr(expr.Args[1], scope)
		if err != nil {
			return nil, err
		}
		elseExpr, err := b.bindExpr(expr.Args[2], scope)
		if err != nil {
			return nil, err
		}
		return &expression.If{Cond: cond, Then: thenExpr, Else: elseExpr, Ty: thenExpr.ResultType()}, nil
	}
	return nil, fmt.Errorf("%w: function %s", dberr.ErrUnsupportedStmt, expr.FnName.O)
}

func (b *Binder) bindCase(expr *ast.CaseExpr, scope catalog.Schema) (expression.Expression, error) {
	if expr.Value != nil {
		return nil, fmt.Errorf("%w: CASE <expr> WHEN", dberr.ErrUnsupportedStmt)
	}
	out := &expression.CaseWhen{}
	for _, clause := range expr.WhenClauses {
		when, err := b.bindExpr(clause.Expr, scope)
		if err != nil {
			return nil, err
		}
		then, err := b.bindExpr(clause.Result, scope)
		if err != nil {
			return nil, err
		}
		out.Branches = append(out.Branches, expression.CaseBranch{When: when, Then: then})
	}
	if expr.ElseClause != nil {
		elseExpr, err := b.bindExpr(expr.ElseClause, scope)
		if err != nil {
			return nil, err
		}
		out.Else = elseExpr
	}
	if len(out.Branches) > 0 {
		out.Ty = out.Branches[0].Then.ResultType()
	}
	return out, nil
}

// bindConstant binds an expression that must reduce to a literal (VALUES
// lists, LIMIT clauses).
func (b *Binder) bindConstant(node ast.ExprNode) (types.DataValue, error) {
	bound, err := b.bindExpr(node, nil)
	if err != nil {
		return nil, err
	}
	return expression.Eval(bound, &types.Tuple{}, nil)
}

func convertBinaryOp(op opcode.Op, left, right expression.Expression) (expression.BinaryOperator, types.LogicalType, error) {
	switch op {
	case opcode.GT:
		return expression.OpGt, types.Boolean(), nil
	case opcode.LT:
		return expression.OpLt, types.Boolean(), nil
	case opcode.GE:
		return expression.OpGtEq, types.Boolean(), nil
	case opcode.LE:
		return expression.OpLtEq, types.Boolean(), nil
	case opcode.EQ:
		return expression.OpEq, types.Boolean(), nil
	case opcode.NE:
		return expression.OpNotEq, types.Boolean(), nil
	case opcode.NullEQ:
		return expression.OpSpaceship, types.Boolean(), nil
	case opcode.LogicAnd:
		return expression.OpAnd, types.Boolean(), nil
	case opcode.LogicOr:
		return expression.OpOr, types.Boolean(), nil
	case opcode.Plus:
		return expression.OpPlus, arithmeticType(left, right), nil
	case opcode.Minus:
		return expression.OpMinus, arithmeticType(left, right), nil
	case opcode.Mul:
		return expression.OpMultiply, arithmeticType(left, right), nil
	case opcode.Div:
		return expression.OpDivide, arithmeticType(left, right), nil
	case opcode.Mod:
		return expression.OpModulo, arithmeticType(left, right), nil
	}
	return 0, types.SqlNull(), fmt.Errorf("%w: operator %s", dberr.ErrUnsupportedStmt, op)
}

// arithmeticType picks the wider operand type for an arithmetic result.
func arithmeticType(left, right expression.Expression) types.LogicalType {
	lt, rt := left.ResultType(), right.ResultType()
	rank := func(t types.LogicalType) int {
		switch t.Kind {
		case types.KindDecimal:
			return 3
		case types.KindDouble:
			return 2
		case types.KindFloat:
			return 1
		default:
			return 0
		}
	}
	if rank(rt) > rank(lt) {
		return rt
	}
	return lt
}

// convertLiteral maps a parser literal onto a DataValue.
func convertLiteral(expr ast.ValueExpr) (types.DataValue, error) {
	switch v := expr.GetValue().(type) {
	case nil:
		return types.Null, nil
	case bool:
		return types.BooleanValue(v), nil
	case int64:
		return types.Int64Value(v), nil
	case uint64:
		return types.UInt64Value(v), nil
	case float64:
		return types.Float64Value(v), nil
	case float32:
		return types.Float32Value(v), nil
	case string:
		return types.NewVarchar(v), nil
	case []byte:
		return types.NewVarchar(string(v)), nil
	case *test_driver.MyDecimal:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return nil, fmt.Errorf("%w: decimal literal %q", dberr.ErrInvalidValue, v.String())
		}
		return types.DecimalValue{Value: d}, nil
	default:
		return nil, fmt.Errorf("%w: literal %T", dberr.ErrInvalidValue, expr.GetValue())
	}
}
