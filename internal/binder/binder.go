// Package binder converts parsed SQL statements into logical plans. It uses
// TiDB's parser, so MySQL syntax (and TiDB extensions) are accepted; the
// binder resolves names against the catalog and hands typed plans to the
// optimizer.
package binder

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/format"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"birchdb/internal/catalog"
	"birchdb/internal/dberr"
	"birchdb/internal/expression"
	"birchdb/internal/planner"
	"birchdb/internal/types"
)

// Catalog is the name-resolution surface the binder needs; the storage
// transaction provides it.
type Catalog interface {
	ResolveTable(name string) (*catalog.Table, error)
	ResolveView(name string) (*catalog.View, error)
}

// Binder turns statements into plans.
type Binder struct {
	parser  *parser.Parser
	catalog Catalog
}

func New(cat Catalog) *Binder {
	return &Binder{parser: parser.New(), catalog: cat}
}

// BindEach parses sql and binds its statements one at a time, handing each
// plan to fn before binding the next. Lazy binding matters inside a batch: a
// later statement may reference a table an earlier statement just created.
func (b *Binder) BindEach(sql string, fn func(*planner.LogicalPlan) error) error {
	stmts, _, err := b.parser.Parse(sql, "", "")
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}
	if len(stmts) == 0 {
		return fmt.Errorf("%w: empty input", dberr.ErrUnsupportedStmt)
	}
	for _, stmt := range stmts {
		plan, err := b.bindStatement(stmt)
		if err != nil {
			return err
		}
		if err := fn(plan); err != nil {
			return err
		}
	}
	return nil
}

func (b *Binder) bindStatement(stmt ast.StmtNode) (*planner.LogicalPlan, error) {
	switch node := stmt.(type) {
	case *ast.CreateTableStmt:
		return b.bindCreateTable(node)
	case *ast.CreateIndexStmt:
		return b.bindCreateIndex(node)
	case *ast.CreateViewStmt:
		return b.bindCreateView(node)
	case *ast.DropTableStmt:
		return b.bindDropTable(node)
	case *ast.InsertStmt:
		return b.bindInsert(node)
	case *ast.SelectStmt:
		return b.bindSelect(node)
	case *ast.DeleteStmt:
		return b.bindDelete(node)
	case *ast.UpdateStmt:
		return b.bindUpdate(node)
	case *ast.AnalyzeTableStmt:
		return b.bindAnalyzeTable(node)
	case *ast.ShowStmt:
		if node.Tp == ast.ShowTables {
			return planner.NewPlan(&planner.ShowTablesOperator{}), nil
		}
		return nil, fmt.Errorf("%w: SHOW", dberr.ErrUnsupportedStmt)
	case *ast.ExplainStmt:
		child, err := b.bindStatement(node.Stmt)
		if err != nil {
			return nil, err
		}
		return planner.NewPlan(&planner.ExplainOperator{}, child), nil
	default:
		return nil, fmt.Errorf("%w: %T", dberr.ErrUnsupportedStmt, stmt)
	}
}

func (b *Binder) bindSelect(stmt *ast.SelectStmt) (*planner.LogicalPlan, error) {
	if stmt.OrderBy != nil {
		return nil, fmt.Errorf("%w: ORDER BY", dberr.ErrUnsupportedStmt)
	}
	if stmt.GroupBy != nil || stmt.Having != nil {
		return nil, fmt.Errorf("%w: GROUP BY / HAVING", dberr.ErrUnsupportedStmt)
	}
	if stmt.From == nil {
		return nil, fmt.Errorf("%w: SELECT without FROM", dberr.ErrUnsupportedStmt)
	}

	plan, err := b.bindTableRefs(stmt.From.TableRefs)
	if err != nil {
		return nil, err
	}
	scope := plan.OutputSchema()

	if stmt.Where != nil {
		predicate, err := b.bindExpr(stmt.Where, scope)
		if err != nil {
			return nil, err
		}
		plan = planner.NewPlan(&planner.FilterOperator{Predicate: predicate}, plan)
	}

	exprs, err := b.bindProjection(stmt.Fields.Fields, scope)
	if err != nil {
		return nil, err
	}
	plan = planner.NewPlan(&planner.ProjectOperator{Exprs: exprs}, plan)

	if stmt.Limit != nil {
		limitOp, err := b.bindLimit(stmt.Limit)
		if err != nil {
			return nil, err
		}
		plan = planner.NewPlan(limitOp, plan)
	}
	return plan, nil
}

func (b *Binder) bindProjection(fields []*ast.SelectField, scope catalog.Schema) ([]expression.Expression, error) {
	var exprs []expression.Expression
	for _, field := range fields {
		if field.WildCard != nil {
			table := field.WildCard.Table.L
			for _, col := range scope {
				if table != "" && !strings.EqualFold(col.TableName(), table) {
					continue
				}
				exprs = append(exprs, &expression.ColumnRef{Column: col})
			}
			continue
		}
		expr, err := b.bindExpr(field.Expr, scope)
		if err != nil {
			return nil, err
		}
		if field.AsName.L != "" {
			expr = &expression.Alias{Expr: expr, Name: field.AsName.O}
		}
		exprs = append(exprs, expr)
	}
	if len(exprs) == 0 {
		return nil, fmt.Errorf("%w: empty projection", dberr.ErrUnsupportedStmt)
	}
	return exprs, nil
}

func (b *Binder) bindLimit(limit *ast.Limit) (*planner.LimitOperator, error) {
	op := &planner.LimitOperator{}
	if limit.Count != nil {
		n, err := b.bindIntLiteral(limit.Count)
		if err != nil {
			return nil, err
		}
		op.Count = &n
	}
	if limit.Offset != nil {
		n, err := b.bindIntLiteral(limit.Offset)
		if err != nil {
			return nil, err
		}
		op.Offset = &n
	}
	return op, nil
}

func (b *Binder) bindIntLiteral(node ast.ExprNode) (int, error) {
	value, err := b.bindConstant(node)
	if err != nil {
		return 0, err
	}
	cast, err := types.Cast(value, types.Bigint())
	if err != nil {
		return 0, err
	}
	n, ok := cast.(types.Int64Value)
	if !ok {
		return 0, dberr.ErrInvalidType
	}
	return int(n), nil
}

// bindTableRefs binds a FROM clause: a single source or a join tree.
func (b *Binder) bindTableRefs(node ast.ResultSetNode) (*planner.LogicalPlan, error) {
	switch ref := node.(type) {
	case *ast.Join:
		left, err := b.bindTableRefs(ref.Left)
		if err != nil {
			return nil, err
		}
		if ref.Right == nil {
			return left, nil
		}
		right, err := b.bindTableRefs(ref.Right)
		if err != nil {
			return nil, err
		}
		joinType := planner.JoinCross
		switch ref.Tp {
		case ast.LeftJoin:
			joinType = planner.JoinLeftOuter
		case ast.RightJoin:
			joinType = planner.JoinRightOuter
		case ast.CrossJoin:
			joinType = planner.JoinCross
			if ref.On != nil {
				joinType = planner.JoinInner
			}
		}
		condition := planner.JoinCondition{}
		if ref.On != nil {
			scope := append(append(catalog.Schema{}, left.OutputSchema()...), right.OutputSchema()...)
			predicate, err := b.bindExpr(ref.On.Expr, scope)
			if err != nil {
				return nil, err
			}
			condition = b.extractJoinCondition(predicate, left.OutputSchema(), right.OutputSchema())
		}
		return planner.NewPlan(&planner.JoinOperator{Type: joinType, Condition: condition}, left, right), nil
	case *ast.TableSource:
		return b.bindTableSource(ref)
	case *ast.TableName:
		return b.bindTableName(ref.Name.O)
	default:
		return nil, fmt.Errorf("%w: table reference %T", dberr.ErrUnsupportedStmt, node)
	}
}

func (b *Binder) bindTableSource(source *ast.TableSource) (*planner.LogicalPlan, error) {
	name, ok := source.Source.(*ast.TableName)
	if !ok {
		return nil, fmt.Errorf("%w: derived tables", dberr.ErrUnsupportedStmt)
	}
	return b.bindTableName(name.Name.O)
}

func (b *Binder) bindTableName(name string) (*planner.LogicalPlan, error) {
	table, err := b.catalog.ResolveTable(name)
	if err == nil {
		return planner.NewTableScan(table, true), nil
	}
	view, viewErr := b.catalog.ResolveView(name)
	if viewErr != nil {
		return nil, err
	}
	stmts, _, parseErr := b.parser.Parse(view.Stmt, "", "")
	if parseErr != nil || len(stmts) != 1 {
		return nil, fmt.Errorf("bind view %q: %w", name, parseErr)
	}
	selectStmt, ok := stmts[0].(*ast.SelectStmt)
	if !ok {
		return nil, fmt.Errorf("%w: view %q is not a SELECT", dberr.ErrUnsupportedStmt, name)
	}
	return b.bindSelect(selectStmt)
}

// extractJoinCondition splits an ON predicate into equijoin pairs (one side
// per input) and the residual filter.
func (b *Binder) extractJoinCondition(predicate expression.Expression, left, right catalog.Schema) planner.JoinCondition {
	conjuncts := splitAnd(predicate)
	var on []planner.OnPair
	var rest []expression.Expression
	for _, conjunct := range conjuncts {
		binary, ok := conjunct.(*expression.Binary)
		if ok && binary.Op == expression.OpEq {
			leftCols := expression.ReferencedColumns(binary.Left)
			rightCols := expression.ReferencedColumns(binary.Right)
			if len(leftCols) > 0 && len(rightCols) > 0 {
				switch {
				case allIn(leftCols, left) && allIn(rightCols, right):
					on = append(on, planner.OnPair{Left: binary.Left, Right: binary.Right})
					continue
				case allIn(leftCols, right) && allIn(rightCols, left):
					on = append(on, planner.OnPair{Left: binary.Right, Right: binary.Left})
					continue
				}
			}
		}
		rest = append(rest, conjunct)
	}
	condition := planner.JoinCondition{On: on}
	for _, conjunct := range rest {
		if condition.Filter == nil {
			condition.Filter = conjunct
			continue
		}
		condition.Filter = &expression.Binary{
			Op:    expression.OpAnd,
			Left:  condition.Filter,
			Right: conjunct,
			Ty:    types.Boolean(),
		}
	}
	return condition
}

func splitAnd(expr expression.Expression) []expression.Expression {
	if binary, ok := expr.(*expression.Binary); ok && binary.Op == expression.OpAnd {
		return append(splitAnd(binary.Left), splitAnd(binary.Right)...)
	}
	return []expression.Expression{expr}
}

func allIn(cols []*catalog.Column, schema catalog.Schema) bool {
	for _, col := range cols {
		if !schema.Contains(col) {
			return false
		}
	}
	return true
}

func (b *Binder) bindInsert(stmt *ast.InsertStmt) (*planner.LogicalPlan, error) {
	tableName, err := insertTableName(stmt)
	if err != nil {
		return nil, err
	}
	table, err := b.catalog.ResolveTable(tableName)
	if err != nil {
		return nil, err
	}

	var columnIndices []int
	var valueSchema catalog.Schema
	if len(stmt.Columns) == 0 {
		for i, col := range table.Columns {
			columnIndices = append(columnIndices, i)
			valueSchema = append(valueSchema, col)
		}
	} else {
		for _, name := range stmt.Columns {
			pos, col := table.FindColumn(name.Name.O)
			if col == nil {
				return nil, fmt.Errorf("%w: %q", dberr.ErrColumnNotFound, name.Name.O)
			}
			columnIndices = append(columnIndices, pos)
			valueSchema = append(valueSchema, col)
		}
	}

	rows := make([][]types.DataValue, 0, len(stmt.Lists))
	for _, list := range stmt.Lists {
		if len(list) != len(columnIndices) {
			return nil, fmt.Errorf("%w: %d values for %d columns",
				dberr.ErrInvalidValue, len(list), len(columnIndices))
		}
		row := make([]types.DataValue, len(list))
		for i, item := range list {
			value, err := b.bindConstant(item)
			if err != nil {
				return nil, err
			}
			row[i] = value
		}
		rows = append(rows, row)
	}

	values := planner.NewPlan(&planner.ValuesOperator{Rows: rows, Schema: valueSchema})
	return planner.NewPlan(&planner.InsertOperator{Table: table, ColumnIndices: columnIndices}, values), nil
}

func insertTableName(stmt *ast.InsertStmt) (string, error) {
	if stmt.Table == nil || stmt.Table.TableRefs == nil {
		return "", fmt.Errorf("%w: INSERT without a table", dberr.ErrUnsupportedStmt)
	}
	source, ok := stmt.Table.TableRefs.Left.(*ast.TableSource)
	if !ok {
		return "", fmt.Errorf("%w: INSERT target", dberr.ErrUnsupportedStmt)
	}
	name, ok := source.Source.(*ast.TableName)
	if !ok {
		return "", fmt.Errorf("%w: INSERT target", dberr.ErrUnsupportedStmt)
	}
	return name.Name.O, nil
}

func (b *Binder) bindDelete(stmt *ast.DeleteStmt) (*planner.LogicalPlan, error) {
	refs := stmt.TableRefs.TableRefs
	plan, err := b.bindTableRefs(refs)
	if err != nil {
		return nil, err
	}
	scanOp, ok := plan.Op.(*planner.TableScanOperator)
	if !ok {
		return nil, fmt.Errorf("%w: multi-table DELETE", dberr.ErrUnsupportedStmt)
	}
	if stmt.Where != nil {
		predicate, err := b.bindExpr(stmt.Where, plan.OutputSchema())
		if err != nil {
			return nil, err
		}
		plan = planner.NewPlan(&planner.FilterOperator{Predicate: predicate}, plan)
	}
	return planner.NewPlan(&planner.DeleteOperator{Table: scanOp.Table}, plan), nil
}

func (b *Binder) bindUpdate(stmt *ast.UpdateStmt) (*planner.LogicalPlan, error) {
	plan, err := b.bindTableRefs(stmt.TableRefs.TableRefs)
	if err != nil {
		return nil, err
	}
	scanOp, ok := plan.Op.(*planner.TableScanOperator)
	if !ok {
		return nil, fmt.Errorf("%w: multi-table UPDATE", dberr.ErrUnsupportedStmt)
	}
	scope := plan.OutputSchema()

	assignments := make([]planner.Assignment, 0, len(stmt.List))
	for _, assign := range stmt.List {
		pos, col := scanOp.Table.FindColumn(assign.Column.Name.O)
		if col == nil {
			return nil, fmt.Errorf("%w: %q", dberr.ErrColumnNotFound, assign.Column.Name.O)
		}
		expr, err := b.bindExpr(assign.Expr, scope)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, planner.Assignment{ColumnIndex: pos, Value: expr})
	}

	if stmt.Where != nil {
		predicate, err := b.bindExpr(stmt.Where, scope)
		if err != nil {
			return nil, err
		}
		plan = planner.NewPlan(&planner.FilterOperator{Predicate: predicate}, plan)
	}
	return planner.NewPlan(&planner.UpdateOperator{Table: scanOp.Table, Assignments: assignments}, plan), nil
}

func (b *Binder) bindAnalyzeTable(stmt *ast.AnalyzeTableStmt) (*planner.LogicalPlan, error) {
	if len(stmt.TableNames) != 1 {
		return nil, fmt.Errorf("%w: ANALYZE of %d tables", dberr.ErrUnsupportedStmt, len(stmt.TableNames))
	}
	table, err := b.catalog.ResolveTable(stmt.TableNames[0].Name.O)
	if err != nil {
		return nil, err
	}
	return planner.NewPlan(&planner.AnalyzeTableOperator{Table: table}, planner.NewTableScan(table, true)), nil
}

// restoreNode renders an AST node back to SQL, used to persist view
// definitions as text.
func restoreNode(node ast.Node) (string, error) {
	var sb strings.Builder
	ctx := format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)
	if err := node.Restore(ctx); err != nil {
		return "", fmt.Errorf("restore statement: %w", err)
	}
	return sb.String(), nil
}
