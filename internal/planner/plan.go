package planner

import (
	"fmt"
	"strings"

	"birchdb/internal/catalog"
	"birchdb/internal/expression"
	"birchdb/internal/types"
)

// LogicalPlan is one node of the plan tree.
type LogicalPlan struct {
	Op       Operator
	Children []*LogicalPlan

	schema catalog.Schema
}

func NewPlan(op Operator, children ...*LogicalPlan) *LogicalPlan {
	return &LogicalPlan{Op: op, Children: children}
}

// Left returns the first child, or nil.
func (p *LogicalPlan) Left() *LogicalPlan {
	if len(p.Children) == 0 {
		return nil
	}
	return p.Children[0]
}

// Right returns the second child, or nil.
func (p *LogicalPlan) Right() *LogicalPlan {
	if len(p.Children) < 2 {
		return nil
	}
	return p.Children[1]
}

// OutputSchema computes (and caches) the schema the node produces.
func (p *LogicalPlan) OutputSchema() catalog.Schema {
	if p.schema != nil {
		return p.schema
	}
	switch op := p.Op.(type) {
	case *TableScanOperator:
		p.schema = op.Columns
	case *FilterOperator, *LimitOperator:
		p.schema = p.Left().OutputSchema()
	case *ProjectOperator:
		schema := make(catalog.Schema, len(op.Exprs))
		for i, expr := range op.Exprs {
			schema[i] = projectedColumn(expr)
		}
		p.schema = schema
	case *JoinOperator:
		p.schema = MergeJoinSchema(p.Left().OutputSchema(), p.Right().OutputSchema(), op.Type)
	case *ValuesOperator:
		p.schema = op.Schema
	case *ShowTablesOperator:
		p.schema = catalog.Schema{catalog.NewColumn("table", false, types.Varchar(nil, types.UnitCharacters))}
	case *ExplainOperator:
		p.schema = catalog.Schema{catalog.NewColumn("plan", false, types.Varchar(nil, types.UnitCharacters))}
	default:
		// DDL and DML emit a single summary column.
		p.schema = catalog.Schema{catalog.NewColumn("result", false, types.Varchar(nil, types.UnitCharacters))}
	}
	return p.schema
}

// projectedColumn derives the output column of one projection expression.
// Bare column references keep their identity so later rules can still match
// them to their table.
func projectedColumn(expr expression.Expression) *catalog.Column {
	switch e := expr.(type) {
	case *expression.ColumnRef:
		return e.Column
	case *expression.Alias:
		inner := projectedColumn(e.Expr)
		col := catalog.NewColumn(e.Name, inner.Nullable, inner.Type)
		col.Relation = inner.Relation
		return col
	default:
		return catalog.NewColumn(expr.String(), true, expr.ResultType())
	}
}

// MergeJoinSchema concatenates the input schemas, flipping nullability on
// whichever sides the join type can NULL-pad.
func MergeJoinSchema(left, right catalog.Schema, ty JoinType) catalog.Schema {
	leftNullable, rightNullable := JoinsNullable(ty)
	merged := make(catalog.Schema, 0, len(left)+len(right))
	for _, col := range left {
		merged = append(merged, col.ForJoin(leftNullable))
	}
	for _, col := range right {
		merged = append(merged, col.ForJoin(rightNullable))
	}
	return merged
}

// InvalidateSchema drops cached schemas after a rewrite changed the tree.
func (p *LogicalPlan) InvalidateSchema() {
	p.schema = nil
	for _, child := range p.Children {
		child.InvalidateSchema()
	}
}

// Explain renders the subtree one node per line.
func (p *LogicalPlan) Explain() string {
	var sb strings.Builder
	p.explainInto(&sb, 0)
	return sb.String()
}

func (p *LogicalPlan) explainInto(sb *strings.Builder, depth int) {
	fmt.Fprintf(sb, "%s%s\n", strings.Repeat("  ", depth), p.Op)
	for _, child := range p.Children {
		child.explainInto(sb, depth+1)
	}
}
