// Package planner defines the logical plan tree handed from the binder
// through the optimizer to the execution engine.
package planner

import (
	"fmt"
	"strings"

	"birchdb/internal/catalog"
	"birchdb/internal/expression"
	"birchdb/internal/types"
)

// JoinType enumerates the supported join semantics. RightOuter is planned as
// stated and mirrored inside the join executor.
type JoinType uint8

const (
	JoinInner JoinType = iota
	JoinLeftOuter
	JoinLeftSemi
	JoinLeftAnti
	JoinRightOuter
	JoinFull
	JoinCross
)

func (t JoinType) String() string {
	switch t {
	case JoinInner:
		return "Inner"
	case JoinLeftOuter:
		return "LeftOuter"
	case JoinLeftSemi:
		return "LeftSemi"
	case JoinLeftAnti:
		return "LeftAnti"
	case JoinRightOuter:
		return "RightOuter"
	case JoinFull:
		return "Full"
	case JoinCross:
		return "Cross"
	}
	return "Unknown"
}

// JoinsNullable reports which sides of a join can be padded with NULLs.
func JoinsNullable(t JoinType) (left, right bool) {
	switch t {
	case JoinLeftOuter:
		return false, true
	case JoinRightOuter:
		return true, false
	case JoinFull:
		return true, true
	default:
		return false, false
	}
}

// OnPair is one equijoin clause: left-side expression = right-side
// expression.
type OnPair struct {
	Left  expression.Expression
	Right expression.Expression
}

// JoinCondition carries the equijoin pairs and the residual non-equi filter.
// A condition with neither is a cross product.
type JoinCondition struct {
	On     []OnPair
	Filter expression.Expression
}

// Operator is a logical plan node.
type Operator interface {
	fmt.Stringer
	operatorNode()
}

// IndexInfo pairs an index with the seek range pushdown has derived for it;
// Range stays nil until a rule installs one.
type IndexInfo struct {
	Meta  *catalog.IndexMeta
	Range expression.Range
}

// LimitBounds is a pushed-down offset/limit pair; nil means unset.
type LimitBounds struct {
	Offset *int
	Count  *int
}

// TableScanOperator reads a table, optionally through an index range.
type TableScanOperator struct {
	TableName   string
	Table       *catalog.Table
	PrimaryKeys []types.ColumnID
	// Columns is the output projection in declaration order.
	Columns    []*catalog.Column
	Limit      LimitBounds
	IndexInfos []*IndexInfo
	WithPk     bool
}

func (op *TableScanOperator) operatorNode() {}
func (op *TableScanOperator) String() string {
	names := make([]string, len(op.Columns))
	for i, col := range op.Columns {
		names[i] = col.Name
	}
	s := fmt.Sprintf("TableScan %s -> [%s]", op.TableName, strings.Join(names, ", "))
	if op.Limit.Count != nil {
		s += fmt.Sprintf(", Limit: %d", *op.Limit.Count)
	}
	if op.Limit.Offset != nil {
		s += fmt.Sprintf(", Offset: %d", *op.Limit.Offset)
	}
	for _, info := range op.IndexInfos {
		if info.Range != nil {
			s += fmt.Sprintf(", Index(%s): %s", info.Meta.Name, info.Range)
		}
	}
	return s
}

// NewTableScan builds a scan over all columns with every index unplanned.
func NewTableScan(table *catalog.Table, withPk bool) *LogicalPlan {
	var pkIDs []types.ColumnID
	for _, idx := range table.PrimaryKeyIndices() {
		id, _ := table.Columns[idx].ID()
		pkIDs = append(pkIDs, id)
	}
	infos := make([]*IndexInfo, len(table.Indexes))
	for i, meta := range table.Indexes {
		infos[i] = &IndexInfo{Meta: meta}
	}
	return NewPlan(&TableScanOperator{
		TableName:   table.Name,
		Table:       table,
		PrimaryKeys: pkIDs,
		Columns:     append([]*catalog.Column(nil), table.Columns...),
		IndexInfos:  infos,
		WithPk:      withPk,
	})
}

// FilterOperator applies a predicate above its child.
type FilterOperator struct {
	Predicate expression.Expression
	Having    bool
}

func (op *FilterOperator) operatorNode() {}
func (op *FilterOperator) String() string {
	return fmt.Sprintf("Filter %s", op.Predicate)
}

// ProjectOperator evaluates expressions per input row.
type ProjectOperator struct {
	Exprs []expression.Expression
}

func (op *ProjectOperator) operatorNode() {}
func (op *ProjectOperator) String() string {
	parts := make([]string, len(op.Exprs))
	for i, e := range op.Exprs {
		parts[i] = e.String()
	}
	return fmt.Sprintf("Project [%s]", strings.Join(parts, ", "))
}

// JoinOperator joins its two children.
type JoinOperator struct {
	Type      JoinType
	Condition JoinCondition
}

func (op *JoinOperator) operatorNode() {}
func (op *JoinOperator) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Join", op.Type)
	if len(op.Condition.On) > 0 {
		pairs := make([]string, len(op.Condition.On))
		for i, pair := range op.Condition.On {
			pairs[i] = fmt.Sprintf("%s = %s", pair.Left, pair.Right)
		}
		fmt.Fprintf(&sb, " On %s", strings.Join(pairs, " AND "))
	}
	if op.Condition.Filter != nil {
		fmt.Fprintf(&sb, " Where %s", op.Condition.Filter)
	}
	return sb.String()
}

// ValuesOperator produces literal rows.
type ValuesOperator struct {
	Rows   [][]types.DataValue
	Schema catalog.Schema
}

func (op *ValuesOperator) operatorNode() {}
func (op *ValuesOperator) String() string {
	return fmt.Sprintf("Values %d rows", len(op.Rows))
}

// LimitOperator truncates its input.
type LimitOperator struct {
	Offset *int
	Count  *int
}

func (op *LimitOperator) operatorNode() {}
func (op *LimitOperator) String() string {
	s := "Limit"
	if op.Count != nil {
		s += fmt.Sprintf(" %d", *op.Count)
	}
	if op.Offset != nil {
		s += fmt.Sprintf(" Offset %d", *op.Offset)
	}
	return s
}

// CreateTableOperator creates a table.
type CreateTableOperator struct {
	Table       *catalog.Table
	IfNotExists bool
}

func (op *CreateTableOperator) operatorNode() {}
func (op *CreateTableOperator) String() string {
	return fmt.Sprintf("CreateTable %s", op.Table.Name)
}

// CreateIndexOperator creates an index over the child's rows.
type CreateIndexOperator struct {
	TableName   string
	IndexName   string
	Columns     []*catalog.Column
	IfNotExists bool
	Kind        catalog.IndexKind
}

func (op *CreateIndexOperator) operatorNode() {}
func (op *CreateIndexOperator) String() string {
	return fmt.Sprintf("CreateIndex %s on %s", op.IndexName, op.TableName)
}

// CreateViewOperator persists a view definition.
type CreateViewOperator struct {
	View      *catalog.View
	OrReplace bool
}

func (op *CreateViewOperator) operatorNode() {}
func (op *CreateViewOperator) String() string {
	return fmt.Sprintf("CreateView %s", op.View.Name)
}

// DropTableOperator removes a table and all its entries.
type DropTableOperator struct {
	TableName string
	IfExists  bool
}

func (op *DropTableOperator) operatorNode() {}
func (op *DropTableOperator) String() string {
	return fmt.Sprintf("DropTable %s", op.TableName)
}

// InsertOperator writes the child's rows into a table.
type InsertOperator struct {
	Table *catalog.Table
	// ColumnIndices maps each child output position to its table position.
	ColumnIndices []int
}

func (op *InsertOperator) operatorNode() {}
func (op *InsertOperator) String() string {
	return fmt.Sprintf("Insert %s", op.Table.Name)
}

// DeleteOperator removes the child's rows from a table.
type DeleteOperator struct {
	Table *catalog.Table
}

func (op *DeleteOperator) operatorNode() {}
func (op *DeleteOperator) String() string {
	return fmt.Sprintf("Delete %s", op.Table.Name)
}

// Assignment is one SET clause of an UPDATE.
type Assignment struct {
	ColumnIndex int
	Value       expression.Expression
}

// UpdateOperator rewrites the child's rows in place.
type UpdateOperator struct {
	Table       *catalog.Table
	Assignments []Assignment
}

func (op *UpdateOperator) operatorNode() {}
func (op *UpdateOperator) String() string {
	return fmt.Sprintf("Update %s", op.Table.Name)
}

// AnalyzeTableOperator recounts a table's rows and refreshes the
// statistics entries of its indexes.
type AnalyzeTableOperator struct {
	Table *catalog.Table
}

func (op *AnalyzeTableOperator) operatorNode() {}
func (op *AnalyzeTableOperator) String() string {
	return fmt.Sprintf("Analyze %s", op.Table.Name)
}

// ShowTablesOperator lists the catalog.
type ShowTablesOperator struct{}

func (op *ShowTablesOperator) operatorNode() {}
func (op *ShowTablesOperator) String() string { return "ShowTables" }

// ExplainOperator renders its child plan instead of running it.
type ExplainOperator struct{}

func (op *ExplainOperator) operatorNode() {}
func (op *ExplainOperator) String() string { return "Explain" }
