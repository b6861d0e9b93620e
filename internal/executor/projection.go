package executor

import (
	"birchdb/internal/catalog"
	"birchdb/internal/expression"
	"birchdb/internal/planner"
	"birchdb/internal/storage"
	"birchdb/internal/types"
)

// Projection is the stateless per-row transform: evaluate each expression
// against the inbound tuple and emit the value vector under the inbound
// primary key.
type Projection struct {
	op    *planner.ProjectOperator
	input *planner.LogicalPlan
}

func NewProjection(op *planner.ProjectOperator, input *planner.LogicalPlan) *Projection {
	return &Projection{op: op, input: input}
}

func (p *Projection) Execute(caches *storage.Caches, tx *storage.Transaction) Source {
	return &projectionSource{
		exprs:  p.op.Exprs,
		schema: p.input.OutputSchema(),
		child:  Build(p.input, caches, tx),
	}
}

type projectionSource struct {
	exprs  []expression.Expression
	schema catalog.Schema
	child  Source
	done   bool
}

func (s *projectionSource) Next() (*types.Tuple, error) {
	if s.done {
		return nil, nil
	}
	tuple, err := s.child.Next()
	if err != nil {
		s.done = true
		return nil, err
	}
	if tuple == nil {
		s.done = true
		return nil, nil
	}
	values, err := ProjectValues(tuple, s.exprs, s.schema)
	if err != nil {
		s.done = true
		return nil, err
	}
	return &types.Tuple{Pk: tuple.Pk, Values: values}, nil
}

func (s *projectionSource) Close() error {
	return s.child.Close()
}

// ProjectValues evaluates a projection list against one tuple. The join
// executor reuses it to compare equijoin key vectors.
func ProjectValues(tuple *types.Tuple, exprs []expression.Expression, schema catalog.Schema) ([]types.DataValue, error) {
	values := make([]types.DataValue, 0, len(exprs))
	for _, expr := range exprs {
		value, err := expression.Eval(expr, tuple, schema)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}
