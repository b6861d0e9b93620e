package executor

import (
	"birchdb/internal/catalog"
	"birchdb/internal/expression"
	"birchdb/internal/planner"
	"birchdb/internal/storage"
	"birchdb/internal/types"
)

// Filter drops rows whose predicate does not evaluate to Boolean(true).
// NULL counts as false; a non-boolean predicate value is a type error.
type Filter struct {
	op    *planner.FilterOperator
	input *planner.LogicalPlan
}

func NewFilter(op *planner.FilterOperator, input *planner.LogicalPlan) *Filter {
	return &Filter{op: op, input: input}
}

func (f *Filter) Execute(caches *storage.Caches, tx *storage.Transaction) Source {
	return &filterSource{
		predicate: f.op.Predicate,
		schema:    f.input.OutputSchema(),
		child:     Build(f.input, caches, tx),
	}
}

type filterSource struct {
	predicate expression.Expression
	schema    catalog.Schema
	child     Source
	done      bool
}

func (s *filterSource) Next() (*types.Tuple, error) {
	if s.done {
		return nil, nil
	}
	for {
		tuple, err := s.child.Next()
		if err != nil {
			s.done = true
			return nil, err
		}
		if tuple == nil {
			s.done = true
			return nil, nil
		}
		value, err := expression.Eval(s.predicate, tuple, s.schema)
		if err != nil {
			s.done = true
			return nil, err
		}
		pass, err := types.IsTrue(value)
		if err != nil {
			s.done = true
			return nil, err
		}
		if pass {
			return tuple, nil
		}
	}
}

func (s *filterSource) Close() error {
	return s.child.Close()
}
