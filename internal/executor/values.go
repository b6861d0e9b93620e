package executor

import (
	"birchdb/internal/planner"
	"birchdb/internal/storage"
	"birchdb/internal/types"
)

// Values produces literal rows.
type Values struct {
	op *planner.ValuesOperator
}

func NewValues(op *planner.ValuesOperator) *Values {
	return &Values{op: op}
}

func (v *Values) Execute(caches *storage.Caches, tx *storage.Transaction) Source {
	tuples := make([]*types.Tuple, len(v.op.Rows))
	for i, row := range v.op.Rows {
		tuples[i] = &types.Tuple{Values: row}
	}
	return newSliceSource(tuples)
}

// Limit truncates its child to an offset/count window.
type Limit struct {
	op    *planner.LimitOperator
	input *planner.LogicalPlan
}

func NewLimit(op *planner.LimitOperator, input *planner.LogicalPlan) *Limit {
	return &Limit{op: op, input: input}
}

func (l *Limit) Execute(caches *storage.Caches, tx *storage.Transaction) Source {
	return &limitSource{
		offset: l.op.Offset,
		count:  l.op.Count,
		child:  Build(l.input, caches, tx),
	}
}

type limitSource struct {
	offset  *int
	count   *int
	child   Source
	skipped int
	emitted int
	done    bool
}

func (s *limitSource) Next() (*types.Tuple, error) {
	if s.done {
		return nil, nil
	}
	for {
		if s.count != nil && s.emitted >= *s.count {
			s.done = true
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
		if s.offset != nil && s.skipped < *s.offset {
			s.skipped++
			continue
		}
		s.emitted++
		return tuple, nil
	}
}

func (s *limitSource) Close() error {
	return s.child.Close()
}
