// Package executor turns logical plans into pull-model producers. A
// producer is a state machine: Next returns the next tuple, a terminal
// error, or (nil, nil) on exhaustion. Child errors are re-yielded verbatim
// and terminate the producer; nothing is buffered beyond what an operator's
// own algorithm requires.
package executor

import (
	"fmt"

	"birchdb/internal/dberr"
	"birchdb/internal/planner"
	"birchdb/internal/storage"
	"birchdb/internal/types"
)

// Source is a lazy tuple producer. After the first error or the first
// (nil, nil) return, Next must not be called again. Close releases owned
// resources; consumers that stop pulling early must call it.
type Source interface {
	Next() (*types.Tuple, error)
	Close() error
}

// ReadExecutor is the contract for query operators.
type ReadExecutor interface {
	Execute(caches *storage.Caches, tx *storage.Transaction) Source
}

// WriteExecutor is the contract for DDL/DML operators, which receive the
// exclusive transaction handle.
type WriteExecutor interface {
	ExecuteMut(caches *storage.Caches, tx *storage.Transaction) Source
}

// Build converts a plan tree into a producer stack.
func Build(plan *planner.LogicalPlan, caches *storage.Caches, tx *storage.Transaction) Source {
	switch op := plan.Op.(type) {
	case *planner.TableScanOperator:
		return NewTableScan(op).Execute(caches, tx)
	case *planner.ProjectOperator:
		return NewProjection(op, plan.Left()).Execute(caches, tx)
	case *planner.FilterOperator:
		return NewFilter(op, plan.Left()).Execute(caches, tx)
	case *planner.JoinOperator:
		return NewNestedLoopJoin(op, plan.Left(), plan.Right()).Execute(caches, tx)
	case *planner.ValuesOperator:
		return NewValues(op).Execute(caches, tx)
	case *planner.LimitOperator:
		return NewLimit(op, plan.Left()).Execute(caches, tx)
	case *planner.CreateTableOperator:
		return NewCreateTable(op).ExecuteMut(caches, tx)
	case *planner.CreateIndexOperator:
		return NewCreateIndex(op, plan.Left()).ExecuteMut(caches, tx)
	case *planner.CreateViewOperator:
		return NewCreateView(op).ExecuteMut(caches, tx)
	case *planner.DropTableOperator:
		return NewDropTable(op).ExecuteMut(caches, tx)
	case *planner.InsertOperator:
		return NewInsert(op, plan.Left()).ExecuteMut(caches, tx)
	case *planner.DeleteOperator:
		return NewDelete(op, plan.Left()).ExecuteMut(caches, tx)
	case *planner.UpdateOperator:
		return NewUpdate(op, plan.Left()).ExecuteMut(caches, tx)
	case *planner.AnalyzeTableOperator:
		return NewAnalyzeTable(op, plan.Left()).ExecuteMut(caches, tx)
	case *planner.ShowTablesOperator:
		return NewShowTables().ExecuteMut(caches, tx)
	case *planner.ExplainOperator:
		return NewExplain(plan.Left()).Execute(caches, tx)
	default:
		return errSource(fmt.Errorf("%w: no executor for %T", dberr.ErrUnsupportedStmt, op))
	}
}

// Collect drains a producer into a slice and closes it.
func Collect(src Source) ([]*types.Tuple, error) {
	defer func() { _ = src.Close() }()
	var out []*types.Tuple
	for {
		tuple, err := src.Next()
		if err != nil {
			return nil, err
		}
		if tuple == nil {
			return out, nil
		}
		out = append(out, tuple)
	}
}

// errSource yields one terminal error.
type errorSource struct {
	err error
}

func errSource(err error) Source {
	return &errorSource{err: err}
}

func (s *errorSource) Next() (*types.Tuple, error) {
	err := s.err
	s.err = nil
	return nil, err
}

func (s *errorSource) Close() error { return nil }

// sliceSource yields a fixed tuple list; DDL/DML summaries reuse it.
type sliceSource struct {
	tuples []*types.Tuple
	pos    int
}

func newSliceSource(tuples []*types.Tuple) Source {
	return &sliceSource{tuples: tuples}
}

func (s *sliceSource) Next() (*types.Tuple, error) {
	if s.pos >= len(s.tuples) {
		return nil, nil
	}
	tuple := s.tuples[s.pos]
	s.pos++
	return tuple, nil
}

func (s *sliceSource) Close() error { return nil }

// summaryTuple is the one-row result DDL/DML statements report.
func summaryTuple(text string) *types.Tuple {
	return &types.Tuple{Values: []types.DataValue{types.NewVarchar(text)}}
}

// lazySource defers building the real producer until first pull, so write
// operators do their catalog work inside the pull discipline.
type lazySource struct {
	build func() (Source, error)
	inner Source
}

func newLazySource(build func() (Source, error)) Source {
	return &lazySource{build: build}
}

func (s *lazySource) Next() (*types.Tuple, error) {
	if s.inner == nil {
		inner, err := s.build()
		if err != nil {
			return nil, err
		}
		s.inner = inner
	}
	return s.inner.Next()
}

func (s *lazySource) Close() error {
	if s.inner == nil {
		return nil
	}
	return s.inner.Close()
}
