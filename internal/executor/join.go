package executor

import (
	"github.com/RoaringBitmap/roaring/v2"

	"birchdb/internal/catalog"
	"birchdb/internal/dberr"
	"birchdb/internal/expression"
	"birchdb/internal/planner"
	"birchdb/internal/storage"
	"birchdb/internal/types"
)

// NestedLoopJoin executes every join type over an outer/inner loop. One
// input is the outer table and the other the inner:
//
//	| Join type                    | Inner | Outer |
//	|------------------------------|-------|-------|
//	| Inner/Left/LeftSemi/LeftAnti | right | left  |
//	| RightOuter                   | left  | right |
//	| Full/Cross                   | right | left  |
//
// RightOuter swaps its inputs and keys up front and un-mirrors rows when
// emitting, so callers never see the swap.
type NestedLoopJoin struct {
	ty           planner.JoinType
	leftInput    *planner.LogicalPlan
	rightInput   *planner.LogicalPlan
	outputSchema catalog.Schema
	filter       expression.Expression
	eq           equalCondition
}

// equalCondition compares the equijoin key vectors of two tuples. Empty key
// lists mean no equivalence condition and always match (cross product).
type equalCondition struct {
	onLeftKeys  []expression.Expression
	onRightKeys []expression.Expression
	leftSchema  catalog.Schema
	rightSchema catalog.Schema
}

func (c *equalCondition) equals(left, right *types.Tuple) (bool, error) {
	if len(c.onLeftKeys) == 0 {
		return true, nil
	}
	leftValues, err := ProjectValues(left, c.onLeftKeys, c.leftSchema)
	if err != nil {
		return false, err
	}
	rightValues, err := ProjectValues(right, c.onRightKeys, c.rightSchema)
	if err != nil {
		return false, err
	}
	for i := range leftValues {
		if !types.Equal(leftValues[i], rightValues[i]) {
			return false, nil
		}
	}
	return true, nil
}

func NewNestedLoopJoin(op *planner.JoinOperator, left, right *planner.LogicalPlan) *NestedLoopJoin {
	onLeft := make([]expression.Expression, 0, len(op.Condition.On))
	onRight := make([]expression.Expression, 0, len(op.Condition.On))
	for _, pair := range op.Condition.On {
		onLeft = append(onLeft, pair.Left)
		onRight = append(onRight, pair.Right)
	}

	leftSchema := left.OutputSchema()
	rightSchema := right.OutputSchema()
	outputSchema := planner.MergeJoinSchema(leftSchema, rightSchema, op.Type)

	if op.Type == planner.JoinRightOuter {
		left, right = right, left
		onLeft, onRight = onRight, onLeft
		leftSchema, rightSchema = rightSchema, leftSchema
	}

	return &NestedLoopJoin{
		ty:           op.Type,
		leftInput:    left,
		rightInput:   right,
		outputSchema: outputSchema,
		filter:       op.Condition.Filter,
		eq: equalCondition{
			onLeftKeys:  onLeft,
			onRightKeys: onRight,
			leftSchema:  leftSchema,
			rightSchema: rightSchema,
		},
	}
}

func (j *NestedLoopJoin) Execute(caches *storage.Caches, tx *storage.Transaction) Source {
	return &joinSource{
		join:   j,
		caches: caches,
		tx:     tx,
		left:   Build(j.leftInput, caches, tx),
		bitmap: roaring.New(),
	}
}

type joinPhase uint8

const (
	joinPhaseOuter joinPhase = iota
	joinPhaseInner
	joinPhaseFullTail
	joinPhaseDone
)

type joinSource struct {
	join   *NestedLoopJoin
	caches *storage.Caches
	tx     *storage.Transaction

	phase      joinPhase
	left       Source
	right      Source
	leftTuple  *types.Tuple
	hasMatched bool
	rightIdx   uint32
	// bitmap records matched inner positions across all outer rows so the
	// Full tail pass can emit the never-matched inner rows.
	bitmap *roaring.Bitmap
}

func (s *joinSource) closeRight() {
	if s.right != nil {
		_ = s.right.Close()
		s.right = nil
	}
}

func (s *joinSource) fail(err error) (*types.Tuple, error) {
	s.phase = joinPhaseDone
	return nil, err
}

func (s *joinSource) Next() (*types.Tuple, error) {
	j := s.join
	for {
		switch s.phase {
		case joinPhaseDone:
			return nil, nil

		case joinPhaseOuter:
			tuple, err := s.left.Next()
			if err != nil {
				return s.fail(err)
			}
			if tuple == nil {
				if j.ty == planner.JoinFull {
					s.phase = joinPhaseFullTail
					s.closeRight()
					s.right = Build(j.rightInput, s.caches, s.tx)
					s.rightIdx = 0
					continue
				}
				s.phase = joinPhaseDone
				return nil, nil
			}
			s.leftTuple = tuple
			s.hasMatched = false
			s.rightIdx = 0
			s.closeRight()
			s.right = Build(j.rightInput, s.caches, s.tx)
			s.phase = joinPhaseInner

		case joinPhaseInner:
			rightTuple, err := s.right.Next()
			if err != nil {
				return s.fail(err)
			}
			if rightTuple == nil {
				s.phase = joinPhaseOuter
				if pad := s.padTuple(); pad != nil {
					return pad, nil
				}
				continue
			}

			out, err := s.probe(rightTuple)
			if err != nil {
				return s.fail(err)
			}
			if out != nil {
				if j.ty == planner.JoinLeftSemi {
					// First match is the only emission for this outer row.
					s.phase = joinPhaseOuter
					return out, nil
				}
				if j.ty == planner.JoinFull {
					s.bitmap.Add(s.rightIdx)
				}
				s.rightIdx++
				return out, nil
			}
			if j.ty == planner.JoinLeftAnti && s.hasMatched {
				s.phase = joinPhaseOuter
				continue
			}
			s.rightIdx++

		case joinPhaseFullTail:
			rightTuple, err := s.right.Next()
			if err != nil {
				return s.fail(err)
			}
			if rightTuple == nil {
				s.phase = joinPhaseDone
				return nil, nil
			}
			idx := s.rightIdx
			s.rightIdx++
			if s.bitmap.Contains(idx) {
				continue
			}
			values := make([]types.DataValue, 0, len(j.eq.leftSchema)+len(rightTuple.Values))
			for range j.eq.leftSchema {
				values = append(values, types.Null)
			}
			values = append(values, rightTuple.Values...)
			return &types.Tuple{Pk: rightTuple.Pk, Values: values}, nil
		}
	}
}

// probe tests one inner tuple against the current outer tuple and returns
// the emitted row, if any.
func (s *joinSource) probe(rightTuple *types.Tuple) (*types.Tuple, error) {
	j := s.join
	matched, err := j.eq.equals(s.leftTuple, rightTuple)
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, nil
	}
	if j.filter == nil {
		s.hasMatched = true
		if j.ty == planner.JoinRightOuter {
			return emitTuple(rightTuple, s.leftTuple, j.ty, true), nil
		}
		return emitTuple(s.leftTuple, rightTuple, j.ty, true), nil
	}

	merged := mergeTuple(s.leftTuple, rightTuple, j.ty)
	value, err := expression.Eval(j.filter, merged, j.outputSchema)
	if err != nil {
		return nil, err
	}
	switch v := value.(type) {
	case types.BooleanValue:
		if !bool(v) {
			return nil, nil
		}
	case types.NullValue:
		return nil, nil
	default:
		return nil, dberr.ErrInvalidType
	}

	var out *types.Tuple
	switch {
	case j.ty == planner.JoinLeftAnti:
		out = nil
	case j.ty == planner.JoinLeftSemi && s.hasMatched:
		out = nil
	case j.ty == planner.JoinRightOuter:
		out = emitTuple(rightTuple, s.leftTuple, j.ty, true)
	default:
		out = emitTuple(s.leftTuple, rightTuple, j.ty, true)
	}
	s.hasMatched = true
	return out, nil
}

// padTuple emits the no-match row owed to the current outer tuple after the
// inner input is exhausted.
func (s *joinSource) padTuple() *types.Tuple {
	j := s.join
	if s.hasMatched {
		return nil
	}
	switch j.ty {
	case planner.JoinLeftAnti:
		clone := *s.leftTuple
		return &clone
	case planner.JoinLeftOuter, planner.JoinLeftSemi, planner.JoinRightOuter, planner.JoinFull:
		nulls := make([]types.DataValue, len(j.eq.rightSchema))
		for i := range nulls {
			nulls[i] = types.Null
		}
		rightTuple := &types.Tuple{Values: nulls}
		if j.ty == planner.JoinRightOuter {
			return emitTuple(rightTuple, s.leftTuple, j.ty, false)
		}
		return emitTuple(s.leftTuple, rightTuple, j.ty, false)
	}
	return nil
}

// emitTuple collapses a candidate row to the width its join type calls for,
// nulling the non-preserved side. A nil return means nothing is emitted.
func emitTuple(leftTuple, rightTuple *types.Tuple, ty planner.JoinType, matched bool) *types.Tuple {
	leftLen := len(leftTuple.Values)
	values := make([]types.DataValue, 0, leftLen+len(rightTuple.Values))
	values = append(values, leftTuple.Values...)
	values = append(values, rightTuple.Values...)

	switch {
	case !matched && (ty == planner.JoinInner || ty == planner.JoinCross || ty == planner.JoinLeftSemi):
		values = nil
	case !matched && (ty == planner.JoinLeftOuter || ty == planner.JoinFull):
		for i := leftLen; i < len(values); i++ {
			values[i] = types.Null
		}
	case !matched && ty == planner.JoinRightOuter:
		for i := 0; i < leftLen; i++ {
			values[i] = types.Null
		}
	case ty == planner.JoinLeftSemi:
		values = values[:leftLen]
	case ty == planner.JoinLeftAnti:
		if matched {
			values = nil
		} else {
			values = values[:leftLen]
		}
	}
	if len(values) == 0 {
		return nil
	}

	pk := leftTuple.Pk
	if pk == nil {
		pk = rightTuple.Pk
	}
	return &types.Tuple{Pk: pk, Values: values}
}

// mergeTuple concatenates both sides in output-schema order for filter
// evaluation; RightOuter restores the pre-mirror order.
func mergeTuple(leftTuple, rightTuple *types.Tuple, ty planner.JoinType) *types.Tuple {
	pk := leftTuple.Pk
	if pk == nil {
		pk = rightTuple.Pk
	}
	first, second := leftTuple, rightTuple
	if ty == planner.JoinRightOuter {
		first, second = rightTuple, leftTuple
	}
	values := make([]types.DataValue, 0, len(first.Values)+len(second.Values))
	values = append(values, first.Values...)
	values = append(values, second.Values...)
	return &types.Tuple{Pk: pk, Values: values}
}

func (s *joinSource) Close() error {
	s.phase = joinPhaseDone
	err := s.left.Close()
	if s.right != nil {
		if closeErr := s.right.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}
