// Package optimizer rewrites logical plans with pattern-matched
// normalization rules. Dispatch is a type switch over the plan node, not
// dynamic dispatch; every rule returns a (possibly) new tree and never
// mutates shared expression nodes.
package optimizer

import (
	"birchdb/internal/catalog"
	"birchdb/internal/expression"
	"birchdb/internal/planner"
	"birchdb/internal/types"
)

// Optimize runs the normalization pipeline: constant folding to feed the
// detacher, filter pushdown through joins, then range detachment into scans.
func Optimize(plan *planner.LogicalPlan) (*planner.LogicalPlan, error) {
	plan = foldPlanConstants(plan)
	plan = pushPredicateThroughJoin(plan)
	plan.InvalidateSchema()
	if err := pushPredicateIntoScan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// splitConjunctivePredicates flattens nested ANDs into a conjunct list.
func splitConjunctivePredicates(expr expression.Expression) []expression.Expression {
	if binary, ok := expr.(*expression.Binary); ok && binary.Op == expression.OpAnd {
		return append(
			splitConjunctivePredicates(binary.Left),
			splitConjunctivePredicates(binary.Right)...,
		)
	}
	return []expression.Expression{expr}
}

// reduceFilters folds conjuncts back into one predicate; nil when empty.
func reduceFilters(filters []expression.Expression) expression.Expression {
	var out expression.Expression
	for _, f := range filters {
		if out == nil {
			out = f
			continue
		}
		out = &expression.Binary{
			Op:    expression.OpAnd,
			Left:  out,
			Right: f,
			Ty:    types.Boolean(),
		}
	}
	return out
}

// isSubsetCols reports whether every column in left appears in right,
// compared by table and column id so join-nullability clones still match.
func isSubsetCols(left []*catalog.Column, right catalog.Schema) bool {
	for _, col := range left {
		if !right.Contains(col) {
			return false
		}
	}
	return true
}

// pushPredicateThroughJoin moves a filter's single-side conjuncts below the
// join they sit on. Pushing below the NULL-padded side of an outer join would
// change semantics, so those conjuncts stay above; Full and Cross joins are
// left alone entirely.
func pushPredicateThroughJoin(plan *planner.LogicalPlan) *planner.LogicalPlan {
	for i, child := range plan.Children {
		plan.Children[i] = pushPredicateThroughJoin(child)
	}

	filterOp, ok := plan.Op.(*planner.FilterOperator)
	if !ok {
		return plan
	}
	joinPlan := plan.Left()
	if joinPlan == nil {
		return plan
	}
	joinOp, ok := joinPlan.Op.(*planner.JoinOperator)
	if !ok {
		return plan
	}
	switch joinOp.Type {
	case planner.JoinInner, planner.JoinLeftOuter, planner.JoinLeftSemi,
		planner.JoinLeftAnti, planner.JoinRightOuter:
	default:
		return plan
	}

	leftChild, rightChild := joinPlan.Left(), joinPlan.Right()
	leftSchema := leftChild.OutputSchema()
	rightSchema := rightChild.OutputSchema()

	conjuncts := splitConjunctivePredicates(filterOp.Predicate)
	var leftFilters, rightFilters, commonFilters []expression.Expression
	for _, conjunct := range conjuncts {
		cols := expression.ReferencedColumns(conjunct)
		switch {
		case isSubsetCols(cols, leftSchema):
			leftFilters = append(leftFilters, conjunct)
		case isSubsetCols(cols, rightSchema):
			rightFilters = append(rightFilters, conjunct)
		default:
			commonFilters = append(commonFilters, conjunct)
		}
	}

	var pushLeft, pushRight, keep []expression.Expression
	switch joinOp.Type {
	case planner.JoinInner:
		pushLeft, pushRight, keep = leftFilters, rightFilters, commonFilters
	case planner.JoinLeftOuter, planner.JoinLeftSemi, planner.JoinLeftAnti:
		pushLeft = leftFilters
		keep = append(commonFilters, rightFilters...)
	case planner.JoinRightOuter:
		pushRight = rightFilters
		keep = append(commonFilters, leftFilters...)
	}

	if predicate := reduceFilters(pushLeft); predicate != nil {
		leftChild = planner.NewPlan(&planner.FilterOperator{Predicate: predicate}, leftChild)
	}
	if predicate := reduceFilters(pushRight); predicate != nil {
		rightChild = planner.NewPlan(&planner.FilterOperator{Predicate: predicate}, rightChild)
	}
	joinPlan = planner.NewPlan(joinOp, leftChild, rightChild)

	if predicate := reduceFilters(keep); predicate != nil {
		return planner.NewPlan(&planner.FilterOperator{Predicate: predicate, Having: filterOp.Having}, joinPlan)
	}
	return joinPlan
}

// pushPredicateIntoScan runs the detacher for every index of a scanned
// table sitting under a filter, installing seek ranges in place. The filter
// itself stays above the scan: ranges are sound supersets and the exact
// predicate is re-applied per row.
func pushPredicateIntoScan(plan *planner.LogicalPlan) error {
	for _, child := range plan.Children {
		if err := pushPredicateIntoScan(child); err != nil {
			return err
		}
	}
	filterOp, ok := plan.Op.(*planner.FilterOperator)
	if !ok || plan.Left() == nil {
		return nil
	}
	scanOp, ok := plan.Left().Op.(*planner.TableScanOperator)
	if !ok {
		return nil
	}
	for _, info := range scanOp.IndexInfos {
		if info.Range != nil {
			continue
		}
		var (
			detached expression.Range
			err      error
		)
		if info.Meta.MultiplePk || info.Meta.Kind == catalog.IndexComposite {
			detached, err = compositeRange(filterOp, info.Meta)
		} else {
			detacher := expression.NewRangeDetacher(info.Meta.TableName, info.Meta.ColumnIDs[0])
			detached, err = detacher.Detach(filterOp.Predicate)
		}
		if err != nil {
			return err
		}
		// Unique indexes do not index NULL values (absent data never
		// collides), so a range that may cover the NULL point cannot be
		// served by one. NULL sorts below everything, which makes an
		// unbounded lower end suspect too: the detacher may have absorbed
		// an IS NULL into it.
		if detached != nil && info.Meta.Kind == catalog.IndexUnique && uniqueRangeUnsafe(detached) {
			continue
		}
		info.Range = detached
	}
	return nil
}

func uniqueRangeUnsafe(r expression.Range) bool {
	switch v := r.(type) {
	case expression.Eq:
		return v.Value.IsNull()
	case expression.Scope:
		return v.Min.Kind == expression.BoundUnbounded
	case expression.SortedRanges:
		for _, sub := range v.Ranges {
			if uniqueRangeUnsafe(sub) {
				return true
			}
		}
	}
	return false
}

// compositeRange accumulates equality-only ranges over the index's leading
// columns and lifts the first non-equality range into tuple space. When the
// predicate binds fewer columns than the index has and only equalities
// remain, each point is rewritten to the half-open scope over all its
// extensions: a shorter equality tuple cannot point-match longer keys.
func compositeRange(filterOp *planner.FilterOperator, meta *catalog.IndexMeta) (expression.Range, error) {
	var result expression.Range
	eqRanges := make([]expression.Range, 0, len(meta.ColumnIDs))
	applyColumnCount := 0

	for _, columnID := range meta.ColumnIDs {
		detacher := expression.NewRangeDetacher(meta.TableName, columnID)
		detached, err := detacher.Detach(filterOp.Predicate)
		if err != nil {
			return nil, err
		}
		if detached == nil {
			break
		}
		applyColumnCount++
		if expression.OnlyEq(detached) {
			eqRanges = append(eqRanges, detached)
			continue
		}
		result = expression.CombiningEqs(detached, eqRanges)
		break
	}
	if result == nil && len(eqRanges) > 0 {
		last := eqRanges[len(eqRanges)-1]
		result = expression.CombiningEqs(last, eqRanges[:len(eqRanges)-1])
	}
	if result == nil {
		return nil, nil
	}
	if expression.OnlyEq(result) && applyColumnCount != len(meta.ColumnIDs) {
		result = eqToScope(result)
	}
	return result, nil
}

func eqToScope(r expression.Range) expression.Range {
	switch v := r.(type) {
	case expression.Eq:
		if tuple, ok := v.Value.(types.TupleValue); ok {
			lower := types.TupleValue{Values: tuple.Values}
			upper := types.TupleValue{Values: tuple.Values, IsUpper: true}
			return expression.Scope{
				Min: expression.Excluded(lower),
				Max: expression.Excluded(upper),
			}
		}
		return v
	case expression.SortedRanges:
		out := make([]expression.Range, len(v.Ranges))
		for i, sub := range v.Ranges {
			out[i] = eqToScope(sub)
		}
		return expression.SortedRanges{Ranges: out}
	default:
		return r
	}
}

// foldPlanConstants folds constant subexpressions inside every filter so
// bare column-operator-literal shapes surface for the detacher.
func foldPlanConstants(plan *planner.LogicalPlan) *planner.LogicalPlan {
	for i, child := range plan.Children {
		plan.Children[i] = foldPlanConstants(child)
	}
	if filterOp, ok := plan.Op.(*planner.FilterOperator); ok {
		filterOp.Predicate = FoldConstants(filterOp.Predicate)
	}
	return plan
}

// FoldConstants evaluates constant-only subtrees down to literals.
func FoldConstants(expr expression.Expression) expression.Expression {
	switch e := expr.(type) {
	case *expression.Binary:
		left := FoldConstants(e.Left)
		right := FoldConstants(e.Right)
		if lc, ok := left.(*expression.Constant); ok {
			if rc, ok := right.(*expression.Constant); ok {
				if value, err := expression.EvalConstantBinary(e.Op, lc.Value, rc.Value); err == nil {
					return &expression.Constant{Value: value}
				}
			}
		}
		return &expression.Binary{Op: e.Op, Left: left, Right: right, Ty: e.Ty}
	case *expression.Unary:
		inner := FoldConstants(e.Expr)
		if c, ok := inner.(*expression.Constant); ok {
			if value, err := expression.EvalConstantUnary(e.Op, c.Value); err == nil {
				return &expression.Constant{Value: value}
			}
		}
		return &expression.Unary{Op: e.Op, Expr: inner}
	default:
		return expr
	}
}
