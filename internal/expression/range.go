package expression

import (
	"fmt"
	"slices"
	"strings"

	"birchdb/internal/catalog"
	"birchdb/internal/types"
)

// The range algebra represents what a predicate says about one column as a
// union of disjoint intervals. NotEq is deliberately unsupported: it
// fragments every interval it touches and makes composition explode.

// BoundKind tags one end of a Scope.
type BoundKind uint8

const (
	BoundUnbounded BoundKind = iota
	BoundIncluded
	BoundExcluded
)

// Bound is one end of a Scope.
type Bound struct {
	Kind  BoundKind
	Value types.DataValue
}

func Unbounded() Bound                 { return Bound{Kind: BoundUnbounded} }
func Included(v types.DataValue) Bound { return Bound{Kind: BoundIncluded, Value: v} }
func Excluded(v types.DataValue) Bound { return Bound{Kind: BoundExcluded, Value: v} }

// Range is a symbolic set of values of one column (or, after lifting, one
// tuple of columns). Implementations: Scope, Eq, Dummy, SortedRanges.
type Range interface {
	rangeNode()
	String() string
}

// Scope is a contiguous interval.
type Scope struct {
	Min Bound
	Max Bound
}

// Eq is a single point. Eq(Null) represents IS NULL.
type Eq struct {
	Value types.DataValue
}

// Dummy is the empty set.
type Dummy struct{}

// SortedRanges is a disjoint ascending union; elements are Scope or Eq,
// never nested SortedRanges, and a one-element union is always collapsed to
// its element.
type SortedRanges struct {
	Ranges []Range
}

func (Scope) rangeNode()        {}
func (Eq) rangeNode()           {}
func (Dummy) rangeNode()        {}
func (SortedRanges) rangeNode() {}

func (b Bound) String() string {
	switch b.Kind {
	case BoundUnbounded:
		return "inf"
	case BoundIncluded:
		return fmt.Sprintf("[%s]", b.Value)
	default:
		return fmt.Sprintf("(%s)", b.Value)
	}
}

func (r Scope) String() string {
	var sb strings.Builder
	switch r.Min.Kind {
	case BoundUnbounded:
		sb.WriteString("(-inf")
	case BoundIncluded:
		fmt.Fprintf(&sb, "[%s", r.Min.Value)
	default:
		fmt.Fprintf(&sb, "(%s", r.Min.Value)
	}
	sb.WriteString(", ")
	switch r.Max.Kind {
	case BoundUnbounded:
		sb.WriteString("+inf)")
	case BoundIncluded:
		fmt.Fprintf(&sb, "%s]", r.Max.Value)
	default:
		fmt.Fprintf(&sb, "%s)", r.Max.Value)
	}
	return sb.String()
}

func (r Eq) String() string { return r.Value.String() }

func (Dummy) String() string { return "Dummy" }

func (r SortedRanges) String() string {
	parts := make([]string, len(r.Ranges))
	for i, sub := range r.Ranges {
		parts[i] = sub.String()
	}
	return strings.Join(parts, ", ")
}

// OnlyEq reports whether the range is a point or a union of points.
func OnlyEq(r Range) bool {
	switch v := r.(type) {
	case Eq:
		return true
	case SortedRanges:
		for _, sub := range v.Ranges {
			if !OnlyEq(sub) {
				return false
			}
		}
		return true
	}
	return false
}

// RangeDetacher extracts, from a predicate tree, the strongest sound range
// restriction on one column.
type RangeDetacher struct {
	tableName string
	columnID  types.ColumnID
}

func NewRangeDetacher(tableName string, columnID types.ColumnID) *RangeDetacher {
	return &RangeDetacher{tableName: tableName, columnID: columnID}
}

// Detach walks the predicate. A nil result means the predicate places no
// extractable restriction on the column; it is never a falsely narrow range.
func (d *RangeDetacher) Detach(expr Expression) (Range, error) {
	switch e := expr.(type) {
	case *Binary:
		left, err := d.Detach(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := d.Detach(e.Right)
		if err != nil {
			return nil, err
		}
		switch {
		case left != nil && right != nil:
			return mergeBinary(e.Op, left, right), nil
		case left == nil && right == nil:
			if col, val := unpackColumn(e.Left), unpackValue(e.Right); col != nil && val != nil {
				return d.newRange(e.Op, col, val, false)
			}
			if val, col := unpackValue(e.Left), unpackColumn(e.Right); col != nil && val != nil {
				return d.newRange(e.Op, col, val, true)
			}
			return nil, nil
		case left != nil:
			return checkOr(e.Op, left), nil
		default:
			return checkOr(e.Op, right), nil
		}
	case *Alias:
		return d.Detach(e.Expr)
	case *Unary:
		return d.Detach(e.Expr)
	case *In:
		return d.Detach(e.Expr)
	case *Between:
		return d.Detach(e.Expr)
	case *SubString:
		return d.Detach(e.Expr)
	case *IsNull:
		if col := unpackColumn(e.Expr); col != nil {
			if id, ok := col.ID(); ok && id == d.columnID && col.TableName() == d.tableName {
				if e.Negated {
					// IS NOT NULL would need a NotEq(Null) form; unknown.
					return nil, nil
				}
				return Eq{Value: types.Null}, nil
			}
			return nil, nil
		}
		return d.Detach(e.Expr)
	case *Constant, *ColumnRef, *AggCall, *If, *CaseWhen:
		return nil, nil
	case *TableFunction:
		panic("table function in a predicate")
	}
	return nil, nil
}

func (d *RangeDetacher) newRange(op BinaryOperator, col *catalog.Column, val types.DataValue, flipped bool) (Range, error) {
	id, ok := col.ID()
	if !ok || id != d.columnID || col.TableName() != d.tableName {
		return nil, nil
	}
	if !val.IsNull() && !val.LogicalType().Equal(col.Type) {
		cast, err := types.Cast(val, col.Type)
		if err != nil {
			return nil, err
		}
		val = cast
	}
	if flipped {
		switch op {
		case OpGt:
			op = OpLt
		case OpLt:
			op = OpGt
		case OpGtEq:
			op = OpLtEq
		case OpLtEq:
			op = OpGtEq
		}
	}
	switch op {
	case OpGt:
		return Scope{Min: Excluded(val), Max: Unbounded()}, nil
	case OpLt:
		return Scope{Min: Unbounded(), Max: Excluded(val)}, nil
	case OpGtEq:
		return Scope{Min: Included(val), Max: Unbounded()}, nil
	case OpLtEq:
		return Scope{Min: Unbounded(), Max: Included(val)}, nil
	case OpEq, OpSpaceship:
		return Eq{Value: val}, nil
	}
	return nil, nil
}

// checkOr guards the one-sided case: `(c1 > c2) OR (c1 > 1)` cannot be
// narrowed to the extractable side, so OR yields unknown; AND keeps it.
func checkOr(op BinaryOperator, binary Range) Range {
	if op == OpOr {
		return nil
	}
	return binary
}

// boundCompared orders two bounds of the same end. isMin says which end is
// being compared, which decides how Included/Excluded ties break. ok is
// false when the underlying values are incomparable.
func boundCompared(left, right Bound, isMin bool) (int, bool) {
	reverse := func(order int) int {
		if isMin {
			return order
		}
		return -order
	}
	switch {
	case left.Kind == BoundUnbounded && right.Kind == BoundUnbounded:
		return 0, true
	case left.Kind == BoundUnbounded:
		return reverse(-1), true
	case right.Kind == BoundUnbounded:
		return reverse(1), true
	}
	order, ok := types.Compare(left.Value, right.Value)
	if !ok {
		return 0, false
	}
	if order != 0 {
		return order, true
	}
	switch {
	case left.Kind == BoundIncluded && right.Kind == BoundExcluded:
		return reverse(-1), true
	case left.Kind == BoundExcluded && right.Kind == BoundIncluded:
		return reverse(1), true
	default:
		return 0, true
	}
}

// processExcludeBoundWithEq upgrades an excluded bound to included when an
// OR'd equality lands exactly on it.
func processExcludeBoundWithEq(bound Bound, eq types.DataValue, op BinaryOperator) Bound {
	if bound.Kind == BoundExcluded && op == OpOr && types.Equal(bound.Value, eq) {
		return Included(bound.Value)
	}
	return bound
}

func mergeBinary(op BinaryOperator, left, right Range) Range {
	// Dummy is the empty set: AND annihilates, OR is identity.
	if _, ok := left.(Dummy); ok {
		return mergeWithDummy(op, right)
	}
	if _, ok := right.(Dummy); ok {
		return mergeWithDummy(op, left)
	}

	switch l := left.(type) {
	case Scope:
		switch r := right.(type) {
		case Scope:
			switch op {
			case OpAnd:
				return andScopeMerge(l.Min, l.Max, r.Min, r.Max)
			case OpOr:
				return orScopeMerge(l.Min, l.Max, r.Min, r.Max)
			}
			return nil
		case Eq:
			return mergeScopeWithEq(op, l, r)
		case SortedRanges:
			return ranges2range(extractMergeRanges(op, l, slices.Clone(r.Ranges), new(int)))
		}
	case Eq:
		switch r := right.(type) {
		case Scope:
			return mergeScopeWithEq(op, r, l)
		case Eq:
			return mergeEqWithEq(op, l, r)
		case SortedRanges:
			return ranges2range(extractMergeRanges(op, l, slices.Clone(r.Ranges), new(int)))
		}
	case SortedRanges:
		switch r := right.(type) {
		case Scope, Eq:
			return ranges2range(extractMergeRanges(op, r, slices.Clone(l.Ranges), new(int)))
		case SortedRanges:
			merged := slices.Clone(r.Ranges)
			idx := 0
			for _, leftRange := range l.Ranges {
				merged = extractMergeRanges(op, leftRange, merged, &idx)
			}
			return ranges2range(merged)
		}
	}
	return nil
}

func mergeWithDummy(op BinaryOperator, other Range) Range {
	switch op {
	case OpAnd:
		return Dummy{}
	case OpOr:
		return other
	}
	return nil
}

func mergeScopeWithEq(op BinaryOperator, scope Scope, eq Eq) Range {
	switch op {
	case OpAnd:
		boundEq := Included(eq.Value)
		order, known := boundCompared(boundEq, scope.Min, true)
		isLess := false
		if known {
			isLess = order < 0
		} else if scope.Min.Kind != BoundUnbounded {
			// Incomparable against a real lower bound (a NULL point):
			// treat as outside.
			isLess = true
		}
		if !isLess {
			if order, known := boundCompared(boundEq, scope.Max, false); known && order > 0 {
				return Dummy{}
			}
			return Eq{Value: eq.Value}
		}
		return Dummy{}
	case OpOr:
		if eq.Value.IsNull() {
			// NULL sorts below every value; an inclusive or open lower
			// bound absorbs it, an excluded one keeps it as its own point.
			if scope.Min.Kind == BoundExcluded {
				return SortedRanges{Ranges: []Range{Eq{Value: eq.Value}, scope}}
			}
			return scope
		}
		boundEq := Excluded(eq.Value)
		if order, known := boundCompared(boundEq, scope.Min, true); known {
			switch {
			case order < 0:
				return SortedRanges{Ranges: []Range{Eq{Value: eq.Value}, scope}}
			case order == 0:
				return Scope{Min: processExcludeBoundWithEq(scope.Min, eq.Value, op), Max: scope.Max}
			}
		}
		if order, known := boundCompared(boundEq, scope.Max, false); known {
			switch {
			case order > 0:
				return SortedRanges{Ranges: []Range{scope, Eq{Value: eq.Value}}}
			case order == 0:
				return Scope{Min: scope.Min, Max: processExcludeBoundWithEq(scope.Max, eq.Value, op)}
			}
		}
		return scope
	}
	return nil
}

func mergeEqWithEq(op BinaryOperator, left, right Eq) Range {
	if types.Equal(left.Value, right.Value) && (op == OpAnd || op == OpOr) {
		return left
	}
	switch op {
	case OpAnd:
		return Dummy{}
	case OpOr:
		first, second := left, right
		if order, ok := types.Compare(left.Value, right.Value); ok && order > 0 {
			first, second = right, left
		} else if !ok && right.Value.IsNull() {
			// NULL is the minimum: it leads the union.
			first, second = right, left
		}
		return SortedRanges{Ranges: []Range{first, second}}
	}
	return nil
}

// ranges2range collapses the normal form: empty → Dummy, singleton → its
// element, otherwise a SortedRanges.
func ranges2range(merged []Range) Range {
	switch len(merged) {
	case 0:
		return Dummy{}
	case 1:
		return merged[0]
	default:
		return SortedRanges{Ranges: merged}
	}
}

// extractMergeRanges folds binary into a sorted disjoint list: skip elements
// wholly below it, merge every overlapping element, and insert at the first
// strictly greater position.
func extractMergeRanges(op BinaryOperator, binary Range, ranges []Range, idx *int) []Range {
	for *idx < len(ranges) {
		if binary == nil {
			break
		}
		if _, isDummy := binary.(Dummy); isDummy {
			switch op {
			case OpAnd:
				return nil
			case OpOr:
				binary = ranges[*idx]
				ranges = slices.Delete(ranges, *idx, *idx+1)
				continue
			default:
				binary = nil
				continue
			}
		}
		if l, isSorted := binary.(SortedRanges); isSorted {
			// A nested union can only reach here through recursive merges;
			// restart the extraction with the current element folded into
			// the union's own elements.
			return extractMergeRanges(op, ranges[*idx], slices.Clone(l.Ranges), new(int))
		}

		switch l := binary.(type) {
		case Scope:
			switch r := ranges[*idx].(type) {
			case Scope:
				if order, ok := boundCompared(l.Max, r.Min, false); ok && order < 0 {
					return slices.Insert(ranges, *idx, binary)
				}
				if order, ok := boundCompared(l.Min, r.Max, true); ok && order > 0 {
					*idx++
					continue
				}
				removed := ranges[*idx]
				ranges = slices.Delete(ranges, *idx, *idx+1)
				binary = mergeBinary(op, binary, removed)
			case Eq:
				rBound := Included(r.Value)
				if order, ok := boundCompared(l.Max, rBound, false); ok && order < 0 {
					return slices.Insert(ranges, *idx, binary)
				}
				order, ok := boundCompared(l.Min, rBound, true)
				if (ok && order > 0) || (!ok && op == OpOr) {
					*idx++
					continue
				}
				if r.Value.IsNull() {
					ranges = slices.Delete(ranges, *idx, *idx+1)
					continue
				}
				removed := ranges[*idx]
				ranges = slices.Delete(ranges, *idx, *idx+1)
				binary = mergeBinary(op, binary, removed)
			default:
				return nil
			}
		case Eq:
			switch r := ranges[*idx].(type) {
			case Eq:
				order, ok := types.Compare(l.Value, r.Value)
				if ok && order < 0 {
					return slices.Insert(ranges, *idx, binary)
				}
				if ok && order > 0 {
					*idx++
					continue
				}
				removed := ranges[*idx]
				ranges = slices.Delete(ranges, *idx, *idx+1)
				binary = mergeBinary(op, binary, removed)
			case Scope:
				lBound := Included(l.Value)
				order, ok := boundCompared(lBound, r.Min, false)
				if (ok && order < 0) || (!ok && op == OpOr) {
					return slices.Insert(ranges, *idx, binary)
				}
				if order, ok := boundCompared(lBound, r.Max, true); ok && order > 0 {
					*idx++
					continue
				}
				if l.Value.IsNull() {
					binary = ranges[*idx]
					ranges = slices.Delete(ranges, *idx, *idx+1)
					continue
				}
				removed := ranges[*idx]
				ranges = slices.Delete(ranges, *idx, *idx+1)
				binary = mergeBinary(op, binary, removed)
			default:
				return nil
			}
		default:
			return nil
		}
	}
	if binary != nil {
		// A trailing Dummy is the empty set; appending it would break the
		// normal form, so it is dropped.
		if _, isDummy := binary.(Dummy); !isDummy {
			ranges = append(ranges, binary)
		}
	}
	return ranges
}

func orScopeMerge(leftMin, leftMax, rightMin, rightMax Bound) Range {
	leftBelow, okL := boundCompared(leftMax, rightMin, false)
	rightBelow, okR := boundCompared(rightMax, leftMin, false)
	if (okL && leftBelow < 0) || (okR && rightBelow < 0) {
		first := Scope{Min: leftMin, Max: leftMax}
		second := Scope{Min: rightMin, Max: rightMax}
		if order, ok := boundCompared(leftMin, rightMin, true); !ok || order >= 0 {
			first, second = second, first
		}
		return SortedRanges{Ranges: []Range{first, second}}
	}
	min := rightMin
	if order, ok := boundCompared(leftMin, rightMin, true); ok && order < 0 {
		min = leftMin
	}
	max := rightMax
	if order, ok := boundCompared(leftMax, rightMax, false); ok && order > 0 {
		max = leftMax
	}
	if order, ok := boundCompared(min, max, min.Kind == BoundUnbounded); ok && order == 0 {
		switch min.Kind {
		case BoundIncluded:
			return Eq{Value: min.Value}
		case BoundExcluded:
			return Dummy{}
		default:
			return Scope{Min: Unbounded(), Max: Unbounded()}
		}
	}
	return Scope{Min: min, Max: max}
}

func andScopeMerge(leftMin, leftMax, rightMin, rightMax Bound) Range {
	min := rightMin
	if order, ok := boundCompared(leftMin, rightMin, true); ok && order > 0 {
		min = leftMin
	}
	max := rightMax
	if order, ok := boundCompared(leftMax, rightMax, false); ok && order < 0 {
		max = leftMax
	}
	if order, ok := boundCompared(min, max, min.Kind == BoundUnbounded); ok {
		switch {
		case order > 0:
			return Dummy{}
		case order == 0:
			switch min.Kind {
			case BoundIncluded:
				return Eq{Value: min.Value}
			case BoundExcluded:
				return Dummy{}
			default:
				return Scope{Min: Unbounded(), Max: Unbounded()}
			}
		}
	}
	return Scope{Min: min, Max: max}
}

// CombiningEqs lifts an outer range into tuple space: eqs are equality-only
// ranges of the preceding key columns; every combination of their points is
// prefixed onto the outer range's bounds. The is_upper sentinel on the upper
// tuple keeps prefix bounds sorting above all extensions of the prefix.
func CombiningEqs(outer Range, eqs []Range) Range {
	combinations, ok := enumerateEqs(eqs, 0)
	if !ok {
		return nil
	}
	var ranges []Range
	for _, tuple := range combinations {
		collectTupleRange(&ranges, tuple, outer)
	}
	return ranges2range(ranges)
}

func enumerateEqs(eqs []Range, level int) ([][]types.DataValue, bool) {
	if level == len(eqs) {
		return [][]types.DataValue{nil}, true
	}
	var points []types.DataValue
	switch r := eqs[level].(type) {
	case Eq:
		points = []types.DataValue{r.Value}
	case SortedRanges:
		for _, sub := range r.Ranges {
			eq, ok := sub.(Eq)
			if !ok {
				return nil, false
			}
			points = append(points, eq.Value)
		}
	default:
		return nil, false
	}
	tails, ok := enumerateEqs(eqs, level+1)
	if !ok {
		return nil, false
	}
	out := make([][]types.DataValue, 0, len(points)*len(tails))
	for _, point := range points {
		for _, tail := range tails {
			combo := make([]types.DataValue, 0, 1+len(tail))
			combo = append(combo, point)
			combo = append(combo, tail...)
			out = append(out, combo)
		}
	}
	return out, true
}

func collectTupleRange(out *[]Range, tuple []types.DataValue, r Range) {
	liftValue := func(isUpper bool, v types.DataValue) types.DataValue {
		values := make([]types.DataValue, 0, len(tuple)+1)
		values = append(values, tuple...)
		values = append(values, v)
		return types.TupleValue{Values: values, IsUpper: isUpper}
	}
	liftBound := func(isUpper bool, b Bound) Bound {
		switch b.Kind {
		case BoundIncluded:
			return Included(liftValue(isUpper, b.Value))
		case BoundExcluded:
			return Excluded(liftValue(isUpper, b.Value))
		default:
			if len(tuple) == 0 {
				return Unbounded()
			}
			return Excluded(types.TupleValue{Values: slices.Clone(tuple), IsUpper: isUpper})
		}
	}
	switch v := r.(type) {
	case Scope:
		*out = append(*out, Scope{Min: liftBound(false, v.Min), Max: liftBound(true, v.Max)})
	case Eq:
		*out = append(*out, Eq{Value: liftValue(false, v.Value)})
	case Dummy:
		*out = append(*out, Dummy{})
	case SortedRanges:
		for _, sub := range v.Ranges {
			collectTupleRange(out, tuple, sub)
		}
	}
}
