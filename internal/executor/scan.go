package executor

import (
	"fmt"

	"birchdb/internal/catalog"
	"birchdb/internal/codec"
	"birchdb/internal/dberr"
	"birchdb/internal/expression"
	"birchdb/internal/planner"
	"birchdb/internal/storage"
	"birchdb/internal/types"
)

// TableScan reads a table's rows, sequentially or through an index whose
// seek range pushdown has filled in.
type TableScan struct {
	op *planner.TableScanOperator
}

func NewTableScan(op *planner.TableScanOperator) *TableScan {
	return &TableScan{op: op}
}

func (s *TableScan) Execute(caches *storage.Caches, tx *storage.Transaction) Source {
	op := s.op
	for _, info := range op.IndexInfos {
		if info.Range != nil {
			return newLazySource(func() (Source, error) {
				return newIndexScanSource(op, info, tx)
			})
		}
	}
	return newLazySource(func() (Source, error) {
		return newSeqScanSource(op, tx)
	})
}

// scanDecoder holds what both scan flavors need to turn a stored row into an
// output tuple.
type scanDecoder struct {
	tableTypes  []types.LogicalType
	pkIndices   []int
	projections []int
	compact     bool
	withPk      bool
	limit       planner.LimitBounds
	emitted     int
	skipped     int
}

func newScanDecoder(op *planner.TableScanOperator) *scanDecoder {
	table := op.Table
	projections := make([]int, 0, len(op.Columns))
	for _, col := range op.Columns {
		if id, ok := col.ID(); ok {
			if pos, found := table.FindColumnByID(id); found != nil && pos >= 0 {
				projections = append(projections, pos)
			}
		}
	}
	return &scanDecoder{
		tableTypes:  table.Columns.Types(),
		pkIndices:   table.PrimaryKeyIndices(),
		projections: projections,
		compact:     len(projections) != len(table.Columns),
		withPk:      op.WithPk,
		limit:       op.Limit,
	}
}

func (d *scanDecoder) decode(raw []byte) (*types.Tuple, error) {
	tuple, err := types.DeserializeTuple(d.tableTypes, d.pkIndices, d.projections, raw, d.withPk)
	if err != nil {
		return nil, err
	}
	if d.compact {
		values := make([]types.DataValue, len(d.projections))
		for i, pos := range d.projections {
			values[i] = tuple.Values[pos]
		}
		tuple.Values = values
	}
	return tuple, nil
}

// admit applies the pushed-down offset/limit. It returns whether to emit the
// row and whether the scan is done.
func (d *scanDecoder) admit() (emit, done bool) {
	if d.limit.Offset != nil && d.skipped < *d.limit.Offset {
		d.skipped++
		return false, false
	}
	if d.limit.Count != nil && d.emitted >= *d.limit.Count {
		return false, true
	}
	d.emitted++
	return true, d.limit.Count != nil && d.emitted >= *d.limit.Count
}

// seqScanSource walks the table's whole tuple range.
type seqScanSource struct {
	decoder *scanDecoder
	iter    storage.Iterator
	started bool
	done    bool
}

func newSeqScanSource(op *planner.TableScanOperator, tx *storage.Transaction) (Source, error) {
	min, max := tx.Codec().TupleBound(op.TableName)
	iter, err := tx.NewIter(min, max)
	if err != nil {
		return nil, err
	}
	return &seqScanSource{decoder: newScanDecoder(op), iter: iter}, nil
}

func (s *seqScanSource) Next() (*types.Tuple, error) {
	if s.done {
		return nil, nil
	}
	for {
		var ok bool
		if !s.started {
			s.started = true
			ok = s.iter.First()
		} else {
			ok = s.iter.Next()
		}
		if !ok {
			s.done = true
			err := s.iter.Error()
			_ = s.iter.Close()
			return nil, err
		}
		emit, done := s.decoder.admit()
		if done {
			s.done = true
		}
		if !emit {
			if done {
				_ = s.iter.Close()
				return nil, nil
			}
			continue
		}
		tuple, err := s.decoder.decode(s.iter.Value())
		if err != nil {
			s.done = true
			_ = s.iter.Close()
			return nil, err
		}
		if done {
			_ = s.iter.Close()
		}
		return tuple, nil
	}
}

func (s *seqScanSource) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.iter.Close()
}

// indexScanSource drives one index's ranges: primary-key ranges seek the
// tuple space directly, secondary ranges resolve entry values to primary
// keys and fetch each row.
type indexScanSource struct {
	op      *planner.TableScanOperator
	decoder *scanDecoder
	tx      *storage.Transaction
	meta    *catalog.IndexMeta
	ranges  []expression.Range

	rangeIdx int
	iter     storage.Iterator
	iterLive bool
	done     bool
}

func newIndexScanSource(op *planner.TableScanOperator, info *planner.IndexInfo, tx *storage.Transaction) (Source, error) {
	return &indexScanSource{
		op:      op,
		decoder: newScanDecoder(op),
		tx:      tx,
		meta:    info.Meta,
		ranges:  flattenRanges(info.Range),
	}, nil
}

func flattenRanges(r expression.Range) []expression.Range {
	switch v := r.(type) {
	case expression.Dummy:
		return nil
	case expression.SortedRanges:
		var out []expression.Range
		for _, sub := range v.Ranges {
			out = append(out, flattenRanges(sub)...)
		}
		return out
	default:
		return []expression.Range{r}
	}
}

func (s *indexScanSource) Next() (*types.Tuple, error) {
	if s.done {
		return nil, nil
	}
	for {
		if !s.iterLive {
			if s.rangeIdx >= len(s.ranges) {
				s.done = true
				return nil, nil
			}
			r := s.ranges[s.rangeIdx]
			s.rangeIdx++

			// A full-width equality on a unique or primary index resolves
			// to at most one row without an iterator.
			if eq, ok := r.(expression.Eq); ok && s.meta.Kind != catalog.IndexNormal && s.meta.Kind != catalog.IndexComposite {
				tuple, err := s.pointLookup(eq.Value)
				if err != nil {
					s.done = true
					return nil, err
				}
				if tuple == nil {
					continue
				}
				emit, done := s.decoder.admit()
				if done {
					s.done = true
				}
				if emit {
					return tuple, nil
				}
				continue
			}

			iter, err := s.openRange(r)
			if err != nil {
				s.done = true
				return nil, err
			}
			if iter == nil {
				continue
			}
			s.iter = iter
			s.iterLive = false
			if !s.iter.First() {
				if err := s.closeIter(); err != nil {
					s.done = true
					return nil, err
				}
				continue
			}
			s.iterLive = true
		} else if !s.iter.Next() {
			if err := s.closeIter(); err != nil {
				s.done = true
				return nil, err
			}
			continue
		}

		tuple, err := s.resolveCurrent()
		if err != nil {
			s.done = true
			return nil, err
		}
		emit, done := s.decoder.admit()
		if done {
			s.done = true
			_ = s.iter.Close()
			s.iter = nil
			s.iterLive = false
		}
		if emit {
			return tuple, nil
		}
		if done {
			return nil, nil
		}
	}
}

func (s *indexScanSource) Close() error {
	s.done = true
	if s.iter != nil {
		err := s.iter.Close()
		s.iter = nil
		return err
	}
	return nil
}

func (s *indexScanSource) closeIter() error {
	s.iterLive = false
	err := s.iter.Error()
	if closeErr := s.iter.Close(); err == nil {
		err = closeErr
	}
	s.iter = nil
	return err
}

// pointLookup fetches the single row for an exact key of a unique or
// primary index.
func (s *indexScanSource) pointLookup(value types.DataValue) (*types.Tuple, error) {
	if s.meta.Kind == catalog.IndexPrimaryKey {
		return s.fetchByPk(value)
	}
	index := catalog.NewIndex(s.meta.ID, value, s.meta.Kind)
	key, err := s.tx.Codec().EncodeIndexKey(s.op.TableName, index, nil)
	if err != nil {
		return nil, err
	}
	return s.fetchByIndexKey(key)
}

func (s *indexScanSource) fetchByIndexKey(key []byte) (*types.Tuple, error) {
	iter, err := s.tx.NewIter(key, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = iter.Close() }()
	if !iter.First() {
		return nil, iter.Error()
	}
	pk, _, err := codec.DecodePkValue(iter.Value())
	if err != nil {
		return nil, err
	}
	return s.fetchByPk(pk)
}

func (s *indexScanSource) fetchByPk(pk types.DataValue) (*types.Tuple, error) {
	key, err := s.tx.Codec().EncodeTupleKey(s.op.TableName, pk)
	if err != nil {
		return nil, err
	}
	iter, err := s.tx.NewIter(key, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = iter.Close() }()
	if !iter.First() {
		return nil, iter.Error()
	}
	return s.decoder.decode(iter.Value())
}

// openRange turns one symbolic range into a byte-bounded iterator.
func (s *indexScanSource) openRange(r expression.Range) (storage.Iterator, error) {
	var min, max expression.Bound
	switch v := r.(type) {
	case expression.Scope:
		min, max = v.Min, v.Max
	case expression.Eq:
		min, max = expression.Included(v.Value), expression.Included(v.Value)
	default:
		return nil, nil
	}

	if s.meta.Kind == catalog.IndexPrimaryKey {
		baseMin, baseMax := s.tx.Codec().TupleBound(s.op.TableName)
		lower, upper, err := s.rangeKeys(baseMin, baseMax, min, max, false)
		if err != nil {
			return nil, err
		}
		return s.tx.NewIter(lower, upper)
	}

	baseMin, baseMax := s.tx.Codec().IndexBound(s.op.TableName, s.meta.ID)
	multiEntry := s.meta.Kind == catalog.IndexNormal || s.meta.Kind == catalog.IndexComposite
	lower, upper, err := s.rangeKeys(baseMin, baseMax, min, max, multiEntry)
	if err != nil {
		return nil, err
	}
	return s.tx.NewIter(lower, upper)
}

// rangeKeys maps value bounds onto byte bounds. The produced range may
// over-approximate at excluded bounds; the filter retained above the scan
// re-applies the exact predicate. Tuple-valued bounds terminate themselves
// through the is_upper separator; scalar upper bounds on multi-entry
// indexes get a max separator so primary-key suffixes stay inside the
// range.
func (s *indexScanSource) rangeKeys(baseMin, baseMax []byte, min, max expression.Bound, multiEntry bool) (lower, upper []byte, err error) {
	lower = baseMin
	if min.Kind != expression.BoundUnbounded {
		lower = append([]byte(nil), baseMin...)
		if lower, err = types.AppendMemComparable(lower, min.Value); err != nil {
			return nil, nil, err
		}
	}
	upper = baseMax
	if max.Kind != expression.BoundUnbounded {
		upper = append([]byte(nil), baseMin...)
		if upper, err = types.AppendMemComparable(upper, max.Value); err != nil {
			return nil, nil, err
		}
		if _, isTuple := max.Value.(types.TupleValue); !isTuple && multiEntry {
			upper = append(upper, 0xFF)
		}
	}
	return lower, upper, nil
}

// resolveCurrent turns the iterator's current entry into an output tuple.
func (s *indexScanSource) resolveCurrent() (*types.Tuple, error) {
	if s.meta.Kind == catalog.IndexPrimaryKey {
		return s.decoder.decode(s.iter.Value())
	}
	pk, _, err := codec.DecodePkValue(s.iter.Value())
	if err != nil {
		return nil, err
	}
	tuple, err := s.fetchByPk(pk)
	if err != nil {
		return nil, err
	}
	if tuple == nil {
		return nil, fmt.Errorf("%w: index entry without row", dberr.ErrInvalidValue)
	}
	return tuple, nil
}
