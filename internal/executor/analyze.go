package executor

import (
	"fmt"
	"strconv"

	"birchdb/internal/planner"
	"birchdb/internal/storage"
	"birchdb/internal/types"
)

// AnalyzeTable walks the table once, counts its rows, and refreshes the
// per-index statistics entries. Histogram files are out of scope; the entry
// records where a collector would put them, keyed the same way.
type AnalyzeTable struct {
	op    *planner.AnalyzeTableOperator
	input *planner.LogicalPlan
}

func NewAnalyzeTable(op *planner.AnalyzeTableOperator, input *planner.LogicalPlan) *AnalyzeTable {
	return &AnalyzeTable{op: op, input: input}
}

func (e *AnalyzeTable) ExecuteMut(caches *storage.Caches, tx *storage.Transaction) Source {
	return newLazySource(func() (Source, error) {
		table := e.op.Table

		input := Build(e.input, caches, tx)
		count := 0
		for {
			tuple, err := input.Next()
			if err != nil {
				_ = input.Close()
				return nil, err
			}
			if tuple == nil {
				break
			}
			count++
		}
		if err := input.Close(); err != nil {
			return nil, err
		}

		for _, meta := range table.Indexes {
			path := fmt.Sprintf("stats/%s/%d", table.Name, meta.ID)
			if err := tx.SaveStatisticsPath(caches, table.Name, meta.ID, path); err != nil {
				return nil, err
			}
		}
		return newSliceSource([]*types.Tuple{summaryTuple(strconv.Itoa(count))}), nil
	})
}
