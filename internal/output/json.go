package output

import (
	"encoding/json"
	"fmt"

	"birchdb/internal/catalog"
	"birchdb/internal/types"
)

type jsonFormatter struct{}

// FormatRows renders rows as an array of name→string objects; NULL values
// are written as JSON null.
func (jsonFormatter) FormatRows(schema catalog.Schema, tuples []*types.Tuple) (string, error) {
	out := make([]map[string]any, 0, len(tuples))
	for _, tuple := range tuples {
		row := make(map[string]any, len(schema))
		for i, col := range schema {
			if i >= len(tuple.Values) {
				continue
			}
			if tuple.Values[i].IsNull() {
				row[col.FullName()] = nil
			} else {
				row[col.FullName()] = tuple.Values[i].String()
			}
		}
		out = append(out, row)
	}
	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format rows: %w", err)
	}
	return string(raw) + "\n", nil
}
