package output

import (
	"strings"

	"birchdb/internal/catalog"
	"birchdb/internal/types"
)

type humanFormatter struct{}

// FormatRows renders an aligned text table with a header row.
func (humanFormatter) FormatRows(schema catalog.Schema, tuples []*types.Tuple) (string, error) {
	headers := make([]string, len(schema))
	widths := make([]int, len(schema))
	for i, col := range schema {
		headers[i] = col.FullName()
		widths[i] = len(headers[i])
	}
	cells := make([][]string, len(tuples))
	for r, tuple := range tuples {
		row := make([]string, len(schema))
		for c := range schema {
			if c < len(tuple.Values) {
				row[c] = tuple.Values[c].String()
			}
			if len(row[c]) > widths[c] {
				widths[c] = len(row[c])
			}
		}
		cells[r] = row
	}

	var sb strings.Builder
	writeRow := func(row []string) {
		sb.WriteString("|")
		for c, cell := range row {
			sb.WriteString(" ")
			sb.WriteString(cell)
			sb.WriteString(strings.Repeat(" ", widths[c]-len(cell)))
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}
	writeSeparator := func() {
		sb.WriteString("+")
		for _, width := range widths {
			sb.WriteString(strings.Repeat("-", width+2))
			sb.WriteString("+")
		}
		sb.WriteString("\n")
	}

	writeSeparator()
	writeRow(headers)
	writeSeparator()
	for _, row := range cells {
		writeRow(row)
	}
	writeSeparator()
	return sb.String(), nil
}
