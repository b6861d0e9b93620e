// Package output renders statement results for the CLI in either a
// human-readable table or JSON.
package output

import (
	"fmt"
	"strings"

	"birchdb/internal/catalog"
	"birchdb/internal/types"
)

// Format selects an output format.
type Format string

const (
	FormatHuman Format = "human"
	FormatJSON  Format = "json"
)

// Formatter renders a result set.
type Formatter interface {
	FormatRows(schema catalog.Schema, tuples []*types.Tuple) (string, error)
}

// NewFormatter resolves a format name; empty means human.
func NewFormatter(name string) (Formatter, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case "", FormatHuman:
		return humanFormatter{}, nil
	case FormatJSON:
		return jsonFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", name)
	}
}
