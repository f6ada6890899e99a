// Package query assembles complete backend requests from a filter tree, a
// schema and scan settings.
//
// In expression mode the result is a SQL statement with a projection that
// can rewrite the geometry column. In streaming mode the result is a
// ReadOptions value (row restriction plus selected fields) for a read-session
// API, and geometry is returned as stored.
package query

import (
	"fmt"
	"strings"
)

// Mode selects how a scan reaches the backend.
type Mode int

const (
	// ModeExpression sends a generated statement and reads tabular rows.
	ModeExpression Mode = iota
	// ModeStreaming opens a read session and reads binary row batches.
	ModeStreaming
)

func (m Mode) String() string {
	if m == ModeStreaming {
		return "streaming"
	}
	return "expression"
}

// ParseMode accepts expression/streaming and the backend API names
// STANDARD_QUERY_API/STORAGE_API.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "expression", "standard_query_api", "query":
		return ModeExpression, nil
	case "streaming", "storage_api", "storage":
		return ModeStreaming, nil
	default:
		return ModeExpression, fmt.Errorf("unknown access mode %q", s)
	}
}

// ReadOptions is the structured request of the streaming mode.
type ReadOptions struct {
	Table          string   `msgpack:"table" json:"table"`
	RowRestriction string   `msgpack:"row_restriction" json:"row_restriction"`
	SelectedFields []string `msgpack:"selected_fields" json:"selected_fields"`
}

// Plan is a compiled request for one scan.
type Plan struct {
	Mode   Mode
	Target string

	// Projection is the select list of the expression mode.
	Projection string
	// Fields are the selected field names of the streaming mode.
	Fields []string
	// Restriction is the row restriction, TRUE when unfiltered.
	Restriction string
	// GeometryExpr is the expression the geometry column is read through.
	GeometryExpr string
	// Tolerance is the simplification tolerance in meters, 0 for none.
	Tolerance float64
	// Limit is the row ceiling, 0 for none.
	Limit int

	table string
}

// Statement renders the expression-mode SQL statement.
func (p *Plan) Statement() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s WHERE %s", p.Projection, p.table, p.Restriction)
	if p.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", p.Limit)
	}
	return sb.String()
}

// ReadOptions renders the streaming-mode request.
func (p *Plan) ReadOptions() ReadOptions {
	fields := make([]string, len(p.Fields))
	copy(fields, p.Fields)
	return ReadOptions{
		Table:          p.Target,
		RowRestriction: p.Restriction,
		SelectedFields: fields,
	}
}
