// Package dialect renders the backend-specific pieces of generated queries:
// spatial function names, geometry literals, box intersection, geometry
// simplification, identifier quoting and the geometry output function.
//
// Two dialects are provided. BigQuery targets GoogleSQL GEOGRAPHY functions
// and is the default. DuckDB targets the DuckDB spatial extension and is used
// by the embedded engine and the Arrow Flight read-session server.
package dialect

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"github.com/hugr-lab/geoquery/geometry"
)

// Relation is a binary spatial relationship.
type Relation int

const (
	Intersects Relation = iota
	Within
	Contains
	Disjoint
	Touches
	Equals
)

// Dialect renders backend-native SQL fragments.
type Dialect interface {
	Name() string

	// Relate renders a binary spatial predicate over two rendered operands.
	Relate(rel Relation, a, b string) string
	// DWithin renders a distance predicate with a distance in meters.
	DWithin(a, b string, meters float64) string
	// IntersectsBox renders a box intersection over a normalized envelope.
	IntersectsBox(expr string, env geometry.Envelope) string
	// Simplify wraps a geometry expression with a simplification of the given
	// tolerance in meters.
	Simplify(expr string, meters float64) string
	// GeometryLiteral renders a geometry constant with make-valid semantics.
	GeometryLiteral(g orb.Geometry) (string, error)
	// StringLiteral single-quotes s. Embedded quotes are escaped only when
	// escape is set.
	StringLiteral(s string, escape bool) string

	// Table quotes a target identifier.
	Table(target string) string
	// SelectAllExcept selects every column but one.
	SelectAllExcept(column string) string
	// GeometryOutput converts a geometry expression to GeoJSON text.
	GeometryOutput(expr string) string
	// Extent renders a statement returning xmin, ymin, xmax, ymax of the
	// geometry column over rows matching where.
	Extent(table, column, where string) string
	// CreateSimplifiedView renders DDL for a materialized simplified copy of
	// a table.
	CreateSimplifiedView(view, table, column string, tolerance int) string
}

// ByName returns the dialect registered under name. Empty means BigQuery.
func ByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "bigquery":
		return BigQuery, nil
	case "duckdb":
		return DuckDB, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
}

func formatTolerance(v float64) string {
	return trimFloat(fmt.Sprintf("%f", v))
}

// trimFloat drops trailing zeros from a %f rendering: 100.000000 -> 100.
func trimFloat(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
