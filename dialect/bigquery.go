package dialect

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/hugr-lab/geoquery/geometry"
)

// BigQuery renders GoogleSQL.
var BigQuery Dialect = bigQuery{}

type bigQuery struct{}

var bigQueryRelations = map[Relation]string{
	Intersects: "ST_INTERSECTS",
	Within:     "ST_WITHIN",
	Contains:   "ST_CONTAINS",
	Disjoint:   "ST_DISJOINT",
	Touches:    "ST_TOUCHES",
	Equals:     "ST_EQUALS",
}

// Name returns "bigquery".
func (bigQuery) Name() string { return "bigquery" }

// Relate renders a binary spatial predicate such as ST_INTERSECTS(a, b).
func (bigQuery) Relate(rel Relation, a, b string) string {
	return fmt.Sprintf("%s(%s, %s)", bigQueryRelations[rel], a, b)
}

// DWithin renders ST_DWITHIN with a distance in meters.
func (bigQuery) DWithin(a, b string, meters float64) string {
	return fmt.Sprintf("ST_DWITHIN(%s, %s, %f)", a, b, meters)
}

// IntersectsBox renders ST_INTERSECTSBOX over the envelope's corners.
func (bigQuery) IntersectsBox(expr string, env geometry.Envelope) string {
	return fmt.Sprintf("ST_INTERSECTSBOX(%s, %f, %f, %f, %f)", expr, env.MinX, env.MinY, env.MaxX, env.MaxY)
}

// Simplify renders ST_SIMPLIFY with a tolerance in meters.
func (bigQuery) Simplify(expr string, meters float64) string {
	return fmt.Sprintf("ST_SIMPLIFY(%s, %s)", expr, formatTolerance(meters))
}

// GeometryLiteral renders g with ST_GEOGFROMGEOJSON and make_valid.
func (bigQuery) GeometryLiteral(g orb.Geometry) (string, error) {
	return geometry.EncodeLiteral(g)
}

// StringLiteral quotes s. With escape set, quotes and backslashes are
// backslash-escaped; otherwise s is inlined as is.
func (bigQuery) StringLiteral(s string, escape bool) string {
	if escape {
		return geometry.QuoteBigQuery(s)
	}
	return "'" + s + "'"
}

// Table wraps the whole table path in one pair of backticks.
func (bigQuery) Table(target string) string {
	return "`" + target + "`"
}

// SelectAllExcept renders SELECT * except (column) without the SELECT.
func (bigQuery) SelectAllExcept(column string) string {
	return fmt.Sprintf("* except (%s)", column)
}

// GeometryOutput wraps expr in ST_ASGEOJSON.
func (bigQuery) GeometryOutput(expr string) string {
	return fmt.Sprintf("ST_ASGEOJSON(%s)", expr)
}

// Extent selects the ST_EXTENT struct of column as four columns.
func (b bigQuery) Extent(table, column, where string) string {
	return fmt.Sprintf(
		"SELECT extent.xmin, extent.ymin, extent.xmax, extent.ymax FROM (SELECT ST_EXTENT(%s) AS extent FROM %s WHERE %s)",
		column, b.Table(table), where)
}

// CreateSimplifiedView renders a materialized view holding column
// simplified at tolerance meters.
func (b bigQuery) CreateSimplifiedView(view, table, column string, tolerance int) string {
	return fmt.Sprintf(
		"CREATE MATERIALIZED VIEW IF NOT EXISTS %s AS SELECT %s, %s AS %s FROM %s",
		b.Table(view), b.SelectAllExcept(column), b.Simplify(column, float64(tolerance)), column, b.Table(table))
}
