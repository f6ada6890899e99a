package dialect

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"github.com/hugr-lab/geoquery/geometry"
)

// DuckDB renders SQL for the DuckDB spatial extension. Geometries are planar
// in degrees, so distances and tolerances in meters are converted with
// MetersPerDegree.
var DuckDB Dialect = duckDB{}

// MetersPerDegree approximates one degree of longitude at the equator.
const MetersPerDegree = geometry.EarthCircumference / 360

type duckDB struct{}

var duckDBRelations = map[Relation]string{
	Intersects: "ST_Intersects",
	Within:     "ST_Within",
	Contains:   "ST_Contains",
	Disjoint:   "ST_Disjoint",
	Touches:    "ST_Touches",
	Equals:     "ST_Equals",
}

// Name returns "duckdb".
func (duckDB) Name() string { return "duckdb" }

// Relate renders a spatial predicate with the spatial extension's ST_
// function names.
func (duckDB) Relate(rel Relation, a, b string) string {
	return fmt.Sprintf("%s(%s, %s)", duckDBRelations[rel], a, b)
}

// DWithin renders ST_DWithin with meters converted to degrees at the
// equator.
func (duckDB) DWithin(a, b string, meters float64) string {
	return fmt.Sprintf("ST_DWithin(%s, %s, %s)", a, b, trimFloat(fmt.Sprintf("%.9f", meters/MetersPerDegree)))
}

// IntersectsBox intersects expr with an ST_MakeEnvelope of env.
func (duckDB) IntersectsBox(expr string, env geometry.Envelope) string {
	return fmt.Sprintf("ST_Intersects(%s, ST_MakeEnvelope(%f, %f, %f, %f))", expr, env.MinX, env.MinY, env.MaxX, env.MaxY)
}

// Simplify converts meters to degrees at the equator for ST_Simplify.
func (duckDB) Simplify(expr string, meters float64) string {
	return fmt.Sprintf("ST_Simplify(%s, %s)", expr, trimFloat(fmt.Sprintf("%.9f", meters/MetersPerDegree)))
}

// GeometryLiteral renders g with ST_GeomFromGeoJSON wrapped in ST_MakeValid.
func (d duckDB) GeometryLiteral(g orb.Geometry) (string, error) {
	js, err := geometry.GeoJSON(g)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ST_MakeValid(ST_GeomFromGeoJSON(%s))", d.StringLiteral(js, true)), nil
}

// StringLiteral quotes s, doubling single quotes when escape is set.
func (duckDB) StringLiteral(s string, escape bool) string {
	if escape {
		s = strings.ReplaceAll(s, "'", "''")
	}
	return "'" + s + "'"
}

// Table double-quotes each part of a dotted table path.
func (duckDB) Table(target string) string {
	parts := strings.Split(target, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

func (duckDB) SelectAllExcept(column string) string {
	return fmt.Sprintf("* EXCLUDE (%s)", column)
}

// GeometryOutput renders expr as GeoJSON text.
func (duckDB) GeometryOutput(expr string) string {
	return fmt.Sprintf("CAST(ST_AsGeoJSON(%s) AS VARCHAR)", expr)
}

// Extent aggregates column with ST_Extent_Agg and splits the box into
// xmin, ymin, xmax, ymax.
func (d duckDB) Extent(table, column, where string) string {
	return fmt.Sprintf(
		"SELECT ST_XMin(extent), ST_YMin(extent), ST_XMax(extent), ST_YMax(extent) FROM (SELECT ST_Extent_Agg(%s) AS extent FROM %s WHERE %s)",
		column, d.Table(table), where)
}

// CreateSimplifiedView renders a table holding column simplified at
// tolerance meters. DuckDB has no materialized views.
func (d duckDB) CreateSimplifiedView(view, table, column string, tolerance int) string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s AS SELECT %s, %s AS %s FROM %s",
		d.Table(view), d.SelectAllExcept(column), d.Simplify(column, float64(tolerance)), column, d.Table(table))
}
