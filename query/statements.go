package query

import (
	"fmt"

	"github.com/hugr-lab/geoquery/catalog"
	"github.com/hugr-lab/geoquery/dialect"
	"github.com/hugr-lab/geoquery/geometry"
)

// ExtentStatement renders the aggregate bounds query over rows matching a
// restriction. It returns xmin, ymin, xmax, ymax in one row.
func ExtentStatement(target string, schema *catalog.Schema, restriction string, d dialect.Dialect) (string, error) {
	if schema.Geometry() == "" {
		return "", fmt.Errorf("%w: %s has no geometry field", ErrInvalidRequest, target)
	}
	if restriction == "" {
		restriction = "TRUE"
	}
	return d.Extent(target, schema.Geometry(), restriction), nil
}

// CountStatement renders a row count over rows matching a restriction.
func CountStatement(target, restriction string, d dialect.Dialect) string {
	if restriction == "" {
		restriction = "TRUE"
	}
	return fmt.Sprintf("SELECT COUNT(*) AS n FROM %s WHERE %s", d.Table(target), restriction)
}

// PregenerateStatements renders DDL creating a simplified copy of the target
// for each ladder tolerance.
func PregenerateStatements(target string, schema *catalog.Schema, d dialect.Dialect) ([]string, error) {
	if schema.Geometry() == "" {
		return nil, fmt.Errorf("%w: %s has no geometry field", ErrInvalidRequest, target)
	}
	stmts := make([]string, 0, len(geometry.LadderTolerances))
	for _, tol := range geometry.LadderTolerances {
		view := catalog.PregeneratedViewName(target, tol)
		stmts = append(stmts, d.CreateSimplifiedView(view, target, schema.Geometry(), tol))
	}
	return stmts, nil
}
