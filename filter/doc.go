// Package filter compiles geospatial filter trees into backend row
// restrictions.
//
// # Filter trees
//
// A filter is a tree of *Node values. Each node has a Kind from a closed
// enumeration: boolean combinators (and, or, not), comparisons (=, !=, >, >=,
// <, <=, like, isNull, between) and spatial predicates (intersects, within,
// contains, disjoint, touches, equals, dwithin, bbox). Operands are property
// references or literals:
//
//	f := filter.And(
//		filter.BBox("geom", geometry.NewEnvelope(-78.6785, -74.4158, 36.0049, 38.4493)),
//		filter.Compare(filter.KindGt, filter.Property("population"), filter.Literal(100)),
//	)
//
// Trees can also be read from CQL2-JSON with Parse:
//
//	f, err := filter.Parse([]byte(`{"op":"=","args":[{"property":"name"},"abc"]}`))
//
// # Compiling
//
// Compile walks the tree once and renders each node with a dialect.Dialect:
//
//	res, err := filter.Compile(f, schema, filter.Options{Simplify: true})
//	// res.Where:
//	// ST_INTERSECTSBOX(ST_SIMPLIFY(geom, 100), -78.678500, 36.004900, -74.415800, 38.449300) AND population > 100
//
// Once a bbox predicate on the default geometry field has been compiled with
// simplification enabled, the geometry expression switches to a simplified
// form for every later spatial predicate and for the projection
// (Result.GeometryExpr).
//
// # Errors
//
// Unknown properties and missing operands fail with *UnresolvedOperandError.
// Temporal operators, overlaps, crosses, beyond and nil checks fail with
// *UnsupportedPredicateError. Both are returned before any backend call.
//
// String literals and LIKE patterns are inlined verbatim unless
// Options.EscapeStrings is set.
package filter
