// Package geometry converts between orb geometries and the textual and binary
// geometry encodings exchanged with column-store backends.
//
// # Literals
//
// Geometries sent to the backend are rendered as GeoJSON wrapped in the
// backend's geography constructor with make-valid semantics:
//
//	lit, err := geometry.EncodeLiteral(orb.Point{-76.2859, 36.8508})
//	// ST_GEOGFROMGEOJSON('{"type":"Point","coordinates":[-76.2859,36.8508]}', make_valid => true)
//
// # Decoding
//
// Geometries returned by the backend arrive as WKT (streaming reads), GeoJSON
// (generated statements) or WKB (Arrow Flight). DecodeColumn parses any of the
// three and tags the result with SRID 4326.
//
// # Envelopes
//
// NormalizeBoundingBox clips an envelope to geographic bounds and folds
// longitudes expressed in [0, 360) back into [-180, 180]. SimplifyTolerance
// derives a ground-distance tolerance in meters from the envelope width and a
// target output resolution.
package geometry
