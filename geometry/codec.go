package geometry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// SRID is the spatial reference identifier every decoded geometry carries
// (geographic WGS84).
const SRID = 4326

// Format identifies the encoding of a geometry value returned by a backend.
type Format int

const (
	FormatWKT Format = iota
	FormatGeoJSON
	FormatWKB
)

func (f Format) String() string {
	switch f {
	case FormatWKT:
		return "wkt"
	case FormatGeoJSON:
		return "geojson"
	case FormatWKB:
		return "wkb"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Tagged is a geometry with its spatial reference identifier.
type Tagged struct {
	Geometry orb.Geometry
	SRID     int
}

// ErrEmptyGeometry is returned when a geometry value has no content.
var ErrEmptyGeometry = errors.New("empty geometry")

// ParseError reports a geometry value that could not be encoded or decoded.
// Ordinal is the zero-based row ordinal when the value came from a scan and
// -1 otherwise.
type ParseError struct {
	Ordinal int64
	Field   string
	Format  Format
	Raw     any
	Err     error
}

func (e *ParseError) Error() string {
	var sb strings.Builder
	sb.WriteString("geometry parse error")
	if e.Field != "" {
		fmt.Fprintf(&sb, " in field %q", e.Field)
	}
	if e.Ordinal >= 0 {
		fmt.Fprintf(&sb, " at row %d", e.Ordinal)
	}
	fmt.Fprintf(&sb, " (%s, raw=%s)", e.Format, truncateRaw(e.Raw))
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

func truncateRaw(raw any) string {
	var s string
	switch v := raw.(type) {
	case []byte:
		s = fmt.Sprintf("%x", v)
	case string:
		s = fmt.Sprintf("%q", v)
	default:
		s = fmt.Sprintf("%v", v)
	}
	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}

// GeoJSON renders a geometry as a compact GeoJSON geometry object.
func GeoJSON(g orb.Geometry) (string, error) {
	if err := Validate(g); err != nil {
		return "", &ParseError{Ordinal: -1, Format: FormatGeoJSON, Raw: g, Err: err}
	}
	switch v := g.(type) {
	case orb.Bound:
		g = v.ToPolygon()
	case orb.Ring:
		g = orb.Polygon{v}
	}
	data, err := geojson.NewGeometry(g).MarshalJSON()
	if err != nil {
		return "", &ParseError{Ordinal: -1, Format: FormatGeoJSON, Raw: g, Err: err}
	}
	return string(data), nil
}

// EncodeLiteral renders g as a BigQuery geography constructor that repairs
// invalid input instead of failing the query.
func EncodeLiteral(g orb.Geometry) (string, error) {
	js, err := GeoJSON(g)
	if err != nil {
		return "", err
	}
	return "ST_GEOGFROMGEOJSON(" + QuoteBigQuery(js) + ", make_valid => true)", nil
}

var bigQueryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// QuoteBigQuery quotes s as a BigQuery string literal.
func QuoteBigQuery(s string) string {
	return "'" + bigQueryEscaper.Replace(s) + "'"
}

// DecodeColumn parses a geometry value in the given format. raw may be a
// string, a byte slice or an already decoded orb.Geometry.
func DecodeColumn(raw any, format Format) (Tagged, error) {
	g, err := decode(raw, format)
	if err != nil {
		return Tagged{}, &ParseError{Ordinal: -1, Format: format, Raw: raw, Err: err}
	}
	return Tagged{Geometry: g, SRID: SRID}, nil
}

func decode(raw any, format Format) (orb.Geometry, error) {
	switch v := raw.(type) {
	case orb.Geometry:
		if v == nil {
			return nil, ErrEmptyGeometry
		}
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, ErrEmptyGeometry
		}
		return decodeBytes([]byte(v), format)
	case []byte:
		if len(v) == 0 {
			return nil, ErrEmptyGeometry
		}
		return decodeBytes(v, format)
	case nil:
		return nil, ErrEmptyGeometry
	default:
		return nil, fmt.Errorf("unsupported geometry value type %T", raw)
	}
}

func decodeBytes(data []byte, format Format) (orb.Geometry, error) {
	switch format {
	case FormatWKT:
		return wkt.Unmarshal(string(data))
	case FormatGeoJSON:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, err
		}
		if g.Coordinates == nil && len(g.Geometries) == 0 {
			return nil, ErrEmptyGeometry
		}
		return g.Geometry(), nil
	case FormatWKB:
		return wkb.Unmarshal(data)
	default:
		return nil, fmt.Errorf("unknown geometry format %s", format)
	}
}

// Validate checks that a geometry is structurally usable as a literal.
func Validate(geom orb.Geometry) error {
	if geom == nil {
		return ErrEmptyGeometry
	}

	switch g := geom.(type) {
	case orb.Point:
		return nil
	case orb.MultiPoint:
		if len(g) == 0 {
			return fmt.Errorf("multipoint: %w", ErrEmptyGeometry)
		}
		return nil
	case orb.LineString:
		if len(g) < 2 {
			return fmt.Errorf("linestring needs at least 2 points, has %d", len(g))
		}
		return nil
	case orb.MultiLineString:
		if len(g) == 0 {
			return fmt.Errorf("multilinestring: %w", ErrEmptyGeometry)
		}
		for i, ls := range g {
			if len(ls) < 2 {
				return fmt.Errorf("multilinestring[%d] needs at least 2 points, has %d", i, len(ls))
			}
		}
		return nil
	case orb.Polygon:
		return validatePolygon(g)
	case orb.MultiPolygon:
		if len(g) == 0 {
			return fmt.Errorf("multipolygon: %w", ErrEmptyGeometry)
		}
		for i, p := range g {
			if err := validatePolygon(p); err != nil {
				return fmt.Errorf("multipolygon[%d]: %w", i, err)
			}
		}
		return nil
	case orb.Collection:
		if len(g) == 0 {
			return fmt.Errorf("collection: %w", ErrEmptyGeometry)
		}
		for i, member := range g {
			if err := Validate(member); err != nil {
				return fmt.Errorf("collection[%d]: %w", i, err)
			}
		}
		return nil
	case orb.Bound:
		return validatePolygon(g.ToPolygon())
	case orb.Ring:
		return validatePolygon(orb.Polygon{g})
	default:
		return fmt.Errorf("unsupported geometry type %T", geom)
	}
}

// Rings are not required to be simple; the backend repairs them.
func validatePolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return fmt.Errorf("polygon: %w", ErrEmptyGeometry)
	}
	for i, ring := range p {
		if len(ring) < 4 {
			return fmt.Errorf("polygon ring %d needs at least 4 points, has %d", i, len(ring))
		}
		if !ring[0].Equal(ring[len(ring)-1]) {
			return fmt.Errorf("polygon ring %d is not closed", i)
		}
	}
	return nil
}

// TypeName returns the OGC type name of a geometry.
func TypeName(geom orb.Geometry) string {
	switch geom.(type) {
	case orb.Point:
		return "Point"
	case orb.MultiPoint:
		return "MultiPoint"
	case orb.LineString:
		return "LineString"
	case orb.MultiLineString:
		return "MultiLineString"
	case orb.Polygon, orb.Bound, orb.Ring:
		return "Polygon"
	case orb.MultiPolygon:
		return "MultiPolygon"
	case orb.Collection:
		return "GeometryCollection"
	default:
		return "Geometry"
	}
}
