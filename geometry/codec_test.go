package geometry

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/encoding/wkt"
)

func TestEncodeLiteral(t *testing.T) {
	tests := []struct {
		name   string
		geom   orb.Geometry
		expect string
	}{
		{
			name:   "point",
			geom:   orb.Point{-76.2859, 36.8508},
			expect: `ST_GEOGFROMGEOJSON('{"type":"Point","coordinates":[-76.2859,36.8508]}', make_valid => true)`,
		},
		{
			name: "polygon",
			geom: orb.Polygon{{{-76.2, 36.8}, {-76.1, 36.8}, {-76.1, 36.9}, {-76.2, 36.8}}},
			expect: `ST_GEOGFROMGEOJSON('{"type":"Polygon","coordinates":[[[-76.2,36.8],[-76.1,36.8],[-76.1,36.9],[-76.2,36.8]]]}', make_valid => true)`,
		},
		{
			name:   "linestring",
			geom:   orb.LineString{{0, 0}, {1, 1}},
			expect: `ST_GEOGFROMGEOJSON('{"type":"LineString","coordinates":[[0,0],[1,1]]}', make_valid => true)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeLiteral(tt.geom)
			if err != nil {
				t.Fatalf("EncodeLiteral() error = %v", err)
			}
			if got != tt.expect {
				t.Errorf("expected '%s', got '%s'", tt.expect, got)
			}
		})
	}
}

func TestEncodeLiteral_Invalid(t *testing.T) {
	tests := []struct {
		name string
		geom orb.Geometry
	}{
		{"nil", nil},
		{"short linestring", orb.LineString{{0, 0}}},
		{"open ring", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}},
		{"empty multipoint", orb.MultiPoint{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeLiteral(tt.geom)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
		})
	}
}

func TestQuoteBigQuery(t *testing.T) {
	if got := QuoteBigQuery(`it's a \ test`); got != `'it\'s a \\ test'` {
		t.Errorf("QuoteBigQuery() = %s", got)
	}
}

// TestRoundTrip encodes a literal and decodes the same geometry from every
// backend format.
func TestRoundTrip(t *testing.T) {
	geoms := []orb.Geometry{
		orb.Point{-76.2859, 36.8508},
		orb.LineString{{-76.2, 36.8}, {-76.1, 36.9}, {-76.0, 37.1}},
		orb.Polygon{{{-76.2, 36.8}, {-76.1, 36.8}, {-76.1, 36.9}, {-76.2, 36.8}}},
		orb.MultiPoint{{1, 2}, {3, 4}},
	}

	for _, g := range geoms {
		t.Run(TypeName(g), func(t *testing.T) {
			if _, err := EncodeLiteral(g); err != nil {
				t.Fatalf("EncodeLiteral() error = %v", err)
			}

			js, err := GeoJSON(g)
			if err != nil {
				t.Fatalf("GeoJSON() error = %v", err)
			}
			wkbBytes, err := wkb.Marshal(g)
			if err != nil {
				t.Fatalf("wkb.Marshal() error = %v", err)
			}

			inputs := []struct {
				raw    any
				format Format
			}{
				{js, FormatGeoJSON},
				{[]byte(js), FormatGeoJSON},
				{wkt.MarshalString(g), FormatWKT},
				{wkbBytes, FormatWKB},
			}
			for _, in := range inputs {
				got, err := DecodeColumn(in.raw, in.format)
				if err != nil {
					t.Fatalf("DecodeColumn(%s) error = %v", in.format, err)
				}
				if got.SRID != SRID {
					t.Errorf("expected SRID %d, got %d", SRID, got.SRID)
				}
				if !orb.Equal(got.Geometry, g) {
					t.Errorf("%s: expected %v, got %v", in.format, g, got.Geometry)
				}
			}
		})
	}
}

func TestDecodeColumn_Errors(t *testing.T) {
	tests := []struct {
		name      string
		raw       any
		format    Format
		wantEmpty bool
	}{
		{"malformed wkt", "POINT(abc", FormatWKT, false},
		{"malformed geojson", `{"type":"Point","coordinates":`, FormatGeoJSON, false},
		{"truncated wkb", []byte{0x01, 0x01}, FormatWKB, false},
		{"empty string", "", FormatWKT, true},
		{"nil", nil, FormatGeoJSON, true},
		{"wrong type", 42, FormatWKT, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeColumn(tt.raw, tt.format)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
			if perr.Ordinal != -1 {
				t.Errorf("expected ordinal -1, got %d", perr.Ordinal)
			}
			if errors.Is(err, ErrEmptyGeometry) != tt.wantEmpty {
				t.Errorf("errors.Is(ErrEmptyGeometry) = %v, want %v", !tt.wantEmpty, tt.wantEmpty)
			}
		})
	}
}

func TestParseError_Message(t *testing.T) {
	err := &ParseError{Ordinal: 3, Field: "geom", Format: FormatWKT, Raw: "POINT(", Err: errors.New("boom")}
	want := `geometry parse error in field "geom" at row 3 (wkt, raw="POINT("): boom`
	if err.Error() != want {
		t.Errorf("expected '%s', got '%s'", want, err.Error())
	}
}
