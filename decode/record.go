package decode

import (
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/hugr-lab/geoquery/geometry"
)

// Record is one decoded row.
type Record struct {
	// Ordinal is the zero-based position of the row in its scan.
	Ordinal int64
	// Fields lists the column names in result order.
	Fields []string
	Values map[string]any
}

func newRecord(ordinal int64, fields []string) *Record {
	return &Record{
		Ordinal: ordinal,
		Fields:  fields,
		Values:  make(map[string]any, len(fields)),
	}
}

// ID is the record identifier, the ordinal rendered in base 10.
func (r *Record) ID() string { return strconv.FormatInt(r.Ordinal, 10) }

// Get returns a value by field name.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// Geometry returns the tagged geometry stored under name.
func (r *Record) Geometry(name string) (geometry.Tagged, bool) {
	g, ok := r.Values[name].(geometry.Tagged)
	return g, ok
}

// Feature converts the record to a GeoJSON feature with geomField as the
// geometry and every other value as a property.
func (r *Record) Feature(geomField string) *geojson.Feature {
	g, _ := r.Geometry(geomField)
	f := geojson.NewFeature(g.Geometry)
	f.ID = r.ID()
	for _, name := range r.Fields {
		if name == geomField {
			continue
		}
		f.Properties[name] = r.Values[name]
	}
	return f
}
