package catalog

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/hugr-lab/geoquery/geometry"
)

// bigQueryGeographyExtension is the extension name BigQuery's storage read
// API puts on GEOGRAPHY columns (WKT strings).
const bigQueryGeographyExtension = "google:sqlType:geography"

// FromArrow derives a Schema from an Arrow schema. A field is geometry when it
// carries the geoarrow.wkb or BigQuery geography extension, or when its name
// equals geometryField.
func FromArrow(s *arrow.Schema, geometryField string) (*Schema, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil arrow schema", ErrInvalidSchema)
	}

	b := NewSchemaBuilder()
	for _, f := range s.Fields() {
		typ := fieldTypeFromArrow(f)
		if f.Name == geometryField {
			typ = TypeGeometry
		}
		b.Field(f.Name, typ)
	}
	if geometryField != "" {
		b.Geometry(geometryField)
	}
	return b.Build()
}

func fieldTypeFromArrow(f arrow.Field) FieldType {
	if geometry.IsGeometryField(f) {
		return TypeGeometry
	}
	if name, ok := f.Metadata.GetValue("ARROW:extension:name"); ok && name == bigQueryGeographyExtension {
		return TypeGeometry
	}

	dt := f.Type
	if ext, ok := dt.(arrow.ExtensionType); ok {
		dt = ext.StorageType()
	}

	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return TypeInteger
	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64,
		arrow.DECIMAL128, arrow.DECIMAL256:
		return TypeFloat
	case arrow.BOOL:
		return TypeBoolean
	case arrow.DATE32, arrow.DATE64:
		return TypeDate
	case arrow.TIMESTAMP, arrow.TIME32, arrow.TIME64:
		return TypeTimestamp
	default:
		return TypeString
	}
}

// ArrowSchema renders the schema as Arrow fields. Geometry fields use the
// geoarrow.wkb extension type.
func (s *Schema) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, 0, len(s.fields))
	for _, f := range s.fields {
		fields = append(fields, arrowField(f))
	}
	return arrow.NewSchema(fields, nil)
}

func arrowField(f Field) arrow.Field {
	switch f.Type {
	case TypeGeometry:
		return geometry.NewField(f.Name, true)
	case TypeInteger:
		return arrow.Field{Name: f.Name, Type: arrow.PrimitiveTypes.Int64, Nullable: true}
	case TypeFloat:
		return arrow.Field{Name: f.Name, Type: arrow.PrimitiveTypes.Float64, Nullable: true}
	case TypeBoolean:
		return arrow.Field{Name: f.Name, Type: arrow.FixedWidthTypes.Boolean, Nullable: true}
	case TypeDate:
		return arrow.Field{Name: f.Name, Type: arrow.FixedWidthTypes.Date32, Nullable: true}
	case TypeTimestamp:
		return arrow.Field{Name: f.Name, Type: &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}, Nullable: true}
	default:
		return arrow.Field{Name: f.Name, Type: arrow.BinaryTypes.String, Nullable: true}
	}
}
