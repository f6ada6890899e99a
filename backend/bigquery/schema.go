package bigquery

import (
	"errors"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/hugr-lab/geoquery/catalog"
)

// PartitionTimeColumn is the pseudo-column of ingestion-time partitioned
// tables.
const PartitionTimeColumn = "_PARTITIONTIME"

var fieldTypes = map[bigquery.FieldType]catalog.FieldType{
	bigquery.GeographyFieldType:  catalog.TypeGeometry,
	bigquery.NumericFieldType:    catalog.TypeFloat,
	bigquery.BigNumericFieldType: catalog.TypeFloat,
	bigquery.BooleanFieldType:    catalog.TypeBoolean,
	bigquery.IntegerFieldType:    catalog.TypeInteger,
	bigquery.FloatFieldType:      catalog.TypeFloat,
	bigquery.DateFieldType:       catalog.TypeDate,
	bigquery.DateTimeFieldType:   catalog.TypeTimestamp,
	bigquery.TimestampFieldType:  catalog.TypeTimestamp,
}

// SchemaFromMetadata converts table metadata. STRING, BYTES, JSON, TIME, INTERVAL,
// RECORD and anything unknown map to String. The first GEOGRAPHY column is
// the default geometry.
func SchemaFromMetadata(md *bigquery.TableMetadata) (*catalog.Schema, error) {
	b := catalog.NewSchemaBuilder()
	for _, f := range md.Schema {
		typ, ok := fieldTypes[f.Type]
		if !ok {
			typ = catalog.TypeString
		}
		b.Field(f.Name, typ)
	}

	if md.Clustering != nil {
		b.Clustered(md.Clustering.Fields...)
	}

	if tp := md.TimePartitioning; tp != nil {
		field := tp.Field
		if field == "" {
			field = PartitionTimeColumn
			b.Field(field, catalog.TypeTimestamp)
		}
		required := md.RequirePartitionFilter || tp.RequirePartitionFilter
		b.Partition(field, catalog.ParseGranularity(string(tp.Type)), required)
	}
	return b.Build()
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
