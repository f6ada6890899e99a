package flight

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// ProjectSchema returns a schema holding only the named columns, in the
// order given. An empty list returns the schema unchanged. Unknown columns
// are an error so a session never silently drops a requested field.
func ProjectSchema(schema *arrow.Schema, columns []string) (*arrow.Schema, error) {
	if len(columns) == 0 {
		return schema, nil
	}

	fields := make([]arrow.Field, 0, len(columns))
	for _, col := range columns {
		idx := schema.FieldIndices(col)
		if len(idx) == 0 {
			return nil, fmt.Errorf("unknown column %q", col)
		}
		fields = append(fields, schema.Field(idx[0]))
	}

	meta := schema.Metadata()
	return arrow.NewSchema(fields, &meta), nil
}
