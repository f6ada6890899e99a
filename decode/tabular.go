package decode

import (
	"fmt"

	"github.com/hugr-lab/geoquery/catalog"
)

type tabularDecoder struct {
	desc   Descriptor
	schema *catalog.Schema
	types  []catalog.FieldType

	rows    [][]any
	row     int
	ordinal int64
}

func newTabularDecoder(desc Descriptor, schema *catalog.Schema) (*tabularDecoder, error) {
	if len(desc.Columns) == 0 {
		return nil, fmt.Errorf("%w: tabular stream without columns", ErrInvalidDescriptor)
	}
	types := make([]catalog.FieldType, len(desc.Columns))
	for i, name := range desc.Columns {
		types[i] = catalog.TypeString
		if schema == nil {
			continue
		}
		if f, ok := schema.Field(name); ok {
			types[i] = f.Type
		}
	}
	return &tabularDecoder{desc: desc, schema: schema, types: types}, nil
}

func (d *tabularDecoder) DecodeBatch(b Batch) error {
	if b.Data != nil || b.Record != nil {
		return fmt.Errorf("%w: binary batch on a tabular stream", ErrInvalidBatch)
	}
	d.rows = b.Rows
	d.row = 0
	return nil
}

func (d *tabularDecoder) HasMore() bool { return d.row < len(d.rows) }

func (d *tabularDecoder) NextRecord() (*Record, error) {
	if !d.HasMore() {
		return nil, fmt.Errorf("%w: batch exhausted", ErrInvalidBatch)
	}

	row := d.rows[d.row]
	ordinal := d.ordinal
	d.row++
	d.ordinal++

	if len(row) != len(d.desc.Columns) {
		return nil, fmt.Errorf("%w: row %d has %d values for %d columns", ErrInvalidBatch, ordinal, len(row), len(d.desc.Columns))
	}

	out := newRecord(ordinal, d.desc.Columns)
	for i, name := range d.desc.Columns {
		if d.types[i] == catalog.TypeGeometry {
			v, err := decodeGeometry(row[i], name, ordinal, d.desc.GeometryFormat)
			if err != nil {
				return nil, err
			}
			out.Values[name] = v
			continue
		}
		v, err := coerce(row[i], d.types[i])
		if err != nil {
			return nil, fmt.Errorf("field %q at row %d: %w", name, ordinal, err)
		}
		out.Values[name] = v
	}
	return out, nil
}

func (d *tabularDecoder) Release() {
	d.rows = nil
	d.row = 0
}
