package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"

	"github.com/hugr-lab/geoquery/catalog"
	"github.com/hugr-lab/geoquery/geometry"
)

type arrowDecoder struct {
	desc   Descriptor
	schema *catalog.Schema
	opts   Options

	records []arrow.RecordBatch
	rec     int   // index into records
	row     int   // row within records[rec]
	ordinal int64 // raw rows consumed across batches
}

func newArrowDecoder(desc Descriptor, schema *catalog.Schema, opts Options) (*arrowDecoder, error) {
	if desc.ArrowSchema == nil && len(desc.SerializedSchema) == 0 {
		return nil, fmt.Errorf("%w: arrow stream without schema", ErrInvalidDescriptor)
	}
	if desc.ArrowSchema == nil {
		s, err := readSchema(desc.SerializedSchema, opts)
		if err != nil {
			return nil, err
		}
		desc.ArrowSchema = s
	}
	return &arrowDecoder{desc: desc, schema: schema, opts: opts}, nil
}

func readSchema(serialized []byte, opts Options) (*arrow.Schema, error) {
	r, err := ipc.NewReader(bytes.NewReader(serialized), ipc.WithAllocator(opts.Allocator))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read serialized schema: %w", ErrInvalidDescriptor, err)
	}
	defer r.Release()
	return r.Schema(), nil
}

func (d *arrowDecoder) DecodeBatch(b Batch) error {
	d.Release()

	switch {
	case b.Record != nil:
		b.Record.Retain()
		d.records = []arrow.RecordBatch{b.Record}
	case b.Data != nil:
		records, err := d.readRecords(b.Data)
		if err != nil {
			return err
		}
		d.records = records
	case b.Rows != nil:
		return fmt.Errorf("%w: tabular rows on an arrow stream", ErrInvalidBatch)
	}
	return nil
}

// readRecords reads every record batch out of raw IPC bytes. Backends that
// ship the schema once send bare record-batch messages, so the serialized
// schema is prepended to form a readable stream.
func (d *arrowDecoder) readRecords(data []byte) ([]arrow.RecordBatch, error) {
	var src io.Reader = bytes.NewReader(data)
	if len(d.desc.SerializedSchema) > 0 {
		src = io.MultiReader(bytes.NewReader(d.desc.SerializedSchema), bytes.NewReader(data))
	}

	r, err := ipc.NewReader(src, ipc.WithAllocator(d.opts.Allocator))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open ipc stream: %w", ErrInvalidBatch, err)
	}
	defer r.Release()

	var records []arrow.RecordBatch
	for r.Next() {
		rec := r.RecordBatch()
		rec.Retain()
		records = append(records, rec)
	}
	if err := r.Err(); err != nil && !errors.Is(err, io.EOF) {
		for _, rec := range records {
			rec.Release()
		}
		return nil, fmt.Errorf("%w: failed to read record batch: %w", ErrInvalidBatch, err)
	}
	return records, nil
}

func (d *arrowDecoder) HasMore() bool {
	for d.rec < len(d.records) {
		if int64(d.row) < d.records[d.rec].NumRows() {
			return true
		}
		d.rec++
		d.row = 0
	}
	return false
}

func (d *arrowDecoder) NextRecord() (*Record, error) {
	if !d.HasMore() {
		return nil, fmt.Errorf("%w: batch exhausted", ErrInvalidBatch)
	}

	rec := d.records[d.rec]
	i := d.row
	ordinal := d.ordinal
	d.row++
	d.ordinal++

	sc := rec.Schema()
	out := newRecord(ordinal, fieldNames(sc))
	for c, f := range sc.Fields() {
		raw := arrowValue(rec.Column(c), i)

		typ, isGeom := d.fieldType(f)
		if isGeom {
			v, err := decodeGeometry(raw, f.Name, ordinal, d.desc.GeometryFormat)
			if err != nil {
				return nil, err
			}
			out.Values[f.Name] = v
			continue
		}
		v, err := coerce(raw, typ)
		if err != nil {
			return nil, fmt.Errorf("field %q at row %d: %w", f.Name, ordinal, err)
		}
		out.Values[f.Name] = v
	}
	return out, nil
}

// fieldType resolves a column against the catalog schema, falling back to
// the Arrow metadata for columns the schema does not know.
func (d *arrowDecoder) fieldType(f arrow.Field) (catalog.FieldType, bool) {
	if d.schema != nil {
		if sf, ok := d.schema.Field(f.Name); ok {
			return sf.Type, sf.Type == catalog.TypeGeometry
		}
	}
	if geometry.IsGeometryField(f) {
		return catalog.TypeGeometry, true
	}
	if f.Type.ID() == arrow.TIMESTAMP {
		return catalog.TypeTimestamp, false
	}
	return catalog.TypeString, false
}

func (d *arrowDecoder) Release() {
	for _, rec := range d.records {
		rec.Release()
	}
	d.records = nil
	d.rec, d.row = 0, 0
}

func fieldNames(s *arrow.Schema) []string {
	names := make([]string, s.NumFields())
	for i, f := range s.Fields() {
		names[i] = f.Name
	}
	return names
}
