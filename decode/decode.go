// Package decode turns backend result batches into records.
//
// A RowDecoder is built from the descriptor of the first backend response and
// then fed one Batch at a time. Decoding is lazy: DecodeBatch only positions
// the decoder, rows are materialized by NextRecord.
package decode

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/geoquery/catalog"
	"github.com/hugr-lab/geoquery/geometry"
)

var (
	// ErrInvalidDescriptor is returned when a descriptor cannot drive a decoder.
	ErrInvalidDescriptor = errors.New("decode: invalid descriptor")
	// ErrInvalidBatch is returned for batches that do not match the descriptor.
	ErrInvalidBatch = errors.New("decode: invalid batch")
	// ErrInvalidValue is returned when a value cannot be coerced to its field type.
	ErrInvalidValue = errors.New("decode: invalid value")
)

// Encoding tells how a backend delivers rows.
type Encoding int

const (
	// EncodingArrow is schema-tagged binary Arrow record batches.
	EncodingArrow Encoding = iota
	// EncodingTabular is rows of values with named columns.
	EncodingTabular
)

func (e Encoding) String() string {
	if e == EncodingTabular {
		return "tabular"
	}
	return "arrow"
}

// Descriptor describes the shape of a result stream.
type Descriptor struct {
	Encoding Encoding

	// ArrowSchema is set for Arrow streams that deliver materialized records.
	ArrowSchema *arrow.Schema
	// SerializedSchema is the IPC schema message prepended to raw batch bytes.
	// When empty, raw bytes must be a self-contained IPC stream.
	SerializedSchema []byte

	// Columns names the values of each tabular row, in order.
	Columns []string

	// GeometryFormat is the textual geometry encoding. Binary geometry
	// values are always read as WKB.
	GeometryFormat geometry.Format
}

// Batch is one backend buffer. Exactly one field is set.
type Batch struct {
	Data   []byte
	Record arrow.RecordBatch
	Rows   [][]any
}

// Len returns the number of rows in a materialized batch, or -1 when the rows
// are still serialized.
func (b Batch) Len() int {
	switch {
	case b.Record != nil:
		return int(b.Record.NumRows())
	case b.Rows != nil:
		return len(b.Rows)
	case b.Data != nil:
		return -1
	}
	return 0
}

// RowDecoder decodes records out of batches, one at a time.
type RowDecoder interface {
	// DecodeBatch positions the decoder at the start of b.
	DecodeBatch(b Batch) error
	// HasMore reports whether the current batch has undecoded rows.
	HasMore() bool
	// NextRecord decodes one row. A geometry failure returns a
	// *geometry.ParseError and still advances past the row.
	NextRecord() (*Record, error)
	// Release frees buffers held for the current batch.
	Release()
}

// Options configure a decoder.
type Options struct {
	Allocator memory.Allocator
}

// NewDecoder builds the decoder matching desc.Encoding. schema may be nil,
// in which case geometry is only recognized from Arrow field metadata.
func NewDecoder(desc Descriptor, schema *catalog.Schema, opts Options) (RowDecoder, error) {
	if opts.Allocator == nil {
		opts.Allocator = memory.DefaultAllocator
	}
	switch desc.Encoding {
	case EncodingArrow:
		return newArrowDecoder(desc, schema, opts)
	case EncodingTabular:
		return newTabularDecoder(desc, schema)
	default:
		return nil, fmt.Errorf("%w: unknown encoding %d", ErrInvalidDescriptor, desc.Encoding)
	}
}
