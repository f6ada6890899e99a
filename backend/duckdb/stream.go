package duckdb

import (
	"context"
	"database/sql"
	"io"

	"github.com/hugr-lab/geoquery/backend"
	"github.com/hugr-lab/geoquery/decode"
	"github.com/hugr-lab/geoquery/geometry"
)

// rowsStream batches database/sql rows into tabular batches.
type rowsStream struct {
	rows      *sql.Rows
	cols      []string
	stmt      string
	batchSize int
	done      bool
}

func newRowsStream(rows *sql.Rows, cols []string, stmt string, batchSize int) *rowsStream {
	return &rowsStream{rows: rows, cols: cols, stmt: stmt, batchSize: batchSize}
}

func (s *rowsStream) Descriptor() decode.Descriptor {
	return decode.Descriptor{
		Encoding:       decode.EncodingTabular,
		Columns:        s.cols,
		GeometryFormat: geometry.FormatGeoJSON,
	}
}

func (s *rowsStream) Next(ctx context.Context) (decode.Batch, error) {
	if s.done {
		return decode.Batch{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return decode.Batch{}, err
	}

	batch := make([][]any, 0, s.batchSize)
	for len(batch) < s.batchSize && s.rows.Next() {
		values := make([]any, len(s.cols))
		dest := make([]any, len(s.cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := s.rows.Scan(dest...); err != nil {
			return decode.Batch{}, backend.Wrap("scan", s.stmt, err)
		}
		batch = append(batch, values)
	}
	if len(batch) < s.batchSize {
		s.done = true
		if err := s.rows.Err(); err != nil {
			return decode.Batch{}, backend.Wrap("scan", s.stmt, err)
		}
		if len(batch) == 0 {
			return decode.Batch{}, io.EOF
		}
	}
	return decode.Batch{Rows: batch}, nil
}

func (s *rowsStream) Close() error {
	s.done = true
	return s.rows.Close()
}
