package bigquery

import (
	"context"
	"errors"
	"io"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/bigquery/storage/apiv1/storagepb"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/hugr-lab/geoquery/backend"
	"github.com/hugr-lab/geoquery/decode"
	"github.com/hugr-lab/geoquery/geometry"
	"github.com/hugr-lab/geoquery/query"
)

// rowIterator is the part of *bigquery.RowIterator a jobStream reads.
type rowIterator interface {
	Next(dst interface{}) error
}

// jobStream pages query job results into tabular batches.
type jobStream struct {
	it       rowIterator
	cols     []string
	stmt     string
	pageSize int

	first []bigquery.Value
	done  bool
}

func newJobStream(it *bigquery.RowIterator, stmt string, pageSize int) (*jobStream, error) {
	s := &jobStream{it: it, stmt: stmt, pageSize: pageSize}

	// the schema is only known once the first page arrives
	var row []bigquery.Value
	err := it.Next(&row)
	switch {
	case errors.Is(err, iterator.Done):
		s.done = true
	case err != nil:
		return nil, backend.Wrap("query", stmt, err)
	default:
		s.first = row
	}
	for _, f := range it.Schema {
		s.cols = append(s.cols, f.Name)
	}
	return s, nil
}

func (s *jobStream) Descriptor() decode.Descriptor {
	return decode.Descriptor{
		Encoding:       decode.EncodingTabular,
		Columns:        s.cols,
		GeometryFormat: geometry.FormatGeoJSON,
	}
}

func (s *jobStream) Next(ctx context.Context) (decode.Batch, error) {
	if err := ctx.Err(); err != nil {
		return decode.Batch{}, err
	}
	if s.first == nil && s.done {
		return decode.Batch{}, io.EOF
	}

	batch := make([][]any, 0, s.pageSize)
	if s.first != nil {
		batch = append(batch, convertRow(s.first))
		s.first = nil
	}
	for !s.done && len(batch) < s.pageSize {
		var row []bigquery.Value
		err := s.it.Next(&row)
		if errors.Is(err, iterator.Done) {
			s.done = true
			break
		}
		if err != nil {
			return decode.Batch{}, backend.Wrap("query", s.stmt, err)
		}
		batch = append(batch, convertRow(row))
	}
	if len(batch) == 0 {
		return decode.Batch{}, io.EOF
	}
	return decode.Batch{Rows: batch}, nil
}

func (s *jobStream) Close() error {
	s.done = true
	s.first = nil
	return nil
}

// convertRow turns civil and numeric types into the values the decoder
// expects.
func convertRow(row []bigquery.Value) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = convertValue(v)
	}
	return out
}

func convertValue(v bigquery.Value) any {
	switch x := v.(type) {
	case civil.Date:
		return x.In(time.UTC)
	case civil.DateTime:
		return x.In(time.UTC)
	case civil.Time:
		return x.String()
	case *big.Rat:
		f, _ := x.Float64()
		return f
	default:
		return v
	}
}

// OpenReadSession creates a single-stream Storage Read API session in Arrow
// format and starts reading it.
func (b *Backend) OpenReadSession(ctx context.Context, opts query.ReadOptions) (backend.Stream, error) {
	ref, err := ParseTableRef(opts.Table, b.cfg.Project, b.cfg.Dataset)
	if err != nil {
		return nil, backend.Wrap("open read session", opts.RowRestriction, err)
	}

	session, err := b.read.CreateReadSession(ctx, &storagepb.CreateReadSessionRequest{
		Parent: "projects/" + b.cfg.Project,
		ReadSession: &storagepb.ReadSession{
			Table:      ref.Path(),
			DataFormat: storagepb.DataFormat_ARROW,
			ReadOptions: &storagepb.ReadSession_TableReadOptions{
				SelectedFields: opts.SelectedFields,
				RowRestriction: opts.RowRestriction,
			},
		},
		MaxStreamCount: 1,
	})
	if err != nil {
		return nil, backend.Wrap("open read session", opts.RowRestriction, err)
	}

	desc := decode.Descriptor{
		Encoding:         decode.EncodingArrow,
		SerializedSchema: session.GetArrowSchema().GetSerializedSchema(),
		GeometryFormat:   geometry.FormatWKT,
	}
	b.log.Info("Read session opened",
		"session", session.GetName(),
		"table", ref.String(),
		"streams", len(session.GetStreams()),
	)

	if len(session.GetStreams()) == 0 {
		return &sessionStream{desc: desc, cancel: func() {}}, nil
	}

	sctx, cancel := context.WithCancel(ctx)
	rows, err := b.read.ReadRows(sctx, &storagepb.ReadRowsRequest{
		ReadStream: session.GetStreams()[0].GetName(),
	})
	if err != nil {
		cancel()
		return nil, backend.Wrap("read", opts.RowRestriction, err)
	}
	return &sessionStream{rows: rows, desc: desc, cancel: cancel}, nil
}

// sessionStream reads serialized Arrow record batches off a read stream.
type sessionStream struct {
	rows   storagepb.BigQueryRead_ReadRowsClient
	desc   decode.Descriptor
	cancel context.CancelFunc
	closed bool
}

func (s *sessionStream) Descriptor() decode.Descriptor { return s.desc }

func (s *sessionStream) Next(ctx context.Context) (decode.Batch, error) {
	if s.rows == nil || s.closed {
		return decode.Batch{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return decode.Batch{}, err
	}
	resp, err := s.rows.Recv()
	if errors.Is(err, io.EOF) {
		return decode.Batch{}, io.EOF
	}
	if err != nil {
		return decode.Batch{}, backend.Wrap("read", "", err)
	}
	return decode.Batch{Data: resp.GetArrowRecordBatch().GetSerializedRecordBatch()}, nil
}

func (s *sessionStream) Close() error {
	if !s.closed {
		s.closed = true
		s.cancel()
	}
	return nil
}
