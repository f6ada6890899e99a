package flight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/geoquery/backend"
	"github.com/hugr-lab/geoquery/catalog"
	"github.com/hugr-lab/geoquery/decode"
	"github.com/hugr-lab/geoquery/dialect"
	"github.com/hugr-lab/geoquery/geometry"
	"github.com/hugr-lab/geoquery/internal/wire"
	"github.com/hugr-lab/geoquery/query"
)

// Client opens read sessions on a Flight server. It implements
// backend.SessionReader and catalog.Provider.
type Client struct {
	conn      *grpc.ClientConn
	client    flight.FlightServiceClient
	dialect   dialect.Dialect
	allocator memory.Allocator
	logger    *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithDialect sets the dialect restrictions are compiled in. Default DuckDB.
func WithDialect(d dialect.Dialect) ClientOption {
	return func(c *Client) { c.dialect = d }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// Dial connects to a Flight server without transport security.
func Dial(address string, opts ...ClientOption) (*Client, error) {
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create flight client for %s: %w", address, err)
	}
	c := NewClient(conn, opts...)
	c.conn = conn
	return c, nil
}

// NewClient wraps an existing connection. The caller keeps ownership of conn.
func NewClient(conn grpc.ClientConnInterface, opts ...ClientOption) *Client {
	c := &Client{
		client:    flight.NewFlightServiceClient(conn),
		dialect:   dialect.DuckDB,
		allocator: memory.DefaultAllocator,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Dialect() dialect.Dialect { return c.dialect }

// OpenReadSession requests a session for opts and starts streaming it.
func (c *Client) OpenReadSession(ctx context.Context, opts query.ReadOptions) (backend.Stream, error) {
	cmd, err := wire.Marshal(opts)
	if err != nil {
		return nil, err
	}

	info, err := c.client.GetFlightInfo(ctx, &flight.FlightDescriptor{
		Type: flight.DescriptorCMD,
		Cmd:  cmd,
	})
	if err != nil {
		return nil, backend.Wrap("open read session", opts.RowRestriction, err)
	}
	if len(info.GetEndpoint()) == 0 {
		return nil, backend.Wrap("open read session", opts.RowRestriction, errors.New("server returned no endpoints"))
	}

	sctx, cancel := context.WithCancel(ctx)
	stream, err := c.client.DoGet(sctx, info.GetEndpoint()[0].GetTicket())
	if err != nil {
		cancel()
		return nil, backend.Wrap("read", opts.RowRestriction, err)
	}
	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(c.allocator))
	if err != nil {
		cancel()
		return nil, backend.Wrap("read", opts.RowRestriction, err)
	}

	c.logger.Debug("Read session started",
		"table", opts.Table,
		"num_fields", reader.Schema().NumFields(),
	)

	return &recordStream{
		reader: reader,
		cancel: cancel,
		desc: decode.Descriptor{
			Encoding:       decode.EncodingArrow,
			ArrowSchema:    reader.Schema(),
			GeometryFormat: geometry.FormatWKT,
		},
	}, nil
}

// Schema fetches the schema of a table from the server. An unknown table is
// (nil, nil).
func (c *Client) Schema(ctx context.Context, table string) (*catalog.Schema, error) {
	cmd, err := wire.Marshal(query.ReadOptions{Table: table})
	if err != nil {
		return nil, err
	}
	info, err := c.client.GetFlightInfo(ctx, &flight.FlightDescriptor{
		Type: flight.DescriptorCMD,
		Cmd:  cmd,
	})
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, backend.Wrap("schema", table, err)
	}
	schema, err := flight.DeserializeSchema(info.GetSchema(), c.allocator)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize schema of %s: %w", table, err)
	}
	return catalog.FromArrow(schema, "")
}

// Close closes a connection created by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

type recordStream struct {
	reader *flight.Reader
	cancel context.CancelFunc
	desc   decode.Descriptor
	closed bool
}

func (s *recordStream) Descriptor() decode.Descriptor { return s.desc }

// Next returns the next record. The record stays valid until the following
// call; decoders retain what they keep.
func (s *recordStream) Next(ctx context.Context) (decode.Batch, error) {
	if s.closed {
		return decode.Batch{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return decode.Batch{}, err
	}
	if s.reader.Next() {
		return decode.Batch{Record: s.reader.RecordBatch()}, nil
	}
	if err := s.reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		return decode.Batch{}, backend.Wrap("read", "", err)
	}
	return decode.Batch{}, io.EOF
}

func (s *recordStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	s.reader.Release()
	return nil
}
