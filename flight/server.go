// Package flight serves and consumes streaming read sessions over Arrow
// Flight.
//
// A session is opened with GetFlightInfo on a CMD descriptor carrying
// encoded read options. The returned ticket is redeemed with DoGet, which
// streams the matching rows as Arrow record batches.
package flight

import (
	"context"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"

	"github.com/hugr-lab/geoquery/query"
)

// TableReader is the engine behind the server.
type TableReader interface {
	// TableSchema returns the Arrow schema of a table, or nil when the
	// table does not exist.
	TableSchema(ctx context.Context, table string) (*arrow.Schema, error)
	// ReadRows returns the rows of opts.Table matching opts.RowRestriction,
	// restricted to opts.SelectedFields.
	ReadRows(ctx context.Context, opts query.ReadOptions) (array.RecordReader, error)
}

// Server implements the Flight service handlers for read sessions.
// Embeds BaseFlightServer so unimplemented RPCs report Unimplemented.
type Server struct {
	flight.BaseFlightServer

	tables    TableReader
	allocator memory.Allocator
	logger    *slog.Logger
	address   string
}

// NewServer creates a Flight server over tables. A nil allocator or logger
// uses the defaults. address is advertised in flight endpoints; leave it
// empty to let clients reuse their connection.
func NewServer(tables TableReader, allocator memory.Allocator, logger *slog.Logger, address string) *Server {
	if allocator == nil {
		allocator = memory.DefaultAllocator
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		tables:    tables,
		allocator: allocator,
		logger:    logger,
		address:   address,
	}
}

// RegisterFlightServer registers the Flight service on the provided gRPC server.
func RegisterFlightServer(grpcServer *grpc.Server, flightServer *Server) {
	flight.RegisterFlightServiceServer(grpcServer, flightServer)
}
