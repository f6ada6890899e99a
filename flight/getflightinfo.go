package flight

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/geoquery/internal/recovery"
	"github.com/hugr-lab/geoquery/internal/wire"
	"github.com/hugr-lab/geoquery/query"
)

// GetFlightInfo opens a read session.
//
// The descriptor must be of CMD type with Cmd holding wire-encoded
// query.ReadOptions. The returned info carries the projected schema and one
// endpoint whose ticket identifies the session.
func (s *Server) GetFlightInfo(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	s.logger.Debug("GetFlightInfo called",
		"type", desc.GetType(),
		"cmd_size", len(desc.GetCmd()),
	)

	if desc.GetType() != flight.DescriptorCMD {
		return nil, status.Error(codes.InvalidArgument, "descriptor must be CMD type")
	}

	var opts query.ReadOptions
	if err := wire.Unmarshal(desc.GetCmd(), &opts); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid read options: %v", err)
	}
	if opts.Table == "" {
		return nil, status.Error(codes.InvalidArgument, "read options must name a table")
	}

	var schema *arrow.Schema
	err := recovery.GRPC(s.logger, "TableSchema", func() error {
		var err error
		schema, err = s.tables.TableSchema(ctx, opts.Table)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to get table schema",
			"table", opts.Table,
			"error", err,
		)
		if _, ok := status.FromError(err); ok {
			return nil, err
		}
		return nil, status.Errorf(codes.Internal, "failed to get table schema: %v", err)
	}
	if schema == nil {
		return nil, status.Errorf(codes.NotFound, "table not found: %s", opts.Table)
	}

	projected, err := ProjectSchema(schema, opts.SelectedFields)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "table %s: %v", opts.Table, err)
	}

	t := wire.NewTicket(opts.Table, opts.RowRestriction, opts.SelectedFields)
	ticket, err := wire.EncodeTicket(t)
	if err != nil {
		s.logger.Error("Failed to encode ticket",
			"table", opts.Table,
			"error", err,
		)
		return nil, status.Errorf(codes.Internal, "failed to encode ticket: %v", err)
	}

	endpoint := &flight.FlightEndpoint{Ticket: &flight.Ticket{Ticket: ticket}}
	if s.address != "" {
		endpoint.Location = []*flight.Location{{Uri: "grpc://" + s.address}}
	}

	s.logger.Info("Read session opened",
		"session", t.Session,
		"table", opts.Table,
		"num_fields", projected.NumFields(),
	)

	return &flight.FlightInfo{
		Schema:           flight.SerializeSchema(projected, s.allocator),
		FlightDescriptor: desc,
		Endpoint:         []*flight.FlightEndpoint{endpoint},
		TotalRecords:     -1,
		TotalBytes:       -1,
	}, nil
}
