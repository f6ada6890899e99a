package flight

import (
	"context"
	"errors"
	"io"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/geoquery/internal/metrics"
	"github.com/hugr-lab/geoquery/internal/recovery"
	"github.com/hugr-lab/geoquery/internal/wire"
	"github.com/hugr-lab/geoquery/query"
)

const metricsMode = "serve"

// DoGet streams the rows of a read session as Arrow record batches.
// Cancellation of the client stream stops the scan between batches.
func (s *Server) DoGet(ticket *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	ctx := stream.Context()

	t, err := wire.DecodeTicket(ticket.GetTicket())
	if err != nil {
		s.logger.Error("Failed to decode ticket", "error", err)
		return status.Errorf(codes.InvalidArgument, "invalid ticket: %v", err)
	}

	s.logger.Debug("DoGet request",
		"session", t.Session,
		"table", t.Table,
		"restriction", t.RowRestriction,
	)

	var reader array.RecordReader
	err = recovery.GRPC(s.logger, "ReadRows", func() error {
		var err error
		reader, err = s.tables.ReadRows(ctx, query.ReadOptions{
			Table:          t.Table,
			RowRestriction: t.RowRestriction,
			SelectedFields: t.SelectedFields,
		})
		return err
	})
	if err != nil {
		s.logger.Error("Failed to read rows",
			"session", t.Session,
			"table", t.Table,
			"error", err,
		)
		if _, ok := status.FromError(err); ok {
			return err
		}
		return status.Errorf(codes.Internal, "failed to read rows: %v", err)
	}
	defer reader.Release()

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(reader.Schema()), ipc.WithAllocator(s.allocator))
	defer writer.Close()

	sent, err := s.sendRecords(ctx, reader, writer)
	if err != nil {
		s.logger.Error("Read session aborted",
			"session", t.Session,
			"batches_sent", sent.batches,
			"rows_sent", sent.rows,
			"error", err,
		)
		return err
	}

	s.logger.Info("Read session completed",
		"session", t.Session,
		"batches_sent", sent.batches,
		"total_rows", sent.rows,
	)
	return nil
}

type sendStats struct {
	batches int
	rows    int64
}

// sendRecords copies every batch of reader to writer. It stops between
// batches when ctx is done.
func (s *Server) sendRecords(ctx context.Context, reader array.RecordReader, writer *flight.Writer) (sendStats, error) {
	var st sendStats
	for reader.Next() {
		if ctx.Err() != nil {
			return st, status.Error(codes.Canceled, "request cancelled")
		}

		rec := reader.RecordBatch()
		if err := writer.Write(rec); err != nil {
			metrics.IncFailures(metricsMode, "write")
			return st, status.Errorf(codes.Internal, "failed to write batch %d: %v", st.batches+1, err)
		}
		st.batches++
		st.rows += rec.NumRows()
		metrics.IncBatches(metricsMode)
		metrics.AddRows(metricsMode, int(rec.NumRows()))
	}

	if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		metrics.IncFailures(metricsMode, "fetch")
		return st, status.Errorf(codes.Internal, "scan failed after %d batches: %v", st.batches, err)
	}
	return st, nil
}
