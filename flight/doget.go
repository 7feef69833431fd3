package flight

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/docquery/catalog"
	"github.com/hugr-lab/docquery/internal/recovery"
)

// DoGet streams Arrow record batches for a collection query.
//
// The handler:
//  1. Decodes the ticket issued by GetFlightInfo
//  2. Looks up the collection and checks authorization
//  3. Decodes the filter (through the filter cache)
//  4. Calls the collection's Scan with filter, projection and limit
//  5. Validates the RecordReader schema matches the projected schema
//  6. Streams record batches using Arrow IPC format, respecting cancellation
func (s *Server) DoGet(ticket *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	ctx := EnrichContextMetadata(stream.Context())
	start := time.Now()

	ticketData, err := DecodeTicket(ticket.GetTicket())
	if err != nil {
		s.logger.Error("Failed to decode ticket", "error", err)
		return status.Errorf(codes.InvalidArgument, "invalid ticket: %v", err)
	}

	s.logger.Debug("DoGet request",
		"schema", ticketData.Schema,
		"collection", ticketData.Collection,
		"trace_id", TraceIDFromContext(ctx),
	)

	coll, err := s.lookupCollection(ctx, ticketData.Schema, ticketData.Collection)
	if err != nil {
		return err
	}

	f, err := s.filters.decode(ticketData.Filter)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid ticket filter: %v", err)
	}

	scanOpts := ticketData.ToScanOptions(f)
	collAttrs := []slog.Attr{
		slog.String("schema", ticketData.Schema),
		slog.String("collection", ticketData.Collection),
	}
	reader, err := recovery.Get(s.logger, "Scan", func() (array.RecordReader, error) {
		return coll.Scan(ctx, scanOpts)
	}, collAttrs...)
	if err != nil {
		s.logger.Error("Collection scan failed",
			"schema", ticketData.Schema,
			"collection", ticketData.Collection,
			"error", err,
		)
		return toStatus(fmt.Errorf("collection scan failed: %w", err))
	}
	defer recovery.Cleanup(s.logger, "Release", reader.Release, collAttrs...)

	wantSchema := catalog.ProjectSchema(coll.ArrowSchema(), scanOpts.Columns)
	if !wantSchema.Equal(reader.Schema()) {
		s.logger.Error("RecordReader schema does not match collection schema",
			"schema", ticketData.Schema,
			"collection", ticketData.Collection,
			"collection_schema_fields", wantSchema.NumFields(),
			"reader_schema_fields", reader.Schema().NumFields(),
		)
		return status.Errorf(codes.Internal,
			"schema mismatch: collection has %d fields, reader has %d fields",
			wantSchema.NumFields(), reader.Schema().NumFields())
	}

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(wantSchema), ipc.WithAllocator(s.allocator))
	defer writer.Close()

	batchCount := 0
	totalRows := int64(0)
	err = recovery.Call(s.logger, "Stream", func() error {
		for reader.Next() {
			if err := ctx.Err(); err != nil {
				s.logger.Debug("DoGet cancelled by client",
					"collection", ticketData.Collection,
					"batches_sent", batchCount,
					"rows_sent", totalRows,
				)
				return status.Error(codes.Canceled, "request cancelled")
			}

			record := reader.Record()
			batchCount++
			totalRows += record.NumRows()

			if err := writer.Write(record); err != nil {
				return status.Errorf(codes.Internal, "failed to write batch %d: %v", batchCount, err)
			}
		}
		if err := reader.Err(); err != nil {
			return status.Errorf(codes.Internal, "scan error after batch %d: %v", batchCount, err)
		}
		return nil
	}, collAttrs...)

	if s.metrics != nil {
		s.metrics.Rows.WithLabelValues(ticketData.Collection).Add(float64(totalRows))
		s.metrics.ScanDuration.WithLabelValues(ticketData.Collection).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.logger.Error("DoGet failed",
			"collection", ticketData.Collection,
			"batches_sent", batchCount,
			"error", err,
		)
		return toStatus(err)
	}

	s.logger.Debug("DoGet completed successfully",
		"schema", ticketData.Schema,
		"collection", ticketData.Collection,
		"batches_sent", batchCount,
		"total_rows", totalRows,
	)
	return nil
}
