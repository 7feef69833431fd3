package flight

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/docquery/catalog"
	"github.com/hugr-lab/docquery/query"
)

// GetFlightInfo returns schema metadata and a ticket for a collection query.
//
// Two descriptor types are accepted:
//   - PATH [schema_name, collection_name]: every document, all columns
//   - CMD: a JSON QueryRequest with filter, projection and limit
//
// The query is validated before a ticket is issued. AppMetadata carries the
// query plan, one line per disjunctive term.
func (s *Server) GetFlightInfo(ctx context.Context, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	ctx = EnrichContextMetadata(ctx)

	s.logger.Debug("GetFlightInfo called",
		"type", desc.GetType(),
		"trace_id", TraceIDFromContext(ctx),
	)

	var req *QueryRequest
	switch desc.GetType() {
	case flight.DescriptorPATH:
		path := desc.GetPath()
		if len(path) != 2 {
			return nil, status.Error(codes.InvalidArgument, "path must contain exactly 2 elements: [schema_name, collection_name]")
		}
		req = &QueryRequest{Schema: path[0], Collection: path[1]}
	case flight.DescriptorCMD:
		var err error
		if req, err = ParseQueryRequest(desc.GetCmd()); err != nil {
			return nil, toStatus(err)
		}
	default:
		return nil, status.Error(codes.InvalidArgument, "descriptor must be PATH or CMD type")
	}

	coll, err := s.lookupCollection(ctx, req.Schema, req.Collection)
	if err != nil {
		return nil, err
	}

	q, err := req.Query()
	if err != nil {
		s.logger.Debug("Rejected query", "schema", req.Schema, "collection", req.Collection, "error", err)
		return nil, toStatus(err)
	}
	plan := s.plan(coll, q)

	info, err := s.flightInfo(desc, req.Schema, coll, q, req.Columns)
	if err != nil {
		return nil, err
	}
	info.AppMetadata = []byte(plan.String())

	s.logger.Debug("GetFlightInfo successful",
		"schema", req.Schema,
		"collection", req.Collection,
		"filter", q.Filter().String(),
		"full_scan", plan.FullScan(),
	)
	return info, nil
}

// flightInfo builds the FlightInfo and ticket for q over coll.
func (s *Server) flightInfo(desc *flight.FlightDescriptor, schemaName string, coll catalog.Collection, q query.Query, columns []string) (*flight.FlightInfo, error) {
	filterBytes, err := q.Filter().MarshalBinary()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode filter: %v", err)
	}

	ticket, err := EncodeTicket(TicketData{
		Schema:     schemaName,
		Collection: coll.Name(),
		Filter:     filterBytes,
		Columns:    columns,
		Limit:      int64(q.Limit()),
	})
	if err != nil {
		s.logger.Error("Failed to encode ticket", "schema", schemaName, "collection", coll.Name(), "error", err)
		return nil, status.Errorf(codes.Internal, "failed to encode ticket: %v", err)
	}

	endpoint := &flight.FlightEndpoint{Ticket: &flight.Ticket{Ticket: ticket}}
	if s.address != "" {
		endpoint.Location = []*flight.Location{{Uri: "grpc://" + s.address}}
	}

	return &flight.FlightInfo{
		Schema:           flight.SerializeSchema(catalog.ProjectSchema(coll.ArrowSchema(), columns), s.allocator),
		FlightDescriptor: desc,
		Endpoint:         []*flight.FlightEndpoint{endpoint},
		TotalRecords:     -1, // Unknown until scan
		TotalBytes:       -1, // Unknown until scan
	}, nil
}
