package flight

import (
	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/docquery/catalog"
	"github.com/hugr-lab/docquery/query"
)

// ListFlights returns one FlightInfo per readable collection.
// Each carries a PATH descriptor [schema, collection], the collection schema,
// an unfiltered ticket, and the collection comment as AppMetadata.
//
// A non-empty criteria expression restricts the listing to the schema of that name.
func (s *Server) ListFlights(criteria *flight.Criteria, stream flight.FlightService_ListFlightsServer) error {
	ctx := EnrichContextMetadata(stream.Context())
	only := string(criteria.GetExpression())

	s.logger.Debug("ListFlights called", "schema", only)

	schemas, err := s.catalog.Schemas(ctx)
	if err != nil {
		s.logger.Error("Failed to list schemas", "error", err)
		return status.Errorf(codes.Internal, "failed to list schemas: %v", err)
	}

	sent := 0
	for _, schema := range schemas {
		if only != "" && schema.Name() != only {
			continue
		}
		colls, err := schema.Collections(ctx)
		if err != nil {
			s.logger.Error("Failed to list collections", "schema", schema.Name(), "error", err)
			return status.Errorf(codes.Internal, "failed to list collections: %v", err)
		}

		for _, coll := range colls {
			if coll.ArrowSchema() == nil {
				s.logger.Warn("Skipping collection with nil Arrow schema", "schema", schema.Name(), "collection", coll.Name())
				continue
			}
			if s.authorizer != nil && s.authorizer.AuthorizeCollection(ctx, schema.Name(), coll.Name()) != nil {
				continue
			}
			info, err := s.collectionInfo(schema.Name(), coll)
			if err != nil {
				return err
			}
			if err := stream.Send(info); err != nil {
				s.logger.Error("Failed to send FlightInfo", "error", err)
				return status.Errorf(codes.Internal, "failed to send flight info: %v", err)
			}
			sent++
		}
	}

	s.logger.Debug("ListFlights completed", "flights", sent)
	return nil
}

func (s *Server) collectionInfo(schemaName string, coll catalog.Collection) (*flight.FlightInfo, error) {
	desc := &flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{schemaName, coll.Name()},
	}
	info, err := s.flightInfo(desc, schemaName, coll, query.New(coll.Name()), nil)
	if err != nil {
		return nil, err
	}
	info.AppMetadata = []byte(coll.Comment())
	return info, nil
}
