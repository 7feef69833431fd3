package flight

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/docquery/auth"
	"github.com/hugr-lab/docquery/catalog"
	"github.com/hugr-lab/docquery/filter"
	"github.com/hugr-lab/docquery/internal/recovery"
	"github.com/hugr-lab/docquery/query"
)

var (
	// ErrInvalidTicket is returned when a ticket cannot be decoded.
	ErrInvalidTicket = errors.New("invalid ticket")
	// ErrInvalidRequest is returned when a query request is malformed.
	ErrInvalidRequest = errors.New("invalid query request")
)

// toStatus converts an error into a gRPC status error.
// Errors that already carry a status are returned unchanged.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var parseErr *filter.ParseError
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, query.ErrInvalidQuery),
		errors.Is(err, ErrInvalidTicket),
		errors.Is(err, ErrInvalidRequest),
		errors.As(err, &parseErr):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, catalog.ErrDocumentNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, recovery.ErrPanic):
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
