package flight

import (
	"fmt"

	"github.com/hugr-lab/docquery/catalog"
	"github.com/hugr-lab/docquery/filter"
	"github.com/hugr-lab/docquery/internal/msgpack"
	"github.com/hugr-lab/docquery/internal/serialize"
)

// TicketData represents the decoded content of a Flight ticket.
// Tickets are opaque to clients: zstd-compressed MessagePack of this struct.
type TicketData struct {
	// Schema is the schema name (e.g., "main")
	Schema string `msgpack:"schema"`

	// Collection is the collection name (e.g., "users")
	Collection string `msgpack:"collection"`

	// Filter is the binary encoding of the filter (filter.Filter.MarshalBinary).
	// Empty means no filter.
	Filter []byte `msgpack:"filter,omitempty"`

	// Columns to project (optional, nil means all columns)
	Columns []string `msgpack:"columns,omitempty"`

	// Limit is the maximum number of rows (0 means no limit)
	Limit int64 `msgpack:"limit,omitempty"`
}

// EncodeTicket creates an opaque ticket.
func EncodeTicket(td TicketData) ([]byte, error) {
	if td.Schema == "" {
		return nil, fmt.Errorf("schema name cannot be empty")
	}
	if td.Collection == "" {
		return nil, fmt.Errorf("collection name cannot be empty")
	}

	data, err := msgpack.Encode(td)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ticket: %w", err)
	}
	return serialize.Compress(data)
}

// DecodeTicket parses an opaque ticket.
// Errors wrap ErrInvalidTicket.
func DecodeTicket(ticketBytes []byte) (*TicketData, error) {
	if len(ticketBytes) == 0 {
		return nil, fmt.Errorf("%w: ticket cannot be empty", ErrInvalidTicket)
	}

	data, err := serialize.Decompress(ticketBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTicket, err)
	}

	var ticket TicketData
	if err := msgpack.Decode(data, &ticket); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTicket, err)
	}

	if ticket.Schema == "" {
		return nil, fmt.Errorf("%w: empty schema name", ErrInvalidTicket)
	}
	if ticket.Collection == "" {
		return nil, fmt.Errorf("%w: empty collection name", ErrInvalidTicket)
	}
	if ticket.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must be non-negative, got %d", ErrInvalidTicket, ticket.Limit)
	}

	return &ticket, nil
}

// ToScanOptions converts TicketData to catalog.ScanOptions with the decoded filter.
func (td *TicketData) ToScanOptions(f filter.Filter) *catalog.ScanOptions {
	return &catalog.ScanOptions{
		Columns: td.Columns,
		Filter:  f,
		Limit:   td.Limit,
	}
}
