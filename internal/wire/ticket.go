package wire

import (
	"fmt"

	"github.com/google/uuid"
)

// Ticket identifies one read session handed out by GetFlightInfo and
// redeemed by DoGet.
type Ticket struct {
	Session        string   `msgpack:"session"`
	Table          string   `msgpack:"table"`
	RowRestriction string   `msgpack:"row_restriction"`
	SelectedFields []string `msgpack:"selected_fields,omitempty"`
}

// NewTicket creates a ticket with a fresh session id.
func NewTicket(table, restriction string, fields []string) Ticket {
	return Ticket{
		Session:        uuid.NewString(),
		Table:          table,
		RowRestriction: restriction,
		SelectedFields: fields,
	}
}

// EncodeTicket serializes a ticket.
func EncodeTicket(t Ticket) ([]byte, error) {
	if t.Table == "" {
		return nil, fmt.Errorf("%w: ticket without table", ErrMalformed)
	}
	return Marshal(t)
}

// DecodeTicket parses a ticket and checks its session id.
func DecodeTicket(data []byte) (Ticket, error) {
	var t Ticket
	if err := Unmarshal(data, &t); err != nil {
		return Ticket{}, err
	}
	if t.Table == "" {
		return Ticket{}, fmt.Errorf("%w: ticket without table", ErrMalformed)
	}
	if _, err := uuid.Parse(t.Session); err != nil {
		return Ticket{}, fmt.Errorf("%w: invalid session id: %w", ErrMalformed, err)
	}
	return t, nil
}
