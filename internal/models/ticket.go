package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketAvailable TicketStatus = "available"
	TicketSold      TicketStatus = "sold"
	TicketCancelled TicketStatus = "cancelled"
)

// Ticket is one allocatable unit in the ledger. A row moves to "sold"
// only inside the reservation confirmation transaction.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID   string       `bun:"ticket_id,pk" json:"ticket_id"`
	EventID    string       `bun:"event_id,notnull" json:"event_id"`
	TicketType string       `bun:"ticket_type,notnull" json:"ticket_type"`
	Status     TicketStatus `bun:"status,notnull" json:"status"`
	OwnerID    string       `bun:"owner_id,nullzero" json:"owner_id,omitempty"`
	PaymentID  string       `bun:"payment_id,nullzero" json:"payment_id,omitempty"`
	SoldAt     time.Time    `bun:"sold_at,nullzero" json:"sold_at,omitempty"`
}
