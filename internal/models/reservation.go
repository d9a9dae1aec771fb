package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
)

const (
	CancelReasonUser     = "user_cancelled"
	CancelReasonExpired  = "expired"
	CancelReasonInternal = "internal_error"
)

type Reservation struct {
	bun.BaseModel `bun:"table:reservations"`

	ID           int64             `bun:"id,pk,autoincrement" json:"-"`
	Token        string            `bun:"token,notnull,unique" json:"token"`
	EventID      string            `bun:"event_id,notnull" json:"event_id"`
	TicketType   string            `bun:"ticket_type,notnull" json:"ticket_type"`
	Quantity     int               `bun:"quantity,notnull" json:"quantity"`
	OwnerID      string            `bun:"owner_id,notnull" json:"owner_id"`
	Status       ReservationStatus `bun:"status,notnull" json:"status"`
	CancelReason string            `bun:"cancel_reason,nullzero" json:"cancel_reason,omitempty"`
	PaymentID    string            `bun:"payment_id,nullzero" json:"payment_id,omitempty"`
	CreatedAt    time.Time         `bun:"created_at,notnull" json:"created_at"`
	ExpiresAt    time.Time         `bun:"expires_at,notnull" json:"expires_at"`
}

// Terminal reports whether the reservation can no longer change state.
func (r *Reservation) Terminal() bool {
	return r.Status == ReservationConfirmed || r.Status == ReservationCancelled
}

type ReservationRequest struct {
	EventID    string `json:"event_id"`
	TicketType string `json:"ticket_type"`
	Quantity   int    `json:"quantity"`
	OwnerID    string `json:"owner_id"`
}

type ReservationResponse struct {
	Token     string    `json:"token"`
	EventID   string    `json:"event_id"`
	Quantity  int       `json:"quantity"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ReservationEvent struct {
	Type        string       `json:"type"`
	Token       string       `json:"token"`
	Reservation *Reservation `json:"reservation"`
	Timestamp   time.Time    `json:"timestamp"`
}
