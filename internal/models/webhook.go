package models

import "time"

const (
	WebhookOutcomeReceived  = "received"
	WebhookOutcomeProcessed = "processed"
	WebhookOutcomeFailed    = "failed"
)

// WebhookDelivery records one provider callback for idempotency and
// audit. IdempotencyKey is provider:reference:event_type.
type WebhookDelivery struct {
	ID             int64     `json:"id"`
	Provider       string    `json:"provider"`
	Reference      string    `json:"reference"`
	EventType      string    `json:"event_type"`
	IdempotencyKey string    `json:"idempotency_key"`
	Outcome        string    `json:"outcome"`
	ReceivedAt     time.Time `json:"received_at"`
}
