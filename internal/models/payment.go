package models

import (
	"time"
)

type PaymentStatus string

const (
	StatusPending           PaymentStatus = "pending"
	StatusProcessing        PaymentStatus = "processing"
	StatusCompleted         PaymentStatus = "completed"
	StatusFailed            PaymentStatus = "failed"
	StatusCancelled         PaymentStatus = "cancelled"
	StatusRefunded          PaymentStatus = "refunded"
	StatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

const (
	MethodMobileMoney = "mobile_money"
	MethodCard        = "card"
	MethodBank        = "bank"
	MethodWallet      = "wallet"
)

const FailureReasonFraudBlocked = "fraud_blocked"

type Payment struct {
	PaymentID        string        `json:"payment_id"`
	Reference        string        `json:"reference"`
	IdempotencyKey   string        `json:"idempotency_key,omitempty"`
	UserID           string        `json:"user_id"`
	ReservationToken string        `json:"reservation_token,omitempty"`
	Amount           float64       `json:"amount"`
	Currency         string        `json:"currency"`
	Method           string        `json:"method"`
	Contact          string        `json:"contact"`
	FraudScore       int           `json:"fraud_score"`
	Status           PaymentStatus `json:"status"`
	Provider         string        `json:"provider,omitempty"`
	ProviderRef      string        `json:"provider_ref,omitempty"`
	RetryCount       int           `json:"retry_count"`
	FailureReason    string        `json:"failure_reason,omitempty"`
	InitiatedAt      time.Time     `json:"initiated_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	FailedAt         *time.Time    `json:"failed_at,omitempty"`
	ExpiresAt        *time.Time    `json:"expires_at,omitempty"`
}

// Terminal reports whether the payment is immutable, ignoring the
// refund edges out of "completed".
func (p *Payment) Terminal() bool {
	switch p.Status {
	case StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

type PaymentRequest struct {
	IdempotencyKey   string  `json:"idempotency_key,omitempty"`
	UserID           string  `json:"user_id"`
	ReservationToken string  `json:"reservation_token,omitempty"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
	Method           string  `json:"method"`
	Contact          string  `json:"contact"`
}

type PaymentResponse struct {
	PaymentID   string        `json:"payment_id"`
	Reference   string        `json:"reference"`
	Status      PaymentStatus `json:"status"`
	Amount      float64       `json:"amount"`
	Currency    string        `json:"currency"`
	FraudScore  int           `json:"fraud_score"`
	InitiatedAt time.Time     `json:"initiated_at"`
}

type PaymentEvent struct {
	Type      string    `json:"type"`
	PaymentID string    `json:"payment_id"`
	Payment   *Payment  `json:"payment"`
	Timestamp time.Time `json:"timestamp"`
}

// WebhookPayload is the provider-neutral shape of an asynchronous
// status callback. Provider-specific fields ride in ProviderData.
type WebhookPayload struct {
	Reference    string            `json:"reference"`
	EventType    string            `json:"event_type"`
	Status       string            `json:"status,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	ProviderData map[string]string `json:"provider_data,omitempty"`
}
