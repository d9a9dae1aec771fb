package storage

import (
	"errors"
	"time"

	"ms-reservations/internal/models"
)

// ErrInsufficientFunds is returned by DebitWallet when the balance
// does not cover the amount.
var ErrInsufficientFunds = errors.New("insufficient wallet funds")

type Store interface {
	// Payment operations
	SavePayment(payment *models.Payment) error
	GetPayment(id string) (*models.Payment, error)
	GetPaymentByIdempotencyKey(key string) (*models.Payment, error)
	GetPaymentByProviderRef(provider, ref string) (*models.Payment, error)
	UpdatePayment(payment *models.Payment) error
	ListPaymentsByUser(userID string, limit, offset int) ([]*models.Payment, error)

	// Fraud-scoring history
	CountRecentPayments(contact string, since time.Time) (int, error)
	AverageAmount(contact string) (float64, error)

	// Webhook idempotency and audit
	MarkWebhookReceived(delivery *models.WebhookDelivery) (bool, error)
	RecordWebhookOutcome(idempotencyKey, outcome string) error

	// Wallet settlement; returns the wallet transaction id.
	DebitWallet(userID string, amount float64, paymentID string) (string, error)

	// Health and maintenance
	Close() error
	HealthCheck() error
}
